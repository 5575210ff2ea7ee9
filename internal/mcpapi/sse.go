package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"aish/internal/api"
	"aish/pkg/logging"
)

// streamSSE relays chunks as spec §6.2 SSE frames: "data: {...}\n\n" per
// chunk, terminated once chunks is closed (the router closes it after
// sending the Done chunk), a write fails, or ctx is canceled (the
// request's client disconnected). Returning on
// ctx.Done rather than only on a closed chunks channel matters because
// streaming is unbounded per spec §5: this is the only thing that ends it.
func streamSSE(ctx context.Context, w http.ResponseWriter, chunks <-chan api.StreamChunk) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("mcpapi: streaming unsupported by response writer"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			data, err := json.Marshal(chunk)
			if err != nil {
				logging.Warn(subsystem, "marshal stream chunk: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
