package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"aish/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	old := serverAddr
	serverAddr = ts.URL
	t.Cleanup(func() { serverAddr = old })
	return newClient()
}

func TestClientGetDecodesJSON(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, basePath+"/tools/registry/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]int{"entry_count": 3})
	})

	var out map[string]int
	require.NoError(t, c.get("/tools/registry/status", &out))
	assert.Equal(t, 3, out["entry_count"])
}

func TestClientPostSendsBody(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "numa", req["ai_name"])
		json.NewEncoder(w).Encode(sendMessageResponse{Response: "ok"})
	})

	var out sendMessageResponse
	require.NoError(t, c.post("/tools/send-message", map[string]string{"ai_name": "numa"}, &out))
	assert.Equal(t, "ok", out.Response)
}

func TestClientSurfacesErrorEnvelope(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "ci not found: ghost", "code": "unknown_ci"})
	})

	err := c.get("/tools/ci/ghost", nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unknown_ci", apiErr.Code)
}

func TestClientStreamRelaysDeltasUntilDone(t *testing.T) {
	c := withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, chunk := range []api.StreamChunk{{Delta: "hel"}, {Delta: "lo"}, {Done: true}} {
			data, _ := json.Marshal(chunk)
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	})

	var got bytes.Buffer
	require.NoError(t, c.stream("/tools/send-message", map[string]string{}, func(delta string) {
		got.WriteString(delta)
	}))
	assert.Equal(t, "hello", got.String())
}

func TestGetExitCodeMapsWireCodes(t *testing.T) {
	assert.Equal(t, api.ExitUnknownCI, getExitCode(&apiError{Code: "unknown_ci"}))
	assert.Equal(t, api.ExitTransportFailure, getExitCode(&apiError{Code: "transport_failure"}))
	assert.Equal(t, api.ExitTimeout, getExitCode(&apiError{Code: "timeout"}))
	assert.Equal(t, api.ExitRegistryInconsist, getExitCode(&apiError{Code: "persist_failed"}))
	assert.Equal(t, api.ExitUsageError, getExitCode(&apiError{Code: "name_taken"}))
}
