package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	"aish/internal/api"
)

// SendStream behaves like Send but relays a tool-class CI's output as it
// arrives rather than buffering until EOF, for SSE callers (spec §4.6
// step 6). Non-tool-class formats fall back to a single chunk followed
// by done, since those transports don't expose incremental output here.
// Per spec §5, streaming has no fixed deadline — ctx is the only thing
// that ends it early, canceled by the caller when its client disconnects.
func (r *Router) SendStream(ctx context.Context, to string, msg api.Message, chunks chan<- api.StreamChunk) error {
	defer close(chunks)

	entry, err := r.reg.Get(to)
	if err != nil {
		return err
	}
	msg.To = to
	if err := r.prependNext(to, &msg); err != nil {
		return err
	}

	if !entry.MessageFormat.IsToolClass() {
		resp, err := r.dispatch(entry, msg)
		if err != nil {
			return err
		}
		select {
		case chunks <- api.StreamChunk{Delta: resp.Content}:
		case <-ctx.Done():
			return ctx.Err()
		}
		chunks <- api.StreamChunk{Done: true}
		lastOutput := resp.Content
		return r.reg.SetContext(to, api.ContextPatch{LastOutput: &lastOutput})
	}

	return r.streamToolClass(ctx, entry, msg, chunks)
}

func (r *Router) streamToolClass(ctx context.Context, entry *api.CIEntry, msg api.Message, chunks chan<- api.StreamChunk) error {
	addr, err := endpointAddr(entry.Endpoint)
	if err != nil {
		return &api.TransportError{CI: entry.Name, Err: err}
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return &api.TransportError{CI: entry.Name, Err: err}
	}
	defer conn.Close()

	msg.Execute = true
	data, err := json.Marshal(msg)
	if err != nil {
		return &api.TransportError{CI: entry.Name, Err: err}
	}
	// No read deadline here: spec §5 makes streaming unbounded. The
	// watcher below forces the read to unblock by pulling the deadline
	// forward the moment ctx is canceled, i.e. when the client hangs up.
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return &api.TransportError{CI: entry.Name, Err: err}
	}

	watchStop := make(chan struct{})
	defer close(watchStop)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-watchStop:
		}
	}()

	var full string
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var frame bridgeFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			continue
		}
		if frame.Done {
			break
		}
		if frame.Stream != "stdout" {
			continue
		}
		full += frame.Delta
		select {
		case chunks <- api.StreamChunk{Delta: frame.Delta}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	chunks <- api.StreamChunk{Done: true}

	return r.reg.SetContext(entry.Name, api.ContextPatch{LastOutput: &full})
}

// Cancel sends a cancel message targeting requestID through to's declared
// transport, fire-and-forget (spec §4.6 Cancellation).
func (r *Router) Cancel(to, requestID string) error {
	entry, err := r.reg.Get(to)
	if err != nil {
		return err
	}
	msg := api.Message{From: routerQueueName, To: to, Type: api.MessageCancel, RequestID: requestID}

	switch {
	case entry.MessageFormat == api.FormatTermaRoute:
		return r.bus.Send(to, msg)
	case entry.MessageFormat.IsToolClass(), entry.MessageFormat == api.FormatRhetorSocket:
		_, err := sendRhetorSocket(entry, msg)
		return err
	default:
		_, err := sendJSONSimple(entry, msg)
		return err
	}
}
