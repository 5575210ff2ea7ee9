package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aish/internal/api"

	"github.com/google/uuid"
)

const (
	dialTimeout = 10 * time.Second
	readTimeout = 60 * time.Second
)

// sendRhetorSocket opens a TCP connection to entry's endpoint, writes a
// newline-delimited JSON request, and reads until the peer closes the
// connection (spec §4.6 rhetor_socket branch).
func sendRhetorSocket(entry *api.CIEntry, msg api.Message) (api.Response, error) {
	addr, err := endpointAddr(entry.Endpoint)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	conn.SetDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	var out strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			break // EOF or timeout ends the read, per spec "read until EOF"
		}
	}
	return api.Response{Content: out.String(), RequestID: msg.RequestID}, nil
}

// sendTermaRoute enqueues msg on the target terminal's Bus inbox, assigning
// a request_id when msg has none, and always waits up to replyTimeout for
// the reply correlated by that request_id (spec §4.6 terma_route branch).
func (r *Router) sendTermaRoute(entry *api.CIEntry, msg api.Message) (api.Response, error) {
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	}
	msg.From = routerQueueName

	ch := make(chan api.Response, 1)
	r.pendingMu.Lock()
	r.pending[msg.RequestID] = ch
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, msg.RequestID)
		r.pendingMu.Unlock()
	}()

	if err := r.bus.Send(entry.Name, msg); err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(replyTimeout):
		return api.Response{}, &api.TimeoutError{Operation: fmt.Sprintf("terma_route reply from %s", entry.Name)}
	}
}

// sendJSONSimple POSTs the raw message JSON to entry's endpoint and
// parses the JSON response (spec §4.6 json_simple branch).
func sendJSONSimple(entry *api.CIEntry, msg api.Message) (api.Response, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	client := &http.Client{Timeout: readTimeout}
	httpResp, err := client.Post(entry.Endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	defer httpResp.Body.Close()

	var resp api.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	return resp, nil
}

// sendToolClass dials the tool's bridged TCP socket and speaks the
// Socket Bridge's framing directly (spec §4.6 tool-class branch, §4.4).
func sendToolClass(entry *api.CIEntry, msg api.Message) (api.Response, error) {
	addr, err := endpointAddr(entry.Endpoint)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	defer conn.Close()

	msg.Execute = true
	data, err := json.Marshal(msg)
	if err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}
	conn.SetDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: err}
	}

	var out strings.Builder
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
		if frame.Stream == "stdout" {
			out.WriteString(frame.Delta)
		}
	}
	// scanner.Scan() returning false (EOF, or readTimeout above firing)
	// is a fallback for tools that never emit the Done sentinel; the
	// common case is the break above, well before the deadline.
	return api.Response{Content: out.String(), RequestID: msg.RequestID}, nil
}

// bridgeFrame mirrors the Socket Bridge's outboundFrame wire shape (spec
// §4.4): stream deltas plus a terminating Done sentinel.
type bridgeFrame struct {
	Stream string `json:"stream"`
	Delta  string `json:"delta"`
	Done   bool   `json:"done"`
}

func endpointAddr(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid endpoint %q", endpoint)
	}
	return u.Host, nil
}
