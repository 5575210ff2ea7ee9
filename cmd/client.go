package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"aish/internal/api"
)

const basePath = "/api/mcp/v2"

func defaultServerAddr() string {
	if v := os.Getenv("AISH_SERVER"); v != "" {
		return v
	}
	port := os.Getenv("AISH_MCP_PORT")
	if port == "" {
		port = "8118"
	}
	return "http://127.0.0.1:" + port
}

// apiError wraps the JSON error envelope the MCP server returns (spec
// §6.2) so getExitCode can recover the wire-level code string.
type apiError struct {
	Code   string
	Detail string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// asDomainError reconstructs the concrete api error type a wire-level
// code string came from, so api.ExitCode's errors.As switches still
// apply to an error that crossed an HTTP boundary.
func (e *apiError) asDomainError() error {
	switch e.Code {
	case "unknown_ci":
		return api.NewUnknownCIError(e.Detail)
	case "transport_failure":
		return &api.TransportError{Err: errors.New(e.Detail)}
	case "timeout":
		return &api.TimeoutError{Operation: e.Detail}
	case "persist_failed":
		return &api.PersistFailedError{Err: errors.New(e.Detail)}
	default:
		return e
	}
}

type client struct {
	base string
	hc   *http.Client
}

func newClient() *client {
	return &client{base: strings.TrimRight(serverAddr, "/"), hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) url(path string) string {
	return c.base + basePath + path
}

func (c *client) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.url(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return &apiError{Code: "transport_failure", Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Detail string `json:"detail"`
			Code   string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&env)
		if env.Code == "" {
			env.Code = "internal_error"
		}
		return &apiError{Code: env.Code, Detail: env.Detail}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) get(path string, out interface{}) error    { return c.do(http.MethodGet, path, nil, out) }
func (c *client) post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}
func (c *client) delete(path string, out interface{}) error { return c.do(http.MethodDelete, path, nil, out) }

// stream reads the MCP server's SSE response for a streaming send and
// invokes onDelta for each chunk's text, matching the framing
// streamSSE writes on the server side.
func (c *client) stream(path string, body interface{}, onDelta func(string)) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.url(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return &apiError{Code: "transport_failure", Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Detail string `json:"detail"`
			Code   string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&env)
		return &apiError{Code: env.Code, Detail: env.Detail}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk api.StreamChunk
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			continue
		}
		if chunk.Done {
			return nil
		}
		onDelta(chunk.Delta)
	}
	return scanner.Err()
}
