package router

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aish/internal/api"
	"aish/internal/bus"
	"aish/internal/config"
	"aish/internal/registry"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Router, *registry.Store, *bus.Bus) {
	t.Helper()
	cfg := &config.Config{Root: t.TempDir()}
	require.NoError(t, cfg.EnsureLayout())

	reg, _, err := registry.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	b := bus.New(cfg.QueuesDir())

	r, err := New(reg, b)
	require.NoError(t, err)
	return r, reg, b
}

func startEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				if scanner.Scan() {
					var msg api.Message
					json.Unmarshal(scanner.Bytes(), &msg)
					c.Write([]byte("echo:" + msg.Content))
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestSendRhetorSocket(t *testing.T) {
	r, reg, _ := newTestRouter(t)
	addr := startEchoServer(t)

	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "numa", Type: api.CITypeGreek, MessageFormat: api.FormatRhetorSocket,
		Endpoint: "http://" + addr, DefinedBy: api.DefinedBySystem,
	}))

	resp, err := r.Send("numa", api.Message{Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, "echo:hello", resp.Content)

	ctx, err := reg.GetContext("numa")
	require.NoError(t, err)
	require.Equal(t, "echo:hello", ctx.LastOutput)
}

func TestSendUnknownCI(t *testing.T) {
	r, _, _ := newTestRouter(t)
	_, err := r.Send("ghost", api.Message{})
	require.True(t, api.IsNotFound(err))
}

func TestSendTermaRouteWaitsForReply(t *testing.T) {
	r, reg, b := newTestRouter(t)
	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "term-1", Type: api.CITypeTerminal, MessageFormat: api.FormatTermaRoute, DefinedBy: api.DefinedBySystem,
	}))
	require.NoError(t, b.Create("term-1"))

	go func() {
		msg, ok, err := b.Receive("term-1", 2*time.Second)
		if err != nil || !ok {
			return
		}
		b.Send(routerQueueNameForTest(), api.Message{Content: "reply:" + msg.Content, RequestID: msg.RequestID})
	}()

	resp, err := r.Send("term-1", api.Message{Content: "ping"})
	require.NoError(t, err)
	require.Equal(t, "reply:ping", resp.Content)
}

func routerQueueNameForTest() string { return routerQueueName }

func TestPrependNextPrependsPromotedPrompt(t *testing.T) {
	r, reg, _ := newTestRouter(t)
	addr := startEchoServer(t)
	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "numa", Type: api.CITypeGreek, MessageFormat: api.FormatRhetorSocket,
		Endpoint: "http://" + addr, DefinedBy: api.DefinedBySystem,
	}))

	next := []api.PromptMessage{{Role: api.RoleSystem, Content: "context-line"}}
	require.NoError(t, reg.SetContext("numa", api.ContextPatch{NextPrompt: &next}))

	resp, err := r.Send("numa", api.Message{Content: "hello"})
	require.NoError(t, err)
	require.Contains(t, resp.Content, "context-line")
	require.Contains(t, resp.Content, "hello")
}

func TestForwardCopiesTrafficToTerminal(t *testing.T) {
	r, reg, b := newTestRouter(t)
	addr := startEchoServer(t)
	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "numa", Type: api.CITypeGreek, MessageFormat: api.FormatRhetorSocket,
		Endpoint: "http://" + addr, DefinedBy: api.DefinedBySystem,
	}))
	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "observer", Type: api.CITypeTerminal, MessageFormat: api.FormatTermaRoute, DefinedBy: api.DefinedBySystem,
	}))
	require.NoError(t, b.Create("observer"))
	require.NoError(t, r.AddForward("numa", "observer"))

	_, err := r.Send("numa", api.Message{Content: "hi"})
	require.NoError(t, err)

	outbound, ok, err := b.Receive("observer", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hi", outbound.Content)
	require.Equal(t, api.MessageObserved, outbound.Type, "forwarded traffic is tagged observed, not a plain chat")

	response, ok, err := b.Receive("observer", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "echo:hi", response.Content, "the forward terminal also sees the response, in order")
	require.Equal(t, api.MessageObserved, response.Type)
}

func TestBroadcastFansOutToGreekAndTerminal(t *testing.T) {
	r, reg, _ := newTestRouter(t)
	addr := startEchoServer(t)
	for _, name := range []string{"numa", "term-a"} {
		typ := api.CITypeGreek
		if name == "term-a" {
			typ = api.CITypeTerminal
		}
		require.NoError(t, reg.Register(&api.CIEntry{
			Name: name, Type: typ, MessageFormat: api.FormatRhetorSocket,
			Endpoint: "http://" + addr, DefinedBy: api.DefinedBySystem,
		}))
	}

	results := r.Broadcast(api.Message{Content: "hi"}, api.EntryFilter{})
	require.Len(t, results, 2)
	for _, res := range results {
		require.NoError(t, res.Err)
		require.Equal(t, "echo:hi", res.Response.Content)
	}
}

func TestSendJSONSimplePostsAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var msg api.Message
		json.NewDecoder(req.Body).Decode(&msg)
		json.NewEncoder(w).Encode(api.Response{Content: "got:" + msg.Content})
	}))
	defer srv.Close()

	r, reg, _ := newTestRouter(t)
	require.NoError(t, reg.Register(&api.CIEntry{
		Name: "webtool", Type: api.CITypeTool, MessageFormat: api.FormatJSONSimple,
		Endpoint: srv.URL, DefinedBy: api.DefinedByUser,
	}))

	resp, err := r.Send("webtool", api.Message{Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, "got:hi", resp.Content)
}
