// Package mcpapi implements the MCP Server (spec §4.8): the single HTTP
// surface under /api/mcp/v2 that every UI, external tool, and peer stack
// uses to reach the orchestration core. It owns HTTP routing, SSE framing,
// and error-envelope construction; every handler delegates to the
// Registry Store, Unified Router, or Tool Supervisor.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"aish/internal/config"
	"aish/internal/health"
	"aish/internal/registry"
	"aish/internal/router"
	"aish/internal/supervisor"
	"aish/pkg/logging"
)

const subsystem = "mcpapi"

// basePath is the root every endpoint in spec §6.2 hangs off.
const basePath = "/api/mcp/v2"

// Server is the MCP HTTP server. One instance per stack, bound to
// cfg.MCPPort.
type Server struct {
	cfg *config.Config
	reg *registry.Store
	rt  *router.Router
	sup *supervisor.Supervisor
	mon *health.Monitor

	httpServer *http.Server
}

// New wires a Server against the core's already-constructed components.
// mon may be nil if the Health Monitor isn't running in this process.
func New(cfg *config.Config, reg *registry.Store, rt *router.Router, sup *supervisor.Supervisor, mon *health.Monitor) *Server {
	return &Server{cfg: cfg, reg: reg, rt: rt, sup: sup, mon: mon}
}

// Start binds cfg.MCPPort and begins serving in the background. It
// returns once the listener is up; call Shutdown to stop it.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.MCPPort),
		Handler:           s.mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("mcpapi: listen on %s: %w", s.httpServer.Addr, err)
	case <-time.After(100 * time.Millisecond):
		logging.Info(subsystem, "listening on %s%s", s.httpServer.Addr, basePath)
		return nil
	}
}

// Shutdown drains in-flight requests and stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	p := func(suffix string) string { return basePath + suffix }

	mux.HandleFunc(p("/capabilities"), s.handleCapabilities)

	mux.HandleFunc(p("/tools/send-message"), s.handleSendMessage)
	mux.HandleFunc(p("/tools/team-chat"), s.handleTeamChat)

	mux.HandleFunc(p("/tools/list-ais"), s.handleListAIs)
	mux.HandleFunc(p("/tools/ci-types"), s.handleCITypes)
	mux.HandleFunc(p("/tools/ci/"), s.handleCIByName) // {name}, {name}/exists
	mux.HandleFunc(p("/tools/cis/type/"), s.handleCIsByType)

	mux.HandleFunc(p("/tools/ci-tools"), s.handleCITools)
	mux.HandleFunc(p("/tools/ci-tools/launch"), s.handleLaunch)
	mux.HandleFunc(p("/tools/ci-tools/terminate"), s.handleTerminate)
	mux.HandleFunc(p("/tools/ci-tools/status/"), s.handleStatus)
	mux.HandleFunc(p("/tools/ci-tools/instances"), s.handleInstances)
	mux.HandleFunc(p("/tools/ci-tools/define"), s.handleDefine)
	mux.HandleFunc(p("/tools/ci-tools/capabilities/"), s.handleToolCapabilities)
	mux.HandleFunc(p("/tools/ci-tools/"), s.handleUndefine) // DELETE /ci-tools/{name}

	mux.HandleFunc(p("/tools/context-states"), s.handleContextStates)
	mux.HandleFunc(p("/tools/context-state/"), s.handleContextState) // {name}, {name}/promote-staged

	mux.HandleFunc(p("/tools/forward"), s.handleForward)

	mux.HandleFunc(p("/tools/registry/reload"), s.handleRegistryReload)
	mux.HandleFunc(p("/tools/registry/status"), s.handleRegistryStatus)
	mux.HandleFunc(p("/tools/registry/save"), s.handleRegistrySave)

	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug(subsystem, "%s %s (%s)", r.Method, r.URL.Path, logging.ElapsedSince(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
