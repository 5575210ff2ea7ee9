package mcpapi

import (
	"net/http"
	"strings"

	"aish/internal/api"
)

// handleContextState implements GET/POST /tools/context-state/{name} and
// POST /tools/context-state/{name}/promote-staged (spec §6.2).
func (s *Server) handleContextState(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, basePath+"/tools/context-state/")
	name, suffix, hasSuffix := strings.Cut(rest, "/")
	if name == "" {
		badRequest(w, "ci name is required")
		return
	}

	if hasSuffix && suffix == "promote-staged" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r.Method)
			return
		}
		promoted, err := s.reg.PromoteStaged(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"promoted": promoted})
		return
	}

	switch r.Method {
	case http.MethodGet:
		state, err := s.reg.GetContext(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	case http.MethodPost:
		var patch api.ContextPatch
		if err := decodeBody(r, &patch); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
		if err := s.reg.SetContext(name, patch); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
	default:
		methodNotAllowed(w, r.Method)
	}
}

// handleContextStates implements GET /tools/context-states: every CI's
// context state keyed by name, for dashboards that don't want N round trips.
func (s *Server) handleContextStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	out := make(map[string]*api.ContextState)
	for _, entry := range s.reg.List(api.EntryFilter{}) {
		state, err := s.reg.GetContext(entry.Name)
		if err != nil {
			continue
		}
		out[entry.Name] = state
	}
	writeJSON(w, http.StatusOK, out)
}
