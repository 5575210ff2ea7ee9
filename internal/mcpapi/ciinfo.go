package mcpapi

import (
	"net/http"
	"strings"

	"aish/internal/api"
)

type listAIsRequest struct {
	Type string `json:"type,omitempty"`
}

// handleListAIs implements POST /tools/list-ais (spec §6.2).
func (s *Server) handleListAIs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	var req listAIsRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}
	entries := s.reg.List(api.EntryFilter{Type: api.CIType(req.Type)})
	writeJSON(w, http.StatusOK, entries)
}

// handleCITypes implements GET /tools/ci-types.
func (s *Server) handleCITypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	writeJSON(w, http.StatusOK, []api.CIType{
		api.CITypeGreek, api.CITypeTerminal, api.CITypeProject, api.CITypeTool,
	})
}

// handleCIByName implements GET /tools/ci/{name} and GET /tools/ci/{name}/exists.
func (s *Server) handleCIByName(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, basePath+"/tools/ci/")
	name, suffix, hasSuffix := strings.Cut(rest, "/")
	if name == "" {
		badRequest(w, "ci name is required")
		return
	}

	if hasSuffix && suffix == "exists" {
		_, err := s.reg.Get(name)
		writeJSON(w, http.StatusOK, map[string]bool{"exists": err == nil})
		return
	}

	entry, err := s.reg.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleCIsByType implements GET /tools/cis/type/{type}.
func (s *Server) handleCIsByType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	typ := strings.TrimPrefix(r.URL.Path, basePath+"/tools/cis/type/")
	if typ == "" {
		badRequest(w, "ci type is required")
		return
	}
	writeJSON(w, http.StatusOK, s.reg.List(api.EntryFilter{Type: api.CIType(typ)}))
}
