package mcpapi

import (
	"net/http"

	"aish/internal/api"
)

// handleRegistryReload implements POST /tools/registry/reload (spec §6.2):
// discards in-memory state and re-reads the document from disk.
func (s *Server) handleRegistryReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	recovered, err := s.reg.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]interface{}{"reloaded": true}
	if recovered != nil {
		resp["recovered_from"] = recovered.RestoredFrom
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRegistryStatus implements GET /tools/registry/status.
func (s *Server) handleRegistryStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	entries := s.reg.List(api.EntryFilter{})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entry_count": len(entries),
	})
}

// handleRegistrySave implements POST /tools/registry/save.
func (s *Server) handleRegistrySave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	if err := s.reg.Save(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}
