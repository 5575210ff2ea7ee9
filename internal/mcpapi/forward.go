package mcpapi

import "net/http"

type forwardRequest struct {
	Action   string `json:"action"` // list|add|remove
	AIName   string `json:"ai_name,omitempty"`
	Terminal string `json:"terminal,omitempty"`
}

// handleForward implements POST /tools/forward (spec §6.2).
func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	var req forwardRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "list":
		writeJSON(w, http.StatusOK, s.rt.ListForwards())
	case "add":
		if req.AIName == "" || req.Terminal == "" {
			badRequest(w, "ai_name and terminal are required")
			return
		}
		if err := s.rt.AddForward(req.AIName, req.Terminal); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"added": true})
	case "remove":
		if req.AIName == "" {
			badRequest(w, "ai_name is required")
			return
		}
		s.rt.RemoveForward(req.AIName)
		writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
	default:
		badRequest(w, "action must be one of list, add, remove")
	}
}
