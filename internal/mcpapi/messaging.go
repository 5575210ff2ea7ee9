package mcpapi

import (
	"net/http"

	"aish/internal/api"
)

type sendMessageRequest struct {
	AIName  string `json:"ai_name"`
	Message string `json:"message"`
	Stream  bool   `json:"stream,omitempty"`
	Execute bool   `json:"execute,omitempty"`
}

type sendMessageResponse struct {
	Response string `json:"response"`
}

// handleSendMessage implements POST /tools/send-message (spec §6.2). With
// stream=true it relays the response as SSE rather than buffering it.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.AIName == "" {
		badRequest(w, "ai_name is required")
		return
	}

	msg := api.Message{From: api.SenderCLI, Content: req.Message, Execute: req.Execute, Type: api.MessageChat}

	if req.Stream {
		chunks := make(chan api.StreamChunk)
		go func() {
			if err := s.rt.SendStream(r.Context(), req.AIName, msg, chunks); err != nil {
				// the error has already closed the channel; nothing further
				// to relay over SSE, the client observes an empty stream.
				return
			}
		}()
		streamSSE(r.Context(), w, chunks)
		return
	}

	resp, err := s.rt.Send(req.AIName, msg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendMessageResponse{Response: resp.Content})
}

type teamChatRequest struct {
	Message string `json:"message"`
}

type teamChatResponseEntry struct {
	Name     string `json:"name"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

type teamChatResponse struct {
	Responses []teamChatResponseEntry `json:"responses"`
}

// handleTeamChat implements POST /tools/team-chat (spec §6.2), broadcasting
// to every Greek and Terminal CI via the router's default broadcast filter.
func (s *Server) handleTeamChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	var req teamChatRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}

	results := s.rt.Broadcast(api.Message{From: api.SenderCLI, Content: req.Message, Type: api.MessageChat}, api.EntryFilter{})

	out := make([]teamChatResponseEntry, 0, len(results))
	for _, res := range results {
		entry := teamChatResponseEntry{Name: res.Name}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			entry.Response = res.Response.Content
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, teamChatResponse{Responses: out})
}
