package mcpapi

import (
	"encoding/json"
	"net/http"

	"aish/internal/api"
	"aish/pkg/logging"
)

// errorEnvelope is the wire shape spec §6.2 mandates for every error
// response: {"detail": "<human message>", "code": "<token>"}.
type errorEnvelope struct {
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Warn(subsystem, "encode response: %v", err)
	}
}

// writeError translates err into the standard envelope and status code via
// api.ErrorCode (spec §6.2, §7).
func writeError(w http.ResponseWriter, err error) {
	code, status := api.ErrorCode(err)
	writeJSON(w, status, errorEnvelope{Detail: err.Error(), Code: code})
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Detail: detail, Code: "bad_request"})
}

func methodNotAllowed(w http.ResponseWriter, method string) {
	writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope{Detail: "method not allowed: " + method, Code: "method_not_allowed"})
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
