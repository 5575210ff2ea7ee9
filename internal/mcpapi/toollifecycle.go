package mcpapi

import (
	"net/http"
	"strconv"
	"strings"

	"aish/internal/api"
	"aish/internal/supervisor"
)

// handleCITools implements GET /tools/ci-tools (spec §6.2): every
// tool-class CI entry, regardless of running state.
func (s *Server) handleCITools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	writeJSON(w, http.StatusOK, s.reg.List(api.EntryFilter{Type: api.CITypeTool}))
}

type launchRequest struct {
	ToolName     string `json:"tool_name"`
	SessionID    string `json:"session_id,omitempty"`
	InstanceName string `json:"instance_name,omitempty"`
}

type launchResponse struct {
	Port int `json:"port"`
}

// handleLaunch implements POST /tools/ci-tools/launch (spec §6.2).
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	var req launchRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.ToolName == "" {
		badRequest(w, "tool_name is required")
		return
	}

	port, err := s.sup.Launch(req.ToolName, req.SessionID, req.InstanceName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, launchResponse{Port: port})
}

type terminateRequest struct {
	ToolName string `json:"tool_name"`
}

// handleTerminate implements POST /tools/ci-tools/terminate.
func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	var req terminateRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := s.sup.Terminate(req.ToolName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"terminated": true})
}

// handleStatus implements GET /tools/ci-tools/status/{name}; name may be
// omitted to report every running instance's status keyed by name.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, basePath+"/tools/ci-tools/status/")
	if name == "" {
		out := make(map[string]supervisor.InstanceStatus)
		for _, inst := range s.sup.Instances() {
			out[inst.Name] = s.sup.Status(inst.Name)
		}
		writeJSON(w, http.StatusOK, out)
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Status(name))
}

// handleInstances implements GET /tools/ci-tools/instances.
func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Instances())
}

type defineRequest struct {
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Executable string        `json:"executable"`
	Options    defineOptions `json:"options"`
}

type defineOptions struct {
	Port         string            `json:"port,omitempty"` // "auto" or a literal port number
	Capabilities []string          `json:"capabilities,omitempty"`
	LaunchArgs   []string          `json:"launch_args,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	HealthCheck  string            `json:"health_check,omitempty"`
	Delimiter    string            `json:"delimiter,omitempty"`
	AutoRestart  bool              `json:"auto_restart,omitempty"`
}

// handleDefine implements POST /tools/ci-tools/define (spec §6.2).
func (s *Server) handleDefine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	var req defineRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Executable == "" {
		badRequest(w, "name and executable are required")
		return
	}

	def := &supervisor.ToolDefinition{
		Name:         req.Name,
		AdapterKind:  api.AdapterKind(req.Type),
		Executable:   req.Executable,
		LaunchArgs:   req.Options.LaunchArgs,
		Env:          req.Options.Env,
		Capabilities: req.Options.Capabilities,
		HealthCheck:  req.Options.HealthCheck,
		Delimiter:    req.Options.Delimiter,
		AutoRestart:  req.Options.AutoRestart,
		DefinedBy:    api.DefinedByUser,
	}
	if req.Options.Port != "" && req.Options.Port != "auto" {
		port, err := strconv.Atoi(req.Options.Port)
		if err != nil {
			badRequest(w, "options.port must be \"auto\" or a port number")
			return
		}
		def.Port = port
	}
	if err := s.sup.Define(def); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"defined": true})
}

// handleUndefine implements DELETE /tools/ci-tools/{name}.
func (s *Server) handleUndefine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, basePath+"/tools/ci-tools/")
	if name == "" {
		badRequest(w, "tool name is required")
		return
	}
	if err := s.sup.Undefine(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"undefined": true})
}

// handleToolCapabilities implements GET /tools/ci-tools/capabilities/{name}.
func (s *Server) handleToolCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	if s.sup == nil {
		writeError(w, errNoSupervisor)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, basePath+"/tools/ci-tools/capabilities/")
	caps, err := s.sup.Capabilities(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}
