package mcpapi

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

type capabilitiesResponse struct {
	Tools []mcp.Tool `json:"tools"`
}

// handleCapabilities implements GET /capabilities (spec §6.2): a static
// description of every tool this server exposes, shaped with the real MCP
// tool vocabulary so the response can be handed straight to an MCP client.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r.Method)
		return
	}
	writeJSON(w, http.StatusOK, capabilitiesResponse{Tools: knownTools()})
}

func knownTools() []mcp.Tool {
	return []mcp.Tool{
		{Name: "send_message", Description: "Send a message to a CI and wait for its response."},
		{Name: "team_chat", Description: "Broadcast a message to every Greek and Terminal CI."},
		{Name: "list_ais", Description: "List registered CIs, optionally filtered by type."},
		{Name: "ci_tools_launch", Description: "Launch a tool-class CI instance."},
		{Name: "ci_tools_terminate", Description: "Terminate a running tool-class CI instance."},
		{Name: "ci_tools_define", Description: "Persist a new tool-class CI definition."},
		{Name: "context_state_get", Description: "Read a CI's staged/next prompt context."},
		{Name: "context_state_set", Description: "Patch a CI's staged/next prompt context."},
		{Name: "forward", Description: "Mirror a CI's traffic to an observing terminal."},
		{Name: "ci_types", Description: "List the CI types known to the registry."},
		{Name: "get_ci", Description: "Read one CI's registry entry."},
		{Name: "ci_exists", Description: "Report whether a CI name is registered."},
		{Name: "cis_by_type", Description: "List registered CIs of one type."},
		{Name: "ci_tools_list", Description: "List tool-class CIs."},
		{Name: "ci_tools_status", Description: "Report a tool instance's running state."},
		{Name: "ci_tools_instances", Description: "List running tool instances."},
		{Name: "ci_tools_capabilities", Description: "List a tool's declared capabilities."},
		{Name: "ci_tools_undefine", Description: "Remove a user-defined tool definition."},
		{Name: "context_states", Description: "List every CI's context state."},
		{Name: "context_state_promote_staged", Description: "Move a CI's staged prompt into its next prompt."},
		{Name: "registry_reload", Description: "Re-read the registry document from disk."},
		{Name: "registry_status", Description: "Report the registry's entry count."},
		{Name: "registry_save", Description: "Write the registry document to disk now."},
	}
}
