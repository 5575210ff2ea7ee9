package mcpapi

import "errors"

// errNoSupervisor is surfaced by every tool-lifecycle endpoint when the
// process was started without a Tool Supervisor (a registry-only,
// read-path-only deployment).
var errNoSupervisor = errors.New("mcpapi: no tool supervisor configured")
