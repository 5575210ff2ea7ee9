// Package supervisor implements the Tool Supervisor (spec §4.5): the
// lifecycle owner for every CI tool process. Singleton within a stack.
package supervisor

import (
	"fmt"
	"os"
	"sync"
	"time"

	"aish/internal/api"
	"aish/internal/bridge"
	"aish/internal/config"
	"aish/internal/portalloc"
	"aish/internal/registry"
	"aish/pkg/logging"
)

const subsystem = "supervisor"

// maxRestartAttempts and restartWindow bound auto-restart: five attempts
// within five minutes, then the supervisor gives up and marks the
// instance unhealthy (spec §4.5 Failure semantics).
const (
	maxRestartAttempts = 5
	restartWindow      = 5 * time.Minute
)

type runningInstance struct {
	inst   api.ToolInstance
	def    *ToolDefinition
	bridge *bridge.Bridge

	mu             sync.Mutex
	restarts       []time.Time
}

// Supervisor owns every tool definition and running instance for one stack.
type Supervisor struct {
	cfg  *config.Config
	reg  *registry.Store
	defs *definitionStore
	ports *portalloc.Allocator

	mu        sync.RWMutex
	instances map[string]*runningInstance // keyed by instance name
}

// New constructs a Supervisor, loading persisted tool definitions and
// watching them for out-of-band edits.
func New(cfg *config.Config, reg *registry.Store, ports *portalloc.Allocator) (*Supervisor, error) {
	defs, err := newDefinitionStore(cfg.CustomToolsPath())
	if err != nil {
		return nil, err
	}
	if err := defs.watch(); err != nil {
		logging.Warn(subsystem, "could not watch tool definitions: %v", err)
	}

	return &Supervisor{
		cfg:       cfg,
		reg:       reg,
		defs:      defs,
		ports:     ports,
		instances: make(map[string]*runningInstance),
	}, nil
}

// Close stops the definition watcher.
func (s *Supervisor) Close() error {
	return s.defs.close()
}

// Define persists a tool definition and registers its (stopped) CI entry.
func (s *Supervisor) Define(def *ToolDefinition) error {
	if def.Name == "" || def.Executable == "" {
		return fmt.Errorf("supervisor: define requires name and executable")
	}
	if def.AdapterKind == "" {
		def.AdapterKind = api.AdapterGeneric
	}
	if def.DefinedBy == "" {
		def.DefinedBy = api.DefinedByUser
	}

	if err := s.defs.put(def); err != nil {
		return err
	}

	entry := &api.CIEntry{
		Name:         def.Name,
		Type:         api.CITypeTool,
		MessageFormat: api.MessageFormat(def.AdapterKind),
		Description:  fmt.Sprintf("tool: %s", def.Executable),
		Capabilities: def.Capabilities,
		DefinedBy:    def.DefinedBy,
		Executable:   def.Executable,
		LaunchArgs:   def.LaunchArgs,
		Env:          def.Env,
		HealthCheck:  def.HealthCheck,
		Status:       api.ToolStatusStopped,
	}
	if err := s.reg.Register(entry); err != nil && !api.IsNameTaken(err) {
		return err
	}
	return nil
}

// Undefine removes a tool definition and its CI entry. System-defined
// tools cannot be undefined (spec §4.5).
func (s *Supervisor) Undefine(name string) error {
	def, ok := s.defs.get(name)
	if ok && def.DefinedBy == api.DefinedBySystem {
		return &api.SystemEntryProtectedError{Name: name}
	}
	if err := s.reg.Remove(name); err != nil && !api.IsNotFound(err) {
		return err
	}
	return s.defs.remove(name)
}

// Capabilities returns the capability tokens declared for name.
func (s *Supervisor) Capabilities(name string) ([]string, error) {
	entry, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	return entry.Capabilities, nil
}

// AutoRestartEnabled reports whether nameOrInstance's running definition
// opts into auto-restart, consulted by the Health Monitor before it
// requests a restart on a failed probe (spec §4.7).
func (s *Supervisor) AutoRestartEnabled(nameOrInstance string) bool {
	s.mu.RLock()
	ri, ok := s.instances[nameOrInstance]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return ri.def.AutoRestart
}

// Restart terminates and relaunches nameOrInstance under the same
// instance name and session, for use by the Health Monitor when a probe
// goes unanswered (spec §4.7 "request Tool Supervisor.terminate followed
// by launch with the same instance name").
func (s *Supervisor) Restart(nameOrInstance string) error {
	s.mu.RLock()
	ri, ok := s.instances[nameOrInstance]
	s.mu.RUnlock()
	if !ok {
		return api.ErrNotRunning
	}
	toolName, session := ri.inst.ToolName, ri.inst.SessionID

	if err := s.Terminate(nameOrInstance); err != nil {
		return err
	}
	_, err := s.Launch(toolName, session, nameOrInstance)
	return err
}

// Instances returns a snapshot of every currently running tool instance.
func (s *Supervisor) Instances() []api.ToolInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]api.ToolInstance, 0, len(s.instances))
	for _, ri := range s.instances {
		out = append(out, ri.inst)
	}
	return out
}

// Status reports the running state of nameOrInstance.
func (s *Supervisor) Status(nameOrInstance string) InstanceStatus {
	s.mu.RLock()
	ri, ok := s.instances[nameOrInstance]
	s.mu.RUnlock()
	if !ok || !ri.bridge.IsAlive() {
		return InstanceStatus{Running: false}
	}
	return InstanceStatus{
		Running: true,
		PID:     ri.inst.PID,
		Port:    ri.inst.Port,
		Uptime:  time.Since(ri.inst.StartedAt).Round(time.Second).String(),
		Session: ri.inst.SessionID,
	}
}

// Launch resolves name's definition, acquires a port, starts a Socket
// Bridge, runs the configured health check, and updates the registry
// (spec §4.5 Algorithm on launch, steps 1-8).
func (s *Supervisor) Launch(name, session, instance string) (int, error) {
	if instance == "" {
		instance = name
	}

	s.mu.Lock()
	if existing, ok := s.instances[instance]; ok && existing.bridge.IsAlive() {
		s.mu.Unlock()
		return 0, api.ErrAlreadyRunning
	}
	s.mu.Unlock()

	def, ok := s.defs.get(name)
	if !ok {
		return 0, &api.LaunchError{Reason: api.ReasonNotFound, Name: name}
	}

	if err := verifyExecutable(def.Executable); err != nil {
		return 0, &api.LaunchError{Reason: api.ReasonNotFound, Name: name, Err: err}
	}

	port, err := s.ports.Acquire(instance, def.Port)
	if err != nil {
		return 0, &api.LaunchError{Reason: api.ReasonPortUnavailable, Name: name, Err: err}
	}

	mode := bridge.ModeStdio
	if def.AdapterKind == api.AdapterClaudeCode {
		mode = bridge.ModePTY
	}

	delimiter, err := config.ParseDelimiter(def.Delimiter)
	if err != nil {
		delimiter = []byte{'\n'}
	}

	br, err := bridge.Start(bridge.StartSpec{
		Executable: def.Executable,
		Args:       def.LaunchArgs,
		Env:        envSlice(def.Env),
		Mode:       mode,
		Port:       port,
		Delimiter:  delimiter,
	})
	if err != nil {
		s.ports.Release(port, instance)
		return 0, &api.LaunchError{Reason: api.ReasonSpawnFailed, Name: name, Err: err}
	}

	if def.HealthCheck != "" && def.HealthCheck != "none" {
		if err := probeHealth(port, def.HealthCheck); err != nil {
			br.Stop()
			s.ports.Release(port, instance)
			return 0, &api.LaunchError{Reason: api.ReasonHealthCheckFailed, Name: name, Err: err}
		}
	}

	inst := api.ToolInstance{
		Name:        instance,
		ToolName:    name,
		PID:         childPID(br),
		Port:        port,
		SessionID:   session,
		StartedAt:   time.Now(),
		AdapterKind: def.AdapterKind,
		Delimiter:   delimiter,
	}

	ri := &runningInstance{inst: inst, def: def, bridge: br}
	s.mu.Lock()
	s.instances[instance] = ri
	s.mu.Unlock()

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := s.reg.Update(name, func(e *api.CIEntry) {
		e.Endpoint = endpoint
		e.Status = api.ToolStatusRunning
		e.PID = inst.PID
	}); err != nil {
		logging.Warn(subsystem, "registry update after launch failed: %v", err)
	}

	go s.watchForExit(instance, ri)

	logging.Info(subsystem, "launched %s as %s on port %d", name, instance, port)
	return port, nil
}

// Terminate stops a running instance and releases its resources.
func (s *Supervisor) Terminate(nameOrInstance string) error {
	s.mu.Lock()
	ri, ok := s.instances[nameOrInstance]
	if !ok {
		s.mu.Unlock()
		return api.ErrNotRunning
	}
	delete(s.instances, nameOrInstance)
	s.mu.Unlock()

	ri.bridge.Stop()
	s.ports.Release(ri.inst.Port, nameOrInstance)
	if err := s.reg.Update(ri.inst.ToolName, func(e *api.CIEntry) {
		e.Status = api.ToolStatusStopped
		e.PID = 0
	}); err != nil && !api.IsNotFound(err) {
		logging.Warn(subsystem, "registry update after terminate failed: %v", err)
	}
	return nil
}

// watchForExit blocks until the bridge's child exits, then either retries
// with exponential backoff (if the definition opts in) or marks the tool
// unhealthy (spec §4.5 Failure semantics).
func (s *Supervisor) watchForExit(instance string, ri *runningInstance) {
	for ri.bridge.IsAlive() {
		time.Sleep(time.Second)
	}

	s.mu.Lock()
	_, stillTracked := s.instances[instance]
	s.mu.Unlock()
	if !stillTracked {
		return // Terminate already handled this
	}

	logging.Warn(subsystem, "tool instance %s exited unexpectedly", instance)

	if !ri.def.AutoRestart {
		s.markUnhealthy(ri)
		return
	}

	ri.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-restartWindow)
	kept := ri.restarts[:0]
	for _, t := range ri.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	ri.restarts = append(kept, now)
	attempts := len(ri.restarts)
	ri.mu.Unlock()

	if attempts > maxRestartAttempts {
		logging.Error(subsystem, nil, "tool instance %s exceeded %d restarts in %s, abandoning", instance, maxRestartAttempts, restartWindow)
		s.markUnhealthy(ri)
		return
	}

	backoff := time.Duration(1<<uint(attempts-1)) * time.Second
	logging.Info(subsystem, "restarting %s in %s (attempt %d/%d)", instance, backoff, attempts, maxRestartAttempts)
	time.Sleep(backoff)

	s.mu.Lock()
	delete(s.instances, instance)
	s.mu.Unlock()
	s.ports.Release(ri.inst.Port, instance)

	if _, err := s.Launch(ri.inst.ToolName, ri.inst.SessionID, instance); err != nil {
		logging.Error(subsystem, err, "auto-restart of %s failed", instance)
	}
}

func (s *Supervisor) markUnhealthy(ri *runningInstance) {
	s.mu.Lock()
	delete(s.instances, ri.inst.Name)
	s.mu.Unlock()
	s.ports.Release(ri.inst.Port, ri.inst.Name)
	if err := s.reg.Update(ri.inst.ToolName, func(e *api.CIEntry) {
		e.Status = api.ToolStatusFailed
		e.PID = 0
	}); err != nil && !api.IsNotFound(err) {
		logging.Warn(subsystem, "registry update after failure failed: %v", err)
	}
}

func verifyExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return os.Environ()
	}
	out := os.Environ()
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func childPID(br *bridge.Bridge) int {
	return br.PID()
}
