package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"aish/internal/api"
	"aish/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// definitionStore persists ToolDefinitions to custom_tools.json
// (spec §4.5 Persistence: "user-defined tool definitions live in a JSON
// file alongside the registry and are reloaded at startup").
type definitionStore struct {
	path string

	mu    sync.RWMutex
	defs  map[string]*ToolDefinition

	watcher *fsnotify.Watcher
}

func newDefinitionStore(path string) (*definitionStore, error) {
	ds := &definitionStore{path: path, defs: make(map[string]*ToolDefinition)}
	if err := ds.load(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *definitionStore) load() error {
	data, err := os.ReadFile(ds.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("supervisor: read tool definitions: %w", err)
	}

	var defs []*ToolDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return fmt.Errorf("supervisor: parse tool definitions: %w", err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.defs = make(map[string]*ToolDefinition, len(defs))
	for _, d := range defs {
		ds.defs[d.Name] = d
	}
	return nil
}

func (ds *definitionStore) save() error {
	ds.mu.RLock()
	defs := make([]*ToolDefinition, 0, len(ds.defs))
	for _, d := range ds.defs {
		defs = append(defs, d)
	}
	ds.mu.RUnlock()

	data, err := json.MarshalIndent(defs, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(ds.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".custom_tools-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, ds.path)
}

func (ds *definitionStore) get(name string) (*ToolDefinition, bool) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	d, ok := ds.defs[name]
	return d, ok
}

func (ds *definitionStore) put(d *ToolDefinition) error {
	ds.mu.Lock()
	if _, exists := ds.defs[d.Name]; exists {
		ds.mu.Unlock()
		return &api.NameTakenError{Name: d.Name}
	}
	ds.defs[d.Name] = d
	ds.mu.Unlock()
	return ds.save()
}

func (ds *definitionStore) remove(name string) error {
	ds.mu.Lock()
	delete(ds.defs, name)
	ds.mu.Unlock()
	return ds.save()
}

func (ds *definitionStore) list() []*ToolDefinition {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := make([]*ToolDefinition, 0, len(ds.defs))
	for _, d := range ds.defs {
		out = append(out, d)
	}
	return out
}

// watch reloads the definitions whenever custom_tools.json changes on
// disk, so a hand-edit takes effect without a restart (spec §4.5's sibling
// pattern to the Registry Store's own reload()).
func (ds *definitionStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(ds.path)); err != nil {
		w.Close()
		return err
	}
	ds.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(ds.path) {
					continue
				}
				if err := ds.load(); err != nil {
					logging.Warn(subsystem, "reload tool definitions failed: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn(subsystem, "tool definition watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (ds *definitionStore) close() error {
	if ds.watcher == nil {
		return nil
	}
	return ds.watcher.Close()
}
