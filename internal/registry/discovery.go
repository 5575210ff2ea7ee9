package registry

import (
	"fmt"

	"aish/internal/api"
	"aish/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DiscoverySource produces CI Entries found outside the registry's own
// document — e.g. active terminal sessions, or project directories
// carrying a Tekton project descriptor. reload() asks every registered
// source to re-enumerate and reconciles the result against the registry
// (spec §4.1 "reload() rescans externally maintained discovery sources").
type DiscoverySource func() ([]*api.CIEntry, error)

// RegisterDiscoverySource installs (or replaces) the discovery source for
// a given CI type. Only system-defined entries are ever replaced by
// discovery so user-registered entries of the same name are never clobbered.
func (s *Store) RegisterDiscoverySource(t api.CIType, src DiscoverySource) {
	s.discoveryMu.Lock()
	defer s.discoveryMu.Unlock()
	s.sources[t] = src
}

// Reload re-enumerates every registered discovery source and reconciles
// the result: entries a source no longer reports are removed (if system-
// defined), entries it newly reports are registered or updated in place.
// User-defined entries are never touched by discovery.
func (s *Store) Reload() error {
	s.discoveryMu.Lock()
	sources := make(map[api.CIType]DiscoverySource, len(s.sources))
	for t, src := range s.sources {
		sources[t] = src
	}
	s.discoveryMu.Unlock()

	for ciType, src := range sources {
		found, err := src()
		if err != nil {
			logging.Warn(subsystem, "discovery source %s failed: %v", ciType, err)
			continue
		}
		s.reconcileDiscovered(ciType, found)
	}
	return nil
}

func (s *Store) reconcileDiscovered(ciType api.CIType, found []*api.CIEntry) {
	seen := make(map[string]bool, len(found))
	for _, e := range found {
		seen[e.Name] = true
		if existing, err := s.Get(e.Name); err == nil {
			if existing.DefinedBy == api.DefinedByUser {
				continue
			}
			_ = s.Update(e.Name, func(cur *api.CIEntry) { *cur = *e.Clone() })
			continue
		}
		e.DefinedBy = api.DefinedBySystem
		if err := s.Register(e); err != nil {
			logging.Warn(subsystem, "discovery register %s failed: %v", e.Name, err)
		}
	}

	for _, existing := range s.List(api.EntryFilter{Type: ciType}) {
		if existing.DefinedBy == api.DefinedBySystem && !seen[existing.Name] {
			if err := s.Remove(existing.Name); err != nil {
				logging.Warn(subsystem, "discovery prune %s failed: %v", existing.Name, err)
			}
		}
	}
}

// dirWatcher wraps fsnotify.Watcher to trigger Reload whenever a watched
// discovery directory changes, debounced by fsnotify's own coalescing.
type dirWatcher struct {
	w *fsnotify.Watcher
}

// WatchDiscoveryDirs starts watching dirs for changes and calls Reload on
// every event, logging (never failing) watch errors for directories that
// don't yet exist. The caller is responsible for calling Store.Close to
// stop the watcher.
func (s *Store) WatchDiscoveryDirs(dirs ...string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting discovery watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			logging.Warn(subsystem, "cannot watch discovery dir %s: %v", dir, err)
		}
	}

	s.discoveryMu.Lock()
	s.watcher = &dirWatcher{w: w}
	s.discoveryMu.Unlock()

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				if err := s.Reload(); err != nil {
					logging.Warn(subsystem, "reload after fs event failed: %v", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logging.Warn(subsystem, "discovery watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (d *dirWatcher) Close() error { return d.w.Close() }
