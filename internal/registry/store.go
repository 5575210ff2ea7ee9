// Package registry implements the Registry Store (spec §4.1): the single
// source of truth for CI Entries and per-CI Context State, persisted as one
// JSON document guarded by an in-process mutex and a cross-process advisory
// file lock.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"aish/internal/api"
	"aish/internal/config"
	"aish/pkg/logging"
)

const subsystem = "registry"

// Store is the Registry Store. All exported methods are safe for concurrent
// use; long-running work (marshaling, disk I/O) happens on a cloned
// document outside the in-memory lock wherever the spec allows it.
type Store struct {
	cfg *config.Config

	mu  sync.RWMutex
	doc *document

	discoveryMu sync.Mutex
	sources     map[api.CIType]DiscoverySource
	watcher     *dirWatcher

	lastBackupDate string
}

// Open loads (or initializes) the registry document at cfg.RegistryPath.
// If the file is present but corrupt, Open restores the most recent daily
// backup and returns a non-nil recovered event alongside a usable Store
// (spec §4.1 "recovers from a corrupted registry file on next access").
func Open(cfg *config.Config) (*Store, *api.RegistryRecoveredEvent, error) {
	if err := cfg.EnsureLayout(); err != nil {
		return nil, nil, err
	}

	s := &Store{cfg: cfg, sources: make(map[api.CIType]DiscoverySource)}

	doc, recovered, err := loadDocument(cfg)
	if err != nil {
		return nil, nil, err
	}
	s.doc = doc
	if recovered != nil {
		logging.Warn(subsystem, "restored registry from backup %s", recovered.RestoredFrom)
	}
	return s, recovered, nil
}

// Close stops the discovery watcher, if one was started.
func (s *Store) Close() error {
	s.discoveryMu.Lock()
	defer s.discoveryMu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// Register adds a new CI Entry. Returns *api.NameTakenError if the name is
// already present (spec §3.2 invariant 1).
func (s *Store) Register(entry *api.CIEntry) error {
	if entry.Name == "" {
		return fmt.Errorf("registry: entry name must not be empty")
	}

	s.mu.Lock()
	if _, exists := s.doc.Entries[entry.Name]; exists {
		s.mu.Unlock()
		return &api.NameTakenError{Name: entry.Name}
	}
	stored := entry.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.doc.Entries[entry.Name] = stored
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		delete(s.doc.Entries, entry.Name)
		s.mu.Unlock()
		return err
	}
	logging.Info(subsystem, "registered %s (%s)", entry.Name, entry.Type)
	return nil
}

// Update replaces the stored entry for name with the result of applying fn
// to a clone of the current entry. Returns *api.NotFoundError if name is
// unknown.
func (s *Store) Update(name string, fn func(*api.CIEntry)) error {
	s.mu.Lock()
	existing, ok := s.doc.Entries[name]
	if !ok {
		s.mu.Unlock()
		return api.NewUnknownCIError(name)
	}
	updated := existing.Clone()
	fn(updated)
	updated.Name = name
	s.doc.Entries[name] = updated
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		s.doc.Entries[name] = existing
		s.mu.Unlock()
		return err
	}
	return nil
}

// Get returns a defensive copy of the entry named name, or *api.NotFoundError.
func (s *Store) Get(name string) (*api.CIEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.doc.Entries[name]
	if !ok {
		return nil, api.NewUnknownCIError(name)
	}
	return entry.Clone(), nil
}

// List returns every entry matching filter, sorted by name for stable output.
func (s *Store) List(filter api.EntryFilter) []*api.CIEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.CIEntry, 0, len(s.doc.Entries))
	for _, e := range s.doc.Entries {
		if filter.Match(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove deletes the entry named name. System-defined entries may never be
// removed (spec §3.1); attempting to do so returns
// *api.SystemEntryProtectedError.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	entry, ok := s.doc.Entries[name]
	if !ok {
		s.mu.Unlock()
		return api.NewUnknownCIError(name)
	}
	if entry.DefinedBy == api.DefinedBySystem {
		s.mu.Unlock()
		return &api.SystemEntryProtectedError{Name: name}
	}
	delete(s.doc.Entries, name)
	delete(s.doc.Context, name)
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		s.doc.Entries[name] = entry
		s.mu.Unlock()
		return err
	}
	logging.Info(subsystem, "removed %s", name)
	return nil
}

// Save forces an immediate persist of the current in-memory document,
// independent of the mutators' own write-through behavior. Exposed for the
// CLI's explicit "save" operation (spec §4.1).
func (s *Store) Save() error {
	s.mu.RLock()
	working := s.doc.clone()
	s.mu.RUnlock()
	return s.persist(working)
}

// Load discards in-memory state and re-reads the document from disk,
// recovering from backup if the file is corrupt. Returns the recovered
// event, if any.
func (s *Store) Load() (*api.RegistryRecoveredEvent, error) {
	doc, recovered, err := loadDocument(s.cfg)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return recovered, nil
}
