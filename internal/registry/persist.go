package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"aish/internal/api"
	"aish/internal/config"
)

// persist writes working to disk under the cross-process file lock,
// via a temp-file-and-rename so a crash mid-write never leaves a
// truncated registry.json behind (spec §4.1 "crash-safe write").
func (s *Store) persist(working *document) error {
	working.UpdatedAt = time.Now()

	unlock, err := lockRegistryFile(s.cfg)
	if err != nil {
		return &api.PersistFailedError{Path: s.cfg.RegistryPath(), Err: err}
	}
	defer unlock()

	if err := writeDocumentAtomic(s.cfg.RegistryPath(), working); err != nil {
		return &api.PersistFailedError{Path: s.cfg.RegistryPath(), Err: err}
	}

	s.maybeBackupLocked(working)
	return nil
}

func writeDocumentAtomic(path string, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry document: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file into place: %w", err)
	}
	return nil
}

// lockRegistryFile acquires an exclusive advisory lock on a sidecar lock
// file, held for the duration of a single read-modify-write sequence
// against registry.json. The lock file is separate from registry.json
// itself so the atomic rename above never has to contend with flock's
// hold on an inode that's about to be replaced.
func lockRegistryFile(cfg *config.Config) (unlock func(), err error) {
	lockPath := filepath.Join(cfg.Root, ".registry.lock")
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock: %w", err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}

// loadDocument reads registry.json, recovering from the most recent daily
// backup if the file is present but fails to parse.
func loadDocument(cfg *config.Config) (*document, *api.RegistryRecoveredEvent, error) {
	data, err := os.ReadFile(cfg.RegistryPath())
	if os.IsNotExist(err) {
		return newDocument(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read registry document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		restored, backupPath, rerr := restoreFromLatestBackup(cfg)
		if rerr != nil {
			return newDocument(), nil, nil
		}
		return restored, &api.RegistryRecoveredEvent{RestoredFrom: backupPath}, nil
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]*api.CIEntry)
	}
	if doc.Context == nil {
		doc.Context = make(map[string]*api.ContextState)
	}
	return &doc, nil, nil
}
