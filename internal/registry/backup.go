package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"aish/internal/api"
	"aish/internal/config"
	"aish/pkg/logging"
)

const backupDateFormat = "2006-01-02"

// maybeBackupLocked writes backups/registry-<date>.json once per calendar
// day, the first time persist runs on a new day (spec §6.3 "rolling daily
// backups"). Must be called while lockRegistryFile's lock is held.
func (s *Store) maybeBackupLocked(doc *document) {
	today := time.Now().Format(backupDateFormat)
	if today == s.lastBackupDate {
		return
	}

	path := filepath.Join(s.cfg.BackupsDir(), fmt.Sprintf("registry-%s.json", today))
	if _, err := os.Stat(path); err == nil {
		s.lastBackupDate = today
		return
	}

	if err := writeDocumentAtomic(path, doc); err != nil {
		logging.Warn(subsystem, "daily backup failed: %v", err)
		return
	}
	s.lastBackupDate = today
}

// restoreFromLatestBackup finds the most recent backups/registry-*.json
// file and parses it, for use when registry.json itself fails to parse.
func restoreFromLatestBackup(cfg *config.Config) (*document, string, error) {
	matches, err := filepath.Glob(filepath.Join(cfg.BackupsDir(), "registry-*.json"))
	if err != nil || len(matches) == 0 {
		return nil, "", fmt.Errorf("no backups available")
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, "", err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", err
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]*api.CIEntry)
	}
	if doc.Context == nil {
		doc.Context = make(map[string]*api.ContextState)
	}
	return &doc, latest, nil
}
