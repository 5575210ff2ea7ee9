package registry

import (
	"time"

	"aish/internal/api"
)

// schemaVersion is the registry document's on-disk format version (spec §6.3).
const schemaVersion = "1.0"

// document is the exact shape persisted to registry.json (spec §6.3).
type document struct {
	Version   string                       `json:"version"`
	UpdatedAt time.Time                    `json:"updated_at"`
	Entries   map[string]*api.CIEntry      `json:"entries"`
	Context   map[string]*api.ContextState `json:"context"`
}

func newDocument() *document {
	return &document{
		Version: schemaVersion,
		Entries: make(map[string]*api.CIEntry),
		Context: make(map[string]*api.ContextState),
	}
}

// clone returns a deep copy of the document, used as the defensive working
// copy mutators apply validation/serialization against outside the lock
// (spec §5 "long operations happen outside the lock on a defensive copy").
func (d *document) clone() *document {
	out := &document{
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
		Entries:   make(map[string]*api.CIEntry, len(d.Entries)),
		Context:   make(map[string]*api.ContextState, len(d.Context)),
	}
	for name, e := range d.Entries {
		out.Entries[name] = e.Clone()
	}
	for name, c := range d.Context {
		out.Context[name] = c.Clone()
	}
	return out
}
