package registry

import (
	"time"

	"aish/internal/api"
)

// GetContext returns a defensive copy of name's context state. An entry
// with no context activity yet returns a zero-value state rather than an
// error (spec §4.1).
func (s *Store) GetContext(name string) (*api.ContextState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.doc.Entries[name]; !ok {
		return nil, api.NewUnknownCIError(name)
	}
	return s.doc.Context[name].Clone(), nil
}

// SetContext applies patch to name's context state, leaving nil fields
// untouched, and writes the result through to disk.
func (s *Store) SetContext(name string, patch api.ContextPatch) error {
	s.mu.Lock()
	if _, ok := s.doc.Entries[name]; !ok {
		s.mu.Unlock()
		return api.NewUnknownCIError(name)
	}
	cur := s.doc.Context[name].Clone()
	if patch.LastOutput != nil {
		cur.LastOutput = *patch.LastOutput
		cur.LastOutputAt = time.Now()
	}
	if patch.StagedPrompt != nil {
		cur.StagedPrompt = append([]api.PromptMessage(nil), (*patch.StagedPrompt)...)
	}
	if patch.NextPrompt != nil {
		cur.NextPrompt = append([]api.PromptMessage(nil), (*patch.NextPrompt)...)
	}
	prev := s.doc.Context[name]
	s.doc.Context[name] = cur
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		s.doc.Context[name] = prev
		s.mu.Unlock()
		return err
	}
	return nil
}

// PromoteStaged atomically moves staged_prompt into next_prompt, clearing
// staged_prompt, and returns the promoted sequence (spec invariant 3,
// testable property 3: "staged_prompt and next_prompt are never both
// non-empty after promote_staged returns"). Returns api.ErrNothingStaged
// if there was nothing to promote.
func (s *Store) PromoteStaged(name string) ([]api.PromptMessage, error) {
	s.mu.Lock()
	if _, ok := s.doc.Entries[name]; !ok {
		s.mu.Unlock()
		return nil, api.NewUnknownCIError(name)
	}
	cur := s.doc.Context[name].Clone()
	if len(cur.StagedPrompt) == 0 {
		s.mu.Unlock()
		return nil, api.ErrNothingStaged
	}
	promoted := cur.StagedPrompt
	cur.NextPrompt = append(cur.NextPrompt, promoted...)
	cur.StagedPrompt = nil
	prev := s.doc.Context[name]
	s.doc.Context[name] = cur
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		s.doc.Context[name] = prev
		s.mu.Unlock()
		return nil, err
	}
	return promoted, nil
}

// ConsumeNext atomically drains next_prompt and returns it, leaving the
// slot empty. The Unified Router prepends the result to an outgoing
// message's content (spec §4.6).
func (s *Store) ConsumeNext(name string) ([]api.PromptMessage, error) {
	s.mu.Lock()
	if _, ok := s.doc.Entries[name]; !ok {
		s.mu.Unlock()
		return nil, api.NewUnknownCIError(name)
	}
	cur := s.doc.Context[name].Clone()
	if len(cur.NextPrompt) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	drained := cur.NextPrompt
	cur.NextPrompt = nil
	prev := s.doc.Context[name]
	s.doc.Context[name] = cur
	working := s.doc.clone()
	s.mu.Unlock()

	if err := s.persist(working); err != nil {
		s.mu.Lock()
		s.doc.Context[name] = prev
		s.mu.Unlock()
		return nil, err
	}
	return drained, nil
}
