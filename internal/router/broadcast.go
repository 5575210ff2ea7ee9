package router

import (
	"aish/internal/api"

	"golang.org/x/sync/errgroup"
)

// BroadcastResult pairs a CI name with the outcome of sending it the
// broadcast message.
type BroadcastResult struct {
	Name     string
	Response api.Response
	Err      error
}

// Broadcast fans msg out to every CI matching filter concurrently,
// defaulting to every greek and terminal entry when filter is zero-valued
// (spec §4.6 "default: all greek and terminal").
func (r *Router) Broadcast(msg api.Message, filter api.EntryFilter) []BroadcastResult {
	var targets []*api.CIEntry
	if filter == (api.EntryFilter{}) {
		targets = append(r.reg.List(api.EntryFilter{Type: api.CITypeGreek}), r.reg.List(api.EntryFilter{Type: api.CITypeTerminal})...)
	} else {
		targets = r.reg.List(filter)
	}

	results := make([]BroadcastResult, len(targets))
	var g errgroup.Group
	for i, entry := range targets {
		i, entry := i, entry
		g.Go(func() error {
			resp, err := r.Send(entry.Name, msg)
			results[i] = BroadcastResult{Name: entry.Name, Response: resp, Err: err}
			return nil // individual failures don't abort the fan-out
		})
	}
	g.Wait()
	return results
}
