package router

import (
	"aish/internal/api"
	"aish/pkg/logging"
)

// AddForward causes messages addressed to from to also be delivered to
// terminal, tagged as observed traffic (spec §4.6).
func (r *Router) AddForward(from, terminal string) error {
	if _, err := r.reg.Get(terminal); err != nil {
		return err
	}
	r.forwardsMu.Lock()
	defer r.forwardsMu.Unlock()
	r.forwards[from] = terminal
	return nil
}

// RemoveForward cancels any active forward for from.
func (r *Router) RemoveForward(from string) {
	r.forwardsMu.Lock()
	defer r.forwardsMu.Unlock()
	delete(r.forwards, from)
}

// ListForwards returns a snapshot of every active (from, terminal) pair.
func (r *Router) ListForwards() map[string]string {
	r.forwardsMu.RLock()
	defer r.forwardsMu.RUnlock()
	out := make(map[string]string, len(r.forwards))
	for k, v := range r.forwards {
		out[k] = v
	}
	return out
}

// deliverForward copies msg to from's active forward terminal, if any,
// tagged as observed traffic rather than an ordinary send (spec §4.6
// step 4). Best-effort: a forward failure never fails the primary send.
// Send calls this twice per exchange — once with the outbound message
// before dispatch, once with the response after — so the forward
// terminal sees both halves of the conversation, in order.
func (r *Router) deliverForward(from string, msg api.Message) {
	r.forwardsMu.RLock()
	terminal, active := r.forwards[from]
	r.forwardsMu.RUnlock()
	if !active {
		return
	}

	tagged := msg
	tagged.Type = api.MessageObserved
	tagged.From = from
	if err := r.bus.Send(terminal, tagged); err != nil {
		logging.Warn(subsystem, "forward %s->%s failed: %v", from, terminal, err)
	}
}
