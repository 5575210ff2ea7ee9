// Package router implements the Unified Router (spec §4.6): it resolves
// a CI name to its registry entry and dispatches a Message using the
// transport appropriate to the entry's message_format.
package router

import (
	"strings"
	"sync"
	"time"

	"aish/internal/api"
	"aish/internal/bus"
	"aish/internal/registry"
	"aish/pkg/logging"
)

const subsystem = "router"

// routerQueueName is the Bus queue this Router listens on for terma_route
// replies addressed back to it (spec §4.6 terma_route branch).
const routerQueueName = "__router__"

// replyTimeout bounds how long Send waits for a terma_route reply keyed
// by request_id (spec §4.6 "wait on a reply ... with a configurable
// timeout").
const replyTimeout = 30 * time.Second

// Router dispatches messages to CIs per their declared transport.
type Router struct {
	reg *registry.Store
	bus *bus.Bus

	forwardsMu sync.RWMutex
	forwards   map[string]string // from -> terminal

	pendingMu sync.Mutex
	pending   map[string]chan api.Response
}

// New constructs a Router and starts listening for terma_route replies on
// its own Bus queue.
func New(reg *registry.Store, b *bus.Bus) (*Router, error) {
	r := &Router{
		reg:      reg,
		bus:      b,
		forwards: make(map[string]string),
		pending:  make(map[string]chan api.Response),
	}
	if err := b.Create(routerQueueName); err != nil {
		return nil, err
	}
	go r.replyLoop()
	return r, nil
}

func (r *Router) replyLoop() {
	for {
		msg, ok, err := r.bus.Receive(routerQueueName, time.Second)
		if err != nil {
			logging.Warn(subsystem, "reply loop: %v", err)
			return
		}
		if !ok {
			continue
		}
		r.pendingMu.Lock()
		ch, waiting := r.pending[msg.RequestID]
		r.pendingMu.Unlock()
		if !waiting {
			continue
		}
		select {
		case ch <- api.Response{Content: msg.Content, RequestID: msg.RequestID}:
		default:
		}
	}
}

// Send resolves to and dispatches msg over its declared transport,
// returning the (possibly empty) response (spec §4.6 Algorithm).
func (r *Router) Send(to string, msg api.Message) (api.Response, error) {
	entry, err := r.reg.Get(to)
	if err != nil {
		return api.Response{}, err
	}

	msg.To = to
	if err := r.prependNext(to, &msg); err != nil {
		logging.Warn(subsystem, "consume_next(%s) failed: %v", to, err)
	}

	r.deliverForward(to, msg)

	resp, err := r.dispatch(entry, msg)
	if err != nil {
		return api.Response{}, err
	}

	r.deliverForward(to, api.Message{To: to, Content: resp.Content, RequestID: resp.RequestID})

	lastOutput := resp.Content
	if err := r.reg.SetContext(to, api.ContextPatch{LastOutput: &lastOutput}); err != nil {
		logging.Warn(subsystem, "writing last_output for %s failed: %v", to, err)
	}
	return resp, nil
}

// prependNext drains name's next_prompt slot and prepends it to msg's
// content (spec §4.6 step 2).
func (r *Router) prependNext(name string, msg *api.Message) error {
	prompts, err := r.reg.ConsumeNext(name)
	if err != nil || len(prompts) == 0 {
		return err
	}
	var sb strings.Builder
	for _, p := range prompts {
		sb.WriteString(p.Content)
		sb.WriteString("\n")
	}
	sb.WriteString(msg.Content)
	msg.Content = sb.String()
	return nil
}

func (r *Router) dispatch(entry *api.CIEntry, msg api.Message) (api.Response, error) {
	switch {
	case entry.MessageFormat == api.FormatRhetorSocket:
		return sendRhetorSocket(entry, msg)
	case entry.MessageFormat == api.FormatTermaRoute:
		return r.sendTermaRoute(entry, msg)
	case entry.MessageFormat == api.FormatJSONSimple:
		return sendJSONSimple(entry, msg)
	case entry.MessageFormat.IsToolClass():
		return sendToolClass(entry, msg)
	default:
		return api.Response{}, &api.TransportError{CI: entry.Name, Err: errUnknownFormat(entry.MessageFormat)}
	}
}

type unknownFormatError string

func (e unknownFormatError) Error() string { return "unrecognized message_format: " + string(e) }

func errUnknownFormat(f api.MessageFormat) error { return unknownFormatError(string(f)) }
