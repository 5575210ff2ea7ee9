// Package bus implements the Message Bus (spec §4.3): bounded,
// priority-ordered per-CI queues backed by a unixgram socket per CI, so
// peer CIs can exchange short messages without going through the HTTP
// router.
package bus

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aish/internal/api"
	"aish/pkg/logging"
)

const subsystem = "bus"

// Bus owns every CI's queue and socket for one orchestration core process.
type Bus struct {
	dir string

	mu     sync.Mutex
	queues map[string]*ciQueue
}

// New constructs a Bus whose per-CI sockets live under dir (spec §6.3
// ci_queues/).
func New(dir string) *Bus {
	return &Bus{dir: dir, queues: make(map[string]*ciQueue)}
}

type ciQueue struct {
	name string
	addr *net.UnixAddr
	conn *net.UnixConn

	mu      sync.Mutex
	heap    priorityHeap
	seq     int64
	pending int // Sends that reserved a slot but haven't reached enqueue yet
	notify  chan struct{}
}

// Create opens name's queue and its backing unixgram socket. No-ops if the
// queue already exists (spec §4.3 "create(name) creates (or no-ops)").
func (b *Bus) Create(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.queues[name]; exists {
		return nil
	}

	socketPath := filepath.Join(b.dir, name+".sock")
	os.Remove(socketPath) // stale socket from a prior crash

	addr := &net.UnixAddr{Name: socketPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return fmt.Errorf("bus: listen on %s: %w", socketPath, err)
	}

	q := &ciQueue{name: name, addr: addr, conn: conn, notify: make(chan struct{}, 1)}
	b.queues[name] = q
	go q.readLoop()
	logging.Info(subsystem, "queue opened for %s", name)
	return nil
}

// Destroy closes name's socket and discards its queue.
func (b *Bus) Destroy(name string) error {
	b.mu.Lock()
	q, exists := b.queues[name]
	if !exists {
		b.mu.Unlock()
		return nil
	}
	delete(b.queues, name)
	b.mu.Unlock()

	q.conn.Close()
	os.Remove(q.addr.Name)
	return nil
}

// Send delivers msg to to's queue without blocking the caller. Returns
// *api.NotFoundError if no such queue exists, or *api.QueueFullError if
// it's at capacity (spec invariant 5: the bus never blocks senders, and a
// failed send is reported synchronously rather than dropped silently).
//
// The capacity decision is made here, synchronously, by reserving a slot
// on q before the message ever reaches the kernel socket. The datagram
// round trip through readLoop/enqueue converts that reservation into a
// committed heap entry; it cannot itself reject a message, since by the
// time it runs the original Send call has already returned. Two
// concurrent Sends racing at the last free slot therefore still resolve
// correctly: only one reserve() call can win it.
func (b *Bus) Send(to string, msg api.Message) error {
	b.mu.Lock()
	q, exists := b.queues[to]
	b.mu.Unlock()
	if !exists {
		return &api.NotFoundError{ResourceType: "queue", ResourceName: to}
	}

	if !q.reserve() {
		return &api.QueueFullError{Target: to}
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		q.release()
		return fmt.Errorf("bus: encode message: %w", err)
	}
	if len(data) > maxDatagramSize {
		q.release()
		return fmt.Errorf("bus: message exceeds %d bytes", maxDatagramSize)
	}

	conn, err := net.DialUnix("unixgram", nil, q.addr)
	if err != nil {
		q.release()
		return fmt.Errorf("bus: dial %s: %w", to, err)
	}
	defer conn.Close()
	if _, err := conn.Write(data); err != nil {
		q.release()
		return fmt.Errorf("bus: write to %s: %w", to, err)
	}
	return nil
}

// Receive pops the highest-priority message for name, waiting up to
// timeout for one to arrive if the queue is currently empty. A zero
// timeout returns immediately.
func (b *Bus) Receive(name string, timeout time.Duration) (api.Message, bool, error) {
	b.mu.Lock()
	q, exists := b.queues[name]
	b.mu.Unlock()
	if !exists {
		return api.Message{}, false, &api.NotFoundError{ResourceType: "queue", ResourceName: name}
	}

	deadline := time.Now().Add(timeout)
	for {
		if msg, ok := q.pop(); ok {
			return msg, true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return api.Message{}, false, nil
		}
		select {
		case <-q.notify:
		case <-time.After(remaining):
			return api.Message{}, false, nil
		}
	}
}

func (q *ciQueue) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := q.conn.Read(buf)
		if err != nil {
			return // socket closed by Destroy
		}
		var msg api.Message
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			logging.Warn(subsystem, "queue %s: dropping malformed datagram: %v", q.name, err)
			continue
		}
		q.enqueue(msg)
	}
}

// reserve atomically claims one slot of capacity on behalf of an
// in-flight Send, counting both already-queued messages and reservations
// not yet converted to a heap entry. This is the sole admission decision;
// enqueue below only ever commits a reservation already accounted for
// here, so it never needs to reject a message on its own.
func (q *ciQueue) reserve() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap)+q.pending >= maxQueueSize {
		return false
	}
	q.pending++
	return true
}

// release gives back a reservation that never made it onto the wire
// (encode failure, dial failure, write failure).
func (q *ciQueue) release() {
	q.mu.Lock()
	q.pending--
	q.mu.Unlock()
}

func (q *ciQueue) enqueue(msg api.Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending > 0 {
		q.pending--
	}
	if len(q.heap) >= maxQueueSize {
		logging.Warn(subsystem, "queue %s: dropping message, at capacity", q.name)
		return
	}
	q.seq++
	heap.Push(&q.heap, queuedMessage{msg: msg, seq: q.seq})
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *ciQueue) pop() (api.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return api.Message{}, false
	}
	item := heap.Pop(&q.heap).(queuedMessage)
	return item.msg, true
}
