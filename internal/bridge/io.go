package bridge

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"aish/internal/api"
	"aish/internal/config"
	"aish/pkg/logging"
)

// outboundFrame is the newline-delimited JSON envelope the Bridge uses to
// relay child output to its one connected client (spec §4.4 "whole
// child-output is relayed as it arrives" and "the Router buffers until
// EOF or a completion sentinel"). Done marks that sentinel: a frame with
// no Stream/Delta, emitted once output has gone quiet after a turn was
// sent to the child.
type outboundFrame struct {
	Stream string `json:"stream,omitempty"` // "stdout" or "stderr"
	Delta  string `json:"delta,omitempty"`
	Done   bool   `json:"done,omitempty"`
}

// quiescenceWindow is how long child output must go silent, after a turn
// was written to its stdin, before the Bridge considers that turn
// finished and emits the Done sentinel. Tools that keep their process
// alive after answering (a REPL, /bin/cat) never signal EOF on their
// own, so readers of the bridge socket need this rather than EOF to know
// a response is complete.
const quiescenceWindow = 150 * time.Millisecond

// turnTracker watches for a turn opened by an inbound write to the
// child's stdin to go quiet on the output side, and reports that via
// quiet. Only one turn is tracked at a time, matching the Socket
// Bridge's single in-flight exchange per connection.
type turnTracker struct {
	mu       sync.Mutex
	open     bool
	activity chan struct{}
}

func newTurnTracker() *turnTracker {
	return &turnTracker{activity: make(chan struct{}, 1)}
}

func (t *turnTracker) openTurn() {
	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	t.notify()
}

func (t *turnTracker) notify() {
	select {
	case t.activity <- struct{}{}:
	default:
	}
}

func (t *turnTracker) isOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *turnTracker) closeTurn() {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
}

// serveClient owns one client connection end to end: it pumps the
// child's output to the client and the client's framed messages to the
// child, until either side disconnects.
func (b *Bridge) serveClient(conn net.Conn) {
	defer conn.Close()

	var writeMu sync.Mutex
	writeRaw := func(frame outboundFrame) {
		data, err := json.Marshal(frame)
		if err != nil {
			return
		}
		data = append(data, '\n')
		writeMu.Lock()
		conn.Write(data)
		writeMu.Unlock()
	}

	turn := newTurnTracker()
	writeFrame := func(stream, delta string) {
		writeRaw(outboundFrame{Stream: stream, Delta: delta})
		turn.notify()
	}

	stopQuiescence := make(chan struct{})
	defer close(stopQuiescence)
	go b.watchQuiescence(turn, func() { writeRaw(outboundFrame{Done: true}) }, stopQuiescence)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pumpOutput(b.childWriterSource(), "stdout", writeFrame)
	}()
	if b.childErr != nil {
		go b.pumpOutput(b.childErr, "stderr", writeFrame)
	}

	b.pumpInbound(conn, turn)
	<-done
}

// watchQuiescence emits done once output has been silent for
// quiescenceWindow after a turn was opened, and keeps re-arming for
// subsequent turns on the same connection until stop fires.
func (b *Bridge) watchQuiescence(turn *turnTracker, emitDone func(), stop <-chan struct{}) {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false
	for {
		select {
		case <-stop:
			return
		case <-turn.activity:
			if !timer.Stop() && armed {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiescenceWindow)
			armed = true
		case <-timer.C:
			armed = false
			if turn.isOpen() {
				turn.closeTurn()
				emitDone()
			}
		}
	}
}

// childWriterSource returns the reader end of the child's primary output
// stream, regardless of mode.
func (b *Bridge) childWriterSource() readCloserLike {
	if b.ptyFile != nil {
		return b.ptyFile
	}
	return b.childOut
}

type readCloserLike interface {
	Read([]byte) (int, error)
}

func (b *Bridge) pumpOutput(src readCloserLike, stream string, emit func(stream, delta string)) {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			emit(stream, string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// pumpInbound reads newline-delimited JSON Message frames from conn and
// applies them to the child: ordinary content is written to the child's
// stdin/pty (with the effective delimiter appended when execute is set),
// and cancel messages write the configured attention sequence instead.
// Each executed turn is opened on turn so watchQuiescence knows to emit
// a Done sentinel once the child's response goes quiet.
func (b *Bridge) pumpInbound(conn net.Conn, turn *turnTracker) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg api.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Warn(subsystem, "bridge: malformed inbound frame: %v", err)
			continue
		}

		if msg.Type == api.MessageCancel {
			b.childWriter().Write(b.spec.CancelSeq)
			continue
		}

		content := msg.Content
		if msg.Execute {
			delim := b.spec.Delimiter
			if msg.Delimiter != "" {
				if parsed, err := config.ParseDelimiter(msg.Delimiter); err == nil {
					delim = parsed
				}
			}
			content += string(delim)
		}
		if _, err := b.childWriter().Write([]byte(content)); err != nil {
			logging.Warn(subsystem, "bridge: write to child failed: %v", err)
			return
		}
		if msg.Execute {
			turn.openTurn()
		}
	}
}
