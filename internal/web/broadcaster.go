package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// historySize is how many recent events a new subscriber receives first.
const historySize = 32

// StatusEvent represents a single status message for SSE.
type StatusEvent struct {
	Time   string `json:"t"`
	Level  string `json:"l,omitempty"`
	Camera string `json:"cam,omitempty"` // serial number, for per-camera lines
	Msg    string `json:"msg"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	history []string
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The channel is primed with the most recent events, so a page opened in the
// middle of a run shows what already happened.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	for _, p := range b.history {
		ch <- p
	}
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{Level: level, Msg: msg})
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	evt.Time = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, payload)
	if len(b.history) > historySize {
		b.history = b.history[len(b.history)-historySize:]
	}
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each line written is parsed as a debug
// log line and broadcast to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if evt, ok := parseLogLine(line); ok {
			w.b.publish(evt)
		}
	}
	return len(p), nil
}

// logPrefix is the debug logger prefix, followed by the date and time.
const logPrefix = "[spinrec] "

// levelTags maps the debug package tags to event levels.
var levelTags = map[string]string{
	"[INFO]":    "info",
	"[ERROR]":   "error",
	"[LIVE]":    "live",
	"[VERBOSE]": "verbose",
	"[TRACE]":   "trace",
	"[NODE]":    "trace",
	"[GPIO]":    "trace",
}

// parseLogLine turns "[spinrec] <date> <time> [LIVE] [19225811] Grabbed image 3"
// into {Level: "live", Camera: "19225811", Msg: "Grabbed image 3"}. Lines
// without a level tag are broadcast at level "info".
func parseLogLine(line string) (StatusEvent, bool) {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(line), logPrefix); ok {
		if f := strings.SplitN(rest, " ", 3); len(f) == 3 {
			line = f[2]
		}
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return StatusEvent{}, false
	}
	evt := StatusEvent{Level: "info", Msg: line}
	if end := strings.Index(line, "]"); strings.HasPrefix(line, "[") && end > 0 {
		if level, ok := levelTags[line[:end+1]]; ok {
			evt.Level = level
			evt.Msg = strings.TrimSpace(line[end+1:])
		}
	}
	if strings.HasPrefix(evt.Msg, "[") {
		if end := strings.Index(evt.Msg, "] "); end > 1 {
			evt.Camera = evt.Msg[1:end]
			evt.Msg = evt.Msg[end+2:]
		}
	}
	return evt, true
}
