// Package broadcast fans server events out to connected sessions.
// Publishing never blocks: each session has a bounded outbound queue
// and overflow drops the oldest queued event, keeping slow readers
// from stalling everyone else.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-session outbound queue capacity.
const DefaultQueueSize = 64

// Session is one registered client connection.
type Session struct {
	id      string
	dropped atomic.Uint64

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Outbound returns the channel the transport's write pump drains.
// It is closed when the session is unregistered.
func (s *Session) Outbound() <-chan []byte {
	return s.out
}

// Dropped returns the number of events this session lost to overflow.
func (s *Session) Dropped() uint64 {
	return s.dropped.Load()
}

// enqueue adds data, evicting the oldest queued event when full.
// Enqueueing to a closed session is a no-op.
func (s *Session) enqueue(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for {
		select {
		case s.out <- data:
			return
		default:
			select {
			case <-s.out:
				s.dropped.Add(1)
			default:
			}
		}
	}
}

// close closes the outbound channel exactly once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// Broadcaster tracks sessions and delivers events to all of them.
type Broadcaster struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	queueSize int
	logger    *slog.Logger
}

// New creates a broadcaster. queueSize <= 0 uses DefaultQueueSize.
func New(queueSize int, logger *slog.Logger) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sessions:  make(map[string]*Session),
		queueSize: queueSize,
		logger:    logger,
	}
}

// Register creates and tracks a new session.
func (b *Broadcaster) Register() *Session {
	s := &Session{
		id:  uuid.NewString(),
		out: make(chan []byte, b.queueSize),
	}

	b.mu.Lock()
	b.sessions[s.id] = s
	count := len(b.sessions)
	b.mu.Unlock()

	b.logger.Debug("session registered", "session", s.id, "sessions", count)
	return s
}

// Unregister removes a session and closes its outbound channel.
// Unknown IDs are a no-op.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	s, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
	}
	count := len(b.sessions)
	b.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	if n := s.Dropped(); n > 0 {
		b.logger.Warn("session dropped events before disconnect", "session", id, "dropped", n)
	}
	b.logger.Debug("session unregistered", "session", id, "sessions", count)
}

// Publish marshals event once and delivers it to every session.
func (b *Broadcaster) Publish(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal broadcast event", "error", err)
		return
	}

	b.mu.RLock()
	targets := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(data)
	}
}

// Send delivers event to a single session, for request replies.
// Unknown IDs are a no-op.
func (b *Broadcaster) Send(id string, event any) {
	b.mu.RLock()
	s, ok := b.sessions[id]
	b.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal session event", "error", err)
		return
	}
	s.enqueue(data)
}

// Count returns the number of registered sessions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Close unregisters every session.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*Session)
	b.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
