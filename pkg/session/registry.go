package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Registry tracks all live sessions on the server and carries the
// service-wide counters exposed over the stats endpoint.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	messagesIn  atomic.Uint64
	messagesOut atomic.Uint64
	framesIn    atomic.Uint64
	started     time.Time
	log         *slog.Logger
}

// Stats is a point-in-time snapshot of the registry counters.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	MessagesIn     uint64 `json:"messages_in"`
	MessagesOut    uint64 `json:"messages_out"`
	AudioFramesIn  uint64 `json:"audio_frames_in"`
	UptimeSec      int64  `json:"uptime_sec"`
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		started:  time.Now(),
		log:      logger,
	}
}

// NewSession creates, registers, and starts a session with a fresh id.
// The session deregisters itself on teardown.
func (r *Registry) NewSession(ctx context.Context, cfg Config, send Sender) *Session {
	id := uuid.New().String()

	userTeardown := cfg.OnTeardown
	cfg.OnTeardown = func(s *Session) {
		r.remove(s.id)
		if userTeardown != nil {
			userTeardown(s)
		}
	}

	s := New(id, cfg, send)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	s.Start(ctx)
	r.log.Info("session registered", "session_id", id, "active", r.Count())
	return s
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
	r.log.Info("session removed", "session_id", id)
}

// ResetAll forces every live session back to idle. Used for operator
// recovery; clients receive session_reset and follow.
func (r *Registry) ResetAll() int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Reset()
	}
	return len(targets)
}

// StopAll terminates every live session. Called on server shutdown.
func (r *Registry) StopAll() {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		s.Stop()
	}
}

// CountMessageIn records one inbound transport message, and the frame
// counter when it carried audio.
func (r *Registry) CountMessageIn(audio bool) {
	r.messagesIn.Add(1)
	if audio {
		r.framesIn.Add(1)
	}
}

// CountMessageOut records one outbound transport message.
func (r *Registry) CountMessageOut() {
	r.messagesOut.Add(1)
}

// Snapshot returns the current counters.
func (r *Registry) Snapshot() Stats {
	return Stats{
		ActiveSessions: r.Count(),
		MessagesIn:     r.messagesIn.Load(),
		MessagesOut:    r.messagesOut.Load(),
		AudioFramesIn:  r.framesIn.Load(),
		UptimeSec:      int64(time.Since(r.started).Seconds()),
	}
}
