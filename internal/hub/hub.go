// Package hub binds session identifiers to channel attachments and task
// registries, and routes inbound envelopes between the terminal execution
// surface and the task plane.
package hub

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/workroomhq/workroom/internal/store"
	"github.com/workroomhq/workroom/internal/task"
	"github.com/workroomhq/workroom/internal/term"
)

// Options configure the coordinator.
type Options struct {
	Store          *store.Store // optional; nil disables persistence
	Shell          string
	CommandTimeout time.Duration
	Logger         *slog.Logger

	// InboundBytesPerSec meters inbound channel traffic per attachment.
	// Zero disables metering.
	InboundBytesPerSec int
}

// Hub is the process-wide session coordinator: one Registry and at most one
// live channel attachment per session. Sessions are independent; each
// attachment is served by a single reader goroutine.
type Hub struct {
	opts Options
	log  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]*Session),
	}
}

// Ensure returns the session, creating it on first contact. Task history and
// the ended status are restored from the store so a reattach observes prior
// state and a restart does not revive torn-down sessions.
func (h *Hub) Ensure(id string) (*Session, error) {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if ok {
		return s, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		return s, nil
	}

	now := time.Now().UTC()
	s = &Session{
		ID:           id,
		Registry:     task.NewRegistry(id),
		Runner:       term.NewRunner(h.opts.Shell, h.opts.CommandTimeout),
		status:       SessionActive,
		createdAt:    now,
		lastActivity: now,
		log:          h.log.With("session", id),
	}
	if h.opts.InboundBytesPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.opts.InboundBytesPerSec), h.opts.InboundBytesPerSec)
	}

	if h.opts.Store != nil {
		if err := h.opts.Store.EnsureSession(id); err != nil {
			return nil, fmt.Errorf("ensure session %s: %w", id, err)
		}
		rec, err := h.opts.Store.GetSession(id)
		if err != nil {
			return nil, fmt.Errorf("restore session %s: %w", id, err)
		}
		if rec != nil && rec.Status == SessionEnded {
			// Teardown is permanent; a restart must not revive the session.
			s.status = SessionEnded
		}
		tasks, err := h.opts.Store.ListTasks(id)
		if err != nil {
			return nil, fmt.Errorf("restore tasks for %s: %w", id, err)
		}
		for _, t := range tasks {
			s.Registry.Load(*t)
		}
	}

	st := h.opts.Store
	s.Registry.OnChange(func(t task.Task) {
		if st != nil {
			if err := st.SaveTask(&t); err != nil {
				s.log.Error("persist task", "task", t.ID, "error", err)
			}
		}
		s.pushSnapshot(t)
	})

	h.sessions[id] = s
	h.log.Info("session created", "session", id)
	return s, nil
}

// Session returns an existing session without creating one.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	return s, ok
}

// Teardown ends a session: the attachment is closed and the session stops
// accepting traffic. Task history is kept.
func (h *Hub) Teardown(id string) error {
	h.mu.RLock()
	s, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown session %s", id)
	}
	s.end()
	if h.opts.Store != nil {
		if err := h.opts.Store.EndSession(id); err != nil {
			return fmt.Errorf("end session %s: %w", id, err)
		}
	}
	h.log.Info("session ended", "session", id)
	return nil
}
