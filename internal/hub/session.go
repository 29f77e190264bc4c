package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/workroomhq/workroom/internal/protocol"
	"github.com/workroomhq/workroom/internal/task"
	"github.com/workroomhq/workroom/internal/term"
)

const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

const sendTimeout = 5 * time.Second

// Session binds one identifier to one task registry, one terminal runner,
// and at most one live channel attachment. A new attachment supersedes and
// closes any prior one.
type Session struct {
	ID       string
	Registry *task.Registry
	Runner   *term.Runner

	log     *slog.Logger
	limiter *rate.Limiter

	mu           sync.Mutex
	status       string
	createdAt    time.Time
	lastActivity time.Time
	conn         *websocket.Conn
}

// Status returns "active" or "ended".
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastActivity returns the time of the last inbound message.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Attach takes over the session channel and serves it until the connection
// drops or is superseded. A prior attachment is displaced atomically and then
// closed. Runs in the caller's goroutine, one reader per attachment.
func (s *Session) Attach(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	if s.status == SessionEnded {
		s.mu.Unlock()
		conn.Close(websocket.StatusPolicyViolation, "session ended")
		return fmt.Errorf("session %s has ended", s.ID)
	}
	// The swap is a single critical section so concurrent attaches cannot
	// leave a displaced connection unclosed.
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Close(websocket.StatusGoingAway, "superseded")
		s.log.Info("attachment superseded")
	}

	s.send(protocol.TypeSessionAttached, protocol.SessionAttached{SessionID: s.ID})
	for _, t := range s.Registry.List(true) {
		s.send(protocol.TypeTaskSnapshot, t)
	}

	defer func() {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if s.limiter != nil {
			if err := s.limiter.WaitN(ctx, len(data)); err != nil {
				return err
			}
		}
		if !s.touch(conn) {
			// Superseded or torn down while reading; stop routing.
			return nil
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("dropping malformed envelope", "error", err)
			continue
		}
		if env.SessionID != s.ID {
			s.log.Warn("dropping envelope for wrong session", "got", env.SessionID)
			continue
		}
		s.route(env)
	}
}

// touch records activity and reports whether conn is still the live
// attachment.
func (s *Session) touch(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now().UTC()
	return s.conn == conn && s.status == SessionActive
}

// route dispatches one inbound envelope by type. Terminal-plane traffic goes
// to the runner, task-plane traffic to the registry. Unroutable envelopes
// are dropped and logged, never fatal.
func (s *Session) route(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeTerminalInit:
		var init protocol.TerminalInit
		if len(env.Data) > 0 {
			if err := env.Decode(&init); err != nil {
				s.log.Warn("dropping envelope", "type", env.Type, "error", err)
				return
			}
		}
		cwd := s.Runner.Init(init.Cwd)
		s.send(protocol.TypeTerminalCwd, protocol.TerminalCwd{Cwd: cwd})

	case protocol.TypeTerminalExecute:
		var exec protocol.TerminalExecute
		if err := env.Decode(&exec); err != nil {
			s.log.Warn("dropping envelope", "type", env.Type, "error", err)
			return
		}
		// Fire-and-forget: the caller observes results via later envelopes.
		// Commands outlive the attachment; output to a dropped connection
		// is discarded in send.
		go s.runCommand(context.Background(), exec.Command)

	case protocol.TypeTaskCancel:
		var cancel protocol.TaskCancel
		if err := env.Decode(&cancel); err != nil {
			s.log.Warn("dropping envelope", "type", env.Type, "error", err)
			return
		}
		if err := s.Registry.Cancel(cancel.TaskID); err != nil {
			// State fault: reject to the caller, it indicates a caller bug.
			s.send(protocol.TypeError, protocol.ErrorMsg{Message: err.Error()})
		}

	default:
		s.log.Warn("dropping envelope of unknown type", "type", env.Type)
	}
}

func (s *Session) runCommand(ctx context.Context, command string) {
	exitCode, err := s.Runner.Execute(ctx, command, func(chunk []byte) {
		s.send(protocol.TypeTerminalOutput, protocol.TerminalOutput{Chunk: string(chunk)})
	})
	if err != nil {
		// Execution fault: reported on the channel, never closes it.
		s.send(protocol.TypeTerminalError, protocol.TerminalError{Message: err.Error()})
		return
	}
	s.send(protocol.TypeTerminalExit, protocol.TerminalExit{ExitCode: exitCode})
}

// pushSnapshot sends the whole task object to the live attachment. Detached
// sessions drop the push; state is replayed from the registry on reattach.
func (s *Session) pushSnapshot(t task.Task) {
	s.send(protocol.TypeTaskSnapshot, t)
}

// send writes one envelope to the live attachment, if any.
func (s *Session) send(typ string, payload any) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	env, err := protocol.NewEnvelope(typ, s.ID, payload)
	if err != nil {
		s.log.Error("encode envelope", "type", typ, "error", err)
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		s.log.Error("marshal envelope", "type", typ, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.log.Warn("write to attachment", "type", typ, "error", err)
	}
}

// end marks the session ended and closes the live attachment with the
// normal closure code. In-flight tasks are untouched.
func (s *Session) end() {
	s.mu.Lock()
	s.status = SessionEnded
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "session ended")
	}
}
