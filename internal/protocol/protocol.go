package protocol

import (
	"encoding/json"
	"fmt"
)

// Message types for the session event channel. Terminal-plane and task-plane
// messages share one websocket per session; receivers dispatch on Type alone
// and must not assume ordering across planes, only FIFO within each plane.
const (
	// Terminal plane
	TypeTerminalInit    = "terminal_init"    // client → server, working-directory hint
	TypeTerminalCwd     = "terminal_cwd"     // server → client, resolved working directory
	TypeTerminalExecute = "terminal_execute" // client → server, command text
	TypeTerminalOutput  = "terminal_output"  // server → client, incremental chunk
	TypeTerminalError   = "terminal_error"   // server → client, does not close the channel
	TypeTerminalExit    = "terminal_exit"    // server → client, command finished

	// Task plane
	TypeTaskSnapshot = "task_snapshot" // server → client, whole task object
	TypeTaskCancel   = "task_cancel"   // client → server

	// Control
	TypeSessionAttached = "session_attached" // server → client, attach ack
	TypeError           = "error"
)

// Envelope wraps every channel message. Data's shape is determined by Type.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope builds an envelope with payload marshaled into Data.
// A nil payload leaves Data empty.
func NewEnvelope(typ, sessionID string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, SessionID: sessionID}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// TerminalInit carries the client's working-directory hint.
type TerminalInit struct {
	Cwd string `json:"cwd,omitempty"`
}

// TerminalCwd echoes the resolved working directory back to the client.
type TerminalCwd struct {
	Cwd string `json:"cwd"`
}

// TerminalExecute carries one command to run.
type TerminalExecute struct {
	Command string `json:"command"`
}

// TerminalOutput is one incremental output chunk. Chunks are concatenated in
// arrival order to reconstruct full output; chunk boundaries carry no meaning.
type TerminalOutput struct {
	Chunk string `json:"chunk"`
}

// TerminalError reports a command failure without closing the channel.
type TerminalError struct {
	Message string `json:"message"`
}

// TerminalExit reports that a command finished.
type TerminalExit struct {
	ExitCode int `json:"exitCode"`
}

// TaskCancel requests cancellation of a background task.
type TaskCancel struct {
	TaskID string `json:"taskId"`
}

// SessionAttached acknowledges a successful channel attach.
type SessionAttached struct {
	SessionID string `json:"sessionId"`
}

// ErrorMsg reports a protocol or state error to the attached client.
type ErrorMsg struct {
	Message string `json:"message"`
}
