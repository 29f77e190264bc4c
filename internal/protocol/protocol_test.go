package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	orig, err := NewEnvelope(TypeTerminalExecute, "s1", TerminalExecute{Command: "echo hi"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Type != TypeTerminalExecute {
		t.Errorf("Type = %q, want %q", decoded.Type, TypeTerminalExecute)
	}
	if decoded.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", decoded.SessionID)
	}

	var p TerminalExecute
	if err := decoded.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Command != "echo hi" {
		t.Errorf("Command = %q, want %q", p.Command, "echo hi")
	}
}

func TestEnvelopeWireFormat(t *testing.T) {
	env, err := NewEnvelope(TypeTaskCancel, "abc", TaskCancel{TaskID: "t1"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// The wire contract is {type, sessionId, data}.
	for _, key := range []string{`"type":"task_cancel"`, `"sessionId":"abc"`, `"taskId":"t1"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("wire form %s missing %s", data, key)
		}
	}
}

func TestEnvelopeNilPayload(t *testing.T) {
	env, err := NewEnvelope(TypeSessionAttached, "s1", nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if len(env.Data) != 0 {
		t.Errorf("Data = %s, want empty", env.Data)
	}

	var p SessionAttached
	if err := env.Decode(&p); err == nil {
		t.Error("Decode of empty payload should error")
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	env := Envelope{Type: TypeTerminalOutput, SessionID: "s1", Data: json.RawMessage(`{bad`)}
	var p TerminalOutput
	if err := env.Decode(&p); err == nil {
		t.Error("Decode of malformed payload should error")
	}
}
