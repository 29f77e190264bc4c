package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/workroomhq/workroom/internal/protocol"
)

func newTestServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("accept error: %v", err)
			return
		}
		handler(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastBackoff(attempts int) *Backoff {
	return &Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond, MaxAttempts: attempts}
}

func TestClientInitialState(t *testing.T) {
	c := NewClient("ws://localhost:0/ws", "s1")
	if c.State() != StateClosed {
		t.Errorf("initial state = %q, want %q", c.State(), StateClosed)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c := NewClient("ws://localhost:0/ws", "s1")
	env, err := protocol.NewEnvelope(protocol.TypeTerminalExecute, "s1", protocol.TerminalExecute{Command: "true"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := c.Send(context.Background(), env); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while disconnected: err = %v, want ErrNotConnected", err)
	}
}

func TestClientReconnectOnAbnormalClose(t *testing.T) {
	var mu sync.Mutex
	var connCount int

	srv := newTestServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		n := connCount
		mu.Unlock()

		if n == 1 {
			// First connection: abnormal close to trigger reconnect.
			conn.Close(websocket.StatusGoingAway, "test disconnect")
			return
		}
		// Second connection: stay open until the client goes away.
		ctx := context.Background()
		conn.Read(ctx)
		conn.CloseNow()
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), "s1")
	c.Backoff = fastBackoff(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(4 * time.Second)
	for {
		mu.Lock()
		n := connCount
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for reconnect, connections: %d", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestClientNormalClosureSuppressesReconnect(t *testing.T) {
	var mu sync.Mutex
	var connCount int

	srv := newTestServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "teardown")
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), "s1")
	c.Backoff = fastBackoff(5)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run after normal closure: %v", err)
	}

	mu.Lock()
	n := connCount
	mu.Unlock()
	if n != 1 {
		t.Errorf("connections = %d, want 1 (no reconnect after normal closure)", n)
	}
}

func TestClientExhaustion(t *testing.T) {
	// A listener that is already closed refuses every dial.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient("ws://"+addr+"/ws", "s1")
	c.Backoff = fastBackoff(3)

	var states []State
	var mu sync.Mutex
	c.OnStateChange = func(s State, err error) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Run(ctx); !errors.Is(err, ErrConnectionExhausted) {
		t.Fatalf("Run: err = %v, want ErrConnectionExhausted", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var connecting int
	for _, s := range states {
		if s == StateConnecting {
			connecting++
		}
	}
	// 1 initial + 3 budgeted retries.
	if connecting != 4 {
		t.Errorf("connecting transitions = %d, want 4", connecting)
	}
}

func TestClientResetsBackoffAfterSuccessfulOpen(t *testing.T) {
	var mu sync.Mutex
	var connCount int

	srv := newTestServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		connCount++
		mu.Unlock()
		// Every connection opens fine, then drops abnormally.
		time.Sleep(5 * time.Millisecond)
		conn.Close(websocket.StatusGoingAway, "flap")
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), "s1")
	c.Backoff = fastBackoff(2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	// With the counter reset on every successful open, a 2-attempt budget
	// never exhausts; the run only ends with ctx cancellation.
	deadline := time.After(500 * time.Millisecond)
	for {
		mu.Lock()
		n := connCount
		mu.Unlock()
		if n >= 4 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least 4 connections, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run: err = %v, want context.Canceled", err)
	}
}

func TestClientDeliversEnvelopes(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		env, _ := protocol.NewEnvelope(protocol.TypeTerminalOutput, "s1", protocol.TerminalOutput{Chunk: "hi"})
		data, _ := json.Marshal(env)
		conn.Write(ctx, websocket.MessageText, data)
		time.Sleep(50 * time.Millisecond)
		conn.Close(websocket.StatusNormalClosure, "done")
	})
	defer srv.Close()

	received := make(chan protocol.Envelope, 1)
	c := NewClient(wsURL(srv), "s1")
	c.Backoff = fastBackoff(5)
	c.OnEnvelope = func(env protocol.Envelope) {
		select {
		case received <- env:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case env := <-received:
		if env.Type != protocol.TypeTerminalOutput {
			t.Errorf("type = %q, want %q", env.Type, protocol.TypeTerminalOutput)
		}
		var p protocol.TerminalOutput
		if err := env.Decode(&p); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.Chunk != "hi" {
			t.Errorf("chunk = %q, want hi", p.Chunk)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}

	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
