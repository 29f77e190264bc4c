package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/workroomhq/workroom/internal/protocol"
)

// State is the connection-state observable exposed to callers.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

const writeTimeout = 10 * time.Second

// ErrNotConnected is returned by Send while the channel is not open. There is
// no client-side queueing: callers re-issue commands lost to a disconnect.
var ErrNotConnected = fmt.Errorf("not connected")

// Client maintains one logical channel to a session. On abnormal closure it
// reconnects with exponential backoff (one pending timer at a time) until the
// attempt cap, then surfaces ErrConnectionExhausted. A deliberate Close uses
// the normal closure code and suppresses any further reconnect.
type Client struct {
	URL       string // channel endpoint, e.g. "ws://localhost:8080/ws"
	SessionID string

	OnEnvelope    func(protocol.Envelope)
	OnStateChange func(state State, err error)

	// Backoff defaults to NewBackoff() when nil.
	Backoff *Backoff

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
}

func NewClient(url, sessionID string) *Client {
	return &Client{
		URL:       url,
		SessionID: sessionID,
		Backoff:   NewBackoff(),
		state:     StateClosed,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run dials the session channel and processes envelopes until ctx is
// cancelled, Close is called, or the reconnect budget is exhausted.
func (c *Client) Run(ctx context.Context) error {
	if c.Backoff == nil {
		c.Backoff = NewBackoff()
	}
	for {
		c.setState(StateConnecting, nil)
		connected, normal, err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			c.setState(StateClosed, ctx.Err())
			return ctx.Err()
		}
		if normal || c.isClosed() {
			c.setState(StateClosed, nil)
			return nil
		}
		if connected {
			// A completed open resets the budget; a failed dial does not.
			c.Backoff.Reset()
		}
		c.setState(StateClosed, err)

		delay, berr := c.Backoff.Next()
		if berr != nil {
			return fmt.Errorf("%w: last error: %v", berr, err)
		}
		select {
		case <-ctx.Done():
			c.setState(StateClosed, ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// connectAndRead performs one connect cycle. normal is true when the channel
// was closed with the normal closure code: deliberate teardown, no retry.
func (c *Client) connectAndRead(ctx context.Context) (connected, normal bool, err error) {
	url := c.URL + "?session=" + c.SessionID
	conn, _, dialErr := websocket.Dial(ctx, url, nil)
	if dialErr != nil {
		return false, false, fmt.Errorf("dial: %w", dialErr)
	}
	conn.SetReadLimit(512 * 1024)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "teardown")
		return true, true, nil
	}
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()
	c.notify(StateOpen, nil)
	defer conn.CloseNow()

	for {
		_, data, readErr := conn.Read(ctx)
		if readErr != nil {
			normal = websocket.CloseStatus(readErr) == websocket.StatusNormalClosure
			return true, normal, fmt.Errorf("read: %w", readErr)
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if c.OnEnvelope != nil {
			c.OnEnvelope(env)
		}
	}
}

// Send writes one envelope. Rejected immediately while the channel is not
// open; a command lost to a disconnect window must be re-issued by the
// caller once the channel reopens.
func (c *Client) Send(ctx context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateOpen || conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// Close tears the channel down with the normal closure code and suppresses
// any further reconnect attempt.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "teardown")
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) setState(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify(s, err)
}

func (c *Client) notify(s State, err error) {
	if c.OnStateChange != nil {
		c.OnStateChange(s, err)
	}
}
