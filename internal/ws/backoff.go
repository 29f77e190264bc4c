package ws

import (
	"errors"
	"time"
)

// ErrConnectionExhausted is surfaced after the retry cap is hit. The caller
// must explicitly re-dial (e.g. reload the session view) to recover.
var ErrConnectionExhausted = errors.New("connection attempts exhausted")

const (
	DefaultBase        = time.Second
	DefaultMax         = 10 * time.Second
	DefaultMaxAttempts = 5
)

// Backoff computes reconnect delays: min(base << attempt, max), capped at
// MaxAttempts total attempts before ErrConnectionExhausted.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	MaxAttempts int
	attempt     int
}

func NewBackoff() *Backoff {
	return &Backoff{Base: DefaultBase, Max: DefaultMax, MaxAttempts: DefaultMaxAttempts}
}

// Next returns the delay for the current attempt and increments the counter.
// Returns ErrConnectionExhausted once MaxAttempts delays have been handed out.
func (b *Backoff) Next() (time.Duration, error) {
	if b.attempt >= b.MaxAttempts {
		return 0, ErrConnectionExhausted
	}
	d := b.Base << b.attempt
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	return d, nil
}

// Reset clears the attempt counter after a successful open.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns the number of delays handed out since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}
