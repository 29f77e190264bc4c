package ws

import (
	"errors"
	"testing"
	"time"
)

func TestBackoffDelays(t *testing.T) {
	bo := NewBackoff()

	expected := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond, // capped
	}

	for i, want := range expected {
		got, err := bo.Next()
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
		if got != want {
			t.Errorf("attempt %d: got %v, want %v", i, got, want)
		}
	}

	// The 6th consecutive failure exhausts the budget with no further wait.
	if _, err := bo.Next(); !errors.Is(err, ErrConnectionExhausted) {
		t.Errorf("after cap: err = %v, want ErrConnectionExhausted", err)
	}
}

func TestBackoffReset(t *testing.T) {
	bo := NewBackoff()
	bo.Next() // 1s
	bo.Next() // 2s
	bo.Next() // 4s
	bo.Reset()

	got, err := bo.Next()
	if err != nil {
		t.Fatalf("Next after reset: %v", err)
	}
	if got != time.Second {
		t.Errorf("after reset: got %v, want %v", got, time.Second)
	}
	if bo.Attempt() != 1 {
		t.Errorf("attempt counter = %d, want 1", bo.Attempt())
	}
}
