package batch

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned from checkpoints once the batch has been stopped.
var ErrStopped = errors.New("batch processing stopped")

// Token is a cooperative stop/pause signal for a running batch. It is polled
// at well-defined checkpoints (between files and between retry attempts), so
// a pause never leaves a file in a half-updated state: the batch simply stops
// advancing until resumed. Already-completed results are kept.
type Token struct {
	mu      sync.Mutex
	stopped bool
	paused  bool
	changed chan struct{}
}

func NewToken() *Token {
	return &Token{changed: make(chan struct{})}
}

// Stop permanently halts further processing. Idempotent.
func (t *Token) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.broadcast()
}

// Pause suspends processing at the next checkpoint.
func (t *Token) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		t.paused = true
		t.broadcast()
	}
}

// Resume lets a paused batch continue.
func (t *Token) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		t.broadcast()
	}
}

// Stopped reports whether Stop has been called.
func (t *Token) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// broadcast wakes every checkpoint waiter. Callers hold t.mu.
func (t *Token) broadcast() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Checkpoint blocks while the token is paused and returns ErrStopped once it
// is stopped, or the context error if ctx ends first. A nil token always
// proceeds.
func (t *Token) Checkpoint(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	for {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return ErrStopped
		}
		if !t.paused {
			t.mu.Unlock()
			return ctx.Err()
		}
		ch := t.changed
		t.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
