// Package gate enforces that at most one AI task runs at a time per process.
package gate

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrBusy is returned when a task is already in flight
var ErrBusy = errors.New("an AI task is already running")

// Gate is a non-blocking single-flight lock. Callers that lose the race are rejected, not queued.
type Gate struct {
	busy atomic.Bool
}

// New creates an idle gate
func New() *Gate {
	return &Gate{}
}

// Token is held by the task that owns the gate
type Token struct {
	gate *Gate
	once sync.Once
}

// TryAcquire takes the gate or returns ErrBusy
func (g *Gate) TryAcquire() (*Token, error) {
	if !g.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return &Token{gate: g}, nil
}

// Release frees the gate. Extra calls are no-ops.
func (t *Token) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.gate.busy.Store(false)
	})
}

// Busy reports whether a task holds the gate
func (g *Gate) Busy() bool {
	return g.busy.Load()
}

// Run executes fn while holding the gate. The gate is released on every exit path, including panics.
func (g *Gate) Run(fn func() error) error {
	token, err := g.TryAcquire()
	if err != nil {
		return err
	}
	defer token.Release()

	return fn()
}
