// Package jobs serializes pipeline executions: one job process-wide, a
// wall-clock ceiling on how long anyone waits for it, and a handle the
// serving layer streams progress from.
package jobs

import (
	"errors"
	"sync"
)

// ErrBusy is returned while another job holds the guard. Requests are
// rejected immediately, never queued.
var ErrBusy = errors.New("another job is already running")

// Guard is the process-wide single-flight lock.
type Guard struct {
	mu     sync.Mutex
	holder uint64
	next   uint64
}

// Token names one acquisition of the guard.
type Token struct {
	g  *Guard
	id uint64
}

// TryAcquire returns a release token, or ErrBusy without blocking.
func (g *Guard) TryAcquire() (*Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holder != 0 {
		return nil, ErrBusy
	}
	g.next++
	g.holder = g.next
	return &Token{g: g, id: g.next}, nil
}

// Release frees the guard if the token still holds it and reports whether
// it did. A worker that outlived the ceiling holds a stale token; its
// release must not free a slot a newer job now owns.
func (t *Token) Release() bool {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.g.holder != t.id {
		return false
	}
	t.g.holder = 0
	return true
}

// Held reports whether any job currently holds the guard.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder != 0
}
