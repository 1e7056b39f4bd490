package engine

import (
	"sync"
	"sync/atomic"
)

// Gate arbitrates terminal completion between the push router and the
// poller. Each session carries one completed flag, flipped atomically by the
// first TryComplete caller; the loser's signal is discarded. The winner, and
// only the winner, may run cleanup and deliver the outcome.
type Gate struct {
	mu        sync.Mutex
	completed map[string]*atomic.Bool
}

func NewGate() *Gate {
	return &Gate{completed: make(map[string]*atomic.Bool)}
}

// Register initializes the flag for a new session.
func (g *Gate) Register(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[sessionID] = &atomic.Bool{}
}

// TryComplete returns true for exactly the first caller per session. Unknown
// sessions report false so late signals for forgotten sessions are inert.
func (g *Gate) TryComplete(sessionID string) bool {
	g.mu.Lock()
	flag, ok := g.completed[sessionID]
	g.mu.Unlock()
	if !ok {
		return false
	}
	return flag.CompareAndSwap(false, true)
}

// Completed reports whether the session already resolved.
func (g *Gate) Completed(sessionID string) bool {
	g.mu.Lock()
	flag, ok := g.completed[sessionID]
	g.mu.Unlock()
	return ok && flag.Load()
}

// Forget drops the flag once the session is destroyed.
func (g *Gate) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.completed, sessionID)
}
