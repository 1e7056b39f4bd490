package channel

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/verisync/verisync/internal/session"
)

// controlFrame is the subscribe/unsubscribe message sent on the push
// channel, keyed by correlation id.
type controlFrame struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId"`
}

// Registry tracks which sessions are subscribed on the push channel. It is
// the only component that writes control frames, so concurrent sessions
// never race on the shared connection. On reconnect the manager calls Replay
// to re-subscribe every still-tracked session.
type Registry struct {
	mgr *Manager
	log zerolog.Logger

	mu      sync.Mutex
	tracked map[string]string // sessionID -> correlationID
}

func NewRegistry(mgr *Manager, log zerolog.Logger) *Registry {
	r := &Registry{
		mgr:     mgr,
		log:     log.With().Str("component", "registry").Logger(),
		tracked: make(map[string]string),
	}
	mgr.OnConnected(r.Replay)
	mgr.OnTeardown(r.Clear)
	return r
}

// Subscribe adds the session to the tracked set and sends the subscribe
// frame. The channel must be connected.
func (r *Registry) Subscribe(sessionID, correlationID string) error {
	if !r.mgr.Connected() {
		return session.ErrNotConnected
	}

	r.mu.Lock()
	r.tracked[sessionID] = correlationID
	r.mu.Unlock()

	if err := r.mgr.SendJSON(controlFrame{Type: "subscribe", CorrelationID: correlationID}); err != nil {
		r.mu.Lock()
		delete(r.tracked, sessionID)
		r.mu.Unlock()
		return &session.SubscriptionError{SessionID: sessionID, Err: err}
	}
	r.log.Debug().Str("session", sessionID).Msg("subscribed")
	return nil
}

// Unsubscribe drops tracking and sends a best-effort unsubscribe frame. A
// down channel is not an error.
func (r *Registry) Unsubscribe(sessionID string) {
	r.mu.Lock()
	correlationID, ok := r.tracked[sessionID]
	delete(r.tracked, sessionID)
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := r.mgr.SendJSON(controlFrame{Type: "unsubscribe", CorrelationID: correlationID}); err != nil {
		r.log.Debug().Err(err).Str("session", sessionID).Msg("unsubscribe not delivered")
		return
	}
	r.log.Debug().Str("session", sessionID).Msg("unsubscribed")
}

// Replay re-sends subscribe frames for every tracked session. Called by the
// manager after each (re)connection.
func (r *Registry) Replay() {
	r.mu.Lock()
	pending := make(map[string]string, len(r.tracked))
	for id, corr := range r.tracked {
		pending[id] = corr
	}
	r.mu.Unlock()

	for id, corr := range pending {
		if err := r.mgr.SendJSON(controlFrame{Type: "subscribe", CorrelationID: corr}); err != nil {
			r.log.Warn().Err(err).Str("session", id).Msg("subscription replay failed")
			continue
		}
		r.log.Debug().Str("session", id).Msg("subscription replayed")
	}
}

// Clear drops all tracking without sending anything.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = make(map[string]string)
}

// Tracked returns the ids of currently subscribed sessions.
func (r *Registry) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.tracked))
	for id := range r.tracked {
		ids = append(ids, id)
	}
	return ids
}
