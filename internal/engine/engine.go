// Package engine ties the two observation channels together: it owns the
// session store, the reconciliation gate, and the caller-facing API. The
// push router and the poller race toward the gate; the engine delivers the
// winner's outcome exactly once and tears the session down.
package engine

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/verisync/verisync/internal/channel"
	"github.com/verisync/verisync/internal/config"
	"github.com/verisync/verisync/internal/oracle"
	"github.com/verisync/verisync/internal/poll"
	"github.com/verisync/verisync/internal/router"
	"github.com/verisync/verisync/internal/session"
)

// track is the per-session runtime record: the outcome rendezvous with the
// waiting caller, the poller's cancel handle, and the informational update
// stream.
type track struct {
	sess       *session.Session
	outcome    chan *session.Outcome
	updates    chan session.Status
	cancelPoll context.CancelFunc
}

type Engine struct {
	cfg    *config.Config
	mgr    *channel.Manager
	subs   *channel.Registry
	store  *session.Store
	gate   *Gate
	router *router.Router
	poller *poll.Poller
	log    zerolog.Logger

	mu     sync.Mutex
	tracks map[string]*track
}

// New wires an engine from its collaborators. A nil dialer uses the real
// websocket dialer; tests inject a fake.
func New(cfg *config.Config, dialer channel.Dialer, status oracle.StatusAPI, results oracle.ResultAPI, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		store:  session.NewStore(),
		gate:   NewGate(),
		log:    log.With().Str("component", "engine").Logger(),
		tracks: make(map[string]*track),
	}

	e.mgr = channel.NewManager(cfg.Channel, cfg.Oracle.WSURL, cfg.Oracle.Token, dialer, log)
	e.subs = channel.NewRegistry(e.mgr, log)

	e.router = router.New(e.store, results, e.gate, cfg.Result.RetryDelay, log)
	e.router.OnStatus(e.statusUpdate)
	e.router.OnOutcome(e.complete)
	e.mgr.SetHandler(e.router.HandleRaw)

	e.poller = poll.New(status, results, e.store, e.gate,
		cfg.Poll.Interval, cfg.Poll.MaxDuration, cfg.Result.RetryDelay, log)
	e.poller.OnOutcome(e.complete)

	e.mgr.OnStatusChange(func(connected bool, err error) {
		if connected {
			e.log.Info().Msg("oracle channel up")
		} else if err != nil {
			e.log.Warn().Err(err).Msg("oracle channel down")
		}
	})

	return e
}

// NewWithOracle builds an engine backed by the real oracle endpoints in cfg.
func NewWithOracle(cfg *config.Config, log zerolog.Logger) *Engine {
	client := oracle.NewClient(cfg.Oracle.APIURL, cfg.Oracle.Token, cfg.Result.Timeout)
	return New(cfg, nil, client, client, log)
}

// StartSession begins verification for a subject: ensures the push channel
// is connected, subscribes the new session, and starts its poller. Both
// observation paths run from this point until one wins the gate.
func (e *Engine) StartSession(ctx context.Context, subjectRef, policyRef string) (string, error) {
	if err := e.mgr.Connect(ctx); err != nil {
		return "", err
	}

	sess := session.New(subjectRef, policyRef)
	e.store.Put(sess)
	e.gate.Register(sess.ID)

	pollCtx, cancel := context.WithCancel(context.Background())
	tr := &track{
		sess:       sess,
		outcome:    make(chan *session.Outcome, 1),
		updates:    make(chan session.Status, 8),
		cancelPoll: cancel,
	}
	e.mu.Lock()
	e.tracks[sess.ID] = tr
	e.mu.Unlock()

	if err := e.subs.Subscribe(sess.ID, sess.CorrelationID); err != nil {
		cancel()
		e.forget(sess.ID)
		return "", err
	}

	go e.poller.Run(pollCtx, sess.Clone())

	e.log.Info().
		Str("session", sess.ID).
		Str("subject", subjectRef).
		Msg("verification session started")
	return sess.ID, nil
}

// AwaitOutcome blocks until the session resolves, the session is cancelled,
// or ctx expires. Exactly one caller receives the outcome; the session is
// destroyed on delivery.
func (e *Engine) AwaitOutcome(ctx context.Context, sessionID string) (*session.Outcome, error) {
	e.mu.Lock()
	tr, ok := e.tracks[sessionID]
	e.mu.Unlock()
	if !ok {
		return nil, session.ErrUnknownSession
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case outcome, open := <-tr.outcome:
		e.forget(sessionID)
		if !open {
			return nil, session.ErrCancelled
		}
		return outcome, nil
	}
}

// CancelSession treats cancellation as a terminal event: it wins the gate so
// any in-flight fetch or late poll response is discarded on arrival, stops
// the poller, sends a best-effort unsubscribe, and destroys the session
// record. A caller already blocked in AwaitOutcome observes ErrCancelled;
// anyone arriving after gets ErrUnknownSession.
func (e *Engine) CancelSession(sessionID string) error {
	e.mu.Lock()
	tr, ok := e.tracks[sessionID]
	e.mu.Unlock()
	if !ok {
		return session.ErrUnknownSession
	}

	if !e.gate.TryComplete(sessionID) {
		// Already resolved; the waiting caller still gets the real outcome.
		return nil
	}

	tr.cancelPoll()
	e.subs.Unsubscribe(sessionID)
	close(tr.outcome)
	e.forget(sessionID)
	e.log.Info().Str("session", sessionID).Msg("session cancelled")
	return nil
}

// Session returns a snapshot of a tracked session.
func (e *Engine) Session(sessionID string) (*session.Session, bool) {
	return e.store.Get(sessionID)
}

// StatusUpdates returns the session's informational status stream
// (Requested, Processing). Terminal resolution arrives via AwaitOutcome.
func (e *Engine) StatusUpdates(sessionID string) (<-chan session.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tr, ok := e.tracks[sessionID]
	if !ok {
		return nil, session.ErrUnknownSession
	}
	return tr.updates, nil
}

// Subscribed returns the session ids currently subscribed on the push
// channel.
func (e *Engine) Subscribed() []string {
	return e.subs.Tracked()
}

// Close tears down the push channel and stops every session's poller.
// Pending waiters are not resolved; their contexts govern them.
func (e *Engine) Close() {
	e.mu.Lock()
	for _, tr := range e.tracks {
		tr.cancelPoll()
	}
	e.mu.Unlock()
	e.mgr.Disconnect()
}

// complete is the winning channel's delivery path. The gate has already been
// won by the caller; cleanup and outcome delivery happen exactly once.
// Cancellation never reaches here: it wins the gate itself, so the losing
// observers stop at TryComplete.
func (e *Engine) complete(sessionID string, outcome *session.Outcome) {
	e.mu.Lock()
	tr, ok := e.tracks[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}

	tr.cancelPoll()
	e.subs.Unsubscribe(sessionID)

	select {
	case tr.outcome <- outcome:
	default:
	}
}

func (e *Engine) statusUpdate(sessionID string, status session.Status) {
	e.mu.Lock()
	tr, ok := e.tracks[sessionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case tr.updates <- status:
	default:
	}
}

// forget destroys a session's runtime record after outcome delivery or
// cancellation.
func (e *Engine) forget(sessionID string) {
	e.mu.Lock()
	delete(e.tracks, sessionID)
	e.mu.Unlock()
	e.gate.Forget(sessionID)
	e.store.Remove(sessionID)
}
