package router

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/verisync/verisync/internal/oracle"
	"github.com/verisync/verisync/internal/session"
)

// Gate is the exactly-once completion arbiter. The first caller to win
// TryComplete for a session owns its finalization; everyone else backs off.
type Gate interface {
	TryComplete(sessionID string) bool
}

// Router dispatches normalized push events to sessions. Correlation matching
// is permissive: an event with no correlation id is offered to every active
// session, compensating for terminal events that arrive without one. An
// event with a present, mismatched id is dropped for that session.
type Router struct {
	store      *session.Store
	results    oracle.ResultAPI
	gate       Gate
	retryDelay time.Duration
	log        zerolog.Logger

	onStatus  func(sessionID string, status session.Status)
	onOutcome func(sessionID string, outcome *session.Outcome)
}

func New(store *session.Store, results oracle.ResultAPI, gate Gate, retryDelay time.Duration, log zerolog.Logger) *Router {
	return &Router{
		store:      store,
		results:    results,
		gate:       gate,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "router").Logger(),
	}
}

// OnStatus registers the informational status callback (Requested,
// Processing). Must be set before the channel handler is attached.
func (r *Router) OnStatus(fn func(sessionID string, status session.Status)) { r.onStatus = fn }

// OnOutcome registers the terminal delivery callback, invoked exactly once
// per session by whichever channel wins the gate.
func (r *Router) OnOutcome(fn func(sessionID string, outcome *session.Outcome)) { r.onOutcome = fn }

// HandleRaw consumes one raw frame from the push channel.
func (r *Router) HandleRaw(data []byte) {
	ev, err := Normalize(data)
	if err != nil {
		r.log.Debug().Err(err).Msg("dropping push frame")
		return
	}
	if ev.Transition.IsControl() {
		if ev.Transition == TransitionChannelError {
			r.log.Warn().Str("reason", ev.Reason).Msg("channel error event")
		}
		return
	}

	matched := r.match(ev)
	if len(matched) == 0 {
		r.log.Debug().
			Str("transition", ev.Transition.String()).
			Str("correlation", ev.CorrelationID).
			Msg("push event matched no session")
		return
	}
	for _, sess := range matched {
		r.dispatch(sess, ev)
	}
}

// match returns the sessions the event belongs to. With a correlation id it
// is the owning session; without one, every active session.
func (r *Router) match(ev *Event) []*session.Session {
	var matched []*session.Session
	for _, sess := range r.store.GetAll() {
		if sess.Status.IsTerminal() {
			continue
		}
		if ev.CorrelationID == "" || ev.CorrelationID == sess.CorrelationID {
			matched = append(matched, sess)
		}
	}
	return matched
}

func (r *Router) dispatch(sess *session.Session, ev *Event) {
	switch ev.Transition {
	case TransitionRequested, TransitionProcessing:
		status := session.Requested
		if ev.Transition == TransitionProcessing {
			status = session.Processing
		}
		if _, changed := r.store.Advance(sess.ID, status); changed && r.onStatus != nil {
			r.onStatus(sess.ID, status)
		}

	case TransitionSuccess:
		// Gate first: the completed flag must be won before the artifact
		// fetch or any other terminal side effect starts.
		if !r.gate.TryComplete(sess.ID) {
			r.log.Debug().Str("session", sess.ID).Msg("success event after completion, ignoring")
			return
		}
		go r.finalizeSuccess(sess, ev)

	case TransitionFailed:
		if !r.gate.TryComplete(sess.ID) {
			r.log.Debug().Str("session", sess.ID).Msg("failure event after completion, ignoring")
			return
		}
		reason := ev.Reason
		if reason == "" {
			reason = "verification failed"
		}
		r.deliver(sess.ID, session.Failed, session.FailureOutcome(reason, ev.FailedChallenges))

	case TransitionError:
		if !r.gate.TryComplete(sess.ID) {
			r.log.Debug().Str("session", sess.ID).Msg("error event after completion, ignoring")
			return
		}
		detail := ev.Reason
		if detail == "" {
			detail = "verification error"
		}
		r.deliver(sess.ID, session.Errored, session.ErrorOutcome(detail))
	}
}

// finalizeSuccess completes a session on the success path. When the event
// carried no finalized artifact reference, one fetch with a single
// fixed-delay retry obtains it; a failed fetch is itself a terminal error
// for the session, not retried further.
func (r *Router) finalizeSuccess(sess *session.Session, ev *Event) {
	outcome := session.SuccessOutcome(ev.Confidence, ev.PassedChallenges, ev.ArtifactRef)

	if outcome.ArtifactRef == "" {
		res, err := oracle.FetchResultOnce(context.Background(), r.results, sess.SubjectRef, r.retryDelay)
		if err != nil {
			fetchErr := &session.ResultFetchError{SubjectRef: sess.SubjectRef, Err: err}
			r.log.Warn().Err(fetchErr).Str("session", sess.ID).Msg("result fetch failed")
			r.deliver(sess.ID, session.Errored, session.ErrorOutcome(fetchErr.Error()))
			return
		}
		outcome.ArtifactRef = res.ArtifactRef
		if outcome.Confidence == 0 {
			outcome.Confidence = res.Confidence
		}
		if len(outcome.PassedChallenges) == 0 {
			outcome.PassedChallenges = res.PassedChallenges
		}
	}

	r.deliver(sess.ID, session.Success, outcome)
}

func (r *Router) deliver(sessionID string, status session.Status, outcome *session.Outcome) {
	r.store.Advance(sessionID, status)
	r.log.Info().
		Str("session", sessionID).
		Str("status", status.String()).
		Msg("session finalized via push channel")
	if r.onOutcome != nil {
		r.onOutcome(sessionID, outcome)
	}
}
