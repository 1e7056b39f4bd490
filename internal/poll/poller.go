// Package poll implements the pull-based fallback observation path: a fixed
// interval sampler per session, bounded by a wall-clock maximum duration,
// with client-side expiry compensation for a known upstream defect where
// expiry is not always reflected in the reported state.
package poll

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verisync/verisync/internal/oracle"
	"github.com/verisync/verisync/internal/session"
)

// Classification buckets an observed state string.
type Classification int

const (
	Pending Classification = iota
	Succeeded
	Failing
	Unknown
)

var successStates = map[string]bool{
	"VERIFIED":  true,
	"SUCCESS":   true,
	"COMPLETED": true,
}

var failureStates = map[string]bool{
	"FAILED":   true,
	"REJECTED": true,
	"EXPIRED":  true,
	"ERROR":    true,
}

var pendingStates = map[string]bool{
	"PENDING":           true,
	"REQUESTED":         true,
	"IN_PROGRESS":       true,
	"PROCESSING":        true,
	"AWAITING_EVIDENCE": true,
	"PENDING_CHALLENGE": true,
}

// Classify maps an observed state into one of three disjoint sets. Anything
// outside all three is Unknown, which callers treat as pending.
func Classify(state string) Classification {
	upper := strings.ToUpper(strings.TrimSpace(state))
	switch {
	case successStates[upper]:
		return Succeeded
	case failureStates[upper]:
		return Failing
	case pendingStates[upper]:
		return Pending
	default:
		return Unknown
	}
}

// Gate is the exactly-once completion arbiter shared with the push router.
type Gate interface {
	TryComplete(sessionID string) bool
}

// Poller samples one session's status until a terminal condition or its max
// duration. A losing race against the push channel is discarded silently;
// transport errors are logged and never stop polling.
type Poller struct {
	api        oracle.StatusAPI
	results    oracle.ResultAPI
	store      *session.Store
	gate       Gate
	interval   time.Duration
	maxDur     time.Duration
	retryDelay time.Duration
	log        zerolog.Logger

	onOutcome func(sessionID string, outcome *session.Outcome)
}

func New(api oracle.StatusAPI, results oracle.ResultAPI, store *session.Store, gate Gate,
	interval, maxDuration, retryDelay time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		api:        api,
		results:    results,
		store:      store,
		gate:       gate,
		interval:   interval,
		maxDur:     maxDuration,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "poller").Logger(),
	}
}

// OnOutcome registers the terminal delivery callback.
func (p *Poller) OnOutcome(fn func(sessionID string, outcome *session.Outcome)) { p.onOutcome = fn }

// Run polls the session until it resolves, the context is cancelled, or the
// max duration elapses. Sampling starts immediately, without waiting for the
// first push event. Blocking; callers run it in its own goroutine.
func (p *Poller) Run(ctx context.Context, sess *session.Session) {
	deadline := time.NewTimer(p.maxDur)
	defer deadline.Stop()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.sample(ctx, sess) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			if !p.gate.TryComplete(sess.ID) {
				return
			}
			p.log.Info().Str("session", sess.ID).Dur("max_duration", p.maxDur).Msg("session timed out")
			p.deliver(sess.ID, session.TimedOut, session.TimedOutOutcome())
			return
		case <-ticker.C:
			if p.sample(ctx, sess) {
				return
			}
		}
	}
}

// sample takes one status observation. Returns true when polling should
// stop, either because this poller finalized the session or because the
// other channel already did.
func (p *Poller) sample(ctx context.Context, sess *session.Session) bool {
	sampled, err := p.api.SessionStatus(ctx, sess.ID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Warn().Err(err).Str("session", sess.ID).Msg("poll failed, will retry")
		return false
	}

	switch Classify(sampled.State) {
	case Succeeded:
		if !p.gate.TryComplete(sess.ID) {
			return true
		}
		p.finalizeSuccess(ctx, sess)
		return true

	case Failing:
		if !p.gate.TryComplete(sess.ID) {
			return true
		}
		reason := strings.ToLower(sampled.State)
		p.deliver(sess.ID, session.Failed, session.FailureOutcome(reason, nil))
		return true

	case Unknown:
		p.log.Debug().Str("session", sess.ID).Str("state", sampled.State).Msg("unclassified poll state, treating as pending")
		fallthrough

	default:
		// Expiry compensation: a pending sample whose expiresAt already
		// passed is final even though the upstream state never says so.
		if sampled.ExpiresAt != nil && sampled.ExpiresAt.Before(time.Now()) {
			if !p.gate.TryComplete(sess.ID) {
				return true
			}
			p.log.Info().Str("session", sess.ID).Time("expired_at", *sampled.ExpiresAt).Msg("session expired upstream")
			p.deliver(sess.ID, session.Failed, session.FailureOutcome(session.ReasonExpired, nil))
			return true
		}
		return false
	}
}

func (p *Poller) finalizeSuccess(ctx context.Context, sess *session.Session) {
	outcome := session.SuccessOutcome(0, nil, "")
	res, err := oracle.FetchResultOnce(ctx, p.results, sess.SubjectRef, p.retryDelay)
	if err != nil {
		fetchErr := &session.ResultFetchError{SubjectRef: sess.SubjectRef, Err: err}
		p.log.Warn().Err(fetchErr).Str("session", sess.ID).Msg("result fetch failed")
		p.deliver(sess.ID, session.Errored, session.ErrorOutcome(fetchErr.Error()))
		return
	}
	outcome.ArtifactRef = res.ArtifactRef
	outcome.Confidence = res.Confidence
	outcome.PassedChallenges = res.PassedChallenges
	p.deliver(sess.ID, session.Success, outcome)
}

func (p *Poller) deliver(sessionID string, status session.Status, outcome *session.Outcome) {
	p.store.Advance(sessionID, status)
	p.log.Info().
		Str("session", sessionID).
		Str("status", status.String()).
		Msg("session finalized via poll channel")
	if p.onOutcome != nil {
		p.onOutcome(sessionID, outcome)
	}
}
