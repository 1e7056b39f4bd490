package session

import (
	"errors"
	"fmt"
	"strings"
)

// ReasonExpired is the failure reason attached when client-side expiry
// compensation fires: the poll sample was still pending but its expiresAt
// had already passed.
const ReasonExpired = "expired"

var (
	// ErrConnectionTimeout is returned when the push-channel handshake does
	// not complete within the configured timeout. Only the first Connect
	// caller ever observes it; reconnects never surface it.
	ErrConnectionTimeout = errors.New("connection handshake timed out")

	// ErrNotConnected is returned by Subscribe when the push channel is down.
	ErrNotConnected = errors.New("push channel not connected")

	// ErrSessionTimedOut is returned when a session's max poll duration
	// elapses with no terminal signal from either channel.
	ErrSessionTimedOut = errors.New("session timed out awaiting verification")

	// ErrUnknownSession is returned for operations on a session id that is
	// not (or no longer) tracked.
	ErrUnknownSession = errors.New("unknown session")

	// ErrCancelled is returned to a waiter whose session was cancelled.
	ErrCancelled = errors.New("session cancelled")
)

// SubscriptionError wraps a failed subscribe control write.
type SubscriptionError struct {
	SessionID string
	Err       error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe %s: %v", e.SessionID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// VerificationFailedError is the terminal error for a session the oracle
// rejected, carrying the per-challenge breakdown when the oracle provided one.
type VerificationFailedError struct {
	Reason           string
	FailedChallenges []string
}

func (e *VerificationFailedError) Error() string {
	if len(e.FailedChallenges) == 0 {
		return fmt.Sprintf("verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("verification failed: %s (challenges: %s)",
		e.Reason, strings.Join(e.FailedChallenges, ", "))
}

// VerificationError is the terminal error for a session the oracle aborted
// with an error signal, or whose result artifact could not be fetched.
type VerificationError struct {
	Detail string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification error: %s", e.Detail)
}

// ExpiredError marks a session finalized by client-side expiry compensation.
type ExpiredError struct {
	Reason string
}

func (e *ExpiredError) Error() string {
	return "session expired before verification completed"
}

// ResultFetchError wraps a failed result-artifact fetch after the single
// fixed-delay retry was exhausted.
type ResultFetchError struct {
	SubjectRef string
	Err        error
}

func (e *ResultFetchError) Error() string {
	return fmt.Sprintf("fetch result for %s: %v", e.SubjectRef, e.Err)
}

func (e *ResultFetchError) Unwrap() error { return e.Err }
