package session

import (
	"time"

	"github.com/google/uuid"
)

// Session is one tracked verification attempt against the oracle, keyed by a
// correlation id. It is mutated concurrently by the push-event router and the
// poller; all mutation goes through the Store, and terminal transitions are
// arbitrated by the reconciliation gate before any side effect runs.
type Session struct {
	ID            string     `json:"id"`
	CorrelationID string     `json:"correlationId"`
	SubjectRef    string     `json:"subjectRef"`
	PolicyRef     string     `json:"policyRef,omitempty"`
	Status        Status     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// New creates an Idle session for the given subject with fresh ids.
func New(subjectRef, policyRef string) *Session {
	return &Session{
		ID:            uuid.NewString(),
		CorrelationID: uuid.NewString(),
		SubjectRef:    subjectRef,
		PolicyRef:     policyRef,
		Status:        Idle,
		CreatedAt:     time.Now(),
	}
}

// Clone returns a deep copy so the caller can mutate it independently.
func (s *Session) Clone() *Session {
	c := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
