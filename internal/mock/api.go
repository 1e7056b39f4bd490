package mock

import (
	"context"
	"sync"
	"time"

	"github.com/verisync/verisync/internal/oracle"
)

// API is a scripted implementation of the oracle's status and result
// endpoints. Each session gets a queue of states; the final state repeats
// for every sample after the queue drains.
type API struct {
	mu          sync.Mutex
	states      map[string][]string
	expires     map[string]*time.Time
	statusErrs  map[string]int // transport errors to return before first sample
	statusCalls map[string]int
	result      *oracle.Result
	resultErrs  []error // returned in order before the result
	resultCalls int
}

func NewAPI() *API {
	return &API{
		states:      make(map[string][]string),
		expires:     make(map[string]*time.Time),
		statusErrs:  make(map[string]int),
		statusCalls: make(map[string]int),
	}
}

// Script sets the state sequence for a session. The last state repeats.
func (a *API) Script(sessionID string, states ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states[sessionID] = states
}

// SetExpiry attaches an expiresAt timestamp to every sample for the session.
func (a *API) SetExpiry(sessionID string, t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.expires[sessionID] = &t
}

// FailStatus makes the first n status calls for a session fail with a
// transport error.
func (a *API) FailStatus(sessionID string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statusErrs[sessionID] = n
}

// SetResult scripts the artifact fetch: every error in errs is returned
// first (one per call), then result.
func (a *API) SetResult(result *oracle.Result, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = result
	a.resultErrs = errs
}

// StatusCalls returns how many status samples were taken for the session.
func (a *API) StatusCalls(sessionID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusCalls[sessionID]
}

// ResultCalls returns how many artifact fetches were made.
func (a *API) ResultCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resultCalls
}

func (a *API) SessionStatus(ctx context.Context, sessionID string) (*oracle.StatusSample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.statusErrs[sessionID] > 0 {
		a.statusErrs[sessionID]--
		return nil, ErrConnClosed
	}

	a.statusCalls[sessionID]++
	queue := a.states[sessionID]
	state := "PENDING"
	switch {
	case len(queue) == 1:
		state = queue[0]
	case len(queue) > 1:
		state = queue[0]
		a.states[sessionID] = queue[1:]
	}

	return &oracle.StatusSample{
		SessionID: sessionID,
		State:     state,
		ExpiresAt: a.expires[sessionID],
		Timestamp: time.Now(),
	}, nil
}

func (a *API) FetchResult(ctx context.Context, subjectRef string) (*oracle.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resultCalls++
	if len(a.resultErrs) > 0 {
		err := a.resultErrs[0]
		a.resultErrs = a.resultErrs[1:]
		return nil, err
	}
	if a.result == nil {
		return nil, oracle.ErrResultNotReady
	}
	res := *a.result
	if res.SubjectRef == "" {
		res.SubjectRef = subjectRef
	}
	return &res, nil
}
