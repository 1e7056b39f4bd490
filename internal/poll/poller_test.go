package poll_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verisync/verisync/internal/mock"
	"github.com/verisync/verisync/internal/oracle"
	"github.com/verisync/verisync/internal/poll"
	"github.com/verisync/verisync/internal/session"
)

type fakeGate struct {
	mu   sync.Mutex
	done map[string]bool
}

func newFakeGate() *fakeGate { return &fakeGate{done: make(map[string]bool)} }

func (g *fakeGate) TryComplete(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done[id] {
		return false
	}
	g.done[id] = true
	return true
}

func (g *fakeGate) complete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[id] = true
}

type pollHarness struct {
	poller   *poll.Poller
	api      *mock.API
	store    *session.Store
	gate     *fakeGate
	sess     *session.Session
	outcomes chan *session.Outcome
}

func newPollHarness(t *testing.T, maxDuration time.Duration) *pollHarness {
	t.Helper()
	h := &pollHarness{
		api:      mock.NewAPI(),
		store:    session.NewStore(),
		gate:     newFakeGate(),
		outcomes: make(chan *session.Outcome, 2),
	}
	h.sess = session.New("did:example:poll", "")
	h.store.Put(h.sess)
	h.poller = poll.New(h.api, h.api, h.store, h.gate,
		5*time.Millisecond, maxDuration, 5*time.Millisecond, zerolog.Nop())
	h.poller.OnOutcome(func(id string, o *session.Outcome) { h.outcomes <- o })
	return h
}

func (h *pollHarness) run(t *testing.T) *session.Outcome {
	t.Helper()
	done := make(chan struct{})
	go func() {
		h.poller.Run(context.Background(), h.sess)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
	select {
	case o := <-h.outcomes:
		return o
	default:
		return nil
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		state string
		want  poll.Classification
	}{
		{"VERIFIED", poll.Succeeded},
		{"success", poll.Succeeded},
		{"COMPLETED", poll.Succeeded},
		{"FAILED", poll.Failing},
		{"REJECTED", poll.Failing},
		{"EXPIRED", poll.Failing},
		{"IN_PROGRESS", poll.Pending},
		{"AWAITING_EVIDENCE", poll.Pending},
		{"PENDING_CHALLENGE", poll.Pending},
		{" pending ", poll.Pending},
		{"SOMETHING_NEW", poll.Unknown},
		{"", poll.Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, poll.Classify(tt.state), "state %q", tt.state)
	}
}

func TestPollSuccess(t *testing.T) {
	h := newPollHarness(t, time.Second)
	h.api.Script(h.sess.ID, "IN_PROGRESS", "IN_PROGRESS", "VERIFIED")
	h.api.SetResult(&oracle.Result{ArtifactRef: "art", Confidence: 0.9})

	o := h.run(t)
	require.NotNil(t, o)
	assert.Equal(t, session.Success, o.Status)
	assert.Equal(t, "art", o.ArtifactRef)
	assert.Equal(t, 0.9, o.Confidence)

	snap, _ := h.store.Get(h.sess.ID)
	assert.Equal(t, session.Success, snap.Status)
}

func TestPollFailure(t *testing.T) {
	h := newPollHarness(t, time.Second)
	h.api.Script(h.sess.ID, "PENDING", "REJECTED")

	o := h.run(t)
	require.NotNil(t, o)
	assert.Equal(t, session.Failed, o.Status)
	assert.Equal(t, "rejected", o.Reason)
}

func TestExpiryCompensation(t *testing.T) {
	h := newPollHarness(t, time.Second)
	// Upstream never transitions to an explicit expired state; the stale
	// expiresAt on a pending sample is final on its own.
	h.api.Script(h.sess.ID, "PENDING_CHALLENGE")
	h.api.SetExpiry(h.sess.ID, time.Now().Add(-time.Second))

	start := time.Now()
	o := h.run(t)
	require.NotNil(t, o)
	assert.Equal(t, session.Failed, o.Status)
	assert.Equal(t, session.ReasonExpired, o.Reason)
	assert.Less(t, time.Since(start), 200*time.Millisecond, "expiry should resolve within a poll interval")
}

func TestTimeout(t *testing.T) {
	h := newPollHarness(t, 40*time.Millisecond)
	h.api.Script(h.sess.ID, "AWAITING_EVIDENCE")

	o := h.run(t)
	require.NotNil(t, o)
	assert.Equal(t, session.TimedOut, o.Status)

	// Polling stops immediately after the timeout fires.
	calls := h.api.StatusCalls(h.sess.ID)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, h.api.StatusCalls(h.sess.ID))
}

func TestTransportErrorsDoNotStopPolling(t *testing.T) {
	h := newPollHarness(t, time.Second)
	h.api.FailStatus(h.sess.ID, 3)
	h.api.Script(h.sess.ID, "VERIFIED")
	h.api.SetResult(&oracle.Result{ArtifactRef: "art"})

	o := h.run(t)
	require.NotNil(t, o)
	assert.Equal(t, session.Success, o.Status)
}

func TestLosingPollerIsSilent(t *testing.T) {
	h := newPollHarness(t, time.Second)
	h.api.Script(h.sess.ID, "VERIFIED")
	h.gate.complete(h.sess.ID) // the push channel already won

	o := h.run(t)
	assert.Nil(t, o, "a losing poller's result is discarded silently")
}

func TestCancelStopsPolling(t *testing.T) {
	h := newPollHarness(t, time.Second)
	h.api.Script(h.sess.ID, "IN_PROGRESS")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.poller.Run(ctx, h.sess)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancellation")
	}
	assert.Empty(t, h.outcomes)
}
