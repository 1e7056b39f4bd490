package session

import (
	"errors"
	"testing"
)

func TestStoreAdvance(t *testing.T) {
	store := NewStore()
	sess := New("did:example:alice", "policy-1")
	store.Put(sess)

	snap, changed := store.Advance(sess.ID, Requested)
	if !changed {
		t.Fatal("Advance(Requested) should change status")
	}
	if snap.Status != Requested {
		t.Errorf("Status = %s, want requested", snap.Status)
	}

	// A late informational update after a terminal state must be ignored.
	if _, changed = store.Advance(sess.ID, Success); !changed {
		t.Fatal("Advance(Success) should change status")
	}
	snap, changed = store.Advance(sess.ID, Processing)
	if changed {
		t.Error("Advance after terminal state should be a no-op")
	}
	if snap.Status != Success {
		t.Errorf("Status = %s, want success", snap.Status)
	}
}

func TestStoreAdvanceUnknownSession(t *testing.T) {
	store := NewStore()
	if _, changed := store.Advance("nope", Requested); changed {
		t.Error("Advance on unknown session should report no change")
	}
}

func TestStoreCopiesOnRead(t *testing.T) {
	store := NewStore()
	sess := New("did:example:bob", "")
	store.Put(sess)

	snap, ok := store.Get(sess.ID)
	if !ok {
		t.Fatal("Get should find session")
	}
	snap.Status = Failed

	again, _ := store.Get(sess.ID)
	if again.Status != Idle {
		t.Error("mutating a Get snapshot must not affect the store")
	}
}

func TestStoreActiveCount(t *testing.T) {
	store := NewStore()
	a := New("a", "")
	b := New("b", "")
	store.Put(a)
	store.Put(b)
	store.Advance(a.ID, Success)

	if got := store.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}

	store.Remove(b.ID)
	if got := store.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount after Remove = %d, want 0", got)
	}
}

func TestOutcomeErrMapping(t *testing.T) {
	if err := SuccessOutcome(0.9, nil, "ref").Err(); err != nil {
		t.Errorf("success outcome Err() = %v, want nil", err)
	}

	var vf *VerificationFailedError
	if err := FailureOutcome("bad signature", []string{"c1"}).Err(); !errors.As(err, &vf) {
		t.Errorf("failure outcome Err() = %T, want VerificationFailedError", err)
	}

	var exp *ExpiredError
	if err := FailureOutcome(ReasonExpired, nil).Err(); !errors.As(err, &exp) {
		t.Errorf("expired outcome Err() = %T, want ExpiredError", err)
	}

	if err := TimedOutOutcome().Err(); !errors.Is(err, ErrSessionTimedOut) {
		t.Errorf("timeout outcome Err() = %v, want ErrSessionTimedOut", err)
	}

	var ve *VerificationError
	if err := ErrorOutcome("boom").Err(); !errors.As(err, &ve) {
		t.Errorf("error outcome Err() = %T, want VerificationError", err)
	}
}
