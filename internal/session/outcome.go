package session

// Outcome is the single terminal result delivered for a session. Exactly one
// Outcome is ever produced per session, by whichever observation channel wins
// the reconciliation gate.
type Outcome struct {
	Status           Status   `json:"status"`
	Confidence       float64  `json:"confidence,omitempty"`
	PassedChallenges []string `json:"passedChallenges,omitempty"`
	FailedChallenges []string `json:"failedChallenges,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	ArtifactRef      string   `json:"artifactRef,omitempty"`
}

// SuccessOutcome builds a Success outcome from the oracle's result fields.
func SuccessOutcome(confidence float64, passed []string, artifactRef string) *Outcome {
	return &Outcome{
		Status:           Success,
		Confidence:       confidence,
		PassedChallenges: passed,
		ArtifactRef:      artifactRef,
	}
}

// FailureOutcome builds a Failed outcome with a human-readable reason.
func FailureOutcome(reason string, failed []string) *Outcome {
	return &Outcome{Status: Failed, Reason: reason, FailedChallenges: failed}
}

// ErrorOutcome builds an Errored outcome carrying the error detail.
func ErrorOutcome(detail string) *Outcome {
	return &Outcome{Status: Errored, Reason: detail}
}

// TimedOutOutcome is the outcome for a session whose max poll duration
// elapsed without a terminal signal from either channel.
func TimedOutOutcome() *Outcome {
	return &Outcome{Status: TimedOut, Reason: "max duration elapsed"}
}

// Err maps a non-success outcome onto the error taxonomy. Success yields nil.
func (o *Outcome) Err() error {
	switch o.Status {
	case Success:
		return nil
	case Failed:
		if o.Reason == ReasonExpired {
			return &ExpiredError{Reason: o.Reason}
		}
		return &VerificationFailedError{Reason: o.Reason, FailedChallenges: o.FailedChallenges}
	case TimedOut:
		return ErrSessionTimedOut
	default:
		return &VerificationError{Detail: o.Reason}
	}
}
