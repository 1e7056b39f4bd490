package session

import "encoding/json"

// Status is the lifecycle state of a verification session. Transitions are
// strictly forward: Idle -> Requested -> Processing -> one of the four
// terminal states. Requested and Processing are informational and may be
// skipped entirely when the oracle jumps straight to a terminal signal.
type Status int

const (
	Idle Status = iota
	Requested
	Processing
	Success
	Failed
	Errored
	TimedOut
)

var statusNames = map[Status]string{
	Idle:       "idle",
	Requested:  "requested",
	Processing: "processing",
	Success:    "success",
	Failed:     "failed",
	Errored:    "error",
	TimedOut:   "timed_out",
}

var statusFromName = map[string]Status{
	"idle":       Idle,
	"requested":  Requested,
	"processing": Processing,
	"success":    Success,
	"failed":     Failed,
	"error":      Errored,
	"timed_out":  TimedOut,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	if v, ok := statusFromName[name]; ok {
		*s = v
	}
	return nil
}

// IsTerminal reports whether s is an absorbing state.
func (s Status) IsTerminal() bool {
	return s == Success || s == Failed || s == Errored || s == TimedOut
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// Terminal states absorb everything; informational states only move forward.
func (s Status) CanAdvanceTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return next > s
}
