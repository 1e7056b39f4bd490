package session

import (
	"encoding/json"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Idle, false},
		{Requested, false},
		{Processing, false},
		{Success, true},
		{Failed, true},
		{Errored, true},
		{TimedOut, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatusCanAdvanceTo(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"idle to requested", Idle, Requested, true},
		{"idle straight to success", Idle, Success, true},
		{"requested to processing", Requested, Processing, true},
		{"processing to failed", Processing, Failed, true},
		{"processing back to requested", Processing, Requested, false},
		{"terminal absorbs success", Success, Failed, false},
		{"terminal absorbs timeout", TimedOut, Success, false},
		{"no self transition", Processing, Processing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
				t.Errorf("CanAdvanceTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(TimedOut)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"timed_out"` {
		t.Errorf("Marshal(TimedOut) = %s, want %q", data, "timed_out")
	}

	var s Status
	if err := json.Unmarshal([]byte(`"processing"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != Processing {
		t.Errorf("Unmarshal(processing) = %s, want processing", s)
	}
}
