// Package router consumes raw push-channel frames, absorbs the transport's
// naming and shape inconsistencies in one place, and dispatches canonical
// transitions to the owning sessions. Nothing downstream of Normalize ever
// sees a dotted-vs-underscored name or a nested payload.
package router

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Transition is a canonical push-channel event. The five session transitions
// carry state; the two control acks never touch session state.
type Transition int

const (
	TransitionUnknown Transition = iota
	TransitionRequested
	TransitionProcessing
	TransitionSuccess
	TransitionFailed
	TransitionError
	TransitionSubscriptionAck
	TransitionChannelError
)

var transitionNames = map[Transition]string{
	TransitionRequested:       "requested",
	TransitionProcessing:      "processing",
	TransitionSuccess:         "success",
	TransitionFailed:          "failed",
	TransitionError:           "error",
	TransitionSubscriptionAck: "subscription_ack",
	TransitionChannelError:    "channel_error",
}

func (t Transition) String() string {
	if n, ok := transitionNames[t]; ok {
		return n
	}
	return "unknown"
}

// IsControl reports whether the transition is a control ack with no session
// effect.
func (t Transition) IsControl() bool {
	return t == TransitionSubscriptionAck || t == TransitionChannelError
}

// IsTerminal reports whether the transition ends a session.
func (t Transition) IsTerminal() bool {
	return t == TransitionSuccess || t == TransitionFailed || t == TransitionError
}

// canonicalTransitions maps normalized event names. The transport emits both
// dotted and underscored variants of each; names are canonicalized to dots
// before lookup.
var canonicalTransitions = map[string]Transition{
	"verification.requested":  TransitionRequested,
	"verification.processing": TransitionProcessing,
	"verification.success":    TransitionSuccess,
	"verification.failed":     TransitionFailed,
	"verification.error":      TransitionError,
	"subscription.ack":        TransitionSubscriptionAck,
	"channel.error":           TransitionChannelError,
}

// Event is one normalized push event. CorrelationID may be empty: some
// deployments omit it on terminal events, and the router compensates with
// permissive matching.
type Event struct {
	Transition       Transition
	CorrelationID    string
	Confidence       float64
	PassedChallenges []string
	FailedChallenges []string
	ArtifactRef      string
	Reason           string
}

// Normalize parses one raw frame into a canonical Event. It accepts the
// event name under "event" or "type", the payload flat or under "payload",
// and success fields optionally nested one level deeper under "result".
func Normalize(data []byte) (*Event, error) {
	var frame map[string]interface{}
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed push frame: %w", err)
	}

	name := stringField(frame, "event")
	if name == "" {
		name = stringField(frame, "type")
	}
	if name == "" {
		return nil, fmt.Errorf("push frame has no event name")
	}

	canonical := strings.ToLower(strings.ReplaceAll(name, "_", "."))
	transition, ok := canonicalTransitions[canonical]
	if !ok {
		return nil, fmt.Errorf("unrecognized push event %q", name)
	}

	payload := frame
	if nested, ok := frame["payload"].(map[string]interface{}); ok {
		payload = nested
	}
	// Success payloads occur both flat and nested under a result sub-object.
	result := payload
	if nested, ok := payload["result"].(map[string]interface{}); ok {
		result = nested
	}

	ev := &Event{
		Transition:       transition,
		CorrelationID:    firstString(frame, payload, "correlationId"),
		Confidence:       floatField(result, "confidence"),
		PassedChallenges: stringSlice(result, "passedChallenges"),
		FailedChallenges: stringSlice(result, "failedChallenges"),
		ArtifactRef:      stringField(result, "artifactRef"),
		Reason:           reasonField(result),
	}
	return ev, nil
}

// reasonField tries the known aliases in order.
func reasonField(payload map[string]interface{}) string {
	for _, key := range []string{"reason", "message", "error"} {
		if v := stringField(payload, key); v != "" {
			return v
		}
	}
	return ""
}

func firstString(frame, payload map[string]interface{}, key string) string {
	if v := stringField(frame, key); v != "" {
		return v
	}
	return stringField(payload, key)
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]interface{}, key string) float64 {
	v, _ := m[key].(float64)
	return v
}

func stringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
