package mock

import (
	"time"

	"github.com/verisync/verisync/internal/oracle"
)

// Oracle bundles a fake transport and scripted endpoints into a complete
// in-process oracle for demos and smoke runs. Every subscribed session
// receives a push success event after Delay; polling sees IN_PROGRESS until
// then.
type Oracle struct {
	Dialer *Dialer
	API    *API
}

// NewOracle builds a mock oracle that verifies every subject after delay.
func NewOracle(delay time.Duration) *Oracle {
	dialer := NewDialer()
	api := NewAPI()
	api.SetResult(&oracle.Result{
		ArtifactRef:      "mock-artifact",
		Confidence:       0.97,
		PassedChallenges: []string{"signature", "freshness"},
	})

	dialer.OnSubscribe(func(correlationID string) {
		time.Sleep(delay)
		conn := dialer.LastConn()
		if conn == nil {
			return
		}
		conn.Push(map[string]interface{}{
			"event":         "verification.success",
			"correlationId": correlationID,
			"payload": map[string]interface{}{
				"confidence":       0.97,
				"passedChallenges": []string{"signature", "freshness"},
				"artifactRef":      "mock-artifact",
			},
		})
	})

	return &Oracle{Dialer: dialer, API: api}
}
