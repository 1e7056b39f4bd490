package oracle

import (
	"context"
	"errors"
	"time"
)

// FetchResultOnce fetches the finalized artifact, retrying exactly once
// after retryDelay when the oracle reports it as not yet available. Any
// other failure, and a second not-ready, are returned to the caller as
// final.
func FetchResultOnce(ctx context.Context, api ResultAPI, subjectRef string, retryDelay time.Duration) (*Result, error) {
	res, err := api.FetchResult(ctx, subjectRef)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrResultNotReady) {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(retryDelay):
	}
	return api.FetchResult(ctx, subjectRef)
}
