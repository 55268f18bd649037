package assistant

import (
	"fmt"
	"time"
)

// BackpressureError reports a rate-limiter denial. Retrying is left to the caller.
type BackpressureError struct {
	WaitHint time.Duration
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("ai rate limit exceeded, retry in %s", e.WaitHint)
}
