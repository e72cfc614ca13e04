package scheduler

import "time"

// retryController is a distinct, Manager-owned type implementing the
// exponential backoff policy spec.md §9's "Retry loop + cancellation +
// backoff" design note calls for, kept separate from the fetcher so
// the fetcher stays a single-attempt primitive.
type retryController struct {
	baseDelay  time.Duration
	maxRetries int
}

func newRetryController(baseDelaySeconds, maxRetries int) *retryController {
	if baseDelaySeconds <= 0 {
		baseDelaySeconds = 2
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryController{baseDelay: time.Duration(baseDelaySeconds) * time.Second, maxRetries: maxRetries}
}

// delay returns the backoff before retry attempt number n (1-indexed),
// doubling each time and capped at 5 minutes.
func (r *retryController) delay(attempt int) time.Duration {
	d := r.baseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > 5*time.Minute {
			return 5 * time.Minute
		}
	}
	return d
}

// exhausted reports whether count has reached the configured max_retries.
func (r *retryController) exhausted(count int) bool {
	return count >= r.maxRetries
}
