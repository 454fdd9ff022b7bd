package queue

import "time"

// Backoff constants. Persisted next_attempt_at values from earlier releases
// were computed with exactly this table, so the sequence is part of the
// on-disk contract: 15s, 30s, 60s, ... capped at 15 minutes, plus 5% spread.
const (
	BackoffBase = 15 * time.Second
	BackoffCap  = 15 * time.Minute
	// backoffJitterDivisor applies half of a 10% jitter band.
	backoffJitterDivisor = 20
)

// RetryDelay returns the delay before the next attempt after the given
// number of processing attempts (1-based). The delay doubles per attempt up
// to the cap, then a 5% fraction is added so rows failing together do not
// retry in lockstep with the dispatcher's own cadence.
func RetryDelay(attempts int) time.Duration {
	delay := BaseDelay(attempts)
	return delay + delay/backoffJitterDivisor
}

// BaseDelay returns the pre-jitter delay for the given attempt count.
func BaseDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= BackoffCap {
			return BackoffCap
		}
	}
	return delay
}
