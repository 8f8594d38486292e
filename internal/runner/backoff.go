package runner

import "time"

const (
	// maxAttempts is the retry ceiling per batch window. A retry arriving
	// with this many attempts is abandoned instead of executed.
	maxAttempts = 15

	// backoffBase is the first retry delay; each subsequent retry doubles it.
	backoffBase = 3 * time.Second
)

// backoffDelay returns the delay before retrying a batch that has already
// failed attemptsSoFar times: 3·2^n seconds (3s, 6s, 12s, ...).
func backoffDelay(attemptsSoFar int) time.Duration {
	if attemptsSoFar < 0 {
		attemptsSoFar = 0
	}
	if attemptsSoFar >= maxAttempts {
		attemptsSoFar = maxAttempts - 1
	}
	return backoffBase << uint(attemptsSoFar)
}
