package service

import "time"

// BackoffPolicy computes the retry delay curve for failed jobs: exponential
// doubling from Base, capped at Max. One policy instance is shared by the
// whole worker so every retry follows the same curve.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before the next attempt. attempt is the number of
// attempts already made, so the first retry (attempt=1) waits Base.
// Parameters:
//   - attempt: attempts consumed so far, >= 1.
// Returns:
//   - time.Duration: delay before the job becomes due again.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		return p.Max
	}
	return d
}

// NextRunAt returns the absolute due time for the next attempt.
func (p BackoffPolicy) NextRunAt(now time.Time, attempt int) time.Time {
	return now.Add(p.Delay(attempt))
}
