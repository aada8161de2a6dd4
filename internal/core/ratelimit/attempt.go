package ratelimit

import "time"

// Attempt is one point in the retry sequence of a logical call. Values are
// replaced, never mutated.
type Attempt struct {
	// Number is 0 for the first try.
	Number          int
	LastErr         error
	CumulativeDelay time.Duration
}

// InitialAttempt starts a new retry sequence.
func InitialAttempt() Attempt {
	return Attempt{}
}

// Next records a failure and the delay waited before the following try.
func (a Attempt) Next(err error, delay time.Duration) Attempt {
	if delay < 0 {
		delay = 0
	}
	return Attempt{
		Number:          a.Number + 1,
		LastErr:         err,
		CumulativeDelay: a.CumulativeDelay + delay,
	}
}
