// Package clock abstracts time so retry backoff and event timestamps can be
// driven deterministically in tests.
package clock

import "time"

// Clock is the time source used by the retry decorator and the counter
// service.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// After defers to time.After.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sleep defers to time.Sleep.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}
