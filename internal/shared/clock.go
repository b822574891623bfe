package shared

import "time"

// Clock abstracts the wall clock so workflow timestamps are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock delegates to time.Now.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant. Intended for tests.
type FixedClock struct {
	At time.Time
}

// Now returns the configured instant.
func (c FixedClock) Now() time.Time {
	return c.At
}
