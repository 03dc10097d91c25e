package worker

import "time"

// Clock abstracts time for the poll loop so tests can drive backoff and
// interrupt grace windows without real sleeping.
type Clock interface {
	Now() time.Time
	// After behaves like time.After: it returns a channel that receives a
	// single value once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the time package.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
