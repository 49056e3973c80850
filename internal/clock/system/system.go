// Package system provides the wall clock used to time runs.
package system

import "time"

// Clock implements crawler.Clock with time.Now in UTC.
type Clock struct{}

// New creates a new Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time, keeping the monotonic reading so
// durations between two calls are immune to wall clock jumps.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
