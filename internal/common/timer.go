// Package common provides timing and resource helpers shared across packages.
package common

import (
	"fmt"
	"time"
)

// Timer measures a single span of work with an optional name.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// NewNamedTimer creates a new timer with the given name.
func NewNamedTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Name returns the timer name (empty string if unnamed).
func (t *Timer) Name() string {
	return t.name
}

// String returns a formatted string representation of the timer.
func (t *Timer) String() string {
	if t.name != "" {
		return fmt.Sprintf("%s: %v", t.name, t.duration)
	}
	return fmt.Sprintf("%v", t.duration)
}

// Timing is one named, stopped span.
type Timing struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Timings records spans in the order they finished. Not safe for concurrent use.
type Timings []Timing

// Track runs fn and appends its duration under name.
func (ts *Timings) Track(name string, fn func() error) error {
	t := NewNamedTimer(name)
	err := fn()
	*ts = append(*ts, Timing{Name: name, Duration: t.Stop()})
	return err
}

// Total sums all recorded durations.
func (ts Timings) Total() time.Duration {
	var total time.Duration
	for _, t := range ts {
		total += t.Duration
	}
	return total
}

// Millis returns the spans as a name to milliseconds map.
func (ts Timings) Millis() map[string]float64 {
	out := make(map[string]float64, len(ts))
	for _, t := range ts {
		out[t.Name] = float64(t.Duration.Microseconds()) / 1000
	}
	return out
}
