package daq

import "sync/atomic"

// Flag is the one-bit handoff between the trigger handler and the
// acquisition loop. Several Sets between two TestAndClear calls collapse
// into a single observed event.
type Flag struct {
	pending atomic.Bool
}

// Set marks a period as elapsed. It is the only operation the trigger
// handler performs.
func (f *Flag) Set() {
	f.pending.Store(true)
}

// TestAndClear reports whether a period elapsed since the last call and
// clears the flag in the same atomic step.
func (f *Flag) TestAndClear() bool {
	return f.pending.Swap(false)
}
