package application

import "sync/atomic"

// Flag is an externally-mutated control token shared between the UI surface
// and the scheduler. The scheduler only ever polls it at defined
// checkpoints; control is cooperative, never preemptive.
type Flag struct {
	set atomic.Bool
}

// NewFlag constructs an unset flag.
func NewFlag() *Flag { return &Flag{} }

// Set updates the flag.
func (f *Flag) Set(value bool) {
	if f != nil {
		f.set.Store(value)
	}
}

// IsSet reports the current flag state. A nil flag reads as unset.
func (f *Flag) IsSet() bool {
	return f != nil && f.set.Load()
}
