// Package klimits enforces system-wide resource caps, adapted from the
// teacher's limits/limits.go (Syslimit_t/Sysatomic_t). The original
// Yalnix source has no such caps -- fork/pipe_init/lock_init allocate
// without bound; this is a SPEC_FULL supplement.
package klimits

import "sync/atomic"

// Counter is an atomically-checked resource counter: Take fails once
// Max is reached, mirroring Sysatomic_t's Given/Taken/Take/Give.
type Counter struct {
	cur int64
	Max int64
}

func NewCounter(max int64) *Counter {
	return &Counter{Max: max}
}

// Take reserves one unit, returning false if the limit is exhausted.
func (c *Counter) Take() bool {
	for {
		cur := atomic.LoadInt64(&c.cur)
		if cur >= c.Max {
			return false
		}
		if atomic.CompareAndSwapInt64(&c.cur, cur, cur+1) {
			return true
		}
	}
}

// Give releases one unit back.
func (c *Counter) Give() {
	atomic.AddInt64(&c.cur, -1)
}

func (c *Counter) Current() int64 {
	return atomic.LoadInt64(&c.cur)
}

// Limits groups the caps this kernel enforces, matching
// Syslimit_t's fields that are meaningful without a filesystem or
// network stack.
type Limits struct {
	Procs *Counter
	Pipes *Counter
	Locks *Counter
	Cvars *Counter
}

// Default matches the teacher's generous defaults in MkSysLimit --
// these exist to catch runaway allocation, not to model a realistic
// resource-constrained machine.
func Default() *Limits {
	return &Limits{
		Procs: NewCounter(1e4),
		Pipes: NewCounter(1e4),
		Locks: NewCounter(1e4),
		Cvars: NewCounter(1e4),
	}
}
