// Package kaccnt tracks per-process CPU time, adapted from the
// teacher's accnt/accnt.go (Accnt_t). The original Yalnix PCB has no
// such accounting; this is a SPEC_FULL supplement grounded on the
// teacher's own idiom for it.
package kaccnt

import "sync"

// Accnt holds accumulated user and system nanoseconds for one process.
// Time units are caller-supplied ticks rather than wall-clock
// durations, since this kernel runs under a simulated clock (see
// kernel/harness.go), not a real one -- AddUser and AddSys take
// whatever tick granularity the clock source uses.
type Accnt struct {
	mu      sync.Mutex
	Userns  int64
	Sysns   int64
}

// AddUser records time spent running user code.
func (a *Accnt) AddUser(ns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Userns += ns
}

// AddSys records time spent in the kernel on this process's behalf.
func (a *Accnt) AddSys(ns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Sysns += ns
}

// Snapshot returns the current totals without mutating them.
func (a *Accnt) Snapshot() (userns, sysns int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Userns, a.Sysns
}
