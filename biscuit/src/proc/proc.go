// Package proc implements the process model: the PCB, the
// ready/blocked/defunct queues, and the round-robin, clock-preempted
// scheduler. Adapted from kernel_func.h's PCB_t/PCB_node_t and
// kernelHelper.c's initializePCB/addPCB/removePCB/find_ready_pcb, with
// the original's bag-of-flags block state replaced by kdefs.BlockReason
// (see Design Notes in spec.md §9) and linear list lookup replaced by
// khash (see SPEC_FULL.md §4.3).
package proc

import (
	"kaccnt"
	"kdefs"
	"khash"
	"kmem"
	"kvm"
)

// Status is the PCB's coarse run state.
type Status int

const (
	Ready Status = iota
	Running
	Blocked
	Defunct
)

// PCB is one process control block.
type PCB struct {
	Pid    int32
	Status Status

	PageTable         *kvm.PageTable
	KernelStackFrames [kdefs.KernelStackPages]kmem.Frame

	LastUserDataPage  int
	LastUserStackPage int
	UserBrk           *kvm.Brk

	Parent   *PCB
	Children []*PCB

	// resume is a one-shot wake latch: a blocking syscall parks the
	// calling goroutine on <-resume and whatever later satisfies the
	// block (a clock tick, a lock release, a cvar signal, a completed
	// transmit) sends on it. This is this Go port's stand-in for
	// KernelContextSwitch: instead of literally copying a suspended C
	// call stack into a different set of kernel-stack frames, the
	// suspended call is a parked goroutine, and waking it resumes
	// execution exactly where it left off.
	resume chan struct{}

	// ExitStatus is valid once Status == Defunct.
	ExitStatus int

	// Block is non-nil exactly when Status == Blocked. TtyID/LockID/etc
	// live inside the concrete BlockReason value rather than as loose
	// PCB fields, so "blocked for more than one reason" is unrepresentable.
	Block kdefs.BlockReason

	Accnt kaccnt.Accnt
}

// Scheduler owns the queues and the round-robin policy. There is
// exactly one Scheduler per kernel instance -- matching the original's
// global runningProcess/readyHead/blockedHead/defunctHead/idlePCB
// variables (see spec.md §9's note on global mutable state), but kept
// as fields on a value the boot sequence constructs instead of package
// globals, so tests can run multiple independent kernels.
type Scheduler struct {
	byPid   *khash.Table[int32, *PCB]
	ready   []*PCB
	blocked []*PCB
	running *PCB
	idle    *PCB
	nextPid int32
}

func NewScheduler(idle *PCB) *Scheduler {
	s := &Scheduler{
		byPid:   khash.New[int32, *PCB](),
		idle:    idle,
		nextPid: 1,
	}
	s.byPid.Set(idle.Pid, idle)
	return s
}

// NewPid allocates the next pid, matching the original's simple
// monotonic counter (no pid reuse -- the original never recycles pids
// either).
func (s *Scheduler) NewPid() int32 {
	p := s.nextPid
	s.nextPid++
	return p
}

// NewPCB allocates a PCB with its resume channel ready to use.
func NewPCB(pid int32, pt *kvm.PageTable) *PCB {
	return &PCB{Pid: pid, PageTable: pt, resume: make(chan struct{}, 1)}
}

// Park blocks the calling goroutine until Wake is called for this PCB.
// Callers must not hold the kernel lock while parked.
func (p *PCB) Park() {
	<-p.resume
}

// Wake signals a parked goroutine to resume. Safe to call even if the
// PCB isn't currently parked (the channel is buffered 1, latching the
// wake for the next Park call) -- mirrors the original's scheduler
// simply moving a PCB onto the ready queue regardless of exactly when
// its turn comes back around.
func (p *PCB) Wake() {
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Lookup(pid int32) (*PCB, bool) {
	return s.byPid.Get(pid)
}

func (s *Scheduler) Register(p *PCB) {
	s.byPid.Set(p.Pid, p)
}

func (s *Scheduler) Forget(p *PCB) {
	s.byPid.Del(p.Pid)
}

func (s *Scheduler) Running() *PCB {
	return s.running
}

// SetRunning installs p as the currently-running process without
// touching any queue -- used by the boot sequence and by the
// post-context-switch step of a syscall/trap handler once
// KernelContextSwitch has returned.
func (s *Scheduler) SetRunning(p *PCB) {
	p.Status = Running
	s.running = p
}

// Enqueue appends p to the tail of the ready queue, matching addPCB's
// append-at-tail behavior in kernelHelper.c.
func (s *Scheduler) Enqueue(p *PCB) {
	p.Status = Ready
	s.ready = append(s.ready, p)
}

// PickNext removes and returns the head of the ready queue (round
// robin), or the idle process if the ready queue is empty, matching
// find_ready_pcb's fallback to idlePCB.
func (s *Scheduler) PickNext() *PCB {
	if len(s.ready) == 0 {
		return s.idle
	}
	next := s.ready[0]
	s.ready = s.ready[1:]
	return next
}

// Block moves the currently-running process p onto the blocked queue
// with the given reason.
func (s *Scheduler) Block(p *PCB, reason kdefs.BlockReason) {
	p.Status = Blocked
	p.Block = reason
	s.blocked = append(s.blocked, p)
}

// Unblock removes p from the blocked queue and appends it to the ready
// queue, clearing its block reason. It is a no-op (returns false) if p
// isn't currently blocked, which callers can treat as "already woken".
func (s *Scheduler) Unblock(p *PCB) bool {
	for i, b := range s.blocked {
		if b == p {
			s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
			p.Block = nil
			s.Enqueue(p)
			return true
		}
	}
	return false
}

// Defunct moves p to the defunct state: it is removed from every
// queue but kept reachable through its parent's Children until Wait
// reaps it, matching the original's defunctHead list (kept around so a
// parent's later Wait call can collect the exit status).
func (s *Scheduler) Defunct(p *PCB, status int) {
	p.Status = Defunct
	p.ExitStatus = status
	p.Block = nil
	for i, q := range s.ready {
		if q == p {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}
	for i, q := range s.blocked {
		if q == p {
			s.blocked = append(s.blocked[:i], s.blocked[i+1:]...)
			break
		}
	}
	if s.running == p {
		s.running = nil
	}
}

// Tick runs one clock interrupt's worth of bookkeeping: every blocked
// process waiting on a Delay has its counter decremented, and any that
// reach zero are unblocked. Mirrors handle_trap_clock's delay-countdown
// loop in trapHandlers.c. It returns the pids that were woken so the
// caller can log/trace if desired.
func (s *Scheduler) Tick() []int32 {
	var woken []int32
	for _, p := range append([]*PCB(nil), s.blocked...) {
		d, ok := p.Block.(kdefs.Delay)
		if !ok {
			continue
		}
		d.Ticks--
		if d.Ticks <= 0 {
			s.Unblock(p)
			woken = append(woken, p.Pid)
			continue
		}
		p.Block = d
	}
	return woken
}

// EachBlocked calls f for every currently-blocked PCB. f must not call
// back into the scheduler.
func (s *Scheduler) EachBlocked(f func(*PCB)) {
	for _, p := range s.blocked {
		f(p)
	}
}

// ReadyLen and BlockedLen exist for tests asserting scheduler
// invariants (every non-running, non-defunct PCB is in exactly one of
// ready/blocked).
func (s *Scheduler) ReadyLen() int   { return len(s.ready) }
func (s *Scheduler) BlockedLen() int { return len(s.blocked) }
