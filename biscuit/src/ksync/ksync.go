// Package ksync implements kernel locks and condition variables: the
// shared positive/even/odd identifier scheme, and the two different
// wait-queue wake orders the original syscall_sync.c uses (locks wake
// the earliest waiter; cvars wake the most recently added one). This
// package only tracks which pid should be woken -- actually moving a
// PCB between queues and context-switching into it is the proc/ksys
// layer's job.
package ksync

import (
	"sync"

	"kdefs"
)

// Registry allocates lock and cvar ids from the shared positive id
// space: locks are even starting at 2, cvars are odd starting at 1.
// Pipes (kpipe.Registry) take the negative half of the space. Together
// the three registries let a bare id be dispatched to the right
// reclaim path purely by sign and parity, mirroring
// locks_num/cvars_num/total_pipes in kernelStart.c.
type Registry struct {
	mu        sync.Mutex
	nextLock  int
	nextCvar  int
	locks     map[int]*Lock
	cvars     map[int]*Cvar
}

func NewRegistry() *Registry {
	return &Registry{
		nextLock: 2,
		nextCvar: 1,
		locks:    make(map[int]*Lock),
		cvars:    make(map[int]*Cvar),
	}
}

// Lock is a kernel mutex. Owner is 0 when unlocked (pid 0 belongs to
// the idle process, which never takes a lock).
type Lock struct {
	ID      int
	Owner   int32
	waiters []int32 // head-insert; Release wakes the tail (earliest waiter)
}

// Cvar is a condition variable, always used together with a caller-held
// lock id (the caller's responsibility, not tracked here, matching
// Yalnix's CvarWait(cvar_id, lock_id) contract).
type Cvar struct {
	ID      int
	waiters []int32 // head-insert; Signal wakes the head (most recent waiter)
}

func (r *Registry) LockInit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextLock
	r.nextLock += 2
	r.locks[id] = &Lock{ID: id}
	return id
}

func (r *Registry) CvarInit() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextCvar
	r.nextCvar += 2
	r.cvars[id] = &Cvar{ID: id}
	return id
}

func (r *Registry) Lock(id int) (*Lock, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	return l, ok
}

func (r *Registry) Cvar(id int) (*Cvar, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cvars[id]
	return c, ok
}

// ReclaimLock succeeds only if pid currently holds id and nobody is
// waiting on it -- mirrors reclaim_lock in syscall_sync.c, which checks
// curr_pcb->lock_id == lock_id (the caller must hold the lock, not find
// it free) before releasing the id.
func (r *Registry) ReclaimLock(id int, pid int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		return kdefs.Err("reclaim of unknown lock id")
	}
	if l.Owner != pid || len(l.waiters) != 0 {
		return kdefs.Err("reclaim of a lock not held by the caller, or with waiters")
	}
	delete(r.locks, id)
	return nil
}

func (r *Registry) ReclaimCvar(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cvars[id]
	if !ok {
		return kdefs.Err("reclaim of unknown cvar id")
	}
	if len(c.waiters) != 0 {
		return kdefs.Err("reclaim of cvar still in use")
	}
	delete(r.cvars, id)
	return nil
}

// TryAcquire attempts to take the lock for pid, returning true on
// success. On failure, pid is added to the front of the wait queue and
// the caller must block pid.
func (l *Lock) TryAcquire(pid int32) bool {
	if l.Owner == 0 {
		l.Owner = pid
		return true
	}
	l.waiters = append([]int32{pid}, l.waiters...)
	return false
}

// Release frees the lock and, if anyone was waiting, hands ownership
// directly to the earliest waiter (the tail of the head-insert list),
// returning that pid so the caller can wake it. Mirrors
// kernel_lock_release's FIFO hand-off in syscall_sync.c.
func (l *Lock) Release(pid int32) (woken int32, ok bool, err error) {
	if l.Owner != pid {
		return 0, false, kdefs.Err("release of lock not held by caller")
	}
	if len(l.waiters) == 0 {
		l.Owner = 0
		return 0, false, nil
	}
	last := len(l.waiters) - 1
	next := l.waiters[last]
	l.waiters = l.waiters[:last]
	l.Owner = next
	return next, true, nil
}

// Wait adds pid to the cvar's wait queue; the caller is responsible for
// releasing lockID and blocking pid before any other process can run.
func (c *Cvar) Wait(pid int32) {
	c.waiters = append([]int32{pid}, c.waiters...)
}

// Signal wakes the most recently added waiter (the head of the
// head-insert list), matching kernel_cvar_signal's LIFO wake order.
func (c *Cvar) Signal() (woken int32, ok bool) {
	if len(c.waiters) == 0 {
		return 0, false
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	return w, true
}

// Broadcast wakes every waiter, returning them all.
func (c *Cvar) Broadcast() []int32 {
	all := c.waiters
	c.waiters = nil
	return all
}
