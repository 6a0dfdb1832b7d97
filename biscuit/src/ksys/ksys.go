// Package ksys implements the syscall layer: the handlers dispatched
// from trap.Dispatch on a TRAP_KERNEL trap. Adapted from syscall_core.c,
// syscall_sync.c, syscall_pipe.c, and syscall_IO.c, rewired onto this
// port's cooperative-goroutine stand-in for KernelContextSwitch (see
// proc.PCB.Park/Wake) instead of literal kernel-stack copying.
package ksys

import (
	"sync"

	"kdefs"
	"kmem"
	"kpipe"
	"ksync"
	"ktty"
	"kvm"
	"proc"
)

// Loader loads a program image into a freshly exec'd or forked process.
// The ELF loader itself is out of scope for this kernel core; Exec only
// consumes this interface, matching spec.md's Non-goals.
type Loader interface {
	Load(pcb *proc.PCB, path string, argv []string) error
}

// Kernel bundles every subsystem a syscall handler needs. There is
// exactly one Kernel per booted instance, built by package kernel's
// boot sequence.
type Kernel struct {
	Mu sync.Mutex // the one big kernel lock; no kernel preemption mid-syscall (spec.md Non-goals)

	Pool  *kmem.Pool
	Sched *proc.Scheduler
	Pipes *kpipe.Registry
	Sync  *ksync.Registry
	Ttys  []*ktty.Terminal
	Init  *proc.PCB // reparent target for orphaned children on exit
}

func (k *Kernel) terminal(id int) (*ktty.Terminal, error) {
	if id < 0 || id >= len(k.Ttys) {
		return nil, kdefs.Err("bad tty id")
	}
	return k.Ttys[id], nil
}

// switchAway is the common tail of every blocking syscall: park the
// caller, pick whoever is ready next (or idle), make them running, wake
// them if they're a real parked goroutine, release the kernel lock, and
// block until someone wakes the caller back up.
func (k *Kernel) switchAway(self *proc.PCB) {
	next := k.Sched.PickNext()
	k.Sched.SetRunning(next)
	if next != self {
		next.Wake()
	}
	k.Mu.Unlock()
	self.Park()
	k.Mu.Lock()
}

// Getpid returns the caller's pid. Mirrors kernel_getpid in
// syscall_core.c (trivially -- no blocking, no failure mode).
func (k *Kernel) Getpid(self *proc.PCB) int32 {
	return self.Pid
}

// Brk grows or shrinks the caller's user heap to addrPage. Mirrors the
// brk half of kernel_brk in syscall_core.c, reusing kvm.Brk the same
// way SetKernelBrk does for the kernel heap.
func (k *Kernel) Brk(self *proc.PCB, addrPage int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	if self.UserBrk == nil {
		return kdefs.ERROR
	}
	if err := self.UserBrk.SetBrk(addrPage); err != nil {
		return kdefs.ERROR
	}
	return kdefs.SUCCESS
}

// Delay blocks the caller for the given number of clock ticks. ticks<=0
// is a no-op success, matching kernel_delay's early return for
// non-positive delays in syscall_core.c.
func (k *Kernel) Delay(self *proc.PCB, ticks int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	if ticks <= 0 {
		return kdefs.SUCCESS
	}
	k.Sched.Block(self, kdefs.Delay{Ticks: ticks})
	k.switchAway(self)
	return kdefs.SUCCESS
}

// Fork creates a child PCB and returns the child's pid to the parent.
// It does not copy the parent's memory: the child's region-1 page table
// childPT and its kernel-stack frames are supplied by the caller and
// installed as given, and no parent page is copied into them here.
// The child never "returns from
// fork" as running code of its own -- without an ELF loader there is no
// user instruction stream to resume it into (spec.md Non-goals) -- the
// child PCB is simply created Ready and enqueued for whatever the test
// harness drives it to do next (typically Exec).
func (k *Kernel) Fork(self *proc.PCB, childPT *kvm.PageTable, stackFrames [kdefs.KernelStackPages]kmem.Frame) int32 {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	child := proc.NewPCB(k.Sched.NewPid(), childPT)
	child.KernelStackFrames = stackFrames
	child.Parent = self
	self.Children = append(self.Children, child)
	k.Sched.Register(child)
	k.Sched.Enqueue(child)
	return child.Pid
}

// Exec replaces self's program image via loader, matching kernel_exec's
// delegation to LoadProgram in the original -- the loader itself is out
// of scope here (see the Loader interface doc).
func (k *Kernel) Exec(self *proc.PCB, loader Loader, path string, argv []string) int {
	if err := loader.Load(self, path, argv); err != nil {
		return kdefs.ERROR
	}
	return kdefs.SUCCESS
}

// Exit moves self to Defunct, wakes a parent blocked in Wait, and
// reparents any live children to the kernel's init process so they are
// never left unreachable. Mirrors kernel_exit in syscall_core.c; the
// orphan-reparenting is a SPEC_FULL supplement (the original never
// reaps orphans at all) so no defunct PCB is ever unreachable garbage.
func (k *Kernel) Exit(self *proc.PCB, status int) {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	for _, c := range self.Children {
		c.Parent = k.Init
		if k.Init != nil {
			k.Init.Children = append(k.Init.Children, c)
		}
	}
	self.Children = nil
	k.Sched.Defunct(self, status)
	if self.Parent != nil {
		if _, blocked := self.Parent.Block.(kdefs.WaitChild); blocked {
			k.Sched.Unblock(self.Parent)
			self.Parent.Wake()
		}
	}
	next := k.Sched.PickNext()
	k.Sched.SetRunning(next)
	next.Wake()
}

// Wait reaps the first defunct child if one exists, otherwise blocks
// until one appears. Returns (childPid, status) or (ERROR, 0) if the
// caller has no children at all. Mirrors kernel_wait in syscall_core.c.
func (k *Kernel) Wait(self *proc.PCB) (int32, int) {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	for {
		if len(self.Children) == 0 {
			return kdefs.ERROR, 0
		}
		for i, c := range self.Children {
			if c.Status == proc.Defunct {
				self.Children = append(self.Children[:i], self.Children[i+1:]...)
				k.Sched.Forget(c)
				return c.Pid, c.ExitStatus
			}
		}
		k.Sched.Block(self, kdefs.WaitChild{})
		k.switchAway(self)
	}
}

// TtyRead blocks until input is available on tty, then copies at most
// len(out) bytes (stopping at the first newline) into out, returning
// the number of bytes copied. Mirrors kernel_tty_read in syscall_IO.c.
func (k *Kernel) TtyRead(self *proc.PCB, tty int, out []byte) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	t, err := k.terminal(tty)
	if err != nil {
		return kdefs.ERROR
	}
	for !t.HasInput() {
		k.Sched.Block(self, kdefs.TtyReadWait{Tty: tty})
		k.switchAway(self)
	}
	return t.Read(out)
}

// TtyWrite transmits all of buf to tty in MaxLine-sized chunks, blocking
// the caller first for any in-flight transmit to go idle and then for
// its own chunk to finish, matching kernel_tty_write's two block phases
// in syscall_IO.c.
func (k *Kernel) TtyWrite(self *proc.PCB, tty int, buf []byte, transmit func(tty int, chunk []byte)) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	t, err := k.terminal(tty)
	if err != nil {
		return kdefs.ERROR
	}
	total := len(buf)
	for len(buf) > 0 {
		// One-shot, not a retry loop: if FinishTransmit handed the
		// terminal to us directly, busy is already true and waiters
		// already popped, so calling TryBeginTransmit again here would
		// see busy, re-queue us in idleWaiters, and park us forever with
		// nothing left to wake us. Mirrors kernel_tty_write's single `if`
		// block in syscall_IO.c.
		if !t.TryBeginTransmit(self.Pid) {
			k.Sched.Block(self, kdefs.TtyWriteAwaitIdle{Tty: tty})
			k.switchAway(self)
		}
		n := len(buf)
		if n > ktty.MaxLine {
			n = ktty.MaxLine
		}
		chunk := buf[:n]
		buf = buf[n:]
		t.AwaitDone(self.Pid)
		k.Mu.Unlock()
		transmit(tty, chunk)
		k.Mu.Lock()
		k.Sched.Block(self, kdefs.TtyWriteAwaitDone{Tty: tty})
		k.switchAway(self)
	}
	return total
}

// TtyTransmitComplete is called from the TTY_TRANSMIT trap to report
// that tty's in-flight transmit finished; it wakes every writer waiting
// on that completion and, if another writer was waiting for the
// terminal to go idle, hands it straight to them. Mirrors the wakeup
// half of handle_trap_tty_transmit in trapHandlers.c.
func (k *Kernel) TtyTransmitComplete(tty int) {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	t, err := k.terminal(tty)
	if err != nil {
		return
	}
	done, nextOwner, hasNext := t.FinishTransmit()
	for _, pid := range done {
		if p, ok := k.Sched.Lookup(pid); ok {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
	if hasNext {
		if p, ok := k.Sched.Lookup(nextOwner); ok {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
}

// TtyReceive delivers hardware-received bytes into tty's line buffer and
// wakes any reader blocked on it. Mirrors the data half of
// handle_trap_tty_receive in trapHandlers.c.
func (k *Kernel) TtyReceive(tty int, data []byte) {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	t, err := k.terminal(tty)
	if err != nil {
		return
	}
	t.Receive(data)
	for _, p := range k.readyForTtyRead(tty) {
		k.Sched.Unblock(p)
		p.Wake()
	}
}

func (k *Kernel) readyForTtyRead(tty int) []*proc.PCB {
	var out []*proc.PCB
	k.Sched.EachBlocked(func(p *proc.PCB) {
		if w, ok := p.Block.(kdefs.TtyReadWait); ok && w.Tty == tty {
			out = append(out, p)
		}
	})
	return out
}

// PipeInit allocates a new pipe and returns its id.
func (k *Kernel) PipeInit() int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	return k.Pipes.Init()
}

// PipeRead blocks while the pipe is empty, then copies whatever is
// currently buffered (up to len(out)) without waiting for more.
// Mirrors kernel_pipe_read in syscall_pipe.c, including its documented
// asymmetry with PipeWrite (see kpipe.Pipe.Read's doc).
func (k *Kernel) PipeRead(self *proc.PCB, id int, out []byte) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	p, ok := k.Pipes.Get(id)
	if !ok {
		return kdefs.ERROR
	}
	for p.Empty() {
		k.Sched.Block(self, kdefs.PipeRead{PipeID: id})
		k.switchAway(self)
	}
	return p.Read(out)
}

// PipeWrite fails fast with ERROR if the pipe doesn't currently have
// room for all of in, rather than blocking the writer -- matching
// kernel_pipe_write's documented fail-fast behavior in syscall_pipe.c.
func (k *Kernel) PipeWrite(id int, in []byte) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	p, ok := k.Pipes.Get(id)
	if !ok {
		return kdefs.ERROR
	}
	n, err := p.Write(in)
	if err != nil {
		return kdefs.ERROR
	}
	for _, blocked := range k.readyForPipe(id) {
		k.Sched.Unblock(blocked)
		blocked.Wake()
	}
	return n
}

func (k *Kernel) readyForPipe(id int) []*proc.PCB {
	var out []*proc.PCB
	k.Sched.EachBlocked(func(p *proc.PCB) {
		if w, ok := p.Block.(kdefs.PipeRead); ok && w.PipeID == id {
			out = append(out, p)
		}
	})
	return out
}

// LockInit allocates a new lock and returns its id.
func (k *Kernel) LockInit() int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	return k.Sync.LockInit()
}

// LockAcquire blocks self until lock id is free, then takes it. Mirrors
// kernel_lock_acquire/kernel_lock_helper in syscall_sync.c.
func (k *Kernel) LockAcquire(self *proc.PCB, id int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	l, ok := k.Sync.Lock(id)
	if !ok {
		return kdefs.ERROR
	}
	if l.TryAcquire(self.Pid) {
		return kdefs.SUCCESS
	}
	// TryAcquire already queued us as a waiter above; Release hands
	// ownership straight to a waiter's pid (see ksync.Lock.Release), so
	// once woken we must not call TryAcquire again -- doing so would
	// find Owner already non-zero and re-queue us behind ourselves.
	for l.Owner != self.Pid {
		k.Sched.Block(self, kdefs.LockWait{LockID: id})
		k.switchAway(self)
	}
	return kdefs.SUCCESS
}

// LockRelease releases lock id, handing it directly to the earliest
// waiter if one exists and waking them. Mirrors kernel_lock_release in
// syscall_sync.c.
func (k *Kernel) LockRelease(self *proc.PCB, id int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	l, ok := k.Sync.Lock(id)
	if !ok {
		return kdefs.ERROR
	}
	woken, ok, err := l.Release(self.Pid)
	if err != nil {
		return kdefs.ERROR
	}
	if ok {
		if p, found := k.Sched.Lookup(woken); found {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
	return kdefs.SUCCESS
}

// CvarInit allocates a new condition variable and returns its id.
func (k *Kernel) CvarInit() int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	return k.Sync.CvarInit()
}

// CvarSignal wakes the most recently added waiter on cvar id, if any.
// Mirrors kernel_cvar_signal in syscall_sync.c. The woken process still
// needs to reacquire its lock itself, same as the original.
func (k *Kernel) CvarSignal(id int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	c, ok := k.Sync.Cvar(id)
	if !ok {
		return kdefs.ERROR
	}
	if pid, woke := c.Signal(); woke {
		if p, found := k.Sched.Lookup(pid); found {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
	return kdefs.SUCCESS
}

// CvarBroadcast wakes every waiter on cvar id. Mirrors
// kernel_cvar_broadcast in syscall_sync.c.
func (k *Kernel) CvarBroadcast(id int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	c, ok := k.Sync.Cvar(id)
	if !ok {
		return kdefs.ERROR
	}
	for _, pid := range c.Broadcast() {
		if p, found := k.Sched.Lookup(pid); found {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
	return kdefs.SUCCESS
}

// CvarWait atomically releases lockID and blocks self on cvarID, then
// reacquires lockID before returning -- mirrors kernel_cvar_wait in
// syscall_sync.c.
func (k *Kernel) CvarWait(self *proc.PCB, cvarID, lockID int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	c, ok := k.Sync.Cvar(cvarID)
	if !ok {
		return kdefs.ERROR
	}
	l, ok := k.Sync.Lock(lockID)
	if !ok {
		return kdefs.ERROR
	}
	woken, hasWoken, err := l.Release(self.Pid)
	if err != nil {
		return kdefs.ERROR
	}
	if hasWoken {
		if p, found := k.Sched.Lookup(woken); found {
			k.Sched.Unblock(p)
			p.Wake()
		}
	}
	c.Wait(self.Pid)
	k.Sched.Block(self, kdefs.CvarWait{CvarID: cvarID, LockID: lockID})
	k.switchAway(self)
	// Same hand-off rule as LockAcquire: TryAcquire once, then wait for
	// Release to hand us ownership directly rather than calling
	// TryAcquire again (it would just re-queue us behind ourselves).
	if !l.TryAcquire(self.Pid) {
		for l.Owner != self.Pid {
			k.Sched.Block(self, kdefs.LockWait{LockID: lockID})
			k.switchAway(self)
		}
	}
	return kdefs.SUCCESS
}

// Reclaim releases a pipe, lock, or cvar id back to its registry,
// dispatching purely on sign and parity. Mirrors kernel_reclaim and its
// reclaim_pipe/reclaim_lock/reclaim_cvar helpers in syscall_sync.c: a
// pipe refuses to reclaim while a reader is blocked on it, and a lock
// refuses unless self currently holds it with nobody waiting.
func (k *Kernel) Reclaim(self *proc.PCB, id int) int {
	k.Mu.Lock()
	defer k.Mu.Unlock()
	var err error
	switch {
	case id < 0:
		if len(k.readyForPipe(id)) > 0 {
			return kdefs.ERROR
		}
		err = k.Pipes.Reclaim(id)
	case id%2 == 0:
		err = k.Sync.ReclaimLock(id, self.Pid)
	default:
		err = k.Sync.ReclaimCvar(id)
	}
	if err != nil {
		return kdefs.ERROR
	}
	return kdefs.SUCCESS
}
