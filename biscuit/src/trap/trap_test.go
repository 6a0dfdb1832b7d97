package trap

import (
	"testing"

	"kdefs"
	"kmem"
	"ksys"
	"kvm"
	"proc"
)

func newFaultingPCB(pid int32, pool *kmem.Pool, brkPage, stackBasePage int) *proc.PCB {
	pt := kvm.NewUserPageTable()
	p := proc.NewPCB(pid, pt)
	p.UserBrk = kvm.NewBrk(pt, pool, brkPage, stackBasePage)
	p.LastUserStackPage = stackBasePage
	return p
}

func newTestDispatcher(nframes int) (*Dispatcher, *kmem.Pool) {
	pool := kmem.NewPool(nframes)
	k := &ksys.Kernel{
		Pool:  pool,
		Sched: proc.NewScheduler(proc.NewPCB(0, nil)),
	}
	return NewDispatcher(k), pool
}

// scenario: memory trap, stack growth -- a fault two pages below the
// current stack boundary grows the stack by mapping every page from the
// fault up to (not including) the old boundary in one go.
func TestMemoryTrapGrowsStackAcrossWindow(t *testing.T) {
	d, pool := newTestDispatcher(64)
	self := newFaultingPCB(1, pool, 4, 20)
	d.K.Sched.Register(self)
	d.K.Sched.SetRunning(self)

	faultPage := self.LastUserStackPage - 2 // 18, within the two-page window
	r := Request{Code: kdefs.TrapMemory, Self: self, FaultAddr: faultPage << kdefs.PageShift}

	if got := d.Dispatch(r); got != kdefs.SUCCESS {
		t.Fatalf("Dispatch(memory fault in window) = %d, want SUCCESS", got)
	}
	if self.LastUserStackPage != faultPage {
		t.Fatalf("LastUserStackPage = %d, want %d", self.LastUserStackPage, faultPage)
	}
	for p := faultPage; p < 20; p++ {
		if _, ok := self.PageTable.Get(p); !ok {
			t.Fatalf("page %d not mapped after stack growth", p)
		}
	}
	if self.Status == proc.Defunct {
		t.Fatal("process should still be alive after a successful stack growth")
	}
}

// scenario: memory trap, fault outside the two-page window -- a second
// fault landing three pages below the now-grown boundary falls outside the
// window relative to that new boundary and must kill the process with
// ERROR rather than silently growing the stack further.
func TestMemoryTrapOutsideWindowKillsProcess(t *testing.T) {
	d, pool := newTestDispatcher(64)
	self := newFaultingPCB(1, pool, 4, 20)
	d.K.Sched.Register(self)
	d.K.Sched.SetRunning(self)

	// First grow: fault at 18 (two pages below 20) succeeds, new boundary 18.
	r1 := Request{Code: kdefs.TrapMemory, Self: self, FaultAddr: 18 << kdefs.PageShift}
	if got := d.Dispatch(r1); got != kdefs.SUCCESS {
		t.Fatalf("Dispatch(first fault) = %d, want SUCCESS", got)
	}
	if self.LastUserStackPage != 18 {
		t.Fatalf("LastUserStackPage = %d, want 18", self.LastUserStackPage)
	}

	// A fault two pages below the new boundary (16) would still be inside
	// the window relative to 18 (18-2 == 16); go one page further to 15,
	// which is outside the window and must kill.
	r2 := Request{Code: kdefs.TrapMemory, Self: self, FaultAddr: 15 << kdefs.PageShift}
	if got := d.Dispatch(r2); got != kdefs.SUCCESS {
		// kill() itself always returns SUCCESS (the trap was handled by
		// terminating the process, matching handle_trap_illegal/math).
		t.Fatalf("Dispatch(out-of-window fault) = %d", got)
	}
	if self.Status != proc.Defunct {
		t.Fatal("expected process killed on an out-of-window memory fault")
	}
}

func TestMemoryTrapBelowBreakKillsProcess(t *testing.T) {
	d, pool := newTestDispatcher(64)
	self := newFaultingPCB(1, pool, 4, 20)
	d.K.Sched.Register(self)
	d.K.Sched.SetRunning(self)

	r := Request{Code: kdefs.TrapMemory, Self: self, FaultAddr: self.UserBrk.CurPage() << kdefs.PageShift}
	d.Dispatch(r)
	if self.Status != proc.Defunct {
		t.Fatal("expected process killed on a fault at or below the break")
	}
}
