// Harness drives a booted kernel against simulated hardware. A real
// clock runs independently of the CPU, so the harness models it as its
// own goroutine, supervised by an errgroup.Group, that fires TRAP_CLOCK
// on an interval until its context is cancelled. Terminals are not
// timed by the harness: the caller injects received bytes and transmit
// completion through DeliverReceive and CompleteTransmit. Kernel-internal
// state stays single-threaded behind ksys.Kernel.Mu; this file never
// touches kernel data structures except through trap.Dispatch, matching
// spec.md's Non-goal of no kernel preemption mid-trap.
package kernel

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"kdefs"
	"trap"
)

// Harness wires a Dispatcher to simulated clock and terminal hardware.
type Harness struct {
	Disp        *trap.Dispatcher
	ClockPeriod time.Duration
}

func NewHarness(disp *trap.Dispatcher, clockPeriod time.Duration) *Harness {
	return &Harness{Disp: disp, ClockPeriod: clockPeriod}
}

// Run drives the clock until ctx is cancelled. It does not drive
// terminal transmit completion; call CompleteTransmit (typically from a
// test's own simulated TtyTransmit implementation) when a transmit
// finishes.
func (h *Harness) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(h.ClockPeriod)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				h.Disp.Dispatch(trap.Request{Code: kdefs.TrapClock})
			}
		}
	})
	return g.Wait()
}

// DeliverReceive injects hardware-received bytes for a terminal,
// mirroring a TRAP_TTY_RECEIVE firing.
func (h *Harness) DeliverReceive(tty int, data []byte) {
	h.Disp.Dispatch(trap.Request{Code: kdefs.TrapTtyReceive, Tty: tty, Data: data})
}

// CompleteTransmit reports that tty's in-flight transmit finished,
// mirroring a TRAP_TTY_TRANSMIT firing.
func (h *Harness) CompleteTransmit(tty int) {
	h.Disp.Dispatch(trap.Request{Code: kdefs.TrapTtyTransmit, Tty: tty})
}
