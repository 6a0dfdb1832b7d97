// Package kernel assembles every subsystem package into a bootable
// instance and drives it against simulated hardware. Start is adapted
// from KernelStart in kernelStart.c: it builds region 0, the terminal
// array, and the initial init/idle processes, then hands off to
// whatever program loader the caller supplies -- parsing the boot
// command line itself is out of scope here (spec.md Non-goals), so
// BootArgs arrives already parsed, exactly as KernelStart receives
// cmd_args[] already split by the bootloader.
package kernel

import (
	"kdefs"
	"kmem"
	"kpipe"
	"ksync"
	"ksys"
	"ktty"
	"kvm"
	"proc"
)

// Geometry for this kernel's fixed, small region-0 layout. Real values
// in the original are computed from the linked kernel image
// (_first_kernel_text_page etc, supplied by the loader); this port
// fixes small constants since there is no real linked image to measure.
const (
	kernelTextPages = 4
	kernelDataPages = 8
	origKernelBrk   = kernelTextPages + kernelDataPages
	stackBasePage   = kdefs.MaxPTLen - kdefs.KernelStackPages - 2
)

// BootArgs mirrors KernelStart's parameters: already-parsed command
// arguments and the physical memory size reported by the hardware.
type BootArgs struct {
	CmdArgs      []string
	PmemBytes    int
	NumTerminals int
}

// Loader is re-exported so callers of Start don't need to import ksys
// just to supply one.
type Loader = ksys.Loader

// Boot bundles everything KernelStart assembles: the live kernel, its
// region-0 page table and heap break, and the two bootstrap processes.
type Boot struct {
	Kernel    *ksys.Kernel
	Region0   *kvm.PageTable
	KernelBrk *kvm.Brk
	Init      *proc.PCB
	Idle      *proc.PCB
}

// Start builds a booted kernel instance. If loader is non-nil it is
// used to load the init program named by args.CmdArgs[0] (defaulting to
// "test/init", matching KernelStart's fallback) and the idle program
// "test/idle", mirroring the two LoadProgram calls in KernelStart.
func Start(args BootArgs, loader Loader) (*Boot, error) {
	nframes := args.PmemBytes / kdefs.PageSize
	pool := kmem.NewPool(nframes)

	region0 := kvm.NewPageTable()
	for i := 0; i < kernelTextPages; i++ {
		if err := region0.Map(pool, i, kdefs.ProtRead|kdefs.ProtExec); err != nil {
			return nil, err
		}
	}
	for i := kernelTextPages; i < origKernelBrk; i++ {
		if err := region0.Map(pool, i, kdefs.ProtRead|kdefs.ProtWrite); err != nil {
			return nil, err
		}
	}
	for i := stackBasePage; i < stackBasePage+kdefs.KernelStackPages; i++ {
		if err := region0.Map(pool, i, kdefs.ProtRead|kdefs.ProtWrite); err != nil {
			return nil, err
		}
	}
	kbrk := kvm.NewBrk(region0, pool, origKernelBrk, stackBasePage)

	n := args.NumTerminals
	if n <= 0 {
		n = 1
	}
	ttys := make([]*ktty.Terminal, n)
	for i := range ttys {
		ttys[i] = ktty.New(i)
	}

	idlePT := kvm.NewUserPageTable()
	idle := proc.NewPCB(0, idlePT) // pid 0 is reserved for idle, never allocated by Scheduler.NewPid
	idle.LastUserStackPage = kdefs.MaxPTLen - 1
	idle.UserBrk = kvm.NewBrk(idlePT, pool, 0, idle.LastUserStackPage)

	sched := proc.NewScheduler(idle)

	initPT := kvm.NewUserPageTable()
	init := proc.NewPCB(sched.NewPid(), initPT)
	init.LastUserStackPage = kdefs.MaxPTLen - 1
	init.UserBrk = kvm.NewBrk(initPT, pool, 0, init.LastUserStackPage)
	sched.Register(init)
	sched.SetRunning(init)

	k := &ksys.Kernel{
		Pool:  pool,
		Sched: sched,
		Pipes: kpipe.NewRegistry(),
		Sync:  ksync.NewRegistry(),
		Ttys:  ttys,
		Init:  init,
	}

	if loader != nil {
		prog := "test/init"
		var argv []string
		if len(args.CmdArgs) > 0 && args.CmdArgs[0] != "" {
			prog = args.CmdArgs[0]
			argv = args.CmdArgs
		}
		if err := loader.Load(init, prog, argv); err != nil {
			return nil, err
		}
		if err := loader.Load(idle, "test/idle", args.CmdArgs); err != nil {
			return nil, err
		}
	}

	return &Boot{Kernel: k, Region0: region0, KernelBrk: kbrk, Init: init, Idle: idle}, nil
}
