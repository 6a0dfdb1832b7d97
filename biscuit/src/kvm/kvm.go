// Package kvm implements the virtual memory manager: region-0 (kernel)
// and region-1 (per-process user) page tables, the kernel heap brk, and
// the kernel-stack remap used on every context switch. Adapted from the
// teacher's vm/as.go (Vm_t) and from kernelHelper.c/kernelStart.c in the
// original source, simplified to this kernel's model: two fixed-size
// flat page tables per address space, every mapped page resident (no
// demand paging, no copy-on-write, no file-backed mappings -- all out of
// scope here), one frame pool shared by all address spaces.
package kvm

import (
	"sync"

	"kdefs"
	"kmem"
)

// PTE is one page table entry: a physical frame plus protection bits.
// Valid distinguishes an unmapped slot from frame 0 mapped with no bits.
type PTE struct {
	Valid bool
	Prot  int
	Frame kmem.Frame
}

// PageTable is a fixed-length, flat array of PTEs -- either region 0
// (kernel) or one process's region 1 (user). Matches MAX_PT_LEN from the
// original interface: no multi-level paging.
type PageTable struct {
	mu      sync.Mutex
	entries [kdefs.MaxPTLen]PTE
}

func NewPageTable() *PageTable {
	return &PageTable{}
}

// Map installs a valid mapping for the page table index idx, allocating
// a fresh frame from pool. Mirrors add_to_region0_pageTable /
// setupUserPageTable's per-page loop in kernelHelper.c.
func (pt *PageTable) Map(pool *kmem.Pool, idx int, prot int) error {
	if idx < 0 || idx >= kdefs.MaxPTLen {
		return kdefs.Err("page index out of range")
	}
	f, err := pool.Alloc()
	if err != nil {
		return err
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.entries[idx].Valid {
		pool.Free(f)
		return kdefs.Err("page already mapped")
	}
	pt.entries[idx] = PTE{Valid: true, Prot: prot, Frame: f}
	return nil
}

// MapFrame installs a valid mapping to a caller-supplied frame (used
// when remapping an already-allocated frame, e.g. the kernel-stack
// window, rather than allocating a new one).
func (pt *PageTable) MapFrame(idx int, prot int, f kmem.Frame) error {
	if idx < 0 || idx >= kdefs.MaxPTLen {
		return kdefs.Err("page index out of range")
	}
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.entries[idx] = PTE{Valid: true, Prot: prot, Frame: f}
	return nil
}

// Unmap clears a mapping and frees its frame back to pool. Mirrors the
// heap-shrink path of SetKernelBrk in kernelStart.c (bzero + invalidate
// + free_frames[i] = 0).
func (pt *PageTable) Unmap(pool *kmem.Pool, idx int) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e := pt.entries[idx]
	if !e.Valid {
		return kdefs.Err("unmap of unmapped page")
	}
	pt.entries[idx] = PTE{}
	pool.Free(e.Frame)
	return nil
}

func (pt *PageTable) Get(idx int) (PTE, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if idx < 0 || idx >= kdefs.MaxPTLen {
		return PTE{}, false
	}
	e := pt.entries[idx]
	return e, e.Valid
}

// FindEmpty returns the index of the first unmapped slot, mirroring
// find_empty_page in kernelHelper.c.
func (pt *PageTable) FindEmpty() (int, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	for i, e := range pt.entries {
		if !e.Valid {
			return i, true
		}
	}
	return 0, false
}

// Brk tracks the kernel heap break: the first unmapped page index after
// the kernel data segment, growing and shrinking the region-0 heap
// mapping as SetKernelBrk does in kernelStart.c.
type Brk struct {
	pt        *PageTable
	pool      *kmem.Pool
	curPage   int
	origPage  int
	stackBase int // first page index of the kernel stack window; brk may never reach it
}

func NewBrk(pt *PageTable, pool *kmem.Pool, origPage, stackBasePage int) *Brk {
	return &Brk{pt: pt, pool: pool, curPage: origPage, origPage: origPage, stackBase: stackBasePage}
}

// SetBrk grows or shrinks the kernel heap to addrPage (inclusive),
// mapping newly-covered pages R|W and unmapping pages dropped below the
// new break. Mirrors SetKernelBrk's VM-enabled branch in kernelStart.c.
func (b *Brk) SetBrk(addrPage int) error {
	if addrPage >= b.curPage {
		if addrPage >= b.stackBase-1 {
			return kdefs.Err("heap would grow into kernel stack")
		}
		for i := b.curPage; i <= addrPage; i++ {
			if err := b.pt.Map(b.pool, i, kdefs.ProtRead|kdefs.ProtWrite); err != nil {
				return err
			}
		}
		b.curPage = addrPage + 1
		return nil
	}
	if addrPage <= b.origPage {
		return kdefs.Err("brk set too low")
	}
	for i := addrPage; i < b.curPage; i++ {
		if err := b.pt.Unmap(b.pool, i); err != nil {
			return err
		}
	}
	b.curPage = addrPage
	return nil
}

func (b *Brk) CurPage() int { return b.curPage }

// NewUserPageTable builds an empty region-1 page table for a fresh
// process, mirroring setupUserPageTable in kernelHelper.c (which just
// mallocs MAX_PT_LEN invalid entries -- user mappings are added
// afterward as the program is loaded and as the stack/heap grow).
func NewUserPageTable() *PageTable {
	return NewPageTable()
}

// RemapKernelStack points the two region-0 kernel-stack PTEs at the
// frames belonging to the process being switched to, mirroring KCSwitch
// in kernelHelper.c. Because only one process's kernel stack is ever
// mapped into the window at a time, this is the entire mechanism that
// lets every PCB believe it has its own private kernel stack while
// sharing one fixed virtual window.
func RemapKernelStack(region0 *PageTable, stackBasePage int, frames [kdefs.KernelStackPages]kmem.Frame) {
	for i, f := range frames {
		region0.MapFrame(stackBasePage+i, kdefs.ProtRead|kdefs.ProtWrite, f)
	}
}

// CopyKernelStack clones the bytes of the currently-mapped kernel stack
// into a fresh pair of frames, mirroring KCCopy in kernelHelper.c (used
// once, at boot, to give the idle process its own copy of init's
// just-established kernel stack). The copy happens through a caller
// supplied read/write pair since this package has no notion of "the
// live memory backing a frame" -- that's the harness/hardware's job in
// a hosted simulation.
func CopyKernelStack(src, dst [kdefs.KernelStackPages][]byte) {
	for i := range src {
		copy(dst[i], src[i])
	}
}
