package kmem

import "testing"

func TestAllocFreeConservesFrames(t *testing.T) {
	p := NewPool(16)
	if got := p.FreeCount(); got != 16 {
		t.Fatalf("FreeCount = %d, want 16", got)
	}
	var got []Frame
	for i := 0; i < 16; i++ {
		f, err := p.Alloc()
		if err != nil {
			t.Fatalf("Alloc %d: %v", i, err)
		}
		got = append(got, f)
	}
	if _, err := p.Alloc(); err == nil {
		t.Fatal("expected out-of-memory error on 17th alloc")
	}
	if got := p.FreeCount(); got != 0 {
		t.Fatalf("FreeCount = %d, want 0", got)
	}
	for _, f := range got {
		p.Free(f)
	}
	if got := p.FreeCount(); got != 16 {
		t.Fatalf("FreeCount after freeing all = %d, want 16", got)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	p := NewPool(4)
	f, err := p.Alloc()
	if err != nil {
		t.Fatal(err)
	}
	p.Free(f)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	p.Free(f)
}

func TestNoFrameIsDoubleOwned(t *testing.T) {
	p := NewPool(8)
	seen := make(map[Frame]bool)
	for i := 0; i < 8; i++ {
		f, err := p.Alloc()
		if err != nil {
			t.Fatal(err)
		}
		if seen[f] {
			t.Fatalf("frame %d allocated twice", f)
		}
		seen[f] = true
	}
}

func TestReserve(t *testing.T) {
	p := NewPool(4)
	if err := p.Reserve(0); err != nil {
		t.Fatal(err)
	}
	if err := p.Reserve(0); err == nil {
		t.Fatal("expected error reserving an already-reserved frame")
	}
	if got := p.FreeCount(); got != 3 {
		t.Fatalf("FreeCount = %d, want 3", got)
	}
}
