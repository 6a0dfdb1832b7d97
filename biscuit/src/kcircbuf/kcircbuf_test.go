package kcircbuf

import "testing"

func TestWriteReadRoundtrip(t *testing.T) {
	b := New(8)
	n, fit := b.Write([]byte("hello"))
	if n != 5 || !fit {
		t.Fatalf("Write = (%d, %v), want (5, true)", n, fit)
	}
	out := make([]byte, 5)
	if got := b.Read(out); got != 5 || string(out) != "hello" {
		t.Fatalf("Read = %d %q, want 5 \"hello\"", got, out)
	}
	if !b.Empty() {
		t.Fatal("expected buffer empty after draining")
	}
}

func TestWriteFailsFastOnOverflow(t *testing.T) {
	b := New(4)
	n, fit := b.Write([]byte("toolong"))
	if fit {
		t.Fatal("expected fit=false when write exceeds capacity")
	}
	if n != 4 {
		t.Fatalf("Write wrote %d bytes, want 4 (capacity)", n)
	}
}

func TestReadNeverBlocksOrOverreads(t *testing.T) {
	b := New(8)
	b.Write([]byte("ab"))
	out := make([]byte, 5)
	n := b.Read(out)
	if n != 2 {
		t.Fatalf("Read = %d, want 2 (only what's buffered)", n)
	}
}

func TestWraparound(t *testing.T) {
	b := New(4)
	b.Write([]byte("ab"))
	drain := make([]byte, 2)
	b.Read(drain)
	n, fit := b.Write([]byte("cdef"))
	if !fit || n != 4 {
		t.Fatalf("Write after wraparound = (%d, %v), want (4, true)", n, fit)
	}
	out := make([]byte, 4)
	if got := b.Read(out); got != 4 || string(out) != "cdef" {
		t.Fatalf("Read after wraparound = %d %q, want 4 \"cdef\"", got, out)
	}
}
