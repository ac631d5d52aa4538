package ztable

import (
	"testing"

	"github.com/tholian/zinc/zcore"
)

func newTestCore(t *testing.T) *zcore.Core {
	t.Helper()
	size := 0x400
	raw := make([]uint8, size)
	raw[0x00] = 3
	raw[0x0e] = uint8(size >> 8)
	raw[0x0f] = uint8(size)
	raw[0x04] = uint8(size >> 8)
	raw[0x05] = uint8(size)

	core, err := zcore.Load(raw)
	if err != nil {
		t.Fatalf("failed to build test core: %v", err)
	}
	return core
}

func TestPrintTable(t *testing.T) {
	core := newTestCore(t)
	text := "abcdefghij"
	for i, c := range text {
		core.WriteByte(0x100+uint32(i), uint8(c))
	}

	// width 5, height 2, skip 0: two rows of 5 chars.
	got := PrintTable(core, 0x100, 5, 2, 0)
	want := "abcde\nfghij"
	if got != want {
		t.Fatalf("PrintTable = %q, want %q", got, want)
	}
}

func TestPrintTableWithSkip(t *testing.T) {
	core := newTestCore(t)
	// Row 0: "ab" then 1 skipped byte 'X'; row 1: "cd".
	core.WriteByte(0x100, 'a')
	core.WriteByte(0x101, 'b')
	core.WriteByte(0x102, 'X')
	core.WriteByte(0x103, 'c')
	core.WriteByte(0x104, 'd')

	got := PrintTable(core, 0x100, 2, 2, 1)
	want := "ab\ncd"
	if got != want {
		t.Fatalf("PrintTable with skip = %q, want %q", got, want)
	}
}

func TestScanTableByteField(t *testing.T) {
	core := newTestCore(t)
	values := []uint8{10, 20, 30, 40}
	for i, v := range values {
		core.WriteByte(0x100+uint32(i), v)
	}

	addr := ScanTable(core, 30, 0x100, uint16(len(values)), 1)
	if addr != 0x102 {
		t.Fatalf("ScanTable found %#x, want %#x", addr, 0x102)
	}

	if addr := ScanTable(core, 99, 0x100, uint16(len(values)), 1); addr != 0 {
		t.Fatalf("ScanTable should not find missing value, got %#x", addr)
	}
}

func TestScanTableWordField(t *testing.T) {
	core := newTestCore(t)
	words := []uint16{0x1000, 0x2000, 0x3000}
	for i, w := range words {
		core.WriteHalfWord(0x100+uint32(i*2), w)
	}

	addr := ScanTable(core, 0x2000, 0x100, uint16(len(words)), 0b1000_0010)
	if addr != 0x102 {
		t.Fatalf("ScanTable found %#x, want %#x", addr, 0x102)
	}
}

func TestCopyTableNonOverlapping(t *testing.T) {
	core := newTestCore(t)
	for i := 0; i < 4; i++ {
		core.WriteByte(0x100+uint32(i), uint8(i+1))
	}

	CopyTable(core, 0x100, 0x200, 4)

	for i := 0; i < 4; i++ {
		if got := core.ReadByte(0x200 + uint32(i)); got != uint8(i+1) {
			t.Fatalf("byte %d = %d, want %d", i, got, i+1)
		}
	}
}

func TestCopyTableZerosWhenSecondIsZero(t *testing.T) {
	core := newTestCore(t)
	for i := 0; i < 4; i++ {
		core.WriteByte(0x100+uint32(i), 0xff)
	}

	CopyTable(core, 0x100, 0, 4)

	for i := 0; i < 4; i++ {
		if got := core.ReadByte(0x100 + uint32(i)); got != 0 {
			t.Fatalf("byte %d = %d, want 0", i, got)
		}
	}
}

func TestCopyTableOverlappingPositiveSize(t *testing.T) {
	core := newTestCore(t)
	// [1,2,3,4] copied one byte forward, overlapping: dest must see the
	// ORIGINAL source values since size is positive.
	for i := 0; i < 4; i++ {
		core.WriteByte(0x100+uint32(i), uint8(i+1))
	}

	CopyTable(core, 0x100, 0x101, 4)

	want := []uint8{1, 1, 2, 3, 4}
	for i, w := range want {
		if got := core.ReadByte(0x100 + uint32(i)); got != w {
			t.Fatalf("byte %d = %d, want %d", i, got, w)
		}
	}
}
