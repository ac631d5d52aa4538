package zobject_test

import (
	"testing"

	"github.com/tholian/zinc/zcore"
	"github.com/tholian/zinc/zobject"
	"github.com/tholian/zinc/zstring"
)

func newTestCore(t *testing.T, version uint8) *zcore.Core {
	t.Helper()
	size := 0x1000
	raw := make([]uint8, size)
	raw[0x00] = version
	raw[0x0e] = uint8(size >> 8)
	raw[0x0f] = uint8(size)
	raw[0x04] = uint8(size >> 8)
	raw[0x05] = uint8(size)
	raw[0x0a] = 0x01 // object table base, filled in below once known
	raw[0x0b] = 0x00

	core, err := zcore.Load(raw)
	if err != nil {
		t.Fatalf("failed to build test core: %v", err)
	}
	core.ObjectTableBase = 0x0100
	return core
}

// writeShortName writes a property-table short name (v3 layout) at
// addr and returns the address immediately following it, where the
// first property entry belongs.
func writeShortName(core *zcore.Core, addr uint32, name string) uint32 {
	core.WriteByte(addr, 0) // zero-length name: tests don't exercise name decoding here
	return addr + 1
}

func TestZerothObjectRetrieval(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Retrieving object with id 0 should panic")
		}
	}()

	core := newTestCore(t, 3)
	zobject.GetObject(0, core, zstring.DefaultAlphabets())
}

func TestV3ObjectRetrieval(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	propTableAddr := uint32(0x0300)
	writeShortName(core, propTableAddr, "")
	core.WriteByte(propTableAddr+1, 0) // property table terminator

	objId := uint16(1)
	objectBase := uint32(core.ObjectTableBase) + 31*2 + uint32(objId-1)*9
	core.WriteHalfWord(objectBase, 0b0011_0000_0000_0000)   // attributes, bytes 0-1: bits 2,3 set
	core.WriteHalfWord(objectBase+2, 0)                     // attributes, bytes 2-3
	core.WriteByte(objectBase+4, 117)                       // parent
	core.WriteByte(objectBase+5, 101)                       // sibling
	core.WriteByte(objectBase+6, 252)                       // child
	core.WriteHalfWord(objectBase+7, uint16(propTableAddr)) // property pointer

	obj := zobject.GetObject(objId, core, alphabets)

	if obj.Parent != 117 {
		t.Errorf("parent = %d, want 117", obj.Parent)
	}
	if obj.Sibling != 101 {
		t.Errorf("sibling = %d, want 101", obj.Sibling)
	}
	if obj.Child != 252 {
		t.Errorf("child = %d, want 252", obj.Child)
	}
	if obj.PropertyPointer != propTableAddr {
		t.Errorf("property pointer = %#x, want %#x", obj.PropertyPointer, propTableAddr)
	}
	if !obj.TestAttribute(2) || !obj.TestAttribute(3) {
		t.Error("attributes 2 and 3 should be set")
	}
	if obj.TestAttribute(1) || obj.TestAttribute(4) {
		t.Error("attributes 1 and 4 should not be set")
	}
}

func TestV3PropertyRetrieval(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	propTableAddr := uint32(0x0300)
	cursor := writeShortName(core, propTableAddr, "")

	// Property 11, length 2: size byte = ((2-1)<<5)|11
	core.WriteByte(cursor, (1<<5)|11)
	core.WriteHalfWord(cursor+1, 0x88e5)
	cursor += 3

	// Property 6, length 1: size byte = ((1-1)<<5)|6
	core.WriteByte(cursor, 6)
	core.WriteByte(cursor+1, 0x85)
	cursor += 2

	core.WriteByte(cursor, 0) // terminator

	objId := uint16(1)
	objectBase := uint32(core.ObjectTableBase) + 31*2 + uint32(objId-1)*9
	core.WriteHalfWord(objectBase+7, uint16(propTableAddr))

	obj := zobject.GetObject(objId, core, alphabets)

	prop6 := obj.GetProperty(6, core)
	if prop6.Length != 1 {
		t.Errorf("property 6 length = %d, want 1", prop6.Length)
	}
	if prop6.Data[0] != 0x85 {
		t.Errorf("property 6 data = %#x, want 0x85", prop6.Data[0])
	}

	prop11 := obj.GetProperty(11, core)
	if prop11.Length != 2 {
		t.Errorf("property 11 length = %d, want 2", prop11.Length)
	}
	if prop11.Data[0] != 0x88 || prop11.Data[1] != 0xe5 {
		t.Errorf("property 11 data = %#x%x, want 0x88e5", prop11.Data[0], prop11.Data[1])
	}

	prop1 := obj.GetProperty(1, core)
	if prop1.Address != 0 {
		t.Error("property 1 shouldn't exist on this object")
	}
}

func TestAttributesV3(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	propTableAddr := uint32(0x0300)
	writeShortName(core, propTableAddr, "")
	core.WriteByte(propTableAddr+1, 0)

	objId := uint16(4)
	objectBase := uint32(core.ObjectTableBase) + 31*2 + uint32(objId-1)*9
	core.WriteHalfWord(objectBase+7, uint16(propTableAddr))

	forest := zobject.GetObject(objId, core, alphabets)

	forest.SetAttribute(10, core)
	if !forest.TestAttribute(10) {
		t.Error("setting attribute 10 didn't work")
	}

	forest.ClearAttribute(10, core)
	if forest.TestAttribute(10) {
		t.Error("clearing attribute 10 didn't work")
	}
}

func TestMoveAndRemoveObject(t *testing.T) {
	core := newTestCore(t, 3)
	alphabets := zstring.DefaultAlphabets()

	propTableAddr := uint32(0x0300)
	writeShortName(core, propTableAddr, "")
	core.WriteByte(propTableAddr+1, 0)

	// Three sibling-less objects: 1 is the room, 2 and 3 are items.
	for _, id := range []uint16{1, 2, 3} {
		objectBase := uint32(core.ObjectTableBase) + 31*2 + uint32(id-1)*9
		core.WriteHalfWord(objectBase+7, uint16(propTableAddr))
	}

	room := zobject.GetObject(1, core, alphabets)
	item2 := zobject.GetObject(2, core, alphabets)
	item3 := zobject.GetObject(3, core, alphabets)

	zobject.MoveObject(&item2, room.Id, core, alphabets)
	zobject.MoveObject(&item3, room.Id, core, alphabets)

	room = zobject.GetObject(1, core, alphabets)
	if room.Child != 3 {
		t.Fatalf("room's child = %d, want 3 (last inserted)", room.Child)
	}

	item3 = zobject.GetObject(3, core, alphabets)
	if item3.Sibling != 2 {
		t.Fatalf("item3's sibling = %d, want 2", item3.Sibling)
	}

	zobject.RemoveObject(&item3, core, alphabets)
	room = zobject.GetObject(1, core, alphabets)
	if room.Child != 2 {
		t.Fatalf("after removing item3, room's child = %d, want 2", room.Child)
	}
	item3 = zobject.GetObject(3, core, alphabets)
	if item3.Parent != 0 {
		t.Fatalf("removed object's parent = %d, want 0", item3.Parent)
	}
}
