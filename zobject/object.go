// Package zobject implements the Z-Machine object table: object
// records (the v3 9-byte layout and the v4+ 14-byte layout), their
// attribute flags, parent/sibling/child tree links, and properties.
package zobject

import (
	"fmt"

	"github.com/tholian/zinc/zcore"
	"github.com/tholian/zinc/zstring"
)

// Object is a decoded view of one object table record. BaseAddress
// anchors every write-back method; Attributes packs all 32 (v3) or 48
// (v4+) attribute flags into the high bits of a uint64 so a single
// mask test works for both layouts.
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Name            string
	Attributes      uint64
	Parent          uint16
	Sibling         uint16
	Child           uint16
	PropertyPointer uint32
}

// GetObject decodes object objId out of core's object table. objId 0
// is the "no object" sentinel and is never a valid lookup.
func GetObject(objId uint16, core *zcore.Core, alphabets *zstring.Alphabets) Object {
	if objId == 0 {
		zcore.Raise(zcore.InvalidObject, 0, "object 0 does not exist")
	}

	base := uint32(core.ObjectTableBase)

	if core.Version >= 4 {
		objectBase := base + 63*2 + uint32(objId-1)*14
		propertyPtr := uint32(core.ReadHalfWord(objectBase + 12))
		name := decodeShortName(core, alphabets, propertyPtr)

		// 48 attribute bits, packed into the top 48 bits of the 64-bit
		// register so TestAttribute's `1 << (63 - attribute)` mask
		// works uniformly across both object layouts.
		attrs48 := uint64(core.ReadHalfWord(objectBase))<<32 |
			uint64(core.ReadHalfWord(objectBase+2))<<16 |
			uint64(core.ReadHalfWord(objectBase+4))

		return Object{
			Id:              objId,
			Name:            name,
			Attributes:      attrs48 << 16,
			Parent:          core.ReadHalfWord(objectBase + 6),
			Sibling:         core.ReadHalfWord(objectBase + 8),
			Child:           core.ReadHalfWord(objectBase + 10),
			PropertyPointer: propertyPtr,
			BaseAddress:     objectBase,
		}
	}

	objectBase := base + 31*2 + uint32(objId-1)*9
	propertyPtr := uint32(core.ReadHalfWord(objectBase + 7))
	name := decodeShortName(core, alphabets, propertyPtr)

	// 32 attribute bits, packed into the top 32 bits of the register.
	attrs32 := uint64(core.ReadHalfWord(objectBase))<<16 | uint64(core.ReadHalfWord(objectBase+2))

	return Object{
		Id:              objId,
		Name:            name,
		Attributes:      attrs32 << 32,
		Parent:          uint16(core.ReadByte(objectBase + 4)),
		Sibling:         uint16(core.ReadByte(objectBase + 5)),
		Child:           uint16(core.ReadByte(objectBase + 6)),
		PropertyPointer: propertyPtr,
		BaseAddress:     objectBase,
	}
}

func decodeShortName(core *zcore.Core, alphabets *zstring.Alphabets, propertyPtr uint32) string {
	if propertyPtr == 0 {
		return ""
	}
	nameLength := core.ReadByte(propertyPtr)
	if nameLength == 0 {
		return ""
	}
	name, _ := zstring.Decode(core, alphabets, propertyPtr+1, true)
	return name
}

// attributeCount is the number of flag bits this version's object
// record carries: 32 for v3, 48 for v4+.
func (o *Object) attributeCount(version uint8) uint16 {
	if version >= 4 {
		return 48
	}
	return 32
}

// TestAttribute reports whether attribute is set. Attributes are
// numbered from 0 (most significant bit of the first attribute byte).
func (o *Object) TestAttribute(attribute uint16) bool {
	mask := uint64(1) << (63 - attribute)
	return o.Attributes&mask == mask
}

// SetAttribute sets attribute and writes the updated flag bytes back
// to memory.
func (o *Object) SetAttribute(attribute uint16, core *zcore.Core) {
	o.checkAttribute(attribute, core.Version)
	mask := uint64(1) << (63 - attribute)
	o.Attributes |= mask
	o.writeAttributes(core)
}

// ClearAttribute clears attribute and writes the updated flag bytes
// back to memory.
func (o *Object) ClearAttribute(attribute uint16, core *zcore.Core) {
	o.checkAttribute(attribute, core.Version)
	mask := uint64(1) << (63 - attribute)
	o.Attributes &^= mask
	o.writeAttributes(core)
}

func (o *Object) checkAttribute(attribute uint16, version uint8) {
	if o.attributeCount(version) == 0 {
		return
	}
	if attribute >= o.attributeCount(version) {
		zcore.Raise(zcore.InvalidObject, uint32(o.BaseAddress), fmt.Sprintf("attribute %d out of range for object %d", attribute, o.Id))
	}
}

func (o *Object) writeAttributes(core *zcore.Core) {
	core.WriteHalfWord(o.BaseAddress, uint16(o.Attributes>>48))
	core.WriteHalfWord(o.BaseAddress+2, uint16(o.Attributes>>32))
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+4, uint16(o.Attributes>>16))
	}
}

// SetParent rewrites the object's parent link, in memory and in o.
func (o *Object) SetParent(parent uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+6, parent)
	} else {
		core.WriteByte(o.BaseAddress+4, uint8(parent))
	}
	o.Parent = parent
}

// SetSibling rewrites the object's sibling link, in memory and in o.
func (o *Object) SetSibling(sibling uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+8, sibling)
	} else {
		core.WriteByte(o.BaseAddress+5, uint8(sibling))
	}
	o.Sibling = sibling
}

// SetChild rewrites the object's child link, in memory and in o.
func (o *Object) SetChild(child uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+10, child)
	} else {
		core.WriteByte(o.BaseAddress+6, uint8(child))
	}
	o.Child = child
}

// RemoveObject detaches o from its parent's child list, relinking the
// parent's remaining children around it, and clears o's parent link.
// This preserves the object tree forest invariant: every object is
// either rootless or reachable from exactly one parent's child chain.
func RemoveObject(o *Object, core *zcore.Core, alphabets *zstring.Alphabets) {
	if o.Parent == 0 {
		return
	}
	parent := GetObject(o.Parent, core, alphabets)

	if parent.Child == o.Id {
		parent.SetChild(o.Sibling, core)
	} else {
		sibling := GetObject(parent.Child, core, alphabets)
		for sibling.Sibling != o.Id {
			sibling = GetObject(sibling.Sibling, core, alphabets)
		}
		sibling.SetSibling(o.Sibling, core)
	}

	o.SetParent(0, core)
	o.SetSibling(0, core)
}

// MoveObject detaches o from its current parent (if any) and inserts
// it as the first child of newParent, per spec.md's insert_obj
// semantics.
func MoveObject(o *Object, newParent uint16, core *zcore.Core, alphabets *zstring.Alphabets) {
	RemoveObject(o, core, alphabets)

	parent := GetObject(newParent, core, alphabets)
	o.SetSibling(parent.Child, core)
	o.SetParent(newParent, core)
	parent.SetChild(o.Id, core)
}
