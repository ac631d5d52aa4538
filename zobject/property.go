package zobject

import (
	"fmt"

	"github.com/tholian/zinc/zcore"
)

// Property is a decoded view of one entry in an object's property
// table.
type Property struct {
	Id                   uint8
	Length               uint8
	Data                 []uint8
	PropertyHeaderLength uint8
	Address              uint32
	DataAddress          uint32
}

// GetPropertyLength returns the length, in bytes, of the property
// whose data starts at addr — working backwards from the data to the
// size byte(s) that precede it, per S12.4.1/S12.4.2 of the Standard.
// addr == 0 is the "no such property" sentinel some opcodes pass
// through unchanged.
func GetPropertyLength(core *zcore.Core, addr uint32, version uint8) uint16 {
	if addr == 0 {
		return 0
	}

	prevByte := core.ReadByte(addr - 1)
	if version <= 3 {
		return uint16(prevByte>>5) + 1
	}
	if prevByte&0b1000_0000 != 0 {
		length := prevByte & 0b11_1111
		if length == 0 {
			return 64 // S12.4.2.1.1: a declared length of 0 means 64
		}
		return uint16(length)
	}
	return uint16((prevByte>>6)&1) + 1
}

// SetProperty stores value into propertyId on o. Only 1- and 2-byte
// properties may be set this way, per S2.17.2/S15's `put_prop`.
func (o *Object) SetProperty(propertyId uint8, value uint16, core *zcore.Core) {
	addr := o.propertyTableStart(core)

	for {
		if core.ReadByte(addr) == 0 {
			break
		}

		property := o.GetPropertyByAddress(addr, core)
		if property.Id == propertyId {
			switch property.Length {
			case 1:
				core.WriteByte(property.DataAddress, uint8(value))
			case 2:
				core.WriteHalfWord(property.DataAddress, value)
			default:
				zcore.Raise(zcore.InvalidProperty, addr, fmt.Sprintf("property %d has length %d, can't put_prop", propertyId, property.Length))
			}
			return
		}

		addr = property.DataAddress + uint32(property.Length)
	}

	zcore.Raise(zcore.InvalidProperty, addr, fmt.Sprintf("object %d has no property %d", o.Id, propertyId))
}

// GetProperty returns propertyId's entry on o, or a synthetic Property
// backed by the object table's default-property array when o doesn't
// define one, per S12.3.
func (o *Object) GetProperty(propertyId uint8, core *zcore.Core) Property {
	addr := o.propertyTableStart(core)

	for {
		if core.ReadByte(addr) == 0 {
			break
		}

		property := o.GetPropertyByAddress(addr, core)
		if property.Id == propertyId {
			return property
		}
		if property.Id < propertyId {
			// Properties are stored in descending id order; once we've
			// passed propertyId without a match it cannot appear later.
			break
		}

		addr = property.DataAddress + uint32(property.Length)
	}

	defaultAddr := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	return Property{
		Id:          propertyId,
		Length:      2,
		Data:        []uint8{core.ReadByte(defaultAddr), core.ReadByte(defaultAddr + 1)},
		DataAddress: defaultAddr,
	}
}

// GetPropertyByAddress decodes the property size byte(s) at
// propertyAddr into a Property.
func (o *Object) GetPropertyByAddress(propertyAddr uint32, core *zcore.Core) Property {
	sizeByte := core.ReadByte(propertyAddr)

	var length, id, headerLength uint8

	if core.Version >= 4 {
		id = sizeByte & 0b11_1111
		headerLength = 1
		if sizeByte&0b1000_0000 != 0 {
			secondByte := core.ReadByte(propertyAddr + 1)
			length = secondByte & 0b11_1111
			if length == 0 {
				length = 64 // S12.4.2.1.1
			}
			headerLength = 2
		} else {
			length = ((sizeByte >> 6) & 1) + 1
		}
	} else {
		length = (sizeByte >> 5) + 1
		id = sizeByte & 0b1_1111
		headerLength = 1
	}

	dataAddress := propertyAddr + uint32(headerLength)

	return Property{
		Id:                   id,
		Length:               length,
		Data:                 core.ReadSlice(dataAddress, dataAddress+uint32(length)),
		PropertyHeaderLength: headerLength,
		Address:              propertyAddr,
		DataAddress:          dataAddress,
	}
}

// GetNextProperty implements `get_next_prop`: propertyId 0 returns the
// first property's id (or 0 if the object has none); any other id
// returns the id of the property that follows it.
func (o *Object) GetNextProperty(propertyId uint8, core *zcore.Core) uint8 {
	if propertyId == 0 {
		addr := o.propertyTableStart(core)
		if core.ReadByte(addr) == 0 {
			return 0
		}
		return o.GetPropertyByAddress(addr, core).Id
	}

	property := o.GetProperty(propertyId, core)
	if property.Address == 0 {
		zcore.Raise(zcore.InvalidProperty, o.BaseAddress, fmt.Sprintf("get_next_prop: object %d has no property %d", o.Id, propertyId))
	}

	nextAddr := property.DataAddress + uint32(property.Length)
	if core.ReadByte(nextAddr) == 0 {
		return 0
	}
	return o.GetPropertyByAddress(nextAddr, core).Id
}

func (o *Object) propertyTableStart(core *zcore.Core) uint32 {
	nameLength := core.ReadByte(o.PropertyPointer)
	return o.PropertyPointer + 1 + uint32(nameLength)*2
}
