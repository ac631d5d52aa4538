// Package zcore implements the Z-Machine memory map: header parsing,
// bounds-checked byte/word access, the dynamic/static/high partition,
// and packed-address expansion.
package zcore

import "encoding/binary"

// ErrorKind classifies a fatal interpreter error, per the Z-Machine
// error taxonomy (memory violations, stack faults, malformed images...).
type ErrorKind int

const (
	MemoryViolation ErrorKind = iota
	StackUnderflow
	StackOverflow
	InvalidObject
	InvalidProperty
	UnknownOpcode
	BadReturn
	MalformedImage
)

func (k ErrorKind) String() string {
	switch k {
	case MemoryViolation:
		return "MemoryViolation"
	case StackUnderflow:
		return "StackUnderflow"
	case StackOverflow:
		return "StackOverflow"
	case InvalidObject:
		return "InvalidObject"
	case InvalidProperty:
		return "InvalidProperty"
	case UnknownOpcode:
		return "UnknownOpcode"
	case BadReturn:
		return "BadReturn"
	case MalformedImage:
		return "MalformedImage"
	default:
		return "Unknown"
	}
}

// MachineError is raised (via panic) by any component that detects a
// fatal condition. ZMachine.Run recovers it and reports it to the front
// end over the output channel rather than crashing the process.
type MachineError struct {
	Kind    ErrorKind
	PC      uint32
	Message string
}

func (e *MachineError) Error() string {
	return e.Kind.String() + ": " + e.Message
}

// Raise panics with a *MachineError. Every fatal condition in this
// interpreter goes through here so Machine.Run has one recovery path.
func Raise(kind ErrorKind, pc uint32, message string) {
	panic(&MachineError{Kind: kind, PC: pc, Message: message})
}

// Core is the byte-addressable story image: an immutable high/static
// region and a mutable dynamic region, plus the decoded header fields
// every other package reads.
type Core struct {
	bytes    []uint8
	original []uint8 // pristine copy of dynamic memory, used by Restart

	Version                          uint8
	FlagByte1                        uint8
	StatusBarTimeBased               bool
	ReleaseNumber                    uint16
	HighMemoryBase                   uint16
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	AbbreviationTableBase            uint16
	FileChecksum                     uint16
	InterpreterNumber                uint8
	InterpreterVersion               uint8
	ScreenHeightLines                uint8
	ScreenWidthChars                 uint8
	ScreenWidthUnits                 uint16
	ScreenHeightUnits                uint16
	FontHeight                       uint8
	FontWidth                        uint8
	RoutinesOffset                   uint16
	StringOffset                     uint16
	DefaultBackgroundColorNumber     uint8
	DefaultForegroundColorNumber     uint8
	TerminatingCharTableBase         uint16
	OutputStream3Width               uint16
	StandardRevisionNumber           uint16
	AlternativeCharSetBaseAddress    uint16
	ExtensionTableBaseAddress        uint16
	UnicodeExtensionTableBaseAddress uint16
}

// Load parses a story file image into a Core. It mutates the header's
// interpreter-identity and capability-flag bytes (as every interpreter
// does on load) and validates the version/length invariants from
// spec.md before returning.
func Load(storyBytes []uint8) (*Core, error) {
	if len(storyBytes) < 0x40 {
		return nil, &MachineError{Kind: MalformedImage, Message: "story file shorter than header"}
	}

	version := storyBytes[0x00]
	if version < 3 || version > 6 {
		return nil, &MachineError{Kind: MalformedImage, Message: "unsupported z-machine version (only v3-v6 are implemented)"}
	}

	bytes := make([]uint8, len(storyBytes))
	copy(bytes, storyBytes)

	bytes[0x1e] = 0x6 // Interpreter number: IBM PC, the closest widely-recognized match
	bytes[0x1f] = 0x1 // Interpreter version

	bytes[0x20] = 25 // Screen height, lines
	bytes[0x21] = 80 // Screen width, characters
	bytes[0x22] = 0
	bytes[0x23] = 80
	bytes[0x24] = 0
	bytes[0x25] = 25
	bytes[0x26] = 1 // Font height, units
	bytes[0x27] = 1 // Font width, units

	bytes[0x32] = 0x1 // Standard revision we claim to support
	bytes[0x33] = 0x2

	if version <= 3 {
		bytes[0x01] |= 0b0010_0000 // Split-screen available
	} else {
		// colors, bold, italic, split-screen; not pictures/fixed-default/timed-input
		bytes[0x01] |= 0b0010_1101
	}

	extensionTableBase := binary.BigEndian.Uint16(bytes[0x36:0x38])
	unicodeExtensionTableBase := uint16(0)
	if extensionTableBase != 0 && int(extensionTableBase)+8 <= len(bytes) {
		unicodeExtensionTableBase = binary.BigEndian.Uint16(bytes[extensionTableBase+6 : extensionTableBase+8])
	}

	staticBase := binary.BigEndian.Uint16(bytes[0x0e:0x10])
	highBase := binary.BigEndian.Uint16(bytes[0x04:0x06])
	if staticBase == 0 || int(staticBase) > len(bytes) || highBase < staticBase {
		return nil, &MachineError{Kind: MalformedImage, Message: "inconsistent static/high memory bounds in header"}
	}

	original := make([]uint8, staticBase)
	copy(original, bytes[:staticBase])

	return &Core{
		bytes:                            bytes,
		original:                         original,
		Version:                          version,
		FlagByte1:                        bytes[0x01],
		StatusBarTimeBased:               bytes[0x01]&0b0000_0010 == 0b0000_0010,
		ReleaseNumber:                    binary.BigEndian.Uint16(bytes[0x02:0x04]),
		HighMemoryBase:                   highBase,
		FirstInstruction:                 binary.BigEndian.Uint16(bytes[0x06:0x08]),
		DictionaryBase:                   binary.BigEndian.Uint16(bytes[0x08:0x0a]),
		ObjectTableBase:                  binary.BigEndian.Uint16(bytes[0x0a:0x0c]),
		GlobalVariableBase:               binary.BigEndian.Uint16(bytes[0x0c:0x0e]),
		StaticMemoryBase:                 staticBase,
		AbbreviationTableBase:            binary.BigEndian.Uint16(bytes[0x18:0x1a]),
		FileChecksum:                     binary.BigEndian.Uint16(bytes[0x1c:0x1e]),
		InterpreterNumber:                bytes[0x1e],
		InterpreterVersion:               bytes[0x1f],
		ScreenHeightLines:                bytes[0x20],
		ScreenWidthChars:                 bytes[0x21],
		ScreenWidthUnits:                 binary.BigEndian.Uint16(bytes[0x22:0x24]),
		ScreenHeightUnits:                binary.BigEndian.Uint16(bytes[0x24:0x26]),
		FontHeight:                       bytes[0x26],
		FontWidth:                        bytes[0x27],
		RoutinesOffset:                   binary.BigEndian.Uint16(bytes[0x28:0x2a]),
		StringOffset:                     binary.BigEndian.Uint16(bytes[0x2a:0x2c]),
		DefaultBackgroundColorNumber:     bytes[0x2c],
		DefaultForegroundColorNumber:     bytes[0x2d],
		TerminatingCharTableBase:         binary.BigEndian.Uint16(bytes[0x2e:0x30]),
		OutputStream3Width:               binary.BigEndian.Uint16(bytes[0x30:0x32]),
		StandardRevisionNumber:           binary.BigEndian.Uint16(bytes[0x32:0x34]),
		AlternativeCharSetBaseAddress:    binary.BigEndian.Uint16(bytes[0x34:0x36]),
		ExtensionTableBaseAddress:        extensionTableBase,
		UnicodeExtensionTableBaseAddress: unicodeExtensionTableBase,
	}, nil
}

// Restart reinitializes dynamic memory from the pristine copy captured
// at load time, per spec.md S6.2. Static/high memory never changes so
// it is left untouched.
func (c *Core) Restart() {
	copy(c.bytes[:c.StaticMemoryBase], c.original)
}

// FileLength returns the story file's declared length in bytes, per
// the version-dependent length-field scaling factor.
func (c *Core) FileLength() uint32 {
	var divisor uint32
	switch {
	case c.Version <= 3:
		divisor = 2
	case c.Version <= 5:
		divisor = 4
	default:
		divisor = 8
	}
	return uint32(binary.BigEndian.Uint16(c.bytes[0x1a:0x1c])) * divisor
}

func (c *Core) MemoryLength() uint32 {
	return uint32(len(c.bytes))
}

func (c *Core) SetDefaultColors(background, foreground uint8) {
	c.bytes[0x2c] = background
	c.bytes[0x2d] = foreground
	c.DefaultBackgroundColorNumber = background
	c.DefaultForegroundColorNumber = foreground
}

// ReadByte returns the byte at addr. Out-of-bounds reads are fatal,
// distinct from writes to read-only memory.
func (c *Core) ReadByte(addr uint32) uint8 {
	if addr >= uint32(len(c.bytes)) {
		Raise(MemoryViolation, addr, "read out of bounds")
	}
	return c.bytes[addr]
}

// ReadHalfWord returns the big-endian 16-bit word at addr.
func (c *Core) ReadHalfWord(addr uint32) uint16 {
	if addr+1 >= uint32(len(c.bytes)) {
		Raise(MemoryViolation, addr, "read out of bounds")
	}
	return binary.BigEndian.Uint16(c.bytes[addr : addr+2])
}

// ReadSlice returns a view of [start, end).
func (c *Core) ReadSlice(start, end uint32) []uint8 {
	if end > uint32(len(c.bytes)) || start > end {
		Raise(MemoryViolation, start, "slice out of bounds")
	}
	return c.bytes[start:end]
}

// WriteByte writes a single byte. Writes are only legal in the
// dynamic region [0, StaticMemoryBase).
func (c *Core) WriteByte(addr uint32, value uint8) {
	c.checkWritable(addr, 1)
	c.bytes[addr] = value
}

// WriteHalfWord writes a big-endian 16-bit word.
func (c *Core) WriteHalfWord(addr uint32, value uint16) {
	c.checkWritable(addr, 2)
	binary.BigEndian.PutUint16(c.bytes[addr:addr+2], value)
}

func (c *Core) checkWritable(addr uint32, length uint32) {
	if addr+length > uint32(len(c.bytes)) {
		Raise(MemoryViolation, addr, "write out of bounds")
	}
	if addr+length > uint32(c.StaticMemoryBase) {
		Raise(MemoryViolation, addr, "write to static/high memory")
	}
}

// UnpackRoutineAddress expands a packed routine address to a byte
// address per spec.md S3's version-dependent factor.
func (c *Core) UnpackRoutineAddress(packed uint16) uint32 {
	return c.unpack(packed, c.RoutinesOffset)
}

// UnpackStringAddress expands a packed string address to a byte
// address.
func (c *Core) UnpackStringAddress(packed uint16) uint32 {
	return c.unpack(packed, c.StringOffset)
}

func (c *Core) unpack(packed uint16, offset uint16) uint32 {
	switch {
	case c.Version < 4:
		return 2 * uint32(packed)
	case c.Version < 6:
		return 4 * uint32(packed)
	case c.Version < 8:
		return 4*uint32(packed) + 8*uint32(offset)
	default:
		return 8 * uint32(packed)
	}
}
