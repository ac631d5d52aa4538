// Package zmachine implements the fetch-decode-dispatch loop: operand
// and variable access, call frames, object/property/dictionary/table
// opcodes (delegated to their own packages), text I/O over a channel
// protocol a front end drives, and the extended save/undo/colour/
// unicode opcodes v4 and later add.
package zmachine

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tholian/zinc/dictionary"
	"github.com/tholian/zinc/zcore"
	"github.com/tholian/zinc/zobject"
	"github.com/tholian/zinc/zstring"
	"github.com/tholian/zinc/ztable"
)

// StatusBar is sent whenever the v3 status line's contents change.
type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

// Quit and Restart are terminal notifications: Quit means the story
// called `quit` or ran off the end of its program; Restart means
// `restart` was executed and the front end should reload the image.
type Quit bool
type Restart bool

type EraseWindowRequest int

// EraseLineRequest asks the front end to blank from the cursor to the
// end of the current line in the active window (`erase_line`, S7.1.1
// opcode VAR:238 counted 14 here).
type EraseLineRequest bool

// InputRequest precedes a blocking line read; ValidTerminators lists
// the ZSCII codes that may end input: always a newline first, then any
// codes from a story's custom terminating-character table.
type InputRequest struct {
	ValidTerminators []uint8
}

// InputResponse answers an InputRequest or a read_char wait. Text
// carries a typed line (empty for a bare function-key press);
// TerminatingKey carries whichever key actually ended the input, 0
// meaning the default newline.
type InputResponse struct {
	Text           string
	TerminatingKey uint8
}

// RuntimeError reports an unrecoverable condition (the converted form
// of a *zcore.MachineError) the front end should display and then
// stop driving the machine.
type RuntimeError string

// Warning reports a non-fatal oddity a front end may log and
// continue past.
type Warning string

// SoundEffectRequest carries a `sound_effect` call's operands; the
// front end decides how (or whether) to play it.
type SoundEffectRequest struct {
	SoundNumber int
	Effect      int
	Routine     uint16
}

type StateChangeRequest int

const (
	WaitForInput     StateChangeRequest = iota
	WaitForCharacter StateChangeRequest = iota
	Running          StateChangeRequest = iota
)

type MemoryStreamData struct {
	baseAddress uint32
	ptr         uint32
}

type Streams struct {
	Screen           bool
	Transcript       bool
	Memory           bool
	MemoryStreamData []MemoryStreamData
	CommandScript    bool
}

// ZMachine is the running interpreter: memory and header access
// (Core), the call-frame stack, the parsed dictionary and alphabets,
// the upper/lower window model, active output streams, the RNG, and
// the Screen (spec S6.1) that every opcode touching the outside world
// calls through.
type ZMachine struct {
	callStack        CallStack
	Core             zcore.Core
	dictionary       *dictionary.Dictionary
	screenModel      ScreenModel
	streams          Streams
	rng              *RNG
	Alphabets        *zstring.Alphabets
	screen           Screen
	transcript       strings.Builder
	commandScript    strings.Builder
	restartRequested bool
	UndoStates       InMemorySaveStateCache
}

func (z *ZMachine) packedAddress(originalAddress uint32, isZString bool) uint32 {
	switch {
	case z.Core.Version < 4:
		return 2 * originalAddress
	case z.Core.Version < 6:
		return 4 * originalAddress
	case z.Core.Version < 8:
		offset := z.Core.RoutinesOffset
		if isZString {
			offset = z.Core.StringOffset
		}
		return 4*originalAddress + 8*uint32(offset)
	case z.Core.Version == 8:
		return 8 * originalAddress
	default:
		zcore.Raise(zcore.MalformedImage, z.callStack.peek().pc, fmt.Sprintf("invalid story version %d", z.Core.Version))
		return 0
	}
}

func (z *ZMachine) Version() uint8 {
	return z.Core.Version
}

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.Core.ReadByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.Core.ReadHalfWord(frame.pc)
	frame.pc += 2
	return v
}

func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0: // Magic stack variable
		// The seven opcodes taking an indirect variable reference (inc, dec,
		// inc_chk, dec_chk, load, store, pull) read/write the stack in place
		// rather than popping it.
		if indirect {
			return currentCallFrame.peekTop()
		}
		return currentCallFrame.pop()
	case variable < 16: // Routine local variables
		if variable-1 >= uint8(len(currentCallFrame.locals)) {
			zcore.Raise(zcore.MemoryViolation, currentCallFrame.pc, "read of non-existent local variable")
		}
		return currentCallFrame.locals[variable-1]
	default: // Global variables
		return z.Core.ReadHalfWord(uint32(z.Core.GlobalVariableBase + 2*(uint16(variable)-16)))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	currentCallFrame := z.callStack.peek()

	switch {
	case variable == 0:
		if indirect {
			_ = currentCallFrame.pop()
		}
		currentCallFrame.push(value)
	case variable < 16:
		if variable-1 >= uint8(len(currentCallFrame.locals)) {
			zcore.Raise(zcore.MemoryViolation, currentCallFrame.pc, "write of non-existent local variable")
		}
		currentCallFrame.locals[variable-1] = value
	default:
		z.Core.WriteHalfWord(uint32(z.Core.GlobalVariableBase+2*(uint16(variable)-16)), value)
	}
}

// LoadRom builds a fresh interpreter from a story image. The three
// channels are wrapped in a ChannelScreen, the machine's one
// realization of the Screen interface (spec S6.1); every opcode that
// needs to reach the front end calls through machine.screen rather
// than touching a channel directly.
func LoadRom(storyFile []uint8, inputChannel <-chan InputResponse, saveRestoreChannel <-chan SaveRestoreResponse, outputChannel chan<- any) *ZMachine {
	core, err := zcore.Load(storyFile)
	if err != nil {
		zcore.Raise(zcore.MalformedImage, 0, err.Error())
	}

	machine := ZMachine{
		Core: *core,
		screen: ChannelScreen{
			output:      outputChannel,
			input:       inputChannel,
			saveRestore: saveRestoreChannel,
		},
		streams: Streams{
			Screen: true,
		},
	}

	machine.Alphabets = zstring.LoadAlphabets(&machine.Core)
	machine.dictionary = dictionary.ParseDictionary(&machine.Core, uint32(machine.Core.DictionaryBase), machine.Alphabets)

	machine.Core.SetDefaultColors(2, 9) // black background, white foreground (Standard S8.3.2 numbering)
	machine.screenModel = newScreenModel(White, Black)
	machine.rng = NewRNG(time.Now().UnixNano())

	if machine.Core.Version == 6 {
		routine := machine.packedAddress(uint32(machine.Core.FirstInstruction), false)
		machine.callStack.push(CallStackFrame{
			pc:     routine + 1,
			locals: make([]uint16, machine.Core.ReadByte(routine)),
		})
	} else {
		machine.callStack.push(CallStackFrame{
			pc:     uint32(machine.Core.FirstInstruction),
			locals: make([]uint16, 0),
		})
	}

	return &machine
}

func (z *ZMachine) call(opcode *Opcode, routineType RoutineType) {
	routineAddress := z.packedAddress(uint32(opcode.operands[0].Value(z)), false)

	if routineAddress == 0 {
		if routineType == function {
			z.writeVariable(decodeStoreTarget(z, z.callStack.peek()), 0, false)
		}
		return
	}

	localVariableCount := z.Core.ReadByte(routineAddress)
	routineAddress++

	locals := make([]uint16, localVariableCount)
	for i := 0; i < int(localVariableCount); i++ {
		if i+1 < len(opcode.operands) {
			locals[i] = opcode.operands[i+1].Value(z)
		} else if z.Core.Version < 5 {
			locals[i] = z.Core.ReadHalfWord(routineAddress)
		}

		if z.Core.Version < 5 {
			routineAddress += 2
		}
	}

	z.callStack.push(CallStackFrame{
		pc:              routineAddress,
		locals:          locals,
		routineStack:    make([]uint16, 0),
		routineType:     routineType,
		numValuesPassed: len(opcode.operands) - 1,
	})
}

func (z *ZMachine) handleBranch(frame *CallStackFrame, result bool) {
	branch := decodeBranchSuffix(z, frame)

	if result == branch.onTrue {
		switch branch.offset {
		case 0:
			z.retValue(0)
		case 1:
			z.retValue(1)
		default:
			frame.pc = uint32(int32(frame.pc) + branch.offset - 2)
		}
	}
}

type word struct {
	bytes             []uint8
	startingLocation  uint32
	dictionaryAddress uint16
}

func tokeniseSingleWord(bytes []uint8, wordStartPtr uint32, dict *dictionary.Dictionary, core *zcore.Core, alphabets *zstring.Alphabets) word {
	zstr := zstring.Encode([]rune(string(bytes)), core, alphabets)
	return word{
		bytes:             bytes,
		startingLocation:  wordStartPtr,
		dictionaryAddress: dict.Find(zstr),
	}
}

// Tokenise implements the `sread`/`tokenise` lexer: it splits the text
// buffer on spaces and the dictionary's own separator characters
// (which, unlike spaces, are kept as one-character words of their
// own), looks each word up, and writes the parse buffer. When
// leaveWordsBlank is set (the `tokenise` flag operand), an unrecognised
// word's dictionary-address slot is left untouched rather than zeroed,
// so a caller can pre-fill guesses.
func (z *ZMachine) Tokenise(baddr1 uint32, baddr2 uint32, dict *dictionary.Dictionary, leaveWordsBlank bool) {
	words := make([]word, 0)
	startingLocation := baddr1 + 1
	chrCount := uint32(0)
	if z.Core.Version >= 5 {
		chrCount = uint32(z.Core.ReadByte(startingLocation))
		startingLocation++
	}
	currentLocation := startingLocation

	for _, chr := range z.Core.ReadSlice(startingLocation, z.Core.MemoryLength()) {
		if (z.Core.Version < 5 && chr == 0) || (z.Core.Version >= 5 && currentLocation-(baddr1+2) >= chrCount) {
			words = append(words, tokeniseSingleWord(z.Core.ReadSlice(startingLocation, currentLocation), startingLocation, dict, &z.Core, z.Alphabets))
			break
		}

		if chr == ' ' {
			words = append(words, tokeniseSingleWord(z.Core.ReadSlice(startingLocation, currentLocation), startingLocation, dict, &z.Core, z.Alphabets))
			startingLocation = currentLocation + 1
		} else {
			for _, separator := range dict.Header.InputCodes {
				if chr == separator {
					words = append(words, tokeniseSingleWord(z.Core.ReadSlice(startingLocation, currentLocation), startingLocation, dict, &z.Core, z.Alphabets))
					words = append(words, tokeniseSingleWord(z.Core.ReadSlice(currentLocation, currentLocation+1), currentLocation, dict, &z.Core, z.Alphabets))
					startingLocation = currentLocation + 1
					break
				}
			}
		}

		currentLocation++
	}

	if z.Core.ReadByte(baddr2) < uint8(len(words)) {
		zcore.Raise(zcore.MalformedImage, z.callStack.peek().pc, "more words tokenised than the parse buffer can hold")
	}

	parseBufferPtr := baddr2 + 1
	z.Core.WriteByte(parseBufferPtr, uint8(len(words)))
	parseBufferPtr++
	for _, w := range words {
		if w.dictionaryAddress != 0 || !leaveWordsBlank {
			z.Core.WriteHalfWord(parseBufferPtr, w.dictionaryAddress)
		}
		z.Core.WriteByte(parseBufferPtr+2, uint8(len(w.bytes)))
		z.Core.WriteByte(parseBufferPtr+3, uint8(w.startingLocation-baddr1))
		parseBufferPtr += 4
	}
}

func (z *ZMachine) retValue(val uint16) {
	oldFrame := z.callStack.pop()
	newFrame := z.callStack.peek()

	if oldFrame.routineType == function {
		destination := z.readIncPC(newFrame)
		z.writeVariable(destination, val, false)
	}
}

func (z *ZMachine) RemoveObject(objId uint16) {
	object := zobject.GetObject(objId, &z.Core, z.Alphabets)
	zobject.RemoveObject(&object, &z.Core, z.Alphabets)
}

func (z *ZMachine) MoveObject(objId uint16, newParent uint16) {
	object := zobject.GetObject(objId, &z.Core, z.Alphabets)
	zobject.MoveObject(&object, newParent, &z.Core, z.Alphabets)
}

// notifyScreen sends the current screen model to the front end. Most
// window/cursor/colour/style opcodes call this after mutating
// z.screenModel.
func (z *ZMachine) notifyScreen() {
	z.screen.ModelChanged(z.screenModel)
}

func (z *ZMachine) appendText(s string) {
	if z.streams.Memory {
		currentMemoryStream := &z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
		for _, r := range s {
			z.Core.WriteByte(currentMemoryStream.ptr, uint8(r))
			currentMemoryStream.ptr++
		}
		// S7.1.2.2: while stream 3 is selected, text goes nowhere else.
		return
	}

	if z.streams.Screen {
		z.screen.Print(s)

		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(s, "\n")
			z.screenModel.UpperWindowCursorY += len(lines) - 1
			z.screenModel.UpperWindowCursorX += len(lines[len(lines)-1])
			z.notifyScreen()
		}
	}

	if z.streams.Transcript {
		z.transcript.WriteString(s)
	}

	if z.streams.CommandScript {
		z.commandScript.WriteString(s)
	}
}

func (z *ZMachine) read(opcode *Opcode) {
	if z.Core.Version <= 3 {
		currentLocation := zobject.GetObject(z.readVariable(16, false), &z.Core, z.Alphabets)
		scoreOrTime := int(int16(z.readVariable(17, false)))
		z.screen.StatusChanged(StatusBar{
			PlaceName:   currentLocation.Name,
			Score:       scoreOrTime,
			Moves:       int(int16(z.readVariable(18, false))),
			IsTimeBased: z.Core.StatusBarTimeBased,
		})
	}

	validTerminators := []uint8{'\n'}
	if z.Core.Version >= 5 && z.Core.TerminatingCharTableBase != 0 {
		terminatingChrPtr := z.Core.TerminatingCharTableBase
		for {
			b := z.Core.ReadByte(uint32(terminatingChrPtr))
			if b == 0 {
				break
			} else if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
				validTerminators = append(validTerminators, b)
			} else if b == 255 {
				validTerminators = []uint8{'\n', 129, 130, 131, 132, 133, 134, 135, 136, 137, 138, 139, 140, 141, 142, 143, 144, 145, 146, 147, 148, 149, 150, 151, 152, 153, 154, 252, 253, 254}
				break
			}
			terminatingChrPtr++
		}
	}

	response := z.screen.ReadLine(validTerminators)
	rawText := response.Text
	terminator := response.TerminatingKey

	textBufferPtr := opcode.operands[0].Value(z)
	parseBufferPtr := opcode.operands[1].Value(z)

	rawTextBytes := []byte(rawText)

	bufferSize := z.Core.ReadByte(uint32(textBufferPtr))
	textBufferPtr++

	if z.Core.Version >= 5 {
		existingBytes := z.Core.ReadByte(uint32(textBufferPtr))
		textBufferPtr += 1 + uint16(existingBytes)
	}

	ix := 0
	for {
		if ix > int(bufferSize) || ix >= len(rawTextBytes) {
			break
		}

		chr := rawTextBytes[ix]
		if (chr >= 32 && chr <= 126) || (chr >= 155 && chr <= 251) {
			z.Core.WriteByte(uint32(textBufferPtr+uint16(ix)), chr)
		} else {
			z.Core.WriteByte(uint32(textBufferPtr+uint16(ix)), 32)
		}
		ix++
	}

	z.Core.WriteByte(uint32(textBufferPtr+uint16(ix)), 0)

	if z.Core.Version >= 5 {
		z.Core.WriteByte(uint32(opcode.operands[0].Value(z)+1), uint8(ix))
	}

	if parseBufferPtr != 0 {
		z.Tokenise(uint32(opcode.operands[0].Value(z)), uint32(parseBufferPtr), z.dictionary, false)
	}

	if z.Core.Version >= 5 {
		typedTerminator := terminator
		if typedTerminator == 0 {
			typedTerminator = '\n'
		}
		z.writeVariable(decodeStoreTarget(z, z.callStack.peek()), uint16(typedTerminator), false)
	}
}

// Run drives the fetch-decode loop until the story quits, restarts,
// or raises an unrecoverable *zcore.MachineError, reporting whichever
// happened to the front end through the Screen.
func (z *ZMachine) Run() {
	z.notifyScreen()

	restarted := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				if machineErr, ok := r.(*zcore.MachineError); ok {
					z.screen.RuntimeError(machineErr.Error())
					return
				}
				panic(r)
			}
		}()

		for {
			running, restart := z.stepMachineOuter()
			if !running {
				restarted = restart
				break
			}
		}
	}()

	if restarted {
		z.screen.Restart()
	} else {
		z.screen.Quit()
	}
}

// stepMachineOuter wraps StepMachine so Run can distinguish a `quit`
// halt from a `restart` halt.
func (z *ZMachine) stepMachineOuter() (running bool, restart bool) {
	if z.restartRequested {
		z.restartRequested = false
		return false, true
	}
	running = z.StepMachine()
	if z.restartRequested {
		z.restartRequested = false
		return false, true
	}
	return running, false
}

func (z *ZMachine) StepMachine() bool {
	opcode := ParseOpcode(z)
	frame := z.callStack.peek()

	switch opcode.operandCount {
	case OP0:
		switch opcode.opcodeNumber {
		case 0: // rtrue
			z.retValue(1)
		case 1: // rfalse
			z.retValue(0)
		case 2: // print
			text, bytesRead := zstring.Decode(&z.Core, z.Alphabets, frame.pc, false)
			frame.pc += bytesRead
			z.appendText(text)
		case 3: // print_ret
			text, bytesRead := zstring.Decode(&z.Core, z.Alphabets, frame.pc, false)
			frame.pc += bytesRead
			z.appendText(text)
			z.appendText("\n")
			z.retValue(1)
		case 7: // restart
			z.restartRequested = true
			return false
		case 8: // ret_popped
			z.retValue(frame.pop())
		case 9: // catch
			z.writeVariable(decodeStoreTarget(z, frame), uint16(z.callStack.depth()-1), false)
		case 10: // quit
			return false
		case 11: // newline
			z.appendText("\n")
		case 13: // verify
			checksum := z.Core.FileChecksum
			actualChecksum := uint16(0)
			for ix := uint32(0x40); ix < z.Core.FileLength(); ix++ {
				actualChecksum += uint16(z.Core.ReadByte(ix))
			}
			z.handleBranch(frame, checksum == actualChecksum)
		case 15: // piracy
			z.handleBranch(frame, true)
		default:
			zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("0OP opcode 0x%x", opcode.opcodeNumber))
		}

	case OP1:
		switch opcode.opcodeNumber {
		case 0: // jz
			z.handleBranch(frame, opcode.operands[0].Value(z) == 0)
		case 1: // get_sibling
			sibling := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Sibling
			z.writeVariable(decodeStoreTarget(z, frame), sibling, false)
			z.handleBranch(frame, sibling != 0)
		case 2: // get_child
			child := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Child
			z.writeVariable(decodeStoreTarget(z, frame), child, false)
			z.handleBranch(frame, child != 0)
		case 3: // get_parent
			z.writeVariable(decodeStoreTarget(z, frame), zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Parent, false)
		case 4: // get_prop_len
			addr := opcode.operands[0].Value(z)
			z.writeVariable(decodeStoreTarget(z, frame), zobject.GetPropertyLength(&z.Core, uint32(addr), z.Core.Version), false)
		case 5: // inc
			variable := uint8(opcode.operands[0].Value(z))
			z.writeVariable(variable, z.readVariable(variable, true)+1, true)
		case 6: // dec
			variable := uint8(opcode.operands[0].Value(z))
			z.writeVariable(variable, z.readVariable(variable, true)-1, true)
		case 7: // print_addr
			str, _ := zstring.Decode(&z.Core, z.Alphabets, uint32(opcode.operands[0].Value(z)), false)
			z.appendText(str)
		case 8: // call_1s
			z.call(&opcode, function)
		case 9: // remove_obj
			z.RemoveObject(opcode.operands[0].Value(z))
		case 10: // print_obj
			z.appendText(zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets).Name)
		case 11: // ret
			z.retValue(opcode.operands[0].Value(z))
		case 12: // jump
			offset := int16(opcode.operands[0].Value(z))
			frame.pc = uint32(int32(frame.pc) + int32(offset) - 2)
		case 13: // print_paddr
			addr := z.packedAddress(uint32(opcode.operands[0].Value(z)), true)
			text, _ := zstring.Decode(&z.Core, z.Alphabets, addr, false)
			z.appendText(text)
		case 14: // load
			z.writeVariable(decodeStoreTarget(z, frame), z.readVariable(uint8(opcode.operands[0].Value(z)), true), false)
		case 15: // not (v1-4) / call_1n (v5+)
			if z.Core.Version < 5 {
				z.writeVariable(decodeStoreTarget(z, frame), ^opcode.operands[0].Value(z), false)
			} else {
				z.call(&opcode, procedure)
			}
		default:
			zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("1OP opcode 0x%x", opcode.opcodeNumber))
		}

	case OP2:
		switch opcode.opcodeNumber {
		case 1: // je
			a := opcode.operands[0].Value(z)
			branch := false
			for _, b := range opcode.operands[1:] {
				if a == b.Value(z) {
					branch = true
				}
			}
			z.handleBranch(frame, branch)
		case 2: // jl
			z.handleBranch(frame, int16(opcode.operands[0].Value(z)) < int16(opcode.operands[1].Value(z)))
		case 3: // jg
			z.handleBranch(frame, int16(opcode.operands[0].Value(z)) > int16(opcode.operands[1].Value(z)))
		case 4: // dec_chk
			variable := uint8(opcode.operands[0].Value(z))
			newValue := int16(z.readVariable(variable, true)) - 1
			z.writeVariable(variable, uint16(newValue), true)
			z.handleBranch(frame, newValue < int16(opcode.operands[1].Value(z)))
		case 5: // inc_chk
			variable := uint8(opcode.operands[0].Value(z))
			newValue := int16(z.readVariable(variable, true)) + 1
			z.writeVariable(variable, uint16(newValue), true)
			z.handleBranch(frame, newValue > int16(opcode.operands[1].Value(z)))
		case 6: // jin
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			z.handleBranch(frame, obj.Parent == opcode.operands[1].Value(z))
		case 7: // test
			bitmap := opcode.operands[0].Value(z)
			flags := opcode.operands[1].Value(z)
			z.handleBranch(frame, bitmap&flags == flags)
		case 8: // or
			z.writeVariable(decodeStoreTarget(z, frame), opcode.operands[0].Value(z)|opcode.operands[1].Value(z), false)
		case 9: // and
			z.writeVariable(decodeStoreTarget(z, frame), opcode.operands[0].Value(z)&opcode.operands[1].Value(z), false)
		case 10: // test_attr
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			z.handleBranch(frame, obj.TestAttribute(opcode.operands[1].Value(z)))
		case 11: // set_attr
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			obj.SetAttribute(opcode.operands[1].Value(z), &z.Core)
		case 12: // clear_attr
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			obj.ClearAttribute(opcode.operands[1].Value(z), &z.Core)
		case 13: // store
			z.writeVariable(uint8(opcode.operands[0].Value(z)), opcode.operands[1].Value(z), true)
		case 14: // insert_obj
			z.MoveObject(opcode.operands[0].Value(z), opcode.operands[1].Value(z))
		case 15: // loadw
			z.writeVariable(decodeStoreTarget(z, frame), z.Core.ReadHalfWord(uint32(opcode.operands[0].Value(z)+2*opcode.operands[1].Value(z))), false)
		case 16: // loadb
			z.writeVariable(decodeStoreTarget(z, frame), uint16(z.Core.ReadByte(uint32(opcode.operands[0].Value(z)+opcode.operands[1].Value(z)))), false)
		case 17: // get_prop
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), &z.Core)
			value := uint16(prop.Data[0])
			if len(prop.Data) == 2 {
				value = binary.BigEndian.Uint16(prop.Data)
			} else if len(prop.Data) > 2 {
				zcore.Raise(zcore.InvalidProperty, frame.pc, "get_prop on a property longer than 2 bytes")
			}
			z.writeVariable(decodeStoreTarget(z, frame), value, false)
		case 18: // get_prop_addr
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			prop := obj.GetProperty(uint8(opcode.operands[1].Value(z)), &z.Core)
			z.writeVariable(decodeStoreTarget(z, frame), uint16(prop.DataAddress), false)
		case 19: // get_next_prop
			obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
			z.writeVariable(decodeStoreTarget(z, frame), uint16(obj.GetNextProperty(uint8(opcode.operands[1].Value(z)), &z.Core)), false)
		case 20: // add
			z.writeVariable(decodeStoreTarget(z, frame), opcode.operands[0].Value(z)+opcode.operands[1].Value(z), false)
		case 21: // sub
			z.writeVariable(decodeStoreTarget(z, frame), opcode.operands[0].Value(z)-opcode.operands[1].Value(z), false)
		case 22: // mul
			z.writeVariable(decodeStoreTarget(z, frame), opcode.operands[0].Value(z)*opcode.operands[1].Value(z), false)
		case 23: // div
			numerator := int16(opcode.operands[0].Value(z))
			denominator := int16(opcode.operands[1].Value(z))
			if denominator == 0 {
				zcore.Raise(zcore.MalformedImage, frame.pc, "div by zero")
			}
			z.writeVariable(decodeStoreTarget(z, frame), uint16(numerator/denominator), false)
		case 24: // mod
			numerator := int16(opcode.operands[0].Value(z))
			denominator := int16(opcode.operands[1].Value(z))
			if denominator == 0 {
				zcore.Raise(zcore.MalformedImage, frame.pc, "mod by zero")
			}
			z.writeVariable(decodeStoreTarget(z, frame), uint16(numerator%denominator), false)
		case 25: // call_2s
			if z.Core.Version < 4 {
				zcore.Raise(zcore.UnknownOpcode, frame.pc, "call_2s requires v4+")
			}
			z.call(&opcode, function)
		case 26: // call_2n
			if z.Core.Version < 5 {
				zcore.Raise(zcore.UnknownOpcode, frame.pc, "call_2n requires v5+")
			}
			z.call(&opcode, procedure)
		case 27: // set_colour
			if z.Core.Version < 5 {
				zcore.Raise(zcore.UnknownOpcode, frame.pc, "set_colour requires v5+")
			}
			z.setColour(opcode.operands[0].Value(z), opcode.operands[1].Value(z))
		case 28: // throw
			if z.Core.Version < 5 {
				zcore.Raise(zcore.UnknownOpcode, frame.pc, "throw requires v5+")
			}
			value := opcode.operands[0].Value(z)
			z.callStack.unwindTo(uint32(opcode.operands[1].Value(z)))
			z.retValue(value)
		case 0, 29, 30, 31:
			zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("unused 2OP opcode 0x%x", opcode.opcodeNumber))
		default:
			zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("2OP opcode 0x%x", opcode.opcodeNumber))
		}

	case VAR:
		if opcode.opcodeForm == extForm {
			z.stepExtended(&opcode, frame)
		} else {
			z.stepVar(&opcode, frame)
		}
	}

	return true
}

// setColour implements `set_colour`/`set_true_colour`'s shared
// bookkeeping: track the foreground/background Color on whichever
// window is active so later text output and the front end's
// screen-model notifications carry it.
func (z *ZMachine) setColour(foreground, background uint16) {
	fg := z.screenModel.NewZMachineColor(foreground, true)
	bg := z.screenModel.NewZMachineColor(background, false)
	if z.screenModel.LowerWindowActive {
		z.screenModel.LowerWindowForeground = fg
		z.screenModel.LowerWindowBackground = bg
	} else {
		z.screenModel.UpperWindowForeground = fg
		z.screenModel.UpperWindowBackground = bg
	}
	z.notifyScreen()
}

func (z *ZMachine) setTrueColour(foreground, background uint16) {
	fg := trueColourFromWord(foreground)
	bg := trueColourFromWord(background)
	if z.screenModel.LowerWindowActive {
		z.screenModel.LowerWindowForeground = fg
		z.screenModel.LowerWindowBackground = bg
	} else {
		z.screenModel.UpperWindowForeground = fg
		z.screenModel.UpperWindowBackground = bg
	}
	z.notifyScreen()
}

func (z *ZMachine) stepExtended(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeByte {
	case 0x00: // save
		req := Save{Prompt: true}
		if len(opcode.operands) >= 2 {
			// v5+ auxiliary form (spec S9, "save <table> <bytes> <name>"):
			// persist a caller-chosen slice of dynamic memory instead of
			// the full machine state.
			req.Auxiliary = true
			req.Address = uint32(opcode.operands[0].Value(z))
			req.NumBytes = uint32(opcode.operands[1].Value(z))
			if len(opcode.operands) >= 3 {
				req.Filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
			}
			req.Data = append([]byte(nil), z.Core.ReadSlice(req.Address, req.Address+req.NumBytes)...)
		} else {
			req.Data = z.ExportSaveState()
		}

		result := uint16(0)
		if ok, res := z.screen.Save(req); ok {
			result = res
		}
		z.writeVariable(decodeStoreTarget(z, frame), result, false)
	case 0x01: // restore
		req := Restore{Prompt: true}
		if len(opcode.operands) >= 2 {
			req.Auxiliary = true
			req.Address = uint32(opcode.operands[0].Value(z))
			req.NumBytes = uint32(opcode.operands[1].Value(z))
			if len(opcode.operands) >= 3 {
				req.Filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
			}
		}

		result := uint16(0)
		data, ok, res := z.screen.Restore(req)
		switch {
		case !ok:
			result = 0
		case req.Auxiliary:
			n := copy(z.Core.ReadSlice(req.Address, req.Address+req.NumBytes), data)
			result = uint16(n)
		case z.ImportSaveState(data):
			result = res
			frame = z.callStack.peek()
		}
		z.writeVariable(decodeStoreTarget(z, frame), result, false)
	case 0x02: // log_shift
		num := opcode.operands[0].Value(z)
		places := int16(opcode.operands[1].Value(z))
		var result uint16
		if places >= 0 {
			result = num << uint16(places)
		} else {
			result = num >> uint16(-places)
		}
		z.writeVariable(decodeStoreTarget(z, frame), result, false)
	case 0x03: // art_shift
		num := int16(opcode.operands[0].Value(z))
		places := int16(opcode.operands[1].Value(z))
		var result uint16
		if places >= 0 {
			result = uint16(num << uint16(places))
		} else {
			result = uint16(num >> uint16(-places))
		}
		z.writeVariable(decodeStoreTarget(z, frame), result, false)
	case 0x09: // save_undo
		z.saveUndo()
		z.writeVariable(decodeStoreTarget(z, frame), 1, false)
	case 0x0a: // restore_undo
		response := z.restoreUndo()
		frame = z.callStack.peek()
		z.writeVariable(decodeStoreTarget(z, frame), response, false)
	case 0x0b: // print_unicode
		chr := opcode.operands[0].Value(z)
		r, _ := zstring.ZsciiToUnicode(uint8(chr), &z.Core)
		if r == 0 {
			r = rune(chr)
		}
		z.appendText(string(r))
	case 0x0c: // check_unicode
		chr := opcode.operands[0].Value(z)
		result := uint16(0)
		if chr != 0 {
			result = 0b11
		}
		z.writeVariable(decodeStoreTarget(z, frame), result, false)
	case 0x0d: // set_true_colour
		z.setTrueColour(opcode.operands[0].Value(z), opcode.operands[1].Value(z))
	default:
		zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("EXT opcode 0x%x", opcode.opcodeByte))
	}
}

func (z *ZMachine) stepVar(opcode *Opcode, frame *CallStackFrame) {
	switch opcode.opcodeNumber {
	case 0: // call
		z.call(opcode, function)
	case 1: // storew
		address := opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z)
		z.Core.WriteHalfWord(uint32(address), opcode.operands[2].Value(z))
	case 2: // storeb
		address := opcode.operands[0].Value(z) + opcode.operands[1].Value(z)
		z.Core.WriteByte(uint32(address), uint8(opcode.operands[2].Value(z)))
	case 3: // put_prop
		obj := zobject.GetObject(opcode.operands[0].Value(z), &z.Core, z.Alphabets)
		obj.SetProperty(uint8(opcode.operands[1].Value(z)), opcode.operands[2].Value(z), &z.Core)
	case 4: // sread / aread
		z.read(opcode)
	case 5: // print_char
		chr := uint8(opcode.operands[0].Value(z))
		if chr != 0 {
			z.appendText(string(chr))
		}
	case 6: // print_num
		z.appendText(strconv.Itoa(int(int16(opcode.operands[0].Value(z)))))
	case 7: // random
		n := int16(opcode.operands[0].Value(z))
		z.writeVariable(decodeStoreTarget(z, frame), z.rng.Roll(n, time.Now().UnixNano()), false)
	case 8: // push
		frame.push(opcode.operands[0].Value(z))
	case 9: // pull
		z.writeVariable(uint8(opcode.operands[0].Value(z)), frame.pop(), true)
	case 10: // split_window
		z.screenModel.UpperWindowHeight = int(opcode.operands[0].Value(z))
		z.notifyScreen()
	case 11: // set_window
		z.screenModel.LowerWindowActive = opcode.operands[0].Value(z) == 0
		z.notifyScreen()
	case 12: // call_vs2
		z.call(opcode, function)
	case 13: // erase_window
		window := int16(opcode.operands[0].Value(z))
		if window == -1 || window == -2 {
			z.screenModel.LowerWindowActive = true
			z.screenModel.UpperWindowHeight = 0
			z.notifyScreen()
		}
		z.screen.EraseWindow(window)
	case 14: // erase_line
		if opcode.operands[0].Value(z) == 1 {
			z.screen.EraseLine()
		}
	case 15: // set_cursor
		line := opcode.operands[0].Value(z)
		col := opcode.operands[1].Value(z)
		if !z.screenModel.LowerWindowActive {
			z.screenModel.UpperWindowCursorX = int(col)
			z.screenModel.UpperWindowCursorY = int(line)
			z.notifyScreen()
		}
	case 16: // get_cursor
		table := opcode.operands[0].Value(z)
		z.Core.WriteHalfWord(uint32(table), uint16(z.screenModel.UpperWindowCursorY))
		z.Core.WriteHalfWord(uint32(table+2), uint16(z.screenModel.UpperWindowCursorX))
	case 17: // set_text_style
		if z.Core.Version < 4 {
			zcore.Raise(zcore.UnknownOpcode, frame.pc, "set_text_style requires v4+")
		}
		mask := TextStyle(opcode.operands[0].Value(z))
		if z.screenModel.LowerWindowActive {
			z.screenModel.LowerWindowTextStyle = mask
		} else {
			z.screenModel.UpperWindowTextStyle = mask
		}
		z.notifyScreen()
	case 18: // buffer_mode
		// No output buffering layer to toggle; accepted and ignored.
	case 19: // output_stream
		z.outputStream(opcode)
	case 20: // input_stream
		// Only keyboard input (stream 0) is supported; accepted and ignored.
	case 21: // sound_effect
		number := int(opcode.operands[0].Value(z))
		effect := 0
		routine := uint16(0)
		if len(opcode.operands) > 1 {
			effect = int(opcode.operands[1].Value(z))
		}
		if len(opcode.operands) > 3 {
			routine = opcode.operands[3].Value(z)
		}
		z.screen.SoundEffect(SoundEffectRequest{SoundNumber: number, Effect: effect, Routine: routine})
	case 22: // read_char
		response := z.screen.ReadChar()
		chr := response.TerminatingKey
		if chr == 0 && len(response.Text) > 0 {
			chr = response.Text[0]
		}
		z.writeVariable(decodeStoreTarget(z, frame), uint16(chr), false)
	case 23: // scan_table
		test := opcode.operands[0].Value(z)
		tableAddress := opcode.operands[1].Value(z)
		length := opcode.operands[2].Value(z)
		form := uint16(0x82)
		if len(opcode.operands) == 4 {
			form = opcode.operands[3].Value(z)
		}
		result := ztable.ScanTable(&z.Core, test, uint32(tableAddress), length, form)
		z.writeVariable(decodeStoreTarget(z, frame), uint16(result), false)
		z.handleBranch(frame, result != 0)
	case 24: // not
		z.writeVariable(decodeStoreTarget(z, frame), ^opcode.operands[0].Value(z), false)
	case 25: // call_vn
		z.call(opcode, procedure)
	case 26: // call_vn2
		z.call(opcode, procedure)
	case 27: // tokenise
		text := opcode.operands[0].Value(z)
		parseBuffer := opcode.operands[1].Value(z)
		dictionaryToUse := z.dictionary
		flag := false

		if len(opcode.operands) > 2 {
			dictionaryToUse = dictionary.ParseDictionary(&z.Core, uint32(opcode.operands[2].Value(z)), z.Alphabets)
		}
		if len(opcode.operands) == 4 {
			flag = opcode.operands[3].Value(z) != 0
		}

		z.Tokenise(uint32(text), uint32(parseBuffer), dictionaryToUse, flag)
	case 28: // encode_text
		textBuffer := opcode.operands[0].Value(z)
		length := opcode.operands[1].Value(z)
		from := opcode.operands[2].Value(z)
		codedBuffer := opcode.operands[3].Value(z)
		runes := []rune(string(z.Core.ReadSlice(uint32(textBuffer)+uint32(from), uint32(textBuffer)+uint32(from)+uint32(length))))
		encoded := zstring.Encode(runes, &z.Core, z.Alphabets)
		for i, b := range encoded {
			z.Core.WriteByte(uint32(codedBuffer)+uint32(i), b)
		}
	case 29: // copy_table
		ztable.CopyTable(&z.Core, uint32(opcode.operands[0].Value(z)), uint32(opcode.operands[1].Value(z)), int16(opcode.operands[2].Value(z)))
	case 30: // print_table
		addr := opcode.operands[0].Value(z)
		width := opcode.operands[1].Value(z)
		height := uint16(1)
		skip := uint16(0)
		if len(opcode.operands) > 2 {
			height = opcode.operands[2].Value(z)
			if len(opcode.operands) > 3 {
				skip = opcode.operands[3].Value(z)
			}
		}
		z.appendText(ztable.PrintTable(&z.Core, uint32(addr), width, height, skip))
	case 31: // check_arg_count
		z.handleBranch(frame, opcode.operands[0].Value(z) <= uint16(frame.numValuesPassed))
	default:
		zcore.Raise(zcore.UnknownOpcode, frame.pc, fmt.Sprintf("VAR opcode 0x%x", opcode.opcodeNumber))
	}
}

func (z *ZMachine) outputStream(opcode *Opcode) {
	stream := int16(opcode.operands[0].Value(z))

	switch stream {
	case 1, -1:
		z.streams.Screen = stream > 0
	case 2, -2:
		z.streams.Transcript = stream > 0
	case 3:
		z.streams.Memory = true
		z.streams.MemoryStreamData = append(z.streams.MemoryStreamData, MemoryStreamData{
			baseAddress: uint32(opcode.operands[1].Value(z)),
			ptr:         uint32(opcode.operands[1].Value(z)) + 2,
		})
	case -3:
		if z.streams.Memory {
			current := z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
			z.Core.WriteHalfWord(current.baseAddress, uint16(current.ptr-current.baseAddress-2))
			z.streams.MemoryStreamData = z.streams.MemoryStreamData[:len(z.streams.MemoryStreamData)-1]
			if len(z.streams.MemoryStreamData) == 0 {
				z.streams.Memory = false
			}
		}
	case 4, -4:
		z.streams.CommandScript = stream > 0
	}
}
