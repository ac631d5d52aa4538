package zmachine

import "fmt"

type TextStyle int

const (
	Roman        TextStyle = 0b0000_0001
	Bold         TextStyle = 0b0000_0010
	Italic       TextStyle = 0b0000_0100
	ReverseVideo TextStyle = 0b0000_1000
	FixedPitch   TextStyle = 0b0001_0000
)

type Color struct {
	r int
	g int
	b int
}

func (c Color) ToHex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

// Font represents the available Z-machine fonts
type Font uint16

const (
	FontNormal     Font = 1
	FontPicture    Font = 2
	FontCharGraphs Font = 3
	FontFixedPitch Font = 4
)

// Black and White are the story header's default screen colors before
// any color-table lookup, used to seed a fresh ScreenModel.
var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// trueColourFromWord unpacks a set_true_colour 15-bit BGR word (S8.3.1
// of the Standard) into an RGB Color.
func trueColourFromWord(word uint16) Color {
	r := int(word&0b11111) * 255 / 31
	g := int((word>>5)&0b11111) * 255 / 31
	b := int((word>>10)&0b11111) * 255 / 31
	return Color{r, g, b}
}

// ScreenModel - This is very deliberately a _not_ V6 screen model
type ScreenModel struct {
	LowerWindowActive bool
	CurrentFont       Font // TODO - Not actually changing the rendering code based on this at the moment

	UpperWindowHeight            int
	UpperWindowForeground        Color
	UpperWindowBackground        Color
	DefaultUpperWindowForeground Color
	DefaultUpperWindowBackground Color
	UpperWindowCursorX           int
	UpperWindowCursorY           int
	UpperWindowTextStyle         TextStyle

	DefaultLowerWindowForeground Color
	DefaultLowerWindowBackground Color
	LowerWindowForeground        Color
	LowerWindowBackground        Color
	LowerWindowTextStyle         TextStyle
}

func (m *ScreenModel) NewZMachineColor(i uint16, isForeground bool) Color {
	switch i {
	case 0: // CURRENT
		if isForeground {
			return m.LowerWindowForeground
		} else {
			return m.LowerWindowBackground
		}
	case 1: // DEFAULT - TODO - Maybe make these defaults set in the screen model on creation?
		if isForeground {
			if m.LowerWindowActive {
				return m.DefaultLowerWindowForeground
			} else {
				return m.DefaultUpperWindowForeground
			}
		} else {
			if m.LowerWindowActive {
				return m.DefaultLowerWindowBackground
			} else {
				return m.DefaultUpperWindowBackground
			}
		}
	case 2: // BLACK
		return Color{0, 0, 0}
	case 3: // RED
		return Color{255, 0, 0}
	case 4: // GREEN
		return Color{0, 255, 0}
	case 5: // YELLOW
		return Color{255, 255, 0}
	case 6: // BLUE
		return Color{0, 0, 255}
	case 7: // MAGENTA
		return Color{255, 0, 255}
	case 8: // CYAN
		return Color{0, 255, 255}
	case 9: // WHITE
		return Color{255, 255, 255}
	case 10: // LIGHT GREY
		return Color{192, 192, 192}
	case 11: // MEDIUM GREY
		return Color{128, 128, 128}
	case 12: // DARK GREY
		return Color{64, 64, 64}
	default:
		return Color{0, 0, 0}
	}
}

// Screen is the core's only external contract (spec S6.1): a
// synchronous capability set the host supplies. ZMachine calls these
// methods directly from the dispatcher; nothing in zmachine.go reaches
// past this interface to touch a channel, a file, or a terminal.
type Screen interface {
	Print(text string)
	StatusChanged(bar StatusBar)
	ModelChanged(model ScreenModel)
	EraseWindow(window int16)
	EraseLine()
	SoundEffect(req SoundEffectRequest)

	// ReadLine blocks for a `sread`/`aread` line of input; ReadChar
	// blocks for a single `read_char` keystroke. Both return whichever
	// key actually terminated input in InputResponse.TerminatingKey.
	ReadLine(validTerminators []uint8) InputResponse
	ReadChar() InputResponse

	// Save and Restore carry the opaque byte blob in both directions
	// per spec S6.1 ("opaque bytes / — | bool / opaque bytes"): the
	// core fills req.Data before calling Save, and reads the returned
	// data back on a successful Restore. Failure is reported via ok,
	// not as an error (spec S7's save/restore policy).
	Save(req Save) (ok bool, result uint16)
	Restore(req Restore) (data []byte, ok bool, result uint16)

	Quit()
	Restart()
	RuntimeError(message string)
	Warning(message string)
}

// ChannelScreen realizes Screen over the three channels LoadRom is
// handed. It is the only place in this package that sends to or
// receives from them: every opcode handler in zmachine.go reaches the
// outside world exclusively through the Screen interface, and
// ChannelScreen is this repository's one implementation of it, built
// for a front end (cmd/zinc, cmd/gametest) that talks Bubble Tea
// commands and goroutine channels rather than direct method calls.
type ChannelScreen struct {
	output      chan<- any
	input       <-chan InputResponse
	saveRestore <-chan SaveRestoreResponse
}

func (s ChannelScreen) Print(text string)                { s.output <- text }
func (s ChannelScreen) StatusChanged(bar StatusBar)       { s.output <- bar }
func (s ChannelScreen) ModelChanged(model ScreenModel)    { s.output <- model }
func (s ChannelScreen) EraseWindow(window int16)          { s.output <- EraseWindowRequest(window) }
func (s ChannelScreen) EraseLine()                        { s.output <- EraseLineRequest(true) }
func (s ChannelScreen) SoundEffect(req SoundEffectRequest) { s.output <- req }
func (s ChannelScreen) Quit()                             { s.output <- Quit(true) }
func (s ChannelScreen) Restart()                          { s.output <- Restart(true) }
func (s ChannelScreen) RuntimeError(message string)       { s.output <- RuntimeError(message) }
func (s ChannelScreen) Warning(message string)            { s.output <- Warning(message) }

func (s ChannelScreen) ReadLine(validTerminators []uint8) InputResponse {
	s.output <- InputRequest{ValidTerminators: validTerminators}
	return <-s.input
}

func (s ChannelScreen) ReadChar() InputResponse {
	s.output <- WaitForCharacter
	return <-s.input
}

func (s ChannelScreen) Save(req Save) (ok bool, result uint16) {
	s.output <- req
	if resp, isSave := (<-s.saveRestore).(SaveResponse); isSave && resp.Success {
		return true, resp.Result
	}
	return false, 0
}

func (s ChannelScreen) Restore(req Restore) (data []byte, ok bool, result uint16) {
	s.output <- req
	if resp, isRestore := (<-s.saveRestore).(RestoreResponse); isRestore && resp.Success {
		return resp.Data, true, resp.Result
	}
	return nil, false, 0
}

func newScreenModel(foregroundColor Color, backgroundColor Color) ScreenModel {
	return ScreenModel{
		LowerWindowActive:            true,
		CurrentFont:                  FontNormal,
		UpperWindowHeight:            0,
		DefaultUpperWindowForeground: foregroundColor,
		DefaultUpperWindowBackground: backgroundColor,
		UpperWindowForeground:        foregroundColor,
		UpperWindowBackground:        backgroundColor,
		UpperWindowCursorX:           1,
		UpperWindowCursorY:           1,
		UpperWindowTextStyle:         Roman,
		DefaultLowerWindowForeground: foregroundColor,
		DefaultLowerWindowBackground: backgroundColor,
		LowerWindowForeground:        foregroundColor,
		LowerWindowBackground:        backgroundColor,
		LowerWindowTextStyle:         Roman,
	}
}
