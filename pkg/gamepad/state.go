// Package gamepad decodes the 6-byte input-state report into a named state.
//
// Report layout:
//
//	Byte 0: left stick X
//	Byte 1: left stick Y
//	Byte 2: right stick X
//	Byte 3: right stick Y
//	Byte 4: low nibble D-pad direction, high nibble X/A/B/Y (0x10/0x20/0x40/0x80)
//	Byte 5: LB/RB/LT/RT/BACK/START/L3/R3 (0x01 .. 0x80)
package gamepad

// ReportSize is the minimum input-state payload length.
const ReportSize = 6

const (
	dpadMask = 0x0F

	buttonX = 0x10
	buttonA = 0x20
	buttonB = 0x40
	buttonY = 0x80

	buttonLB    = 0x01
	buttonRB    = 0x02
	buttonLT    = 0x04
	buttonRT    = 0x08
	buttonBack  = 0x10
	buttonStart = 0x20
	buttonL3    = 0x40
	buttonR3    = 0x80
)

type Axes struct {
	LX uint8 `json:"lx"`
	LY uint8 `json:"ly"`
	RX uint8 `json:"rx"`
	RY uint8 `json:"ry"`
}

type DPad struct {
	Direction Direction `json:"direction"`
	Raw       uint8     `json:"raw"`
}

// Buttons holds the decoded flags plus the two raw bytes they came from.
type Buttons struct {
	X     bool `json:"x"`
	A     bool `json:"a"`
	B     bool `json:"b"`
	Y     bool `json:"y"`
	LB    bool `json:"lb"`
	RB    bool `json:"rb"`
	LT    bool `json:"lt"`
	RT    bool `json:"rt"`
	Back  bool `json:"back"`
	Start bool `json:"start"`
	L3    bool `json:"l3"`
	R3    bool `json:"r3"`

	DPadRaw    uint8 `json:"dpad_raw"`
	ButtonsRaw uint8 `json:"buttons_raw"`
}

// State is the latest known input state of one device. It is updated in
// place for the lifetime of a session.
type State struct {
	Axes    Axes    `json:"axes"`
	DPad    DPad    `json:"dpad"`
	Buttons Buttons `json:"buttons"`
}

// NewState returns a state with neutral defaults.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset restores neutral defaults.
func (s *State) Reset() {
	*s = State{DPad: DPad{Direction: DirectionNone}}
}

// Decode applies an input-state payload. Payloads shorter than ReportSize
// are ignored and leave s untouched; extra trailing bytes are ignored.
func (s *State) Decode(payload []byte) bool {
	if len(payload) < ReportSize {
		return false
	}

	s.Axes = Axes{
		LX: payload[0],
		LY: payload[1],
		RX: payload[2],
		RY: payload[3],
	}

	dpadBtns := payload[4]
	s.DPad.Raw = dpadBtns
	s.DPad.Direction = DirectionFromNibble(dpadBtns & dpadMask)

	buttons := payload[5]
	s.Buttons = Buttons{
		X:     dpadBtns&buttonX != 0,
		A:     dpadBtns&buttonA != 0,
		B:     dpadBtns&buttonB != 0,
		Y:     dpadBtns&buttonY != 0,
		LB:    buttons&buttonLB != 0,
		RB:    buttons&buttonRB != 0,
		LT:    buttons&buttonLT != 0,
		RT:    buttons&buttonRT != 0,
		Back:  buttons&buttonBack != 0,
		Start: buttons&buttonStart != 0,
		L3:    buttons&buttonL3 != 0,
		R3:    buttons&buttonR3 != 0,

		DPadRaw:    dpadBtns,
		ButtonsRaw: buttons,
	}
	return true
}

// Update decodes payload into state and returns state for chaining.
func Update(state *State, payload []byte) *State {
	state.Decode(payload)
	return state
}

// Report encodes s back into the 6-byte wire layout. The D-pad nibble and
// both button bytes are rebuilt from the decoded fields; an unrecognized
// direction keeps the nibble from DPad.Raw.
func (s State) Report() []byte {
	nibble := s.DPad.Direction.nibble()
	if s.DPad.Direction == DirectionUnrecognized {
		nibble = s.DPad.Raw & dpadMask
	}

	b4 := nibble
	b4 |= flag(s.Buttons.X, buttonX)
	b4 |= flag(s.Buttons.A, buttonA)
	b4 |= flag(s.Buttons.B, buttonB)
	b4 |= flag(s.Buttons.Y, buttonY)

	var b5 uint8
	b5 |= flag(s.Buttons.LB, buttonLB)
	b5 |= flag(s.Buttons.RB, buttonRB)
	b5 |= flag(s.Buttons.LT, buttonLT)
	b5 |= flag(s.Buttons.RT, buttonRT)
	b5 |= flag(s.Buttons.Back, buttonBack)
	b5 |= flag(s.Buttons.Start, buttonStart)
	b5 |= flag(s.Buttons.L3, buttonL3)
	b5 |= flag(s.Buttons.R3, buttonR3)

	return []byte{s.Axes.LX, s.Axes.LY, s.Axes.RX, s.Axes.RY, b4, b5}
}

func flag(set bool, mask uint8) uint8 {
	if set {
		return mask
	}
	return 0
}
