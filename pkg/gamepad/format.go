package gamepad

import (
	"fmt"
	"strings"
)

// Pressed lists held buttons in report order.
func (s State) Pressed() []string {
	b := s.Buttons
	set := []struct {
		on   bool
		name string
	}{
		{b.X, "X"}, {b.A, "A"}, {b.B, "B"}, {b.Y, "Y"},
		{b.LB, "LB"}, {b.RB, "RB"}, {b.LT, "LT"}, {b.RT, "RT"},
		{b.Back, "BACK"}, {b.Start, "START"}, {b.L3, "L3"}, {b.R3, "R3"},
	}
	var out []string
	for _, btn := range set {
		if btn.on {
			out = append(out, btn.name)
		}
	}
	return out
}

// String renders a one-line summary:
//
//	LX: 10 LY: 20 RX: 30 RY: 40 | DPAD:DOWN | Btns:ALBLT | RAW: 24 05
func (s State) String() string {
	dir := "UNKNOWN"
	if s.DPad.Direction != DirectionUnrecognized {
		dir = strings.ToUpper(s.DPad.Direction.String())
	}
	btns := strings.Join(s.Pressed(), "")
	if btns == "" {
		btns = "NONE"
	}
	return fmt.Sprintf("LX:%3d LY:%3d RX:%3d RY:%3d | DPAD:%s | Btns:%s | RAW: %02x %02x",
		s.Axes.LX, s.Axes.LY, s.Axes.RX, s.Axes.RY,
		dir, btns,
		s.DPad.Raw, s.Buttons.ButtonsRaw)
}
