package gamepad_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padscope/pkg/gamepad"
)

func TestNewStateIsNeutral(t *testing.T) {
	s := gamepad.NewState()
	assert.Equal(t, gamepad.DirectionNone, s.DPad.Direction)
	assert.Equal(t, gamepad.Axes{}, s.Axes)
	assert.Equal(t, gamepad.Buttons{}, s.Buttons)
	assert.Empty(t, s.Pressed())
}

func TestDecodeExample(t *testing.T) {
	s := gamepad.NewState()
	require.True(t, s.Decode([]byte{10, 20, 30, 40, 0x24, 0x05}))

	assert.Equal(t, gamepad.Axes{LX: 10, LY: 20, RX: 30, RY: 40}, s.Axes)
	assert.Equal(t, gamepad.DirectionDown, s.DPad.Direction)
	assert.Equal(t, uint8(0x24), s.DPad.Raw)
	assert.Equal(t, gamepad.Buttons{
		A:          true,
		LB:         true,
		LT:         true,
		DPadRaw:    0x24,
		ButtonsRaw: 0x05,
	}, s.Buttons)
}

func TestDecodeDirections(t *testing.T) {
	cases := []struct {
		nibble uint8
		want   gamepad.Direction
		name   string
	}{
		{0, gamepad.DirectionUp, "up"},
		{1, gamepad.DirectionUpRight, "up-right"},
		{2, gamepad.DirectionRight, "right"},
		{3, gamepad.DirectionDownRight, "down-right"},
		{4, gamepad.DirectionDown, "down"},
		{5, gamepad.DirectionDownLeft, "down-left"},
		{6, gamepad.DirectionLeft, "left"},
		{7, gamepad.DirectionUpLeft, "up-left"},
		{8, gamepad.DirectionNone, "none"},
	}
	for _, tc := range cases {
		s := gamepad.NewState()
		require.True(t, s.Decode([]byte{0, 0, 0, 0, 0xF0 | tc.nibble, 0}))
		assert.Equal(t, tc.want, s.DPad.Direction)
		assert.Equal(t, tc.name, s.DPad.Direction.String())
		assert.True(t, s.Buttons.X && s.Buttons.A && s.Buttons.B && s.Buttons.Y)
	}
	for n := uint8(9); n <= 15; n++ {
		s := gamepad.NewState()
		require.True(t, s.Decode([]byte{0, 0, 0, 0, n, 0}))
		assert.Equal(t, gamepad.DirectionUnrecognized, s.DPad.Direction, "nibble %d", n)
		assert.Equal(t, n, s.DPad.Raw)
	}
}

func TestDecodeButtonBits(t *testing.T) {
	s := gamepad.NewState()
	require.True(t, s.Decode([]byte{0, 0, 0, 0, 0x08, 0xFF}))
	assert.Equal(t, []string{"LB", "RB", "LT", "RT", "BACK", "START", "L3", "R3"}, s.Pressed())

	require.True(t, s.Decode([]byte{0, 0, 0, 0, 0x98, 0x00}))
	assert.Equal(t, []string{"X", "Y"}, s.Pressed())
}

func TestDecodeShortPayloadIsNoop(t *testing.T) {
	s := gamepad.NewState()
	require.True(t, s.Decode([]byte{1, 2, 3, 4, 0x21, 0x80}))
	before := *s

	assert.False(t, s.Decode([]byte{9, 9, 9, 9}))
	assert.Equal(t, before, *s)

	assert.Same(t, s, gamepad.Update(s, []byte{7}))
	assert.Equal(t, before, *s)
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	s := gamepad.NewState()
	require.True(t, s.Decode([]byte{1, 2, 3, 4, 0x08, 0x00, 0xAA, 0xBB}))
	assert.Equal(t, uint8(4), s.Axes.RY)
}

func TestUpdateMutatesInPlace(t *testing.T) {
	s := gamepad.NewState()
	got := gamepad.Update(s, []byte{10, 20, 30, 40, 0x24, 0x05})
	assert.Same(t, s, got)
	assert.Equal(t, uint8(10), s.Axes.LX)
}

func TestReportRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{10, 20, 30, 40, 0x24, 0x05},
		{0, 255, 128, 1, 0xF8, 0xFF},
		{5, 6, 7, 8, 0x0C, 0x40},
	}
	for _, p := range payloads {
		s := gamepad.NewState()
		require.True(t, s.Decode(p))
		assert.Equal(t, p, s.Report())
	}
}

func TestReset(t *testing.T) {
	s := gamepad.NewState()
	s.Decode([]byte{10, 20, 30, 40, 0x24, 0x05})
	s.Reset()
	assert.Equal(t, *gamepad.NewState(), *s)
}

func TestDirectionComponents(t *testing.T) {
	assert.True(t, gamepad.DirectionUpLeft.Up())
	assert.True(t, gamepad.DirectionUpLeft.Left())
	assert.False(t, gamepad.DirectionUpLeft.Right())
	assert.True(t, gamepad.DirectionDownRight.Down())
	assert.True(t, gamepad.DirectionDownRight.Right())
	assert.False(t, gamepad.DirectionNone.Up())
	assert.False(t, gamepad.DirectionUnrecognized.Down())
}

func TestStateJSON(t *testing.T) {
	s := gamepad.NewState()
	s.Decode([]byte{10, 20, 30, 40, 0x24, 0x05})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded gamepad.State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *s, decoded)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	dpad := raw["dpad"].(map[string]any)
	assert.Equal(t, "down", dpad["direction"])
}

func TestString(t *testing.T) {
	s := gamepad.NewState()
	assert.Equal(t, "LX:  0 LY:  0 RX:  0 RY:  0 | DPAD:NONE | Btns:NONE | RAW: 00 00", s.String())

	s.Decode([]byte{10, 20, 30, 40, 0x24, 0x05})
	assert.Equal(t, "LX: 10 LY: 20 RX: 30 RY: 40 | DPAD:DOWN | Btns:ALBLT | RAW: 24 05", s.String())

	s.Decode([]byte{255, 0, 0, 0, 0x0B, 0x00})
	assert.Equal(t, "LX:255 LY:  0 RX:  0 RY:  0 | DPAD:UNKNOWN | Btns:NONE | RAW: 0b 00", s.String())
}
