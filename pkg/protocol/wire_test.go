package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padscope/pkg/protocol"
)

func TestUnstuff(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
		want  []byte
	}{
		{name: "empty", frame: []byte{}, want: []byte{}},
		{name: "plain", frame: []byte{0x01, 0x02, 0x03}, want: []byte{0x01, 0x02, 0x03}},
		{name: "escaped end marker", frame: []byte{0x7D, 0x5F}, want: []byte{0x7F}},
		{name: "escaped start marker", frame: []byte{0x01, 0x7D, 0x5E, 0x02}, want: []byte{0x01, 0x7E, 0x02}},
		{name: "escaped escape", frame: []byte{0x7D, 0x5D}, want: []byte{0x7D}},
		{name: "non reserved escape is still xored", frame: []byte{0x7D, 0x41}, want: []byte{0x61}},
		{name: "dangling escape truncates", frame: []byte{0x01, 0x02, 0x7D}, want: []byte{0x01, 0x02}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, protocol.Unstuff(tc.frame))
		})
	}
}

func TestStuffEscapesReservedBytes(t *testing.T) {
	got := protocol.Stuff([]byte{0x7E, 0x01, 0x7D, 0x7F})
	assert.Equal(t, []byte{0x7D, 0x5E, 0x01, 0x7D, 0x5D, 0x7D, 0x5F}, got)
}

func TestStuffRoundTripAllBytes(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	stuffed := protocol.Stuff(payload)
	for i, b := range stuffed {
		if b == protocol.EscapeMarker {
			continue
		}
		if i > 0 && stuffed[i-1] == protocol.EscapeMarker {
			continue
		}
		require.False(t, protocol.IsReserved(b), "reserved byte 0x%02x left unescaped at %d", b, i)
	}
	assert.Equal(t, payload, protocol.Unstuff(stuffed))
}

func TestWrapRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x0A, 0x14, 0x1E, 0x28, 0x24, 0x05}
	wire := protocol.Wrap(payload)
	require.Equal(t, protocol.StartMarker, wire[0])
	require.Equal(t, protocol.EndMarker, wire[len(wire)-1])
	assert.Equal(t, payload, protocol.Unstuff(wire[1:len(wire)-1]))
}

func TestHexDumpTrimsTrailingZeros(t *testing.T) {
	assert.Equal(t, "0a 00 ff", protocol.HexDump([]byte{0x0A, 0x00, 0xFF, 0x00, 0x00}))
	assert.Equal(t, "", protocol.HexDump([]byte{0x00, 0x00}))
	assert.Equal(t, "0x7f", protocol.FormatTag(0x7F))
}
