package protocol

import (
	"encoding/hex"
	"strings"
	"time"
)

// PacketKind distinguishes frame records from state snapshots.
type PacketKind uint8

const (
	KindFrame PacketKind = iota
	KindState
)

func (k PacketKind) String() string {
	if k == KindState {
		return "state"
	}
	return "frame"
}

// Packet is the normalized record flowing from a session to its sinks.
type Packet struct {
	Kind      PacketKind
	Type      MsgType
	Tag       byte
	Timestamp time.Time
	Payload   []byte
	Data      any
}

// HexDump renders payload as space separated hex with trailing zero bytes
// trimmed, the way the device's diagnostic panel shows frames.
func HexDump(payload []byte) string {
	end := len(payload)
	for end > 0 && payload[end-1] == 0x00 {
		end--
	}
	var sb strings.Builder
	for i, b := range payload[:end] {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// FormatTag renders a tag byte as "0x..".
func FormatTag(tag byte) string {
	return "0x" + hex.EncodeToString([]byte{tag})
}
