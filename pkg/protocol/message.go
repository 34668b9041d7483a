package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// MsgType is the tag carried in the first byte of a decoded payload.
type MsgType uint8

const (
	MsgUpdateConfiguration     MsgType = 0x00
	MsgCurrentConfiguration    MsgType = 0x01
	MsgErrorFIFORead           MsgType = 0x02
	MsgErrorPackingFailed      MsgType = 0x03
	MsgErrorTransportFailed    MsgType = 0x04
	MsgErrorInvalidData        MsgType = 0x05
	MsgErrorDeviceDisconnected MsgType = 0x06

	// MsgUnknown stands for any tag outside the known set.
	MsgUnknown MsgType = 0xFF
)

var msgTypeNames = map[MsgType]string{
	MsgUpdateConfiguration:     "update_configuration",
	MsgCurrentConfiguration:    "current_configuration",
	MsgErrorFIFORead:           "error_fifo_read",
	MsgErrorPackingFailed:      "error_packing_failed",
	MsgErrorTransportFailed:    "error_transport_failed",
	MsgErrorInvalidData:        "error_invalid_data",
	MsgErrorDeviceDisconnected: "error_device_disconnected",
	MsgUnknown:                 "unknown",
}

// MsgTypeFromTag maps a raw tag byte to its MsgType.
func MsgTypeFromTag(tag byte) MsgType {
	t := MsgType(tag)
	if t == MsgUnknown {
		return MsgUnknown
	}
	if _, ok := msgTypeNames[t]; ok {
		return t
	}
	return MsgUnknown
}

// ParseMsgType accepts a type name or a numeric tag ("0x01", "1").
func ParseMsgType(s string) (MsgType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range msgTypeNames {
		if t != MsgUnknown && name == s {
			return t, nil
		}
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		if t := MsgTypeFromTag(uint8(n)); t != MsgUnknown {
			return t, nil
		}
	}
	return MsgUnknown, fmt.Errorf("unknown message type %q", s)
}

func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}

func (t MsgType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// IsError reports whether t is one of the device error categories.
func (t MsgType) IsError() bool {
	return t >= MsgErrorFIFORead && t <= MsgErrorDeviceDisconnected
}

// Message is a decoded payload split into its tag and body.
type Message struct {
	Type MsgType
	Tag  byte
	Body []byte
}

// ParseMessage splits payload into tag and body. It returns false for an
// empty payload.
func ParseMessage(payload []byte) (Message, bool) {
	if len(payload) == 0 {
		return Message{}, false
	}
	return Message{
		Type: MsgTypeFromTag(payload[0]),
		Tag:  payload[0],
		Body: payload[1:],
	}, true
}
