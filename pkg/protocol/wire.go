package protocol

const (
	StartMarker  byte = 0x7E
	EndMarker    byte = 0x7F
	EscapeMarker byte = 0x7D
	EscapeXor    byte = 0x20
)

// IsReserved reports whether b must be escaped on the wire.
func IsReserved(b byte) bool {
	return b == StartMarker || b == EndMarker || b == EscapeMarker
}

// Unstuff removes byte-stuffing from a raw frame (markers already stripped).
// Any byte following an escape marker is XORed back, whether or not it was a
// reserved value. A dangling escape at the end truncates the output there.
func Unstuff(frame []byte) []byte {
	if len(frame) == 0 {
		return []byte{}
	}

	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); {
		b := frame[i]
		if b != EscapeMarker {
			out = append(out, b)
			i++
			continue
		}
		if i+1 >= len(frame) {
			break
		}
		out = append(out, frame[i+1]^EscapeXor)
		i += 2
	}
	return out
}

// Stuff escapes every reserved byte in payload.
func Stuff(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+len(payload)/8)
	for _, b := range payload {
		if IsReserved(b) {
			out = append(out, EscapeMarker, b^EscapeXor)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Wrap builds a complete on-wire frame for payload.
func Wrap(payload []byte) []byte {
	stuffed := Stuff(payload)
	out := make([]byte, 0, len(stuffed)+2)
	out = append(out, StartMarker)
	out = append(out, stuffed...)
	return append(out, EndMarker)
}
