package gamepad

import "fmt"

// Direction is the decoded D-pad position.
type Direction uint8

const (
	DirectionUp Direction = iota
	DirectionUpRight
	DirectionRight
	DirectionDownRight
	DirectionDown
	DirectionDownLeft
	DirectionLeft
	DirectionUpLeft
	DirectionNone
	// DirectionUnrecognized covers nibble values 9-15.
	DirectionUnrecognized
)

var directionNames = [...]string{
	DirectionUp:           "up",
	DirectionUpRight:      "up-right",
	DirectionRight:        "right",
	DirectionDownRight:    "down-right",
	DirectionDown:         "down",
	DirectionDownLeft:     "down-left",
	DirectionLeft:         "left",
	DirectionUpLeft:       "up-left",
	DirectionNone:         "none",
	DirectionUnrecognized: "unrecognized",
}

// DirectionFromNibble maps the low nibble of report byte 4.
func DirectionFromNibble(n uint8) Direction {
	if n <= uint8(DirectionNone) {
		return Direction(n)
	}
	return DirectionUnrecognized
}

func (d Direction) nibble() uint8 {
	if d > DirectionNone {
		return uint8(DirectionNone)
	}
	return uint8(d)
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	for i, name := range directionNames {
		if name == string(text) {
			*d = Direction(i)
			return nil
		}
	}
	return fmt.Errorf("unknown direction %q", text)
}

// Up reports whether the direction includes the up component; likewise for
// the other three helpers.
func (d Direction) Up() bool {
	return d == DirectionUp || d == DirectionUpRight || d == DirectionUpLeft
}

func (d Direction) Down() bool {
	return d == DirectionDown || d == DirectionDownRight || d == DirectionDownLeft
}

func (d Direction) Left() bool {
	return d == DirectionLeft || d == DirectionUpLeft || d == DirectionDownLeft
}

func (d Direction) Right() bool {
	return d == DirectionRight || d == DirectionUpRight || d == DirectionDownRight
}
