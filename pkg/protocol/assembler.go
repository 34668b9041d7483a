package protocol

import (
	"bytes"
	"iter"
)

// AssemblerStats are cumulative counters for one Assembler.
type AssemblerStats struct {
	BytesIn        uint64
	BytesDiscarded uint64
	Frames         uint64
	Reanchors      uint64
}

// Assembler accumulates transport reads and cuts them into raw frames.
//
// Between calls the accumulator is either empty or starts with a start marker
// that has not been closed yet. Bytes outside a frame are dropped silently.
type Assembler struct {
	buf   []byte
	stats AssemblerStats
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Submit appends chunk and returns every complete frame now available, in
// order. Frames are still byte-stuffed, without markers, and owned by the
// caller.
func (a *Assembler) Submit(chunk []byte) [][]byte {
	var frames [][]byte
	for frame := range a.Frames(chunk) {
		frames = append(frames, frame)
	}
	return frames
}

// Frames appends chunk and yields complete frames lazily. Stopping the
// iteration early leaves the remaining bytes buffered for the next call.
func (a *Assembler) Frames(chunk []byte) iter.Seq[[]byte] {
	a.buf = append(a.buf, chunk...)
	a.stats.BytesIn += uint64(len(chunk))

	return func(yield func([]byte) bool) {
		for {
			frame, ok := a.next()
			if !ok {
				return
			}
			if !yield(frame) {
				return
			}
		}
	}
}

// next extracts one frame from the accumulator if a boundary is resolved.
func (a *Assembler) next() ([]byte, bool) {
	start := bytes.IndexByte(a.buf, StartMarker)
	if start < 0 {
		a.discard(len(a.buf))
		return nil, false
	}
	a.discard(start)

	i := 1
	for i < len(a.buf) {
		switch a.buf[i] {
		case EscapeMarker:
			i += 2
		case EndMarker:
			frame := append([]byte(nil), a.buf[1:i]...)
			a.consume(i + 1)
			a.stats.Frames++
			return frame, true
		case StartMarker:
			// An unescaped start marker abandons the frame opened before it.
			a.discard(i)
			a.stats.Reanchors++
			i = 1
		default:
			i++
		}
	}
	return nil, false
}

func (a *Assembler) discard(n int) {
	if n <= 0 {
		return
	}
	a.stats.BytesDiscarded += uint64(n)
	a.consume(n)
}

func (a *Assembler) consume(n int) {
	a.buf = a.buf[:copy(a.buf, a.buf[n:])]
}

// Pending returns the number of buffered bytes belonging to an open frame.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// DanglingEscape reports whether the buffered fragment ends inside an escape
// pair.
func (a *Assembler) DanglingEscape() bool {
	if len(a.buf) == 0 {
		return false
	}
	i := 1
	for i < len(a.buf) {
		if a.buf[i] == EscapeMarker {
			if i+1 >= len(a.buf) {
				return true
			}
			i += 2
			continue
		}
		i++
	}
	return false
}

// Reset drops any buffered fragment and returns how many bytes were lost.
func (a *Assembler) Reset() int {
	n := len(a.buf)
	a.buf = a.buf[:0]
	return n
}

func (a *Assembler) Stats() AssemblerStats {
	return a.stats
}
