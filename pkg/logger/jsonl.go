package logger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

// JSONLWriter writes one JSON object per packet.
type JSONLWriter struct {
	enc *json.Encoder
}

// Record is the JSON shape of one packet, shared with the websocket bridge.
type Record struct {
	TS         string         `json:"ts"`
	Kind       string         `json:"kind"`
	Type       string         `json:"type"`
	Tag        string         `json:"tag"`
	PayloadHex string         `json:"payload_hex"`
	State      *gamepad.State `json:"state,omitempty"`
	Summary    string         `json:"summary,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write encodes a single packet.
func (j *JSONLWriter) Write(pkt protocol.Packet) error {
	return j.enc.Encode(NewRecord(pkt))
}

func (j *JSONLWriter) Consume(ctx context.Context, in <-chan protocol.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-in:
			if !ok {
				return nil
			}
			if err := j.Write(pkt); err != nil {
				return err
			}
		}
	}
}

func NewRecord(pkt protocol.Packet) Record {
	ts := pkt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := Record{
		TS:         ts.UTC().Format(time.RFC3339Nano),
		Kind:       pkt.Kind.String(),
		Type:       pkt.Type.String(),
		Tag:        protocol.FormatTag(pkt.Tag),
		PayloadHex: hex.EncodeToString(pkt.Payload),
	}
	if st, ok := pkt.Data.(gamepad.State); ok {
		rec.State = &st
		rec.Summary = st.String()
	}
	return rec
}
