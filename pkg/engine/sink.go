package engine

import (
	"time"

	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

// HubSink publishes session output to a Hub. It implements both FrameSink
// and StateSink and must be registered for both, with WithSink: state
// packets take their type, tag and payload from the frame seen just before.
type HubSink struct {
	hub     *Hub
	now     func() time.Time
	lastMsg protocol.Message
}

func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub, now: time.Now}
}

func (s *HubSink) OnFrame(msg protocol.Message) {
	s.lastMsg = msg
	s.hub.Publish(protocol.Packet{
		Kind:      protocol.KindFrame,
		Type:      msg.Type,
		Tag:       msg.Tag,
		Timestamp: s.now(),
		Payload:   append([]byte(nil), msg.Body...),
	})
}

// OnGamepadState publishes a snapshot; the live state keeps changing after
// the call returns.
func (s *HubSink) OnGamepadState(state *gamepad.State) {
	s.hub.Publish(protocol.Packet{
		Kind:      protocol.KindState,
		Type:      s.lastMsg.Type,
		Tag:       s.lastMsg.Tag,
		Timestamp: s.now(),
		Payload:   append([]byte(nil), s.lastMsg.Body...),
		Data:      *state,
	})
}
