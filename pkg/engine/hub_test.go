package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padscope/pkg/engine"
	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

func TestHubDoesNotBlockOnSlowConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub(engine.WithBroadcastBuffer(1), engine.WithClientBuffer(1))
	go hub.Run(ctx)

	fast := hub.SubscribeWithBuffer(128)
	slow := hub.SubscribeWithBuffer(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			hub.Publish(protocol.Packet{Tag: uint8(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatalf("publish blocked on slow consumer")
	}

	received := 0
	timeout := time.After(1 * time.Second)
	for received < 50 {
		select {
		case <-fast:
			received++
		case <-timeout:
			t.Fatalf("fast consumer timeout after %d packets", received)
		}
	}

	count := 0
	for {
		select {
		case <-slow:
			count++
		default:
			assert.LessOrEqual(t, count, 1)
			assert.Positive(t, hub.Dropped())
			return
		}
	}
}

func TestHubFiltersByKind(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub()
	go hub.Run(ctx)

	states := hub.Subscribe(protocol.KindState)
	all := hub.Subscribe()

	hub.Publish(protocol.Packet{Kind: protocol.KindFrame})
	hub.Publish(protocol.Packet{Kind: protocol.KindState})

	got := readPacket(t, states)
	assert.Equal(t, protocol.KindState, got.Kind)
	assert.Equal(t, protocol.KindFrame, readPacket(t, all).Kind)
	assert.Equal(t, protocol.KindState, readPacket(t, all).Kind)
}

func TestHubStopClosesSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := engine.NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	ch := hub.Subscribe()
	cancel()
	<-stopped

	_, ok := <-ch
	assert.False(t, ok)

	// No goroutine is left to consume these; they must not block.
	hub.Publish(protocol.Packet{})
	hub.Unsubscribe(ch)
	_, ok = <-hub.Subscribe()
	assert.False(t, ok)
}

func TestHubStopDeliversQueuedPackets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := engine.NewHub()
	stopped := make(chan struct{})

	// Register before Run starts consuming broadcasts.
	subCh := make(chan chan protocol.Packet, 1)
	go func() { subCh <- hub.Subscribe() }()
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	sub := <-subCh

	for i := 0; i < 5; i++ {
		hub.Publish(protocol.Packet{Tag: uint8(i)})
	}
	cancel()
	<-stopped

	var tags []uint8
	for pkt := range sub {
		tags = append(tags, pkt.Tag)
	}
	assert.Equal(t, []uint8{0, 1, 2, 3, 4}, tags)
}

func TestHubUnsubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub()
	go hub.Run(ctx)

	ch := hub.Subscribe()
	hub.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestHubSinkPublishesSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub()
	go hub.Run(ctx)
	sub := hub.Subscribe()

	sink := engine.NewHubSink(hub)
	s := engine.NewSession(engine.WithFrameSink(sink), engine.WithStateSink(sink))
	s.Feed(stateFrame(10, 20, 30, 40, 0x24, 0x05))
	s.Feed(stateFrame(99, 20, 30, 40, 0x24, 0x05))

	frame := readPacket(t, sub)
	assert.Equal(t, protocol.KindFrame, frame.Kind)
	assert.Equal(t, protocol.MsgCurrentConfiguration, frame.Type)
	assert.Equal(t, []byte{10, 20, 30, 40, 0x24, 0x05}, frame.Payload)
	assert.False(t, frame.Timestamp.IsZero())

	state := readPacket(t, sub)
	require.Equal(t, protocol.KindState, state.Kind)
	snap, ok := state.Data.(gamepad.State)
	require.True(t, ok)
	assert.Equal(t, uint8(10), snap.Axes.LX, "snapshot must not follow later updates")

	readPacket(t, sub)
	later := readPacket(t, sub).Data.(gamepad.State)
	assert.Equal(t, uint8(99), later.Axes.LX)
}

func TestHubSinkStatePacketCarriesFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := engine.NewHub()
	go hub.Run(ctx)
	states := hub.Subscribe(protocol.KindState)

	s := engine.NewSession(engine.WithSink(engine.NewHubSink(hub)))
	s.Feed(stateFrame(10, 20, 30, 40, 0x24, 0x05))

	state := readPacket(t, states)
	assert.Equal(t, protocol.MsgCurrentConfiguration, state.Type)
	assert.Equal(t, byte(0x01), state.Tag)
	assert.Equal(t, []byte{10, 20, 30, 40, 0x24, 0x05}, state.Payload)
	snap, ok := state.Data.(gamepad.State)
	require.True(t, ok)
	assert.Equal(t, gamepad.DirectionDown, snap.DPad.Direction)
}

func readPacket(t *testing.T, ch <-chan protocol.Packet) protocol.Packet {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for packet")
		return protocol.Packet{}
	}
}
