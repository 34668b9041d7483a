package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padscope/pkg/engine"
	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
	"padscope/pkg/transport"
)

func TestMockStateSweep(t *testing.T) {
	st := mockState(0)
	assert.Equal(t, uint8(255), st.Axes.LX)
	assert.Equal(t, uint8(128), st.Axes.LY)
	assert.Equal(t, gamepad.DirectionUp, st.DPad.Direction)
	assert.Equal(t, []string{"X"}, st.Pressed())

	st = mockState(8 * mockDPadStep)
	assert.Equal(t, gamepad.DirectionNone, st.DPad.Direction)

	st = mockState(mockButtonStep)
	assert.Equal(t, []string{"A"}, st.Pressed())
}

func TestMockFrameDecodes(t *testing.T) {
	for _, elapsed := range []time.Duration{0, 730 * time.Millisecond, 3 * time.Second, 11 * time.Second} {
		want := mockState(elapsed)
		frames := protocol.NewAssembler().Submit(mockFrame(want))
		require.Len(t, frames, 1)

		msg, ok := protocol.ParseMessage(protocol.Unstuff(frames[0]))
		require.True(t, ok)
		assert.Equal(t, protocol.MsgCurrentConfiguration, msg.Type)

		got := gamepad.NewState()
		require.True(t, got.Decode(msg.Body))
		assert.Equal(t, want.Axes, got.Axes)
		assert.Equal(t, want.DPad.Direction, got.DPad.Direction)
		assert.Equal(t, want.Pressed(), got.Pressed())
	}
}

func TestMockNoiseNeverStartsFrame(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 500; i++ {
		assert.NotContains(t, mockNoise(rng), protocol.StartMarker)
	}
}

func TestMockFragmentsCoverWire(t *testing.T) {
	wire := mockFrame(mockState(time.Second))
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 50; i++ {
		parts := mockFragments(wire, true, rng)
		assert.Equal(t, wire, bytes.Join(parts, nil))
	}
	assert.Len(t, mockFragments(wire, false, rng), 1)
}

func TestServeMockEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() {
		served <- serveMock(ctx, ln, mockOptions{hz: 200, noise: true, seed: 7}, zerolog.Nop())
	}()

	src, err := transport.DialTCP(ctx, ln.Addr().String())
	require.NoError(t, err)

	states := make(chan gamepad.State, 16)
	sessCtx, stopSession := context.WithCancel(ctx)
	defer stopSession()
	sess := engine.NewSession(engine.WithStateSink(engine.StateSinkFunc(func(st *gamepad.State) {
		select {
		case states <- *st:
		default:
		}
	})))
	ran := make(chan error, 1)
	go func() { ran <- sess.Run(sessCtx, src) }()

	for i := 0; i < 5; i++ {
		select {
		case st := <-states:
			assert.Len(t, st.Pressed(), 1)
		case <-time.After(2 * time.Second):
			t.Fatalf("no state after %d reports", i)
		}
	}

	stopSession()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not stop")
	}
	_ = src.Close()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("mock server did not stop")
	}
}
