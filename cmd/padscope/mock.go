package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

const (
	mockLeftFreqHz  = 0.23
	mockRightFreqHz = 0.31

	mockLeftPhaseRad  = 0.0
	mockRightPhaseRad = math.Pi / 3.0

	// Each direction is held this long before the pad rotates.
	mockDPadStep = 500 * time.Millisecond
	// Buttons are pressed one at a time in report order.
	mockButtonStep = 300 * time.Millisecond
)

type MockCmd struct {
	Addr  string `help:"Listen address" default:"127.0.0.1:19021" env:"PADSCOPE_MOCK_ADDR"`
	Hz    int    `help:"Reports per second" default:"50"`
	Noise bool   `help:"Inject garbage between frames and split writes"`
	Seed  uint64 `help:"Noise seed (0 picks one from the clock)"`
}

func (m *MockCmd) Run(a *app) error {
	ln, err := net.Listen("tcp", m.Addr)
	if err != nil {
		return fmt.Errorf("mock listen %s: %w", m.Addr, err)
	}
	a.log.Info().Str("addr", ln.Addr().String()).Int("hz", m.Hz).Bool("noise", m.Noise).Msg("mock gamepad listening")
	seed := m.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return serveMock(a.ctx, ln, mockOptions{hz: m.Hz, noise: m.Noise, seed: seed}, a.log)
}

type mockOptions struct {
	hz    int
	noise bool
	seed  uint64
}

// serveMock streams to every accepted connection until ctx is cancelled.
func serveMock(ctx context.Context, ln net.Listener, opts mockOptions, log zerolog.Logger) error {
	if opts.hz <= 0 {
		opts.hz = 50
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for conn := 0; ; conn++ {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		log.Info().Str("remote", c.RemoteAddr().String()).Msg("mock client connected")
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			defer c.Close()
			err := streamMock(ctx, c, opts.hz, opts.noise, rand.New(rand.NewPCG(opts.seed, seed)))
			log.Info().Err(err).Str("remote", c.RemoteAddr().String()).Msg("mock client disconnected")
		}(uint64(conn))
	}
}

func streamMock(ctx context.Context, conn net.Conn, hz int, noise bool, rng *rand.Rand) error {
	interval := time.Second / time.Duration(hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	go func() {
		<-ctx.Done()
		_ = conn.SetWriteDeadline(time.Now())
	}()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st := mockState(time.Since(start))
			wire := mockFrame(st)
			if noise {
				wire = append(mockNoise(rng), wire...)
			}
			for _, part := range mockFragments(wire, noise, rng) {
				if _, err := conn.Write(part); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}
	}
}

// mockState sweeps the sticks on two circles, rotates the d-pad through
// every direction with a neutral gap, and walks the buttons.
func mockState(elapsed time.Duration) gamepad.State {
	t := elapsed.Seconds()
	st := gamepad.NewState()

	lAngle := 2.0*math.Pi*mockLeftFreqHz*t + mockLeftPhaseRad
	rAngle := 2.0*math.Pi*mockRightFreqHz*t + mockRightPhaseRad
	st.Axes = gamepad.Axes{
		LX: axis(math.Cos(lAngle)),
		LY: axis(math.Sin(lAngle)),
		RX: axis(math.Cos(rAngle)),
		RY: axis(math.Sin(rAngle)),
	}

	step := int(elapsed / mockDPadStep)
	if dir := gamepad.Direction(step % 9); dir <= gamepad.DirectionUpLeft {
		st.DPad.Direction = dir
	}

	buttons := []*bool{
		&st.Buttons.X, &st.Buttons.A, &st.Buttons.B, &st.Buttons.Y,
		&st.Buttons.LB, &st.Buttons.RB, &st.Buttons.LT, &st.Buttons.RT,
		&st.Buttons.Back, &st.Buttons.Start, &st.Buttons.L3, &st.Buttons.R3,
	}
	*buttons[int(elapsed/mockButtonStep)%len(buttons)] = true
	return *st
}

func axis(v float64) uint8 {
	return uint8(math.Round(127.5 + 127.5*v))
}

// mockFrame encodes st as a framed current-configuration message.
func mockFrame(st gamepad.State) []byte {
	payload := append([]byte{byte(protocol.MsgCurrentConfiguration)}, st.Report()...)
	return protocol.Wrap(payload)
}

// mockNoise returns a few bytes of line garbage. It never contains the start
// marker, so it cannot begin a frame on its own.
func mockNoise(rng *rand.Rand) []byte {
	n := rng.IntN(4)
	out := make([]byte, 0, n)
	for len(out) < n {
		b := byte(rng.IntN(256))
		if b == protocol.StartMarker {
			continue
		}
		out = append(out, b)
	}
	return out
}

func mockFragments(wire []byte, split bool, rng *rand.Rand) [][]byte {
	if !split || len(wire) < 2 {
		return [][]byte{wire}
	}
	var parts [][]byte
	for len(wire) > 0 {
		n := min(1+rng.IntN(len(wire)), len(wire))
		parts = append(parts, wire[:n])
		wire = wire[n:]
	}
	return parts
}
