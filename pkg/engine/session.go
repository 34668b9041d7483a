package engine

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"padscope/pkg/gamepad"
	"padscope/pkg/metrics"
	"padscope/pkg/protocol"
	"padscope/pkg/transport"
)

// FrameSink receives every decoded, non-empty frame.
type FrameSink interface {
	OnFrame(msg protocol.Message)
}

// StateSink is notified after the gamepad state changed.
type StateSink interface {
	OnGamepadState(state *gamepad.State)
}

type FrameSinkFunc func(msg protocol.Message)

func (f FrameSinkFunc) OnFrame(msg protocol.Message) { f(msg) }

type StateSinkFunc func(state *gamepad.State)

func (f StateSinkFunc) OnGamepadState(state *gamepad.State) { f(state) }

// Session is the processing path for one device: it owns the frame
// assembler and the gamepad state. It is not safe for concurrent use; a
// single goroutine feeds it.
type Session struct {
	asm   *protocol.Assembler
	state *gamepad.State

	frameSinks  []FrameSink
	stateSinks  []StateSink
	stateTypes  map[protocol.MsgType]struct{}
	anyState    bool
	resetOnOpen bool

	logger  zerolog.Logger
	metrics *metrics.Collector
}

type SessionOption func(*Session)

func WithLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithFrameSink(sink FrameSink) SessionOption {
	return func(s *Session) {
		if sink != nil {
			s.frameSinks = append(s.frameSinks, sink)
		}
	}
}

func WithStateSink(sink StateSink) SessionOption {
	return func(s *Session) {
		if sink != nil {
			s.stateSinks = append(s.stateSinks, sink)
		}
	}
}

// Sink receives both frames and state changes.
type Sink interface {
	FrameSink
	StateSink
}

// WithSink registers sink for frames and state changes.
func WithSink(sink Sink) SessionOption {
	return func(s *Session) {
		if sink != nil {
			s.frameSinks = append(s.frameSinks, sink)
			s.stateSinks = append(s.stateSinks, sink)
		}
	}
}

// WithStateTypes selects which message types carry the input-state report.
func WithStateTypes(types ...protocol.MsgType) SessionOption {
	return func(s *Session) {
		if len(types) == 0 {
			return
		}
		s.stateTypes = make(map[protocol.MsgType]struct{}, len(types))
		for _, t := range types {
			s.stateTypes[t] = struct{}{}
		}
	}
}

// WithAnyStateType decodes the input-state report from every frame
// regardless of its tag.
func WithAnyStateType() SessionOption {
	return func(s *Session) {
		s.anyState = true
	}
}

func WithMetrics(m *metrics.Collector) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithResetOnOpen controls whether Open restores the neutral state.
func WithResetOnOpen(reset bool) SessionOption {
	return func(s *Session) {
		s.resetOnOpen = reset
	}
}

func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		asm:         protocol.NewAssembler(),
		state:       gamepad.NewState(),
		stateTypes:  map[protocol.MsgType]struct{}{protocol.MsgCurrentConfiguration: {}},
		resetOnOpen: true,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a new connection on this session.
func (s *Session) Open() {
	if n := s.asm.Reset(); n > 0 {
		s.logger.Debug().Int("bytes", n).Msg("dropped fragment from previous connection")
	}
	if s.resetOnOpen {
		s.state.Reset()
	}
	s.metrics.SessionOpened()
	s.metrics.Pending(0)
}

// Feed processes one transport chunk to completion and returns the number of
// frames delivered to the sinks.
func (s *Session) Feed(chunk []byte) int {
	s.metrics.BytesReceived(len(chunk))
	before := s.asm.Stats()

	delivered := 0
	for raw := range s.asm.Frames(chunk) {
		if s.handleFrame(raw) {
			delivered++
		}
	}

	after := s.asm.Stats()
	s.metrics.BytesDiscarded(after.BytesDiscarded - before.BytesDiscarded)
	s.metrics.Pending(s.asm.Pending())
	if after.Reanchors > before.Reanchors {
		s.logger.Debug().Uint64("count", after.Reanchors-before.Reanchors).Msg("abandoned unterminated frame at new start marker")
	}
	return delivered
}

func (s *Session) handleFrame(raw []byte) bool {
	payload := protocol.Unstuff(raw)
	msg, ok := protocol.ParseMessage(payload)
	if !ok {
		s.metrics.EmptyFrame()
		s.logger.Trace().Msg("empty frame")
		return false
	}

	s.metrics.Frame(msg.Type)
	if s.logger.GetLevel() <= zerolog.TraceLevel {
		s.logger.Trace().Str("type", msg.Type.String()).Str("payload", protocol.HexDump(msg.Body)).Msg("frame")
	}
	if msg.Type.IsError() {
		s.logger.Warn().Str("type", msg.Type.String()).Str("payload", protocol.HexDump(msg.Body)).Msg("device reported error")
	}
	for _, sink := range s.frameSinks {
		sink.OnFrame(msg)
	}

	if !s.carriesState(msg.Type) {
		return true
	}
	if !s.state.Decode(msg.Body) {
		s.metrics.ShortPayload()
		s.logger.Debug().Int("len", len(msg.Body)).Msg("input-state payload too short")
		return true
	}
	s.metrics.StateUpdate()
	for _, sink := range s.stateSinks {
		sink.OnGamepadState(s.state)
	}
	return true
}

func (s *Session) carriesState(t protocol.MsgType) bool {
	if s.anyState {
		return true
	}
	_, ok := s.stateTypes[t]
	return ok
}

// Run opens the session and feeds it from src until the stream ends or ctx
// is cancelled. End of stream returns nil; any buffered fragment is dropped.
func (s *Session) Run(ctx context.Context, src transport.Source) error {
	s.Open()
	defer s.abandon()

	for {
		chunk, err := src.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.Feed(chunk)
	}
}

func (s *Session) abandon() {
	pending := s.asm.Pending()
	if pending == 0 {
		return
	}
	reason := "partial_frame"
	if s.asm.DanglingEscape() {
		reason = "dangling_escape"
	}
	s.asm.Reset()
	s.metrics.Abandoned(reason)
	s.metrics.Pending(0)
	s.logger.Debug().Int("bytes", pending).Str("reason", reason).Msg("dropped unfinished frame at end of stream")
}

// State returns a copy of the latest gamepad state.
func (s *Session) State() gamepad.State {
	return *s.state
}

// Pending returns the number of bytes buffered for an unfinished frame.
func (s *Session) Pending() int {
	return s.asm.Pending()
}
