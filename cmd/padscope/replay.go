package main

import (
	"fmt"

	"padscope/pkg/engine"
	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
	"padscope/pkg/transport"
)

type ReplayCmd struct {
	File      string   `arg:"" help:"Captured byte stream" type:"existingfile"`
	Chunk     int      `help:"Bytes fed per read" default:"64"`
	Frames    bool     `help:"Also print every frame as hex"`
	StateType []string `help:"Message types carrying input state, or 'any'" name:"state-type"`
}

func (r *ReplayCmd) Run(a *app) error {
	cfg := a.cfg
	if len(r.StateType) > 0 {
		cfg.Session.StateTypes = r.StateType
	}
	opts, err := sessionOptions(&cfg)
	if err != nil {
		return err
	}

	var frames, states int
	opts = append(opts,
		engine.WithLogger(a.log.With().Str("component", "session").Logger()),
		engine.WithFrameSink(engine.FrameSinkFunc(func(msg protocol.Message) {
			frames++
			if r.Frames {
				fmt.Fprintf(a.stdout, "%s %s: %s\n", protocol.FormatTag(msg.Tag), msg.Type, protocol.HexDump(msg.Body))
			}
		})),
		engine.WithStateSink(engine.StateSinkFunc(func(st *gamepad.State) {
			states++
			fmt.Fprintln(a.stdout, st.String())
		})),
	)
	sess := engine.NewSession(opts...)

	src, err := transport.OpenFile(r.File, transport.WithBufferSize(r.Chunk))
	if err != nil {
		return err
	}
	defer src.Close()

	if err := sess.Run(a.ctx, src); err != nil {
		return fmt.Errorf("replay %s: %w", r.File, err)
	}
	a.log.Info().Int("frames", frames).Int("states", states).Str("file", r.File).Msg("replay finished")
	return nil
}
