package main

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"padscope/pkg/engine"
	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

type DecodeCmd struct {
	Hex []string `arg:"" help:"Frame bytes as hex, with or without the 7e..7f markers"`
	Any bool     `help:"Decode input state from every message type"`
}

func (d *DecodeCmd) Run(a *app) error {
	raw, err := parseHex(d.Hex)
	if err != nil {
		return err
	}

	cfg := a.cfg
	if d.Any {
		cfg.Session.StateTypes = []string{"any"}
	}
	opts, err := sessionOptions(&cfg)
	if err != nil {
		return err
	}

	lines := 0
	opts = append(opts,
		engine.WithFrameSink(engine.FrameSinkFunc(func(msg protocol.Message) {
			lines++
			fmt.Fprintf(a.stdout, "%s %s: %s\n", protocol.FormatTag(msg.Tag), msg.Type, protocol.HexDump(msg.Body))
		})),
		engine.WithStateSink(engine.StateSinkFunc(func(st *gamepad.State) {
			fmt.Fprintln(a.stdout, st.String())
		})),
	)
	sess := engine.NewSession(opts...)

	// Bare payloads are framed so they take the same path as wire bytes.
	if bytes.IndexByte(raw, protocol.StartMarker) < 0 {
		raw = append(append([]byte{protocol.StartMarker}, raw...), protocol.EndMarker)
	}
	sess.Feed(raw)
	if lines == 0 {
		return errors.New("no complete frame in input")
	}
	if n := sess.Pending(); n > 0 {
		a.log.Warn().Int("bytes", n).Msg("trailing bytes without an end marker")
	}
	return nil
}

func parseHex(parts []string) ([]byte, error) {
	joined := strings.Join(parts, "")
	joined = strings.NewReplacer(" ", "", ":", "", "0x", "", "0X", "").Replace(joined)
	raw, err := hex.DecodeString(joined)
	if err != nil {
		return nil, fmt.Errorf("parse hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("no bytes to decode")
	}
	return raw, nil
}
