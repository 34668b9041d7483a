package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"padscope/internal/logging"
	"padscope/pkg/bridge/ws"
	"padscope/pkg/config"
	"padscope/pkg/engine"
	"padscope/pkg/logger"
	"padscope/pkg/metrics"
	"padscope/pkg/transport"
	"padscope/pkg/tui"
)

const jsonlSubscriberBuf = 4096

type RunCmd struct {
	Transport string   `help:"Transport kind: serial, tcp or file" env:"PADSCOPE_TRANSPORT"`
	Port      string   `help:"Serial device path" env:"PADSCOPE_PORT"`
	Baud      int      `help:"Serial baud rate"`
	Addr      string   `help:"TCP address of a serial bridge"`
	Path      string   `help:"Captured stream to replay (file transport)" type:"path"`
	StateType []string `help:"Message types carrying input state, or 'any'" name:"state-type"`
	JSONL     string   `help:"Write packets as JSON lines to this file ('-' for stdout)" name:"jsonl"`
	Bridge    string   `help:"Serve the websocket bridge on this address"`
	NoBridge  bool     `help:"Disable the websocket bridge even if configured"`
	TUI       bool     `help:"Show the terminal view" name:"tui"`
}

// apply overlays flags set on the command line.
func (r *RunCmd) apply(cfg *config.Config) {
	if r.Transport != "" {
		cfg.Transport.Kind = r.Transport
	}
	if r.Port != "" {
		cfg.Transport.Port = r.Port
	}
	if r.Baud > 0 {
		cfg.Transport.Baud = r.Baud
	}
	if r.Addr != "" {
		cfg.Transport.Addr = r.Addr
	}
	if r.Path != "" {
		cfg.Transport.Path = r.Path
	}
	if len(r.StateType) > 0 {
		cfg.Session.StateTypes = r.StateType
	}
	if r.JSONL != "" {
		cfg.JSONL.Path = r.JSONL
	}
	if r.Bridge != "" {
		cfg.Bridge.Enabled = true
		cfg.Bridge.Addr = r.Bridge
	}
	if r.NoBridge {
		cfg.Bridge.Enabled = false
	}
}

func (r *RunCmd) Run(a *app) error {
	cfg := a.cfg
	r.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := a.log
	if r.TUI {
		// The terminal view owns the screen; keep only the file log.
		quiet, closer, err := logging.Setup(a.logLevel, a.logFile, io.Discard)
		if err != nil {
			return err
		}
		defer closer.Close()
		log = quiet
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewCollector(metrics.WithNamespace(cfg.Metrics.Namespace), metrics.WithRegistry(reg))

	sessOpts, err := sessionOptions(&cfg)
	if err != nil {
		return err
	}

	hub := engine.NewHub()
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	sink := engine.NewHubSink(hub)
	sess := engine.NewSession(append(sessOpts,
		engine.WithLogger(log.With().Str("component", "session").Logger()),
		engine.WithSink(sink),
		engine.WithMetrics(m),
	)...)

	supOpts := []transport.SupervisorOption{
		transport.WithReconnectInterval(cfg.Reconnect()),
		transport.WithReconnectMax(cfg.ReconnectMax()),
		transport.WithErrorHandler(func(err error) {
			log.Warn().Err(err).Msg("transport error")
		}),
	}
	if cfg.Transport.Kind == config.TransportFile {
		supOpts = append(supOpts, transport.WithOneShot())
	}
	sup := transport.NewSupervisor(openFunc(&cfg), supOpts...)

	ctx, cancel := context.WithCancel(a.ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.JSONL.Path != "" {
		out, closeOut, err := openJSONL(cfg.JSONL.Path, a.stdout)
		if err != nil {
			return err
		}
		defer closeOut()
		writer := logger.NewJSONLWriter(out)
		sub := hub.SubscribeWithBuffer(jsonlSubscriberBuf)
		g.Go(func() error {
			// Runs until the hub closes the subscription.
			return writer.Consume(context.Background(), sub)
		})
	}

	if cfg.Bridge.Enabled {
		srv := ws.NewServer(ws.Config{Addr: cfg.Bridge.Addr, Name: "padscope"}, hub,
			ws.WithLogger(log.With().Str("component", "bridge").Logger()),
			ws.WithGatherer(reg),
		)
		srv.Subscribe()
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	if r.TUI {
		model := tui.NewModel(fmt.Sprintf("padscope %s", describeTransport(&cfg)), hub.Subscribe())
		g.Go(func() error {
			defer cancel()
			return tui.Run(gctx, model, tea.WithOutput(a.stdout))
		})
	}

	g.Go(func() error {
		defer cancel()
		defer stopHub()
		log.Info().Str("transport", describeTransport(&cfg)).Str("state_types", stateTypesLabel(&cfg)).Msg("starting")
		return sup.Run(gctx, func(ctx context.Context, src transport.Source) error {
			log.Info().Str("source", sourceName(src)).Msg("connected")
			err := sess.Run(ctx, src)
			log.Info().Str("source", sourceName(src)).Msg("disconnected")
			return err
		})
	})

	err = g.Wait()
	log.Debug().Uint64("dropped", hub.Dropped()).Msg("stopped")
	return err
}

func sessionOptions(cfg *config.Config) ([]engine.SessionOption, error) {
	types, matchAll, err := cfg.StateTypes()
	if err != nil {
		return nil, err
	}
	opts := []engine.SessionOption{engine.WithResetOnOpen(cfg.ResetOnOpen())}
	if matchAll {
		opts = append(opts, engine.WithAnyStateType())
	} else {
		opts = append(opts, engine.WithStateTypes(types...))
	}
	return opts, nil
}

func openFunc(cfg *config.Config) transport.OpenFunc {
	opts := []transport.Option{
		transport.WithBufferSize(cfg.Transport.ReaderBuf),
		transport.WithReadTimeout(cfg.ReadTimeout()),
	}
	t := cfg.Transport
	switch t.Kind {
	case config.TransportTCP:
		return func(ctx context.Context) (transport.Source, error) {
			src, err := transport.DialTCP(ctx, t.Addr, opts...)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	case config.TransportFile:
		return func(context.Context) (transport.Source, error) {
			src, err := transport.OpenFile(t.Path, opts...)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	default:
		opts = append(opts, transport.WithBaudRate(t.Baud))
		return func(context.Context) (transport.Source, error) {
			src, err := transport.OpenSerial(t.Port, opts...)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}
}

func describeTransport(cfg *config.Config) string {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportTCP:
		return "tcp://" + t.Addr
	case config.TransportFile:
		return "file://" + t.Path
	default:
		return fmt.Sprintf("serial://%s@%d", t.Port, t.Baud)
	}
}

func sourceName(src transport.Source) string {
	if named, ok := src.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "source"
}

func openJSONL(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open jsonl: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// stateTypesLabel renders the configured state-bearing types for logs.
func stateTypesLabel(cfg *config.Config) string {
	types, matchAll, err := cfg.StateTypes()
	if err != nil || matchAll {
		return config.StateTypesAny
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.String()
	}
	return strings.Join(names, ",")
}
