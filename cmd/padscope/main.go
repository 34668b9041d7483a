package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"padscope/internal/logging"
	"padscope/pkg/config"
)

type LogFlags struct {
	Level string `help:"Log level: trace, debug, info, warn, error (default: from config)" env:"PADSCOPE_LOG_LEVEL"`
	File  string `help:"Also write JSON logs to this file" env:"PADSCOPE_LOG_FILE"`
}

// CLI is the root command structure for kong.
type CLI struct {
	Config string   `help:"Config file path" default:"padscope.toml" env:"PADSCOPE_CONFIG"`
	Log    LogFlags `embed:"" prefix:"log."`

	Run    RunCmd    `cmd:"" help:"Read a gamepad stream and fan it out to the configured sinks"`
	Replay ReplayCmd `cmd:"" help:"Decode a captured byte stream and print every state"`
	Mock   MockCmd   `cmd:"" help:"Serve a synthetic gamepad stream over TCP"`
	Decode DecodeCmd `cmd:"" help:"Decode hex frames given on the command line"`
}

// app carries what every command needs.
type app struct {
	ctx      context.Context
	cfg      config.Config
	log      zerolog.Logger
	logLevel string
	logFile  string
	stdout   io.Writer
	stderr   io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	var cli CLI
	exited, exitCode := false, 0
	parser, err := kong.New(&cli,
		kong.Name("padscope"),
		kong.Description("Host-side monitor for byte-stuffed serial gamepad streams."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) {
			exited, exitCode = true, code
		}),
	)
	if err != nil {
		fmt.Fprintln(stderr, "padscope:", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if exited {
		return exitCode
	}
	if err != nil {
		fmt.Fprintln(stderr, "padscope:", err)
		return 2
	}

	cfg, exists, err := config.LoadOrDefault(cli.Config)
	if err != nil {
		fmt.Fprintln(stderr, "padscope:", err)
		return 2
	}

	level := cli.Log.Level
	if level == "" {
		level = cfg.Log.Level
	}
	logFile := cli.Log.File
	if logFile == "" {
		logFile = cfg.Log.File
	}
	log, closer, err := logging.Setup(level, logFile, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "failed to setup logger:", err)
		return 2
	}
	defer closer.Close()

	if exists {
		log.Debug().Str("path", cfg.ConfigPath()).Msg("loaded config")
	} else {
		log.Debug().Str("path", cli.Config).Msg("config not found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{
		ctx:      ctx,
		cfg:      cfg,
		log:      log,
		logLevel: level,
		logFile:  logFile,
		stdout:   stdout,
		stderr:   stderr,
	}
	if err := kctx.Run(a); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		log.Error().Err(err).Str("command", kctx.Command()).Msg("command failed")
		return 1
	}
	return 0
}
