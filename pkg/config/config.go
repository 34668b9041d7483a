package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"padscope/pkg/protocol"
)

const DefaultConfigPath = "padscope.toml"

// StateTypesAny decodes the input-state report from every message type.
const StateTypesAny = "any"

type Config struct {
	Transport TransportConfig `toml:"transport"`
	Session   SessionConfig   `toml:"session"`
	Log       LogConfig       `toml:"log"`
	JSONL     JSONLConfig     `toml:"jsonl"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Metrics   MetricsConfig   `toml:"metrics"`

	configPath string
}

type TransportConfig struct {
	Kind         string `toml:"kind"`
	Port         string `toml:"port"`
	Baud         int    `toml:"baud"`
	Addr         string `toml:"addr"`
	Path         string `toml:"path,omitempty"`
	ReadTimeout  string `toml:"read_timeout"`
	Reconnect    string `toml:"reconnect"`
	ReconnectMax string `toml:"reconnect_max"`
	ReaderBuf    int    `toml:"reader_buf"`
}

type SessionConfig struct {
	StateTypes  []string `toml:"state_types"`
	ResetOnOpen *bool    `toml:"reset_on_open"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file,omitempty"`
}

type JSONLConfig struct {
	Path string `toml:"path,omitempty"`
}

type BridgeConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
	TransportFile   = "file"
)

func Default() Config {
	reset := true
	return Config{
		Transport: TransportConfig{
			Kind:         TransportSerial,
			Port:         "/dev/ttyACM0",
			Baud:         115200,
			Addr:         "127.0.0.1:19021",
			ReadTimeout:  "200ms",
			Reconnect:    "1s",
			ReconnectMax: "30s",
			ReaderBuf:    4096,
		},
		Session: SessionConfig{
			StateTypes:  []string{protocol.MsgCurrentConfiguration.String()},
			ResetOnOpen: &reset,
		},
		Log: LogConfig{
			Level: "info",
		},
		Bridge: BridgeConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
		Metrics: MetricsConfig{
			Namespace: "padscope",
		},
	}
}

func Load(path string) (Config, error) {
	cfg, exists, err := LoadOrDefault(path)
	if err != nil {
		return Config{}, err
	}
	if !exists {
		return Config{}, os.ErrNotExist
	}
	return cfg, nil
}

// LoadOrDefault reads path, filling unset fields with defaults. A missing
// file yields the defaults and exists=false.
func LoadOrDefault(path string) (Config, bool, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg := Default()
	cfg.configPath = path

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.normalize()
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, true, fmt.Errorf("parse config: %w", err)
	}
	cfg.configPath = path
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, true, err
	}
	return cfg, true, nil
}

func (cfg *Config) Save(path string) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cfg.configPath = path
	return nil
}

func (cfg *Config) ConfigPath() string {
	return cfg.configPath
}

func (cfg *Config) Validate() error {
	switch cfg.Transport.Kind {
	case TransportSerial:
		if cfg.Transport.Port == "" {
			return errors.New("transport.port is required for serial transport")
		}
		if cfg.Transport.Baud <= 0 {
			return fmt.Errorf("transport.baud must be positive: %d", cfg.Transport.Baud)
		}
	case TransportTCP:
		if cfg.Transport.Addr == "" {
			return errors.New("transport.addr is required for tcp transport")
		}
	case TransportFile:
		if cfg.Transport.Path == "" {
			return errors.New("transport.path is required for file transport")
		}
	default:
		return fmt.Errorf("transport.kind must be serial, tcp or file: %q", cfg.Transport.Kind)
	}

	for key, value := range map[string]string{
		"transport.read_timeout":  cfg.Transport.ReadTimeout,
		"transport.reconnect":     cfg.Transport.Reconnect,
		"transport.reconnect_max": cfg.Transport.ReconnectMax,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive: %s", key, value)
		}
	}

	if _, _, err := cfg.StateTypes(); err != nil {
		return err
	}
	if cfg.Bridge.Enabled && cfg.Bridge.Addr == "" {
		return errors.New("bridge.addr is required when the bridge is enabled")
	}
	return nil
}

// StateTypes resolves session.state_types. matchAll is true when the list
// contains "any".
func (cfg *Config) StateTypes() (types []protocol.MsgType, matchAll bool, err error) {
	for _, name := range cfg.Session.StateTypes {
		if strings.EqualFold(strings.TrimSpace(name), StateTypesAny) {
			return nil, true, nil
		}
		t, err := protocol.ParseMsgType(name)
		if err != nil {
			return nil, false, fmt.Errorf("session.state_types: %w", err)
		}
		types = append(types, t)
	}
	return types, false, nil
}

func (cfg *Config) ResetOnOpen() bool {
	return cfg.Session.ResetOnOpen == nil || *cfg.Session.ResetOnOpen
}

func (cfg *Config) ReadTimeout() time.Duration {
	return mustDuration(cfg.Transport.ReadTimeout, Default().Transport.ReadTimeout)
}

func (cfg *Config) Reconnect() time.Duration {
	return mustDuration(cfg.Transport.Reconnect, Default().Transport.Reconnect)
}

func (cfg *Config) ReconnectMax() time.Duration {
	return mustDuration(cfg.Transport.ReconnectMax, Default().Transport.ReconnectMax)
}

func mustDuration(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func (cfg *Config) normalize() {
	def := Default()

	cfg.Transport.Kind = strings.ToLower(strings.TrimSpace(cfg.Transport.Kind))
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = def.Transport.Kind
	}
	if cfg.Transport.Port == "" {
		cfg.Transport.Port = def.Transport.Port
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = def.Transport.Baud
	}
	if cfg.Transport.Addr == "" {
		cfg.Transport.Addr = def.Transport.Addr
	}
	if cfg.Transport.ReadTimeout == "" {
		cfg.Transport.ReadTimeout = def.Transport.ReadTimeout
	}
	if cfg.Transport.Reconnect == "" {
		cfg.Transport.Reconnect = def.Transport.Reconnect
	}
	if cfg.Transport.ReconnectMax == "" {
		cfg.Transport.ReconnectMax = def.Transport.ReconnectMax
	}
	if cfg.Transport.ReaderBuf <= 0 {
		cfg.Transport.ReaderBuf = def.Transport.ReaderBuf
	}
	if len(cfg.Session.StateTypes) == 0 {
		cfg.Session.StateTypes = append([]string(nil), def.Session.StateTypes...)
	}
	if cfg.Session.ResetOnOpen == nil {
		cfg.Session.ResetOnOpen = def.Session.ResetOnOpen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Bridge.Addr == "" {
		cfg.Bridge.Addr = def.Bridge.Addr
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = def.Metrics.Namespace
	}

	if cfg.Transport.Path != "" && cfg.configPath != "" && !filepath.IsAbs(cfg.Transport.Path) {
		cfg.Transport.Path = filepath.Join(filepath.Dir(cfg.configPath), cfg.Transport.Path)
	}
}
