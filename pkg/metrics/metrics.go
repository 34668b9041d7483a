// Package metrics exposes framing and decoding counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"padscope/pkg/protocol"
)

// Config configures a Collector.
type Config struct {
	Namespace string
	Subsystem string
	// Registry receives all collectors. Default: a fresh private registry.
	Registry *prometheus.Registry
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		if registry != nil {
			c.Registry = registry
		}
	}
}

// Collector holds the session metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	registry *prometheus.Registry

	bytesReceived  prometheus.Counter
	bytesDiscarded prometheus.Counter
	frames         *prometheus.CounterVec
	emptyFrames    prometheus.Counter
	stateUpdates   prometheus.Counter
	shortPayloads  prometheus.Counter
	abandoned      *prometheus.CounterVec
	sessions       prometheus.Counter
	pendingBytes   prometheus.Gauge
}

func NewCollector(opts ...Option) *Collector {
	cfg := Config{Namespace: "padscope"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(cfg.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Collector{
		registry:       cfg.Registry,
		bytesReceived:  counter("bytes_received_total", "Bytes received from the transport"),
		bytesDiscarded: counter("bytes_discarded_total", "Bytes dropped outside any frame"),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "frames_total",
			Help:      "Decoded frames by message type",
		}, []string{"type"}),
		emptyFrames:   counter("empty_frames_total", "Frames that decoded to an empty payload"),
		stateUpdates:  counter("state_updates_total", "Input-state payloads applied to the gamepad state"),
		shortPayloads: counter("short_payloads_total", "Input-state payloads too short to decode"),
		abandoned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "abandoned_fragments_total",
			Help:      "Partial frames dropped when a session ended",
		}, []string{"reason"}),
		sessions: counter("sessions_total", "Sessions opened"),
		pendingBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pending_bytes",
			Help:      "Bytes buffered for an unfinished frame",
		}),
	}
}

// Registry returns the registry backing c, for exposition.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) BytesReceived(n int) {
	if c == nil {
		return
	}
	c.bytesReceived.Add(float64(n))
}

func (c *Collector) BytesDiscarded(n uint64) {
	if c == nil || n == 0 {
		return
	}
	c.bytesDiscarded.Add(float64(n))
}

func (c *Collector) Frame(t protocol.MsgType) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(t.String()).Inc()
}

func (c *Collector) EmptyFrame() {
	if c == nil {
		return
	}
	c.emptyFrames.Inc()
}

func (c *Collector) StateUpdate() {
	if c == nil {
		return
	}
	c.stateUpdates.Inc()
}

func (c *Collector) ShortPayload() {
	if c == nil {
		return
	}
	c.shortPayloads.Inc()
}

// Abandoned records a fragment dropped at session end. reason is
// "partial_frame" or "dangling_escape".
func (c *Collector) Abandoned(reason string) {
	if c == nil {
		return
	}
	c.abandoned.WithLabelValues(reason).Inc()
}

func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessions.Inc()
}

func (c *Collector) Pending(n int) {
	if c == nil {
		return
	}
	c.pendingBytes.Set(float64(n))
}
