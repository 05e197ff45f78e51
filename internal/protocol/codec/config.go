package codec

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is scoped to one Engine and every Message it creates.
type Config struct {
	// Diagnostics retains a Diagnostic on the Message for each bounds
	// failure.
	Diagnostics bool
	// MaxDiagnostics caps retained diagnostics; 0 means no cap.
	MaxDiagnostics int
	// OmitNullTerminator drops the trailing zero byte when packing
	// null-terminated strings.
	OmitNullTerminator bool
	// LogBoundsFailures emits a warn line per bounds failure.
	LogBoundsFailures bool
}

func DefaultConfig() Config {
	return Config{
		Diagnostics:    true,
		MaxDiagnostics: 64,
	}
}

// Recorder receives one observation per top-level codec operation.
type Recorder interface {
	ObserveCodec(schema, op string, bytes int, ok bool)
}

type Engine struct {
	cfg     Config
	logger  *zerolog.Logger
	metrics Recorder
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = &l }
}

func WithMetrics(r Recorder) Option {
	return func(e *Engine) { e.metrics = r }
}

// New returns an Engine. It holds no per-call state and is safe for
// concurrent use.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) log() *zerolog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return &log.Logger
}

func (e *Engine) observe(schema, op string, n int, ok bool) {
	if e.metrics != nil {
		e.metrics.ObserveCodec(schema, op, n, ok)
	}
}
