package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/schemawire/internal/protocol/codec"
	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/protocol/header"
	"github.com/pelletier/go-toml/v2"
)

// Config is the schemactl runtime configuration.
type Config struct {
	// Schemas is the schema document loaded at startup.
	Schemas string        `toml:"schemas"`
	Codec   CodecConfig   `toml:"codec"`
	Header  HeaderConfig  `toml:"header"`
	Frame   FrameConfig   `toml:"frame"`
	Inspect InspectConfig `toml:"inspect"`
}

type CodecConfig struct {
	Diagnostics        bool `toml:"diagnostics"`
	MaxDiagnostics     int  `toml:"max_diagnostics"`
	OmitNullTerminator bool `toml:"omit_null_terminator"`
	LogBoundsFailures  bool `toml:"log_bounds_failures"`
}

type HeaderConfig struct {
	EmitInvalid bool `toml:"emit_invalid"`
}

type FrameConfig struct {
	Compression     string `toml:"compression"`
	MaxPayloadBytes uint32 `toml:"max_payload_bytes"`
}

type InspectConfig struct {
	Addr        string   `toml:"addr"`
	CorsOrigins []string `toml:"cors_origins"`
}

func Default() Config {
	cc := codec.DefaultConfig()
	return Config{
		Codec: CodecConfig{
			Diagnostics:        cc.Diagnostics,
			MaxDiagnostics:     cc.MaxDiagnostics,
			OmitNullTerminator: cc.OmitNullTerminator,
			LogBoundsFailures:  cc.LogBoundsFailures,
		},
		Frame: FrameConfig{
			Compression:     "none",
			MaxPayloadBytes: frame.DefaultLimits().MaxPayloadBytes,
		},
		Inspect: InspectConfig{Addr: ":9300"},
	}
}

// Load reads path over the defaults and validates the result. Keys absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadToml(path, &cfg); err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg Config) error {
	if cfg.Codec.MaxDiagnostics < 0 {
		return fmt.Errorf("codec.max_diagnostics must be >= 0")
	}
	if _, err := frame.ParseCompression(cfg.Frame.Compression); err != nil {
		return fmt.Errorf("frame.compression: %w", err)
	}
	if cfg.Frame.MaxPayloadBytes == 0 {
		return fmt.Errorf("frame.max_payload_bytes must be > 0")
	}
	if strings.TrimSpace(cfg.Inspect.Addr) == "" {
		return fmt.Errorf("inspect.addr is required")
	}
	for i, origin := range cfg.Inspect.CorsOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("inspect.cors_origins[%d] is empty", i)
		}
	}
	return nil
}

func (c CodecConfig) Engine() codec.Config {
	return codec.Config{
		Diagnostics:        c.Diagnostics,
		MaxDiagnostics:     c.MaxDiagnostics,
		OmitNullTerminator: c.OmitNullTerminator,
		LogBoundsFailures:  c.LogBoundsFailures,
	}
}

func (h HeaderConfig) Options() header.Options {
	return header.Options{EmitInvalid: h.EmitInvalid}
}

// Options converts the frame section. Validate has already checked the
// compression name for configs returned by Load.
func (f FrameConfig) Options() (frame.Options, error) {
	c, err := frame.ParseCompression(f.Compression)
	if err != nil {
		return frame.Options{}, err
	}
	opts := frame.DefaultOptions()
	opts.Compression = c
	if f.MaxPayloadBytes > 0 {
		opts.Limits.MaxPayloadBytes = f.MaxPayloadBytes
	}
	return opts, nil
}
