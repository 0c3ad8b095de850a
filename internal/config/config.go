// Package config loads the top-level YAML configuration tree and
// builds the structured logger, following the teacher's own
// defaults()+Load()+NewLogger() shape in internal/config.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/wallwatch/wallwatch/internal/resolver"
	"github.com/wallwatch/wallwatch/internal/wallerr"
	"github.com/wallwatch/wallwatch/internal/walldetect"
)

// InstrumentEntry is one row of the static symbol->instrument table
// consulted at startup by internal/resolver.Static.
type InstrumentEntry struct {
	Symbol       string `yaml:"symbol"`
	InstrumentID string `yaml:"instrument_id"`
	TickSize     string `yaml:"tick_size"`
}

// SinkConfig toggles and parameterizes the registered sinks.
type SinkConfig struct {
	Console bool `yaml:"console"`

	TelegramEnabled bool    `yaml:"telegram_enabled"`
	TelegramChatID  int64   `yaml:"telegram_chat_id"`
	TelegramRate    float64 `yaml:"telegram_rate_per_second"`
	TelegramBurst   int     `yaml:"telegram_burst"`

	QueueLength int `yaml:"queue_length"`
}

// Config is the full YAML configuration tree: transport/runtime
// settings, the detector thresholds (walldetect.DetectorConfig, which
// accepts both current and legacy field names), the static instrument
// table, and sink selection.
type Config struct {
	LogLevel string `yaml:"log_level"`

	TransportURL                 string  `yaml:"transport_url"`
	Symbols                      []string `yaml:"symbols"`
	RetryBackoffInitialSeconds   float64 `yaml:"retry_backoff_initial_seconds"`
	RetryBackoffMaxSeconds       float64 `yaml:"retry_backoff_max_seconds"`
	StreamIdleSleepSeconds       float64 `yaml:"stream_idle_sleep_seconds"`

	Detector walldetect.DetectorConfig `yaml:"detector"`

	Instruments []InstrumentEntry `yaml:"instruments"`

	Sinks SinkConfig `yaml:"sinks"`
}

func defaults() Config {
	return Config{
		LogLevel:                   "info",
		TransportURL:                "wss://127.0.0.1:8443/stream",
		RetryBackoffInitialSeconds: 1.0,
		RetryBackoffMaxSeconds:     30.0,
		StreamIdleSleepSeconds:     3600,
		Detector:                   walldetect.DefaultConfig(),
		Sinks: SinkConfig{
			Console:     true,
			QueueLength: 256,
		},
	}
}

// Load reads and validates path, applying defaults() first so a config
// file only needs to override what differs. An unmarshal error or a
// failed validation is a fatal config error (wallerr.ErrConfig).
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", wallerr.ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse yaml: %v", wallerr.ErrConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%w: %v", wallerr.ErrConfig, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("symbols must not be empty")
	}
	if len(c.Symbols) > c.Detector.MaxSymbols {
		return fmt.Errorf("%d symbols exceeds max_symbols %d", len(c.Symbols), c.Detector.MaxSymbols)
	}
	if c.TransportURL == "" {
		return errors.New("transport_url must not be empty")
	}
	if c.RetryBackoffInitialSeconds <= 0 {
		return errors.New("retry_backoff_initial_seconds must be positive")
	}
	if c.RetryBackoffMaxSeconds < c.RetryBackoffInitialSeconds {
		return errors.New("retry_backoff_max_seconds must be >= retry_backoff_initial_seconds")
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if c.Sinks.TelegramEnabled && c.Sinks.TelegramChatID == 0 {
		return errors.New("telegram_chat_id must be set when telegram_enabled")
	}
	known := make(map[string]struct{}, len(c.Instruments))
	for _, in := range c.Instruments {
		known[in.Symbol] = struct{}{}
	}
	for _, s := range c.Symbols {
		if _, ok := known[s]; !ok {
			return fmt.Errorf("symbol %q has no matching instruments entry", s)
		}
	}
	return nil
}

// BuildResolver constructs a resolver.Static from the instruments
// table, parsing each tick size.
func (c Config) BuildResolver() (*resolver.Static, error) {
	table := make(map[string]resolver.Instrument, len(c.Instruments))
	for _, in := range c.Instruments {
		inst, err := toInstrument(in)
		if err != nil {
			return nil, fmt.Errorf("%w: instrument %s: %v", wallerr.ErrConfig, in.Symbol, err)
		}
		table[in.Symbol] = inst
	}
	return resolver.NewStatic(table), nil
}

func toInstrument(in InstrumentEntry) (resolver.Instrument, error) {
	tick, err := decimal.NewFromString(in.TickSize)
	if err != nil {
		return resolver.Instrument{}, fmt.Errorf("tick_size: %w", err)
	}
	return resolver.Instrument{Symbol: in.Symbol, InstrumentID: in.InstrumentID, TickSize: tick}, nil
}

func (c Config) RetryBackoffInitial() time.Duration {
	return time.Duration(c.RetryBackoffInitialSeconds * float64(time.Second))
}

func (c Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.RetryBackoffMaxSeconds * float64(time.Second))
}

func (c Config) StreamIdleSleep() time.Duration {
	return time.Duration(c.StreamIdleSleepSeconds * float64(time.Second))
}

// NewLogger builds the process-wide structured logger, matching the
// teacher's level-name switch and slog.NewTextHandler(os.Stdout, ...).
func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
