// Package config provides configuration loading for archivistad.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the complete archivistad configuration.
type Config struct {
	Engine        EngineConfig        `koanf:"engine"`
	Decay         DecayConfig         `koanf:"decay"`
	Corroboration CorroborationConfig `koanf:"corroboration"`
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// EngineConfig tunes the inference engine.
type EngineConfig struct {
	// LearningRate in [0.1, 0.8]; out-of-range values are clamped at
	// engine construction, not rejected here.
	LearningRate         float64 `koanf:"learning_rate"`
	CorroborationEnabled *bool   `koanf:"corroboration_enabled"`
	TemporalDecayEnabled *bool   `koanf:"temporal_decay_enabled"`
	PropagationEnabled   *bool   `koanf:"propagation_enabled"`
}

// DecayConfig tunes the temporal decay engine and its schedule.
type DecayConfig struct {
	HighConfidenceThreshold float64  `koanf:"high_confidence_threshold"`
	MaterialityThreshold    float64  `koanf:"materiality_threshold"`
	Floor                   float64  `koanf:"floor"`
	Interval                Duration `koanf:"interval"`
	MaxItemsPerPass         int      `koanf:"max_items_per_pass"`
}

// CorroborationConfig tunes the corroboration engine.
type CorroborationConfig struct {
	Threshold        float64 `koanf:"threshold"`
	MinDocuments     int     `koanf:"min_documents"`
	MaxOpportunities int     `koanf:"max_opportunities"`
}

// ServerConfig tunes the HTTP server.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Path is the SQLite database file. Empty selects the in-memory store.
	Path string `koanf:"path"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CorroborationOn reports whether corroboration side effects are enabled
// (default true).
func (c *Config) CorroborationOn() bool {
	return c.Engine.CorroborationEnabled == nil || *c.Engine.CorroborationEnabled
}

// TemporalDecayOn reports whether decay is enabled (default true).
func (c *Config) TemporalDecayOn() bool {
	return c.Engine.TemporalDecayEnabled == nil || *c.Engine.TemporalDecayEnabled
}

// PropagationOn reports whether endorsement propagation is enabled (default
// true).
func (c *Config) PropagationOn() bool {
	return c.Engine.PropagationEnabled == nil || *c.Engine.PropagationEnabled
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.LearningRate == 0 {
		cfg.Engine.LearningRate = 0.3
	}
	if cfg.Decay.HighConfidenceThreshold == 0 {
		cfg.Decay.HighConfidenceThreshold = 0.8
	}
	if cfg.Decay.MaterialityThreshold == 0 {
		cfg.Decay.MaterialityThreshold = 0.01
	}
	if cfg.Decay.Floor == 0 {
		cfg.Decay.Floor = 0.1
	}
	if cfg.Decay.Interval == 0 {
		cfg.Decay.Interval = Duration(24 * time.Hour)
	}
	if cfg.Corroboration.Threshold == 0 {
		cfg.Corroboration.Threshold = 0.7
	}
	if cfg.Corroboration.MinDocuments == 0 {
		cfg.Corroboration.MinDocuments = 2
	}
	if cfg.Corroboration.MaxOpportunities == 0 {
		cfg.Corroboration.MaxOpportunities = 10
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8085
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Decay.Floor < 0 || c.Decay.Floor >= 1 {
		return fmt.Errorf("decay.floor must be in [0, 1), got %g", c.Decay.Floor)
	}
	if c.Decay.HighConfidenceThreshold <= 0 || c.Decay.HighConfidenceThreshold > 1 {
		return fmt.Errorf("decay.high_confidence_threshold must be in (0, 1], got %g", c.Decay.HighConfidenceThreshold)
	}
	if c.Decay.MaterialityThreshold < 0 {
		return fmt.Errorf("decay.materiality_threshold cannot be negative, got %g", c.Decay.MaterialityThreshold)
	}
	if c.Corroboration.Threshold <= 0 || c.Corroboration.Threshold > 1 {
		return fmt.Errorf("corroboration.threshold must be in (0, 1], got %g", c.Corroboration.Threshold)
	}
	if c.Corroboration.MinDocuments < 2 {
		return fmt.Errorf("corroboration.min_documents must be at least 2, got %d", c.Corroboration.MinDocuments)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
