package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Room
	if cfg.Room.URL == "" {
		errs = append(errs, errors.New("room.url is required"))
	}
	if cfg.Room.APIKey == "" {
		errs = append(errs, errors.New("room.api_key is required"))
	}
	if cfg.Room.APISecret == "" {
		errs = append(errs, errors.New("room.api_secret is required"))
	}
	if cfg.Room.Name == "" {
		errs = append(errs, errors.New("room.name is required"))
	}
	if cfg.Room.Identity == "" {
		slog.Warn("room.identity not set; a default agent identity will be used")
	}

	// Realtime
	if cfg.Realtime.APIKey == "" {
		errs = append(errs, errors.New("realtime.api_key is required"))
	}
	if cfg.Realtime.Model == "" {
		slog.Warn("realtime.model not set; the provider default model will be used")
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 0 && cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameSamples < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_samples %d must not be negative", cfg.Audio.FrameSamples))
	}

	// Transcription
	if s := cfg.Transcription.AgentSpeed; s != 0 && (s < 0.1 || s > 10) {
		errs = append(errs, fmt.Errorf("transcription.agent_speed %v is out of range [0.1, 10]", s))
	}

	// Agent
	if cfg.Agent.StatePublishDelay < 0 {
		errs = append(errs, fmt.Errorf("agent.state_publish_delay %v must not be negative", cfg.Agent.StatePublishDelay))
	}
	if cfg.Agent.IngestBuffer < 0 {
		errs = append(errs, fmt.Errorf("agent.ingest_buffer %d must not be negative", cfg.Agent.IngestBuffer))
	}

	// Retrieval
	if cfg.Retrieval.Enabled {
		if cfg.Retrieval.PostgresDSN == "" {
			errs = append(errs, errors.New("retrieval.postgres_dsn is required when retrieval is enabled"))
		}
		if cfg.Retrieval.Embedding.APIKey == "" && cfg.Realtime.APIKey == "" {
			errs = append(errs, errors.New("retrieval.embedding.api_key is required when retrieval is enabled and realtime.api_key is unset"))
		}
		if cfg.Retrieval.Embedding.Dimensions < 0 {
			errs = append(errs, fmt.Errorf("retrieval.embedding.dimensions %d must not be negative", cfg.Retrieval.Embedding.Dimensions))
		}
		if cfg.Retrieval.TopK < 0 {
			errs = append(errs, fmt.Errorf("retrieval.top_k %d must not be negative", cfg.Retrieval.TopK))
		}
		if cfg.Retrieval.Embedding.Model == "" {
			slog.Warn("retrieval.embedding.model not set; the default embedding model will be used")
		}
	} else if cfg.Retrieval.PostgresDSN != "" {
		slog.Warn("retrieval.postgres_dsn set but retrieval is disabled; the index will not be used")
	}

	return errors.Join(errs...)
}
