// Package config provides the configuration schema and loader for the
// Voicelink room agent.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the Voicelink agent.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog converts l to the corresponding [slog.Level]. An empty or invalid
// level maps to [slog.LevelInfo].
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for Voicelink.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Room          RoomConfig          `yaml:"room"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Agent         AgentConfig         `yaml:"agent"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// RoomConfig describes the media room the agent joins.
type RoomConfig struct {
	URL       string `yaml:"url"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Name      string `yaml:"name"`

	// Identity is the agent's own participant identity in the room.
	Identity string `yaml:"identity"`

	// Participant is the identity of the remote participant to link to.
	// Empty means link to the first remote participant present.
	Participant string `yaml:"participant"`
}

// RealtimeConfig configures the duplex speech-to-speech session.
type RealtimeConfig struct {
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	Voice        string `yaml:"voice"`
	Instructions string `yaml:"instructions"`

	// BaseURL overrides the default API endpoint. Useful for proxies.
	BaseURL string `yaml:"base_url"`
}

// AudioConfig describes the PCM format used on both the room and model legs.
type AudioConfig struct {
	SampleRate   int `yaml:"sample_rate"`
	Channels     int `yaml:"channels"`
	FrameSamples int `yaml:"frame_samples"`
}

// TranscriptionConfig controls transcript forwarding into the room.
type TranscriptionConfig struct {
	User  bool `yaml:"user"`
	Agent bool `yaml:"agent"`

	// AgentSpeed is the synthetic pacing factor for agent transcripts,
	// in words per second relative to the default. Zero means default.
	AgentSpeed float64 `yaml:"agent_speed"`
}

// AgentConfig tunes the agent's internal behaviour.
type AgentConfig struct {
	// TrackName is the published name of the agent's audio track.
	TrackName string `yaml:"track_name"`

	// StatePublishDelay debounces participant state attribute updates.
	StatePublishDelay time.Duration `yaml:"state_publish_delay"`

	// IngestBuffer is the capacity of the microphone frame hand-off
	// channel. Zero means the built-in default.
	IngestBuffer int `yaml:"ingest_buffer"`
}

// RetrievalConfig configures optional retrieval augmentation of agent
// responses from a pgvector-backed index.
type RetrievalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PostgresDSN string `yaml:"postgres_dsn"`

	Embedding EmbeddingConfig `yaml:"embedding"`

	// TopK is the number of matches fetched per query. Zero means the
	// built-in default.
	TopK int `yaml:"top_k"`

	// QueryLimit bounds how many transcript characters are collected
	// before a retrieval query fires. Zero means the built-in default.
	QueryLimit int `yaml:"query_limit"`
}

// EmbeddingConfig selects the embedding model used for retrieval queries.
type EmbeddingConfig struct {
	// APIKey for the embeddings API. Empty falls back to realtime.api_key.
	APIKey string `yaml:"api_key"`

	Model string `yaml:"model"`

	// Dimensions must match the vector column width of the index.
	// Zero means the model's native dimensionality.
	Dimensions int `yaml:"dimensions"`
}
