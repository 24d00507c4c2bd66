package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TranscriptionChanged is true when any transcript forwarding
	// setting changed.
	TranscriptionChanged bool

	// RetrievalTuningChanged is true when top_k or query_limit changed.
	// Enabling or disabling retrieval itself requires a restart.
	RetrievalTuningChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TranscriptionChanged || d.RetrievalTuningChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Transcription != new.Transcription {
		d.TranscriptionChanged = true
	}

	if old.Retrieval.TopK != new.Retrieval.TopK || old.Retrieval.QueryLimit != new.Retrieval.QueryLimit {
		d.RetrievalTuningChanged = true
	}

	return d
}
