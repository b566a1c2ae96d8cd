package config

// Config represents the full application configuration.
type Config struct {
	Dedup         DedupConfig         `yaml:"dedup"`
	Store         StoreConfig         `yaml:"store"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DedupConfig configures similarity matching and progressive severity.
type DedupConfig struct {
	// SimilarityThreshold is the minimum score for two comments to be
	// considered the same issue.
	SimilarityThreshold float64 `yaml:"similarityThreshold"`

	// EnableProgressiveSeverity toggles verbosity reduction for
	// recurring issues.
	EnableProgressiveSeverity bool `yaml:"enableProgressiveSeverity"`

	// MaxDetailedOccurrences is the highest occurrence count still
	// presented in full.
	MaxDetailedOccurrences int `yaml:"maxDetailedOccurrences"`

	// MaxSummaryOccurrences is the highest occurrence count still
	// presented as a brief summary.
	MaxSummaryOccurrences int `yaml:"maxSummaryOccurrences"`

	// MinOccurrencesToIgnore is the occurrence count at which an issue
	// goes silent.
	MinOccurrencesToIgnore int `yaml:"minOccurrencesToIgnore"`

	// FingerprintExpirationDays is the retention window for resolved
	// fingerprints.
	FingerprintExpirationDays int `yaml:"fingerprintExpirationDays"`

	// IncludeResolved and IncludeAcknowledged re-admit comments whose
	// stored match is resolved or acknowledged.
	IncludeResolved     bool `yaml:"includeResolved"`
	IncludeAcknowledged bool `yaml:"includeAcknowledged"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ObservabilityConfig configures logging and metrics.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // debug, info, error
	Format  string `yaml:"format"` // json, human
}

// MetricsConfig configures in-process metrics tracking.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Merge combines multiple configuration instances, prioritising the latter
// ones.
func Merge(configs ...Config) Config {
	result := Config{}
	for _, cfg := range configs {
		result = merge(result, cfg)
	}
	return result
}

func merge(base, overlay Config) Config {
	result := base
	result.Dedup = chooseDedup(base.Dedup, overlay.Dedup)
	result.Store = chooseStore(base.Store, overlay.Store)
	result.Observability = chooseObservability(base.Observability, overlay.Observability)
	return result
}

func chooseDedup(base, overlay DedupConfig) DedupConfig {
	result := base
	if overlay.SimilarityThreshold != 0 {
		result.SimilarityThreshold = overlay.SimilarityThreshold
	}
	if overlay.EnableProgressiveSeverity {
		result.EnableProgressiveSeverity = true
	}
	if overlay.MaxDetailedOccurrences != 0 {
		result.MaxDetailedOccurrences = overlay.MaxDetailedOccurrences
	}
	if overlay.MaxSummaryOccurrences != 0 {
		result.MaxSummaryOccurrences = overlay.MaxSummaryOccurrences
	}
	if overlay.MinOccurrencesToIgnore != 0 {
		result.MinOccurrencesToIgnore = overlay.MinOccurrencesToIgnore
	}
	if overlay.FingerprintExpirationDays != 0 {
		result.FingerprintExpirationDays = overlay.FingerprintExpirationDays
	}
	if overlay.IncludeResolved {
		result.IncludeResolved = true
	}
	if overlay.IncludeAcknowledged {
		result.IncludeAcknowledged = true
	}
	return result
}

func chooseStore(base, overlay StoreConfig) StoreConfig {
	if overlay.Path != "" {
		return overlay
	}
	return base
}

func chooseObservability(base, overlay ObservabilityConfig) ObservabilityConfig {
	result := base
	if overlay.Logging.Enabled {
		result.Logging.Enabled = true
	}
	if overlay.Logging.Level != "" {
		result.Logging.Level = overlay.Logging.Level
	}
	if overlay.Logging.Format != "" {
		result.Logging.Format = overlay.Logging.Format
	}
	if overlay.Metrics.Enabled {
		result.Metrics.Enabled = true
	}
	return result
}
