package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bkyoung/review-dedup/internal/config"
)

func TestMerge(t *testing.T) {
	base := config.Config{
		Dedup: config.DedupConfig{
			SimilarityThreshold:    0.85,
			MaxDetailedOccurrences: 1,
			MinOccurrencesToIgnore: 10,
		},
		Store: config.StoreConfig{Path: "/base/history.db"},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Enabled: true, Level: "info", Format: "human"},
		},
	}
	overlay := config.Config{
		Dedup: config.DedupConfig{
			SimilarityThreshold: 0.95,
			IncludeResolved:     true,
		},
		Observability: config.ObservabilityConfig{
			Logging: config.LoggingConfig{Level: "debug"},
		},
	}

	merged := config.Merge(base, overlay)

	// Overlay values win
	assert.Equal(t, 0.95, merged.Dedup.SimilarityThreshold)
	assert.True(t, merged.Dedup.IncludeResolved)
	assert.Equal(t, "debug", merged.Observability.Logging.Level)

	// Zero values in the overlay leave the base intact
	assert.Equal(t, 1, merged.Dedup.MaxDetailedOccurrences)
	assert.Equal(t, 10, merged.Dedup.MinOccurrencesToIgnore)
	assert.Equal(t, "/base/history.db", merged.Store.Path)
	assert.Equal(t, "human", merged.Observability.Logging.Format)
}
