package main

import (
	"testing"

	"github.com/bkyoung/review-dedup/internal/config"
)

func TestBuildObservability(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.ObservabilityConfig
		wantLogger  bool
		wantMetrics bool
	}{
		{
			name: "everything enabled",
			cfg: config.ObservabilityConfig{
				Logging: config.LoggingConfig{Enabled: true, Level: "info", Format: "human"},
				Metrics: config.MetricsConfig{Enabled: true},
			},
			wantLogger:  true,
			wantMetrics: true,
		},
		{
			name:        "everything disabled",
			cfg:         config.ObservabilityConfig{},
			wantLogger:  false,
			wantMetrics: false,
		},
		{
			name: "logging only",
			cfg: config.ObservabilityConfig{
				Logging: config.LoggingConfig{Enabled: true, Level: "debug", Format: "json"},
			},
			wantLogger:  true,
			wantMetrics: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			obs := buildObservability(tc.cfg)

			if got := obs.historyLogger != nil; got != tc.wantLogger {
				t.Fatalf("history logger present = %v, want %v", got, tc.wantLogger)
			}
			if got := obs.dedupLogger != nil; got != tc.wantLogger {
				t.Fatalf("dedup logger present = %v, want %v", got, tc.wantLogger)
			}
			if got := obs.metrics != nil; got != tc.wantMetrics {
				t.Fatalf("metrics present = %v, want %v", got, tc.wantMetrics)
			}
		})
	}
}

func TestDefaultConfigPaths(t *testing.T) {
	paths := defaultConfigPaths()
	if len(paths) == 0 || paths[0] != "." {
		t.Fatalf("expected current directory first, got %v", paths)
	}
}
