package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-dedup/internal/adapter/observability"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prevWriter := log.Writer()
	prevFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevWriter)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestDefaultLogger_HumanFormat(t *testing.T) {
	buf := captureLog(t)
	logger := observability.NewDefaultLogger(observability.LogLevelInfo, observability.LogFormatHuman)

	logger.LogInfo(context.Background(), "batch complete", map[string]interface{}{
		"total":      3,
		"repository": "acme/api",
	})

	out := buf.String()
	assert.Contains(t, out, "[INFO] batch complete")
	// Fields are emitted in sorted key order
	assert.Contains(t, out, "repository=acme/api total=3")
}

func TestDefaultLogger_JSONFormat(t *testing.T) {
	buf := captureLog(t)
	logger := observability.NewDefaultLogger(observability.LogLevelInfo, observability.LogFormatJSON)

	logger.LogWarning(context.Background(), "fingerprint has no occurrences, skipping", map[string]interface{}{
		"fingerprintId": "fp-1",
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "fingerprint has no occurrences, skipping", entry["message"])
	assert.Equal(t, "fp-1", entry["fingerprintId"])
}

func TestDefaultLogger_LevelSuppression(t *testing.T) {
	buf := captureLog(t)
	logger := observability.NewDefaultLogger(observability.LogLevelError, observability.LogFormatHuman)

	logger.LogInfo(context.Background(), "suppressed", nil)
	logger.LogWarning(context.Background(), "also suppressed", nil)
	assert.Empty(t, buf.String())

	logger.LogError(context.Background(), "always emitted", nil)
	assert.Contains(t, buf.String(), "[ERROR] always emitted")
}

func TestParseLevelAndFormat(t *testing.T) {
	assert.Equal(t, observability.LogLevelDebug, observability.ParseLevel("debug"))
	assert.Equal(t, observability.LogLevelError, observability.ParseLevel("error"))
	assert.Equal(t, observability.LogLevelInfo, observability.ParseLevel("anything-else"))

	assert.Equal(t, observability.LogFormatJSON, observability.ParseFormat("json"))
	assert.Equal(t, observability.LogFormatHuman, observability.ParseFormat("human"))
	assert.Equal(t, observability.LogFormatHuman, observability.ParseFormat(""))
}

func TestDefaultMetrics(t *testing.T) {
	m := observability.NewDefaultMetrics()

	m.RecordBatch(10, 4, 20*time.Millisecond)
	m.RecordBatch(5, 1, 10*time.Millisecond)
	m.RecordLookup(2 * time.Millisecond)
	m.RecordLookup(3 * time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 15, stats.CommentsTotal)
	assert.Equal(t, 5, stats.DuplicatesTotal)
	assert.Equal(t, 30*time.Millisecond, stats.BatchDuration)
	assert.Equal(t, 2, stats.Lookups)
	assert.Equal(t, 5*time.Millisecond, stats.LookupDuration)
}
