package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-dedup/internal/adapter/store/sqlite"
	"github.com/bkyoung/review-dedup/internal/store"
)

func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	// File-backed database: the connection pool may open more than one
	// connection, and each :memory: connection gets its own empty database.
	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err, "failed to create test store")

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func testFingerprint(id, repository, hash string) store.Fingerprint {
	now := time.Now().Truncate(time.Second)
	return store.Fingerprint{
		ID:              id,
		Repository:      repository,
		Hash:            hash,
		Category:        "security",
		PatternType:     "sql_injection",
		OccurrenceCount: 1,
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
}

func TestStore_CreateFingerprint_GetFingerprint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fp := testFingerprint("fp-1", "acme/api", "aaaa111122223333")

	err := s.CreateFingerprint(ctx, fp)
	require.NoError(t, err)

	retrieved, err := s.GetFingerprint(ctx, fp.ID)
	require.NoError(t, err)

	assert.Equal(t, fp.ID, retrieved.ID)
	assert.Equal(t, fp.Repository, retrieved.Repository)
	assert.Equal(t, fp.Hash, retrieved.Hash)
	assert.Equal(t, fp.Category, retrieved.Category)
	assert.Equal(t, fp.PatternType, retrieved.PatternType)
	assert.Equal(t, fp.OccurrenceCount, retrieved.OccurrenceCount)
	assert.True(t, fp.FirstSeenAt.Equal(retrieved.FirstSeenAt))
	assert.True(t, fp.LastSeenAt.Equal(retrieved.LastSeenAt))
	assert.Nil(t, retrieved.ResolvedAt)
	assert.Nil(t, retrieved.IgnoredAt)
	assert.False(t, retrieved.UserAcknowledged)
}

func TestStore_GetFingerprint_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetFingerprint(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_CreateFingerprint_DuplicateHashRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateFingerprint(ctx, testFingerprint("fp-1", "acme/api", "aaaa111122223333")))

	// Same (repository, hash) pair violates the unique constraint
	err := s.CreateFingerprint(ctx, testFingerprint("fp-2", "acme/api", "aaaa111122223333"))
	require.Error(t, err)

	// Same hash in another repository is fine
	require.NoError(t, s.CreateFingerprint(ctx, testFingerprint("fp-3", "acme/web", "aaaa111122223333")))
}

func TestStore_FindFingerprintByHash(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fp := testFingerprint("fp-1", "acme/api", "aaaa111122223333")
	require.NoError(t, s.CreateFingerprint(ctx, fp))

	found, err := s.FindFingerprintByHash(ctx, "acme/api", "aaaa111122223333")
	require.NoError(t, err)
	assert.Equal(t, "fp-1", found.ID)

	_, err = s.FindFingerprintByHash(ctx, "acme/web", "aaaa111122223333")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_UpdateFingerprint(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	fp := testFingerprint("fp-1", "acme/api", "aaaa111122223333")
	require.NoError(t, s.CreateFingerprint(ctx, fp))

	resolvedAt := time.Now().Truncate(time.Second)
	fp.OccurrenceCount = 4
	fp.LastSeenAt = resolvedAt
	fp.ResolvedAt = &resolvedAt
	fp.UserAcknowledged = true
	require.NoError(t, s.UpdateFingerprint(ctx, fp))

	retrieved, err := s.GetFingerprint(ctx, fp.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, retrieved.OccurrenceCount)
	assert.True(t, retrieved.UserAcknowledged)
	require.NotNil(t, retrieved.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*retrieved.ResolvedAt))
	assert.True(t, retrieved.Resolved())
}

func TestStore_UpdateFingerprint_NotFound(t *testing.T) {
	s := setupTestStore(t)

	err := s.UpdateFingerprint(context.Background(), testFingerprint("missing", "acme/api", "ffff000011112222"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_ListFingerprints(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	resolved := now.Add(-time.Hour)
	fps := []store.Fingerprint{
		{ID: "fp-1", Repository: "acme/api", Hash: "h1", Category: "security", PatternType: "xss", OccurrenceCount: 2, FirstSeenAt: now.Add(-3 * time.Hour), LastSeenAt: now.Add(-2 * time.Hour), ResolvedAt: &resolved},
		{ID: "fp-2", Repository: "acme/api", Hash: "h2", Category: "performance", PatternType: "n_plus_one", OccurrenceCount: 5, FirstSeenAt: now.Add(-2 * time.Hour), LastSeenAt: now.Add(-time.Hour)},
		{ID: "fp-3", Repository: "acme/api", Hash: "h3", Category: "security", PatternType: "sql_injection", OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now},
		{ID: "fp-4", Repository: "acme/web", Hash: "h4", Category: "security", PatternType: "xss", OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now},
	}
	for _, fp := range fps {
		require.NoError(t, s.CreateFingerprint(ctx, fp))
	}

	t.Run("scoped to repository, newest first", func(t *testing.T) {
		got, err := s.ListFingerprints(ctx, store.FingerprintQuery{Repository: "acme/api"})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "fp-3", got[0].ID)
		assert.Equal(t, "fp-2", got[1].ID)
		assert.Equal(t, "fp-1", got[2].ID)
	})

	t.Run("filters by category", func(t *testing.T) {
		got, err := s.ListFingerprints(ctx, store.FingerprintQuery{Repository: "acme/api", Category: "security"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("filters by resolved state", func(t *testing.T) {
		unresolved := false
		got, err := s.ListFingerprints(ctx, store.FingerprintQuery{Repository: "acme/api", Resolved: &unresolved})
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, fp := range got {
			assert.Nil(t, fp.ResolvedAt)
		}
	})

	t.Run("paginates", func(t *testing.T) {
		got, err := s.ListFingerprints(ctx, store.FingerprintQuery{Repository: "acme/api", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "fp-2", got[0].ID)
	})
}

func TestStore_ListFingerprintsByCategory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	for i, id := range []string{"fp-1", "fp-2", "fp-3"} {
		fp := testFingerprint(id, "acme/api", id+"hash")
		fp.LastSeenAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateFingerprint(ctx, fp))
	}

	got, err := s.ListFingerprintsByCategory(ctx, "acme/api", "security", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fp-3", got[0].ID)
	assert.Equal(t, "fp-2", got[1].ID)
}

func TestStore_DeleteExpiredFingerprints(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	resolvedAt := now.Add(-48 * time.Hour)

	oldResolved := testFingerprint("fp-old", "acme/api", "h1")
	oldResolved.LastSeenAt = now.Add(-72 * time.Hour)
	oldResolved.ResolvedAt = &resolvedAt
	require.NoError(t, s.CreateFingerprint(ctx, oldResolved))

	oldUnresolved := testFingerprint("fp-open", "acme/api", "h2")
	oldUnresolved.LastSeenAt = now.Add(-72 * time.Hour)
	require.NoError(t, s.CreateFingerprint(ctx, oldUnresolved))

	recentResolved := testFingerprint("fp-recent", "acme/api", "h3")
	recentResolved.ResolvedAt = &resolvedAt
	require.NoError(t, s.CreateFingerprint(ctx, recentResolved))

	deleted, err := s.DeleteExpiredFingerprints(ctx, "acme/api", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Unresolved records are never expired
	_, err = s.GetFingerprint(ctx, "fp-open")
	require.NoError(t, err)
	_, err = s.GetFingerprint(ctx, "fp-old")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DeleteExpiredFingerprints_CascadesOccurrences(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	resolvedAt := now.Add(-48 * time.Hour)

	fp := testFingerprint("fp-1", "acme/api", "h1")
	fp.LastSeenAt = now.Add(-72 * time.Hour)
	fp.ResolvedAt = &resolvedAt
	require.NoError(t, s.CreateFingerprint(ctx, fp))
	require.NoError(t, s.CreateOccurrence(ctx, store.Occurrence{
		ID:            "occ-1",
		FingerprintID: "fp-1",
		ReviewID:      "rev-1",
		FilePath:      "main.go",
		CommentBody:   "body",
		CreatedAt:     now,
	}))

	_, err := s.DeleteExpiredFingerprints(ctx, "acme/api", now.Add(-24*time.Hour))
	require.NoError(t, err)

	_, err = s.GetOccurrence(ctx, "occ-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_FingerprintStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	resolved := now.Add(-time.Hour)
	fps := []store.Fingerprint{
		{ID: "fp-1", Repository: "acme/api", Hash: "h1", Category: "security", PatternType: "xss", OccurrenceCount: 7, FirstSeenAt: now, LastSeenAt: now},
		{ID: "fp-2", Repository: "acme/api", Hash: "h2", Category: "security", PatternType: "sql_injection", OccurrenceCount: 2, FirstSeenAt: now, LastSeenAt: now, ResolvedAt: &resolved},
		{ID: "fp-3", Repository: "acme/api", Hash: "h3", Category: "bug", PatternType: "null_reference", OccurrenceCount: 3, FirstSeenAt: now, LastSeenAt: now, UserAcknowledged: true},
		{ID: "fp-4", Repository: "other/repo", Hash: "h4", Category: "bug", PatternType: "null_reference", OccurrenceCount: 1, FirstSeenAt: now, LastSeenAt: now},
	}
	for _, fp := range fps {
		require.NoError(t, s.CreateFingerprint(ctx, fp))
	}

	stats, err := s.FingerprintStats(ctx, "acme/api")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.Unresolved)
	assert.Equal(t, 1, stats.Acknowledged)
	assert.Equal(t, 0, stats.Ignored)
	assert.Equal(t, map[string]int{"security": 2, "bug": 1}, stats.ByCategory)

	require.Len(t, stats.TopUnresolved, 2)
	assert.Equal(t, "fp-1", stats.TopUnresolved[0].ID)
	assert.Equal(t, "fp-3", stats.TopUnresolved[1].ID)
}

func TestStore_Occurrences(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.CreateFingerprint(ctx, testFingerprint("fp-1", "acme/api", "h1")))

	first := store.Occurrence{
		ID:            "occ-1",
		FingerprintID: "fp-1",
		ReviewID:      "rev-1",
		PullRequestID: "pr-1",
		FilePath:      "internal/db/query.go",
		LineNumber:    42,
		CommentBody:   "possible sql injection",
		Severity:      "high",
		CreatedAt:     now.Add(-time.Hour),
	}
	second := first
	second.ID = "occ-2"
	second.ReviewID = "rev-2"
	second.CreatedAt = now

	require.NoError(t, s.CreateOccurrence(ctx, first))
	require.NoError(t, s.CreateOccurrence(ctx, second))

	t.Run("get round-trips fields", func(t *testing.T) {
		got, err := s.GetOccurrence(ctx, "occ-1")
		require.NoError(t, err)
		assert.Equal(t, first.ReviewID, got.ReviewID)
		assert.Equal(t, first.PullRequestID, got.PullRequestID)
		assert.Equal(t, first.FilePath, got.FilePath)
		assert.Equal(t, first.LineNumber, got.LineNumber)
		assert.Equal(t, first.CommentBody, got.CommentBody)
		assert.Equal(t, first.Severity, got.Severity)
		assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("earliest occurrence wins", func(t *testing.T) {
		got, err := s.EarliestOccurrence(ctx, "fp-1")
		require.NoError(t, err)
		assert.Equal(t, "occ-1", got.ID)
	})

	t.Run("update persists user state", func(t *testing.T) {
		updated := second
		updated.WasAddressed = true
		updated.UserResponse = "fixed in follow-up"
		require.NoError(t, s.UpdateOccurrence(ctx, updated))

		got, err := s.GetOccurrence(ctx, "occ-2")
		require.NoError(t, err)
		assert.True(t, got.WasAddressed)
		assert.False(t, got.WasIgnored)
		assert.Equal(t, "fixed in follow-up", got.UserResponse)
	})

	t.Run("missing occurrence", func(t *testing.T) {
		_, err := s.GetOccurrence(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.EarliestOccurrence(ctx, "fp-none")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestStore_Resolutions(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.CreateFingerprint(ctx, testFingerprint("fp-1", "acme/api", "h1")))

	older := store.Resolution{
		ID:             "res-1",
		FingerprintID:  "fp-1",
		PullRequestID:  "pr-1",
		ResolutionType: "FIXED",
		CommitSHA:      "abc123",
		CreatedAt:      now.Add(-time.Hour),
	}
	newer := store.Resolution{
		ID:             "res-2",
		FingerprintID:  "fp-1",
		ResolutionType: "ACKNOWLEDGED",
		CreatedAt:      now,
	}
	require.NoError(t, s.CreateResolution(ctx, older))
	require.NoError(t, s.CreateResolution(ctx, newer))

	got, err := s.ListResolutions(ctx, "fp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "res-2", got[0].ID)
	assert.Equal(t, "res-1", got[1].ID)
	assert.Equal(t, "FIXED", got[1].ResolutionType)
	assert.Equal(t, "abc123", got[1].CommitSHA)
	assert.True(t, older.CreatedAt.Equal(got[1].CreatedAt))
}
