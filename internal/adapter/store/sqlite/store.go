package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bkyoung/review-dedup/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
// The UNIQUE(repository, hash) constraint makes the concurrent-create race
// on a new hash surface as a constraint error rather than a silent
// duplicate row; the store performs no retry on conflict.
func (s *Store) createSchema() error {
	schema := `
	-- One row per distinct recurring issue within a repository
	CREATE TABLE IF NOT EXISTS fingerprints (
		id TEXT PRIMARY KEY,
		repository TEXT NOT NULL,
		hash TEXT NOT NULL,
		category TEXT NOT NULL,
		pattern_type TEXT NOT NULL,
		occurrence_count INTEGER NOT NULL DEFAULT 1,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL,
		resolved_at INTEGER,
		user_acknowledged INTEGER NOT NULL DEFAULT 0,
		ignored_at INTEGER,
		UNIQUE(repository, hash)
	);

	-- One row per detection event
	CREATE TABLE IF NOT EXISTS occurrences (
		id TEXT PRIMARY KEY,
		fingerprint_id TEXT NOT NULL,
		review_id TEXT NOT NULL,
		pull_request_id TEXT,
		file_path TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		comment_body TEXT NOT NULL,
		severity TEXT,
		was_addressed INTEGER NOT NULL DEFAULT 0,
		was_ignored INTEGER NOT NULL DEFAULT 0,
		user_response TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (fingerprint_id) REFERENCES fingerprints(id) ON DELETE CASCADE
	);

	-- Append-only audit trail of fingerprint closures
	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		fingerprint_id TEXT NOT NULL,
		pull_request_id TEXT,
		resolution_type TEXT NOT NULL,
		commit_sha TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (fingerprint_id) REFERENCES fingerprints(id) ON DELETE CASCADE
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_fingerprints_repo_category ON fingerprints(repository, category);
	CREATE INDEX IF NOT EXISTS idx_fingerprints_repo_resolved ON fingerprints(repository, resolved_at);
	CREATE INDEX IF NOT EXISTS idx_occurrences_fingerprint ON occurrences(fingerprint_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_resolutions_fingerprint ON resolutions(fingerprint_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

const fingerprintColumns = `id, repository, hash, category, pattern_type, occurrence_count, first_seen_at, last_seen_at, resolved_at, user_acknowledged, ignored_at`

// CreateFingerprint stores a new fingerprint record.
func (s *Store) CreateFingerprint(ctx context.Context, fp store.Fingerprint) error {
	query := `
		INSERT INTO fingerprints (` + fingerprintColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		fp.ID,
		fp.Repository,
		fp.Hash,
		fp.Category,
		fp.PatternType,
		fp.OccurrenceCount,
		fp.FirstSeenAt.Unix(),
		fp.LastSeenAt.Unix(),
		nullableUnix(fp.ResolvedAt),
		boolToInt(fp.UserAcknowledged),
		nullableUnix(fp.IgnoredAt),
	)

	if err != nil {
		return fmt.Errorf("failed to create fingerprint: %w", err)
	}

	return nil
}

// GetFingerprint retrieves a fingerprint by primary id.
func (s *Store) GetFingerprint(ctx context.Context, id string) (store.Fingerprint, error) {
	query := `SELECT ` + fingerprintColumns + ` FROM fingerprints WHERE id = ?`

	fp, err := scanFingerprint(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Fingerprint{}, fmt.Errorf("fingerprint %s: %w", id, store.ErrNotFound)
		}
		return store.Fingerprint{}, fmt.Errorf("failed to get fingerprint: %w", err)
	}
	return fp, nil
}

// FindFingerprintByHash retrieves the fingerprint for an exact hash within
// a repository.
func (s *Store) FindFingerprintByHash(ctx context.Context, repository, hash string) (store.Fingerprint, error) {
	query := `SELECT ` + fingerprintColumns + ` FROM fingerprints WHERE repository = ? AND hash = ?`

	fp, err := scanFingerprint(s.db.QueryRowContext(ctx, query, repository, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Fingerprint{}, fmt.Errorf("fingerprint hash %s: %w", hash, store.ErrNotFound)
		}
		return store.Fingerprint{}, fmt.Errorf("failed to find fingerprint by hash: %w", err)
	}
	return fp, nil
}

// ListFingerprintsByCategory retrieves up to limit fingerprints sharing a
// category within a repository, most recently seen first.
func (s *Store) ListFingerprintsByCategory(ctx context.Context, repository, category string, limit int) ([]store.Fingerprint, error) {
	query := `
		SELECT ` + fingerprintColumns + `
		FROM fingerprints
		WHERE repository = ? AND category = ?
		ORDER BY last_seen_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, repository, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints by category: %w", err)
	}
	defer rows.Close()

	return collectFingerprints(rows)
}

// ListFingerprints retrieves fingerprints matching the query filters,
// most recently seen first.
func (s *Store) ListFingerprints(ctx context.Context, q store.FingerprintQuery) ([]store.Fingerprint, error) {
	conditions := []string{"repository = ?"}
	args := []interface{}{q.Repository}

	if q.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, q.Category)
	}
	if q.Resolved != nil {
		if *q.Resolved {
			conditions = append(conditions, "resolved_at IS NOT NULL")
		} else {
			conditions = append(conditions, "resolved_at IS NULL")
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, q.Offset)

	query := `
		SELECT ` + fingerprintColumns + `
		FROM fingerprints
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY last_seen_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer rows.Close()

	return collectFingerprints(rows)
}

// UpdateFingerprint persists the mutable fields of a fingerprint.
func (s *Store) UpdateFingerprint(ctx context.Context, fp store.Fingerprint) error {
	query := `
		UPDATE fingerprints
		SET occurrence_count = ?, last_seen_at = ?, resolved_at = ?, user_acknowledged = ?, ignored_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		fp.OccurrenceCount,
		fp.LastSeenAt.Unix(),
		nullableUnix(fp.ResolvedAt),
		boolToInt(fp.UserAcknowledged),
		nullableUnix(fp.IgnoredAt),
		fp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update fingerprint: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("fingerprint %s: %w", fp.ID, store.ErrNotFound)
	}

	return nil
}

// DeleteExpiredFingerprints removes fingerprints that are resolved and were
// last seen before the cutoff. Occurrences and resolutions cascade.
func (s *Store) DeleteExpiredFingerprints(ctx context.Context, repository string, lastSeenBefore time.Time) (int64, error) {
	query := `
		DELETE FROM fingerprints
		WHERE repository = ? AND resolved_at IS NOT NULL AND last_seen_at < ?
	`

	result, err := s.db.ExecContext(ctx, query, repository, lastSeenBefore.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired fingerprints: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return deleted, nil
}

// FingerprintStats aggregates fingerprint counts for a repository.
func (s *Store) FingerprintStats(ctx context.Context, repository string) (store.Stats, error) {
	var stats store.Stats

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN resolved_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(user_acknowledged), 0),
			COALESCE(SUM(CASE WHEN ignored_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM fingerprints
		WHERE repository = ?
	`

	err := s.db.QueryRowContext(ctx, query, repository).Scan(
		&stats.Total,
		&stats.Resolved,
		&stats.Acknowledged,
		&stats.Ignored,
	)
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to aggregate fingerprint stats: %w", err)
	}
	stats.Unresolved = stats.Total - stats.Resolved

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM fingerprints WHERE repository = ? GROUP BY category`,
		repository,
	)
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to group fingerprints by category: %w", err)
	}
	defer rows.Close()

	stats.ByCategory = make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return store.Stats{}, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return store.Stats{}, fmt.Errorf("error iterating category counts: %w", err)
	}

	topQuery := `
		SELECT ` + fingerprintColumns + `
		FROM fingerprints
		WHERE repository = ? AND resolved_at IS NULL
		ORDER BY occurrence_count DESC, last_seen_at DESC
		LIMIT 5
	`
	topRows, err := s.db.QueryContext(ctx, topQuery, repository)
	if err != nil {
		return store.Stats{}, fmt.Errorf("failed to query top unresolved fingerprints: %w", err)
	}
	defer topRows.Close()

	stats.TopUnresolved, err = collectFingerprints(topRows)
	if err != nil {
		return store.Stats{}, err
	}

	return stats, nil
}

// CreateOccurrence stores a new occurrence record.
func (s *Store) CreateOccurrence(ctx context.Context, occ store.Occurrence) error {
	query := `
		INSERT INTO occurrences (id, fingerprint_id, review_id, pull_request_id, file_path, line_number, comment_body, severity, was_addressed, was_ignored, user_response, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		occ.ID,
		occ.FingerprintID,
		occ.ReviewID,
		occ.PullRequestID,
		occ.FilePath,
		occ.LineNumber,
		occ.CommentBody,
		occ.Severity,
		boolToInt(occ.WasAddressed),
		boolToInt(occ.WasIgnored),
		occ.UserResponse,
		occ.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to create occurrence: %w", err)
	}

	return nil
}

const occurrenceColumns = `id, fingerprint_id, review_id, pull_request_id, file_path, line_number, comment_body, severity, was_addressed, was_ignored, user_response, created_at`

// GetOccurrence retrieves an occurrence by primary id.
func (s *Store) GetOccurrence(ctx context.Context, id string) (store.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM occurrences WHERE id = ?`

	occ, err := scanOccurrence(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Occurrence{}, fmt.Errorf("occurrence %s: %w", id, store.ErrNotFound)
		}
		return store.Occurrence{}, fmt.Errorf("failed to get occurrence: %w", err)
	}
	return occ, nil
}

// EarliestOccurrence retrieves the oldest occurrence for a fingerprint.
// This is the body a candidate fingerprint is reconstructed from during
// similarity search.
func (s *Store) EarliestOccurrence(ctx context.Context, fingerprintID string) (store.Occurrence, error) {
	query := `
		SELECT ` + occurrenceColumns + `
		FROM occurrences
		WHERE fingerprint_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`

	occ, err := scanOccurrence(s.db.QueryRowContext(ctx, query, fingerprintID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Occurrence{}, fmt.Errorf("occurrence for fingerprint %s: %w", fingerprintID, store.ErrNotFound)
		}
		return store.Occurrence{}, fmt.Errorf("failed to get earliest occurrence: %w", err)
	}
	return occ, nil
}

// UpdateOccurrence persists the mutable fields of an occurrence.
func (s *Store) UpdateOccurrence(ctx context.Context, occ store.Occurrence) error {
	query := `
		UPDATE occurrences
		SET was_addressed = ?, was_ignored = ?, user_response = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		boolToInt(occ.WasAddressed),
		boolToInt(occ.WasIgnored),
		occ.UserResponse,
		occ.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update occurrence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("occurrence %s: %w", occ.ID, store.ErrNotFound)
	}

	return nil
}

// CreateResolution appends a resolution record.
func (s *Store) CreateResolution(ctx context.Context, res store.Resolution) error {
	query := `
		INSERT INTO resolutions (id, fingerprint_id, pull_request_id, resolution_type, commit_sha, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		res.ID,
		res.FingerprintID,
		res.PullRequestID,
		res.ResolutionType,
		res.CommitSHA,
		res.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to create resolution: %w", err)
	}

	return nil
}

// ListResolutions retrieves all resolutions for a fingerprint, newest first.
func (s *Store) ListResolutions(ctx context.Context, fingerprintID string) ([]store.Resolution, error) {
	query := `
		SELECT id, fingerprint_id, pull_request_id, resolution_type, commit_sha, created_at
		FROM resolutions
		WHERE fingerprint_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, fingerprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	var resolutions []store.Resolution
	for rows.Next() {
		var res store.Resolution
		var createdAt int64

		if err := rows.Scan(
			&res.ID,
			&res.FingerprintID,
			&res.PullRequestID,
			&res.ResolutionType,
			&res.CommitSHA,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}

		res.CreatedAt = time.Unix(createdAt, 0)
		resolutions = append(resolutions, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return resolutions, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFingerprint(row rowScanner) (store.Fingerprint, error) {
	var fp store.Fingerprint
	var firstSeen, lastSeen int64
	var resolvedAt, ignoredAt sql.NullInt64
	var acknowledged int

	err := row.Scan(
		&fp.ID,
		&fp.Repository,
		&fp.Hash,
		&fp.Category,
		&fp.PatternType,
		&fp.OccurrenceCount,
		&firstSeen,
		&lastSeen,
		&resolvedAt,
		&acknowledged,
		&ignoredAt,
	)
	if err != nil {
		return store.Fingerprint{}, err
	}

	fp.FirstSeenAt = time.Unix(firstSeen, 0)
	fp.LastSeenAt = time.Unix(lastSeen, 0)
	fp.ResolvedAt = unixPtr(resolvedAt)
	fp.UserAcknowledged = acknowledged == 1
	fp.IgnoredAt = unixPtr(ignoredAt)
	return fp, nil
}

func scanOccurrence(row rowScanner) (store.Occurrence, error) {
	var occ store.Occurrence
	var addressed, ignored int
	var createdAt int64

	err := row.Scan(
		&occ.ID,
		&occ.FingerprintID,
		&occ.ReviewID,
		&occ.PullRequestID,
		&occ.FilePath,
		&occ.LineNumber,
		&occ.CommentBody,
		&occ.Severity,
		&addressed,
		&ignored,
		&occ.UserResponse,
		&createdAt,
	)
	if err != nil {
		return store.Occurrence{}, err
	}

	occ.WasAddressed = addressed == 1
	occ.WasIgnored = ignored == 1
	occ.CreatedAt = time.Unix(createdAt, 0)
	return occ, nil
}

func collectFingerprints(rows *sql.Rows) ([]store.Fingerprint, error) {
	var fingerprints []store.Fingerprint
	for rows.Next() {
		fp, err := scanFingerprint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fingerprints = append(fingerprints, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fingerprints: %w", err)
	}
	return fingerprints, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
