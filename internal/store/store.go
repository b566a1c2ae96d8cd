package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist. Callers match it
// with errors.Is.
var ErrNotFound = errors.New("record not found")

// Store defines the persistence contract for fingerprint history.
// Implementations own all reads and writes over the three record kinds;
// every operation is scoped to a repository where the record carries one.
type Store interface {
	// Fingerprint persistence
	CreateFingerprint(ctx context.Context, fp Fingerprint) error
	GetFingerprint(ctx context.Context, id string) (Fingerprint, error)
	FindFingerprintByHash(ctx context.Context, repository, hash string) (Fingerprint, error)
	ListFingerprintsByCategory(ctx context.Context, repository, category string, limit int) ([]Fingerprint, error)
	ListFingerprints(ctx context.Context, query FingerprintQuery) ([]Fingerprint, error)
	UpdateFingerprint(ctx context.Context, fp Fingerprint) error
	DeleteExpiredFingerprints(ctx context.Context, repository string, lastSeenBefore time.Time) (int64, error)
	FingerprintStats(ctx context.Context, repository string) (Stats, error)

	// Occurrence persistence
	CreateOccurrence(ctx context.Context, occ Occurrence) error
	GetOccurrence(ctx context.Context, id string) (Occurrence, error)
	EarliestOccurrence(ctx context.Context, fingerprintID string) (Occurrence, error)
	UpdateOccurrence(ctx context.Context, occ Occurrence) error

	// Resolution persistence (append-only)
	CreateResolution(ctx context.Context, res Resolution) error
	ListResolutions(ctx context.Context, fingerprintID string) ([]Resolution, error)

	// Utility
	Close() error
}

// Fingerprint is the canonical record for one recurring issue within a
// repository, keyed by a truncated content hash. (Repository, Hash) is
// unique.
type Fingerprint struct {
	ID               string
	Repository       string
	Hash             string
	Category         string
	PatternType      string
	OccurrenceCount  int
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	ResolvedAt       *time.Time
	UserAcknowledged bool
	IgnoredAt        *time.Time
}

// Resolved reports whether the fingerprint is currently marked resolved.
func (f Fingerprint) Resolved() bool {
	return f.ResolvedAt != nil
}

// Occurrence is one instance of a fingerprint being raised in a review.
type Occurrence struct {
	ID            string
	FingerprintID string
	ReviewID      string
	PullRequestID string
	FilePath      string
	LineNumber    int
	CommentBody   string
	Severity      string
	WasAddressed  bool
	WasIgnored    bool
	UserResponse  string
	CreatedAt     time.Time
}

// Resolution is an append-only audit record of a fingerprint being closed.
// One fingerprint accumulates many resolutions over its life (resolved,
// reintroduced, resolved again).
type Resolution struct {
	ID             string
	FingerprintID  string
	PullRequestID  string
	ResolutionType string
	CommitSHA      string
	CreatedAt      time.Time
}

// FingerprintQuery filters and paginates fingerprint reads.
type FingerprintQuery struct {
	Repository string
	Category   string
	Resolved   *bool
	Limit      int
	Offset     int
}

// Stats aggregates fingerprint counts for one repository.
type Stats struct {
	Total        int
	Resolved     int
	Unresolved   int
	Acknowledged int
	Ignored      int
	ByCategory   map[string]int

	// TopUnresolved holds the five unresolved fingerprints with the
	// highest occurrence counts, descending.
	TopUnresolved []Fingerprint
}
