// Package dedup implements batch deduplication of review comments.
// It runs two passes: an in-batch O(n^2) comparison over freshly generated
// fingerprints, then a concurrent read-only history pass against the
// fingerprint store for everything the first pass did not eliminate.
package dedup

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bkyoung/review-dedup/internal/domain"
	"github.com/bkyoung/review-dedup/internal/usecase/history"
)

// exactMatchScore is the similarity at or above which a pair is classified
// as an exact match rather than a high-similarity one.
const exactMatchScore = 0.99

// recentWindow is how far back a stored fingerprint's last sighting counts
// as recently reported.
const recentWindow = 24 * time.Hour

// HistoryChecker is the read-only slice of the history service the engine
// needs for cross-review checks.
type HistoryChecker interface {
	FindSimilarFingerprint(ctx context.Context, repository, body string, threshold float64) (*history.SimilarityInfo, error)
}

// Logger receives structured log events from the engine. Optional.
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
}

// Metrics tracks aggregate deduplication statistics. Optional.
type Metrics interface {
	RecordBatch(total, duplicates int, duration time.Duration)
	RecordLookup(duration time.Duration)
}

// Reason classifies why a comment was marked a duplicate.
type Reason string

const (
	ReasonExactMatch       Reason = "EXACT_MATCH"
	ReasonHighSimilarity   Reason = "HIGH_SIMILARITY"
	ReasonRecentlyReported Reason = "RECENTLY_REPORTED"
	ReasonSamePattern      Reason = "SAME_PATTERN"
	ReasonResolvedIssue    Reason = "RESOLVED_ISSUE"
	ReasonAcknowledged     Reason = "ACKNOWLEDGED"
)

// Comment is one review comment entering deduplication, keyed by a
// caller-supplied temporary id.
type Comment struct {
	TempID   string
	Body     string
	Category string
	Severity string
}

// Request configures one deduplication batch.
type Request struct {
	Repository          string
	Comments            []Comment
	SimilarityThreshold float64

	// IncludeResolved and IncludeAcknowledged re-admit comments whose
	// stored match is resolved or acknowledged instead of suppressing
	// them; the match is then classified by the remaining rules.
	IncludeResolved     bool
	IncludeAcknowledged bool
}

// Duplicate describes one suppressed comment. DuplicateOf holds the temp id
// of the earlier batch comment, or the stored fingerprint id for history
// matches.
type Duplicate struct {
	TempID      string
	DuplicateOf string
	Reason      Reason
	Score       float64
}

// Stats aggregates the outcome of one batch.
type Stats struct {
	Total         int
	Originals     int
	Duplicates    int
	DuplicateRate float64
	ByReason      map[Reason]int
}

// Result is the classified outcome of a deduplication batch.
type Result struct {
	OriginalComments []Comment
	Duplicates       []Duplicate
	Stats            Stats
}

// EngineDeps captures the collaborators for the engine.
type EngineDeps struct {
	History HistoryChecker
	Logger  Logger
	Metrics Metrics

	// Now overrides the clock for deterministic testing.
	Now func() time.Time
}

// Engine orchestrates batch and history duplicate detection. It only reads
// fingerprint state; all persistence belongs to the history service.
type Engine struct {
	history HistoryChecker
	logger  Logger
	metrics Metrics
	now     func() time.Time
}

// NewEngine constructs a deduplication engine.
func NewEngine(deps EngineDeps) *Engine {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		history: deps.History,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		now:     now,
	}
}

// Deduplicate classifies a batch of comments as originals or duplicates.
// The in-batch pass always keeps the earlier comment of a matched pair;
// input order is the tie-break rule. The history pass runs one independent
// read-only lookup per surviving comment; any store failure fails the whole
// batch rather than silently treating the comment as non-duplicate.
func (e *Engine) Deduplicate(ctx context.Context, req Request) (Result, error) {
	started := e.now()

	threshold := req.SimilarityThreshold
	if threshold <= 0 {
		threshold = domain.DefaultSimilarityThreshold
	}

	fingerprints := make([]domain.Fingerprint, len(req.Comments))
	for i, c := range req.Comments {
		fingerprints[i] = domain.Generate(domain.GenerateInput{
			Body:     c.Body,
			Category: c.Category,
			Severity: c.Severity,
		})
	}

	duplicates := make([]*Duplicate, len(req.Comments))

	// In-batch pass: pure computation, no shared mutable state beyond the
	// result slice.
	for i := range req.Comments {
		if duplicates[i] != nil {
			continue
		}
		for j := i + 1; j < len(req.Comments); j++ {
			if duplicates[j] != nil {
				continue
			}
			score := domain.CalculateSimilarity(fingerprints[i], fingerprints[j])
			if score < threshold {
				continue
			}
			reason := ReasonHighSimilarity
			if score >= exactMatchScore {
				reason = ReasonExactMatch
			}
			duplicates[j] = &Duplicate{
				TempID:      req.Comments[j].TempID,
				DuplicateOf: req.Comments[i].TempID,
				Reason:      reason,
				Score:       score,
			}
		}
	}

	// History pass: one lookup per surviving comment. Each goroutine
	// writes only its own slot, so no locking is needed.
	g, gctx := errgroup.WithContext(ctx)
	for i := range req.Comments {
		i := i // per-iteration copy; required while the go directive is below 1.22
		if duplicates[i] != nil {
			continue
		}
		g.Go(func() error {
			lookupStart := e.now()
			match, err := e.history.FindSimilarFingerprint(gctx, req.Repository, req.Comments[i].Body, threshold)
			if e.metrics != nil {
				e.metrics.RecordLookup(e.now().Sub(lookupStart))
			}
			if err != nil {
				return fmt.Errorf("history lookup for %s: %w", req.Comments[i].TempID, err)
			}
			if match == nil {
				return nil
			}
			duplicates[i] = &Duplicate{
				TempID:      req.Comments[i].TempID,
				DuplicateOf: match.FingerprintID,
				Reason:      e.classifyHistoryMatch(match, fingerprints[i], req),
				Score:       match.Score,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	result := Result{
		Stats: Stats{
			Total:    len(req.Comments),
			ByReason: make(map[Reason]int),
		},
	}
	for i, c := range req.Comments {
		if dup := duplicates[i]; dup != nil {
			result.Duplicates = append(result.Duplicates, *dup)
			result.Stats.ByReason[dup.Reason]++
			continue
		}
		result.OriginalComments = append(result.OriginalComments, c)
	}
	result.Stats.Originals = len(result.OriginalComments)
	result.Stats.Duplicates = len(result.Duplicates)
	if result.Stats.Total > 0 {
		result.Stats.DuplicateRate = float64(result.Stats.Duplicates) / float64(result.Stats.Total)
	}

	if e.metrics != nil {
		e.metrics.RecordBatch(result.Stats.Total, result.Stats.Duplicates, e.now().Sub(started))
	}
	if e.logger != nil {
		e.logger.LogInfo(ctx, "deduplication batch complete", map[string]interface{}{
			"repository": req.Repository,
			"total":      result.Stats.Total,
			"duplicates": result.Stats.Duplicates,
		})
	}

	return result, nil
}

// classifyHistoryMatch picks the reason for a history match. Priority:
// resolved-and-excluded, acknowledged-and-excluded, recently reported,
// exact hash, same pattern type, then plain high similarity.
func (e *Engine) classifyHistoryMatch(match *history.SimilarityInfo, input domain.Fingerprint, req Request) Reason {
	switch {
	case match.Resolved && !req.IncludeResolved:
		return ReasonResolvedIssue
	case match.UserAcknowledged && !req.IncludeAcknowledged:
		return ReasonAcknowledged
	case e.now().Sub(match.LastSeenAt) <= recentWindow:
		return ReasonRecentlyReported
	case match.Score >= exactMatchScore:
		return ReasonExactMatch
	case match.PatternType == input.PatternType:
		return ReasonSamePattern
	default:
		return ReasonHighSimilarity
	}
}

// DuplicateInfo describes the stored match for a single comment body.
type DuplicateInfo struct {
	FingerprintID   string
	Reason          Reason
	Score           float64
	OccurrenceCount int
	LastSeenAt      time.Time
}

// IsDuplicate runs only the history pass for a single comment body.
func (e *Engine) IsDuplicate(ctx context.Context, repository, body string) (bool, error) {
	info, err := e.GetDuplicateInfo(ctx, repository, body)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// GetDuplicateInfo runs only the history pass for a single comment body and
// returns the classified match, or nil when the comment is original.
func (e *Engine) GetDuplicateInfo(ctx context.Context, repository, body string) (*DuplicateInfo, error) {
	match, err := e.history.FindSimilarFingerprint(ctx, repository, body, 0)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, nil
	}

	input := domain.Generate(domain.GenerateInput{Body: body})
	return &DuplicateInfo{
		FingerprintID:   match.FingerprintID,
		Reason:          e.classifyHistoryMatch(match, input, Request{}),
		Score:           match.Score,
		OccurrenceCount: match.OccurrenceCount,
		LastSeenAt:      match.LastSeenAt,
	}, nil
}
