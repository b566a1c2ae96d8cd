// Package history implements fingerprint history tracking over the
// persistent store: occurrence recording, similarity lookups against
// stored fingerprints, the user-action handlers, and the progressive
// severity state machine for recurring issues.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bkyoung/review-dedup/internal/domain"
	"github.com/bkyoung/review-dedup/internal/store"
)

// candidateLimit bounds the number of same-category fingerprints fetched
// for similarity search when no exact hash match exists.
const candidateLimit = 100

// Logger receives structured log events from the service. Optional.
type Logger interface {
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
	LogWarning(ctx context.Context, message string, fields map[string]interface{})
}

// Config holds the tunables for history tracking and progressive severity.
type Config struct {
	// SimilarityThreshold is the minimum score for a stored fingerprint
	// to count as the same issue.
	SimilarityThreshold float64

	// EnableProgressiveSeverity toggles the verbosity-reduction state
	// machine. When disabled every comment is presented in full.
	EnableProgressiveSeverity bool

	// MaxDetailedOccurrences, MaxSummaryOccurrences and
	// MinOccurrencesToIgnore are the ascending occurrence-count
	// thresholds for DETAILED -> SUMMARY -> REFERENCE -> SILENT.
	MaxDetailedOccurrences int
	MaxSummaryOccurrences  int
	MinOccurrencesToIgnore int

	// FingerprintExpirationDays is the retention window for resolved
	// fingerprints during cleanup.
	FingerprintExpirationDays int
}

// DefaultConfig returns the default history configuration.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:       domain.DefaultSimilarityThreshold,
		EnableProgressiveSeverity: true,
		MaxDetailedOccurrences:    1,
		MaxSummaryOccurrences:     3,
		MinOccurrencesToIgnore:    10,
		FingerprintExpirationDays: 90,
	}
}

// ServiceDeps captures the collaborators for the history service.
type ServiceDeps struct {
	Store  store.Store
	Config Config
	Logger Logger

	// Now overrides the clock for deterministic testing.
	Now func() time.Time
}

// Service is the history store adapter. It exclusively owns writes to
// fingerprint, occurrence and resolution records.
type Service struct {
	store  store.Store
	cfg    Config
	logger Logger
	now    func() time.Time
}

// NewService constructs a history service.
func NewService(deps ServiceDeps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg := deps.Config
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = domain.DefaultSimilarityThreshold
	}
	return &Service{
		store:  deps.Store,
		cfg:    cfg,
		logger: deps.Logger,
		now:    now,
	}
}

// SimilarityInfo describes a stored fingerprint matched against an input
// comment, with the state needed for duplicate classification.
type SimilarityInfo struct {
	FingerprintID    string
	Hash             string
	Score            float64
	Category         string
	PatternType      string
	OccurrenceCount  int
	FirstSeenAt      time.Time
	LastSeenAt       time.Time
	Resolved         bool
	UserAcknowledged bool
}

// FindSimilarFingerprint looks for a stored fingerprint matching the body.
// An exact hash match returns immediately with score 1.0. Otherwise up to
// candidateLimit stored fingerprints in the same category are reconstructed
// from their earliest occurrence body and scored; the best candidate at or
// above the threshold wins. Returns nil when nothing qualifies.
// A threshold <= 0 uses the configured default.
func (s *Service) FindSimilarFingerprint(ctx context.Context, repository, body string, threshold float64) (*SimilarityInfo, error) {
	if threshold <= 0 {
		threshold = s.cfg.SimilarityThreshold
	}

	input := domain.Generate(domain.GenerateInput{Body: body})

	exact, err := s.store.FindFingerprintByHash(ctx, repository, input.Hash)
	if err == nil {
		return similarityInfo(exact, 1.0), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("exact hash lookup: %w", err)
	}

	candidates, err := s.store.ListFingerprintsByCategory(ctx, repository, input.Category, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("candidate lookup: %w", err)
	}

	var best *SimilarityInfo
	for _, cand := range candidates {
		occ, err := s.store.EarliestOccurrence(ctx, cand.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Fingerprint without occurrences; nothing to compare against.
			s.logWarning(ctx, "fingerprint has no occurrences, skipping", map[string]interface{}{
				"fingerprintId": cand.ID,
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("earliest occurrence lookup: %w", err)
		}

		candFP := domain.Generate(domain.GenerateInput{
			Body:        occ.CommentBody,
			Category:    cand.Category,
			PatternType: cand.PatternType,
		})
		score := domain.CalculateSimilarity(input, candFP)
		if score < threshold {
			continue
		}
		if best == nil || score > best.Score {
			best = similarityInfo(cand, score)
		}
	}

	return best, nil
}

// OccurrenceInput captures one detection event to record.
type OccurrenceInput struct {
	Repository    string
	ReviewID      string
	PullRequestID string
	FilePath      string
	LineNumber    int
	Body          string

	// Optional classification overrides; empty values are detected.
	Category    string
	PatternType string
	Severity    string
}

// RecordResult reports the outcome of recording an occurrence.
type RecordResult struct {
	OccurrenceID            string
	FingerprintID           string
	IsNewFingerprint        bool
	PreviousOccurrenceCount int
	WasReintroduced         bool
}

// RecordOccurrence fingerprints the body and either increments the matching
// stored fingerprint or creates a new one, then appends an occurrence row.
// A previously resolved fingerprint seen again has its resolved state
// cleared and is reported as reintroduced.
func (s *Service) RecordOccurrence(ctx context.Context, input OccurrenceInput) (RecordResult, error) {
	fp := domain.Generate(domain.GenerateInput{
		Body:        input.Body,
		Category:    input.Category,
		PatternType: input.PatternType,
		Severity:    input.Severity,
	})
	now := s.now()

	var result RecordResult

	existing, err := s.store.FindFingerprintByHash(ctx, input.Repository, fp.Hash)
	switch {
	case err == nil:
		result.FingerprintID = existing.ID
		result.PreviousOccurrenceCount = existing.OccurrenceCount

		existing.OccurrenceCount++
		existing.LastSeenAt = now
		if existing.Resolved() {
			existing.ResolvedAt = nil
			result.WasReintroduced = true
			s.logInfo(ctx, "resolved issue reintroduced", map[string]interface{}{
				"fingerprintId": existing.ID,
				"hash":          existing.Hash,
			})
		}
		if err := s.store.UpdateFingerprint(ctx, existing); err != nil {
			return RecordResult{}, fmt.Errorf("update fingerprint: %w", err)
		}

	case errors.Is(err, store.ErrNotFound):
		record := store.Fingerprint{
			ID:              store.NewFingerprintID(),
			Repository:      input.Repository,
			Hash:            fp.Hash,
			Category:        fp.Category,
			PatternType:     fp.PatternType,
			OccurrenceCount: 1,
			FirstSeenAt:     now,
			LastSeenAt:      now,
		}
		if err := s.store.CreateFingerprint(ctx, record); err != nil {
			return RecordResult{}, fmt.Errorf("create fingerprint: %w", err)
		}
		result.FingerprintID = record.ID
		result.IsNewFingerprint = true

	default:
		return RecordResult{}, fmt.Errorf("fingerprint lookup: %w", err)
	}

	occ := store.Occurrence{
		ID:            store.NewOccurrenceID(),
		FingerprintID: result.FingerprintID,
		ReviewID:      input.ReviewID,
		PullRequestID: input.PullRequestID,
		FilePath:      input.FilePath,
		LineNumber:    input.LineNumber,
		CommentBody:   input.Body,
		Severity:      input.Severity,
		CreatedAt:     now,
	}
	if err := s.store.CreateOccurrence(ctx, occ); err != nil {
		return RecordResult{}, fmt.Errorf("create occurrence: %w", err)
	}
	result.OccurrenceID = occ.ID

	return result, nil
}

// Resolution types recorded by MarkResolved.
const (
	ResolutionFixed         = "FIXED"
	ResolutionAcknowledged  = "ACKNOWLEDGED"
	ResolutionFalsePositive = "FALSE_POSITIVE"
	ResolutionWontFix       = "WONT_FIX"
)

// MarkResolved appends a resolution record and marks the fingerprint as
// resolved. ACKNOWLEDGED and FALSE_POSITIVE additionally set the
// user-acknowledged flag.
func (s *Service) MarkResolved(ctx context.Context, fingerprintID, pullRequestID, resolutionType, commitSHA string) error {
	fp, err := s.store.GetFingerprint(ctx, fingerprintID)
	if err != nil {
		return err
	}

	now := s.now()
	res := store.Resolution{
		ID:             store.NewResolutionID(),
		FingerprintID:  fingerprintID,
		PullRequestID:  pullRequestID,
		ResolutionType: resolutionType,
		CommitSHA:      commitSHA,
		CreatedAt:      now,
	}
	if err := s.store.CreateResolution(ctx, res); err != nil {
		return fmt.Errorf("create resolution: %w", err)
	}

	fp.ResolvedAt = &now
	if resolutionType == ResolutionAcknowledged || resolutionType == ResolutionFalsePositive {
		fp.UserAcknowledged = true
	}
	if err := s.store.UpdateFingerprint(ctx, fp); err != nil {
		return fmt.Errorf("update fingerprint: %w", err)
	}

	s.logInfo(ctx, "fingerprint resolved", map[string]interface{}{
		"fingerprintId":  fingerprintID,
		"resolutionType": resolutionType,
	})
	return nil
}

// UserAction is a user reaction to a posted occurrence.
type UserAction string

const (
	ActionAddressed    UserAction = "ADDRESSED"
	ActionAcknowledged UserAction = "ACKNOWLEDGED"
	ActionIgnored      UserAction = "IGNORED"
	ActionFeedback     UserAction = "FEEDBACK"
)

// ProcessUserAction applies a user action to an occurrence and its parent
// fingerprint. Returns an error wrapping store.ErrNotFound when the
// occurrence does not exist.
func (s *Service) ProcessUserAction(ctx context.Context, occurrenceID string, action UserAction, userResponse string) error {
	occ, err := s.store.GetOccurrence(ctx, occurrenceID)
	if err != nil {
		return err
	}
	now := s.now()

	switch action {
	case ActionAddressed:
		occ.WasAddressed = true
		if err := s.store.UpdateOccurrence(ctx, occ); err != nil {
			return fmt.Errorf("update occurrence: %w", err)
		}
		fp, err := s.store.GetFingerprint(ctx, occ.FingerprintID)
		if err != nil {
			return err
		}
		fp.ResolvedAt = &now
		return s.store.UpdateFingerprint(ctx, fp)

	case ActionAcknowledged:
		fp, err := s.store.GetFingerprint(ctx, occ.FingerprintID)
		if err != nil {
			return err
		}
		fp.UserAcknowledged = true
		return s.store.UpdateFingerprint(ctx, fp)

	case ActionIgnored:
		occ.WasIgnored = true
		if err := s.store.UpdateOccurrence(ctx, occ); err != nil {
			return fmt.Errorf("update occurrence: %w", err)
		}
		fp, err := s.store.GetFingerprint(ctx, occ.FingerprintID)
		if err != nil {
			return err
		}
		fp.IgnoredAt = &now
		return s.store.UpdateFingerprint(ctx, fp)

	case ActionFeedback:
		occ.UserResponse = userResponse
		return s.store.UpdateOccurrence(ctx, occ)

	default:
		return fmt.Errorf("unknown user action: %s", action)
	}
}

// GetHistory returns fingerprints matching the query filters.
func (s *Service) GetHistory(ctx context.Context, query store.FingerprintQuery) ([]store.Fingerprint, error) {
	return s.store.ListFingerprints(ctx, query)
}

// GetHistoryStats returns aggregate fingerprint counts for a repository.
func (s *Service) GetHistoryStats(ctx context.Context, repository string) (store.Stats, error) {
	return s.store.FingerprintStats(ctx, repository)
}

// CleanupExpired deletes fingerprints that are resolved and were last seen
// beyond the retention window. expirationDays <= 0 uses the configured
// default. Returns the number of fingerprints deleted.
func (s *Service) CleanupExpired(ctx context.Context, repository string, expirationDays int) (int64, error) {
	if expirationDays <= 0 {
		expirationDays = s.cfg.FingerprintExpirationDays
	}
	cutoff := s.now().AddDate(0, 0, -expirationDays)

	deleted, err := s.store.DeleteExpiredFingerprints(ctx, repository, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logInfo(ctx, "expired fingerprints deleted", map[string]interface{}{
			"repository": repository,
			"deleted":    deleted,
		})
	}
	return deleted, nil
}

func similarityInfo(fp store.Fingerprint, score float64) *SimilarityInfo {
	return &SimilarityInfo{
		FingerprintID:    fp.ID,
		Hash:             fp.Hash,
		Score:            score,
		Category:         fp.Category,
		PatternType:      fp.PatternType,
		OccurrenceCount:  fp.OccurrenceCount,
		FirstSeenAt:      fp.FirstSeenAt,
		LastSeenAt:       fp.LastSeenAt,
		Resolved:         fp.Resolved(),
		UserAcknowledged: fp.UserAcknowledged,
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.LogInfo(ctx, msg, fields)
	}
}

func (s *Service) logWarning(ctx context.Context, msg string, fields map[string]interface{}) {
	if s.logger != nil {
		s.logger.LogWarning(ctx, msg, fields)
	}
}
