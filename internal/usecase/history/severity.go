package history

import (
	"context"
	"fmt"
)

// SeverityLevel is the presentation level for a recurring issue.
type SeverityLevel string

const (
	// SeverityDetailed presents the full comment.
	SeverityDetailed SeverityLevel = "DETAILED"
	// SeveritySummary presents a brief one-line version.
	SeveritySummary SeverityLevel = "SUMMARY"
	// SeverityReference presents only a link to the prior report.
	SeverityReference SeverityLevel = "REFERENCE"
	// SeveritySilent suppresses the comment entirely.
	SeveritySilent SeverityLevel = "SILENT"
)

// Recommended formats paired with each severity level.
const (
	FormatFull   = "full"
	FormatBrief  = "brief"
	FormatLink   = "link"
	FormatHidden = "hidden"
)

// ProgressiveSeverity is the outcome of the verbosity state machine for one
// comment body.
type ProgressiveSeverity struct {
	Level             SeverityLevel
	OccurrenceCount   int
	RecommendedFormat string
	Context           string
}

// CalculateProgressiveSeverity decides how a comment should be presented
// based on its stored history. Decision order, first match wins:
// no stored match -> DETAILED; user-acknowledged -> SILENT;
// resolved -> REFERENCE; otherwise the occurrence count is compared against
// the three ascending thresholds.
func (s *Service) CalculateProgressiveSeverity(ctx context.Context, repository, body string) (ProgressiveSeverity, error) {
	if !s.cfg.EnableProgressiveSeverity {
		return ProgressiveSeverity{Level: SeverityDetailed, RecommendedFormat: FormatFull}, nil
	}

	match, err := s.FindSimilarFingerprint(ctx, repository, body, s.cfg.SimilarityThreshold)
	if err != nil {
		return ProgressiveSeverity{}, err
	}
	if match == nil {
		return ProgressiveSeverity{Level: SeverityDetailed, RecommendedFormat: FormatFull}, nil
	}

	if match.UserAcknowledged {
		return ProgressiveSeverity{
			Level:             SeveritySilent,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatHidden,
			Context:           "issue acknowledged by user",
		}, nil
	}
	if match.Resolved {
		return ProgressiveSeverity{
			Level:             SeverityReference,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatLink,
			Context:           "issue previously resolved",
		}, nil
	}

	recurrence := fmt.Sprintf("reported %d times since %s",
		match.OccurrenceCount, match.FirstSeenAt.Format("2006-01-02"))

	switch {
	case match.OccurrenceCount <= s.cfg.MaxDetailedOccurrences:
		return ProgressiveSeverity{
			Level:             SeverityDetailed,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatFull,
		}, nil
	case match.OccurrenceCount <= s.cfg.MaxSummaryOccurrences:
		return ProgressiveSeverity{
			Level:             SeveritySummary,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatBrief,
			Context:           recurrence,
		}, nil
	case match.OccurrenceCount < s.cfg.MinOccurrencesToIgnore:
		return ProgressiveSeverity{
			Level:             SeverityReference,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatLink,
			Context:           recurrence,
		}, nil
	default:
		return ProgressiveSeverity{
			Level:             SeveritySilent,
			OccurrenceCount:   match.OccurrenceCount,
			RecommendedFormat: FormatHidden,
			Context:           recurrence,
		}, nil
	}
}
