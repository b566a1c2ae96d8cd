// Package cli wires the cobra command tree for the dedup binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bkyoung/review-dedup/internal/store"
	"github.com/bkyoung/review-dedup/internal/usecase/dedup"
	"github.com/bkyoung/review-dedup/internal/usecase/history"
)

// ErrVersionRequested indicates the user requested the CLI version and no
// further work should be done.
var ErrVersionRequested = errors.New("version requested")

// Deduplicator defines the dependency required by the batch and check
// commands.
type Deduplicator interface {
	Deduplicate(ctx context.Context, req dedup.Request) (dedup.Result, error)
	GetDuplicateInfo(ctx context.Context, repository, body string) (*dedup.DuplicateInfo, error)
}

// HistoryService defines the dependency required by the store-backed
// commands.
type HistoryService interface {
	RecordOccurrence(ctx context.Context, input history.OccurrenceInput) (history.RecordResult, error)
	MarkResolved(ctx context.Context, fingerprintID, pullRequestID, resolutionType, commitSHA string) error
	ProcessUserAction(ctx context.Context, occurrenceID string, action history.UserAction, userResponse string) error
	CalculateProgressiveSeverity(ctx context.Context, repository, body string) (history.ProgressiveSeverity, error)
	GetHistory(ctx context.Context, query store.FingerprintQuery) ([]store.Fingerprint, error)
	GetHistoryStats(ctx context.Context, repository string) (store.Stats, error)
	CleanupExpired(ctx context.Context, repository string, expirationDays int) (int64, error)
}

// Arguments encapsulates IO writers injected from the host process.
type Arguments struct {
	OutWriter io.Writer
	ErrWriter io.Writer
}

// Dependencies captures the collaborators for the CLI.
type Dependencies struct {
	Deduplicator     Deduplicator
	History          HistoryService
	Args             Arguments
	DefaultThreshold float64
	Version          string
}

// NewRootCommand constructs the root Cobra command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	versionString := deps.Version
	if versionString == "" {
		versionString = "v0.0.0"
	}

	root := &cobra.Command{
		Use:   "dedup",
		Short: "Review comment deduplication and history tracking",
	}
	root.SilenceUsage = true
	root.SilenceErrors = true

	outWriter := deps.Args.OutWriter
	if outWriter == nil {
		outWriter = os.Stdout
	}
	errWriter := deps.Args.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	root.SetOut(outWriter)
	root.SetErr(errWriter)

	root.AddCommand(batchCommand(deps.Deduplicator, deps.DefaultThreshold))
	root.AddCommand(checkCommand(deps.Deduplicator))
	root.AddCommand(recordCommand(deps.History))
	root.AddCommand(resolveCommand(deps.History))
	root.AddCommand(actionCommand(deps.History))
	root.AddCommand(severityCommand(deps.History))
	root.AddCommand(historyCommand(deps.History))
	root.AddCommand(statsCommand(deps.History))
	root.AddCommand(cleanupCommand(deps.History))

	var showVersion bool
	root.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	versionHandler := func(cmd *cobra.Command, args []string) error {
		if showVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), versionString)
			return ErrVersionRequested
		}
		return nil
	}
	root.PersistentPreRunE = versionHandler
	root.RunE = func(cmd *cobra.Command, args []string) error {
		if err := versionHandler(cmd, args); err != nil {
			return err
		}
		return cmd.Help()
	}

	return root
}

// batchComment is the JSON wire shape for batch input files.
type batchComment struct {
	TempID   string `json:"tempId"`
	Body     string `json:"body"`
	Category string `json:"category,omitempty"`
	Severity string `json:"severity,omitempty"`
}

func batchCommand(deduplicator Deduplicator, defaultThreshold float64) *cobra.Command {
	var repository string
	var inputPath string
	var threshold float64
	var includeResolved bool
	var includeAcknowledged bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Deduplicate a batch of review comments",
		RunE: func(cmd *cobra.Command, args []string) error {
			comments, err := readBatchInput(cmd.InOrStdin(), inputPath)
			if err != nil {
				return err
			}

			result, err := deduplicator.Deduplicate(cmd.Context(), dedup.Request{
				Repository:          repository,
				Comments:            comments,
				SimilarityThreshold: threshold,
				IncludeResolved:     includeResolved,
				IncludeAcknowledged: includeAcknowledged,
			})
			if err != nil {
				return fmt.Errorf("deduplicate: %w", err)
			}

			if jsonOutput || !writerIsTerminal(cmd.OutOrStdout()) {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), dedup.FormatSummary(result))
			return err
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	cmd.Flags().StringVar(&inputPath, "input", "-", "JSON file of comments ('-' for stdin)")
	cmd.Flags().Float64Var(&threshold, "threshold", defaultThreshold, "Similarity threshold")
	cmd.Flags().BoolVar(&includeResolved, "include-resolved", false, "Re-admit comments matching resolved issues")
	cmd.Flags().BoolVar(&includeAcknowledged, "include-acknowledged", false, "Re-admit comments matching acknowledged issues")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON even on a terminal")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func checkCommand(deduplicator Deduplicator) *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "check <body>",
		Short: "Check a single comment against stored history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := deduplicator.GetDuplicateInfo(cmd.Context(), repository, args[0])
			if err != nil {
				return fmt.Errorf("check: %w", err)
			}
			if info == nil {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "original: no similar issue on record")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"duplicate of %s (%s, score %.2f, seen %d times, last %s)\n",
				info.FingerprintID, info.Reason, info.Score,
				info.OccurrenceCount, info.LastSeenAt.Format("2006-01-02 15:04"))
			return err
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func recordCommand(historySvc HistoryService) *cobra.Command {
	var input history.OccurrenceInput

	cmd := &cobra.Command{
		Use:   "record <body>",
		Short: "Record a comment occurrence in history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Body = args[0]
			result, err := historySvc.RecordOccurrence(cmd.Context(), input)
			if err != nil {
				return fmt.Errorf("record occurrence: %w", err)
			}

			state := fmt.Sprintf("recurrence #%d", result.PreviousOccurrenceCount+1)
			if result.IsNewFingerprint {
				state = "new fingerprint"
			}
			if result.WasReintroduced {
				state += " (reintroduced)"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: fingerprint=%s occurrence=%s\n",
				state, result.FingerprintID, result.OccurrenceID)
			return err
		},
	}

	cmd.Flags().StringVar(&input.Repository, "repo", "", "Repository identifier")
	cmd.Flags().StringVar(&input.ReviewID, "review", "", "Review identifier")
	cmd.Flags().StringVar(&input.PullRequestID, "pr", "", "Pull request identifier")
	cmd.Flags().StringVar(&input.FilePath, "file", "", "File path the comment refers to")
	cmd.Flags().IntVar(&input.LineNumber, "line", 0, "Line number the comment refers to")
	cmd.Flags().StringVar(&input.Category, "category", "", "Category override")
	cmd.Flags().StringVar(&input.PatternType, "pattern", "", "Pattern type override")
	cmd.Flags().StringVar(&input.Severity, "severity", "", "Severity")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("review")

	return cmd
}

func resolveCommand(historySvc HistoryService) *cobra.Command {
	var fingerprintID string
	var pullRequestID string
	var resolutionType string
	var commitSHA string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark a fingerprint as resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := historySvc.MarkResolved(cmd.Context(), fingerprintID, pullRequestID, resolutionType, commitSHA); err != nil {
				return fmt.Errorf("mark resolved: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "resolved %s (%s)\n", fingerprintID, resolutionType)
			return err
		},
	}

	cmd.Flags().StringVar(&fingerprintID, "fingerprint", "", "Fingerprint identifier")
	cmd.Flags().StringVar(&pullRequestID, "pr", "", "Pull request identifier")
	cmd.Flags().StringVar(&resolutionType, "type", history.ResolutionFixed, "Resolution type (FIXED, ACKNOWLEDGED, FALSE_POSITIVE, WONT_FIX)")
	cmd.Flags().StringVar(&commitSHA, "commit", "", "Commit SHA that resolved the issue")
	_ = cmd.MarkFlagRequired("fingerprint")

	return cmd
}

func actionCommand(historySvc HistoryService) *cobra.Command {
	var occurrenceID string
	var actionType string
	var response string

	cmd := &cobra.Command{
		Use:   "action",
		Short: "Record a user action against an occurrence",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := historySvc.ProcessUserAction(cmd.Context(), occurrenceID, history.UserAction(actionType), response)
			if err != nil {
				return fmt.Errorf("process user action: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "recorded %s on %s\n", actionType, occurrenceID)
			return err
		},
	}

	cmd.Flags().StringVar(&occurrenceID, "occurrence", "", "Occurrence identifier")
	cmd.Flags().StringVar(&actionType, "type", "", "Action type (ADDRESSED, ACKNOWLEDGED, IGNORED, FEEDBACK)")
	cmd.Flags().StringVar(&response, "response", "", "Free-text user response")
	_ = cmd.MarkFlagRequired("occurrence")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func severityCommand(historySvc HistoryService) *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "severity <body>",
		Short: "Compute the progressive severity for a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sev, err := historySvc.CalculateProgressiveSeverity(cmd.Context(), repository, args[0])
			if err != nil {
				return fmt.Errorf("calculate severity: %w", err)
			}
			if sev.Context != "" {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s\n", sev.Level, sev.RecommendedFormat, sev.Context)
			} else {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", sev.Level, sev.RecommendedFormat)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func historyCommand(historySvc HistoryService) *cobra.Command {
	var repository string
	var category string
	var resolvedOnly bool
	var unresolvedOnly bool
	var limit int
	var offset int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List tracked fingerprints",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := store.FingerprintQuery{
				Repository: repository,
				Category:   category,
				Limit:      limit,
				Offset:     offset,
			}
			if resolvedOnly {
				resolved := true
				query.Resolved = &resolved
			} else if unresolvedOnly {
				resolved := false
				query.Resolved = &resolved
			}

			fingerprints, err := historySvc.GetHistory(cmd.Context(), query)
			if err != nil {
				return fmt.Errorf("get history: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, fp := range fingerprints {
				status := "open"
				switch {
				case fp.Resolved():
					status = "resolved"
				case fp.UserAcknowledged:
					status = "acknowledged"
				case fp.IgnoredAt != nil:
					status = "ignored"
				}
				if _, err := fmt.Fprintf(out, "%s  %s/%s  x%d  %s  last %s\n",
					fp.Hash, fp.Category, fp.PatternType, fp.OccurrenceCount,
					status, fp.LastSeenAt.Format("2006-01-02")); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().BoolVar(&resolvedOnly, "resolved", false, "Only resolved fingerprints")
	cmd.Flags().BoolVar(&unresolvedOnly, "unresolved", false, "Only unresolved fingerprints")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func statsCommand(historySvc HistoryService) *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate fingerprint statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := historySvc.GetHistoryStats(cmd.Context(), repository)
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total: %d  resolved: %d  unresolved: %d  acknowledged: %d  ignored: %d\n",
				stats.Total, stats.Resolved, stats.Unresolved, stats.Acknowledged, stats.Ignored)
			categories := make([]string, 0, len(stats.ByCategory))
			for category := range stats.ByCategory {
				categories = append(categories, category)
			}
			sort.Strings(categories)
			for _, category := range categories {
				fmt.Fprintf(out, "  %-16s %d\n", category, stats.ByCategory[category])
			}
			if len(stats.TopUnresolved) > 0 {
				fmt.Fprintln(out, "top unresolved:")
				for _, fp := range stats.TopUnresolved {
					fmt.Fprintf(out, "  %s  %s/%s  x%d\n",
						fp.Hash, fp.Category, fp.PatternType, fp.OccurrenceCount)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func cleanupCommand(historySvc HistoryService) *cobra.Command {
	var repository string
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete resolved fingerprints beyond the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := historySvc.CleanupExpired(cmd.Context(), repository, days)
			if err != nil {
				return fmt.Errorf("cleanup: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired fingerprint(s)\n", deleted)
			return err
		},
	}

	cmd.Flags().StringVar(&repository, "repo", "", "Repository identifier")
	cmd.Flags().IntVar(&days, "days", 0, "Retention window in days (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("repo")

	return cmd
}

func readBatchInput(stdin io.Reader, path string) ([]dedup.Comment, error) {
	var reader io.Reader
	if path == "" || path == "-" {
		reader = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var wire []batchComment
	if err := json.NewDecoder(reader).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}

	comments := make([]dedup.Comment, len(wire))
	for i, c := range wire {
		comments[i] = dedup.Comment{
			TempID:   c.TempID,
			Body:     c.Body,
			Category: c.Category,
			Severity: c.Severity,
		}
	}
	return comments, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writerIsTerminal reports whether the writer is an interactive terminal,
// which selects the human summary over JSON output.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
