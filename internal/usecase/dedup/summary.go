package dedup

import (
	"fmt"
	"sort"
	"strings"
)

// FormatSummary renders a human-readable report of a deduplication result.
func FormatSummary(result Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Deduplication summary: %d comment(s), %d original, %d duplicate(s) (%.0f%%)\n",
		result.Stats.Total,
		result.Stats.Originals,
		result.Stats.Duplicates,
		result.Stats.DuplicateRate*100,
	)

	if len(result.Duplicates) == 0 {
		return b.String()
	}

	reasons := make([]Reason, 0, len(result.Stats.ByReason))
	for reason := range result.Stats.ByReason {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	b.WriteString("\nBy reason:\n")
	for _, reason := range reasons {
		fmt.Fprintf(&b, "  %-18s %d\n", reason, result.Stats.ByReason[reason])
	}

	b.WriteString("\nDuplicates:\n")
	for _, dup := range result.Duplicates {
		fmt.Fprintf(&b, "  %s -> %s (%s, score %.2f)\n",
			dup.TempID, dup.DuplicateOf, dup.Reason, dup.Score)
	}

	return b.String()
}
