package cortex

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenerateContextSummary builds the grouped view a developer resuming work
// wants: recent activity, key decisions, active patterns, and
// open items not already contradicted or superseded.
func GenerateContextSummary(store *Store, project *string, now time.Time) (ContextSummary, error) {
	all, err := store.All(project)
	if err != nil {
		return ContextSummary{}, err
	}

	var summary ContextSummary
	summary.RecentMemories = topN(all, 10, func(a, b Memory) bool {
		return a.LastAccessed.After(b.LastAccessed)
	})

	decisionPool := filterMemories(all, func(m Memory) bool {
		return m.Category == CategoryArchitecture || m.Category == CategoryPreference
	})
	summary.KeyDecisions = topN(decisionPool, 5, func(a, b Memory) bool {
		return a.Salience > b.Salience
	})

	patternPool := filterMemories(all, func(m Memory) bool {
		return m.Category == CategoryPattern && m.DecayedScore >= 0.4
	})
	summary.ActivePatterns = topN(patternPool, 5, func(a, b Memory) bool {
		return a.Salience > b.Salience
	})

	superseded, err := supersededIDs(store, all)
	if err != nil {
		return ContextSummary{}, err
	}
	pendingPool := filterMemories(all, func(m Memory) bool {
		return m.Category == CategoryTodo && !superseded[m.ID]
	})
	summary.PendingItems = topN(pendingPool, 20, func(a, b Memory) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})

	return summary, nil
}

// supersededIDs returns the set of memory ids that are the target of an
// incoming contradicts or supersedes link — the "not already
// resolved" exclusion for pending items.
func supersededIDs(store *Store, all []Memory) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, rel := range []Relationship{RelContradicts, RelSupersedes} {
		links, err := store.LinksOfRelationship(rel, 10000)
		if err != nil {
			return nil, err
		}
		for _, l := range links {
			out[l.TargetID] = true
		}
	}
	return out, nil
}

func filterMemories(in []Memory, keep func(Memory) bool) []Memory {
	var out []Memory
	for _, m := range in {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func topN(in []Memory, n int, less func(a, b Memory) bool) []Memory {
	sorted := make([]Memory, len(in))
	copy(sorted, in)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FormatContextSummary renders a ContextSummary as markdown, in a stable
// section order, for the "summary"/"detailed" get_context formats.
func FormatContextSummary(s ContextSummary, format ContextFormat, now time.Time) string {
	var b strings.Builder

	writeSection := func(title string, memories []Memory) {
		if len(memories) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, m := range memories {
			writeMemoryLine(&b, m, format, now)
		}
		b.WriteString("\n")
	}

	writeSection("Recent Activity", s.RecentMemories)
	writeSection("Key Decisions", s.KeyDecisions)
	writeSection("Active Patterns", s.ActivePatterns)
	writeSection("Pending Items", s.PendingItems)

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeMemoryLine(b *strings.Builder, m Memory, format ContextFormat, now time.Time) {
	switch format {
	case FormatDetailed:
		fmt.Fprintf(b, "- **%s** (salience %.2f, accessed %s ago)\n", m.Title, m.Salience, FormatTimeSinceAccess(m, now))
		fmt.Fprintf(b, "  %s\n", m.Content)
		if len(m.Tags) > 0 {
			fmt.Fprintf(b, "  tags: %s\n", strings.Join(m.Tags, ", "))
		}
	default:
		fmt.Fprintf(b, "- %s\n", m.Title)
	}
}
