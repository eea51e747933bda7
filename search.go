package cortex

import (
	"sort"
	"strings"
	"time"
)

// lexicalTitleBonus is added to the lexical score when the query appears
// verbatim as a substring of the title.
const lexicalTitleBonus = 0.2

// jaccard computes word-set overlap between two strings, lowercased.
func jaccard(a, b string) float64 {
	aw := wordSet(a)
	bw := wordSet(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	intersection := 0
	for w := range aw {
		if bw[w] {
			intersection++
		}
	}
	union := len(aw) + len(bw) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// lexicalScore computes the Jaccard-plus-substring-bonus term.
func lexicalScore(query string, m Memory) float64 {
	if query == "" {
		return 0
	}
	text := m.Title + " " + m.Content
	score := jaccard(query, text)
	if strings.Contains(strings.ToLower(m.Title), strings.ToLower(query)) {
		score += lexicalTitleBonus
	}
	if score > 1 {
		score = 1
	}
	return score
}

// relevance computes the combined ranking score.
//
//	relevance = 0.6*semantic + 0.3*lexical + 0.1*recency_boost
func relevance(query string, queryVec []float32, m Memory, now time.Time, decayRatePerHour float64) float64 {
	semantic := 0.0
	if queryVec != nil && m.Embedding != nil {
		semantic = Cosine(queryVec, m.Embedding)
	}
	lexical := lexicalScore(query, m)
	recency := Decayed(m.Salience, m.LastAccessed, now, m.AccessCount, decayRatePerHour)
	return 0.6*semantic + 0.3*lexical + 0.1*recency
}

// resolveProjectFilter turns the caller's project string into the nil/
// pointer form ListMemories expects: "*" => nil (no filter), "" => resolved
// value (possibly nil for global), anything else => that literal project.
func resolveProjectFilter(project string, resolver *ProjectResolver) *string {
	if project == "*" {
		return nil
	}
	return resolver.Resolve(project)
}

// Search implements recall: text/semantic search plus filters. Every
// returned memory is passed through touchAccess exactly once
// (reinforcement on recall), performed by the caller (Engine.Recall) so
// Search itself stays a pure read.
func Search(store *Store, embedder EmbeddingProvider, resolver *ProjectResolver, opts SearchOptions, now time.Time, cfg Config) ([]SearchResult, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 10
	}

	var minDecayed *float64
	if !opts.IncludeDecayed {
		// A single conservative floor is applied pre-ranking; exact
		// per-category floors are re-checked after scoring below, since
		// ListMemories cannot express a per-row category-dependent bound.
		floor := 0.0
		minDecayed = &floor
	}

	filter := MemoryFilter{
		Category:   opts.Category,
		Type:       opts.Type,
		Project:    resolveProjectFilter(opts.Project, resolver),
		Tags:       opts.Tags,
		MinDecayed: minDecayed,
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeSearch
	}

	switch mode {
	case ModeRecent:
		filter.OrderBy = "created_at DESC"
		filter.Limit = limit
		rows, err := store.ListMemories(filter)
		if err != nil {
			return nil, err
		}
		return toResults(rows, func(m Memory) float64 {
			return Decayed(m.Salience, m.LastAccessed, now, m.AccessCount, cfg.DecayRatePerHour)
		}, opts.IncludeDecayed), nil

	case ModeImportant:
		filter.OrderBy = "salience DESC, decayed_score DESC"
		filter.Limit = limit
		rows, err := store.ListMemories(filter)
		if err != nil {
			return nil, err
		}
		return toResults(rows, func(m Memory) float64 { return m.Salience }, opts.IncludeDecayed), nil

	default: // ModeSearch
		candidates, err := store.ListMemories(filter)
		if err != nil {
			return nil, err
		}

		var queryVec []float32
		if opts.Query != "" {
			queryVec, _ = embedder.Embed(opts.Query)
		}

		results := make([]SearchResult, 0, len(candidates))
		for _, m := range candidates {
			if !opts.IncludeDecayed {
				decayed := Decayed(m.Salience, m.LastAccessed, now, m.AccessCount, cfg.DecayRatePerHour)
				if decayed < DeletionThresholds[m.Category] {
					continue
				}
			}
			results = append(results, SearchResult{
				Memory:    m,
				Relevance: relevance(opts.Query, queryVec, m, now, cfg.DecayRatePerHour),
			})
		}

		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Relevance > results[j].Relevance
		})
		if len(results) > limit {
			results = results[:limit]
		}
		return results, nil
	}
}

// toResults wraps plain memories into SearchResults using scoreFn as the
// reported relevance, applying the same decayed-score exclusion unless
// includeDecayed is set (recent/important modes still honor it).
func toResults(rows []Memory, scoreFn func(Memory) float64, includeDecayed bool) []SearchResult {
	out := make([]SearchResult, 0, len(rows))
	for _, m := range rows {
		if !includeDecayed && m.DecayedScore < DeletionThresholds[m.Category] {
			continue
		}
		out = append(out, SearchResult{Memory: m, Relevance: scoreFn(m)})
	}
	return out
}
