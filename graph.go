package cortex

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// negationCues mark that a memory is expressing the opposite of something.
var negationCues = []string{
	"don't use", "do not use", "never use", "stop using", "avoid using",
	"instead of", "not ", "no longer", "deprecated", "wrong", "incorrect",
}

// stopWords are excluded from the "shared significant term" check so common
// words don't trigger false-positive contradictions/references.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"to": true, "of": true, "for": true, "and": true, "or": true, "in": true,
	"on": true, "with": true, "we": true, "use": true, "using": true, "it": true,
}

// RelationshipCandidate is a proposed link before it is persisted.
type RelationshipCandidate struct {
	TargetID     int64
	Relationship Relationship
	Strength     float64
}

// DetectRelationships finds up to k relationship candidates for m among
// pool. Entries of pool with m's own ID are skipped, so pool may include m.
func DetectRelationships(m Memory, pool []Memory, k int, minScore, refinesFloor float64) []RelationshipCandidate {
	type scoredCandidate struct {
		memory     Memory
		similarity float64
	}

	var scored []scoredCandidate
	for _, c := range pool {
		if c.ID == m.ID {
			continue
		}
		sim := Cosine(m.Embedding, c.Embedding)
		if sim < minScore {
			continue
		}
		scored = append(scored, scoredCandidate{c, sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].memory.ID < scored[j].memory.ID
	})
	if len(scored) > k {
		scored = scored[:k]
	}

	out := make([]RelationshipCandidate, 0, len(scored))
	for _, sc := range scored {
		rel, strength := classifyRelationship(m, sc.memory, sc.similarity, refinesFloor)
		out = append(out, RelationshipCandidate{TargetID: sc.memory.ID, Relationship: rel, Strength: strength})
	}
	return out
}

// classifyRelationship applies the first-match-wins rules: contradicts,
// then refines, then references, falling back to related.
func classifyRelationship(m, c Memory, similarity, refinesFloor float64) (Relationship, float64) {
	if isContradiction(m, c) {
		return RelContradicts, similarity
	}
	if m.Category == c.Category && similarity >= refinesFloor {
		return RelRefines, similarity
	}
	if cites(m, c) {
		return RelReferences, 0.9
	}
	return RelRelated, similarity
}

// isContradiction checks whether m and c share a significant term while one
// of them carries a negation cue — a cheap proxy for "opposes key terms of
// the other" that needs no external NLI model.
func isContradiction(m, c Memory) bool {
	if !sharesSignificantTerm(m, c) {
		return false
	}
	return hasNegationCue(m.Content) != hasNegationCue(c.Content)
}

func hasNegationCue(text string) bool {
	lower := strings.ToLower(text)
	for _, cue := range negationCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

func sharesSignificantTerm(m, c Memory) bool {
	mTerms := significantTerms(m.Title + " " + m.Content)
	cTerms := significantTerms(c.Title + " " + c.Content)
	for t := range mTerms {
		if cTerms[t] {
			return true
		}
	}
	return false
}

func significantTerms(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	out := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()`")
		if len(w) >= 4 && !stopWords[w] {
			out[w] = true
		}
	}
	return out
}

// cites reports whether m's content references c by id, tag, or title token.
func cites(m, c Memory) bool {
	content := strings.ToLower(m.Content)
	if strings.Contains(content, "#"+strconv.FormatInt(c.ID, 10)) ||
		strings.Contains(content, fmt.Sprintf("memory %d", c.ID)) {
		return true
	}
	for _, tag := range c.Tags {
		if tag != "" && strings.Contains(content, strings.ToLower(tag)) {
			return true
		}
	}
	for _, tok := range strings.Fields(strings.ToLower(c.Title)) {
		tok = strings.Trim(tok, ".,!?;:\"'()`")
		if len(tok) >= 4 && strings.Contains(content, tok) {
			return true
		}
	}
	return false
}

// HubBonus computes the additive salience bonus for a memory with the given
// link count: min(0.1, 0.03*log2(linkCount)), applied only
// when linkCount >= floor.
func HubBonus(linkCount int, floor int, cap, coefficient float64) float64 {
	if linkCount < floor {
		return 0
	}
	return math.Min(cap, coefficient*math.Log2(float64(linkCount)))
}
