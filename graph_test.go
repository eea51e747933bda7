package cortex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectRelationshipsRefines(t *testing.T) {
	base := []float32{1, 0, 0, 0}
	near := []float32{0.95, 0.05, 0, 0} // same direction, high similarity

	m := Memory{ID: 1, Category: CategoryPattern, Title: "use context.Context", Content: "always pass context first", Embedding: base}
	pool := []Memory{
		{ID: 2, Category: CategoryPattern, Title: "context first arg", Content: "context.Context goes first", Embedding: near},
	}

	candidates := DetectRelationships(m, pool, 5, 0.55, 0.85)
	require.Len(t, candidates, 1)
	assert.Equal(t, RelRefines, candidates[0].Relationship)
}

func TestDetectRelationshipsContradicts(t *testing.T) {
	vec := []float32{1, 0, 0, 0}
	m := Memory{ID: 1, Category: CategoryPattern, Title: "logging", Content: "never use fmt.Println for logging, use the logger", Embedding: vec}
	pool := []Memory{
		{ID: 2, Category: CategoryPattern, Title: "logging convention", Content: "use fmt.Println for logging in scripts", Embedding: vec},
	}

	candidates := DetectRelationships(m, pool, 5, 0.55, 0.85)
	require.Len(t, candidates, 1)
	assert.Equal(t, RelContradicts, candidates[0].Relationship)
}

func TestDetectRelationshipsExcludesSelf(t *testing.T) {
	m := Memory{ID: 1, Embedding: []float32{1, 0}}
	pool := []Memory{m}

	candidates := DetectRelationships(m, pool, 5, 0.1, 0.85)
	assert.Empty(t, candidates)
}

func TestDetectRelationshipsBelowMinScoreExcluded(t *testing.T) {
	m := Memory{ID: 1, Embedding: []float32{1, 0}}
	pool := []Memory{{ID: 2, Embedding: []float32{0, 1}}}

	candidates := DetectRelationships(m, pool, 5, 0.55, 0.85)
	assert.Empty(t, candidates)
}

func TestHubBonusBelowFloorIsZero(t *testing.T) {
	assert.Equal(t, 0.0, HubBonus(1, 2, 0.1, 0.03))
}

func TestHubBonusCapped(t *testing.T) {
	bonus := HubBonus(10000, 2, 0.1, 0.03)
	assert.LessOrEqual(t, bonus, 0.1)
}

func TestCitesDetectsTagMention(t *testing.T) {
	target := Memory{ID: 5, Title: "decision log", Tags: []string{"storage-engine"}}
	source := Memory{Content: "revisit the storage-engine tradeoff we logged earlier"}
	assert.True(t, cites(source, target))
}
