package cortex

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := Config{DBDir: t.TempDir(), LightTickDelay: time.Hour, MediumTickInterval: time.Hour}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEngineRememberRequiresTitleAndContent(t *testing.T) {
	e := testEngine(t)

	_, err := e.Remember(AddInput{Content: "no title"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.Remember(AddInput{Title: "no content"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineRememberDerivesCategoryAndSalience(t *testing.T) {
	e := testEngine(t)

	result, err := e.Remember(AddInput{
		Title:   "decision",
		Content: "we decided to use a single writer connection for SQLite",
		Project: strPtr("*"),
	})
	require.NoError(t, err)
	require.Equal(t, CategoryArchitecture, result.Memory.Category)
	require.Greater(t, result.Memory.Salience, 0.25)
}

func TestEngineRememberHonorsImportanceOverride(t *testing.T) {
	e := testEngine(t)

	result, err := e.Remember(AddInput{
		Title: "pin this", Content: "must always run migrations before start",
		Importance: ImportanceCritical, Project: strPtr("*"),
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Memory.Salience)
}

func TestEngineRememberTruncatesOversizedContent(t *testing.T) {
	e := testEngine(t)

	huge := make([]byte, MaxContentBytes+500)
	for i := range huge {
		huge[i] = 'a'
	}
	result, err := e.Remember(AddInput{Title: "big", Content: string(huge), Project: strPtr("*")})
	require.NoError(t, err)
	require.True(t, result.Truncation.WasTruncated)
	require.Equal(t, MaxContentBytes, result.Truncation.TruncatedLength)
}

func TestEngineRecallReinforcesAccessCount(t *testing.T) {
	e := testEngine(t)

	_, err := e.Remember(AddInput{Title: "reinforce me", Content: "salient content about testing", Project: strPtr("*")})
	require.NoError(t, err)

	results, err := e.Recall(SearchOptions{Query: "testing", Project: "*", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, 1, results[0].Memory.AccessCount)
}

func TestEngineRecallRejectsZeroLimit(t *testing.T) {
	e := testEngine(t)
	_, err := e.Recall(SearchOptions{Query: "testing", Project: "*"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineRecallClampsExcessiveLimit(t *testing.T) {
	e := testEngine(t)
	for i := 0; i < 3; i++ {
		_, err := e.Remember(AddInput{Title: fmt.Sprintf("item %d", i), Content: "clamp test content", Project: strPtr("*")})
		require.NoError(t, err)
	}
	results, err := e.Recall(SearchOptions{Query: "clamp", Project: "*", Limit: 500})
	require.NoError(t, err)
	require.LessOrEqual(t, len(results), 50)
}

func TestEngineAccessReinforcesSingleMemory(t *testing.T) {
	e := testEngine(t)
	stored, err := e.Remember(AddInput{Title: "direct access", Content: "accessed directly", Project: strPtr("*")})
	require.NoError(t, err)

	m, err := e.Access(stored.Memory.ID)
	require.NoError(t, err)
	require.Equal(t, 1, m.AccessCount)
	require.Greater(t, m.DecayedScore, stored.Memory.DecayedScore-1e-9)
}

func TestEngineStatsReflectsStoredMemories(t *testing.T) {
	e := testEngine(t)
	_, err := e.Remember(AddInput{Title: "a", Content: "content a", Project: strPtr("*")})
	require.NoError(t, err)

	stats, err := e.Stats("*")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
}

func TestEngineSessionLifecycle(t *testing.T) {
	e := testEngine(t)

	id, err := e.StartSession("*")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = e.EndSession(id, "wrapped up")
	require.NoError(t, err)
}

func TestEngineExportImportRoundTrip(t *testing.T) {
	e := testEngine(t)
	_, err := e.Remember(AddInput{Title: "a", Content: "content a", Project: strPtr("*")})
	require.NoError(t, err)

	data, err := e.Export("*")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	other := testEngine(t)
	memCount, _, err := other.Import(data)
	require.NoError(t, err)
	require.Equal(t, 1, memCount)
}

func strPtr(s string) *string { return &s }
