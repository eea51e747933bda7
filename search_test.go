package cortex

import (
	"testing"
	"time"
)

func TestJaccardIdenticalStrings(t *testing.T) {
	if got := jaccard("hello world", "hello world"); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
}

func TestJaccardDisjointStrings(t *testing.T) {
	if got := jaccard("alpha beta", "gamma delta"); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestLexicalScoreTitleBonus(t *testing.T) {
	m := Memory{Title: "SQLite migration plan", Content: "details"}
	withTitle := lexicalScore("sqlite migration", m)
	withoutMatch := lexicalScore("unrelated query text", m)
	if withTitle <= withoutMatch {
		t.Errorf("expected title match to score higher: with=%f without=%f", withTitle, withoutMatch)
	}
}

func TestSearchModeRecentOrdersByCreatedAt(t *testing.T) {
	s := testStore(t)
	cfg := Config{}
	cfg.ApplyDefaults()
	resolver := NewProjectResolver()

	older, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "older", Content: "c", Salience: 0.5, DecayedScore: 0.5, CreatedAt: time.Now().Add(-time.Hour), LastAccessed: time.Now()})
	newer, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "newer", Content: "c", Salience: 0.5, DecayedScore: 0.5, CreatedAt: time.Now(), LastAccessed: time.Now()})

	results, err := Search(s, cfg.Embedder, resolver, SearchOptions{Mode: ModeRecent, Project: "*", IncludeDecayed: true}, time.Now(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Memory.ID != newer.ID || results[1].Memory.ID != older.ID {
		t.Fatalf("expected newest first, got %+v", results)
	}
}

func TestSearchExcludesDeeplyDecayedByDefault(t *testing.T) {
	s := testStore(t)
	cfg := Config{}
	cfg.ApplyDefaults()
	resolver := NewProjectResolver()

	s.InsertMemory(Memory{Category: CategoryNote, Title: "stale", Content: "c", Salience: 0.5,
		DecayedScore: 0.01, LastAccessed: time.Now().Add(-1000 * time.Hour)})

	results, err := Search(s, cfg.Embedder, resolver, SearchOptions{Mode: ModeRecent, Project: "*"}, time.Now(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("expected decayed memory excluded by default, got %d results", len(results))
	}
}
