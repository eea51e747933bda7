package cortex

import (
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVectorEncodeDecode(t *testing.T) {
	original := []float32{1.0, -0.5, 0.333, 0, 42.0}
	decoded := decodeVector(encodeVector(original))

	if len(decoded) != len(original) {
		t.Fatalf("length mismatch: %d vs %d", len(decoded), len(original))
	}
	for i := range original {
		if original[i] != decoded[i] {
			t.Errorf("index %d: expected %f, got %f", i, original[i], decoded[i])
		}
	}
}

func TestVectorEncodeDecodeEmpty(t *testing.T) {
	if decoded := decodeVector(encodeVector(nil)); len(decoded) != 0 {
		t.Errorf("expected empty, got %d elements", len(decoded))
	}
}

func TestInsertAndGetMemory(t *testing.T) {
	s := testStore(t)

	m, err := s.InsertMemory(Memory{
		Type: TypeShortTerm, Category: CategoryNote, Title: "title", Content: "content",
		Salience: 0.7, DecayedScore: 0.7, Embedding: []float32{0.1, 0.2, 0.3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.ID <= 0 {
		t.Fatal("expected positive ID")
	}

	got, err := s.GetMemory(m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "title" || got.Content != "content" {
		t.Errorf("content mismatch: %+v", got)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("expected 3-dim embedding, got %d", len(got.Embedding))
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	s := testStore(t)
	if _, err := s.GetMemory(999); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListMemoriesFiltersByProject(t *testing.T) {
	s := testStore(t)
	proj := "alpha"

	s.InsertMemory(Memory{Category: CategoryNote, Title: "a", Content: "a", Project: &proj, Salience: 0.5})
	s.InsertMemory(Memory{Category: CategoryNote, Title: "b", Content: "b", Salience: 0.5})

	rows, err := s.ListMemories(MemoryFilter{Project: &proj})
	if err != nil {
		t.Fatal(err)
	}
	// global (nil-project) memories are visible alongside the scoped project
	if len(rows) != 2 {
		t.Errorf("expected 2 memories visible to project %q, got %d", proj, len(rows))
	}
}

func TestTouchAccessIncrementsCount(t *testing.T) {
	s := testStore(t)
	m, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "t", Content: "c", Salience: 0.5, DecayedScore: 0.5})

	if err := s.TouchAccess(m.ID, 0.6, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetMemory(m.ID)
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", got.AccessCount)
	}
	if got.DecayedScore != 0.6 {
		t.Errorf("expected decayed score 0.6, got %f", got.DecayedScore)
	}
}

func TestPromoteToLongTerm(t *testing.T) {
	s := testStore(t)
	m, _ := s.InsertMemory(Memory{Type: TypeShortTerm, Category: CategoryNote, Title: "t", Content: "c", Salience: 0.5})

	if err := s.PromoteToLongTerm(m.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetMemory(m.ID)
	if got.Type != TypeLongTerm {
		t.Errorf("expected long_term, got %s", got.Type)
	}
}

func TestDeleteMemoryCascadesLinks(t *testing.T) {
	s := testStore(t)
	a, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "a", Content: "a", Salience: 0.5})
	b, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "b", Content: "b", Salience: 0.5})
	s.CreateLink(a.ID, b.ID, RelRelated, 0.8)

	if err := s.DeleteMemory(a.ID); err != nil {
		t.Fatal(err)
	}
	links, err := s.LinksTo(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Errorf("expected cascade delete of links, got %d remaining", len(links))
	}
}

func TestCreateLinkRejectsSelfLink(t *testing.T) {
	s := testStore(t)
	m, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "a", Content: "a", Salience: 0.5})

	created, err := s.CreateLink(m.ID, m.ID, RelRelated, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("expected self-link to be rejected")
	}
}

func TestCreateLinkIgnoresDuplicate(t *testing.T) {
	s := testStore(t)
	a, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "a", Content: "a", Salience: 0.5})
	b, _ := s.InsertMemory(Memory{Category: CategoryNote, Title: "b", Content: "b", Salience: 0.5})

	s.CreateLink(a.ID, b.ID, RelRelated, 0.8)
	s.CreateLink(a.ID, b.ID, RelRelated, 0.9)

	links, _ := s.LinksFrom(a.ID)
	if len(links) != 1 {
		t.Errorf("expected 1 link after duplicate insert, got %d", len(links))
	}
}

func TestCountStats(t *testing.T) {
	s := testStore(t)
	s.InsertMemory(Memory{Type: TypeShortTerm, Category: CategoryNote, Title: "a", Content: "a", Salience: 0.4})
	s.InsertMemory(Memory{Type: TypeLongTerm, Category: CategoryError, Title: "b", Content: "b", Salience: 0.8})

	stats, err := s.CountStats(nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.ShortTerm != 1 || stats.LongTerm != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AverageSalience < 0.59 || stats.AverageSalience > 0.61 {
		t.Errorf("expected average salience ~0.6, got %f", stats.AverageSalience)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := testStore(t)
	sess := Session{ID: "sess-1", StartedAt: time.Now().UTC()}
	if err := s.CreateSession(sess); err != nil {
		t.Fatal(err)
	}
	summary := "wrapped up"
	if err := s.EndSession("sess-1", time.Now().UTC(), &summary); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession("missing", time.Now().UTC(), nil); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := t.TempDir() + "/nested/subdir"
	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
}
