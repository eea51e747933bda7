package cortex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPredictConsolidationUrgency(t *testing.T) {
	cases := []struct {
		name           string
		stm, total     float64
		recentActivity bool
		want           consolidationUrgency
	}{
		{"idle", 0.1, 0.1, false, urgencyNone},
		{"medium needs activity", 0.75, 0.1, false, urgencyNone},
		{"medium", 0.75, 0.1, true, urgencyMedium},
		{"high overrides medium threshold", 0.5, 0.85, true, urgencyHigh},
		{"critical overrides all", 0.9, 0.9, true, urgencyCritical},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := predictConsolidationUrgency(c.stm, c.total, c.recentActivity)
			require.Equal(t, c.want, got)
		})
	}
}

func TestWorkerLightTickConsolidatesUnderPressure(t *testing.T) {
	s := testStore(t)
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.MaxShortTermMemories = 2

	for i := 0; i < 2; i++ {
		_, err := s.InsertMemory(Memory{
			Type: TypeShortTerm, Category: CategoryArchitecture, Title: "t", Content: "c",
			Salience: 0.9, DecayedScore: 0.9, LastAccessed: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	w := NewWorker(s, cfg.Embedder, cfg)
	w.lightTick()

	rows, err := s.ListMemories(MemoryFilter{Type: TypeLongTerm})
	require.NoError(t, err)
	require.NotEmpty(t, rows, "expected light tick to trigger consolidation and promote memories")
}

func TestWorkerMediumTickLinksUnlinkedMemories(t *testing.T) {
	s := testStore(t)
	cfg := Config{}
	cfg.ApplyDefaults()

	vec := []float32{1, 0, 0, 0}
	a, err := s.InsertMemory(Memory{Category: CategoryPattern, Title: "a", Content: "pattern a", Salience: 0.9, DecayedScore: 0.9, Embedding: vec, LastAccessed: time.Now().UTC()})
	require.NoError(t, err)
	_, err = s.InsertMemory(Memory{Category: CategoryPattern, Title: "b", Content: "pattern b", Salience: 0.8, DecayedScore: 0.8, Embedding: vec, LastAccessed: time.Now().UTC()})
	require.NoError(t, err)

	w := NewWorker(s, cfg.Embedder, cfg)
	w.mediumTick()

	links, err := s.LinksFrom(a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, links, "expected medium tick to discover a relationship")
}

func TestWorkerStartStop(t *testing.T) {
	s := testStore(t)
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.LightTickDelay = time.Hour
	cfg.MediumTickInterval = time.Hour

	w := NewWorker(s, cfg.Embedder, cfg)
	w.Start()
	w.Stop()
}
