package cortex

import (
	"context"
	"log"
	"sync"
	"time"
)

// consolidationUrgency classifies how urgently a light tick should trigger
// a full consolidation pass, per the predictive-consolidation policy.
type consolidationUrgency int

const (
	urgencyNone consolidationUrgency = iota
	urgencyMedium
	urgencyHigh
	urgencyCritical
)

// predictConsolidationUrgency applies the fullness thresholds:
// short-term fullness above 0.85 is critical, total fullness above 0.80 is
// high, short-term fullness above 0.70 together with recent write activity
// is medium.
func predictConsolidationUrgency(stmFullness, totalFullness float64, recentActivity bool) consolidationUrgency {
	switch {
	case stmFullness > 0.85:
		return urgencyCritical
	case totalFullness > 0.80:
		return urgencyHigh
	case stmFullness > 0.70 && recentActivity:
		return urgencyMedium
	default:
		return urgencyNone
	}
}

// Worker runs the background maintenance loop: a light tick that watches
// capacity pressure and triggers consolidation, and a medium tick that
// discovers associative links and contradictions.
type Worker struct {
	store    *Store
	embedder EmbeddingProvider
	cfg      Config

	writeMu sync.Mutex // serializes light/medium ticks against each other

	cancel context.CancelFunc
	done   chan struct{}

	lastWriteCount int
}

// NewWorker constructs a Worker; call Start to begin ticking.
func NewWorker(store *Store, embedder EmbeddingProvider, cfg Config) *Worker {
	return &Worker{store: store, embedder: embedder, cfg: cfg, done: make(chan struct{})}
}

// Start launches the light and medium tick goroutines. Stop cancels both.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go w.runLightTicks(ctx)
	go w.runMediumTicks(ctx)
}

// Stop cancels both tick loops. It returns without waiting for them to
// exit, so a tick already in progress may still be running.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) runLightTicks(ctx context.Context) {
	timer := time.NewTimer(w.cfg.LightTickDelay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			w.lightTick()
			timer.Reset(w.cfg.LightTickInterval)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runMediumTicks(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.MediumTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mediumTick()
		case <-ctx.Done():
			return
		}
	}
}

// lightTick checks capacity pressure and runs consolidation if warranted.
// Tick failures are logged, never propagated — one bad tick must not take
// down the loop.
func (w *Worker) lightTick() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	stats, err := w.store.CountStats(nil)
	if err != nil {
		log.Printf("[cortex] light tick: stats error: %v", err)
		return
	}

	stmFullness := 0.0
	if w.cfg.MaxShortTermMemories > 0 {
		stmFullness = float64(stats.ShortTerm) / float64(w.cfg.MaxShortTermMemories)
	}
	totalCap := w.cfg.MaxShortTermMemories + w.cfg.MaxLongTermMemories
	totalFullness := 0.0
	if totalCap > 0 {
		totalFullness = float64(stats.Total) / float64(totalCap)
	}
	recentActivity := stats.Total != w.lastWriteCount
	w.lastWriteCount = stats.Total

	urgency := predictConsolidationUrgency(stmFullness, totalFullness, recentActivity)
	if urgency == urgencyNone {
		return
	}

	result, err := Consolidate(w.store, w.cfg, time.Now().UTC())
	if err != nil {
		log.Printf("[cortex] light tick: consolidation error: %v", err)
		return
	}
	log.Printf("[cortex] consolidation (urgency=%d): %d promoted, %d decayed, %d deleted",
		urgency, result.Consolidated, result.Decayed, result.Deleted)
}

// mediumTick discovers associative links among unlinked memories, scans
// up to ContradictionScanLimit contradicts links for penalty application, and re-applies the
// hub-salience bonus — all three run every cycle regardless of whether this
// tick discovers any new links, since existing hubs still need their bonus
// (spec.md §4.6/§8 scenario 1).
func (w *Worker) mediumTick() {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if err := w.discoverLinks(); err != nil {
		log.Printf("[cortex] medium tick: link discovery error: %v", err)
	}

	w.scanContradictions()

	if err := w.store.ApplyHubSalience(w.cfg); err != nil {
		log.Printf("[cortex] medium tick: hub salience error: %v", err)
	}
}

// discoverLinks runs relationship detection over up to MaxLinksPerCycle
// unlinked memories and creates any resulting links.
func (w *Worker) discoverLinks() error {
	candidates, err := w.store.UnlinkedBySalience(w.cfg.MaxLinksPerCycle)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	pool, err := w.store.AllWithEmbeddings(nil)
	if err != nil {
		return err
	}

	for _, m := range candidates {
		if m.Embedding == nil {
			continue
		}
		links := DetectRelationships(m, pool, 3, w.cfg.RelationshipMinScore, w.cfg.RefinesSimilarityFloor)
		for _, l := range links {
			if _, err := w.store.CreateLink(m.ID, l.TargetID, l.Relationship, l.Strength); err != nil {
				log.Printf("[cortex] medium tick: link create error: %v", err)
				continue
			}
		}
	}
	return nil
}

// scanContradictions re-checks up to ContradictionScanLimit contradicts links
// (in no particular order) and applies the salience penalty to memories that
// still sit above the floor.
func (w *Worker) scanContradictions() {
	links, err := w.store.LinksOfRelationship(RelContradicts, w.cfg.ContradictionScanLimit)
	if err != nil {
		log.Printf("[cortex] medium tick: contradiction scan error: %v", err)
		return
	}
	for _, l := range links {
		if l.Strength < w.cfg.ContradictionMinScore {
			continue
		}
		if err := ApplyContradictionPenalty(w.store, w.cfg, l.SourceID); err != nil {
			log.Printf("[cortex] medium tick: penalty error: %v", err)
		}
		if err := ApplyContradictionPenalty(w.store, w.cfg, l.TargetID); err != nil {
			log.Printf("[cortex] medium tick: penalty error: %v", err)
		}
	}
}
