package cortex

import (
	"fmt"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Engine is the memory store's public API surface: the operations behind
// remember/recall/get_context/stats/export/import, wrapping the Store,
// embedder, project resolver, and background worker.
type Engine struct {
	store    *Store
	resolver *ProjectResolver
	worker   *Worker
	cfg      Config
}

// NewEngine opens the store, applies config defaults, and starts the
// background worker.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.ApplyDefaults()

	store, err := NewStore(cfg.DBDir)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    store,
		resolver: NewProjectResolver(),
		cfg:      cfg,
	}
	e.worker = NewWorker(store, cfg.Embedder, cfg)
	e.worker.Start()

	log.Printf("[cortex] engine initialized (db=%s)", cfg.DBDir)
	return e, nil
}

// Close stops the worker and closes the database.
func (e *Engine) Close() error {
	e.worker.Stop()
	return e.store.Close()
}

// Remember stores a new memory: validates and truncates content, derives
// category/salience/type when not supplied, embeds it, persists it, and
// discovers associative links.
func (e *Engine) Remember(in AddInput) (AddResult, error) {
	if in.Title == "" {
		return AddResult{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Content == "" {
		return AddResult{}, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if in.Category != "" && !validCategories[in.Category] {
		return AddResult{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}

	content, truncation := truncateContent(in.Content)

	factors := Analyze(in.Title, content)
	category := in.Category
	if category == "" {
		category = detectCategory(in.Title, content, factors)
	}

	salience := Calculate(factors)
	reason := Explain(factors)
	if in.Importance != "" {
		if override, ok := importanceSalience[in.Importance]; ok {
			salience = override
			reason = fmt.Sprintf("importance override: %s", in.Importance)
		}
	}

	memType := in.Type
	if memType == "" {
		memType = TypeShortTerm
		if salience >= e.cfg.ConsolidationThreshold {
			memType = TypeLongTerm
		}
	}

	project := e.resolver.Resolve(derefOrEmpty(in.Project))

	embedding, err := e.cfg.Embedder.Embed(in.Title + " " + content)
	if err != nil {
		log.Printf("[cortex] embed failed, storing without vector: %v", err)
		embedding = nil
	}

	now := time.Now().UTC()
	m := Memory{
		Type: memType, Category: category, Title: in.Title, Content: content,
		Project: project, Tags: in.Tags, Salience: salience, DecayedScore: salience,
		Metadata: in.Metadata, CreatedAt: now, LastAccessed: now, Embedding: embedding,
	}

	stored, err := e.store.InsertMemory(m)
	if err != nil {
		return AddResult{}, err
	}
	if truncation.WasTruncated {
		log.Printf("[cortex] truncated memory %d: %s -> %s", stored.ID,
			humanize.Bytes(uint64(truncation.OriginalLength)), humanize.Bytes(uint64(truncation.TruncatedLength)))
	}

	linksCreated := 0
	if embedding != nil {
		pool, err := e.store.AllWithEmbeddings(project)
		if err != nil {
			log.Printf("[cortex] link discovery: pool scan error: %v", err)
		} else {
			candidates := DetectRelationships(stored, pool, e.cfg.RelationshipNeighborK, e.cfg.RelationshipMinScore, e.cfg.RefinesSimilarityFloor)
			for _, c := range candidates {
				created, err := e.store.CreateLink(stored.ID, c.TargetID, c.Relationship, c.Strength)
				if err != nil {
					log.Printf("[cortex] link create error: %v", err)
					continue
				}
				if created {
					linksCreated++
				}
			}
		}
	}

	return AddResult{Memory: stored, Reason: reason, LinksCreated: linksCreated, Truncation: truncation}, nil
}

// truncateContent enforces MaxContentBytes
func truncateContent(content string) (string, Truncation) {
	original := len(content)
	if original <= MaxContentBytes {
		return content, Truncation{}
	}
	truncated := content[:MaxContentBytes]
	return truncated, Truncation{WasTruncated: true, OriginalLength: original, TruncatedLength: len(truncated)}
}

// maxRecallLimit and minRecallLimit bound the caller-facing limit ∈ [1,50].
const (
	minRecallLimit = 1
	maxRecallLimit = 50
)

// validateLimit enforces the recall limit contract: an explicit 0 or
// negative value is a VALIDATION error (the MCP layer is responsible for
// filling in the documented default of 10 when the caller omits the field
// entirely); anything above 50 is clamped down rather than rejected.
func validateLimit(limit int) (int, error) {
	if limit < minRecallLimit {
		return 0, fmt.Errorf("%w: limit must be in [%d,%d]", ErrInvalidInput, minRecallLimit, maxRecallLimit)
	}
	if limit > maxRecallLimit {
		return maxRecallLimit, nil
	}
	return limit, nil
}

// Recall runs a search and reinforces every returned memory's access stats
// via Access, the same single-item reinforcement Access(id) performs
// standalone.
func (e *Engine) Recall(opts SearchOptions) ([]SearchResult, error) {
	limit, err := validateLimit(opts.Limit)
	if err != nil {
		return nil, err
	}
	opts.Limit = limit

	now := time.Now().UTC()
	results, err := Search(e.store, e.cfg.Embedder, e.resolver, opts, now, e.cfg)
	if err != nil {
		return nil, err
	}

	for i := range results {
		updated, err := e.store.Access(results[i].Memory.ID, e.cfg.ReinforcementFactor, now)
		if err != nil {
			log.Printf("[cortex] recall: reinforcement error for memory %d: %v", results[i].Memory.ID, err)
			continue
		}
		results[i].Memory = updated
	}
	return results, nil
}

// Access loads a single memory, reinforces its decayed_score, and refreshes
// its access stats — the standalone counterpart to the bulk reinforcement
// Recall applies to every hit.
func (e *Engine) Access(id int64) (Memory, error) {
	return e.store.Access(id, e.cfg.ReinforcementFactor, time.Now().UTC())
}

// GetContext builds and renders the grouped context summary for a project.
func (e *Engine) GetContext(project string, format ContextFormat) (string, error) {
	if format == "" {
		format = FormatSummary
	}
	scope := e.resolver.Resolve(project)
	now := time.Now().UTC()

	summary, err := GenerateContextSummary(e.store, scope, now)
	if err != nil {
		return "", err
	}
	if format == FormatRaw {
		return fmt.Sprintf("%+v", summary), nil
	}
	return FormatContextSummary(summary, format, now), nil
}

// Stats reports aggregate counts, optionally scoped to a project.
func (e *Engine) Stats(project string) (Stats, error) {
	scope := e.resolver.Resolve(project)
	return e.store.CountStats(scope)
}

// Consolidate runs an out-of-band consolidation pass.
func (e *Engine) Consolidate() (ConsolidationResult, error) {
	return Consolidate(e.store, e.cfg, time.Now().UTC())
}

// StartSession opens a new session row and returns its generated id.
func (e *Engine) StartSession(project string) (string, error) {
	id := uuid.NewString()
	scope := e.resolver.Resolve(project)
	sess := Session{ID: id, Project: scope, StartedAt: time.Now().UTC()}
	if err := e.store.CreateSession(sess); err != nil {
		return "", err
	}
	return id, nil
}

// EndSession closes a session, runs a consolidation pass, and returns its
// result as the session's closing summary.
func (e *Engine) EndSession(id string, summary string) (ConsolidationResult, error) {
	now := time.Now().UTC()
	var summaryPtr *string
	if summary != "" {
		summaryPtr = &summary
	}
	if err := e.store.EndSession(id, now, summaryPtr); err != nil {
		return ConsolidationResult{}, err
	}
	return Consolidate(e.store, e.cfg, now)
}

// Export serializes memories (optionally scoped to a project) to JSON.
func (e *Engine) Export(project string) ([]byte, error) {
	scope := e.resolver.Resolve(project)
	bundle, err := Export(e.store, scope)
	if err != nil {
		return nil, err
	}
	return MarshalExport(bundle)
}

// Import rehydrates memories and links from an export document.
func (e *Engine) Import(data []byte) (memoriesImported, linksImported int, err error) {
	return Import(e.store, data)
}

func derefOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
