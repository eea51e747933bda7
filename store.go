package cortex

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection for associative-memory persistence. It
// owns all Memory/Link/Session rows; every other component reaches the
// database only through it.
type Store struct {
	db *sql.DB
}

// dbFileName is the on-disk SQLite file name within the resolved data dir.
const dbFileName = "memories.db"

// NewStore opens (or creates) the SQLite database under dir and runs
// migrations. A single connection avoids write contention and keeps writes
// serialized; because the pool holds only that one connection, reads made
// through this Store are serialized with the writes as well.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cortex: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cortex: open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cortex: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)

	var version int
	s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)

	if version < 1 {
		if _, err := s.db.Exec(`
			PRAGMA foreign_keys = ON;

			CREATE TABLE IF NOT EXISTS memories (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				type          TEXT    NOT NULL DEFAULT 'short_term',
				category      TEXT    NOT NULL DEFAULT 'note',
				title         TEXT    NOT NULL,
				content       TEXT    NOT NULL,
				project       TEXT,
				tags          TEXT    NOT NULL DEFAULT '[]',
				salience      REAL    NOT NULL DEFAULT 0.5,
				decayed_score REAL    NOT NULL DEFAULT 0.5,
				access_count  INTEGER NOT NULL DEFAULT 0,
				metadata      TEXT    NOT NULL DEFAULT '{}',
				created_at    TEXT    NOT NULL DEFAULT (datetime('now')),
				last_accessed TEXT    NOT NULL DEFAULT (datetime('now')),
				embedding     BLOB
			);
			CREATE INDEX IF NOT EXISTS idx_memories_project       ON memories(project);
			CREATE INDEX IF NOT EXISTS idx_memories_type          ON memories(type);
			CREATE INDEX IF NOT EXISTS idx_memories_last_accessed ON memories(last_accessed);

			CREATE TABLE IF NOT EXISTS memory_links (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id    INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
				target_id    INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
				relationship TEXT    NOT NULL DEFAULT 'related',
				strength     REAL    NOT NULL DEFAULT 0.5,
				created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
				UNIQUE(source_id, target_id, relationship)
			);
			CREATE INDEX IF NOT EXISTS idx_links_source ON memory_links(source_id);
			CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);

			CREATE TABLE IF NOT EXISTS sessions (
				id         TEXT PRIMARY KEY,
				project    TEXT,
				started_at TEXT NOT NULL DEFAULT (datetime('now')),
				ended_at   TEXT,
				summary    TEXT
			);
		`); err != nil {
			return err
		}
		s.db.Exec(`INSERT INTO schema_version (version) VALUES (1)`)
	}

	return nil
}

// --- Vector encoding (little-endian f32 blob) ---

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

const timeLayout = "2006-01-02 15:04:05"

const memoryCols = `id, type, category, title, content, project, tags, salience,
	decayed_score, access_count, metadata, created_at, last_accessed, embedding`

// rowToMemory is the single place a generic SQL row becomes a typed Memory,
//
func rowToMemory(row interface {
	Scan(dest ...any) error
}) (Memory, error) {
	var m Memory
	var project sql.NullString
	var tagsJSON, metaJSON string
	var createdStr, lastAccessedStr string
	var embBlob []byte

	if err := row.Scan(
		&m.ID, &m.Type, &m.Category, &m.Title, &m.Content, &project, &tagsJSON,
		&m.Salience, &m.DecayedScore, &m.AccessCount, &metaJSON,
		&createdStr, &lastAccessedStr, &embBlob,
	); err != nil {
		return Memory{}, err
	}

	if project.Valid {
		p := project.String
		m.Project = &p
	}
	json.Unmarshal([]byte(tagsJSON), &m.Tags)
	json.Unmarshal([]byte(metaJSON), &m.Metadata)
	m.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	m.LastAccessed, _ = time.Parse(timeLayout, lastAccessedStr)
	m.Embedding = decodeVector(embBlob)

	return m, nil
}

// --- Memory CRUD ---

// InsertMemory persists a new memory and returns it with its assigned ID.
func (s *Store) InsertMemory(m Memory) (Memory, error) {
	tagsJSON, _ := json.Marshal(m.Tags)
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}
	metaJSON, _ := json.Marshal(m.Metadata)

	var project any
	if m.Project != nil {
		project = *m.Project
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastAccessed.IsZero() {
		m.LastAccessed = m.CreatedAt
	}

	var embBlob any
	if m.Embedding != nil {
		embBlob = encodeVector(m.Embedding)
	}

	var res sql.Result
	err := execWithRetry(func() error {
		var e error
		res, e = s.db.Exec(`
			INSERT INTO memories (type, category, title, content, project, tags,
				salience, decayed_score, access_count, metadata, created_at, last_accessed, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(m.Type), string(m.Category), m.Title, m.Content, project, string(tagsJSON),
			m.Salience, m.DecayedScore, m.AccessCount, string(metaJSON),
			m.CreatedAt.Format(timeLayout), m.LastAccessed.Format(timeLayout), embBlob,
		)
		return classifyStorageErr(e)
	})
	if err != nil {
		return Memory{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Memory{}, classifyStorageErr(err)
	}
	m.ID = id
	return m, nil
}

// GetMemory loads a single memory by id.
func (s *Store) GetMemory(id int64) (Memory, error) {
	row := s.db.QueryRow(`SELECT `+memoryCols+` FROM memories WHERE id = ?`, id)
	m, err := rowToMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, ErrNotFound
	}
	if err != nil {
		return Memory{}, classifyStorageErr(err)
	}
	return m, nil
}

// TouchAccess refreshes last_accessed, increments access_count, and writes a
// new decayed_score (already reinforced by the caller).
func (s *Store) TouchAccess(id int64, newDecayedScore float64, now time.Time) error {
	return execWithRetry(func() error {
		_, err := s.db.Exec(`
			UPDATE memories
			SET decayed_score = ?, last_accessed = ?, access_count = access_count + 1
			WHERE id = ?`,
			newDecayedScore, now.Format(timeLayout), id,
		)
		return classifyStorageErr(err)
	})
}

// Access loads a memory, reinforces its decayed_score by reinforcementFactor
// (clamped to 1.0), bumps access_count, refreshes last_accessed, persists the
// result, and returns the updated memory. The factor is applied to the stored
// decayed_score as it is; time elapsed since the last access is not decayed
// out first. Engine.Access calls it for one memory and Engine.Recall calls it
// once for every recall hit.
func (s *Store) Access(id int64, reinforcementFactor float64, now time.Time) (Memory, error) {
	m, err := s.GetMemory(id)
	if err != nil {
		return Memory{}, err
	}
	reinforced := Reinforce(m.DecayedScore, reinforcementFactor)
	if err := s.TouchAccess(id, reinforced, now); err != nil {
		return Memory{}, err
	}
	m.DecayedScore = reinforced
	m.LastAccessed = now
	m.AccessCount++
	return m, nil
}

// UpdateSalience overwrites a memory's salience (hub bonus / contradiction
// penalty), clamped by the caller before the call.
func (s *Store) UpdateSalience(id int64, salience float64) error {
	return execWithRetry(func() error {
		_, err := s.db.Exec(`UPDATE memories SET salience = ? WHERE id = ?`, salience, id)
		return classifyStorageErr(err)
	})
}

// UpdateDecayedScore overwrites a memory's decayed_score. Consolidate does
// its own refresh inside its transaction and does not call this.
func (s *Store) UpdateDecayedScore(id int64, decayedScore float64) error {
	return execWithRetry(func() error {
		_, err := s.db.Exec(`UPDATE memories SET decayed_score = ? WHERE id = ?`, decayedScore, id)
		return classifyStorageErr(err)
	})
}

// PromoteToLongTerm flips a memory's type from short_term to long_term.
func (s *Store) PromoteToLongTerm(id int64) error {
	return execWithRetry(func() error {
		_, err := s.db.Exec(`UPDATE memories SET type = ? WHERE id = ?`, string(TypeLongTerm), id)
		return classifyStorageErr(err)
	})
}

// DeleteMemory removes a memory; ON DELETE CASCADE drops its links too.
func (s *Store) DeleteMemory(id int64) error {
	var n int64
	err := execWithRetry(func() error {
		res, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return classifyStorageErr(err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MemoryFilter scopes ListMemories.
type MemoryFilter struct {
	Category    Category
	Type        MemoryType
	Project     *string // nil => no project filter ("*"); non-nil => scoped
	Tags        []string
	MinDecayed  *float64
	OrderBy     string // "created_at DESC" | "salience DESC, decayed_score DESC" | "last_accessed DESC"
	Limit       int
}

// ListMemories returns memories matching filter, ordered per filter.OrderBy.
func (s *Store) ListMemories(f MemoryFilter) ([]Memory, error) {
	query := `SELECT ` + memoryCols + ` FROM memories WHERE 1=1`
	var args []any

	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Project != nil {
		query += ` AND (project = ? OR project IS NULL)`
		args = append(args, *f.Project)
	}
	if f.MinDecayed != nil {
		query += ` AND decayed_score >= ?`
		args = append(args, *f.MinDecayed)
	}
	for _, tag := range f.Tags {
		query += ` AND tags LIKE ?`
		args = append(args, "%"+tag+"%")
	}

	orderBy := f.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	query += ` ORDER BY ` + orderBy
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := rowToMemory(rows)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		out = append(out, m)
	}
	return out, classifyStorageErr(rows.Err())
}

// AllWithEmbeddings returns every memory that has a stored embedding,
// optionally scoped to a project, for graph/search candidate scans.
func (s *Store) AllWithEmbeddings(project *string) ([]Memory, error) {
	query := `SELECT ` + memoryCols + ` FROM memories WHERE embedding IS NOT NULL`
	var args []any
	if project != nil {
		query += ` AND (project = ? OR project IS NULL)`
		args = append(args, *project)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := rowToMemory(rows)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		out = append(out, m)
	}
	return out, classifyStorageErr(rows.Err())
}

// All returns every memory, optionally scoped to a project. Used by the
// consolidator, which must inspect rows without an embedding too.
func (s *Store) All(project *string) ([]Memory, error) {
	return s.ListMemories(MemoryFilter{Project: project, OrderBy: "id ASC"})
}

// UnlinkedBySalience returns up to limit memories with no outgoing link,
// ordered by salience DESC, last_accessed DESC — the medium tick's
// relationship-discovery candidate pool.
func (s *Store) UnlinkedBySalience(limit int) ([]Memory, error) {
	rows, err := s.db.Query(`
		SELECT `+memoryCols+` FROM memories m
		WHERE NOT EXISTS (SELECT 1 FROM memory_links l WHERE l.source_id = m.id)
		ORDER BY salience DESC, last_accessed DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := rowToMemory(rows)
		if err != nil {
			return nil, classifyStorageErr(err)
		}
		out = append(out, m)
	}
	return out, classifyStorageErr(rows.Err())
}

// --- Links ---

// CreateLink inserts a link, rejecting self-links and ignoring uniqueness
// violations via INSERT OR IGNORE: link identity is the
// (source,target,relationship) triple, so a repeat detection is a no-op
// rather than a weight bump. It reports whether a new row was inserted.
func (s *Store) CreateLink(sourceID, targetID int64, rel Relationship, strength float64) (bool, error) {
	if sourceID == targetID {
		return false, nil
	}
	var n int64
	err := execWithRetry(func() error {
		res, err := s.db.Exec(`
			INSERT OR IGNORE INTO memory_links (source_id, target_id, relationship, strength, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			sourceID, targetID, string(rel), strength, time.Now().UTC().Format(timeLayout),
		)
		if err != nil {
			return classifyStorageErr(err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LinksFrom returns outgoing links for a memory.
func (s *Store) LinksFrom(id int64) ([]Link, error) {
	return s.queryLinks(`SELECT id, source_id, target_id, relationship, strength, created_at FROM memory_links WHERE source_id = ?`, id)
}

// LinksTo returns incoming links for a memory.
func (s *Store) LinksTo(id int64) ([]Link, error) {
	return s.queryLinks(`SELECT id, source_id, target_id, relationship, strength, created_at FROM memory_links WHERE target_id = ?`, id)
}

// LinksOfRelationship returns up to limit links of a given relationship kind,
// used by the contradiction sweep.
func (s *Store) LinksOfRelationship(rel Relationship, limit int) ([]Link, error) {
	rows, err := s.db.Query(`
		SELECT id, source_id, target_id, relationship, strength, created_at
		FROM memory_links WHERE relationship = ? LIMIT ?`, string(rel), limit)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	return scanLinks(rows)
}

// ApplyHubSalience re-applies the hub-salience bonus outside of a full
// consolidation pass: the worker's medium tick calls this directly against
// the database after link discovery, since waiting for the next light-tick
// consolidation would leave scenario 1's hub bonus (spec.md §8) unobserved
// for a full consolidation interval.
func (s *Store) ApplyHubSalience(cfg Config) error {
	return execWithRetry(func() error {
		return applyHubSalience(s.db, cfg)
	})
}

// LinkCount returns the total number of links (incoming + outgoing) touching
// a memory. The hub-salience pass counts links with its own join query
// rather than calling this.
func (s *Store) LinkCount(id int64) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM memory_links WHERE source_id = ? OR target_id = ?`, id, id).Scan(&n)
	return n, classifyStorageErr(err)
}

func (s *Store) queryLinks(query string, id int64) ([]Link, error) {
	rows, err := s.db.Query(query, id)
	if err != nil {
		return nil, classifyStorageErr(err)
	}
	return scanLinks(rows)
}

func scanLinks(rows *sql.Rows) ([]Link, error) {
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var l Link
		var createdStr string
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Relationship, &l.Strength, &createdStr); err != nil {
			return nil, classifyStorageErr(err)
		}
		l.CreatedAt, _ = time.Parse(timeLayout, createdStr)
		out = append(out, l)
	}
	return out, classifyStorageErr(rows.Err())
}

// --- Stats ---

// CountStats aggregates counts for Stats, optionally scoped to a project.
func (s *Store) CountStats(project *string) (Stats, error) {
	memories, err := s.All(project)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{ByCategory: map[Category]int{}}
	var totalSalience float64
	for _, m := range memories {
		st.Total++
		switch m.Type {
		case TypeShortTerm:
			st.ShortTerm++
		case TypeLongTerm:
			st.LongTerm++
		case TypeEpisodic:
			st.Episodic++
		}
		st.ByCategory[m.Category]++
		totalSalience += m.Salience
	}
	if st.Total > 0 {
		st.AverageSalience = totalSalience / float64(st.Total)
	}
	return st, nil
}

// --- Sessions ---

// CreateSession opens a new session row.
func (s *Store) CreateSession(sess Session) error {
	var project, summary any
	if sess.Project != nil {
		project = *sess.Project
	}
	if sess.Summary != nil {
		summary = *sess.Summary
	}
	return execWithRetry(func() error {
		_, err := s.db.Exec(`
			INSERT INTO sessions (id, project, started_at, summary) VALUES (?, ?, ?, ?)`,
			sess.ID, project, sess.StartedAt.Format(timeLayout), summary,
		)
		return classifyStorageErr(err)
	})
}

// EndSession closes a session, recording an end time and optional summary.
func (s *Store) EndSession(id string, endedAt time.Time, summary *string) error {
	var summaryArg any
	if summary != nil {
		summaryArg = *summary
	}
	var n int64
	err := execWithRetry(func() error {
		res, err := s.db.Exec(`
			UPDATE sessions SET ended_at = ?, summary = COALESCE(?, summary) WHERE id = ?`,
			endedAt.Format(timeLayout), summaryArg, id,
		)
		if err != nil {
			return classifyStorageErr(err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Transactions ---

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Consolidation and import both use this so their
// mutations are atomic. Both the open and the commit go through the same
// single-retry-on-busy policy as every other write path.
func (s *Store) WithTx(fn func(tx *sql.Tx) error) error {
	var tx *sql.Tx
	if err := execWithRetry(func() error {
		var err error
		tx, err = s.db.Begin()
		return classifyStorageErr(err)
	}); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return execWithRetry(func() error {
		return classifyStorageErr(tx.Commit())
	})
}

// Close shuts down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// classifyStorageErr maps a low-level driver error into a classified
// sentinel: ErrStorageBusy for a transient busy/locked error, ErrStorageError
// otherwise. It does not retry; execWithRetry does.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "busy") || strings.Contains(msg, "locked") {
		return fmt.Errorf("%w: %v", ErrStorageBusy, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageError, err)
}

// execWithRetry runs fn, retrying once after a short backoff if it returns
// ErrStorageBusy, then escalates a still-busy result to ErrStorageError —
// the single-retry-on-BUSY policy every Store write path funnels through.
func execWithRetry(fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorageBusy) {
		time.Sleep(25 * time.Millisecond)
		err = fn()
		if err != nil && errors.Is(err, ErrStorageBusy) {
			return fmt.Errorf("%w: retried once: %v", ErrStorageError, err)
		}
	}
	return err
}
