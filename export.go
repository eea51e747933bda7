package cortex

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ExportedMemory is the camelCase wire form of a Memory used by export/import
//. Kept distinct from Memory so the on-disk JSON
// contract doesn't shift if the internal struct is reshaped later.
type ExportedMemory struct {
	ID           int64          `json:"id"`
	Type         MemoryType     `json:"type"`
	Category     Category       `json:"category"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	Project      *string        `json:"project,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Salience     float64        `json:"salience"`
	DecayedScore float64        `json:"decayedScore"`
	AccessCount  int            `json:"accessCount"`
	LastAccessed time.Time      `json:"lastAccessed"`
	CreatedAt    time.Time      `json:"createdAt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Embedding    []float32      `json:"embedding,omitempty"`
}

// ExportedLink is the camelCase wire form of a Link, referencing memories by
// their exported id.
type ExportedLink struct {
	SourceID     int64        `json:"sourceId"`
	TargetID     int64        `json:"targetId"`
	Relationship Relationship `json:"relationship"`
	Strength     float64      `json:"strength"`
}

// ExportBundle is the top-level export/import document.
type ExportBundle struct {
	Memories []ExportedMemory `json:"memories"`
	Links    []ExportedLink   `json:"links"`
}

// Export serializes every memory (optionally scoped to a project) and the
// links between them into an ExportBundle.
func Export(store *Store, project *string) (ExportBundle, error) {
	memories, err := store.All(project)
	if err != nil {
		return ExportBundle{}, err
	}

	inSet := make(map[int64]bool, len(memories))
	bundle := ExportBundle{Memories: make([]ExportedMemory, 0, len(memories))}
	for _, m := range memories {
		inSet[m.ID] = true
		bundle.Memories = append(bundle.Memories, ExportedMemory{
			ID: m.ID, Type: m.Type, Category: m.Category, Title: m.Title, Content: m.Content,
			Project: m.Project, Tags: m.Tags, Salience: m.Salience, DecayedScore: m.DecayedScore,
			AccessCount: m.AccessCount, LastAccessed: m.LastAccessed, CreatedAt: m.CreatedAt,
			Metadata: m.Metadata, Embedding: m.Embedding,
		})
	}

	for _, m := range memories {
		links, err := store.LinksFrom(m.ID)
		if err != nil {
			return ExportBundle{}, err
		}
		for _, l := range links {
			if !inSet[l.TargetID] {
				continue // link leaves the exported scope; drop it, don't dangle
			}
			bundle.Links = append(bundle.Links, ExportedLink{
				SourceID: l.SourceID, TargetID: l.TargetID, Relationship: l.Relationship, Strength: l.Strength,
			})
		}
	}
	return bundle, nil
}

// MarshalExport renders a bundle as indented JSON, the wire format Import
// expects back.
func MarshalExport(bundle ExportBundle) ([]byte, error) {
	return json.MarshalIndent(bundle, "", "  ")
}

// Import validates and rehydrates a bundle: ids are
// preserved where they don't collide with an existing row and renumbered
// (by the database's own autoincrement) otherwise; links are recreated
// against the resolved ids. The whole operation runs atomically.
func Import(store *Store, data []byte) (memoriesImported, linksImported int, err error) {
	var bundle ExportBundle
	if jsonErr := json.Unmarshal(data, &bundle); jsonErr != nil {
		return 0, 0, fmt.Errorf("%w: invalid export bundle: %v", ErrInvalidInput, jsonErr)
	}
	if validationErr := validateBundle(bundle); validationErr != nil {
		return 0, 0, validationErr
	}

	err = store.WithTx(func(tx *sql.Tx) error {
		idMap := make(map[int64]int64, len(bundle.Memories))
		for _, em := range bundle.Memories {
			newID, err := insertExportedMemory(tx, em)
			if err != nil {
				return err
			}
			idMap[em.ID] = newID
			memoriesImported++
		}

		for _, el := range bundle.Links {
			srcID, srcOK := idMap[el.SourceID]
			tgtID, tgtOK := idMap[el.TargetID]
			if !srcOK || !tgtOK || srcID == tgtID {
				continue
			}
			if !validRelationships[el.Relationship] {
				continue
			}
			if _, err := tx.Exec(`
				INSERT OR IGNORE INTO memory_links (source_id, target_id, relationship, strength, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				srcID, tgtID, string(el.Relationship), el.Strength, time.Now().UTC().Format(timeLayout),
			); err != nil {
				return classifyStorageErr(err)
			}
			linksImported++
		}
		return nil
	})
	return memoriesImported, linksImported, err
}

// validateBundle rejects malformed export data before any row is touched.
func validateBundle(bundle ExportBundle) error {
	for _, m := range bundle.Memories {
		if m.Title == "" {
			return fmt.Errorf("%w: memory id %d has an empty title", ErrInvalidInput, m.ID)
		}
		if !validCategories[m.Category] {
			return fmt.Errorf("%w: memory id %d has unknown category %q", ErrInvalidInput, m.ID, m.Category)
		}
	}
	return nil
}

func insertExportedMemory(tx *sql.Tx, em ExportedMemory) (int64, error) {
	tagsJSON, _ := json.Marshal(em.Tags)
	meta := em.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, _ := json.Marshal(meta)

	var project any
	if em.Project != nil {
		project = *em.Project
	}
	createdAt := em.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	lastAccessed := em.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = createdAt
	}

	var embBlob any
	if em.Embedding != nil {
		embBlob = encodeVector(em.Embedding)
	}

	// Keep the exported id unless a row already holds it; a NULL id lets
	// the autoincrement assign a fresh one.
	var idArg any
	if em.ID > 0 {
		var taken int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM memories WHERE id = ?`, em.ID).Scan(&taken); err != nil {
			return 0, classifyStorageErr(err)
		}
		if taken == 0 {
			idArg = em.ID
		}
	}

	res, err := tx.Exec(`
		INSERT INTO memories (id, type, category, title, content, project, tags,
			salience, decayed_score, access_count, metadata, created_at, last_accessed, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idArg, string(em.Type), string(em.Category), em.Title, em.Content, project, string(tagsJSON),
		em.Salience, em.DecayedScore, em.AccessCount, string(metaJSON),
		createdAt.Format(timeLayout), lastAccessed.Format(timeLayout), embBlob,
	)
	if err != nil {
		return 0, classifyStorageErr(err)
	}
	return res.LastInsertId()
}
