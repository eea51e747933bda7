package cortex

import (
	"database/sql"
	"time"
)

// Consolidate runs one full consolidation pass: refreshes
// every memory's decayed_score, promotes short-term memories that cleared
// ConsolidationThreshold, deletes memories below their category's deletion
// floor, enforces the short/long-term caps, and reapplies the hub-salience
// bonus. The whole pass runs inside a single transaction so a crash mid-pass
// never leaves the store half-consolidated.
func Consolidate(store *Store, cfg Config, now time.Time) (ConsolidationResult, error) {
	var result ConsolidationResult

	err := store.WithTx(func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT ` + memoryCols + ` FROM memories`)
		if err != nil {
			return classifyStorageErr(err)
		}
		var memories []Memory
		for rows.Next() {
			m, err := rowToMemory(rows)
			if err != nil {
				rows.Close()
				return classifyStorageErr(err)
			}
			memories = append(memories, m)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return classifyStorageErr(err)
		}

		deleted := make(map[int64]bool)
		for _, m := range memories {
			decayed := Decayed(m.Salience, m.LastAccessed, now, m.AccessCount, cfg.DecayRatePerHour)

			floor := DeletionThresholds[m.Category]
			if decayed < floor {
				if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, m.ID); err != nil {
					return classifyStorageErr(err)
				}
				deleted[m.ID] = true
				result.Deleted++
				continue
			}

			if _, err := tx.Exec(`UPDATE memories SET decayed_score = ? WHERE id = ?`, decayed, m.ID); err != nil {
				return classifyStorageErr(err)
			}

			if m.Type == TypeShortTerm && decayed >= cfg.ConsolidationThreshold {
				if _, err := tx.Exec(`UPDATE memories SET type = ? WHERE id = ?`, string(TypeLongTerm), m.ID); err != nil {
					return classifyStorageErr(err)
				}
				m.Type = TypeLongTerm
				result.Consolidated++
			} else if decayed < cfg.SalienceThreshold {
				result.Decayed++
			}
		}

		if err := enforceCaps(tx, cfg, deleted, &result); err != nil {
			return err
		}
		return applyHubSalience(tx, cfg)
	})

	return result, err
}

// enforceCaps prunes the lowest-scoring memories of each type beyond its
// configured cap, skipping rows already deleted above.
func enforceCaps(tx *sql.Tx, cfg Config, deleted map[int64]bool, result *ConsolidationResult) error {
	if err := pruneOverCap(tx, TypeShortTerm, cfg.MaxShortTermMemories, deleted, result); err != nil {
		return err
	}
	return pruneOverCap(tx, TypeLongTerm, cfg.MaxLongTermMemories, deleted, result)
}

func pruneOverCap(tx *sql.Tx, t MemoryType, cap int, deleted map[int64]bool, result *ConsolidationResult) error {
	rows, err := tx.Query(`
		SELECT id FROM memories WHERE type = ? ORDER BY decayed_score ASC, last_accessed ASC`, string(t))
	if err != nil {
		return classifyStorageErr(err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return classifyStorageErr(err)
		}
		if !deleted[id] {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classifyStorageErr(err)
	}

	over := len(ids) - cap
	for i := 0; i < over; i++ {
		if _, err := tx.Exec(`DELETE FROM memories WHERE id = ?`, ids[i]); err != nil {
			return classifyStorageErr(err)
		}
		deleted[ids[i]] = true
		result.Deleted++
	}
	return nil
}

// sqlExecutor is the subset of *sql.DB and *sql.Tx that applyHubSalience
// needs, so the same hub-bonus pass runs both inside the consolidation
// transaction and directly against the database from the worker's medium
// tick (see Store.ApplyHubSalience).
type sqlExecutor interface {
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// applyHubSalience adds the hub bonus to every memory whose link
// count clears HubLinkCountFloor.
func applyHubSalience(ex sqlExecutor, cfg Config) error {
	rows, err := ex.Query(`
		SELECT m.id, m.salience, COUNT(l.id)
		FROM memories m LEFT JOIN memory_links l ON l.source_id = m.id OR l.target_id = m.id
		GROUP BY m.id`)
	if err != nil {
		return classifyStorageErr(err)
	}
	type hubRow struct {
		id        int64
		salience  float64
		linkCount int
	}
	var hubs []hubRow
	for rows.Next() {
		var h hubRow
		if err := rows.Scan(&h.id, &h.salience, &h.linkCount); err != nil {
			rows.Close()
			return classifyStorageErr(err)
		}
		hubs = append(hubs, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return classifyStorageErr(err)
	}

	for _, h := range hubs {
		bonus := HubBonus(h.linkCount, cfg.HubLinkCountFloor, cfg.HubBonusCap, cfg.HubBonusCoefficient)
		if bonus <= 0 {
			continue
		}
		newSalience := clamp01(h.salience + bonus)
		if _, err := ex.Exec(`UPDATE memories SET salience = ? WHERE id = ?`, newSalience, h.id); err != nil {
			return classifyStorageErr(err)
		}
	}
	return nil
}

// ApplyContradictionPenalty lowers a memory's salience by cfg.ContradictionPenalty
// when it sits above ContradictionSalienceFloor. Called from
// the worker's medium tick, outside the consolidation transaction, since it
// fires per-link as contradictions are discovered rather than as a full-table
// pass.
func ApplyContradictionPenalty(store *Store, cfg Config, id int64) error {
	m, err := store.GetMemory(id)
	if err != nil {
		return err
	}
	if m.Salience <= cfg.ContradictionSalienceFloor {
		return nil
	}
	return store.UpdateSalience(id, clamp01(m.Salience-cfg.ContradictionPenalty))
}
