package databases

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"mirix/internal/persistence"
)

// SnapshotStore is implemented by Store backends that can serialize
// their full contents to/from a single file, the SQLite mode of §6's
// persisted state layout (Coordinator.SavePath/LoadPath).
type SnapshotStore interface {
	SavePath(ctx context.Context, path string) error
	LoadPath(ctx context.Context, path string) error
}

const snapshotCreateTable = `CREATE TABLE IF NOT EXISTS blobs (
	kind TEXT NOT NULL,
	id   TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (kind, id)
)`

// SavePath dumps every entity, message, and cloud mapping into a single
// pure-Go SQLite file (modernc.org/sqlite, no cgo) as one row per
// record, JSON-encoded. Grounded in factory.go's backend-selection
// pattern: this is the snapshot counterpart of the live Postgres/Qdrant
// backends, used for the in-memory default and for tests.
func (s *MapStore) SavePath(ctx context.Context, path string) error {
	_ = os.Remove(path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("mapstore: open snapshot %s: %w", path, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, snapshotCreateTable); err != nil {
		return fmt.Errorf("mapstore: create snapshot schema: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mapstore: begin snapshot tx: %w", err)
	}

	insert := func(kind, id string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("mapstore: marshal %s %s: %w", kind, id, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO blobs(kind, id, data) VALUES (?, ?, ?)`, kind, id, string(data))
		return err
	}

	for id, e := range s.episodic {
		if err := insert("episodic", id, e); err != nil {
			tx.Rollback()
			return err
		}
	}
	for id, it := range s.semantic {
		if err := insert("semantic", id, it); err != nil {
			tx.Rollback()
			return err
		}
	}
	for id, p := range s.procedural {
		if err := insert("procedural", id, p); err != nil {
			tx.Rollback()
			return err
		}
	}
	for id, r := range s.resource {
		if err := insert("resource", id, r); err != nil {
			tx.Rollback()
			return err
		}
	}
	for id, k := range s.knowledgeVault {
		if err := insert("knowledge_vault", id, k); err != nil {
			tx.Rollback()
			return err
		}
	}
	for key, b := range s.core {
		if err := insert("core", key, b); err != nil {
			tx.Rollback()
			return err
		}
	}
	for i, m := range s.messages {
		if err := insert("message", fmt.Sprintf("%d", i), m); err != nil {
			tx.Rollback()
			return err
		}
	}
	for key, m := range s.cloud {
		if err := insert("cloud_mapping", key, m); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mapstore: commit snapshot: %w", err)
	}
	return nil
}

// LoadPath replaces the store's contents with what was written by a
// prior SavePath, including reindexing every embedded field's vector.
func (s *MapStore) LoadPath(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("mapstore: open snapshot %s: %w", path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT kind, id, data FROM blobs`)
	if err != nil {
		return fmt.Errorf("mapstore: query snapshot: %w", err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodic = make(map[string]*persistence.EpisodicEvent)
	s.semantic = make(map[string]*persistence.SemanticItem)
	s.procedural = make(map[string]*persistence.ProceduralItem)
	s.resource = make(map[string]*persistence.ResourceItem)
	s.knowledgeVault = make(map[string]*persistence.KnowledgeVaultItem)
	s.core = make(map[string]*persistence.CoreBlock)
	s.messages = nil
	s.cloud = make(map[string]*persistence.CloudFileMapping)
	s.vectors = NewMemoryVector()

	for rows.Next() {
		var kind, id, data string
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return fmt.Errorf("mapstore: scan snapshot row: %w", err)
		}
		switch kind {
		case "episodic":
			var e persistence.EpisodicEvent
			if err := json.Unmarshal([]byte(data), &e); err != nil {
				return err
			}
			s.episodic[id] = &e
			s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "summary", e.SummaryEmbedding, e.OrganizationID)
			s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "details", e.DetailsEmbedding, e.OrganizationID)
		case "semantic":
			var it persistence.SemanticItem
			if err := json.Unmarshal([]byte(data), &it); err != nil {
				return err
			}
			s.semantic[id] = &it
			s.indexEmbedding(it.ID, string(persistence.KindSemantic), "concept", it.ConceptEmbedding, it.OrganizationID)
			s.indexEmbedding(it.ID, string(persistence.KindSemantic), "definition", it.DefinitionEmbedding, it.OrganizationID)
		case "procedural":
			var p persistence.ProceduralItem
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return err
			}
			s.procedural[id] = &p
			s.indexEmbedding(p.ID, string(persistence.KindProcedural), "description", p.DescriptionEmbedding, p.OrganizationID)
		case "resource":
			var r persistence.ResourceItem
			if err := json.Unmarshal([]byte(data), &r); err != nil {
				return err
			}
			s.resource[id] = &r
			s.indexEmbedding(r.ID, string(persistence.KindResource), "summary", r.SummaryEmbedding, r.OrganizationID)
		case "knowledge_vault":
			var k persistence.KnowledgeVaultItem
			if err := json.Unmarshal([]byte(data), &k); err != nil {
				return err
			}
			s.knowledgeVault[id] = &k
			s.indexEmbedding(k.ID, string(persistence.KindKnowledgeVault), "description", k.DescriptionEmbedding, k.OrganizationID)
		case "core":
			var b persistence.CoreBlock
			if err := json.Unmarshal([]byte(data), &b); err != nil {
				return err
			}
			s.core[id] = &b
		case "message":
			var m persistence.Message
			if err := json.Unmarshal([]byte(data), &m); err != nil {
				return err
			}
			s.messages = append(s.messages, m)
		case "cloud_mapping":
			var m persistence.CloudFileMapping
			if err := json.Unmarshal([]byte(data), &m); err != nil {
				return err
			}
			s.cloud[id] = &m
		}
	}
	return rows.Err()
}

var _ SnapshotStore = (*MapStore)(nil)
