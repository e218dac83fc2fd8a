package databases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mirix/internal/mirixerr"
	"mirix/internal/persistence"
)

// PostgresStore is the Postgres-backed persistence.Store, grounded in
// chat_store_postgres.go's CREATE TABLE IF NOT EXISTS bootstrap and
// pgxpool usage. Each entity kind gets one JSONB-bodied table; vector
// search is delegated to a VectorStore (pgvector or Qdrant) so the SQL
// layer never duplicates distance-operator logic.
type PostgresStore struct {
	pool    *pgxpool.Pool
	vectors VectorStore
}

// NewPostgresStore bootstraps the entity tables and returns a Store
// backed by pool, indexing embeddings into vectors.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, vectors VectorStore) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, vectors: vectors}
	if err := s.init(ctx); err != nil {
		return nil, fmt.Errorf("postgres store init: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS episodic_events (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS semantic_items (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS procedural_items (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS resource_items (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS knowledge_vault_items (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS core_blocks (
    agent_id TEXT NOT NULL,
    label TEXT NOT NULL,
    id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL,
    PRIMARY KEY (agent_id, label)
);
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    body JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_agent_created_idx ON messages (agent_id, created_at);
CREATE TABLE IF NOT EXISTS cloud_file_mappings (
    local_file_id TEXT PRIMARY KEY,
    cloud_file_id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    status TEXT NOT NULL,
    body JSONB NOT NULL
);
`)
	return err
}

func (s *PostgresStore) InsertEpisodic(ctx context.Context, e *persistence.EpisodicEvent) error {
	body, _ := json.Marshal(e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO episodic_events (id, organization_id, created_at, updated_at, body) VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.OrganizationID, e.CreatedAt, e.UpdatedAt, body)
	if err != nil {
		return err
	}
	s.indexEmbedding(ctx, e.ID, string(persistence.KindEpisodic), "summary", e.SummaryEmbedding, e.OrganizationID)
	s.indexEmbedding(ctx, e.ID, string(persistence.KindEpisodic), "details", e.DetailsEmbedding, e.OrganizationID)
	return nil
}

func (s *PostgresStore) GetEpisodic(ctx context.Context, id string) (*persistence.EpisodicEvent, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM episodic_events WHERE id=$1`, id).Scan(&body)
	if err != nil {
		return nil, mirixerr.NewNotFound("episodic_event", id)
	}
	var e persistence.EpisodicEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) UpdateEpisodic(ctx context.Context, id string, patch map[string]any) (*persistence.EpisodicEvent, error) {
	e, err := s.GetEpisodic(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["summary"].(string); ok {
		e.Summary = v
	}
	if v, ok := patch["details"].(string); ok {
		e.Details = v
	}
	if v, ok := patch["event_type"].(string); ok {
		e.EventType = v
	}
	if v, ok := patch["summary_embedding"].([]float32); ok {
		e.SummaryEmbedding = v
		s.indexEmbedding(ctx, e.ID, string(persistence.KindEpisodic), "summary", v, e.OrganizationID)
	}
	if v, ok := patch["details_embedding"].([]float32); ok {
		e.DetailsEmbedding = v
		s.indexEmbedding(ctx, e.ID, string(persistence.KindEpisodic), "details", v, e.OrganizationID)
	}
	e.UpdatedAt = time.Now().UTC()
	body, _ := json.Marshal(e)
	_, err = s.pool.Exec(ctx, `UPDATE episodic_events SET body=$2, updated_at=$3 WHERE id=$1`, id, body, e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) DeleteEpisodic(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM episodic_events WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("episodic_event", id)
	}
	_ = s.vectors.Delete(ctx, id+"\x00summary")
	_ = s.vectors.Delete(ctx, id+"\x00details")
	return nil
}

func (s *PostgresStore) InsertSemantic(ctx context.Context, it *persistence.SemanticItem) error {
	body, _ := json.Marshal(it)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO semantic_items (id, organization_id, created_at, updated_at, body) VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.OrganizationID, it.CreatedAt, it.UpdatedAt, body)
	if err != nil {
		return err
	}
	s.indexEmbedding(ctx, it.ID, string(persistence.KindSemantic), "concept", it.ConceptEmbedding, it.OrganizationID)
	s.indexEmbedding(ctx, it.ID, string(persistence.KindSemantic), "definition", it.DefinitionEmbedding, it.OrganizationID)
	return nil
}

func (s *PostgresStore) GetSemantic(ctx context.Context, id string) (*persistence.SemanticItem, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, `SELECT body FROM semantic_items WHERE id=$1`, id).Scan(&body); err != nil {
		return nil, mirixerr.NewNotFound("semantic_item", id)
	}
	var it persistence.SemanticItem
	if err := json.Unmarshal(body, &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *PostgresStore) UpdateSemantic(ctx context.Context, id string, patch map[string]any) (*persistence.SemanticItem, error) {
	it, err := s.GetSemantic(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["concept"].(string); ok {
		it.Concept = v
	}
	if v, ok := patch["definition"].(string); ok {
		it.Definition = v
	}
	if v, ok := patch["details"].(string); ok {
		it.Details = v
	}
	if v, ok := patch["source"].(string); ok {
		it.Source = v
	}
	it.UpdatedAt = time.Now().UTC()
	body, _ := json.Marshal(it)
	_, err = s.pool.Exec(ctx, `UPDATE semantic_items SET body=$2, updated_at=$3 WHERE id=$1`, id, body, it.UpdatedAt)
	return it, err
}

func (s *PostgresStore) DeleteSemantic(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM semantic_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("semantic_item", id)
	}
	_ = s.vectors.Delete(ctx, id+"\x00concept")
	_ = s.vectors.Delete(ctx, id+"\x00definition")
	return nil
}

func (s *PostgresStore) InsertProcedural(ctx context.Context, p *persistence.ProceduralItem) error {
	body, _ := json.Marshal(p)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO procedural_items (id, organization_id, created_at, updated_at, body) VALUES ($1,$2,$3,$4,$5)`,
		p.ID, p.OrganizationID, p.CreatedAt, p.UpdatedAt, body)
	if err != nil {
		return err
	}
	s.indexEmbedding(ctx, p.ID, string(persistence.KindProcedural), "description", p.DescriptionEmbedding, p.OrganizationID)
	return nil
}

func (s *PostgresStore) GetProcedural(ctx context.Context, id string) (*persistence.ProceduralItem, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, `SELECT body FROM procedural_items WHERE id=$1`, id).Scan(&body); err != nil {
		return nil, mirixerr.NewNotFound("procedural_item", id)
	}
	var p persistence.ProceduralItem
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) UpdateProcedural(ctx context.Context, id string, patch map[string]any) (*persistence.ProceduralItem, error) {
	p, err := s.GetProcedural(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["entry_type"].(string); ok {
		p.EntryType = v
	}
	if v, ok := patch["description"].(string); ok {
		p.Description = v
	}
	if v, ok := patch["steps"].(string); ok {
		p.Steps = v
	}
	p.UpdatedAt = time.Now().UTC()
	body, _ := json.Marshal(p)
	_, err = s.pool.Exec(ctx, `UPDATE procedural_items SET body=$2, updated_at=$3 WHERE id=$1`, id, body, p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) DeleteProcedural(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM procedural_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("procedural_item", id)
	}
	_ = s.vectors.Delete(ctx, id+"\x00description")
	return nil
}

func (s *PostgresStore) InsertResource(ctx context.Context, r *persistence.ResourceItem) error {
	body, _ := json.Marshal(r)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resource_items (id, organization_id, created_at, updated_at, body) VALUES ($1,$2,$3,$4,$5)`,
		r.ID, r.OrganizationID, r.CreatedAt, r.UpdatedAt, body)
	if err != nil {
		return err
	}
	s.indexEmbedding(ctx, r.ID, string(persistence.KindResource), "summary", r.SummaryEmbedding, r.OrganizationID)
	return nil
}

func (s *PostgresStore) GetResource(ctx context.Context, id string) (*persistence.ResourceItem, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, `SELECT body FROM resource_items WHERE id=$1`, id).Scan(&body); err != nil {
		return nil, mirixerr.NewNotFound("resource_item", id)
	}
	var r persistence.ResourceItem
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) UpdateResource(ctx context.Context, id string, patch map[string]any) (*persistence.ResourceItem, error) {
	r, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["title"].(string); ok {
		r.Title = v
	}
	if v, ok := patch["summary"].(string); ok {
		r.Summary = v
	}
	if v, ok := patch["content"].(string); ok {
		r.Content = v
	}
	if v, ok := patch["resource_type"].(string); ok {
		r.ResourceType = v
	}
	r.UpdatedAt = time.Now().UTC()
	body, _ := json.Marshal(r)
	_, err = s.pool.Exec(ctx, `UPDATE resource_items SET body=$2, updated_at=$3 WHERE id=$1`, id, body, r.UpdatedAt)
	return r, err
}

func (s *PostgresStore) DeleteResource(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM resource_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("resource_item", id)
	}
	_ = s.vectors.Delete(ctx, id+"\x00summary")
	return nil
}

func (s *PostgresStore) InsertKnowledgeVault(ctx context.Context, k *persistence.KnowledgeVaultItem) error {
	body, _ := json.Marshal(k)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_vault_items (id, organization_id, created_at, updated_at, body) VALUES ($1,$2,$3,$4,$5)`,
		k.ID, k.OrganizationID, k.CreatedAt, k.UpdatedAt, body)
	if err != nil {
		return err
	}
	s.indexEmbedding(ctx, k.ID, string(persistence.KindKnowledgeVault), "description", k.DescriptionEmbedding, k.OrganizationID)
	return nil
}

func (s *PostgresStore) GetKnowledgeVault(ctx context.Context, id string) (*persistence.KnowledgeVaultItem, error) {
	var body []byte
	if err := s.pool.QueryRow(ctx, `SELECT body FROM knowledge_vault_items WHERE id=$1`, id).Scan(&body); err != nil {
		return nil, mirixerr.NewNotFound("knowledge_vault_item", id)
	}
	var k persistence.KnowledgeVaultItem
	if err := json.Unmarshal(body, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *PostgresStore) UpdateKnowledgeVault(ctx context.Context, id string, patch map[string]any) (*persistence.KnowledgeVaultItem, error) {
	k, err := s.GetKnowledgeVault(ctx, id)
	if err != nil {
		return nil, err
	}
	if v, ok := patch["entry_type"].(string); ok {
		k.EntryType = v
	}
	if v, ok := patch["source"].(string); ok {
		k.Source = v
	}
	if v, ok := patch["sensitivity"].(persistence.Sensitivity); ok {
		k.Sensitivity = v
	}
	if v, ok := patch["secret_value"].(string); ok {
		k.SecretValue = v
	}
	if v, ok := patch["description"].(string); ok {
		k.Description = v
	}
	k.UpdatedAt = time.Now().UTC()
	body, _ := json.Marshal(k)
	_, err = s.pool.Exec(ctx, `UPDATE knowledge_vault_items SET body=$2, updated_at=$3 WHERE id=$1`, id, body, k.UpdatedAt)
	return k, err
}

func (s *PostgresStore) DeleteKnowledgeVault(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM knowledge_vault_items WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("knowledge_vault_item", id)
	}
	_ = s.vectors.Delete(ctx, id+"\x00description")
	return nil
}

func (s *PostgresStore) UpsertCoreBlock(ctx context.Context, b *persistence.CoreBlock) error {
	body, _ := json.Marshal(b)
	_, err := s.pool.Exec(ctx, `
INSERT INTO core_blocks (agent_id, label, id, organization_id, created_at, updated_at, body)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (agent_id, label) DO UPDATE SET body=EXCLUDED.body, updated_at=EXCLUDED.updated_at`,
		b.AgentID, b.Label, b.ID, b.OrganizationID, b.CreatedAt, b.UpdatedAt, body)
	return err
}

func (s *PostgresStore) GetCoreBlock(ctx context.Context, agentID, label string) (*persistence.CoreBlock, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM core_blocks WHERE agent_id=$1 AND label=$2`, agentID, label).Scan(&body)
	if err != nil {
		return nil, mirixerr.NewNotFound("core_block", label)
	}
	var b persistence.CoreBlock
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *persistence.Message) error {
	body, _ := json.Marshal(m)
	_, err := s.pool.Exec(ctx, `INSERT INTO messages (id, agent_id, created_at, body) VALUES ($1,$2,$3,$4)`,
		m.ID, m.AgentID, m.CreatedAt, body)
	return err
}

func (s *PostgresStore) ListMessages(ctx context.Context, agentID string, limit int) ([]persistence.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM messages WHERE agent_id=$1 ORDER BY created_at ASC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.Message
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var m persistence.Message
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertCloudFileMapping(ctx context.Context, m *persistence.CloudFileMapping) error {
	body, _ := json.Marshal(m)
	_, err := s.pool.Exec(ctx, `
INSERT INTO cloud_file_mappings (local_file_id, cloud_file_id, organization_id, status, body)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (local_file_id) DO UPDATE SET cloud_file_id=EXCLUDED.cloud_file_id, status=EXCLUDED.status, body=EXCLUDED.body`,
		m.LocalFileID, m.CloudFileID, m.OrganizationID, string(m.Status), body)
	return err
}

func (s *PostgresStore) GetCloudFileMappingByLocalPath(ctx context.Context, localFileID string) (*persistence.CloudFileMapping, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM cloud_file_mappings WHERE local_file_id=$1`, localFileID).Scan(&body)
	if err != nil {
		return nil, mirixerr.NewNotFound("cloud_file_mapping", localFileID)
	}
	var m persistence.CloudFileMapping
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListCloudFileMappings(ctx context.Context, status persistence.CloudFileStatus) ([]persistence.CloudFileMapping, error) {
	query := `SELECT body FROM cloud_file_mappings ORDER BY local_file_id`
	args := []any{}
	if status != "" {
		query = `SELECT body FROM cloud_file_mappings WHERE status=$1 ORDER BY local_file_id`
		args = append(args, string(status))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.CloudFileMapping
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var m persistence.CloudFileMapping
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkCloudFileStatus(ctx context.Context, cloudFileID string, status persistence.CloudFileStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE cloud_file_mappings SET status=$2 WHERE cloud_file_id=$1`, cloudFileID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mirixerr.NewNotFound("cloud_file_mapping", cloudFileID)
	}
	return nil
}

func (s *PostgresStore) indexEmbedding(ctx context.Context, id, kind, field string, vec []float32, orgID string) {
	if len(vec) == 0 {
		return
	}
	_ = s.vectors.Upsert(ctx, id+"\x00"+field, vec, map[string]string{"kind": kind, "field": field, "org": orgID})
}

// Search mirrors mapstore_search.go's ranking pipeline (string_match /
// fuzzy_match / semantic_match) over rows loaded from the organization's
// own table, scoped by organization_id (spec §3 ownership invariant).
func (s *PostgresStore) Search(ctx context.Context, q persistence.SearchQuery) ([]persistence.SearchHit, error) {
	cands, err := s.candidatesForKind(ctx, q.Kind, q.Field, q.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("search: load candidates: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	if strings.TrimSpace(q.Query) == "" {
		sort.Slice(cands, func(i, j int) bool { return cands[i].createdAt.After(cands[j].createdAt) })
		return toHits(trimTo(cands, limit), 1, q.Timezone), nil
	}

	switch q.Method {
	case persistence.MethodStringMatch, "":
		needle := normalize(q.Query)
		var matched []candidate
		for _, c := range cands {
			if strings.Contains(normalize(c.fieldText), needle) {
				matched = append(matched, c)
			}
		}
		sort.Slice(matched, func(i, j int) bool { return matched[i].createdAt.After(matched[j].createdAt) })
		return toHits(trimTo(matched, limit), 1, q.Timezone), nil

	case persistence.MethodFuzzyMatch:
		needle := normalize(q.Query)
		type scored struct {
			c     candidate
			score float64
		}
		out := make([]scored, 0, len(cands))
		for _, c := range cands {
			out = append(out, scored{c: c, score: partialRatio(needle, normalize(c.fieldText))})
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].score != out[j].score {
				return out[i].score > out[j].score
			}
			return out[i].c.createdAt.After(out[j].c.createdAt)
		})
		if len(out) > limit {
			out = out[:limit]
		}
		hits := make([]persistence.SearchHit, 0, len(out))
		for _, o := range out {
			hits = append(hits, persistence.SearchHit{ID: o.c.id, CreatedAt: convertTZ(o.c.createdAt, q.Timezone), Score: o.score, Entity: o.c.entity})
		}
		return hits, nil

	case persistence.MethodSemanticMatch:
		byID := make(map[string]candidate, len(cands))
		for _, c := range cands {
			byID[c.id] = c
		}
		results, err := s.vectors.SimilaritySearch(ctx, q.QueryEmbedding, limit*4, map[string]string{
			"kind":  string(q.Kind),
			"field": q.Field,
		})
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		sort.Slice(results, func(i, j int) bool {
			if results[i].Score != results[j].Score {
				return results[i].Score > results[j].Score
			}
			ci, oki := byID[entityIDOf(results[i].ID)]
			cj, okj := byID[entityIDOf(results[j].ID)]
			if oki && okj && !ci.createdAt.Equal(cj.createdAt) {
				return ci.createdAt.Before(cj.createdAt)
			}
			return results[i].ID < results[j].ID
		})
		hits := make([]persistence.SearchHit, 0, limit)
		for _, r := range results {
			c, ok := byID[entityIDOf(r.ID)]
			if !ok {
				continue
			}
			hits = append(hits, persistence.SearchHit{ID: c.id, CreatedAt: convertTZ(c.createdAt, q.Timezone), Score: r.Score, Entity: c.entity})
			if len(hits) >= limit {
				break
			}
		}
		return hits, nil

	default:
		return nil, fmt.Errorf("unsupported search method: %s", q.Method)
	}
}

// candidatesForKind loads every row of kind owned by organizationID into
// the kind-erased candidate view mapstore_search.go's ranking pipeline
// shares across both Store implementations.
func (s *PostgresStore) candidatesForKind(ctx context.Context, kind persistence.EntityKind, field, organizationID string) ([]candidate, error) {
	var table string
	switch kind {
	case persistence.KindEpisodic:
		table = "episodic_events"
	case persistence.KindSemantic:
		table = "semantic_items"
	case persistence.KindProcedural:
		table = "procedural_items"
	case persistence.KindResource:
		table = "resource_items"
	case persistence.KindKnowledgeVault:
		table = "knowledge_vault_items"
	case persistence.KindCore:
		table = "core_blocks"
	default:
		return nil, fmt.Errorf("unsupported entity kind: %s", kind)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id, created_at, body FROM %s WHERE organization_id=$1`, table), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var (
			id        string
			createdAt time.Time
			body      []byte
		)
		if err := rows.Scan(&id, &createdAt, &body); err != nil {
			return nil, err
		}
		c, err := decodeCandidate(kind, field, id, createdAt, body)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// decodeCandidate unmarshals one row's JSONB body into its concrete
// entity type and extracts the requested field's text, mirroring
// mapstore_search.go's per-kind clone+fieldOf branches.
func decodeCandidate(kind persistence.EntityKind, field, id string, createdAt time.Time, body []byte) (candidate, error) {
	switch kind {
	case persistence.KindEpisodic:
		var e persistence.EpisodicEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: fieldOf(field, namedField{"summary", e.Summary}, namedField{"details", e.Details}), entity: &e}, nil
	case persistence.KindSemantic:
		var it persistence.SemanticItem
		if err := json.Unmarshal(body, &it); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: fieldOf(field, namedField{"concept", it.Concept}, namedField{"definition", it.Definition}, namedField{"details", it.Details}), entity: &it}, nil
	case persistence.KindProcedural:
		var p persistence.ProceduralItem
		if err := json.Unmarshal(body, &p); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: fieldOf(field, namedField{"description", p.Description}, namedField{"steps", p.Steps}), entity: &p}, nil
	case persistence.KindResource:
		var r persistence.ResourceItem
		if err := json.Unmarshal(body, &r); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: fieldOf(field, namedField{"title", r.Title}, namedField{"summary", r.Summary}, namedField{"content", r.Content}), entity: &r}, nil
	case persistence.KindKnowledgeVault:
		var k persistence.KnowledgeVaultItem
		if err := json.Unmarshal(body, &k); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: fieldOf(field, namedField{"description", k.Description}, namedField{"source", k.Source}), entity: &k}, nil
	case persistence.KindCore:
		var b persistence.CoreBlock
		if err := json.Unmarshal(body, &b); err != nil {
			return candidate{}, err
		}
		return candidate{id: id, createdAt: createdAt, fieldText: b.Value, entity: &b}, nil
	default:
		return candidate{}, fmt.Errorf("unsupported entity kind: %s", kind)
	}
}

var _ persistence.Store = (*PostgresStore)(nil)
