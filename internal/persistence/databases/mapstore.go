package databases

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mirix/internal/mirixerr"
	"mirix/internal/persistence"
)

// MapStore is the in-memory persistence.Store, grounded in
// memory_vector.go's sync.RWMutex + map pattern generalized across all
// six entity kinds plus messages and cloud mappings. Used for tests and
// for the default "memory" backend.
type MapStore struct {
	mu sync.RWMutex

	episodic       map[string]*persistence.EpisodicEvent
	semantic       map[string]*persistence.SemanticItem
	procedural     map[string]*persistence.ProceduralItem
	resource       map[string]*persistence.ResourceItem
	knowledgeVault map[string]*persistence.KnowledgeVaultItem
	core           map[string]*persistence.CoreBlock // key: agentID + "\x00" + label

	messages []persistence.Message
	cloud    map[string]*persistence.CloudFileMapping // key: local file id

	vectors VectorStore
}

// NewMapStore creates an empty MapStore backed by its own in-memory
// vector index.
func NewMapStore() *MapStore {
	return &MapStore{
		episodic:       make(map[string]*persistence.EpisodicEvent),
		semantic:       make(map[string]*persistence.SemanticItem),
		procedural:     make(map[string]*persistence.ProceduralItem),
		resource:       make(map[string]*persistence.ResourceItem),
		knowledgeVault: make(map[string]*persistence.KnowledgeVaultItem),
		core:           make(map[string]*persistence.CoreBlock),
		cloud:          make(map[string]*persistence.CloudFileMapping),
		vectors:        NewMemoryVector(),
	}
}

func coreKey(agentID, label string) string { return agentID + "\x00" + label }

// --- Episodic ---

func (s *MapStore) InsertEpisodic(ctx context.Context, e *persistence.EpisodicEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodic[e.ID] = e
	s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "summary", e.SummaryEmbedding, e.OrganizationID)
	s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "details", e.DetailsEmbedding, e.OrganizationID)
	return nil
}

func (s *MapStore) GetEpisodic(ctx context.Context, id string) (*persistence.EpisodicEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.episodic[id]
	if !ok {
		return nil, mirixerr.NewNotFound("episodic_event", id)
	}
	cp := *e
	return &cp, nil
}

func (s *MapStore) UpdateEpisodic(ctx context.Context, id string, patch map[string]any) (*persistence.EpisodicEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.episodic[id]
	if !ok {
		return nil, mirixerr.NewNotFound("episodic_event", id)
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
		s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "summary", v, e.OrganizationID)
	}
	if v, ok := patch["details_embedding"].([]float32); ok {
		e.DetailsEmbedding = v
		s.indexEmbedding(e.ID, string(persistence.KindEpisodic), "details", v, e.OrganizationID)
	}
	e.UpdatedAt = now()
	cp := *e
	return &cp, nil
}

func (s *MapStore) DeleteEpisodic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodic[id]; !ok {
		return mirixerr.NewNotFound("episodic_event", id)
	}
	delete(s.episodic, id)
	_ = s.vectors.Delete(ctx, id)
	return nil
}

// --- Semantic ---

func (s *MapStore) InsertSemantic(ctx context.Context, it *persistence.SemanticItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.semantic[it.ID] = it
	s.indexEmbedding(it.ID, string(persistence.KindSemantic), "concept", it.ConceptEmbedding, it.OrganizationID)
	s.indexEmbedding(it.ID, string(persistence.KindSemantic), "definition", it.DefinitionEmbedding, it.OrganizationID)
	return nil
}

func (s *MapStore) GetSemantic(ctx context.Context, id string) (*persistence.SemanticItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.semantic[id]
	if !ok {
		return nil, mirixerr.NewNotFound("semantic_item", id)
	}
	cp := *it
	return &cp, nil
}

func (s *MapStore) UpdateSemantic(ctx context.Context, id string, patch map[string]any) (*persistence.SemanticItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.semantic[id]
	if !ok {
		return nil, mirixerr.NewNotFound("semantic_item", id)
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
	it.UpdatedAt = now()
	cp := *it
	return &cp, nil
}

func (s *MapStore) DeleteSemantic(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.semantic[id]; !ok {
		return mirixerr.NewNotFound("semantic_item", id)
	}
	delete(s.semantic, id)
	_ = s.vectors.Delete(ctx, id)
	return nil
}

// --- Procedural ---

func (s *MapStore) InsertProcedural(ctx context.Context, p *persistence.ProceduralItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procedural[p.ID] = p
	s.indexEmbedding(p.ID, string(persistence.KindProcedural), "description", p.DescriptionEmbedding, p.OrganizationID)
	return nil
}

func (s *MapStore) GetProcedural(ctx context.Context, id string) (*persistence.ProceduralItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.procedural[id]
	if !ok {
		return nil, mirixerr.NewNotFound("procedural_item", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MapStore) UpdateProcedural(ctx context.Context, id string, patch map[string]any) (*persistence.ProceduralItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.procedural[id]
	if !ok {
		return nil, mirixerr.NewNotFound("procedural_item", id)
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
	p.UpdatedAt = now()
	cp := *p
	return &cp, nil
}

func (s *MapStore) DeleteProcedural(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.procedural[id]; !ok {
		return mirixerr.NewNotFound("procedural_item", id)
	}
	delete(s.procedural, id)
	_ = s.vectors.Delete(ctx, id)
	return nil
}

// --- Resource ---

func (s *MapStore) InsertResource(ctx context.Context, r *persistence.ResourceItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resource[r.ID] = r
	s.indexEmbedding(r.ID, string(persistence.KindResource), "summary", r.SummaryEmbedding, r.OrganizationID)
	return nil
}

func (s *MapStore) GetResource(ctx context.Context, id string) (*persistence.ResourceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resource[id]
	if !ok {
		return nil, mirixerr.NewNotFound("resource_item", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MapStore) UpdateResource(ctx context.Context, id string, patch map[string]any) (*persistence.ResourceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resource[id]
	if !ok {
		return nil, mirixerr.NewNotFound("resource_item", id)
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
	r.UpdatedAt = now()
	cp := *r
	return &cp, nil
}

func (s *MapStore) DeleteResource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resource[id]; !ok {
		return mirixerr.NewNotFound("resource_item", id)
	}
	delete(s.resource, id)
	_ = s.vectors.Delete(ctx, id)
	return nil
}

// --- KnowledgeVault ---

func (s *MapStore) InsertKnowledgeVault(ctx context.Context, k *persistence.KnowledgeVaultItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledgeVault[k.ID] = k
	s.indexEmbedding(k.ID, string(persistence.KindKnowledgeVault), "description", k.DescriptionEmbedding, k.OrganizationID)
	return nil
}

func (s *MapStore) GetKnowledgeVault(ctx context.Context, id string) (*persistence.KnowledgeVaultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.knowledgeVault[id]
	if !ok {
		return nil, mirixerr.NewNotFound("knowledge_vault_item", id)
	}
	cp := *k
	return &cp, nil
}

func (s *MapStore) UpdateKnowledgeVault(ctx context.Context, id string, patch map[string]any) (*persistence.KnowledgeVaultItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.knowledgeVault[id]
	if !ok {
		return nil, mirixerr.NewNotFound("knowledge_vault_item", id)
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
	k.UpdatedAt = now()
	cp := *k
	return &cp, nil
}

func (s *MapStore) DeleteKnowledgeVault(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.knowledgeVault[id]; !ok {
		return mirixerr.NewNotFound("knowledge_vault_item", id)
	}
	delete(s.knowledgeVault, id)
	_ = s.vectors.Delete(ctx, id)
	return nil
}

// --- Core ---

func (s *MapStore) UpsertCoreBlock(ctx context.Context, b *persistence.CoreBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.core[coreKey(b.AgentID, b.Label)] = b
	return nil
}

func (s *MapStore) GetCoreBlock(ctx context.Context, agentID, label string) (*persistence.CoreBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.core[coreKey(agentID, label)]
	if !ok {
		return nil, mirixerr.NewNotFound("core_block", label)
	}
	cp := *b
	return &cp, nil
}

// --- Messages ---

func (s *MapStore) AppendMessage(ctx context.Context, m *persistence.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

func (s *MapStore) ListMessages(ctx context.Context, agentID string, limit int) ([]persistence.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.Message
	for i := len(s.messages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.messages[i].AgentID == agentID {
			out = append(out, s.messages[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- CloudFileMapping ---

func (s *MapStore) UpsertCloudFileMapping(ctx context.Context, m *persistence.CloudFileMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cloud[m.LocalFileID] = m
	return nil
}

func (s *MapStore) GetCloudFileMappingByLocalPath(ctx context.Context, localFileID string) (*persistence.CloudFileMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.cloud[localFileID]
	if !ok {
		return nil, mirixerr.NewNotFound("cloud_file_mapping", localFileID)
	}
	cp := *m
	return &cp, nil
}

func (s *MapStore) ListCloudFileMappings(ctx context.Context, status persistence.CloudFileStatus) ([]persistence.CloudFileMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []persistence.CloudFileMapping
	for _, m := range s.cloud {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MapStore) MarkCloudFileStatus(ctx context.Context, cloudFileID string, status persistence.CloudFileStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.cloud {
		if m.CloudFileID == cloudFileID {
			m.Status = status
			return nil
		}
	}
	return mirixerr.NewNotFound("cloud_file_mapping", cloudFileID)
}

func (s *MapStore) indexEmbedding(id, kind, field string, vec []float32, orgID string) {
	if len(vec) == 0 {
		return
	}
	_ = s.vectors.Upsert(context.Background(), id+"\x00"+field, vec, map[string]string{
		"kind":  kind,
		"field": field,
		"org":   orgID,
	})
}

func now() time.Time { return time.Now().UTC() }

var _ persistence.Store = (*MapStore)(nil)

// normalize lower-cases and trims for case-insensitive matching, mirroring
// the SQL LOWER()/CONTAINS semantics used by string_match.
func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
