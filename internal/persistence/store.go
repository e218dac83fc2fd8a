package persistence

import (
	"context"
	"time"
)

// SearchMethod selects the matching algorithm for Store.Search (§4.5.1).
type SearchMethod string

const (
	MethodStringMatch   SearchMethod = "string_match"
	MethodFuzzyMatch    SearchMethod = "fuzzy_match"
	MethodSemanticMatch SearchMethod = "semantic_match"
)

// EntityKind names one of the six memory entity tables.
type EntityKind string

const (
	KindEpisodic       EntityKind = "episodic"
	KindSemantic       EntityKind = "semantic"
	KindProcedural     EntityKind = "procedural"
	KindResource       EntityKind = "resource"
	KindKnowledgeVault EntityKind = "knowledge_vault"
	KindCore           EntityKind = "core"
)

// SearchQuery parametrizes Store.Search.
type SearchQuery struct {
	OrganizationID string
	Kind           EntityKind
	Query          string
	Field          string // which attribute/embedding field to match
	Method         SearchMethod
	Limit          int
	Timezone       *time.Location // convert returned timestamps when set
	QueryEmbedding []float32      // pre-computed for MethodSemanticMatch
}

// SearchHit is one row returned by Store.Search, kept generic over the
// six entity shapes so a single ranking pipeline can serve all of them.
type SearchHit struct {
	ID        string
	CreatedAt time.Time
	Score     float64
	Entity    any // concrete *EpisodicEvent / *SemanticItem / ...
}

// Store is the sole mutator of memory entities: row-oriented CRUD per
// entity kind, vector/lexical/fuzzy search, the CloudFileMapping table,
// and the append-only Messages log (spec §2/§3).
type Store interface {
	InsertEpisodic(ctx context.Context, e *EpisodicEvent) error
	UpdateEpisodic(ctx context.Context, id string, patch map[string]any) (*EpisodicEvent, error)
	DeleteEpisodic(ctx context.Context, id string) error
	GetEpisodic(ctx context.Context, id string) (*EpisodicEvent, error)

	InsertSemantic(ctx context.Context, s *SemanticItem) error
	UpdateSemantic(ctx context.Context, id string, patch map[string]any) (*SemanticItem, error)
	DeleteSemantic(ctx context.Context, id string) error
	GetSemantic(ctx context.Context, id string) (*SemanticItem, error)

	InsertProcedural(ctx context.Context, p *ProceduralItem) error
	UpdateProcedural(ctx context.Context, id string, patch map[string]any) (*ProceduralItem, error)
	DeleteProcedural(ctx context.Context, id string) error
	GetProcedural(ctx context.Context, id string) (*ProceduralItem, error)

	InsertResource(ctx context.Context, r *ResourceItem) error
	UpdateResource(ctx context.Context, id string, patch map[string]any) (*ResourceItem, error)
	DeleteResource(ctx context.Context, id string) error
	GetResource(ctx context.Context, id string) (*ResourceItem, error)

	InsertKnowledgeVault(ctx context.Context, k *KnowledgeVaultItem) error
	UpdateKnowledgeVault(ctx context.Context, id string, patch map[string]any) (*KnowledgeVaultItem, error)
	DeleteKnowledgeVault(ctx context.Context, id string) error
	GetKnowledgeVault(ctx context.Context, id string) (*KnowledgeVaultItem, error)

	UpsertCoreBlock(ctx context.Context, b *CoreBlock) error
	GetCoreBlock(ctx context.Context, agentID, label string) (*CoreBlock, error)

	Search(ctx context.Context, q SearchQuery) ([]SearchHit, error)

	AppendMessage(ctx context.Context, m *Message) error
	ListMessages(ctx context.Context, agentID string, limit int) ([]Message, error)

	UpsertCloudFileMapping(ctx context.Context, m *CloudFileMapping) error
	GetCloudFileMappingByLocalPath(ctx context.Context, localFileID string) (*CloudFileMapping, error)
	ListCloudFileMappings(ctx context.Context, status CloudFileStatus) ([]CloudFileMapping, error)
	MarkCloudFileStatus(ctx context.Context, cloudFileID string, status CloudFileStatus) error
}
