// Package persistence defines the memory entity types and the Store
// contract that owns their lifecycle (spec §3). Store is the sole
// mutator of these rows; managers hold a handle into it and never
// mutate entities they did not load through it.
package persistence

import "time"

// Actor enumerates who produced an EpisodicEvent.
type Actor string

const (
	ActorUser      Actor = "user"
	ActorAssistant Actor = "assistant"
	ActorSystem    Actor = "system"
)

// Sensitivity classifies a KnowledgeVaultItem's secret_value.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// CloudFileStatus tracks a CloudFileMapping's lifecycle.
type CloudFileStatus string

const (
	CloudFileUploaded  CloudFileStatus = "uploaded"
	CloudFileProcessed CloudFileStatus = "processed"
	CloudFileDeleted   CloudFileStatus = "deleted"
)

// Base holds the fields every memory entity shares.
type Base struct {
	ID             string
	OrganizationID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// EpisodicEvent is one recorded occurrence (spec §3).
type EpisodicEvent struct {
	Base
	OccurredAt time.Time
	Actor      Actor
	EventType  string
	Summary    string
	Details    string

	SummaryEmbedding []float32
	DetailsEmbedding []float32
}

// SemanticItem is a durable concept/fact.
type SemanticItem struct {
	Base
	Concept    string
	Definition string
	Details    string
	Source     string

	ConceptEmbedding    []float32
	DefinitionEmbedding []float32
	DetailsEmbedding    []float32
}

// ProceduralItem is a how-to entry.
type ProceduralItem struct {
	Base
	EntryType   string
	Description string
	Steps       string // ordered textual sequence

	DescriptionEmbedding []float32
	StepsEmbedding       []float32
}

// ResourceItem is a reference document/asset.
type ResourceItem struct {
	Base
	Title        string
	Summary      string
	Content      string
	ResourceType string

	SummaryEmbedding []float32
}

// KnowledgeVaultItem stores a sensitive credential-like fact.
type KnowledgeVaultItem struct {
	Base
	EntryType   string
	Source      string
	Sensitivity Sensitivity
	SecretValue string
	Description string

	DescriptionEmbedding []float32
}

// CoreBlock is a named persona/human context block; one per label per
// agent.
type CoreBlock struct {
	Base
	AgentID string
	Label   string
	Value   string
}

// Message is one append-only chat log entry.
type Message struct {
	Base
	AgentID   string
	StepID    string
	Role      string
	Text      string
	ToolCalls []ToolCallRecord
}

// ToolCallRecord is the persisted shape of one tool invocation/result
// within a Message.
type ToolCallRecord struct {
	ID     string
	Name   string
	Args   string
	Result string
}

// CloudFileMapping links a local upload to its remote blob.
type CloudFileMapping struct {
	Base
	LocalFileID  string
	CloudFileID  string
	URI          string
	Timestamp    time.Time
	Status       CloudFileStatus
}
