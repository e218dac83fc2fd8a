// Package coordinator implements the Coordinator/AgentWrapper facade
// (spec §4.6): the top-level object that owns the six agent identities,
// the chat agent, persona/timezone/model state, and wires
// UploadManager, TemporaryAccumulator, MessageQueue, MetaRouter, and the
// six memory managers together behind SendMessage/Ask.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mirix/internal/accumulator"
	"mirix/internal/agentrt"
	"mirix/internal/config"
	"mirix/internal/embedding"
	"mirix/internal/llm"
	"mirix/internal/llm/anthropic"
	"mirix/internal/llm/google"
	"mirix/internal/llm/openai"
	"mirix/internal/memory"
	"mirix/internal/mirixerr"
	"mirix/internal/objectstore"
	"mirix/internal/persistence"
	"mirix/internal/queue"
	"mirix/internal/router"
	"mirix/internal/transcriber"
	"mirix/internal/upload"
)

// memoryTypes is the canonical ordering of the six memory types, reused
// by router wiring, Reflexion, and Health reporting.
var memoryTypes = []string{"episodic", "semantic", "procedural", "resource", "knowledge_vault", "core"}

// Coordinator is the Coordinator/AgentWrapper facade.
type Coordinator struct {
	mu sync.RWMutex

	cfg   config.CoordinatorConfig
	store persistence.Store
	blobs objectstore.BlobStore

	embedding   embedding.Provider
	transcriber transcriber.Transcriber

	queue       *queue.Queue
	upload      *upload.Manager
	accumulator *accumulator.Accumulator
	managers    *memory.Managers
	toolSurface *memory.ToolSurface
	router      *router.MetaRouter
	reflexion   *memory.Reflexion

	chatAgent               agentrt.Identity
	memoryAgents            map[string]agentrt.Identity
	metaAgent               agentrt.Identity
	reflexionAgent          agentrt.Identity
	semanticAgentForPattern agentrt.Identity

	timezone          *time.Location
	activePersonaName string
	missingKeys       map[string]bool

	reflexionStop chan struct{}
}

// New wires every component per SPEC_FULL.md's package layout and
// returns a ready Coordinator. It does not start the reflexion ticker;
// call ReflexionSchedule separately.
func New(cfg config.CoordinatorConfig, store persistence.Store, blobs objectstore.BlobStore, emb embedding.Provider, tr transcriber.Transcriber) (*Coordinator, error) {
	loc, err := time.LoadLocation(cfg.TimezoneStr)
	if err != nil {
		loc = time.UTC
	}

	c := &Coordinator{
		cfg:               cfg,
		store:             store,
		blobs:             blobs,
		embedding:         emb,
		transcriber:       tr,
		timezone:          loc,
		activePersonaName: cfg.ActivePersonaName,
		missingKeys:       make(map[string]bool),
	}

	c.queue = queue.New()
	c.upload = upload.New(cfg.Upload, store, blobs)
	c.accumulator = accumulator.New(cfg.Accumulator, cfg.OrganizationID, c.upload)

	c.managers = &memory.Managers{
		Episodic:       memory.NewEpisodicManager(store, emb),
		Semantic:       memory.NewSemanticManager(store, emb),
		Procedural:     memory.NewProceduralManager(store, emb),
		Resource:       memory.NewResourceManager(store, emb),
		KnowledgeVault: memory.NewKnowledgeVaultManager(store, emb),
		Core:           memory.NewCoreManager(store),
	}
	c.toolSurface = memory.NewToolSurface(c.managers)

	if err := c.rebuildAgents(); err != nil {
		return nil, err
	}

	c.router = &router.MetaRouter{
		Queue:          c.queue,
		Tools:          c.toolSurface,
		RoutedMode:     cfg.RoutedMode,
		OrganizationID: cfg.OrganizationID,
	}
	c.wireRouterAgents()

	c.reflexion = &memory.Reflexion{
		Managers:       c.managers,
		ToolSurface:    c.toolSurface,
		Queue:          c.queue,
		OrganizationID: cfg.OrganizationID,
	}
	c.wireReflexionAgents()

	return c, nil
}

// rebuildAgents (re)creates every LLM provider client from the current
// config and assigns the chat/memory/meta/reflexion identities,
// recording which providers are missing a key rather than failing
// construction -- an agent with a missing key simply can't be used
// until ProvideAPIKey supplies one (spec §6/§7 MissingAPIKey).
func (c *Coordinator) rebuildAgents() error {
	providers := make(map[string]llm.Provider)
	missing := make(map[string]bool)

	if c.cfg.OpenAI.APIKey != "" {
		providers["openai"] = openai.New(c.cfg.OpenAI)
	} else {
		missing["openai"] = true
	}
	if c.cfg.Anthropic.APIKey != "" {
		providers["anthropic"] = anthropic.New(c.cfg.Anthropic)
	} else {
		missing["anthropic"] = true
	}
	if c.cfg.Google.APIKey != "" {
		gc, err := google.New(context.Background(), c.cfg.Google)
		if err != nil {
			log.Warn().Err(err).Msg("coordinator: google client init failed")
			missing["google"] = true
		} else {
			providers["google"] = gc
		}
	} else {
		missing["google"] = true
	}

	c.missingKeys = missing

	chatModel := c.cfg.Agent.ModelName
	chatProviderName := providerForModel(chatModel)
	c.chatAgent = agentrt.Identity{
		ID:        "chat-agent",
		AgentType: "chat",
		Model:     chatModel,
		Provider:  providers[chatProviderName],
	}

	memModel := c.cfg.MemoryModelName
	memProviderName := providerForModel(memModel)
	memProvider := providers[memProviderName]

	memAgents := make(map[string]agentrt.Identity, len(memoryTypes))
	for _, t := range memoryTypes {
		memAgents[t] = agentrt.Identity{ID: "agent-" + t, AgentType: t, Model: memModel, Provider: memProvider}
	}
	c.memoryAgents = memAgents
	c.metaAgent = agentrt.Identity{ID: "agent-meta", AgentType: "meta", Model: memModel, Provider: memProvider}
	c.reflexionAgent = agentrt.Identity{ID: "agent-reflexion", AgentType: memory.AgentTypeReflexion, Model: memModel, Provider: memProvider}
	c.semanticAgentForPattern = memAgents["semantic"]

	return nil
}

func (c *Coordinator) wireRouterAgents() {
	c.router.MetaAgent = c.metaAgent
	c.router.MemoryAgents = c.memoryAgents
}

func (c *Coordinator) wireReflexionAgents() {
	c.reflexion.MemoryAgents = c.memoryAgents
	c.reflexion.ReflexionAgent = c.reflexionAgent
	c.reflexion.SemanticAgent = c.semanticAgentForPattern
	c.reflexion.MetaAgent = c.metaAgent
}

// providerForModel maps a model name to the provider family that
// serves it, the same naming convention the original Python's
// GEMINI_MODELS/OPENAI_MODELS lists encode.
func providerForModel(model string) string {
	switch {
	case containsAny(model, "gpt", "o1", "o3", "chatgpt"):
		return "openai"
	case containsAny(model, "claude"):
		return "anthropic"
	case containsAny(model, "gemini"):
		return "google"
	default:
		return "google"
	}
}

func containsAny(s string, subs ...string) bool {
	ls := toLower(s)
	for _, sub := range subs {
		if len(ls) >= len(sub) && indexOf(ls, sub) >= 0 {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}

// HealthReport is Health's return value (SPEC_FULL.md [Coordinator]
// additions).
type HealthReport struct {
	UploadQueueDepth  int
	MessageQueueIdle  bool
	StoreReachable    bool
	MissingProviders  []string
	TrackedScreenshots int
}

// Health reports whether the MessageQueue is idle, the number of
// unfinished MessageQueue submissions summed over the six memory agent
// types (in UploadQueueDepth), the tracked screenshot count, providers
// with a missing key, and Store reachability. It does not inspect the
// UploadManager's worker pool.
func (c *Coordinator) Health(ctx context.Context) HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r := HealthReport{
		MessageQueueIdle:   c.queue.Idle(),
		TrackedScreenshots: c.accumulator.TrackedURICount(),
	}
	for name, missing := range c.missingKeys {
		if missing {
			r.MissingProviders = append(r.MissingProviders, name)
		}
	}
	if _, err := c.store.ListCloudFileMappings(ctx, ""); err != nil {
		r.StoreReachable = false
	} else {
		r.StoreReachable = true
	}
	for _, t := range memoryTypes {
		r.UploadQueueDepth += c.queue.QueueDepth(t)
	}
	return r
}

// Reconcile marks every uploaded CloudFileMapping whose remote id is
// absent from BlobStore.List as deleted (§4.1/§8 testable property:
// cloud_map IDs ⊆ BlobStore.List ids).
func (c *Coordinator) Reconcile(ctx context.Context) error {
	blobs, err := c.blobs.List(ctx)
	if err != nil {
		return fmt.Errorf("coordinator: reconcile: list blobs: %w", err)
	}
	live := make(map[string]bool, len(blobs))
	for _, b := range blobs {
		live[b.RemoteID] = true
	}
	mappings, err := c.store.ListCloudFileMappings(ctx, persistence.CloudFileUploaded)
	if err != nil {
		return fmt.Errorf("coordinator: reconcile: list mappings: %w", err)
	}
	for _, m := range mappings {
		if !live[m.CloudFileID] {
			if err := c.store.MarkCloudFileStatus(ctx, m.CloudFileID, persistence.CloudFileDeleted); err != nil && !mirixerr.IsNotFound(err) {
				log.Warn().Err(err).Str("cloud_file_id", m.CloudFileID).Msg("coordinator: reconcile: mark deleted failed")
			}
		}
	}
	return nil
}
