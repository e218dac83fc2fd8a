package memory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"mirix/internal/agentrt"
	"mirix/internal/llm"
	"mirix/internal/queue"
)

// AgentTypeReflexion is the MessageQueue lane the reflexion agent runs
// under; distinct from every memory type's own lane so a reflexion pass
// never contends with live ingestion traffic for the same slot.
const AgentTypeReflexion = "reflexion"

// Reflexion runs the three-phase background sweep named in spec
// §4.5.3: redundancy within each manager, cross-manager conflict
// resolution, and pattern synthesis into semantic/core memory. It
// holds references to all six managers plus the dedicated identities
// that drive each phase (grounded in evolving.go's ApplyEdits PRUNE/
// MERGE/UPDATE_TAG trio, generalized to this three-phase shape).
type Reflexion struct {
	Managers       *Managers
	ToolSurface    *ToolSurface
	Queue          *queue.Queue
	OrganizationID string

	MemoryAgents   map[string]agentrt.Identity // keyed by memory type name
	ReflexionAgent agentrt.Identity
	SemanticAgent  agentrt.Identity
	MetaAgent      agentrt.Identity
}

// memoryTypeNames enumerates the six manager identities, the fixed
// dispatch order for redundancy-phase fan-out.
var memoryTypeNames = []string{"episodic", "semantic", "procedural", "resource", "knowledge_vault", "core"}

// Run executes the redundancy, conflict, and pattern phases in order,
// each dispatched through the MessageQueue so per-agent FIFO ordering
// is preserved against concurrent ingestion flushes.
func (r *Reflexion) Run(ctx context.Context) error {
	if err := r.redundancyPhase(ctx); err != nil {
		return fmt.Errorf("reflexion: redundancy phase: %w", err)
	}
	if err := r.conflictPhase(ctx); err != nil {
		return fmt.Errorf("reflexion: conflict phase: %w", err)
	}
	if err := r.patternPhase(ctx); err != nil {
		return fmt.Errorf("reflexion: pattern phase: %w", err)
	}
	return nil
}

// redundancyPhase asks each of the six managers' own agent to identify
// and merge/delete duplicates within its own store.
func (r *Reflexion) redundancyPhase(ctx context.Context) error {
	for _, name := range memoryTypeNames {
		agent, ok := r.MemoryAgents[name]
		if !ok {
			continue
		}
		prompt := []llm.Message{{
			Role: "system",
			Parts: []llm.PromptPart{{Text: fmt.Sprintf(
				"Review your own %s memory store for duplicate or near-duplicate entries. "+
					"Merge or delete redundant entries using your update/replace tools.", name)}},
		}}
		if err := r.dispatchAndApply(ctx, agent, prompt, r.ToolSurface.SchemasFor(toolNamesFor(name)...)); err != nil {
			log.Warn().Err(err).Str("memory_type", name).Msg("reflexion: redundancy phase agent failed")
		}
	}
	return nil
}

// conflictPhase dispatches to the reflexion agent, which is given the
// full tool surface across all six managers to find and resolve
// temporal/content contradictions.
func (r *Reflexion) conflictPhase(ctx context.Context) error {
	prompt := []llm.Message{{
		Role: "system",
		Parts: []llm.PromptPart{{Text: "Search across every memory type for temporal or content " +
			"contradictions. For each one found, update the newer entry, delete the stale one, " +
			"or flag it if neither is clearly correct."}},
	}}
	return r.dispatchAndApply(ctx, r.ReflexionAgent, prompt, r.ToolSurface.Schemas())
}

// patternPhase asks the reflexion, semantic, and meta agents in
// sequence to synthesize new semantic/core memories summarizing
// recurring themes across the accumulated episodic/procedural record.
func (r *Reflexion) patternPhase(ctx context.Context) error {
	prompt := []llm.Message{{
		Role: "system",
		Parts: []llm.PromptPart{{Text: "Synthesize any recurring themes across recent memory into " +
			"new or updated semantic concepts and core-block updates."}},
	}}
	for _, agent := range []agentrt.Identity{r.ReflexionAgent, r.SemanticAgent, r.MetaAgent} {
		if agent.ID == "" {
			continue
		}
		if err := r.dispatchAndApply(ctx, agent, prompt, r.ToolSurface.Schemas()); err != nil {
			log.Warn().Err(err).Str("agent", agent.ID).Msg("reflexion: pattern phase agent failed")
		}
	}
	return nil
}

// dispatchAndApply sends prompt through agent's FIFO lane and applies
// every tool call the agent's reply contains.
func (r *Reflexion) dispatchAndApply(ctx context.Context, agent agentrt.Identity, prompt []llm.Message, tools []llm.ToolSchema) error {
	reply, err := agent.SendMessage(ctx, r.Queue, prompt, tools)
	if err != nil {
		return err
	}
	state := AgentState{OrganizationID: r.OrganizationID, AgentID: agent.ID}
	for _, call := range reply.ToolCalls {
		if _, err := r.ToolSurface.Dispatch(ctx, state, call); err != nil {
			log.Warn().Err(err).Str("tool", call.Name).Msg("reflexion: tool dispatch failed")
		}
	}
	return nil
}

// toolNamesFor returns the subset of tool names a single memory type's
// own redundancy pass is allowed to call, so it can't reach into
// sibling stores during phase 1.
func toolNamesFor(memType string) []string {
	switch memType {
	case "episodic":
		return []string{"episodic_memory_insert", "episodic_memory_append", "episodic_memory_replace", "check_episodic_memory"}
	case "semantic":
		return []string{"semantic_memory_insert", "semantic_memory_update"}
	case "procedural":
		return []string{"procedural_memory_insert", "procedural_memory_update"}
	case "resource":
		return []string{"resource_memory_insert", "resource_memory_update"}
	case "knowledge_vault":
		return []string{"knowledge_vault_insert", "knowledge_vault_update"}
	case "core":
		return []string{"core_memory_append", "core_memory_replace"}
	default:
		return nil
	}
}
