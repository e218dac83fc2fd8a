package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mirix/internal/agentrt"
	"mirix/internal/llm"
	"mirix/internal/memory"
	"mirix/internal/persistence"
	"mirix/internal/persistence/databases"
	"mirix/internal/queue"
	"mirix/internal/router"
)

type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Dimensions() int { return f.dim }

func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j, b := range []byte(t) {
			v[j%f.dim] += float32(b)
		}
		out[i] = v
	}
	return out, nil
}

func newManagers() *memory.Managers {
	store := databases.NewMapStore()
	emb := fakeEmbedder{dim: 16}
	return &memory.Managers{
		Episodic:       memory.NewEpisodicManager(store, emb),
		Semantic:       memory.NewSemanticManager(store, emb),
		Procedural:     memory.NewProceduralManager(store, emb),
		Resource:       memory.NewResourceManager(store, emb),
		KnowledgeVault: memory.NewKnowledgeVaultManager(store, emb),
		Core:           memory.NewCoreManager(store),
	}
}

// scriptedProvider replies with a fixed set of tool calls on every Chat
// call, regardless of the prompt -- enough to drive the router's
// dispatch paths deterministically.
type scriptedProvider struct {
	calls []llm.ToolCall
}

func (p scriptedProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{Role: "assistant", ToolCalls: p.calls}, nil
}

func episodicInsertCall(summary string) llm.ToolCall {
	args, _ := json.Marshal(map[string]any{
		"items": []map[string]any{{"summary": summary}},
	})
	return llm.ToolCall{ID: "1", Name: "episodic_memory_insert", Args: args}
}

func TestDispatchDirectFansOutToAllSixTypes(t *testing.T) {
	ctx := context.Background()
	managers := newManagers()
	ts := memory.NewToolSurface(managers)
	q := queue.New()

	agents := make(map[string]agentrt.Identity)
	for _, memType := range []string{"episodic", "semantic", "procedural", "resource", "knowledge_vault", "core"} {
		var calls []llm.ToolCall
		if memType == "episodic" {
			calls = []llm.ToolCall{episodicInsertCall("direct fan-out reached episodic")}
		}
		agents[memType] = agentrt.Identity{
			ID:        fmt.Sprintf("agent-%s", memType),
			AgentType: memType,
			Provider:  scriptedProvider{calls: calls},
		}
	}

	r := &router.MetaRouter{
		Queue:          q,
		Tools:          ts,
		RoutedMode:     false,
		MemoryAgents:   agents,
		OrganizationID: "org1",
	}

	err := r.Dispatch(ctx, []llm.PromptPart{{Text: "some observation"}})
	require.NoError(t, err)

	hits, err := managers.Episodic.Search(ctx, memory.AgentState{OrganizationID: "org1"}, "fan-out", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestDispatchRoutedCallsOnlyNamedTypes(t *testing.T) {
	ctx := context.Background()
	managers := newManagers()
	ts := memory.NewToolSurface(managers)
	q := queue.New()

	triggerArgs, _ := json.Marshal(map[string]any{
		"memory_types": []string{"episodic"},
		"instructions": []string{"log this event"},
	})
	meta := agentrt.Identity{
		ID:        "meta-1",
		AgentType: "meta",
		Provider: scriptedProvider{calls: []llm.ToolCall{
			{ID: "1", Name: "trigger_memory_update", Args: triggerArgs},
		}},
	}

	agents := map[string]agentrt.Identity{
		"episodic": {
			ID:        "agent-episodic",
			AgentType: "episodic",
			Provider:  scriptedProvider{calls: []llm.ToolCall{episodicInsertCall("routed episodic insert")}},
		},
		"semantic": {
			ID:        "agent-semantic",
			AgentType: "semantic",
			Provider:  scriptedProvider{}, // never called in this test
		},
	}

	r := &router.MetaRouter{
		Queue:          q,
		Tools:          ts,
		RoutedMode:     true,
		MetaAgent:      meta,
		MemoryAgents:   agents,
		OrganizationID: "org1",
	}

	err := r.Dispatch(ctx, []llm.PromptPart{{Text: "some observation"}})
	require.NoError(t, err)

	hits, err := managers.Episodic.Search(ctx, memory.AgentState{OrganizationID: "org1"}, "routed", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	semHits, err := managers.Semantic.Search(ctx, memory.AgentState{OrganizationID: "org1"}, "", "concept", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Empty(t, semHits)
}

func TestDispatchBestEffortIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	managers := newManagers()
	ts := memory.NewToolSurface(managers)
	q := queue.New()

	agents := map[string]agentrt.Identity{
		"episodic":        {ID: "a-ep", AgentType: "episodic", Provider: scriptedProvider{calls: []llm.ToolCall{episodicInsertCall("survives sibling failure")}}},
		"semantic":        {ID: "a-sem", AgentType: "semantic", Provider: failingProvider{}},
		"procedural":      {ID: "a-proc", AgentType: "procedural", Provider: scriptedProvider{}},
		"resource":        {ID: "a-res", AgentType: "resource", Provider: scriptedProvider{}},
		"knowledge_vault": {ID: "a-kv", AgentType: "knowledge_vault", Provider: scriptedProvider{}},
		"core":            {ID: "a-core", AgentType: "core", Provider: scriptedProvider{}},
	}

	r := &router.MetaRouter{
		Queue:          q,
		Tools:          ts,
		RoutedMode:     false,
		MemoryAgents:   agents,
		OrganizationID: "org1",
	}

	failures := r.DispatchBestEffort(ctx, []llm.PromptPart{{Text: "obs"}})
	require.Contains(t, failures, "semantic")
	require.NotContains(t, failures, "episodic")

	hits, err := managers.Episodic.Search(ctx, memory.AgentState{OrganizationID: "org1"}, "survives", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

type failingProvider struct{}

func (failingProvider) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	return llm.Message{}, fmt.Errorf("provider unavailable")
}
