package memory_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"mirix/internal/llm"
	"mirix/internal/memory"
)

func TestToolSurfaceDispatchInsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	emb := fakeEmbedder{dim: 16}
	managers := &memory.Managers{
		Episodic:       memory.NewEpisodicManager(store, emb),
		Semantic:       memory.NewSemanticManager(store, emb),
		Procedural:     memory.NewProceduralManager(store, emb),
		Resource:       memory.NewResourceManager(store, emb),
		KnowledgeVault: memory.NewKnowledgeVaultManager(store, emb),
		Core:           memory.NewCoreManager(store),
	}
	ts := memory.NewToolSurface(managers)

	require.NotEmpty(t, ts.Schemas())

	args, err := json.Marshal(map[string]any{
		"items": []map[string]any{{"summary": "dispatched via tool surface"}},
	})
	require.NoError(t, err)

	state := memory.AgentState{OrganizationID: "org1"}
	result, err := ts.Dispatch(ctx, state, llm.ToolCall{Name: "episodic_memory_insert", Args: args})
	require.NoError(t, err)
	require.NotNil(t, result)

	hits, err := managers.Episodic.Search(ctx, state, "dispatched", "summary", "string_match", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestToolSurfaceUnknownTool(t *testing.T) {
	managers := &memory.Managers{
		Episodic:       memory.NewEpisodicManager(newTestStore(), fakeEmbedder{dim: 4}),
		Semantic:       memory.NewSemanticManager(newTestStore(), fakeEmbedder{dim: 4}),
		Procedural:     memory.NewProceduralManager(newTestStore(), fakeEmbedder{dim: 4}),
		Resource:       memory.NewResourceManager(newTestStore(), fakeEmbedder{dim: 4}),
		KnowledgeVault: memory.NewKnowledgeVaultManager(newTestStore(), fakeEmbedder{dim: 4}),
		Core:           memory.NewCoreManager(newTestStore()),
	}
	ts := memory.NewToolSurface(managers)
	_, err := ts.Dispatch(context.Background(), memory.AgentState{}, llm.ToolCall{Name: "not_a_tool"})
	require.Error(t, err)
}
