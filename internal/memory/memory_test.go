package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mirix/internal/memory"
	"mirix/internal/persistence"
	"mirix/internal/persistence/databases"
)

// fakeEmbedder returns a deterministic vector derived from the input
// text's bytes so equal strings always embed identically and distinct
// strings (almost always) embed distinctly -- enough for cosine-rank
// tests without a real provider.
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

func newTestStore() *databases.MapStore { return databases.NewMapStore() }

func TestEpisodicInsertAndStringSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewEpisodicManager(store, fakeEmbedder{dim: 16})
	state := memory.AgentState{OrganizationID: "org1"}

	e, err := mgr.Insert(ctx, state, memory.EpisodicFields{
		OccurredAt: time.Now(),
		Actor:      persistence.ActorUser,
		EventType:  "action",
		Summary:    "user opened terminal",
		Details:    "launched via spotlight",
	})
	require.NoError(t, err)
	require.NotEmpty(t, e.ID)

	hits, err := mgr.Search(ctx, state, "terminal", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, e.ID, hits[0].ID)
}

func TestEpisodicDeleteThenSearchMisses(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewEpisodicManager(store, fakeEmbedder{dim: 16})
	state := memory.AgentState{OrganizationID: "org1"}

	e, err := mgr.Insert(ctx, state, memory.EpisodicFields{Summary: "closed terminal"})
	require.NoError(t, err)

	require.NoError(t, mgr.DeleteByID(ctx, e.ID))
	hits, err := mgr.Search(ctx, state, "terminal", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Empty(t, hits)
}

// TestEpisodicReplaceDedup mirrors spec §8 scenario 5: two identical
// events get replaced by one deduped event.
func TestEpisodicReplaceDedup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewEpisodicManager(store, fakeEmbedder{dim: 16})
	state := memory.AgentState{OrganizationID: "org1"}

	e1, err := mgr.Insert(ctx, state, memory.EpisodicFields{Summary: "user opened terminal"})
	require.NoError(t, err)
	e2, err := mgr.Insert(ctx, state, memory.EpisodicFields{Summary: "user opened terminal"})
	require.NoError(t, err)

	_, err = mgr.Replace(ctx, state, []string{e1.ID, e2.ID}, []memory.EpisodicFields{{Summary: "user opened terminal"}})
	require.NoError(t, err)

	hits, err := mgr.Search(ctx, state, "terminal", "summary", persistence.MethodStringMatch, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestSemanticSemanticMatchRanksExactTop(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	emb := fakeEmbedder{dim: 32}
	mgr := memory.NewSemanticManager(store, emb)
	state := memory.AgentState{OrganizationID: "org1"}

	for _, c := range []string{"cat", "dog", "galaxy"} {
		_, err := mgr.Insert(ctx, state, memory.SemanticFields{Concept: c, Definition: c + " definition"})
		require.NoError(t, err)
	}

	hits, err := mgr.Search(ctx, state, "cat", "concept", persistence.MethodSemanticMatch, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	item := hits[0].Entity.(*persistence.SemanticItem)
	require.Equal(t, "cat", item.Concept)
}

func TestSemanticUpdateEmptyNewItemsIsPureDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewSemanticManager(store, fakeEmbedder{dim: 16})
	state := memory.AgentState{OrganizationID: "org1"}

	it, err := mgr.Insert(ctx, state, memory.SemanticFields{Concept: "obsolete", Definition: "no longer true"})
	require.NoError(t, err)

	out, err := mgr.Update(ctx, state, []string{it.ID}, nil)
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = store.GetSemantic(ctx, it.ID)
	require.Error(t, err)
}

func TestCoreReplaceRequiresSubstring(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewCoreManager(store)
	state := memory.AgentState{OrganizationID: "org1"}

	_, err := mgr.Upsert(ctx, state, "agent-1", "persona", "helpful assistant")
	require.NoError(t, err)

	b, err := mgr.Replace(ctx, state, "agent-1", "persona", "helpful", "xxxxx")
	require.NoError(t, err)
	require.Equal(t, "xxxxx assistant", b.Value)

	_, err = mgr.Replace(ctx, state, "agent-1", "persona", "missing", "y")
	require.Error(t, err)
}

func TestCoreAppendExactJoin(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	mgr := memory.NewCoreManager(store)
	state := memory.AgentState{OrganizationID: "org1"}

	_, err := mgr.Upsert(ctx, state, "agent-1", "human", "likes coffee")
	require.NoError(t, err)
	b, err := mgr.Append(ctx, state, "agent-1", "human", "works remotely")
	require.NoError(t, err)
	require.Equal(t, "likes coffee\nworks remotely", b.Value)
}
