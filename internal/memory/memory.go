// Package memory implements the six memory managers (spec §4.5):
// Episodic, Semantic, Procedural, Resource, KnowledgeVault, and Core.
// Each owns one entity type in the Store, computes embeddings for its
// embedded fields through an EmbeddingProvider, and exposes an
// insert/update/delete/search contract plus a ToolSurface that projects
// its operations as named tools an LLM agent can call.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"mirix/internal/embedding"
	"mirix/internal/mirixerr"
	"mirix/internal/persistence"
)

// AgentState is the handle managers receive instead of binding to a
// process-wide singleton (DESIGN NOTES §9: "runtime monkeypatched
// singletons become explicit handles"). It carries the organization
// and caller context every Insert/Update call needs.
type AgentState struct {
	OrganizationID string
	AgentID        string
	Timezone       *time.Location
}

// newID mints an opaque "{prefix}_{uuid}" id per spec §6.
func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// embedAll embeds each non-empty text in order, returning parallel
// vectors; used so one Insert/Update call makes a single batched
// Embed request instead of one per field.
func embedAll(ctx context.Context, prov embedding.Provider, texts ...string) ([][]float32, error) {
	idx := make([]int, 0, len(texts))
	nonEmpty := make([]string, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			idx = append(idx, i)
			nonEmpty = append(nonEmpty, t)
		}
	}
	out := make([][]float32, len(texts))
	if len(nonEmpty) == 0 {
		return out, nil
	}
	vecs, err := prov.Embed(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}
	for j, i := range idx {
		out[i] = vecs[j]
	}
	return out, nil
}

// withTimezone converts occurred_at/created_at fields on a slice of
// hits to the caller's requested timezone, the post-processing step
// named in spec §4.5.1 and grounded in original_source's
// update_timezone decorator (now a plain helper rather than a
// per-language decorator, per SPEC_FULL.md's MemoryManagers
// additions).
func withTimezone(hits []persistence.SearchHit, tz *time.Location) []persistence.SearchHit {
	if tz == nil {
		return hits
	}
	for i := range hits {
		hits[i].CreatedAt = hits[i].CreatedAt.In(tz)
		if e, ok := hits[i].Entity.(*persistence.EpisodicEvent); ok {
			e.OccurredAt = e.OccurredAt.In(tz)
		}
	}
	return hits
}

func searchLimit(l int) int {
	if l <= 0 {
		return 10
	}
	return l
}

// notFoundErr is a small convenience so every manager raises the same
// taxonomy member (spec §7) for a missing id.
func notFoundErr(kind, id string) error { return mirixerr.NewNotFound(kind, id) }
