package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mirix/internal/embedding"
	"mirix/internal/llm"
	"mirix/internal/mirixerr"
	"mirix/internal/persistence"
)

// SemanticManager owns the SemanticItem entity.
type SemanticManager struct {
	store     persistence.Store
	embedding embedding.Provider
}

func NewSemanticManager(store persistence.Store, emb embedding.Provider) *SemanticManager {
	return &SemanticManager{store: store, embedding: emb}
}

// SemanticFields is the caller-supplied content for one item.
type SemanticFields struct {
	Concept    string
	Definition string
	Details    string
	Source     string
}

func (m *SemanticManager) Insert(ctx context.Context, state AgentState, f SemanticFields) (*persistence.SemanticItem, error) {
	if strings.TrimSpace(f.Concept) == "" || strings.TrimSpace(f.Definition) == "" {
		return nil, mirixerr.NewInvariantViolation("semantic_memory_insert", "concept and definition must be non-empty")
	}
	vecs, err := embedAll(ctx, m.embedding, f.Concept, f.Definition, f.Details)
	if err != nil {
		return nil, fmt.Errorf("semantic insert: embed: %w", err)
	}
	now := time.Now().UTC()
	it := &persistence.SemanticItem{
		Base: persistence.Base{
			ID:             newID("sem_item"),
			OrganizationID: state.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Concept:             f.Concept,
		Definition:          f.Definition,
		Details:             f.Details,
		Source:              f.Source,
		ConceptEmbedding:    vecs[0],
		DefinitionEmbedding: vecs[1],
		DetailsEmbedding:    vecs[2],
	}
	if err := m.store.InsertSemantic(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

// Update implements the common `_update(old_ids, new_items)` pattern
// (spec §4.5.2): delete every old id, insert every new item. Empty
// newItems means pure delete.
func (m *SemanticManager) Update(ctx context.Context, state AgentState, oldIDs []string, newItems []SemanticFields) ([]*persistence.SemanticItem, error) {
	for _, id := range oldIDs {
		if err := m.store.DeleteSemantic(ctx, id); err != nil {
			return nil, fmt.Errorf("semantic update: delete %s: %w", id, err)
		}
	}
	out := make([]*persistence.SemanticItem, 0, len(newItems))
	for _, f := range newItems {
		it, err := m.Insert(ctx, state, f)
		if err != nil {
			return out, err
		}
		out = append(out, it)
	}
	return out, nil
}

func (m *SemanticManager) DeleteByID(ctx context.Context, id string) error {
	return m.store.DeleteSemantic(ctx, id)
}

func (m *SemanticManager) Get(ctx context.Context, id string) (*persistence.SemanticItem, error) {
	return m.store.GetSemantic(ctx, id)
}

func (m *SemanticManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindSemantic,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	if method == persistence.MethodSemanticMatch && strings.TrimSpace(query) != "" {
		vecs, err := embedAll(ctx, m.embedding, query)
		if err != nil {
			return nil, fmt.Errorf("semantic search: embed query: %w", err)
		}
		q.QueryEmbedding = vecs[0]
	}
	hits, err := m.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return withTimezone(hits, state.Timezone), nil
}

// --- ToolSurface ---

type semanticItemArgs struct {
	Concept    string `json:"concept"`
	Definition string `json:"definition"`
	Details    string `json:"details"`
	Source     string `json:"source"`
}

type semanticInsertArgs struct {
	Items []semanticItemArgs `json:"items"`
}

type semanticUpdateArgs struct {
	OldIDs   []string           `json:"old_ids"`
	NewItems []semanticItemArgs `json:"new_items"`
}

func (m *SemanticManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "semantic_memory_insert",
				Description: "Insert one or more new semantic concept/definition items.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"items": map[string]any{"type": "array"}},
					"required":   []string{"items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args semanticInsertArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("semantic_memory_insert: %w", err)
				}
				out := make([]*persistence.SemanticItem, 0, len(args.Items))
				for _, it := range args.Items {
					s, err := m.Insert(ctx, state, SemanticFields(it))
					if err != nil {
						return out, err
					}
					out = append(out, s)
				}
				return out, nil
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "semantic_memory_update",
				Description: "Delete the listed semantic item ids and insert replacements; empty new_items means pure delete.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"old_ids":   map[string]any{"type": "array"},
						"new_items": map[string]any{"type": "array"},
					},
					"required": []string{"old_ids"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args semanticUpdateArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("semantic_memory_update: %w", err)
				}
				fields := make([]SemanticFields, 0, len(args.NewItems))
				for _, it := range args.NewItems {
					fields = append(fields, SemanticFields(it))
				}
				return m.Update(ctx, state, args.OldIDs, fields)
			},
		},
	}
}
