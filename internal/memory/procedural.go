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

// ProceduralManager owns the ProceduralItem entity: how-to entries made
// of an ordered textual step sequence.
type ProceduralManager struct {
	store     persistence.Store
	embedding embedding.Provider
}

func NewProceduralManager(store persistence.Store, emb embedding.Provider) *ProceduralManager {
	return &ProceduralManager{store: store, embedding: emb}
}

type ProceduralFields struct {
	EntryType   string
	Description string
	Steps       string
}

func (m *ProceduralManager) Insert(ctx context.Context, state AgentState, f ProceduralFields) (*persistence.ProceduralItem, error) {
	if strings.TrimSpace(f.Description) == "" {
		return nil, mirixerr.NewInvariantViolation("procedural_memory_insert", "description must be non-empty")
	}
	vecs, err := embedAll(ctx, m.embedding, f.Description, f.Steps)
	if err != nil {
		return nil, fmt.Errorf("procedural insert: embed: %w", err)
	}
	now := time.Now().UTC()
	p := &persistence.ProceduralItem{
		Base: persistence.Base{
			ID:             newID("proc_item"),
			OrganizationID: state.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		EntryType:            f.EntryType,
		Description:          f.Description,
		Steps:                f.Steps,
		DescriptionEmbedding: vecs[0],
		StepsEmbedding:       vecs[1],
	}
	if err := m.store.InsertProcedural(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *ProceduralManager) Update(ctx context.Context, state AgentState, oldIDs []string, newItems []ProceduralFields) ([]*persistence.ProceduralItem, error) {
	for _, id := range oldIDs {
		if err := m.store.DeleteProcedural(ctx, id); err != nil {
			return nil, fmt.Errorf("procedural update: delete %s: %w", id, err)
		}
	}
	out := make([]*persistence.ProceduralItem, 0, len(newItems))
	for _, f := range newItems {
		p, err := m.Insert(ctx, state, f)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *ProceduralManager) DeleteByID(ctx context.Context, id string) error {
	return m.store.DeleteProcedural(ctx, id)
}

func (m *ProceduralManager) Get(ctx context.Context, id string) (*persistence.ProceduralItem, error) {
	return m.store.GetProcedural(ctx, id)
}

func (m *ProceduralManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindProcedural,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	if method == persistence.MethodSemanticMatch && strings.TrimSpace(query) != "" {
		vecs, err := embedAll(ctx, m.embedding, query)
		if err != nil {
			return nil, fmt.Errorf("procedural search: embed query: %w", err)
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

type proceduralItemArgs struct {
	EntryType   string `json:"entry_type"`
	Description string `json:"description"`
	Steps       string `json:"steps"`
}

type proceduralInsertArgs struct {
	Items []proceduralItemArgs `json:"items"`
}

type proceduralUpdateArgs struct {
	OldIDs   []string             `json:"old_ids"`
	NewItems []proceduralItemArgs `json:"new_items"`
}

func (m *ProceduralManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "procedural_memory_insert",
				Description: "Insert one or more new procedural how-to entries.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"items": map[string]any{"type": "array"}},
					"required":   []string{"items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args proceduralInsertArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("procedural_memory_insert: %w", err)
				}
				out := make([]*persistence.ProceduralItem, 0, len(args.Items))
				for _, it := range args.Items {
					p, err := m.Insert(ctx, state, ProceduralFields(it))
					if err != nil {
						return out, err
					}
					out = append(out, p)
				}
				return out, nil
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "procedural_memory_update",
				Description: "Delete the listed procedural item ids and insert replacements; empty new_items means pure delete.",
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
				var args proceduralUpdateArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("procedural_memory_update: %w", err)
				}
				fields := make([]ProceduralFields, 0, len(args.NewItems))
				for _, it := range args.NewItems {
					fields = append(fields, ProceduralFields(it))
				}
				return m.Update(ctx, state, args.OldIDs, fields)
			},
		},
	}
}
