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

// ResourceManager owns the ResourceItem entity: reference documents and
// assets. Only summary is embedded per spec §3.
type ResourceManager struct {
	store     persistence.Store
	embedding embedding.Provider
}

func NewResourceManager(store persistence.Store, emb embedding.Provider) *ResourceManager {
	return &ResourceManager{store: store, embedding: emb}
}

type ResourceFields struct {
	Title        string
	Summary      string
	Content      string
	ResourceType string
}

func (m *ResourceManager) Insert(ctx context.Context, state AgentState, f ResourceFields) (*persistence.ResourceItem, error) {
	if strings.TrimSpace(f.Title) == "" {
		return nil, mirixerr.NewInvariantViolation("resource_memory_insert", "title must be non-empty")
	}
	vecs, err := embedAll(ctx, m.embedding, f.Summary)
	if err != nil {
		return nil, fmt.Errorf("resource insert: embed: %w", err)
	}
	now := time.Now().UTC()
	r := &persistence.ResourceItem{
		Base: persistence.Base{
			ID:             newID("res_item"),
			OrganizationID: state.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		Title:            f.Title,
		Summary:          f.Summary,
		Content:          f.Content,
		ResourceType:     f.ResourceType,
		SummaryEmbedding: vecs[0],
	}
	if err := m.store.InsertResource(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *ResourceManager) Update(ctx context.Context, state AgentState, oldIDs []string, newItems []ResourceFields) ([]*persistence.ResourceItem, error) {
	for _, id := range oldIDs {
		if err := m.store.DeleteResource(ctx, id); err != nil {
			return nil, fmt.Errorf("resource update: delete %s: %w", id, err)
		}
	}
	out := make([]*persistence.ResourceItem, 0, len(newItems))
	for _, f := range newItems {
		r, err := m.Insert(ctx, state, f)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *ResourceManager) DeleteByID(ctx context.Context, id string) error {
	return m.store.DeleteResource(ctx, id)
}

func (m *ResourceManager) Get(ctx context.Context, id string) (*persistence.ResourceItem, error) {
	return m.store.GetResource(ctx, id)
}

func (m *ResourceManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindResource,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	if method == persistence.MethodSemanticMatch && strings.TrimSpace(query) != "" {
		vecs, err := embedAll(ctx, m.embedding, query)
		if err != nil {
			return nil, fmt.Errorf("resource search: embed query: %w", err)
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

type resourceItemArgs struct {
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Content      string `json:"content"`
	ResourceType string `json:"resource_type"`
}

type resourceInsertArgs struct {
	Items []resourceItemArgs `json:"items"`
}

type resourceUpdateArgs struct {
	OldIDs   []string           `json:"old_ids"`
	NewItems []resourceItemArgs `json:"new_items"`
}

func (m *ResourceManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "resource_memory_insert",
				Description: "Insert one or more new resource documents/assets.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"items": map[string]any{"type": "array"}},
					"required":   []string{"items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args resourceInsertArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("resource_memory_insert: %w", err)
				}
				out := make([]*persistence.ResourceItem, 0, len(args.Items))
				for _, it := range args.Items {
					r, err := m.Insert(ctx, state, ResourceFields(it))
					if err != nil {
						return out, err
					}
					out = append(out, r)
				}
				return out, nil
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "resource_memory_update",
				Description: "Delete the listed resource item ids and insert replacements; empty new_items means pure delete.",
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
				var args resourceUpdateArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("resource_memory_update: %w", err)
				}
				fields := make([]ResourceFields, 0, len(args.NewItems))
				for _, it := range args.NewItems {
					fields = append(fields, ResourceFields(it))
				}
				return m.Update(ctx, state, args.OldIDs, fields)
			},
		},
	}
}
