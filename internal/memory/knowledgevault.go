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

var validSensitivity = map[persistence.Sensitivity]bool{
	persistence.SensitivityLow:    true,
	persistence.SensitivityMedium: true,
	persistence.SensitivityHigh:  true,
}

// KnowledgeVaultManager owns the KnowledgeVaultItem entity: sensitive
// credential-like facts, stored verbatim (spec §3 "secret_value stored
// verbatim"; end-to-end encryption is an explicit Non-goal per §1).
type KnowledgeVaultManager struct {
	store     persistence.Store
	embedding embedding.Provider
}

func NewKnowledgeVaultManager(store persistence.Store, emb embedding.Provider) *KnowledgeVaultManager {
	return &KnowledgeVaultManager{store: store, embedding: emb}
}

type KnowledgeVaultFields struct {
	EntryType   string
	Source      string
	Sensitivity persistence.Sensitivity
	SecretValue string
	Description string
}

func (m *KnowledgeVaultManager) Insert(ctx context.Context, state AgentState, f KnowledgeVaultFields) (*persistence.KnowledgeVaultItem, error) {
	if !validSensitivity[f.Sensitivity] {
		return nil, mirixerr.NewInvariantViolation("knowledge_vault_insert", fmt.Sprintf("invalid sensitivity %q", f.Sensitivity))
	}
	vecs, err := embedAll(ctx, m.embedding, f.Description)
	if err != nil {
		return nil, fmt.Errorf("knowledge vault insert: embed: %w", err)
	}
	now := time.Now().UTC()
	k := &persistence.KnowledgeVaultItem{
		Base: persistence.Base{
			ID:             newID("kv_item"),
			OrganizationID: state.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		EntryType:            f.EntryType,
		Source:               f.Source,
		Sensitivity:          f.Sensitivity,
		SecretValue:          f.SecretValue,
		Description:          f.Description,
		DescriptionEmbedding: vecs[0],
	}
	if err := m.store.InsertKnowledgeVault(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

func (m *KnowledgeVaultManager) Update(ctx context.Context, state AgentState, oldIDs []string, newItems []KnowledgeVaultFields) ([]*persistence.KnowledgeVaultItem, error) {
	for _, id := range oldIDs {
		if err := m.store.DeleteKnowledgeVault(ctx, id); err != nil {
			return nil, fmt.Errorf("knowledge vault update: delete %s: %w", id, err)
		}
	}
	out := make([]*persistence.KnowledgeVaultItem, 0, len(newItems))
	for _, f := range newItems {
		k, err := m.Insert(ctx, state, f)
		if err != nil {
			return out, err
		}
		out = append(out, k)
	}
	return out, nil
}

func (m *KnowledgeVaultManager) DeleteByID(ctx context.Context, id string) error {
	return m.store.DeleteKnowledgeVault(ctx, id)
}

func (m *KnowledgeVaultManager) Get(ctx context.Context, id string) (*persistence.KnowledgeVaultItem, error) {
	return m.store.GetKnowledgeVault(ctx, id)
}

func (m *KnowledgeVaultManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindKnowledgeVault,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	if method == persistence.MethodSemanticMatch && strings.TrimSpace(query) != "" {
		vecs, err := embedAll(ctx, m.embedding, query)
		if err != nil {
			return nil, fmt.Errorf("knowledge vault search: embed query: %w", err)
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

type knowledgeVaultItemArgs struct {
	EntryType   string `json:"entry_type"`
	Source      string `json:"source"`
	Sensitivity string `json:"sensitivity"`
	SecretValue string `json:"secret_value"`
	Description string `json:"description"`
}

type knowledgeVaultInsertArgs struct {
	Items []knowledgeVaultItemArgs `json:"items"`
}

type knowledgeVaultUpdateArgs struct {
	OldIDs   []string                 `json:"old_ids"`
	NewItems []knowledgeVaultItemArgs `json:"new_items"`
}

func toKVFields(a knowledgeVaultItemArgs) KnowledgeVaultFields {
	return KnowledgeVaultFields{
		EntryType:   a.EntryType,
		Source:      a.Source,
		Sensitivity: persistence.Sensitivity(a.Sensitivity),
		SecretValue: a.SecretValue,
		Description: a.Description,
	}
}

func (m *KnowledgeVaultManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "knowledge_vault_insert",
				Description: "Insert one or more new knowledge vault entries (credentials, keys, sensitive facts). sensitivity must be low, medium, or high.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{"items": map[string]any{"type": "array"}},
					"required":   []string{"items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args knowledgeVaultInsertArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("knowledge_vault_insert: %w", err)
				}
				out := make([]*persistence.KnowledgeVaultItem, 0, len(args.Items))
				for _, it := range args.Items {
					k, err := m.Insert(ctx, state, toKVFields(it))
					if err != nil {
						return out, err
					}
					out = append(out, k)
				}
				return out, nil
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "knowledge_vault_update",
				Description: "Delete the listed knowledge vault item ids and insert replacements; empty new_items means pure delete.",
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
				var args knowledgeVaultUpdateArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("knowledge_vault_update: %w", err)
				}
				fields := make([]KnowledgeVaultFields, 0, len(args.NewItems))
				for _, it := range args.NewItems {
					fields = append(fields, toKVFields(it))
				}
				return m.Update(ctx, state, args.OldIDs, fields)
			},
		},
	}
}
