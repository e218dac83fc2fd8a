package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mirix/internal/llm"
	"mirix/internal/mirixerr"
	"mirix/internal/persistence"
)

// CoreManager owns the CoreBlock entity: small, always-in-context
// pieces of memory (persona, human profile, …), one per label per
// agent, mutated by append/replace rather than insert/delete (spec
// §3/§4.5.2).
type CoreManager struct {
	store persistence.Store
}

func NewCoreManager(store persistence.Store) *CoreManager {
	return &CoreManager{store: store}
}

func (m *CoreManager) Get(ctx context.Context, agentID, label string) (*persistence.CoreBlock, error) {
	return m.store.GetCoreBlock(ctx, agentID, label)
}

// Upsert writes value verbatim for the (agentID, label) block,
// creating it if absent.
func (m *CoreManager) Upsert(ctx context.Context, state AgentState, agentID, label, value string) (*persistence.CoreBlock, error) {
	existing, err := m.store.GetCoreBlock(ctx, agentID, label)
	now := time.Now().UTC()
	if mirixerr.IsNotFound(err) {
		b := &persistence.CoreBlock{
			Base: persistence.Base{
				ID:             newID("core_block"),
				OrganizationID: state.OrganizationID,
				CreatedAt:      now,
				UpdatedAt:      now,
			},
			AgentID: agentID,
			Label:   label,
			Value:   value,
		}
		if err := m.store.UpsertCoreBlock(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	if err != nil {
		return nil, err
	}
	existing.Value = value
	existing.UpdatedAt = now
	if err := m.store.UpsertCoreBlock(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Append appends "\n"+content to the block's current value (spec
// §4.5.2). Creates the block if it does not yet exist.
func (m *CoreManager) Append(ctx context.Context, state AgentState, agentID, label, content string) (*persistence.CoreBlock, error) {
	existing, err := m.store.GetCoreBlock(ctx, agentID, label)
	if mirixerr.IsNotFound(err) {
		return m.Upsert(ctx, state, agentID, label, content)
	}
	if err != nil {
		return nil, err
	}
	newValue := strings.TrimSpace(existing.Value + "\n" + content)
	return m.Upsert(ctx, state, agentID, label, newValue)
}

// Replace requires old to be an exact substring of the block's current
// value; otherwise it raises InvariantViolation (spec §4.5.2, tested by
// §8 scenario 4).
func (m *CoreManager) Replace(ctx context.Context, state AgentState, agentID, label, old, new string) (*persistence.CoreBlock, error) {
	existing, err := m.store.GetCoreBlock(ctx, agentID, label)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(existing.Value, old) {
		return nil, mirixerr.NewInvariantViolation("core_memory_replace", fmt.Sprintf("old value %q is not a substring of current block %q", old, label))
	}
	newValue := strings.Replace(existing.Value, old, new, 1)
	return m.Upsert(ctx, state, agentID, label, newValue)
}

func (m *CoreManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindCore,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	hits, err := m.store.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return withTimezone(hits, state.Timezone), nil
}

// --- ToolSurface ---

type coreAppendArgs struct {
	Label   string `json:"label"`
	Content string `json:"content"`
}

type coreReplaceArgs struct {
	Label string `json:"label"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

func (m *CoreManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "core_memory_append",
				Description: "Append content to the named core block (persona, human, …), separated by a newline.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label":   map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"label", "content"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args coreAppendArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("core_memory_append: %w", err)
				}
				return m.Append(ctx, state, state.AgentID, args.Label, args.Content)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "core_memory_replace",
				Description: "Replace an exact substring of the named core block's current value with new text; fails if old is not present.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"label": map[string]any{"type": "string"},
						"old":   map[string]any{"type": "string"},
						"new":   map[string]any{"type": "string"},
					},
					"required": []string{"label", "old", "new"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args coreReplaceArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("core_memory_replace: %w", err)
				}
				return m.Replace(ctx, state, state.AgentID, args.Label, args.Old, args.New)
			},
		},
	}
}
