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

// EpisodicManager owns the EpisodicEvent entity (spec §3/§4.5).
type EpisodicManager struct {
	store     persistence.Store
	embedding embedding.Provider
}

func NewEpisodicManager(store persistence.Store, emb embedding.Provider) *EpisodicManager {
	return &EpisodicManager{store: store, embedding: emb}
}

// EpisodicFields is the caller-supplied content for one event; Insert
// fills in id/timestamps/embeddings.
type EpisodicFields struct {
	OccurredAt time.Time
	Actor      persistence.Actor
	EventType  string
	Summary    string
	Details    string
}

func (m *EpisodicManager) Insert(ctx context.Context, state AgentState, f EpisodicFields) (*persistence.EpisodicEvent, error) {
	if strings.TrimSpace(f.Summary) == "" {
		return nil, mirixerr.NewInvariantViolation("episodic_memory_insert", "summary must be non-empty")
	}
	vecs, err := embedAll(ctx, m.embedding, f.Summary, f.Details)
	if err != nil {
		return nil, fmt.Errorf("episodic insert: embed: %w", err)
	}
	now := time.Now().UTC()
	e := &persistence.EpisodicEvent{
		Base: persistence.Base{
			ID:             newID("ep_mem"),
			OrganizationID: state.OrganizationID,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		OccurredAt:       f.OccurredAt,
		Actor:            f.Actor,
		EventType:        f.EventType,
		Summary:          f.Summary,
		Details:          f.Details,
		SummaryEmbedding: vecs[0],
		DetailsEmbedding: vecs[1],
	}
	if err := m.store.InsertEpisodic(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Append merges a new summary/details into an existing event by
// concatenation; spec §9 Open Question 3 decides this is an
// unconditional free-text merge with no similarity threshold.
func (m *EpisodicManager) Append(ctx context.Context, id string, newSummary, newDetails string) (*persistence.EpisodicEvent, error) {
	existing, err := m.store.GetEpisodic(ctx, id)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	summary := existing.Summary
	if strings.TrimSpace(newSummary) != "" {
		summary = strings.TrimRight(existing.Summary, "\n") + "\n" + newSummary
		patch["summary"] = summary
	}
	details := existing.Details
	if strings.TrimSpace(newDetails) != "" {
		details = strings.TrimRight(existing.Details, "\n") + "\n" + newDetails
		patch["details"] = details
	}
	if len(patch) == 0 {
		return existing, nil
	}
	vecs, err := embedAll(ctx, m.embedding, summary, details)
	if err != nil {
		return nil, fmt.Errorf("episodic append: embed: %w", err)
	}
	if _, ok := patch["summary"]; ok {
		patch["summary_embedding"] = vecs[0]
	}
	if _, ok := patch["details"]; ok {
		patch["details_embedding"] = vecs[1]
	}
	return m.store.UpdateEpisodic(ctx, id, patch)
}

// Replace deletes every listed event and inserts new ones in their
// place, used to dedup repeated events (spec §4.5.2).
func (m *EpisodicManager) Replace(ctx context.Context, state AgentState, ids []string, newItems []EpisodicFields) ([]*persistence.EpisodicEvent, error) {
	for _, id := range ids {
		if err := m.store.DeleteEpisodic(ctx, id); err != nil {
			return nil, fmt.Errorf("episodic replace: delete %s: %w", id, err)
		}
	}
	out := make([]*persistence.EpisodicEvent, 0, len(newItems))
	for _, f := range newItems {
		e, err := m.Insert(ctx, state, f)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *EpisodicManager) DeleteByID(ctx context.Context, id string) error {
	return m.store.DeleteEpisodic(ctx, id)
}

func (m *EpisodicManager) Get(ctx context.Context, id string) (*persistence.EpisodicEvent, error) {
	return m.store.GetEpisodic(ctx, id)
}

// Search runs §4.5.1's ranking algorithm scoped to episodic events.
func (m *EpisodicManager) Search(ctx context.Context, state AgentState, query, field string, method persistence.SearchMethod, limit int) ([]persistence.SearchHit, error) {
	q := persistence.SearchQuery{
		OrganizationID: state.OrganizationID,
		Kind:           persistence.KindEpisodic,
		Query:          query,
		Field:          field,
		Method:         method,
		Limit:          searchLimit(limit),
		Timezone:       state.Timezone,
	}
	if method == persistence.MethodSemanticMatch && strings.TrimSpace(query) != "" {
		vecs, err := embedAll(ctx, m.embedding, query)
		if err != nil {
			return nil, fmt.Errorf("episodic search: embed query: %w", err)
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

type episodicInsertArgs struct {
	Items []struct {
		OccurredAt time.Time `json:"occurred_at"`
		Actor      string    `json:"actor"`
		EventType  string    `json:"event_type"`
		Summary    string    `json:"summary"`
		Details    string    `json:"details"`
	} `json:"items"`
}

type episodicAppendArgs struct {
	EventID    string `json:"event_id"`
	NewSummary string `json:"new_summary"`
	NewDetails string `json:"new_details"`
}

type episodicReplaceArgs struct {
	EventIDs []string              `json:"event_ids"`
	NewItems []episodicInsertItem `json:"new_items"`
}

type episodicInsertItem struct {
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	EventType  string    `json:"event_type"`
	Summary    string    `json:"summary"`
	Details    string    `json:"details"`
}

type checkEpisodicArgs struct {
	EventIDs []string `json:"event_ids"`
}

func (m *EpisodicManager) Tools() []Tool {
	return []Tool{
		{
			Schema: llm.ToolSchema{
				Name:        "episodic_memory_insert",
				Description: "Insert one or more new episodic events.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"items": map[string]any{"type": "array"},
					},
					"required": []string{"items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args episodicInsertArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("episodic_memory_insert: %w", err)
				}
				out := make([]*persistence.EpisodicEvent, 0, len(args.Items))
				for _, it := range args.Items {
					e, err := m.Insert(ctx, state, EpisodicFields{
						OccurredAt: it.OccurredAt,
						Actor:      persistence.Actor(it.Actor),
						EventType:  it.EventType,
						Summary:    it.Summary,
						Details:    it.Details,
					})
					if err != nil {
						return out, err
					}
					out = append(out, e)
				}
				return out, nil
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "episodic_memory_append",
				Description: "Merge new summary/details text into an existing episodic event.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"event_id":    map[string]any{"type": "string"},
						"new_summary": map[string]any{"type": "string"},
						"new_details": map[string]any{"type": "string"},
					},
					"required": []string{"event_id"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args episodicAppendArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("episodic_memory_append: %w", err)
				}
				return m.Append(ctx, args.EventID, args.NewSummary, args.NewDetails)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "episodic_memory_replace",
				Description: "Delete the listed episodic events and insert replacements (used for deduping repeated events).",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"event_ids": map[string]any{"type": "array"},
						"new_items": map[string]any{"type": "array"},
					},
					"required": []string{"event_ids", "new_items"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args episodicReplaceArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("episodic_memory_replace: %w", err)
				}
				fields := make([]EpisodicFields, 0, len(args.NewItems))
				for _, it := range args.NewItems {
					fields = append(fields, EpisodicFields{
						OccurredAt: it.OccurredAt,
						Actor:      persistence.Actor(it.Actor),
						EventType:  it.EventType,
						Summary:    it.Summary,
						Details:    it.Details,
					})
				}
				return m.Replace(ctx, state, args.EventIDs, fields)
			},
		},
		{
			Schema: llm.ToolSchema{
				Name:        "check_episodic_memory",
				Description: "Inspect the current contents of the listed episodic event ids.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"event_ids": map[string]any{"type": "array"},
					},
					"required": []string{"event_ids"},
				},
			},
			Handler: func(ctx context.Context, state AgentState, raw json.RawMessage) (any, error) {
				var args checkEpisodicArgs
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("check_episodic_memory: %w", err)
				}
				out := make([]*persistence.EpisodicEvent, 0, len(args.EventIDs))
				for _, id := range args.EventIDs {
					e, err := m.Get(ctx, id)
					if err != nil {
						continue
					}
					out = append(out, e)
				}
				return out, nil
			},
		},
	}
}
