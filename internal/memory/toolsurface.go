package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"mirix/internal/llm"
)

// ToolHandler executes one named tool call against a manager, given the
// raw JSON arguments an LLM agent produced.
type ToolHandler func(ctx context.Context, state AgentState, args json.RawMessage) (any, error)

// Tool pairs a callable's schema (what an LLM agent sees) with the
// handler that actually runs it.
type Tool struct {
	Schema  llm.ToolSchema
	Handler ToolHandler
}

// ToolSurface is the aggregate callable-tool projection of all six
// managers, keyed by tool name, handed to an LLM agent's Chat call and
// used by the router to dispatch the tool calls that come back.
type ToolSurface struct {
	tools map[string]Tool
}

// NewToolSurface builds the combined tool surface from every manager.
func NewToolSurface(managers *Managers) *ToolSurface {
	ts := &ToolSurface{tools: make(map[string]Tool)}
	for _, group := range [][]Tool{
		managers.Episodic.Tools(),
		managers.Semantic.Tools(),
		managers.Procedural.Tools(),
		managers.Resource.Tools(),
		managers.KnowledgeVault.Tools(),
		managers.Core.Tools(),
	} {
		for _, t := range group {
			ts.tools[t.Schema.Name] = t
		}
	}
	return ts
}

// Schemas returns every tool's schema, the shape an llm.Provider.Chat
// call needs to offer an agent its callable surface.
func (ts *ToolSurface) Schemas() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(ts.tools))
	for _, t := range ts.tools {
		out = append(out, t.Schema)
	}
	return out
}

// SchemasFor filters Schemas() to the subset whose name is in names; used
// by per-type fan-out dispatch (spec §4.3.1 "fan-out mode") so each
// memory agent sees only its own type's tools.
func (ts *ToolSurface) SchemasFor(names ...string) []llm.ToolSchema {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]llm.ToolSchema, 0, len(names))
	for _, t := range ts.tools {
		if want[t.Schema.Name] {
			out = append(out, t.Schema)
		}
	}
	return out
}

// Dispatch runs the named tool call and returns its result.
func (ts *ToolSurface) Dispatch(ctx context.Context, state AgentState, call llm.ToolCall) (any, error) {
	t, ok := ts.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("memory: unknown tool %q", call.Name)
	}
	return t.Handler(ctx, state, call.Args)
}

// Managers bundles the six memory managers so ToolSurface and
// Reflexion can each take one handle instead of six parameters.
type Managers struct {
	Episodic       *EpisodicManager
	Semantic       *SemanticManager
	Procedural     *ProceduralManager
	Resource       *ResourceManager
	KnowledgeVault *KnowledgeVaultManager
	Core           *CoreManager
}
