// Package router implements the MetaRouter (spec §4.4): given a
// batched prompt and the set of cloud file URIs it references, it
// either dispatches to a single meta-memory agent that fans out via a
// trigger_memory_update tool call, or dispatches the identical prompt
// directly and concurrently to all six memory agents.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"mirix/internal/agentrt"
	"mirix/internal/llm"
	"mirix/internal/memory"
	"mirix/internal/queue"
)

// triggerMemoryUpdateTool is the meta agent's only callable in routed
// mode -- it names which memory types should absorb this batch and
// what each should specifically extract (SPEC_FULL.md's ToolSurface
// additions, fixing the exact argument shape from
// original_source/mirix/functions/function_sets/memory_tools.py).
var triggerMemoryUpdateTool = llm.ToolSchema{
	Name:        "trigger_memory_update",
	Description: "Select which memory types this batch of content should update, with per-type extraction instructions.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory_types": map[string]any{"type": "array"},
			"instructions": map[string]any{"type": "array"},
		},
		"required": []string{"memory_types", "instructions"},
	},
}

type triggerMemoryUpdateArgs struct {
	MemoryTypes  []string `json:"memory_types"`
	Instructions []string `json:"instructions"`
}

// MetaRouter is the routed/direct dispatcher.
type MetaRouter struct {
	Queue *queue.Queue
	Tools *memory.ToolSurface

	// RoutedMode selects strategy (spec §9 Open Question 2): true runs
	// the single meta-memory agent + trigger_memory_update fan-out,
	// false dispatches directly and in parallel to all six agents.
	RoutedMode bool

	MetaAgent    agentrt.Identity
	MemoryAgents map[string]agentrt.Identity // keyed by "episodic", "semantic", ...

	OrganizationID string
}

// toolNamesByType mirrors reflexion's per-type tool allow-list so a
// fan-out dispatch to one memory agent exposes only its own tools.
var toolNamesByType = map[string][]string{
	"episodic":        {"episodic_memory_insert", "episodic_memory_append", "episodic_memory_replace", "check_episodic_memory"},
	"semantic":        {"semantic_memory_insert", "semantic_memory_update"},
	"procedural":      {"procedural_memory_insert", "procedural_memory_update"},
	"resource":        {"resource_memory_insert", "resource_memory_update"},
	"knowledge_vault": {"knowledge_vault_insert", "knowledge_vault_update"},
	"core":            {"core_memory_append", "core_memory_replace"},
}

var memoryTypeOrder = []string{"episodic", "semantic", "procedural", "resource", "knowledge_vault", "core"}

// Dispatch mutates memory from one batched prompt, per spec §4.4.
func (r *MetaRouter) Dispatch(ctx context.Context, parts []llm.PromptPart) error {
	if r.RoutedMode {
		return r.dispatchRouted(ctx, parts)
	}
	return r.dispatchDirect(ctx, parts)
}

func (r *MetaRouter) dispatchRouted(ctx context.Context, parts []llm.PromptPart) error {
	msgs := []llm.Message{{Role: "user", Parts: parts}}
	reply, err := r.MetaAgent.SendMessage(ctx, r.Queue, msgs, []llm.ToolSchema{triggerMemoryUpdateTool})
	if err != nil {
		return fmt.Errorf("router: meta-memory agent: %w", err)
	}

	var args *triggerMemoryUpdateArgs
	for _, tc := range reply.ToolCalls {
		if tc.Name != "trigger_memory_update" {
			continue
		}
		var a triggerMemoryUpdateArgs
		if err := json.Unmarshal(tc.Args, &a); err != nil {
			return fmt.Errorf("router: trigger_memory_update: invalid args: %w", err)
		}
		args = &a
		break
	}
	if args == nil {
		// The meta agent decided nothing needed updating; this is a
		// valid outcome, not an error.
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, memType := range args.MemoryTypes {
		memType := memType
		instruction := ""
		if i < len(args.Instructions) {
			instruction = args.Instructions[i]
		}
		g.Go(func() error {
			return r.dispatchToType(gctx, memType, append(parts, llm.PromptPart{Text: instruction}))
		})
	}
	return g.Wait()
}

func (r *MetaRouter) dispatchDirect(ctx context.Context, parts []llm.PromptPart) error {
	full := append(append([]llm.PromptPart{}, parts...), llm.PromptPart{Text: fanOutDirective})

	g, gctx := errgroup.WithContext(ctx)
	for _, memType := range memoryTypeOrder {
		memType := memType
		g.Go(func() error {
			return r.dispatchToType(gctx, memType, full)
		})
	}
	return g.Wait()
}

const fanOutDirective = "Extract only the information relevant to your own memory type from the content above."

func (r *MetaRouter) dispatchToType(ctx context.Context, memType string, parts []llm.PromptPart) error {
	agent, ok := r.MemoryAgents[memType]
	if !ok {
		return fmt.Errorf("router: no agent registered for memory type %q", memType)
	}
	names := toolNamesByType[memType]
	reply, err := agent.SendMessage(ctx, r.Queue, []llm.Message{{Role: "user", Parts: parts}}, r.Tools.SchemasFor(names...))
	if err != nil {
		// Per spec §7 propagation policy, a manager-level/agent-level
		// failure is logged by the caller and must not abort sibling
		// dispatches -- the errgroup still records this member's
		// error, but callers using dispatchDirect/dispatchRouted in
		// fire-and-forget mode should prefer DispatchBestEffort below.
		return fmt.Errorf("router: dispatch to %s: %w", memType, err)
	}
	state := memory.AgentState{OrganizationID: r.OrganizationID, AgentID: agent.ID}
	for _, call := range reply.ToolCalls {
		if _, err := r.Tools.Dispatch(ctx, state, call); err != nil {
			return fmt.Errorf("router: %s tool %s: %w", memType, call.Name, err)
		}
	}
	return nil
}

// DispatchBestEffort runs Dispatch but never lets one memory type's
// failure keep its siblings from completing (spec §7: "logs per-agent
// failures but does not abort sibling dispatches"). It returns a map of
// memory type -> error for every dispatched type that failed, in both
// modes; in routed mode a failure of the meta agent itself is recorded
// under "meta" and nothing is dispatched.
func (r *MetaRouter) DispatchBestEffort(ctx context.Context, parts []llm.PromptPart) map[string]error {
	failures := make(map[string]error)
	var mu sync.Mutex

	record := func(memType string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		failures[memType] = err
		mu.Unlock()
	}

	if r.RoutedMode {
		msgs := []llm.Message{{Role: "user", Parts: parts}}
		reply, err := r.MetaAgent.SendMessage(ctx, r.Queue, msgs, []llm.ToolSchema{triggerMemoryUpdateTool})
		if err != nil {
			record("meta", err)
			return failures
		}
		var args *triggerMemoryUpdateArgs
		for _, tc := range reply.ToolCalls {
			if tc.Name != "trigger_memory_update" {
				continue
			}
			var a triggerMemoryUpdateArgs
			if jerr := json.Unmarshal(tc.Args, &a); jerr == nil {
				args = &a
			}
			break
		}
		if args == nil {
			return failures
		}
		var wg sync.WaitGroup
		for i, memType := range args.MemoryTypes {
			instruction := ""
			if i < len(args.Instructions) {
				instruction = args.Instructions[i]
			}
			wg.Add(1)
			go func(memType, instruction string) {
				defer wg.Done()
				record(memType, r.dispatchToType(ctx, memType, append(append([]llm.PromptPart{}, parts...), llm.PromptPart{Text: instruction})))
			}(memType, instruction)
		}
		wg.Wait()
		return failures
	}

	full := append(append([]llm.PromptPart{}, parts...), llm.PromptPart{Text: fanOutDirective})
	var wg sync.WaitGroup
	for _, memType := range memoryTypeOrder {
		wg.Add(1)
		go func(memType string) {
			defer wg.Done()
			record(memType, r.dispatchToType(ctx, memType, full))
		}(memType)
	}
	wg.Wait()
	return failures
}
