// Package agentrt provides the narrow AgentRuntime seam DESIGN NOTES §9
// calls for in place of the original's cyclic agent/tool/client
// references: an agent identity exposes only SendMessage, and tools
// reach the Store through the typed AgentState handed to them at
// registration (see internal/memory.AgentState) rather than through a
// shared mutable client reference.
package agentrt

import (
	"context"
	"fmt"

	"mirix/internal/llm"
	"mirix/internal/queue"
)

// Identity names one callable LLM agent: a memory-type agent
// ("episodic", "semantic", …), the meta-memory agent, the reflexion
// agent, or the chat agent. AgentType is the MessageQueue FIFO lane it
// serializes through; two identities may share an AgentType when they
// must never run concurrently with each other.
type Identity struct {
	ID        string
	AgentType string
	Model     string
	Provider  llm.Provider
}

// SendMessage enqueues one round trip through q's per-AgentType FIFO
// lane and runs it against the identity's Provider (spec §4.2/§6:
// LLMClient.SendMessage(agentID, role, message|parts, extras)).
func (a Identity) SendMessage(ctx context.Context, q *queue.Queue, msgs []llm.Message, tools []llm.ToolSchema) (llm.Message, error) {
	resp, err := q.Send(ctx, a.ID, func(ctx context.Context) (any, error) {
		return a.Provider.Chat(ctx, msgs, tools, a.Model)
	}, a.AgentType)
	if err != nil {
		return llm.Message{}, err
	}
	msg, ok := resp.(llm.Message)
	if !ok {
		return llm.Message{}, fmt.Errorf("agentrt: unexpected response type %T from %s", resp, a.ID)
	}
	return msg, nil
}
