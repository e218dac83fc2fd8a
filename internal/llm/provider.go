// Package llm defines the narrow LLMClient contract that every memory
// agent and the chat agent talk through. Concrete providers (Anthropic,
// OpenAI, Google) live in subpackages and are swapped behind this
// interface by the Coordinator's SetModel/ProvideAPIKey paths.
package llm

import (
	"context"
	"encoding/json"
)

// ToolCall is one function invocation emitted by a provider's response.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// PromptPart is the sum type DESIGN NOTES §9 calls for in place of the
// original dynamic dict-typed message parts: Text, a cloud blob
// reference, or an inline image.
type PromptPart struct {
	Text         string
	CloudFileURI string
	InlineImage  []byte
	InlineMIME   string
}

// Message is one turn in a conversation handed to a provider. Role is
// "system" | "user" | "assistant" | "tool".
type Message struct {
	Role      string
	Parts     []PromptPart
	ToolID    string
	ToolCalls []ToolCall
}

// ToolSchema describes one callable tool in JSON-Schema-ish shape.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Provider is the LLMClient external collaborator named in spec §1/§6.
// Implementations are responsible for translating Message/ToolSchema into
// their own wire format and back.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, tools []ToolSchema, model string) (Message, error)
}

// ToolResultKind tags how a provider's reply resolved, replacing the
// original's exception-based tool-call parsing per DESIGN NOTES §9.
type ToolResultKind int

const (
	ToolOK ToolResultKind = iota
	ToolMissingToolCall
	ToolInvalidArgs
	ToolProviderError
)

// ToolResult is the tagged-variant outcome of interpreting a chat
// response's transcript, used by Coordinator.SendMessage (spec §6): the
// coordinator looks for a tool-call message whose arguments JSON carries
// a "message" field, and that is the user-facing reply.
type ToolResult struct {
	Kind    ToolResultKind
	Name    string
	Args    json.RawMessage
	Message string
	Err     error
}

// ExtractReply walks the tail of a transcript looking for the last
// tool-call message whose arguments contain a "message" string field.
func ExtractReply(msgs []Message) ToolResult {
	for i := len(msgs) - 1; i >= 0 && i >= len(msgs)-2; i-- {
		m := msgs[i]
		for _, tc := range m.ToolCalls {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(tc.Args, &args); err != nil {
				return ToolResult{Kind: ToolInvalidArgs, Name: tc.Name, Args: tc.Args, Err: err}
			}
			if args.Message == "" {
				continue
			}
			return ToolResult{Kind: ToolOK, Name: tc.Name, Args: tc.Args, Message: args.Message}
		}
	}
	return ToolResult{Kind: ToolMissingToolCall}
}
