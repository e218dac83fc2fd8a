// Package openai adapts the OpenAI chat-completions API to the
// llm.Provider contract.
package openai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"mirix/internal/config"
	"mirix/internal/llm"
)

type Client struct {
	sdk   openai.Client
	model string
}

func New(cfg config.ProviderConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	return &Client{sdk: openai.NewClient(opts...), model: model}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	useModel := strings.TrimSpace(model)
	if useModel == "" {
		useModel = c.model
	}

	var converted []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		text := joinParts(m.Parts)
		switch m.Role {
		case "system":
			converted = append(converted, openai.SystemMessage(text))
		case "user":
			converted = append(converted, openai.UserMessage(text))
		case "assistant":
			converted = append(converted, openai.AssistantMessage(text))
		case "tool":
			converted = append(converted, openai.ToolMessage(text, m.ToolID))
		}
	}

	toolDefs := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		toolDefs = append(toolDefs, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    useModel,
		Messages: converted,
		Tools:    toolDefs,
	})
	if err != nil {
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, nil
	}
	choice := resp.Choices[0].Message
	out := llm.Message{Role: "assistant"}
	if choice.Content != "" {
		out.Parts = append(out.Parts, llm.PromptPart{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func joinParts(parts []llm.PromptPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Text != "" {
			b.WriteString(p.Text)
		}
		if p.CloudFileURI != "" {
			b.WriteString("\n[blob: " + p.CloudFileURI + "]\n")
		}
	}
	return b.String()
}
