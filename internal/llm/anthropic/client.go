// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// contract.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mirix/internal/config"
	"mirix/internal/llm"
)

const defaultMaxTokens int64 = 4096

type Client struct {
	sdk   anthropicsdk.Client
	model string
}

func New(cfg config.ProviderConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	useModel := strings.TrimSpace(model)
	if useModel == "" {
		useModel = c.model
	}

	var sys string
	var converted []anthropicsdk.MessageParam
	for _, m := range msgs {
		text := joinParts(m.Parts)
		switch m.Role {
		case "system":
			sys = sys + text
		case "user":
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(text)))
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(text)))
		}
	}

	toolDefs := make([]anthropicsdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, _ := json.Marshal(t.Parameters)
		var inputSchema anthropicsdk.ToolInputSchemaParam
		_ = json.Unmarshal(schema, &inputSchema)
		toolDefs = append(toolDefs, anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: inputSchema,
			},
		})
	}

	resp, err := c.sdk.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(useModel),
		MaxTokens: defaultMaxTokens,
		System:    []anthropicsdk.TextBlockParam{{Text: sys}},
		Messages:  converted,
		Tools:     toolDefs,
	})
	if err != nil {
		return llm.Message{}, err
	}

	out := llm.Message{Role: "assistant"}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			out.Parts = append(out.Parts, llm.PromptPart{Text: b.Text})
		case anthropicsdk.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: b.ID, Name: b.Name, Args: json.RawMessage(b.Input)})
		}
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
