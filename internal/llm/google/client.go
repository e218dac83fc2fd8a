// Package google adapts Gemini to the llm.Provider contract. The original
// Python system is Gemini-first (GEMINI_MODELS in upload_manager.py), so
// this is the default provider for the memory agents.
package google

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"mirix/internal/config"
	"mirix/internal/llm"
)

type Client struct {
	sdk   *genai.Client
	model string
}

func New(ctx context.Context, cfg config.ProviderConfig) (*Client, error) {
	cc := &genai.ClientConfig{APIKey: strings.TrimSpace(cfg.APIKey)}
	sdk, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Client{sdk: sdk, model: model}, nil
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, tools []llm.ToolSchema, model string) (llm.Message, error) {
	useModel := strings.TrimSpace(model)
	if useModel == "" {
		useModel = c.model
	}

	var contents []*genai.Content
	var sysInstruction *genai.Content
	for _, m := range msgs {
		text := joinParts(m.Parts)
		switch m.Role {
		case "system":
			sysInstruction = genai.NewContentFromText(text, genai.RoleUser)
		case "user":
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		case "assistant":
			contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
		}
	}

	var cfg genai.GenerateContentConfig
	cfg.SystemInstruction = sysInstruction
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			schema, _ := json.Marshal(t.Parameters)
			var params genai.Schema
			_ = json.Unmarshal(schema, &params)
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  &params,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, useModel, contents, &cfg)
	if err != nil {
		return llm.Message{}, err
	}

	out := llm.Message{Role: "assistant"}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Parts = append(out.Parts, llm.PromptPart{Text: part.Text})
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: part.FunctionCall.Name,
				Args: args,
			})
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
