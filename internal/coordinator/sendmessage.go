package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mirix/internal/accumulator"
	"mirix/internal/llm"
	"mirix/internal/mirixerr"
)

// Observation is the caller-facing input to SendMessage: media paths
// plus any text, identical in shape to accumulator.RawObservation so
// Coordinator doesn't leak the accumulator's internal types further
// than necessary.
type Observation struct {
	ImagePaths []string
	Text       string
}

// SendMessage is the Coordinator's ingest/chat entrypoint (spec §4.6):
// when memorizing is true the observation is only buffered for later
// flush to memory; otherwise it is answered immediately by the chat
// agent.
func (c *Coordinator) SendMessage(ctx context.Context, obs Observation, memorizing bool) (string, error) {
	raw := accumulator.RawObservation{ImagePaths: obs.ImagePaths, Text: obs.Text}

	if memorizing {
		if err := c.accumulator.Add(ctx, raw, time.Now(), true); err != nil {
			return "", fmt.Errorf("coordinator: accumulator add: %w", err)
		}
		c.flushIfReady(ctx)
		return "", nil
	}

	c.mu.RLock()
	chat := c.chatAgent
	includeImages := c.cfg.IncludeRecentScreenshots
	c.mu.RUnlock()

	if chat.Provider == nil {
		return mirixerr.ErrResponseFailed, mirixerr.NewLLMError(mirixerr.ErrResponseFailed, fmt.Errorf("no provider configured for model %q", chat.Model))
	}

	parts := []llm.PromptPart{{Text: obs.Text}}
	if includeImages {
		for _, img := range c.accumulator.RecentImagesForChat(4) {
			parts = append(parts, llm.PromptPart{CloudFileURI: img.Blob.URI})
		}
	}

	msgs := []llm.Message{{Role: "user", Parts: parts}}
	reply, err := chat.SendMessage(ctx, c.queue, msgs, c.toolSurface.Schemas())
	if err != nil {
		return mirixerr.ErrResponseFailed, mirixerr.NewLLMError(mirixerr.ErrResponseFailed, err)
	}

	result := llm.ExtractReply(append(msgs, reply))
	if result.Kind != llm.ToolOK {
		token := mirixerr.ErrNoToolCall
		if result.Kind == llm.ToolInvalidArgs {
			token = mirixerr.ErrParsingException
		}
		return token, mirixerr.NewLLMError(token, fmt.Errorf("chat agent reply did not resolve to a user-facing message"))
	}

	c.accumulator.RecordSnippet(accumulator.Snippet{Timestamp: time.Now(), Role: "user", Text: obs.Text})
	c.accumulator.RecordSnippet(accumulator.Snippet{Timestamp: time.Now(), Role: "assistant", Text: result.Message})

	return result.Message, nil
}

// Ask is the retrieval entrypoint named in the overview: a SendMessage
// call that never buffers, always answers immediately from the chat
// agent and the memory tools it has access to.
func (c *Coordinator) Ask(ctx context.Context, query string) (string, error) {
	return c.SendMessage(ctx, Observation{Text: query}, false)
}

// flushIfReady drains every ready prefix of the accumulator's buffer
// into the MetaRouter, best-effort: per spec §7, a per-agent failure
// must never block the accumulator from eventually flushing unrelated
// observations.
func (c *Coordinator) flushIfReady(ctx context.Context) {
	c.accumulator.DetectTimeouts()
	limit := c.cfg.Accumulator.TemporaryMessageLimit
	ready := c.accumulator.ShouldFlush(limit)
	if len(ready) == 0 {
		return
	}

	directive := accumulator.FanOutDirective
	if c.cfg.RoutedMode {
		directive = accumulator.RoutedDirective
	}
	prompt, err := accumulator.BuildPrompt(ready, c.transcriber, nil, directive)
	if err != nil {
		return
	}

	failures := c.router.DispatchBestEffort(ctx, prompt)
	for memType, err := range failures {
		log.Warn().Err(err).Str("memory_type", memType).Msg("coordinator: flush dispatch failed")
	}
	c.accumulator.Trim(len(ready))
	c.upload.Reconcile(ctx)
}
