package coordinator

import (
	"context"
	"fmt"
	"strings"

	"mirix/internal/upload"
)

// memoryModelAllowList restricts SetMemoryModel to the short list of
// models the six memory/reflexion/meta agents are vetted against
// (spec §4.6: "Memory model is restricted to a short allow-list").
var memoryModelAllowList = map[string]bool{
	"gemini-2.0-flash": true,
	"gemini-2.5-flash": true,
	"gpt-4o-mini":       true,
	"claude-haiku-4-5":  true,
}

// SetModelResult is SetModel/SetMemoryModel's structured return value
// (spec §4.6/§7: MissingAPIKey is reported, not raised).
type SetModelResult struct {
	Success     bool
	MissingKeys []string
}

// SetModel validates that the named model's provider key is available
// and, if so, switches the chat agent to it.
func (c *Coordinator) SetModel(name string) (SetModelResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider := providerForModel(name)
	if c.missingKeys[provider] {
		return SetModelResult{Success: false, MissingKeys: []string{provider}}, nil
	}

	c.cfg.Agent.ModelName = name
	if err := c.rebuildAgents(); err != nil {
		return SetModelResult{}, err
	}
	c.wireRouterAgents()
	c.wireReflexionAgents()
	return SetModelResult{Success: true}, nil
}

// SetMemoryModel validates name against the allow-list and the
// provider-key requirement, then switches every memory/reflexion/meta
// agent to it.
func (c *Coordinator) SetMemoryModel(name string) (SetModelResult, error) {
	if !memoryModelAllowList[name] {
		return SetModelResult{}, fmt.Errorf("coordinator: %q is not in the memory model allow-list", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	provider := providerForModel(name)
	if c.missingKeys[provider] {
		return SetModelResult{Success: false, MissingKeys: []string{provider}}, nil
	}

	c.cfg.MemoryModelName = name
	if err := c.rebuildAgents(); err != nil {
		return SetModelResult{}, err
	}
	c.wireRouterAgents()
	c.wireReflexionAgents()
	return SetModelResult{Success: true}, nil
}

// ProvideAPIKey sets a provider's key in the Coordinator's in-memory
// config and rebuilds the agents from it; the key is not written to the
// Store. For the blob provider ("blob"/"s3") the key becomes the S3
// access key, the UploadManager is closed and rebuilt over the existing
// BlobStore (whose client is not re-created), and Reconcile runs.
func (c *Coordinator) ProvideAPIKey(ctx context.Context, provider, value string) error {
	c.mu.Lock()

	switch strings.ToLower(provider) {
	case "openai":
		c.cfg.OpenAI.APIKey = value
	case "anthropic":
		c.cfg.Anthropic.APIKey = value
	case "google", "gemini":
		c.cfg.Google.APIKey = value
	case "blob", "s3":
		c.cfg.S3.AccessKey = value
	default:
		c.mu.Unlock()
		return fmt.Errorf("coordinator: unknown provider %q", provider)
	}

	if err := c.rebuildAgents(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.wireRouterAgents()
	c.wireReflexionAgents()

	isBlob := strings.ToLower(provider) == "blob" || strings.ToLower(provider) == "s3"
	c.mu.Unlock()

	if isBlob {
		c.mu.Lock()
		c.upload.Close()
		c.upload = upload.New(c.cfg.Upload, c.store, c.blobs)
		c.accumulator.SetUploader(c.upload)
		c.mu.Unlock()
		if err := c.Reconcile(ctx); err != nil {
			return fmt.Errorf("coordinator: provide api key: reconcile: %w", err)
		}
	}
	return nil
}
