// Package embedding implements the EmbeddingProvider external interface
// (spec §2/§6): embed(text) -> vector<f32, D>, zero-padded to the
// configured maximum dimension for storage.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mirix/internal/config"
)

// Provider is the EmbeddingProvider contract.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTPProvider calls a configurable HTTP embedding endpoint, grounded in
// the same request/response shape as an OpenAI-compatible /v1/embeddings
// API, and zero-pads every vector to cfg.MaxDimensions.
type HTTPProvider struct {
	cfg config.EmbeddingConfig
}

func NewHTTPProvider(cfg config.EmbeddingConfig) *HTTPProvider { return &HTTPProvider{cfg: cfg} }

func (p *HTTPProvider) Dimensions() int { return p.cfg.MaxDimensions }

func (p *HTTPProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	vecs, err := embedText(ctx, p.cfg, inputs)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		vecs[i] = padTo(v, p.cfg.MaxDimensions)
	}
	return vecs, nil
}

// padTo zero-pads (or truncates, defensively) v to exactly d dimensions.
func padTo(v []float32, d int) []float32 {
	if d <= 0 || len(v) == d {
		return v
	}
	out := make([]float32, d)
	copy(out, v)
	return out
}

func embedText(ctx context.Context, cfg config.EmbeddingConfig, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	reqBody, _ := json.Marshal(embedReq{Model: cfg.Model, Input: inputs})
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	url := cfg.BaseURL + cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	} else if cfg.APIHeader != "" {
		req.Header.Set(cfg.APIHeader, cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embeddings error: %s: %s", resp.Status, string(bodyBytes))
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		n := len(bodyBytes)
		if n > 200 {
			n = 200
		}
		return nil, fmt.Errorf("failed to parse embedding response (input count: %d, response: %s): %w",
			len(inputs), string(bodyBytes[:n]), err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability verifies that the embedding endpoint is reachable.
func CheckReachability(ctx context.Context, cfg config.EmbeddingConfig) error {
	_, err := embedText(ctx, cfg, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
