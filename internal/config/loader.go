package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads a YAML config file (if path is non-empty and exists), then
// layers environment-variable overrides on top, mirroring the teacher's
// env-wins-when-set discipline: an explicit YAML value is never silently
// clobbered by an *unset* env var, only by one the operator actually set.
func Load(path string) (CoordinatorConfig, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return CoordinatorConfig{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return CoordinatorConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *CoordinatorConfig) {
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY")); v != "" {
		cfg.Google.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_LOG_PATH")); v != "" {
		cfg.LogPath = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_VECTOR_BACKEND")); v != "" {
		cfg.Vector.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_VECTOR_DSN")); v != "" {
		cfg.Vector.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_S3_BUCKET")); v != "" {
		cfg.S3.Bucket = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_S3_ENDPOINT")); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_UPLOAD_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Upload.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_ORG_ID")); v != "" {
		cfg.OrganizationID = v
	}
	if v := strings.TrimSpace(os.Getenv("MIRIX_OTLP_ENDPOINT")); v != "" {
		cfg.Obs.OTLP = v
	}
}

// HasProviderKey reports whether the named provider has a usable key,
// matching SetModel/SetMemoryModel's "database or env" precedence rule
// from spec §6 (here: YAML-or-env, since there is no separate key table
// outside the Coordinator's own provider-key store).
func (c CoordinatorConfig) HasProviderKey(provider string) bool {
	switch strings.ToLower(provider) {
	case "openai":
		return c.OpenAI.APIKey != ""
	case "anthropic":
		return c.Anthropic.APIKey != ""
	case "google", "gemini":
		return c.Google.APIKey != ""
	default:
		return false
	}
}
