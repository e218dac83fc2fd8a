// Package config loads the YAML + environment configuration surface for a
// mirix agent: provider credentials, storage backends, and the handful of
// tunables named in the specification (upload concurrency, accumulator
// limits, reflexion schedule).
package config

// AgentConfig is the YAML-recognized configuration for one agent, per the
// EXTERNAL INTERFACES section of the spec: agent_name, model_name,
// is_screen_monitor, model_endpoint, api_key, generation_config.
type AgentConfig struct {
	AgentName       string         `yaml:"agent_name"`
	ModelName       string         `yaml:"model_name"`
	IsScreenMonitor bool           `yaml:"is_screen_monitor"`
	ModelEndpoint   string         `yaml:"model_endpoint"`
	APIKey          string         `yaml:"api_key"`
	GenerationConfig map[string]any `yaml:"generation_config"`
}

// ProviderConfig holds the base URL/model/key for one LLM provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// S3SSEConfig configures server-side encryption for the S3 backend.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "none" | "sse-s3" | "sse-kms"
	KMSKeyID string `yaml:"kms_key_id"`
}

// S3Config configures the BlobStore's S3-compatible backend.
type S3Config struct {
	Endpoint              string      `yaml:"endpoint"`
	Region                string      `yaml:"region"`
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	AccessKey             string      `yaml:"access_key"`
	SecretKey             string      `yaml:"secret_key"`
	UsePathStyle          bool        `yaml:"use_path_style"`
	SSE                   S3SSEConfig `yaml:"sse"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify"`
}

// VectorConfig selects and configures the Store's vector backend.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // "memory" | "pgvector" | "qdrant"
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // "cosine" | "l2" | "ip"
}

// EmbeddingConfig configures the HTTP embedding endpoint.
type EmbeddingConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Path           string            `yaml:"path"`
	Model          string            `yaml:"model"`
	APIKey         string            `yaml:"api_key"`
	APIHeader      string            `yaml:"api_header"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	MaxDimensions  int               `yaml:"max_dimensions"`
}

// UploadConfig tunes the UploadManager's worker pool and retry policy.
type UploadConfig struct {
	Workers             int     `yaml:"workers"`
	MaxRetries          int     `yaml:"max_retries"`
	RetryBackoffSeconds float64 `yaml:"retry_backoff_seconds"`
	AttemptTimeoutSec   float64 `yaml:"attempt_timeout_seconds"`
	CompressQuality     int     `yaml:"compress_quality"`
	CompressMaxWidth    int     `yaml:"compress_max_width"`
	CompressMaxHeight   int     `yaml:"compress_max_height"`
	CleanupThreshold    int     `yaml:"cleanup_threshold"`
}

// AccumulatorConfig tunes the TemporaryAccumulator.
type AccumulatorConfig struct {
	TemporaryMessageLimit int     `yaml:"temporary_message_limit"`
	UploadTimeoutSeconds  float64 `yaml:"upload_timeout_seconds"`
}

// ObsConfig configures the OTLP exporter observability.InitOTel talks
// to; left zero-valued (OTLP == "") to skip observability entirely.
type ObsConfig struct {
	OTLP           string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// CoordinatorConfig is the top-level process configuration.
type CoordinatorConfig struct {
	Agent                    AgentConfig       `yaml:"agent"`
	Obs                      ObsConfig         `yaml:"obs"`
	MemoryModelName          string            `yaml:"memory_model_name"`
	TimezoneStr              string            `yaml:"timezone_str"`
	ActivePersonaName        string            `yaml:"active_persona_name"`
	IncludeRecentScreenshots bool              `yaml:"include_recent_screenshots"`
	RoutedMode               bool              `yaml:"routed_mode"` // spec §9 Open Question 2: replaces SKIP_META_MEMORY_MANAGER
	MaximumImagesInCloud     int               `yaml:"maximum_num_images_in_cloud"`
	ReflexionIntervalMinutes int               `yaml:"reflexion_interval_minutes"`
	OpenAI                   ProviderConfig    `yaml:"openai"`
	Anthropic                ProviderConfig    `yaml:"anthropic"`
	Google                   ProviderConfig    `yaml:"google"`
	S3                       S3Config          `yaml:"s3"`
	Vector                   VectorConfig      `yaml:"vector"`
	Embedding                EmbeddingConfig   `yaml:"embedding"`
	Upload                   UploadConfig      `yaml:"upload"`
	Accumulator              AccumulatorConfig `yaml:"accumulator"`
	LogLevel                 string            `yaml:"log_level"`
	LogPath                  string            `yaml:"log_path"`
	OrganizationID           string            `yaml:"organization_id"`
}

func defaults() CoordinatorConfig {
	var c CoordinatorConfig
	c.Upload.Workers = 4
	c.Upload.MaxRetries = 3
	c.Upload.RetryBackoffSeconds = 1.0
	c.Upload.AttemptTimeoutSec = 30.0
	c.Upload.CompressQuality = 85
	c.Upload.CompressMaxWidth = 1920
	c.Upload.CompressMaxHeight = 1080
	c.Upload.CleanupThreshold = 100
	c.Accumulator.TemporaryMessageLimit = 10
	c.Accumulator.UploadTimeoutSeconds = 10.0
	c.MaximumImagesInCloud = 1000
	c.Vector.Backend = "memory"
	c.Vector.Dimensions = 1536
	c.Vector.Metric = "cosine"
	c.Embedding.BaseURL = "https://api.openai.com"
	c.Embedding.Path = "/v1/embeddings"
	c.Embedding.Model = "text-embedding-3-small"
	c.Embedding.APIHeader = "Authorization"
	c.Embedding.TimeoutSeconds = 30
	c.Embedding.MaxDimensions = 1536
	c.OrganizationID = "default"
	c.TimezoneStr = "UTC"
	c.Obs.ServiceName = "mirixd"
	c.Obs.ServiceVersion = "0.1.0"
	c.Obs.Environment = "development"
	return c
}
