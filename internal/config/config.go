package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Image     ImageConfig     `mapstructure:"image"`
	Inference InferenceConfig `mapstructure:"inference"`
	Gate      GateConfig      `mapstructure:"gate"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Prompts   PromptConfig    `mapstructure:"prompts"`
	Anchors   AnchorsConfig   `mapstructure:"anchors"`
	Artifacts ArtifactConfig  `mapstructure:"artifacts"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Debug     bool            `mapstructure:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// ImageConfig bounds inbound images.
type ImageConfig struct {
	MaxImageMB int64 `mapstructure:"max_image_mb"`
	// Fewer pixels means fewer visual tokens; raise if OCR quality drops.
	MaxPixels int `mapstructure:"max_pixels"`
}

// InferenceConfig holds the inference engine settings.
type InferenceConfig struct {
	Mode            string  `mapstructure:"mode"` // "subprocess" or "sidecar"
	Command         string  `mapstructure:"command"`
	Endpoint        string  `mapstructure:"endpoint"`
	ModelID         string  `mapstructure:"model_id"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	TimeoutSecs     int     `mapstructure:"timeout_secs"`
	MaxConcurrency  int64   `mapstructure:"max_concurrency"`
	AdaptersDir     string  `mapstructure:"adapters_dir"`
	UseLoRAAdapters bool    `mapstructure:"use_lora_adapters"`
}

// GateConfig selects how accelerator access is serialized.
type GateConfig struct {
	Mode     string `mapstructure:"mode"` // "semaphore", "flock" or "none"
	LockPath string `mapstructure:"lock_path"`
}

// DetectorConfig holds object-detector collaborator settings.
type DetectorConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	Command       string  `mapstructure:"command"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	TimeoutSecs   int     `mapstructure:"timeout_secs"`
}

// PromptConfig locates the prompt assets.
type PromptConfig struct {
	Dir string `mapstructure:"dir"`
}

// AnchorsConfig controls the per-field fallback pipeline.
type AnchorsConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxTiles int  `mapstructure:"max_tiles"`
}

// ArtifactConfig selects where debug crops are persisted.
type ArtifactConfig struct {
	Provider string `mapstructure:"provider"` // "none", "local" or "s3"
	LocalDir string `mapstructure:"local_dir"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

// RateLimitConfig holds per-client request limits.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Load reads configuration from environment variables with the CONTALUZ_
// prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTALUZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.environment", "development")

	// Image defaults
	v.SetDefault("image.max_image_mb", 12)
	v.SetDefault("image.max_pixels", 1_000_000)

	// Inference defaults
	v.SetDefault("inference.mode", "subprocess")
	v.SetDefault("inference.command", "vlm-generate")
	v.SetDefault("inference.endpoint", "")
	v.SetDefault("inference.model_id", "mlx-community/Qwen2.5-VL-7B-Instruct-4bit")
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("inference.temperature", 0.0)
	v.SetDefault("inference.timeout_secs", 45)
	v.SetDefault("inference.max_concurrency", 1)
	v.SetDefault("inference.adapters_dir", "adapters")
	v.SetDefault("inference.use_lora_adapters", true)

	// Gate defaults
	v.SetDefault("gate.mode", "semaphore")
	v.SetDefault("gate.lock_path", "/tmp/contaluz-accel.lock")

	// Detector defaults
	v.SetDefault("detector.enabled", true)
	v.SetDefault("detector.command", "")
	v.SetDefault("detector.min_confidence", 0.5)
	v.SetDefault("detector.timeout_secs", 30)

	// Prompt defaults
	v.SetDefault("prompts.dir", "prompts")

	// Anchors defaults (disabled: too slow for production)
	v.SetDefault("anchors.enabled", false)
	v.SetDefault("anchors.max_tiles", 9)

	// Artifact defaults
	v.SetDefault("artifacts.provider", "none")
	v.SetDefault("artifacts.local_dir", "debug_crops")
	v.SetDefault("artifacts.region", "us-east-1")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.endpoint", "")
	v.SetDefault("artifacts.prefix", "crops")

	// Rate limit defaults
	v.SetDefault("rate_limit.rps", 2.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("debug", false)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                 "CONTALUZ_SERVER_PORT",
		"server.read_timeout":         "CONTALUZ_SERVER_READ_TIMEOUT",
		"server.write_timeout":        "CONTALUZ_SERVER_WRITE_TIMEOUT",
		"server.environment":          "CONTALUZ_SERVER_ENVIRONMENT",
		"image.max_image_mb":          "CONTALUZ_IMAGE_MAX_IMAGE_MB",
		"image.max_pixels":            "CONTALUZ_IMAGE_MAX_PIXELS",
		"inference.mode":              "CONTALUZ_INFERENCE_MODE",
		"inference.command":           "CONTALUZ_INFERENCE_COMMAND",
		"inference.endpoint":          "CONTALUZ_INFERENCE_ENDPOINT",
		"inference.model_id":          "CONTALUZ_INFERENCE_MODEL_ID",
		"inference.max_tokens":        "CONTALUZ_INFERENCE_MAX_TOKENS",
		"inference.temperature":       "CONTALUZ_INFERENCE_TEMPERATURE",
		"inference.timeout_secs":      "CONTALUZ_INFERENCE_TIMEOUT_SECS",
		"inference.max_concurrency":   "CONTALUZ_INFERENCE_MAX_CONCURRENCY",
		"inference.adapters_dir":      "CONTALUZ_INFERENCE_ADAPTERS_DIR",
		"inference.use_lora_adapters": "CONTALUZ_INFERENCE_USE_LORA_ADAPTERS",
		"gate.mode":                   "CONTALUZ_GATE_MODE",
		"gate.lock_path":              "CONTALUZ_GATE_LOCK_PATH",
		"detector.enabled":            "CONTALUZ_DETECTOR_ENABLED",
		"detector.command":            "CONTALUZ_DETECTOR_COMMAND",
		"detector.min_confidence":     "CONTALUZ_DETECTOR_MIN_CONFIDENCE",
		"detector.timeout_secs":       "CONTALUZ_DETECTOR_TIMEOUT_SECS",
		"prompts.dir":                 "CONTALUZ_PROMPTS_DIR",
		"anchors.enabled":             "CONTALUZ_ANCHORS_ENABLED",
		"anchors.max_tiles":           "CONTALUZ_ANCHORS_MAX_TILES",
		"artifacts.provider":          "CONTALUZ_ARTIFACTS_PROVIDER",
		"artifacts.local_dir":         "CONTALUZ_ARTIFACTS_LOCAL_DIR",
		"artifacts.region":            "CONTALUZ_ARTIFACTS_REGION",
		"artifacts.bucket":            "CONTALUZ_ARTIFACTS_BUCKET",
		"artifacts.endpoint":          "CONTALUZ_ARTIFACTS_ENDPOINT",
		"artifacts.prefix":            "CONTALUZ_ARTIFACTS_PREFIX",
		"rate_limit.rps":              "CONTALUZ_RATE_LIMIT_RPS",
		"rate_limit.burst":            "CONTALUZ_RATE_LIMIT_BURST",
		"debug":                       "CONTALUZ_DEBUG",
	}
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
