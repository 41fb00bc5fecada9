package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ModelPath          string        `env:"MODEL_PATH" envDefault:"google/gemma-3n-e4b-it"`
	ModelName          string        `env:"MODEL_NAME" envDefault:"gemma3n-e4b"`
	ModelBackend       string        `env:"MODEL_BACKEND" envDefault:"ollama"`
	ModelBaseURL       string        `env:"MODEL_BASE_URL" envDefault:"http://127.0.0.1:11434"`
	ModelAPIKey        string        `env:"MODEL_API_KEY"`
	ModelProbeInterval time.Duration `env:"MODEL_PROBE_INTERVAL" envDefault:"30s"`

	MaxNewTokens int     `env:"MAX_NEW_TOKENS" envDefault:"2048"`
	Temperature  float64 `env:"TEMPERATURE" envDefault:"0.7"`
	DoSample     bool    `env:"DO_SAMPLE" envDefault:"true"`

	ImageTTL           time.Duration `env:"IMAGE_TTL" envDefault:"1h"`
	ImageSweepInterval time.Duration `env:"IMAGE_SWEEP_INTERVAL" envDefault:"1m"`
	ImageFetchTimeout  time.Duration `env:"IMAGE_FETCH_TIMEOUT" envDefault:"10s"`
	MaxImageBytes      int64         `env:"MAX_IMAGE_BYTES" envDefault:"15728640"`
	MaxImageDimension  int           `env:"MAX_IMAGE_DIMENSION" envDefault:"1024"`

	InferenceWorkers   int `env:"INFERENCE_WORKERS" envDefault:"1"`
	InferenceQueueSize int `env:"INFERENCE_QUEUE_SIZE" envDefault:"64"`
}

// Load reads an optional .env file, then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}
	path, err := expandPath(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("expanding MODEL_PATH: %w", err)
	}
	cfg.ModelPath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var result error
	if c.MaxNewTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_NEW_TOKENS must be positive, got %d", c.MaxNewTokens))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("TEMPERATURE must be within [0, 2], got %g", c.Temperature))
	}
	if c.ImageTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("IMAGE_TTL must be positive"))
	}
	if c.ImageSweepInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("IMAGE_SWEEP_INTERVAL must be positive"))
	}
	if c.ImageFetchTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("IMAGE_FETCH_TIMEOUT must be positive"))
	}
	if c.MaxImageBytes <= 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_IMAGE_BYTES must be positive"))
	}
	if c.MaxImageDimension < 0 {
		result = multierror.Append(result, fmt.Errorf("MAX_IMAGE_DIMENSION must not be negative"))
	}
	if c.InferenceWorkers <= 0 {
		result = multierror.Append(result, fmt.Errorf("INFERENCE_WORKERS must be positive"))
	}
	if c.InferenceQueueSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("INFERENCE_QUEUE_SIZE must be positive"))
	}
	if c.ModelProbeInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("MODEL_PROBE_INTERVAL must be positive"))
	}
	switch c.ModelBackend {
	case BackendOllama, BackendOpenAI:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown MODEL_BACKEND %q", c.ModelBackend))
	}
	if strings.TrimSpace(c.ModelPath) == "" {
		result = multierror.Append(result, fmt.Errorf("MODEL_PATH is required"))
	}
	return result
}

// expandPath resolves "~" and makes local paths absolute. Hub style
// identifiers ("org/model") are returned as is.
func expandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") && !strings.HasPrefix(p, "/") {
		return p, nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}
