package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// VisionClient transcribes a passport photo with a vision-capable LLM.
type VisionClient interface {
	// Transcribe sends a PNG image with the prompt and returns the transcribed lines
	Transcribe(ctx context.Context, model string, prompt Prompt, image []byte) (*Transcription, error)

	// HealthCheck verifies the provider is reachable and serves model
	HealthCheck(ctx context.Context, model string) error

	// Name is the provider name used in result metadata
	Name() string
}

// ProviderType names a vision LLM provider.
type ProviderType string

const (
	ProviderOllama    ProviderType = "ollama"
	ProviderOpenAI    ProviderType = "openai"
	ProviderAnthropic ProviderType = "anthropic"
	ProviderGoogle    ProviderType = "google"
)

// ErrInvalidVisionConfig is wrapped by every VisionClientConfig.Validate failure.
var ErrInvalidVisionConfig = errors.New("invalid vision engine configuration")

// VisionClientConfig selects the provider and model behind the vision engine.
type VisionClientConfig struct {
	Provider ProviderType

	// Model defaults to the provider's DefaultModel
	Model string

	// Endpoint is required for Ollama; for cloud providers it replaces the API base URL
	Endpoint string

	APIKey string

	MaxRetries int

	// Temperature should stay at 0 for transcription
	Temperature float64
}

type provider struct {
	defaultModel string
	knownModels  []string

	// keyEnv is where the API key usually comes from; empty for local providers
	keyEnv string

	build func(ctx context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error)
}

var providers = map[ProviderType]provider{
	ProviderOllama: {
		defaultModel: "qwen2.5vl",
		knownModels:  []string{"qwen2.5vl", "llava", "llama3.2-vision", "minicpm-v"},
		build: func(_ context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error) {
			return NewOllamaVisionClient(cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, log), nil
		},
	},
	ProviderOpenAI: {
		defaultModel: "gpt-4o",
		knownModels:  []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini"},
		keyEnv:       "OPENAI_API_KEY",
		build: func(_ context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error) {
			return NewOpenAIVisionClient(cfg.APIKey, cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, log), nil
		},
	},
	ProviderAnthropic: {
		defaultModel: "claude-3-5-sonnet-20241022",
		knownModels:  []string{"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022", "claude-3-opus-20240229"},
		keyEnv:       "ANTHROPIC_API_KEY",
		build: func(_ context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error) {
			return NewAnthropicVisionClient(cfg.APIKey, cfg.Endpoint, cfg.Temperature, cfg.MaxRetries, log), nil
		},
	},
	ProviderGoogle: {
		defaultModel: "gemini-1.5-pro",
		knownModels:  []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"},
		keyEnv:       "GOOGLE_API_KEY",
		build: func(ctx context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error) {
			return NewGoogleVisionClient(ctx, cfg.APIKey, cfg.Temperature, log)
		},
	},
}

// Providers lists the supported providers by name.
func Providers() []ProviderType {
	out := make([]ProviderType, 0, len(providers))
	for p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func providerList() string {
	names := make([]string, 0, len(providers))
	for _, p := range Providers() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}

// DefaultModel returns the model used when none is configured, or "" for
// an unknown provider.
func (p ProviderType) DefaultModel() string {
	return providers[p].defaultModel
}

// KnownModel reports whether model is one the provider is known to serve
// with image input. Ollama tags (llava:13b) match their base name.
func (p ProviderType) KnownModel(model string) bool {
	if p == ProviderOllama {
		model, _, _ = strings.Cut(model, ":")
	}
	for _, m := range providers[p].knownModels {
		if m == model {
			return true
		}
	}
	return false
}

// Validate checks the configuration is complete for its provider.
func (c VisionClientConfig) Validate() error {
	p, ok := providers[c.Provider]
	if !ok {
		return fmt.Errorf("%w: unknown provider %q (supported: %s)", ErrInvalidVisionConfig, c.Provider, providerList())
	}

	switch {
	case c.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidVisionConfig)
	case p.keyEnv == "" && c.Endpoint == "":
		return fmt.Errorf("%w: endpoint is required for %s", ErrInvalidVisionConfig, c.Provider)
	case p.keyEnv != "" && c.APIKey == "":
		return fmt.Errorf("%w: API key is required for %s (set %s)", ErrInvalidVisionConfig, c.Provider, p.keyEnv)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature must be between 0.0 and 2.0, got %g", ErrInvalidVisionConfig, c.Temperature)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must be non-negative, got %d", ErrInvalidVisionConfig, c.MaxRetries)
	}
	return nil
}

// NewVisionClient builds the client for cfg.Provider.
func NewVisionClient(ctx context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error) {
	if log == nil {
		log = logger.Get()
	}

	p, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q (supported: %s)", ErrInvalidVisionConfig, cfg.Provider, providerList())
	}
	if p.keyEnv != "" && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required for %s (set %s)", ErrInvalidVisionConfig, cfg.Provider, p.keyEnv)
	}

	client, err := p.build(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return client, nil
}
