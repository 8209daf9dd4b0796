package ocr

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// VisionRuntime uses a vision-capable LLM as the recognition engine.
// Initialization is the provider health check; for Ollama that includes
// pulling the model.
type VisionRuntime struct {
	cfg       VisionClientConfig
	prompt    *PromptConfig
	logger    *logger.Logger
	newClient func(ctx context.Context, cfg VisionClientConfig, log *logger.Logger) (VisionClient, error)
}

// NewVisionRuntime creates a vision runtime. prompt may be nil.
func NewVisionRuntime(cfg VisionClientConfig, prompt *PromptConfig, log *logger.Logger) *VisionRuntime {
	if log == nil {
		log = logger.Get()
	}
	if prompt != nil && prompt.Model != "" && cfg.Model == "" {
		cfg.Model = prompt.Model
	}
	if cfg.Model == "" {
		cfg.Model = cfg.Provider.DefaultModel()
	}
	return &VisionRuntime{
		cfg:       cfg,
		prompt:    prompt,
		logger:    log,
		newClient: NewVisionClient,
	}
}

// Name returns the runtime name
func (r *VisionRuntime) Name() string {
	return "vision/" + string(r.cfg.Provider)
}

// Initialize validates the provider config and checks the model is reachable.
func (r *VisionRuntime) Initialize(ctx context.Context, lang Language) (Engine, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if !r.cfg.Provider.KnownModel(r.cfg.Model) {
		r.logger.WithFields("model", r.cfg.Model).Warn("Model is not known to accept images, transcription may fail")
	}

	client, err := r.newClient(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, err
	}

	if err := client.HealthCheck(ctx, r.cfg.Model); err != nil {
		closeClient(client)
		return nil, fmt.Errorf("%s health check: %w", client.Name(), err)
	}

	r.logger.WithFields("provider", client.Name(), "model", r.cfg.Model).Info("Vision engine ready")

	return &visionEngine{
		client:   client,
		model:    r.cfg.Model,
		language: lang,
		prompt:   r.prompt.Render(lang),
	}, nil
}

type visionEngine struct {
	client   VisionClient
	model    string
	language Language
	prompt   Prompt
}

func (e *visionEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()

	tr, err := e.client.Transcribe(ctx, e.model, e.prompt, in.Image)
	if err != nil {
		return nil, err
	}

	return &Result{
		Text: tr.Text(),
		Metadata: Metadata{
			Engine:     "vision/" + e.client.Name(),
			Model:      e.model,
			Language:   e.language,
			Confidence: clampConfidence(tr.Confidence * 100),
			Duration:   time.Since(start),
		},
	}, nil
}

func (e *visionEngine) Close() error {
	return closeClient(e.client)
}

func closeClient(client VisionClient) error {
	if c, ok := client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
