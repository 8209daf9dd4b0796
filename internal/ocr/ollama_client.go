package ocr

import (
	"context"
	"fmt"

	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/ollama"
)

// OllamaVisionClient is an adapter that implements VisionClient for Ollama
type OllamaVisionClient struct {
	client      *ollama.Client
	logger      *logger.Logger
	temperature float64
}

// NewOllamaVisionClient creates a new Ollama vision client
func NewOllamaVisionClient(endpoint string, temperature float64, maxRetries int, log *logger.Logger) *OllamaVisionClient {
	if log == nil {
		log = logger.Get()
	}

	clientOpts := []ollama.ClientOption{
		ollama.WithLogger(log),
	}
	if endpoint != "" {
		clientOpts = append(clientOpts, ollama.WithEndpoint(endpoint))
	}
	if maxRetries > 0 {
		clientOpts = append(clientOpts, ollama.WithMaxRetries(maxRetries))
	}

	return &OllamaVisionClient{
		client:      ollama.NewClient(clientOpts...),
		logger:      log,
		temperature: temperature,
	}
}

// Transcribe performs OCR with a local vision model
func (o *OllamaVisionClient) Transcribe(ctx context.Context, model string, prompt Prompt, image []byte) (*Transcription, error) {
	o.logger.WithFields("model", model, "provider", "ollama").Debug("Transcribing with Ollama")

	resp, err := o.client.GenerateWithVision(ctx, model, prompt.System, prompt.User,
		[]string{ollama.EncodeBytesToBase64(image)}, o.temperature)
	if ollama.IsModelNotFound(err) {
		return nil, fmt.Errorf("model %s is not installed (run: ollama pull %s): %w", model, model, err)
	}
	if err != nil {
		return nil, fmt.Errorf("ollama generate failed: %w", err)
	}

	return decodeReply(o.Name(), resp.Response, o.logger)
}

// HealthCheck verifies that Ollama is reachable and pulls the model when
// it is not installed yet. Pull progress is logged once per status change
// and every 10%.
func (o *OllamaVisionClient) HealthCheck(ctx context.Context, model string) error {
	if err := o.client.HealthCheck(ctx); err != nil {
		return err
	}

	found, err := o.client.HasModel(ctx, model)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	log := o.logger.WithFields("model", model)
	log.Info("Model not installed, pulling")

	lastStatus, lastDecile := "", -1
	return o.client.PullModel(ctx, model, func(p ollama.PullResponse) {
		decile := p.Percent() / 10
		if p.Status == lastStatus && decile == lastDecile {
			return
		}
		lastStatus, lastDecile = p.Status, decile
		if pct := p.Percent(); pct >= 0 {
			log.Infof("Pull %s: %d%%", p.Status, pct)
		} else {
			log.Infof("Pull %s", p.Status)
		}
	})
}

// Name returns the provider name
func (o *OllamaVisionClient) Name() string {
	return "ollama"
}
