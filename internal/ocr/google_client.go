package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// GoogleVisionClient implements VisionClient for Google's Gemini API
type GoogleVisionClient struct {
	client      *genai.Client
	logger      *logger.Logger
	temperature float64
}

// NewGoogleVisionClient creates a new Google Gemini vision client
func NewGoogleVisionClient(ctx context.Context, apiKey string, temperature float64, log *logger.Logger) (*GoogleVisionClient, error) {
	if log == nil {
		log = logger.Get()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GoogleVisionClient{
		client:      client,
		logger:      log,
		temperature: temperature,
	}, nil
}

// Transcribe performs OCR using Google's Gemini vision API
func (g *GoogleVisionClient) Transcribe(ctx context.Context, model string, prompt Prompt, image []byte) (*Transcription, error) {
	g.logger.WithFields("model", model, "provider", "google").Debug("Transcribing with Google Gemini")

	genModel := g.client.GenerativeModel(model)
	genModel.SetTemperature(float32(g.temperature))
	genModel.ResponseMIMEType = "application/json"
	genModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(prompt.System)},
	}

	resp, err := genModel.GenerateContent(ctx,
		genai.Text(prompt.User),
		genai.ImageData("png", image),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			content.WriteString(string(txt))
		}
	}
	return decodeReply(g.Name(), content.String(), g.logger)
}

// HealthCheck verifies that the Gemini API is accessible and the model exists
func (g *GoogleVisionClient) HealthCheck(ctx context.Context, model string) error {
	if _, err := g.client.GenerativeModel(model).Info(ctx); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (g *GoogleVisionClient) Name() string {
	return "google"
}

// Close closes the Google client
func (g *GoogleVisionClient) Close() error {
	return g.client.Close()
}
