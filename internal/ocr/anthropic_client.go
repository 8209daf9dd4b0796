package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// AnthropicVisionClient implements VisionClient for Anthropic's Claude API
type AnthropicVisionClient struct {
	client      anthropic.Client
	logger      *logger.Logger
	temperature float64
}

// NewAnthropicVisionClient creates a new Anthropic Claude vision client
func NewAnthropicVisionClient(apiKey, baseURL string, temperature float64, maxRetries int, log *logger.Logger) *AnthropicVisionClient {
	if log == nil {
		log = logger.Get()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if maxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(maxRetries))
	}

	return &AnthropicVisionClient{
		client:      anthropic.NewClient(opts...),
		logger:      log,
		temperature: temperature,
	}
}

// Transcribe performs OCR using Anthropic's Claude vision API
func (a *AnthropicVisionClient) Transcribe(ctx context.Context, model string, prompt Prompt, image []byte) (*Transcription, error) {
	a.logger.WithFields("model", model, "provider", "anthropic").Debug("Transcribing with Anthropic Claude")

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: prompt.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt.User),
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(image)),
			),
		},
		Temperature: anthropic.Float(a.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}

	a.logger.WithFields("input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens).Debug("Anthropic usage")

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return decodeReply(a.Name(), content.String(), a.logger)
}

// HealthCheck verifies that the Anthropic API is accessible
func (a *AnthropicVisionClient) HealthCheck(ctx context.Context, model string) error {
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 10,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (a *AnthropicVisionClient) Name() string {
	return "anthropic"
}
