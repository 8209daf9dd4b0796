package ocr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// OpenAIVisionClient implements VisionClient for OpenAI's vision-capable chat models
type OpenAIVisionClient struct {
	client      openai.Client
	logger      *logger.Logger
	temperature float64
}

// NewOpenAIVisionClient creates a new OpenAI vision client. baseURL may be
// empty or point at an OpenAI-compatible gateway.
func NewOpenAIVisionClient(apiKey, baseURL string, temperature float64, maxRetries int, log *logger.Logger) *OpenAIVisionClient {
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

	return &OpenAIVisionClient{
		client:      openai.NewClient(opts...),
		logger:      log,
		temperature: temperature,
	}
}

// Transcribe performs OCR using OpenAI's chat completions API
func (o *OpenAIVisionClient) Transcribe(ctx context.Context, model string, prompt Prompt, image []byte) (*Transcription, error) {
	o.logger.WithFields("model", model, "provider", "openai").Debug("Transcribing with OpenAI")

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt.User),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
				}),
			}),
		},
		Temperature: openai.Float(o.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}
	o.logger.WithFields("prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens).Debug("OpenAI usage")

	return decodeReply(o.Name(), resp.Choices[0].Message.Content, o.logger)
}

// HealthCheck verifies that the OpenAI API is accessible and the model exists
func (o *OpenAIVisionClient) HealthCheck(ctx context.Context, model string) error {
	if _, err := o.client.Models.Get(ctx, model); err != nil {
		return fmt.Errorf("openai health check failed: %w", err)
	}
	return nil
}

// Name returns the provider name
func (o *OpenAIVisionClient) Name() string {
	return "openai"
}
