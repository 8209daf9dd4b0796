package ocr

import (
	"fmt"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// Engine kinds accepted by NewRuntime.
const (
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
)

// RuntimeConfig selects and configures a recognition backend.
type RuntimeConfig struct {
	// Engine is "tesseract" (default) or "vision"
	Engine string

	Tesseract TesseractConfig
	Vision    VisionClientConfig

	// PromptFile overrides the vision transcription prompt
	PromptFile string
}

// NewRuntime builds the runtime named by cfg.Engine.
func NewRuntime(cfg RuntimeConfig, log *logger.Logger) (Runtime, error) {
	switch cfg.Engine {
	case "", EngineTesseract:
		return NewTesseractRuntime(cfg.Tesseract, log), nil

	case EngineVision:
		var prompt *PromptConfig
		if cfg.PromptFile != "" {
			p, err := LoadPromptConfig(cfg.PromptFile)
			if err != nil {
				return nil, err
			}
			prompt = p
		}
		return NewVisionRuntime(cfg.Vision, prompt, log), nil

	default:
		return nil, fmt.Errorf("unknown OCR engine %q (supported: tesseract, vision)", cfg.Engine)
	}
}
