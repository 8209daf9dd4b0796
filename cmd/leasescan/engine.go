package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/leasescan/internal/config"
	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/ocr"
	"github.com/platinummonkey/leasescan/internal/preprocess"
	"github.com/platinummonkey/leasescan/internal/upload"
)

// engineCmd groups engine maintenance commands
var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Inspect the recognition engine",
}

var engineCheckCmd = &cobra.Command{
	Use:   "check [image]",
	Short: "Load the engine and optionally recognize one image",
	Long: `Load the configured recognition engine the same way a scan would and
report whether it is ready. Tesseract needs the rus traineddata (and eng for
rus+eng); vision engines need a reachable provider and model. Ollama models
are pulled on first use.

Examples:
  # Check the default Tesseract engine
  leasescan engine check

  # Check a local Ollama model and transcribe a sample
  leasescan engine check --engine vision --llm-model llava passport.jpg`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEngineCheck,
}

func init() {
	rootCmd.AddCommand(engineCmd)
	engineCmd.AddCommand(engineCheckCmd)
	addEngineFlags(engineCheckCmd)
}

// addEngineFlags registers the flags shared by commands that load the engine.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("engine", "tesseract", "recognition engine (tesseract, vision)")
	cmd.Flags().String("ocr-language", "rus", "recognition language (rus, rus+eng)")
	cmd.Flags().String("tessdata-prefix", "", "directory holding Tesseract traineddata files")
	cmd.Flags().Bool("preprocess", true, "binarize images before recognition")
	cmd.Flags().Int("binarize-threshold", int(preprocess.DefaultThreshold), "binarization luminance threshold (0-255)")
	cmd.Flags().Duration("init-timeout", 2*time.Minute, "engine load timeout (0 = none)")
	cmd.Flags().Duration("recognize-timeout", 90*time.Second, "per-image recognition timeout (0 = none)")
	cmd.Flags().String("llm-provider", "ollama", "vision provider (ollama, openai, anthropic, google)")
	cmd.Flags().String("llm-model", "", "vision model (default depends on provider)")
	cmd.Flags().String("llm-endpoint", "http://localhost:11434", "provider endpoint")
	cmd.Flags().String("llm-prompt-file", "", "YAML file overriding the transcription prompt")
}

// runtimeConfig converts application configuration into the OCR runtime settings.
func runtimeConfig(cfg *config.Config) ocr.RuntimeConfig {
	return ocr.RuntimeConfig{
		Engine: cfg.Engine,
		Tesseract: ocr.TesseractConfig{
			TessdataPrefix: cfg.TessdataPrefix,
			Whitelist:      cfg.CharWhitelist,
		},
		Vision: ocr.VisionClientConfig{
			Provider:    ocr.ProviderType(cfg.LLM.Provider),
			Model:       cfg.LLM.Model,
			Endpoint:    cfg.LLM.Endpoint,
			APIKey:      cfg.LLM.APIKey,
			MaxRetries:  cfg.LLM.MaxRetries,
			Temperature: cfg.LLM.Temperature,
		},
		PromptFile: cfg.LLM.PromptFile,
	}
}

// startService builds the runtime, starts loading it and waits with a
// spinner. A failed load is returned together with the service so callers
// can keep going in manual-entry mode.
func startService(ctx context.Context, cfg *config.Config, log *logger.Logger) (*ocr.Service, error) {
	lang, err := ocr.ParseLanguage(cfg.OCRLanguage)
	if err != nil {
		return nil, err
	}

	rt, err := ocr.NewRuntime(runtimeConfig(cfg), log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure OCR engine: %w", err)
	}

	svc := ocr.NewService(rt, lang,
		ocr.WithServiceLogger(log),
		ocr.WithInitTimeout(cfg.InitTimeout),
		ocr.WithRecognizeTimeout(cfg.RecognizeTimeout),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}

	s := startSpinner(fmt.Sprintf("Loading %s engine (%s)...", rt.Name(), lang))
	err = svc.Wait(ctx)
	s.Stop()

	return svc, err
}

// spinningRecognizer shows a spinner while the service recognizes.
type spinningRecognizer struct {
	svc *ocr.Service
}

func (r spinningRecognizer) Recognize(ctx context.Context, in ocr.Input) (*ocr.Result, error) {
	s := startSpinner("Recognizing passport page...")
	defer s.Stop()
	return r.svc.Recognize(ctx, in)
}

func runEngineCheck(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	out := cmd.OutOrStdout()

	svc, err := startService(ctx, cfg, log)
	if svc != nil {
		defer svc.Close()
	}
	if err != nil {
		failure(out, "Engine unavailable: %v", err)
		if errors.Is(err, ocr.ErrEngineUnavailable) && cfg.Engine == ocr.EngineTesseract {
			fmt.Fprintln(out, "  Install the rus traineddata or point --tessdata-prefix at it.")
		}
		return fmt.Errorf("engine check failed")
	}
	success(out, "Engine ready (%s, %s)", cfg.Engine, svc.Language())

	if len(args) == 0 {
		return nil
	}

	loader := upload.NewLoader(
		upload.WithMaxBytes(cfg.MaxUploadBytes),
		upload.WithPDFDPI(cfg.PDFDPI),
		upload.WithLogger(log),
	)
	raw, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	img := preprocess.Passthrough(raw)
	if cfg.Preprocess {
		img = preprocess.New(
			preprocess.WithThreshold(uint8(cfg.BinarizeThreshold)),
			preprocess.WithLogger(log),
		).Binarize(raw)
	}
	data, err := img.PNG()
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	res, err := spinningRecognizer{svc: svc}.Recognize(ctx, ocr.Input{
		Image:        data,
		Width:        img.Width,
		Height:       img.Height,
		Preprocessed: img.Binarized,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nEngine: %s  Model: %s  Confidence: %.1f  Time: %s\n",
		res.Metadata.Engine, res.Metadata.Model, res.Metadata.Confidence, res.Metadata.Duration.Round(time.Millisecond))
	fmt.Fprintln(out, strings.Repeat("-", 40))
	if strings.TrimSpace(res.Text) == "" {
		dimColor.Fprintln(out, "(no text)")
	} else {
		fmt.Fprintln(out, res.Text)
	}
	return nil
}
