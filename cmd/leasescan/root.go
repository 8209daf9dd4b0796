package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/leasescan/internal/config"
	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/upload"
)

var cfgFile string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "leasescan",
	Short: "Fill rental-contract passport fields from a photo",
	Long: `leasescan recognizes a Russian internal passport page and fills the
landlord or tenant identity fields of a rental-contract form.

Features:
  - Accept photos, scans, PDFs or data URLs
  - Binarize the image before recognition (optional)
  - Recognize with local Tesseract or a vision LLM (Ollama, OpenAI, Anthropic, Gemini)
  - Extract full name, passport number, issue date, division code and issuing authority
  - Review every value before it is written to the form
  - Persist the form between runs`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initEnv)

	// Global flags. Names match config keys so they bind directly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.leasescan.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("form-file", "", "form snapshot file (default is $HOME/.leasescan-form.json)")
}

// initEnv loads a .env file from the working directory if there is one.
func initEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}
}

// loadConfig resolves configuration for cmd and initializes the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Init(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Get()

	if err := upload.SetPDFLicenseKey(cfg.PDFLicenseKey); err != nil {
		log.WithError(err).Warn("PDF license key rejected, PDF uploads may fail")
	}

	log.Debugf("%s", cfg)
	return cfg, log, nil
}
