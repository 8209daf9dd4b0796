// Package config provides configuration management for the leasescan application.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LEASESCAN"

// Config holds all configuration settings for the leasescan application.
// Configuration precedence: CLI flags > Environment variables > Config file > Defaults
type Config struct {
	// Engine selects the recognition backend (tesseract, vision)
	Engine string

	// OCRLanguage is the recognition language hint (rus, rus+eng)
	OCRLanguage string

	// TessdataPrefix is the directory holding Tesseract language models (empty = system default)
	TessdataPrefix string

	// CharWhitelist overrides the recognized character set (empty = Cyrillic, digits, punctuation)
	CharWhitelist string

	// Preprocess enables binarization before recognition
	Preprocess bool

	// BinarizeThreshold is the luminance threshold (0-255)
	BinarizeThreshold int

	// InitTimeout bounds engine initialization including model download (0 = unbounded)
	InitTimeout time.Duration

	// RecognizeTimeout bounds a single recognition (0 = unbounded)
	RecognizeTimeout time.Duration

	// MaxUploadBytes is the upload size limit
	MaxUploadBytes int64

	// PDFDPI is the resolution PDF uploads are rendered at
	PDFDPI int

	// PDFLicenseKey is the unidoc metered key used to render PDF pages
	PDFLicenseKey string

	// FormFile is where the wizard's form values are persisted
	FormFile string

	// LogLevel controls logging verbosity (debug, info, warn, error)
	LogLevel string

	// LogFormat is console or json
	LogFormat string

	// LLM configuration for the vision engine
	LLM LLMConfig
}

// LLMConfig holds configuration for LLM-based OCR providers
type LLMConfig struct {
	// Provider is the LLM provider to use (ollama, openai, anthropic, google)
	Provider string

	// Model is the specific model to use for OCR
	Model string

	// Endpoint is the API endpoint (primarily for Ollama)
	Endpoint string

	// APIKey is the API key for cloud providers. Populated from:
	// 1. macOS Keychain (if UseKeychain is true)
	// 2. OPENAI_API_KEY, ANTHROPIC_API_KEY or GOOGLE_API_KEY
	APIKey string

	// MaxRetries is the maximum number of retry attempts for API calls
	MaxRetries int

	// Temperature controls randomness (0.0 = deterministic, recommended for OCR)
	Temperature float64

	// UseKeychain enables macOS Keychain lookup for API keys (macOS only)
	UseKeychain bool

	// KeychainServicePrefix is the prefix for keychain service names.
	// Service names will be: {prefix}-{provider} (e.g., "leasescan-openai")
	KeychainServicePrefix string

	// PromptFile is an optional YAML file overriding the transcription prompt
	PromptFile string
}

// Load reads configuration from multiple sources and returns a Config instance.
// flags may be nil; flags that were set on the command line win over
// everything else.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".leasescan")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK - we'll use env vars and defaults
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	config := &Config{
		Engine:            v.GetString("engine"),
		OCRLanguage:       v.GetString("ocr-language"),
		TessdataPrefix:    v.GetString("tessdata-prefix"),
		CharWhitelist:     v.GetString("char-whitelist"),
		Preprocess:        v.GetBool("preprocess"),
		BinarizeThreshold: v.GetInt("binarize-threshold"),
		InitTimeout:       v.GetDuration("init-timeout"),
		RecognizeTimeout:  v.GetDuration("recognize-timeout"),
		MaxUploadBytes:    v.GetInt64("max-upload-bytes"),
		PDFDPI:            v.GetInt("pdf-dpi"),
		PDFLicenseKey:     v.GetString("pdf-license-key"),
		FormFile:          v.GetString("form-file"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
		LLM: LLMConfig{
			Provider:              v.GetString("llm-provider"),
			Model:                 v.GetString("llm-model"),
			Endpoint:              v.GetString("llm-endpoint"),
			MaxRetries:            v.GetInt("llm-max-retries"),
			Temperature:           v.GetFloat64("llm-temperature"),
			UseKeychain:           v.GetBool("llm-use-keychain"),
			KeychainServicePrefix: v.GetString("llm-keychain-service-prefix"),
			PromptFile:            v.GetString("llm-prompt-file"),
		},
	}

	if config.PDFLicenseKey == "" {
		config.PDFLicenseKey = os.Getenv("UNIDOC_LICENSE_API_KEY")
	}

	if config.Engine == "vision" {
		config.LLM.APIKey = loadAPIKeyForProvider(config.LLM.Provider, config.LLM.UseKeychain, config.LLM.KeychainServicePrefix)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("engine", "tesseract")
	v.SetDefault("ocr-language", "rus")
	v.SetDefault("tessdata-prefix", "")
	v.SetDefault("char-whitelist", "")
	v.SetDefault("preprocess", true)
	v.SetDefault("binarize-threshold", 128)
	v.SetDefault("init-timeout", 2*time.Minute)
	v.SetDefault("recognize-timeout", 90*time.Second)
	v.SetDefault("max-upload-bytes", 10<<20)
	v.SetDefault("pdf-dpi", 200)
	v.SetDefault("pdf-license-key", "")
	v.SetDefault("form-file", filepath.Join(home, ".leasescan-form.json"))
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")

	v.SetDefault("llm-provider", "ollama")
	v.SetDefault("llm-model", "")
	v.SetDefault("llm-endpoint", "http://localhost:11434")
	v.SetDefault("llm-max-retries", 3)
	v.SetDefault("llm-temperature", 0.0)
	v.SetDefault("llm-use-keychain", false)
	v.SetDefault("llm-keychain-service-prefix", "leasescan")
	v.SetDefault("llm-prompt-file", "")
}

// Validate checks that the configuration is valid and internally consistent
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(c.Engine)
	if c.Engine != "tesseract" && c.Engine != "vision" {
		return fmt.Errorf("invalid engine %q, must be one of: tesseract, vision", c.Engine)
	}

	if c.OCRLanguage != "rus" && c.OCRLanguage != "rus+eng" {
		return fmt.Errorf("invalid ocr-language %q, must be one of: rus, rus+eng", c.OCRLanguage)
	}

	if c.BinarizeThreshold < 0 || c.BinarizeThreshold > 255 {
		return fmt.Errorf("binarize-threshold must be between 0 and 255, got %d", c.BinarizeThreshold)
	}

	if c.InitTimeout < 0 || c.RecognizeTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max-upload-bytes must be positive, got %d", c.MaxUploadBytes)
	}

	if c.PDFDPI < 36 || c.PDFDPI > 600 {
		return fmt.Errorf("pdf-dpi must be between 36 and 600, got %d", c.PDFDPI)
	}

	if c.FormFile == "" {
		return fmt.Errorf("form-file cannot be empty")
	}

	if strings.HasPrefix(c.FormFile, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to expand home directory in form-file: %w", err)
		}
		c.FormFile = filepath.Join(home, c.FormFile[2:])
	}

	formDir := filepath.Dir(c.FormFile)
	if err := os.MkdirAll(formDir, 0755); err != nil {
		return fmt.Errorf("failed to create form file directory %s: %w", formDir, err)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log-level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log-format %q, must be console or json", c.LogFormat)
	}

	if c.Engine == "vision" {
		if err := c.validateLLMConfig(); err != nil {
			return fmt.Errorf("invalid LLM configuration: %w", err)
		}
	}

	return nil
}

// validateLLMConfig validates the LLM provider configuration
func (c *Config) validateLLMConfig() error {
	validProviders := map[string]bool{
		"ollama":    true,
		"openai":    true,
		"anthropic": true,
		"google":    true,
	}
	if !validProviders[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("invalid llm-provider %q, must be one of: ollama, openai, anthropic, google", c.LLM.Provider)
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)

	if c.LLM.Provider == "ollama" && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm-endpoint cannot be empty for Ollama provider")
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("API key not found for provider %s, check environment variables", c.LLM.Provider)
	}

	if c.LLM.Temperature < 0.0 || c.LLM.Temperature > 2.0 {
		return fmt.Errorf("llm-temperature must be between 0.0 and 2.0, got %f", c.LLM.Temperature)
	}

	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("llm-max-retries must be non-negative, got %d", c.LLM.MaxRetries)
	}

	if c.LLM.PromptFile != "" {
		if _, err := os.Stat(c.LLM.PromptFile); err != nil {
			return fmt.Errorf("llm-prompt-file: %w", err)
		}
	}

	return nil
}

// loadAPIKeyForProvider loads the appropriate API key from keychain or environment variables
func loadAPIKeyForProvider(provider string, useKeychain bool, keychainPrefix string) string {
	if useKeychain {
		if key := loadFromKeychain(provider, keychainPrefix); key != "" {
			return key
		}
	}

	switch strings.ToLower(provider) {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "google":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GEMINI_API_KEY")
	default:
		// Ollama doesn't need an API key
		return ""
	}
}

// loadFromKeychain attempts to retrieve an API key from macOS Keychain.
// Service name format: {prefix}-{provider} (e.g., "leasescan-openai").
// Returns empty string if not found or on non-macOS platforms.
func loadFromKeychain(provider, prefix string) string {
	if !isMacOS() {
		return ""
	}

	serviceName := fmt.Sprintf("%s-%s", prefix, strings.ToLower(provider))

	// security find-generic-password -s "service-name" -w
	cmd := exec.Command("security", "find-generic-password", "-s", serviceName, "-w")
	output, err := cmd.Output()
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(output))
}

// isMacOS checks if the current platform is macOS
func isMacOS() bool {
	return runtime.GOOS == "darwin"
}

func redact(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return "***" + secret[len(secret)-4:]
	default:
		return "***"
	}
}

// String returns a string representation of the configuration (with sensitive data redacted)
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Engine: %s
  OCRLanguage: %s
  TessdataPrefix: %s
  Preprocess: %t
  BinarizeThreshold: %d
  InitTimeout: %s
  RecognizeTimeout: %s
  MaxUploadBytes: %d
  PDFDPI: %d
  PDFLicenseKey: %s
  FormFile: %s
  LogLevel: %s
  LogFormat: %s
  LLM:
    Provider: %s
    Model: %s
    Endpoint: %s
    APIKey: %s
    MaxRetries: %d
    Temperature: %.2f
    UseKeychain: %t
    KeychainServicePrefix: %s
    PromptFile: %s`,
		c.Engine,
		c.OCRLanguage,
		c.TessdataPrefix,
		c.Preprocess,
		c.BinarizeThreshold,
		c.InitTimeout,
		c.RecognizeTimeout,
		c.MaxUploadBytes,
		c.PDFDPI,
		redact(c.PDFLicenseKey),
		c.FormFile,
		c.LogLevel,
		c.LogFormat,
		c.LLM.Provider,
		c.LLM.Model,
		c.LLM.Endpoint,
		redact(c.LLM.APIKey),
		c.LLM.MaxRetries,
		c.LLM.Temperature,
		c.LLM.UseKeychain,
		c.LLM.KeychainServicePrefix,
		c.LLM.PromptFile,
	)
}
