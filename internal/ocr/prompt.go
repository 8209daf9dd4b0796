package ocr

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// DefaultSystemPrompt frames the vision model as a transcriber.
const DefaultSystemPrompt = `You are an OCR engine. You transcribe documents exactly as printed and never interpret, translate or correct them.`

// DefaultUserPrompt asks for a line-by-line transcription of a passport
// page. {{language}} is replaced with the language hint.
const DefaultUserPrompt = `Transcribe every line of printed text on this photo of a Russian internal passport page.
Expected script: {{language}}.
Return ONLY valid JSON with no markdown formatting, no code blocks, no explanation.

Format:
{
  "lines": ["first line", "second line"],
  "confidence": 0.9
}

Rules:
- Keep the reading order, top to bottom
- Keep digits, dots, dashes and the № sign exactly as printed
- confidence is 0.0-1.0 for the whole page
- Return {"lines": [], "confidence": 0} if there is no text`

// Prompt is the rendered prompt sent to a vision provider.
type Prompt struct {
	System string
	User   string
}

// PromptConfig represents the YAML configuration for transcription prompts
type PromptConfig struct {
	Model  string `yaml:"model"`
	System string `yaml:"system"`
	Prompt string `yaml:"prompt"`
}

// LoadPromptConfig reads a prompt override file. Empty fields keep the defaults.
func LoadPromptConfig(path string) (*PromptConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file: %w", err)
	}

	var cfg PromptConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", path, err)
	}
	return &cfg, nil
}

// Render fills in the language hint. A nil config renders the defaults.
func (c *PromptConfig) Render(lang Language) Prompt {
	system, user := DefaultSystemPrompt, DefaultUserPrompt
	if c != nil {
		if strings.TrimSpace(c.System) != "" {
			system = c.System
		}
		if strings.TrimSpace(c.Prompt) != "" {
			user = c.Prompt
		}
	}
	return Prompt{
		System: system,
		User:   strings.ReplaceAll(user, "{{language}}", languageDescription(lang)),
	}
}

func languageDescription(lang Language) string {
	if lang.IncludesLatin() {
		return "Russian (Cyrillic) with some English (Latin)"
	}
	return "Russian (Cyrillic)"
}

// Transcription is what a vision provider returns for one image.
type Transcription struct {
	Lines []string `json:"lines"`
	// Confidence is 0.0-1.0 as reported by the model
	Confidence float64 `json:"confidence"`
}

// Text joins the lines with newlines.
func (t *Transcription) Text() string {
	return strings.Join(t.Lines, "\n")
}

// parseTranscription accepts the requested object, a bare array of lines,
// or an object with a single "text" field. Models wrap JSON in code fences
// despite being told not to, so fences are stripped first.
func parseTranscription(content string) (*Transcription, error) {
	content = stripCodeFence(content)

	var tr Transcription
	if err := json.Unmarshal([]byte(content), &tr); err == nil && tr.Lines != nil {
		return &tr, nil
	}

	var lines []string
	if err := json.Unmarshal([]byte(content), &lines); err == nil {
		return &Transcription{Lines: lines}, nil
	}

	var single struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &single); err != nil {
		return nil, fmt.Errorf("failed to parse transcription: %w", err)
	}
	return &Transcription{Lines: strings.Split(single.Text, "\n"), Confidence: single.Confidence}, nil
}

// decodeReply turns a provider's text reply into a Transcription.
func decodeReply(provider, content string, log *logger.Logger) (*Transcription, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%s returned no text", provider)
	}
	tr, err := parseTranscription(content)
	if err != nil {
		log.WithFields("provider", provider, "content", content).Debug("Unparseable transcription")
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	log.WithFields("provider", provider, "lines", len(tr.Lines), "confidence", tr.Confidence).Debug("Transcription completed")
	return tr, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
