// Package ocr wraps the text recognition runtimes used to read passport
// scans and shares one loaded engine across the process.
package ocr

import (
	"fmt"
	"strings"
	"time"
)

// Language is the recognition language hint.
type Language string

const (
	// LanguageRussian recognizes Cyrillic text only
	LanguageRussian Language = "rus"

	// LanguageRussianEnglish adds the Latin alphabet for transliterated names
	LanguageRussianEnglish Language = "rus+eng"
)

// ParseLanguage validates a language hint.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguageRussian, LanguageRussianEnglish:
		return Language(s), nil
	default:
		return "", fmt.Errorf("unsupported OCR language %q (supported: rus, rus+eng)", s)
	}
}

// Codes returns the individual Tesseract language codes.
func (l Language) Codes() []string {
	return strings.Split(string(l), "+")
}

// IncludesLatin reports whether the hint allows Latin letters.
func (l Language) IncludesLatin() bool {
	for _, c := range l.Codes() {
		if c == "eng" {
			return true
		}
	}
	return false
}

// Input is one image handed to an engine.
type Input struct {
	// Image is PNG-encoded pixel data
	Image []byte

	// Width and Height of the image in pixels
	Width  int
	Height int

	// Preprocessed is true when the image was binarized first
	Preprocessed bool
}

// Result is the immutable output of one recognition call.
type Result struct {
	// Text is the recognized text with the engine's line breaks. May be empty.
	Text string

	// Metadata carries diagnostics for the operator and the logs
	Metadata Metadata
}

// Metadata describes how a Result was produced.
type Metadata struct {
	// Engine names the runtime ("tesseract", "vision/ollama", ...)
	Engine string

	// Model is the language model or LLM used
	Model string

	// Language is the language hint the engine was initialized with
	Language Language

	// Confidence is the mean word confidence (0-100), zero when unknown
	Confidence float64

	// Words holds per-word detail when the engine reports it
	Words []Word

	// Duration is how long the engine call took
	Duration time.Duration
}

// WordCount returns the number of words the engine reported.
func (m Metadata) WordCount() int {
	return len(m.Words)
}

// Word represents a single recognized word with its bounding box
type Word struct {
	// Text is the recognized text content
	Text string

	// BoundingBox is the position and size of the word in the image
	BoundingBox Rectangle

	// Confidence is the recognition confidence score (0-100)
	Confidence float64
}

// Rectangle represents a rectangular bounding box
type Rectangle struct {
	X      int
	Y      int
	Width  int
	Height int
}

// NewRectangle creates a new Rectangle
func NewRectangle(x, y, width, height int) Rectangle {
	return Rectangle{X: x, Y: y, Width: width, Height: height}
}

// NewWord creates a new Word
func NewWord(text string, bbox Rectangle, confidence float64) Word {
	return Word{
		Text:        text,
		BoundingBox: bbox,
		Confidence:  confidence,
	}
}

// meanConfidence averages word confidence, ignoring empty words.
func meanConfidence(words []Word) float64 {
	total, n := 0.0, 0
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		total += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
