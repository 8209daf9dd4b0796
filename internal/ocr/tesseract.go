package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/platinummonkey/leasescan/internal/logger"
)

const (
	cyrillicLetters = "АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯабвгдеёжзийклмнопрстуфхцчшщъыьэюя"
	latinLetters    = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	digits          = "0123456789"
	punctuation     = " .,:;-–—№/\"()<"
)

// DefaultWhitelist returns the characters a passport page is expected to
// contain for lang.
func DefaultWhitelist(lang Language) string {
	wl := cyrillicLetters + digits + punctuation
	if lang.IncludesLatin() {
		wl += latinLetters
	}
	return wl
}

// TesseractConfig configures the Tesseract runtime.
type TesseractConfig struct {
	// TessdataPrefix points at the directory holding *.traineddata (empty = system default)
	TessdataPrefix string

	// Whitelist restricts the recognized characters (empty = DefaultWhitelist)
	Whitelist string

	// DisableWhitelist recognizes every character the model knows
	DisableWhitelist bool
}

// TesseractRuntime loads a local Tesseract engine through gosseract.
type TesseractRuntime struct {
	cfg           TesseractConfig
	logger        *logger.Logger
	clientFactory func() *gosseract.Client
}

// NewTesseractRuntime creates a Tesseract runtime.
func NewTesseractRuntime(cfg TesseractConfig, log *logger.Logger) *TesseractRuntime {
	if log == nil {
		log = logger.Get()
	}
	return &TesseractRuntime{
		cfg:           cfg,
		logger:        log,
		clientFactory: gosseract.NewClient,
	}
}

// Name returns the runtime name
func (r *TesseractRuntime) Name() string {
	return "tesseract"
}

// Initialize creates a client and forces the language model to load by
// recognizing a blank page, so a missing traineddata file surfaces here
// rather than on the first scan.
func (r *TesseractRuntime) Initialize(ctx context.Context, lang Language) (Engine, error) {
	client := r.clientFactory()

	if r.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(r.cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}

	if err := client.SetLanguage(lang.Codes()...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	if !r.cfg.DisableWhitelist {
		wl := r.cfg.Whitelist
		if wl == "" {
			wl = DefaultWhitelist(lang)
		}
		if err := client.SetWhitelist(wl); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set character whitelist: %w", err)
		}
	}

	warm := make(chan error, 1)
	go func() {
		warm <- warmUp(client)
	}()

	select {
	case err := <-warm:
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to load language model %s: %w", lang, err)
		}
	case <-ctx.Done():
		// The client is still in use by the warm-up; release it once that returns.
		go func() {
			<-warm
			client.Close()
		}()
		return nil, ctx.Err()
	}

	r.logger.WithFields("version", gosseract.Version(), "language", string(lang)).Debug("Tesseract initialized")

	return &tesseractEngine{
		client:   client,
		language: lang,
		logger:   r.logger,
	}, nil
}

func warmUp(client *gosseract.Client) error {
	var buf bytes.Buffer
	blank := imaging.New(32, 32, color.White)
	if err := imaging.Encode(&buf, blank, imaging.PNG); err != nil {
		return err
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return err
	}
	_, err := client.Text()
	return err
}

type tesseractEngine struct {
	mu       sync.Mutex
	client   *gosseract.Client
	language Language
	logger   *logger.Logger
}

// Recognize ignores ctx once the call started; Tesseract cannot be interrupted.
func (e *tesseractEngine) Recognize(ctx context.Context, in Input) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil, fmt.Errorf("engine released")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()

	if err := e.client.SetImageFromBytes(in.Image); err != nil {
		return nil, fmt.Errorf("failed to set image data: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to recognize text: %w", err)
	}

	words := e.words()

	res := &Result{
		Text: strings.TrimSpace(text),
		Metadata: Metadata{
			Engine:     "tesseract",
			Model:      strings.Join(e.language.Codes(), "+"),
			Language:   e.language,
			Confidence: meanConfidence(words),
			Words:      words,
			Duration:   time.Since(start),
		},
	}

	e.logger.WithFields(
		"words", len(words),
		"confidence", res.Metadata.Confidence,
		"duration", res.Metadata.Duration,
	).Info("OCR processing completed")

	return res, nil
}

// words reads word boxes for the last image. Missing boxes only cost the
// confidence figure, so errors are logged and dropped.
func (e *tesseractEngine) words() []Word {
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.WithError(err).Debug("No word boxes available")
		return nil
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		words = append(words, NewWord(
			b.Word,
			NewRectangle(b.Box.Min.X, b.Box.Min.Y, b.Box.Dx(), b.Box.Dy()),
			b.Confidence,
		))
	}
	return words
}

func (e *tesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
