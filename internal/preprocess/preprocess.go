// Package preprocess prepares uploaded passport photos for recognition.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/platinummonkey/leasescan/internal/logger"
)

// DefaultThreshold is the luminance mid-point used for binarization.
const DefaultThreshold uint8 = 128

// Source identifies how an image reached the pipeline.
type Source string

const (
	SourceFile     Source = "file"
	SourceCamera   Source = "camera"
	SourceDragDrop Source = "drag-drop"
	SourceDataURL  Source = "data-url"
)

// RawImage is a decoded upload, exclusively owned by one recognition attempt.
type RawImage struct {
	Image  image.Image
	Width  int
	Height int
	// Format is the sniffed MIME type of the upload (image/jpeg, application/pdf, ...).
	Format string
	Source Source
}

// NewRawImage wraps a decoded image and records its dimensions.
func NewRawImage(img image.Image, format string, source Source) RawImage {
	raw := RawImage{Image: img, Format: format, Source: source}
	if img != nil {
		b := img.Bounds()
		raw.Width, raw.Height = b.Dx(), b.Dy()
	}
	return raw
}

// Empty reports whether the image has no pixels.
func (r RawImage) Empty() bool {
	return r.Image == nil || r.Width <= 0 || r.Height <= 0
}

// PNG encodes the image for an OCR engine.
func (r RawImage) PNG() ([]byte, error) {
	return encodePNG(r.Image)
}

// Image is a binarized copy of a RawImage with the same shape.
type Image struct {
	Image  image.Image
	Width  int
	Height int
	Format string
	// Binarized is false when the input was passed through untouched.
	Binarized bool
}

// PNG encodes the image for an OCR engine.
func (i Image) PNG() ([]byte, error) {
	return encodePNG(i.Image)
}

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("no image to encode")
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Preprocessor binarizes images ahead of recognition.
type Preprocessor struct {
	threshold uint8
	logger    *logger.Logger
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithThreshold sets the luminance threshold. Pixels darker than it become black.
func WithThreshold(threshold uint8) Option {
	return func(p *Preprocessor) {
		p.threshold = threshold
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = log
	}
}

// New creates a Preprocessor.
func New(opts ...Option) *Preprocessor {
	p := &Preprocessor{
		threshold: DefaultThreshold,
		logger:    logger.Get(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns the configured luminance threshold.
func (p *Preprocessor) Threshold() uint8 {
	return p.threshold
}

// Binarize converts every pixel to pure black or pure white by comparing
// the average of its R, G and B channels against the threshold. Zero-sized
// images are returned unchanged.
func (p *Preprocessor) Binarize(raw RawImage) Image {
	if raw.Empty() {
		p.logger.Debug("Skipping binarization of empty image")
		return Image{Image: raw.Image, Width: raw.Width, Height: raw.Height, Format: raw.Format}
	}

	threshold := int(p.threshold)
	out := imaging.AdjustFunc(raw.Image, func(c color.NRGBA) color.NRGBA {
		lum := (int(c.R) + int(c.G) + int(c.B)) / 3
		if lum < threshold {
			return color.NRGBA{R: 0, G: 0, B: 0, A: 255}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	})

	p.logger.Debugw("Binarized image",
		"width", raw.Width,
		"height", raw.Height,
		"threshold", p.threshold)

	return Image{
		Image:     out,
		Width:     raw.Width,
		Height:    raw.Height,
		Format:    raw.Format,
		Binarized: true,
	}
}

// Passthrough wraps a RawImage without modifying it, for pipelines that
// skip binarization.
func Passthrough(raw RawImage) Image {
	return Image{Image: raw.Image, Width: raw.Width, Height: raw.Height, Format: raw.Format}
}

// Binarize applies the default threshold.
func Binarize(raw RawImage) Image {
	return New().Binarize(raw)
}
