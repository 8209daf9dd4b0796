// Package upload validates and decodes passport uploads before they reach
// the pipeline. Only images and PDFs within the size limit get through.
package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/preprocess"
)

const (
	// DefaultMaxBytes is the upload size limit
	DefaultMaxBytes int64 = 10 << 20

	// DefaultPDFDPI is the resolution PDF pages are rendered at
	DefaultPDFDPI = 200

	mimePDF = "application/pdf"
)

var (
	// ErrEmpty is returned for zero-length uploads
	ErrEmpty = errors.New("upload is empty")

	// ErrTooLarge is returned when an upload exceeds the size limit
	ErrTooLarge = errors.New("upload exceeds size limit")

	// ErrUnsupportedType is returned for content that is neither an image nor a PDF
	ErrUnsupportedType = errors.New("upload must be an image or a PDF")

	// ErrInvalidDataURL is returned for malformed data URLs
	ErrInvalidDataURL = errors.New("invalid data URL")

	// ErrDecode is returned when the content cannot be turned into pixels
	ErrDecode = errors.New("cannot decode upload")
)

// Loader turns upload bytes into a RawImage.
type Loader struct {
	maxBytes  int64
	dpi       int
	logger    *logger.Logger
	renderPDF func(data []byte, dpi int) (image.Image, error)
}

// Option configures a Loader
type Option func(*Loader)

// WithMaxBytes sets the size limit. Zero or less keeps the default.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithPDFDPI sets the PDF rendering resolution. Zero or less keeps the default.
func WithPDFDPI(dpi int) Option {
	return func(l *Loader) {
		if dpi > 0 {
			l.dpi = dpi
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(l *Loader) {
		l.logger = log
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		maxBytes:  DefaultMaxBytes,
		dpi:       DefaultPDFDPI,
		logger:    logger.Get(),
		renderPDF: renderFirstPage,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MaxBytes returns the configured size limit.
func (l *Loader) MaxBytes() int64 {
	return l.maxBytes
}

// LoadFile reads an upload from disk.
func (l *Loader) LoadFile(path string) (preprocess.RawImage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return preprocess.RawImage{}, fmt.Errorf("failed to stat upload: %w", err)
	}
	if info.IsDir() {
		return preprocess.RawImage{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > l.maxBytes {
		return preprocess.RawImage{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, info.Size(), l.maxBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return preprocess.RawImage{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	return l.Load(f, preprocess.SourceFile)
}

// Load reads an upload from r, stopping just past the size limit.
func (l *Loader) Load(r io.Reader, source preprocess.Source) (preprocess.RawImage, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return preprocess.RawImage{}, fmt.Errorf("failed to read upload: %w", err)
	}
	return l.LoadBytes(data, source)
}

// LoadDataURL decodes a data: URL such as a camera capture.
func (l *Loader) LoadDataURL(s string) (preprocess.RawImage, error) {
	data, err := parseDataURL(s)
	if err != nil {
		return preprocess.RawImage{}, err
	}
	return l.LoadBytes(data, preprocess.SourceDataURL)
}

// LoadBytes validates and decodes an upload. The MIME type is sniffed
// from the content; names and declared types are not trusted.
func (l *Loader) LoadBytes(data []byte, source preprocess.Source) (preprocess.RawImage, error) {
	if len(data) == 0 {
		return preprocess.RawImage{}, ErrEmpty
	}
	if int64(len(data)) > l.maxBytes {
		return preprocess.RawImage{}, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)
	}

	mtype := mimetype.Detect(data)
	log := l.logger.WithFields("mime", mtype.String(), "bytes", len(data), "source", string(source))

	var (
		img    image.Image
		format string
		err    error
	)
	switch {
	case mtype.Is(mimePDF):
		format = mimePDF
		img, err = l.loadPDF(data, log)
	case strings.HasPrefix(mtype.String(), "image/"):
		format = baseType(mtype.String())
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrDecode, format, err)
		}
	default:
		return preprocess.RawImage{}, fmt.Errorf("%w: got %s", ErrUnsupportedType, mtype.String())
	}
	if err != nil {
		return preprocess.RawImage{}, err
	}

	raw := preprocess.NewRawImage(img, format, source)
	log.WithFields("width", raw.Width, "height", raw.Height).Debug("Upload decoded")
	return raw, nil
}

// baseType strips MIME parameters.
func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		return mime[:i]
	}
	return mime
}

// parseDataURL decodes the payload of data:[<mediatype>][;base64],<data>.
func parseDataURL(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return nil, fmt.Errorf("%w: missing data: scheme", ErrInvalidDataURL)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURL)
	}

	if strings.HasSuffix(meta, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
		}
		return data, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataURL, err)
	}
	return []byte(data), nil
}
