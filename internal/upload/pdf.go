package upload

import (
	"bytes"
	"fmt"
	"image"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/unidoc/unipdf/v3/common"
	"github.com/unidoc/unipdf/v3/common/license"
	unipdf "github.com/unidoc/unipdf/v3/model"
	"github.com/unidoc/unipdf/v3/render"

	"github.com/platinummonkey/leasescan/internal/logger"
)

func init() {
	common.SetLogger(common.NewConsoleLogger(common.LogLevelError))
}

// SetPDFLicenseKey registers a metered unidoc key, required by unipdf to
// render pages.
func SetPDFLicenseKey(key string) error {
	if key == "" {
		return nil
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set PDF license key: %w", err)
	}
	return nil
}

// loadPDF validates a PDF and renders its first page. A scanned passport
// is a single page; further pages are ignored.
func (l *Loader) loadPDF(data []byte, log *logger.Logger) (image.Image, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		return nil, fmt.Errorf("%w: PDF validation failed: %w", ErrDecode, err)
	}

	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to count PDF pages: %w", ErrDecode, err)
	}
	if pages < 1 {
		return nil, fmt.Errorf("%w: PDF has no pages", ErrDecode)
	}
	if pages > 1 {
		log.WithFields("pages", pages).Warn("PDF has several pages, using the first one")
	}

	img, err := l.renderPDF(data, l.dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// renderFirstPage rasterizes page 1 at dpi.
func renderFirstPage(data []byte, dpi int) (image.Image, error) {
	reader, err := unipdf.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	page, err := reader.GetPage(1)
	if err != nil {
		return nil, fmt.Errorf("failed to get page 1: %w", err)
	}

	mediaBox, err := page.GetMediaBox()
	if err != nil {
		return nil, fmt.Errorf("failed to get media box: %w", err)
	}

	// PDF points are 1/72 inch
	device := render.NewImageDevice()
	device.OutputWidth = int((mediaBox.Urx - mediaBox.Llx) * float64(dpi) / 72.0)

	img, err := device.Render(page)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return img, nil
}
