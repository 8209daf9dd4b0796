package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/leasescan/internal/logger"
	"github.com/platinummonkey/leasescan/internal/preprocess"
)

func encode(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 10, B: 10, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

// blankPDF builds a PDF of blank pages with a correct xref table.
func blankPDF(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int
	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objects := []string{
		"<</Type/Catalog/Pages 2 0 R>>",
		fmt.Sprintf("<</Type/Pages/Count %d/Kids[%s]>>", pages, strings.Join(kids, " ")),
	}
	for i := 0; i < pages; i++ {
		objects = append(objects, "<</Type/Page/Parent 2 0 R/MediaBox[0 0 420 595]/Resources<<>>>>")
	}

	for i, obj := range objects {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<</Size %d/Root 1 0 R>>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func newTestLoader(opts ...Option) *Loader {
	return NewLoader(append([]Option{WithLogger(logger.NewNop())}, opts...)...)
}

func TestLoadBytes_Images(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format string
	}{
		{name: "png", data: encode(t, 12, 8, imaging.PNG), format: "image/png"},
		{name: "jpeg", data: encode(t, 12, 8, imaging.JPEG), format: "image/jpeg"},
		{name: "gif", data: encode(t, 12, 8, imaging.GIF), format: "image/gif"},
		{name: "bmp", data: encode(t, 12, 8, imaging.BMP), format: "image/bmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := newTestLoader().LoadBytes(tt.data, preprocess.SourceDragDrop)
			require.NoError(t, err)
			assert.Equal(t, tt.format, raw.Format)
			assert.Equal(t, 12, raw.Width)
			assert.Equal(t, 8, raw.Height)
			assert.Equal(t, preprocess.SourceDragDrop, raw.Source)
		})
	}
}

func TestLoadBytes_Rejects(t *testing.T) {
	png := encode(t, 4, 4, imaging.PNG)

	tests := []struct {
		name    string
		loader  *Loader
		data    []byte
		wantErr error
	}{
		{name: "empty", loader: newTestLoader(), data: nil, wantErr: ErrEmpty},
		{name: "text", loader: newTestLoader(), data: []byte("Паспорт гражданина"), wantErr: ErrUnsupportedType},
		{name: "zip", loader: newTestLoader(), data: []byte("PK\x03\x04\x14\x00\x00\x00"), wantErr: ErrUnsupportedType},
		{name: "too large", loader: newTestLoader(WithMaxBytes(int64(len(png) - 1))), data: png, wantErr: ErrTooLarge},
		{name: "truncated png", loader: newTestLoader(), data: png[:40], wantErr: ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.loader.LoadBytes(tt.data, preprocess.SourceFile)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadBytes_ExactLimit(t *testing.T) {
	png := encode(t, 4, 4, imaging.PNG)
	_, err := newTestLoader(WithMaxBytes(int64(len(png)))).LoadBytes(png, preprocess.SourceFile)
	assert.NoError(t, err)
}

func TestLoad_StopsAtLimit(t *testing.T) {
	l := newTestLoader(WithMaxBytes(16))
	_, err := l.Load(strings.NewReader(strings.Repeat("x", 1<<20)), preprocess.SourceCamera)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passport.jpg")
	require.NoError(t, os.WriteFile(path, encode(t, 6, 3, imaging.JPEG), 0o600))

	raw, err := newTestLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, preprocess.SourceFile, raw.Source)
	assert.Equal(t, 6, raw.Width)

	_, err = newTestLoader(WithMaxBytes(10)).LoadFile(path)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = newTestLoader().LoadFile(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = newTestLoader().LoadFile(dir)
	assert.Error(t, err)
}

func TestLoadDataURL(t *testing.T) {
	png := encode(t, 5, 5, imaging.PNG)
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	raw, err := newTestLoader().LoadDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, preprocess.SourceDataURL, raw.Source)
	assert.Equal(t, 5, raw.Width)

	// the declared type is not trusted
	lying := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("plain text, not a picture"))
	_, err = newTestLoader().LoadDataURL(lying)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	for _, bad := range []string{
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png;base64,@@@",
		"data:text/plain,%zz",
	} {
		_, err := newTestLoader().LoadDataURL(bad)
		assert.ErrorIs(t, err, ErrInvalidDataURL, bad)
	}
}

func TestParseDataURL_PercentEncoded(t *testing.T) {
	data, err := parseDataURL("data:text/plain,hello%20world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestLoadBytes_PDF(t *testing.T) {
	var gotDPI int
	l := newTestLoader(WithPDFDPI(150))
	l.renderPDF = func(data []byte, dpi int) (image.Image, error) {
		gotDPI = dpi
		return imaging.New(875, 1240, color.White), nil
	}

	for _, pages := range []int{1, 3} {
		raw, err := l.LoadBytes(blankPDF(pages), preprocess.SourceFile)
		require.NoError(t, err, pages)
		assert.Equal(t, "application/pdf", raw.Format)
		assert.Equal(t, 875, raw.Width)
		assert.Equal(t, 150, gotDPI)
	}
}

func TestLoadBytes_PDFRenderFailure(t *testing.T) {
	l := newTestLoader()
	l.renderPDF = func([]byte, int) (image.Image, error) {
		return nil, errors.New("license required")
	}

	_, err := l.LoadBytes(blankPDF(1), preprocess.SourceFile)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "license required")
}

func TestLoadBytes_BrokenPDF(t *testing.T) {
	l := newTestLoader()
	l.renderPDF = func([]byte, int) (image.Image, error) {
		t.Fatal("broken PDF must not be rendered")
		return nil, nil
	}

	_, err := l.LoadBytes([]byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n"), preprocess.SourceFile)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestRenderFirstPage(t *testing.T) {
	img, err := renderFirstPage(blankPDF(1), 72)
	if err != nil {
		t.Skipf("unipdf rendering unavailable without a license key: %v", err)
	}
	assert.Equal(t, 420, img.Bounds().Dx())
}

func TestOptionsKeepDefaults(t *testing.T) {
	l := newTestLoader(WithMaxBytes(0), WithPDFDPI(-1))
	assert.Equal(t, DefaultMaxBytes, l.MaxBytes())
	assert.Equal(t, DefaultPDFDPI, l.dpi)
	assert.NoError(t, SetPDFLicenseKey(""))
}
