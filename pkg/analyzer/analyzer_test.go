package analyzer_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/analyzer"
	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/document"
)

func writePNG(t *testing.T, dir, name string, w, h int, alpha uint8) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 200, B: 200, A: alpha})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newAnalyzer() *analyzer.Analyzer {
	return analyzer.New(config.Default(), nil)
}

func TestAnalyze_SinglePageImage(t *testing.T) {
	path := writePNG(t, t.TempDir(), "scan.png", 640, 480, 255)

	doc, warnings, err := newAnalyzer().Analyze(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Equal(t, 1, doc.PageCount())
	page := doc.Pages[0]
	assert.Equal(t, 0, page.PageNumber)
	assert.Equal(t, 640, page.Width)
	assert.Equal(t, 480, page.Height)
	assert.Equal(t, 72, page.DPI)

	assert.Equal(t, document.FormatPNG, doc.Format)
	assert.NotEmpty(t, doc.FileHash)
	assert.Equal(t, false, doc.Metadata["has_transparency"])
	assert.Equal(t, "landscape", doc.Metadata["orientation"])
	assert.Equal(t, true, doc.Metadata["consistent_page_sizes"])
	assert.NoError(t, doc.ValidatePageNumbering())
}

func TestAnalyze_TransparencyRecorded(t *testing.T) {
	path := writePNG(t, t.TempDir(), "logo.png", 64, 64, 128)

	doc, _, err := newAnalyzer().Analyze(path)
	require.NoError(t, err)
	assert.Equal(t, true, doc.Metadata["has_transparency"])
}

func TestAnalyze_ValidationFailures(t *testing.T) {
	dir := t.TempDir()
	a := newAnalyzer()

	_, _, err := a.Analyze(filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, analyzer.ErrNotFound)

	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, _, err = a.Analyze(empty)
	assert.ErrorIs(t, err, analyzer.ErrEmptyFile)

	docx := filepath.Join(dir, "report.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o600))
	_, _, err = a.Analyze(docx)
	assert.ErrorIs(t, err, analyzer.ErrUnsupportedFormat)

	var perr *document.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, document.StageAnalyze, perr.Stage)
	assert.Equal(t, docx, perr.Path)
}

func TestAnalyze_OversizedFile(t *testing.T) {
	cfg := config.Default()
	cfg.MaxFileSize = 16
	a := analyzer.New(cfg, nil)

	path := writePNG(t, t.TempDir(), "big.png", 32, 32, 255)
	_, _, err := a.Analyze(path)
	assert.ErrorIs(t, err, analyzer.ErrTooLarge)
}

func TestPageImage_SinglePageBounds(t *testing.T) {
	path := writePNG(t, t.TempDir(), "scan.png", 100, 50, 255)
	a := newAnalyzer()

	img, err := a.PageImage(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	_, err = a.PageImage(path, 1)
	assert.Error(t, err)
}
