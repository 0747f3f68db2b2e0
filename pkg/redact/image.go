package redact

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

const jpegQuality = 92

// redactImage repaints a single-page raster and writes it in the source
// format.
func (r *Redactor) redactImage(doc *document.Document, detections []pii.Detection, style profile.Style, outputPath string) error {
	f, err := os.Open(doc.Path)
	if err != nil {
		return fmt.Errorf("redact: open %s: %w", doc.Path, err)
	}
	src, _, err := image.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("redact: decode %s: %w", doc.Path, err)
	}

	canvas := imaging.Clone(src)
	for _, d := range detections {
		applyStyle(canvas, d.BoundingBox, style)
	}
	return encodeImage(canvas, outputPath)
}

// encodeImage writes img in the format implied by the output extension.
func encodeImage(img image.Image, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("redact: create %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(out, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality})
	case ".tiff", ".tif":
		err = tiff.Encode(out, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		err = bmp.Encode(out, img)
	default:
		err = png.Encode(out, img)
	}
	if err != nil {
		return fmt.Errorf("redact: encode %s: %w", path, err)
	}
	return nil
}
