package analyzer

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/gopnik-forensics/gopnik/pkg/document"
)

// analyzeImage decodes a raster image as a single-page document.
func (a *Analyzer) analyzeImage(doc *document.Document) error {
	img, format, err := decodeImageFile(doc.Path)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	doc.Pages = []document.Page{{
		PageNumber: 0,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		DPI:        defaultImageDPI,
		Rotation:   0,
	}}
	doc.Metadata["decoded_format"] = format
	doc.Metadata["color_model"] = colorModelName(img)
	doc.Metadata["has_transparency"] = hasTransparency(img)
	return nil
}

func decodeImageFile(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("analyzer: open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("analyzer: decode image: %w", err)
	}
	return img, format, nil
}

func colorModelName(img image.Image) string {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return "grayscale"
	case *image.CMYK:
		return "cmyk"
	case *image.Paletted:
		return "paletted"
	default:
		return "rgb"
	}
}

// hasTransparency reports whether the image carries a non-opaque alpha
// channel. Opaque images with an alpha channel are treated as RGB.
func hasTransparency(img image.Image) bool {
	type opaquer interface{ Opaque() bool }
	if o, ok := img.(opaquer); ok {
		return !o.Opaque()
	}
	_, _, _, a := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return a < 0xffff
}
