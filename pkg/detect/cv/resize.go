package cv

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// downscale shrinks img so its longer side is at most maxDim and returns
// the factor that maps scaled coordinates back to the original raster.
// Images already within the cap pass through with scale 1.
func downscale(img image.Image, maxDim int) (image.Image, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img, 1.0
	}

	var scaled image.Image
	if w >= h {
		scaled = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		return scaled, float64(w) / float64(maxDim)
	}
	scaled = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
	return scaled, float64(h) / float64(maxDim)
}

// mapBox projects a box detected on the scaled raster back onto the
// original page coordinates.
func mapBox(box pii.BoundingBox, scale float64) pii.BoundingBox {
	if scale == 1.0 {
		return box
	}
	return pii.BoundingBox{
		X1: int(float64(box.X1) * scale),
		Y1: int(float64(box.Y1) * scale),
		X2: int(float64(box.X2)*scale + 0.5),
		Y2: int(float64(box.Y2)*scale + 0.5),
	}
}
