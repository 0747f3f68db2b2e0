package redact

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

// applyStyle paints one redaction region. All styles are destructive: the
// original pixels inside the box are unrecoverable from the output.
func applyStyle(img *image.NRGBA, box pii.BoundingBox, style profile.Style) {
	rect := image.Rect(box.X1, box.Y1, box.X2, box.Y2).Intersect(img.Bounds())
	if rect.Empty() {
		return
	}

	switch style {
	case profile.StyleSolidWhite:
		draw.Draw(img, rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	case profile.StylePixelated:
		pixelate(img, rect)
	case profile.StyleBlurred:
		blurRegion(img, rect)
	case profile.StylePattern:
		crossHatch(img, rect)
	default:
		// solid_black, and the fallback for unknown styles
		draw.Draw(img, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
}

// pixelate replaces the region with its block averages. The block size
// scales with the region area so small boxes still lose detail.
func pixelate(img *image.NRGBA, rect image.Rectangle) {
	block := int(math.Sqrt(float64(rect.Dx()*rect.Dy())) / 8)
	if block < 8 {
		block = 8
	}

	for y := rect.Min.Y; y < rect.Max.Y; y += block {
		for x := rect.Min.X; x < rect.Max.X; x += block {
			cell := image.Rect(x, y, x+block, y+block).Intersect(rect)
			avg := averageColor(img, cell)
			draw.Draw(img, cell, image.NewUniform(avg), image.Point{}, draw.Src)
		}
	}
}

func averageColor(img *image.NRGBA, rect image.Rectangle) color.NRGBA {
	var r, g, b, n uint64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			r += uint64(c.R)
			g += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: 255}
}

// blurRegion blurs the region with a sigma proportional to its size, strong
// enough that text inside is unreadable.
func blurRegion(img *image.NRGBA, rect image.Rectangle) {
	sigma := float64(minDim(rect)) / 6
	if sigma < 6 {
		sigma = 6
	}
	region := imaging.Crop(img, rect)
	blurred := imaging.Blur(region, sigma)
	draw.Draw(img, rect, blurred, image.Point{}, draw.Src)
}

// crossHatch fills the region black and overlays diagonal white hatching so
// redacted areas are visually distinct from plain black boxes.
func crossHatch(img *image.NRGBA, rect image.Rectangle) {
	draw.Draw(img, rect, image.NewUniform(color.Black), image.Point{}, draw.Src)

	const step = 12
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if (x+y)%step == 0 || (x-y)%step == 0 {
				img.SetNRGBA(x, y, white)
			}
		}
	}
}

func minDim(rect image.Rectangle) int {
	if rect.Dx() < rect.Dy() {
		return rect.Dx()
	}
	return rect.Dy()
}
