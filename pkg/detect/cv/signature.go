package cv

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Signature heuristic tuning. Signatures appear as sparse dark strokes in
// the lower part of a page, forming wide regions of moderate ink density.
const (
	sigRegionStart = 0.55 // fraction of page height where the search begins
	sigCell        = 16   // analysis grid cell in pixels
	sigInkLum      = 110  // gray level below which a pixel counts as ink
	sigMinDensity  = 0.04
	sigMaxDensity  = 0.45
	sigMinAspect   = 1.5
	sigMinWidth    = 60
)

func (e *Engine) detectSignatures(img image.Image, page int, scale float64) ([]pii.Detection, error) {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	startY := int(float64(h) * sigRegionStart)
	cols := (w + sigCell - 1) / sigCell
	rows := (h - startY + sigCell - 1) / sigCell
	if cols <= 0 || rows <= 0 {
		return nil, nil
	}

	// Mark grid cells whose ink density falls in the stroke band.
	marked := make([]bool, cols*rows)
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			density := cellInkDensity(gray, cx*sigCell, startY+cy*sigCell, w, h)
			marked[cy*cols+cx] = density >= sigMinDensity && density <= sigMaxDensity
		}
	}

	var out []pii.Detection
	visited := make([]bool, cols*rows)
	for idx := range marked {
		if !marked[idx] || visited[idx] {
			continue
		}
		region := growRegion(marked, visited, idx, cols, rows)

		box := pii.BoundingBox{
			X1: region.Min.X * sigCell,
			Y1: startY + region.Min.Y*sigCell,
			X2: minInt(region.Max.X*sigCell, w),
			Y2: minInt(startY+region.Max.Y*sigCell, h),
		}
		// Scale the area floor with the same factor as the raster.
		minArea := int(float64(e.minSigArea) / (scale * scale))
		if box.Area() < minArea || box.Width() < sigMinWidth {
			continue
		}
		aspect := float64(box.Width()) / float64(box.Height())
		if aspect < sigMinAspect {
			continue
		}

		confidence := 0.6
		if aspect >= 2.5 {
			confidence = 0.7
		}
		det, err := pii.NewDetection(pii.TypeSignature, mapBox(box, scale), confidence, page, pii.MethodCV)
		if err != nil {
			continue
		}
		out = append(out, det.WithMetadata("heuristic", "ink_density"))
	}
	return out, nil
}

func cellInkDensity(gray *image.NRGBA, x0, y0, w, h int) float64 {
	ink, total := 0, 0
	for y := y0; y < y0+sigCell && y < h; y++ {
		for x := x0; x < x0+sigCell && x < w; x++ {
			c := gray.NRGBAAt(x, y)
			if lum(c) < sigInkLum {
				ink++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ink) / float64(total)
}

func lum(c color.NRGBA) int { return int(c.R) }

// growRegion flood-fills 4-connected marked cells and returns their cell
// bounding rectangle.
func growRegion(marked, visited []bool, start, cols, rows int) image.Rectangle {
	stack := []int{start}
	visited[start] = true
	region := image.Rect(start%cols, start/cols, start%cols+1, start/cols+1)

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := idx%cols, idx/cols
		region = region.Union(image.Rect(cx, cy, cx+1, cy+1))

		for _, n := range [4][2]int{{cx - 1, cy}, {cx + 1, cy}, {cx, cy - 1}, {cx, cy + 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || nx >= cols || ny < 0 || ny >= rows {
				continue
			}
			nidx := ny*cols + nx
			if marked[nidx] && !visited[nidx] {
				visited[nidx] = true
				stack = append(stack, nidx)
			}
		}
	}
	return region
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
