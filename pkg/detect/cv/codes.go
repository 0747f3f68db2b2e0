package cv

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Decoded payloads are exact, so machine-readable codes get a fixed high
// confidence.
const codeConfidence = 0.95

// detectCodesOnPage decodes QR codes and 1D product barcodes. The decoders
// locate at most one code each; failures simply mean no code was found.
func (e *Engine) detectCodesOnPage(img image.Image, page int, scale float64) []pii.Detection {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		e.log.Warn("binarize failed for code decoding", "page", page, "error", err)
		return nil
	}

	var out []pii.Detection
	if result, err := qrcode.NewQRCodeReader().Decode(bmp, nil); err == nil {
		if det, ok := e.codeDetection(pii.TypeQRCode, result, img, page, scale); ok {
			out = append(out, det)
		}
	}
	if result, err := oned.NewMultiFormatUPCEANReader(nil).Decode(bmp, nil); err == nil {
		if det, ok := e.codeDetection(pii.TypeBarcode, result, img, page, scale); ok {
			out = append(out, det)
		}
	}
	return out
}

func (e *Engine) codeDetection(t pii.Type, result *gozxing.Result, img image.Image, page int, scale float64) (pii.Detection, bool) {
	box, ok := boxFromResultPoints(result.GetResultPoints(), img.Bounds())
	if !ok {
		return pii.Detection{}, false
	}

	det, err := pii.NewDetection(t, mapBox(box, scale), codeConfidence, page, pii.MethodCV)
	if err != nil {
		return pii.Detection{}, false
	}
	det.TextContent = result.GetText()
	det = det.WithMetadata("extracted_text", true).
		WithMetadata("barcode_format", result.GetBarcodeFormat().String())
	return det, true
}

// boxFromResultPoints bounds the decoder's locator points, padded outward
// since the points sit inside the symbol, and clamped to the image.
func boxFromResultPoints(points []gozxing.ResultPoint, bounds image.Rectangle) (pii.BoundingBox, bool) {
	if len(points) == 0 {
		return pii.BoundingBox{}, false
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}

	padX := math.Max(8, (maxX-minX)*0.15)
	padY := math.Max(8, (maxY-minY)*0.15)
	// 1D readers report a scan line; give the box vertical extent.
	if maxY-minY < 4 {
		padY = math.Max(padY, 20)
	}

	box := pii.BoundingBox{
		X1: clampInt(int(minX-padX), 0, bounds.Dx()),
		Y1: clampInt(int(minY-padY), 0, bounds.Dy()),
		X2: clampInt(int(maxX+padX+0.5), 0, bounds.Dx()),
		Y2: clampInt(int(maxY+padY+0.5), 0, bounds.Dy()),
	}
	return box, box.Validate() == nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
