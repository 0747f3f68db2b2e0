package cv_test

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/detect/cv"
	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

func whitePage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// drawQR renders a QR code for payload onto page at (ox, oy).
func drawQR(t *testing.T, page *image.NRGBA, payload string, ox, oy, size int) {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(
		payload, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	require.NoError(t, err)

	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				page.SetNRGBA(ox+x, oy+y, color.NRGBA{A: 255})
			}
		}
	}
}

// drawScribble lays several overlapping sine strokes, the ink pattern the
// signature heuristic looks for.
func drawScribble(page *image.NRGBA, x0, y0, w, h int) {
	for stroke := 0; stroke < 4; stroke++ {
		phase := float64(stroke) * 0.9
		for x := 0; x < w; x++ {
			y := y0 + h/2 + int(float64(h)/2.5*math.Sin(float64(x)/18.0+phase))
			page.SetNRGBA(x0+x, y, color.NRGBA{A: 255})
		}
	}
}

func inputFor(img image.Image, w, h int) detect.Input {
	doc := document.New("scan.png")
	doc.Pages = []document.Page{{PageNumber: 0, Width: w, Height: h, DPI: 72}}
	return detect.Input{
		Document: doc,
		Render:   func(int) (image.Image, error) { return img, nil },
	}
}

func TestDetectPII_QRCode(t *testing.T) {
	page := whitePage(800, 800)
	drawQR(t, page, "MRN-88231", 80, 80, 240)

	eng := cv.New(nil)
	dets, err := eng.DetectPII(context.Background(), inputFor(page, 800, 800))
	require.NoError(t, err)

	var qr *pii.Detection
	for i := range dets {
		if dets[i].Type == pii.TypeQRCode {
			qr = &dets[i]
		}
	}
	require.NotNil(t, qr, "expected a qr_code detection")
	assert.Equal(t, "MRN-88231", qr.TextContent)
	assert.Equal(t, true, qr.Metadata["extracted_text"])
	assert.Equal(t, pii.MethodCV, qr.Method)

	// The reported box overlaps the drawn symbol.
	symbol := pii.BoundingBox{X1: 80, Y1: 80, X2: 320, Y2: 320}
	assert.Greater(t, qr.BoundingBox.IoU(symbol), 0.2)
}

func TestDetectPII_SignatureHeuristic(t *testing.T) {
	page := whitePage(800, 800)
	drawScribble(page, 150, 640, 360, 56)

	eng := cv.New(nil)
	dets, err := eng.DetectPII(context.Background(), inputFor(page, 800, 800))
	require.NoError(t, err)

	var sig *pii.Detection
	for i := range dets {
		if dets[i].Type == pii.TypeSignature {
			sig = &dets[i]
		}
	}
	require.NotNil(t, sig, "expected a signature detection")
	assert.Equal(t, "ink_density", sig.Metadata["heuristic"])

	drawn := pii.BoundingBox{X1: 150, Y1: 640, X2: 510, Y2: 696}
	assert.Greater(t, sig.BoundingBox.IoU(drawn), 0.2)
}

func TestDetectPII_BlankPage(t *testing.T) {
	page := whitePage(400, 400)

	eng := cv.New(nil)
	dets, err := eng.DetectPII(context.Background(), inputFor(page, 400, 400))
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectPII_NoRasterSource(t *testing.T) {
	doc := document.New("scan.png")
	doc.Pages = []document.Page{{PageNumber: 0, Width: 100, Height: 100}}

	eng := cv.New(nil)
	_, err := eng.DetectPII(context.Background(), detect.Input{Document: doc})
	assert.Error(t, err)
}

func TestConfigure_TogglesDetectors(t *testing.T) {
	page := whitePage(800, 800)
	drawQR(t, page, "secret", 80, 80, 240)

	eng := cv.New(nil)
	require.NoError(t, eng.Configure(map[string]any{
		"detect_codes":      false,
		"detect_signatures": false,
	}))

	dets, err := eng.DetectPII(context.Background(), inputFor(page, 800, 800))
	require.NoError(t, err)
	assert.Empty(t, dets)

	info := eng.ModelInfo()
	assert.Equal(t, false, info["code_decoding"])
	assert.Equal(t, false, info["face_cascade"])
}
