package cv

import (
	"image"

	pigo "github.com/esimov/pigo/core"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// pigo quality scores roughly span 0..40; this divisor maps them onto the
// confidence scale with saturation at 1.
const faceQualityDivisor = 40.0

// clusterOverlap is the IoU pigo uses to collapse raw cascade windows.
const clusterOverlap = 0.2

func (e *Engine) detectFaces(img image.Image, page int, scale float64) ([]pii.Detection, error) {
	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	params := pigo.CascadeParams{
		MinSize:     e.minFaceSize,
		MaxSize:     e.maxFaceSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	found := e.classifier.RunCascade(params, 0.0)
	found = e.classifier.ClusterDetections(found, clusterOverlap)

	var out []pii.Detection
	for _, f := range found {
		if f.Q < e.faceQuality {
			continue
		}
		half := f.Scale / 2
		box := mapBox(pii.BoundingBox{
			X1: f.Col - half,
			Y1: f.Row - half,
			X2: f.Col + half,
			Y2: f.Row + half,
		}, scale)
		if box.Validate() != nil {
			continue
		}

		confidence := float64(f.Q) / faceQualityDivisor
		if confidence > 1 {
			confidence = 1
		}
		det, err := pii.NewDetection(pii.TypeFace, box, confidence, page, pii.MethodCV)
		if err != nil {
			continue
		}
		out = append(out, det.WithMetadata("cascade_quality", float64(f.Q)))
	}
	return out, nil
}
