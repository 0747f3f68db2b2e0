package nlp

import "github.com/gopnik-forensics/gopnik/pkg/pii"

// Text coordinates are synthesized, not measured: a page without positional
// text data still needs plausible boxes for redaction. Lines split the page
// height evenly; characters split the width proportionally to the offset
// within the line.
const (
	// minLineDivisor keeps short lines from stretching across the page.
	minLineDivisor = 60
	// inkFraction is the portion of a line slot the glyphs occupy.
	inkFraction = 0.8
)

func synthesizeBox(pageW, pageH, lineCount, lineIdx, lineLen, start, end int) pii.BoundingBox {
	if lineCount < 1 {
		lineCount = 1
	}
	lineH := float64(pageH) / float64(lineCount)

	divisor := lineLen
	if divisor < minLineDivisor {
		divisor = minLineDivisor
	}
	charW := float64(pageW) / float64(divisor)

	y1 := float64(lineIdx)*lineH + lineH*(1-inkFraction)/2
	y2 := y1 + lineH*inkFraction
	x1 := float64(start) * charW
	x2 := float64(end) * charW

	box := pii.BoundingBox{
		X1: int(x1),
		Y1: int(y1),
		X2: int(x2 + 0.5),
		Y2: int(y2 + 0.5),
	}
	if box.X2 > pageW {
		box.X2 = pageW
	}
	if box.Y2 > pageH {
		box.Y2 = pageH
	}
	if box.X2 <= box.X1 {
		box.X2 = box.X1 + 1
	}
	if box.Y2 <= box.Y1 {
		box.Y2 = box.Y1 + 1
	}
	return box
}
