package pii_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

func mustDetection(t *testing.T, typ pii.Type, x1, y1, x2, y2 int, conf float64, page int, method pii.DetectionMethod) pii.Detection {
	t.Helper()
	box, err := pii.NewBoundingBox(x1, y1, x2, y2)
	require.NoError(t, err)
	d, err := pii.NewDetection(typ, box, conf, page, method)
	require.NoError(t, err)
	return d
}

func TestCollection_Filters(t *testing.T) {
	c := pii.NewCollection("doc-1",
		mustDetection(t, pii.TypeEmail, 0, 0, 50, 10, 0.9, 0, pii.MethodNLP),
		mustDetection(t, pii.TypeFace, 10, 10, 60, 60, 0.7, 1, pii.MethodCV),
		mustDetection(t, pii.TypeSSN, 0, 20, 80, 30, 0.85, 0, pii.MethodNLP),
	)

	assert.Len(t, c.ByType(pii.TypeEmail), 1)
	assert.Len(t, c.ByPage(0), 2)
	assert.Len(t, c.Visual(), 1)
	assert.Len(t, c.Text(), 2)
	assert.Len(t, c.Sensitive(), 2) // face + ssn

	// Boundary: detection exactly at threshold is kept.
	assert.Len(t, c.AboveConfidence(0.85), 2)
	assert.Len(t, c.AboveConfidence(0.85+1e-9), 1)
}

func TestCollection_DeduplicateMergesClusters(t *testing.T) {
	// Two heavily overlapping emails plus one distinct face.
	c := pii.NewCollection("doc-1",
		mustDetection(t, pii.TypeEmail, 0, 0, 100, 20, 0.8, 0, pii.MethodNLP),
		mustDetection(t, pii.TypeEmail, 5, 0, 100, 20, 0.9, 0, pii.MethodNLP),
		mustDetection(t, pii.TypeFace, 200, 200, 300, 300, 0.7, 0, pii.MethodCV),
	)

	out := c.Deduplicate(pii.DefaultDuplicateIoU)
	require.Equal(t, 2, out.Len())

	emails := out.ByType(pii.TypeEmail)
	require.Len(t, emails, 1)
	assert.Equal(t, 0.9, emails[0].Confidence)
	assert.Equal(t, 0, emails[0].BoundingBox.X1) // union of the pair
	assert.Contains(t, emails[0].Metadata, "merged_from")
}

func TestCollection_Stats(t *testing.T) {
	c := pii.NewCollection("doc-1",
		mustDetection(t, pii.TypeEmail, 0, 0, 50, 10, 0.6, 0, pii.MethodNLP),
		mustDetection(t, pii.TypeEmail, 0, 20, 50, 30, 1.0, 1, pii.MethodNLP),
	)
	s := c.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 2, s.ByType[pii.TypeEmail])
	assert.Equal(t, 1, s.ByPage[1])
	assert.Equal(t, 0.6, s.MinConfidence)
	assert.Equal(t, 1.0, s.MaxConfidence)
	assert.InDelta(t, 0.8, s.AvgConfidence, 1e-9)
}

func TestCollection_JSONRoundTrip(t *testing.T) {
	c := pii.NewCollection("doc-1",
		mustDetection(t, pii.TypeEmail, 0, 0, 50, 10, 0.9, 0, pii.MethodNLP),
		mustDetection(t, pii.TypePhone, 0, 20, 70, 30, 0.8, 0, pii.MethodNLP),
	)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"width":50`) // derived fields serialized

	var back pii.Collection
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Len(), back.Len())
	assert.Equal(t, c.Stats().ByType, back.Stats().ByType)
}

func TestCollection_WriteCSV(t *testing.T) {
	c := pii.NewCollection("doc-1",
		mustDetection(t, pii.TypeEmail, 0, 0, 50, 10, 0.9, 0, pii.MethodNLP),
	)
	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID,Type,Page"))
	assert.Contains(t, lines[1], "email")
}
