package export

import (
	"bytes"
	"testing"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFRendersAllKinds(t *testing.T) {
	half := 0.5
	doc := models.NewDesignDocument("Landing Page")
	doc.Elements = []*models.DesignElement{
		{ID: "r1", Kind: models.KindRectangle, Geometry: models.Geometry{X: 40, Y: 24, W: 120, H: 40}, Style: models.Style{Fill: "#007bff", FillMode: models.FillModeFilled}},
		{ID: "e1", Kind: models.KindEllipse, Geometry: models.Geometry{X: 10, Y: 10, W: 50, H: 30}, Style: models.Style{Stroke: "#222222", StrokeWidth: 2, FillMode: models.FillModeOutline}},
		{ID: "l1", Kind: models.KindLine, Geometry: models.Geometry{X: 0, Y: 0, X2: 100, Y2: 50}, Style: models.Style{Stroke: "#00aa00", StrokeWidth: 3}},
		{ID: "p1", Kind: models.KindFreehandPath, Geometry: models.Geometry{Points: []models.PathPoint{{X: 1, Y: 2}, {X: 3, Y: 4, Pressure: &half}}}, Style: models.Style{Stroke: "#ff00ff", StrokeWidth: 1}},
		{ID: "t1", Kind: models.KindText, Geometry: models.Geometry{X: 5, Y: 6, FontSize: 16}, Style: models.Style{Fill: "#111111"}, Label: "Hello"},
		{ID: "i1", Kind: models.KindImported, Raw: ".hero { margin: 4px; }"},
	}

	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, doc))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")), "output is a PDF document")
	assert.Greater(t, buf.Len(), 500)
}

func TestPDFRejectsUnknownKind(t *testing.T) {
	doc := models.NewDesignDocument("x")
	doc.Elements = []*models.DesignElement{{ID: "z1", Kind: "triangle"}}

	var buf bytes.Buffer
	assert.Error(t, PDF(&buf, doc))
}

func TestHexRGB(t *testing.T) {
	r, g, b, ok := hexRGB("#007bff")
	require.True(t, ok)
	assert.Equal(t, []int{0, 123, 255}, []int{r, g, b})

	_, _, _, ok = hexRGB("#fff")
	assert.False(t, ok, "short form is not used by the exporter")
	_, _, _, ok = hexRGB("blue")
	assert.False(t, ok)
}
