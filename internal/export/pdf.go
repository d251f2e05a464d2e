package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/jung-kurt/gofpdf"
)

// Canvas coordinates are pixels; the PDF page is millimetres. A4 portrait is
// 210mm wide, so a 1080px canvas maps comfortably at px/5.
const pxPerMM = 5.0

// PDF renders a design document onto a single A4 page. Imported elements
// carry opaque source text and are skipped.
func PDF(w io.Writer, doc *models.DesignDocument) error {
	p := gofpdf.New("P", "mm", "A4", "")
	p.AddPage()
	p.SetFont("Helvetica", "", 12)

	for _, el := range doc.Elements {
		if err := drawElement(p, el); err != nil {
			return fmt.Errorf("failed to render element %s: %w", el.ID, err)
		}
	}
	return p.Output(w)
}

func drawElement(p *gofpdf.Fpdf, el *models.DesignElement) error {
	applyStyle(p, el.Style)
	g := el.Geometry

	switch el.Kind {
	case models.KindRectangle:
		p.Rect(mm(g.X), mm(g.Y), mm(g.W), mm(g.H), fillStyle(el.Style))

	case models.KindEllipse:
		// Geometry stores the bounding box; gofpdf wants center and radii.
		p.Ellipse(mm(g.X+g.W/2), mm(g.Y+g.H/2), mm(g.W/2), mm(g.H/2), 0, fillStyle(el.Style))

	case models.KindLine:
		p.Line(mm(g.X), mm(g.Y), mm(g.X2), mm(g.Y2))

	case models.KindFreehandPath:
		for i := 1; i < len(g.Points); i++ {
			p.Line(mm(g.Points[i-1].X), mm(g.Points[i-1].Y), mm(g.Points[i].X), mm(g.Points[i].Y))
		}

	case models.KindText:
		size := g.FontSize
		if size <= 0 {
			size = 16
		}
		p.SetFont("Helvetica", "", size*72/96)
		if r, gr, b, ok := hexRGB(el.Style.Fill); ok {
			p.SetTextColor(r, gr, b)
		} else {
			p.SetTextColor(0, 0, 0)
		}
		p.Text(mm(g.X), mm(g.Y)+size/pxPerMM, el.Label)

	case models.KindImported:
		// No geometry to draw.

	default:
		return &models.ValidationError{ElementID: el.ID, Field: "kind", Reason: fmt.Sprintf("unknown kind %q", el.Kind)}
	}
	return nil
}

func applyStyle(p *gofpdf.Fpdf, st models.Style) {
	p.SetDrawColor(0, 0, 0)
	p.SetLineWidth(0.35)
	if r, g, b, ok := hexRGB(st.Stroke); ok {
		p.SetDrawColor(r, g, b)
	}
	if st.StrokeWidth > 0 {
		p.SetLineWidth(st.StrokeWidth / pxPerMM)
	}
	if r, g, b, ok := hexRGB(st.Fill); ok {
		p.SetFillColor(r, g, b)
	}
}

// fillStyle maps a fill mode to gofpdf's draw style string.
func fillStyle(st models.Style) string {
	switch st.FillMode {
	case models.FillModeFilled:
		return "F"
	case models.FillModeBoth:
		return "FD"
	default:
		return "D"
	}
}

func mm(px float64) float64 { return px / pxPerMM }

// hexRGB parses a #rrggbb color.
func hexRGB(s string) (int, int, int, bool) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, false
	}
	r, err1 := strconv.ParseUint(s[1:3], 16, 8)
	g, err2 := strconv.ParseUint(s[3:5], 16, 8)
	b, err3 := strconv.ParseUint(s[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return int(r), int(g), int(b), true
}
