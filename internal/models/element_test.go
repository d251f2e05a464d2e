package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRect() *DesignElement {
	return &DesignElement{
		ID:       "r1",
		Kind:     KindRectangle,
		Geometry: Geometry{X: 40, Y: 24, W: 120, H: 40},
		Style:    Style{Fill: "#007bff"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validRect().Validate())

	tests := []struct {
		name   string
		mutate func(*DesignElement)
	}{
		{"empty id", func(e *DesignElement) { e.ID = "" }},
		{"unknown kind", func(e *DesignElement) { e.Kind = "triangle" }},
		{"zero width", func(e *DesignElement) { e.Geometry.W = 0 }},
		{"negative height", func(e *DesignElement) { e.Geometry.H = -5 }},
		{"stroke without width", func(e *DesignElement) { e.Style.Stroke = "#000000"; e.Style.StrokeWidth = 0 }},
		{"negative corner radius", func(e *DesignElement) { e.Style.CornerRadius = -1 }},
		{"bad color", func(e *DesignElement) { e.Style.Fill = "red" }},
		{"bad fill mode", func(e *DesignElement) { e.Style.FillMode = "striped" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := validRect()
			tt.mutate(el)
			err := el.Validate()
			require.Error(t, err)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

func TestValidateFreehand(t *testing.T) {
	half := 0.5
	el := &DesignElement{
		ID:   "p1",
		Kind: KindFreehandPath,
		Geometry: Geometry{Points: []PathPoint{
			{X: 1, Y: 2},
			{X: 3, Y: 4, Pressure: &half},
		}},
	}
	require.NoError(t, el.Validate())

	el.Geometry.Points = el.Geometry.Points[:1]
	assert.Error(t, el.Validate(), "a single point is not a path")

	two := 2.0
	el.Geometry.Points = []PathPoint{{X: 1, Y: 2}, {X: 3, Y: 4, Pressure: &two}}
	assert.Error(t, el.Validate(), "pressure outside [0,1]")
}

func TestNormalizeDerivesFillMode(t *testing.T) {
	el := validRect()
	el.Normalize()
	assert.Equal(t, FillModeFilled, el.Style.FillMode)

	el = validRect()
	el.Style.Fill = ""
	el.Style.Stroke = "#222222"
	el.Style.StrokeWidth = 2
	el.Normalize()
	assert.Equal(t, FillModeOutline, el.Style.FillMode)

	el = validRect()
	el.Style.Stroke = "#222222"
	el.Style.StrokeWidth = 2
	el.Normalize()
	assert.Equal(t, FillModeBoth, el.Style.FillMode)

	// An explicit mode is never overwritten.
	el = validRect()
	el.Style.FillMode = FillModeOutline
	el.Normalize()
	assert.Equal(t, FillModeOutline, el.Style.FillMode)

	// Non-box kinds carry no fill mode.
	line := &DesignElement{ID: "l1", Kind: KindLine, Style: Style{Stroke: "#000000", StrokeWidth: 1}}
	line.Normalize()
	assert.Empty(t, line.Style.FillMode)
}

func TestValidateToken(t *testing.T) {
	require.NoError(t, ValidateToken("primary", "#007bff"))
	require.NoError(t, ValidateToken("spacing-md", "12px"))
	require.NoError(t, ValidateToken("shadow", "rgba(0, 0, 0, 0.2)"))

	assert.Error(t, ValidateToken("", "#fff"))
	assert.Error(t, ValidateToken("primary", ""))
	assert.Error(t, ValidateToken("bad name", "#fff"))
	assert.Error(t, ValidateToken("primary", "red; } body { display: none"))
}

func TestCloneIsDeep(t *testing.T) {
	p := 0.25
	el := &DesignElement{
		ID:       "p1",
		Kind:     KindFreehandPath,
		Geometry: Geometry{Points: []PathPoint{{X: 1, Y: 2, Pressure: &p}}},
		Binding:  &SourceBinding{FilePath: "design/a.css", Selector: ".vss-p1"},
	}
	cp := el.Clone()
	*cp.Geometry.Points[0].Pressure = 0.9
	cp.Binding.FilePath = "elsewhere"

	assert.Equal(t, 0.25, *el.Geometry.Points[0].Pressure)
	assert.Equal(t, "design/a.css", el.Binding.FilePath)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeValidation, CodeOf(&ValidationError{Field: "x"}))
	assert.Equal(t, CodeStaleRevision, CodeOf(&StaleRevisionError{}))
	assert.Equal(t, CodeGeneration, CodeOf(&GenerationFailure{Path: "a.css"}))
	assert.Equal(t, CodePersistence, CodeOf(&PersistenceFailure{DocumentID: "d"}))
	assert.Equal(t, CodeTransport, CodeOf(&TransportFailure{SessionID: "s"}))
	assert.Equal(t, CodeNotFound, CodeOf(ErrNotFound))
	assert.Equal(t, CodeInternal, CodeOf(assert.AnError))
}
