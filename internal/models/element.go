package models

import "fmt"

// ElementKind identifies which drawn primitive an element represents.
// This is a closed set - every switch over it must handle all kinds.
type ElementKind string

const (
	KindFreehandPath ElementKind = "freehand-path"
	KindRectangle    ElementKind = "rectangle"
	KindEllipse      ElementKind = "ellipse"
	KindLine         ElementKind = "line"
	KindText         ElementKind = "text"
	KindImported     ElementKind = "imported-from-code"
)

// Valid reports whether k is a known element kind.
func (k ElementKind) Valid() bool {
	switch k {
	case KindFreehandPath, KindRectangle, KindEllipse, KindLine, KindText, KindImported:
		return true
	}
	return false
}

// Origin identifies which participant last wrote an element or produced a
// change. It is used for echo suppression: a change is never sent back to
// the participant it came from.
type Origin string

const (
	OriginCanvas  Origin = "canvas"
	OriginFile    Origin = "file"
	OriginRuntime Origin = "runtime"
)

// Valid reports whether o is a known participant origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginCanvas, OriginFile, OriginRuntime:
		return true
	}
	return false
}

// FillMode selects how a shape is painted.
type FillMode string

const (
	FillModeOutline FillMode = "outline"
	FillModeFilled  FillMode = "filled"
	FillModeBoth    FillMode = "both"
)

// Valid reports whether m is a known fill mode.
func (m FillMode) Valid() bool {
	switch m {
	case FillModeOutline, FillModeFilled, FillModeBoth:
		return true
	}
	return false
}

// PathPoint is one sample of a freehand stroke. Pressure is optional; nil
// means the input device did not report it.
type PathPoint struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Pressure *float64 `json:"pressure,omitempty"`
}

// Geometry holds the kind-specific numeric fields of an element.
// Rectangles, ellipses and text use the X/Y/W/H bounding box (ellipses store
// their box, not center+radii, so regeneration round-trips exactly). Lines
// use X/Y as the start point and X2/Y2 as the end point. Freehand paths use
// Points.
type Geometry struct {
	X        float64     `json:"x,omitempty"`
	Y        float64     `json:"y,omitempty"`
	W        float64     `json:"w,omitempty"`
	H        float64     `json:"h,omitempty"`
	X2       float64     `json:"x2,omitempty"`
	Y2       float64     `json:"y2,omitempty"`
	FontSize float64     `json:"fontSize,omitempty"`
	Points   []PathPoint `json:"points,omitempty"`
}

// Style holds the visual attributes shared by all element kinds.
// Colors are lowercase hex (#rgb or #rrggbb); empty means "not painted".
type Style struct {
	Fill         string   `json:"fill,omitempty"`
	Stroke       string   `json:"stroke,omitempty"`
	StrokeWidth  float64  `json:"strokeWidth,omitempty"`
	CornerRadius float64  `json:"cornerRadius,omitempty"`
	FillMode     FillMode `json:"fillMode,omitempty"`
}

// SourceBinding anchors an element to the generated code construct that
// represents it. Once set it never changes: regeneration reuses the same
// selector so manual edits anchored to it stay attached.
type SourceBinding struct {
	FilePath string `json:"filePath"`
	Selector string `json:"selector"`
}

// DesignElement is one drawn primitive, or the visual counterpart of a code
// construct recognized in a generated file.
type DesignElement struct {
	ID       string         `json:"id"`
	Kind     ElementKind    `json:"kind"`
	Geometry Geometry       `json:"geometry"`
	Style    Style          `json:"style"`
	Label    string         `json:"label,omitempty"`
	Binding  *SourceBinding `json:"sourceBinding,omitempty"`

	// Raw carries the verbatim region body for imported-from-code elements
	// so regeneration re-emits exactly what the author wrote.
	Raw string `json:"raw,omitempty"`

	// Revision increases on every mutation; the store rejects writes whose
	// revision is not strictly greater than the stored one.
	Revision int64 `json:"revision"`

	// Origin records which participant last wrote this element.
	Origin Origin `json:"origin"`
}

// Clone returns a deep copy of the element.
func (e *DesignElement) Clone() *DesignElement {
	if e == nil {
		return nil
	}
	out := *e
	if e.Binding != nil {
		b := *e.Binding
		out.Binding = &b
	}
	if e.Geometry.Points != nil {
		pts := make([]PathPoint, len(e.Geometry.Points))
		for i, p := range e.Geometry.Points {
			pts[i] = p
			if p.Pressure != nil {
				v := *p.Pressure
				pts[i].Pressure = &v
			}
		}
		out.Geometry.Points = pts
	}
	return &out
}

// Normalize fills derivable defaults so that equivalent elements compare
// equal regardless of which participant produced them. Boxes get an explicit
// fill mode derived from which colors are set.
func (e *DesignElement) Normalize() {
	if e.Kind != KindRectangle && e.Kind != KindEllipse {
		return
	}
	if e.Style.FillMode != "" {
		return
	}
	switch {
	case e.Style.Fill != "" && e.Style.Stroke != "":
		e.Style.FillMode = FillModeBoth
	case e.Style.Stroke != "":
		e.Style.FillMode = FillModeOutline
	case e.Style.Fill != "":
		e.Style.FillMode = FillModeFilled
	}
}

// Validate checks the element against the range constraints the store
// enforces on every write.
func (e *DesignElement) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if !e.Kind.Valid() {
		return &ValidationError{ElementID: e.ID, Field: "kind", Reason: fmt.Sprintf("unknown kind %q", e.Kind)}
	}
	if e.Style.StrokeWidth < 0 || (e.Style.Stroke != "" && e.Style.StrokeWidth == 0) {
		return &ValidationError{ElementID: e.ID, Field: "style.strokeWidth", Reason: "must be > 0 when a stroke color is set"}
	}
	if e.Style.CornerRadius < 0 {
		return &ValidationError{ElementID: e.ID, Field: "style.cornerRadius", Reason: "must be >= 0"}
	}
	for _, c := range []struct{ field, val string }{
		{"style.fill", e.Style.Fill},
		{"style.stroke", e.Style.Stroke},
	} {
		if c.val != "" && !validHexColor(c.val) {
			return &ValidationError{ElementID: e.ID, Field: c.field, Reason: fmt.Sprintf("invalid color %q", c.val)}
		}
	}
	if e.Style.FillMode != "" && !e.Style.FillMode.Valid() {
		return &ValidationError{ElementID: e.ID, Field: "style.fillMode", Reason: fmt.Sprintf("unknown fill mode %q", e.Style.FillMode)}
	}

	switch e.Kind {
	case KindRectangle, KindEllipse:
		if e.Geometry.W <= 0 || e.Geometry.H <= 0 {
			return &ValidationError{ElementID: e.ID, Field: "geometry", Reason: "width and height must be > 0"}
		}
	case KindFreehandPath:
		if len(e.Geometry.Points) < 2 {
			return &ValidationError{ElementID: e.ID, Field: "geometry.points", Reason: "needs at least 2 points"}
		}
		for i, p := range e.Geometry.Points {
			if p.Pressure != nil && (*p.Pressure < 0 || *p.Pressure > 1) {
				return &ValidationError{ElementID: e.ID, Field: "geometry.points", Reason: fmt.Sprintf("point %d pressure out of [0,1]", i)}
			}
		}
	case KindText:
		if e.Geometry.FontSize < 0 {
			return &ValidationError{ElementID: e.ID, Field: "geometry.fontSize", Reason: "must be >= 0"}
		}
	case KindLine, KindImported:
		// No extra range constraints.
	}
	return nil
}

// ValidateToken checks a design-token entry. Names must be CSS
// custom-property idents; values are limited to the vocabulary tokens
// actually use (colors, lengths, simple function notation), which also rules
// out anything that could escape a generated declaration.
func ValidateToken(name, value string) error {
	if name == "" {
		return &ValidationError{Field: "tokens", Reason: "token name must not be empty"}
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return &ValidationError{Field: "tokens", Reason: fmt.Sprintf("invalid token name %q", name)}
		}
	}
	if value == "" {
		return &ValidationError{Field: "tokens", Reason: fmt.Sprintf("token %q has empty value", name)}
	}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#' || r == '.' || r == ',' || r == '%' || r == '(' || r == ')' || r == ' ' || r == '-' || r == '_':
		default:
			return &ValidationError{Field: "tokens", Reason: fmt.Sprintf("invalid token value %q", value)}
		}
	}
	return nil
}

func validHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
