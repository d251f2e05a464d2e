package codegen

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
)

// Diagnostic describes something FromSource could not understand. Parsing
// problems are reported, never raised: a file that is mid-edit must not be
// able to stall or corrupt the sync pipeline.
type Diagnostic struct {
	Path    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.Path, d.Line, d.Message)
}

// Tolerance for float comparison when deciding whether a parsed region
// differs from the stored element.
const epsilon = 1e-6

// parsed holds the fields one region in one file actually carries. Pointer
// fields distinguish "absent from this syntax" from zero values, so merging
// onto the stored element never clobbers fields this file does not own.
type parsed struct {
	kind         models.ElementKind // "" when the syntax cannot tell
	x, y, w, h   *float64
	x2, y2       *float64
	fontSize     *float64
	fill, stroke *string
	strokeWidth  *float64
	cornerRadius *float64
	fillMode     *models.FillMode
	label        *string
	points       []models.PathPoint
	hasPoints    bool
}

// FromSource parses one generated file and returns the change events needed
// to bring the document in line with what the file now says. It never
// returns an error: anything unparseable becomes a diagnostic and yields no
// event, so a broken file can never trigger a destructive store mutation.
func (g *Generator) FromSource(doc *models.DesignDocument, filePath, text string) ([]*models.ChangeEvent, []Diagnostic) {
	syn := SyntaxForPath(filePath)
	if syn == SyntaxUnknown {
		return nil, []Diagnostic{{Path: filePath, Message: "unrecognized file type"}}
	}

	segs, diags := splitSegments(text, syn)
	for i := range diags {
		diags[i].Path = filePath
	}

	var events []*models.ChangeEvent
	seen := make(map[string]bool)

	for _, seg := range segs {
		if seg.regionID == "" {
			continue
		}
		seen[seg.regionID] = true

		if seg.regionID == TokensRegionID {
			if syn != SyntaxCSS {
				continue
			}
			tokens, tdiags := parseTokens(seg.body, seg.line)
			for _, d := range tdiags {
				d.Path = filePath
				diags = append(diags, d)
			}
			if tokens != nil && !tokenMapsEqual(tokens, doc.Tokens) {
				ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpUpdate)
				ev.Tokens = tokens
				ev.Revision = doc.Revision + 1
				events = append(events, ev)
			}
			continue
		}

		stored := doc.Element(seg.regionID)

		// Imported regions are opaque: any body change is the change.
		if stored != nil && stored.Kind == models.KindImported {
			if seg.body != stored.Raw {
				merged := stored.Clone()
				merged.Raw = seg.body
				ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpUpdate)
				ev.ElementID = stored.ID
				ev.Payload = merged
				ev.Revision = stored.Revision + 1
				events = append(events, ev)
			}
			continue
		}

		var (
			p    *parsed
			perr error
		)
		switch syn {
		case SyntaxCSS:
			p, perr = parseCSSRegion(seg.body)
		case SyntaxHTML:
			p, perr = parseHTMLRegion(seg.body)
		}
		if perr != nil {
			diags = append(diags, Diagnostic{Path: filePath, Line: seg.line, Message: perr.Error()})
			continue
		}

		if stored == nil {
			el := elementFromParsed(seg.regionID, p, seg.body)
			el.Binding = &models.SourceBinding{FilePath: filePath, Selector: Selector(seg.regionID)}
			ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpCreate)
			ev.ElementID = el.ID
			ev.Payload = el
			ev.Revision = 1
			events = append(events, ev)
			continue
		}

		merged := overlay(stored, p)
		if !equivalent(stored, merged) {
			ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpUpdate)
			ev.ElementID = stored.ID
			ev.Payload = merged
			ev.Revision = stored.Revision + 1
			events = append(events, ev)
		}
	}

	// Deletions propagate only from the file an element is anchored to
	// (its binding), so a markup file that simply has not been regenerated
	// yet cannot look like a mass delete.
	for _, el := range doc.Elements {
		if seen[el.ID] {
			continue
		}
		if el.Binding == nil || el.Binding.FilePath != filePath {
			continue
		}
		ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpDelete)
		ev.ElementID = el.ID
		ev.Revision = el.Revision + 1
		events = append(events, ev)
	}

	return events, diags
}

// elementFromParsed builds a full element for a region the document has
// never seen. A region neither syntax understands is adopted verbatim as an
// imported-from-code element.
func elementFromParsed(id string, p *parsed, rawBody string) *models.DesignElement {
	if p.kind == "" {
		return &models.DesignElement{
			ID:   id,
			Kind: models.KindImported,
			Raw:  rawBody,
		}
	}
	el := &models.DesignElement{ID: id, Kind: p.kind}
	applyParsed(el, p)
	return el
}

// overlay clones stored and applies only the fields p carries.
func overlay(stored *models.DesignElement, p *parsed) *models.DesignElement {
	el := stored.Clone()
	if p.kind != "" && p.kind != el.Kind {
		el.Kind = p.kind
		el.Raw = ""
	}
	applyParsed(el, p)
	return el
}

func applyParsed(el *models.DesignElement, p *parsed) {
	if p.x != nil {
		el.Geometry.X = *p.x
	}
	if p.y != nil {
		el.Geometry.Y = *p.y
	}
	if p.w != nil {
		el.Geometry.W = *p.w
	}
	if p.h != nil {
		el.Geometry.H = *p.h
	}
	if p.x2 != nil {
		el.Geometry.X2 = *p.x2
	}
	if p.y2 != nil {
		el.Geometry.Y2 = *p.y2
	}
	if p.fontSize != nil {
		el.Geometry.FontSize = *p.fontSize
	}
	if p.fill != nil {
		el.Style.Fill = *p.fill
	}
	if p.stroke != nil {
		el.Style.Stroke = *p.stroke
	}
	if p.strokeWidth != nil {
		el.Style.StrokeWidth = *p.strokeWidth
	}
	if p.cornerRadius != nil {
		el.Style.CornerRadius = *p.cornerRadius
	}
	if p.fillMode != nil {
		el.Style.FillMode = *p.fillMode
	}
	if p.label != nil {
		el.Label = *p.label
	}
	if p.hasPoints {
		el.Geometry.Points = p.points
	}
}

// equivalent compares the fields that round-trip through generated source,
// up to float tolerance.
func equivalent(a, b *models.DesignElement) bool {
	if a.Kind != b.Kind || a.Label != b.Label {
		return false
	}
	if a.Style.Fill != b.Style.Fill || a.Style.Stroke != b.Style.Stroke {
		return false
	}
	if !feq(a.Style.StrokeWidth, b.Style.StrokeWidth) || !feq(a.Style.CornerRadius, b.Style.CornerRadius) {
		return false
	}
	if a.Kind == models.KindRectangle || a.Kind == models.KindEllipse {
		if a.Style.FillMode != b.Style.FillMode {
			return false
		}
	}
	ga, gb := a.Geometry, b.Geometry
	if !feq(ga.X, gb.X) || !feq(ga.Y, gb.Y) || !feq(ga.W, gb.W) || !feq(ga.H, gb.H) ||
		!feq(ga.X2, gb.X2) || !feq(ga.Y2, gb.Y2) || !feq(ga.FontSize, gb.FontSize) {
		return false
	}
	if len(ga.Points) != len(gb.Points) {
		return false
	}
	for i := range ga.Points {
		pa, pb := ga.Points[i], gb.Points[i]
		if !feq(pa.X, pb.X) || !feq(pa.Y, pb.Y) {
			return false
		}
		if (pa.Pressure == nil) != (pb.Pressure == nil) {
			return false
		}
		if pa.Pressure != nil && !feq(*pa.Pressure, *pb.Pressure) {
			return false
		}
	}
	if a.Kind == models.KindImported && a.Raw != b.Raw {
		return false
	}
	return true
}

func feq(a, b float64) bool {
	return math.Abs(a-b) <= epsilon
}

func tokenMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// CSS parsing

var borderRe = regexp.MustCompile(`^([0-9.]+)px\s+solid\s+(#[0-9a-fA-F]{3,6})$`)

func parseCSSRegion(body string) (*parsed, error) {
	decls, err := parseDeclarations(body)
	if err != nil {
		return nil, err
	}

	p := &parsed{}
	var hasBackground, hasBorder, hasColor, hasInset bool

	for prop, val := range decls {
		switch prop {
		case "left":
			p.x, err = pxValue(val)
		case "top":
			p.y, err = pxValue(val)
		case "width":
			p.w, err = pxValue(val)
		case "height":
			p.h, err = pxValue(val)
		case "background":
			c, cerr := cssColor(val)
			if cerr != nil {
				return nil, cerr
			}
			p.fill = &c
			hasBackground = true
		case "color":
			c, cerr := cssColor(val)
			if cerr != nil {
				return nil, cerr
			}
			p.fill = &c
			hasColor = true
		case "border":
			m := borderRe.FindStringSubmatch(val)
			if m == nil {
				return nil, fmt.Errorf("unparseable border %q", val)
			}
			w, _ := strconv.ParseFloat(m[1], 64)
			c, cerr := cssColor(m[2])
			if cerr != nil {
				return nil, cerr
			}
			p.strokeWidth = &w
			p.stroke = &c
			hasBorder = true
		case "border-radius":
			if val == "50%" {
				p.kind = models.KindEllipse
			} else {
				p.cornerRadius, err = pxValue(val)
			}
		case "font-size":
			p.fontSize, err = pxValue(val)
		case "--vss-stroke":
			c, cerr := cssColor(val)
			if cerr != nil {
				return nil, cerr
			}
			p.stroke = &c
		case "--vss-fill":
			c, cerr := cssColor(val)
			if cerr != nil {
				return nil, cerr
			}
			p.fill = &c
		case "--vss-stroke-width":
			w, werr := strconv.ParseFloat(val, 64)
			if werr != nil {
				return nil, fmt.Errorf("unparseable stroke width %q", val)
			}
			p.strokeWidth = &w
		case "inset":
			hasInset = true
		case "position":
			// Always "absolute" in generated rules; nothing to record.
		default:
			// Unknown declarations in an owned region are tolerated so a
			// human can annotate a rule without breaking sync.
		}
		if err != nil {
			return nil, err
		}
	}

	// Infer the kind from the declaration shape.
	switch {
	case p.fontSize != nil || hasColor:
		p.kind = models.KindText
	case p.kind == models.KindEllipse:
	case hasInset:
		p.kind = "" // line or freehand: the markup file owns the geometry
	case p.x != nil && p.w != nil:
		p.kind = models.KindRectangle
	}

	// Boxes carry their fill mode implicitly in which declarations exist.
	if p.kind == models.KindRectangle || p.kind == models.KindEllipse {
		mode := models.FillModeOutline
		switch {
		case hasBackground && hasBorder:
			mode = models.FillModeBoth
		case hasBackground:
			mode = models.FillModeFilled
		case hasBorder:
			mode = models.FillModeOutline
		}
		if hasBackground || hasBorder {
			p.fillMode = &mode
		}
	}
	return p, nil
}

// parseDeclarations reads a single `selector { prop: value; ... }` block.
func parseDeclarations(body string) (map[string]string, error) {
	open := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if open < 0 || end < 0 || end < open {
		return nil, fmt.Errorf("region is not a css rule")
	}
	decls := make(map[string]string)
	for _, raw := range strings.Split(body[open+1:end], ";") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			return nil, fmt.Errorf("unparseable declaration %q", line)
		}
		prop := strings.TrimSpace(line[:colon])
		val := strings.TrimSpace(line[colon+1:])
		decls[prop] = val
	}
	return decls, nil
}

func pxValue(val string) (*float64, error) {
	s := strings.TrimSuffix(val, "px")
	if s == val {
		return nil, fmt.Errorf("expected px value, got %q", val)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("unparseable length %q", val)
	}
	return &f, nil
}

func parseTokens(body string, line int) (map[string]string, []Diagnostic) {
	decls, err := parseDeclarations(body)
	if err != nil {
		return nil, []Diagnostic{{Line: line, Message: err.Error()}}
	}
	tokens := make(map[string]string)
	var diags []Diagnostic
	for prop, val := range decls {
		if !strings.HasPrefix(prop, "--vss-") {
			diags = append(diags, Diagnostic{Line: line, Message: fmt.Sprintf("unexpected declaration %q in tokens region", prop)})
			continue
		}
		tokens[strings.TrimPrefix(prop, "--vss-")] = val
	}
	return tokens, diags
}

// HTML parsing

var (
	kindAttrRe     = regexp.MustCompile(`data-vss-kind="([^"]*)"`)
	lineAttrRe     = regexp.MustCompile(`<line\s+x1="([^"]*)"\s+y1="([^"]*)"\s+x2="([^"]*)"\s+y2="([^"]*)"`)
	polylineRe     = regexp.MustCompile(`<polyline\s+points="([^"]*)"`)
	pressureAttrRe = regexp.MustCompile(`data-vss-pressure="([^"]*)"`)
	spanTextRe     = regexp.MustCompile(`(?s)<span[^>]*>(.*)</span>`)
)

func parseHTMLRegion(body string) (*parsed, error) {
	p := &parsed{}

	km := kindAttrRe.FindStringSubmatch(body)
	if km == nil {
		// Not one of ours; the caller treats it as imported-from-code.
		return p, nil
	}
	kind := models.ElementKind(km[1])
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown element kind %q", km[1])
	}
	p.kind = kind

	switch kind {
	case models.KindText:
		m := spanTextRe.FindStringSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("text region has no span content")
		}
		label := html.UnescapeString(m[1])
		p.label = &label

	case models.KindLine:
		m := lineAttrRe.FindStringSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("line region has no <line> element")
		}
		vals := make([]*float64, 4)
		for i, s := range m[1:] {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("unparseable line coordinate %q", s)
			}
			v := f
			vals[i] = &v
		}
		p.x, p.y, p.x2, p.y2 = vals[0], vals[1], vals[2], vals[3]

	case models.KindFreehandPath:
		m := polylineRe.FindStringSubmatch(body)
		if m == nil {
			return nil, fmt.Errorf("freehand region has no <polyline> element")
		}
		var pressures []string
		if pm := pressureAttrRe.FindStringSubmatch(body); pm != nil {
			pressures = strings.Fields(pm[1])
		}
		points, err := decodePoints(m[1], pressures)
		if err != nil {
			return nil, err
		}
		p.points = points
		p.hasPoints = true
	}
	return p, nil
}

func decodePoints(coords string, pressures []string) ([]models.PathPoint, error) {
	fields := strings.Fields(coords)
	if pressures != nil && len(pressures) != len(fields) {
		return nil, fmt.Errorf("pressure list has %d entries for %d points", len(pressures), len(fields))
	}
	points := make([]models.PathPoint, 0, len(fields))
	for i, f := range fields {
		comma := strings.Index(f, ",")
		if comma < 0 {
			return nil, fmt.Errorf("unparseable point %q", f)
		}
		x, errX := strconv.ParseFloat(f[:comma], 64)
		y, errY := strconv.ParseFloat(f[comma+1:], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("unparseable point %q", f)
		}
		pt := models.PathPoint{X: x, Y: y}
		if pressures != nil && pressures[i] != "-" {
			pr, err := strconv.ParseFloat(pressures[i], 64)
			if err != nil {
				return nil, fmt.Errorf("unparseable pressure %q", pressures[i])
			}
			pt.Pressure = &pr
		}
		points = append(points, pt)
	}
	return points, nil
}
