package codegen

import (
	"fmt"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
)

// All output is rendered through templates; no user-supplied value ever
// reaches the output by string concatenation. CSS values are restricted to
// validated colors, numbers, and token idents; markup goes through
// html/template's contextual escaping.

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cssColor refuses anything that is not a hex color, so a malicious "color"
// can never smuggle extra declarations into the stylesheet.
func cssColor(s string) (string, error) {
	if len(s) != 4 && len(s) != 7 {
		return "", fmt.Errorf("invalid color %q", s)
	}
	if s[0] != '#' {
		return "", fmt.Errorf("invalid color %q", s)
	}
	for _, r := range s[1:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return "", fmt.Errorf("invalid color %q", s)
		}
	}
	return strings.ToLower(s), nil
}

// cssTokenName restricts token names to CSS custom-property idents.
func cssTokenName(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty token name")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("invalid token name %q", s)
		}
	}
	return s, nil
}

// cssTokenValue allows the value vocabulary design tokens actually use
// (colors, lengths, bare numbers, simple function notation) and nothing that
// could terminate the declaration or the region.
func cssTokenValue(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty token value")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#' || r == '.' || r == ',' || r == '%' || r == '(' || r == ')' || r == ' ' || r == '-' || r == '_':
		default:
			return "", fmt.Errorf("invalid token value %q", s)
		}
	}
	return s, nil
}

var cssFuncs = texttemplate.FuncMap{
	"fnum":  fnum,
	"color": cssColor,
}

var boxCSSTmpl = texttemplate.Must(texttemplate.New("box").Funcs(cssFuncs).Parse(
	`{{.Selector}} {
  position: absolute;
  left: {{fnum .Geo.X}}px;
  top: {{fnum .Geo.Y}}px;
  width: {{fnum .Geo.W}}px;
  height: {{fnum .Geo.H}}px;
{{- if .Filled}}
  background: {{color .Style.Fill}};
{{- end}}
{{- if .Outlined}}
  border: {{fnum .Style.StrokeWidth}}px solid {{color .Style.Stroke}};
{{- end}}
{{- if .Radius}}
  border-radius: {{.Radius}};
{{- end}}
}`))

var textCSSTmpl = texttemplate.Must(texttemplate.New("text").Funcs(cssFuncs).Parse(
	`{{.Selector}} {
  position: absolute;
  left: {{fnum .Geo.X}}px;
  top: {{fnum .Geo.Y}}px;
{{- if .Style.Fill}}
  color: {{color .Style.Fill}};
{{- end}}
{{- if .Geo.FontSize}}
  font-size: {{fnum .Geo.FontSize}}px;
{{- end}}
}`))

var strokeCSSTmpl = texttemplate.Must(texttemplate.New("stroke").Funcs(cssFuncs).Parse(
	`{{.Selector}} {
  position: absolute;
  inset: 0;
{{- if .Style.Stroke}}
  --vss-stroke: {{color .Style.Stroke}};
{{- end}}
{{- if .Style.StrokeWidth}}
  --vss-stroke-width: {{fnum .Style.StrokeWidth}};
{{- end}}
{{- if .Style.Fill}}
  --vss-fill: {{color .Style.Fill}};
{{- end}}
}`))

var tokensCSSTmpl = texttemplate.Must(texttemplate.New("tokens").Funcs(texttemplate.FuncMap{
	"name":  cssTokenName,
	"value": cssTokenValue,
}).Parse(
	`:root {
{{- range .}}
  --vss-{{name .Name}}: {{value .Value}};
{{- end}}
}`))

type cssData struct {
	Selector string
	Geo      models.Geometry
	Style    models.Style
	Filled   bool
	Outlined bool
	Radius   string
}

func renderCSS(el *models.DesignElement) (string, error) {
	data := cssData{
		Selector: Selector(el.ID),
		Geo:      el.Geometry,
		Style:    el.Style,
	}

	var tmpl *texttemplate.Template
	switch el.Kind {
	case models.KindRectangle, models.KindEllipse:
		tmpl = boxCSSTmpl
		data.Filled = el.Style.Fill != "" && el.Style.FillMode != models.FillModeOutline
		data.Outlined = el.Style.Stroke != "" && el.Style.FillMode != models.FillModeFilled
		if el.Kind == models.KindEllipse {
			data.Radius = "50%"
		} else if el.Style.CornerRadius > 0 {
			data.Radius = fnum(el.Style.CornerRadius) + "px"
		}
	case models.KindText:
		tmpl = textCSSTmpl
	case models.KindLine, models.KindFreehandPath:
		tmpl = strokeCSSTmpl
	case models.KindImported:
		return el.Raw, nil
	default:
		return "", fmt.Errorf("unknown element kind %q", el.Kind)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

type tokenEntry struct {
	Name  string
	Value string
}

func renderTokens(tokens map[string]string) (string, error) {
	entries := make([]tokenEntry, 0, len(tokens))
	for _, name := range sortedTokenNames(tokens) {
		entries = append(entries, tokenEntry{Name: name, Value: tokens[name]})
	}
	var b strings.Builder
	if err := tokensCSSTmpl.Execute(&b, entries); err != nil {
		return "", err
	}
	return b.String(), nil
}

// HTML rendering. html/template escapes the label and every attribute value
// contextually, which is what makes unescaped interpolation impossible here.

var divHTMLTmpl = htmltemplate.Must(htmltemplate.New("div").Parse(
	`<div class="{{.Class}}" data-vss-id="{{.ID}}" data-vss-kind="{{.Kind}}"></div>`))

var spanHTMLTmpl = htmltemplate.Must(htmltemplate.New("span").Parse(
	`<span class="{{.Class}}" data-vss-id="{{.ID}}" data-vss-kind="{{.Kind}}">{{.Label}}</span>`))

var lineHTMLTmpl = htmltemplate.Must(htmltemplate.New("line").Parse(
	`<svg class="{{.Class}}" data-vss-id="{{.ID}}" data-vss-kind="{{.Kind}}"><line x1="{{.X1}}" y1="{{.Y1}}" x2="{{.X2}}" y2="{{.Y2}}" /></svg>`))

var pathHTMLTmpl = htmltemplate.Must(htmltemplate.New("path").Parse(
	`<svg class="{{.Class}}" data-vss-id="{{.ID}}" data-vss-kind="{{.Kind}}"><polyline points="{{.Points}}"{{if .Pressure}} data-vss-pressure="{{.Pressure}}"{{end}} fill="none" /></svg>`))

type htmlData struct {
	Class, ID string
	Kind      models.ElementKind
	Label     string
	X1, Y1    string
	X2, Y2    string
	Points    string
	Pressure  string
}

func renderHTML(el *models.DesignElement) (string, error) {
	data := htmlData{
		Class: strings.TrimPrefix(Selector(el.ID), "."),
		ID:    el.ID,
		Kind:  el.Kind,
	}

	var tmpl *htmltemplate.Template
	switch el.Kind {
	case models.KindRectangle, models.KindEllipse:
		tmpl = divHTMLTmpl
	case models.KindText:
		tmpl = spanHTMLTmpl
		data.Label = el.Label
	case models.KindLine:
		tmpl = lineHTMLTmpl
		data.X1 = fnum(el.Geometry.X)
		data.Y1 = fnum(el.Geometry.Y)
		data.X2 = fnum(el.Geometry.X2)
		data.Y2 = fnum(el.Geometry.Y2)
	case models.KindFreehandPath:
		tmpl = pathHTMLTmpl
		data.Points, data.Pressure = encodePoints(el.Geometry.Points)
	case models.KindImported:
		return el.Raw, nil
	default:
		return "", fmt.Errorf("unknown element kind %q", el.Kind)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// encodePoints renders "x,y x,y ..." plus a parallel pressure list using "-"
// for points without a pressure sample. The pressure attribute is omitted
// entirely when no point carries one.
func encodePoints(points []models.PathPoint) (coords, pressure string) {
	var cb, pb strings.Builder
	any := false
	for i, p := range points {
		if i > 0 {
			cb.WriteByte(' ')
			pb.WriteByte(' ')
		}
		cb.WriteString(fnum(p.X))
		cb.WriteByte(',')
		cb.WriteString(fnum(p.Y))
		if p.Pressure != nil {
			any = true
			pb.WriteString(fnum(*p.Pressure))
		} else {
			pb.WriteByte('-')
		}
	}
	if !any {
		return cb.String(), ""
	}
	return cb.String(), pb.String()
}
