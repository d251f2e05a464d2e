package codegen

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
)

/*
The generator is the pure translation layer between design data and source
text. ToSource is deterministic (identical documents render byte-identical
fragments) and FromSource is tolerant (a half-edited file yields diagnostics,
never an error that could cascade into a destructive rewrite). Together they
satisfy the round-trip law the coordinator relies on: regenerating code from
a document and parsing it back reproduces the same elements.
*/

// TokensRegionID names the stylesheet region holding the design-token table.
const TokensRegionID = "tokens"

// Syntax selects the comment dialect used for region markers.
type Syntax int

const (
	SyntaxUnknown Syntax = iota
	SyntaxCSS
	SyntaxHTML
)

// SyntaxForPath maps a file extension to its marker syntax.
func SyntaxForPath(p string) Syntax {
	switch strings.ToLower(path.Ext(p)) {
	case ".css":
		return SyntaxCSS
	case ".html", ".htm":
		return SyntaxHTML
	}
	return SyntaxUnknown
}

func (s Syntax) begin(id string) string {
	if s == SyntaxHTML {
		return fmt.Sprintf("<!-- vss:begin %s -->", id)
	}
	return fmt.Sprintf("/* vss:begin %s */", id)
}

func (s Syntax) end(id string) string {
	if s == SyntaxHTML {
		return fmt.Sprintf("<!-- vss:end %s -->", id)
	}
	return fmt.Sprintf("/* vss:end %s */", id)
}

// Region is one marker-delimited span owned by a single element (or the
// token table). Body excludes the marker lines.
type Region struct {
	ID   string
	Body string
}

// Generator renders documents to source fragments and parses fragments back
// into change events. It is stateless and safe for concurrent use.
type Generator struct{}

func New() *Generator { return &Generator{} }

// Files returns the workspace-relative stylesheet and markup paths owned by
// a document.
func (g *Generator) Files(doc *models.DesignDocument) (cssPath, htmlPath string) {
	slug := Slug(doc.Name)
	return path.Join("design", slug+".css"), path.Join("design", slug+".html")
}

// BindingFor mints the stable source binding for an element. Called once at
// element creation; the store keeps it fixed afterwards.
func (g *Generator) BindingFor(doc *models.DesignDocument, elementID string) *models.SourceBinding {
	cssPath, _ := g.Files(doc)
	return &models.SourceBinding{
		FilePath: cssPath,
		Selector: Selector(elementID),
	}
}

// Selector returns the CSS class selector owned by an element.
func Selector(elementID string) string {
	return ".vss-" + elementID
}

// Slug normalizes a document name into a safe file stem.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		s = "untitled"
	}
	return s
}

// ToSource renders the complete generated fragment set for a document:
// one entry per owned file, keyed by workspace-relative path. Output is
// byte-identical for identical documents.
func (g *Generator) ToSource(doc *models.DesignDocument) (map[string]string, error) {
	cssPath, htmlPath := g.Files(doc)

	cssRegions, err := g.Regions(doc, SyntaxCSS, cssPath)
	if err != nil {
		return nil, err
	}
	htmlRegions, err := g.Regions(doc, SyntaxHTML, htmlPath)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		cssPath:  joinRegions(cssRegions, SyntaxCSS),
		htmlPath: joinRegions(htmlRegions, SyntaxHTML),
	}, nil
}

// Regions renders the per-element regions a document owns in one file, in
// z-order. filePath is needed so imported-from-code elements are re-emitted
// only into the file they were found in.
func (g *Generator) Regions(doc *models.DesignDocument, syn Syntax, filePath string) ([]Region, error) {
	var out []Region

	if syn == SyntaxCSS {
		body, err := renderTokens(doc.Tokens)
		if err != nil {
			return nil, err
		}
		out = append(out, Region{ID: TokensRegionID, Body: body})
	}

	for _, el := range doc.Elements {
		if el.Kind == models.KindImported {
			if el.Binding != nil && el.Binding.FilePath == filePath {
				out = append(out, Region{ID: el.ID, Body: strings.TrimRight(el.Raw, "\n")})
			}
			continue
		}
		var (
			body string
			err  error
		)
		switch syn {
		case SyntaxCSS:
			body, err = renderCSS(el)
		case SyntaxHTML:
			body, err = renderHTML(el)
		default:
			return nil, fmt.Errorf("unsupported syntax for %s", filePath)
		}
		if err != nil {
			return nil, &models.GenerationFailure{Path: filePath, Err: err}
		}
		out = append(out, Region{ID: el.ID, Body: body})
	}
	return out, nil
}

func joinRegions(regions []Region, syn Syntax) string {
	var b strings.Builder
	for i, r := range regions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(syn.begin(r.ID))
		b.WriteString("\n")
		b.WriteString(r.Body)
		b.WriteString("\n")
		b.WriteString(syn.end(r.ID))
		b.WriteString("\n")
	}
	return b.String()
}

func sortedTokenNames(tokens map[string]string) []string {
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
