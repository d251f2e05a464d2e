package codegen

import (
	"fmt"
	"strings"
)

// segment is one slice of an existing file: either raw text the generator
// must never touch, or a marker-delimited region it owns.
type segment struct {
	regionID string // empty for raw text
	body     string // region body, without marker lines
	text     string // raw text, verbatim (raw segments only)
	line     int    // 1-based line of the segment start
}

// splitSegments walks a file and separates owned regions from everything
// else. It is deliberately forgiving: a begin without an end, or an end
// without a begin, turns into a diagnostic and the span is treated as raw
// text, so a half-edited file can never make the generator destroy content.
func splitSegments(text string, syn Syntax) ([]segment, []Diagnostic) {
	var (
		segs  []segment
		diags []Diagnostic
		raw   strings.Builder
	)
	lines := strings.SplitAfter(text, "\n")
	rawStart := 1

	flushRaw := func() {
		if raw.Len() > 0 {
			segs = append(segs, segment{text: raw.String(), line: rawStart})
			raw.Reset()
		}
	}

	i := 0
	for i < len(lines) {
		id, ok := matchMarker(lines[i], syn, "begin")
		if !ok {
			if _, stray := matchMarker(lines[i], syn, "end"); stray {
				diags = append(diags, Diagnostic{Line: i + 1, Message: "end marker without a matching begin"})
			}
			raw.WriteString(lines[i])
			i++
			continue
		}

		// Collect the region body until the matching end marker.
		var body strings.Builder
		j := i + 1
		closed := false
		for ; j < len(lines); j++ {
			if endID, ok := matchMarker(lines[j], syn, "end"); ok {
				if endID != id {
					diags = append(diags, Diagnostic{Line: j + 1, Message: fmt.Sprintf("end marker for %q inside region %q", endID, id)})
					continue
				}
				closed = true
				break
			}
			body.WriteString(lines[j])
		}
		if !closed {
			diags = append(diags, Diagnostic{Line: i + 1, Message: fmt.Sprintf("region %q is never closed", id)})
			// Treat the whole span as raw text.
			raw.WriteString(lines[i])
			i++
			continue
		}

		flushRaw()
		segs = append(segs, segment{regionID: id, body: strings.TrimRight(body.String(), "\n"), line: i + 1})
		rawStart = j + 2
		i = j + 1
	}
	flushRaw()
	return segs, diags
}

// matchMarker recognizes a begin/end marker line and extracts the region id.
func matchMarker(line string, syn Syntax, which string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	var prefix, suffix string
	if syn == SyntaxHTML {
		prefix, suffix = "<!-- vss:"+which+" ", " -->"
	} else {
		prefix, suffix = "/* vss:"+which+" ", " */"
	}
	if !strings.HasPrefix(trimmed, prefix) || !strings.HasSuffix(trimmed, suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(trimmed, prefix), suffix)
	if id == "" || strings.ContainsAny(id, " \t") {
		return "", false
	}
	return id, true
}

const generatedHeaderCSS = `/* Generated by vss-server.
 * Regions between vss markers are rewritten on every design change.
 * Everything outside them is yours and is never touched. */
`

const generatedHeaderHTML = `<!-- Generated by vss-server.
  Regions between vss markers are rewritten on every design change.
  Everything outside them is yours and is never touched. -->
`

// Merge integrates freshly generated regions into the existing file text,
// touching only the spans the generator owns:
//
//   - a region whose id has new content is rewritten in place
//   - a region whose id is in removed disappears
//   - a region the generator does not know (yet) is kept verbatim
//   - all text outside regions is preserved byte-for-byte
//   - regions without an existing span are appended at the end
func Merge(existing string, regions []Region, removed map[string]bool, syn Syntax) string {
	fresh := make(map[string]string, len(regions))
	order := make([]string, 0, len(regions))
	for _, r := range regions {
		fresh[r.ID] = r.Body
		order = append(order, r.ID)
	}

	var b strings.Builder
	if strings.TrimSpace(existing) == "" {
		if syn == SyntaxHTML {
			b.WriteString(generatedHeaderHTML)
		} else {
			b.WriteString(generatedHeaderCSS)
		}
		b.WriteString("\n")
		existing = ""
	}

	segs, _ := splitSegments(existing, syn)
	used := make(map[string]bool, len(fresh))

	for _, seg := range segs {
		if seg.regionID == "" {
			b.WriteString(seg.text)
			continue
		}
		if removed[seg.regionID] {
			continue
		}
		body, ok := fresh[seg.regionID]
		if !ok {
			body = seg.body // unknown region: keep as written
		}
		used[seg.regionID] = true
		writeRegion(&b, seg.regionID, body, syn)
	}

	for _, id := range order {
		if used[id] || removed[id] {
			continue
		}
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
			if !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
		writeRegion(&b, id, fresh[id], syn)
	}

	return b.String()
}

func writeRegion(b *strings.Builder, id, body string, syn Syntax) {
	b.WriteString(syn.begin(id))
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(syn.end(id))
	b.WriteString("\n")
}
