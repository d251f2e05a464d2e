package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeRewritesOnlyOwnedRegions(t *testing.T) {
	existing := `/* my site styles, hands off */
.nav { display: flex; }

/* vss:begin r1 */
.vss-r1 {
  position: absolute;
  left: 40px;
}
/* vss:end r1 */

/* more hand-written rules */
.footer { color: gray; }
`
	merged := Merge(existing, []Region{{ID: "r1", Body: ".vss-r1 {\n  position: absolute;\n  left: 99px;\n}"}}, nil, SyntaxCSS)

	assert.Contains(t, merged, "my site styles, hands off")
	assert.Contains(t, merged, ".nav { display: flex; }")
	assert.Contains(t, merged, ".footer { color: gray; }")
	assert.Contains(t, merged, "left: 99px;")
	assert.NotContains(t, merged, "left: 40px;")
}

func TestMergeKeepsUnknownRegions(t *testing.T) {
	existing := `/* vss:begin mystery */
.mystery { margin: 4px; }
/* vss:end mystery */
`
	merged := Merge(existing, []Region{{ID: "r1", Body: ".vss-r1 { left: 1px; }"}}, nil, SyntaxCSS)

	assert.Contains(t, merged, ".mystery { margin: 4px; }", "regions the generator does not know stay verbatim")
	assert.Contains(t, merged, "/* vss:begin r1 */", "new regions are appended")
	assert.Less(t, strings.Index(merged, "mystery"), strings.Index(merged, "vss:begin r1"))
}

func TestMergeRemovesOnlyExplicitlyRemoved(t *testing.T) {
	existing := `/* vss:begin r1 */
.vss-r1 { left: 1px; }
/* vss:end r1 */
/* vss:begin r2 */
.vss-r2 { left: 2px; }
/* vss:end r2 */
`
	// r2 is absent from the fresh set but NOT in removed: it must survive.
	merged := Merge(existing, []Region{{ID: "r1", Body: ".vss-r1 { left: 9px; }"}}, map[string]bool{}, SyntaxCSS)
	assert.Contains(t, merged, ".vss-r2 { left: 2px; }")

	merged = Merge(existing, []Region{{ID: "r1", Body: ".vss-r1 { left: 9px; }"}}, map[string]bool{"r2": true}, SyntaxCSS)
	assert.NotContains(t, merged, "vss-r2")
	assert.NotContains(t, merged, "vss:begin r2")
}

func TestMergeEmptyFileGetsHeader(t *testing.T) {
	merged := Merge("", []Region{{ID: "r1", Body: ".vss-r1 { left: 1px; }"}}, nil, SyntaxCSS)
	assert.True(t, strings.HasPrefix(merged, "/* Generated by vss-server."))

	html := Merge("", []Region{{ID: "r1", Body: `<div class="vss-r1"></div>`}}, nil, SyntaxHTML)
	assert.True(t, strings.HasPrefix(html, "<!-- Generated by vss-server."))
	assert.Contains(t, html, "<!-- vss:begin r1 -->")
}

func TestMergeIdempotent(t *testing.T) {
	regions := []Region{
		{ID: "r1", Body: ".vss-r1 { left: 1px; }"},
		{ID: "r2", Body: ".vss-r2 { left: 2px; }"},
	}
	once := Merge("", regions, nil, SyntaxCSS)
	twice := Merge(once, regions, nil, SyntaxCSS)
	assert.Equal(t, once, twice)
}

func TestSplitSegmentsForgiving(t *testing.T) {
	// Unclosed region: diagnostic, content treated as raw text.
	segs, diags := splitSegments("/* vss:begin r1 */\n.vss-r1 { left: 1px; }\n", SyntaxCSS)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "never closed")
	for _, s := range segs {
		assert.Empty(t, s.regionID, "unclosed span must not count as an owned region")
	}

	// Stray end marker: diagnostic, no region.
	_, diags = splitSegments(".a { color: red; }\n/* vss:end r1 */\n", SyntaxCSS)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "without a matching begin")
}
