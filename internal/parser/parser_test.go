package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
)

type segView struct {
	Kind SegmentKind
	Text string
}

func segmentsOf(pt *ParsedTemplate) []segView {
	var out []segView
	for _, s := range pt.Segments() {
		out = append(out, segView{s.Kind, s.Text})
	}
	return out
}

func TestParseSegmentsAndDirectives(t *testing.T) {
	pt := ParseString("<#@ template language=\"Go\" Debug=\"true\" #>\nHello <#= name #>!\n<# if x { #>y<# } #>",
		"t.tt", nil, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())

	dirs := pt.Directives()
	require.Len(t, dirs, 1)
	d := dirs[0]
	assert.Equal(t, "template", d.Name)
	assert.Equal(t, "Go", d.Attributes.Value("LANGUAGE"))
	assert.Equal(t, "true", d.Attributes.Value("debug"))
	assert.Equal(t, []string{"language", "Debug"}, d.Attributes.Keys())
	assert.Equal(t, source.NewLocation("t.tt", 1, 5), d.Start)
	assert.Equal(t, source.NewLocation("t.tt", 1, 1), d.TagStart)
	assert.Equal(t, source.NewLocation("t.tt", 1, 43), d.End)

	assert.Equal(t, []segView{
		{ContentSegment, "Hello "},
		{ExpressionSegment, " name "},
		{ContentSegment, "!\n"},
		{BlockSegment, " if x { "},
		{ContentSegment, "y"},
		{BlockSegment, " } "},
	}, segmentsOf(pt))

	segs := pt.Segments()
	assert.Equal(t, source.NewLocation("t.tt", 2, 10), segs[1].Start)
	assert.Equal(t, source.NewLocation("t.tt", 2, 7), segs[1].TagStart)
	assert.Equal(t, source.NewLocation("t.tt", 2, 18), segs[1].End)
}

func TestIncludeOnce(t *testing.T) {
	resolver := MapIncludeResolver{
		"A.tt": "A",
		"B.tt": "B1\n<#@ include file=\"A.tt\" once=\"true\" #>\nB2\n",
	}
	root := "<#@ include file=\"A.tt\" #>\n" +
		"<#@ include file=\"B.tt\" #>\n" +
		"<#@ include file=\"A.tt\" #>\n"

	pt := ParseString(root, "root.tt", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())

	assert.Equal(t, []segView{
		{ContentSegment, "A"},
		{ContentSegment, "B1\n"},
		{ContentSegment, "B2\n"},
		{ContentSegment, "A"},
	}, segmentsOf(pt))
	assert.Empty(t, pt.Directives())
	assert.Equal(t, []string{"A.tt", "B.tt", "A.tt"}, pt.Includes())
}

func TestIncludeOnceFirstOccurrenceIsRead(t *testing.T) {
	resolver := MapIncludeResolver{"A.tt": "A"}
	root := "<#@ include file=\"A.tt\" once=\"true\" #>" +
		"<#@ include file=\"sub/../A.tt\" once=\"true\" #>" +
		"<#@ include file=\"A.tt\" #>"

	pt := ParseString(root, "", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())
	assert.Equal(t, []segView{{ContentSegment, "A"}, {ContentSegment, "A"}}, segmentsOf(pt))
}

func TestHelperDeferral(t *testing.T) {
	resolver := MapIncludeResolver{
		"inc.tt": "I1<#+ incHelper #>I2<# incBlock #>",
	}
	root := "R1<#@ include file=\"inc.tt\" #>R2<#+ rootHelper #>R3"

	pt := ParseString(root, "root.tt", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())

	assert.Equal(t, []segView{
		{ContentSegment, "R1"},
		{ContentSegment, "I1"},
		{ContentSegment, "R2"},
		{HelperSegment, " rootHelper "},
		{ContentSegment, "R3"},
		{HelperSegment, " incHelper "},
		{ContentSegment, "I2"},
		{BlockSegment, " incBlock "},
	}, segmentsOf(pt))

	helper := pt.Segments()[5]
	assert.Equal(t, "inc.tt", helper.Start.File)
	assert.Equal(t, 6, helper.Start.Column)
}

func TestDirectivesAfterIncludedHelperAreDeferred(t *testing.T) {
	resolver := MapIncludeResolver{
		"inc.tt": "<#@ import namespace=\"strings\" #>I1<#+ h #><#@ assembly name=\"example.com/lib\" #>I2",
	}
	pt := ParseString("<#@ include file=\"inc.tt\" #><#@ output extension=\".txt\" #>R", "root.tt", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())

	var names []string
	for _, d := range pt.Directives() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"import", "output", "assembly"}, names)
	assert.Equal(t, []segView{
		{ContentSegment, "I1"},
		{ContentSegment, "R"},
		{HelperSegment, " h "},
		{ContentSegment, "I2"},
	}, segmentsOf(pt))
}

func TestIncludeOnceValue(t *testing.T) {
	resolver := MapIncludeResolver{"a.tt": "A"}
	tests := []struct {
		once  string
		want  []segView
		warns int
	}{
		{"TRUE", []segView{{ContentSegment, "A"}}, 0},
		{"false", []segView{{ContentSegment, "A"}, {ContentSegment, "A"}}, 0},
		{"maybe", []segView{{ContentSegment, "A"}, {ContentSegment, "A"}}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.once, func(t *testing.T) {
			inc := "<#@ include file=\"a.tt\" once=\"" + tc.once + "\" #>"
			pt := ParseString(inc+inc, "root.tt", resolver, Options{})
			require.False(t, pt.HasErrors(), pt.Diagnostics.Format())
			assert.Equal(t, tc.want, segmentsOf(pt))
			assert.Len(t, pt.Diagnostics.Warnings(), tc.warns*2)
		})
	}
}

func TestNestedHelpersKeepEncounterOrder(t *testing.T) {
	resolver := MapIncludeResolver{
		"a.tt": "<#+ a1 #><#@ include file=\"b.tt\" #><#+ a2 #>",
		"b.tt": "<#+ b1 #>",
	}
	pt := ParseString("<#@ include file=\"a.tt\" #>root", "root.tt", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())

	assert.Equal(t, []segView{
		{ContentSegment, "root"},
		{HelperSegment, " a1 "},
		{HelperSegment, " b1 "},
		{HelperSegment, " a2 "},
	}, segmentsOf(pt))
}

func TestIncludeRelativeToIncludingFile(t *testing.T) {
	resolver := MapIncludeResolver{
		"dir/b/inc.tt": "<#@ include file=\"c.tt\" #>",
		"dir/b/c.tt":   "nested",
		"dir/c.tt":     "wrong",
		"shared.tt":    "search path",
	}
	pt := ParseString("<#@ include file=\"b/inc.tt\" #><#@ include file=\"shared.tt\" #>",
		"dir/root.tt", resolver, Options{})
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())
	assert.Equal(t, []segView{{ContentSegment, "nested"}, {ContentSegment, "search path"}}, segmentsOf(pt))
}

func TestIncludeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"missing file attribute", `<#@ include once="true" #>`, errors.CodeIncludeMissingFile},
		{"unresolvable", `<#@ include file="nope.tt" #>`, errors.CodeIncludeNotFound},
		{"cycle", `<#@ include file="loop.tt" #>`, errors.CodeIncludeTooDeep},
	}

	resolver := MapIncludeResolver{
		"a.tt":    "a",
		"loop.tt": `<#@ include file="loop.tt" #>`,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := ParseString("before"+tt.input+"after", "root.tt", resolver, Options{MaxIncludeDepth: 8})
			require.True(t, pt.HasErrors())
			errs := pt.Diagnostics.Errors()
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.NotEmpty(t, errs[0].Location.File)

			// Parsing continues past the failed include.
			segs := segmentsOf(pt)
			assert.Equal(t, segView{ContentSegment, "after"}, segs[len(segs)-1])
		})
	}
}

func TestTokenizerErrorBecomesDiagnostic(t *testing.T) {
	pt := ParseString("ok <# unterminated", "bad.tt", nil, Options{})
	require.True(t, pt.HasErrors())
	errs := pt.Diagnostics.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, errors.CodeUnterminatedTag, errs[0].Code)
	assert.Equal(t, source.NewLocation("bad.tt", 1, 4), errs[0].Location)
	assert.Equal(t, []segView{{ContentSegment, "ok "}}, segmentsOf(pt))
}

func TestAttributeWithoutValueWarns(t *testing.T) {
	pt := ParseString(`<#@ template debug #>`, "w.tt", nil, Options{})
	assert.False(t, pt.HasErrors())
	require.Len(t, pt.Diagnostics.Warnings(), 1)
	require.Len(t, pt.Directives(), 1)
	assert.Equal(t, 0, pt.Directives()[0].Attributes.Len())
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.tt"), []byte(`x<#@ include file="inc.t4" #>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inc.t4"), []byte("y"), 0o644))

	pt, err := ParseFile(filepath.Join(dir, "root.tt"), nil, Options{})
	require.NoError(t, err)
	require.False(t, pt.HasErrors(), pt.Diagnostics.Format())
	assert.Equal(t, []segView{{ContentSegment, "x"}, {ContentSegment, "y"}}, segmentsOf(pt))

	includes := pt.Includes()
	require.Len(t, includes, 1)
	assert.True(t, filepath.IsAbs(includes[0]))

	_, err = ParseFile(filepath.Join(dir, "missing.tt"), nil, Options{})
	assert.Error(t, err)
}

func TestAttributes(t *testing.T) {
	a := NewAttributes()
	a.Set("Name", "1")
	a.Set("type", "int")
	a.Set("NAME", "2")

	assert.Equal(t, 2, a.Len())
	assert.Equal(t, "2", a.Value("name"))
	assert.Equal(t, []string{"Name", "type"}, a.Keys())

	v, ok := a.Extract("TYPE")
	assert.True(t, ok)
	assert.Equal(t, "int", v)
	assert.False(t, a.Has("type"))
	assert.Equal(t, map[string]string{"Name": "2"}, a.Map())

	c := a.Clone()
	c.Set("x", "y")
	assert.Equal(t, 1, a.Len())
}
