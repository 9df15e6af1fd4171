package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
)

const sample = "<#@ template language=\"C#\" #>\nA\n<# x=1 #>\nB<#= x #>C\n<#+ h() #>"

func states(tokens []Token) []State {
	out := make([]State, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.State
	}
	return out
}

func TestStateSequence(t *testing.T) {
	tokens, err := Tokenize(sample, "t.tt")
	require.NoError(t, err)

	assert.Equal(t, []State{
		Directive, DirectiveName, DirectiveName, DirectiveValue,
		Content, Block, Content, Expression, Content, Helper, Content, EOF,
	}, states(tokens))
}

func TestTokenValuesAndLocations(t *testing.T) {
	tokens, err := Tokenize(sample, "t.tt")
	require.NoError(t, err)
	require.Len(t, tokens, 12)

	loc := func(line, col int) source.Location { return source.NewLocation("t.tt", line, col) }

	expected := []struct {
		value    string
		location source.Location
		tagStart source.Location
	}{
		{"", loc(1, 1), loc(1, 1)},
		{"template", loc(1, 5), loc(1, 1)},
		{"language", loc(1, 14), loc(1, 1)},
		{"C#", loc(1, 24), loc(1, 1)},
		{"A\n", loc(2, 1), loc(2, 1)},
		{" x=1 ", loc(3, 3), loc(3, 1)},
		{"B", loc(4, 1), loc(4, 1)},
		{" x ", loc(4, 5), loc(4, 2)},
		{"C\n", loc(4, 10), loc(4, 10)},
		{" h() ", loc(5, 4), loc(5, 1)},
		{"", loc(5, 11), loc(5, 11)},
		{"", loc(5, 11), loc(5, 11)},
	}
	for i, want := range expected {
		assert.Equal(t, want.value, tokens[i].Value, "token %d value", i)
		assert.Equal(t, want.location, tokens[i].Location, "token %d location", i)
		assert.Equal(t, want.tagStart, tokens[i].TagStart, "token %d tag start", i)
	}

	assert.Equal(t, loc(3, 10), tokens[5].TagEnd)
	assert.Equal(t, loc(4, 10), tokens[7].TagEnd)
}

func TestNewlineStyles(t *testing.T) {
	for name, nl := range map[string]string{"lf": "\n", "cr": "\r", "crlf": "\r\n"} {
		t.Run(name, func(t *testing.T) {
			input := strings.ReplaceAll(sample, "\n", nl)
			tokens, err := Tokenize(input, "t.tt")
			require.NoError(t, err)

			require.Len(t, tokens, 12)
			assert.Equal(t, "A"+nl, tokens[4].Value)
			assert.Equal(t, source.NewLocation("t.tt", 2, 1), tokens[4].Location)
			assert.Equal(t, source.NewLocation("t.tt", 3, 3), tokens[5].Location)
			assert.Equal(t, source.NewLocation("t.tt", 4, 1), tokens[6].Location)
			assert.Equal(t, source.NewLocation("t.tt", 5, 4), tokens[9].Location)
		})
	}
}

func TestNewlineSwallowing(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		content []string
	}{
		{"after block", "<# a #>\nx", []string{"x"}},
		{"after directive", "<#@ d #>\r\nx", []string{"x"}},
		{"after helper", "<#+ a #>\nx", []string{"x"}},
		{"not after expression", "<#= a #>\nx", []string{"\nx"}},
		{"only one newline", "<# a #>\n\nx", []string{"\nx"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.input, "f")
			require.NoError(t, err)
			var content []string
			for _, tok := range tokens {
				if tok.State == Content && tok.Value != "" {
					content = append(content, tok.Value)
				}
			}
			assert.Equal(t, tt.content, content)
		})
	}
}

func TestEscapedBlockEnd(t *testing.T) {
	tokens, err := Tokenize(`<# s := "\#>" #>`, "f")
	require.NoError(t, err)
	require.Equal(t, Block, tokens[0].State)
	assert.Equal(t, ` s := "\#>" `, tokens[0].Value)
}

func TestDirectiveValueEscapes(t *testing.T) {
	tokens, err := Tokenize(`<#@ d a="x \"q\" \\ \n" #>`, "f")
	require.NoError(t, err)
	require.Equal(t, DirectiveValue, tokens[3].State)
	assert.Equal(t, `x "q" \ \n`, tokens[3].Value)
}

func TestDirectiveWhitespace(t *testing.T) {
	tokens, err := Tokenize("<#@\n  include   file = \"a.tt\"\n#>", "f")
	require.NoError(t, err)
	assert.Equal(t, []State{Directive, DirectiveName, DirectiveName, DirectiveValue, Content, EOF}, states(tokens))
	assert.Equal(t, source.NewLocation("f", 2, 3), tokens[1].Location)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		loc   source.Location
	}{
		{"unterminated block", "abc\n  <# x", errors.CodeUnterminatedTag, source.NewLocation("f", 2, 3)},
		{"unterminated expression", "<#= x", errors.CodeUnterminatedTag, source.NewLocation("f", 1, 1)},
		{"unterminated directive", "<#@ template", errors.CodeUnterminatedTag, source.NewLocation("f", 1, 1)},
		{"unquoted value", "<#@ template a=b #>", errors.CodeMalformedDirective, source.NewLocation("f", 1, 16)},
		{"unterminated value", `<#@ template a="b #>`, errors.CodeMalformedDirective, source.NewLocation("f", 1, 17)},
		{"stray character", "<#@ template ! #>", errors.CodeUnexpectedCharacter, source.NewLocation("f", 1, 14)},
		{"equals without name", `<#@ ="x" #>`, errors.CodeUnexpectedCharacter, source.NewLocation("f", 1, 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.input, "f")
			require.Error(t, err)

			var te *errors.T4Error
			require.True(t, errors.As(err, &te))
			assert.Equal(t, errors.ErrorTypeParse, te.Type)
			assert.Equal(t, tt.code, te.Code)
			assert.Equal(t, tt.loc, te.Location)
		})
	}
}

func TestErrorIsSticky(t *testing.T) {
	tok := New("<# x", "f")
	ok, err := tok.Advance()
	assert.False(t, ok)
	require.Error(t, err)

	ok, err2 := tok.Advance()
	assert.False(t, ok)
	assert.Equal(t, err, err2)
}

func TestEmptyAndPlain(t *testing.T) {
	tokens, err := Tokenize("", "f")
	require.NoError(t, err)
	assert.Equal(t, []State{EOF}, states(tokens))

	tokens, err = Tokenize("\ufeffhello", "f")
	require.NoError(t, err)
	assert.Equal(t, []State{Content, EOF}, states(tokens))
	assert.Equal(t, "hello", tokens[0].Value)
	assert.Equal(t, source.NewLocation("f", 1, 6), tokens[1].Location)
}

func TestColumnsCountRunes(t *testing.T) {
	tokens, err := Tokenize("héllo<#= x #>", "f")
	require.NoError(t, err)
	assert.Equal(t, source.NewLocation("f", 1, 6), tokens[1].TagStart)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DirectiveValue", DirectiveValue.String())
	assert.Equal(t, "EOF", EOF.String())
	assert.Equal(t, "Unknown", State(99).String())
}
