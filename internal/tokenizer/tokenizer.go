// Package tokenizer splits a text template into positioned tokens.
//
// The tokenizer is re-entrant: each call to Advance reads exactly one token
// and exposes it through State, Value, Location, TagStart and TagEnd.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
)

// State identifies the kind of the current token.
type State int

const (
	Content State = iota
	Directive
	DirectiveName
	DirectiveValue
	Block
	Expression
	Helper
	EOF
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Content:
		return "Content"
	case Directive:
		return "Directive"
	case DirectiveName:
		return "DirectiveName"
	case DirectiveValue:
		return "DirectiveValue"
	case Block:
		return "Block"
	case Expression:
		return "Expression"
	case Helper:
		return "Helper"
	case EOF:
		return "EOF"
	default:
		return "Unknown"
	}
}

// Token is a snapshot of one tokenizer step.
type Token struct {
	State    State
	Value    string
	Location source.Location
	TagStart source.Location
	TagEnd   source.Location
}

type mode int

const (
	modeContent mode = iota
	modeDirective
	modeEOF
)

const bom = "\ufeff"

// Tokenizer reads tokens from one template document.
type Tokenizer struct {
	content string
	pos     int
	loc     source.Location
	mode    mode

	// afterTag is set when a tag has just closed; the following Content
	// token is emitted even when empty.
	afterTag bool
	// lastWasName allows '=' only right after a directive attribute name.
	lastWasName bool

	state        State
	value        string
	location     source.Location
	tagStart     source.Location
	tagEnd       source.Location
	directiveEnd source.Location
	err          error
}

// New creates a tokenizer over content. file names the document in locations.
func New(content, file string) *Tokenizer {
	return &Tokenizer{
		content: strings.TrimPrefix(content, bom),
		loc:     source.Start(file),
		state:   Content,
	}
}

// State returns the state of the current token.
func (t *Tokenizer) State() State { return t.state }

// Value returns the text of the current token.
func (t *Tokenizer) Value() string { return t.value }

// Location returns the position of the first character of the current value.
func (t *Tokenizer) Location() source.Location { return t.location }

// TagStart returns the position of the "<#" opening the current tag.
func (t *Tokenizer) TagStart() source.Location { return t.tagStart }

// TagEnd returns the position just past the "#>" closing the current tag.
func (t *Tokenizer) TagEnd() source.Location { return t.tagEnd }

// DirectiveEnd returns the position just past the "#>" of the most recently
// closed directive.
func (t *Tokenizer) DirectiveEnd() source.Location { return t.directiveEnd }

// File returns the document name used in locations.
func (t *Tokenizer) File() string { return t.loc.File }

// Content returns the document text without a leading byte order mark.
func (t *Tokenizer) Content() string { return t.content }

// Token returns a snapshot of the current token.
func (t *Tokenizer) Token() Token {
	return Token{
		State:    t.state,
		Value:    t.value,
		Location: t.location,
		TagStart: t.tagStart,
		TagEnd:   t.tagEnd,
	}
}

// Advance reads the next token. It returns false at the end of the document
// or when the document is malformed; the error is then a parse error
// carrying the offending location. Once an error has been returned every
// further call returns it again.
func (t *Tokenizer) Advance() (bool, error) {
	if t.err != nil {
		return false, t.err
	}

	for {
		switch t.mode {
		case modeEOF:
			t.emit(EOF, "", t.loc)
			t.tagStart, t.tagEnd = t.loc, t.loc
			return false, nil

		case modeDirective:
			closed, err := t.nextInDirective()
			if err != nil {
				t.err = err
				return false, err
			}
			if !closed {
				return true, nil
			}
			// The closing "#>" yields no token of its own.

		case modeContent:
			return t.nextInContent()
		}
	}
}

func (t *Tokenizer) nextInContent() (bool, error) {
	start := t.loc
	end := strings.Index(t.content[t.pos:], "<#")

	if end < 0 {
		text := t.content[t.pos:]
		t.advanceTo(len(t.content))
		t.mode = modeEOF
		if text == "" && !t.afterTag {
			t.emit(EOF, "", t.loc)
			t.tagStart, t.tagEnd = t.loc, t.loc
			return false, nil
		}
		t.afterTag = false
		t.emitContent(text, start)
		return true, nil
	}

	if end > 0 || t.afterTag {
		text := t.content[t.pos : t.pos+end]
		t.advanceTo(t.pos + end)
		t.afterTag = false
		t.emitContent(text, start)
		return true, nil
	}

	return t.openTag()
}

func (t *Tokenizer) emitContent(text string, start source.Location) {
	t.emit(Content, text, start)
	t.tagStart = start
	t.tagEnd = t.loc
}

// openTag consumes "<#" at the current position and reads the tag it opens.
func (t *Tokenizer) openTag() (bool, error) {
	tagStart := t.loc
	t.advanceTo(t.pos + 2)

	kind := Block
	if t.pos < len(t.content) {
		switch t.content[t.pos] {
		case '@':
			t.advanceTo(t.pos + 1)
			t.mode = modeDirective
			t.lastWasName = false
			t.emit(Directive, "", tagStart)
			t.tagStart = tagStart
			t.tagEnd = source.Location{}
			return true, nil
		case '=':
			kind = Expression
			t.advanceTo(t.pos + 1)
		case '+':
			kind = Helper
			t.advanceTo(t.pos + 1)
		}
	}

	bodyStart := t.loc
	end := findBlockEnd(t.content, t.pos)
	if end < 0 {
		t.err = errors.NewParseError(errors.CodeUnterminatedTag,
			"unterminated tag: missing '#>'", tagStart)
		return false, t.err
	}

	body := t.content[t.pos:end]
	t.advanceTo(end + 2)
	t.emit(kind, body, bodyStart)
	t.tagStart = tagStart
	t.tagEnd = t.loc

	if kind != Expression {
		t.skipNewline()
	}
	t.afterTag = true
	t.mode = modeContent

	return true, nil
}

// findBlockEnd returns the index of the first "#>" at or after from that is
// not escaped as "\#>", or -1.
func findBlockEnd(content string, from int) int {
	for i := from; ; {
		idx := strings.Index(content[i:], "#>")
		if idx < 0 {
			return -1
		}
		at := i + idx
		if at > 0 && content[at-1] == '\\' {
			i = at + 2
			continue
		}
		return at
	}
}

// nextInDirective reads one name or value inside a directive tag. It reports
// closed=true when the tag ended instead.
func (t *Tokenizer) nextInDirective() (closed bool, err error) {
	t.skipWhitespace()

	if t.pos >= len(t.content) {
		return false, errors.NewParseError(errors.CodeUnterminatedTag,
			"unterminated directive: missing '#>'", t.tagStart)
	}

	if strings.HasPrefix(t.content[t.pos:], "#>") {
		t.advanceTo(t.pos + 2)
		t.tagEnd = t.loc
		t.directiveEnd = t.loc
		t.skipNewline()
		t.afterTag = true
		t.mode = modeContent
		return true, nil
	}

	r, size := utf8.DecodeRuneInString(t.content[t.pos:])
	switch {
	case isNameRune(r):
		start := t.loc
		from := t.pos
		for t.pos < len(t.content) {
			r, size = utf8.DecodeRuneInString(t.content[t.pos:])
			if !isNameRune(r) {
				break
			}
			t.advanceTo(t.pos + size)
		}
		t.emitInDirective(DirectiveName, t.content[from:t.pos], start)
		t.lastWasName = true
		return false, nil

	case r == '=' && t.lastWasName:
		t.advanceTo(t.pos + size)
		t.skipWhitespace()
		if t.pos >= len(t.content) || t.content[t.pos] != '"' {
			return false, errors.NewParseError(errors.CodeMalformedDirective,
				"directive attribute value must be enclosed in double quotes", t.loc)
		}
		t.advanceTo(t.pos + 1)
		start := t.loc
		value, ok := t.readQuoted()
		if !ok {
			return false, errors.NewParseError(errors.CodeMalformedDirective,
				"unterminated directive attribute value", start)
		}
		t.emitInDirective(DirectiveValue, value, start)
		t.lastWasName = false
		return false, nil
	}

	return false, errors.NewParseError(errors.CodeUnexpectedCharacter,
		"unexpected character '"+string(r)+"' in directive", t.loc)
}

func (t *Tokenizer) emitInDirective(state State, value string, loc source.Location) {
	tagStart := t.tagStart
	t.emit(state, value, loc)
	t.tagStart = tagStart
}

// readQuoted reads up to and including the closing quote. \" and \\ unescape.
func (t *Tokenizer) readQuoted() (string, bool) {
	var b strings.Builder
	for i := t.pos; i < len(t.content); i++ {
		c := t.content[i]
		switch {
		case c == '\\' && i+1 < len(t.content) && (t.content[i+1] == '"' || t.content[i+1] == '\\'):
			b.WriteByte(t.content[i+1])
			i++
		case c == '"':
			t.advanceTo(i + 1)
			return b.String(), true
		default:
			b.WriteByte(c)
		}
	}
	return "", false
}

func (t *Tokenizer) emit(state State, value string, loc source.Location) {
	t.state = state
	t.value = value
	t.location = loc
}

func (t *Tokenizer) skipWhitespace() {
	for t.pos < len(t.content) {
		r, size := utf8.DecodeRuneInString(t.content[t.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		t.advanceTo(t.pos + size)
	}
}

// skipNewline swallows one line break: "\r\n", "\n" or "\r".
func (t *Tokenizer) skipNewline() {
	rest := t.content[t.pos:]
	switch {
	case strings.HasPrefix(rest, "\r\n"):
		t.advanceTo(t.pos + 2)
	case strings.HasPrefix(rest, "\n"), strings.HasPrefix(rest, "\r"):
		t.advanceTo(t.pos + 1)
	}
}

// advanceTo moves to byte offset end, updating the location. "\r\n", "\n"
// and a lone "\r" each count as one line break.
func (t *Tokenizer) advanceTo(end int) {
	for t.pos < end {
		r, size := utf8.DecodeRuneInString(t.content[t.pos:])
		switch {
		case r == '\r' && t.pos+1 < len(t.content) && t.content[t.pos+1] == '\n':
			// Counted at the '\n'.
		case r == '\n' || r == '\r':
			t.loc = t.loc.AddLine()
		default:
			t.loc = t.loc.AddColumn(1)
		}
		t.pos += size
	}
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// Tokenize reads every token of content up to and including EOF.
func Tokenize(content, file string) ([]Token, error) {
	t := New(content, file)
	var tokens []Token
	for {
		ok, err := t.Advance()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, t.Token())
		if !ok {
			return tokens, nil
		}
	}
}
