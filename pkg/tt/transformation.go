package tt

import (
	"fmt"
	"strings"
)

// TextTransformation is the default base of generated transformations.
// Generated types embed it and add TransformText.
type TextTransformation struct {
	builder         *strings.Builder
	indentLengths   []int
	currentIndent   string
	endsWithNewline bool
	errors          []error
	session         map[string]interface{}
	toString        ToStringHelper
}

// Initialize is called before TransformText. The base has nothing to do.
func (t *TextTransformation) Initialize() {}

// GenerationEnvironment returns the buffer output is written to.
func (t *TextTransformation) GenerationEnvironment() *strings.Builder {
	if t.builder == nil {
		t.builder = &strings.Builder{}
	}
	return t.builder
}

// SetGenerationEnvironment replaces the output buffer.
func (t *TextTransformation) SetGenerationEnvironment(b *strings.Builder) {
	t.builder = b
}

// Write appends text, indenting every line that starts inside it.
func (t *TextTransformation) Write(text string) {
	if text == "" {
		return
	}
	b := t.GenerationEnvironment()

	if (b.Len() == 0 || t.endsWithNewline) && t.currentIndent != "" {
		b.WriteString(t.currentIndent)
	}
	last := text[len(text)-1]
	t.endsWithNewline = last == '\n' || last == '\r'

	if t.currentIndent == "" {
		b.WriteString(text)
		return
	}

	// A trailing line break is indented by the next Write.
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\n' && c != '\r' {
			continue
		}
		if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			i++
		}
		if i == len(text)-1 {
			break
		}
		b.WriteString(text[start : i+1])
		b.WriteString(t.currentIndent)
		start = i + 1
	}
	b.WriteString(text[start:])
}

// Writef writes formatted text.
func (t *TextTransformation) Writef(format string, args ...interface{}) {
	t.Write(fmt.Sprintf(format, args...))
}

// WriteLine writes text followed by a newline.
func (t *TextTransformation) WriteLine(text string) {
	t.Write(text)
	t.Write("\n")
}

// WriteLinef writes formatted text followed by a newline.
func (t *TextTransformation) WriteLinef(format string, args ...interface{}) {
	t.WriteLine(fmt.Sprintf(format, args...))
}

// PushIndent appends indent to the current indentation.
func (t *TextTransformation) PushIndent(indent string) {
	t.currentIndent += indent
	t.indentLengths = append(t.indentLengths, len(indent))
}

// PopIndent removes the most recently pushed indentation and returns it.
func (t *TextTransformation) PopIndent() string {
	if len(t.indentLengths) == 0 {
		return ""
	}
	n := t.indentLengths[len(t.indentLengths)-1]
	t.indentLengths = t.indentLengths[:len(t.indentLengths)-1]

	cut := len(t.currentIndent) - n
	popped := t.currentIndent[cut:]
	t.currentIndent = t.currentIndent[:cut]
	return popped
}

// ClearIndent removes all indentation.
func (t *TextTransformation) ClearIndent() {
	t.currentIndent = ""
	t.indentLengths = nil
}

// CurrentIndent returns the current indentation.
func (t *TextTransformation) CurrentIndent() string {
	return t.currentIndent
}

// Error records an error.
func (t *TextTransformation) Error(message string) {
	t.errors = append(t.errors, &TransformError{Message: message})
}

// Warning records a warning.
func (t *TextTransformation) Warning(message string) {
	t.errors = append(t.errors, &TransformError{Message: message, Warning: true})
}

// Errors returns the recorded errors and warnings.
func (t *TextTransformation) Errors() []error {
	return t.errors
}

// HasErrors reports whether an error, not counting warnings, was recorded.
func (t *TextTransformation) HasErrors() bool {
	for _, err := range t.errors {
		if te, ok := err.(*TransformError); !ok || !te.Warning {
			return true
		}
	}
	return false
}

// Session returns the session values; it is never nil.
func (t *TextTransformation) Session() map[string]interface{} {
	if t.session == nil {
		t.session = make(map[string]interface{})
	}
	return t.session
}

// SetSession replaces the session values.
func (t *TextTransformation) SetSession(session map[string]interface{}) {
	t.session = session
}

// ToStringHelper returns the helper used to render expression values.
func (t *TextTransformation) ToStringHelper() *ToStringHelper {
	return &t.toString
}
