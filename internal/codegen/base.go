package codegen

import "strings"

func baseName(typeName string) string { return typeName + "Base" }

// selfContainedBase returns the base type emitted for preprocessed
// templates without an explicit base, so the generated file needs nothing
// but the standard library.
func selfContainedBase(typeName string) string {
	return strings.NewReplacer(
		"{{Type}}", typeName,
		"{{Base}}", baseName(typeName),
		"{{Helper}}", typeName+"ToStringHelper",
		"{{Error}}", typeName+"Error",
	).Replace(baseTemplate)
}

const baseTemplate = `// {{Base}} is the base type of {{Type}}.
type {{Base}} struct {
	builder         *strings.Builder
	indentLengths   []int
	currentIndent   string
	endsWithNewline bool
	errors          []error
	session         map[string]interface{}
	toStringHelper  {{Helper}}
}

// {{Error}} is an error or warning raised by {{Type}}.
type {{Error}} struct {
	Message string
	Warning bool
}

func (e *{{Error}}) Error() string { return e.Message }

// IsWarning reports whether e is a warning.
func (e *{{Error}}) IsWarning() bool { return e.Warning }

// Initialize is called before TransformText.
func (b *{{Base}}) Initialize() {}

// GenerationEnvironment returns the output buffer.
func (b *{{Base}}) GenerationEnvironment() *strings.Builder {
	if b.builder == nil {
		b.builder = &strings.Builder{}
	}
	return b.builder
}

// Write appends text, indenting every line that starts inside it.
func (b *{{Base}}) Write(text string) {
	if text == "" {
		return
	}
	out := b.GenerationEnvironment()
	if (out.Len() == 0 || b.endsWithNewline) && b.currentIndent != "" {
		out.WriteString(b.currentIndent)
	}
	last := text[len(text)-1]
	b.endsWithNewline = last == '\n' || last == '\r'
	if b.currentIndent == "" {
		out.WriteString(text)
		return
	}
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
		out.WriteString(text[start : i+1])
		out.WriteString(b.currentIndent)
		start = i + 1
	}
	out.WriteString(text[start:])
}

// Writef writes formatted text.
func (b *{{Base}}) Writef(format string, args ...interface{}) {
	b.Write(fmt.Sprintf(format, args...))
}

// WriteLine writes text followed by a newline.
func (b *{{Base}}) WriteLine(text string) {
	b.Write(text)
	b.Write("\n")
}

// PushIndent appends indent to the current indentation.
func (b *{{Base}}) PushIndent(indent string) {
	b.currentIndent += indent
	b.indentLengths = append(b.indentLengths, len(indent))
}

// PopIndent removes the most recently pushed indentation and returns it.
func (b *{{Base}}) PopIndent() string {
	if len(b.indentLengths) == 0 {
		return ""
	}
	n := b.indentLengths[len(b.indentLengths)-1]
	b.indentLengths = b.indentLengths[:len(b.indentLengths)-1]
	cut := len(b.currentIndent) - n
	popped := b.currentIndent[cut:]
	b.currentIndent = b.currentIndent[:cut]
	return popped
}

// ClearIndent removes all indentation.
func (b *{{Base}}) ClearIndent() {
	b.currentIndent = ""
	b.indentLengths = nil
}

// CurrentIndent returns the current indentation.
func (b *{{Base}}) CurrentIndent() string {
	return b.currentIndent
}

// Error records an error.
func (b *{{Base}}) Error(message string) {
	b.errors = append(b.errors, &{{Error}}{Message: message})
}

// Warning records a warning.
func (b *{{Base}}) Warning(message string) {
	b.errors = append(b.errors, &{{Error}}{Message: message, Warning: true})
}

// Errors returns the recorded errors and warnings.
func (b *{{Base}}) Errors() []error {
	return b.errors
}

// Session returns the session values; it is never nil.
func (b *{{Base}}) Session() map[string]interface{} {
	if b.session == nil {
		b.session = make(map[string]interface{})
	}
	return b.session
}

// SetSession replaces the session values.
func (b *{{Base}}) SetSession(session map[string]interface{}) {
	b.session = session
}

// ToStringHelper returns the helper used to render expression values.
func (b *{{Base}}) ToStringHelper() *{{Helper}} {
	return &b.toStringHelper
}

// {{Helper}} renders expression values with fmt.
type {{Helper}} struct {
	Culture string
}

// SetCulture records the culture name.
func (h *{{Helper}}) SetCulture(name string) error {
	h.Culture = name
	return nil
}

// ToStringWithCulture renders v.
func (h *{{Helper}}) ToStringWithCulture(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	return fmt.Sprint(v)
}`
