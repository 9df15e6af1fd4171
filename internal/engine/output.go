package engine

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/language"

	"github.com/conneroisu/t4go/internal/errors"
)

// EncodeOutput encodes text with the named IANA encoding. An empty name
// means UTF-8. Unicode encodings are written with a byte order mark.
func EncodeOutput(text, name string) ([]byte, error) {
	if name == "" {
		return []byte(text), nil
	}
	enc, err := lookupEncoding(name)
	if err != nil {
		return nil, err
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, errors.NewRuntimeError(errors.CodeInvalidAttribute,
			"output cannot be encoded as "+name, err, false)
	}
	return out, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "utf-8", "utf8":
		return encoding.Nop, nil
	case "utf-16", "utf-16le", "unicode":
		return xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM), nil
	case "utf-16be", "bigendianunicode":
		return xunicode.UTF16(xunicode.BigEndian, xunicode.UseBOM), nil
	case "utf-32", "utf-32le":
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM), nil
	case "utf-32be":
		return utf32.UTF32(utf32.BigEndian, utf32.UseBOM), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, errors.NewSemanticError(errors.CodeInvalidAttribute, "encoding '"+name+"' is not supported")
	}
	return enc, nil
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// ClassNameFromFile derives an exported Go type name from a template
// path: "user-profile.tt" becomes "UserProfile".
func ClassNameFromFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var b strings.Builder
	for _, w := range words {
		b.WriteString(titleCaser.String(w))
	}
	name := b.String()
	if name == "" {
		return "GeneratedTextTransformation"
	}
	if first := []rune(name)[0]; unicode.IsDigit(first) {
		name = "T" + name
	}
	return name
}

// OutputPath returns the path of a template's output file: the template
// path with its extension replaced by ext.
func OutputPath(template, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(template, filepath.Ext(template)) + ext
}
