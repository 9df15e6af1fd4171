package tt

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ToStringHelper renders expression values. Numbers are formatted for the
// configured culture; without one they use fmt's default formatting.
type ToStringHelper struct {
	culture string
	printer *message.Printer
}

// SetCulture sets the culture from a BCP 47 tag such as "de-DE". An empty
// name restores culture-neutral formatting.
func (h *ToStringHelper) SetCulture(name string) error {
	if name == "" {
		h.culture = ""
		h.printer = nil
		return nil
	}
	tag, err := language.Parse(name)
	if err != nil {
		return fmt.Errorf("invalid culture %q: %w", name, err)
	}
	h.culture = tag.String()
	h.printer = message.NewPrinter(tag)
	return nil
}

// Culture returns the culture tag, or "" when none is set.
func (h *ToStringHelper) Culture() string {
	return h.culture
}

// ToStringWithCulture renders v.
func (h *ToStringHelper) ToStringWithCulture(v interface{}) string {
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
	if h.printer != nil && isNumber(v) {
		return h.printer.Sprint(v)
	}
	return fmt.Sprint(v)
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
