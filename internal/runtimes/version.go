package runtimes

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a semantic version, major.minor.patch[-prerelease][+metadata].
// Prerelease and metadata keep their original spelling so String returns
// exactly what Parse was given.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Metadata   string
}

// Parse parses a semantic version.
func Parse(s string) (Version, error) {
	var v Version
	rest := s

	if i := strings.IndexByte(rest, '+'); i >= 0 {
		v.Metadata = rest[i+1:]
		if !validIdentifiers(v.Metadata) {
			return Version{}, fmt.Errorf("invalid version %q: bad metadata", s)
		}
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		v.Prerelease = rest[i+1:]
		if !validIdentifiers(v.Prerelease) {
			return Version{}, fmt.Errorf("invalid version %q: bad prerelease", s)
		}
		rest = rest[:i]
	}

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", s)
	}
	nums := [3]*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := parseNumber(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
		}
		*nums[i] = n
	}
	return v, nil
}

// MustParse is Parse for known-good input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromGoVersion converts a toolchain version such as "go1.21rc2" or
// "go1.22.3" to a semantic version ("1.21.0-rc2", "1.22.3").
func FromGoVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	// VERSION files carry extra lines, and `go version` extra words.
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		s = s[:i]
	}
	raw := strings.TrimPrefix(s, "go")
	if raw == "" {
		return Version{}, fmt.Errorf("invalid go version %q", s)
	}

	core, pre := raw, ""
	for i, r := range raw {
		if r != '.' && (r < '0' || r > '9') {
			core, pre = raw[:i], raw[i:]
			break
		}
	}

	parts := strings.Split(core, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid go version %q", s)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}

	text := strings.Join(parts, ".")
	if pre != "" {
		text += "-" + strings.TrimPrefix(pre, "-")
	}
	v, err := Parse(text)
	if err != nil {
		return Version{}, fmt.Errorf("invalid go version %q: %w", s, err)
	}
	return v, nil
}

func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Metadata != "" {
		b.WriteByte('+')
		b.WriteString(v.Metadata)
	}
	return b.String()
}

// IsZero reports whether v is the zero version.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0 or +1. A release sorts after its prereleases;
// metadata sorts after its absence. Identifiers compare numerically when
// both are numeric and case-insensitively otherwise.
func (v Version) Compare(o Version) int {
	if c := compareInt(v.Major, o.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, o.Patch); c != 0 {
		return c
	}

	switch {
	case v.Prerelease == "" && o.Prerelease != "":
		return 1
	case v.Prerelease != "" && o.Prerelease == "":
		return -1
	}
	if c := compareIdentifiers(v.Prerelease, o.Prerelease); c != 0 {
		return c
	}

	switch {
	case v.Metadata == "" && o.Metadata != "":
		return -1
	case v.Metadata != "" && o.Metadata == "":
		return 1
	}
	return compareIdentifiers(v.Metadata, o.Metadata)
}

// LessThan reports whether v sorts before o.
func (v Version) LessThan(o Version) bool {
	return v.Compare(o) < 0
}

// MajorMinor returns "major.minor".
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func compareIdentifiers(a, b string) int {
	if a == b {
		return 0
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return compareInt(len(as), len(bs))
}

func compareIdentifier(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return compareInt(an, bn)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func parseNumber(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a number", s)
		}
	}
	return strconv.Atoi(s)
}

func validIdentifiers(s string) bool {
	if s == "" {
		return false
	}
	for _, id := range strings.Split(s, ".") {
		if id == "" {
			return false
		}
		for _, r := range id {
			if !(r == '-' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}
