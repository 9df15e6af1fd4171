package parser

import "strings"

// Attributes is an ordered map of directive attributes with
// case-insensitive keys. Keys keep the spelling of their first insertion.
type Attributes struct {
	keys   []string
	values map[string]string
}

// NewAttributes returns an empty attribute map.
func NewAttributes() *Attributes {
	return &Attributes{values: make(map[string]string)}
}

// Get returns the value stored under name.
func (a *Attributes) Get(name string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a.values[strings.ToLower(name)]
	return v, ok
}

// Value returns the value stored under name, or "".
func (a *Attributes) Value(name string) string {
	v, _ := a.Get(name)
	return v
}

// Has reports whether name is present.
func (a *Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Set stores value under name. A later Set of the same name overrides the
// value but keeps the original position.
func (a *Attributes) Set(name, value string) {
	if a.values == nil {
		a.values = make(map[string]string)
	}
	key := strings.ToLower(name)
	if _, ok := a.values[key]; !ok {
		a.keys = append(a.keys, name)
	}
	a.values[key] = value
}

// Delete removes name.
func (a *Attributes) Delete(name string) {
	key := strings.ToLower(name)
	if _, ok := a.values[key]; !ok {
		return
	}
	delete(a.values, key)
	for i, k := range a.keys {
		if strings.ToLower(k) == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Extract removes name and returns its value.
func (a *Attributes) Extract(name string) (string, bool) {
	v, ok := a.Get(name)
	if ok {
		a.Delete(name)
	}
	return v, ok
}

// Keys returns the attribute names in insertion order.
func (a *Attributes) Keys() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// Len returns the number of attributes.
func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

// Clone returns an independent copy.
func (a *Attributes) Clone() *Attributes {
	c := NewAttributes()
	for _, k := range a.Keys() {
		c.Set(k, a.Value(k))
	}
	return c
}

// Map returns the attributes as a plain map keyed by the original spelling.
func (a *Attributes) Map() map[string]string {
	m := make(map[string]string, a.Len())
	for _, k := range a.Keys() {
		m[k] = a.Value(k)
	}
	return m
}
