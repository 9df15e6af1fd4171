package tt

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// ParameterDirectiveID is the directive id passed to the host when a
// parameter is resolved.
const ParameterDirectiveID = "parameter"

// ResolveParameter looks up a template parameter. The first source that
// has a value wins:
//
//  1. session, when the value is compatible with T or is a string that
//     converts to T
//  2. host, when non-nil, converting its string value to T
//  3. the ambient values passed across the isolation boundary
//
// A session string or host value that cannot be converted is an error.
func ResolveParameter[T any](session map[string]interface{}, host Host, processor, name string) (T, bool, error) {
	var zero T

	if v, ok := session[name]; ok {
		if tv, ok := Coerce[T](v); ok {
			return tv, true, nil
		}
		if s, ok := v.(string); ok {
			tv, err := Convert[T](s)
			if err != nil {
				return zero, false, fmt.Errorf("the type '%T' of the parameter '%s' did not match the value %q passed to the template: %w", zero, name, s, err)
			}
			return tv, true, nil
		}
	}

	if host != nil {
		if s, ok := host.ResolveParameterValue(ParameterDirectiveID, processor, name); ok && s != "" {
			v, err := Convert[T](s)
			if err != nil {
				return zero, false, fmt.Errorf("the value %q of parameter '%s' cannot be converted to %T: %w", s, name, zero, err)
			}
			return v, true, nil
		}
	}

	if v, ok := Ambient(name); ok {
		if tv, ok := Coerce[T](v); ok {
			return tv, true, nil
		}
	}

	return zero, false, nil
}

// Coerce converts v to T when it already is a T, or when it is a value of
// the same kind family (numbers, strings, booleans, slices and maps of
// them) that converts without loss. Values decoded on the far side of the
// isolation boundary lose their exact numeric types, which this restores.
func Coerce[T any](v interface{}) (T, bool) {
	if tv, ok := v.(T); ok {
		return tv, true
	}
	var out T
	if v == nil {
		return out, false
	}
	dst := reflect.ValueOf(&out).Elem()
	conv, ok := coerceValue(reflect.ValueOf(v), dst.Type())
	if !ok {
		return out, false
	}
	dst.Set(conv)
	return out, true
}

func coerceValue(src reflect.Value, to reflect.Type) (reflect.Value, bool) {
	if src.Kind() == reflect.Interface && !src.IsNil() {
		src = src.Elem()
	}
	if !src.IsValid() {
		return reflect.Value{}, false
	}
	if src.Type().AssignableTo(to) {
		return src, true
	}

	switch {
	case to.Kind() == reflect.Slice && (src.Kind() == reflect.Slice || src.Kind() == reflect.Array):
		out := reflect.MakeSlice(to, src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			e, ok := coerceValue(src.Index(i), to.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(e)
		}
		return out, true

	case to.Kind() == reflect.Map && src.Kind() == reflect.Map:
		out := reflect.MakeMapWithSize(to, src.Len())
		iter := src.MapRange()
		for iter.Next() {
			k, ok := coerceValue(iter.Key(), to.Key())
			if !ok {
				return reflect.Value{}, false
			}
			v, ok := coerceValue(iter.Value(), to.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.SetMapIndex(k, v)
		}
		return out, true
	}

	if kindFamily(src.Kind()) == "" || kindFamily(src.Kind()) != kindFamily(to.Kind()) {
		return reflect.Value{}, false
	}
	if !src.Type().ConvertibleTo(to) {
		return reflect.Value{}, false
	}
	conv := src.Convert(to)
	if back := conv.Convert(src.Type()); !reflect.DeepEqual(back.Interface(), src.Interface()) {
		return reflect.Value{}, false
	}
	return conv, true
}

func kindFamily(k reflect.Kind) string {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "bool"
	default:
		return ""
	}
}

// Convert parses a string into a T.
func Convert[T any](s string) (T, error) {
	var out T

	switch p := any(&out).(type) {
	case *time.Duration:
		d, err := cast.ToDurationE(s)
		*p = d
		return out, err
	case *time.Time:
		tm, err := cast.ToTimeE(s)
		*p = tm
		return out, err
	case encoding.TextUnmarshaler:
		err := p.UnmarshalText([]byte(s))
		return out, err
	}

	rv := reflect.ValueOf(&out).Elem()
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(s)
	case reflect.Bool:
		b, err := cast.ToBoolE(s)
		if err != nil {
			return out, err
		}
		rv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := cast.ToInt64E(s)
		if err != nil {
			return out, err
		}
		if rv.OverflowInt(n) {
			return out, fmt.Errorf("%d overflows %s", n, rv.Type())
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := cast.ToUint64E(s)
		if err != nil {
			return out, err
		}
		if rv.OverflowUint(n) {
			return out, fmt.Errorf("%d overflows %s", n, rv.Type())
		}
		rv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return out, err
		}
		if rv.OverflowFloat(f) {
			return out, fmt.Errorf("%g overflows %s", f, rv.Type())
		}
		rv.SetFloat(f)
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.String {
			return out, fmt.Errorf("no conversion from string to %s", rv.Type())
		}
		parts, err := cast.ToStringSliceE(s)
		if err != nil {
			return out, err
		}
		sv := reflect.MakeSlice(rv.Type(), len(parts), len(parts))
		for i, part := range parts {
			sv.Index(i).SetString(part)
		}
		rv.Set(sv)
	case reflect.Interface:
		if !reflect.TypeOf(s).AssignableTo(rv.Type()) {
			return out, fmt.Errorf("no conversion from string to %s", rv.Type())
		}
		rv.Set(reflect.ValueOf(s))
	default:
		return out, fmt.Errorf("no conversion from string to %s", rv.Type())
	}
	return out, nil
}

var (
	ambientMu sync.RWMutex
	ambient   map[string]interface{}
)

// SetAmbient installs the ambient values of the current process.
func SetAmbient(values map[string]interface{}) {
	ambientMu.Lock()
	defer ambientMu.Unlock()
	ambient = values
}

// Ambient returns an ambient value.
func Ambient(name string) (interface{}, bool) {
	ambientMu.RLock()
	defer ambientMu.RUnlock()
	v, ok := ambient[name]
	return v, ok
}

type ambientKey struct{}

// WithAmbient returns a context carrying an ambient value. The executor
// forwards the ambient values of its context to the transformation.
func WithAmbient(ctx context.Context, name string, value interface{}) context.Context {
	values := make(map[string]interface{})
	for k, v := range AmbientFromContext(ctx) {
		values[k] = v
	}
	values[name] = value
	return context.WithValue(ctx, ambientKey{}, values)
}

// AmbientFromContext returns the ambient values carried by ctx.
func AmbientFromContext(ctx context.Context) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	values, _ := ctx.Value(ambientKey{}).(map[string]interface{})
	return values
}
