package worker

import "reflect"

// asInt64 reports whether v holds a value Incr/Decr can treat as an
// integer (spec.md §4.2.4), and its value if so.
func asInt64(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), true
	default:
		return 0, false
	}
}

// fromInt64 converts n back into a cache's concrete value type V. It
// supports any numeric V and the untyped `any` instantiation used by
// heterogeneous caches; any other V (a struct type, say) cannot represent
// a bare integer and Incr/Decr report ErrNotANumber instead.
func fromInt64[V any](n int64) (V, bool) {
	var zero V
	rv := reflect.ValueOf(&zero).Elem()
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		rv.SetInt(n)
		return zero, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		rv.SetUint(uint64(n))
		return zero, true
	case reflect.Float32, reflect.Float64:
		rv.SetFloat(float64(n))
		return zero, true
	case reflect.Interface:
		rv.Set(reflect.ValueOf(n))
		return zero, true
	default:
		return zero, false
	}
}
