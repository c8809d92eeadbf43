package stream

import (
	"reflect"

	"github.com/mr-tron/base58"
)

// Payload is a normalized update: binary fields are base-58 strings.
type Payload map[string]any

// Normalize replaces every byte buffer in v with its base-58 encoding.
// Maps and slices are rebuilt with their values normalized recursively; map
// keys are kept as-is. Other values are returned unchanged. v must not
// contain cycles.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return base58.Encode(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	case string, bool, int, int32, int64, uint32, uint64, float32, float64:
		return v
	}
	return normalizeValue(reflect.ValueOf(v))
}

// normalizeValue handles typed containers not covered by Normalize's fast path.
func normalizeValue(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			return base58.Encode(buf)
		}
		return normalizeSeq(rv)
	case reflect.Slice:
		if rv.IsNil() {
			return rv.Interface()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return base58.Encode(rv.Bytes())
		}
		return normalizeSeq(rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return rv.Interface()
		}
		return Normalize(rv.Elem().Interface())
	default:
		return rv.Interface()
	}
}

func normalizeSeq(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = Normalize(rv.Index(i).Interface())
	}
	return out
}

// NormalizePayload normalizes a raw update into a Payload.
func NormalizePayload(msg map[string]any) Payload {
	out, _ := Normalize(msg).(map[string]any)
	return Payload(out)
}
