// internal/probe/payload.go
package probe

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// TimestampKey is stamped on every emitted payload that lacks it.
// The value is seconds since the epoch with millisecond precision.
const TimestampKey = "timestamp"

// Payload is one structured record emitted by a probe.
type Payload map[string]any

// Clone returns a deep copy. Values keep their Go types.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return Payload(copyMap(p))
}

// Config is a probe configuration keyed by field name.
type Config map[string]any

// Clone returns a deep copy.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	return Config(copyMap(c))
}

// Timestamp converts t to the payload timestamp representation.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1000
}

// normalize converts v into its plain JSON tree form: map[string]any,
// []any, float64, string, bool or nil.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// encodable reports whether m can be written out as JSON by sinks.
func encodable(m map[string]any) error {
	if _, err := json.Marshal(m); err != nil {
		return fmt.Errorf("probe: payload is not encodable: %w", err)
	}
	return nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies maps, slices, arrays, pointers and the exported
// fields of structs. Other values keep their type and are shared.
func copyValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return copyMap(t)
	case Payload:
		return Payload(copyMap(t))
	case Config:
		return Config(copyMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	}
	return deepCopy(reflect.ValueOf(v)).Interface()
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(deepCopy(v.Elem()))
		return out
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		it := v.MapRange()
		for it.Next() {
			out.SetMapIndex(it.Key(), deepCopy(it.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(deepCopy(v.Index(i)))
		}
		return out
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(deepCopy(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for i := 0; i < v.NumField(); i++ {
			if f := out.Field(i); f.CanSet() {
				f.Set(deepCopy(v.Field(i)))
			}
		}
		return out
	default:
		return v
	}
}
