// Package persist stores the bot's brain: one JSON snapshot per key, replaced
// on every save. All backends implement Persister and are chosen by name in
// the configuration.
package persist

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

var (
	ErrNotInitialized  = errors.New("persister not initialized")
	ErrNotSerializable = errors.New("snapshot is not serializable")
)

var (
	jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	jsonNumberType    = reflect.TypeOf(json.Number(""))
)

// Snapshot is an arbitrary plain-data object.
type Snapshot map[string]any

type Persister interface {
	// Start connects to the backend. Other calls fail with ErrNotInitialized
	// until it succeeds.
	Start(ctx context.Context) error
	// Verify reports whether snapshot survives a JSON round trip unchanged.
	Verify(snapshot Snapshot) bool
	// Save replaces whatever is stored under key.
	Save(ctx context.Context, snapshot Snapshot, key string) error
	// Recover returns the last snapshot saved under key, or nil if there is none.
	Recover(ctx context.Context, key string) (Snapshot, error)
}

// Verify reports whether snapshot is made only of JSON-native plain data and
// decodes back from its JSON encoding to a deeply equal value.
func Verify(snapshot Snapshot) bool {
	_, err := encode(snapshot)
	return err == nil
}

// encode returns the JSON form of snapshot after checking it round-trips.
func encode(snapshot Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrNotSerializable)
	}
	want, err := normalize(reflect.ValueOf(snapshot), map[uintptr]bool{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	got, err := decodeAny(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSerializable, err)
	}
	if !reflect.DeepEqual(got, want) {
		return nil, fmt.Errorf("%w: value changed after round trip", ErrNotSerializable)
	}
	return data, nil
}

func decode(data []byte) (Snapshot, error) {
	value, err := decodeAny(data)
	if err != nil {
		return nil, err
	}
	out, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("stored snapshot is %T, not an object", value)
	}
	return Snapshot(out), nil
}

func decodeAny(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize maps v onto the shapes a JSON decoder produces. Anything that
// would not come back as itself is rejected.
func normalize(v reflect.Value, seen map[uintptr]bool) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	// Recovered snapshots carry json.Number; it encodes as a bare number.
	if v.Type() == jsonNumberType {
		if _, err := v.Interface().(json.Number).Float64(); err != nil {
			return nil, fmt.Errorf("invalid number %q", v.String())
		}
		return json.Number(v.String()), nil
	}
	if k := v.Kind(); k != reflect.Interface && k != reflect.Pointer {
		if v.Type().Implements(jsonMarshalerType) || v.Type().Implements(textMarshalerType) {
			return nil, fmt.Errorf("%s has a custom encoding", v.Type())
		}
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if seen[ptr] {
				return nil, errors.New("cycle detected")
			}
			seen[ptr] = true
			defer delete(seen, ptr)
		}
		return normalize(v.Elem(), seen)
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		if v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64 {
			f := v.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, errors.New("non-finite number")
			}
		}
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return nil, err
		}
		return json.Number(data), nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map key type %s", v.Type().Key())
		}
		if v.IsNil() {
			return nil, nil
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return nil, errors.New("cycle detected")
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := normalize(iter.Value(), seen)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil, errors.New("byte slices encode as base64 strings")
		}
		if v.Kind() == reflect.Slice {
			if v.IsNil() {
				return nil, nil
			}
			if v.Len() > 0 {
				ptr := v.Pointer()
				if seen[ptr] {
					return nil, errors.New("cycle detected")
				}
				seen[ptr] = true
				defer delete(seen, ptr)
			}
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := normalize(v.Index(i), seen)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %s", v.Type())
	}
}
