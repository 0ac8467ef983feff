package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Value is the closed set of payload shapes accepted by the store and the
// audit log. Only Null, Bool, Int, Float, String, Array and Object implement it.
type Value interface {
	isValue()
	// Kind returns the JSON-ish type name of the value ("null", "boolean",
	// "integer", "number", "string", "array", "object").
	Kind() string
}

// Null is the JSON null.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Int is an integral number. Integral JSON numbers always decode to Int.
type Int int64

// Float is a non-integral number.
type Float float64

// String is a UTF-8 string.
type String string

// Array is an ordered list of values.
type Array []Value

// Object is a string-keyed map of values.
type Object map[string]Value

func (Null) isValue() {}
func (Bool) isValue() {}
func (Int) isValue() {}
func (Float) isValue() {}
func (String) isValue() {}
func (Array) isValue() {}
func (Object) isValue() {}

func (Null) Kind() string { return "null" }
func (Bool) Kind() string { return "boolean" }
func (Int) Kind() string { return "integer" }
func (Float) Kind() string { return "number" }
func (String) Kind() string { return "string" }
func (Array) Kind() string { return "array" }
func (Object) Kind() string { return "object" }

// MarshalJSON encodes the value canonically.
func (v Null) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v Bool) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v Int) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v Float) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v String) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v Array) MarshalJSON() ([]byte, error) { return Canonical(v) }
func (v Object) MarshalJSON() ([]byte, error) { return Canonical(v) }

// UnmarshalJSON decodes any JSON object into an Object.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %s", v.Kind())
	}
	*o = obj
	return nil
}

// UnmarshalJSON decodes any JSON array into an Array.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected array, got %s", v.Kind())
	}
	*a = arr
	return nil
}

// Keys returns the object keys in canonical order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return compareKeys(keys[i], keys[j]) < 0 })
	return keys
}

// ParseValue decodes JSON text into a Value. Integral numbers become Int,
// everything else numeric becomes Float.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid json: trailing data")
	}
	return FromAny(raw)
}

// FromAny converts plain Go data into a Value. Structs and other types are
// converted through their JSON representation.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return fromNumber(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	case []string:
		arr := make(Array, len(val))
		for i, s := range val {
			arr[i] = String(s)
		}
		return arr, nil
	case map[string]string:
		obj := make(Object, len(val))
		for k, s := range val {
			obj[k] = String(s)
		}
		return obj, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Null{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported type %T: %w", v, err)
	}
	return ParseValue(data)
}

// MustFromAny is FromAny for literals known to be valid. It panics on error.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}

func fromNumber(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return fromFloat(f)
}

// ToAny converts a Value back into plain Go data (map[string]any, []any,
// int64, float64, string, bool, nil).
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case String:
		return string(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	}
	return nil
}

// Equal reports whether two values are structurally identical.
func Equal(a, b Value) bool {
	ca, errA := Canonical(a)
	cb, errB := Canonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
