package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// ValueKind tags a field value for comparison and display.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindText   ValueKind = "text"
	KindNumber ValueKind = "number"
	KindDate   ValueKind = "date"
	KindArray  ValueKind = "array"
	KindObject ValueKind = "object"
)

// Value is a field value classified into one of the ValueKind variants.
type Value struct {
	Kind ValueKind
	raw  any
}

func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{Kind: KindNull}
	case string, bool:
		return Value{Kind: KindText, raw: t}
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return Value{Kind: KindNumber, raw: t}
	case time.Time:
		return Value{Kind: KindDate, raw: t}
	case *time.Time:
		if t == nil {
			return Value{Kind: KindNull}
		}
		return Value{Kind: KindDate, raw: *t}
	case []any:
		return Value{Kind: KindArray, raw: t}
	case map[string]any:
		return Value{Kind: KindObject, raw: t}
	case *Fields:
		if t == nil {
			return Value{Kind: KindNull}
		}
		return Value{Kind: KindObject, raw: t.Map()}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Value{Kind: KindNull}
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		return Value{Kind: KindArray, raw: v}
	case reflect.Map, reflect.Struct:
		return Value{Kind: KindObject, raw: v}
	default:
		return Value{Kind: KindText, raw: v}
	}
}

func (v Value) Raw() any {
	return v.raw
}

func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// Mergeable reports whether a single field of this kind can be picked
// per-source during a merge.
func (v Value) Mergeable() bool {
	return v.Kind == KindText || v.Kind == KindNumber
}

func (v Value) composite() bool {
	return v.Kind == KindArray || v.Kind == KindObject
}

// String coerces the value to text. Composite values render as JSON.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindDate:
		return v.raw.(time.Time).Format(time.RFC3339Nano)
	case KindNumber:
		return formatNumber(v.raw)
	case KindArray, KindObject:
		b, err := json.Marshal(v.raw)
		if err != nil {
			return fmt.Sprint(v.raw)
		}
		return string(b)
	}

	switch t := v.raw.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v.raw)
}

// Equal compares composite values structurally and everything else by
// string coercion, so 5 and "5" are equal.
func (v Value) Equal(o Value) bool {
	if v.IsNull() && o.IsNull() {
		return true
	}
	if v.IsNull() || o.IsNull() {
		return false
	}
	if v.Kind == KindDate && o.Kind == KindDate {
		return v.raw.(time.Time).Equal(o.raw.(time.Time))
	}
	if v.composite() && o.composite() {
		return canonicalJSON(v.raw) == canonicalJSON(o.raw)
	}
	return v.String() == o.String()
}

func canonicalJSON(v any) string {
	// Round-trip through a generic value so struct and map inputs with the
	// same content produce identical, key-sorted output.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return string(b)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return string(b)
	}
	return string(out)
}

func formatNumber(n any) string {
	switch t := n.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(n)
}
