package domain

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields is a JSON object that keeps its keys in the order they were set or
// decoded. Field diffs depend on that order.
type Fields struct {
	om *orderedmap.OrderedMap[string, any]
}

func NewFields() *Fields {
	return &Fields{om: orderedmap.New[string, any]()}
}

// FieldsOf builds Fields from alternating key/value arguments. Non-string
// keys are skipped.
func FieldsOf(kv ...any) *Fields {
	f := NewFields()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f.Set(key, kv[i+1])
	}
	return f
}

func (f *Fields) Set(key string, value any) {
	if f.om == nil {
		f.om = orderedmap.New[string, any]()
	}
	f.om.Set(key, value)
}

func (f *Fields) Get(key string) (any, bool) {
	if f == nil || f.om == nil {
		return nil, false
	}
	return f.om.Get(key)
}

// Value returns the value for key, or nil when absent.
func (f *Fields) Value(key string) any {
	v, _ := f.Get(key)
	return v
}

func (f *Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

func (f *Fields) Delete(key string) {
	if f == nil || f.om == nil {
		return
	}
	f.om.Delete(key)
}

func (f *Fields) Len() int {
	if f == nil || f.om == nil {
		return 0
	}
	return f.om.Len()
}

func (f *Fields) Keys() []string {
	if f == nil || f.om == nil {
		return nil
	}
	keys := make([]string, 0, f.om.Len())
	for pair := f.om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Clone returns a copy with the same key order. Values are shared.
func (f *Fields) Clone() *Fields {
	out := NewFields()
	if f == nil || f.om == nil {
		return out
	}
	for pair := f.om.Oldest(); pair != nil; pair = pair.Next() {
		out.om.Set(pair.Key, pair.Value)
	}
	return out
}

// Map flattens the fields into a plain map, losing key order.
func (f *Fields) Map() map[string]any {
	out := make(map[string]any, f.Len())
	if f == nil || f.om == nil {
		return out
	}
	for pair := f.om.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil || f.om == nil {
		return []byte("{}"), nil
	}
	return f.om.MarshalJSON()
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	om := orderedmap.New[string, any]()
	if err := om.UnmarshalJSON(data); err != nil {
		return err
	}
	f.om = om
	return nil
}
