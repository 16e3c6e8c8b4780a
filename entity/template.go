package entity

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Template is the ordered mapping view of a TEMPLATE or USER_TEMPLATE
// element.
//
// Values are one of:
//   - string: a leaf element
//   - *Template: a nested element with children
//   - []any: a tag repeated several times at the same level (DISK, NIC, ...)
//
// Values stored with [Template.Set] are kept as given; Go maps and slices are
// normalized when the template is serialized.
//
// A Template is not safe for concurrent mutation.
type Template struct {
	name   string
	values *orderedmap.OrderedMap[string, any]
}

// NewTemplate returns an empty template for the element name.
//
// A template with an empty name is a document root: its entries are the
// top-level elements and it is serialized without a wrapper.
func NewTemplate(name string) *Template {
	return &Template{
		name:   name,
		values: orderedmap.New[string, any](),
	}
}

// Name returns the element name, e.g. "TEMPLATE".
func (t *Template) Name() string {
	return t.name
}

// Len returns the number of distinct keys.
func (t *Template) Len() int {
	return t.values.Len()
}

// Keys returns the keys in insertion order.
func (t *Template) Keys() []string {
	keys := make([]string, 0, t.values.Len())
	for pair := t.values.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Get returns the value stored under key.
func (t *Template) Get(key string) (any, bool) {
	return t.values.Get(key)
}

// Has reports whether an element with tag key exists.
func (t *Template) Has(key string) bool {
	_, ok := t.values.Get(key)
	return ok
}

// Text returns the text of a leaf value, or "" when key is absent or holds a
// nested structure.
//
//	arch := host.Template("TEMPLATE").Text("ARCH")
func (t *Template) Text(key string) string {
	v, ok := t.values.Get(key)
	if !ok || IsMapping(v) {
		return ""
	}
	if _, list := v.([]any); list {
		return ""
	}
	return FormatScalar(v)
}

// Template returns the nested template stored under key, or nil.
//
// When the key is repeated the first occurrence is returned.
func (t *Template) Template(key string) *Template {
	v, ok := t.values.Get(key)
	if !ok {
		return nil
	}
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	nested, _ := v.(*Template)
	return nested
}

// Set stores value under key, replacing any previous value but keeping the
// key's original position.
func (t *Template) Set(key string, value any) {
	t.values.Set(key, value)
}

// Delete removes key. It is a no-op when key is absent.
func (t *Template) Delete(key string) {
	t.values.Delete(key)
}

// Each calls fn for every entry in insertion order.
func (t *Template) Each(fn func(key string, value any)) {
	for pair := t.values.Oldest(); pair != nil; pair = pair.Next() {
		fn(pair.Key, pair.Value)
	}
}

// Root returns the template wrapped under its own element name. This is the
// form expected by update calls (e.g. {"TEMPLATE": {...}}).
//
// The returned value references t, so later changes to t are visible
// through it. Root of a nameless template is the template itself.
func (t *Template) Root() *Template {
	if t.name == "" {
		return t
	}
	root := NewTemplate("")
	root.values.Set(t.name, t)
	return root
}

// ToMap converts the template into plain Go maps. Repeated keys become
// []any.
func (t *Template) ToMap() map[string]any {
	out := make(map[string]any, t.values.Len())
	t.Each(func(key string, value any) {
		out[key] = plain(value)
	})
	return out
}

func plain(v any) any {
	switch tv := v.(type) {
	case *Template:
		return tv.ToMap()
	case []any:
		items := make([]any, len(tv))
		for i, item := range tv {
			items[i] = plain(item)
		}
		return items
	default:
		return v
	}
}

// add appends value under key, turning the entry into a list on repetition.
func (t *Template) add(key string, value any) {
	existing, ok := t.values.Get(key)
	if !ok {
		t.values.Set(key, value)
		return
	}
	if list, isList := existing.([]any); isList {
		t.values.Set(key, append(list, value))
		return
	}
	t.values.Set(key, []any{existing, value})
}

// FromMap builds a template named name from a Go map with string keys.
// Keys are inserted in sorted order at every level so the result does not
// depend on map iteration order.
func FromMap(name string, m any) (*Template, error) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("entity: %T is not a map", m)
	}
	if rv.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("entity: map key type %s is not a string", rv.Type().Key())
	}

	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		keys = append(keys, k)
		byKey[k] = iter.Value()
	}
	sort.Strings(keys)

	t := NewTemplate(name)
	for _, k := range keys {
		v, err := Normalize(k, byKey[k].Interface())
		if err != nil {
			return nil, err
		}
		t.values.Set(k, v)
	}
	return t, nil
}

// Normalize converts Go maps to *Template and slices to []any, recursively.
// Other values are returned unchanged. name is used for nested templates.
func Normalize(name string, v any) (any, error) {
	switch tv := v.(type) {
	case nil, string, *Template:
		return v, nil
	case []byte:
		return string(tv), nil
	case []any:
		items := make([]any, len(tv))
		for i, item := range tv {
			n, err := Normalize(name, item)
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return items, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return FromMap(name, v)
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			n, err := Normalize(name, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			items[i] = n
		}
		return items, nil
	default:
		return v, nil
	}
}

// IsMapping reports whether v is a *Template or a Go map.
func IsMapping(v any) bool {
	if _, ok := v.(*Template); ok {
		return ok
	}
	if v == nil {
		return false
	}
	return reflect.ValueOf(v).Kind() == reflect.Map
}

// FormatScalar renders a leaf value as text.
func FormatScalar(v any) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case []byte:
		return string(tv)
	case bool:
		return strconv.FormatBool(tv)
	case float32:
		return strconv.FormatFloat(float64(tv), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	}

	// Enum constants are sent by value, not by name.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
