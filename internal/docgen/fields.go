package docgen

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

const DateLayout = "02.01.2006"

// Fields is an immutable name -> text snapshot taken when a spec is built.
// Every value is already a string; later changes to the source entities do
// not leak into a document that is being generated.
type Fields struct {
	values map[string]string
}

// NewFields coerces values to text: nil and nil pointers become "",
// times are rendered as dd.mm.yyyy, everything else goes through fmt.
func NewFields(values map[string]any) Fields {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = Text(v)
	}
	return Fields{values: out}
}

func (f Fields) Get(name string) (string, bool) {
	v, ok := f.values[name]
	return v, ok
}

func (f Fields) Len() int { return len(f.values) }

// Keys returns the field names, sorted.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the snapshot.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Text renders one merge value.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(DateLayout)
	case *time.Time:
		if x == nil || x.IsZero() {
			return ""
		}
		return x.Format(DateLayout)
	case fmt.Stringer:
		if isNilPointer(v) {
			return ""
		}
		return x.String()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return Text(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// ParseDate reads an operator supplied date in dd.mm.yyyy or yyyy-mm-dd form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want dd.mm.yyyy", s)
}
