// Package fieldset renders an object as an aligned table of label/value pairs.
package fieldset

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Boolean markers used in text output
const (
	TrueMarker  = "✔"
	FalseMarker = "✘"
)

// Field is one rendered label/value pair.
type Field struct {
	Key   string
	Label string
	Value any
}

// Names builds an ordered key → display name map from alternating key/label arguments.
// It panics on an odd argument count.
func Names(pairs ...string) *orderedmap.OrderedMap[string, string] {
	if len(pairs)%2 != 0 {
		panic("fieldset.Names: odd number of arguments")
	}
	m := orderedmap.New[string, string]()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// ObjectFieldSet displays the values of an object under configurable display names.
// Fields appear in the object's insertion order; keys without a display name use the key.
type ObjectFieldSet struct {
	names   *orderedmap.OrderedMap[string, string]
	object  *orderedmap.OrderedMap[string, any]
	showAll bool
}

// New creates an empty ObjectFieldSet that shows every field.
func New() *ObjectFieldSet {
	return &ObjectFieldSet{
		names:   orderedmap.New[string, string](),
		object:  orderedmap.New[string, any](),
		showAll: true,
	}
}

// SetPropertyDisplayNames replaces the key → label mapping.
func (f *ObjectFieldSet) SetPropertyDisplayNames(names *orderedmap.OrderedMap[string, string]) {
	if names == nil {
		names = orderedmap.New[string, string]()
	}
	f.names = names
}

// SetObject replaces the displayed values.
func (f *ObjectFieldSet) SetObject(object *orderedmap.OrderedMap[string, any]) {
	if object == nil {
		object = orderedmap.New[string, any]()
	}
	f.object = object
}

// SetShowAll controls whether false boolean values are displayed.
func (f *ObjectFieldSet) SetShowAll(showAll bool) {
	f.showAll = showAll
}

// Fields returns the visible fields in display order.
func (f *ObjectFieldSet) Fields() []Field {
	fields := make([]Field, 0, f.object.Len())
	for pair := f.object.Oldest(); pair != nil; pair = pair.Next() {
		if b, ok := pair.Value.(bool); ok && !b && !f.showAll {
			continue
		}
		label, ok := f.names.Get(pair.Key)
		if !ok {
			label = pair.Key
		}
		fields = append(fields, Field{Key: pair.Key, Label: label, Value: pair.Value})
	}
	return fields
}

// Value returns the raw value stored under key.
func (f *ObjectFieldSet) Value(key string) (any, bool) {
	return f.object.Get(key)
}

// Render writes one line per visible field, labels padded to a common width.
func (f *ObjectFieldSet) Render(w io.Writer, indent string) error {
	fields := f.Fields()
	width := 0
	for _, field := range fields {
		if n := len([]rune(field.Label)); n > width {
			width = n
		}
	}

	label := color.New(color.Faint)
	for _, field := range fields {
		pad := strings.Repeat(" ", width-len([]rune(field.Label)))
		if _, err := fmt.Fprintf(w, "%s%s%s  %s\n", indent, label.Sprint(field.Label), pad, formatValue(field.Value)); err != nil {
			return err
		}
	}
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case bool:
		if val {
			return color.GreenString(TrueMarker)
		}
		return color.RedString(FalseMarker)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
