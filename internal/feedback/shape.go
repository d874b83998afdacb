package feedback

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tern-lang/tern/internal/value"
)

// Shape is a canonical descriptor of an object's field-name set.
//
// Shapes are immutable once created: adding or removing a field on an
// object produces a different field set and therefore resolves to a
// different descriptor. Identity is shared through the cache, so two
// shapes are equal exactly when they are the same pointer.
//
// Offsets follow sorted field-name order, not declaration order. A
// target optimizer that assumes layout-matching offsets would see an
// inconsistency here; the sorted order is what makes insertion order
// irrelevant to shape identity.
type Shape struct {
	Key    string       // joined canonical field list, cache key
	Fields []ShapeField // sorted by name
}

// ShapeField describes one field slot in a shape.
type ShapeField struct {
	Name   string
	Offset int
	Tag    value.Tag // tag inferred from the first value seen in the slot
}

// FieldNames returns the canonical sorted field names.
func (s *Shape) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Field returns the slot for name, or nil if the shape has no such field.
func (s *Shape) Field(name string) *ShapeField {
	name = norm.NFC.String(name)
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// ShapeCache interns shape descriptors keyed by the canonical field
// list. One cache is owned per runtime session and passed by reference;
// it is not a package-level singleton. A multi-threaded host must wrap
// it in a lock or shard it per key.
type ShapeCache struct {
	shapes map[string]*Shape
}

// NewShapeCache creates an empty cache.
func NewShapeCache() *ShapeCache {
	return &ShapeCache{shapes: make(map[string]*Shape)}
}

// ShapeOf returns the canonical shape for the object's field set,
// creating and caching a descriptor on first sight. Field names are
// NFC-normalized before sorting so visually identical names cannot
// split one shape into two.
func (c *ShapeCache) ShapeOf(obj *value.Object) *Shape {
	names := make([]string, 0, len(obj.Fields))
	for name := range obj.Fields {
		names = append(names, norm.NFC.String(name))
	}
	slices.Sort(names)
	key := strings.Join(names, "\x1f")

	if s := c.shapes[key]; s != nil {
		return s
	}

	s := &Shape{Key: key, Fields: make([]ShapeField, len(names))}
	for i, name := range names {
		var tag value.Tag
		if v, ok := obj.Fields[name]; ok {
			tag = value.TagOf(v)
		}
		s.Fields[i] = ShapeField{Name: name, Offset: i, Tag: tag}
	}
	c.shapes[key] = s
	return s
}

// Len returns the number of distinct shapes interned.
func (c *ShapeCache) Len() int {
	return len(c.shapes)
}
