package value

import (
	"fmt"
	"slices"
	"strings"
)

// Value is a sealed interface over the runtime value kinds the engine
// observes at call boundaries. Only Null, Empty, Int, Float, Str, Bool,
// Array, and Object implement it.
//
// The front end's evaluator owns full language semantics; this package
// only needs enough structure to classify values and describe object
// shapes for specialization decisions.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents the language's explicit null value.
type Null struct{}

func (Null) value() {}

// Empty represents the absent value (an uninitialized slot or a
// procedure that returned nothing). Distinct from Null, which is a
// deliberate value.
type Empty struct{}

func (Empty) value() {}

// Int represents an integer value. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating-point value.
type Float float64

func (Float) value() {}

// Str represents a string value.
type Str string

func (Str) value() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) value() {}

// Array represents an ordered sequence of values.
type Array []Value

func (Array) value() {}

// Object represents a record value. TypeName is non-empty for instances
// of a declared type and empty for ad-hoc (plain) objects.
type Object struct {
	TypeName string
	Fields   map[string]Value
}

func (*Object) value() {}

// FieldNames returns the object's field names in sorted order.
func (o *Object) FieldNames() []string {
	names := make([]string, 0, len(o.Fields))
	for name := range o.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tag identifies the observed class of a value. Tags are what the
// feedback collector counts and what specialized tiers guard on.
type Tag string

const (
	TagNull        Tag = "null"
	TagEmpty       Tag = "empty"
	TagInteger     Tag = "integer"
	TagFloat       Tag = "float"
	TagString      Tag = "string"
	TagBoolean     Tag = "boolean"
	TagPlainObject Tag = "object"
)

// Array and object tags are parameterized; use TagOf to produce them
// and Tag methods to inspect them.
const (
	tagArrayPrefix  = "array["
	tagObjectPrefix = "object["
)

// TagOf classifies a value into the closed tag set. The switch is
// exhaustive over the sealed Value kinds; an unknown implementation is a
// programming error and reported as such rather than silently binned.
func TagOf(v Value) Tag {
	switch val := v.(type) {
	case nil, Null:
		return TagNull
	case Empty:
		return TagEmpty
	case Int:
		return TagInteger
	case Float:
		return TagFloat
	case Str:
		return TagString
	case Bool:
		return TagBoolean
	case Array:
		return Tag(fmt.Sprintf("array[%d]", len(val)))
	case *Object:
		if val.TypeName != "" {
			return Tag(tagObjectPrefix + val.TypeName + "]")
		}
		return TagPlainObject
	default:
		return Tag(fmt.Sprintf("invalid[%T]", v))
	}
}

// IsArray reports whether the tag is any array[n] tag.
func (t Tag) IsArray() bool {
	return strings.HasPrefix(string(t), tagArrayPrefix)
}

// IsObject reports whether the tag is a named or plain object tag.
func (t Tag) IsObject() bool {
	return t == TagPlainObject || strings.HasPrefix(string(t), tagObjectPrefix)
}

// IsNumeric reports whether the tag is integer or float. Numeric tags
// are the only ones eligible for arithmetic specialization.
func (t Tag) IsNumeric() bool {
	return t == TagInteger || t == TagFloat
}
