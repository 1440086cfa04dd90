// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Category classifies the type of a property.
type Category int

const (
	Boolean Category = iota + 1
	Integer
	Number
	Percentage
	String
	Time
	Date
	DateTime
	Collection
	Mapping
	Model
)

var categoryNames = map[Category]string{
	Boolean:    "boolean",
	Integer:    "integer",
	Number:     "number",
	Percentage: "percentage",
	String:     "string",
	Time:       "time",
	Date:       "date",
	DateTime:   "datetime",
	Collection: "collection",
	Mapping:    "mapping",
	Model:      "model",
}

// String implements the [fmt.Stringer] interface.
func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// rank is the position of c in the property render order. Categories
// outside the primitive list share the rank of collections.
func (c Category) rank() int {
	if c >= Boolean && c <= Collection {
		return int(c)
	}
	return int(Collection)
}

// Type describes a property value.
type Type struct {
	Category Category

	// Item is the element type of a Collection.
	Item *Type

	// Key and Value are the entry types of a Mapping.
	Key   *Type
	Value *Type

	// Shape is the declared shape of a Model.
	Shape *Shape
}

// Of returns a primitive type of category c.
func Of(c Category) Type {
	return Type{Category: c}
}

// ListOf returns a collection type of items.
func ListOf(item Type) Type {
	return Type{Category: Collection, Item: &item}
}

// MapOf returns a mapping type.
func MapOf(key, value Type) Type {
	return Type{Category: Mapping, Key: &key, Value: &value}
}

// ModelOf returns a model type of shape s.
func ModelOf(s *Shape) Type {
	return Type{Category: Model, Shape: s}
}

// String implements the [fmt.Stringer] interface.
func (t Type) String() string {
	var sb strings.Builder
	t.describe(&sb)
	return sb.String()
}

func (t Type) describe(sb *strings.Builder) {
	sb.WriteString(t.Category.String())
	switch t.Category {
	case Collection:
		sb.WriteByte('[')
		if t.Item != nil {
			t.Item.describe(sb)
		}
		sb.WriteByte(']')
	case Mapping:
		sb.WriteByte('{')
		if t.Key != nil {
			t.Key.describe(sb)
		}
		sb.WriteByte(':')
		if t.Value != nil {
			t.Value.describe(sb)
		}
		sb.WriteByte('}')
	case Model:
		if t.Shape != nil {
			sb.WriteByte('<')
			sb.WriteString(t.Shape.Name)
			sb.WriteByte('>')
		}
	}
}

// Property is a named and typed field of a [Shape].
type Property struct {
	Name string
	Type Type
}

// Shape is the declared structure of a model.
type Shape struct {
	Name string

	// ID names the identity property, if any. It is always rendered first.
	ID string

	Properties []Property
}

// Key returns a stable structural identifier of s.
func (s *Shape) Key() string {
	h := sha256.New()
	h.Write([]byte(s.Name))
	h.Write([]byte{0})
	h.Write([]byte(s.ID))
	for _, p := range s.Properties {
		h.Write([]byte{0})
		h.Write([]byte(p.Name))
		h.Write([]byte{0})
		h.Write([]byte(p.Type.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Property returns the property declared with name.
func (s *Shape) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Object is a model value which can be encoded.
type Object interface {
	Shape() *Shape

	// Get returns the value of the named property. Unset properties
	// are not rendered.
	Get(name string) (any, bool)
}

// Record is a map backed [Object].
type Record struct {
	Of     *Shape
	Values map[string]any
}

// Shape implements the [Object] interface.
func (r Record) Shape() *Shape {
	return r.Of
}

// Get implements the [Object] interface.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}
