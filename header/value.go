// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package header

import "slices"

// Attribute is a single name, value pair of a header value. A flag
// attribute has a name but no value.
type Attribute struct {
	Name  string
	Value string
	Flag  bool
}

// Attr returns a valued attribute.
func Attr(name, value string) Attribute {
	return Attribute{Name: name, Value: value}
}

// Flag returns a flag attribute.
func Flag(name string) Attribute {
	return Attribute{Name: name, Flag: true}
}

// Attributes is an ordered set of attributes keyed by their case sensitive name.
type Attributes []Attribute

// Get returns the named attribute.
func (as Attributes) Get(name string) (Attribute, bool) {
	i := as.index(name)
	if i < 0 {
		return Attribute{}, false
	}
	return as[i], true
}

// Set adds a, replacing in place any attribute with the same name.
func (as *Attributes) Set(a Attribute) {
	i := as.index(a.Name)
	if i < 0 {
		*as = append(*as, a)
		return
	}
	(*as)[i] = a
}

// Pop removes and returns the named attribute.
func (as *Attributes) Pop(name string) (Attribute, bool) {
	i := as.index(name)
	if i < 0 {
		return Attribute{}, false
	}
	a := (*as)[i]
	*as = slices.Delete(*as, i, i+1)
	return a, true
}

// Map returns the attributes as a map, flags map to an empty string.
func (as Attributes) Map() map[string]string {
	m := make(map[string]string, len(as))
	for _, a := range as {
		m[a.Name] = a.Value
	}
	return m
}

func (as Attributes) index(name string) int {
	return slices.IndexFunc(as, func(a Attribute) bool {
		return a.Name == name
	})
}

// Value is a parsed header value: a primary token and its attributes.
type Value struct {
	Token string
	Attrs Attributes
}

// Token returns a Value without attributes.
func Token(token string) Value {
	return Value{Token: token}
}

// With returns a copy of v with the given attributes set.
func (v Value) With(attrs ...Attribute) Value {
	c := Value{Token: v.Token, Attrs: slices.Clone(v.Attrs)}
	for _, a := range attrs {
		c.Attrs.Set(a)
	}
	return c
}
