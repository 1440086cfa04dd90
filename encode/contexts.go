// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

// Action is a bitmask of what the current request asks for.
type Action uint8

const (
	// DoRender requests the response models to be rendered.
	DoRender Action = 1 << iota
)

// Support carries the collaborators shared by every encoding stage
// of a single response.
type Support struct {
	Action    Action
	Converter Converter

	// Normalize adjusts rendered names. Nil keeps names as declared.
	Normalize func(string) string
}

func (s *Support) normalize(name string) string {
	if s.Normalize == nil {
		return name
	}
	return s.Normalize(name)
}

// ModelContexts are the contexts of a model encoding chain.
type ModelContexts struct {
	Support *Support

	// Name overrides the rendered model name.
	Name       string
	Attributes map[string]string

	Obj Object

	// Property restricts the encoding to a single property of Obj.
	Property string

	Render Render
}

// PropertyContexts are the contexts of a property encoding chain.
type PropertyContexts struct {
	Support *Support

	Name   string
	Obj    any
	Type   Type
	Render Render
}

// Context field names used in encoder contracts.
const (
	FieldSupportAction    = "support.action"
	FieldSupportConverter = "support.converter"

	FieldEncodeName       = "encode.name"
	FieldEncodeAttributes = "encode.attributes"
	FieldEncodeObj        = "encode.obj"
	FieldEncodeType       = "encode.objType"
	FieldEncodeRender     = "encode.render"
)
