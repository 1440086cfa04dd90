// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"context"
	"sort"
	"sync"

	"github.com/z5labs/ally/pipeline"
)

// PropertyFields are the fields a [ModelEncoder] provides to its
// property processing.
var PropertyFields = []string{
	FieldSupportAction,
	FieldSupportConverter,
	FieldEncodeName,
	FieldEncodeObj,
	FieldEncodeType,
	FieldEncodeRender,
}

// ModelEncoder renders model objects. Nested models are rendered
// recursively and every other property is delegated to a property
// processing which must stop once it renders the property.
type ModelEncoder struct {
	properties *pipeline.Processing[*PropertyContexts]

	// sorted properties keyed by Shape.Key, never evicted
	cache sync.Map
}

// NewModelEncoder creates the property processing from properties.
func NewModelEncoder(properties *pipeline.Assembly[*PropertyContexts]) (*ModelEncoder, error) {
	p, _, err := properties.Create(PropertyFields...)
	if err != nil {
		return nil, err
	}
	return &ModelEncoder{properties: p}, nil
}

// Contract implements the [pipeline.Contracter] interface.
func (m *ModelEncoder) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			FieldSupportAction,
			FieldEncodeObj,
			FieldEncodeRender,
		},
		Optional: []string{
			FieldEncodeName,
			FieldEncodeAttributes,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (m *ModelEncoder) Process(ctx context.Context, _ *pipeline.Chain[*ModelContexts], mc *ModelContexts) (pipeline.Next, error) {
	if mc.Support.Action&DoRender == 0 {
		return pipeline.Proceed, nil
	}
	if mc.Obj == nil {
		return pipeline.Proceed, nil
	}

	err := m.encode(ctx, mc.Support, mc.Render, mc.Name, mc.Attributes, mc.Obj, mc.Property)
	if err != nil {
		return pipeline.Stop, err
	}
	return pipeline.Stop, nil
}

func (m *ModelEncoder) encode(ctx context.Context, s *Support, r Render, name string, attrs map[string]string, obj Object, only string) error {
	shape := obj.Shape()
	if shape == nil {
		return pipeline.Develf("model %T has no shape", obj)
	}
	if name == "" {
		name = shape.Name
	}

	props := m.sorted(shape)
	if only != "" {
		p, ok := shape.Property(only)
		if !ok {
			return pipeline.Develf("model %q has no property %q", shape.Name, only)
		}
		props = []Property{p}
	}

	r.ObjectStart(s.normalize(name), attrs)
	for _, p := range props {
		v, ok := obj.Get(p.Name)
		if !ok {
			continue
		}

		if p.Type.Category == Model {
			if v == nil {
				continue
			}
			nested, ok := v.(Object)
			if !ok {
				return pipeline.Develf("property %q of %q is not a model", p.Name, shape.Name)
			}
			err := m.encode(ctx, s, r, p.Name, nil, nested, "")
			if err != nil {
				return err
			}
			continue
		}

		pc := &PropertyContexts{
			Support: s,
			Name:    s.normalize(p.Name),
			Obj:     v,
			Type:    p.Type,
			Render:  r,
		}
		out, err := m.properties.Execute(ctx, pc)
		if err != nil {
			return err
		}
		if out == pipeline.Consumed {
			return pipeline.Develf("cannot encode %s.%s of type %v", shape.Name, p.Name, p.Type)
		}
	}
	r.ObjectEnd()
	return nil
}

// sorted returns the properties of s in render order: the identity
// property, then by category rank, then by name.
func (m *ModelEncoder) sorted(s *Shape) []Property {
	key := s.Key()
	if v, ok := m.cache.Load(key); ok {
		return v.([]Property)
	}

	var id []Property
	props := make([]Property, 0, len(s.Properties))
	for _, p := range s.Properties {
		if s.ID != "" && p.Name == s.ID {
			id = append(id, p)
			continue
		}
		props = append(props, p)
	}
	sort.SliceStable(props, func(i, j int) bool {
		ri, rj := props[i].Type.Category.rank(), props[j].Type.Category.rank()
		if ri != rj {
			return ri < rj
		}
		return props[i].Name < props[j].Name
	})
	props = append(id, props...)

	v, _ := m.cache.LoadOrStore(key, props)
	return v.([]Property)
}

// Models assembles the default model processing with a [ModelEncoder]
// over the default property encoders.
func Models() (*pipeline.Processing[*ModelContexts], error) {
	properties := pipeline.NewAssembly[*PropertyContexts]("encode.property").
		Add("property", PropertyEncoder{})

	me, err := NewModelEncoder(properties)
	if err != nil {
		return nil, err
	}

	models := pipeline.NewAssembly[*ModelContexts]("encode.model").
		Add("model", me)

	p, _, err := models.Create(FieldSupportAction, FieldEncodeObj, FieldEncodeRender)
	if err != nil {
		return nil, err
	}
	return p, nil
}
