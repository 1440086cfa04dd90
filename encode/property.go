// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"context"
	"reflect"

	"github.com/z5labs/ally/pipeline"
)

// PropertyEncoder renders primitive, collection and mapping properties.
// It stops the chain once the property is rendered and proceeds for
// any other type.
type PropertyEncoder struct{}

// Contract implements the [pipeline.Contracter] interface.
func (PropertyEncoder) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			FieldEncodeName,
			FieldEncodeObj,
			FieldEncodeType,
			FieldEncodeRender,
		},
		Optional: []string{FieldSupportConverter},
	}
}

// Process implements the [pipeline.Processor] interface.
func (PropertyEncoder) Process(_ context.Context, _ *pipeline.Chain[*PropertyContexts], pc *PropertyContexts) (pipeline.Next, error) {
	conv := pc.Support.Converter
	if conv == nil {
		conv = DefaultConverter{}
	}

	switch pc.Type.Category {
	case Model:
		return pipeline.Proceed, nil
	case Collection:
		if pc.Type.Item == nil {
			return pipeline.Stop, pipeline.Develf("collection %q has no item type", pc.Name)
		}
		values, err := asStrings(conv, pc.Obj, *pc.Type.Item)
		if err != nil {
			return pipeline.Stop, err
		}
		pc.Render.Property(pc.Name, values)
	case Mapping:
		if pc.Type.Key == nil || pc.Type.Value == nil {
			return pipeline.Stop, pipeline.Develf("mapping %q has no entry types", pc.Name)
		}
		values, err := asStringMap(conv, pc.Obj, *pc.Type.Key, *pc.Type.Value)
		if err != nil {
			return pipeline.Stop, err
		}
		pc.Render.Property(pc.Name, values)
	default:
		s, err := conv.AsString(pc.Obj, pc.Type)
		if err != nil {
			return pipeline.Stop, err
		}
		pc.Render.Property(pc.Name, s)
	}
	return pipeline.Stop, nil
}

func asStrings(conv Converter, obj any, item Type) ([]string, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, pipeline.Develf("invalid collection %T", obj)
	}
	values := make([]string, 0, v.Len())
	for i := range v.Len() {
		s, err := conv.AsString(v.Index(i).Interface(), item)
		if err != nil {
			return nil, err
		}
		values = append(values, s)
	}
	return values, nil
}

func asStringMap(conv Converter, obj any, key, value Type) (map[string]string, error) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Map {
		return nil, pipeline.Develf("invalid mapping %T", obj)
	}
	values := make(map[string]string, v.Len())
	for _, k := range v.MapKeys() {
		ks, err := conv.AsString(k.Interface(), key)
		if err != nil {
			return nil, err
		}
		vs, err := conv.AsString(v.MapIndex(k).Interface(), value)
		if err != nil {
			return nil, err
		}
		values[ks] = vs
	}
	return values, nil
}
