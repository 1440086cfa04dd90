// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package encode

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// DefaultCharSet is set on rendered responses which have none.
const DefaultCharSet = "UTF-8"

type responseOptions struct {
	converter  Converter
	logHandler slog.Handler
	renders    map[string]func() Renderer
	fallback   func() Renderer
}

// ResponseOption configures a [ResponseEncoder].
type ResponseOption func(*responseOptions)

// WithConverter overrides the [DefaultConverter].
func WithConverter(c Converter) ResponseOption {
	return func(ro *responseOptions) {
		ro.converter = c
	}
}

// WithRender registers renderer constructors for the given content types.
func WithRender(f func() Renderer, contentTypes ...string) ResponseOption {
	return func(ro *responseOptions) {
		for _, ct := range contentTypes {
			ro.renders[strings.ToLower(ct)] = f
		}
	}
}

// LogHandler configures the slog.Handler the encoder logs with.
func LogHandler(h slog.Handler) ResponseOption {
	return func(ro *responseOptions) {
		ro.logHandler = h
	}
}

// ResponseEncoder renders the [Object] placed in the response by
// upstream processors into the response content.
type ResponseEncoder struct {
	models    *pipeline.Processing[*ModelContexts]
	converter Converter
	renders   map[string]func() Renderer
	fallback  func() Renderer
	log       *slog.Logger
}

// NewResponseEncoder returns a ResponseEncoder rendering through models.
func NewResponseEncoder(models *pipeline.Processing[*ModelContexts], opts ...ResponseOption) *ResponseEncoder {
	json := func() Renderer { return NewJsonRender() }
	yml := func() Renderer { return NewYamlRender() }
	ro := &responseOptions{
		converter:  DefaultConverter{},
		logHandler: noop.LogHandler{},
		renders: map[string]func() Renderer{
			"application/json":   json,
			"text/json":          json,
			"application/yaml":   yml,
			"application/x-yaml": yml,
			"text/yaml":          yml,
		},
		fallback: json,
	}
	for _, opt := range opts {
		opt(ro)
	}
	return &ResponseEncoder{
		models:    models,
		converter: ro.converter,
		renders:   ro.renders,
		fallback:  ro.fallback,
		log:       slog.New(ro.logHandler),
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (e *ResponseEncoder) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{rest.FieldRequestMethod},
		Optional: []string{
			rest.FieldRequestAccContentTypes,
			rest.FieldResponseObj,
		},
		Defines: []string{
			rest.FieldResponseContentType,
			rest.FieldResponseCharSet,
			rest.FieldResponseContentSource,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (e *ResponseEncoder) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	obj, ok := ex.Response.Obj.(Object)
	if !ok {
		return pipeline.Proceed, nil
	}

	action := DoRender
	if ex.Request.Method == http.MethodHead {
		action = 0
	}

	render := e.pick(ex.Request.AccContentTypes)
	mc := &ModelContexts{
		Support: &Support{
			Action:    action,
			Converter: e.converter,
		},
		Obj:    obj,
		Render: render,
	}
	_, err := e.models.Execute(ctx, mc)
	if err != nil {
		return pipeline.Stop, err
	}

	ex.Response.ContentType = render.ContentType()
	if ex.Response.CharSet == "" {
		ex.Response.CharSet = DefaultCharSet
	}
	if action&DoRender == 0 {
		return pipeline.Proceed, nil
	}

	b, err := render.Bytes()
	if err != nil {
		return pipeline.Stop, err
	}
	ex.ResponseContent.Source = bytes.NewReader(b)
	ex.ResponseContent.Length = int64(len(b))
	e.log.DebugContext(ctx, "rendered response", logfield.String("content_type", render.ContentType()), logfield.Int("length", len(b)))
	return pipeline.Proceed, nil
}

func (e *ResponseEncoder) pick(accepted []string) Renderer {
	for _, ct := range accepted {
		if f, ok := e.renders[strings.ToLower(ct)]; ok {
			return f()
		}
	}
	return e.fallback()
}
