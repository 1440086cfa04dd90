// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package header

import (
	"context"
	"sort"

	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// Fixed sets static header values on every response.
type Fixed struct {
	codec   Codec
	names   []string
	headers map[string][]string
}

// NewFixed returns a Fixed processor for the given headers. Multiple values
// of a header are joined with the main separator.
func NewFixed(headers map[string][]string, opts ...Option) *Fixed {
	o := newOptions(opts)
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Fixed{
		codec:   o.codec,
		names:   names,
		headers: headers,
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (f *Fixed) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{rest.FieldResponseHeaders},
		Defines:  []string{rest.FieldResponseHeaders},
	}
}

// Process implements the [pipeline.Processor] interface.
func (f *Fixed) Process(_ context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	for _, name := range f.names {
		values := make([]Value, 0, len(f.headers[name]))
		for _, v := range f.headers[name] {
			values = append(values, Token(v))
		}
		ex.Response.Headers.Set(name, f.codec.Encode(values...))
	}
	return pipeline.Proceed, nil
}
