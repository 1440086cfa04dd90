// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"context"

	"github.com/z5labs/ally/encode"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

var infoShape = &encode.Shape{
	Name: "Info",
	ID:   "name",
	Properties: []encode.Property{
		{Name: "name", Type: encode.Of(encode.String)},
		{Name: "version", Type: encode.Of(encode.String)},
		{Name: "routes", Type: encode.ListOf(encode.Of(encode.String))},
		{Name: "gateways", Type: encode.ListOf(encode.Of(encode.String))},
	},
}

// Info describes the running service.
type Info struct {
	Routes   []string
	Gateways []string
}

// Contract implements the [pipeline.Contracter] interface.
func (i *Info) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{rest.FieldRequestURI},
		Defines: []string{
			rest.FieldResponseStatus,
			rest.FieldResponseAllows,
			rest.FieldResponseObj,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (i *Info) Process(_ context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	if !ex.Response.IsSuccess() {
		return pipeline.Proceed, nil
	}
	if ex.Request.URI != "" {
		ex.Response.SetCode(rest.PathNotFound, "")
		return pipeline.Proceed, nil
	}

	ex.Response.Allows = rest.Read
	ex.Response.Obj = encode.Record{
		Of: infoShape,
		Values: map[string]any{
			"name":     "allyd",
			"version":  Version,
			"routes":   i.Routes,
			"gateways": i.Gateways,
		},
	}
	ex.Response.SetCode(rest.OK, "")
	return pipeline.Proceed, nil
}
