// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package health

import (
	"context"
	"strings"

	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// Endpoint answers health probes. The request uri, relative to the
// route, names the probed metric e.g. "liveness".
type Endpoint struct {
	metrics map[string]Metric
}

// NewEndpoint returns an Endpoint serving the named metrics.
func NewEndpoint(metrics map[string]Metric) *Endpoint {
	return &Endpoint{metrics: metrics}
}

// Contract implements the [pipeline.Contracter] interface.
func (e *Endpoint) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{rest.FieldRequestURI},
		Defines: []string{
			rest.FieldResponseStatus,
			rest.FieldResponseAllows,
		},
	}
}

// Process implements the [pipeline.Processor] interface. Unknown probes
// are answered with path not found.
func (e *Endpoint) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	name := strings.Trim(ex.Request.URI, "/")
	m, ok := e.metrics[name]
	if !ok {
		ex.Response.SetCode(rest.PathNotFound, "")
		return pipeline.Proceed, nil
	}

	ex.Response.Allows = rest.Read
	if !m.Healthy(ctx) {
		ex.Response.SetCode(rest.ServiceUnavailable, "")
		return pipeline.Proceed, nil
	}
	ex.Response.SetCode(rest.OK, "")
	return pipeline.Proceed, nil
}
