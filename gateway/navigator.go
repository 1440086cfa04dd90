// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gateway

import (
	"context"
	"log/slog"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

type options struct {
	fallback   string
	logHandler slog.Handler
}

// Option configures a [Navigator].
type Option func(*options)

// Fallback is the host of requests matching no gateway. Without it such
// requests are answered with path not found.
func Fallback(host string) Option {
	return func(o *options) {
		o.fallback = host
	}
}

// LogHandler configures the slog.Handler navigation is logged with.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Navigator rewrites the request host and uri to the destination of the
// first matching gateway, ready to be forwarded.
type Navigator struct {
	gateways []compiled
	fallback string
	log      *slog.Logger
}

// NewNavigator returns a Navigator over gws, matched in order.
func NewNavigator(gws []Gateway, opts ...Option) (*Navigator, error) {
	o := &options{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}

	cs, err := compile(gws)
	if err != nil {
		return nil, err
	}
	return &Navigator{
		gateways: cs,
		fallback: o.fallback,
		log:      slog.New(o.logHandler),
	}, nil
}

// Contract implements the [pipeline.Contracter] interface.
func (n *Navigator) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			rest.FieldRequestMethod,
			rest.FieldRequestURIRoot,
			rest.FieldRequestURI,
		},
		Defines: []string{
			rest.FieldRequestHost,
			rest.FieldRequestURI,
			rest.FieldResponseStatus,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (n *Navigator) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	if !ex.Response.IsSuccess() {
		return pipeline.Proceed, nil
	}

	path := ex.Request.URIRoot + ex.Request.URI
	for _, gw := range n.gateways {
		groups, ok := gw.match(ex.Request.Method, path)
		if !ok {
			continue
		}
		host, uri := gw.destination(groups)
		if host == "" {
			return pipeline.Stop, pipeline.Develf("gateway %q navigates to no host", gw.Name)
		}

		n.log.DebugContext(
			ctx,
			"navigating request",
			logfield.String("gateway", gw.Name),
			logfield.Path(path),
			logfield.Host(host),
		)
		ex.Request.Host = host
		ex.Request.URI = uri
		return pipeline.Proceed, nil
	}

	if n.fallback == "" {
		ex.Response.SetCode(rest.PathNotFound, "")
		return pipeline.Stop, nil
	}
	ex.Request.Host = n.fallback
	return pipeline.Proceed, nil
}
