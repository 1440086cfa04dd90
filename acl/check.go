// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package acl

import (
	"context"
	"log/slog"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// DefaultHeader carries the entity a request is made on behalf of.
const DefaultHeader = "X-Ally-Entity"

// Granter decides if entity may perform method on uri.
type Granter interface {
	Granted(ctx context.Context, entity, method, uri string) (bool, error)
}

type checkOptions struct {
	header     string
	logHandler slog.Handler
}

// CheckOption configures a [Check].
type CheckOption func(*checkOptions)

// EntityHeader overrides [DefaultHeader].
func EntityHeader(name string) CheckOption {
	return func(co *checkOptions) {
		co.header = name
	}
}

// CheckLogHandler configures the slog.Handler denied requests are logged with.
func CheckLogHandler(h slog.Handler) CheckOption {
	return func(co *checkOptions) {
		co.logHandler = h
	}
}

// Check forbids requests whose entity has not been granted access to the
// requested method and uri.
type Check struct {
	granter Granter
	header  string
	log     *slog.Logger
}

// NewCheck returns a Check backed by g.
func NewCheck(g Granter, opts ...CheckOption) *Check {
	co := &checkOptions{
		header:     DefaultHeader,
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(co)
	}
	return &Check{
		granter: g,
		header:  co.header,
		log:     slog.New(co.logHandler),
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (c *Check) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			rest.FieldRequestMethod,
			rest.FieldRequestURI,
			rest.FieldRequestHeaders,
		},
		Defines: []string{rest.FieldResponseStatus},
	}
}

// Process implements the [pipeline.Processor] interface. The entity
// header is consumed so it is never relayed downstream.
func (c *Check) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	if !ex.Response.IsSuccess() {
		return pipeline.Proceed, nil
	}

	entity, ok := ex.Request.Headers.Pop(c.header)
	if !ok || entity == "" {
		ex.Response.SetCode(rest.Forbidden, "")
		return pipeline.Stop, nil
	}

	granted, err := c.granter.Granted(ctx, entity, ex.Request.Method, ex.Request.URI)
	if err != nil {
		return pipeline.Stop, err
	}
	if !granted {
		c.log.InfoContext(
			ctx,
			"access denied",
			logfield.String("entity", entity),
			logfield.String("method", ex.Request.Method),
			logfield.Path(ex.Request.URI),
		)
		ex.Response.SetCode(rest.Forbidden, "")
		return pipeline.Stop, nil
	}
	return pipeline.Proceed, nil
}
