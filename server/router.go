// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server provides the HTTP front end which dispatches requests
// to processings by path.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// Methods served by a [Router], any other method is answered with 501.
var Methods = []string{
	http.MethodGet,
	http.MethodHead,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
	http.MethodOptions,
}

type route struct {
	pattern    string
	re         *regexp.Regexp
	processing *pipeline.Processing[*rest.Exchange]
}

type routerOptions struct {
	logHandler slog.Handler
}

// RouterOption configures a [Router].
type RouterOption func(*routerOptions)

// RouterLogHandler configures the slog.Handler the router logs with.
func RouterLogHandler(h slog.Handler) RouterOption {
	return func(ro *routerOptions) {
		ro.logHandler = h
	}
}

// Router maps request paths to processings. Routes are tried in
// registration order and the first match wins.
type Router struct {
	routes  []route
	methods map[string]bool
	log     *slog.Logger
}

// NewRouter returns a Router without routes.
func NewRouter(opts ...RouterOption) *Router {
	ro := &routerOptions{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(ro)
	}
	methods := make(map[string]bool, len(Methods))
	for _, m := range Methods {
		methods[m] = true
	}
	return &Router{
		methods: methods,
		log:     slog.New(ro.logHandler),
	}
}

// Route creates a processing from a and serves it for paths matching
// pattern. The pattern is a regular expression matched at the start of
// the path without its leading slash.
func (rt *Router) Route(pattern string, a *pipeline.Assembly[*rest.Exchange]) error {
	p, report, err := a.Create(rest.Provided()...)
	if err != nil {
		rt.log.Error("failed to create assembly", logfield.Path(pattern), logfield.Error(err))
		return err
	}
	rt.log.Info(
		"created assembly",
		logfield.Path(pattern),
		logfield.Assembly(a.Name()),
		logfield.String("report", report.String()),
	)
	return rt.Handle(pattern, p)
}

// Handle serves p for paths matching pattern.
func (rt *Router) Handle(pattern string, p *pipeline.Processing[*rest.Exchange]) error {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return fmt.Errorf("invalid route pattern %q: %w", pattern, err)
	}
	rt.routes = append(rt.routes, route{pattern: pattern, re: re, processing: p})
	return nil
}

// Dispatch runs the processing matching the request path. Processing
// errors are turned into replies, 400 for developer errors and 500
// for any other error.
func (rt *Router) Dispatch(ctx context.Context, req *http.Request) *Reply {
	if !rt.methods[req.Method] {
		return &Reply{Status: http.StatusNotImplemented, Text: "Unsupported method"}
	}

	path := strings.TrimLeft(req.URL.Path, "/")
	for _, r := range rt.routes {
		loc := r.re.FindStringIndex(path)
		if loc == nil {
			continue
		}
		return rt.execute(ctx, r, req, path, loc[1])
	}
	rt.log.DebugContext(ctx, "no route matched", logfield.Path(path))
	return &Reply{Status: http.StatusNotFound, Text: "Not Found"}
}

func (rt *Router) execute(ctx context.Context, r route, req *http.Request, path string, end int) *Reply {
	uriRoot := path[:end]
	if !strings.HasSuffix(uriRoot, "/") {
		uriRoot += "/"
	}

	ex := rest.NewExchange()
	ex.Request.Scheme = "http"
	if req.TLS != nil {
		ex.Request.Scheme = "https"
	}
	ex.Request.Method = req.Method
	ex.Request.Host = req.Host
	ex.Request.URIRoot = uriRoot
	ex.Request.URI = path[end:]
	ex.Request.Parameters = rest.ParseParams(req.URL.RawQuery)
	ex.Request.Headers = rest.HeadersFrom(req.Header)
	if req.Body != nil && req.Body != http.NoBody {
		ex.RequestContent.Source = req.Body
	}
	ex.RequestContent.Length = req.ContentLength

	_, err := r.processing.Execute(ctx, ex)
	if err != nil {
		if c, ok := ex.ResponseContent.Source.(io.Closer); ok {
			c.Close()
		}
		ex.ResponseContent = &rest.ResponseContent{Length: -1}

		msg, ok := pipeline.IsDevel(err)
		if ok {
			rt.log.WarnContext(ctx, "request rejected", logfield.Path(path), logfield.Error(err))
			ex.Response.SetCode(rest.BadRequest, msg)
		} else {
			rt.log.ErrorContext(ctx, "failed to process request", logfield.Path(path), logfield.Error(err))
			ex.Response.SetCode(rest.InternalError, "")
		}
	}
	return replyOf(ex)
}

// ServeHTTP implements the [http.Handler] interface. The status text of
// the reply cannot be set through net/http and is dropped.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reply := rt.Dispatch(r.Context(), r)
	defer reply.Close()

	err := reply.Serve(w)
	if err != nil {
		rt.log.ErrorContext(r.Context(), "failed to write response", logfield.Error(err))
	}
}
