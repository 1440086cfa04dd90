// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type runtimeOptions struct {
	addr        string
	logHandler  slog.Handler
	readTimeout time.Duration
	listen      func(network, addr string) (net.Listener, error)
}

// RuntimeOption configures the [Serial] and [Concurrent] runtimes.
type RuntimeOption func(*runtimeOptions)

// ListenOn configures the address to listen on. Default is ":8080".
func ListenOn(addr string) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.addr = addr
	}
}

// LogHandler configures the slog.Handler the runtime logs with.
func LogHandler(h slog.Handler) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.logHandler = h
	}
}

// ReadTimeout bounds how long reading a request may take.
func ReadTimeout(d time.Duration) RuntimeOption {
	return func(ro *runtimeOptions) {
		ro.readTimeout = d
	}
}

func newRuntimeOptions(opts []RuntimeOption) *runtimeOptions {
	ro := &runtimeOptions{
		addr:       ":8080",
		logHandler: noop.LogHandler{},
		listen:     net.Listen,
	}
	for _, opt := range opts {
		opt(ro)
	}
	return ro
}

// Serial serves one connection at a time and a single request per
// connection. A failure while handling a connection only ends that
// connection.
type Serial struct {
	addr        string
	router      *Router
	log         *slog.Logger
	readTimeout time.Duration
	listen      func(network, addr string) (net.Listener, error)
}

// NewSerial returns a Serial runtime dispatching to router.
func NewSerial(router *Router, opts ...RuntimeOption) *Serial {
	ro := newRuntimeOptions(opts)
	return &Serial{
		addr:        ro.addr,
		router:      router,
		log:         slog.New(ro.logHandler),
		readTimeout: ro.readTimeout,
		listen:      ro.listen,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Serial) Run(ctx context.Context) error {
	ls, err := s.listen("tcp", s.addr)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to listen for connections", logfield.Error(err))
		return err
	}
	return s.Serve(ctx, ls)
}

// Serve accepts connections from ls until ctx is done.
func (s *Serial) Serve(ctx context.Context, ls net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down service")
		return ls.Close()
	})
	g.Go(func() error {
		s.log.Info("started service", logfield.String("addr", ls.Addr().String()))
		for {
			c, err := ls.Accept()
			if errors.Is(err, net.ErrClosed) && gctx.Err() != nil {
				return nil
			}
			if err != nil {
				s.log.Error("failed to accept connection", logfield.Error(err))
				return err
			}
			s.handle(gctx, c)
		}
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (s *Serial) handle(ctx context.Context, c net.Conn) {
	spanCtx, span := otel.Tracer("server").Start(ctx, "Serial.handle")
	defer span.End()
	defer c.Close()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		s.log.ErrorContext(spanCtx, "recovered from panic while serving connection", logfield.Error(pipeline.PanicError{Value: r}))
	}()

	if s.readTimeout > 0 {
		c.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	req, err := http.ReadRequest(bufio.NewReader(c))
	if err != nil {
		s.log.WarnContext(spanCtx, "failed to read request", logfield.Error(err))
		(&Reply{Status: http.StatusBadRequest}).Write(c)
		return
	}
	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.URL.Path),
	)

	reply := s.router.Dispatch(spanCtx, req.WithContext(spanCtx))
	defer reply.Close()

	span.SetAttributes(attribute.Int("http.status_code", reply.Status))
	err = reply.Write(c)
	if err != nil {
		s.log.ErrorContext(spanCtx, "failed to write response", logfield.Error(err))
	}
}

// Concurrent serves requests in parallel through [net/http].
type Concurrent struct {
	addr   string
	router *Router
	log    *slog.Logger
	listen func(network, addr string) (net.Listener, error)
	server *http.Server
}

// NewConcurrent returns a Concurrent runtime dispatching to router.
func NewConcurrent(router *Router, opts ...RuntimeOption) *Concurrent {
	ro := newRuntimeOptions(opts)
	return &Concurrent{
		addr:   ro.addr,
		router: router,
		log:    slog.New(ro.logHandler),
		listen: ro.listen,
		server: &http.Server{
			Handler: otelhttp.NewHandler(
				router,
				"server",
				otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
			),
			ReadTimeout: ro.readTimeout,
		},
	}
}

// Run listens on the configured address and serves until ctx is done.
func (rt *Concurrent) Run(ctx context.Context) error {
	ls, err := rt.listen("tcp", rt.addr)
	if err != nil {
		rt.log.ErrorContext(ctx, "failed to listen for connections", logfield.Error(err))
		return err
	}
	return rt.Serve(ctx, ls)
}

// Serve accepts connections from ls until ctx is done.
func (rt *Concurrent) Serve(ctx context.Context, ls net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		defer rt.log.Info("shut down service")

		rt.log.Info("shutting down service")
		return rt.server.Shutdown(ctx)
	})
	g.Go(func() error {
		rt.log.Info("started service", logfield.String("addr", ls.Addr().String()))
		return rt.server.Serve(ls)
	})

	err := g.Wait()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	rt.log.Error("service encountered unexpected error", logfield.Error(err))
	return err
}
