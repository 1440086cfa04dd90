// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package forward provides a processor which relays requests to an
// external host over pooled connections.
package forward

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/z5labs/ally/header"
	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Defaults of a [Handler].
const (
	DefaultPort       = 80
	DefaultMaxRetries = 10
)

// DefaultRemoveHeaders are removed from every downstream response.
var DefaultRemoveHeaders = []string{"Server", "Date", "Connection"}

// Dialer opens downstream connections.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// DialerFunc is a func variant of the [Dialer] interface.
type DialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DialContext implements the [Dialer] interface.
func (f DialerFunc) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}

type options struct {
	host          string
	port          int
	maxRetries    int
	removeHeaders []string
	dialer        Dialer
	pool          *Pool
	tripAfter     uint32
	logHandler    slog.Handler
}

// Option configures a [Handler].
type Option func(*options)

// ExternalHost fixes the destination host. Without it the host of the
// request is used.
func ExternalHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// ExternalPort is used for hosts without an explicit port.
func ExternalPort(port int) Option {
	return func(o *options) {
		o.port = port
	}
}

// MaxRetries bounds how many times a request is retried when the
// downstream connection turns out to be stale.
func MaxRetries(n int) Option {
	return func(o *options) {
		o.maxRetries = n
	}
}

// RemoveHeaders overrides [DefaultRemoveHeaders].
func RemoveHeaders(names ...string) Option {
	return func(o *options) {
		o.removeHeaders = names
	}
}

// WithDialer overrides the default [net.Dialer].
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithPool shares p between handlers.
func WithPool(p *Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// TripAfter opens a per host circuit after n consecutive failures.
func TripAfter(n uint32) Option {
	return func(o *options) {
		o.tripAfter = n
	}
}

// LogHandler configures the slog.Handler the forwarder logs with.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// Handler relays the request to an external host.
type Handler struct {
	host          string
	port          int
	maxRetries    int
	removeHeaders []string
	dialer        Dialer
	pool          *Pool
	log           *slog.Logger

	tripAfter uint32
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
}

// New returns a Handler.
func New(opts ...Option) *Handler {
	o := &options{
		port:          DefaultPort,
		maxRetries:    DefaultMaxRetries,
		removeHeaders: DefaultRemoveHeaders,
		dialer:        &net.Dialer{},
		logHandler:    noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pool == nil {
		o.pool = NewPool()
	}
	return &Handler{
		host:          o.host,
		port:          o.port,
		maxRetries:    o.maxRetries,
		removeHeaders: o.removeHeaders,
		dialer:        o.dialer,
		pool:          o.pool,
		log:           slog.New(o.logHandler),
		tripAfter:     o.tripAfter,
		breakers:      make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Pool returns the connection pool of h.
func (h *Handler) Pool() *Pool {
	return h.pool
}

// Contract implements the [pipeline.Contracter] interface.
func (h *Handler) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			rest.FieldRequestMethod,
			rest.FieldRequestURI,
			rest.FieldRequestParameters,
			rest.FieldRequestHeaders,
			rest.FieldRequestContentSource,
			rest.FieldRequestContentLength,
		},
		Optional: []string{
			rest.FieldRequestHost,
			rest.FieldRequestContentType,
			rest.FieldRequestContentCharSet,
			rest.FieldRequestContentAttributes,
			rest.FieldRequestContentLanguage,
			rest.FieldRequestAccContentTypes,
			rest.FieldRequestAccCharSets,
			rest.FieldRequestAccLanguages,
		},
		Defines: []string{
			rest.FieldResponseStatus,
			rest.FieldResponseHeaders,
			rest.FieldResponseContentSource,
		},
	}
}

var errStale = errors.New("stale downstream connection")

type transportError struct {
	cause error
}

func (e transportError) Error() string {
	return e.cause.Error()
}

func (e transportError) Unwrap() error {
	return e.cause
}

type reply struct {
	rsp      *http.Response
	conn     *Conn
	attempts int
}

// Process implements the [pipeline.Processor] interface.
func (h *Handler) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	spanCtx, span := otel.Tracer("forward").Start(ctx, "Handler.Process")
	defer span.End()

	host := h.host
	if host == "" {
		host = ex.Request.Host
	}
	if host == "" {
		return pipeline.Stop, pipeline.Develf("no host to forward %q to", ex.Request.URI)
	}
	addr := h.address(host)
	span.SetAttributes(attribute.String("forward.addr", addr))

	body, err := readBody(ex.RequestContent)
	if err != nil {
		return pipeline.Stop, err
	}
	method, req := encodeRequest(host, ex.Request, ex.RequestContent, body)

	var r *reply
	err = h.guard(addr, func() error {
		var err error
		r, err = h.forward(spanCtx, addr, method, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.fail(spanCtx, ex.Response, addr, err)
		return pipeline.Proceed, nil
	}
	span.SetAttributes(attribute.Int("forward.attempts", r.attempts))

	ex.Response.Status = r.rsp.StatusCode
	ex.Response.Text = reason(r.rsp)
	ex.Response.Headers = rest.HeadersFrom(r.rsp.Header)
	for _, name := range h.removeHeaders {
		ex.Response.Headers.Del(name)
	}
	ex.ResponseContent.Source = newRecycle(h.pool, addr, r.conn, r.rsp)
	ex.ResponseContent.Length = r.rsp.ContentLength
	return pipeline.Proceed, nil
}

func (h *Handler) fail(ctx context.Context, rsp *rest.Response, addr string, err error) {
	switch {
	case errors.Is(err, errStale):
		h.log.WarnContext(ctx, "downstream connections kept failing", logfield.Host(addr), logfield.Int("max_retries", h.maxRetries))
		rsp.SetCode(rest.PathNotFound, "")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		rsp.SetCode(rest.ServiceUnavailable, fmt.Sprintf("Circuit open for %s", addr))
	case errors.Is(err, syscall.ECONNREFUSED):
		h.log.ErrorContext(ctx, "downstream refused connection", logfield.Host(addr), logfield.Error(err))
		rsp.SetCode(rest.ServiceUnavailable, "Connection refused")
	default:
		h.log.ErrorContext(ctx, "failed to forward request", logfield.Host(addr), logfield.Error(err))
		rsp.SetCode(rest.ServiceUnavailable, err.Error())
	}
}

func (h *Handler) forward(ctx context.Context, addr, method string, req []byte) (*reply, error) {
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		c, err := h.connect(ctx, addr)
		if err != nil {
			return nil, transportError{cause: err}
		}

		_, err = c.Write(req)
		if err != nil {
			c.Close()
			return nil, transportError{cause: err}
		}

		// EOF before the status line means the peer dropped a pooled connection
		_, err = c.r.Peek(1)
		if errors.Is(err, io.EOF) {
			c.Close()
			h.log.DebugContext(ctx, "retrying on stale connection", logfield.Host(addr), logfield.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			c.Close()
			return nil, transportError{cause: err}
		}

		// the method decides if a body follows, HEAD replies never carry one
		rsp, err := http.ReadResponse(c.r, &http.Request{Method: method})
		if err != nil {
			c.Close()
			return nil, transportError{cause: err}
		}
		return &reply{rsp: rsp, conn: c, attempts: attempt + 1}, nil
	}
	return nil, errStale
}

func (h *Handler) connect(ctx context.Context, addr string) (*Conn, error) {
	if c, ok := h.pool.Get(addr); ok {
		return c, nil
	}
	c, err := h.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

func (h *Handler) guard(addr string, f func() error) error {
	if h.tripAfter == 0 {
		return f()
	}
	_, err := h.breaker(addr).Execute(func() (any, error) {
		return nil, f()
	})
	return err
}

func (h *Handler) breaker(addr string) *gobreaker.CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()

	cb, ok := h.breakers[addr]
	if ok {
		return cb
	}
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: addr,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= h.tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.log.Warn(
				"downstream circuit changed state",
				logfield.Host(name),
				logfield.String("from", from.String()),
				logfield.String("to", to.String()),
			)
		},
	})
	h.breakers[addr] = cb
	return cb
}

func (h *Handler) address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(h.port))
}

func readBody(rc *rest.RequestContent) ([]byte, error) {
	if rc.Source == nil {
		return nil, nil
	}
	r := rc.Source
	if rc.Length >= 0 {
		r = io.LimitReader(r, rc.Length)
	}
	return io.ReadAll(r)
}

func encodeRequest(host string, r *rest.Request, rc *rest.RequestContent, body []byte) (string, []byte) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	uri := "/" + strings.TrimPrefix(r.URI, "/")
	if len(r.Parameters) > 0 {
		uri += "?" + r.Parameters.Encode()
	}

	headers := r.Headers.Clone()
	restoreDecoded(headers, r, rc)
	if _, ok := headers.Get("Host"); !ok {
		headers.Set("Host", host)
	}
	headers.Set("Connection", "keep-alive")
	headers.Del("Content-Length")
	if body != nil {
		headers.Set("Content-Length", strconv.Itoa(len(body)))
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s HTTP/1.1\r\n", method, uri)
	for _, name := range headers.Names() {
		fmt.Fprintf(&buf, "%s: %s\r\n", name, headers[name])
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return method, buf.Bytes()
}

// restoreDecoded renders back the standard headers the header decoding
// consumed from the request, so the downstream sees them as sent.
func restoreDecoded(headers rest.Headers, r *rest.Request, rc *rest.RequestContent) {
	var codec header.Codec
	if _, ok := headers.Get(header.NameContentType); !ok && rc != nil && rc.ContentType != "" {
		v := header.Token(rc.ContentType)
		if rc.CharSet != "" {
			v = v.With(header.Attr(header.AttrCharSet, rc.CharSet))
		}
		names := make([]string, 0, len(rc.ContentTypeAttributes))
		for name := range rc.ContentTypeAttributes {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			value := rc.ContentTypeAttributes[name]
			if value == "" {
				v = v.With(header.Flag(name))
				continue
			}
			v = v.With(header.Attr(name, value))
		}
		headers.Set(header.NameContentType, codec.Encode(v))
	}
	if _, ok := headers.Get(header.NameContentLanguage); !ok && rc != nil && rc.ContentLanguage != "" {
		headers.Set(header.NameContentLanguage, rc.ContentLanguage)
	}

	accepts := []struct {
		name   string
		tokens []string
	}{
		{name: header.NameAccept, tokens: r.AccContentTypes},
		{name: header.NameAcceptCharset, tokens: r.AccCharSets},
		{name: header.NameAcceptLanguage, tokens: r.AccLanguages},
	}
	for _, acc := range accepts {
		if _, ok := headers.Get(acc.name); ok || len(acc.tokens) == 0 {
			continue
		}
		values := make([]header.Value, len(acc.tokens))
		for i, token := range acc.tokens {
			values[i] = header.Token(token)
		}
		headers.Set(acc.name, codec.Encode(values...))
	}
}

func reason(rsp *http.Response) string {
	code := strconv.Itoa(rsp.StatusCode)
	return strings.TrimSpace(strings.TrimPrefix(rsp.Status, code))
}
