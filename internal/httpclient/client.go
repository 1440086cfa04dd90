// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpclient provides the http.Client used to reach remote
// configuration e.g. gateway listings.
package httpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type circuitOptions struct {
	maxRequests uint32
	interval    time.Duration
	timeout     time.Duration
	tripCount   uint32
	statusCodes []int
}

func withCircuitOption(f func(*circuitOptions)) Option {
	return func(o *options) {
		if o.co == nil {
			o.co = &circuitOptions{tripCount: 5}
		}
		f(o.co)
	}
}

// HalfOpenRequests is the number of requests let through a half open circuit.
func HalfOpenRequests(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.maxRequests = n
	})
}

// OpenStateTimeout is how long the circuit stays open before turning half open.
func OpenStateTimeout(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.timeout = d
	})
}

// CountResetInterval is the cyclic period at which a closed circuit clears its counts.
func CountResetInterval(d time.Duration) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.interval = d
	})
}

// TripAfter opens the circuit after n consecutive failures.
func TripAfter(n uint32) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.tripCount = n
	})
}

// TripOn counts responses with the given status codes as failures.
func TripOn(codes ...int) Option {
	return withCircuitOption(func(co *circuitOptions) {
		co.statusCodes = append(co.statusCodes, codes...)
	})
}

type retryOptions struct {
	maxRetries int
	waitMin    time.Duration
	waitMax    time.Duration
}

func withRetryOption(f func(*retryOptions)) Option {
	return func(o *options) {
		if o.ro == nil {
			o.ro = &retryOptions{
				maxRetries: 3,
				waitMin:    100 * time.Millisecond,
				waitMax:    time.Second,
			}
		}
		f(o.ro)
	}
}

// MaxRetries retries failed requests up to n times.
func MaxRetries(n int) Option {
	return withRetryOption(func(ro *retryOptions) {
		ro.maxRetries = n
	})
}

// RetryWait bounds the backoff between two retries.
func RetryWait(min, max time.Duration) Option {
	return withRetryOption(func(ro *retryOptions) {
		ro.waitMin = min
		ro.waitMax = max
	})
}

type options struct {
	timeout time.Duration
	rt      http.RoundTripper

	name       string
	logHandler slog.Handler

	co *circuitOptions
	ro *retryOptions
}

// Option configures the client returned by [New].
type Option func(*options)

// Name names the client in its logs and circuit breaker.
func Name(s string) Option {
	return func(o *options) {
		o.name = s
	}
}

// RoundTripper overrides http.DefaultTransport.
func RoundTripper(rt http.RoundTripper) Option {
	return func(o *options) {
		o.rt = rt
	}
}

// Timeout provides a global timeout value for the http.Client.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// LogHandler configures the slog.Handler requests are logged with.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// New returns an http.Client which is traced and logs every round trip.
// Circuit breaking and retries are only enabled by their options.
func New(opts ...Option) *http.Client {
	o := &options{
		rt:         http.DefaultTransport,
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := slog.New(o.logHandler)
	if o.name != "" {
		logger = logger.With(logfield.String("http_client", o.name))
	}

	var rt http.RoundTripper = &logRoundTripper{
		base: otelhttp.NewTransport(o.rt),
		log:  logger,
	}
	if o.co != nil {
		rt = newCircuitRoundTripper(rt, o.name, o.co, logger)
	}
	if o.ro == nil {
		return &http.Client{
			Timeout:   o.timeout,
			Transport: rt,
		}
	}

	ro := o.ro
	rc := retryablehttp.Client{
		HTTPClient: &http.Client{
			Timeout:   o.timeout,
			Transport: rt,
		},
		RetryWaitMin: ro.waitMin,
		RetryWaitMax: ro.waitMax,
		RetryMax:     ro.maxRetries,
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	return rc.StandardClient()
}

type logRoundTripper struct {
	base http.RoundTripper
	log  *slog.Logger
}

func (rt *logRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()
	rt.log.InfoContext(
		ctx,
		"request sent",
		logfield.String("url", req.URL.String()),
	)
	resp, err := rt.base.RoundTrip(req)
	if err != nil {
		rt.log.ErrorContext(
			ctx,
			"request failed",
			logfield.String("url", req.URL.String()),
			logfield.Error(err),
		)
		return nil, err
	}
	rt.log.InfoContext(
		ctx,
		"response received",
		logfield.String("url", req.URL.String()),
		logfield.Status(resp.StatusCode),
		logfield.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

type statusCodeError struct {
	code int
}

func (e statusCodeError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

type circuitRoundTripper struct {
	base  http.RoundTripper
	cb    *gobreaker.CircuitBreaker
	codes map[int]struct{}
}

func newCircuitRoundTripper(base http.RoundTripper, name string, co *circuitOptions, logger *slog.Logger) *circuitRoundTripper {
	if len(co.statusCodes) == 0 {
		co.statusCodes = []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		}
	}
	codes := make(map[int]struct{}, len(co.statusCodes))
	for _, code := range co.statusCodes {
		codes[code] = struct{}{}
	}

	return &circuitRoundTripper{
		base:  base,
		codes: codes,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: co.maxRequests,
			Interval:    co.interval,
			Timeout:     co.timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= co.tripCount
			},
			OnStateChange: func(_ string, _, to gobreaker.State) {
				switch to {
				case gobreaker.StateOpen:
					logger.Error("circuit has been opened")
				case gobreaker.StateHalfOpen:
					logger.Warn(
						"circuit is now half open and letting some requests through",
						logfield.Uint32("max_requests_allowed_through", co.maxRequests),
					)
				case gobreaker.StateClosed:
					logger.Info("circuit has been closed")
				}
			},
		}),
	}
}

func (rt *circuitRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	v, err := rt.cb.Execute(func() (interface{}, error) {
		resp, err := rt.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if _, ok := rt.codes[resp.StatusCode]; ok {
			return resp, statusCodeError{code: resp.StatusCode}
		}
		return resp, nil
	})

	var serr statusCodeError
	if errors.As(err, &serr) {
		return v.(*http.Response), nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*http.Response), nil
}
