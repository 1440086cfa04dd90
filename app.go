// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package ally

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// PanicError is returned when a recovered panic value is not an error.
type PanicError struct {
	Value any
}

// Error implements the [builtin.error] interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

func errRecover(err *error) {
	r := recover()
	if r == nil {
		return
	}

	rerr, ok := r.(error)
	if ok {
		*err = rerr
		return
	}
	*err = PanicError{Value: r}
}

// Recover wraps app with panic recovery. A recovered error is returned
// as is, any other value as a [PanicError].
func Recover(app App) App {
	return AppFunc(func(ctx context.Context) (err error) {
		defer errRecover(&err)

		return app.Run(ctx)
	})
}

// RecoverBuilder wraps builder with panic recovery.
func RecoverBuilder[T any](builder AppBuilder[T]) AppBuilder[T] {
	return AppBuilderFunc[T](func(ctx context.Context, cfg T) (_ App, err error) {
		defer errRecover(&err)

		return builder.Build(ctx, cfg)
	})
}

// WithSignalNotifications cancels the context passed to app.Run when one
// of signals is received by the process.
func WithSignalNotifications(app App, signals ...os.Signal) App {
	return AppFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// LifecycleHook represents functionality performed at a specific point
// relative to the execution of [App.Run].
type LifecycleHook interface {
	Run(context.Context) error
}

// LifecycleHookFunc is a func variant of the [LifecycleHook] interface.
type LifecycleHookFunc func(context.Context) error

// Run implements the [LifecycleHook] interface.
func (f LifecycleHookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Lifecycle groups the hooks run around an [App].
type Lifecycle struct {
	// PostRun is always executed regardless if the underlying [App]
	// returns an error or panics.
	PostRun LifecycleHook
}

// WithLifecycleHooks runs the hooks of lifecycle around app.Run.
func WithLifecycleHooks(app App, lifecycle Lifecycle) App {
	return AppFunc(func(ctx context.Context) (err error) {
		defer runPostRunHook(ctx, lifecycle.PostRun, &err)

		return app.Run(ctx)
	})
}

func runPostRunHook(ctx context.Context, hook LifecycleHook, err *error) {
	if hook == nil {
		return
	}

	// The app context is likely cancelled by now.
	hookErr := hook.Run(context.WithoutCancel(ctx))
	*err = errors.Join(*err, hookErr)
}

// Runtimes runs every app concurrently. The first failure cancels the others.
func Runtimes(apps ...App) App {
	return AppFunc(func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		for _, app := range apps {
			g.Go(func() error {
				return app.Run(gctx)
			})
		}
		return g.Wait()
	})
}

// TracerProviderInitializer is implemented by configs which set up tracing.
type TracerProviderInitializer interface {
	InitTracerProvider(context.Context) (trace.TracerProvider, error)
}

// OTel installs the tracer provider of the config, and the W3C trace
// context propagator, before building the [App]. A provider with a
// Shutdown method is shut down once the [App] returns.
func OTel[T TracerProviderInitializer](builder AppBuilder[T]) AppBuilder[T] {
	return AppBuilderFunc[T](func(ctx context.Context, cfg T) (App, error) {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		tp, err := cfg.InitTracerProvider(ctx)
		if err != nil {
			return nil, err
		}
		if tp != nil {
			otel.SetTracerProvider(tp)
		}

		app, err := builder.Build(ctx, cfg)
		if err != nil {
			return nil, err
		}

		sd, ok := tp.(interface{ Shutdown(context.Context) error })
		if !ok {
			return app, nil
		}
		return WithLifecycleHooks(app, Lifecycle{
			PostRun: LifecycleHookFunc(sd.Shutdown),
		}), nil
	})
}
