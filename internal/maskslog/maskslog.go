// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package maskslog provides a slog.Handler hiding the values of
// sensitive attributes, e.g. the entity an access was checked for.
package maskslog

import (
	"context"
	"log/slog"
)

// Masked replaces the value of every masked attribute.
const Masked = "****"

// Option configures the Handler.
type Option func(*Handler)

// Attr masks the attributes with the given key using f.
func Attr(key string, f func(slog.Attr) slog.Attr) Option {
	return func(h *Handler) {
		h.attrs[key] = f
	}
}

// Keys masks the attributes with the given keys as [Masked].
func Keys(keys ...string) Option {
	return func(h *Handler) {
		for _, k := range keys {
			h.attrs[k] = Anonymous
		}
	}
}

// Anonymous turns any attribute into the [Masked] string.
func Anonymous(a slog.Attr) slog.Attr {
	return slog.String(a.Key, Masked)
}

// Handler is an slog.Handler masking attributes before they reach
// the wrapped handler. Attributes nested in groups are masked too.
type Handler struct {
	slog  slog.Handler
	attrs map[string]func(slog.Attr) slog.Attr
}

// NewHandler wraps h.
func NewHandler(h slog.Handler, opts ...Option) *Handler {
	mh := &Handler{
		slog:  h,
		attrs: make(map[string]func(slog.Attr) slog.Attr),
	}
	for _, opt := range opts {
		opt(mh)
	}
	return mh
}

// Enabled implements the slog.Handler interface.
func (h *Handler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.slog.Enabled(ctx, lvl)
}

// Handle implements the slog.Handler interface.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if len(h.attrs) == 0 || record.NumAttrs() == 0 {
		return h.slog.Handle(ctx, record)
	}

	attrs := make([]slog.Attr, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.mask(a))
		return true
	})
	nr := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	nr.AddAttrs(attrs...)
	return h.slog.Handle(ctx, nr)
}

// WithAttrs implements the slog.Handler interface.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return &Handler{slog: h.slog.WithAttrs(masked), attrs: h.attrs}
}

// WithGroup implements the slog.Handler interface.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{slog: h.slog.WithGroup(name), attrs: h.attrs}
}

func (h *Handler) mask(a slog.Attr) slog.Attr {
	if f, ok := h.attrs[a.Key]; ok {
		return f(a)
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}

	group := a.Value.Group()
	masked := make([]any, len(group))
	for i, ga := range group {
		masked[i] = h.mask(ga)
	}
	return slog.Group(a.Key, masked...)
}
