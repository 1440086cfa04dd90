// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package noop provides do-nothing implementations used as component defaults.
package noop

import (
	"context"
	"log/slog"
)

// LogHandler discards every record. Components default to it so that
// logging stays opt-in.
type LogHandler struct{}

func (LogHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (LogHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h LogHandler) WithAttrs(_ []slog.Attr) slog.Handler        { return h }
func (h LogHandler) WithGroup(_ string) slog.Handler             { return h }

// Logger returns h wrapped in a *slog.Logger, falling back to LogHandler when h is nil.
func Logger(h slog.Handler) *slog.Logger {
	if h == nil {
		h = LogHandler{}
	}
	return slog.New(h)
}
