// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package logfield standardizes the slog attributes emitted across ally.
package logfield

import (
	"log/slog"
	"time"
)

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Strings returns an slog.Attr for a slice of strings.
func Strings(key string, values []string) slog.Attr {
	return slog.Any(key, values)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Path is the request path, relative to the server root.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// Host is a downstream host in host[:port] form.
func Host(host string) slog.Attr {
	return slog.String("host", host)
}

// Processor names a single stage of a processing.
func Processor(name string) slog.Attr {
	return slog.String("processor", name)
}

// Assembly names the assembly a processing was created from.
func Assembly(name string) slog.Attr {
	return slog.String("assembly", name)
}

// Status is an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int("http_status_code", code)
}

// Uint32 returns an slog.Attr for a uint32.
func Uint32(key string, n uint32) slog.Attr {
	return slog.Uint64(key, uint64(n))
}
