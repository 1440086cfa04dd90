// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/z5labs/ally/acl"
	"github.com/z5labs/ally/gateway"
	"github.com/z5labs/ally/internal/maskslog"
	"github.com/z5labs/ally/internal/otelslog"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Server modes.
const (
	ModeSerial     = "serial"
	ModeConcurrent = "concurrent"
)

// Config is the configuration of allyd. Keys hold no underscores so that
// every one of them can be set through the environment.
type Config struct {
	Server   ServerConfig        `config:"server"`
	Log      LogConfig           `config:"log"`
	Trace    TraceConfig         `config:"trace"`
	Forward  ForwardConfig       `config:"forward"`
	Gateways GatewaysConfig      `config:"gateways"`
	Headers  map[string][]string `config:"headers"`
	ACL      ACLConfig           `config:"acl"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr        string        `config:"addr"`
	Mode        string        `config:"mode"`
	ReadTimeout time.Duration `config:"readtimeout"`
}

// LogConfig configures the process wide slog.Handler.
type LogConfig struct {
	Level  slog.Level `config:"level"`
	Format string     `config:"format"`

	// Mask lists the attribute keys whose values are never logged.
	Mask []string `config:"mask"`
}

// TraceConfig configures tracing. Spans are exported to stdout.
type TraceConfig struct {
	Enabled bool `config:"enabled"`
}

// ForwardConfig configures the forwarding of api requests.
type ForwardConfig struct {
	Port          int      `config:"port"`
	MaxRetries    int      `config:"maxretries"`
	TripAfter     uint32   `config:"tripafter"`
	RemoveHeaders []string `config:"removeheaders"`
}

// GatewaysConfig lists where api requests are navigated to.
type GatewaysConfig struct {
	// Fallback is the host of requests matching no gateway.
	Fallback string `config:"fallback"`

	// Remote is the url of a JSON gateway listing.
	Remote string `config:"remote"`

	// Elasticsearch is the host of an elasticsearch node serving content searches.
	Elasticsearch string `config:"elasticsearch"`

	Static []gateway.Gateway `config:"static"`
}

// ACLConfig enables access control of api requests when Database is set.
type ACLConfig struct {
	Database string              `config:"database"`
	Header   string              `config:"header"`
	Accesses []AccessConfig      `config:"accesses"`
	Filters  map[string][]string `config:"filters"`
	Entities []EntityConfig      `config:"entities"`
	Types    []TypeConfig        `config:"types"`
}

// AccessConfig registers a grantable access.
type AccessConfig struct {
	Method string `config:"method"`
	Path   string `config:"path"`
}

// EntityConfig declares the accesses of an entity e.g. a group. Children
// without a name only group their own children.
type EntityConfig struct {
	Name     string         `config:"name"`
	Accesses []EntityAccess `config:"accesses"`
	Children []EntityConfig `config:"children"`
}

// EntityAccess grants the urls to an entity. Methods default to GET.
type EntityAccess struct {
	URLs    []string `config:"urls"`
	Methods []string `config:"methods"`
	Filters []string `config:"filters"`
}

// TypeConfig declares the default rights of an ACL type.
type TypeConfig struct {
	Name     string   `config:"name"`
	Defaults []string `config:"defaults"`
}

// DefaultConfig is the base every config source overrides.
func DefaultConfig() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"addr": ":8080",
			"mode": ModeSerial,
		},
		"log": map[string]any{
			"level":  "INFO",
			"format": "json",
		},
		"forward": map[string]any{
			"port":       80,
			"maxretries": 10,
		},
		"acl": map[string]any{
			"header": acl.DefaultHeader,
		},
	}
}

// LogHandler returns the handler described by the config, writing to w.
func (c Config) LogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     c.Log.Level,
	}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if c.Log.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	if len(c.Log.Mask) > 0 {
		h = maskslog.NewHandler(h, maskslog.Keys(c.Log.Mask...))
	}
	return otelslog.NewHandler(h)
}

// InitTracerProvider implements the ally.TracerProviderInitializer interface.
func (c Config) InitTracerProvider(ctx context.Context) (trace.TracerProvider, error) {
	if !c.Trace.Enabled {
		return nil, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	if err != nil {
		return nil, err
	}
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName("allyd")),
	)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(r),
	), nil
}
