// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package header

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/z5labs/ally/internal/logfield"
	"github.com/z5labs/ally/internal/noop"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// Standard header names.
const (
	NameContentType     = "Content-Type"
	NameContentLanguage = "Content-Language"
	NameContentLength   = "Content-Length"
	NameAllow           = "Allow"
	NameLocation        = "Location"
	NameAccept          = "Accept"
	NameAcceptCharset   = "Accept-Charset"
	NameAcceptLanguage  = "Accept-Language"

	AttrCharSet = "charset"
)

// MethodsAllow maps the allowed REST actions to the HTTP methods rendered in
// the Allow header, in rendering order.
var MethodsAllow = []struct {
	Method rest.Method
	Name   string
}{
	{Method: rest.Read, Name: "GET"},
	{Method: rest.Delete, Name: "DELETE"},
	{Method: rest.Create, Name: "POST"},
	{Method: rest.Update, Name: "PUT"},
}

type options struct {
	codec      Codec
	logHandler slog.Handler
	encoder    rest.PathEncoder
}

// Option configures the header processors.
type Option func(*options)

// ReadFromParams makes the processors look for headers among the request
// parameters first. Matched parameters are removed from the request.
func ReadFromParams() Option {
	return func(o *options) {
		o.codec.ReadFromParams = true
	}
}

// Separators overrides the default separators.
func Separators(main, attr, value string) Option {
	return func(o *options) {
		o.codec.SeparatorMain = main
		o.codec.SeparatorAttr = attr
		o.codec.SeparatorValue = value
	}
}

// LogHandler configures the slog.Handler the processors log with.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// WithPathEncoder configures how the Location header is rendered.
func WithPathEncoder(e rest.PathEncoder) Option {
	return func(o *options) {
		o.encoder = e
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logHandler: noop.LogHandler{},
		encoder:    rest.PathEncoderFunc(rootedPath),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func rootedPath(req *rest.Request, location string) string {
	if strings.Contains(location, "://") || strings.HasPrefix(location, "/") {
		return location
	}
	return "/" + req.URIRoot + location
}

// Decode decodes the standard request headers into request data that
// the downstream processors understand.
type Decode struct {
	codec Codec
	log   *slog.Logger
}

// NewDecode returns a Decode processor.
func NewDecode(opts ...Option) *Decode {
	o := newOptions(opts)
	return &Decode{
		codec: o.codec,
		log:   slog.New(o.logHandler),
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (d *Decode) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{
			rest.FieldRequestHeaders,
			rest.FieldRequestParameters,
		},
		Defines: []string{
			rest.FieldRequestContentType,
			rest.FieldRequestContentCharSet,
			rest.FieldRequestContentAttributes,
			rest.FieldRequestContentLanguage,
			rest.FieldRequestContentLength,
			rest.FieldRequestAccContentTypes,
			rest.FieldRequestAccCharSets,
			rest.FieldRequestAccLanguages,
			rest.FieldResponseStatus,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (d *Decode) Process(ctx context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	code, err := d.decode(ex.Request, ex.RequestContent)
	if err != nil {
		msg, ok := pipeline.IsDevel(err)
		if !ok {
			return pipeline.Stop, err
		}
		d.log.DebugContext(ctx, "invalid request header", logfield.Error(err))
		ex.Response.SetCode(rest.InvalidHeaderValue, msg)
		return pipeline.Stop, nil
	}
	if code != "" {
		ex.Response.SetCode(rest.InvalidHeaderValue, code)
		return pipeline.Stop, nil
	}
	return pipeline.Proceed, nil
}

func (d *Decode) decode(req *rest.Request, content *rest.RequestContent) (string, error) {
	ct, ok, err := d.codec.ParseValueAttributes(NameContentType, req.Headers, &req.Parameters)
	if err != nil {
		return "", err
	}
	if ok {
		content.ContentType = ct.Token
		if cs, ok := ct.Attrs.Pop(AttrCharSet); ok {
			content.CharSet = cs.Value
		}
		if content.ContentTypeAttributes == nil {
			content.ContentTypeAttributes = make(map[string]string, len(ct.Attrs))
		}
		for k, v := range ct.Attrs.Map() {
			content.ContentTypeAttributes[k] = v
		}
	}

	lang, ok, err := d.codec.ParseValue(NameContentLanguage, req.Headers, &req.Parameters)
	if err != nil {
		return "", err
	}
	if ok {
		content.ContentLanguage = lang
	}

	length, ok, err := d.codec.ParseRaw(NameContentLength, req.Headers, &req.Parameters)
	if err != nil {
		return "", err
	}
	if ok {
		n, err := strconv.ParseInt(strings.TrimSpace(length), 10, 64)
		if err != nil || n < 0 {
			return "Invalid value " + strconv.Quote(length) + " for header " + strconv.Quote(NameContentLength), nil
		}
		content.Length = n
	}

	accepts := []struct {
		name   string
		target *[]string
	}{
		{name: NameAccept, target: &req.AccContentTypes},
		{name: NameAcceptCharset, target: &req.AccCharSets},
		{name: NameAcceptLanguage, target: &req.AccLanguages},
	}
	for _, acc := range accepts {
		vs, err := d.codec.ParseValues(acc.name, req.Headers, &req.Parameters)
		if err != nil {
			return "", err
		}
		*acc.target = append(*acc.target, vs...)
	}
	return "", nil
}

// Encode renders the standard response headers.
type Encode struct {
	codec   Codec
	encoder rest.PathEncoder
}

// NewEncode returns an Encode processor.
func NewEncode(opts ...Option) *Encode {
	o := newOptions(opts)
	return &Encode{
		codec:   o.codec,
		encoder: o.encoder,
	}
}

// Contract implements the [pipeline.Contracter] interface.
func (e *Encode) Contract() pipeline.Contract {
	return pipeline.Contract{
		Requires: []string{rest.FieldResponseHeaders},
		Optional: []string{
			rest.FieldResponseAllows,
			rest.FieldResponseContentType,
			rest.FieldResponseCharSet,
			rest.FieldResponseContentLanguage,
			rest.FieldResponseLocation,
		},
	}
}

// Process implements the [pipeline.Processor] interface.
func (e *Encode) Process(_ context.Context, _ *pipeline.Chain[*rest.Exchange], ex *rest.Exchange) (pipeline.Next, error) {
	e.EncodeHeaders(ex.Request, ex.Response)
	return pipeline.Proceed, nil
}

// EncodeHeaders writes the standard headers of rsp into rsp.Headers.
func (e *Encode) EncodeHeaders(req *rest.Request, rsp *rest.Response) {
	if rsp.Headers == nil {
		rsp.Headers = make(rest.Headers)
	}

	if rsp.Allows != 0 {
		var values []Value
		for _, m := range MethodsAllow {
			if rsp.Allows&m.Method != 0 {
				values = append(values, Token(m.Name))
			}
		}
		rsp.Headers.Set(NameAllow, e.codec.Encode(values...))
	}

	if rsp.ContentType != "" {
		v := Token(rsp.ContentType)
		if rsp.CharSet != "" {
			v = v.With(Attr(AttrCharSet, rsp.CharSet))
		}
		rsp.Headers.Set(NameContentType, e.codec.Encode(v))
	}

	if rsp.ContentLanguage != "" {
		rsp.Headers.Set(NameContentLanguage, rsp.ContentLanguage)
	}

	if rsp.Location != "" {
		rsp.Headers.Set(NameLocation, e.encoder.Encode(req, rsp.Location))
	}
}
