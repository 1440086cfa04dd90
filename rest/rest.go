// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rest defines the contexts shared by every processor of an HTTP processing.
package rest

import (
	"io"
	"iter"
)

// Method is a bit set of the REST actions a resource allows.
type Method uint8

const (
	Read Method = 1 << iota
	Delete
	Create
	Update
)

// Request is the request context populated by the front end and the
// header decoding processors.
type Request struct {
	Scheme     string
	Method     string
	Host       string
	URIRoot    string
	URI        string
	Parameters Params
	Headers    Headers

	AccContentTypes []string
	AccCharSets     []string
	AccLanguages    []string
}

// RequestContent describes the request body.
type RequestContent struct {
	Source io.Reader

	// Length is the body length in bytes, -1 if unknown.
	Length int64

	ContentType           string
	CharSet               string
	ContentTypeAttributes map[string]string
	ContentLanguage       string
}

// Response is the response context.
type Response struct {
	Status  int
	Text    string
	Headers Headers

	Allows          Method
	ContentType     string
	CharSet         string
	ContentLanguage string
	Location        string

	// Obj is the value to be encoded into the response content, if any.
	Obj any
}

// SetCode sets the status of the response. An empty text defaults to the code text.
func (r *Response) SetCode(c Code, text string) {
	r.Status = c.Status
	if text == "" {
		text = c.Text
	}
	r.Text = text
}

// IsSuccess reports if the response status is a 2xx or has not been set yet.
func (r *Response) IsSuccess() bool {
	return r.Status == 0 || (r.Status >= 200 && r.Status < 300)
}

// ResponseContent describes the response body. Source takes precedence
// over Chunks when both are set.
type ResponseContent struct {
	Source io.Reader
	Chunks iter.Seq[[]byte]
	Length int64
}

// Exchange bundles the contexts of one HTTP request and response.
type Exchange struct {
	Request         *Request
	RequestContent  *RequestContent
	Response        *Response
	ResponseContent *ResponseContent
}

// NewExchange returns an Exchange with every context allocated.
func NewExchange() *Exchange {
	return &Exchange{
		Request: &Request{
			Headers: make(Headers),
		},
		RequestContent: &RequestContent{
			Length:                -1,
			ContentTypeAttributes: make(map[string]string),
		},
		Response: &Response{
			Headers: make(Headers),
		},
		ResponseContent: &ResponseContent{
			Length: -1,
		},
	}
}

// PathEncoder renders a response location into an externally usable path.
type PathEncoder interface {
	Encode(req *Request, location string) string
}

// PathEncoderFunc is a func variant of the [PathEncoder] interface.
type PathEncoderFunc func(*Request, string) string

// Encode implements the [PathEncoder] interface.
func (f PathEncoderFunc) Encode(req *Request, location string) string {
	return f(req, location)
}
