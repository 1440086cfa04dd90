// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
)

// Headers maps canonical header names to their raw single line value.
type Headers map[string]string

// HeadersFrom flattens h, joining repeated header lines with a comma.
func HeadersFrom(h http.Header) Headers {
	hs := make(Headers, len(h))
	for name, values := range h {
		hs[textproto.CanonicalMIMEHeaderKey(name)] = strings.Join(values, ",")
	}
	return hs
}

// Get returns the value of the named header.
func (h Headers) Get(name string) (string, bool) {
	v, ok := h[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// Set sets the named header.
func (h Headers) Set(name, value string) {
	h[textproto.CanonicalMIMEHeaderKey(name)] = value
}

// Del removes the named header.
func (h Headers) Del(name string) {
	delete(h, textproto.CanonicalMIMEHeaderKey(name))
}

// Pop removes and returns the named header.
func (h Headers) Pop(name string) (string, bool) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	v, ok := h[key]
	if ok {
		delete(h, key)
	}
	return v, ok
}

// Clone returns a copy of h.
func (h Headers) Clone() Headers {
	c := make(Headers, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Names returns the header names sorted.
func (h Headers) Names() []string {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Param is a single query parameter.
type Param struct {
	Name  string
	Value string
}

// Params is an ordered list of parameters, repeated names allowed.
type Params []Param

// ParseParams decodes a raw query string keeping the parameter order and
// blank values. Undecodable pairs are kept verbatim.
func ParseParams(rawQuery string) Params {
	var ps Params
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		ps = append(ps, Param{Name: name, Value: value})
	}
	return ps
}

// Values returns every value of the named parameter.
func (ps Params) Values(name string) []string {
	var vs []string
	for _, p := range ps {
		if p.Name == name {
			vs = append(vs, p.Value)
		}
	}
	return vs
}

// Extract removes every parameter with the given name and returns their values.
func (ps *Params) Extract(name string) []string {
	var vs []string
	kept := (*ps)[:0]
	for _, p := range *ps {
		if p.Name == name {
			vs = append(vs, p.Value)
			continue
		}
		kept = append(kept, p)
	}
	*ps = kept
	return vs
}

// Encode encodes the parameters in order as a query string.
func (ps Params) Encode() string {
	var sb strings.Builder
	for i, p := range ps {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}
