// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package header parses and encodes structured HTTP header values and
// provides the processors negotiating them.
//
// A header line is a sequence of values separated by the main separator.
// Each value is a primary token optionally followed by attributes, split by
// the attribute separator, where each attribute is a name, value pair split
// by the value separator:
//
//	text/html; charset=utf-8, application/xml; q=0.9
package header

import (
	"strings"

	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"
)

// Mode selects the shape of a parse result.
type Mode int

const (
	// ModeAll parses every value together with its attributes.
	ModeAll Mode = iota + 1

	// ModeValueAttributes parses exactly one value together with its attributes.
	ModeValueAttributes

	// ModeValues parses every value discarding the attributes.
	ModeValues

	// ModeValue parses exactly one value discarding the attributes.
	ModeValue

	// ModeValueNoParse returns the raw header value.
	ModeValueNoParse
)

func (m Mode) single() bool {
	return m == ModeValueAttributes || m == ModeValue || m == ModeValueNoParse
}

func (m Mode) valid() bool {
	return m >= ModeAll && m <= ModeValueNoParse
}

// Default separators.
const (
	SeparatorMain  = ","
	SeparatorAttr  = ";"
	SeparatorValue = "="
)

// Result is the outcome of [Codec.Parse]. Depending on the mode either
// Values or Raw is populated.
type Result struct {
	Mode   Mode
	Values []Value
	Raw    string
}

// First returns the first parsed value.
func (r *Result) First() Value {
	if r == nil || len(r.Values) == 0 {
		return Value{}
	}
	return r.Values[0]
}

// Tokens returns the primary tokens of every parsed value.
func (r *Result) Tokens() []string {
	if r == nil {
		return nil
	}
	ts := make([]string, len(r.Values))
	for i, v := range r.Values {
		ts[i] = v.Token
	}
	return ts
}

// Codec parses and encodes header values. The zero value uses the default separators.
type Codec struct {
	// ReadFromParams makes Parse look for the header among the request
	// parameters before the actual header.
	ReadFromParams bool

	SeparatorMain  string
	SeparatorAttr  string
	SeparatorValue string
}

func (c *Codec) sepMain() string {
	if c.SeparatorMain == "" {
		return SeparatorMain
	}
	return c.SeparatorMain
}

func (c *Codec) sepAttr() string {
	if c.SeparatorAttr == "" {
		return SeparatorAttr
	}
	return c.SeparatorAttr
}

func (c *Codec) sepValue() string {
	if c.SeparatorValue == "" {
		return SeparatorValue
	}
	return c.SeparatorValue
}

// Parse parses the named header. The consumed entry is removed from
// headers, or from params when the value was read from the parameters.
// With [ModeAll] a header shadowed by parameters is removed as well.
// A nil Result is returned when the header is not present.
//
// An unsupported mode, or more than one value for a single value mode,
// results in a [pipeline.DevelError].
func (c *Codec) Parse(name string, headers rest.Headers, params *rest.Params, mode Mode) (*Result, error) {
	if !mode.valid() {
		return nil, pipeline.Develf("invalid parse mode %d for header %q", mode, name)
	}

	if c.ReadFromParams && params != nil {
		found := params.Extract(name)
		if len(found) > 0 {
			if mode.single() && len(found) > 1 {
				return nil, pipeline.Develf("Invalid parameter header %q, expected only one value", name)
			}
			if mode == ModeValueNoParse {
				return &Result{Mode: mode, Raw: found[0]}, nil
			}
			if mode == ModeAll {
				headers.Pop(name)
			}
			return c.parse(name, found, mode)
		}
	}

	raw, ok := headers.Pop(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	if mode == ModeValueNoParse {
		return &Result{Mode: mode, Raw: raw}, nil
	}
	values := split(raw, c.sepMain())
	if mode.single() && len(values) > 1 {
		return nil, pipeline.Develf("Invalid header %q, expected only one value", name)
	}
	return c.parse(name, values, mode)
}

func (c *Codec) parse(name string, raw []string, mode Mode) (*Result, error) {
	values := make([]Value, 0, len(raw))
	for _, r := range raw {
		v := c.parseValue(r, mode != ModeValues && mode != ModeValue)
		if v.Token == "" {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, nil
	}
	if mode.single() && len(values) > 1 {
		return nil, pipeline.Develf("Invalid header %q, expected only one value", name)
	}
	if mode == ModeAll {
		values = merge(values)
	}
	return &Result{Mode: mode, Values: values}, nil
}

// merge collapses values sharing a token, later attributes replace earlier
// ones while the first position is kept.
func merge(values []Value) []Value {
	index := make(map[string]int, len(values))
	merged := values[:0]
	for _, v := range values {
		i, ok := index[v.Token]
		if !ok {
			index[v.Token] = len(merged)
			merged = append(merged, v)
			continue
		}
		merged[i].Attrs = v.Attrs
	}
	return merged
}

func (c *Codec) parseValue(raw string, withAttrs bool) Value {
	parts := split(raw, c.sepAttr())
	v := Value{Token: strings.TrimSpace(parts[0])}
	if !withAttrs {
		return v
	}
	for _, part := range parts[1:] {
		name, value, hasValue := strings.Cut(part, c.sepValue())
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !hasValue {
			v.Attrs.Set(Flag(name))
			continue
		}
		v.Attrs.Set(Attr(name, strings.Trim(strings.TrimSpace(value), `"`)))
	}
	return v
}

// split cuts s around sep, ignoring separators enclosed in double quotes.
func split(s, sep string) []string {
	var parts []string
	quoted := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case !quoted && strings.HasPrefix(s[i:], sep):
			parts = append(parts, s[start:i])
			start = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, s[start:])
}

// Encode is the inverse of Parse with [ModeAll]. Tokens are joined with the main
// separator, attributes with the attribute separator and attribute values with
// the value separator. Attribute values containing a separator are quoted.
func (c *Codec) Encode(values ...Value) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(c.sepMain())
		}
		sb.WriteString(v.Token)
		for _, a := range v.Attrs {
			sb.WriteString(c.sepAttr())
			sb.WriteString(a.Name)
			if a.Flag {
				continue
			}
			sb.WriteString(c.sepValue())
			sb.WriteString(c.quote(a.Value))
		}
	}
	return sb.String()
}

func (c *Codec) quote(s string) string {
	if strings.Contains(s, c.sepMain()) || strings.Contains(s, c.sepAttr()) || strings.Contains(s, c.sepValue()) {
		return `"` + s + `"`
	}
	return s
}

// ParseAll parses every value of the named header with its attributes.
func (c *Codec) ParseAll(name string, headers rest.Headers, params *rest.Params) ([]Value, error) {
	r, err := c.Parse(name, headers, params, ModeAll)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Values, nil
}

// ParseValueAttributes parses the single value of the named header with its attributes.
func (c *Codec) ParseValueAttributes(name string, headers rest.Headers, params *rest.Params) (Value, bool, error) {
	r, err := c.Parse(name, headers, params, ModeValueAttributes)
	if err != nil || r == nil {
		return Value{}, false, err
	}
	return r.First(), true, nil
}

// ParseValues parses the tokens of every value of the named header.
func (c *Codec) ParseValues(name string, headers rest.Headers, params *rest.Params) ([]string, error) {
	r, err := c.Parse(name, headers, params, ModeValues)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Tokens(), nil
}

// ParseValue parses the token of the single value of the named header.
func (c *Codec) ParseValue(name string, headers rest.Headers, params *rest.Params) (string, bool, error) {
	r, err := c.Parse(name, headers, params, ModeValue)
	if err != nil || r == nil {
		return "", false, err
	}
	return r.First().Token, true, nil
}

// ParseRaw returns the unparsed value of the named header.
func (c *Codec) ParseRaw(name string, headers rest.Headers, params *rest.Params) (string, bool, error) {
	r, err := c.Parse(name, headers, params, ModeValueNoParse)
	if err != nil || r == nil {
		return "", false, err
	}
	return r.Raw, true, nil
}
