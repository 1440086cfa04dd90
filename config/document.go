// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/z5labs/ally/internal/try"

	"gopkg.in/yaml.v3"
)

// Format decodes a whole document into nested config values.
type Format struct {
	Name      string
	Unmarshal func([]byte, any) error
}

// Supported document formats.
var (
	YAML = Format{Name: "yaml", Unmarshal: yaml.Unmarshal}
	JSON = Format{Name: "json", Unmarshal: json.Unmarshal}
)

// FormatOf returns the format matching the extension of filename.
func FormatOf(filename string) (Format, bool) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		return YAML, true
	case ".json":
		return JSON, true
	}
	return Format{}, false
}

// Document is a Source decoding every value of a document read from an io.Reader.
// A blank document sets nothing. The reader is closed once read if it is an io.Closer.
type Document struct {
	r      io.Reader
	format Format
}

// FromDocument returns a source which applies the values parsed from r in the given format.
func FromDocument(r io.Reader, format Format) Document {
	return Document{r: r, format: format}
}

// FromYaml returns a source which will apply its config
// from YAML values parsed from the given io.Reader.
func FromYaml(r io.Reader) Document {
	return FromDocument(r, YAML)
}

// FromJson returns a source which will apply its config
// from JSON values parsed from the given io.Reader.
func FromJson(r io.Reader) Document {
	return FromDocument(r, JSON)
}

// InvalidDocumentError occurs if the document can not be decoded in its format,
// or its root is not a mapping.
type InvalidDocumentError struct {
	Format string
	Cause  error
}

// Error implements the error interface.
func (e InvalidDocumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Format, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e InvalidDocumentError) Unwrap() error {
	return e.Cause
}

// Apply implements the Source interface.
func (src Document) Apply(store Store) (err error) {
	c, _ := src.r.(io.Closer)
	defer try.Close(&err, c)

	b, err := io.ReadAll(src.r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}

	m := make(map[string]any)
	err = src.format.Unmarshal(b, &m)
	if err != nil {
		return InvalidDocumentError{Format: src.format.Name, Cause: err}
	}
	return Map(m).Apply(store)
}
