// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"io"
	"io/fs"
)

// File is a Source reading a config file of a [fs.FS]. The file is opened
// when applied and its extension selects the document [Format].
type File struct {
	fsys     fs.FS
	name     string
	template bool
	tmplOpts []RenderTextTemplateOption
}

// FileOption configures a File source.
type FileOption func(*File)

// Templated renders the file as a text/template before decoding it.
func Templated(opts ...RenderTextTemplateOption) FileOption {
	return func(f *File) {
		f.template = true
		f.tmplOpts = append(f.tmplOpts, opts...)
	}
}

// FromFile returns a source applying the values of the named file of fsys.
func FromFile(fsys fs.FS, name string, opts ...FileOption) File {
	f := File{fsys: fsys, name: name}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// UnknownFormatError is returned when no [Format] matches the extension of a config file.
type UnknownFormatError struct {
	Name string
}

// Error implements the error interface.
func (e UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown config file format: %s", e.Name)
}

// Apply implements the Source interface.
func (src File) Apply(store Store) error {
	format, ok := FormatOf(src.name)
	if !ok {
		return UnknownFormatError{Name: src.name}
	}

	f, err := src.fsys.Open(src.name)
	if err != nil {
		return err
	}

	var r io.Reader = f
	if src.template {
		r = RenderTextTemplate(f, src.tmplOpts...)
	}
	return FromDocument(r, format).Apply(store)
}
