// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// DevelError represents a developer or configuration contract violation
// detected at runtime e.g. an unsupported parse mode or multiple values
// where exactly one is required. It is distinct from transport failures so
// that callers can translate it into a client facing 400 class response.
type DevelError struct {
	Message string
}

// Develf formats a DevelError.
func Develf(format string, args ...any) error {
	return DevelError{Message: fmt.Sprintf(format, args...)}
}

// Error implements the [builtin.error] interface.
func (e DevelError) Error() string {
	return e.Message
}

// IsDevel reports whether err, or any error it wraps, is a DevelError.
// The message of the first DevelError found is returned as well.
func IsDevel(err error) (string, bool) {
	var derr DevelError
	if !errors.As(err, &derr) {
		return "", false
	}
	return derr.Message, true
}

// ProcessError wraps an error returned by a processor with its name.
type ProcessError struct {
	Processing string
	Processor  string
	Cause      error
}

// Error implements the [builtin.error] interface.
func (e ProcessError) Error() string {
	return fmt.Sprintf("processor %q of %q failed: %s", e.Processor, e.Processing, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e ProcessError) Unwrap() error {
	return e.Cause
}

// PanicError is reported when a processor panics.
type PanicError struct {
	Value any
}

// Error implements the [builtin.error] interface.
func (e PanicError) Error() string {
	return fmt.Sprintf("recovered from panic: %v", e.Value)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// MissingField describes a required field no earlier stage provides.
type MissingField struct {
	Processor string
	Field     string
}

// BuildError is returned by [Assembly.Create] when the assembly is wired incorrectly.
type BuildError struct {
	Assembly string
	Missing  []MissingField
	Problems []string
}

// Error implements the [builtin.error] interface.
func (e BuildError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid assembly %q:", e.Assembly)
	for _, m := range e.Missing {
		fmt.Fprintf(&sb, " processor %q requires %q which is not available;", m.Processor, m.Field)
	}
	for _, p := range e.Problems {
		fmt.Fprintf(&sb, " %s;", p)
	}
	return strings.TrimSuffix(sb.String(), ";")
}

// ErrChainRunning is returned when a chain is driven while it is already executing.
var ErrChainRunning = DevelError{Message: "chain is already running"}
