// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import "net/http"

// Code is a response status paired with its default text.
type Code struct {
	Status int
	Text   string
}

var (
	OK                 = Code{Status: http.StatusOK, Text: "OK"}
	InvalidHeaderValue = Code{Status: http.StatusBadRequest, Text: "Invalid header value"}
	BadRequest         = Code{Status: http.StatusBadRequest, Text: "Bad request"}
	Forbidden          = Code{Status: http.StatusForbidden, Text: "Forbidden access"}
	PathNotFound       = Code{Status: http.StatusNotFound, Text: "Path not found"}
	InternalError      = Code{Status: http.StatusInternalServerError, Text: "Internal server error"}
	ServiceUnavailable = Code{Status: http.StatusServiceUnavailable, Text: "Service unavailable"}
)
