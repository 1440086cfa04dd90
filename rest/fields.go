// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

// Context field names used in processor contracts.
const (
	FieldRequestScheme          = "request.scheme"
	FieldRequestMethod          = "request.method"
	FieldRequestHost            = "request.host"
	FieldRequestURIRoot         = "request.uriRoot"
	FieldRequestURI             = "request.uri"
	FieldRequestParameters      = "request.parameters"
	FieldRequestHeaders         = "request.headers"
	FieldRequestAccContentTypes = "request.accContentTypes"
	FieldRequestAccCharSets     = "request.accCharSets"
	FieldRequestAccLanguages    = "request.accLanguages"

	FieldRequestContentSource     = "requestContent.source"
	FieldRequestContentLength     = "requestContent.length"
	FieldRequestContentType       = "requestContent.contentType"
	FieldRequestContentCharSet    = "requestContent.charSet"
	FieldRequestContentAttributes = "requestContent.contentTypeAttributes"
	FieldRequestContentLanguage   = "requestContent.contentLanguage"

	FieldResponseStatus          = "response.status"
	FieldResponseHeaders         = "response.headers"
	FieldResponseAllows          = "response.allows"
	FieldResponseContentType     = "response.contentType"
	FieldResponseCharSet         = "response.charSet"
	FieldResponseContentLanguage = "response.contentLanguage"
	FieldResponseLocation        = "response.location"
	FieldResponseObj             = "response.obj"

	FieldResponseContentSource = "responseContent.source"
)

// Provided lists the fields the HTTP front end populates before a chain runs.
func Provided() []string {
	return []string{
		FieldRequestScheme,
		FieldRequestMethod,
		FieldRequestHost,
		FieldRequestURIRoot,
		FieldRequestURI,
		FieldRequestParameters,
		FieldRequestHeaders,
		FieldRequestContentSource,
		FieldRequestContentLength,
		FieldResponseHeaders,
	}
}
