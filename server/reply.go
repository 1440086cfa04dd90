// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strconv"

	"github.com/z5labs/ally/rest"
)

// Reply is the outcome of dispatching a request.
type Reply struct {
	Status  int
	Text    string
	Headers rest.Headers

	// Body takes precedence over Chunks.
	Body   io.Reader
	Chunks iter.Seq[[]byte]

	// Length of the body, -1 when unknown.
	Length int64
}

func replyOf(ex *rest.Exchange) *Reply {
	r := &Reply{
		Status:  ex.Response.Status,
		Text:    ex.Response.Text,
		Headers: ex.Response.Headers,
		Body:    ex.ResponseContent.Source,
		Chunks:  ex.ResponseContent.Chunks,
		Length:  ex.ResponseContent.Length,
	}
	if r.Status == 0 {
		r.Status = rest.OK.Status
		if r.Text == "" {
			r.Text = rest.OK.Text
		}
	}
	return r
}

func (r *Reply) text() string {
	if r.Text != "" {
		return r.Text
	}
	return http.StatusText(r.Status)
}

// Close closes the body if it is an [io.Closer]. Forwarded bodies
// recycle their connection this way.
func (r *Reply) Close() error {
	c, ok := r.Body.(io.Closer)
	if !ok {
		return nil
	}
	return c.Close()
}

// Write writes r as a HTTP/1.1 response after which the connection
// is expected to be closed.
func (r *Reply) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.1 %03d %s\r\n", r.Status, r.text())
	for _, name := range r.Headers.Names() {
		if name == "Connection" || name == "Content-Length" {
			continue
		}
		fmt.Fprintf(bw, "%s: %s\r\n", name, r.Headers[name])
	}
	if r.Length >= 0 {
		fmt.Fprintf(bw, "Content-Length: %d\r\n", r.Length)
	}
	bw.WriteString("Connection: close\r\n\r\n")

	err := r.writeBody(bw)
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Serve writes r through a [http.ResponseWriter].
func (r *Reply) Serve(w http.ResponseWriter) error {
	h := w.Header()
	for name, value := range r.Headers {
		if name == "Connection" || name == "Content-Length" {
			continue
		}
		h.Set(name, value)
	}
	if r.Length >= 0 {
		h.Set("Content-Length", strconv.FormatInt(r.Length, 10))
	}
	w.WriteHeader(r.Status)
	return r.writeBody(w)
}

func (r *Reply) writeBody(w io.Writer) error {
	if r.Body != nil {
		_, err := io.Copy(w, r.Body)
		return err
	}
	if r.Chunks == nil {
		return nil
	}
	for chunk := range r.Chunks {
		_, err := w.Write(chunk)
		if err != nil {
			return err
		}
	}
	return nil
}
