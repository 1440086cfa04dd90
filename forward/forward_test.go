// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package forward

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/z5labs/ally/header"
	"github.com/z5labs/ally/pipeline"
	"github.com/z5labs/ally/rest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downstream struct {
	mu    sync.Mutex
	dials int
	serve func(net.Conn)
}

func (d *downstream) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()

	client, server := net.Pipe()
	go d.serve(server)
	return client, nil
}

func (d *downstream) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// hangup reads the request and drops the connection without answering.
func hangup(c net.Conn) {
	defer c.Close()
	http.ReadRequest(bufio.NewReader(c))
}

func respond(requests chan<- *http.Request, raw string) func(net.Conn) {
	return func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			req, err := http.ReadRequest(r)
			if err != nil {
				return
			}
			io.Copy(io.Discard, req.Body)
			if requests != nil {
				requests <- req
			}
			_, err = io.WriteString(c, raw)
			if err != nil {
				return
			}
		}
	}
}

const hello = "HTTP/1.1 200 Fine\r\nContent-Length: 5\r\nServer: up\r\nDate: today\r\nX-Trace: 1\r\n\r\nhello"

func newExchange() *rest.Exchange {
	ex := rest.NewExchange()
	ex.Request.Method = http.MethodGet
	ex.Request.URI = "resources/1"
	return ex
}

func TestHandler_Process(t *testing.T) {
	t.Run("will relay the downstream response", func(t *testing.T) {
		requests := make(chan *http.Request, 1)
		d := &downstream{serve: respond(requests, hello)}
		h := New(ExternalHost("backend"), WithDialer(d))
		defer h.Pool().Close()

		ex := newExchange()
		ex.Request.Parameters = rest.Params{{Name: "q", Value: "a b"}}
		ex.Request.Headers.Set("X-User", "jane")
		ex.Request.Headers.Set("Connection", "close")

		next, err := h.Process(context.Background(), nil, ex)
		require.Nil(t, err)
		assert.Equal(t, pipeline.Proceed, next)

		req := <-requests
		assert.Equal(t, "/resources/1?q=a+b", req.RequestURI)
		assert.Equal(t, "jane", req.Header.Get("X-User"))
		assert.Equal(t, "keep-alive", req.Header.Get("Connection"))
		assert.Equal(t, "backend", req.Host)

		assert.Equal(t, http.StatusOK, ex.Response.Status)
		assert.Equal(t, "Fine", ex.Response.Text)
		assert.Equal(t, "1", ex.Response.Headers["X-Trace"])
		for _, name := range DefaultRemoveHeaders {
			_, ok := ex.Response.Headers.Get(name)
			assert.False(t, ok, name)
		}

		b, err := io.ReadAll(ex.ResponseContent.Source)
		require.Nil(t, err)
		assert.Equal(t, "hello", string(b))
	})

	t.Run("will forward the request content", func(t *testing.T) {
		var (
			mu   sync.Mutex
			got  string
			done = make(chan struct{})
		)
		d := &downstream{serve: func(c net.Conn) {
			defer c.Close()
			req, err := http.ReadRequest(bufio.NewReader(c))
			if err != nil {
				return
			}
			b, _ := io.ReadAll(req.Body)
			mu.Lock()
			got = string(b)
			mu.Unlock()
			close(done)
			io.WriteString(c, "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")
		}}
		h := New(ExternalHost("backend:8080"), WithDialer(d))
		defer h.Pool().Close()

		ex := newExchange()
		ex.Request.Method = http.MethodPost
		ex.RequestContent.Source = strings.NewReader(`{"name":"jane"}trailing`)
		ex.RequestContent.Length = 15

		_, err := h.Process(context.Background(), nil, ex)
		require.Nil(t, err)
		<-done

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, `{"name":"jane"}`, got)
		assert.Equal(t, http.StatusCreated, ex.Response.Status)
	})

	t.Run("will restore the headers consumed by the header decoding", func(t *testing.T) {
		requests := make(chan *http.Request, 1)
		d := &downstream{serve: respond(requests, "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n")}
		h := New(ExternalHost("backend"), WithDialer(d))
		defer h.Pool().Close()

		p, _, err := pipeline.NewAssembly[*rest.Exchange]("api").
			Add("decode", header.NewDecode()).
			Add("forward", h).
			Create(rest.Provided()...)
		require.Nil(t, err)

		ex := newExchange()
		ex.Request.Method = http.MethodPost
		ex.Request.Headers.Set("Content-Type", "application/json; charset=utf-8")
		ex.Request.Headers.Set("Content-Language", "en")
		ex.Request.Headers.Set("Accept", "application/json,text/plain")
		ex.Request.Headers.Set("Accept-Language", "en")
		ex.RequestContent.Source = strings.NewReader(`{"name":"jane"}`)
		ex.RequestContent.Length = 15

		_, err = p.Execute(context.Background(), ex)
		require.Nil(t, err)

		req := <-requests
		assert.Equal(t, "application/json;charset=utf-8", req.Header.Get("Content-Type"))
		assert.Equal(t, "en", req.Header.Get("Content-Language"))
		assert.Equal(t, "application/json,text/plain", req.Header.Get("Accept"))
		assert.Equal(t, "en", req.Header.Get("Accept-Language"))
		assert.Equal(t, http.StatusCreated, ex.Response.Status)
	})

	t.Run("will not wait for a body", func(t *testing.T) {
		t.Run("if the request method is HEAD", func(t *testing.T) {
			d := &downstream{serve: respond(nil, "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\n")}
			h := New(ExternalHost("backend"), WithDialer(d))
			defer h.Pool().Close()

			for range 2 {
				ex := newExchange()
				ex.Request.Method = http.MethodHead
				_, err := h.Process(context.Background(), nil, ex)
				require.Nil(t, err)
				assert.Equal(t, http.StatusOK, ex.Response.Status)
				assert.Equal(t, int64(5), ex.ResponseContent.Length)

				rc, ok := ex.ResponseContent.Source.(io.Closer)
				require.True(t, ok)
				require.Nil(t, rc.Close())
				assert.Equal(t, 1, h.Pool().Idle("backend:80"))
			}
			assert.Equal(t, 1, d.Dials())
		})
	})

	t.Run("will reuse connections", func(t *testing.T) {
		t.Run("once the response content is closed", func(t *testing.T) {
			d := &downstream{serve: respond(nil, hello)}
			h := New(ExternalHost("backend"), WithDialer(d))
			defer h.Pool().Close()

			ex := newExchange()
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, 0, h.Pool().Idle("backend:80"))

			rc, ok := ex.ResponseContent.Source.(io.Closer)
			require.True(t, ok)
			require.Nil(t, rc.Close())
			require.Nil(t, rc.Close())
			assert.Equal(t, 1, h.Pool().Idle("backend:80"))

			ex = newExchange()
			_, err = h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, 0, h.Pool().Idle("backend:80"))
			assert.Equal(t, 1, d.Dials())

			b, err := io.ReadAll(ex.ResponseContent.Source)
			require.Nil(t, err)
			assert.Equal(t, "hello", string(b))
		})
	})

	t.Run("will retry", func(t *testing.T) {
		t.Run("if a pooled connection was closed by the peer", func(t *testing.T) {
			d := &downstream{serve: respond(nil, hello)}
			h := New(ExternalHost("backend"), WithDialer(d))
			defer h.Pool().Close()

			client, server := net.Pipe()
			go hangup(server)
			h.Pool().Put("backend:80", NewConn(client))

			ex := newExchange()
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, http.StatusOK, ex.Response.Status)
			assert.Equal(t, 1, d.Dials())
		})
	})

	t.Run("will respond with path not found", func(t *testing.T) {
		t.Run("if every retry hits an empty status line", func(t *testing.T) {
			d := &downstream{serve: hangup}
			h := New(ExternalHost("backend"), WithDialer(d), MaxRetries(3))

			ex := newExchange()
			next, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, pipeline.Proceed, next)
			assert.Equal(t, http.StatusNotFound, ex.Response.Status)
			assert.Equal(t, 4, d.Dials())
		})
	})

	t.Run("will respond with service unavailable", func(t *testing.T) {
		t.Run("if the connection is refused", func(t *testing.T) {
			refused := DialerFunc(func(context.Context, string, string) (net.Conn, error) {
				return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
			})
			h := New(ExternalHost("backend"), WithDialer(refused))

			ex := newExchange()
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, http.StatusServiceUnavailable, ex.Response.Status)
			assert.Equal(t, "Connection refused", ex.Response.Text)
		})

		t.Run("if the downstream sends garbage", func(t *testing.T) {
			d := &downstream{serve: func(c net.Conn) {
				defer c.Close()
				http.ReadRequest(bufio.NewReader(c))
				io.WriteString(c, "garbage\r\n\r\n")
			}}
			h := New(ExternalHost("backend"), WithDialer(d))

			ex := newExchange()
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, http.StatusServiceUnavailable, ex.Response.Status)
			assert.Equal(t, 1, d.Dials())
		})

		t.Run("if the circuit is open", func(t *testing.T) {
			failing := DialerFunc(func(context.Context, string, string) (net.Conn, error) {
				return nil, errors.New("unreachable")
			})
			h := New(ExternalHost("backend"), WithDialer(failing), TripAfter(1))

			ex := newExchange()
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, "unreachable", ex.Response.Text)

			ex = newExchange()
			_, err = h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, http.StatusServiceUnavailable, ex.Response.Status)
			assert.Equal(t, fmt.Sprintf("Circuit open for %s", "backend:80"), ex.Response.Text)
		})
	})

	t.Run("will use the request host", func(t *testing.T) {
		t.Run("if no external host is configured", func(t *testing.T) {
			var addr string
			dialer := DialerFunc(func(_ context.Context, _ string, address string) (net.Conn, error) {
				addr = address
				return nil, errors.New("stop")
			})
			h := New(WithDialer(dialer), ExternalPort(9200))

			ex := newExchange()
			ex.Request.Host = "search"
			_, err := h.Process(context.Background(), nil, ex)
			require.Nil(t, err)
			assert.Equal(t, "search:9200", addr)
		})

		t.Run("and fail without one", func(t *testing.T) {
			h := New()
			_, err := h.Process(context.Background(), nil, newExchange())
			_, ok := pipeline.IsDevel(err)
			assert.True(t, ok)
		})
	})
}

func TestPool(t *testing.T) {
	t.Run("will hand out the most recent connection first", func(t *testing.T) {
		p := NewPool()
		a, b := &Conn{}, &Conn{}
		p.Put("h", a)
		p.Put("h", b)

		c, ok := p.Get("h")
		require.True(t, ok)
		assert.Same(t, b, c)

		c, ok = p.Get("h")
		require.True(t, ok)
		assert.Same(t, a, c)

		_, ok = p.Get("h")
		assert.False(t, ok)
	})
}
