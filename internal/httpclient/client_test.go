// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, f http.HandlerFunc) string {
	t.Helper()
	ls, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)

	s := &http.Server{Handler: f}
	go s.Serve(ls)
	t.Cleanup(func() {
		s.Shutdown(context.Background())
	})
	return fmt.Sprintf("http://%s/", ls.Addr())
}

func TestTimeout(t *testing.T) {
	t.Run("will timeout", func(t *testing.T) {
		t.Run("if the timeout is set to be greater than zero", func(t *testing.T) {
			timeout := 100 * time.Millisecond
			url := serve(t, func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(10 * timeout):
				}
			})

			client := New(Timeout(timeout))
			_, err := client.Get(url)

			var nerr net.Error
			require.ErrorAs(t, err, &nerr)
			assert.True(t, nerr.Timeout())
		})
	})
}

func TestCircuitBreaker(t *testing.T) {
	t.Run("will open the circuit", func(t *testing.T) {
		t.Run("if the configured status codes keep being returned", func(t *testing.T) {
			var hits atomic.Int32
			url := serve(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(http.StatusTeapot)
			})

			client := New(TripAfter(2), TripOn(http.StatusTeapot), OpenStateTimeout(time.Minute))
			for range 2 {
				resp, err := client.Get(url)
				require.Nil(t, err)
				resp.Body.Close()
				assert.Equal(t, http.StatusTeapot, resp.StatusCode)
			}

			_, err := client.Get(url)
			assert.ErrorIs(t, err, gobreaker.ErrOpenState)
			assert.Equal(t, int32(2), hits.Load())
		})
	})

	t.Run("will stay closed", func(t *testing.T) {
		t.Run("if the status codes are not failures", func(t *testing.T) {
			url := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})

			client := New(TripAfter(1))
			for range 3 {
				resp, err := client.Get(url)
				require.Nil(t, err)
				resp.Body.Close()
				assert.Equal(t, http.StatusNotFound, resp.StatusCode)
			}
		})
	})
}

func TestRetry(t *testing.T) {
	t.Run("will retry", func(t *testing.T) {
		t.Run("if the server is temporarily unavailable", func(t *testing.T) {
			var hits atomic.Int32
			url := serve(t, func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) < 3 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			})

			client := New(MaxRetries(3), RetryWait(time.Millisecond, 5*time.Millisecond))
			resp, err := client.Get(url)
			require.Nil(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, int32(3), hits.Load())
		})
	})
}

func TestLogHandler(t *testing.T) {
	t.Run("will log every round trip with the client name", func(t *testing.T) {
		url := serve(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		var buf bytes.Buffer
		client := New(Name("gateways"), LogHandler(slog.NewTextHandler(&buf, nil)))
		resp, err := client.Get(url)
		require.Nil(t, err)
		resp.Body.Close()

		assert.Contains(t, buf.String(), `msg="request sent" http_client=gateways`)
		assert.Contains(t, buf.String(), "http_status_code=204")
	})
}
