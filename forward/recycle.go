// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package forward

import (
	"io"
	"net/http"
	"sync"
)

// Recycle is the downstream response body. Closing it returns the
// underlying connection to the pool instead of closing the connection.
type Recycle struct {
	pool *Pool
	host string
	conn *Conn
	body io.ReadCloser

	// reusable is false when the downstream asked for the connection
	// to be closed
	reusable bool

	once sync.Once
}

func newRecycle(pool *Pool, host string, conn *Conn, rsp *http.Response) *Recycle {
	return &Recycle{
		pool:     pool,
		host:     host,
		conn:     conn,
		body:     rsp.Body,
		reusable: !rsp.Close,
	}
}

// Read implements the [io.Reader] interface.
func (r *Recycle) Read(b []byte) (int, error) {
	if r.body == nil {
		return 0, io.ErrClosedPipe
	}
	return r.body.Read(b)
}

// Close implements the [io.Closer] interface. Any unread content is
// drained so the connection is ready for the next request.
func (r *Recycle) Close() error {
	var err error
	r.once.Do(func() {
		_, err = io.Copy(io.Discard, r.body)
		cerr := r.body.Close()
		if err == nil {
			err = cerr
		}
		r.body = nil

		if err != nil || !r.reusable {
			r.conn.Close()
			return
		}
		r.pool.Put(r.host, r.conn)
	})
	return err
}
