// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package forward

import (
	"bufio"
	"net"
	"sync"
)

// Conn is a downstream connection which can be reused across requests.
type Conn struct {
	net.Conn

	r *bufio.Reader
}

// NewConn wraps c for pooling.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		Conn: c,
		r:    bufio.NewReader(c),
	}
}

// Pool keeps idle connections per destination host. It has no size
// limit and never evicts, a connection leaves the pool only when it is
// handed out again.
type Pool struct {
	mu   sync.Mutex
	idle map[string][]*Conn
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{idle: make(map[string][]*Conn)}
}

// Get returns the most recently stored idle connection for host.
func (p *Pool) Get(host string) (*Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns := p.idle[host]
	if len(conns) == 0 {
		return nil, false
	}
	c := conns[len(conns)-1]
	conns[len(conns)-1] = nil
	p.idle[host] = conns[:len(conns)-1]
	return c, true
}

// Put stores c as idle for host.
func (p *Pool) Put(host string, c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.idle[host] = append(p.idle[host], c)
}

// Idle returns the number of idle connections stored for host.
func (p *Pool) Idle(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.idle[host])
}

// Close closes every idle connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for host, conns := range p.idle {
		for _, c := range conns {
			c.Close()
		}
		delete(p.idle, host)
	}
	return nil
}
