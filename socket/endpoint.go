/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package socket

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/network/protocol"
)

// Endpoint is the concrete Reader+Writer backed by a net.Conn. It
// reproduces the read-side fragmentation handling of a line-oriented
// socket: a read that returns a chunk without a trailing EOL is buffered
// and prefixed onto the next line once one arrives, instead of being
// handed to the caller as a short line.
type Endpoint struct {
	mu sync.Mutex

	conn   net.Conn
	raw    net.Conn // original conn, pre-TLS, for peer credentials
	family protocol.NetworkProtocol

	fragment   string
	fragmented bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	bufSize   int
	closed    bool
	connected bool
}

// NewEndpoint wraps an already-connected or already-accepted net.Conn.
func NewEndpoint(conn net.Conn, family protocol.NetworkProtocol) *Endpoint {
	return &Endpoint{
		conn:      conn,
		raw:       conn,
		family:    family,
		bufSize:   DefaultBufferSize,
		connected: true,
	}
}

// Connected reports whether the peer is still considered connected: it
// goes false once Close has run locally or a read has observed the
// peer's end of the stream closing (io.EOF with no data).
func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// SetBufferSize overrides the per-read buffer size; it must be called
// before the first Read or ReadLine.
func (e *Endpoint) SetBufferSize(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if n > 0 {
		e.bufSize = n
	}
}

func (e *Endpoint) Read(p []byte) (int, error) {
	n, err := e.conn.Read(p)
	return n, ErrorFilter(err)
}

// Write writes the whole buffer or returns an error; a short write from
// the kernel is treated as a failure rather than left for the caller to
// detect by comparing lengths.
func (e *Endpoint) Write(p []byte) (int, error) {
	if d := e.writeTimeout; d > 0 {
		_ = e.conn.SetWriteDeadline(time.Now().Add(d))
	}
	n, err := e.conn.Write(p)
	if err != nil {
		return n, ErrorFilter(err)
	}
	if n != len(p) {
		return n, liberr.New(liberr.IOError, nil, "short write: wrote %d of %d bytes", n, len(p))
	}
	return n, nil
}

// Close is idempotent: closing an already-closed Endpoint is a no-op.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.connected = false
	return ErrorFilter(e.conn.Close())
}

func (e *Endpoint) LocalAddr() net.Addr  { return e.conn.LocalAddr() }
func (e *Endpoint) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// ReadLine returns the next newline-terminated line, reassembling it
// across read-buffer boundaries.
//
// The algorithm: if the last read already produced a complete line (no
// dangling fragment), shift it straight off the queue. Otherwise keep
// reading until a '\n' shows up, split on '\n', glue the first new piece
// onto the pending fragment, and recompute whether the new last piece is
// itself a fragment (it is, unless the read ended exactly on a '\n').
func (e *Endpoint) ReadLine() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for {
		if idx := strings.IndexByte(e.fragment, EOL); idx >= 0 {
			line := e.fragment[:idx]
			rest := e.fragment[idx+1:]
			e.fragment = rest
			e.fragmented = rest != "" && !strings.Contains(rest, "\n")
			return trimEOL(line), nil
		}

		if d := e.readTimeout; d > 0 {
			_ = e.conn.SetReadDeadline(time.Now().Add(d))
		}

		buf := make([]byte, e.bufSize)
		n, err := e.conn.Read(buf)
		if n > 0 {
			e.fragment += string(buf[:n])
			e.fragmented = true
			continue
		}
		if err != nil {
			if err == io.EOF {
				e.connected = false
				if e.fragment != "" {
					frag := e.fragment
					e.fragment = ""
					e.fragmented = false
					return "", liberr.New(liberr.Truncated, err, "peer closed with %d unterminated bytes pending", len(frag))
				}
			}
			return "", ErrorFilter(err)
		}
		if n == 0 {
			return "", fmt.Errorf("read zero bytes without error")
		}
	}
}

// SetTimeout sets the inactivity timeouts: each ReadLine re-arms the
// read deadline before it touches the wire, each Write re-arms the write
// deadline, mirroring SO_RCVTIMEO/SO_SNDTIMEO rather than a single
// wall-clock deadline on the whole connection. Zero disables a side.
func (e *Endpoint) SetTimeout(read, write time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readTimeout = read
	e.writeTimeout = write
	if read <= 0 {
		if err := e.conn.SetReadDeadline(time.Time{}); err != nil {
			return ErrorFilter(err)
		}
	}
	if write <= 0 {
		return ErrorFilter(e.conn.SetWriteDeadline(time.Time{}))
	}
	return nil
}

// StartTLS wraps the connection in a TLS handshake. The handshake
// ordering (whether it happens before or after any greeting) is a policy
// decision left to the caller; Endpoint only performs the handshake when
// asked. isClient selects Dial-side vs Accept-side handshake behavior.
func (e *Endpoint) StartTLS(cfg *tls.Config, isClient bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var tc *tls.Conn
	if isClient {
		tc = tls.Client(e.conn, cfg)
	} else {
		tc = tls.Server(e.conn, cfg)
	}

	if err := tc.Handshake(); err != nil {
		return liberr.New(liberr.IOError, err, "tls handshake failed")
	}

	e.conn = tc
	return nil
}

// Family reports the protocol family the endpoint was created with.
func (e *Endpoint) Family() protocol.NetworkProtocol {
	return e.family
}
