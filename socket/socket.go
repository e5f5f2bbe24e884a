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

// Package socket is the line-buffered bidirectional endpoint underneath a
// Session: it owns the net.Conn, the fragmentation-aware line reader and
// the optional TLS overlay, for both PF_INET and PF_LOCAL families.
package socket

import (
	"io"
	"net"
	"strings"
)

const (
	// DefaultBufferSize is the read buffer used when none is configured.
	DefaultBufferSize = 32 * 1024
	// EOL is the line terminator recognized by ReadLine. ReadLine strips it,
	// together with a '\r' directly before it; returned lines carry no
	// terminator.
	EOL byte = '\n'
)

// ConnState marks where in a connection's life a callback fired.
type ConnState uint8

const (
	ConnectionDial ConnState = iota
	ConnectionNew
	ConnectionRead
	ConnectionCloseRead
	ConnectionHandler
	ConnectionWrite
	ConnectionCloseWrite
	ConnectionClose
)

func (c ConnState) String() string {
	switch c {
	case ConnectionDial:
		return "Dial Connection"
	case ConnectionNew:
		return "New Connection"
	case ConnectionRead:
		return "Read Incoming Stream"
	case ConnectionCloseRead:
		return "Close Incoming Stream"
	case ConnectionHandler:
		return "Run HandlerFunc"
	case ConnectionWrite:
		return "Write Outgoing Steam"
	case ConnectionCloseWrite:
		return "Close Outgoing Stream"
	case ConnectionClose:
		return "Close Connection"
	default:
		return "unknown connection state"
	}
}

// ErrorFilter drops the one error that always follows a deliberate
// Endpoint.Close from a concurrent reader/writer, so shutdown paths don't
// log a spurious failure. Only an exact match is filtered: a wrapped
// variant ("read tcp ...: use of closed network connection") still
// carries useful context and is returned unchanged.
func ErrorFilter(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == "use of closed network connection" {
		return nil
	}
	return err
}

// Reader is what a Session reads requests from.
type Reader interface {
	io.Reader
	io.Closer
	// ReadLine returns the next line with its trailing EOL (and CR, if
	// present) stripped. It blocks until a full line is available, the
	// connection is closed, or the read deadline (if any) expires.
	ReadLine() (string, error)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Writer is what a Session writes responses to.
type Writer interface {
	io.Writer
	io.Closer
}

// HandlerFunc is invoked once per accepted or dialed connection.
type HandlerFunc func(r Reader, w Writer)

// FuncInfo reports a connection state transition.
type FuncInfo func(local, remote net.Addr, state ConnState)

// FuncError reports a non-nil, non-filtered error encountered on a connection.
type FuncError func(err error)

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}
