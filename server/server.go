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

// Package server holds one listening endpoint's configuration plus the
// controller it dispatches accepted connections to. A multiplexer owns
// an array of these, one per (constructor, bind address) pair.
package server

import (
	"crypto/tls"
	"net"
	"strconv"
	"time"

	"github.com/nabbar/linesrv/certificates"
	"github.com/nabbar/linesrv/controller"
	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/file/perm"
	"github.com/nabbar/linesrv/network/protocol"
	"github.com/nabbar/linesrv/socket"
)

// Server is the binding configuration and runtime state for a single
// listening socket.
type Server struct {
	Owner   string
	Group   string
	Service string

	Family  protocol.NetworkProtocol
	Address string
	Port    int

	FileMode perm.Perm
	TLS      certificates.Config
	Timeout  time.Duration

	Controller controller.Controller

	handle   controller.Handle
	listener net.Listener
}

// New returns a Server with the framework defaults: uid "nobody", gid
// "nogroup", service "undef-proto", port -1 (unset), mode 0660, inet
// family, a five-minute timeout.
func New() *Server {
	mode, _ := perm.Parse("0660")
	return &Server{
		Owner:    "nobody",
		Group:    "nogroup",
		Service:  "undef-proto",
		Family:   protocol.NetworkTCP,
		Port:     -1,
		FileMode: mode,
		Timeout:  300 * time.Second,
	}
}

// Constructor customizes a freshly created Server: setting its address
// family, port/path, TLS flag, timeout and controller. The multiplexer
// runs one Constructor per (server, bind address) pair before binding.
type Constructor func(*Server) error

// Handle returns the controller handle this server resolved to once
// registered; it is 0 (inert) until RegisterController runs.
func (s *Server) Handle() controller.Handle {
	return s.handle
}

// ApplyHandle sets a controller handle inherited from a sibling server
// built by the same constructor, for the "register once, reuse on every
// other address" rule the multiplexer applies.
func (s *Server) ApplyHandle(h controller.Handle) {
	s.handle = h
}

// RegisterController registers s.Controller into reg, once, and
// remembers the resulting handle. A second call is a no-op, matching
// the multiplexer's "register once, on the first address only" rule for
// constructors that produce several Server instances (one per address).
func (s *Server) RegisterController(reg *controller.Registry) error {
	if s.handle != 0 {
		return nil
	}
	h, err := reg.Register(s.Controller)
	if err != nil {
		return err
	}
	s.handle = h
	return nil
}

// InitSocket binds and starts listening on s.Address/s.Port (or the
// PF_LOCAL path held in Address when Family.IsUnix()), applying the
// Owner/Group/FileMode credential triple to PF_LOCAL socket paths.
func (s *Server) InitSocket() error {
	addr := s.Address
	if !s.Family.IsUnix() {
		addr = net.JoinHostPort(s.Address, portString(s.Port))
	}

	l, err := socket.Listen(s.Family, addr, s.Owner, s.Group, s.FileMode)
	if err != nil {
		return liberr.New(liberr.IOError, err, "listening on %s", addr)
	}

	if s.TLS.Enabled {
		tc, err := s.TLS.TLS()
		if err != nil {
			return liberr.New(liberr.BadState, err, "building TLS config")
		}
		l = tls.NewListener(l, tc)
	}

	s.listener = l
	return nil
}

// Listener exposes the bound listener for the multiplexer's accept loop.
func (s *Server) Listener() net.Listener {
	return s.listener
}

// Dump renders the server's configuration as structured logging fields,
// used when a listener misbehaves and its state needs to land in the log.
func (s *Server) Dump() map[string]interface{} {
	f := map[string]interface{}{
		"service": s.Service,
		"owner":   s.Owner,
		"group":   s.Group,
		"family":  s.Family.String(),
		"address": s.Address,
		"port":    s.Port,
		"mode":    s.FileMode.String(),
		"timeout": s.Timeout.String(),
		"tls":     s.TLS.Enabled,
		"handle":  int(s.handle),
	}
	if s.listener != nil {
		f["listen"] = s.listener.Addr().String()
	}
	return f
}

// Destroy closes the listening socket. It is safe to call on a Server
// whose InitSocket never ran.
func (s *Server) Destroy() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func portString(port int) string {
	if port < 0 {
		return "0"
	}
	return strconv.Itoa(port)
}
