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

// Package multiplexer is the entrypoint that binds a set of addresses
// across a set of protocol constructors and runs the accept loop: one
// goroutine per listener feeding accepted connections to per-session
// handler goroutines, rather than a literal poll(2) loop -- the
// concurrency model golang.org/x/sync/errgroup is built for.
package multiplexer

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/nabbar/linesrv/controller"
	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/logging"
	"github.com/nabbar/linesrv/server"
	"github.com/nabbar/linesrv/session"
	"github.com/nabbar/linesrv/socket"
)

// ClientCountMax is the default cap on concurrent sessions across all
// listeners of one Multiplexer; the session that would exceed it is
// handed to the overload hook instead of a handler goroutine.
const ClientCountMax = 1024

// Multiplexer owns the Server array and the shared controller registry;
// it is the process-lifetime object the accept loop runs against.
type Multiplexer struct {
	Registry *controller.Registry
	Log      logging.Logger

	// ClientMax caps concurrent sessions across every listener; it
	// defaults to ClientCountMax and must be set before Run.
	ClientMax int

	servers []*server.Server
}

// New returns a Multiplexer with a fresh registry.
func New(log logging.Logger) *Multiplexer {
	if log == nil {
		log = logging.Default()
	}
	return &Multiplexer{
		Registry:  controller.NewRegistry(),
		Log:       log,
		ClientMax: ClientCountMax,
	}
}

// Bind realizes the multiplexer's pre-loop setup: for each constructor
// and each address, create a server, run the constructor, register its
// controller once (on the first address only), and bind+listen. A
// PF_LOCAL constructor produces exactly one server regardless of how
// many addresses were given, since a filesystem path doesn't multiply
// across interfaces the way a port does.
func (m *Multiplexer) Bind(addresses []string, constructors []server.Constructor) error {
	if len(addresses) == 0 {
		addresses = []string{""}
	}

	for _, ctor := range constructors {
		for i, addr := range addresses {
			s := server.New()
			if err := ctor(s); err != nil {
				return liberr.New(liberr.BadState, err, "constructor failed")
			}

			if i == 0 {
				if err := s.RegisterController(m.Registry); err != nil {
					return err
				}
			} else if !s.Family.IsUnix() {
				h, err := m.registeredHandle(s)
				if err != nil {
					return err
				}
				s.ApplyHandle(h)
			}

			if !s.Family.IsUnix() {
				s.Address = addr
			}

			if err := s.InitSocket(); err != nil {
				return err
			}

			m.servers = append(m.servers, s)

			if s.Family.IsUnix() {
				break
			}
		}
	}

	return nil
}

// registeredHandle returns the handle the first server built from the
// same constructor already registered. Since constructors register once
// per Bind iteration (index 0), every subsequent server for that
// constructor reuses the handle of the server immediately preceding it
// in m.servers that shares the same controller -- tracked here via the
// just-registered server itself before it's appended.
func (m *Multiplexer) registeredHandle(s *server.Server) (controller.Handle, error) {
	if len(m.servers) == 0 {
		return 0, liberr.New(liberr.BadState, nil, "no prior server to inherit a controller handle from")
	}
	return m.servers[len(m.servers)-1].Handle(), nil
}

// Run enters the accept loop: one goroutine per listener, each
// accepting connections and spawning a handler goroutine per session,
// until ctx is cancelled or a listener's Accept fails permanently. The
// ClientMax admission cap is shared by every listener, so it bounds the
// whole process the way a descriptor-table limit does; one busy protocol
// can occupy every slot and push the others' sessions to overload.
func (m *Multiplexer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	active := make(chan struct{}, m.ClientMax)

	for _, s := range m.servers {
		s := s
		g.Go(func() error {
			return m.acceptLoop(ctx, s, active)
		})
	}

	return g.Wait()
}

func (m *Multiplexer) acceptLoop(ctx context.Context, s *server.Server, active chan struct{}) error {
	go func() {
		<-ctx.Done()
		_ = s.Destroy()
	}()

	for {
		conn, err := s.Listener().Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				m.Log.WithFields(s.Dump()).WithError(err).Errorf("accept failed on %s", s.Service)
				return err
			}
		}

		select {
		case active <- struct{}{}:
			go func() {
				defer func() { <-active }()
				m.serve(s, conn)
			}()
		default:
			m.overload(s, conn)
		}
	}
}

func (m *Multiplexer) serve(s *server.Server, conn net.Conn) {
	sess := session.New(session.WithLogger(m.Log), session.WithExpire(s.Timeout))

	ep := socket.NewEndpoint(conn, s.Family)
	if err := sess.Accept(ep, m.Registry, s.Handle(), s.Timeout); err != nil {
		m.Log.WithError(err).Errorf("session accept failed")
		_ = conn.Close()
		return
	}

	if err := sess.Handler(); err != nil {
		m.Log.WithError(err).Errorf("session handler failed")
	}
}

// overload invokes the overload hook for a session that would exceed
// ClientMax, then closes it immediately; the listener keeps
// accepting further connections.
func (m *Multiplexer) overload(s *server.Server, conn net.Conn) {
	sess := session.New(session.WithLogger(m.Log))
	ep := socket.NewEndpoint(conn, s.Family)
	_ = sess.Accept(ep, m.Registry, s.Handle(), s.Timeout)

	if _, err := m.Registry.Invoke(s.Handle(), controller.HookOverload, sess, nil); err != nil {
		m.Log.WithError(err).Errorf("overload hook failed")
	}
	_ = sess.Close()
	_ = sess.Destroy()
}

// Servers exposes the bound servers, mainly for tests and introspection
// (e.g. dumping listener addresses once ephemeral ports are resolved).
func (m *Multiplexer) Servers() []*server.Server {
	return m.servers
}
