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

// Package session drives one accepted (or dialed) connection through its
// whole life: greeting, a read-dispatch-respond loop with an inactivity
// timeout, and a strictly ordered sequence of controller hook calls.
package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nabbar/linesrv/controller"
	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/logging"
	"github.com/nabbar/linesrv/network/protocol"
	"github.com/nabbar/linesrv/socket"
)

// State names a point in the session lifecycle. Timeout is transient: a
// handler loop never idles there, it runs the timeout hook and moves on
// to Closed in the same breath.
type State uint8

const (
	StateUndef State = iota
	StateGreeting
	StateOpen
	StateRead
	StateIdle
	StateWrite
	StateTimeout
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUndef:
		return "undef"
	case StateGreeting:
		return "greeting"
	case StateOpen:
		return "open"
	case StateRead:
		return "read"
	case StateIdle:
		return "idle"
	case StateWrite:
		return "write"
	case StateTimeout:
		return "timeout"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Response is the structured reply a request hook builds and a response
// hook serializes. AsIs, when true, tells the response hook the request
// hook already wrote directly to the socket.
type Response struct {
	Code   int
	Header string
	Body   string
	AsIs   bool
}

func (r *Response) reset() {
	r.Code = 0
	r.Header = ""
	r.Body = ""
	r.AsIs = false
}

// Identity is the authenticated user/group set attached to a session;
// it is left unpopulated for protocols with no auth step.
type Identity struct {
	User   string
	Groups []string
}

// Session is one connection's worth of state: its socket, identity,
// timing, protocol bookkeeping and the opaque data its controller wants
// to carry between hook calls.
type Session struct {
	mu sync.Mutex

	id       string
	endpoint *socket.Endpoint
	log      logging.Logger

	registry      *controller.Registry
	handle        controller.Handle
	protocolState int

	identity Identity

	start  time.Time
	expire time.Duration

	state State

	errCount int
	argv     []string
	context  []string
	response Response

	data interface{}
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithLogger attaches a logger; Default() is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithExpire sets the session's recorded inactivity timeout. It is not
// applied to any endpoint by itself: Accept replaces it with the timeout
// it installs as the endpoint's read timeout.
func WithExpire(d time.Duration) Option {
	return func(s *Session) { s.expire = d }
}

// WithController wires a registry and controller handle without going
// through Accept or Connect, for sessions that never touch a socket
// (notably Test-driven controller unit tests).
func WithController(registry *controller.Registry, handle controller.Handle) Option {
	return func(s *Session) {
		s.registry = registry
		s.handle = handle
	}
}

// New allocates a Session in state Open, with empty argv/context/identity
// and an inert controller handle (outbound default; Accept overwrites it).
func New(opts ...Option) *Session {
	s := &Session{
		id:     uuid.NewString(),
		state:  StateOpen,
		start:  time.Now(),
		expire: 300 * time.Second,
		log:    logging.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithField("session", s.id)
	return s
}

// ID returns the session's correlation identifier, attached to every
// log line the session or its controller hooks emit through Logger().
func (s *Session) ID() string {
	return s.id
}

// Logger exposes the session-scoped logger for controller hooks that
// want to log with the same correlation id as the session's own lines.
func (s *Session) Logger() logging.Logger {
	return s.log
}

// writeTimeout is the fixed send-side timeout applied to every inbound
// session; only the receive side follows the server's configuration.
const writeTimeout = 60 * time.Second

// Accept wires the session to an already-accepted endpoint plus the
// owning server's controller handle, and applies the server's read
// timeout together with the fixed 60s write timeout.
func (s *Session) Accept(ep *socket.Endpoint, registry *controller.Registry, handle controller.Handle, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endpoint = ep
	s.registry = registry
	s.handle = handle
	s.expire = timeout

	if err := ep.SetTimeout(timeout, writeTimeout); err != nil {
		return liberr.New(liberr.IOError, err, "setting session timeout")
	}
	return nil
}

// Connect dials out and marks the resulting session inert (handle 0):
// outbound sessions never invoke protocol hooks.
func (s *Session) Connect(ctx context.Context, registry *controller.Registry, family protocol.NetworkProtocol, address string, timeout time.Duration) error {
	ep, err := socket.Dial(ctx, family, address, timeout)
	if err != nil {
		return liberr.New(liberr.IOError, err, "dialing %s", address)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoint = ep
	s.registry = registry
	s.handle = 0
	return nil
}

// Handle returns the session's controller handle: 0 for inert
// (outbound) sessions, or the handle copied from the accepting server.
func (s *Session) Handle() controller.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Response exposes the current structured response, for controllers
// that build it with SetResponse rather than returning a plain code.
func (s *Session) Response() Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response
}

// SetResponse is the response_set helper request hooks are expected to
// call to populate code/header/body (or to mark the reply as_is).
func (s *Session) SetResponse(code int, header, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response.Code = code
	s.response.Header = header
	s.response.Body = body
}

// SetAsIs marks the response as already written to the socket by the
// request hook, so the response hook skips serialization.
func (s *Session) SetAsIs(asIs bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response.AsIs = asIs
}

// Endpoint exposes the underlying socket for hooks that need to read or
// write beyond the request/response contract.
func (s *Session) Endpoint() *socket.Endpoint {
	return s.endpoint
}

// ProtocolState returns the controller-owned protocol state integer.
func (s *Session) ProtocolState() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolState
}

// SetProtocolState stores the controller-owned protocol state integer,
// carried between hook invocations of the same session.
func (s *Session) SetProtocolState(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocolState = v
}

// Data returns the opaque per-session value a controller stashed with
// SetData, or nil.
func (s *Session) Data() interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// SetData attaches an opaque per-session value for the controller; it is
// released when the session is destroyed.
func (s *Session) SetData(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = v
}

// Identity returns the authenticated user/group set, empty until an
// auth-capable controller populates it.
func (s *Session) Identity() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// SetIdentity records the authenticated user and groups.
func (s *Session) SetIdentity(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// Start reports when the session was created.
func (s *Session) Start() time.Time {
	return s.start
}

// Argv returns the request lines received so far, oldest first.
func (s *Session) Argv() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.argv...)
}

// Context returns the controller-owned context buffer.
func (s *Session) Context() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.context...)
}

// AppendContext pushes a line onto the controller-owned context buffer,
// used by multi-line commands that accumulate input across requests.
func (s *Session) AppendContext(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = append(s.context, line)
}

// ResetContext clears the context buffer.
func (s *Session) ResetContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = nil
}

// ErrorCount reports how many request hooks have failed since the last
// Reset.
func (s *Session) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errCount
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// ProcessRequest reads one line, resets the response, and runs the
// request hook followed unconditionally by the response hook -- even
// when the request hook itself fails, so the protocol can still emit an
// error reply. A read timeout moves the session to StateTimeout and
// returns nil (not an error): the caller's loop is expected to check
// s.State() afterwards. A peer disconnect also returns nil and moves the
// session to StateIdle, which ends the loop.
func (s *Session) ProcessRequest() error {
	line, err := s.endpoint.ReadLine()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			s.setState(StateTimeout)
			return nil
		}
		if !s.endpoint.Connected() {
			s.setState(StateIdle)
			return nil
		}
		return liberr.New(liberr.IOError, err, "reading request line")
	}

	s.mu.Lock()
	s.response.reset()
	s.argv = append(s.argv, line)
	s.mu.Unlock()

	reqCode, reqErr := s.registry.Invoke(s.handle, controller.HookRequest, s, line)
	if reqErr != nil {
		s.mu.Lock()
		s.errCount++
		s.mu.Unlock()
	}

	if _, err := s.registry.Invoke(s.handle, controller.HookResponse, s, reqCode); err != nil {
		return liberr.New(liberr.BadHook, err, "response hook failed")
	}

	return nil
}

// Handler is the per-connection driver: init hook, one response-hook
// invocation to emit the greeting the init hook queued, then
// process-request in a loop while the session stays in StateRead, then
// the timeout hook if applicable, then close and destroy. It returns
// once the connection is fully torn down, which is where a detached
// handler task ends.
func (s *Session) Handler() error {
	s.setState(StateGreeting)

	if _, err := s.registry.Invoke(s.handle, controller.HookInit, s, nil); err != nil {
		s.log.WithError(err).Errorf("init hook failed")
	}
	if s.Response().Code != 0 || s.Response().Header != "" {
		if _, err := s.registry.Invoke(s.handle, controller.HookResponse, s, 0); err != nil {
			s.log.WithError(err).Errorf("greeting response failed")
		}
	}

	s.setState(StateRead)

	for s.State() == StateRead {
		if err := s.ProcessRequest(); err != nil {
			s.log.WithError(err).Errorf("process request failed")
			break
		}
	}

	if s.State() == StateTimeout && s.endpoint.Connected() {
		if _, err := s.registry.Invoke(s.handle, controller.HookTimeout, s, nil); err != nil {
			s.log.WithError(err).Errorf("timeout hook failed")
		}
	}

	if err := s.Close(); err != nil {
		s.log.WithError(err).Errorf("close failed")
	}
	return s.Destroy()
}

// Reset zeroes the error counter and runs the controller's reset hook.
func (s *Session) Reset() error {
	s.mu.Lock()
	s.errCount = 0
	s.mu.Unlock()
	_, err := s.registry.Invoke(s.handle, controller.HookReset, s, nil)
	return err
}

// Close is idempotent: a second call is logged, not an error. It
// truncates identity and closes the socket.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		s.log.Warnf("session already closed")
		return nil
	}

	s.identity = Identity{}
	s.state = StateClosed

	if s.endpoint != nil {
		return s.endpoint.Close()
	}
	return nil
}

// Destroy runs the destroy hook and releases owned containers. It
// requires the session to be Closed or still Open (never mid-read).
func (s *Session) Destroy() error {
	st := s.State()
	if st != StateClosed && st != StateOpen {
		return liberr.New(liberr.BadState, nil, "destroy called from state %s", st)
	}

	_, err := s.registry.Invoke(s.handle, controller.HookDestroy, s, nil)

	s.mu.Lock()
	s.argv = nil
	s.context = nil
	s.data = nil
	s.mu.Unlock()

	return err
}

// Test injects line into the request hook directly (bypassing the
// socket) and asserts the resulting response code equals expected; it
// exists for controller unit tests, so the response hook -- which would
// try to serialize to a socket the session doesn't have -- is not run.
func (s *Session) Test(line string, expected int) (bool, error) {
	s.mu.Lock()
	s.response.reset()
	s.mu.Unlock()

	if _, err := s.registry.Invoke(s.handle, controller.HookRequest, s, line); err != nil {
		return false, err
	}
	return s.Response().Code == expected, nil
}
