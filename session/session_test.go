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

package session_test

import (
	"net"
	"testing"
	"time"

	"github.com/nabbar/linesrv/controller"
	"github.com/nabbar/linesrv/network/protocol"
	"github.com/nabbar/linesrv/session"
	"github.com/nabbar/linesrv/socket"
)

func echoController(order *[]string) controller.Controller {
	return controller.Controller{
		Init: func(s, a interface{}) int {
			*order = append(*order, "init")
			s.(*session.Session).SetResponse(220, "220 ready", "")
			return 0
		},
		Request: func(s, a interface{}) int {
			*order = append(*order, "request")
			line := a.(string)
			sess := s.(*session.Session)
			sess.SetResponse(0, line, "")
			return 0
		},
		Response: func(s, a interface{}) int {
			*order = append(*order, "response")
			sess := s.(*session.Session)
			r := sess.Response()
			_, _ = sess.Endpoint().Write([]byte(r.Header + "\r\n"))
			if r.Header == "quit" {
				_ = sess.Close()
			}
			return 0
		},
		Destroy: func(s, a interface{}) int {
			*order = append(*order, "destroy")
			return 0
		},
	}
}

func TestHandlerRunsHooksInOrder(t *testing.T) {
	var order []string
	reg := controller.NewRegistry()
	h, err := reg.Register(echoController(&order))
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	serverSide, clientSide := net.Pipe()
	ep := socket.NewEndpoint(serverSide, protocol.NetworkTCP)

	s := session.New(session.WithExpire(5 * time.Second))
	if err := s.Accept(ep, reg, h, 5*time.Second); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Handler() }()

	clientEp := socket.NewEndpoint(clientSide, protocol.NetworkTCP)
	greeting, err := clientEp.ReadLine()
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if greeting != "220 ready" {
		t.Fatalf("greeting = %q", greeting)
	}

	if _, err := clientEp.Write([]byte("hi\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply, err := clientEp.ReadLine()
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply != "hi" {
		t.Fatalf("reply = %q, want %q", reply, "hi")
	}

	if _, err := clientEp.Write([]byte("quit\r\n")); err != nil {
		t.Fatalf("write quit: %v", err)
	}
	_, _ = clientEp.ReadLine()
	_ = clientEp.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}

	want := []string{"init", "response", "request", "response", "request", "response", "destroy"}
	if len(order) != len(want) {
		t.Fatalf("hook order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("hook order = %v, want %v", order, want)
		}
	}
}

// TestTimeoutHookRunsOnce drives a session whose peer never sends a
// byte: the read deadline expires, the timeout hook fires exactly once,
// and the session ends closed.
func TestTimeoutHookRunsOnce(t *testing.T) {
	var timeouts int
	reg := controller.NewRegistry()
	h, err := reg.Register(controller.Controller{
		Request:  func(s, a interface{}) int { return 0 },
		Response: func(s, a interface{}) int { return 0 },
		Timeout: func(s, a interface{}) int {
			timeouts++
			return 0
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	ep := socket.NewEndpoint(serverSide, protocol.NetworkTCP)

	s := session.New()
	if err := s.Accept(ep, reg, h, 100*time.Millisecond); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Handler() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after read timeout")
	}

	if timeouts != 1 {
		t.Errorf("timeout hook ran %d times, want exactly 1", timeouts)
	}
	if s.State() != session.StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}

// TestTestInjectsWithoutSocket drives the request hook through
// Session.Test on a session that has no endpoint at all: the assertion
// runs against the response code the hook set, and the response hook
// (which would need a socket to write to) stays out of the picture.
func TestTestInjectsWithoutSocket(t *testing.T) {
	var responded bool
	reg := controller.NewRegistry()
	h, err := reg.Register(controller.Controller{
		Request: func(s, a interface{}) int {
			sess := s.(*session.Session)
			if a.(string) == "PING" {
				sess.SetResponse(200, "pong", "")
			} else {
				sess.SetResponse(500, "unknown command", "")
			}
			return 0
		},
		Response: func(s, a interface{}) int {
			responded = true
			return 0
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	s := session.New(session.WithController(reg, h))

	ok, err := s.Test("PING", 200)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if !ok {
		t.Error("Test(PING, 200) = false, want true")
	}

	ok, err = s.Test("BOGUS", 200)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if ok {
		t.Error("Test(BOGUS, 200) = true, want false")
	}

	if responded {
		t.Error("Test must not invoke the response hook")
	}
}

func TestInertSessionHandle(t *testing.T) {
	s := session.New()
	if s.Handle() != 0 {
		t.Errorf("fresh session handle = %d, want 0 (inert)", s.Handle())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	serverSide, _ := net.Pipe()
	ep := socket.NewEndpoint(serverSide, protocol.NetworkTCP)

	reg := controller.NewRegistry()
	s := session.New()
	if err := s.Accept(ep, reg, 0, time.Second); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if s.State() != session.StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
}
