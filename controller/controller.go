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

// Package controller holds the process-wide registry of protocol
// controllers: bundles of optional hook callbacks identified by an
// opaque handle, shared by every session the multiplexer spawns.
package controller

import (
	"sync"

	liberr "github.com/nabbar/linesrv/errors"
)

// Max bounds the number of distinct controllers one process can
// register; slot 0 is reserved for the inert controller.
const Max = 10

// Hook names the seven optional callback points a Controller may fill in.
type Hook uint8

const (
	HookInit Hook = iota
	HookRequest
	HookResponse
	HookReset
	HookTimeout
	HookOverload
	HookDestroy
)

// HookFunc is the signature every hook callback shares: it receives the
// session (as an opaque interface{} to avoid an import cycle with the
// session package) and an argument, and returns a response code.
type HookFunc func(session interface{}, arg interface{}) int

// Controller is a bundle of up to seven optional hooks plus whatever
// opaque user data the registrant wants each invocation to see.
type Controller struct {
	Init     HookFunc
	Request  HookFunc
	Response HookFunc
	Reset    HookFunc
	Timeout  HookFunc
	Overload HookFunc
	Destroy  HookFunc
	UserData interface{}
}

func (c Controller) hook(h Hook) HookFunc {
	switch h {
	case HookInit:
		return c.Init
	case HookRequest:
		return c.Request
	case HookResponse:
		return c.Response
	case HookReset:
		return c.Reset
	case HookTimeout:
		return c.Timeout
	case HookOverload:
		return c.Overload
	case HookDestroy:
		return c.Destroy
	default:
		return nil
	}
}

// Handle is the opaque identifier a Registry hands back on registration.
// Handle 0 always names the inert controller.
type Handle int

// Registry is a bounded, append-only table of controllers. Writes only
// happen during Register, which callers MUST finish before handing the
// registry to concurrent readers (the multiplexer's accept loops treat it
// as read-only once running).
type Registry struct {
	mu   sync.RWMutex
	ctrl []Controller
}

// NewRegistry returns a registry with slot 0 already occupied by the
// inert controller.
func NewRegistry() *Registry {
	return &Registry{ctrl: make([]Controller, 1, Max)}
}

// Register stores controller and returns its handle. It fails with
// liberr.RegistryFull once the table holds Max entries; since the inert
// slot 0 counts toward Max, at most Max-1 controllers can be registered.
func (r *Registry) Register(c Controller) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ctrl) >= Max {
		return 0, liberr.New(liberr.RegistryFull, nil, "controller registry is full (max %d)", Max)
	}
	r.ctrl = append(r.ctrl, c)
	return Handle(len(r.ctrl) - 1), nil
}

// Invoke dispatches hook h on the controller named by handle. Handle 0
// is the inert controller and always succeeds with return code 0.
// Request and Response must be set on any non-inert controller; other
// hooks are simply skipped when unset.
func (r *Registry) Invoke(handle Handle, h Hook, session interface{}, arg interface{}) (int, error) {
	if handle == 0 {
		return 0, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(handle) < 0 || int(handle) >= len(r.ctrl) {
		return 0, liberr.New(liberr.BadHandle, nil, "unknown controller handle %d", handle)
	}

	c := r.ctrl[handle]
	if h == HookRequest && c.Request == nil {
		return 0, liberr.New(liberr.BadHook, nil, "controller %d has no request hook", handle)
	}
	if h == HookResponse && c.Response == nil {
		return 0, liberr.New(liberr.BadHook, nil, "controller %d has no response hook", handle)
	}

	fn := c.hook(h)
	if fn == nil {
		return 0, nil
	}
	return fn(session, arg), nil
}

// Len reports how many controllers (including the inert slot 0) are
// currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ctrl)
}
