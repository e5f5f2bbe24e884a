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

// Package errors gives the daemon framework a small error-code hierarchy
// instead of bare fmt.Errorf, compatible with errors.Is/errors.As and able
// to carry a parent cause the way an I/O failure carries the underlying
// syscall error.
package errors

import (
	"errors"
	"fmt"
)

// CodeError classifies a framework-level failure, independent of its
// textual message, so callers can switch on the failure kind.
type CodeError uint16

const (
	// IOError wraps a failed read/write/accept/bind/connect syscall.
	IOError CodeError = 100 + iota
	// BadState signals an operation invoked from an incompatible session state.
	BadState
	// Timeout signals a read/select that exceeded its deadline.
	Timeout
	// Truncated signals a peer that closed the stream with an unterminated line pending.
	Truncated
	// BadHandle signals an unknown or out-of-range controller handle.
	BadHandle
	// BadHook signals an attempt to invoke a hook that a controller did not register.
	BadHook
	// RegistryFull signals the controller registry has reached controller.Max entries.
	RegistryFull
	// UnknownUser signals a pre-flight privilege drop naming a user that does not exist.
	UnknownUser
	// UnknownGroup signals a pre-flight privilege drop naming a group that does not exist.
	UnknownGroup
	// Fatal signals an unrecoverable condition that should abort the process.
	Fatal
)

var codeText = map[CodeError]string{
	IOError:      "i/o error",
	BadState:     "invalid state for operation",
	Timeout:      "operation timed out",
	Truncated:    "line truncated, no terminator found",
	BadHandle:    "unknown controller handle",
	BadHook:      "hook not registered for controller",
	RegistryFull: "controller registry is full",
	UnknownUser:  "unknown user",
	UnknownGroup: "unknown group",
	Fatal:        "fatal error",
}

func (c CodeError) String() string {
	if s, ok := codeText[c]; ok {
		return s
	}
	return "unknown error"
}

// Error is a CodeError bound to an optional message and parent cause.
type Error struct {
	code   CodeError
	msg    string
	parent error
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code.String(), e.msg)
}

func (e *Error) Unwrap() error {
	return e.parent
}

// Code returns the classification of the error.
func (e *Error) Code() CodeError {
	return e.code
}

// Is reports whether target carries the same CodeError, so callers can
// write errors.Is(err, errors.New(errors.Timeout, nil, "")).
func (e *Error) Is(target error) bool {
	var o *Error
	if errors.As(target, &o) {
		return o.code == e.code
	}
	return false
}

// New builds an Error with an optional formatted message and an optional
// parent cause. Pass a nil parent when there is no underlying error to wrap.
func New(code CodeError, parent error, format string, args ...interface{}) *Error {
	return &Error{
		code:   code,
		msg:    fmt.Sprintf(format, args...),
		parent: parent,
	}
}

// Code extracts the CodeError of err, or 0 if err is nil or not an *Error.
func Code(err error) CodeError {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return 0
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code CodeError) bool {
	for err != nil {
		var e *Error
		if errors.As(err, &e) && e.code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
