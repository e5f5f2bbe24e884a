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

// Package logging is the ambient structured logger shared by every
// component of the daemon framework: sockets, sessions, servers and the
// multiplexer all log through this thin logrus wrapper rather than
// reaching for fmt.Printf or the standard log package.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of *logrus.Entry the framework depends on. Keeping
// it as an interface lets tests substitute a recording logger.
type Logger interface {
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type entry struct {
	e *logrus.Entry
}

// New builds a Logger writing JSON lines to w at the given level. Pass
// os.Stderr and logrus.InfoLevel for the framework's default.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.JSONFormatter{})
	return &entry{e: logrus.NewEntry(l)}
}

// Default returns a logger writing to stderr at info level, the fallback
// used whenever a component is built without an explicit Logger.
func Default() Logger {
	return New(os.Stderr, logrus.InfoLevel)
}

func (l *entry) WithField(key string, value interface{}) Logger {
	return &entry{e: l.e.WithField(key, value)}
}

func (l *entry) WithFields(fields map[string]interface{}) Logger {
	return &entry{e: l.e.WithFields(fields)}
}

func (l *entry) WithError(err error) Logger {
	return &entry{e: l.e.WithError(err)}
}

func (l *entry) Debugf(format string, args ...interface{}) { l.e.Debugf(format, args...) }
func (l *entry) Infof(format string, args ...interface{})  { l.e.Infof(format, args...) }
func (l *entry) Warnf(format string, args ...interface{})  { l.e.Warnf(format, args...) }
func (l *entry) Errorf(format string, args ...interface{}) { l.e.Errorf(format, args...) }
