/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

package socket_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	libsck "github.com/nabbar/linesrv/socket"
)

var _ = Describe("Socket Basics", func() {
	Describe("Constants", func() {
		It("has the expected default buffer size", func() {
			Expect(libsck.DefaultBufferSize).To(Equal(32 * 1024))
		})

		It("uses newline as EOL", func() {
			Expect(libsck.EOL).To(Equal(byte('\n')))
		})

		It("fixes the listen backlog at 300", func() {
			Expect(libsck.ListenBacklog).To(Equal(300))
		})
	})

	Describe("ErrorFilter", func() {
		It("passes through a nil error", func() {
			Expect(libsck.ErrorFilter(nil)).To(BeNil())
		})

		It("drops an exact closed-connection error", func() {
			err := fmt.Errorf("use of closed network connection")
			Expect(libsck.ErrorFilter(err)).To(BeNil())
		})

		It("keeps a closed-connection error wrapped with extra context", func() {
			err := fmt.Errorf("read tcp 127.0.0.1:8080->127.0.0.1:54321: use of closed network connection")
			Expect(libsck.ErrorFilter(err)).NotTo(BeNil())
		})

		It("keeps an unrelated error untouched", func() {
			err := fmt.Errorf("connection reset by peer")
			Expect(libsck.ErrorFilter(err)).To(MatchError(err))
		})
	})

	DescribeTable("ConnState.String",
		func(s libsck.ConnState, exp string) {
			Expect(s.String()).To(Equal(exp))
		},
		Entry("Dial", libsck.ConnectionDial, "Dial Connection"),
		Entry("New", libsck.ConnectionNew, "New Connection"),
		Entry("Read", libsck.ConnectionRead, "Read Incoming Stream"),
		Entry("CloseRead", libsck.ConnectionCloseRead, "Close Incoming Stream"),
		Entry("Handler", libsck.ConnectionHandler, "Run HandlerFunc"),
		Entry("Write", libsck.ConnectionWrite, "Write Outgoing Steam"),
		Entry("CloseWrite", libsck.ConnectionCloseWrite, "Close Outgoing Stream"),
		Entry("Close", libsck.ConnectionClose, "Close Connection"),
		Entry("unknown", libsck.ConnState(255), "unknown connection state"),
	)
})
