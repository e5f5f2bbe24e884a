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

package config_test

import (
	libprm "github.com/nabbar/linesrv/file/perm"
	libptc "github.com/nabbar/linesrv/network/protocol"
	"github.com/nabbar/linesrv/socket/config"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Client Configuration", func() {
	It("zero-values to an empty, TLS-disabled client", func() {
		var c config.Client
		Expect(c.Network).To(Equal(libptc.NetworkProtocol(0)))
		Expect(c.Address).To(BeEmpty())
		Expect(c.TLS.Enabled).To(BeFalse())
	})

	It("validates a TCP client with a host:port address", func() {
		c := config.Client{Network: libptc.NetworkTCP, Address: "localhost:8080"}
		expectNoValidationError(c.Validate())
	})

	It("validates a Unix client with a path address", func() {
		c := config.Client{Network: libptc.NetworkUnix, Address: "/tmp/test.sock"}
		expectNoValidationError(c.Validate())
	})

	It("rejects the zero-value protocol", func() {
		c := config.Client{Network: libptc.NetworkProtocol(0), Address: "localhost:8080"}
		expectValidationError(c.Validate(), config.ErrInvalidProtocol)
	})

	It("rejects TLS on a UDP client", func() {
		c := config.Client{Network: libptc.NetworkUDP, Address: "localhost:9000"}
		c.TLS.Enabled = true
		c.TLS.ServerName = "localhost"
		expectValidationError(c.Validate(), config.ErrInvalidTLSConfig)
	})

	It("rejects TLS on a Unix client", func() {
		c := config.Client{Network: libptc.NetworkUnix, Address: "/tmp/test.sock"}
		c.TLS.Enabled = true
		c.TLS.ServerName = "localhost"
		expectValidationError(c.Validate(), config.ErrInvalidTLSConfig)
	})

	It("requires a server name once TLS is enabled", func() {
		c := config.Client{Network: libptc.NetworkTCP, Address: "localhost:8080"}
		c.TLS.Enabled = true
		Expect(c.Validate()).To(HaveOccurred())
	})
})

var _ = Describe("Server Configuration", func() {
	It("zero-values to an empty, permissionless server", func() {
		var s config.Server
		Expect(s.Network).To(Equal(libptc.NetworkProtocol(0)))
		Expect(s.Address).To(BeEmpty())
		Expect(s.PermFile).To(Equal(libprm.Perm(0)))
		Expect(s.GroupPerm).To(Equal(int32(0)))
		Expect(s.TLS.Enabled).To(BeFalse())
	})

	It("validates a TCP server", func() {
		s := config.Server{Network: libptc.NetworkTCP, Address: ":8080"}
		expectNoValidationError(s.Validate())
	})

	It("validates a unixgram server", func() {
		s := config.Server{Network: libptc.NetworkUnixGram, Address: "/tmp/test.sock"}
		expectNoValidationError(s.Validate())
	})

	It("accepts MaxGID as the boundary", func() {
		s := config.Server{Network: libptc.NetworkTCP, Address: ":8080", GroupPerm: config.MaxGID}
		expectNoValidationError(s.Validate())
	})

	It("rejects MaxGID + 1", func() {
		s := config.Server{Network: libptc.NetworkTCP, Address: ":8080", GroupPerm: config.MaxGID + 1}
		expectValidationError(s.Validate(), config.ErrInvalidGroup)
	})

	It("rejects the zero-value protocol", func() {
		s := config.Server{Network: libptc.NetworkProtocol(0), Address: ":8080"}
		expectValidationError(s.Validate(), config.ErrInvalidProtocol)
	})
})

var _ = Describe("Error Constants", func() {
	It("defines ErrInvalidProtocol", func() {
		Expect(config.ErrInvalidProtocol).To(MatchError("invalid protocol"))
	})

	It("defines ErrInvalidTLSConfig", func() {
		Expect(config.ErrInvalidTLSConfig).To(MatchError("invalid TLS config"))
	})

	It("defines ErrInvalidGroup", func() {
		Expect(config.ErrInvalidGroup).To(MatchError("invalid unix group"))
	})

	It("fixes MaxGID at 32767", func() {
		Expect(config.MaxGID).To(BeNumerically("==", 32767))
	})
})
