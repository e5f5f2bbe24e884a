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

package protocol_test

import (
	"encoding/json"
	"reflect"

	. "github.com/nabbar/linesrv/network/protocol"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"
)

var _ = Describe("NetworkProtocol", func() {
	DescribeTable("String",
		func(p NetworkProtocol, exp string) {
			Expect(p.String()).To(Equal(exp))
		},
		Entry("unix", NetworkUnix, "unix"),
		Entry("tcp", NetworkTCP, "tcp"),
		Entry("tcp4", NetworkTCP4, "tcp4"),
		Entry("tcp6", NetworkTCP6, "tcp6"),
		Entry("udp", NetworkUDP, "udp"),
		Entry("unixgram", NetworkUnixGram, "unixgram"),
		Entry("empty", NetworkEmpty, ""),
		Entry("out of range", NetworkProtocol(255), ""),
	)

	DescribeTable("Parse",
		func(s string, exp NetworkProtocol) {
			Expect(Parse(s)).To(Equal(exp))
		},
		Entry("lowercase", "tcp", NetworkTCP),
		Entry("uppercase", "TCP", NetworkTCP),
		Entry("mixed case", "TcP", NetworkTCP),
		Entry("padded", "  udp  ", NetworkUDP),
		Entry("quoted", `"unix"`, NetworkUnix),
		Entry("unknown", "http", NetworkEmpty),
		Entry("empty string", "", NetworkEmpty),
	)

	It("round-trips through JSON", func() {
		for _, p := range []NetworkProtocol{NetworkTCP, NetworkUDP, NetworkUnix, NetworkUnixGram} {
			data, err := json.Marshal(p)
			Expect(err).NotTo(HaveOccurred())

			var out NetworkProtocol
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			Expect(out).To(Equal(p))
		}
	})

	It("round-trips through YAML", func() {
		data, err := yaml.Marshal(NetworkTCP)
		Expect(err).NotTo(HaveOccurred())

		var out NetworkProtocol
		Expect(yaml.Unmarshal(data, &out)).To(Succeed())
		Expect(out).To(Equal(NetworkTCP))
	})

	It("exposes IsUnix for PF_LOCAL family members", func() {
		Expect(NetworkUnix.IsUnix()).To(BeTrue())
		Expect(NetworkUnixGram.IsUnix()).To(BeTrue())
		Expect(NetworkTCP.IsUnix()).To(BeFalse())
	})

	Describe("ViperDecoderHook", func() {
		It("decodes a string into a NetworkProtocol", func() {
			hook := ViperDecoderHook()
			var target NetworkProtocol

			v, err := hook(
				reflect.TypeOf(""),
				reflect.TypeOf(target),
				"tcp",
			)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(NetworkTCP))
		})
	})
})
