/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

package certificates_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/linesrv/certificates"
)

// selfSigned produces a throwaway ed25519 certificate/key pair in PEM
// form, good enough to exercise Config.TLS without touching disk.
func selfSigned() (certPEM, keyPEM string) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "linesrv-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	Expect(err).NotTo(HaveOccurred())

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	Expect(err).NotTo(HaveOccurred())

	var cb, kb bytes.Buffer
	Expect(pem.Encode(&cb, &pem.Block{Type: "CERTIFICATE", Bytes: der})).To(Succeed())
	Expect(pem.Encode(&kb, &pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})).To(Succeed())
	return cb.String(), kb.String()
}

var _ = Describe("Config", func() {
	It("is a no-op when disabled", func() {
		cfg := certificates.Config{Enabled: false}
		t, err := cfg.TLS()
		Expect(err).NotTo(HaveOccurred())
		Expect(t).To(BeNil())
	})

	It("builds a usable tls.Config from an inline PEM pair", func() {
		certPEM, keyPEM := selfSigned()
		cfg := certificates.Config{
			Enabled: true,
			Certs:   []certificates.Cert{{CertPEM: certPEM, KeyPEM: keyPEM}},
		}

		t, err := cfg.TLS()
		Expect(err).NotTo(HaveOccurred())
		Expect(t.Certificates).To(HaveLen(1))
	})

	It("rejects an unparsable root CA", func() {
		cfg := certificates.Config{
			Enabled: true,
			RootCA:  []certificates.CAFile{{PEM: "not a certificate"}},
		}
		_, err := cfg.TLS()
		Expect(err).To(HaveOccurred())
	})

	It("maps AuthClient onto the standard library enum", func() {
		Expect(certificates.RequireAndVerifyClientCert.TLS()).To(Equal(tls.RequireAndVerifyClientCert))
	})

	It("Validate mirrors TLS()'s error without keeping the config", func() {
		cfg := certificates.Config{Enabled: true, Certs: []certificates.Cert{{CertPEM: "bad", KeyPEM: "bad"}}}
		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
