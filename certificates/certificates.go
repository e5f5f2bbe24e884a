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

// Package certificates builds *tls.Config values for the socket package's
// optional TLS overlay: certificate pairs, root/client CAs and a client
// auth policy, all hot off a viper-decoded Config.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ClientAuth mirrors tls.ClientAuthType under a name that survives
// (un)marshalling through viper/json/yaml without importing crypto/tls
// into config files.
type ClientAuth uint8

const (
	NoClientCert ClientAuth = iota
	RequestClientCert
	RequireAnyClientCert
	VerifyClientCertIfGiven
	RequireAndVerifyClientCert
)

func (a ClientAuth) TLS() tls.ClientAuthType {
	return tls.ClientAuthType(a)
}

// Cert is a certificate/key pair, either inline PEM or on-disk paths.
type Cert struct {
	CertFile string `mapstructure:"certFile" json:"certFile" yaml:"certFile" toml:"certFile"`
	KeyFile  string `mapstructure:"keyFile" json:"keyFile" yaml:"keyFile" toml:"keyFile"`
	CertPEM  string `mapstructure:"certPem" json:"certPem" yaml:"certPem" toml:"certPem"`
	KeyPEM   string `mapstructure:"keyPem" json:"keyPem" yaml:"keyPem" toml:"keyPem"`
}

func (c Cert) keyPair() (tls.Certificate, error) {
	if c.CertFile != "" && c.KeyFile != "" {
		return tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	}
	return tls.X509KeyPair([]byte(c.CertPEM), []byte(c.KeyPEM))
}

// CAFile is a single root or client CA source, again inline-or-path.
type CAFile struct {
	File string `mapstructure:"file" json:"file" yaml:"file" toml:"file"`
	PEM  string `mapstructure:"pem" json:"pem" yaml:"pem" toml:"pem"`
}

func (c CAFile) load(pool *x509.CertPool) error {
	var b []byte
	var err error

	if c.File != "" {
		b, err = os.ReadFile(c.File)
		if err != nil {
			return err
		}
	} else {
		b = []byte(c.PEM)
	}

	if !pool.AppendCertsFromPEM(b) {
		return fmt.Errorf("no certificate could be parsed from %q", c.File)
	}
	return nil
}

// Config is the viper-decodable shape that TLS() turns into the
// *tls.Config a server's TLS listener or Endpoint.StartTLS uses.
type Config struct {
	Enabled    bool       `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	ServerName string     `mapstructure:"serverName" json:"serverName" yaml:"serverName" toml:"serverName"`
	VersionMin uint16     `mapstructure:"versionMin" json:"versionMin" yaml:"versionMin" toml:"versionMin"`
	VersionMax uint16     `mapstructure:"versionMax" json:"versionMax" yaml:"versionMax" toml:"versionMax"`
	AuthClient ClientAuth `mapstructure:"authClient" json:"authClient" yaml:"authClient" toml:"authClient"`
	RootCA     []CAFile   `mapstructure:"rootCA" json:"rootCA" yaml:"rootCA" toml:"rootCA"`
	ClientCA   []CAFile   `mapstructure:"clientCA" json:"clientCA" yaml:"clientCA" toml:"clientCA"`
	Certs      []Cert     `mapstructure:"certs" json:"certs" yaml:"certs" toml:"certs"`
}

// TLS builds the standard-library configuration this Config describes.
// It is a no-op (nil, nil) when TLS is disabled, which lets callers do
// `cfg, err := c.TLS(); cfg != nil` without a separate Enabled check.
func (c Config) TLS() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}

	t := &tls.Config{
		ServerName: c.ServerName,
		ClientAuth: c.AuthClient.TLS(),
	}

	if c.VersionMin != 0 {
		t.MinVersion = c.VersionMin
	}
	if c.VersionMax != 0 {
		t.MaxVersion = c.VersionMax
	}

	for _, cert := range c.Certs {
		kp, err := cert.keyPair()
		if err != nil {
			return nil, fmt.Errorf("loading certificate pair: %w", err)
		}
		t.Certificates = append(t.Certificates, kp)
	}

	if len(c.RootCA) > 0 {
		pool := x509.NewCertPool()
		for _, ca := range c.RootCA {
			if err := ca.load(pool); err != nil {
				return nil, fmt.Errorf("loading root CA: %w", err)
			}
		}
		t.RootCAs = pool
	}

	if len(c.ClientCA) > 0 {
		pool := x509.NewCertPool()
		for _, ca := range c.ClientCA {
			if err := ca.load(pool); err != nil {
				return nil, fmt.Errorf("loading client CA: %w", err)
			}
		}
		t.ClientCAs = pool
	}

	return t, nil
}

// Validate reports whether the certificate material referenced by this
// Config can actually be loaded, without keeping the resulting
// *tls.Config around.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	_, err := c.TLS()
	return err
}
