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

// Package config holds the viper-decodable dial/listen configuration for
// the Client and Server sides of a socket connection: network family,
// address, PF_LOCAL permissions, and an optional TLS overlay.
package config

import (
	"errors"
	"fmt"
	"runtime"

	libval "github.com/go-playground/validator/v10"

	"github.com/nabbar/linesrv/certificates"
	"github.com/nabbar/linesrv/file/perm"
	"github.com/nabbar/linesrv/network/protocol"
)

// MaxGID is the largest unix group id this package will accept for
// GroupPerm; it matches the historical 16-bit gid_t ceiling.
const MaxGID int32 = 32767

var (
	ErrInvalidProtocol  = errors.New("invalid protocol")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidTLSConfig = errors.New("invalid TLS config")
	ErrInvalidGroup     = errors.New("invalid unix group")
)

// TLS is the optional TLS overlay shared by Client and Server. It is
// only meaningful for TCP-family protocols.
type TLS struct {
	Enabled    bool                `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	ServerName string              `mapstructure:"serverName" json:"serverName" yaml:"serverName" toml:"serverName"`
	Config     certificates.Config `mapstructure:"config" json:"config" yaml:"config" toml:"config"`
}

// Client is the configuration for an outbound (Dial) socket.
type Client struct {
	Network protocol.NetworkProtocol `mapstructure:"network" json:"network" yaml:"network" toml:"network" validate:"required"`
	Address string                   `mapstructure:"address" json:"address" yaml:"address" toml:"address" validate:"required"`
	TLS     TLS                      `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

// Validate checks the protocol/address/TLS combination without opening
// any socket.
func (c Client) Validate() error {
	if err := validateProtocol(c.Network); err != nil {
		return err
	}
	if c.Address == "" {
		return ErrInvalidAddress
	}
	if c.TLS.Enabled {
		if c.Network.IsUnix() || !c.Network.IsStream() {
			return ErrInvalidTLSConfig
		}
		if c.TLS.ServerName == "" {
			return errors.New("TLS client config requires a server name")
		}
	}
	return validateStruct(c)
}

// GetTLS reports the client's TLS overlay, merged over def when the
// client didn't set its own certificate material.
func (c Client) GetTLS(def certificates.Config) (certificates.Config, bool) {
	if !c.TLS.Enabled {
		return certificates.Config{}, false
	}
	cfg := c.TLS.Config
	cfg.Enabled = true
	if cfg.ServerName == "" {
		cfg.ServerName = c.TLS.ServerName
	}
	if len(cfg.Certs) == 0 {
		cfg.Certs = def.Certs
	}
	if len(cfg.RootCA) == 0 {
		cfg.RootCA = def.RootCA
	}
	return cfg, true
}

// Server is the configuration for a listening socket.
type Server struct {
	Network   protocol.NetworkProtocol `mapstructure:"network" json:"network" yaml:"network" toml:"network" validate:"required"`
	Address   string                   `mapstructure:"address" json:"address" yaml:"address" toml:"address" validate:"required"`
	PermFile  perm.Perm                `mapstructure:"permFile" json:"permFile" yaml:"permFile" toml:"permFile"`
	GroupPerm int32                    `mapstructure:"groupPerm" json:"groupPerm" yaml:"groupPerm" toml:"groupPerm" validate:"gte=0,lte=32767"`
	TLS       TLS                      `mapstructure:"tls" json:"tls" yaml:"tls" toml:"tls"`
}

func (s Server) Validate() error {
	if err := validateProtocol(s.Network); err != nil {
		return err
	}
	if s.Address == "" {
		return ErrInvalidAddress
	}
	if s.GroupPerm < 0 || s.GroupPerm > MaxGID {
		return ErrInvalidGroup
	}
	if s.TLS.Enabled {
		if s.Network.IsUnix() || !s.Network.IsStream() {
			return ErrInvalidTLSConfig
		}
	}
	return validateStruct(s)
}

func (s Server) GetTLS(def certificates.Config) (certificates.Config, bool) {
	if !s.TLS.Enabled {
		return certificates.Config{}, false
	}
	cfg := s.TLS.Config
	cfg.Enabled = true
	if len(cfg.Certs) == 0 {
		cfg.Certs = def.Certs
	}
	if len(cfg.ClientCA) == 0 {
		cfg.ClientCA = def.ClientCA
	}
	return cfg, true
}

// validateStruct runs the generic struct-tag constraints after the
// protocol-specific branches above have had their say, so the sentinel
// errors keep winning for the conditions they name.
func validateStruct(v interface{}) error {
	er := libval.New().Struct(v)
	if er == nil {
		return nil
	}

	var inv *libval.InvalidValidationError
	if errors.As(er, &inv) {
		return inv
	}

	for _, e := range er.(libval.ValidationErrors) {
		return fmt.Errorf("config field '%s' is not validated by constraint '%s'", e.StructNamespace(), e.ActualTag())
	}
	return nil
}

func validateProtocol(p protocol.NetworkProtocol) error {
	if p == protocol.NetworkEmpty {
		return ErrInvalidProtocol
	}
	if p.IsUnix() && runtime.GOOS == "windows" {
		return ErrInvalidProtocol
	}
	return nil
}
