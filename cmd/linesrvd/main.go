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

// Command linesrvd is an example line-protocol daemon: it wires the
// multiplexer up to two toy protocols (echo and reverse) over TCP, as a
// worked example of the constructor/controller contract rather than a
// protocol of its own.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nabbar/linesrv/controller"
	"github.com/nabbar/linesrv/logging"
	"github.com/nabbar/linesrv/multiplexer"
	"github.com/nabbar/linesrv/network/protocol"
	"github.com/nabbar/linesrv/preflight"
	"github.com/nabbar/linesrv/server"
	"github.com/nabbar/linesrv/session"
)

func main() {
	pflag.String("config", "", "path to a YAML/JSON/TOML config file")
	pflag.StringSlice("bind", []string{"127.0.0.1"}, "bind addresses (empty means all local IPv4 interfaces)")
	pflag.Int("echoPort", 7, "port for the echo protocol")
	pflag.Int("reversePort", 17, "port for the reverse protocol")
	pflag.String("user", "nobody", "user to drop privileges to when started as root")
	pflag.String("group", "nogroup", "group to drop privileges to when started as root")
	pflag.String("chroot", "", "chroot jail directory, empty to skip chrooting")
	pflag.String("logLevel", "info", "logrus level: debug, info, warn, error")
	pflag.Parse()

	v := viper.New()
	_ = v.BindPFlags(pflag.CommandLine)
	v.SetEnvPrefix("linesrvd")
	v.AutomaticEnv()

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			logging.Default().WithError(err).Errorf("reading config file %q", cfgFile)
			os.Exit(1)
		}
	}

	level, err := logrus.ParseLevel(v.GetString("logLevel"))
	if err != nil {
		level = logrus.InfoLevel
	}
	log := logging.New(os.Stderr, level)

	if _, err := preflight.Run(preflight.Config{
		User:      v.GetString("user"),
		Group:     v.GetString("group"),
		ChrootDir: v.GetString("chroot"),
	}, log); err != nil {
		log.WithError(err).Errorf("preflight failed")
		os.Exit(1)
	}

	m := multiplexer.New(log)

	echo := func(s *server.Server) error {
		s.Family = protocol.NetworkTCP
		s.Port = v.GetInt("echoPort")
		s.Service = "echo"
		s.Controller = echoController()
		return nil
	}
	reverse := func(s *server.Server) error {
		s.Family = protocol.NetworkTCP
		s.Port = v.GetInt("reversePort")
		s.Service = "reverse"
		s.Controller = reverseController()
		return nil
	}

	if err := m.Bind(v.GetStringSlice("bind"), []server.Constructor{echo, reverse}); err != nil {
		log.WithError(err).Errorf("bind failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Infof("linesrvd listening: echo on %d, reverse on %d", v.GetInt("echoPort"), v.GetInt("reversePort"))

	if err := m.Run(ctx); err != nil {
		log.WithError(err).Errorf("multiplexer stopped with an error")
		os.Exit(1)
	}
}

// echoController answers every line unchanged.
func echoController() controller.Controller {
	return controller.Controller{
		Request: func(s, a interface{}) int {
			line := a.(string)
			s.(*session.Session).SetResponse(0, line, "")
			return 0
		},
		Response: func(s, a interface{}) int {
			sess := s.(*session.Session)
			_, _ = sess.Endpoint().Write([]byte(sess.Response().Header + "\n"))
			return 0
		},
	}
}

// reverseController answers every line reversed byte-for-byte.
func reverseController() controller.Controller {
	return controller.Controller{
		Request: func(s, a interface{}) int {
			line := a.(string)
			s.(*session.Session).SetResponse(0, reverseString(line), "")
			return 0
		},
		Response: func(s, a interface{}) int {
			sess := s.(*session.Session)
			_, _ = sess.Endpoint().Write([]byte(sess.Response().Header + "\n"))
			return 0
		},
	}
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
