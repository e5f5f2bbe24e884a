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

// Package preflight runs the privilege-drop sequence a daemon started as
// root must complete before the multiplexer enters its accept loop:
// resolve the target user/group, chroot, rewrite jailed paths, then
// setgid/setuid.
package preflight

import (
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/logging"
)

// Config carries the three values privilege drop consumes: the target
// user, its group, and the chroot jail directory. ChrootDir may be
// empty to skip the chroot step while still dropping privileges.
type Config struct {
	User      string
	Group     string
	ChrootDir string
}

// PathRewriter rewrites a configured filesystem path so it stays valid
// once the process has chrooted into ChrootDir (stripping the jail
// prefix, typically).
type PathRewriter func(path string) string

// Run executes the pre-flight sequence. On a non-root process it is a
// no-op that logs a warning: privilege drop only means something when
// starting as the superuser.
func Run(cfg Config, log logging.Logger) (PathRewriter, error) {
	if log == nil {
		log = logging.Default()
	}

	if os.Geteuid() != 0 {
		log.Warnf("preflight: not running as root, skipping privilege drop")
		return identity, nil
	}

	// Force resolver/thread library initialization before chroot makes
	// their backing files unreachable.
	_, _ = user.Lookup("root")

	gid, err := lookupGID(cfg.Group)
	if err != nil {
		return nil, liberr.New(liberr.UnknownGroup, err, "group %q", cfg.Group)
	}

	uid, err := lookupUID(cfg.User)
	if err != nil {
		return nil, liberr.New(liberr.UnknownUser, err, "user %q", cfg.User)
	}

	rewrite := identity
	if cfg.ChrootDir != "" {
		if err := os.Chdir(cfg.ChrootDir); err != nil {
			return nil, liberr.New(liberr.IOError, err, "chdir %q", cfg.ChrootDir)
		}
		if err := syscall.Chroot(cfg.ChrootDir); err != nil {
			return nil, liberr.New(liberr.IOError, err, "chroot %q", cfg.ChrootDir)
		}
		rewrite = jailRewriter(cfg.ChrootDir)
	}

	if err := syscall.Setgid(gid); err != nil {
		return nil, liberr.New(liberr.IOError, err, "setgid %d", gid)
	}
	if err := syscall.Setuid(uid); err != nil {
		return nil, liberr.New(liberr.IOError, err, "setuid %d", uid)
	}

	// Name lookups must still work inside the jail; a missing passwd
	// database here means the jail is missing files the daemon needs.
	if _, err := user.Lookup("root"); err != nil {
		return nil, liberr.New(liberr.Fatal, err, "user lookup broken inside the chroot jail")
	}

	log.Infof("preflight: dropped privileges to %s:%s", cfg.User, cfg.Group)
	return rewrite, nil
}

func identity(p string) string { return p }

func jailRewriter(jail string) PathRewriter {
	jail = strings.TrimSuffix(jail, "/")
	return func(p string) string {
		if strings.HasPrefix(p, jail) {
			return strings.TrimPrefix(p, jail)
		}
		return p
	}
}

func lookupUID(name string) (int, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(u.Uid)
}

func lookupGID(name string) (int, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(g.Gid)
}
