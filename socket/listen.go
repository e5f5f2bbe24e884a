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

package socket

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/user"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/linesrv/errors"
	"github.com/nabbar/linesrv/file/perm"
	"github.com/nabbar/linesrv/network/protocol"
)

// ListenBacklog is the fixed accept backlog used by every listener the
// framework creates.
const ListenBacklog = 300

// Listen binds and listens on address using family. For PF_INET families
// running unprivileged (non-root) and asked for a privileged port
// (<=1024), the port is shifted by +1000 so the process can still bind
// without CAP_NET_BIND_SERVICE. For PF_UNIX/PF_UNIXGRAM, address is a
// filesystem path: a stale socket file left over from a previous run is
// removed before binding, and the credential triple (owner, group, mode)
// is applied to the path afterward. Empty owner/group names leave the
// respective id untouched.
func Listen(family protocol.NetworkProtocol, address string, owner, group string, mode perm.Perm) (net.Listener, error) {
	if family.IsUnix() {
		return listenUnix(family, address, owner, group, mode)
	}
	return listenInet(family, address)
}

func listenInet(family protocol.NetworkProtocol, address string) (net.Listener, error) {
	address = shiftPrivilegedPort(address)

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	l, err := lc.Listen(context.Background(), family.String(), address)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// shiftPrivilegedPort adds 1000 to a <=1024 port when the process does
// not have root privileges, so a daemon can be test-run without
// CAP_NET_BIND_SERVICE.
func shiftPrivilegedPort(address string) string {
	if os.Geteuid() == 0 {
		return address
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port > 1024 {
		return address
	}

	return net.JoinHostPort(host, strconv.Itoa(port+1000))
}

func listenUnix(family protocol.NetworkProtocol, path string, owner, group string, mode perm.Perm) (net.Listener, error) {
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		if isStaleSocket(path) {
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
			}
		}
	}

	l, err := net.Listen(family.String(), path)
	if err != nil {
		return nil, err
	}

	if err := chownPath(path, owner, group); err != nil {
		_ = l.Close()
		return nil, err
	}

	if mode != 0 {
		if err := os.Chmod(path, mode.FileMode()); err != nil {
			_ = l.Close()
			return nil, err
		}
	}

	return l, nil
}

// chownPath resolves the symbolic owner/group names and applies them to
// the socket path. An empty name leaves that id unchanged (-1).
func chownPath(path, owner, group string) error {
	uid, gid := -1, -1

	if owner != "" {
		u, err := user.Lookup(owner)
		if err != nil {
			return liberr.New(liberr.UnknownUser, err, "user %q", owner)
		}
		if uid, err = strconv.Atoi(u.Uid); err != nil {
			return err
		}
	}

	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return liberr.New(liberr.UnknownGroup, err, "group %q", group)
		}
		if gid, err = strconv.Atoi(g.Gid); err != nil {
			return err
		}
	}

	if uid == -1 && gid == -1 {
		return nil
	}

	if err := os.Chown(path, uid, gid); err != nil {
		// The same accommodation as the privileged-port shift: an
		// unprivileged test run cannot give the socket away, and should
		// not fail the bind over it.
		if os.IsPermission(err) && os.Geteuid() != 0 {
			return nil
		}
		return liberr.New(liberr.IOError, err, "chown %s", path)
	}
	return nil
}

// isStaleSocket reports whether path is a leftover inode with nothing
// listening behind it (a dead socket file, or a plain file squatting on
// the path), so a fresh bind can reclaim it without stealing a path a
// live daemon still serves.
func isStaleSocket(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return strings.Contains(err.Error(), "connection refused") || os.IsNotExist(err) ||
			strings.Contains(err.Error(), "no such file")
	}
	_ = conn.Close()
	return false
}
