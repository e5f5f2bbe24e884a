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
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Credentials mirrors SO_PEERCRED: the uid/gid/pid of the process on the
// other end of a PF_LOCAL connection.
type Credentials struct {
	UID uint32
	GID uint32
	PID int32
}

// PeerCredentials reads SO_PEERCRED off a UNIX domain connection. Any
// other socket family is an error: the kernel only tracks peer
// credentials for PF_LOCAL.
func (e *Endpoint) PeerCredentials() (Credentials, error) {
	uc, ok := e.raw.(*net.UnixConn)
	if !ok {
		return Credentials{}, fmt.Errorf("peer credentials are only available on unix domain sockets")
	}

	raw, err := uc.SyscallConn()
	if err != nil {
		return Credentials{}, err
	}

	var (
		cred *unix.Ucred
		cerr error
	)
	err = raw.Control(func(fd uintptr) {
		cred, cerr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Credentials{}, err
	}
	if cerr != nil {
		return Credentials{}, cerr
	}

	return Credentials{UID: cred.Uid, GID: cred.Gid, PID: cred.Pid}, nil
}
