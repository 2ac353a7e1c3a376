// File: internal/transport/cqlsockopts_linux.go
//go:build linux
// +build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux SO_RCVBUF/SO_SNDBUF tuning via raw syscall access.

package transport

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// tuneSocketBuffers sets SO_RCVBUF/SO_SNDBUF directly through the raw file
// descriptor when sizes are requested; zero values leave the OS default.
// Failures are non-fatal: a CQL connection works with default buffer
// sizes, just with more syscalls under heavy paging load.
func tuneSocketBuffers(conn net.Conn, recvBuf, sendBuf int) {
	if recvBuf <= 0 && sendBuf <= 0 {
		return
	}
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		if recvBuf > 0 {
			_ = unix.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_RCVBUF, recvBuf)
		}
		if sendBuf > 0 {
			_ = unix.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unix.SO_SNDBUF, sendBuf)
		}
	})
}
