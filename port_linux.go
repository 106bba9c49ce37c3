//go:build linux

package vc0706

import (
	"io"

	"golang.org/x/sys/unix"
)

type fder interface {
	Fd() uintptr
}

// ttyPort asks the kernel how many bytes wait in the input queue.
type ttyPort struct {
	io.ReadWriteCloser
	fd int
}

func newPort(rwc io.ReadWriteCloser) interface {
	Port
	io.Closer
} {
	if f, ok := rwc.(fder); ok {
		return &ttyPort{ReadWriteCloser: rwc, fd: int(f.Fd())}
	}
	return newPumpPort(rwc)
}

func (p *ttyPort) Buffered() (int, error) {
	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}
