//go:build !linux

package vc0706

import "io"

func newPort(rwc io.ReadWriteCloser) interface {
	Port
	io.Closer
} {
	return newPumpPort(rwc)
}
