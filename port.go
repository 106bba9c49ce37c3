package vc0706

import (
	"io"
	"sync"

	"github.com/golang/glog"
	"github.com/tarm/goserial"
)

// Port is the serial link to a camera. Buffered reports how many received
// bytes can be read without blocking.
type Port interface {
	io.ReadWriter
	Buffered() (int, error)
}

// OpenPort opens a serial device at the given baud rate.
func OpenPort(name string, baud int) (Port, io.Closer, error) {
	c := &serial.Config{Name: name, Baud: baud}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, nil, err
	}
	p := newPort(s)
	return p, p, nil
}

// pumpPort turns a blocking reader into a Port by reading in the
// background.
type pumpPort struct {
	rwc io.ReadWriteCloser

	mu   sync.Mutex
	buf  []byte
	err  error
	done chan struct{}
}

func newPumpPort(rwc io.ReadWriteCloser) *pumpPort {
	p := &pumpPort{rwc: rwc, done: make(chan struct{})}
	go p.pump()
	return p
}

func (p *pumpPort) pump() {
	chunk := make([]byte, 256)
	for {
		n, err := p.rwc.Read(chunk)
		p.mu.Lock()
		p.buf = append(p.buf, chunk[:n]...)
		if err != nil {
			p.err = err
		}
		p.mu.Unlock()
		if err != nil {
			select {
			case <-p.done:
			default:
				glog.Warning(err)
			}
			return
		}
	}
}

func (p *pumpPort) Buffered() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 && p.err != nil {
		return 0, p.err
	}
	return len(p.buf), nil
}

func (p *pumpPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return 0, p.err
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *pumpPort) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

func (p *pumpPort) Close() error {
	close(p.done)
	return p.rwc.Close()
}
