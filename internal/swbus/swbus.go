// Package swbus routes packets between applications by message id.
package swbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
)

const DefaultPipeDepth = 32

var (
	ErrTimeout    = errors.New("swbus: no message before timeout")
	ErrPipeClosed = errors.New("swbus: pipe deleted")
)

// -----------------------------------------------------------------------------
// Pipe
// -----------------------------------------------------------------------------

// Pipe is a bounded queue of packets owned by one receiver.
type Pipe struct {
	name    string
	ch      chan ccsds.Packet
	bus     *Bus
	dropped uint32
	mu      sync.Mutex
	mids    []ccsds.MsgID
}

func (p *Pipe) Name() string { return p.name }

// Dropped is the number of packets lost because the pipe was full.
func (p *Pipe) Dropped() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Receive waits for the next packet. A zero timeout polls; a negative one
// waits until ctx is done.
func (p *Pipe) Receive(ctx context.Context, timeout time.Duration) (ccsds.Packet, error) {
	if timeout == 0 {
		select {
		case pkt, ok := <-p.ch:
			if !ok {
				return nil, ErrPipeClosed
			}
			return pkt, nil
		default:
			return nil, ErrTimeout
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case pkt, ok := <-p.ch:
		if !ok {
			return nil, ErrPipeClosed
		}
		return pkt, nil
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Subscribe routes mid to this pipe.
func (p *Pipe) Subscribe(mid ccsds.MsgID) {
	p.bus.subscribe(mid, p)
	p.mu.Lock()
	p.mids = append(p.mids, mid)
	p.mu.Unlock()
}

func (p *Pipe) Unsubscribe(mid ccsds.MsgID) {
	p.bus.unsubscribe(mid, p)
	p.mu.Lock()
	for i, m := range p.mids {
		if m == mid {
			p.mids = append(p.mids[:i], p.mids[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// Delete drops every subscription and closes the pipe.
func (p *Pipe) Delete() {
	p.mu.Lock()
	mids := p.mids
	p.mids = nil
	p.mu.Unlock()
	for _, m := range mids {
		p.bus.unsubscribe(m, p)
	}
	p.bus.mu.Lock()
	close(p.ch)
	p.bus.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.RWMutex
	routes map[ccsds.MsgID][]*Pipe
	seq    map[ccsds.MsgID]uint16
	now    func() time.Time
}

func New() *Bus {
	return &Bus{
		routes: make(map[ccsds.MsgID][]*Pipe),
		seq:    make(map[ccsds.MsgID]uint16),
		now:    time.Now,
	}
}

// CreatePipe makes a pipe that holds up to depth packets.
func (b *Bus) CreatePipe(name string, depth int) *Pipe {
	if depth <= 0 {
		depth = DefaultPipeDepth
	}
	return &Pipe{
		name: name,
		ch:   make(chan ccsds.Packet, depth),
		bus:  b,
	}
}

func (b *Bus) subscribe(mid ccsds.MsgID, p *Pipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.routes[mid] {
		if q == p {
			return
		}
	}
	b.routes[mid] = append(b.routes[mid], p)
}

func (b *Bus) unsubscribe(mid ccsds.MsgID, p *Pipe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pipes := b.routes[mid]
	for i, q := range pipes {
		if q == p {
			pipes = append(pipes[:i], pipes[i+1:]...)
			break
		}
	}
	if len(pipes) == 0 {
		delete(b.routes, mid)
		return
	}
	b.routes[mid] = pipes
}

// Send delivers a copy of pkt to every pipe subscribed to its message id
// and returns how many pipes took it. Telemetry gets the next sequence
// count for its id. A full pipe drops the packet.
func (b *Bus) Send(pkt ccsds.Packet) int {
	mid := pkt.MsgID()

	b.mu.Lock()
	defer b.mu.Unlock()
	if !pkt.IsCommand() {
		n := b.seq[mid]
		pkt.SetSequence(n)
		b.seq[mid] = n + 1
	}
	delivered := 0
	for _, p := range b.routes[mid] {
		select {
		case p.ch <- pkt.Clone():
			delivered++
		default:
			p.mu.Lock()
			p.dropped++
			p.mu.Unlock()
			glog.Warningf("swbus: pipe %s full, dropped msg %s", p.name, mid)
		}
	}
	return delivered
}

// Subscribers reports how many pipes receive mid.
func (b *Bus) Subscribers(mid ccsds.MsgID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.routes[mid])
}

// Now is the bus clock used for telemetry time stamps.
func (b *Bus) Now() time.Time { return b.now() }

// SetClock replaces the time source.
func (b *Bus) SetClock(now func() time.Time) { b.now = now }
