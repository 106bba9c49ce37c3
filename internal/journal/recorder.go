package journal

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

const PipeName = "VC0706_JOURNAL_PIPE"

// Recorder copies bus traffic into a journal.
type Recorder struct {
	bus  *swbus.Bus
	w    *Writer
	pipe *swbus.Pipe
}

// NewRecorder subscribes to housekeeping telemetry and image notifications,
// plus any extra ids.
func NewRecorder(bus *swbus.Bus, w *Writer, depth int, extra ...ccsds.MsgID) *Recorder {
	p := bus.CreatePipe(PipeName, depth)
	p.Subscribe(msg.HKTlmMID)
	p.Subscribe(msg.ImageCmdMID)
	for _, mid := range extra {
		p.Subscribe(mid)
	}
	return &Recorder{bus: bus, w: w, pipe: p}
}

// Run records until ctx is done. Packets still queued are written before it
// returns.
func (r *Recorder) Run(ctx context.Context) error {
	defer r.pipe.Delete()
	for {
		pkt, err := r.pipe.Receive(ctx, -1)
		if err != nil {
			if ctx.Err() != nil {
				r.drain()
				return nil
			}
			return err
		}
		r.record(pkt)
	}
}

func (r *Recorder) drain() {
	for {
		pkt, err := r.pipe.Receive(context.Background(), 0)
		if err != nil {
			return
		}
		r.record(pkt)
	}
}

func (r *Recorder) record(pkt ccsds.Packet) {
	if err := r.w.Write(NewEntry(pkt, r.bus.Now())); err != nil && !errors.Is(err, ErrClosed) {
		glog.Warningf("journal: %v", err)
	}
}
