// Package app is the camera application: it answers ground commands and
// housekeeping requests from the software bus and runs the capture task
// alongside.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/events"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

const (
	Name     = "VC0706"
	PipeName = "VC0706_CMD_PIPE"

	MajorVersion = 1
	MinorVersion = 1
	Revision     = 0
	MissionRev   = 0

	DefaultReceiveTimeout = 500 * time.Millisecond
)

var EventFilters = []events.BinFilter{
	{ID: events.StartupInfEID, Mask: 0x0000},
	{ID: events.CommandErrEID, Mask: 0x0000},
	{ID: events.CommandNopInfEID, Mask: 0x0000},
	{ID: events.CommandRstInfEID, Mask: 0x0000},
}

// Child runs next to the command loop until ctx is done.
type Child interface {
	Run(ctx context.Context) error
}

type Options struct {
	PipeDepth      int
	ReceiveTimeout time.Duration
}

type App struct {
	bus  *swbus.Bus
	evs  *events.Service
	opts Options
	pipe *swbus.Pipe

	mu sync.Mutex
	hk msg.HKTlm

	child     Child
	childDone chan error
}

func New(bus *swbus.Bus, evs *events.Service, opts Options) *App {
	if opts.PipeDepth <= 0 {
		opts.PipeDepth = swbus.DefaultPipeDepth
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = DefaultReceiveTimeout
	}
	return &App{bus: bus, evs: evs, opts: opts}
}

// SetChild sets the task started by Init.
func (a *App) SetChild(c Child) { a.child = c }

// Init creates the command pipe, clears the counters and starts the child
// task.
func (a *App) Init(ctx context.Context) {
	a.pipe = a.bus.CreatePipe(PipeName, a.opts.PipeDepth)
	a.pipe.Subscribe(msg.CmdMID)
	a.pipe.Subscribe(msg.SendHKMID)

	a.ResetCounters()
	a.childInit(ctx)

	a.evs.Send(events.StartupInfEID, events.Information,
		"VC0706 App Initialized. Version %d.%d.%d.%d",
		MajorVersion, MinorVersion, Revision, MissionRev)
}

func (a *App) childInit(ctx context.Context) {
	if a.child == nil {
		return
	}
	a.childDone = make(chan error, 1)
	go func() {
		a.childDone <- a.child.Run(ctx)
	}()
	a.evs.Send(events.ChildInitEID, events.Information,
		"%s initialization info: create task complete", "VC0706 Child Task")
}

// Run pends on the command pipe until ctx is done, then waits for the child.
func (a *App) Run(ctx context.Context) error {
	a.Init(ctx)
	defer a.pipe.Delete()

	for {
		pkt, err := a.pipe.Receive(ctx, a.opts.ReceiveTimeout)
		switch {
		case err == nil:
			a.ProcessCommandPacket(pkt)
		case errors.Is(err, swbus.ErrTimeout):
		case ctx.Err() != nil:
			return a.waitChild()
		default:
			return err
		}
	}
}

func (a *App) waitChild() error {
	if a.childDone == nil {
		return nil
	}
	err := <-a.childDone
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ProcessCommandPacket dispatches a packet from the command pipe.
func (a *App) ProcessCommandPacket(pkt ccsds.Packet) {
	switch pkt.MsgID() {
	case msg.CmdMID:
		a.ProcessGroundCommand(pkt)
	case msg.SendHKMID:
		a.ReportHousekeeping()
	default:
		a.mu.Lock()
		a.hk.CommandErrorCount++
		a.mu.Unlock()
		a.evs.Send(events.CommandErrEID, events.Error,
			"VC0706: invalid command packet,MID = 0x%x", uint16(pkt.MsgID()))
	}
}

func (a *App) ProcessGroundCommand(pkt ccsds.Packet) {
	code := pkt.CmdCode()
	switch code {
	case msg.NoopCC:
		if !a.VerifyCmdLength(pkt, msg.NoArgsCmdLen) {
			return
		}
		a.mu.Lock()
		a.hk.CommandCount++
		a.mu.Unlock()
		a.evs.Send(events.CommandNopInfEID, events.Information, "VC0706: NOOP command")

	case msg.ResetCountersCC:
		if !a.VerifyCmdLength(pkt, msg.NoArgsCmdLen) {
			return
		}
		a.ResetCounters()

	default:
		a.mu.Lock()
		a.hk.CommandErrorCount++
		a.mu.Unlock()
		a.evs.Send(events.CommandErrEID, events.Error,
			"VC0706: invalid ground command code: CC = %d", code)
	}
}

// ReportHousekeeping time stamps the telemetry packet and sends it.
func (a *App) ReportHousekeeping() {
	p := a.Housekeeping().Packet(a.bus.Now())
	if a.bus.Send(p) == 0 {
		glog.V(1).Info("VC0706: nobody subscribes to housekeeping telemetry")
	}
}

func (a *App) ResetCounters() {
	a.mu.Lock()
	a.hk.CommandCount = 0
	a.hk.CommandErrorCount = 0
	a.mu.Unlock()
	a.evs.Send(events.CommandRstInfEID, events.Information, "VC0706: RESET command")
}

// VerifyCmdLength counts and reports commands of the wrong size.
func (a *App) VerifyCmdLength(pkt ccsds.Packet, expected int) bool {
	actual := len(pkt)
	if actual == expected && pkt.TotalLength() == expected {
		return true
	}
	a.evs.Send(events.LenErrEID, events.Error,
		"Invalid msg length: ID = 0x%X,  CC = %d, Len = %d, Expected = %d",
		uint16(pkt.MsgID()), pkt.CmdCode(), actual, expected)
	a.mu.Lock()
	a.hk.CommandErrorCount++
	a.mu.Unlock()
	return false
}

// SetLastImage puts the latest picture's file name in housekeeping.
func (a *App) SetLastImage(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hk.Filename = name
}

func (a *App) Housekeeping() msg.HKTlm {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hk
}
