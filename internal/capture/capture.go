// Package capture is the camera application's child task. It takes pictures
// back to back, stores them under the image directory and announces each one
// to the downlink application.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/events"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

const (
	TaskName = "VC0706 Child Task"

	DefaultImageDir   = "/ram/images"
	DefaultRebootFile = "/ram/logs/reboot.txt"
	DefaultRetryDelay = time.Second

	// Sent in place of a picture name when a capture fails.
	ErrorFileName = "error.txt"
	// Used when the reboot file cannot be read.
	UnknownReboots = "999"
)

// Camera is the part of *vc0706.Camera the task drives.
type Camera interface {
	GetVersion(ctx context.Context) (string, error)
	TakePicture(ctx context.Context, path string) (string, error)
	Interface() int
}

// Housekeeping receives the name of the last stored picture.
type Housekeeping interface {
	SetLastImage(name string)
}

// PhotoCounter shows the number of stored pictures, e.g. on parallel pins.
type PhotoCounter interface {
	Write(n uint8) error
}

type Options struct {
	ImageDir   string
	RebootFile string

	// RetryDelay is waited after a camera that does not answer, Interval
	// between pictures. A zero Interval takes them back to back.
	RetryDelay time.Duration
	Interval   time.Duration

	// Stop after this many stored pictures. Zero runs until cancelled.
	MaxPictures int
}

func (o Options) withDefaults() Options {
	if o.ImageDir == "" {
		o.ImageDir = DefaultImageDir
	}
	if o.RebootFile == "" {
		o.RebootFile = DefaultRebootFile
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

type Task struct {
	cam  Camera
	bus  *swbus.Bus
	evs  *events.Service
	opts Options

	hk      Housekeeping
	counter PhotoCounter

	mu      sync.Mutex
	reboots string
	stored  uint32
	failed  uint32
}

func New(cam Camera, bus *swbus.Bus, evs *events.Service, opts Options) *Task {
	return &Task{
		cam:     cam,
		bus:     bus,
		evs:     evs,
		opts:    opts.withDefaults(),
		reboots: UnknownReboots,
	}
}

func (t *Task) SetHousekeeping(hk Housekeeping)  { t.hk = hk }
func (t *Task) SetPhotoCounter(pc PhotoCounter) { t.counter = pc }

func (t *Task) Reboots() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reboots
}

// Stored is the number of pictures written since Run started.
func (t *Task) Stored() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stored
}

func (t *Task) Failed() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Init reads the reboot count and prepares the image directory.
func (t *Task) Init() error {
	r := ReadReboots(t.opts.RebootFile)
	t.mu.Lock()
	t.reboots = r
	t.mu.Unlock()

	if err := os.MkdirAll(t.opts.ImageDir, 0755); err != nil {
		t.evs.Send(events.ChildInitErrEID, events.Error,
			"%s initialization error: image directory: %v", TaskName, err)
		return err
	}
	if t.counter != nil {
		if err := t.counter.Write(0); err != nil {
			glog.Warningf("capture: clear photo count: %v", err)
		}
	}
	t.evs.Send(events.ChildInitEID, events.Information, "%s initialization complete", TaskName)
	return nil
}

// Run takes pictures until ctx is done or MaxPictures are stored.
func (t *Task) Run(ctx context.Context) error {
	if err := t.Init(); err != nil {
		return err
	}
	n := uint32(1)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.opts.MaxPictures > 0 && int(n) > t.opts.MaxPictures {
			return nil
		}

		if _, err := t.cam.GetVersion(ctx); err != nil {
			glog.Warningf("capture: failed communication to camera %d: %v", t.cam.Interface(), err)
			if err := wait(ctx, t.opts.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if t.shoot(ctx, n) {
			n++
		}
		if err := wait(ctx, t.opts.Interval); err != nil {
			return err
		}
	}
}

// shoot stores picture n and reports whether it was stored.
func (t *Task) shoot(ctx context.Context, n uint32) bool {
	name := FileName(t.Reboots(), t.cam.Interface(), n)
	if n%10000 == 0 {
		glog.Warningf("capture: picture %d wraps to %s, older pictures will be overwritten", n, name)
	}
	if len(name) >= msg.MaxImageNameLen {
		glog.Warningf("capture: %s is cut to %d characters in the image command", name, msg.MaxImageNameLen-1)
	}
	path := filepath.Join(t.opts.ImageDir, name)

	if _, err := t.cam.TakePicture(ctx, path); err != nil {
		if ctx.Err() != nil {
			return false
		}
		t.mu.Lock()
		t.failed++
		t.mu.Unlock()
		t.evs.Send(events.ReplyErrEID, events.Error, "picture %s failed: %v", name, err)
		t.SendTimFileName(ErrorFileName)
		return false
	}

	if t.hk != nil {
		t.hk.SetLastImage(name)
	}
	t.SendTimFileName(name)
	if t.counter != nil {
		if err := t.counter.Write(uint8(n)); err != nil {
			glog.Warningf("capture: photo count %d: %v", n, err)
		}
	}
	t.mu.Lock()
	t.stored++
	t.mu.Unlock()
	return true
}

// SendTimFileName announces a picture to the downlink application. The
// command code follows the camera digit in the name.
func (t *Task) SendTimFileName(name string) {
	code, known := msg.ImageCmdCode(name)
	if !known {
		glog.Infof("capture: no camera identifier in %q, defaulting to camera 0", name)
	}
	t.bus.Send(msg.ImageCmd{Code: code, Name: name}.Packet())
	t.evs.Send(events.ChildInitInfEID, events.Information, "Message sent to TIM from VC0706.")
}

// FileName is <reboots>_<camera>_<picture>.jpg, with the reboot count cut
// to three characters and the picture number kept to four digits. Numbers
// wrap after 9999 so the name fits the image command.
func FileName(reboots string, iface int, n uint32) string {
	return fmt.Sprintf("%.3s_%d_%04d.jpg", reboots, iface, n%10000)
}

// ReadReboots reads the three digit reboot count kept by the boot scripts.
// Short counts are padded with zeros. Anything unreadable gives "999".
func ReadReboots(path string) string {
	f, err := os.Open(path)
	if err != nil {
		glog.Warningf("capture: could not open reboot file: %v", err)
		return UnknownReboots
	}
	defer f.Close()

	buf := make([]byte, 3)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		glog.Warningf("capture: could not read reboot file: %v", err)
		return UnknownReboots
	}
	s := strings.TrimSpace(string(buf[:n]))
	if s == "" {
		return UnknownReboots
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			glog.Warningf("capture: reboot count %q is not a number", s)
			return UnknownReboots
		}
	}
	return strings.Repeat("0", 3-len(s)) + s
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
