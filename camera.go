package vc0706

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Flash lights the scene while a frame is frozen.
type Flash interface {
	On() error
	Off() error
}

type Options struct {
	// TTYInterface selects /dev/ttyAMA<n> when Device is empty.
	TTYInterface int
	Device       string
	Baud         int
	SerialNumber byte

	// PollInterval is slept whenever no byte is waiting. Every read gives
	// up after a number of empty polls scaled by TimeoutScale.
	PollInterval time.Duration
	TimeoutScale int

	ChunkSize   uint32
	MaxImageLen uint32

	Flash       Flash
	FlashWarmup time.Duration
}

func (o Options) withDefaults() Options {
	if o.Baud == 0 {
		o.Baud = BAUD
	}
	if o.PollInterval <= 0 {
		o.PollInterval = TO_U
	}
	if o.TimeoutScale <= 0 {
		o.TimeoutScale = TO_SCALE
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = BUFFER_CHUNK_SIZE
	}
	if o.MaxImageLen == 0 {
		o.MaxImageLen = MAX_IMAGE_LEN
	}
	if o.FlashWarmup == 0 {
		o.FlashWarmup = FLASH_WARMUP
	}
	return o
}

// Camera is a VC0706 module attached to a serial port. A Camera must not be
// used from several goroutines at once.
type Camera struct {
	port   Port
	closer io.Closer
	opts   Options

	ttyInterface int
	serialNum    byte
	motion       bool
	ready        bool

	frameptr  uint32
	bufferLen int
	imageName string
}

func DevicePath(ttyInterface int) string {
	return fmt.Sprintf(PORT_FORMAT, ttyInterface)
}

// New wraps a port that is already open.
func New(port Port, opts Options) *Camera {
	opts = opts.withDefaults()
	return &Camera{
		port:         port,
		opts:         opts,
		ttyInterface: opts.TTYInterface,
		serialNum:    opts.SerialNumber,
		motion:       true,
		ready:        port != nil,
	}
}

// Open opens the camera's serial interface.
func Open(opts Options) (*Camera, error) {
	opts = opts.withDefaults()
	dev := opts.Device
	if dev == "" {
		dev = DevicePath(opts.TTYInterface)
	}
	port, closer, err := OpenPort(dev, opts.Baud)
	if err != nil {
		return nil, fmt.Errorf("init: failed to open %s: %w", dev, err)
	}
	c := New(port, opts)
	c.closer = closer
	glog.Infof("Camera %d opened on %s at %d baud", c.ttyInterface, dev, opts.Baud)
	return c, nil
}

func (c *Camera) Close() error {
	c.ready = false
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Camera) Ready() bool          { return c.ready }
func (c *Camera) Interface() int       { return c.ttyInterface }
func (c *Camera) MotionEnabled() bool  { return c.motion }
func (c *Camera) ImageName() string    { return c.imageName }
func (c *Camera) FramePointer() uint32 { return c.frameptr }
func (c *Camera) BufferLen() int        { return c.bufferLen }

func (c *Camera) write(frame []byte) error {
	if !c.ready {
		return ErrNotReady
	}
	if glog.V(2) {
		glog.Infof("vc0706: send % x", frame)
	}
	_, err := c.port.Write(frame)
	return err
}

func (c *Camera) sleep(ctx context.Context) error {
	t := time.NewTimer(c.opts.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// read collects up to size bytes. It gives up after tries consecutive empty
// polls; the count starts over whenever a byte arrives.
func (c *Camera) read(ctx context.Context, size, tries int) ([]byte, error) {
	if !c.ready {
		return nil, ErrNotReady
	}
	buf := make([]byte, 0, size)
	tmp := make([]byte, size)
	idle := 0
	for len(buf) < size && idle < tries {
		n, err := c.port.Buffered()
		if err != nil {
			return buf, err
		}
		if n <= 0 {
			idle++
			if err := c.sleep(ctx); err != nil {
				return buf, err
			}
			continue
		}
		want := size - len(buf)
		if n < want {
			want = n
		}
		m, err := c.port.Read(tmp[:want])
		buf = append(buf, tmp[:m]...)
		if err != nil && !errors.Is(err, io.EOF) {
			return buf, err
		}
		idle = 0
	}
	return buf, nil
}

// SendCommand writes one framed command.
func (c *Camera) SendCommand(cmd byte, args []byte) error {
	if len(args) == 0 {
		return c.write(MakeSimpleSendCmd(c.serialNum, cmd))
	}
	return c.write(MakeSendCmd(c.serialNum, cmd, args))
}

// CheckReply reads size bytes and makes sure they acknowledge cmd.
func (c *Camera) CheckReply(ctx context.Context, cmd byte, size int) ([]byte, error) {
	r, err := c.read(ctx, size, 3*c.opts.TimeoutScale)
	if err != nil {
		return r, err
	}
	if len(r) < size {
		glog.Warningf("Camera %d unresponsive! cmd 0x%02x got %d of %d bytes", c.ttyInterface, cmd, len(r), size)
		return r, fmt.Errorf("cmd 0x%02x: got %d of %d reply bytes: %w", cmd, len(r), size, ErrTimeout)
	}
	if err := CheckReply(c.serialNum, cmd, r); err != nil {
		glog.Warningf("Camera %d unresponsive! R[0] = [%x] R[1] = [%x] R[2] = [%x]", c.ttyInterface, r[0], r[1], r[2])
		return r, err
	}
	return r, nil
}

// ClearBuffer drops whatever the camera sent that nobody asked for and
// returns the number of bytes dropped.
func (c *Camera) ClearBuffer(ctx context.Context) int {
	junk, err := c.read(ctx, CAMERABUFFSIZ, 2*c.opts.TimeoutScale)
	if err != nil && ctx.Err() == nil {
		glog.Warning(err)
	}
	if len(junk) > 0 && glog.V(2) {
		glog.Infof("vc0706: dropped %q", junk)
	}
	return len(junk)
}

// Do not trust the doc: the module prints a boot banner after the reply.
func (c *Camera) Reset(ctx context.Context) error {
	if err := c.SendCommand(CMD_SYSTEM_RESET, EMPTY_DATA); err != nil {
		return err
	}
	_, err := c.CheckReply(ctx, CMD_SYSTEM_RESET, HEADER_LEN)
	c.ClearBuffer(ctx)
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (c *Camera) ResumeVideo(ctx context.Context) error {
	if err := c.SendCommand(CMD_FBUF_CTRL, []byte{RESUME_FRAME}); err != nil {
		return err
	}
	if _, err := c.CheckReply(ctx, CMD_FBUF_CTRL, HEADER_LEN); err != nil {
		return fmt.Errorf("camera did not resume: %w", err)
	}
	return nil
}

// GetVersion doubles as a liveness check.
func (c *Camera) GetVersion(ctx context.Context) (string, error) {
	if err := c.SendCommand(CMD_GET_VERSION, EMPTY_DATA); err != nil {
		return "", err
	}
	r, err := c.CheckReply(ctx, CMD_GET_VERSION, HEADER_LEN)
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	n := int(r[4])
	if n == 0 || n > CAMERABUFFSIZ {
		n = CAMERABUFFSIZ
	}
	data, err := c.read(ctx, n, 1*c.opts.TimeoutScale)
	c.bufferLen = len(data)
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n\x00"), nil
}

// FrameLength returns the length of the frozen frame.
// Command format: 0x56 + serial number + 0x34 + 0x01 + FBUF type(1 byte)
// 0 for current frame, 1 for next frame
// Return format: 0x76 + serial number + 0x34 + 0x00 + 0x04 +
// FBUF data-lengths (4 bytes)
func (c *Camera) FrameLength(ctx context.Context) (uint32, error) {
	if err := c.SendCommand(CMD_GET_FBUF_LEN, []byte{STOP_CURRENT_FRAME}); err != nil {
		return 0, err
	}
	if _, err := c.CheckReply(ctx, CMD_GET_FBUF_LEN, HEADER_LEN); err != nil {
		return 0, fmt.Errorf("frame length: %w", err)
	}
	buf, err := c.read(ctx, 4, 3*c.opts.TimeoutScale)
	if err != nil {
		return 0, err
	}
	if len(buf) < 4 {
		return 0, fmt.Errorf("frame length: got %d of 4 bytes: %w", len(buf), ErrShortRead)
	}
	return binary.BigEndian.Uint32(buf), nil
}

// ReadBuffer reads length bytes of the frozen frame in chunks.
// Return format per chunk: 0x76 + serial number + 0x32 + 0x00 + 0x00 +
// image data + 0x76 + serial number + 0x32 + 0x00 + 0x00
func (c *Camera) ReadBuffer(ctx context.Context, length uint32) ([]byte, error) {
	image := make([]byte, 0, length)
	remaining := length
	retry := 0
	for remaining > 0 {
		n := remaining
		if n > c.opts.ChunkSize {
			n = c.opts.ChunkSize
		}
		if err := c.write(MakeReadFbufCmd(c.serialNum, c.frameptr, n, CAMERADELAY)); err != nil {
			return nil, err
		}
		if _, err := c.CheckReply(ctx, CMD_READ_FBUF, HEADER_LEN); err != nil {
			if retry >= 5 || ctx.Err() != nil {
				return nil, fmt.Errorf("read frame buffer at %d: %w", c.frameptr, err)
			}
			glog.Warningln(err.Error(), "retrying...")
			retry++
			c.ClearBuffer(ctx)
			continue
		}

		data, err := c.read(ctx, int(n), 20*c.opts.TimeoutScale)
		c.bufferLen = len(data)
		if err != nil {
			return nil, err
		}
		if uint32(len(data)) < n {
			return nil, fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrShortRead, len(data), n, c.frameptr)
		}
		image = append(image, data...)
		c.frameptr += n
		remaining -= n

		if _, err := c.CheckReply(ctx, CMD_READ_FBUF, HEADER_LEN); err != nil {
			glog.Warningf("error reading end of chunk | start: %d | remaining: %d: %v", c.frameptr, remaining, err)
		}
	}
	return image, nil
}

func (c *Camera) flash(on bool) {
	if c.opts.Flash == nil {
		return
	}
	var err error
	if on {
		err = c.opts.Flash.On()
	} else {
		err = c.opts.Flash.Off()
	}
	if err != nil {
		glog.Warning(err)
	}
}

// freeze holds the current frame and returns its length.
func (c *Camera) freeze(ctx context.Context) (uint32, error) {
	c.frameptr = 0
	if c.opts.Flash != nil {
		c.flash(true)
		t := time.NewTimer(c.opts.FlashWarmup)
		select {
		case <-ctx.Done():
			t.Stop()
			c.flash(false)
			return 0, ctx.Err()
		case <-t.C:
		}
	}
	c.ClearBuffer(ctx)

	err := c.SendCommand(CMD_FBUF_CTRL, []byte{STOP_CURRENT_FRAME})
	c.flash(false)
	if err != nil {
		return 0, err
	}
	if _, err := c.CheckReply(ctx, CMD_FBUF_CTRL, HEADER_LEN); err != nil {
		return 0, fmt.Errorf("freeze frame: %w", err)
	}
	return c.FrameLength(ctx)
}

// Capture freezes a frame and reads it. Frames over the size limit are
// released and captured again, a bounded number of times.
func (c *Camera) Capture(ctx context.Context) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		length, err := c.freeze(ctx)
		if err != nil {
			return nil, err
		}
		if length <= c.opts.MaxImageLen {
			return c.ReadBuffer(ctx, length)
		}
		glog.Errorf("Camera %d image too large. Length [%d] Expected <= %d", c.ttyInterface, length, c.opts.MaxImageLen)
		if err := c.ResumeVideo(ctx); err != nil {
			glog.Warning(err)
		}
		c.ClearBuffer(ctx)
		if attempt >= MAX_LEN_RETRIES {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, length, c.opts.MaxImageLen)
		}
	}
}

// TakePicture captures a frame, stores it at path and resumes video.
func (c *Camera) TakePicture(ctx context.Context, path string) (string, error) {
	img, err := c.Capture(ctx)
	if err != nil {
		if !errors.Is(err, ErrImageTooLarge) && ctx.Err() == nil {
			if rerr := c.ResumeVideo(ctx); rerr != nil {
				glog.Warning(rerr)
			}
		}
		return "", err
	}
	if err := SaveBuffer(path, img); err != nil {
		return "", fmt.Errorf("image file could not be created: %w", err)
	}
	c.imageName = path
	if err := c.ResumeVideo(ctx); err != nil {
		glog.Warning(err)
	}
	c.ClearBuffer(ctx)
	glog.Infof("Camera %d stored as <%s>", c.ttyInterface, path)
	return path, nil
}

func SaveBuffer(filename string, data []byte) (err error) {
	err = os.WriteFile(filename, data, 0644)
	if err != nil {
		glog.Warning(err)
		return
	}
	return
}
