// Package camsim simulates a VC0706 module on the far side of a serial
// link. It speaks the same command/reply framing as the hardware and keeps
// a frozen frame, motion flags and the registers the driver touches.
package camsim

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	vc0706 "github.com/CACTUS-Mission/cFS-VC0706"
)

const (
	DefaultVersion = "VC0703 1.00"
	// Printed after a reset acknowledgement.
	Banner = "Ctrl infr exist\r\nUser-defined sensor\r\n625\r\nInit end\r\n"

	defaultCompression = 0x36
)

// Command is one command the simulator received.
type Command struct {
	Code byte
	Args []byte
}

type Sim struct {
	mu sync.Mutex

	in  []byte
	out []byte

	serialNum byte
	version   string
	image     []byte
	frozen    []byte
	frames    int

	regs     map[uint32]byte
	downsize byte
	color    [2]byte
	motion   bool
	mute     bool
	fail     map[byte]byte
	closed   bool

	received []Command
}

type Option func(*Sim)

// WithImage serves img for every frame instead of a rendered test pattern.
func WithImage(img []byte) Option {
	return func(s *Sim) { s.image = img }
}

func WithVersion(v string) Option {
	return func(s *Sim) { s.version = v }
}

func WithSerialNumber(sn byte) Option {
	return func(s *Sim) { s.serialNum = sn }
}

func New(opts ...Option) *Sim {
	s := &Sim{
		version: DefaultVersion,
		regs: map[uint32]byte{
			regKey(vc0706.DEVICE_TYPE_I2C_EEPROM, vc0706.REG_IMAGE_SIZE):     vc0706.IMAGE_SIZE_MEDIUM,
			regKey(vc0706.DEVICE_TYPE_CHIP_REGISTER, vc0706.REG_COMPRESSION): defaultCompression,
		},
		fail: make(map[byte]byte),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func regKey(device byte, addr uint16) uint32 {
	return uint32(device)<<16 | uint32(addr)
}

// Fail makes the next reply to cmd carry status instead of success.
func (s *Sim) Fail(cmd, status byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[cmd] = status
}

// Mute stops the simulator from answering.
func (s *Sim) Mute(m bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mute = m
}

func (s *Sim) SetImage(img []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.image = img
}

// TriggerMotion emits a motion alarm if motion detection is armed.
func (s *Sim) TriggerMotion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.motion {
		return false
	}
	s.reply(vc0706.CMD_COMM_MOTION_DETECTED, vc0706.STATUS_SUCCESS, nil)
	return true
}

// Inject queues raw bytes as if the module had sent them.
func (s *Sim) Inject(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, b...)
}

func (s *Sim) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen != nil
}

func (s *Sim) MotionArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.motion
}

func (s *Sim) Register(device byte, addr uint16) byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[regKey(device, addr)]
}

// Commands returns everything received so far.
func (s *Sim) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.received...)
}

// Count returns how many times cmd was received.
func (s *Sim) Count(cmd byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.received {
		if c.Code == cmd {
			n++
		}
	}
	return n
}

func (s *Sim) Buffered() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return len(s.out), nil
}

func (s *Sim) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if len(s.out) == 0 {
		return 0, nil
	}
	n := copy(b, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *Sim) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.in = append(s.in, b...)
	for {
		for len(s.in) > 0 && s.in[0] != vc0706.CMD_SEND {
			s.in = s.in[1:]
		}
		if len(s.in) < 4 {
			break
		}
		n := int(s.in[3])
		if len(s.in) < 4+n {
			break
		}
		cmd := Command{Code: s.in[2], Args: append([]byte(nil), s.in[4:4+n]...)}
		s.in = s.in[4+n:]
		s.received = append(s.received, cmd)
		s.handle(cmd)
	}
	return len(b), nil
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Sim) reply(cmd, status byte, data []byte) {
	s.out = append(s.out, vc0706.MakeReplyCmd(s.serialNum, cmd, status, data)...)
}

func (s *Sim) handle(c Command) {
	if s.mute {
		return
	}
	if status, ok := s.fail[c.Code]; ok {
		delete(s.fail, c.Code)
		s.reply(c.Code, status, nil)
		return
	}
	ok := func() { s.reply(c.Code, vc0706.STATUS_SUCCESS, nil) }
	bad := func(status byte) { s.reply(c.Code, status, nil) }

	switch c.Code {
	case vc0706.CMD_SYSTEM_RESET:
		ok()
		s.frozen = nil
		s.motion = false
		s.out = append(s.out, s.version+"\r\n"+Banner...)
	case vc0706.CMD_GET_VERSION:
		s.reply(c.Code, vc0706.STATUS_SUCCESS, []byte(s.version))
	case vc0706.CMD_FBUF_CTRL:
		if len(c.Args) != 1 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		switch c.Args[0] {
		case vc0706.STOP_CURRENT_FRAME, vc0706.STOP_NEXT_FRAME:
			if s.frozen == nil {
				s.frozen = s.frame()
			}
		case vc0706.STEP_FRAME:
			s.frozen = s.frame()
		case vc0706.RESUME_FRAME:
			s.frozen = nil
		default:
			bad(vc0706.STATUS_DATA_FMT_ERROR)
			return
		}
		ok()
	case vc0706.CMD_GET_FBUF_LEN:
		if s.frozen == nil {
			bad(vc0706.STATUS_CMD_NOT_EXEC)
			return
		}
		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(s.frozen)))
		s.reply(c.Code, vc0706.STATUS_SUCCESS, l)
	case vc0706.CMD_READ_FBUF:
		if len(c.Args) != 12 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		if s.frozen == nil {
			bad(vc0706.STATUS_CMD_NOT_EXEC)
			return
		}
		start := binary.BigEndian.Uint32(c.Args[2:6])
		n := binary.BigEndian.Uint32(c.Args[6:10])
		total := uint32(len(s.frozen))
		if start > total {
			start = total
		}
		end := start + n
		if end > total {
			end = total
		}
		ok()
		s.out = append(s.out, s.frozen[start:end]...)
		ok()
	case vc0706.CMD_WRITE_DATA:
		if len(c.Args) != 5 || c.Args[1] != 0x01 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		addr := binary.BigEndian.Uint16(c.Args[2:4])
		s.regs[regKey(c.Args[0], addr)] = c.Args[4]
		ok()
	case vc0706.CMD_READ_DATA:
		if len(c.Args) != 4 || c.Args[1] != 0x01 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		addr := binary.BigEndian.Uint16(c.Args[2:4])
		s.reply(c.Code, vc0706.STATUS_SUCCESS, []byte{s.regs[regKey(c.Args[0], addr)]})
	case vc0706.CMD_COLOR_CTRL:
		if len(c.Args) != 2 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		copy(s.color[:], c.Args)
		ok()
	case vc0706.CMD_DOWNSIZE_CTRL:
		if len(c.Args) != 1 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		s.downsize = c.Args[0]
		ok()
	case vc0706.CMD_DOWNSIZE_STATUS:
		s.reply(c.Code, vc0706.STATUS_SUCCESS, []byte{s.downsize})
	case vc0706.CMD_MOTION_CTRL:
		ok()
	case vc0706.CMD_COMM_MOTION_CTRL:
		if len(c.Args) != 1 {
			bad(vc0706.STATUS_DATA_LEN_ERROR)
			return
		}
		s.motion = c.Args[0] == 0x01
		ok()
	case vc0706.CMD_COMM_MOTION_STATUS:
		var flag byte
		if s.motion {
			flag = 0x01
		}
		s.reply(c.Code, vc0706.STATUS_SUCCESS, []byte{flag})
	default:
		glog.V(1).Infof("camsim: unsupported command 0x%02x", c.Code)
		bad(vc0706.STATUS_DATA_FMT_ERROR)
	}
}

func (s *Sim) frame() []byte {
	s.frames++
	if s.image != nil {
		return append([]byte{}, s.image...)
	}
	img, err := s.render()
	if err != nil {
		glog.Warning(err)
		return []byte{}
	}
	return img
}

// render draws a test pattern stamped with the frame number.
func (s *Sim) render() ([]byte, error) {
	w, h := vc0706.ImageDimensions(s.regs[regKey(vc0706.DEVICE_TYPE_I2C_EEPROM, vc0706.REG_IMAGE_SIZE)])
	switch s.downsize {
	case 0x11:
		w, h = w/2, h/2
	case 0x22:
		w, h = w/4, h/4
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	gray := s.color[1] == vc0706.COLOR_SHOW_MODE_BLACK
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r := uint8(x * 255 / w)
			g := uint8(y * 255 / h)
			b := uint8((s.frames * 16) & 0xff)
			if gray {
				r = uint8((int(r) + int(g)) / 2)
				g, b = r, r
			}
			img.Set(x, y, color.RGBA{R: r, G: g, B: b, A: 0xff})
		}
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, 14),
	}
	d.DrawString(fmt.Sprintf("%s #%d", s.version, s.frames))

	comp := int(s.regs[regKey(vc0706.DEVICE_TYPE_CHIP_REGISTER, vc0706.REG_COMPRESSION)])
	quality := 100 - comp*100/255
	if quality < 1 {
		quality = 1
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
