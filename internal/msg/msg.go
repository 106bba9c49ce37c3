// Package msg defines the packets the camera application exchanges on the
// software bus.
package msg

import (
	"bytes"
	"fmt"
	"time"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
)

const (
	CmdMID      ccsds.MsgID = 0x1887
	SendHKMID   ccsds.MsgID = 0x1888
	HKTlmMID    ccsds.MsgID = 0x0887
	ImageCmdMID ccsds.MsgID = 0x188A // downlink application's command id
)

// Ground command codes
const (
	NoopCC          uint8 = 0
	ResetCountersCC uint8 = 1
)

// Downlink application command codes, one per camera.
const (
	Image0CC uint8 = 3
	Image1CC uint8 = 5
)

const (
	// <reboots>_<camera>_<picture>.jpg plus room to grow
	MaxFilenameLen  = 24
	MaxImageNameLen = 15

	NoArgsCmdLen = ccsds.CmdHeaderSize
	HKTlmLen     = ccsds.TlmHeaderSize + 2 + MaxFilenameLen
	ImageCmdLen  = ccsds.CmdHeaderSize + MaxImageNameLen
)

// NoArgsCmd builds a command that is only a header.
func NoArgsCmd(mid ccsds.MsgID, code uint8) ccsds.Packet {
	p := ccsds.NewCommand(mid, code, 0)
	p.GenerateChecksum()
	return p
}

// HKTlm is the housekeeping telemetry of the camera application.
type HKTlm struct {
	CommandErrorCount uint8
	CommandCount      uint8
	Filename          string
}

func (h HKTlm) Packet(t time.Time) ccsds.Packet {
	p := ccsds.NewTelemetry(HKTlmMID, HKTlmLen-ccsds.TlmHeaderSize)
	p.SetTime(t)
	pl := p.Payload()
	pl[0] = h.CommandErrorCount
	pl[1] = h.CommandCount
	putString(pl[2:], h.Filename)
	return p
}

func DecodeHK(p ccsds.Packet) (HKTlm, error) {
	if p.MsgID() != HKTlmMID {
		return HKTlm{}, fmt.Errorf("msg: %s is not housekeeping telemetry", p.MsgID())
	}
	if len(p) != HKTlmLen {
		return HKTlm{}, fmt.Errorf("msg: housekeeping length %d, expected %d", len(p), HKTlmLen)
	}
	pl := p.Payload()
	return HKTlm{
		CommandErrorCount: pl[0],
		CommandCount:      pl[1],
		Filename:          getString(pl[2:]),
	}, nil
}

// ImageCmd tells the downlink application a picture is ready.
type ImageCmd struct {
	Code uint8
	Name string
}

// ImageCmdCode picks the command code from the camera digit in a name of
// the form RRR_C_NNNN.jpg. Unknown digits fall back to camera 0.
func ImageCmdCode(name string) (code uint8, known bool) {
	if len(name) > 4 {
		switch name[4] {
		case '0':
			return Image0CC, true
		case '1':
			return Image1CC, true
		}
	}
	return Image0CC, false
}

func (c ImageCmd) Packet() ccsds.Packet {
	p := ccsds.NewCommand(ImageCmdMID, c.Code, MaxImageNameLen)
	putString(p.Payload(), c.Name)
	p.GenerateChecksum()
	return p
}

func DecodeImageCmd(p ccsds.Packet) (ImageCmd, error) {
	if p.MsgID() != ImageCmdMID {
		return ImageCmd{}, fmt.Errorf("msg: %s is not an image command", p.MsgID())
	}
	if len(p) != ImageCmdLen {
		return ImageCmd{}, fmt.Errorf("msg: image command length %d, expected %d", len(p), ImageCmdLen)
	}
	return ImageCmd{Code: p.CmdCode(), Name: getString(p.Payload())}, nil
}

// putString copies s into a NUL terminated field, truncating as needed.
func putString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	copy(dst, s)
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
