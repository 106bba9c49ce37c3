// Package ccsds encodes the space packets carried on the software bus:
// a 6 byte primary header followed by a command or telemetry secondary
// header and the payload. Multi-byte fields are big-endian.
package ccsds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	PrimaryHeaderSize = 6
	CmdHeaderSize     = PrimaryHeaderSize + 2
	TlmHeaderSize     = PrimaryHeaderSize + 6

	typeCmd  = 0x1000
	apidMask = 0x07FF
	seqMask  = 0x3FFF
	// Sequence flags: unsegmented.
	seqFlags = 0xC000
)

var (
	ErrShortPacket    = errors.New("ccsds: packet shorter than its header")
	ErrLengthMismatch = errors.New("ccsds: length field does not match packet size")
)

// MsgID is the whole stream id word of the primary header: version,
// packet type, secondary header flag and APID.
type MsgID uint16

func (m MsgID) IsCommand() bool { return uint16(m)&typeCmd != 0 }
func (m MsgID) APID() uint16    { return uint16(m) & apidMask }
func (m MsgID) String() string  { return fmt.Sprintf("0x%04X", uint16(m)) }

// Packet is a complete encoded packet.
type Packet []byte

// NewCommand allocates a command packet with payloadLen payload bytes.
func NewCommand(mid MsgID, code uint8, payloadLen int) Packet {
	p := make(Packet, CmdHeaderSize+payloadLen)
	p.init(mid)
	p.SetCmdCode(code)
	return p
}

// NewTelemetry allocates a telemetry packet with payloadLen payload bytes.
func NewTelemetry(mid MsgID, payloadLen int) Packet {
	p := make(Packet, TlmHeaderSize+payloadLen)
	p.init(mid)
	return p
}

func (p Packet) init(mid MsgID) {
	binary.BigEndian.PutUint16(p[0:2], uint16(mid))
	binary.BigEndian.PutUint16(p[2:4], seqFlags)
	p.SetTotalLength(len(p))
}

// Parse checks that b holds one whole packet.
func Parse(b []byte) (Packet, error) {
	if len(b) < PrimaryHeaderSize {
		return nil, ErrShortPacket
	}
	p := Packet(b)
	if p.TotalLength() != len(b) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrLengthMismatch, p.TotalLength(), len(b))
	}
	hdr := TlmHeaderSize
	if p.MsgID().IsCommand() {
		hdr = CmdHeaderSize
	}
	if len(b) < hdr {
		return nil, ErrShortPacket
	}
	return p, nil
}

func (p Packet) MsgID() MsgID {
	return MsgID(binary.BigEndian.Uint16(p[0:2]))
}

func (p Packet) Sequence() uint16 {
	return binary.BigEndian.Uint16(p[2:4]) & seqMask
}

func (p Packet) SetSequence(n uint16) {
	binary.BigEndian.PutUint16(p[2:4], seqFlags|n&seqMask)
}

// TotalLength decodes the length field, which holds total length minus 7.
func (p Packet) TotalLength() int {
	return int(binary.BigEndian.Uint16(p[4:6])) + 7
}

func (p Packet) SetTotalLength(n int) {
	binary.BigEndian.PutUint16(p[4:6], uint16(n-7))
}

func (p Packet) IsCommand() bool { return p.MsgID().IsCommand() }

func (p Packet) headerSize() int {
	if p.IsCommand() {
		return CmdHeaderSize
	}
	return TlmHeaderSize
}

func (p Packet) Payload() []byte {
	return p[p.headerSize():]
}

func (p Packet) CmdCode() uint8 {
	return p[PrimaryHeaderSize] & 0x7F
}

func (p Packet) SetCmdCode(code uint8) {
	p[PrimaryHeaderSize] = code & 0x7F
}

func (p Packet) computeChecksum() uint8 {
	sum := uint8(0xFF)
	for _, b := range p {
		sum ^= b
	}
	return sum
}

// GenerateChecksum sets the command checksum so the whole packet XORs,
// seeded with 0xFF, to zero.
func (p Packet) GenerateChecksum() {
	p[PrimaryHeaderSize+1] = 0
	p[PrimaryHeaderSize+1] = p.computeChecksum()
}

func (p Packet) ValidChecksum() bool {
	return p.computeChecksum() == 0
}

// SetTime stamps a telemetry packet: 4 bytes of seconds, 2 bytes of
// 1/65536 second units.
func (p Packet) SetTime(t time.Time) {
	binary.BigEndian.PutUint32(p[6:10], uint32(t.Unix()))
	sub := uint64(t.Nanosecond()) << 16 / uint64(time.Second)
	binary.BigEndian.PutUint16(p[10:12], uint16(sub))
}

func (p Packet) Time() time.Time {
	sec := int64(binary.BigEndian.Uint32(p[6:10]))
	sub := uint64(binary.BigEndian.Uint16(p[10:12]))
	return time.Unix(sec, int64(sub*uint64(time.Second)>>16)).UTC()
}

// Clone returns a copy that does not share memory with p.
func (p Packet) Clone() Packet {
	return append(Packet(nil), p...)
}
