// Package journal keeps a CBOR record of the telemetry and image
// notifications seen on the software bus.
package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
)

var ErrClosed = errors.New("journal closed")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal: cbor decoder: %v", err))
	}
}

type Kind uint8

const (
	KindOther Kind = iota
	KindHousekeeping
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindHousekeeping:
		return "HK"
	case KindImage:
		return "IMAGE"
	}
	return "OTHER"
}

// Entry is one packet as it appeared on the bus.
type Entry struct {
	ID     string    `cbor:"1,keyasint"`
	Time   time.Time `cbor:"2,keyasint"`
	MsgID  uint16    `cbor:"3,keyasint"`
	Kind   Kind      `cbor:"4,keyasint"`
	Code   uint8     `cbor:"5,keyasint,omitempty"`
	Name   string    `cbor:"6,keyasint,omitempty"` // picture name, if any
	Packet []byte    `cbor:"7,keyasint"`
}

// NewEntry classifies pkt and stamps it with a fresh id.
func NewEntry(pkt ccsds.Packet, t time.Time) Entry {
	e := Entry{
		ID:     uuid.New().String(),
		Time:   t,
		MsgID:  uint16(pkt.MsgID()),
		Packet: append([]byte(nil), pkt...),
	}
	switch pkt.MsgID() {
	case msg.HKTlmMID:
		if hk, err := msg.DecodeHK(pkt); err == nil {
			e.Kind = KindHousekeeping
			e.Name = hk.Filename
		}
	case msg.ImageCmdMID:
		if cmd, err := msg.DecodeImageCmd(pkt); err == nil {
			e.Kind = KindImage
			e.Code = cmd.Code
			e.Name = cmd.Name
		}
	default:
		if pkt.IsCommand() {
			e.Code = pkt.CmdCode()
		}
	}
	return e
}

func (e Entry) String() string {
	s := fmt.Sprintf("%s %s %s 0x%04X", e.Time.Format(time.RFC3339Nano), e.ID, e.Kind, e.MsgID)
	if e.Kind == KindImage || e.Code != 0 {
		s += fmt.Sprintf(" cc=%d", e.Code)
	}
	if e.Name != "" {
		s += " " + e.Name
	}
	return s
}

// Writer appends entries to a file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	closed bool
}

// Create opens path for appending, creating it if needed.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{file: f, enc: encMode.NewEncoder(f)}, nil
}

func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.enc.Encode(e)
}

// Close may be called more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Kind  *Kind
	MsgID uint16
	Since time.Time
	ID    string
}

func (f Filter) matches(e Entry) bool {
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.MsgID != 0 && e.MsgID != f.MsgID {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.ID != "" && e.ID != f.ID {
		return false
	}
	return true
}

// Reader streams entries from a journal file.
type Reader struct {
	file   *os.File
	dec    *cbor.Decoder
	filter Filter
}

func Open(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: decMode.NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching entry, or io.EOF.
func (r *Reader) Next() (Entry, error) {
	for {
		var e Entry
		if err := r.dec.Decode(&e); err != nil {
			if err == io.EOF {
				return Entry{}, io.EOF
			}
			return Entry{}, fmt.Errorf("journal: %w", err)
		}
		if r.filter.matches(e) {
			return e, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}
