// Package gpio drives output lines through the kernel's GPIO character
// device: the camera flash LED and the parallel photo counter.
package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	"github.com/warthog618/go-gpiocdev"
)

const (
	DefaultChip = "gpiochip0"
	consumer    = "vc0706"
)

// Pin is a digital output.
type Pin interface {
	Set(high bool) error
}

// LinePin is a chip line requested as an output.
type LinePin struct {
	num  int
	line *gpiocdev.Line
}

// OpenOutput requests line num of chip as an output driven low.
func OpenOutput(chip string, num int) (*LinePin, error) {
	if chip == "" {
		chip = DefaultChip
	}
	l, err := gpiocdev.RequestLine(chip, num, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("gpio %s:%d: %w", chip, num, err)
	}
	return &LinePin{num: num, line: l}, nil
}

func (p *LinePin) Num() int { return p.num }

func (p *LinePin) Set(high bool) error {
	v := 0
	if high {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("gpio %d: %w", p.num, err)
	}
	return nil
}

func (p *LinePin) Close() error {
	return p.line.Close()
}

// NopPin accepts writes and does nothing, for boards without the line.
type NopPin struct{}

func (NopPin) Set(bool) error { return nil }

// LED is the flash attached to one pin.
type LED struct {
	mu  sync.Mutex
	pin Pin
	on  bool
}

// NewLED takes over pin and turns the LED off.
func NewLED(pin Pin) (*LED, error) {
	l := &LED{pin: pin}
	if err := l.Off(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LED) On() error  { return l.set(true) }
func (l *LED) Off() error { return l.set(false) }

func (l *LED) set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.pin.Set(on); err != nil {
		return err
	}
	l.on = on
	return nil
}

func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// ParallelBus presents a number on a set of pins, least significant bit
// first.
type ParallelBus struct {
	pins []Pin
}

// NewParallelBus takes over pins and clears them.
func NewParallelBus(pins ...Pin) (*ParallelBus, error) {
	b := &ParallelBus{pins: pins}
	if err := b.Write(0); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *ParallelBus) Width() int { return len(b.pins) }

// Write sets the low Width() bits of v. Higher bits wrap around.
func (b *ParallelBus) Write(v uint8) error {
	var errs []error
	for i, p := range b.pins {
		if err := p.Set(v&(1<<uint(i)) != 0); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		glog.Warningf("gpio: photo count %d: %d pins failed", v, len(errs))
	}
	return errors.Join(errs...)
}

// OpenParallelBus requests every line of chip in nums as an output.
func OpenParallelBus(chip string, nums []int) (*ParallelBus, []*LinePin, error) {
	pins := make([]Pin, 0, len(nums))
	opened := make([]*LinePin, 0, len(nums))
	for _, n := range nums {
		p, err := OpenOutput(chip, n)
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			return nil, nil, err
		}
		pins = append(pins, p)
		opened = append(opened, p)
	}
	b, err := NewParallelBus(pins...)
	return b, opened, err
}
