// Package events reports application events with per-id binary filters.
package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

type ID uint16

const (
	ReservedEID ID = iota
	StartupInfEID
	CommandErrEID
	CommandNopInfEID
	CommandRstInfEID
	InvalidMsgIDErrEID
	// Ingress message length and camera reply length.
	LenErrEID
	ChildInitErrEID
	ChildInitEID
	ReplyErrEID
	ChildInitInfEID
)

type Type uint8

const (
	Debug Type = iota + 1
	Information
	Error
	Critical
)

func (t Type) String() string {
	switch t {
	case Debug:
		return "DEBUG"
	case Information:
		return "INFO"
	case Error:
		return "ERROR"
	case Critical:
		return "CRIT"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

type Event struct {
	App     string
	ID      ID
	Type    Type
	Message string
	Time    time.Time
}

// Sink receives every event that passes its filter.
type Sink interface {
	Emit(Event)
}

// BinFilter drops an event unless the number of times it was raised so far,
// ANDed with Mask, is zero. Mask 0 passes everything; 0xFFFF passes only the
// first occurrence.
type BinFilter struct {
	ID   ID
	Mask uint16
}

type filterState struct {
	mask  uint16
	count uint16
}

type Service struct {
	app     string
	mu      sync.Mutex
	filters map[ID]*filterState
	sinks   []Sink
	now     func() time.Time
}

// New registers an application's filters. Ids without a filter always pass.
func New(app string, filters []BinFilter, sinks ...Sink) *Service {
	s := &Service{
		app:     app,
		filters: make(map[ID]*filterState, len(filters)),
		sinks:   sinks,
		now:     time.Now,
	}
	for _, f := range filters {
		s.filters[f.ID] = &filterState{mask: f.Mask}
	}
	return s
}

func (s *Service) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Send formats and emits an event. It reports whether the event passed its
// filter.
func (s *Service) Send(id ID, typ Type, format string, args ...any) bool {
	s.mu.Lock()
	if f, ok := s.filters[id]; ok {
		pass := f.count&f.mask == 0
		if f.count < 0xFFFF {
			f.count++
		}
		if !pass {
			s.mu.Unlock()
			return false
		}
	}
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	ev := Event{
		App:     s.app,
		ID:      id,
		Type:    typ,
		Message: fmt.Sprintf(format, args...),
		Time:    s.now(),
	}
	for _, sink := range sinks {
		sink.Emit(ev)
	}
	return true
}

// ResetFilter clears the occurrence count of id.
func (s *Service) ResetFilter(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.filters[id]; ok {
		f.count = 0
	}
}

// GlogSink writes events to glog at a severity matching their type.
type GlogSink struct{}

func (GlogSink) Emit(ev Event) {
	line := fmt.Sprintf("%s %d %s: %s", ev.App, ev.ID, ev.Type, ev.Message)
	switch ev.Type {
	case Debug:
		glog.V(1).Info(line)
	case Information:
		glog.Info(line)
	case Error:
		glog.Error(line)
	case Critical:
		glog.Error(line)
	default:
		glog.Warning(line)
	}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// IDs lists recorded event ids in order.
func (r *Recorder) IDs() []ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]ID, len(r.events))
	for i, ev := range r.events {
		ids[i] = ev.ID
	}
	return ids
}

func (r *Recorder) Count(id ID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.ID == id {
			n++
		}
	}
	return n
}
