package alu

import (
	"fmt"

	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
	"golang.org/x/exp/rand"
)

// MaxHandlers is the size of the handler table.
const MaxHandlers = 512

// Options are the handler generator knobs.
type Options struct {
	NumALUs      int  // highest arithmetic handler index
	Reserved     int  // handlers below this index are not generated
	MinSemantics int  // semantics per handler, lower bound
	MaxSemantics int  // semantics per handler, upper bound
	Shuffle      bool // random slot order instead of handler-major
	Duplicate    bool // identical semantics may land in a second slot
}

func DefaultOptions() Options {
	return Options{
		NumALUs:      511,
		Reserved:     2,
		MinSemantics: 3,
		MaxSemantics: 5,
		Shuffle:      true,
	}
}

func (o Options) Validate() error {
	switch {
	case o.Reserved < 2:
		return fmt.Errorf("reserved handlers %d < 2: %w", o.Reserved, lokierrors.ErrCInvalid)
	case o.NumALUs >= MaxHandlers || o.NumALUs < o.Reserved:
		return fmt.Errorf("num_alus %d outside [%d, %d]: %w", o.NumALUs, o.Reserved, MaxHandlers-1, lokierrors.ErrCInvalid)
	case o.MinSemantics < 1 || o.MaxSemantics < o.MinSemantics:
		return fmt.Errorf("semantics per alu %d..%d: %w", o.MinSemantics, o.MaxSemantics, lokierrors.ErrCInvalid)
	}
	return nil
}

// Slot addresses one semantics: a handler index and a key index into that
// handler's key list.
type Slot struct {
	Handler uint16
	Key     int
}

// Handler is a generated arithmetic handler.
type Handler struct {
	Index     uint16
	Semantics []*Expr
	Keys      []uint64
	Program   *Program
}

// Scheduler places block semantics into handler slots.
type Scheduler struct {
	opts   Options
	r      *rand.Rand
	slots  map[uint16][]*Expr
	bySem  map[string][]Slot
	cursor int
	used   int
}

func NewScheduler(opts Options, r *rand.Rand) (*Scheduler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		opts:  opts,
		r:     r,
		slots: make(map[uint16][]*Expr),
		bySem: make(map[string][]Slot),
	}, nil
}

func (s *Scheduler) capacity() int {
	return (s.opts.NumALUs - s.opts.Reserved + 1) * s.opts.MaxSemantics
}

// Assign returns the slot for sem, reusing the slot of an identical
// semantics when there is one.
func (s *Scheduler) Assign(sem *Expr) (Slot, error) {
	text := sem.Program().String()
	if prev := s.bySem[text]; len(prev) > 0 {
		if !s.opts.Duplicate || s.r.Intn(3) < 2 {
			return prev[s.r.Intn(len(prev))], nil
		}
	}
	slot, err := s.free()
	if err != nil {
		return Slot{}, err
	}
	sems := s.slots[slot.Handler]
	if len(sems) <= slot.Key {
		sems = append(sems, make([]*Expr, slot.Key+1-len(sems))...)
	}
	sems[slot.Key] = sem
	s.slots[slot.Handler] = sems
	s.bySem[text] = append(s.bySem[text], slot)
	s.used++
	log.Trace(log.ALUMonitoring, "scheduled semantics", "handler", slot.Handler, "key", slot.Key)
	return slot, nil
}

func (s *Scheduler) taken(sl Slot) bool {
	sems := s.slots[sl.Handler]
	return sl.Key < len(sems) && sems[sl.Key] != nil
}

func (s *Scheduler) free() (Slot, error) {
	if s.used >= s.capacity() {
		return Slot{}, fmt.Errorf("%d slots: %w", s.capacity(), lokierrors.ErrESchedulerExhausted)
	}
	per := s.opts.MaxSemantics
	if !s.opts.Shuffle {
		for {
			sl := Slot{Handler: uint16(s.opts.Reserved + s.cursor/per), Key: s.cursor % per}
			s.cursor++
			if !s.taken(sl) {
				return sl, nil
			}
		}
	}
	span := s.opts.NumALUs - s.opts.Reserved + 1
	for {
		sl := Slot{Handler: uint16(s.opts.Reserved + s.r.Intn(span)), Key: s.r.Intn(per)}
		if !s.taken(sl) {
			return sl, nil
		}
	}
}

// Build generates every handler from Reserved to NumALUs. Unused slots are
// filled with decoys and each handler gets between MinSemantics and
// MaxSemantics keys.
func (s *Scheduler) Build(keys *KeySet) ([]Handler, error) {
	out := make([]Handler, 0, s.opts.NumALUs-s.opts.Reserved+1)
	for h := s.opts.Reserved; h <= s.opts.NumALUs; h++ {
		sems := s.slots[uint16(h)]
		lo := s.opts.MinSemantics
		if len(sems) > lo {
			lo = len(sems)
		}
		n := lo + s.r.Intn(s.opts.MaxSemantics-lo+1)
		all := make([]*Expr, n)
		copy(all, sems)
		for i := range all {
			if all[i] == nil {
				all[i] = Decoy(s.r)
			}
		}
		ks := keys.Take(n)
		prog, err := MetaALU(all, ks)
		if err != nil {
			return nil, fmt.Errorf("handler %d: %w", h, err)
		}
		out = append(out, Handler{Index: uint16(h), Semantics: all, Keys: ks, Program: prog})
	}
	log.Debug(log.ALUMonitoring, "built handlers", "count", len(out), "semantics", s.used)
	return out, nil
}
