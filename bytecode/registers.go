package bytecode

import (
	"fmt"

	"github.com/colorfulnotion/loki/lokierrors"
)

// OutputName is the pseudo register bound to register 0.
const OutputName = "out_reg"

// MaxRegisters is the size of the VM register file.
const MaxRegisters = 1 << 16

// RegisterAllocator binds names to register indices in order of first use.
// Register 0 is the output and register 1 the instruction pointer.
type RegisterAllocator struct {
	index map[string]uint16
	order []string
}

func NewRegisterAllocator() *RegisterAllocator {
	return &RegisterAllocator{index: make(map[string]uint16)}
}

func (ra *RegisterAllocator) Index(name string) (uint16, error) {
	if name == OutputName {
		return RegOut, nil
	}
	if idx, ok := ra.index[name]; ok {
		return idx, nil
	}
	next := len(ra.order) + 2
	if next >= MaxRegisters {
		return 0, fmt.Errorf("%q: %w", name, lokierrors.ErrERegisterOverflow)
	}
	ra.index[name] = uint16(next)
	ra.order = append(ra.order, name)
	return uint16(next), nil
}

func (ra *RegisterAllocator) Lookup(name string) (uint16, bool) {
	if name == OutputName {
		return RegOut, true
	}
	idx, ok := ra.index[name]
	return idx, ok
}

// Names lists allocated names in index order starting at register 2.
func (ra *RegisterAllocator) Names() []string {
	return ra.order
}

func (ra *RegisterAllocator) Len() int { return len(ra.order) }
