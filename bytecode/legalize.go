package bytecode

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
)

// legalizer rewrites assignments that do not fit one record: a block has at
// most two input registers and one distinct constant, and memory records
// carry their operands in registers.
type legalizer struct {
	taken map[string]bool
	n     int
	out   []il.Assignment
}

func newLegalizer(doc *il.Document) *legalizer {
	lz := &legalizer{taken: map[string]bool{OutputName: true}}
	for _, a := range doc.Arguments {
		lz.taken[a] = true
	}
	for _, a := range doc.Instructions {
		lz.taken[a.LHS.Name] = true
	}
	return lz
}

func (lz *legalizer) fresh(prefix string) string {
	for {
		name := fmt.Sprintf("%s%d", prefix, lz.n)
		lz.n++
		if !lz.taken[name] {
			lz.taken[name] = true
			return name
		}
	}
}

// materialize emits name = ZeroExtend(const) and returns the register.
func (lz *legalizer) materialize(c il.Elem) il.Elem {
	r := il.Reg(lz.fresh("__k_"), c.Size)
	lz.out = append(lz.out, il.Assignment{LHS: r, RHS: []il.Elem{c, il.Tag(il.OpZeroExtend, c.Size)}, Size: c.Size})
	return r
}

// accessBits returns the record access width for a load or store of bits:
// the smallest of 8, 16, 32 and 64 that holds it.
func accessBits(bits uint) uint {
	for _, w := range []uint{8, 16, 32} {
		if bits <= w {
			return w
		}
	}
	return 64
}

// widenAccess emits a memory assignment. Loads and stores whose width has
// no record encoding go through a register of the access width: loads are
// truncated after, stores zero-extend the value and, when the value covers
// fewer bytes than the access, merge it into the bytes already in memory.
func (lz *legalizer) widenAccess(lhs il.Elem, rhs []il.Elem) {
	tag := rhs[len(rhs)-1]
	w := accessBits(tag.Size)
	if tag.Op == il.OpAlloca || w == tag.Size {
		lz.out = append(lz.out, il.Assignment{LHS: lhs, RHS: rhs, Size: lhs.Size})
		return
	}
	addr := rhs[0]
	wide := il.Reg(lz.fresh("__mem_"), w)
	if tag.Op == il.OpLoad {
		lz.out = append(lz.out, il.Assignment{LHS: wide, RHS: []il.Elem{addr, il.Tag(il.OpLoad, w)}, Size: w})
		lz.out = append(lz.out, il.Assignment{LHS: lhs, RHS: []il.Elem{wide, il.Tag(il.OpTrunc, lhs.Size)}, Size: lhs.Size})
		return
	}

	val := il.Reg(lz.fresh("__mem_"), w)
	lz.out = append(lz.out, il.Assignment{LHS: val, RHS: []il.Elem{rhs[1], il.Tag(il.OpZeroExtend, w)}, Size: w})
	if covered := uint(common.ByteSize(uint64(tag.Size)) * 8); covered < w {
		old := il.Reg(lz.fresh("__mem_"), w)
		kept := il.Reg(lz.fresh("__mem_"), w)
		merged := il.Reg(lz.fresh("__mem_"), w)
		keep := common.Mask(^common.Mask(^uint64(0), covered), w)
		lz.out = append(lz.out,
			il.Assignment{LHS: old, RHS: []il.Elem{addr, il.Tag(il.OpLoad, w)}, Size: w},
			il.Assignment{LHS: kept, RHS: []il.Elem{old, il.Const(w, keep), il.Tag(il.OpAnd, w)}, Size: w},
			il.Assignment{LHS: merged, RHS: []il.Elem{kept, val, il.Tag(il.OpOr, w)}, Size: w},
		)
		val = merged
	}
	lz.out = append(lz.out,
		il.Assignment{LHS: wide, RHS: []il.Elem{addr, val, il.Tag(il.OpStore, w)}, Size: w},
		il.Assignment{LHS: lhs, RHS: []il.Elem{wide, il.Tag(il.OpTrunc, lhs.Size)}, Size: lhs.Size},
	)
}

// Legalize returns a copy of doc in which every assignment maps to exactly
// one record.
func Legalize(doc *il.Document) (*il.Document, error) {
	lz := newLegalizer(doc)
	for _, a := range doc.Instructions {
		if err := lz.assignment(a); err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}
	}
	return &il.Document{Instructions: lz.out, Arguments: doc.Arguments}, nil
}

func (lz *legalizer) assignment(a il.Assignment) error {
	rhs := append([]il.Elem(nil), a.RHS...)
	op := a.Op()
	if op.IsMemory() {
		if op != il.OpAlloca {
			for i, el := range rhs[:len(rhs)-1] {
				if el.IsConst() {
					rhs[i] = lz.materialize(el)
				}
			}
		}
		lz.widenAccess(a.LHS, rhs)
		return nil
	}

	// keep the first distinct constant, move the others into registers
	var first *uint64
	for i, el := range rhs[:len(rhs)-1] {
		if !el.IsConst() {
			continue
		}
		if first == nil {
			v := el.Const
			first = &v
			continue
		}
		if el.Const != *first {
			rhs[i] = lz.materialize(el)
		}
	}

	regs := map[string]bool{}
	for _, el := range rhs {
		if el.IsReg() {
			regs[el.Name] = true
		}
	}
	if len(regs) <= 2 {
		lz.out = append(lz.out, il.Assignment{LHS: a.LHS, RHS: rhs, Size: a.Size})
		return nil
	}
	if op != il.OpIte {
		return fmt.Errorf("%d input registers: %w", len(regs), lokierrors.ErrETooManyInputs)
	}

	// c ? a : b  ==  (c ? a : 0) | (c ? 0 : b)
	cond, tv, fv := rhs[0], rhs[1], rhs[2]
	t1 := il.Reg(lz.fresh("__ite_"), a.Size)
	t2 := il.Reg(lz.fresh("__ite_"), a.Size)
	zero := il.Const(a.Size, 0)
	lz.out = append(lz.out,
		il.Assignment{LHS: t1, RHS: []il.Elem{cond, tv, zero, il.Tag(il.OpIte, a.Size)}, Size: a.Size},
		il.Assignment{LHS: t2, RHS: []il.Elem{cond, zero, fv, il.Tag(il.OpIte, a.Size)}, Size: a.Size},
		il.Assignment{LHS: a.LHS, RHS: []il.Elem{t1, t2, il.Tag(il.OpOr, a.Size)}, Size: a.Size},
	)
	return nil
}
