package lifter

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/native"
)

func (l *Lifter) gep(ins *native.Instruction) ([]il.Assignment, error) {
	if !l.opts.ForceDynamicGEP {
		if off, ok := l.opts.Layout.ConstantOffset(ins); ok {
			return l.gepConstant(ins, off)
		}
	}
	return l.gepDynamic(ins)
}

// gepConstant: [base:64, offset:64, GEP:64].
func (l *Lifter) gepConstant(ins *native.Instruction, off uint64) ([]il.Assignment, error) {
	bits := l.opts.Layout.IndexBits()
	lhs := il.Reg(l.names.NameOf(ins), bits)
	a, err := il.NewAssignment(lhs,
		l.valueAt(ins.Operands[0], bits),
		il.Const(bits, off),
		il.Tag(il.OpGEP, bits),
	)
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}

// gepDynamic computes the offset with explicit arithmetic: every index is
// scaled by its stride divided by g, the terms are summed left to right and
// the sum is multiplied by g, where g is the gcd of all strides and member
// offsets. With a single element type g is the element size and each term
// is the bare index. Constant terms are folded into one.
func (l *Lifter) gepDynamic(ins *native.Instruction) ([]il.Assignment, error) {
	indices, err := l.opts.Layout.GEPIndices(ins)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, lokierrors.ErrTGEPNoOffset)
	}
	bits := l.opts.Layout.IndexBits()
	if len(indices) == 0 {
		return l.gepConstant(ins, 0)
	}

	var g uint64
	for _, ix := range indices {
		if ix.Field {
			g = common.GCD(g, ix.FieldOffset)
		} else {
			g = common.GCD(g, ix.Stride)
		}
	}
	if g == 0 {
		g = 1
	}

	var (
		out       []il.Assignment
		terms     []il.Elem
		constSum  uint64
		haveConst bool
	)
	emit := func(rhs ...il.Elem) (il.Elem, error) {
		lhs := il.Reg(l.names.Fresh(), bits)
		a, err := il.NewAssignment(lhs, rhs...)
		if err != nil {
			return il.Elem{}, err
		}
		out = append(out, a)
		return lhs, nil
	}

	for _, ix := range indices {
		if ix.Field {
			constSum += ix.FieldOffset / g
			haveConst = true
			continue
		}
		scale := ix.Stride / g
		if c, ok := ix.Value.(*native.Const); ok {
			constSum += uint64(c.Signed()) * scale
			haveConst = true
			continue
		}
		if scale == 0 {
			continue
		}
		term, err := l.value(ix.Value)
		if err != nil {
			return nil, err
		}
		if term.Size < bits {
			if term, err = emit(term, il.Tag(il.OpSignExtend, bits)); err != nil {
				return nil, err
			}
		}
		if scale != 1 {
			if term, err = emit(term, il.Const(bits, scale), il.Tag(il.OpMul, bits)); err != nil {
				return nil, err
			}
		}
		terms = append(terms, term)
	}
	if haveConst && (constSum != 0 || len(terms) == 0) {
		terms = append(terms, il.Const(bits, constSum))
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%s: %w", ins, lokierrors.ErrTGEPNoOffset)
	}

	sum := terms[0]
	for _, t := range terms[1:] {
		if sum, err = emit(sum, t, il.Tag(il.OpAdd, bits)); err != nil {
			return nil, err
		}
	}
	offset, err := emit(sum, il.Const(bits, g), il.Tag(il.OpMul, bits))
	if err != nil {
		return nil, err
	}

	base := l.valueAt(ins.Operands[0], bits)
	lhs := il.Reg(l.names.NameOf(ins), bits)
	a, err := il.NewAssignment(lhs, base, offset, il.Tag(il.OpGEP, bits))
	if err != nil {
		return nil, err
	}
	return append(out, a), nil
}
