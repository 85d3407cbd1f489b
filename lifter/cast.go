package lifter

import (
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/native"
)

func (l *Lifter) bitcast(ins *native.Instruction) ([]il.Assignment, error) {
	src, err := l.value(ins.Operands[0])
	if err != nil {
		return nil, err
	}
	dst, err := width(ins.Ty)
	if err != nil {
		return nil, err
	}
	lhs := il.Reg(l.names.NameOf(ins), dst)
	a, err := il.NewAssignment(lhs, src, il.Tag(il.OpBitCast, dst))
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}

// ptrToInt truncates the 64-bit pointer to the destination width.
func (l *Lifter) ptrToInt(ins *native.Instruction) ([]il.Assignment, error) {
	lhs, err := l.value(ins)
	if err != nil {
		return nil, err
	}
	a, err := il.NewAssignment(lhs,
		l.valueAt(ins.Operands[0], 64),
		il.Tag(il.OpTrunc, lhs.Size),
	)
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}

// intToPtr zero-extends the integer to 64 bits.
func (l *Lifter) intToPtr(ins *native.Instruction) ([]il.Assignment, error) {
	lhs := il.Reg(l.names.NameOf(ins), 64)
	src, err := l.value(ins.Operands[0])
	if err != nil {
		return nil, err
	}
	a, err := il.NewAssignment(lhs, src, il.Tag(il.OpZeroExtend, 64))
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}
