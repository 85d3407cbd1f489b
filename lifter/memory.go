package lifter

import (
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/native"
)

// store defines a fresh __mem_N sized by the stored value; the right-hand
// side lists the operands in reverse: [ptr:64, value, Store].
func (l *Lifter) store(ins *native.Instruction) ([]il.Assignment, error) {
	val, ptr := ins.Operands[0], ins.Operands[1]
	v, err := l.value(val)
	if err != nil {
		return nil, err
	}
	p, err := l.value(ptr)
	if err != nil {
		return nil, err
	}
	lhs := il.Reg(l.names.FreshMemory(), v.Size)
	a, err := il.NewAssignment(lhs, p, v, il.Tag(il.OpStore, v.Size))
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}

// alloca: [bits:64, Alloca:64]. The constant is the allocated size in bits.
func (l *Lifter) alloca(ins *native.Instruction) ([]il.Assignment, error) {
	lhs := il.Reg(l.names.NameOf(ins), 64)
	a, err := il.NewAssignment(lhs,
		il.Const(64, ins.AllocType.TotalBits()),
		il.Tag(il.OpAlloca, 64),
	)
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}
