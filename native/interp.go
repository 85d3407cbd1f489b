package native

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Memory is the byte memory used by load, store and alloca.
type Memory interface {
	Load(addr uint64, bits uint) uint64
	Store(addr uint64, bits uint, value uint64)
	Alloc(size uint64) uint64
}

// Interpreter evaluates host functions directly. It is the reference the
// lifted and compiled forms are checked against.
type Interpreter struct {
	Layout DataLayout
	Mem    Memory
	values map[Value]uint64
}

func NewInterpreter(mem Memory) *Interpreter {
	return &Interpreter{Layout: DefaultLayout, Mem: mem}
}

// Run executes fn. The result is the returned value, or the value of the
// last value-producing instruction when the body has no ret.
func (it *Interpreter) Run(fn *Function, args []uint64) (uint64, error) {
	if len(args) != len(fn.Params) {
		return 0, fmt.Errorf("@%s: got %d arguments, want %d: %w", fn.Ident, len(args), len(fn.Params), lokierrors.ErrRArgumentCount)
	}
	it.values = make(map[Value]uint64, len(fn.Params)+len(fn.Body))
	for i, p := range fn.Params {
		it.values[p] = common.Mask(args[i], p.Ty.ScalarBits())
	}
	var last uint64
	for _, ins := range fn.Body {
		if ins.Op == OpRet {
			if len(ins.Operands) == 0 {
				return 0, nil
			}
			return it.get(ins.Operands[0]), nil
		}
		v, err := it.exec(ins)
		if err != nil {
			return 0, fmt.Errorf("@%s: %s: %w", fn.Ident, ins.Format(), err)
		}
		if ins.Ty != Void {
			it.values[ins] = v
			last = v
		}
	}
	return last, nil
}

// Value reports the computed value of an argument or instruction after Run.
func (it *Interpreter) Value(v Value) (uint64, bool) {
	x, ok := it.values[v]
	return x, ok
}

func (it *Interpreter) get(v Value) uint64 {
	if c, ok := v.(*Const); ok {
		return c.V
	}
	return it.values[v]
}

func (it *Interpreter) exec(ins *Instruction) (uint64, error) {
	w := ins.Ty.ScalarBits()
	ops := make([]uint64, len(ins.Operands))
	for i, o := range ins.Operands {
		ops[i] = it.get(o)
	}
	switch ins.Op {
	case OpAdd:
		return common.Mask(ops[0]+ops[1], w), nil
	case OpSub:
		return common.Mask(ops[0]-ops[1], w), nil
	case OpMul:
		return common.Mask(ops[0]*ops[1], w), nil
	case OpAnd:
		return ops[0] & ops[1], nil
	case OpOr:
		return ops[0] | ops[1], nil
	case OpXor:
		return ops[0] ^ ops[1], nil
	case OpShl:
		if ops[1] >= uint64(w) {
			return 0, nil
		}
		return common.Mask(ops[0]<<ops[1], w), nil
	case OpLShr:
		if ops[1] >= uint64(w) {
			return 0, nil
		}
		return ops[0] >> ops[1], nil
	case OpAShr:
		s := ops[1]
		if s >= uint64(w) {
			s = uint64(w) - 1
		}
		return common.Mask(uint64(common.Signed(ops[0], w)>>s), w), nil
	case OpUDiv:
		return ops[0] / ops[1], nil
	case OpSDiv:
		return common.Mask(uint64(common.Signed(ops[0], w)/common.Signed(ops[1], w)), w), nil
	case OpURem:
		return ops[0] % ops[1], nil
	case OpSRem:
		return common.Mask(uint64(common.Signed(ops[0], w)%common.Signed(ops[1], w)), w), nil
	case OpICmp:
		return compare(ins.Pred, ops[0], ops[1], ins.Operands[0].Type().ScalarBits()), nil
	case OpSelect:
		if ops[0]&1 != 0 {
			return ops[1], nil
		}
		return ops[2], nil
	case OpZExt, OpBitCast, OpFreeze:
		return ops[0], nil
	case OpSExt:
		return common.Mask(common.SignExtend(ops[0], ins.Operands[0].Type().ScalarBits()), w), nil
	case OpTrunc, OpPtrToInt, OpIntToPtr:
		return common.Mask(ops[0], w), nil
	case OpGetElementPtr:
		indices, err := it.Layout.GEPIndices(ins)
		if err != nil {
			return 0, err
		}
		addr := ops[0]
		for n, ix := range indices {
			if ix.Field {
				addr += ix.FieldOffset
				continue
			}
			addr += IndexValue(ix.Value, ops[n+1]) * ix.Stride
		}
		return addr, nil
	case OpLoad:
		return it.Mem.Load(ops[0], w), nil
	case OpStore:
		it.Mem.Store(ops[1], ins.Operands[0].Type().ScalarBits(), ops[0])
		return 0, nil
	case OpAlloca:
		return it.Mem.Alloc(it.Layout.AllocSize(ins.AllocType)), nil
	}
	return 0, fmt.Errorf("%s: %w", ins.Op, lokierrors.ErrTUnsupportedOpcode)
}

func compare(p Predicate, a, b uint64, w uint) uint64 {
	sa, sb := common.Signed(a, w), common.Signed(b, w)
	var r bool
	switch p {
	case PredEQ:
		r = a == b
	case PredNE:
		r = a != b
	case PredUGT:
		r = a > b
	case PredUGE:
		r = a >= b
	case PredULT:
		r = a < b
	case PredULE:
		r = a <= b
	case PredSGT:
		r = sa > sb
	case PredSGE:
		r = sa >= sb
	case PredSLT:
		r = sa < sb
	case PredSLE:
		r = sa <= sb
	}
	if r {
		return 1
	}
	return 0
}
