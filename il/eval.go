package il

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Memory is the byte memory seen by Load, Store and Alloca.
type Memory interface {
	Load(addr uint64, bits uint) uint64
	Store(addr uint64, bits uint, value uint64)
	Alloc(size uint64) uint64
}

// State is the register environment after evaluation.
type State struct {
	Regs   map[string]uint64
	Result uint64
}

// Eval runs the document over args, bound to Arguments in order. Division
// by zero is not checked.
func (d *Document) Eval(args []uint64, mem Memory) (*State, error) {
	if len(args) != len(d.Arguments) {
		return nil, fmt.Errorf("got %d arguments, want %d: %w", len(args), len(d.Arguments), lokierrors.ErrRArgumentCount)
	}
	st := &State{Regs: make(map[string]uint64, len(d.Arguments)+len(d.Instructions))}
	for i, name := range d.Arguments {
		st.Regs[name] = args[i]
	}
	for i, a := range d.Instructions {
		v, err := EvalAssignment(a, st.Regs, mem)
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, a.LHS.Name, err)
		}
		st.Regs[a.LHS.Name] = v
		st.Result = v
	}
	return st, nil
}

// EvalAssignment computes the value of a over the register environment env.
// Memory operations require a non-nil mem.
func EvalAssignment(a Assignment, env map[string]uint64, mem Memory) (uint64, error) {
	ops := a.Operands()
	vals := make([]uint64, len(ops))
	for i, e := range ops {
		switch e.Op {
		case OpConst:
			vals[i] = common.Mask(e.Const, e.Size)
		case OpReg:
			v, ok := env[e.Name]
			if !ok {
				return 0, fmt.Errorf("%q: %w", e.Name, lokierrors.ErrTUndefinedRegister)
			}
			vals[i] = common.Mask(v, e.Size)
		default:
			return 0, lokierrors.ErrTMalformed
		}
	}
	tag := a.RHS[len(a.RHS)-1]
	if tag.Op.IsMemory() && mem == nil {
		return 0, fmt.Errorf("%v without memory: %w", tag.Op, lokierrors.ErrTMalformed)
	}
	switch tag.Op {
	case OpLoad:
		return mem.Load(vals[0], tag.Size), nil
	case OpStore:
		mem.Store(vals[0], tag.Size, vals[1])
		return common.Mask(vals[1], tag.Size), nil
	case OpAlloca:
		return mem.Alloc(common.ByteSize(vals[0])), nil
	}
	width := tag.Size
	if len(ops) > 0 && (tag.Op.IsCompare() || tag.Op == OpSignExtend) {
		width = ops[0].Size
	}
	return Compute(tag.Op, tag.Size, width, vals...)
}

// Compute applies a non-memory tag. size is the result width; width is the
// width operands are interpreted at, which differs from size for comparisons
// and sign extension.
func Compute(op Op, size, width uint, v ...uint64) (uint64, error) {
	if len(v) != op.Arity() {
		return 0, fmt.Errorf("%v takes %d operands, got %d: %w", op, op.Arity(), len(v), lokierrors.ErrTMalformed)
	}
	var r uint64
	switch op {
	case OpAdd, OpGEP:
		r = v[0] + v[1]
	case OpSub:
		r = v[0] - v[1]
	case OpOr:
		r = v[0] | v[1]
	case OpAnd:
		r = v[0] & v[1]
	case OpXor:
		r = v[0] ^ v[1]
	case OpNand:
		r = ^(v[0] & v[1])
	case OpNor:
		r = ^(v[0] | v[1])
	case OpNot:
		r = ^v[0]
	case OpNeg:
		r = -v[0]
	case OpMul:
		r = v[0] * v[1]
	case OpShl:
		if v[1] < uint64(width) {
			r = v[0] << v[1]
		}
	case OpLshr:
		if v[1] < uint64(width) {
			r = common.Mask(v[0], width) >> v[1]
		}
	case OpAshr:
		s := v[1]
		if s >= uint64(width) {
			s = uint64(width) - 1
		}
		r = uint64(common.Signed(v[0], width) >> s)
	case OpUdiv:
		r = common.Mask(v[0], width) / common.Mask(v[1], width)
	case OpSdiv:
		r = uint64(common.Signed(v[0], width) / common.Signed(v[1], width))
	case OpUrem:
		r = common.Mask(v[0], width) % common.Mask(v[1], width)
	case OpSrem:
		r = uint64(common.Signed(v[0], width) % common.Signed(v[1], width))
	case OpUlt:
		r = b2u(common.Mask(v[0], width) < common.Mask(v[1], width))
	case OpSlt:
		r = b2u(common.Signed(v[0], width) < common.Signed(v[1], width))
	case OpUle:
		r = b2u(common.Mask(v[0], width) <= common.Mask(v[1], width))
	case OpSle:
		r = b2u(common.Signed(v[0], width) <= common.Signed(v[1], width))
	case OpEqual:
		r = b2u(common.Mask(v[0], width) == common.Mask(v[1], width))
	case OpIte:
		if v[0] != 0 {
			r = v[1]
		} else {
			r = v[2]
		}
	case OpZeroExtend, OpTrunc, OpBitCast:
		r = v[0]
	case OpSignExtend:
		r = common.SignExtend(common.Mask(v[0], width), width)
	default:
		return 0, fmt.Errorf("%v: %w", op, lokierrors.ErrTMalformed)
	}
	return common.Mask(r, size), nil
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
