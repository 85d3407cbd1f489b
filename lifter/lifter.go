package lifter

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/native"
)

type Options struct {
	// ForceDynamicGEP lowers every address computation through the
	// index-arithmetic path, even when the offset is a constant.
	ForceDynamicGEP bool
	Layout          native.DataLayout
}

// Skipped records an instruction left out of the translation.
type Skipped struct {
	Instr  *native.Instruction
	Reason error
}

// Lifter translates host instructions into linear IR assignments. A Lifter
// owns its naming context; use one per translation unit or call Reset.
type Lifter struct {
	opts    Options
	names   *NameContext
	skipped []Skipped
}

func New(opts Options) *Lifter {
	return &Lifter{opts: opts, names: NewNameContext()}
}

func (l *Lifter) Names() *NameContext { return l.names }
func (l *Lifter) Skipped() []Skipped  { return l.skipped }

func (l *Lifter) Reset() {
	l.names.Reset()
	l.skipped = nil
}

// Lift translates the body of fn. Instructions without a translation are
// logged and skipped; internal consistency failures abort.
func (l *Lifter) Lift(fn *native.Function) (*il.Document, error) {
	doc := &il.Document{Instructions: []il.Assignment{}}
	for _, ins := range fn.Body {
		out, err := l.Translate(ins)
		if errors.Is(err, lokierrors.ErrTUnsupportedOpcode) {
			l.skipped = append(l.skipped, Skipped{Instr: ins, Reason: err})
			log.Warn(log.LiftMonitoring, "Could not translate an instruction", "fn", fn.Ident, "instr", ins.Format())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("@%s: %s: %w", fn.Ident, ins.Format(), err)
		}
		for _, a := range out {
			log.Trace(log.LiftMonitoring, "lifted", "assignment", a.String())
		}
		doc.Append(out...)
	}
	doc.Arguments = make([]string, len(fn.Params))
	for i, p := range fn.Params {
		doc.Arguments[i] = l.names.NameOf(p)
	}
	log.Debug(log.LiftMonitoring, "Lift", "fn", fn.Ident, "assignments", len(doc.Instructions), "skipped", len(l.skipped))
	return doc, nil
}

// Translate lowers one instruction.
func (l *Lifter) Translate(ins *native.Instruction) ([]il.Assignment, error) {
	switch ins.Op {
	case native.OpAdd:
		return l.direct(ins, il.OpAdd)
	case native.OpSub:
		return l.direct(ins, il.OpSub)
	case native.OpMul:
		return l.direct(ins, il.OpMul)
	case native.OpAnd:
		return l.direct(ins, il.OpAnd)
	case native.OpOr:
		return l.direct(ins, il.OpOr)
	case native.OpXor:
		return l.direct(ins, il.OpXor)
	case native.OpShl:
		return l.direct(ins, il.OpShl)
	case native.OpLShr:
		return l.direct(ins, il.OpLshr)
	case native.OpAShr:
		return l.direct(ins, il.OpAshr)
	case native.OpUDiv:
		return l.direct(ins, il.OpUdiv)
	case native.OpSDiv:
		return l.direct(ins, il.OpSdiv)
	case native.OpURem:
		return l.direct(ins, il.OpUrem)
	case native.OpSRem:
		return l.direct(ins, il.OpSrem)
	case native.OpICmp:
		return l.icmp(ins)
	case native.OpSelect:
		return l.direct(ins, il.OpIte)
	case native.OpZExt:
		return l.direct(ins, il.OpZeroExtend)
	case native.OpSExt:
		return l.direct(ins, il.OpSignExtend)
	case native.OpTrunc:
		return l.direct(ins, il.OpTrunc)
	case native.OpLoad:
		return l.direct(ins, il.OpLoad)
	case native.OpStore:
		return l.store(ins)
	case native.OpAlloca:
		return l.alloca(ins)
	case native.OpGetElementPtr:
		return l.gep(ins)
	case native.OpBitCast:
		return l.bitcast(ins)
	case native.OpPtrToInt:
		return l.ptrToInt(ins)
	case native.OpIntToPtr:
		return l.intToPtr(ins)
	}
	return nil, fmt.Errorf("%s: %w", ins.Op, lokierrors.ErrTUnsupportedOpcode)
}

func width(t *native.Type) (uint, error) {
	if w := t.ScalarBits(); w > 0 {
		return w, nil
	}
	return 0, fmt.Errorf("type %s: %w", t, lokierrors.ErrTUnknownValueType)
}

// value is the leaf for v at its natural width: the integer width or 64 for
// pointers.
func (l *Lifter) value(v native.Value) (il.Elem, error) {
	w, err := width(v.Type())
	if err != nil {
		return il.Elem{}, err
	}
	return l.valueAt(v, w), nil
}

func (l *Lifter) valueAt(v native.Value, w uint) il.Elem {
	if c, ok := v.(*native.Const); ok {
		return il.Const(w, c.V)
	}
	return il.Reg(l.names.NameOf(v), w)
}

func (l *Lifter) direct(ins *native.Instruction, op il.Op) ([]il.Assignment, error) {
	lhs, err := l.value(ins)
	if err != nil {
		return nil, err
	}
	rhs := make([]il.Elem, 0, len(ins.Operands)+1)
	for _, o := range ins.Operands {
		e, err := l.value(o)
		if err != nil {
			return nil, err
		}
		rhs = append(rhs, e)
	}
	rhs = append(rhs, il.Tag(op, lhs.Size))
	a, err := il.NewAssignment(lhs, rhs...)
	if err != nil {
		return nil, err
	}
	return []il.Assignment{a}, nil
}
