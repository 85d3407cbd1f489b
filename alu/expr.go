package alu

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Expr is a micro-program in tree form. Leaves are inputs (Op == "") or
// constants (Op == "INT").
type Expr struct {
	Op    string
	Size  uint
	Name  string
	Value uint64
	Args  []*Expr
}

func Input(name string, size uint) *Expr { return &Expr{Name: name, Size: size} }

func Int(size uint, v uint64) *Expr { return &Expr{Op: "INT", Size: size, Value: v} }

func Apply(op string, size uint, args ...*Expr) *Expr {
	return &Expr{Op: op, Size: size, Args: args}
}

func (e *Expr) String() string {
	switch e.Op {
	case "":
		return fmt.Sprintf("%s:%d", e.Name, e.Size)
	case "INT":
		return fmt.Sprintf("0x%x:%d", e.Value, e.Size)
	}
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("(%s:%d %s)", e.Op, e.Size, strings.Join(parts, " "))
}

// Program lowers the tree to SSA form with targets t0, t1, ... in post
// order. Shared subtrees are emitted once.
func (e *Expr) Program() *Program {
	lw := &lowering{names: make(map[*Expr]string)}
	root := lw.emit(e)
	if e.Op == "" || e.Op == "INT" {
		lw.line(Line{Kind: LineOp, Op: "ZEXT", Size: e.Size, Args: []Operand{root}})
	}
	return &Program{Lines: lw.lines}
}

type lowering struct {
	lines []Line
	names map[*Expr]string
}

func (lw *lowering) line(l Line) Operand {
	l.Target = fmt.Sprintf("t%d", len(lw.lines))
	lw.lines = append(lw.lines, l)
	return Operand{Size: l.Size, Name: l.Target}
}

func (lw *lowering) emit(e *Expr) Operand {
	if e.Op == "" {
		return Operand{Size: e.Size, Name: e.Name}
	}
	if name, ok := lw.names[e]; ok {
		return Operand{Size: e.Size, Name: name}
	}
	var out Operand
	if e.Op == "INT" {
		out = lw.line(Line{Kind: LineInt, Size: e.Size, Value: e.Value})
	} else {
		args := make([]Operand, len(e.Args))
		for i, a := range e.Args {
			args[i] = lw.emit(a)
		}
		out = lw.line(Line{Kind: LineOp, Op: e.Op, Size: e.Size, Args: args})
	}
	lw.names[e] = out.Name
	return out
}

var fromOp = map[il.Op]string{
	il.OpAdd: "ADD", il.OpSub: "SUB", il.OpOr: "OR", il.OpAnd: "AND", il.OpXor: "XOR",
	il.OpMul: "MUL", il.OpNot: "NOT", il.OpNeg: "NEG",
	il.OpAshr: "ASHR", il.OpLshr: "LSHR", il.OpShl: "SHL",
	il.OpUdiv: "UDIV", il.OpSdiv: "SDIV", il.OpUrem: "UREM", il.OpSrem: "SREM",
	il.OpUlt: "ULT", il.OpSlt: "SLT", il.OpUle: "ULE", il.OpSle: "SLE", il.OpEqual: "ICMPEQ",
	il.OpIte: "ITE", il.OpZeroExtend: "ZEXT", il.OpSignExtend: "SEXT",
	il.OpBitCast: "ZEXT", il.OpGEP: "ADD",
}

// FromExpr lowers a postfix right-hand side whose registers have already
// been renamed to x, y, c or k. The result is zero-extended to 64 bits.
func FromExpr(rhs []il.Elem) (*Expr, error) {
	var stack []*Expr
	for _, el := range rhs {
		switch {
		case el.IsConst():
			stack = append(stack, Int(el.Size, el.Const))
			continue
		case el.IsReg():
			switch el.Name {
			case InputX, InputY, InputC, InputK:
			default:
				return nil, fmt.Errorf("%q: %w", el.Name, lokierrors.ErrEUndefinedRegister)
			}
			stack = append(stack, Input(el.Name, el.Size))
			continue
		}
		n := el.Op.Arity()
		if el.Op.IsMemory() || n == 0 {
			return nil, fmt.Errorf("%s: %w", el.Op, lokierrors.ErrEUnknownOperation)
		}
		if len(stack) < n {
			return nil, fmt.Errorf("%s needs %d operands: %w", el.Op, n, lokierrors.ErrEMalformedLine)
		}
		args := stack[len(stack)-n:]
		stack = stack[:len(stack)-n]
		stack = append(stack, lowerOp(el, append([]*Expr(nil), args...)))
	}
	if len(stack) != 1 || stack[0].Op == "" || stack[0].Op == "INT" {
		return nil, lokierrors.ErrEEmptyProgram
	}
	return Apply("ZEXT", 64, stack[0]), nil
}

func lowerOp(el il.Elem, args []*Expr) *Expr {
	switch el.Op {
	case il.OpNand:
		return Apply("NOT", el.Size, Apply("AND", el.Size, args...))
	case il.OpNor:
		return Apply("NOT", el.Size, Apply("OR", el.Size, args...))
	case il.OpTrunc:
		return Apply("ZEXT", el.Size, args[0])
	}
	return Apply(fromOp[el.Op], el.Size, args...)
}
