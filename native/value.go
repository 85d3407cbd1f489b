package native

import (
	"fmt"
	"strings"

	"github.com/colorfulnotion/loki/common"
)

// Value is an operand: a constant, a function argument or the result of an
// instruction. Arguments and instructions are compared by identity.
type Value interface {
	Type() *Type
	// Name is the source name, or "" for numbered (unnamed) values.
	Name() string
	String() string
}

type Const struct {
	Ty *Type
	V  uint64
}

func NewConst(t *Type, v uint64) *Const {
	return &Const{Ty: t, V: common.Mask(v, t.ScalarBits())}
}

func (c *Const) Type() *Type  { return c.Ty }
func (c *Const) Name() string { return "" }
func (c *Const) String() string {
	if c.Ty.IsPtr() && c.V == 0 {
		return "null"
	}
	return fmt.Sprintf("%d", common.Signed(c.V, c.Ty.ScalarBits()))
}

// Signed is the constant read as a two's complement number.
func (c *Const) Signed() int64 { return common.Signed(c.V, c.Ty.ScalarBits()) }

type Argument struct {
	Ty    *Type
	Ident string
	Index int
}

func (a *Argument) Type() *Type  { return a.Ty }
func (a *Argument) Name() string { return a.Ident }
func (a *Argument) String() string {
	if a.Ident == "" {
		return fmt.Sprintf("%%%d", a.Index)
	}
	return "%" + a.Ident
}

type Opcode uint8

const (
	OpAdd Opcode = iota
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpICmp
	OpSelect
	OpZExt
	OpSExt
	OpTrunc
	OpGetElementPtr
	OpPtrToInt
	OpIntToPtr
	OpLoad
	OpStore
	OpAlloca
	OpBitCast
	OpFreeze
	OpRet
)

var opcodeNames = [...]string{
	OpAdd:           "add",
	OpSub:           "sub",
	OpMul:           "mul",
	OpAnd:           "and",
	OpOr:            "or",
	OpXor:           "xor",
	OpShl:           "shl",
	OpLShr:          "lshr",
	OpAShr:          "ashr",
	OpUDiv:          "udiv",
	OpSDiv:          "sdiv",
	OpURem:          "urem",
	OpSRem:          "srem",
	OpICmp:          "icmp",
	OpSelect:        "select",
	OpZExt:          "zext",
	OpSExt:          "sext",
	OpTrunc:         "trunc",
	OpGetElementPtr: "getelementptr",
	OpPtrToInt:      "ptrtoint",
	OpIntToPtr:      "inttoptr",
	OpLoad:          "load",
	OpStore:         "store",
	OpAlloca:        "alloca",
	OpBitCast:       "bitcast",
	OpFreeze:        "freeze",
	OpRet:           "ret",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

func (op Opcode) IsBinary() bool { return op <= OpSRem }

func (op Opcode) IsCast() bool {
	switch op {
	case OpZExt, OpSExt, OpTrunc, OpPtrToInt, OpIntToPtr, OpBitCast:
		return true
	}
	return false
}

type Predicate uint8

const (
	PredEQ Predicate = iota
	PredNE
	PredUGT
	PredUGE
	PredULT
	PredULE
	PredSGT
	PredSGE
	PredSLT
	PredSLE
)

var predicateNames = [...]string{"eq", "ne", "ugt", "uge", "ult", "ule", "sgt", "sge", "slt", "sle"}

func (p Predicate) String() string {
	if int(p) < len(predicateNames) {
		return predicateNames[p]
	}
	return "?"
}

func parsePredicate(s string) (Predicate, bool) {
	for i, n := range predicateNames {
		if n == s {
			return Predicate(i), true
		}
	}
	return 0, false
}

// Instruction is one straight-line host instruction. Ty is the result type
// (Void for store and ret). SourceElem is the indexed type of a gep and
// AllocType the allocated type of an alloca.
type Instruction struct {
	Ident      string
	Slot       int
	Op         Opcode
	Ty         *Type
	Operands   []Value
	Pred       Predicate
	SourceElem *Type
	AllocType  *Type
}

func (i *Instruction) Type() *Type  { return i.Ty }
func (i *Instruction) Name() string { return i.Ident }

func (i *Instruction) String() string {
	if i.Ident == "" {
		return fmt.Sprintf("%%%d", i.Slot)
	}
	return "%" + i.Ident
}

func typed(v Value) string {
	return v.Type().String() + " " + v.String()
}

// Format renders the instruction in assembler syntax.
func (i *Instruction) Format() string {
	var body string
	switch {
	case i.Op.IsBinary():
		body = fmt.Sprintf("%s %s, %s", i.Op, typed(i.Operands[0]), i.Operands[1])
	case i.Op == OpICmp:
		body = fmt.Sprintf("icmp %s %s, %s", i.Pred, typed(i.Operands[0]), i.Operands[1])
	case i.Op == OpSelect:
		body = fmt.Sprintf("select %s, %s, %s", typed(i.Operands[0]), typed(i.Operands[1]), typed(i.Operands[2]))
	case i.Op.IsCast():
		body = fmt.Sprintf("%s %s to %s", i.Op, typed(i.Operands[0]), i.Ty)
	case i.Op == OpGetElementPtr:
		parts := []string{i.SourceElem.String()}
		for _, o := range i.Operands {
			parts = append(parts, typed(o))
		}
		body = "getelementptr " + strings.Join(parts, ", ")
	case i.Op == OpLoad:
		body = fmt.Sprintf("load %s, %s", i.Ty, typed(i.Operands[0]))
	case i.Op == OpStore:
		return fmt.Sprintf("store %s, %s", typed(i.Operands[0]), typed(i.Operands[1]))
	case i.Op == OpAlloca:
		body = "alloca " + i.AllocType.String()
	case i.Op == OpFreeze:
		body = "freeze " + typed(i.Operands[0])
	case i.Op == OpRet:
		if len(i.Operands) == 0 {
			return "ret void"
		}
		return "ret " + typed(i.Operands[0])
	}
	return i.String() + " = " + body
}

// Function is a single loop-free function body.
type Function struct {
	Ident   string
	RetType *Type
	Params  []*Argument
	Body    []*Instruction
}

func (f *Function) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = typed(p)
	}
	fmt.Fprintf(&sb, "define %s @%s(%s) {\n", f.RetType, f.Ident, strings.Join(params, ", "))
	for _, ins := range f.Body {
		sb.WriteString("  ")
		sb.WriteString(ins.Format())
		sb.WriteByte('\n')
	}
	sb.WriteString("}\n")
	return sb.String()
}

type Module struct {
	Functions []*Function
}

func (m *Module) Function(name string) (*Function, bool) {
	for _, f := range m.Functions {
		if f.Ident == name {
			return f, true
		}
	}
	return nil, false
}
