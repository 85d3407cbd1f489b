package il

import (
	"encoding/json"
	"fmt"
)

// Op is an operation tag of the linear IR. Leaves are tagged OpConst and
// OpReg; those two never appear as names in the serialized form.
type Op uint8

const (
	OpUnknown Op = iota
	OpAdd
	OpSub
	OpOr
	OpAnd
	OpXor
	OpNand
	OpNor
	OpNot
	OpNeg
	OpAshr
	OpLshr
	OpShl
	OpMul
	OpUdiv
	OpSdiv
	OpUrem
	OpSrem
	OpUlt
	OpSlt
	OpUle
	OpSle
	OpEqual
	OpIte
	OpZeroExtend
	OpSignExtend
	OpTrunc
	OpGEP
	OpBitCast
	OpLoad
	OpStore
	OpAlloca

	OpConst
	OpReg
)

var opNames = [...]string{
	OpUnknown:    "Unknown",
	OpAdd:        "Add",
	OpSub:        "Sub",
	OpOr:         "Or",
	OpAnd:        "And",
	OpXor:        "Xor",
	OpNand:       "Nand",
	OpNor:        "Nor",
	OpNot:        "Not",
	OpNeg:        "Neg",
	OpAshr:       "Ashr",
	OpLshr:       "Lshr",
	OpShl:        "Shl",
	OpMul:        "Mul",
	OpUdiv:       "Udiv",
	OpSdiv:       "Sdiv",
	OpUrem:       "Urem",
	OpSrem:       "Srem",
	OpUlt:        "Ult",
	OpSlt:        "Slt",
	OpUle:        "Ule",
	OpSle:        "Sle",
	OpEqual:      "Equal",
	OpIte:        "Ite",
	OpZeroExtend: "ZeroExtend",
	OpSignExtend: "SignExtend",
	OpTrunc:      "Trunc",
	OpGEP:        "GEP",
	OpBitCast:    "BitCast",
	OpLoad:       "Load",
	OpStore:      "Store",
	OpAlloca:     "Alloca",
	OpConst:      "Const",
	OpReg:        "Reg",
}

var opByName map[string]Op

func init() {
	opByName = make(map[string]Op, len(opNames))
	for op, name := range opNames {
		if Op(op) == OpConst || Op(op) == OpReg {
			continue
		}
		opByName[name] = Op(op)
	}
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// ParseOp resolves a serialized tag name.
func ParseOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Arity is the number of leaf operands the tag consumes.
func (op Op) Arity() int {
	switch op {
	case OpUnknown, OpConst, OpReg:
		return 0
	case OpNot, OpNeg, OpZeroExtend, OpSignExtend, OpTrunc, OpBitCast, OpLoad, OpAlloca:
		return 1
	case OpIte:
		return 3
	default:
		return 2
	}
}

func (op Op) IsLeaf() bool { return op == OpConst || op == OpReg }

// IsCompare reports whether the tag yields a 1-bit truth value computed at
// the operands' width.
func (op Op) IsCompare() bool {
	switch op {
	case OpUlt, OpSlt, OpUle, OpSle, OpEqual:
		return true
	}
	return false
}

// IsMemory reports whether the tag touches simulated memory.
func (op Op) IsMemory() bool {
	return op == OpLoad || op == OpStore || op == OpAlloca
}

func (op Op) MarshalJSON() ([]byte, error) {
	if op.IsLeaf() || int(op) >= len(opNames) {
		return nil, fmt.Errorf("il: tag %v has no name form", op)
	}
	return json.Marshal(opNames[op])
}

func (op *Op) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParseOp(name)
	if !ok {
		return fmt.Errorf("il: unknown op %q", name)
	}
	*op = parsed
	return nil
}
