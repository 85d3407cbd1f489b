package bytecode

import (
	"fmt"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Block is one assignment prepared for encoding. Inputs are bound to x and
// y in order of first appearance; the single distinct constant becomes c
// and travels in the immediate.
type Block struct {
	Output il.Elem
	Inputs []il.Elem
	Imm    uint64
	Memory bool
	Key    uint64 // memory operation key, memory blocks only
	RHS    []il.Elem
	Source il.Assignment
}

// NewBlock builds the block of a legalized assignment.
func NewBlock(a il.Assignment) (*Block, error) {
	b := &Block{Output: a.LHS, Source: a}
	op := a.Op()
	ops := a.Operands()
	if op.IsMemory() {
		b.Memory = true
		switch op {
		case il.OpLoad:
			b.Key, b.Imm = alu.KeyLoad, uint64(a.Size)
		case il.OpStore:
			b.Key, b.Imm = alu.KeyStore, uint64(ops[1].Size)
		case il.OpAlloca:
			if !ops[0].IsConst() {
				return nil, fmt.Errorf("%s: allocation size must be constant: %w", a, lokierrors.ErrEMalformedLine)
			}
			b.Key, b.Imm = alu.KeyAlloc, common.ByteSize(ops[0].Const)
			return b, nil
		}
		for _, el := range ops {
			if !el.IsReg() {
				return nil, fmt.Errorf("%s: memory operand %s: %w", a, el, lokierrors.ErrEMalformedLine)
			}
			b.Inputs = append(b.Inputs, el)
		}
		return b, nil
	}

	seen := map[string]string{}
	haveConst := false
	for _, el := range a.RHS {
		switch {
		case el.IsReg():
			name, ok := seen[el.Name]
			if !ok {
				if len(b.Inputs) == 2 {
					return nil, fmt.Errorf("%s: %w", a, lokierrors.ErrETooManyInputs)
				}
				name = []string{alu.InputX, alu.InputY}[len(b.Inputs)]
				seen[el.Name] = name
				b.Inputs = append(b.Inputs, el)
			}
			b.RHS = append(b.RHS, il.Reg(name, el.Size))
		case el.IsConst():
			if haveConst && el.Const != b.Imm {
				return nil, fmt.Errorf("%s: second constant: %w", a, lokierrors.ErrETooManyInputs)
			}
			haveConst, b.Imm = true, el.Const
			b.RHS = append(b.RHS, il.Reg(alu.InputC, el.Size))
		default:
			b.RHS = append(b.RHS, el)
		}
	}
	return b, nil
}

// Semantics lowers an arithmetic block to its micro-program expression.
func (b *Block) Semantics() (*alu.Expr, error) {
	if b.Memory {
		return nil, fmt.Errorf("%s: %w", b.Source, lokierrors.ErrEUnknownOperation)
	}
	return alu.FromExpr(b.RHS)
}
