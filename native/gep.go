package native

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

// GEPIndex is one index of an address computation. Array-like indices are
// scaled by Stride; struct member selections contribute the constant
// FieldOffset and have Field set.
type GEPIndex struct {
	Value       Value
	Stride      uint64
	Field       bool
	FieldOffset uint64
}

// GEPIndices walks the index chain of a getelementptr.
func (dl DataLayout) GEPIndices(ins *Instruction) ([]GEPIndex, error) {
	if ins.Op != OpGetElementPtr || len(ins.Operands) < 1 {
		return nil, fmt.Errorf("%s is not an address computation: %w", ins, lokierrors.ErrTMalformed)
	}
	idx := ins.Operands[1:]
	out := make([]GEPIndex, 0, len(idx))
	cur := ins.SourceElem
	for n, v := range idx {
		if n == 0 {
			out = append(out, GEPIndex{Value: v, Stride: dl.AllocSize(cur)})
			continue
		}
		switch cur.Kind {
		case ArrayKind:
			cur = cur.Elem
			out = append(out, GEPIndex{Value: v, Stride: dl.AllocSize(cur)})
		case StructKind:
			c, ok := v.(*Const)
			if !ok {
				return nil, fmt.Errorf("%s: struct member index must be constant: %w", ins, lokierrors.ErrTMalformed)
			}
			field := int(c.V)
			if field >= len(cur.Fields) {
				return nil, fmt.Errorf("%s: member %d out of range: %w", ins, field, lokierrors.ErrTMalformed)
			}
			out = append(out, GEPIndex{Value: v, Field: true, FieldOffset: dl.FieldOffset(cur, field)})
			cur = cur.Fields[field]
		default:
			return nil, fmt.Errorf("%s: cannot index into %s: %w", ins, cur, lokierrors.ErrTMalformed)
		}
	}
	return out, nil
}

// ResultElem is the type the computed address points at.
func (dl DataLayout) ResultElem(ins *Instruction) *Type {
	cur := ins.SourceElem
	for n, v := range ins.Operands[1:] {
		if n == 0 {
			continue
		}
		switch cur.Kind {
		case ArrayKind:
			cur = cur.Elem
		case StructKind:
			if c, ok := v.(*Const); ok && int(c.V) < len(cur.Fields) {
				cur = cur.Fields[c.V]
			}
		}
	}
	return cur
}

// ConstantOffset accumulates the byte offset of a getelementptr whose
// indices are all constants. Indices are read as signed values.
func (dl DataLayout) ConstantOffset(ins *Instruction) (uint64, bool) {
	indices, err := dl.GEPIndices(ins)
	if err != nil {
		return 0, false
	}
	var off uint64
	for _, ix := range indices {
		if ix.Field {
			off += ix.FieldOffset
			continue
		}
		c, ok := ix.Value.(*Const)
		if !ok {
			return 0, false
		}
		off += uint64(c.Signed()) * ix.Stride
	}
	return off, true
}

// IndexValue is the 64-bit, sign-extended value of a gep index given the
// raw bits of its operand.
func IndexValue(v Value, raw uint64) uint64 {
	return common.SignExtend(common.Mask(raw, v.Type().ScalarBits()), v.Type().ScalarBits())
}
