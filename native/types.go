package native

import (
	"fmt"
	"strings"
)

type TypeKind uint8

const (
	VoidKind TypeKind = iota
	IntKind
	PtrKind
	ArrayKind
	StructKind
)

// Type is a first-class host IR type. Pointers are opaque; the pointee type
// travels with the instruction that needs it (alloca, load, gep).
type Type struct {
	Kind   TypeKind
	Bits   uint
	Elem   *Type
	Len    uint64
	Fields []*Type
}

var (
	Void = &Type{Kind: VoidKind}
	I1   = Int(1)
	I8   = Int(8)
	I16  = Int(16)
	I32  = Int(32)
	I64  = Int(64)
	Ptr  = &Type{Kind: PtrKind, Bits: 64}
)

func Int(bits uint) *Type {
	return &Type{Kind: IntKind, Bits: bits}
}

func Array(elem *Type, n uint64) *Type {
	return &Type{Kind: ArrayKind, Elem: elem, Len: n}
}

func Struct(fields ...*Type) *Type {
	return &Type{Kind: StructKind, Fields: fields}
}

func (t *Type) IsInt() bool { return t != nil && t.Kind == IntKind }
func (t *Type) IsPtr() bool { return t != nil && t.Kind == PtrKind }

// ScalarBits is the register width of t: the integer width, 64 for
// pointers, 0 for aggregates.
func (t *Type) ScalarBits() uint {
	switch t.Kind {
	case IntKind:
		return t.Bits
	case PtrKind:
		return 64
	}
	return 0
}

// TotalBits sums scalar widths without padding: count times element bits for
// arrays, the member sum for structs.
func (t *Type) TotalBits() uint64 {
	switch t.Kind {
	case ArrayKind:
		return t.Len * t.Elem.TotalBits()
	case StructKind:
		var sum uint64
		for _, f := range t.Fields {
			sum += f.TotalBits()
		}
		return sum
	}
	return uint64(t.ScalarBits())
}

func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case IntKind:
		return t.Bits == o.Bits
	case ArrayKind:
		return t.Len == o.Len && t.Elem.Equal(o.Elem)
	case StructKind:
		if len(t.Fields) != len(o.Fields) {
			return false
		}
		for i := range t.Fields {
			if !t.Fields[i].Equal(o.Fields[i]) {
				return false
			}
		}
	}
	return true
}

func (t *Type) String() string {
	switch t.Kind {
	case VoidKind:
		return "void"
	case IntKind:
		return fmt.Sprintf("i%d", t.Bits)
	case PtrKind:
		return "ptr"
	case ArrayKind:
		return fmt.Sprintf("[%d x %s]", t.Len, t.Elem)
	case StructKind:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	}
	return "?"
}
