package native

// DataLayout gives byte sizes and offsets with natural alignment: integers
// align to their store size rounded up to a power of two, pointers to 8,
// aggregates to their largest member.
type DataLayout struct{}

var DefaultLayout DataLayout

// IndexBits is the width of address arithmetic.
func (DataLayout) IndexBits() uint { return 64 }

func (dl DataLayout) StoreSize(t *Type) uint64 {
	switch t.Kind {
	case IntKind:
		return uint64(t.Bits+7) / 8
	case PtrKind:
		return 8
	}
	return dl.AllocSize(t)
}

func (dl DataLayout) Align(t *Type) uint64 {
	switch t.Kind {
	case IntKind:
		a := uint64(1)
		for a < dl.StoreSize(t) && a < 8 {
			a <<= 1
		}
		return a
	case PtrKind:
		return 8
	case ArrayKind:
		return dl.Align(t.Elem)
	case StructKind:
		a := uint64(1)
		for _, f := range t.Fields {
			if fa := dl.Align(f); fa > a {
				a = fa
			}
		}
		return a
	}
	return 1
}

// AllocSize is the distance between consecutive elements of type t.
func (dl DataLayout) AllocSize(t *Type) uint64 {
	switch t.Kind {
	case IntKind, PtrKind:
		return alignTo(dl.StoreSize(t), dl.Align(t))
	case ArrayKind:
		return t.Len * dl.AllocSize(t.Elem)
	case StructKind:
		var off uint64
		for _, f := range t.Fields {
			off = alignTo(off, dl.Align(f)) + dl.AllocSize(f)
		}
		return alignTo(off, dl.Align(t))
	}
	return 0
}

// FieldOffset is the byte offset of member i of struct t.
func (dl DataLayout) FieldOffset(t *Type, i int) uint64 {
	var off uint64
	for j, f := range t.Fields {
		off = alignTo(off, dl.Align(f))
		if j == i {
			return off
		}
		off += dl.AllocSize(f)
	}
	return off
}

func alignTo(v, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}
