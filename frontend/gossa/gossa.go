// Package gossa builds host IR from straight-line Go functions by way of
// golang.org/x/tools/go/ssa.
package gossa

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/native"
)

var sizes = types.SizesFor("gc", "amd64")

// ParseFile type-checks one Go source file, builds its SSA form and
// translates the function called name. src follows go/parser.ParseFile.
func ParseFile(filename string, src any, name string) (*native.Function, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", filename, err, lokierrors.ErrTParse)
	}
	pkg := types.NewPackage(file.Name.Name, file.Name.Name)
	conf := &types.Config{Importer: importer.Default()}
	spkg, _, err := ssautil.BuildPackage(conf, fset, pkg, []*ast.File{file}, ssa.SanityCheckFunctions)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", filename, err, lokierrors.ErrTParse)
	}
	f := spkg.Func(name)
	if f == nil {
		return nil, fmt.Errorf("%s: no function %q: %w", filename, name, lokierrors.ErrTParse)
	}
	return Translate(f)
}

type translator struct {
	fn     *native.Function
	values map[ssa.Value]native.Value
	taken  map[string]bool
}

// Translate converts a single-block SSA function. Parameters and the result
// must be booleans, integers or pointers; locals may be arrays and structs.
func Translate(f *ssa.Function) (*native.Function, error) {
	if len(f.Blocks) != 1 {
		return nil, fmt.Errorf("%s: %d basic blocks: %w", f.Name(), len(f.Blocks), lokierrors.ErrTUnsupportedOpcode)
	}
	results := f.Signature.Results()
	if results.Len() != 1 {
		return nil, fmt.Errorf("%s: %d results: %w", f.Name(), results.Len(), lokierrors.ErrTUnknownValueType)
	}
	ret, err := scalarType(results.At(0).Type())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	t := &translator{
		fn:     &native.Function{Ident: f.Name(), RetType: ret},
		values: make(map[ssa.Value]native.Value),
		taken:  make(map[string]bool),
	}
	for i, p := range f.Params {
		ty, err := scalarType(p.Type())
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %s: %w", f.Name(), p.Name(), err)
		}
		arg := &native.Argument{Ty: ty, Ident: t.name(p.Name()), Index: i}
		t.fn.Params = append(t.fn.Params, arg)
		t.values[p] = arg
	}
	for _, instr := range f.Blocks[0].Instrs {
		if err := t.instr(instr); err != nil {
			return nil, fmt.Errorf("@%s: %s: %w", f.Name(), instr, err)
		}
	}
	log.Debug(log.LiftMonitoring, "gossa.Translate", "fn", f.Name(), "instructions", len(t.fn.Body))
	return t.fn, nil
}

func typeOf(t types.Type) (*native.Type, error) {
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case u.Info()&types.IsBoolean != 0:
			return native.I1, nil
		case u.Info()&types.IsInteger != 0:
			return native.Int(uint(sizes.Sizeof(u)) * 8), nil
		}
	case *types.Pointer:
		return native.Ptr, nil
	case *types.Array:
		elem, err := typeOf(u.Elem())
		if err != nil {
			return nil, err
		}
		return native.Array(elem, uint64(u.Len())), nil
	case *types.Struct:
		fields := make([]*native.Type, u.NumFields())
		for i := range fields {
			ft, err := typeOf(u.Field(i).Type())
			if err != nil {
				return nil, err
			}
			fields[i] = ft
		}
		return native.Struct(fields...), nil
	}
	return nil, fmt.Errorf("type %s: %w", t, lokierrors.ErrTUnknownValueType)
}

func scalarType(t types.Type) (*native.Type, error) {
	nt, err := typeOf(t)
	if err != nil {
		return nil, err
	}
	if !nt.IsInt() && !nt.IsPtr() {
		return nil, fmt.Errorf("type %s: %w", t, lokierrors.ErrTUnknownValueType)
	}
	return nt, nil
}

func isSigned(t types.Type) bool {
	b, ok := t.Underlying().(*types.Basic)
	return ok && b.Info()&types.IsInteger != 0 && b.Info()&types.IsUnsigned == 0
}

func constBits(c *ssa.Const) uint64 {
	if c.Value == nil {
		return 0
	}
	switch c.Value.Kind() {
	case constant.Bool:
		if constant.BoolVal(c.Value) {
			return 1
		}
	case constant.Int:
		if u, ok := constant.Uint64Val(c.Value); ok {
			return u
		}
		i, _ := constant.Int64Val(c.Value)
		return uint64(i)
	}
	return 0
}

// name reserves base, suffixing it until it no longer clashes.
func (t *translator) name(base string) string {
	for t.taken[base] {
		base += "_"
	}
	t.taken[base] = true
	return base
}

func (t *translator) value(v ssa.Value) (native.Value, error) {
	if c, ok := v.(*ssa.Const); ok {
		ty, err := scalarType(c.Type())
		if err != nil {
			return nil, err
		}
		return native.NewConst(ty, constBits(c)), nil
	}
	if nv, ok := t.values[v]; ok {
		return nv, nil
	}
	return nil, fmt.Errorf("value %s: %w", v.Name(), lokierrors.ErrTUndefinedRegister)
}

func (t *translator) emit(v ssa.Value, ident string, ins *native.Instruction) *native.Instruction {
	if ident != "" {
		ins.Ident = t.name(ident)
	}
	ins.Slot = len(t.fn.Body)
	t.fn.Body = append(t.fn.Body, ins)
	if v != nil {
		t.values[v] = ins
	}
	return ins
}

func (t *translator) instr(instr ssa.Instruction) error {
	switch in := instr.(type) {
	case *ssa.BinOp:
		return t.binop(in)
	case *ssa.UnOp:
		return t.unop(in)
	case *ssa.Convert:
		return t.convert(in)
	case *ssa.ChangeType:
		x, err := t.value(in.X)
		if err != nil {
			return err
		}
		t.values[in] = x
		return nil
	case *ssa.Alloc:
		elem, err := typeOf(in.Type().Underlying().(*types.Pointer).Elem())
		if err != nil {
			return err
		}
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpAlloca, Ty: native.Ptr, AllocType: elem})
		return nil
	case *ssa.IndexAddr:
		return t.indexAddr(in)
	case *ssa.FieldAddr:
		return t.fieldAddr(in)
	case *ssa.Store:
		return t.store(in)
	case *ssa.Return:
		return t.ret(in)
	case *ssa.DebugRef:
		return nil
	}
	return fmt.Errorf("%T: %w", instr, lokierrors.ErrTUnsupportedOpcode)
}

var binops = map[token.Token]native.Opcode{
	token.ADD: native.OpAdd,
	token.SUB: native.OpSub,
	token.MUL: native.OpMul,
	token.AND: native.OpAnd,
	token.OR:  native.OpOr,
	token.XOR: native.OpXor,
}

func (t *translator) binop(in *ssa.BinOp) error {
	x, err := t.value(in.X)
	if err != nil {
		return err
	}
	if in.Op == token.SHL || in.Op == token.SHR {
		return t.shift(in, x)
	}
	y, err := t.value(in.Y)
	if err != nil {
		return err
	}
	signed := isSigned(in.X.Type())
	ty := x.Type()
	switch in.Op {
	case token.QUO, token.REM:
		op := map[bool]map[token.Token]native.Opcode{
			true:  {token.QUO: native.OpSDiv, token.REM: native.OpSRem},
			false: {token.QUO: native.OpUDiv, token.REM: native.OpURem},
		}[signed][in.Op]
		t.emit(in, in.Name(), &native.Instruction{Op: op, Ty: ty, Operands: []native.Value{x, y}})
		return nil
	case token.AND_NOT:
		inv := t.emit(nil, in.Name()+"_inv", &native.Instruction{Op: native.OpXor, Ty: ty, Operands: []native.Value{y, native.NewConst(ty, ^uint64(0))}})
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpAnd, Ty: ty, Operands: []native.Value{x, inv}})
		return nil
	case token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ:
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpICmp, Ty: native.I1, Pred: predicate(in.Op, signed), Operands: []native.Value{x, y}})
		return nil
	}
	op, ok := binops[in.Op]
	if !ok {
		return fmt.Errorf("operator %s: %w", in.Op, lokierrors.ErrTUnsupportedOpcode)
	}
	t.emit(in, in.Name(), &native.Instruction{Op: op, Ty: ty, Operands: []native.Value{x, y}})
	return nil
}

func predicate(op token.Token, signed bool) native.Predicate {
	switch op {
	case token.EQL:
		return native.PredEQ
	case token.NEQ:
		return native.PredNE
	}
	preds := map[token.Token][2]native.Predicate{
		token.LSS: {native.PredULT, native.PredSLT},
		token.LEQ: {native.PredULE, native.PredSLE},
		token.GTR: {native.PredUGT, native.PredSGT},
		token.GEQ: {native.PredUGE, native.PredSGE},
	}[op]
	if signed {
		return preds[1]
	}
	return preds[0]
}

// shift brings the count to the width of the shifted operand. Counts at or
// above the width are clamped to the width, which shifts everything out
// (or replicates the sign bit for a signed right shift) as Go does.
func (t *translator) shift(in *ssa.BinOp, x native.Value) error {
	tx := x.Type()
	w := uint64(tx.ScalarBits())
	var amt native.Value
	if c, ok := in.Y.(*ssa.Const); ok {
		amt = native.NewConst(tx, min(constBits(c), w))
	} else {
		y, err := t.value(in.Y)
		if err != nil {
			return err
		}
		ty := y.Type()
		switch wy := uint64(ty.ScalarBits()); {
		case wy == w:
			amt = y
		case wy < w:
			amt = t.emit(nil, in.Name()+"_amt", &native.Instruction{Op: native.OpZExt, Ty: tx, Operands: []native.Value{y}})
		default:
			inRange := t.emit(nil, in.Name()+"_inrange", &native.Instruction{Op: native.OpICmp, Ty: native.I1, Pred: native.PredULT, Operands: []native.Value{y, native.NewConst(ty, w)}})
			low := t.emit(nil, in.Name()+"_low", &native.Instruction{Op: native.OpTrunc, Ty: tx, Operands: []native.Value{y}})
			amt = t.emit(nil, in.Name()+"_amt", &native.Instruction{Op: native.OpSelect, Ty: tx, Operands: []native.Value{inRange, low, native.NewConst(tx, w)}})
		}
	}
	op := native.OpShl
	if in.Op == token.SHR {
		op = native.OpLShr
		if isSigned(in.X.Type()) {
			op = native.OpAShr
		}
	}
	t.emit(in, in.Name(), &native.Instruction{Op: op, Ty: tx, Operands: []native.Value{x, amt}})
	return nil
}

func (t *translator) unop(in *ssa.UnOp) error {
	if in.CommaOk {
		return fmt.Errorf("comma-ok %s: %w", in.Op, lokierrors.ErrTUnsupportedOpcode)
	}
	x, err := t.value(in.X)
	if err != nil {
		return err
	}
	switch in.Op {
	case token.SUB:
		ty := x.Type()
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpSub, Ty: ty, Operands: []native.Value{native.NewConst(ty, 0), x}})
	case token.XOR, token.NOT:
		ty := x.Type()
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpXor, Ty: ty, Operands: []native.Value{x, native.NewConst(ty, ^uint64(0))}})
	case token.MUL:
		ty, err := scalarType(in.Type())
		if err != nil {
			return err
		}
		t.emit(in, in.Name(), &native.Instruction{Op: native.OpLoad, Ty: ty, Operands: []native.Value{x}})
	default:
		return fmt.Errorf("operator %s: %w", in.Op, lokierrors.ErrTUnsupportedOpcode)
	}
	return nil
}

// convert maps integer conversions onto extensions and truncations.
// Conversions between equal widths only change signedness and reuse the
// source value.
func (t *translator) convert(in *ssa.Convert) error {
	x, err := t.value(in.X)
	if err != nil {
		return err
	}
	to, err := scalarType(in.Type())
	if err != nil {
		return err
	}
	from := x.Type()
	if !from.IsInt() || !to.IsInt() {
		return fmt.Errorf("conversion %s to %s: %w", from, to, lokierrors.ErrTUnsupportedOpcode)
	}
	var op native.Opcode
	switch {
	case to.Bits == from.Bits:
		t.values[in] = x
		return nil
	case to.Bits < from.Bits:
		op = native.OpTrunc
	case isSigned(in.X.Type()):
		op = native.OpSExt
	default:
		op = native.OpZExt
	}
	t.emit(in, in.Name(), &native.Instruction{Op: op, Ty: to, Operands: []native.Value{x}})
	return nil
}

// index widens an array index to 64 bits.
func (t *translator) index(v ssa.Value) (native.Value, error) {
	idx, err := t.value(v)
	if err != nil {
		return nil, err
	}
	if c, ok := idx.(*native.Const); ok {
		return native.NewConst(native.I64, uint64(c.Signed())), nil
	}
	if idx.Type().Bits == 64 {
		return idx, nil
	}
	op := native.OpZExt
	if isSigned(v.Type()) {
		op = native.OpSExt
	}
	return t.emit(nil, idx.Name()+"_idx", &native.Instruction{Op: op, Ty: native.I64, Operands: []native.Value{idx}}), nil
}

func pointee(v ssa.Value) (types.Type, error) {
	p, ok := v.Type().Underlying().(*types.Pointer)
	if !ok {
		return nil, fmt.Errorf("%s is not a pointer: %w", v.Name(), lokierrors.ErrTUnsupportedOpcode)
	}
	return p.Elem(), nil
}

func (t *translator) indexAddr(in *ssa.IndexAddr) error {
	elem, err := pointee(in.X)
	if err != nil {
		return err
	}
	if _, ok := elem.Underlying().(*types.Array); !ok {
		return fmt.Errorf("indexing %s: %w", elem, lokierrors.ErrTUnsupportedOpcode)
	}
	src, err := typeOf(elem)
	if err != nil {
		return err
	}
	base, err := t.value(in.X)
	if err != nil {
		return err
	}
	idx, err := t.index(in.Index)
	if err != nil {
		return err
	}
	t.emit(in, in.Name(), &native.Instruction{
		Op:         native.OpGetElementPtr,
		Ty:         native.Ptr,
		SourceElem: src,
		Operands:   []native.Value{base, native.NewConst(native.I64, 0), idx},
	})
	return nil
}

func (t *translator) fieldAddr(in *ssa.FieldAddr) error {
	elem, err := pointee(in.X)
	if err != nil {
		return err
	}
	src, err := typeOf(elem)
	if err != nil {
		return err
	}
	base, err := t.value(in.X)
	if err != nil {
		return err
	}
	t.emit(in, in.Name(), &native.Instruction{
		Op:         native.OpGetElementPtr,
		Ty:         native.Ptr,
		SourceElem: src,
		Operands:   []native.Value{base, native.NewConst(native.I64, 0), native.NewConst(native.I32, uint64(in.Field))},
	})
	return nil
}

// store drops zero stores of aggregates: allocations start zeroed.
func (t *translator) store(in *ssa.Store) error {
	if c, ok := in.Val.(*ssa.Const); ok && c.Value == nil {
		if _, err := scalarType(c.Type()); err != nil {
			return nil
		}
	}
	val, err := t.value(in.Val)
	if err != nil {
		return err
	}
	addr, err := t.value(in.Addr)
	if err != nil {
		return err
	}
	t.emit(nil, "", &native.Instruction{Op: native.OpStore, Ty: native.Void, Operands: []native.Value{val, addr}})
	return nil
}

// ret makes the returned value the last computed one, which is where the
// linear IR reads its result.
func (t *translator) ret(in *ssa.Return) error {
	if len(in.Results) != 1 {
		return fmt.Errorf("%d results: %w", len(in.Results), lokierrors.ErrTUnsupportedOpcode)
	}
	v, err := t.value(in.Results[0])
	if err != nil {
		return err
	}
	if n := len(t.fn.Body); n == 0 || t.fn.Body[n-1] != v {
		v = t.emit(nil, "ret", &native.Instruction{Op: native.OpBitCast, Ty: v.Type(), Operands: []native.Value{v}})
	}
	t.fn.Body = append(t.fn.Body, &native.Instruction{Op: native.OpRet, Ty: native.Void, Operands: []native.Value{v}, Slot: len(t.fn.Body)})
	return nil
}
