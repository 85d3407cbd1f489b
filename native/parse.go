package native

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/colorfulnotion/loki/lokierrors"
)

// Parse reads functions written in a small subset of LLVM assembly: typed,
// straight-line bodies with opaque pointers. Numbered values (%0, %1) are
// unnamed, as in LLVM.
func Parse(src string) (*Module, error) {
	m := &Module{}
	var p *parser
	sc := bufio.NewScanner(strings.NewReader(src))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, ';'); i >= 0 {
			line = line[:i]
		}
		toks := tokenize(line)
		if len(toks) == 0 {
			continue
		}
		if p == nil {
			if toks[0] != "define" {
				if toks[0] == "target" || toks[0] == "source_filename" {
					continue
				}
				return nil, parseErr(lineNo, "expected define, got %q", toks[0])
			}
			p = &parser{toks: toks, line: lineNo, values: make(map[string]Value)}
			fn, err := p.header()
			if err != nil {
				return nil, err
			}
			p.fn = fn
			continue
		}
		if toks[0] == "}" {
			m.Functions = append(m.Functions, p.fn)
			p = nil
			continue
		}
		p.toks, p.pos, p.line = toks, 0, lineNo
		if err := p.instruction(); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if p != nil {
		return nil, parseErr(lineNo, "function @%s is not closed", p.fn.Ident)
	}
	return m, nil
}

// ParseFunction parses src and returns the function called name, or the
// only function when name is empty.
func ParseFunction(src, name string) (*Function, error) {
	m, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(m.Functions) != 1 {
			return nil, fmt.Errorf("%d functions, need a name: %w", len(m.Functions), lokierrors.ErrTParse)
		}
		return m.Functions[0], nil
	}
	fn, ok := m.Function(name)
	if !ok {
		return nil, fmt.Errorf("no function @%s: %w", name, lokierrors.ErrTParse)
	}
	return fn, nil
}

func parseErr(line int, format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s: %w", line, fmt.Sprintf(format, args...), lokierrors.ErrTParse)
}

func tokenize(line string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case unicode.IsSpace(r):
			flush()
		case strings.ContainsRune(",()[]{}=*", r):
			flush()
			toks = append(toks, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

var skippedFlags = map[string]bool{
	"nuw": true, "nsw": true, "exact": true, "inbounds": true, "disjoint": true, "nneg": true,
}

type parser struct {
	toks   []string
	pos    int
	line   int
	fn     *Function
	values map[string]Value
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return parseErr(p.line, format, args...)
}

func (p *parser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) expect(tok string) error {
	if got := p.next(); got != tok {
		return p.errorf("expected %q, got %q", tok, got)
	}
	return nil
}

func (p *parser) skipFlags() {
	for skippedFlags[p.peek()] {
		p.pos++
	}
}

// skipAlign drops a trailing ", align N".
func (p *parser) skipAlign() {
	if p.peek() == "," && p.pos+1 < len(p.toks) && p.toks[p.pos+1] == "align" {
		p.pos = len(p.toks)
	}
}

func (p *parser) done() error {
	if p.pos != len(p.toks) {
		return p.errorf("unexpected %q", p.peek())
	}
	return nil
}

func (p *parser) typ() (*Type, error) {
	tok := p.next()
	var t *Type
	switch {
	case tok == "void":
		t = Void
	case tok == "ptr":
		t = Ptr
	case strings.HasPrefix(tok, "i"):
		bits, err := strconv.ParseUint(tok[1:], 10, 8)
		if err != nil || bits == 0 || bits > 64 {
			return nil, p.errorf("unsupported integer type %q", tok)
		}
		t = Int(uint(bits))
	case tok == "[":
		n, err := strconv.ParseUint(p.next(), 10, 64)
		if err != nil {
			return nil, p.errorf("bad array length")
		}
		if err := p.expect("x"); err != nil {
			return nil, err
		}
		elem, err := p.typ()
		if err != nil {
			return nil, err
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		t = Array(elem, n)
	case tok == "{":
		var fields []*Type
		for {
			f, err := p.typ()
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
			if p.peek() == "}" {
				p.next()
				break
			}
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		t = Struct(fields...)
	default:
		return nil, p.errorf("unknown type %q", tok)
	}
	for p.peek() == "*" {
		p.next()
		t = Ptr
	}
	return t, nil
}

func (p *parser) operand(t *Type) (Value, error) {
	tok := p.next()
	switch {
	case strings.HasPrefix(tok, "%"):
		v, ok := p.values[tok[1:]]
		if !ok {
			return nil, p.errorf("use of undefined value %s", tok)
		}
		if !v.Type().Equal(t) {
			return nil, p.errorf("%s has type %s, used as %s", tok, v.Type(), t)
		}
		return v, nil
	case tok == "true" || tok == "false":
		if !t.IsInt() {
			return nil, p.errorf("boolean literal for %s", t)
		}
		if tok == "true" {
			return NewConst(t, 1), nil
		}
		return NewConst(t, 0), nil
	case tok == "null":
		if !t.IsPtr() {
			return nil, p.errorf("null for %s", t)
		}
		return NewConst(t, 0), nil
	}
	if !t.IsInt() {
		return nil, p.errorf("literal %q for %s", tok, t)
	}
	if n, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return NewConst(t, uint64(n)), nil
	}
	if n, err := strconv.ParseUint(tok, 0, 64); err == nil {
		return NewConst(t, n), nil
	}
	return nil, p.errorf("bad operand %q", tok)
}

func (p *parser) typedOperand() (Value, error) {
	t, err := p.typ()
	if err != nil {
		return nil, err
	}
	return p.operand(t)
}

// define <ret> @name(<ty> %a, ...) {
func (p *parser) header() (*Function, error) {
	p.next()
	ret, err := p.typ()
	if err != nil {
		return nil, err
	}
	name := p.next()
	if !strings.HasPrefix(name, "@") {
		return nil, p.errorf("expected function name, got %q", name)
	}
	fn := &Function{Ident: name[1:], RetType: ret}
	if err := p.expect("("); err != nil {
		return nil, err
	}
	for p.peek() != ")" {
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		p.skipFlags()
		arg := &Argument{Ty: t, Index: len(fn.Params)}
		if strings.HasPrefix(p.peek(), "%") {
			if err := p.define(p.next()[1:], arg, &arg.Ident); err != nil {
				return nil, err
			}
		}
		fn.Params = append(fn.Params, arg)
		if p.peek() == "," {
			p.next()
		}
	}
	p.next()
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	return fn, p.done()
}

// define binds a name; numbered names leave ident empty.
func (p *parser) define(name string, v Value, ident *string) error {
	if _, dup := p.values[name]; dup {
		return p.errorf("%%%s redefined", name)
	}
	if _, err := strconv.Atoi(name); err != nil {
		*ident = name
	}
	p.values[name] = v
	return nil
}

func (p *parser) instruction() error {
	if p.peek() == "store" || p.peek() == "ret" {
		ins, err := p.body(p.next())
		if err != nil {
			return err
		}
		p.fn.Body = append(p.fn.Body, ins)
		return p.done()
	}
	name := p.next()
	if !strings.HasPrefix(name, "%") {
		return p.errorf("expected result name, got %q", name)
	}
	if err := p.expect("="); err != nil {
		return err
	}
	ins, err := p.body(p.next())
	if err != nil {
		return err
	}
	if ins.Ty == Void {
		return p.errorf("%s produces no value", ins.Op)
	}
	if n, err := strconv.Atoi(name[1:]); err == nil {
		ins.Slot = n
	}
	if err := p.define(name[1:], ins, &ins.Ident); err != nil {
		return err
	}
	p.fn.Body = append(p.fn.Body, ins)
	return p.done()
}

func (p *parser) body(opname string) (*Instruction, error) {
	p.skipFlags()
	for op, n := range opcodeNames {
		if n != opname {
			continue
		}
		ins := &Instruction{Op: Opcode(op)}
		var err error
		switch {
		case ins.Op.IsBinary():
			err = p.binary(ins)
		case ins.Op == OpICmp:
			err = p.icmp(ins)
		case ins.Op == OpSelect:
			err = p.sel(ins)
		case ins.Op.IsCast():
			err = p.cast(ins)
		case ins.Op == OpGetElementPtr:
			err = p.gep(ins)
		case ins.Op == OpLoad:
			err = p.load(ins)
		case ins.Op == OpStore:
			err = p.store(ins)
		case ins.Op == OpAlloca:
			ins.Ty = Ptr
			ins.AllocType, err = p.typ()
			p.skipAlign()
		case ins.Op == OpFreeze:
			var v Value
			v, err = p.typedOperand()
			if err == nil {
				ins.Ty, ins.Operands = v.Type(), []Value{v}
			}
		case ins.Op == OpRet:
			err = p.ret(ins)
		}
		if err != nil {
			return nil, err
		}
		return ins, nil
	}
	return nil, p.errorf("unknown instruction %q", opname)
}

func (p *parser) binary(ins *Instruction) error {
	p.skipFlags()
	t, err := p.typ()
	if err != nil {
		return err
	}
	if !t.IsInt() {
		return p.errorf("%s on %s", ins.Op, t)
	}
	a, err := p.operand(t)
	if err != nil {
		return err
	}
	if err := p.expect(","); err != nil {
		return err
	}
	b, err := p.operand(t)
	if err != nil {
		return err
	}
	ins.Ty, ins.Operands = t, []Value{a, b}
	return nil
}

func (p *parser) icmp(ins *Instruction) error {
	pred, ok := parsePredicate(p.next())
	if !ok {
		return p.errorf("unknown predicate")
	}
	t, err := p.typ()
	if err != nil {
		return err
	}
	a, err := p.operand(t)
	if err != nil {
		return err
	}
	if err := p.expect(","); err != nil {
		return err
	}
	b, err := p.operand(t)
	if err != nil {
		return err
	}
	ins.Ty, ins.Pred, ins.Operands = I1, pred, []Value{a, b}
	return nil
}

func (p *parser) sel(ins *Instruction) error {
	vals := make([]Value, 3)
	for i := range vals {
		if i > 0 {
			if err := p.expect(","); err != nil {
				return err
			}
		}
		v, err := p.typedOperand()
		if err != nil {
			return err
		}
		vals[i] = v
	}
	if !vals[0].Type().Equal(I1) || !vals[1].Type().Equal(vals[2].Type()) {
		return p.errorf("select operand types")
	}
	ins.Ty, ins.Operands = vals[1].Type(), vals
	return nil
}

func (p *parser) cast(ins *Instruction) error {
	v, err := p.typedOperand()
	if err != nil {
		return err
	}
	if err := p.expect("to"); err != nil {
		return err
	}
	dst, err := p.typ()
	if err != nil {
		return err
	}
	src := v.Type()
	ok := true
	switch ins.Op {
	case OpZExt, OpSExt:
		ok = src.IsInt() && dst.IsInt() && dst.Bits >= src.Bits
	case OpTrunc:
		ok = src.IsInt() && dst.IsInt() && dst.Bits <= src.Bits
	case OpPtrToInt:
		ok = src.IsPtr() && dst.IsInt()
	case OpIntToPtr:
		ok = src.IsInt() && dst.IsPtr()
	case OpBitCast:
		ok = src.ScalarBits() == dst.ScalarBits()
	}
	if !ok {
		return p.errorf("invalid %s from %s to %s", ins.Op, src, dst)
	}
	ins.Ty, ins.Operands = dst, []Value{v}
	return nil
}

func (p *parser) gep(ins *Instruction) error {
	p.skipFlags()
	elem, err := p.typ()
	if err != nil {
		return err
	}
	ins.SourceElem, ins.Ty = elem, Ptr
	for p.peek() == "," {
		p.next()
		p.skipFlags()
		v, err := p.typedOperand()
		if err != nil {
			return err
		}
		ins.Operands = append(ins.Operands, v)
	}
	if len(ins.Operands) == 0 || !ins.Operands[0].Type().IsPtr() {
		return p.errorf("getelementptr needs a pointer base")
	}
	for _, v := range ins.Operands[1:] {
		if !v.Type().IsInt() {
			return p.errorf("getelementptr index of type %s", v.Type())
		}
	}
	return nil
}

func (p *parser) load(ins *Instruction) error {
	t, err := p.typ()
	if err != nil {
		return err
	}
	if err := p.expect(","); err != nil {
		return err
	}
	ptr, err := p.typedOperand()
	if err != nil {
		return err
	}
	if !ptr.Type().IsPtr() {
		return p.errorf("load from %s", ptr.Type())
	}
	p.skipAlign()
	ins.Ty, ins.Operands = t, []Value{ptr}
	return nil
}

func (p *parser) store(ins *Instruction) error {
	v, err := p.typedOperand()
	if err != nil {
		return err
	}
	if err := p.expect(","); err != nil {
		return err
	}
	ptr, err := p.typedOperand()
	if err != nil {
		return err
	}
	if !ptr.Type().IsPtr() {
		return p.errorf("store to %s", ptr.Type())
	}
	p.skipAlign()
	ins.Ty, ins.Operands = Void, []Value{v, ptr}
	return nil
}

func (p *parser) ret(ins *Instruction) error {
	ins.Ty = Void
	if p.peek() == "void" {
		p.next()
		return nil
	}
	v, err := p.typedOperand()
	if err != nil {
		return err
	}
	ins.Operands = []Value{v}
	return nil
}
