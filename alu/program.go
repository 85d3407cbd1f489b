package alu

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/colorfulnotion/loki/lokierrors"
)

// Inputs every micro-program may read: the two source registers, the
// immediate and the operation key of the record being executed.
const (
	InputX = "x"
	InputY = "y"
	InputC = "c"
	InputK = "k"
)

var inputs = []string{InputX, InputY, InputC, InputK}

type LineKind uint8

const (
	LineAlias LineKind = iota
	LineInt
	LineOp
)

// Operand is a "REG <size> <name>" reference.
type Operand struct {
	Size uint
	Name string
}

// Line is one statement: "<target> = REG <size> <name>", "<target> = INT
// <size> 0x<hex>" or "<target> = <OP> <size> REG <s> <a> ...".
type Line struct {
	Target string
	Kind   LineKind
	Op     string
	Size   uint
	Args   []Operand
	Value  uint64
}

func (l Line) String() string {
	switch l.Kind {
	case LineAlias:
		return fmt.Sprintf("%s = REG %d %s", l.Target, l.Size, l.Args[0].Name)
	case LineInt:
		return fmt.Sprintf("%s = INT %d 0x%x", l.Target, l.Size, l.Value)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = %s %d", l.Target, l.Op, l.Size)
	for _, a := range l.Args {
		fmt.Fprintf(&sb, " REG %d %s", a.Size, a.Name)
	}
	return sb.String()
}

// Program is a straight-line micro-program. Its value is the value of the
// last operation line.
type Program struct {
	Lines []Line
}

func (p *Program) String() string {
	var sb strings.Builder
	for _, l := range p.Lines {
		sb.WriteString(l.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Parse reads a program up to the first blank line or the end of text and
// validates it.
func Parse(text string) (*Program, error) {
	p := &Program{}
	sc := bufio.NewScanner(strings.NewReader(text))
	n := 0
	for sc.Scan() {
		n++
		raw := sc.Text()
		if strings.TrimSpace(raw) == "" {
			break
		}
		l, err := parseLine(strings.Fields(raw))
		if err != nil {
			return nil, fmt.Errorf("line %d %q: %w", n, raw, err)
		}
		p.Lines = append(p.Lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseSize(tok string) (uint, error) {
	n, err := strconv.ParseUint(tok, 10, 8)
	if err != nil || n == 0 || n > 64 {
		return 0, fmt.Errorf("size %q: %w", tok, lokierrors.ErrEMalformedLine)
	}
	return uint(n), nil
}

func parseLine(f []string) (Line, error) {
	if len(f) < 4 || f[1] != "=" {
		return Line{}, lokierrors.ErrEMalformedLine
	}
	l := Line{Target: f[0], Op: f[2]}
	size, err := parseSize(f[3])
	if err != nil {
		return Line{}, err
	}
	l.Size = size
	rest := f[4:]
	switch l.Op {
	case "REG":
		if len(rest) != 1 {
			return Line{}, lokierrors.ErrEMalformedLine
		}
		l.Kind = LineAlias
		l.Op = ""
		l.Args = []Operand{{Size: size, Name: rest[0]}}
		return l, nil
	case "INT":
		if len(rest) != 1 || !strings.HasPrefix(rest[0], "0x") {
			return Line{}, lokierrors.ErrEMalformedLine
		}
		v, err := strconv.ParseUint(rest[0][2:], 16, 64)
		if err != nil {
			return Line{}, fmt.Errorf("%v: %w", err, lokierrors.ErrEMalformedLine)
		}
		l.Kind = LineInt
		l.Op = ""
		l.Value = v
		return l, nil
	}
	if _, ok := arity[l.Op]; !ok {
		return Line{}, fmt.Errorf("%q: %w", l.Op, lokierrors.ErrEUnknownOperation)
	}
	l.Kind = LineOp
	if len(rest)%3 != 0 {
		return Line{}, lokierrors.ErrEMalformedLine
	}
	for i := 0; i < len(rest); i += 3 {
		if rest[i] != "REG" {
			return Line{}, fmt.Errorf("operand kind %q: %w", rest[i], lokierrors.ErrEMalformedLine)
		}
		s, err := parseSize(rest[i+1])
		if err != nil {
			return Line{}, err
		}
		l.Args = append(l.Args, Operand{Size: s, Name: rest[i+2]})
	}
	return l, nil
}

// Validate checks names, keywords, widths and arities, and that at least
// one operation line exists.
func (p *Program) Validate() error {
	defined := make(map[string]bool, len(p.Lines)+len(inputs))
	for _, in := range inputs {
		defined[in] = true
	}
	ops := 0
	for i, l := range p.Lines {
		if l.Target == "" {
			return fmt.Errorf("line %d: %w", i+1, lokierrors.ErrEMalformedLine)
		}
		if l.Size == 0 || l.Size > 64 {
			return fmt.Errorf("line %d size %d: %w", i+1, l.Size, lokierrors.ErrEMalformedLine)
		}
		if l.Kind == LineOp {
			n, ok := arity[l.Op]
			if !ok {
				return fmt.Errorf("line %d %q: %w", i+1, l.Op, lokierrors.ErrEUnknownOperation)
			}
			if len(l.Args) != n {
				return fmt.Errorf("line %d: %s takes %d operands: %w", i+1, l.Op, n, lokierrors.ErrEMalformedLine)
			}
			ops++
		}
		for _, a := range l.Args {
			if a.Size == 0 || a.Size > 64 {
				return fmt.Errorf("line %d operand size %d: %w", i+1, a.Size, lokierrors.ErrEMalformedLine)
			}
			if !defined[a.Name] {
				return fmt.Errorf("line %d reads %q: %w", i+1, a.Name, lokierrors.ErrEUndefinedRegister)
			}
		}
		defined[l.Target] = true
	}
	if ops == 0 {
		return lokierrors.ErrEEmptyProgram
	}
	return nil
}
