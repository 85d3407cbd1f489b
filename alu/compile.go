package alu

import (
	"fmt"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Func is a compiled micro-program.
type Func func(x, y, c, k uint64) uint64

type node struct {
	kind  LineKind
	size  uint
	value uint64
	args  []int
	sizes []uint
	un    unaryFn
	bin   binaryFn
	cmp   bool
	ite   bool
}

type compiled struct {
	nodes  []node
	result int
}

// Compile validates the program and turns it into a closure. Evaluation is
// demand driven from the result, so an ITE only evaluates the selected arm.
// Division by zero in an evaluated line panics.
func (p *Program) Compile() (Func, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	slots := make(map[string]int, len(p.Lines)+len(inputs))
	for i, in := range inputs {
		slots[in] = i
	}
	c := &compiled{nodes: make([]node, len(inputs), len(inputs)+len(p.Lines)), result: -1}
	for _, l := range p.Lines {
		n := node{kind: l.Kind, size: l.Size, value: l.Value}
		for _, a := range l.Args {
			n.args = append(n.args, slots[a.Name])
			n.sizes = append(n.sizes, a.Size)
		}
		if l.Kind == LineOp {
			switch {
			case l.Op == "ITE":
				n.ite = true
			case arity[l.Op] == 1:
				n.un = unary[l.Op]
			default:
				n.bin = binary[l.Op]
				n.cmp = IsCompare(l.Op)
			}
			if n.un == nil && n.bin == nil && !n.ite {
				return nil, fmt.Errorf("%q: %w", l.Op, lokierrors.ErrEUnknownOperation)
			}
		}
		slots[l.Target] = len(c.nodes)
		if l.Kind == LineOp {
			c.result = len(c.nodes)
		}
		c.nodes = append(c.nodes, n)
	}
	return c.run, nil
}

func (c *compiled) run(x, y, cc, k uint64) uint64 {
	vals := make([]uint64, len(c.nodes))
	done := make([]bool, len(c.nodes))
	vals[0], vals[1], vals[2], vals[3] = x, y, cc, k
	done[0], done[1], done[2], done[3] = true, true, true, true
	return c.eval(vals, done, c.result)
}

func (c *compiled) arg(vals []uint64, done []bool, n *node, i int) uint64 {
	return common.Mask(c.eval(vals, done, n.args[i]), n.sizes[i])
}

func (c *compiled) eval(vals []uint64, done []bool, i int) uint64 {
	if done[i] {
		return vals[i]
	}
	n := &c.nodes[i]
	var v uint64
	switch {
	case n.kind == LineInt:
		v = common.Mask(n.value, n.size)
	case n.kind == LineAlias:
		v = c.arg(vals, done, n, 0)
	case n.ite:
		if c.arg(vals, done, n, 0) != 0 {
			v = common.Mask(c.arg(vals, done, n, 1), n.size)
		} else {
			v = common.Mask(c.arg(vals, done, n, 2), n.size)
		}
	case n.un != nil:
		v = n.un(c.arg(vals, done, n, 0), n.sizes[0], n.size)
	case n.cmp:
		v = common.Mask(n.bin(c.arg(vals, done, n, 0), c.arg(vals, done, n, 1), n.sizes[0]), n.size)
	default:
		v = n.bin(c.arg(vals, done, n, 0), c.arg(vals, done, n, 1), n.size)
	}
	vals[i], done[i] = v, true
	return v
}
