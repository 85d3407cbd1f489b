package lifter

import (
	"fmt"

	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/native"
)

// Predicates without a tag of their own are lowered to the complementary
// comparison followed by a Not.
var predicates = map[native.Predicate]struct {
	op     il.Op
	negate bool
}{
	native.PredEQ:  {il.OpEqual, false},
	native.PredNE:  {il.OpEqual, true},
	native.PredULE: {il.OpUle, false},
	native.PredUGT: {il.OpUle, true},
	native.PredULT: {il.OpUlt, false},
	native.PredUGE: {il.OpUlt, true},
	native.PredSLE: {il.OpSle, false},
	native.PredSGT: {il.OpSle, true},
	native.PredSLT: {il.OpSlt, false},
	native.PredSGE: {il.OpSlt, true},
}

func (l *Lifter) icmp(ins *native.Instruction) ([]il.Assignment, error) {
	p, ok := predicates[ins.Pred]
	if !ok {
		return nil, fmt.Errorf("predicate %v: %w", ins.Pred, lokierrors.ErrTMalformed)
	}
	out, err := l.direct(ins, p.op)
	if err != nil {
		return nil, err
	}
	if p.negate {
		out, err = l.appendNot(out)
	}
	return out, err
}

// appendNot negates the last assignment. The host name moves to the Not so
// later readers see the final value; the comparison itself is renamed to a
// fresh register that the Not reads.
func (l *Lifter) appendNot(out []il.Assignment) ([]il.Assignment, error) {
	last := &out[len(out)-1]
	original := last.LHS.Name
	interm := l.names.Fresh()
	last.LHS.Name = interm

	not, err := il.NewAssignment(
		il.Reg(original, last.Size),
		il.Reg(interm, last.Size),
		il.Tag(il.OpNot, last.Size),
	)
	if err != nil {
		return nil, err
	}
	return append(out, not), nil
}
