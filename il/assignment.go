package il

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/colorfulnotion/loki/lokierrors"
)

// Assignment defines one register from a postfix right-hand side made of
// leaf operands followed by a single operation tag.
type Assignment struct {
	LHS  Elem
	RHS  []Elem
	Size uint
}

// NewAssignment builds and validates an assignment. The width of lhs is the
// width of the assignment.
func NewAssignment(lhs Elem, rhs ...Elem) (Assignment, error) {
	a := Assignment{LHS: lhs, RHS: rhs, Size: lhs.Size}
	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

// Validate checks the postfix shape: a register on the left, leaves then
// exactly one trailing tag whose arity matches the leaf count.
func (a Assignment) Validate() error {
	if !a.LHS.IsReg() {
		return fmt.Errorf("lhs %v is not a register: %w", a.LHS, lokierrors.ErrTMalformed)
	}
	if a.LHS.Name == "" {
		return lokierrors.ErrTEmptyName
	}
	if err := checkBits(a.LHS.Size); err != nil {
		return err
	}
	if a.Size != a.LHS.Size {
		return fmt.Errorf("assignment size %d, lhs %d: %w", a.Size, a.LHS.Size, lokierrors.ErrTMalformed)
	}
	if len(a.RHS) == 0 {
		return fmt.Errorf("%s: empty rhs: %w", a.LHS.Name, lokierrors.ErrTMalformed)
	}
	tag := a.RHS[len(a.RHS)-1]
	if tag.IsLeaf() || tag.Op == OpUnknown {
		return fmt.Errorf("%s: rhs must end with an operation: %w", a.LHS.Name, lokierrors.ErrTMalformed)
	}
	leaves := a.RHS[:len(a.RHS)-1]
	if len(leaves) != tag.Op.Arity() {
		return fmt.Errorf("%s: %v takes %d operands, got %d: %w", a.LHS.Name, tag.Op, tag.Op.Arity(), len(leaves), lokierrors.ErrTMalformed)
	}
	for _, e := range a.RHS {
		if err := checkBits(e.Size); err != nil {
			return fmt.Errorf("%s: %w", a.LHS.Name, err)
		}
	}
	for _, e := range leaves {
		if !e.IsLeaf() {
			return fmt.Errorf("%s: nested operation %v: %w", a.LHS.Name, e.Op, lokierrors.ErrTMalformed)
		}
		if e.IsReg() && e.Name == "" {
			return lokierrors.ErrTEmptyName
		}
	}
	if tag.Size != a.Size {
		return fmt.Errorf("%s: tag width %d, lhs %d: %w", a.LHS.Name, tag.Size, a.Size, lokierrors.ErrTMalformed)
	}
	return nil
}

// Op is the trailing operation tag.
func (a Assignment) Op() Op {
	if len(a.RHS) == 0 {
		return OpUnknown
	}
	return a.RHS[len(a.RHS)-1].Op
}

// Operands are the leaves of the right-hand side.
func (a Assignment) Operands() []Elem {
	if len(a.RHS) == 0 {
		return nil
	}
	return a.RHS[:len(a.RHS)-1]
}

func (a Assignment) String() string {
	ops := a.Operands()
	parts := make([]string, len(ops))
	for i, e := range ops {
		parts[i] = e.String()
	}
	return fmt.Sprintf("%s = %s(%s)", a.LHS, a.Op(), strings.Join(parts, ", "))
}

type jsonAssignment struct {
	LHS  []Elem `json:"lhs"`
	RHS  []Elem `json:"rhs"`
	Size uint   `json:"size"`
}

func (a Assignment) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonAssignment{LHS: []Elem{a.LHS}, RHS: a.RHS, Size: a.Size})
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	var raw jsonAssignment
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.LHS) != 1 {
		return fmt.Errorf("lhs must hold one register, got %d elements: %w", len(raw.LHS), lokierrors.ErrTMalformed)
	}
	*a = Assignment{LHS: raw.LHS[0], RHS: raw.RHS, Size: raw.Size}
	return nil
}
