package il

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

const MaxBits = 64

// Elem is one element of a postfix right-hand side: a register, a constant
// or an operation tag. Size is the bit width of the value the element
// produces.
type Elem struct {
	Size  uint
	Op    Op
	Name  string
	Const uint64
}

func checkBits(bits uint) error {
	if bits == 0 || bits > MaxBits {
		return fmt.Errorf("width %d: %w", bits, lokierrors.ErrTBadWidth)
	}
	return nil
}

func NewRegister(name string, bits uint) (Elem, error) {
	if name == "" {
		return Elem{}, lokierrors.ErrTEmptyName
	}
	if err := checkBits(bits); err != nil {
		return Elem{}, err
	}
	return Elem{Size: bits, Op: OpReg, Name: name}, nil
}

// NewConstant masks v to the given width.
func NewConstant(bits uint, v uint64) (Elem, error) {
	if err := checkBits(bits); err != nil {
		return Elem{}, err
	}
	return Elem{Size: bits, Op: OpConst, Const: common.Mask(v, bits)}, nil
}

// Reg and Const are the unchecked forms used once widths are known to be
// valid. NewAssignment still validates them.
func Reg(name string, bits uint) Elem {
	return Elem{Size: bits, Op: OpReg, Name: name}
}

func Const(bits uint, v uint64) Elem {
	return Elem{Size: bits, Op: OpConst, Const: common.Mask(v, bits)}
}

func Tag(op Op, bits uint) Elem {
	return Elem{Size: bits, Op: op}
}

func (e Elem) IsReg() bool   { return e.Op == OpReg }
func (e Elem) IsConst() bool { return e.Op == OpConst }
func (e Elem) IsLeaf() bool  { return e.Op.IsLeaf() }

func (e Elem) String() string {
	switch e.Op {
	case OpReg:
		return e.Name + ":" + strconv.FormatUint(uint64(e.Size), 10)
	case OpConst:
		return strconv.FormatUint(e.Const, 10) + ":" + strconv.FormatUint(uint64(e.Size), 10)
	default:
		return e.Op.String() + ":" + strconv.FormatUint(uint64(e.Size), 10)
	}
}

type jsonElem struct {
	Size uint            `json:"size"`
	Op   json.RawMessage `json:"op"`
}

type jsonConst struct {
	Const uint64 `json:"Const"`
}

type jsonReg struct {
	Reg string `json:"Reg"`
}

func (e Elem) MarshalJSON() ([]byte, error) {
	var (
		op  []byte
		err error
	)
	switch e.Op {
	case OpConst:
		op, err = json.Marshal(jsonConst{Const: e.Const})
	case OpReg:
		op, err = json.Marshal(jsonReg{Reg: e.Name})
	default:
		op, err = e.Op.MarshalJSON()
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonElem{Size: e.Size, Op: op})
}

func (e *Elem) UnmarshalJSON(data []byte) error {
	var raw jsonElem
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Op) == 0 {
		return fmt.Errorf("element without op: %w", lokierrors.ErrTMalformed)
	}
	*e = Elem{Size: raw.Size}
	if raw.Op[0] == '"' {
		return e.Op.UnmarshalJSON(raw.Op)
	}
	var leaf map[string]json.RawMessage
	if err := json.Unmarshal(raw.Op, &leaf); err != nil {
		return err
	}
	if v, ok := leaf["Const"]; ok {
		e.Op = OpConst
		return json.Unmarshal(v, &e.Const)
	}
	if v, ok := leaf["Reg"]; ok {
		e.Op = OpReg
		return json.Unmarshal(v, &e.Name)
	}
	return fmt.Errorf("leaf %s: %w", string(raw.Op), lokierrors.ErrTMalformed)
}
