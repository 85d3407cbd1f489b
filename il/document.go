package il

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
)

// Document is the translator output for one function.
type Document struct {
	Instructions []Assignment `json:"instructions"`
	Arguments    []string     `json:"arguments"`
}

func (d *Document) Append(a ...Assignment) {
	d.Instructions = append(d.Instructions, a...)
}

// Validate checks every assignment and that each register read on a
// right-hand side is an argument or was defined earlier.
func (d *Document) Validate() error {
	defined := make(map[string]struct{}, len(d.Arguments)+len(d.Instructions))
	for _, name := range d.Arguments {
		if name == "" {
			return fmt.Errorf("argument: %w", lokierrors.ErrTEmptyName)
		}
		defined[name] = struct{}{}
	}
	for i, a := range d.Instructions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		for _, e := range a.Operands() {
			if !e.IsReg() {
				continue
			}
			if _, ok := defined[e.Name]; !ok {
				return fmt.Errorf("instruction %d reads %q: %w", i, e.Name, lokierrors.ErrTUndefinedRegister)
			}
		}
		defined[a.LHS.Name] = struct{}{}
	}
	return nil
}

// Output is the register defined by the last assignment.
func (d *Document) Output() (Elem, bool) {
	if len(d.Instructions) == 0 {
		return Elem{}, false
	}
	return d.Instructions[len(d.Instructions)-1].LHS, true
}

func (d *Document) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "args(%s)\n", strings.Join(d.Arguments, ", "))
	for _, a := range d.Instructions {
		sb.WriteString(a.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (d *Document) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// Digest is the BLAKE2b hash of the compact JSON form.
func (d *Document) Digest() (common.Hash, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Blake2Hash(data), nil
}

func ReadDocument(r io.Reader) (*Document, error) {
	var d Document
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDocument(f)
}

func (d *Document) Save(path string) error {
	data, err := d.MarshalIndent()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
