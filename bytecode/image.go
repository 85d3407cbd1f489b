package bytecode

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/common"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/fxamacker/cbor/v2"
	"github.com/xlab/treeprint"
)

// Image is everything the VM needs to run one function: the code, the
// argument binding table and the generated handler programs.
type Image struct {
	Code          []byte              `cbor:"code" json:"code"`
	Arguments     []uint16            `cbor:"arguments" json:"arguments"`
	ArgumentNames []string            `cbor:"argument_names" json:"argument_names"`
	ArgumentCount int                 `cbor:"argument_count" json:"argument_count"`
	Handlers      map[uint16]string   `cbor:"handlers" json:"handlers"`
	Keys          map[uint16][]uint64 `cbor:"keys" json:"keys"`
	Seed          uint64              `cbor:"seed" json:"seed"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

func (img *Image) Marshal() ([]byte, error) {
	return cborEncMode.Marshal(img)
}

func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal image: %w", err)
	}
	return &img, nil
}

func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := UnmarshalImage(data)
	if err != nil {
		return nil, err
	}
	return img, img.Verify()
}

func (img *Image) Save(path string) error {
	data, err := img.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Digest is the BLAKE2b hash of the canonical encoding.
func (img *Image) Digest() (common.Hash, error) {
	data, err := img.Marshal()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Blake2Hash(data), nil
}

// HandlerIndices lists the generated handlers in ascending order.
func (img *Image) HandlerIndices() []uint16 {
	out := make([]uint16, 0, len(img.Handlers))
	for h := range img.Handlers {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Instructions decodes the code.
func (img *Image) Instructions() ([]Instruction, error) {
	if len(img.Code)%RecordSize != 0 {
		return nil, fmt.Errorf("code length %d: %w", len(img.Code), lokierrors.ErrRTruncatedCode)
	}
	out := make([]Instruction, 0, len(img.Code)/RecordSize)
	for off := 0; off < len(img.Code); off += RecordSize {
		ins, err := DecodeInstruction(img.Code[off:])
		if err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, nil
}

func verifyErr(format string, a ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, a...), lokierrors.ErrEVerification)
}

// Verify checks that the image is well formed: whole records ending in a
// single exit, a parsable handler behind every arithmetic opcode, valid
// memory records and a consistent argument table.
func (img *Image) Verify() error {
	if len(img.Code) == 0 || len(img.Code)%RecordSize != 0 {
		return verifyErr("code length %d", len(img.Code))
	}
	if img.ArgumentCount != len(img.Arguments) {
		return verifyErr("argument count %d, table has %d", img.ArgumentCount, len(img.Arguments))
	}
	if n := len(img.ArgumentNames); n != 0 && n != len(img.Arguments) {
		return verifyErr("%d argument names for %d arguments", n, len(img.Arguments))
	}
	for i, r := range img.Arguments {
		if r == RegOut || r == RegIP {
			return verifyErr("argument %d bound to reserved register %d", i, r)
		}
	}
	for h, text := range img.Handlers {
		if h <= OpMemory || int(h) >= alu.MaxHandlers {
			return verifyErr("handler index %d", h)
		}
		if _, err := alu.Parse(text); err != nil {
			return verifyErr("handler %d: %v", h, err)
		}
	}
	ins, err := img.Instructions()
	if err != nil {
		return verifyErr("%v", err)
	}
	for i, in := range ins {
		last := i == len(ins)-1
		switch {
		case in.Opcode == OpExit:
			if !last {
				return verifyErr("exit at record %d", i)
			}
		case last:
			return verifyErr("missing exit record")
		case in.Opcode == OpMemory:
			if err := verifyMemory(in); err != nil {
				return verifyErr("record %d: %v", i, err)
			}
		default:
			if _, ok := img.Handlers[in.Opcode]; !ok {
				return verifyErr("record %d: opcode %d has no handler", i, in.Opcode)
			}
			if !containsKey(img.Keys[in.Opcode], in.Key) {
				return verifyErr("record %d: key 0x%x unknown to handler %d", i, in.Key, in.Opcode)
			}
		}
	}
	return nil
}

func verifyMemory(in Instruction) error {
	switch in.Key {
	case alu.KeyLoad, alu.KeyStore:
		switch in.Imm {
		case 8, 16, 32, 64:
			return nil
		}
		return fmt.Errorf("access size %d: %w", in.Imm, lokierrors.ErrRMemorySize)
	case alu.KeyAlloc:
		return nil
	}
	return fmt.Errorf("key %d: %w", in.Key, lokierrors.ErrRMemoryKey)
}

func containsKey(keys []uint64, k uint64) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}

// VariableMap lists the register of each argument as "name 0x<index>".
func (img *Image) VariableMap() string {
	var sb strings.Builder
	for i, name := range img.ArgumentNames {
		fmt.Fprintf(&sb, "%s %#x\n", name, img.Arguments[i])
	}
	return sb.String()
}

func (img *Image) ToTree() treeprint.Tree {
	tree := treeprint.New()
	digest, _ := img.Digest()
	tree.SetValue(fmt.Sprintf("image %s (%d records, seed %d)", digest.String_short(), len(img.Code)/RecordSize, img.Seed))

	args := tree.AddBranch(fmt.Sprintf("arguments (%d)", img.ArgumentCount))
	for i, r := range img.Arguments {
		name := ""
		if i < len(img.ArgumentNames) {
			name = img.ArgumentNames[i]
		}
		args.AddNode(fmt.Sprintf("%d: %s -> r%d", i, name, r))
	}

	code := tree.AddBranch("code")
	used := map[uint16]int{}
	if ins, err := img.Instructions(); err == nil {
		for i, in := range ins {
			code.AddNode(fmt.Sprintf("%04d %s", i, in))
			used[in.Opcode]++
		}
	}

	hs := tree.AddBranch(fmt.Sprintf("handlers (%d)", len(img.Handlers)))
	for _, h := range img.HandlerIndices() {
		if used[h] == 0 {
			continue
		}
		hs.AddNode(fmt.Sprintf("alu%d: %d keys, %d lines, %d uses", h, len(img.Keys[h]), strings.Count(img.Handlers[h], "\n"), used[h]))
	}
	return tree
}

// WriteWorkdir dumps the code, the variable map, a disassembly and one
// alus/alu<N>.txt per handler into dir.
func (img *Image) WriteWorkdir(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, "alus"), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "byte_code.bin"), img.Code, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "variable_map.txt"), []byte(img.VariableMap()), 0o644); err != nil {
		return err
	}
	dis, err := Disassemble(img.Code)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "byte_code.txt"), []byte(dis), 0o644); err != nil {
		return err
	}
	for _, h := range img.HandlerIndices() {
		name := filepath.Join(dir, "alus", fmt.Sprintf("alu%d.txt", h))
		if err := os.WriteFile(name, []byte(img.Handlers[h]), 0o644); err != nil {
			return err
		}
	}
	return nil
}
