package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/lokierrors"
)

// RecordSize is the length of one encoded instruction.
const RecordSize = 24

// Fixed handler indices.
const (
	OpExit   uint16 = 0
	OpMemory uint16 = 1
)

// Fixed registers.
const (
	RegOut uint16 = 0
	RegIP  uint16 = 1
)

// Instruction is one record: opcode, destination, two sources, immediate
// and operation key, all little endian.
type Instruction struct {
	Opcode uint16
	R0     uint16
	R1     uint16
	R2     uint16
	Imm    uint64
	Key    uint64
}

// Exit is the terminating record.
func Exit() Instruction {
	return Instruction{Opcode: OpExit, R1: RegIP, R2: RegIP}
}

func (ins Instruction) Append(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, ins.Opcode)
	b = binary.LittleEndian.AppendUint16(b, ins.R0)
	b = binary.LittleEndian.AppendUint16(b, ins.R1)
	b = binary.LittleEndian.AppendUint16(b, ins.R2)
	b = binary.LittleEndian.AppendUint64(b, ins.Imm)
	b = binary.LittleEndian.AppendUint64(b, ins.Key)
	return b
}

func (ins Instruction) Encode() []byte {
	return ins.Append(make([]byte, 0, RecordSize))
}

func DecodeInstruction(b []byte) (Instruction, error) {
	if len(b) < RecordSize {
		return Instruction{}, fmt.Errorf("record of %d bytes: %w", len(b), lokierrors.ErrRTruncatedCode)
	}
	return Instruction{
		Opcode: binary.LittleEndian.Uint16(b[0:]),
		R0:     binary.LittleEndian.Uint16(b[2:]),
		R1:     binary.LittleEndian.Uint16(b[4:]),
		R2:     binary.LittleEndian.Uint16(b[6:]),
		Imm:    binary.LittleEndian.Uint64(b[8:]),
		Key:    binary.LittleEndian.Uint64(b[16:]),
	}, nil
}

// Mnemonic names the record's operation.
func (ins Instruction) Mnemonic() string {
	switch ins.Opcode {
	case OpExit:
		return "exit"
	case OpMemory:
		switch ins.Key {
		case alu.KeyLoad:
			return fmt.Sprintf("load%d", ins.Imm)
		case alu.KeyStore:
			return fmt.Sprintf("store%d", ins.Imm)
		case alu.KeyAlloc:
			return "alloca"
		}
		return "mem?"
	}
	return fmt.Sprintf("alu%d", ins.Opcode)
}

func (ins Instruction) String() string {
	return fmt.Sprintf("%-8s r%d, r%d, r%d imm=0x%x key=0x%x", ins.Mnemonic(), ins.R0, ins.R1, ins.R2, ins.Imm, ins.Key)
}

// Disassemble renders every record with its offset and raw fields.
func Disassemble(code []byte) (string, error) {
	var sb strings.Builder
	for off := 0; off < len(code); off += RecordSize {
		ins, err := DecodeInstruction(code[off:])
		if err != nil {
			return sb.String(), fmt.Errorf("offset 0x%x: %w", off, err)
		}
		fmt.Fprintf(&sb, "%06x  %04x %04x %04x %04x %016x %016x  %s\n",
			off, ins.Opcode, ins.R0, ins.R1, ins.R2, ins.Imm, ins.Key, ins)
	}
	return sb.String(), nil
}
