package vm

import (
	"fmt"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/lokierrors"
)

func handleExit(m *Machine, _ Operands) {
	m.Halt()
}

func handleTrap(m *Machine, _ Operands) {
	m.Fail(fmt.Errorf("opcode %d: %w", m.current.opcode, lokierrors.ErrRUnmappedOpcode))
}

// handleMemory serves key 0 (load), key 1 (store) and key 2 (allocate).
// Loads and stores move imm bits; allocation reserves imm bytes.
func handleMemory(m *Machine, ops Operands) {
	switch ops.Key {
	case alu.KeyLoad, alu.KeyStore:
		switch ops.Imm {
		case 8, 16, 32, 64:
		default:
			m.Fail(fmt.Errorf("access size %d: %w", ops.Imm, lokierrors.ErrRMemorySize))
			return
		}
		addr := m.regs[ops.R1]
		if ops.Key == alu.KeyLoad {
			m.regs[ops.R0] = m.Mem.Load(addr, uint(ops.Imm))
			return
		}
		v := m.regs[ops.R2]
		m.Mem.Store(addr, uint(ops.Imm), v)
		m.regs[ops.R0] = v
	case alu.KeyAlloc:
		m.regs[ops.R0] = m.Mem.Alloc(ops.Imm)
	default:
		m.Fail(fmt.Errorf("key %d: %w", ops.Key, lokierrors.ErrRMemoryKey))
	}
}

// ALUHandler wraps a compiled micro-program: x and y are the values of r1
// and r2, c is the immediate and k the key.
func ALUHandler(f alu.Func) Handler {
	return func(m *Machine, ops Operands) {
		m.regs[ops.R0] = f(m.regs[ops.R1], m.regs[ops.R2], ops.Imm, ops.Key)
	}
}
