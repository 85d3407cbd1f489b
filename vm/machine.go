package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/memory"
)

const (
	NumRegisters = 1 << 16
	NumHandlers  = 512
)

// Operands are the decoded fields following an opcode.
type Operands struct {
	R0  uint16
	R1  uint16
	R2  uint16
	Imm uint64
	Key uint64
}

// Handler executes one record. Fatal conditions are reported through
// m.Fail.
type Handler func(m *Machine, ops Operands)

// FatalError stops the machine for good.
type FatalError struct {
	Step   uint64
	IP     uint64
	Opcode uint16
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("vm fault at step %d ip 0x%x opcode %d: %v", e.Step, e.IP, e.Opcode, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Machine is the register machine. It owns its register file; memory may
// be shared with the caller so pointer arguments can be prepared up front.
type Machine struct {
	regs    [NumRegisters]uint64
	table   [NumHandlers]Handler
	code    []byte
	args    []uint16
	Mem     *memory.RAM
	tracer  Tracer
	steps   uint64
	halted  bool
	fault   *FatalError
	current struct {
		ip     uint64
		opcode uint16
	}
}

// New returns a machine with the exit and memory handlers installed and
// every other entry trapping.
func New(mem *memory.RAM) *Machine {
	if mem == nil {
		mem = memory.NewRAM()
	}
	m := &Machine{Mem: mem}
	for i := range m.table {
		m.table[i] = handleTrap
	}
	m.table[bytecode.OpExit] = handleExit
	m.table[bytecode.OpMemory] = handleMemory
	return m
}

// Load sets the code and argument binding table without touching handlers.
func (m *Machine) Load(code []byte, args []uint16) {
	m.code = code
	m.args = args
}

func (m *Machine) SetTracer(t Tracer) { m.tracer = t }

// SetHandler replaces table entry idx. Entries 0 and 1 are fixed.
func (m *Machine) SetHandler(idx uint16, h Handler) error {
	if idx <= bytecode.OpMemory || int(idx) >= NumHandlers {
		return fmt.Errorf("handler index %d: %w", idx, lokierrors.ErrEVerification)
	}
	m.table[idx] = h
	return nil
}

// Setup clears the register file, sets the instruction pointer and binds
// args to the registers of the argument table in order.
func (m *Machine) Setup(args []uint64, ip uint64) error {
	if len(args) != len(m.args) {
		return fmt.Errorf("got %d arguments, table has %d: %w", len(args), len(m.args), lokierrors.ErrRArgumentCount)
	}
	m.regs = [NumRegisters]uint64{}
	m.regs[bytecode.RegIP] = ip
	for i, r := range m.args {
		m.regs[r] = args[i]
	}
	m.steps = 0
	m.halted = false
	m.fault = nil
	return nil
}

// Fail halts the machine with a fatal error.
func (m *Machine) Fail(err error) {
	if m.fault != nil {
		return
	}
	m.fault = &FatalError{Step: m.steps, IP: m.current.ip, Opcode: m.current.opcode, Err: err}
	m.halted = true
	log.Warn(log.VMMonitoring, "vm fault", "err", m.fault)
}

func (m *Machine) Halt() { m.halted = true }

// Step fetches, decodes and executes one record.
func (m *Machine) Step() error {
	if m.fault != nil {
		return m.fault
	}
	if m.halted {
		return lokierrors.ErrRHalted
	}
	ip := m.regs[bytecode.RegIP]
	m.current.ip = ip
	if ip+2 > uint64(len(m.code)) {
		m.Fail(fmt.Errorf("opcode at 0x%x: %w", ip, lokierrors.ErrRTruncatedCode))
		return m.fault
	}
	op := binary.LittleEndian.Uint16(m.code[ip:])
	m.current.opcode = op
	ip += 2
	var ops Operands
	if op != bytecode.OpExit {
		if ip+bytecode.RecordSize-2 > uint64(len(m.code)) {
			m.Fail(fmt.Errorf("operands at 0x%x: %w", ip, lokierrors.ErrRTruncatedCode))
			return m.fault
		}
		ops.R0 = binary.LittleEndian.Uint16(m.code[ip:])
		ops.R1 = binary.LittleEndian.Uint16(m.code[ip+2:])
		ops.R2 = binary.LittleEndian.Uint16(m.code[ip+4:])
		ops.Imm = binary.LittleEndian.Uint64(m.code[ip+6:])
		ops.Key = binary.LittleEndian.Uint64(m.code[ip+14:])
		ip += bytecode.RecordSize - 2
	}
	m.regs[bytecode.RegIP] = ip

	m.table[op](m, ops)
	m.steps++
	if m.tracer != nil {
		m.tracer.OnStep(&Step{
			Index:  m.steps - 1,
			IP:     m.current.ip,
			Opcode: op,
			Ops:    ops,
			Result: m.regs[ops.R0],
		})
	}
	if m.fault != nil {
		return m.fault
	}
	return nil
}

// Run dispatches until the exit record and returns register 0.
func (m *Machine) Run() (uint64, error) {
	for !m.halted {
		if err := m.Step(); err != nil {
			return 0, err
		}
	}
	if m.fault != nil {
		return 0, m.fault
	}
	log.Debug(log.VMMonitoring, "vm halted", "steps", m.steps, "result", m.regs[bytecode.RegOut])
	return m.regs[bytecode.RegOut], nil
}

func (m *Machine) Register(i uint16) uint64 { return m.regs[i] }

func (m *Machine) SetRegister(i uint16, v uint64) { m.regs[i] = v }

// Registers returns a copy of the register file.
func (m *Machine) Registers() []uint64 {
	out := make([]uint64, NumRegisters)
	copy(out, m.regs[:])
	return out
}

func (m *Machine) Result() uint64 { return m.regs[bytecode.RegOut] }

func (m *Machine) IP() uint64 { return m.regs[bytecode.RegIP] }

func (m *Machine) Steps() uint64 { return m.steps }

func (m *Machine) Halted() bool { return m.halted }

// Fault is the fatal error that stopped the machine, if any.
func (m *Machine) Fault() *FatalError { return m.fault }

func (m *Machine) Code() []byte { return m.code }
