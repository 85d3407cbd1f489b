package lokierrors

import (
	"errors"
	"strings"
)

// Translation (T) Errors
var (
	ErrTUnsupportedOpcode = errors.New("T1|UnsupportedOpcode: Instruction opcode has no IL translation.")
	ErrTGEPNoOffset       = errors.New("T2|GEPNoOffset: Address computation has neither a constant nor a dynamic offset.")
	ErrTUnknownValueType  = errors.New("T3|UnknownValueType: Operand type is neither integer nor pointer.")
	ErrTBadWidth          = errors.New("T4|BadWidth: Bit width must be within 1..64.")
	ErrTEmptyName         = errors.New("T5|EmptyName: Register name must not be empty.")
	ErrTMalformed         = errors.New("T6|Malformed: Assignment right-hand side is not a well-formed postfix expression.")
	ErrTUndefinedRegister = errors.New("T7|UndefinedRegister: Register used before definition.")
	ErrTParse             = errors.New("T8|Parse: Native function text cannot be parsed.")
)

// Encoding (E) Errors
var (
	ErrEUndefinedRegister  = errors.New("E1|UndefinedRegister: Micro-program references an undefined register.")
	ErrEUnknownOperation   = errors.New("E2|UnknownOperation: Micro-program uses an operation keyword outside the closed set.")
	ErrEMalformedLine      = errors.New("E3|MalformedLine: Micro-program line does not match the statement grammar.")
	ErrEEmptyProgram       = errors.New("E4|EmptyProgram: Micro-program defines no operation.")
	ErrETooManyInputs      = errors.New("E5|TooManyInputs: Semantic block needs more than two input registers or one constant.")
	ErrESchedulerExhausted = errors.New("E6|SchedulerExhausted: No free handler slot left for a semantic block.")
	ErrERegisterOverflow   = errors.New("E7|RegisterOverflow: Program needs more than 65536 registers.")
	ErrEVerification       = errors.New("E8|Verification: Generated image failed structural verification.")
	ErrEMissingArgument    = errors.New("E9|MissingArgument: Argument name has no register binding.")
)

// Runtime (R) Errors
var (
	ErrRMemoryKey      = errors.New("R1|MemoryKey: Memory handler called with an operation key outside {0,1,2}.")
	ErrRMemorySize     = errors.New("R2|MemorySize: Memory handler called with an access size outside {8,16,32,64}.")
	ErrRUnmappedOpcode = errors.New("R3|UnmappedOpcode: Dispatched opcode has no installed handler.")
	ErrRTruncatedCode  = errors.New("R4|TruncatedCode: Instruction pointer ran past the end of the bytecode.")
	ErrRArgumentCount  = errors.New("R5|ArgumentCount: Argument count does not match the binding table.")
	ErrRHalted         = errors.New("R6|Halted: Machine already stopped.")
)

// Configuration (C) Errors
var (
	ErrCInvalid = errors.New("C1|Invalid: Configuration value out of range.")
)

// Code returns the short code ("E1", "R2", ...) carried by a sentinel, or ""
// when err does not wrap one of them.
func Code(err error) string {
	for _, s := range all {
		if errors.Is(err, s) {
			return strings.SplitN(s.Error(), "|", 2)[0]
		}
	}
	return ""
}

var all = []error{
	ErrTUnsupportedOpcode, ErrTGEPNoOffset, ErrTUnknownValueType, ErrTBadWidth, ErrTEmptyName, ErrTMalformed, ErrTUndefinedRegister, ErrTParse,
	ErrEUndefinedRegister, ErrEUnknownOperation, ErrEMalformedLine, ErrEEmptyProgram, ErrETooManyInputs, ErrESchedulerExhausted, ErrERegisterOverflow, ErrEVerification, ErrEMissingArgument,
	ErrRMemoryKey, ErrRMemorySize, ErrRUnmappedOpcode, ErrRTruncatedCode, ErrRArgumentCount, ErrRHalted,
	ErrCInvalid,
}
