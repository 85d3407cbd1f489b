package vm

import (
	"errors"
	"testing"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lifter"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/memory"
	"github.com/colorfulnotion/loki/native"
	"github.com/stretchr/testify/require"
)

func program(records ...bytecode.Instruction) []byte {
	var code []byte
	for _, r := range records {
		code = r.Append(code)
	}
	return bytecode.Exit().Append(code)
}

func requireFatal(t *testing.T, err error, want error) {
	t.Helper()
	var fe *FatalError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.ErrorIs(t, err, want)
}

func TestEndToEndAdd(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.InstallHandler(2, "t0 = ADD 64 REG 64 x REG 64 y\n"))
	m.Load(program(bytecode.Instruction{Opcode: 2, R0: 4, R1: 2, R2: 3}), []uint16{2, 3})
	require.NoError(t, m.Setup([]uint64{7, 35}, 0))
	_, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(42), m.Register(4))
	require.Equal(t, uint64(2), m.Steps())
	require.Equal(t, uint64(bytecode.RecordSize+2), m.IP())
}

func TestMemoryLoad32(t *testing.T) {
	ram := memory.NewRAM()
	addr := ram.Alloc(8)
	ram.Store(addr, 64, 0x11223344DEADBEEF)

	m := New(ram)
	m.Load(program(bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 0, R1: 2, R2: 1, Imm: 32, Key: alu.KeyLoad}), []uint16{2})
	require.NoError(t, m.Setup([]uint64{addr}, 0))
	res, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(0x00000000DEADBEEF), res)
}

func TestMemoryStore16(t *testing.T) {
	ram := memory.NewRAM()
	addr := ram.Alloc(4)

	m := New(ram)
	m.Load(program(bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 4, R1: 2, R2: 3, Imm: 16, Key: alu.KeyStore}), []uint16{2, 3})
	require.NoError(t, m.Setup([]uint64{addr, 0x12AB}, 0))
	_, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(0x12AB), ram.Load(addr, 16))
	require.Equal(t, uint64(0), ram.Load(addr+2, 16))
	require.Equal(t, uint64(0x12AB), m.Register(4))
}

func TestMemoryAlloc(t *testing.T) {
	m := New(nil)
	alloc := bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 2, R1: 1, R2: 1, Imm: 16, Key: alu.KeyAlloc}
	second := alloc
	second.R0 = 3
	m.Load(program(alloc, second), nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(memory.AllocBase), m.Register(2))
	require.Equal(t, uint64(memory.AllocBase+16), m.Register(3))
}

func TestMemoryFaults(t *testing.T) {
	m := New(nil)
	m.Load(program(bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 2, R1: 1, R2: 1, Imm: 8, Key: 3}), nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err := m.Run()
	requireFatal(t, err, lokierrors.ErrRMemoryKey)
	require.True(t, m.Halted())
	require.ErrorIs(t, m.Step(), lokierrors.ErrRMemoryKey)

	m.Load(program(bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 2, R1: 1, R2: 1, Imm: 12, Key: alu.KeyLoad}), nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err = m.Run()
	requireFatal(t, err, lokierrors.ErrRMemorySize)
}

func TestUnmappedOpcodeTraps(t *testing.T) {
	m := New(nil)
	m.Load(program(bytecode.Instruction{Opcode: 300, R0: 2, R1: 1, R2: 1}), nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err := m.Run()
	requireFatal(t, err, lokierrors.ErrRUnmappedOpcode)
	require.Equal(t, uint16(300), m.Fault().Opcode)
}

func TestTruncatedCode(t *testing.T) {
	m := New(nil)
	code := bytecode.Instruction{Opcode: bytecode.OpMemory, R0: 2, R1: 1, R2: 1, Imm: 8, Key: alu.KeyAlloc}.Encode()
	m.Load(code, nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err := m.Run()
	requireFatal(t, err, lokierrors.ErrRTruncatedCode)

	m.Load(code[:10], nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err = m.Run()
	requireFatal(t, err, lokierrors.ErrRTruncatedCode)
}

func TestSetupArgumentCount(t *testing.T) {
	m := New(nil)
	m.Load(program(), []uint16{2, 3})
	require.ErrorIs(t, m.Setup([]uint64{1}, 0), lokierrors.ErrRArgumentCount)
}

func TestInstallHandlerRejects(t *testing.T) {
	m := New(nil)
	require.ErrorIs(t, m.InstallHandler(2, "t0 = ADD 64 REG 64 x REG 64 q\n"), lokierrors.ErrEUndefinedRegister)
	require.ErrorIs(t, m.InstallHandler(1, "t0 = ADD 64 REG 64 x REG 64 y\n"), lokierrors.ErrEVerification)
	require.ErrorIs(t, m.InstallHandler(2, "t0 = ADD 64 REG 64 x REG 64 y\n\n"), lokierrors.ErrEVerification)
}

func smallEmitter(t *testing.T, seed uint64) *bytecode.Emitter {
	t.Helper()
	em, err := bytecode.NewEmitter(bytecode.Options{
		ALU:  alu.Options{NumALUs: 40, Reserved: 2, MinSemantics: 3, MaxSemantics: 5, Shuffle: true},
		Seed: seed,
	})
	require.NoError(t, err)
	return em
}

func buildDoc(t *testing.T, src string) (*native.Function, *il.Document) {
	t.Helper()
	fn, err := native.ParseFunction(src, "")
	require.NoError(t, err)
	doc, err := lifter.New(lifter.Options{}).Lift(fn)
	require.NoError(t, err)
	return fn, doc
}

func runImage(t *testing.T, img *bytecode.Image, args []uint64) (*Machine, uint64) {
	t.Helper()
	m := New(memory.NewRAM())
	require.NoError(t, m.Install(img))
	require.NoError(t, m.Setup(args, 0))
	res, err := m.Run()
	require.NoError(t, err)
	return m, res
}

func TestDeterminism(t *testing.T) {
	_, doc := buildDoc(t, `
define i32 @f(i32 %a, i32 %b) {
  %s = mul i32 %a, %b
  %t = xor i32 %s, 305419896
  %u = lshr i32 %t, 3
  ret i32 %u
}`)
	img, err := smallEmitter(t, 21).Emit(doc)
	require.NoError(t, err)
	m1, r1 := runImage(t, img, []uint64{1234, 5678})
	m2, r2 := runImage(t, img, []uint64{1234, 5678})
	require.Equal(t, r1, r2)
	require.Equal(t, m1.Registers(), m2.Registers())
}

var pipelineCases = []struct {
	name string
	src  string
	args [][]uint64
}{
	{"arith", `
define i32 @f(i32 %a, i32 %b) {
  %s = add i32 %a, %b
  %d = sub i32 %s, 7
  %m = mul i32 %d, %a
  %x = xor i32 %m, 255
  %sh = shl i32 %x, 3
  %r = ashr i32 %sh, 1
  ret i32 %r
}`, [][]uint64{{7, 35}, {0xFFFFFFFF, 1}, {0x80000000, 0x7FFFFFFF}}},
	{"compare", `
define i32 @f(i32 %a, i32 %b) {
  %c = icmp sgt i32 %a, %b
  %n = icmp ne i32 %a, %b
  %both = and i1 %c, %n
  %v = select i1 %both, i32 %a, i32 %b
  %w = udiv i32 %v, 3
  ret i32 %w
}`, [][]uint64{{5, 9}, {9, 5}, {0xFFFFFFFF, 2}, {4, 4}}},
	{"memory", `
define i32 @f(i32 %a, i64 %i) {
  %arr = alloca [4 x i32]
  %slot = getelementptr [4 x i32], ptr %arr, i64 0, i64 1
  store i32 %a, ptr %slot
  %dyn = getelementptr i32, ptr %arr, i64 %i
  %v = load i32, ptr %dyn
  ret i32 %v
}`, [][]uint64{{0xDEADBEEF, 1}, {0xDEADBEEF, 2}}},
	{"casts", `
define i64 @f(i8 %a, i32 %b) {
  %z = zext i8 %a to i32
  %s = sext i8 %a to i64
  %t = trunc i32 %b to i8
  %m = add i32 %z, %b
  %e = zext i32 %m to i64
  %w = zext i8 %t to i64
  %x = xor i64 %e, %s
  %r = add i64 %x, %w
  ret i64 %r
}`, [][]uint64{{0x80, 0x12345678}, {0x7F, 0xFFFFFFFF}}},
	{"signed", `
define i16 @f(i16 %a, i16 %b) {
  %q = sdiv i16 %a, %b
  %r = srem i16 %a, %b
  %s = sub i16 %q, %r
  ret i16 %s
}`, [][]uint64{{0xFFF9, 2}, {100, 0xFFFD}}},
	{"bool memory", `
define i32 @f(i32 %a, i32 %b) {
  %buf = alloca [8 x i8]
  %c = icmp ult i32 %a, %b
  store i1 %c, ptr %buf
  %l = load i1, ptr %buf
  %z = zext i1 %l to i32
  ret i32 %z
}`, [][]uint64{{1, 2}, {2, 1}}},
	{"odd width memory", `
define i32 @f(i32 %a, i32 %b) {
  %buf = alloca [8 x i8]
  store i32 %b, ptr %buf
  %t = trunc i32 %a to i24
  store i24 %t, ptr %buf
  %l = load i32, ptr %buf
  %n = load i24, ptr %buf
  %z = zext i24 %n to i32
  %r = xor i32 %l, %z
  ret i32 %r
}`, [][]uint64{{0x11223344, 0xAABBCCDD}, {0xFFFFFFFF, 0}}},
}

func TestPipelineMatchesNative(t *testing.T) {
	for i, tc := range pipelineCases {
		fn, doc := buildDoc(t, tc.src)
		img, err := smallEmitter(t, uint64(100+i)).Emit(doc)
		require.NoError(t, err, tc.name)
		for _, args := range tc.args {
			want, err := native.NewInterpreter(memory.NewRAM()).Run(fn, args)
			require.NoError(t, err)
			_, got := runImage(t, img, args)
			require.Equal(t, want, got, "%s %v", tc.name, args)
		}
	}
}

func TestInstallLeavesTableOnFailure(t *testing.T) {
	_, doc := buildDoc(t, `
define i32 @f(i32 %a, i32 %b) {
  %s = add i32 %a, %b
  ret i32 %s
}`)
	img, err := smallEmitter(t, 5).Emit(doc)
	require.NoError(t, err)

	bad := *img
	bad.Handlers = map[uint16]string{}
	for k, v := range img.Handlers {
		bad.Handlers[k] = v
	}
	first := bad.HandlerIndices()[0]
	bad.Handlers[first] = "t0 = FROB 64 REG 64 x\n"

	m := New(nil)
	require.Error(t, m.Install(&bad))
	m.Load(program(bytecode.Instruction{Opcode: first, R0: 2, R1: 1, R2: 1}), nil)
	require.NoError(t, m.Setup(nil, 0))
	_, err = m.Run()
	requireFatal(t, err, lokierrors.ErrRUnmappedOpcode)
}

type countTracer map[uint16]int

func (c countTracer) OnStep(s *Step) { c[s.Opcode]++ }

func TestTracerSeesEveryStep(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.InstallHandler(2, "t0 = ADD 64 REG 64 x REG 64 y\n"))
	add := bytecode.Instruction{Opcode: 2, R0: 2, R1: 2, R2: 3}
	m.Load(program(add, add, add), []uint16{2, 3})
	ct := countTracer{}
	m.SetTracer(Tracers{ct})
	require.NoError(t, m.Setup([]uint64{1, 2}, 0))
	_, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, 3, ct[2])
	require.Equal(t, 1, ct[bytecode.OpExit])
	require.Equal(t, uint64(7), m.Register(2))
}
