package gossa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/lifter"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/memory"
	"github.com/colorfulnotion/loki/native"
	"github.com/colorfulnotion/loki/vm"
)

const source = `package sample

func mix(a, b int32) int32 {
	s := a + b
	d := s*a - 7
	return (d ^ 255) >> 1
}

func widen(a uint8, b int16) int64 {
	return int64(a) + int64(b)<<3
}

func andNot(a, b uint32) uint32 { return a &^ b }

func less(a, b int64) bool { return a < b }

func shift(x int32, n uint64) int32 { return x >> n }

func quot(a, b int16) int16 { return a/b + a%b }

func array(i, v int32) int32 {
	var buf [4]int32
	buf[i&3] = v
	buf[(i+1)&3] = v * 2
	return buf[i&3] + buf[(i+1)&3]
}

func pair(a, b uint16) uint16 {
	var p struct{ x, y uint16 }
	p.x = a
	p.y = b
	return p.x - p.y
}

func id(a uint64) uint64 { return a }

func branchy(a int) int {
	if a > 0 {
		return 1
	}
	return 2
}

func float(a float64) float64 { return a * 2 }
`

var cases = []struct {
	name string
	args [][]uint64
	want func(a, b uint64) uint64
}{
	{"mix", [][]uint64{{7, 35}, {0xFFFFFFFF, 1}, {0x80000000, 0x7FFFFFFF}}, func(x, y uint64) uint64 {
		a, b := int32(x), int32(y)
		s := a + b
		d := s*a - 7
		return uint64(uint32((d ^ 255) >> 1))
	}},
	{"widen", [][]uint64{{200, 0xFFFF}, {1, 1000}}, func(x, y uint64) uint64 {
		return uint64(int64(uint8(x)) + int64(int16(y))<<3)
	}},
	{"andNot", [][]uint64{{0xF0F0F0F0, 0x0FF00FF0}}, func(x, y uint64) uint64 {
		return uint64(uint32(x) &^ uint32(y))
	}},
	{"less", [][]uint64{{1, 2}, {2, 1}, {^uint64(0), 0}}, func(x, y uint64) uint64 {
		if int64(x) < int64(y) {
			return 1
		}
		return 0
	}},
	{"shift", [][]uint64{{0x80000000, 4}, {0x80000000, 40}, {0x40000000, 1 << 33}}, func(x, y uint64) uint64 {
		return uint64(uint32(int32(x) >> y))
	}},
	{"quot", [][]uint64{{100, 7}, {0xFF9C, 7}}, func(x, y uint64) uint64 {
		a, b := int16(x), int16(y)
		return uint64(uint16(a/b + a%b))
	}},
	{"array", [][]uint64{{1, 5}, {3, 0xFFFFFFFF}}, func(x, y uint64) uint64 {
		var buf [4]int32
		i, v := int32(x), int32(y)
		buf[i&3] = v
		buf[(i+1)&3] = v * 2
		return uint64(uint32(buf[i&3] + buf[(i+1)&3]))
	}},
	{"pair", [][]uint64{{9, 4}, {4, 9}}, func(x, y uint64) uint64 {
		return uint64(uint16(x) - uint16(y))
	}},
}

func translate(t *testing.T, name string) *native.Function {
	t.Helper()
	fn, err := ParseFile("sample.go", source, name)
	require.NoError(t, err, name)
	return fn
}

func TestTranslateMatchesGo(t *testing.T) {
	for _, tc := range cases {
		fn := translate(t, tc.name)
		for _, args := range tc.args {
			got, err := native.NewInterpreter(memory.NewRAM()).Run(fn, args)
			require.NoError(t, err, tc.name)
			require.Equal(t, tc.want(args[0], args[1]), got, "%s %v", tc.name, args)
		}
	}
}

func TestTranslateFormat(t *testing.T) {
	fn := translate(t, "andNot")
	require.Equal(t, `define i32 @andNot(i32 %a, i32 %b) {
  %t0_inv = xor i32 %b, -1
  %t0 = and i32 %a, %t0_inv
  ret i32 %t0
}
`, fn.String())

	fn = translate(t, "id")
	require.Len(t, fn.Body, 2)
	require.Equal(t, native.OpBitCast, fn.Body[0].Op)
	require.Equal(t, "ret", fn.Body[0].Name())

	fn = translate(t, "shift")
	ops := make([]native.Opcode, len(fn.Body))
	for i, ins := range fn.Body {
		ops[i] = ins.Op
	}
	require.Equal(t, []native.Opcode{native.OpICmp, native.OpTrunc, native.OpSelect, native.OpAShr, native.OpRet}, ops)
}

func TestTranslateRejects(t *testing.T) {
	_, err := ParseFile("sample.go", source, "branchy")
	require.ErrorIs(t, err, lokierrors.ErrTUnsupportedOpcode)

	_, err = ParseFile("sample.go", source, "float")
	require.ErrorIs(t, err, lokierrors.ErrTUnknownValueType)

	_, err = ParseFile("sample.go", source, "missing")
	require.ErrorIs(t, err, lokierrors.ErrTParse)

	_, err = ParseFile("broken.go", "package x\nfunc f( {", "f")
	require.ErrorIs(t, err, lokierrors.ErrTParse)
}

func TestGoPipeline(t *testing.T) {
	em, err := bytecode.NewEmitter(bytecode.Options{
		ALU:  alu.Options{NumALUs: 40, Reserved: 2, MinSemantics: 3, MaxSemantics: 5, Shuffle: true},
		Seed: 11,
	})
	require.NoError(t, err)
	for _, tc := range cases {
		fn := translate(t, tc.name)
		doc, err := lifter.New(lifter.Options{}).Lift(fn)
		require.NoError(t, err, tc.name)
		img, err := em.Emit(doc)
		require.NoError(t, err, tc.name)
		for _, args := range tc.args {
			m := vm.New(memory.NewRAM())
			require.NoError(t, m.Install(img))
			require.NoError(t, m.Setup(args, 0))
			got, err := m.Run()
			require.NoError(t, err, tc.name)
			require.Equal(t, tc.want(args[0], args[1]), got, "%s %v", tc.name, args)
		}
	}
}
