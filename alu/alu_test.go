package alu

import (
	"errors"
	"testing"

	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func mustCompile(t *testing.T, text string) Func {
	t.Helper()
	p, err := Parse(text)
	require.NoError(t, err)
	f, err := p.Compile()
	require.NoError(t, err)
	return f
}

func TestParseRejects(t *testing.T) {
	cases := map[string]error{
		"t0 = ADD 64 REG 64 x REG 64 q\n":        lokierrors.ErrEUndefinedRegister,
		"t0 = ROTL 64 REG 64 x REG 64 y\n":       lokierrors.ErrEUnknownOperation,
		"t0 = ADD 64 REG 64 x\n":                 lokierrors.ErrEMalformedLine,
		"t0 = ADD 65 REG 64 x REG 64 y\n":        lokierrors.ErrEMalformedLine,
		"t0 = ADD 64 IMM 64 x REG 64 y\n":        lokierrors.ErrEMalformedLine,
		"t0 = INT 64 12\n":                       lokierrors.ErrEMalformedLine,
		"t0 = REG 64 x\n":                        lokierrors.ErrEEmptyProgram,
		"\nt0 = ADD 64 REG 64 x REG 64 y\n":      lokierrors.ErrEEmptyProgram,
		"t0 ADD 64 REG 64 x REG 64 y\n":          lokierrors.ErrEMalformedLine,
		"t0 = ITE 64 REG 1 c REG 64 x\n":         lokierrors.ErrEMalformedLine,
		"t0 = NOT 64 REG 64 t1\nt1 = REG 64 x\n": lokierrors.ErrEUndefinedRegister,
	}
	for text, want := range cases {
		_, err := Parse(text)
		require.Truef(t, errors.Is(err, want), "%q: got %v want %v", text, err, want)
	}
}

func TestParseStopsAtBlankLine(t *testing.T) {
	p, err := Parse("t0 = ADD 64 REG 64 x REG 64 y\n\nt1 = BOGUS\n")
	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	require.Equal(t, "t0 = ADD 64 REG 64 x REG 64 y\n", p.String())
}

func TestCompileMatchesWideOracle(t *testing.T) {
	add := mustCompile(t, "t0 = ADD 64 REG 64 x REG 64 y\n")
	mul := mustCompile(t, "t0 = MUL 32 REG 32 x REG 32 y\n")
	sub := mustCompile(t, "t0 = SUB 16 REG 16 x REG 16 y\n")
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		x, y := r.Uint64(), r.Uint64()
		sum := new(uint256.Int).Add(uint256.NewInt(x), uint256.NewInt(y))
		require.Equal(t, sum.Uint64(), add(x, y, 0, 0))

		prod := new(uint256.Int).Mul(uint256.NewInt(x&0xffffffff), uint256.NewInt(y&0xffffffff))
		require.Equal(t, prod.Uint64()&0xffffffff, mul(x, y, 0, 0))

		// x - y mod 2^16 == x + (2^16 - y) mod 2^16
		diff := new(uint256.Int).Add(uint256.NewInt(x&0xffff), uint256.NewInt(0x10000-(y&0xffff)))
		require.Equal(t, diff.Uint64()&0xffff, sub(x, y, 0, 0))
	}
}

func TestCompileOperations(t *testing.T) {
	cases := []struct {
		text       string
		x, y, c, k uint64
		want       uint64
	}{
		{"t0 = ULT 1 REG 8 x REG 8 y\n", 0x1ff, 0x02, 0, 0, 0},
		{"t0 = SLT 64 REG 8 x REG 8 y\n", 0x80, 0x01, 0, 0, 1},
		{"t0 = SLE 1 REG 32 x REG 32 y\n", 5, 5, 0, 0, 1},
		{"t0 = ICMPEQ 64 REG 16 x REG 16 y\n", 0x10001, 1, 0, 0, 1},
		{"t0 = SEXT 64 REG 8 x\n", 0xf0, 0, 0, 0, 0xfffffffffffffff0},
		{"t0 = ZEXT 8 REG 64 x\n", 0x1234, 0, 0, 0, 0x34},
		{"t0 = ASHR 32 REG 32 x REG 32 y\n", 0x80000000, 40, 0, 0, 0xffffffff},
		{"t0 = SHL 32 REG 32 x REG 32 y\n", 1, 32, 0, 0, 0},
		{"t0 = LSHR 16 REG 16 x REG 16 y\n", 0x8000, 15, 0, 0, 1},
		{"t0 = SDIV 8 REG 8 x REG 8 y\n", 0xf9, 2, 0, 0, 0xfd},
		{"t0 = SREM 8 REG 8 x REG 8 y\n", 0xf9, 2, 0, 0, 0xff},
		{"t0 = NEG 64 REG 64 c\n", 0, 0, 1, 0, 0xffffffffffffffff},
		{"t0 = INT 64 0x2a\nt1 = XOR 64 REG 64 k REG 64 t0\n", 0, 0, 0, 0x2a, 0},
		{"t0 = REG 8 x\nt1 = ADD 64 REG 64 t0 REG 64 y\n", 0x1ff, 1, 0, 0, 0x100},
	}
	for _, tc := range cases {
		f := mustCompile(t, tc.text)
		require.Equal(t, tc.want, f(tc.x, tc.y, tc.c, tc.k), tc.text)
	}
}

func TestITEEvaluatesSelectedArmOnly(t *testing.T) {
	f := mustCompile(t, "t0 = UDIV 64 REG 64 x REG 64 y\nt1 = ITE 64 REG 64 c REG 64 t0 REG 64 x\n")
	require.NotPanics(t, func() { require.Equal(t, uint64(9), f(9, 0, 0, 0)) })
	require.Equal(t, uint64(3), f(9, 3, 1, 0))
	require.Panics(t, func() { f(9, 0, 1, 0) })
}

func TestFromExpr(t *testing.T) {
	cases := []struct {
		rhs  []il.Elem
		x, y uint64
		c    uint64
		want uint64
	}{
		{[]il.Elem{il.Reg("x", 32), il.Reg("y", 32), il.Tag(il.OpUle, 1)}, 5, 5, 0, 1},
		{[]il.Elem{il.Reg("x", 32), il.Reg("c", 32), il.Tag(il.OpSub, 32)}, 1, 0, 2, 0xffffffff},
		{[]il.Elem{il.Reg("x", 16), il.Reg("y", 16), il.Tag(il.OpNand, 16)}, 0xff, 0x0f, 0, 0xfff0},
		{[]il.Elem{il.Reg("x", 64), il.Tag(il.OpTrunc, 8)}, 0x1234, 0, 0, 0x34},
		{[]il.Elem{il.Reg("x", 8), il.Tag(il.OpSignExtend, 32)}, 0x80, 0, 0, 0xffffff80},
		{[]il.Elem{il.Reg("x", 64), il.Const(64, 16), il.Tag(il.OpGEP, 64)}, 0x800, 0, 0, 0x810},
		{[]il.Elem{il.Reg("c", 1), il.Reg("x", 8), il.Reg("y", 8), il.Tag(il.OpIte, 8)}, 3, 4, 1, 3},
		{[]il.Elem{il.Reg("x", 32), il.Tag(il.OpZeroExtend, 32)}, 0x1ffffffff, 0, 0, 0xffffffff},
	}
	for _, tc := range cases {
		e, err := FromExpr(tc.rhs)
		require.NoError(t, err)
		f, err := e.Program().Compile()
		require.NoError(t, err)
		require.Equal(t, tc.want, f(tc.x, tc.y, tc.c, 0), e.String())
	}
}

func TestFromExprRejects(t *testing.T) {
	_, err := FromExpr([]il.Elem{il.Reg("v7", 32), il.Reg("x", 32), il.Tag(il.OpAdd, 32)})
	require.ErrorIs(t, err, lokierrors.ErrEUndefinedRegister)
	_, err = FromExpr([]il.Elem{il.Reg("x", 64), il.Tag(il.OpLoad, 32)})
	require.ErrorIs(t, err, lokierrors.ErrEUnknownOperation)
}

func TestMetaALUSelectsByKey(t *testing.T) {
	add := Apply("ADD", 64, Input(InputX, 64), Input(InputY, 64))
	sub := Apply("SUB", 64, Input(InputX, 64), Input(InputY, 64))
	xor := Apply("XOR", 64, Input(InputX, 64), Input(InputC, 64))
	keys := []uint64{0x1111_0001, 0x2222_0002, 0x3333_0003}
	p, err := MetaALU([]*Expr{add, sub, xor}, keys)
	require.NoError(t, err)

	again, err := Parse(p.String())
	require.NoError(t, err)
	f, err := again.Compile()
	require.NoError(t, err)
	require.Equal(t, uint64(12), f(7, 5, 1, keys[0]))
	require.Equal(t, uint64(2), f(7, 5, 1, keys[1]))
	require.Equal(t, uint64(6), f(7, 5, 1, keys[2]))
	require.Equal(t, uint64(6), f(7, 5, 1, 99))
}

func TestKeysAreUnique(t *testing.T) {
	ks := NewKeySet(rand.New(rand.NewSource(1)))
	seen := map[uint64]bool{}
	for _, k := range ks.Take(5000) {
		require.False(t, seen[k])
		require.NotZero(t, k&0xffffffff)
		require.Greater(t, k, KeyAlloc)
		seen[k] = true
	}
}

func TestDecoysCompileAndRun(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	ks := NewKeySet(r)
	for i := 0; i < 300; i++ {
		p := Decoy(r).Program()
		f, err := p.Compile()
		require.NoError(t, err, p.String())
		require.NotPanics(t, func() { f(r.Uint64(), r.Uint64(), r.Uint64(), ks.Next()) })
	}
}

func smallOptions(shuffle bool) Options {
	return Options{NumALUs: 5, Reserved: 2, MinSemantics: 2, MaxSemantics: 3, Shuffle: shuffle}
}

func schedule(t *testing.T, opts Options, seed uint64, n int) ([]Slot, []Handler) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	s, err := NewScheduler(opts, r)
	require.NoError(t, err)
	var slots []Slot
	for i := 0; i < n; i++ {
		sem := Apply("ADD", 64, Input(InputX, 64), Int(64, uint64(i)))
		sl, err := s.Assign(sem)
		require.NoError(t, err)
		slots = append(slots, sl)
	}
	hs, err := s.Build(NewKeySet(r))
	require.NoError(t, err)
	return slots, hs
}

func TestSchedulerDeterministicOrder(t *testing.T) {
	slots, hs := schedule(t, smallOptions(false), 1, 4)
	require.Equal(t, []Slot{{2, 0}, {2, 1}, {2, 2}, {3, 0}}, slots)
	require.Len(t, hs, 4)
	require.Len(t, hs[0].Keys, 3)
	for _, h := range hs {
		require.GreaterOrEqual(t, len(h.Keys), 2)
		require.LessOrEqual(t, len(h.Keys), 3)
	}
}

func TestSchedulerSeedReproducible(t *testing.T) {
	a, ha := schedule(t, smallOptions(true), 42, 6)
	b, hb := schedule(t, smallOptions(true), 42, 6)
	require.Equal(t, a, b)
	for i := range ha {
		require.Equal(t, ha[i].Keys, hb[i].Keys)
		require.Equal(t, ha[i].Program.String(), hb[i].Program.String())
	}
	seen := map[Slot]bool{}
	for _, sl := range a {
		require.False(t, seen[sl])
		require.GreaterOrEqual(t, sl.Handler, uint16(2))
		require.LessOrEqual(t, sl.Handler, uint16(5))
		seen[sl] = true
	}
}

func TestSchedulerReusesIdenticalSemantics(t *testing.T) {
	s, err := NewScheduler(smallOptions(true), rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	a, err := s.Assign(Apply("MUL", 64, Input(InputX, 64), Input(InputY, 64)))
	require.NoError(t, err)
	b, err := s.Assign(Apply("MUL", 64, Input(InputX, 64), Input(InputY, 64)))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestSchedulerExhausted(t *testing.T) {
	opts := Options{NumALUs: 2, Reserved: 2, MinSemantics: 1, MaxSemantics: 2}
	s, err := NewScheduler(opts, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = s.Assign(Apply("ADD", 64, Input(InputX, 64), Int(64, uint64(i))))
		require.NoError(t, err)
	}
	_, err = s.Assign(Apply("ADD", 64, Input(InputX, 64), Int(64, 99)))
	require.ErrorIs(t, err, lokierrors.ErrESchedulerExhausted)
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())
	bad := DefaultOptions()
	bad.NumALUs = 512
	require.ErrorIs(t, bad.Validate(), lokierrors.ErrCInvalid)
	bad = DefaultOptions()
	bad.MinSemantics = 6
	require.ErrorIs(t, bad.Validate(), lokierrors.ErrCInvalid)
}
