package native

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/loki/lokierrors"
	"github.com/colorfulnotion/loki/memory"
)

const sample = `
; straight-line sample
define i32 @target_function(i32 %a, i32 %b) {
  %sum = add nsw i32 %a, %b
  %v7 = icmp ne i32 %sum, 42
  %0 = zext i1 %v7 to i32
  %arr = alloca [4 x i32], align 16
  %slot = getelementptr inbounds [4 x i32], ptr %arr, i64 0, i64 2
  store i32 %sum, ptr %slot, align 4
  %back = load i32, ptr %slot, align 4
  %r = select i1 %v7, i32 %back, i32 %0
  ret i32 %r
}
`

func TestParseAndFormat(t *testing.T) {
	fn, err := ParseFunction(sample, "target_function")
	require.NoError(t, err)
	require.Len(t, fn.Params, 2)
	require.Len(t, fn.Body, 9)

	zext := fn.Body[2]
	require.Equal(t, "", zext.Name())
	require.Equal(t, "%0 = zext i1 %v7 to i32", zext.Format())
	require.Equal(t, "%slot = getelementptr [4 x i32], ptr %arr, i64 0, i64 2", fn.Body[4].Format())
	require.Equal(t, "store i32 %sum, ptr %slot", fn.Body[5].Format())

	again, err := ParseFunction(fn.String(), "")
	require.NoError(t, err)
	require.Equal(t, fn.String(), again.String())
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"define i32 @f(i32 %a) {\n %x = add i32 %a, %nope\n}",
		"define i32 @f(i32 %a) {\n %x = frob i32 %a\n}",
		"define i32 @f(i32 %a) {\n %x = add i32 %a, 1\n",
		"define i32 @f(i32 %a) {\n %x = zext i32 %a to i8\n}",
		"define i32 @f(i32 %a) {\n %x = add i32 %a, 1\n %x = add i32 %a, 2\n}",
	}
	for _, src := range bad {
		_, err := Parse(src)
		require.ErrorIs(t, err, lokierrors.ErrTParse, src)
	}
}

func TestLayout(t *testing.T) {
	dl := DefaultLayout
	s := Struct(I8, I32, I16)
	require.Equal(t, uint64(0), dl.FieldOffset(s, 0))
	require.Equal(t, uint64(4), dl.FieldOffset(s, 1))
	require.Equal(t, uint64(8), dl.FieldOffset(s, 2))
	require.Equal(t, uint64(12), dl.AllocSize(s))
	require.Equal(t, uint64(56), s.TotalBits())
	require.Equal(t, uint64(4), dl.AllocSize(Int(24)))
	require.Equal(t, uint64(48), dl.AllocSize(Array(s, 4)))
}

func TestConstantOffset(t *testing.T) {
	src := `
define ptr @f(ptr %p, i64 %i) {
  %a = getelementptr [4 x { i8, i32 }], ptr %p, i64 1, i64 2, i32 1
  %b = getelementptr i32, ptr %p, i64 %i
  %c = getelementptr i16, ptr %p, i8 -1
  ret ptr %a
}
`
	fn, err := ParseFunction(src, "f")
	require.NoError(t, err)
	off, ok := DefaultLayout.ConstantOffset(fn.Body[0])
	require.True(t, ok)
	require.Equal(t, uint64(32+16+4), off)

	_, ok = DefaultLayout.ConstantOffset(fn.Body[1])
	require.False(t, ok)

	off, ok = DefaultLayout.ConstantOffset(fn.Body[2])
	require.True(t, ok)
	require.Equal(t, ^uint64(1), off)
	require.True(t, DefaultLayout.ResultElem(fn.Body[0]).Equal(I32))
}

func TestInterpreter(t *testing.T) {
	fn, err := ParseFunction(sample, "")
	require.NoError(t, err)

	got, err := NewInterpreter(memory.NewRAM()).Run(fn, []uint64{7, 35})
	require.NoError(t, err)
	require.Equal(t, uint64(0), got)

	got, err = NewInterpreter(memory.NewRAM()).Run(fn, []uint64{7, 36})
	require.NoError(t, err)
	require.Equal(t, uint64(43), got)

	_, err = NewInterpreter(memory.NewRAM()).Run(fn, []uint64{1})
	require.ErrorIs(t, err, lokierrors.ErrRArgumentCount)
}

func TestInterpreterSignedOps(t *testing.T) {
	src := `
define i8 @f(i8 %a, i8 %b) {
  %d = sdiv i8 %a, %b
  %s = ashr i8 %a, 1
  %lt = icmp slt i8 %a, %b
  %w = sext i8 %a to i16
  %t = trunc i16 %w to i8
  %x = xor i8 %d, %s
  ret i8 %x
}
`
	fn, err := ParseFunction(src, "f")
	require.NoError(t, err)
	it := NewInterpreter(memory.NewRAM())
	got, err := it.Run(fn, []uint64{0xF9, 2})
	require.NoError(t, err)
	require.Equal(t, uint64(0xFD^0xFC), got)

	lt, ok := it.Value(fn.Body[2])
	require.True(t, ok)
	require.Equal(t, uint64(1), lt)
	w, _ := it.Value(fn.Body[3])
	require.Equal(t, uint64(0xFFF9), w)
}
