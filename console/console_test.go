package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/lifter"
	"github.com/colorfulnotion/loki/native"
)

func newConsole(t *testing.T, out *bytes.Buffer) *Console {
	t.Helper()
	fn, err := native.ParseFunction(`
define i32 @f(i32 %a, i32 %b) {
  %s = add i32 %a, %b
  ret i32 %s
}`, "")
	require.NoError(t, err)
	doc, err := lifter.New(lifter.Options{}).Lift(fn)
	require.NoError(t, err)
	em, err := bytecode.NewEmitter(bytecode.Options{
		ALU:  alu.Options{NumALUs: 20, Reserved: 2, MinSemantics: 3, MaxSemantics: 5, Shuffle: true},
		Seed: 3,
	})
	require.NoError(t, err)
	img, err := em.Emit(doc)
	require.NoError(t, err)
	c, err := New(img, out)
	require.NoError(t, err)
	return c
}

func eval(t *testing.T, c *Console, line string) string {
	t.Helper()
	v, err := c.Eval(line)
	require.NoError(t, err, line)
	return v
}

func TestConsoleRun(t *testing.T) {
	c := newConsole(t, &bytes.Buffer{})
	eval(t, c, "setup(7, 35)")
	require.Equal(t, "0x2a", eval(t, c, "run()"))
	require.Equal(t, "0x7", eval(t, c, `reg("a")`))
	require.Equal(t, "0x2a", eval(t, c, "reg(0)"))

	eval(t, c, `setup("0xffffffffffffffff", 1)`)
	require.Equal(t, "0x0", eval(t, c, "run()"))
}

func TestConsoleStep(t *testing.T) {
	c := newConsole(t, &bytes.Buffer{})
	eval(t, c, "setup(1, 2)")
	first := eval(t, c, "step()")
	require.True(t, strings.HasPrefix(first, "#0 0x0000 alu"), first)
	require.Equal(t, uint64(1), c.Machine().Steps())

	last := eval(t, c, "step(10)")
	require.Contains(t, last, "exit")
	require.True(t, c.Machine().Halted())
	require.Equal(t, "0x3", eval(t, c, "reg(0)"))
}

func TestConsoleErrors(t *testing.T) {
	c := newConsole(t, &bytes.Buffer{})
	_, err := c.Eval("setup(1)")
	require.Error(t, err)
	_, err = c.Eval("reg(70000)")
	require.Error(t, err)
	_, err = c.Eval("this is not script")
	require.Error(t, err)
}

func TestConsolePrintAndDisasm(t *testing.T) {
	out := &bytes.Buffer{}
	c := newConsole(t, out)
	eval(t, c, `print("hello", 42)`)
	require.Equal(t, "hello\n42\n", out.String())
	require.Contains(t, eval(t, c, "disasm()"), "exit")
}
