// Package console is the scripting surface of the interactive debugger. A
// goja runtime exposes the machine as a handful of global functions.
package console

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dop251/goja"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/memory"
	"github.com/colorfulnotion/loki/vm"
)

type Console struct {
	rt   *goja.Runtime
	m    *vm.Machine
	img  *bytecode.Image
	out  io.Writer
	last *vm.Step
}

// New installs img on a fresh machine and registers setup, step, run, reg,
// ip, disasm and print.
func New(img *bytecode.Image, out io.Writer) (*Console, error) {
	m := vm.New(memory.NewRAM())
	if err := m.Install(img); err != nil {
		return nil, err
	}
	c := &Console{rt: goja.New(), m: m, img: img, out: out}
	m.SetTracer(c)

	for name, fn := range map[string]any{
		"setup":  c.setup,
		"step":   c.step,
		"run":    c.run,
		"reg":    c.reg,
		"ip":     func() string { return fmt.Sprintf("%#x", c.m.IP()) },
		"disasm": c.disasm,
		"print": func(args ...goja.Value) {
			for _, arg := range args {
				fmt.Fprintln(c.out, arg.Export())
			}
		},
	} {
		if err := c.rt.Set(name, fn); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Console) Machine() *vm.Machine { return c.m }

func (c *Console) OnStep(s *vm.Step) { c.last = s }

// Eval runs one line of script and renders its value.
func (c *Console) Eval(line string) (string, error) {
	v, err := c.rt.RunString(line)
	if err != nil {
		return "", err
	}
	if v == nil || goja.IsUndefined(v) {
		return "", nil
	}
	return v.String(), nil
}

// word reads a script value as a 64-bit word. Strings go through
// strconv so values above 2^53 survive.
func word(v goja.Value) (uint64, error) {
	if s, ok := v.Export().(string); ok {
		return strconv.ParseUint(s, 0, 64)
	}
	return uint64(v.ToInteger()), nil
}

func (c *Console) setup(args ...goja.Value) error {
	words := make([]uint64, len(args))
	for i, a := range args {
		w, err := word(a)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		words[i] = w
	}
	c.last = nil
	log.Debug(log.CLIMonitoring, "console setup", "args", words)
	return c.m.Setup(words, 0)
}

func (c *Console) step(n ...int) (string, error) {
	count := 1
	if len(n) > 0 {
		count = n[0]
	}
	for i := 0; i < count && !c.m.Halted(); i++ {
		if err := c.m.Step(); err != nil {
			return "", err
		}
	}
	if c.last == nil {
		return "", nil
	}
	return c.describe(c.last), nil
}

func (c *Console) describe(s *vm.Step) string {
	desc := fmt.Sprintf("opcode %d", s.Opcode)
	if s.IP+bytecode.RecordSize <= uint64(len(c.img.Code)) {
		if ins, err := bytecode.DecodeInstruction(c.img.Code[s.IP:]); err == nil {
			desc = ins.String()
		}
	}
	return fmt.Sprintf("#%d %#06x %s -> %#x", s.Index, s.IP, desc, s.Result)
}

func (c *Console) run() (string, error) {
	res, err := c.m.Run()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%#x", res), nil
}

func (c *Console) reg(v goja.Value) (string, error) {
	if name, ok := v.Export().(string); ok {
		for i, n := range c.img.ArgumentNames {
			if n == name {
				return fmt.Sprintf("%#x", c.m.Register(c.img.Arguments[i])), nil
			}
		}
	}
	i, err := word(v)
	if err != nil || i >= vm.NumRegisters {
		return "", fmt.Errorf("no register %v", v)
	}
	return fmt.Sprintf("%#x", c.m.Register(uint16(i))), nil
}

func (c *Console) disasm() (string, error) {
	return bytecode.Disassemble(c.img.Code)
}
