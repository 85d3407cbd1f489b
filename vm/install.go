package vm

import (
	"fmt"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
)

// CompileHandler parses, compiles and checks one generated program. The
// printed form of the parsed program must reproduce the input.
func CompileHandler(text string) (Handler, error) {
	p, err := alu.Parse(text)
	if err != nil {
		return nil, err
	}
	if p.String() != text {
		return nil, fmt.Errorf("program does not print back to its source: %w", lokierrors.ErrEVerification)
	}
	f, err := p.Compile()
	if err != nil {
		return nil, err
	}
	return ALUHandler(f), nil
}

// InstallHandler compiles text into table entry idx. On error the table is
// left untouched.
func (m *Machine) InstallHandler(idx uint16, text string) error {
	h, err := CompileHandler(text)
	if err != nil {
		return fmt.Errorf("handler %d: %w", idx, err)
	}
	return m.SetHandler(idx, h)
}

// Install verifies img, compiles all of its handlers and only then swaps
// them into the table together with the code and argument table.
func (m *Machine) Install(img *bytecode.Image) error {
	if err := img.Verify(); err != nil {
		return err
	}
	compiled := make(map[uint16]Handler, len(img.Handlers))
	for idx, text := range img.Handlers {
		h, err := CompileHandler(text)
		if err != nil {
			return fmt.Errorf("handler %d: %w", idx, err)
		}
		compiled[idx] = h
	}
	for idx, h := range compiled {
		if err := m.SetHandler(idx, h); err != nil {
			return err
		}
	}
	m.Load(img.Code, img.Arguments)
	log.Debug(log.VMMonitoring, "installed image", "handlers", len(compiled), "code", len(img.Code), "arguments", len(img.Arguments))
	return nil
}
