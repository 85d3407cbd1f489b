package trace

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/vm"
)

// Handler routine names as they appear in the call-count table.
func ProcedureName(opcode uint16) string {
	if opcode == bytecode.OpMemory {
		return "vm_alu1_rrr"
	}
	return fmt.Sprintf("vm_alu%d_rrr_generated", opcode)
}

type handlerCount struct {
	opcode  uint16
	address uint64
	calls   uint64
}

// CallCounter counts handler invocations and records the sequence of
// dispatched handler indices. The exit handler is not counted.
type CallCounter struct {
	mu     sync.Mutex
	image  string
	counts map[uint16]*handlerCount
	order  []uint16
	trace  []uint16
}

func NewCallCounter(image string) *CallCounter {
	return &CallCounter{image: image, counts: make(map[uint16]*handlerCount)}
}

func (c *CallCounter) OnStep(s *vm.Step) {
	if s.Opcode == bytecode.OpExit {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	hc, ok := c.counts[s.Opcode]
	if !ok {
		hc = &handlerCount{opcode: s.Opcode, address: s.IP}
		c.counts[s.Opcode] = hc
		c.order = append(c.order, s.Opcode)
	}
	hc.calls++
	c.trace = append(c.trace, s.Opcode)
}

// Calls returns the count for one handler.
func (c *CallCounter) Calls(opcode uint16) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.counts[opcode]; ok {
		return hc.calls
	}
	return 0
}

// Counts returns handler index to call count.
func (c *CallCounter) Counts() map[uint16]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint16]uint64, len(c.counts))
	for op, hc := range c.counts {
		out[op] = hc.calls
	}
	return out
}

// Trace returns the dispatched handler indices in order.
func (c *CallCounter) Trace() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint16(nil), c.trace...)
}

// WriteTable prints one right-aligned row per handler, most recently
// seen first, under a "Procedure Image Address Calls" header.
func (c *CallCounter) WriteTable(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(w, "%23s %25s %18s %12s\n", "Procedure", "Image", "Address", "Calls"); err != nil {
		return err
	}
	for i := len(c.order) - 1; i >= 0; i-- {
		hc := c.counts[c.order[i]]
		if _, err := fmt.Fprintf(w, "%23s %25s %18x %12d\n", ProcedureName(hc.opcode), c.image, hc.address, hc.calls); err != nil {
			return err
		}
	}
	return nil
}

// WriteTrace prints the handler sequence as a JSON array, e.g. "[2, 17, 1]".
func (c *CallCounter) WriteTrace(w io.Writer) error {
	tr := c.Trace()
	parts := make([]string, len(tr))
	for i, op := range tr {
		parts[i] = strconv.Itoa(int(op))
	}
	_, err := fmt.Fprintf(w, "[%s]\n", strings.Join(parts, ", "))
	return err
}

// Sorted returns handler indices ordered by index.
func (c *CallCounter) Sorted() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]uint16(nil), c.order...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
