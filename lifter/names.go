package lifter

import (
	"fmt"

	"github.com/colorfulnotion/loki/native"
)

// NameContext hands out register names for one translation run. Named host
// values keep their own name; unnamed ones receive __id_N on first sight and
// keep it for the rest of the run.
type NameContext struct {
	nextID  int
	nextMem int
	names   map[native.Value]string
}

func NewNameContext() *NameContext {
	return &NameContext{names: make(map[native.Value]string)}
}

func (nc *NameContext) Fresh() string {
	name := fmt.Sprintf("__id_%d", nc.nextID)
	nc.nextID++
	return name
}

// FreshMemory names the pseudo-register defined by a store.
func (nc *NameContext) FreshMemory() string {
	name := fmt.Sprintf("__mem_%d", nc.nextMem)
	nc.nextMem++
	return name
}

func (nc *NameContext) NameOf(v native.Value) string {
	if n := v.Name(); n != "" {
		return n
	}
	if n, ok := nc.names[v]; ok {
		return n
	}
	n := nc.Fresh()
	nc.names[v] = n
	return n
}

func (nc *NameContext) Reset() {
	nc.nextID, nc.nextMem = 0, 0
	nc.names = make(map[native.Value]string)
}
