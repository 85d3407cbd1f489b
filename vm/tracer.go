package vm

// Step describes one executed record.
type Step struct {
	Index  uint64
	IP     uint64
	Opcode uint16
	Ops    Operands
	Result uint64 // value of r0 after the handler ran
}

// Tracer observes every executed record.
type Tracer interface {
	OnStep(s *Step)
}

// Tracers fans a step out to several tracers.
type Tracers []Tracer

func (ts Tracers) OnStep(s *Step) {
	for _, t := range ts {
		t.OnStep(s)
	}
}
