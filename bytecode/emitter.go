package bytecode

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/colorfulnotion/loki/alu"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/lokierrors"
	"golang.org/x/exp/rand"
)

// Options configure the emitter. A zero Seed draws a fresh one per Emit.
type Options struct {
	ALU  alu.Options
	Seed uint64
}

func DefaultOptions() Options {
	return Options{ALU: alu.DefaultOptions()}
}

// Pinned reports whether every Emit with these options yields the same image.
func (o Options) Pinned() bool { return o.Seed != 0 }

// FreshSeed reads a nonzero seed from the system entropy source.
func FreshSeed() (uint64, error) {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("seed: %w", err)
		}
		if s := binary.LittleEndian.Uint64(b[:]); s != 0 {
			return s, nil
		}
	}
}

// Emitter turns a linear IR document into an image. One Emitter may be
// used for many documents; each Emit starts from the configured seed, or
// from a fresh one when none is pinned. The seed used lands in Image.Seed.
type Emitter struct {
	opts Options
}

func NewEmitter(opts Options) (*Emitter, error) {
	if err := opts.ALU.Validate(); err != nil {
		return nil, err
	}
	return &Emitter{opts: opts}, nil
}

// Emit encodes doc. Any failure is returned before a single byte of code is
// produced.
func (e *Emitter) Emit(doc *il.Document) (*Image, error) {
	if err := doc.Validate(); err != nil {
		if errors.Is(err, lokierrors.ErrTUndefinedRegister) {
			return nil, fmt.Errorf("%w: %w", lokierrors.ErrEUndefinedRegister, err)
		}
		return nil, err
	}
	last, ok := doc.Output()
	if !ok {
		return nil, fmt.Errorf("document has no instructions: %w", lokierrors.ErrEEmptyProgram)
	}
	withOut := &il.Document{Arguments: doc.Arguments}
	withOut.Append(doc.Instructions...)
	withOut.Append(il.Assignment{
		LHS:  il.Reg(OutputName, last.Size),
		RHS:  []il.Elem{last, il.Tag(il.OpZeroExtend, last.Size)},
		Size: last.Size,
	})
	legal, err := Legalize(withOut)
	if err != nil {
		return nil, err
	}

	blocks := make([]*Block, 0, len(legal.Instructions))
	for _, a := range legal.Instructions {
		b, err := NewBlock(a)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}

	ra := NewRegisterAllocator()
	for _, b := range blocks {
		if _, err := ra.Index(b.Output.Name); err != nil {
			return nil, err
		}
		for _, in := range b.Inputs {
			if _, err := ra.Index(in.Name); err != nil {
				return nil, err
			}
		}
	}
	args := make([]uint16, len(doc.Arguments))
	for i, a := range doc.Arguments {
		idx, err := ra.Index(a)
		if err != nil {
			return nil, err
		}
		args[i] = idx
	}

	seed := e.opts.Seed
	if seed == 0 {
		if seed, err = FreshSeed(); err != nil {
			return nil, err
		}
		log.Debug(log.EncoderMonitoring, "drew seed", "seed", seed)
	}
	r := rand.New(rand.NewSource(seed))
	sched, err := alu.NewScheduler(e.opts.ALU, r)
	if err != nil {
		return nil, err
	}
	slots := make([]alu.Slot, len(blocks))
	for i, b := range blocks {
		if b.Memory {
			continue
		}
		sem, err := b.Semantics()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Source, err)
		}
		if slots[i], err = sched.Assign(sem); err != nil {
			return nil, err
		}
	}
	handlers, err := sched.Build(alu.NewKeySet(r))
	if err != nil {
		return nil, err
	}
	keys := make(map[uint16][]uint64, len(handlers))
	programs := make(map[uint16]string, len(handlers))
	for _, h := range handlers {
		keys[h.Index] = h.Keys
		programs[h.Index] = h.Program.String()
	}

	code := make([]byte, 0, (len(blocks)+1)*RecordSize)
	for i, b := range blocks {
		ins := Instruction{R1: RegIP, R2: RegIP, Imm: b.Imm}
		ins.R0, _ = ra.Lookup(b.Output.Name)
		if len(b.Inputs) > 0 {
			ins.R1, _ = ra.Lookup(b.Inputs[0].Name)
		}
		if len(b.Inputs) > 1 {
			ins.R2, _ = ra.Lookup(b.Inputs[1].Name)
		}
		if b.Memory {
			ins.Opcode, ins.Key = OpMemory, b.Key
		} else {
			ins.Opcode = slots[i].Handler
			ins.Key = keys[slots[i].Handler][slots[i].Key]
		}
		code = ins.Append(code)
		log.Trace(log.EncoderMonitoring, "record", "assignment", b.Source.String(), "ins", ins.String())
	}
	code = Exit().Append(code)

	img := &Image{
		Code:          code,
		Arguments:     args,
		ArgumentNames: append([]string(nil), doc.Arguments...),
		ArgumentCount: len(doc.Arguments),
		Handlers:      programs,
		Keys:          keys,
		Seed:          seed,
	}
	if err := img.Verify(); err != nil {
		return nil, err
	}
	log.Debug(log.EncoderMonitoring, "emitted image", "records", len(blocks)+1, "registers", ra.Len()+2, "handlers", len(handlers))
	return img, nil
}
