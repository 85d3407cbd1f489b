package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/colorfulnotion/loki/vm"
)

// TraceStep is one executed record as written to a JSON Lines trace.
type TraceStep struct {
	Index  uint64 `json:"index"`
	IP     uint64 `json:"ip"`
	Opcode uint16 `json:"opcode"`
	R0     uint16 `json:"r0"`
	R1     uint16 `json:"r1"`
	R2     uint16 `json:"r2"`
	Imm    uint64 `json:"imm"`
	Key    uint64 `json:"key"`
	Result uint64 `json:"result"`
}

func NewTraceStep(s *vm.Step) *TraceStep {
	return &TraceStep{
		Index:  s.Index,
		IP:     s.IP,
		Opcode: s.Opcode,
		R0:     s.Ops.R0,
		R1:     s.Ops.R1,
		R2:     s.Ops.R2,
		Imm:    s.Ops.Imm,
		Key:    s.Ops.Key,
		Result: s.Result,
	}
}

// JSONLTraceWriter writes steps as JSON Lines. It is safe for concurrent
// use, so one writer may serve several machines.
type JSONLTraceWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	buf    *bufio.Writer
	closer io.Closer // set only when the writer owns the file
	closed bool
	err    error
}

var ErrTraceWriterClosed = errors.New("jsonl trace writer is closed")

// NewJSONLTraceWriter wraps w. Close flushes but does not close w.
func NewJSONLTraceWriter(w io.Writer) *JSONLTraceWriter {
	buf := bufio.NewWriterSize(w, 64*1024)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &JSONLTraceWriter{enc: enc, buf: buf}
}

// NewJSONLTraceWriterFile creates path and owns it.
func NewJSONLTraceWriterFile(path string) (*JSONLTraceWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := NewJSONLTraceWriter(f)
	w.closer = f
	return w, nil
}

func (w *JSONLTraceWriter) WriteStep(step *TraceStep) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrTraceWriterClosed
	}
	return w.enc.Encode(step)
}

// OnStep implements vm.Tracer. The first write error is kept and returned
// by Err and Close.
func (w *JSONLTraceWriter) OnStep(s *vm.Step) {
	if err := w.WriteStep(NewTraceStep(s)); err != nil {
		w.mu.Lock()
		if w.err == nil {
			w.err = err
		}
		w.mu.Unlock()
	}
}

func (w *JSONLTraceWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *JSONLTraceWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrTraceWriterClosed
	}
	return w.buf.Flush()
}

func (w *JSONLTraceWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.err
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		if w.closer != nil {
			_ = w.closer.Close()
		}
		return err
	}
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return err
		}
	}
	return w.err
}
