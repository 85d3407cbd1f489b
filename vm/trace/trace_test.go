package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/vm"
	"github.com/stretchr/testify/require"
)

func runAdds(t *testing.T, tracer vm.Tracer) *vm.Machine {
	t.Helper()
	m := vm.New(nil)
	require.NoError(t, m.InstallHandler(2, "t0 = ADD 64 REG 64 x REG 64 y\n"))
	require.NoError(t, m.InstallHandler(17, "t0 = SUB 64 REG 64 x REG 64 y\n"))
	var code []byte
	code = bytecode.Instruction{Opcode: 2, R0: 4, R1: 2, R2: 3}.Append(code)
	code = bytecode.Instruction{Opcode: 17, R0: 4, R1: 4, R2: 3}.Append(code)
	code = bytecode.Instruction{Opcode: 2, R0: 0, R1: 4, R2: 4}.Append(code)
	code = bytecode.Exit().Append(code)
	m.Load(code, []uint16{2, 3})
	m.SetTracer(tracer)
	require.NoError(t, m.Setup([]uint64{7, 35}, 0))
	res, err := m.Run()
	require.NoError(t, err)
	require.Equal(t, uint64(14), res)
	return m
}

func TestCallCounterTable(t *testing.T) {
	c := NewCallCounter("image-1a2b")
	runAdds(t, c)
	require.Equal(t, uint64(2), c.Calls(2))
	require.Equal(t, uint64(1), c.Calls(17))
	require.Equal(t, []uint16{2, 17, 2}, c.Trace())

	var buf bytes.Buffer
	require.NoError(t, c.WriteTable(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Len(t, lines[0], 23+1+25+1+18+1+12)
	require.True(t, strings.HasSuffix(lines[0], "Calls"))
	require.Equal(t, "vm_alu17_rrr_generated", strings.TrimSpace(lines[1][:23]))
	require.Equal(t, "image-1a2b", strings.TrimSpace(lines[1][24:49]))
	require.Equal(t, "18", strings.TrimSpace(lines[1][50:68]))
	require.Equal(t, "1", strings.TrimSpace(lines[1][69:]))

	buf.Reset()
	require.NoError(t, c.WriteTrace(&buf))
	require.Equal(t, "[2, 17, 2]\n", buf.String())
}

func TestEmptyTrace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCallCounter("x").WriteTrace(&buf))
	require.Equal(t, "[]\n", buf.String())
}

func TestJSONLWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLTraceWriter(&buf)
	runAdds(t, w)
	require.NoError(t, w.Close())

	var steps []TraceStep
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var s TraceStep
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		steps = append(steps, s)
	}
	require.Len(t, steps, 4)
	require.Equal(t, uint64(42), steps[0].Result)
	require.Equal(t, uint16(17), steps[1].Opcode)
	require.Equal(t, uint64(bytecode.RecordSize), steps[1].IP)
	require.Equal(t, bytecode.OpExit, steps[3].Opcode)

	require.ErrorIs(t, w.WriteStep(&TraceStep{}), ErrTraceWriterClosed)
}

func TestSinksFromEnv(t *testing.T) {
	dir := t.TempDir()
	stats := filepath.Join(dir, "stats.txt")
	tr := filepath.Join(dir, "trace.json")
	t.Setenv(EnvStatsFile, stats)
	t.Setenv(EnvTraceFile, tr)

	s := FromEnv("img")
	require.NotNil(t, s)
	runAdds(t, vm.Tracers{s})
	require.NoError(t, s.Close())

	data, err := os.ReadFile(tr)
	require.NoError(t, err)
	require.Equal(t, "[2, 17, 2]\n", string(data))
	data, err = os.ReadFile(stats)
	require.NoError(t, err)
	require.Contains(t, string(data), "vm_alu2_rrr_generated")
}

func TestSinksUnset(t *testing.T) {
	t.Setenv(EnvStatsFile, "")
	t.Setenv(EnvTraceFile, "")
	require.Nil(t, FromEnv("img"))
}

func TestRenderHistogram(t *testing.T) {
	c := NewCallCounter("img")
	runAdds(t, c)
	var buf bytes.Buffer
	require.NoError(t, RenderHistogram(&buf, c, "handler calls"))
	require.Contains(t, buf.String(), "vm_alu17_rrr_generated")
	require.Contains(t, buf.String(), "echarts")
}
