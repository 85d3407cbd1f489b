package trace

import (
	"errors"
	"io"
	"os"
)

const (
	EnvStatsFile = "FN_STATS_FILE"
	EnvTraceFile = "FN_TRACE_FILE"
)

// Sinks writes the call-count table and the handler trace to the files
// named by FN_STATS_FILE and FN_TRACE_FILE when the run ends.
type Sinks struct {
	*CallCounter
	statsPath string
	tracePath string
}

// FromEnv returns nil when neither variable is set.
func FromEnv(image string) *Sinks {
	stats, tr := os.Getenv(EnvStatsFile), os.Getenv(EnvTraceFile)
	if stats == "" && tr == "" {
		return nil
	}
	return NewSinks(image, stats, tr)
}

func NewSinks(image, statsPath, tracePath string) *Sinks {
	return &Sinks{CallCounter: NewCallCounter(image), statsPath: statsPath, tracePath: tracePath}
}

// Close writes both files. An empty path skips that file.
func (s *Sinks) Close() error {
	var errs []error
	if s.statsPath != "" {
		errs = append(errs, writeFile(s.statsPath, s.WriteTable))
	}
	if s.tracePath != "" {
		errs = append(errs, writeFile(s.tracePath, s.WriteTrace))
	}
	return errors.Join(errs...)
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
