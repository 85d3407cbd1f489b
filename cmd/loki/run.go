package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/colorfulnotion/loki/bytecode"
	log "github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/memory"
	"github.com/colorfulnotion/loki/telemetry"
	"github.com/colorfulnotion/loki/vm"
	"github.com/colorfulnotion/loki/vm/trace"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func (a *app) runCmd() *cobra.Command {
	var (
		traceOn bool
		jsonl   string
	)
	cmd := &cobra.Command{
		Use:   "run <image.cbor> [args...]",
		Short: "Execute an image and print register 0",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			img, words := loadRun(args)
			var tracers vm.Tracers
			var sinks *trace.Sinks
			if traceOn {
				if sinks = trace.FromEnv(filepath.Base(args[0])); sinks == nil {
					log.Warn(log.CLIMonitoring, "--trace without FN_STATS_FILE or FN_TRACE_FILE")
				} else {
					tracers = append(tracers, sinks)
				}
			}
			var jw *trace.JSONLTraceWriter
			if jsonl != "" {
				var err error
				if jw, err = trace.NewJSONLTraceWriterFile(jsonl); err != nil {
					fatal("Trace file", err)
				}
				tracers = append(tracers, jw)
			}

			res, m, err := a.execute(cmd.Context(), img, words, tracers)
			if sinks != nil {
				if cerr := sinks.Close(); cerr != nil {
					log.Error(log.CLIMonitoring, "Trace sinks", "err", cerr)
				}
			}
			if jw != nil {
				if cerr := jw.Close(); cerr != nil {
					log.Error(log.CLIMonitoring, "JSONL trace", "err", cerr)
				}
			}
			if err != nil {
				fatal("Run failed", err)
			}
			log.Info(log.CLIMonitoring, "Run", "steps", m.Steps(), "result", fmt.Sprintf("%#x", res))
			fmt.Println(res)
		},
	}
	cmd.Flags().BoolVar(&traceOn, "trace", false, "Write the call-count table and handler trace to $FN_STATS_FILE and $FN_TRACE_FILE")
	cmd.Flags().StringVar(&jsonl, "jsonl", "", "Write every executed record to this JSONL file")
	return cmd
}

func loadRun(args []string) (*bytecode.Image, []uint64) {
	img, err := bytecode.LoadImage(args[0])
	if err != nil {
		fatal("Read failed", err)
	}
	words, err := parseWords(args[1:])
	if err != nil {
		fatal("Bad arguments", err)
	}
	return img, words
}

// execute installs img on a fresh machine and runs it once.
func (a *app) execute(ctx context.Context, img *bytecode.Image, args []uint64, tracers vm.Tracers) (uint64, *vm.Machine, error) {
	m := vm.New(memory.NewRAM())
	err := a.tel.Span(ctx, telemetry.SpanInstall, func(context.Context) error {
		return m.Install(img)
	}, attribute.Int("handlers", len(img.Handlers)))
	if err != nil {
		return 0, m, err
	}
	if len(tracers) > 0 {
		m.SetTracer(tracers)
	}
	if err := m.Setup(args, 0); err != nil {
		return 0, m, err
	}
	var res uint64
	err = a.tel.Span(ctx, telemetry.SpanRun, func(context.Context) error {
		var err error
		res, err = m.Run()
		return err
	}, attribute.Int("args", len(args)))
	return res, m, err
}
