package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/vm"
	"github.com/colorfulnotion/loki/vm/trace"
	"github.com/spf13/cobra"
)

func (a *app) disasmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disasm <image.cbor>",
		Short: "Print the records of an image",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			img, err := bytecode.LoadImage(args[0])
			if err != nil {
				fatal("Read failed", err)
			}
			text, err := bytecode.Disassemble(img.Code)
			fmt.Print(text)
			if err != nil {
				fatal("Disassembly failed", err)
			}
			fmt.Print(img.VariableMap())
		},
	}
}

func (a *app) treeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tree <image.cbor>",
		Short: "Show arguments, code and handlers of an image as a tree",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			img, err := bytecode.LoadImage(args[0])
			if err != nil {
				fatal("Read failed", err)
			}
			fmt.Print(img.ToTree().String())
		},
	}
}

func (a *app) diffCmd() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "diff <a.json> <b.json>",
		Short: "Compare two lifted documents",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			left, err := il.LoadDocument(args[0])
			if err != nil {
				fatal("Read failed", err)
			}
			right, err := il.LoadDocument(args[1])
			if err != nil {
				fatal("Read failed", err)
			}
			out, err := il.Diff(left, right, !noColor)
			if err != nil {
				fatal("Diff failed", err)
			}
			if out == "" {
				fmt.Println("✓ Documents are identical")
				return
			}
			fmt.Print(out)
			os.Exit(1)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func (a *app) histogramCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "histogram <image.cbor> [args...]",
		Short: "Run an image and chart the handler call counts",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			img, words := loadRun(args)
			name := filepath.Base(args[0])
			counter := trace.NewCallCounter(name)
			if _, _, err := a.execute(cmd.Context(), img, words, vm.Tracers{counter}); err != nil {
				fatal("Run failed", err)
			}
			f, err := os.Create(out)
			if err != nil {
				fatal("Write failed", err)
			}
			defer f.Close()
			if err := trace.RenderHistogram(f, counter, name); err != nil {
				fatal("Render failed", err)
			}
			fmt.Printf("✓ %d handlers, %d calls -> %s\n", len(counter.Counts()), len(counter.Trace()), out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "histogram.html", "Output HTML path")
	return cmd
}
