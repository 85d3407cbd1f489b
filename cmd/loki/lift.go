package main

import (
	"context"
	"fmt"
	"os"

	"github.com/colorfulnotion/loki/frontend/gossa"
	"github.com/colorfulnotion/loki/il"
	"github.com/colorfulnotion/loki/lifter"
	log "github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/native"
	"github.com/colorfulnotion/loki/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func (a *app) liftCmd() *cobra.Command {
	var (
		fnName     string
		goFile     string
		out        string
		dynamicGEP bool
	)
	cmd := &cobra.Command{
		Use:   "lift [file.ll]",
		Short: "Translate a native function into linear IR",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if goFile == "" && len(args) == 0 {
				fmt.Fprintln(os.Stderr, "lift needs an assembly file or --go")
				os.Exit(1)
			}
			var doc *il.Document
			err := a.tel.Span(cmd.Context(), telemetry.SpanLift, func(ctx context.Context) error {
				fn, err := loadFunction(args, goFile, fnName)
				if err != nil {
					return err
				}
				l := lifter.New(lifter.Options{ForceDynamicGEP: dynamicGEP, Layout: native.DefaultLayout})
				doc, err = l.Lift(fn)
				for _, s := range l.Skipped() {
					fmt.Fprintf(os.Stderr, "skipped: %s (%v)\n", s.Instr.Format(), s.Reason)
				}
				return err
			}, attribute.String("fn", fnName), attribute.Bool("dynamic_gep", dynamicGEP))
			if err != nil {
				fatal("Lift failed", err)
			}

			if store, err := a.openStore(); err != nil {
				log.Warn(log.CLIMonitoring, "Artifact store unavailable", "err", err)
			} else if store != nil {
				h, err := store.PutDocument(doc)
				store.Close()
				if err != nil {
					log.Warn(log.CLIMonitoring, "Could not cache document", "err", err)
				} else {
					log.Info(log.CLIMonitoring, "Cached document", "hash", h.String_short())
				}
			}

			if out == "" {
				data, err := doc.MarshalIndent()
				if err != nil {
					fatal("Encode failed", err)
				}
				fmt.Println(string(data))
				return
			}
			if err := doc.Save(out); err != nil {
				fatal("Write failed", err)
			}
			fmt.Printf("✓ %d assignments, %d arguments -> %s\n", len(doc.Instructions), len(doc.Arguments), out)
		},
	}
	cmd.Flags().StringVar(&fnName, "func", "", "Function to lift (default: the only function in the file)")
	cmd.Flags().StringVar(&goFile, "go", "", "Lift from Go source instead of assembly text")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output JSON path (default: stdout)")
	cmd.Flags().BoolVar(&dynamicGEP, "dynamic-gep", false, "Lower every address computation through index arithmetic")
	return cmd
}

func loadFunction(args []string, goFile, name string) (*native.Function, error) {
	if goFile != "" {
		if name == "" {
			return nil, fmt.Errorf("--go needs --func")
		}
		return gossa.ParseFile(goFile, nil, name)
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return nil, err
	}
	return native.ParseFunction(string(src), name)
}
