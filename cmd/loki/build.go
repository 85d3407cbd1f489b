package main

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/il"
	log "github.com/colorfulnotion/loki/log"
	"github.com/colorfulnotion/loki/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func (a *app) buildCmd() *cobra.Command {
	var (
		out     string
		seed    uint64
		workdir string
	)
	cmd := &cobra.Command{
		Use:   "build <lifted.json>",
		Short: "Encode linear IR into a bytecode image with freshly generated handlers",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			doc, err := il.LoadDocument(args[0])
			if err != nil {
				fatal("Read failed", err)
			}
			opts := a.cfg.EmitterOptions()
			if cmd.Flags().Changed("seed") {
				opts.Seed = seed
			}
			if workdir == "" && a.cfg.Output.DebugOutput {
				workdir = a.cfg.Output.Workdir
			}

			var img *bytecode.Image
			err = a.tel.Span(cmd.Context(), telemetry.SpanBuild, func(ctx context.Context) error {
				img, err = a.build(doc, opts)
				return err
			}, attribute.Int64("seed", int64(opts.Seed)), attribute.Int("assignments", len(doc.Instructions)))
			if err != nil {
				fatal("Build failed", err)
			}

			if err := img.Save(out); err != nil {
				fatal("Write failed", err)
			}
			if workdir != "" {
				if err := img.WriteWorkdir(workdir); err != nil {
					fatal("Workdir dump failed", err)
				}
				fmt.Printf("✓ Debug output in %s\n", workdir)
			}
			digest, _ := img.Digest()
			fmt.Printf("✓ Image %s: %d records, %d handlers, seed %d -> %s\n",
				digest.String_short(), len(img.Code)/bytecode.RecordSize, len(img.Handlers), img.Seed, out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "image.cbor", "Output image path")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Generator seed, 0 draws a fresh one (default: from loki.toml)")
	cmd.Flags().StringVar(&workdir, "workdir", "", "Dump bytecode, variable map and handler programs into this directory")
	return cmd
}

// build consults the artifact store before running the emitter. A build is
// keyed by the document digest and the generator options; only builds with
// a pinned seed are looked up or cached.
func (a *app) build(doc *il.Document, opts bytecode.Options) (*bytecode.Image, error) {
	store, err := a.openStore()
	if err != nil {
		log.Warn(log.CLIMonitoring, "Artifact store unavailable", "err", err)
		store = nil
	}
	if store == nil {
		return emit(doc, opts)
	}
	defer store.Close()
	h, err := store.PutDocument(doc)
	if err != nil {
		return nil, err
	}
	if !opts.Pinned() {
		return emit(doc, opts)
	}
	if img, ok, err := store.LookupBuild(h, opts); err != nil {
		return nil, err
	} else if ok {
		log.Info(log.CLIMonitoring, "Build cache hit", "doc", h.String_short(), "seed", opts.Seed)
		return img, nil
	}
	img, err := emit(doc, opts)
	if err != nil {
		return nil, err
	}
	if _, err := store.PutBuild(h, opts, img); err != nil {
		return nil, err
	}
	return img, nil
}

func emit(doc *il.Document, opts bytecode.Options) (*bytecode.Image, error) {
	em, err := bytecode.NewEmitter(opts)
	if err != nil {
		return nil, err
	}
	return em.Emit(doc)
}
