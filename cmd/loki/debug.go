package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/colorfulnotion/loki/bytecode"
	"github.com/colorfulnotion/loki/console"
	"github.com/spf13/cobra"
)

func (a *app) debugCmd() *cobra.Command {
	var history string
	cmd := &cobra.Command{
		Use:   "debug <image.cbor>",
		Short: "Interactive console: setup(args...), step(n), run(), reg(i|name), ip(), disasm()",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			img, err := bytecode.LoadImage(args[0])
			if err != nil {
				fatal("Read failed", err)
			}
			c, err := console.New(img, os.Stdout)
			if err != nil {
				fatal("Install failed", err)
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "loki> ",
				HistoryFile: history,
			})
			if err != nil {
				fatal("Failed to start readline", err)
			}
			defer rl.Close()

			fmt.Printf("Loaded %s: %d arguments %v\n", args[0], img.ArgumentCount, img.ArgumentNames)
			fmt.Println("Type 'exit' to quit.")
			for {
				line, err := rl.Readline()
				if err != nil {
					break
				}
				line = strings.TrimSpace(line)
				if line == "exit" {
					break
				}
				if line == "" {
					continue
				}
				v, err := c.Eval(line)
				if err != nil {
					fmt.Println("error:", err)
					continue
				}
				if v != "" {
					fmt.Println(v)
				}
			}
		},
	}
	cmd.Flags().StringVar(&history, "history", filepath.Join(os.TempDir(), "loki_console_history.txt"), "Readline history file")
	return cmd
}

func (a *app) configCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print or write the effective configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if out == "" {
				fmt.Printf("# loaded from %q\n", a.cfg.Path)
				if err := a.cfg.Write(os.Stdout); err != nil {
					fatal("Encode failed", err)
				}
				return
			}
			if err := a.cfg.Encode(out); err != nil {
				fatal("Write failed", err)
			}
			fmt.Printf("✓ Configuration written to %s\n", out)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write to this path instead of stdout")
	return cmd
}
