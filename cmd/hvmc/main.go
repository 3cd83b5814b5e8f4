// Command hvmc is the ambient host driver, kept outside the reduction core:
// it reads a .net file, builds a book via internal/netsyntax, runs
// internal/runtime to quiescence, and prints the result — a "read file,
// parse, reduce, print" shape, structured into cobra subcommands
// (run/dump/bench) since this host needs three different actions rather
// than one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hvmc",
		Short: "A massively parallel interaction-combinator evaluator",
	}
	cmd.AddCommand(newRunCommand(), newDumpCommand(), newBenchCommand())
	return cmd
}
