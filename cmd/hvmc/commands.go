package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hvmcore/hvmc/internal/config"
	"github.com/hvmcore/hvmc/internal/rterror"
	"github.com/hvmcore/hvmc/internal/runtime"
)

// bindConfigFlags registers pflag overrides for every internal/config.Config
// field onto fs, returning a closure that applies them over a base config
// loaded from --config.
func bindConfigFlags(fs *pflag.FlagSet) func(base config.Config) config.Config {
	heapSize := fs.Int("heap-size", 0, "node capacity of the heap (0 = keep config/default)")
	workers := fs.Int("workers", -1, "worker count (0 = NumCPU, -1 = keep config/default)")
	budget := fs.Int("redex-budget-per-steal", 0, "bounded work per successful steal")
	overflow := fs.String("numeric-overflow", "", `"wrap" or "trap"`)
	trace := fs.Bool("trace", false, "emit rule-by-rule trace events")

	return func(base config.Config) config.Config {
		if *heapSize > 0 {
			base.HeapSize = *heapSize
		}
		if *workers >= 0 {
			base.Workers = *workers
		}
		if *budget > 0 {
			base.RedexBudgetPerSteal = *budget
		}
		if *overflow != "" {
			base.NumericOverflow = *overflow
		}
		if *trace {
			base.Trace = true
		}
		return base
	}
}

func loadBaseConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newRunCommand() *cobra.Command {
	var configPath, entry string
	var overlay func(config.Config) config.Config
	cmd := &cobra.Command{
		Use:   "run <file.net>",
		Short: "Evaluate a net file to normal form and print its root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadBaseConfig(configPath)
			if err != nil {
				return err
			}
			cfg := overlay(base)

			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			log := hclog.New(&hclog.LoggerOptions{Name: "hvmc", Level: hclog.Warn})
			rt, err := runtime.NewFromSource(cfg, string(src), entry, runtime.WithLogger(log))
			if err != nil {
				return err
			}

			start := time.Now()
			runErr := rt.Run(context.Background())
			elapsed := time.Since(start)

			fmt.Println(rt.String())
			stats := rt.Stats()
			fmt.Fprintf(os.Stderr, "interactions=%d steals=%d elapsed=%s\n", stats.Interactions, stats.Steals, elapsed)

			if runErr != nil {
				os.Exit(rterror.KindOf(runErr).ExitCode())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&entry, "entry", "main", "definition name to evaluate")
	overlay = bindConfigFlags(cmd.Flags())
	return cmd
}

func newDumpCommand() *cobra.Command {
	var configPath, entry string
	var overlay func(config.Config) config.Config
	cmd := &cobra.Command{
		Use:   "dump <file.net>",
		Short: "Evaluate a net file and print a heap image of the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadBaseConfig(configPath)
			if err != nil {
				return err
			}
			cfg := overlay(base)

			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rt, err := runtime.NewFromSource(cfg, string(src), entry)
			if err != nil {
				return err
			}
			if err := rt.Run(context.Background()); err != nil {
				return err
			}

			for i := 0; i < rt.Heap.Capacity(); i++ {
				p0 := rt.Heap.Get(uint64(i), 0)
				p1 := rt.Heap.Get(uint64(i), 1)
				if p0.IsLock() && p1.IsLock() {
					continue
				}
				fmt.Printf("%d: (%s, %s)\n", i, p0, p1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&entry, "entry", "main", "definition name to evaluate")
	overlay = bindConfigFlags(cmd.Flags())
	return cmd
}

func newBenchCommand() *cobra.Command {
	var configPath, entry string
	var repeat int
	var overlay func(config.Config) config.Config
	cmd := &cobra.Command{
		Use:   "bench <file.net>",
		Short: "Repeat evaluation and report interactions/sec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadBaseConfig(configPath)
			if err != nil {
				return err
			}
			cfg := overlay(base)

			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			for i := 0; i < repeat; i++ {
				rt, err := runtime.NewFromSource(cfg, string(src), entry)
				if err != nil {
					return err
				}
				start := time.Now()
				if err := rt.Run(context.Background()); err != nil {
					return err
				}
				elapsed := time.Since(start)
				stats := rt.Stats()
				rate := float64(stats.Interactions) / elapsed.Seconds()
				fmt.Printf("run %d: interactions=%d elapsed=%s rate=%.0f/s\n", i, stats.Interactions, elapsed, rate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&entry, "entry", "main", "definition name to evaluate")
	cmd.Flags().IntVar(&repeat, "repeat", 5, "number of evaluation runs")
	overlay = bindConfigFlags(cmd.Flags())
	return cmd
}
