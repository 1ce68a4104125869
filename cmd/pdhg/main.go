// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pdhg solves linear programs stored as YAML model files.
//
//	pdhg solve -p model.yaml [-c config.yaml] [--variant reflected] [-v 1]
//	pdhg batch -p a.yaml -p b.yaml
//
// Results are written to stdout as YAML; logs go to stderr.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/pdhg/internal/config"
	"github.com/curioloop/pdhg/internal/logging"
	"github.com/curioloop/pdhg/internal/lpfile"
	"github.com/curioloop/pdhg/lp"
	"github.com/curioloop/pdhg/pdhg"
)

type options struct {
	problems    []string
	configPath  string
	verbosity   int
	development bool
	workers     int
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "pdhg",
		Short:        "First-order linear programming solver",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "solver configuration file (yaml, json or toml)")
	root.PersistentFlags().IntVarP(&opts.verbosity, "verbosity", "v", logging.DEFAULT, "log verbosity (0 summary, 1 iterations, 2 restarts)")
	root.PersistentFlags().BoolVar(&opts.development, "development", false, "human readable logs")
	config.AddFlags(root.PersistentFlags(), pdhg.DefaultConfig())

	solve := &cobra.Command{
		Use:   "solve",
		Short: "Solve one model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.problems) != 1 {
				return fmt.Errorf("solve takes exactly one --problem, got %d", len(opts.problems))
			}
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			p, err := lpfile.ReadFile(opts.problems[0])
			if err != nil {
				return err
			}
			r, err := pdhg.Solve(p, cfg, logger)
			if err != nil {
				return err
			}
			return writeYAML(out, r)
		},
	}
	solve.Flags().StringArrayVarP(&opts.problems, "problem", "p", nil, "model file")

	batch := &cobra.Command{
		Use:   "batch",
		Short: "Solve several models in lockstep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(opts.problems) == 0 {
				return fmt.Errorf("batch needs at least one --problem")
			}
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			problems := make([]*lp.Problem, len(opts.problems))
			for k, path := range opts.problems {
				if problems[k], err = lpfile.ReadFile(path); err != nil {
					return err
				}
			}
			b, err := pdhg.NewBatch(problems, cfg, logger)
			if err != nil {
				return err
			}
			b.MaxGoroutines = opts.workers
			results := b.Fit(nil, nil)

			docs := make([]batchEntry, len(results))
			for k, r := range results {
				docs[k] = batchEntry{Problem: opts.problems[k], Result: r}
			}
			return writeYAML(out, docs)
		},
	}
	batch.Flags().StringArrayVarP(&opts.problems, "problem", "p", nil, "model file (repeatable)")
	batch.Flags().IntVar(&opts.workers, "workers", 0, "goroutines advancing the batch (0 means one per CPU)")

	root.AddCommand(solve, batch)
	return root
}

type batchEntry struct {
	Problem string       `yaml:"problem"`
	Result  *pdhg.Result `yaml:"result"`
}

// setup loads the configuration and builds the logger shared by a command.
func (o *options) setup(cmd *cobra.Command) (pdhg.Config, logr.Logger, error) {
	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return cfg, logr.Discard(), err
	}
	logger, err := logging.NewLogger(o.verbosity, o.development)
	if err != nil {
		return cfg, logr.Discard(), err
	}
	return cfg, logger.WithName("pdhg"), nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
