package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xJonathanLEI/oriac/pkg/builtins"
	"github.com/xJonathanLEI/oriac/pkg/layouts"
	"github.com/xJonathanLEI/oriac/pkg/program"
	"github.com/xJonathanLEI/oriac/pkg/runner"
	"github.com/xJonathanLEI/oriac/pkg/vm"
)

type runOptions struct {
	programPath string
	layoutName  string
	layoutFile  string
	printOutput          bool
	proofMode            bool
	maxSteps             uint64
	logFormat            string
	allowMissingBuiltins bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a compiled Cairo program",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMain(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.programPath, "program", "", "The name of the program json file.")
	flags.StringVar(&opts.layoutName, "layout", "plain", "Layout to run the program with (plain, small, all_cairo).")
	flags.StringVar(&opts.layoutFile, "layout-file", "", "Path to a custom layout YAML file; overrides --layout.")
	flags.BoolVar(&opts.printOutput, "print-output", false, "Print the contents of the output segment once the run ends.")
	flags.BoolVar(&opts.proofMode, "proof-mode", false, "Pad the trace and initialize the stack for proof generation.")
	flags.Uint64Var(&opts.maxSteps, "max-steps", 0, "Abort the run after this many steps (0 means unbounded).")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log output format: text or json.")
	flags.BoolVar(&opts.allowMissingBuiltins, "allow-missing-builtins", false, "Tolerate a program builtin absent from the layout instead of failing.")
	cmd.MarkFlagRequired("program")

	return cmd
}

func runMain(cmd *cobra.Command, opts *runOptions) error {
	log, err := configureLogger(opts.logFormat)
	if err != nil {
		return err
	}

	layout, err := resolveLayout(opts)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.programPath)
	if err != nil {
		return errors.Wrapf(err, "reading program file %s", opts.programPath)
	}
	p, err := program.Decode(data)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"program": opts.programPath,
		"layout":  layout.Name,
		"builtins": p.Builtins,
	}).Info("loaded program")

	r, err := runner.NewRunner(p, layout, opts.proofMode, opts.allowMissingBuiltins)
	if err != nil {
		return err
	}

	end, err := r.Initialize()
	if err != nil {
		return err
	}

	resources := runner.Unbounded()
	if opts.maxSteps > 0 {
		resources = runner.WithMaxSteps(opts.maxSteps)
	}

	log.Info("running")
	if err := r.RunUntilPC(end, nil, &resources); err != nil {
		return vm.AsVmException(r.VM.RunContext.Pc, err, p)
	}
	log.WithField("steps", r.VM.CurrentStep).Info("run completed")

	if err := r.EndRun(nil); err != nil {
		return vm.AsVmException(r.VM.RunContext.Pc, err, p)
	}
	if err := r.ReadReturnValues(); err != nil {
		return err
	}
	if opts.proofMode {
		if err := r.FinalizeSegments(); err != nil {
			return err
		}
	}

	if opts.printOutput {
		return printOutput(cmd, r)
	}
	return nil
}

func resolveLayout(opts *runOptions) (layouts.CairoLayout, error) {
	if opts.layoutFile != "" {
		return layouts.LoadFile(opts.layoutFile)
	}
	return layouts.Named(opts.layoutName)
}

func printOutput(cmd *cobra.Command, r *runner.CairoRunner) error {
	for _, b := range r.Builtins {
		out, ok := b.(*builtins.OutputRunner)
		if !ok || !out.Included() {
			continue
		}
		values, err := out.Values(r.VM)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Program output:")
		for _, v := range values {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", v)
		}
	}
	return nil
}
