package main

import (
	"time"

	"github.com/spf13/cobra"
)

type runFlags struct {
	validators int
	f          uint64
	requestEvery time.Duration
	duration   time.Duration
}

func rootCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "ibftd",
		Short: "in-process demo network for the IBFT consensus core",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "start a demo network and propose blocks until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetwork(cmd.Context(), flags)
		},
	}
	run.Flags().IntVar(&flags.validators, "validators", 4, "number of validators in the demo network (must be >= 3f+1)")
	run.Flags().Uint64Var(&flags.f, "f", 1, "tolerated faulty validator count")
	run.Flags().DurationVar(&flags.requestEvery, "request-every", 500*time.Millisecond, "interval between synthetic client requests")
	run.Flags().DurationVar(&flags.duration, "for", 10*time.Second, "how long to run before exiting")

	cmd.AddCommand(run)
	return cmd
}
