package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var inProcess bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the node until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var workerCmd []string
			if !inProcess {
				exe, err := os.Executable()
				if err != nil {
					return err
				}
				workerCmd = []string{exe, "decrypt-worker"}
			}
			n, done, err := g.openNode(ctx, workerCmd)
			if err != nil {
				return err
			}
			defer done()
			if err := n.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&inProcess, "inprocess-workers", false, "decrypt chunks in-process instead of in worker processes")
	return cmd
}
