package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUploadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file or directory and print its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, done, err := g.openNode(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer done()
			id, err := n.UploadPath(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
