package main

import (
	"github.com/spf13/cobra"

	"github.com/bitfsorg/chunkd/decryptworker"
	"github.com/bitfsorg/chunkd/keystore"
)

// newWorkerCmd is the child side of the decrypt worker supervisor.
func newWorkerCmd() *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:    "decrypt-worker",
		Short:  "Decrypt one chunk read from stdin",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keystore.ReadKeyFile(keyFile)
			if err != nil {
				return err
			}
			return decryptworker.Serve(cmd.InOrStdin(), cmd.OutOrStdout(), key)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "provider key file")
	_ = cmd.MarkFlagRequired("key-file")
	return cmd
}
