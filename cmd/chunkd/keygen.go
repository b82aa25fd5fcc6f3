package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bitfsorg/chunkd/config"
	"github.com/bitfsorg/chunkd/keystore"
)

func newInitCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigPath(g.dataDir)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists", path)
			}
			cfg := config.DefaultConfig()
			cfg.DataDir = g.dataDir
			if err := config.SaveConfig(path, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newKeygenCmd(g *globalFlags) *cobra.Command {
	var mnemonic string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the node keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.password == "" {
				return errors.New("a keystore password is required (--password or $" + passwordEnv + ")")
			}
			cfg, err := g.config()
			if err != nil {
				return err
			}
			path := filepath.Join(g.dataDir, keystore.FileName)

			var ks *keystore.Keystore
			if mnemonic != "" {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%w: %s", keystore.ErrExists, path)
				}
				ks, err = keystore.Import(path, mnemonic, g.password, cfg.Network)
			} else {
				mnemonic, ks, err = keystore.Create(path, g.password, cfg.Network)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "mnemonic: %s\n", mnemonic)
				}
			}
			if err != nil {
				return err
			}

			fee, err := ks.FeeKey()
			if err != nil {
				return err
			}
			prov, err := ks.ProviderKey()
			if err != nil {
				return err
			}
			addr, err := ks.Address(fee.PubKey())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fee address: %s\n", addr)
			fmt.Fprintf(cmd.OutOrStdout(), "provider id: %x\n", prov.PubKey().Compressed())
			return nil
		},
	}
	cmd.Flags().StringVar(&mnemonic, "mnemonic", "", "import an existing BIP39 mnemonic")
	return cmd
}
