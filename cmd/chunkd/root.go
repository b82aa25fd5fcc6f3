package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/spf13/cobra"

	"github.com/bitfsorg/chunkd/config"
	"github.com/bitfsorg/chunkd/keystore"
	"github.com/bitfsorg/chunkd/logging"
	"github.com/bitfsorg/chunkd/node"
)

const passwordEnv = "CHUNKD_PASSWORD"

type globalFlags struct {
	dataDir  string
	password string
	env      map[string]string
}

func newRootCmd(env map[string]string) *cobra.Command {
	g := &globalFlags{env: env}
	cmd := &cobra.Command{
		Use:           "chunkd",
		Short:         "Content-addressed chunk storage node",
		Long:          "chunkd stores files as verified chunks, uploads them to a ledger or storage provider and fetches them back from accelerators.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.password == "" {
				g.password = g.env[passwordEnv]
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&g.dataDir, "datadir", "d", config.DefaultDataDir(), "data directory")
	cmd.PersistentFlags().StringVar(&g.password, "password", "", "keystore password (default $"+passwordEnv+")")

	cmd.AddCommand(
		newInitCmd(g),
		newKeygenCmd(g),
		newServeCmd(g),
		newUploadCmd(g),
		newGetCmd(g),
		newWorkerCmd(),
	)
	return cmd
}

func (g *globalFlags) config() (config.Config, error) {
	return config.Load(g.dataDir, g.env)
}

// keys opens the keystore when present. A missing keystore yields nil keys.
func (g *globalFlags) keys(cfg config.Config) (fee, prov *ec.PrivateKey, err error) {
	ks, err := keystore.Open(filepath.Join(g.dataDir, keystore.FileName), g.password, cfg.Network)
	if errors.Is(err, keystore.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if fee, err = ks.FeeKey(); err != nil {
		return nil, nil, err
	}
	if prov, err = ks.ProviderKey(); err != nil {
		return nil, nil, err
	}
	return fee, prov, nil
}

// openNode loads configuration, logging and keys and starts a node.
func (g *globalFlags) openNode(ctx context.Context, workerCmd []string) (*node.Node, func(), error) {
	cfg, err := g.config()
	if err != nil {
		return nil, nil, err
	}
	log, logCloser, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}
	fee, prov, err := g.keys(cfg)
	if err != nil {
		closeQuiet(logCloser)
		return nil, nil, err
	}
	n, err := node.New(ctx, cfg, node.Options{
		FeeKey:        fee,
		ProviderKey:   prov,
		WorkerCommand: workerCmd,
		Env:           g.env,
		Logger:        log,
	})
	if err != nil {
		closeQuiet(logCloser)
		return nil, nil, err
	}
	done := func() {
		if err := n.Close(); err != nil {
			log.WithError(err).Warn("close node")
		}
		closeQuiet(logCloser)
	}
	return n, done, nil
}

func closeQuiet(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
