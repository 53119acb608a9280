package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DistributedCollective/Sovryn-Node-sub000/config"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/chain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/storage"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/status"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/wallet"
)

func newReportCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var withWallets bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print profit totals from the result store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			svc := status.NewService(nil, nil, nil, store, nil)
			profits, err := svc.Profits(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			status.PrintReport(out, profits)

			if !withWallets {
				return nil
			}
			tokens, err := cfg.TokenRegistry()
			if err != nil {
				return err
			}
			keys, err := chain.LoadKeyRing(nil, os.LookupEnv)
			if err != nil {
				return err
			}
			gw, err := chain.Dial(ctx, chainConfig(cfg), tokens, keys)
			if err != nil {
				return err
			}
			mgr := wallet.NewManager(gw, cfg.Wallets.Addresses(), nil)
			fmt.Fprintln(out, "\nWallets")
			status.PrintWallets(out, status.NewService(nil, mgr, gw, store, nil).Wallets(ctx))
			return nil
		},
	}
	cmd.Flags().BoolVar(&withWallets, "wallets", false, "also query live wallet balances from the node")
	return cmd
}
