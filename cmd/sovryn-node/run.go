package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/DistributedCollective/Sovryn-Node-sub000/config"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/chain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/metrics"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/notify"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/adapters/storage"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine/arbitrage"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine/liquidation"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/application/engine/rollover"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/domain"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/scanner"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/status"
	"github.com/DistributedCollective/Sovryn-Node-sub000/internal/wallet"
)

func newRunCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Scan positions and run the enabled engines until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := run(ctx, cfg); err != nil {
				slog.Error("sovryn-node exited with error", "err", err)
				return err
			}
			slog.Info("sovryn-node stopped cleanly")
			return nil
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	slog.Info("sovryn-node starting",
		"version", version,
		"rpc", cfg.Chain.RPCURL,
		"liquidation", cfg.Liquidation.Enabled,
		"rollover", cfg.Rollover.Enabled,
		"arbitrage", cfg.Arbitrage.Enabled,
	)

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	defer store.Close()

	tokens, err := cfg.TokenRegistry()
	if err != nil {
		return err
	}
	keys, err := chain.LoadKeyRing(keySpecs(cfg.Wallets), os.LookupEnv)
	if err != nil {
		return err
	}
	gw, err := chain.Dial(ctx, chainConfig(cfg), tokens, keys)
	if err != nil {
		return err
	}
	slog.Info("wallet keys loaded", "count", keys.Len())

	if cfg.Chain.ApproveOnStart {
		if err := approveAll(ctx, gw, cfg); err != nil {
			return err
		}
	}

	m := metrics.New()
	alerter := newAlerter(cfg.Notify)
	defer alerter.Wait()

	wallets := wallet.NewManager(gw, cfg.Wallets.Addresses(), m)
	book := scanner.NewPositionBook()
	sc := scanner.New(scanner.Config{
		PageSize:          cfg.Scanner.PageSize,
		WaitBetweenRounds: cfg.Scanner.WaitBetweenRounds,
		RetryPause:        cfg.Scanner.RetryPause,
	}, gw, book, m)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.Run(ctx) })

	if cfg.Liquidation.Enabled {
		liq := liquidation.New(liquidation.Config{
			Interval: cfg.Liquidation.Interval,
			GasLimit: cfg.Liquidation.GasLimit,
		}, gw, book, wallets, tokens, store, alerter, m)
		g.Go(func() error { return liq.Run(ctx) })
	}
	if cfg.Rollover.Enabled {
		dust, err := cfg.RolloverDust()
		if err != nil {
			return err
		}
		roll := rollover.New(rollover.Config{
			Interval: cfg.Rollover.Interval,
			GasLimit: cfg.Rollover.GasLimit,
			Dust:     dust,
		}, gw, book, wallets, tokens, store, m)
		g.Go(func() error { return roll.Run(ctx) })
	}
	if cfg.Arbitrage.Enabled {
		arb, err := newArbitrage(cfg.Arbitrage, gw, wallets, store, m)
		if err != nil {
			return err
		}
		g.Go(func() error { return arb.Run(ctx) })
	}

	if cfg.Server.Addr != "" {
		svc := status.NewService(book, wallets, gw, store, sc.Ready)
		srv := status.NewServer(cfg.Server.Addr, svc, m.Handler())
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func chainConfig(cfg *config.Config) chain.Config {
	return chain.Config{
		RPCURL:                cfg.Chain.RPCURL,
		ChainID:               cfg.Chain.ChainID,
		GasPriceBufferPercent: cfg.Chain.GasPriceBufferPercent,
		RatePerSecond:         cfg.Chain.RPCRatePerSecond,
		ReceiptPoll:           cfg.Chain.ReceiptPoll,
		Protocol:              common.HexToAddress(cfg.Contracts.Protocol),
		SwapNetwork:           common.HexToAddress(cfg.Contracts.SwapNetwork),
		PriceFeeds:            common.HexToAddress(cfg.Contracts.PriceFeeds),
	}
}

func keySpecs(w config.WalletsConfig) []chain.KeySpec {
	var specs []chain.KeySpec
	for _, role := range domain.Roles() {
		for _, wc := range w.ByRole()[role] {
			specs = append(specs, chain.KeySpec{Address: common.HexToAddress(wc.Address), KeyEnv: wc.KeyEnv})
		}
	}
	return specs
}

// approveAll lets liquidator wallets repay through the protocol and arbitrage
// wallets sell through the swap network.
func approveAll(ctx context.Context, gw *chain.Gateway, cfg *config.Config) error {
	spenders := map[domain.Role]common.Address{
		domain.RoleLiquidator: common.HexToAddress(cfg.Contracts.Protocol),
		domain.RoleArbitrage:  common.HexToAddress(cfg.Contracts.SwapNetwork),
	}
	addrs := cfg.Wallets.Addresses()
	for role, spender := range spenders {
		for _, owner := range addrs[role] {
			if err := gw.EnsureApprovals(ctx, owner, spender); err != nil {
				return fmt.Errorf("approvals for %s wallet %s: %w", role, owner.Hex(), err)
			}
		}
	}
	return nil
}

func newAlerter(cfg config.NotifyConfig) *notify.Notifier {
	senders := []notify.Sender{notify.LogSender{}}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			slog.Warn("telegram disabled", "err", err)
		} else {
			senders = append(senders, tg)
		}
	}
	return notify.NewNotifier(cfg.Prefix, senders...)
}

func newArbitrage(cfg config.ArbitrageConfig, gw *chain.Gateway, wallets *wallet.Manager,
	store *storage.SQLiteStore, m *metrics.Collector) (*arbitrage.Engine, error) {
	pairs := make([]arbitrage.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		t, err := domain.ParseToken(p.Token)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, arbitrage.Pair{Token: t, Pool: common.HexToAddress(p.Pool), Max: p.Max.Int()})
	}
	return arbitrage.New(arbitrage.Config{
		Interval:         cfg.Interval,
		GasLimit:         cfg.GasLimit,
		ThresholdPercent: cfg.ThresholdPercent,
		NativeReserve:    cfg.NativeReserve.Int(),
		DefaultMax:       cfg.DefaultMax.Int(),
		Pairs:            pairs,
	}, gw, wallets, store, m), nil
}
