package cmd

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/liquid-miners/lm-engine/internal/logger"
	"github.com/liquid-miners/lm-engine/internal/metrics"
	"github.com/liquid-miners/lm-engine/internal/metrics/prometheus"
	"github.com/liquid-miners/lm-engine/internal/version"
	"github.com/liquid-miners/lm-engine/pkg/factory"
	"github.com/liquid-miners/lm-engine/pkg/pool"
	"github.com/liquid-miners/lm-engine/pkg/postgres"
	"github.com/liquid-miners/lm-engine/pkg/rpcServer"
	"github.com/liquid-miners/lm-engine/pkg/shutdown"
	"github.com/liquid-miners/lm-engine/pkg/storage"
	pgStorage "github.com/liquid-miners/lm-engine/pkg/storage/postgres"
	"github.com/liquid-miners/lm-engine/pkg/tokens"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Liquid Miners engine",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		l.Sugar().Infow("lm-engine run",
			zap.String("version", version.GetVersion()),
			zap.String("commit", version.GetCommit()),
			zap.String("chain", cfg.Chain.String()),
		)

		if cfg.FactoryOwner == "" {
			l.Sugar().Fatalw("Factory owner address is required", zap.String("flag", config.FactoryOwnerAddress))
		}

		metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics clients", zap.Error(err))
		}
		sink := metrics.NewMetricsSink(l, metricsClients...)

		var promServer *http.Server
		if cfg.PrometheusConfig.Enabled {
			promServer = prometheus.StartMetricsServer(cfg.PrometheusConfig.Port, l)
		}

		bank := tokens.NewBank()

		fees := pool.FeeConfig{
			PoolFeeBps:     cfg.RewardsConfig.PoolFeeBps,
			PromoterFeeBps: cfg.RewardsConfig.PromoterFeeBps,
			OracleFeeBps:   cfg.RewardsConfig.OracleFeeBps,
		}

		f, err := factory.NewPoolFactory(
			new(big.Int).SetUint64(uint64(cfg.Chain)),
			common.HexToAddress(cfg.FactoryOwner),
			fees,
			bank,
			sink,
			l,
		)
		if err != nil {
			l.Sugar().Fatalw("Failed to create pool factory", zap.Error(err))
		}

		var store storage.Store
		if cfg.DatabaseConfig.Host != "" {
			pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)

			pg, err := postgres.NewPostgres(pgConfig)
			if err != nil {
				l.Sugar().Fatalw("Failed to setup postgres connection", zap.Error(err))
			}

			grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
			if err != nil {
				l.Sugar().Fatalw("Failed to create gorm instance", zap.Error(err))
			}

			store, err = pgStorage.NewPostgresStore(grm, l)
			if err != nil {
				l.Sugar().Fatalw("Failed to create postgres store", zap.Error(err))
			}

			if err := f.RestoreAll(store); err != nil {
				l.Sugar().Fatalw("Failed to restore engine state", zap.Error(err))
			}
			l.Sugar().Infow("Restored engine state", zap.Int("pools", len(f.Pools())))
		}

		var snapshotCron *cron.Cron
		if store != nil && cfg.SnapshotCron != "" {
			snapshotCron = cron.New()
			_, err := snapshotCron.AddFunc(cfg.SnapshotCron, func() {
				if err := f.SnapshotAll(store); err != nil {
					l.Sugar().Errorw("Failed to snapshot engine state", zap.Error(err))
					return
				}
				l.Sugar().Debugw("Snapshotted engine state", zap.Int("pools", len(f.Pools())))
			})
			if err != nil {
				l.Sugar().Fatalw("Failed to schedule snapshot cron", zap.Error(err))
			}
			snapshotCron.Start()
		}

		rpc := rpcServer.NewRpcServer(f, cfg, sink, l)
		if err := rpc.Start(); err != nil {
			l.Sugar().Fatalw("Failed to start RPC server", zap.Error(err))
		}

		l.Sugar().Info("Started lm-engine")

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")

			if snapshotCron != nil {
				<-snapshotCron.Stop().Done()
			}
			if store != nil {
				if err := f.SnapshotAll(store); err != nil {
					l.Sugar().Errorw("Failed to snapshot engine state on shutdown", zap.Error(err))
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			if err := rpc.Shutdown(ctx); err != nil {
				l.Sugar().Errorw("Failed to shutdown RPC server", zap.Error(err))
			}
			if promServer != nil {
				if err := promServer.Shutdown(ctx); err != nil {
					l.Sugar().Errorw("Failed to shutdown prometheus server", zap.Error(err))
				}
			}
		}, time.Second*5, l)
	},
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
