package cmd

import (
	"os"
	"strings"

	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "lm-engine",
	Short: "The Liquid Miners engine tracks liquidity-mining proofs and settles epoch rewards",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().StringP(config.Chain, "c", "mainnet", "The chain to use (mainnet, sepolia, local)")

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "lm_engine", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "lm_engine", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)

	rootCmd.PersistentFlags().Int(config.RpcHttpPort, 7101, `http rpc port`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	rootCmd.PersistentFlags().String(config.SnapshotCron, "*/5 * * * *", `Cron schedule for persisting engine state to postgres`)

	rootCmd.PersistentFlags().Uint64(config.RewardsPoolFeeBps, 500, `Basis points routed to the factory treasury when a pool is funded`)
	rootCmd.PersistentFlags().Uint64(config.RewardsPromoterFeeBps, 300, `Basis points reserved for promoter rebates when a pool is funded`)
	rootCmd.PersistentFlags().Uint64(config.RewardsOracleFeeBps, 300, `Basis points reserved for oracle rewards when a pool is funded`)

	rootCmd.PersistentFlags().String(config.FactoryOwnerAddress, "", `Address granted the owner and factory roles at startup`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runVersionCmd)
	rootCmd.AddCommand(signProofCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
