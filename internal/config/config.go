package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Flag/env names. Environment variables are prefixed with LM_ENGINE and use
// underscores, e.g. LM_ENGINE_DATABASE_HOST.
const (
	Debug = "debug"
	Chain = "chain"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db_name"
	DatabaseSchemaName = "database.schema_name"

	RpcHttpPort = "rpc.http-port"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	SnapshotCron = "snapshot.cron"

	FactoryOwnerAddress = "factory.owner-address"

	RewardsPoolFeeBps     = "rewards.pool-fee-bps"
	RewardsPromoterFeeBps = "rewards.promoter-fee-bps"
	RewardsOracleFeeBps   = "rewards.oracle-fee-bps"
)

const ENV_PREFIX = "LM_ENGINE"

type ChainId uint64

const (
	ChainId_Mainnet ChainId = 1
	ChainId_Sepolia ChainId = 11155111
	ChainId_Local   ChainId = 31337
)

func ParseChain(name string) (ChainId, error) {
	switch name {
	case "mainnet":
		return ChainId_Mainnet, nil
	case "sepolia":
		return ChainId_Sepolia, nil
	case "local":
		return ChainId_Local, nil
	}
	return 0, fmt.Errorf("unsupported chain %s", name)
}

func (c ChainId) String() string {
	switch c {
	case ChainId_Mainnet:
		return "mainnet"
	case ChainId_Sepolia:
		return "sepolia"
	case ChainId_Local:
		return "local"
	}
	return fmt.Sprintf("chain-%d", uint64(c))
}

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
}

type RpcConfig struct {
	HttpPort int
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type RewardsConfig struct {
	// Default basis-point fees applied when splitting funded rewards.
	// Each is capped by the corresponding Max*FeeBps constant in pkg/pool.
	PoolFeeBps     uint64
	PromoterFeeBps uint64
	OracleFeeBps   uint64
}

type Config struct {
	Debug            bool
	Chain            ChainId
	DatabaseConfig   DatabaseConfig
	RpcConfig        RpcConfig
	PrometheusConfig PrometheusConfig
	RewardsConfig    RewardsConfig
	SnapshotCron     string

	// FactoryOwner is the address granted the owner and factory roles at
	// startup.
	FactoryOwner string
}

// NewConfig builds a Config from viper. Flags are bound to viper keys in
// cmd/root.go, so values come from flags, env vars or defaults.
func NewConfig() *Config {
	chain, err := ParseChain(viper.GetString(normalizeFlagName(Chain)))
	if err != nil {
		chain = ChainId_Mainnet
	}
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),
		Chain: chain,

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:       viper.GetInt(normalizeFlagName(DatabasePort)),
			User:       viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:   viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:     viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName: viper.GetString(normalizeFlagName(DatabaseSchemaName)),
		},

		RpcConfig: RpcConfig{
			HttpPort: viper.GetInt(normalizeFlagName(RpcHttpPort)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		RewardsConfig: RewardsConfig{
			PoolFeeBps:     viper.GetUint64(normalizeFlagName(RewardsPoolFeeBps)),
			PromoterFeeBps: viper.GetUint64(normalizeFlagName(RewardsPromoterFeeBps)),
			OracleFeeBps:   viper.GetUint64(normalizeFlagName(RewardsOracleFeeBps)),
		},

		SnapshotCron: viper.GetString(normalizeFlagName(SnapshotCron)),

		FactoryOwner: viper.GetString(normalizeFlagName(FactoryOwnerAddress)),
	}
}

// KebabToSnakeCase converts a flag name to the viper/env key form.
func KebabToSnakeCase(str string) string {
	return strings.ReplaceAll(strings.ReplaceAll(str, "-", "_"), ".", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}
