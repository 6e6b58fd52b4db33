package tests

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/liquid-miners/lm-engine/internal/config"
	"github.com/liquid-miners/lm-engine/internal/logger"
	"github.com/liquid-miners/lm-engine/internal/types/numbers"
	"github.com/liquid-miners/lm-engine/pkg/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChainId used across tests. Local hardhat-style chain.
var ChainId = big.NewInt(31337)

// StartDate is the canonical pool start used by tests that need a fixed
// epoch origin.
var StartDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func GetLogger() *zap.Logger {
	return logger.NewNoopLogger()
}

// Deterministic keys so recovered attester addresses are stable across runs.
const (
	OracleKeyHex   = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	StrangerKeyHex = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func GetOracleKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(OracleKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

func GetStrangerKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(StrangerKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

func AddressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// FixedNow pins a pool's clock to a constant instant.
func FixedNow(at time.Time) func() time.Time {
	return func() time.Time {
		return at
	}
}

// Tokens scales a whole-token amount to its 18-decimal representation.
func Tokens(n int64) *big.Int {
	return numbers.FromWholeTokens(n)
}

// GetPostgresConnectionFromEnv connects to the database named by the
// LM_ENGINE_TEST_DATABASE_* env vars. Returns (nil, nil) when the host is
// unset so callers can skip.
func GetPostgresConnectionFromEnv() (*gorm.DB, error) {
	host := os.Getenv("LM_ENGINE_TEST_DATABASE_HOST")
	if host == "" {
		return nil, nil
	}

	dbConfig := &config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     os.Getenv("LM_ENGINE_TEST_DATABASE_USER"),
		Password: os.Getenv("LM_ENGINE_TEST_DATABASE_PASSWORD"),
		DbName:   os.Getenv("LM_ENGINE_TEST_DATABASE_DB_NAME"),
	}

	pg, err := postgres.NewPostgres(postgres.PostgresConfigFromDbConfig(dbConfig))
	if err != nil {
		return nil, err
	}
	return postgres.NewGormFromPostgresConnection(pg.Db)
}
