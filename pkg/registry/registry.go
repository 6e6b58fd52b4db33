package registry

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Role identifiers, keccak256 of the role name as in the original access
// control scheme.
var (
	RoleOwnerAdmin   = common.Hash(crypto.Keccak256Hash([]byte("OWNER_ADMIN")))
	RoleFactoryAdmin = common.Hash(crypto.Keccak256Hash([]byte("FACTORY_ADMIN")))
	RoleOracleNode   = common.Hash(crypto.Keccak256Hash([]byte("ORACLE_NODE")))
)

// AcceptanceService gates which reward tokens, exchanges and chains pools may
// be created against.
type AcceptanceService interface {
	IsAcceptedRewardToken(token common.Address) bool
	IsAcceptedExchange(name string) bool
	IsAcceptedChain(id uint64) bool
}

// PoolResolver looks a pool up by its identifying tuple.
type PoolResolver interface {
	ResolvePool(exchange, tokenA, tokenB string, chainId uint64) (common.Address, error)
}
