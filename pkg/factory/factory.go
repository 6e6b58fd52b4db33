package factory

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/liquid-miners/lm-engine/internal/metrics"
	"github.com/liquid-miners/lm-engine/internal/metrics/metricsTypes"
	"github.com/liquid-miners/lm-engine/pkg/pool"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"github.com/liquid-miners/lm-engine/pkg/registry"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotAuthorized       = errors.New("NotAuthorized")
	ErrTokenNotAccepted    = errors.New("TokenNotAccepted")
	ErrExchangeNotAccepted = errors.New("ExchangeNotAccepted")
	ErrChainNotAccepted    = errors.New("ChainNotAccepted")
	ErrPoolAlreadyExists   = errors.New("PoolAlreadyExists")
)

type poolKey struct {
	exchange string
	tokenA   string
	tokenB   string
	chainId  uint64
}

// PoolFactory owns the registry of pools and the surrounding bookkeeping the
// engine consumes through narrow interfaces: acceptance sets, role grants and
// pool resolution. It is also the only identity allowed to route funding into
// a pool, and the destination of the pool fee (its treasury).
type PoolFactory struct {
	mu sync.RWMutex

	logger   *zap.Logger
	sink     *metrics.MetricsSink
	verifier *proofs.Verifier
	bank     pool.TokenTransferor

	// Address doubles as the treasury the pool fee accrues to.
	Address common.Address

	fees pool.FeeConfig

	acceptedTokens    map[common.Address]bool
	acceptedExchanges map[string]bool
	acceptedChains    map[uint64]bool

	// Global role grants plus per-pool grants keyed by pool address.
	roles     map[common.Hash]map[common.Address]bool
	poolRoles map[common.Address]map[common.Hash]map[common.Address]bool

	pools      map[common.Address]*pool.Pool
	poolsByKey map[poolKey]common.Address
	poolNonce  uint64
}

// NewPoolFactory creates a factory whose creator holds the owner and factory
// roles, mirroring the deployment bookkeeping of the original system.
func NewPoolFactory(
	chainId *big.Int,
	creator common.Address,
	fees pool.FeeConfig,
	bank pool.TokenTransferor,
	sink *metrics.MetricsSink,
	l *zap.Logger,
) (*PoolFactory, error) {
	if err := fees.Validate(); err != nil {
		return nil, err
	}

	f := &PoolFactory{
		logger:   l,
		sink:     sink,
		verifier: proofs.NewVerifier(chainId),
		bank:     bank,

		Address: crypto.CreateAddress(creator, 0),

		fees: fees,

		acceptedTokens:    make(map[common.Address]bool),
		acceptedExchanges: make(map[string]bool),
		acceptedChains:    make(map[uint64]bool),

		roles:     make(map[common.Hash]map[common.Address]bool),
		poolRoles: make(map[common.Address]map[common.Hash]map[common.Address]bool),

		pools:      make(map[common.Address]*pool.Pool),
		poolsByKey: make(map[poolKey]common.Address),
	}

	f.grantRoleLocked(registry.RoleOwnerAdmin, creator)
	f.grantRoleLocked(registry.RoleFactoryAdmin, creator)

	return f, nil
}

func (f *PoolFactory) grantRoleLocked(role common.Hash, addr common.Address) {
	holders, ok := f.roles[role]
	if !ok {
		holders = make(map[common.Address]bool)
		f.roles[role] = holders
	}
	holders[addr] = true
}

// HasRole reports a global role grant.
func (f *PoolFactory) HasRole(role common.Hash, addr common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.roles[role][addr]
}

// HasPoolRole reports whether addr holds role either globally or scoped to
// the given pool.
func (f *PoolFactory) HasPoolRole(poolAddr common.Address, role common.Hash, addr common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hasPoolRoleLocked(poolAddr, role, addr)
}

func (f *PoolFactory) hasPoolRoleLocked(poolAddr common.Address, role common.Hash, addr common.Address) bool {
	if f.roles[role][addr] {
		return true
	}
	return f.poolRoles[poolAddr][role][addr]
}

// GrantRole grants a global role. Caller must hold owner capability.
func (f *PoolFactory) GrantRole(caller common.Address, role common.Hash, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	f.grantRoleLocked(role, addr)
	return nil
}

// GrantPoolRole grants a role scoped to one pool, the factory-mediated way
// pool capabilities are handed out.
func (f *PoolFactory) GrantPoolRole(caller, poolAddr common.Address, role common.Hash, addr common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	if _, ok := f.pools[poolAddr]; !ok {
		return pool.ErrPoolNotFound
	}

	byRole, ok := f.poolRoles[poolAddr]
	if !ok {
		byRole = make(map[common.Hash]map[common.Address]bool)
		f.poolRoles[poolAddr] = byRole
	}
	holders, ok := byRole[role]
	if !ok {
		holders = make(map[common.Address]bool)
		byRole[role] = holders
	}
	holders[addr] = true
	return nil
}

// poolAuthorizer adapts the factory's role store to the capability interface
// one pool consults.
type poolAuthorizer struct {
	factory  *PoolFactory
	poolAddr common.Address
}

func (a *poolAuthorizer) HasOracleCapability(addr common.Address) bool {
	return a.factory.HasPoolRole(a.poolAddr, registry.RoleOracleNode, addr)
}

func (a *poolAuthorizer) HasOwnerCapability(addr common.Address) bool {
	return a.factory.HasPoolRole(a.poolAddr, registry.RoleOwnerAdmin, addr)
}

// AcceptRewardToken adds a token to the acceptance set. Owner only.
func (f *PoolFactory) AcceptRewardToken(caller common.Address, token common.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	f.acceptedTokens[token] = true
	return nil
}

// AcceptExchange adds an exchange to the acceptance set. Owner only.
func (f *PoolFactory) AcceptExchange(caller common.Address, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	f.acceptedExchanges[name] = true
	return nil
}

// AcceptChain adds a chain id to the acceptance set. Owner only.
func (f *PoolFactory) AcceptChain(caller common.Address, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	f.acceptedChains[id] = true
	return nil
}

func (f *PoolFactory) IsAcceptedRewardToken(token common.Address) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.acceptedTokens[token]
}

func (f *PoolFactory) IsAcceptedExchange(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.acceptedExchanges[name]
}

func (f *PoolFactory) IsAcceptedChain(id uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.acceptedChains[id]
}

// SetFees replaces the default fee split applied to pools created from now
// on. Existing pools keep the fees they were created with.
func (f *PoolFactory) SetFees(caller common.Address, fees pool.FeeConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.roles[registry.RoleOwnerAdmin][caller] {
		return ErrNotAuthorized
	}
	if err := fees.Validate(); err != nil {
		return err
	}
	f.fees = fees
	return nil
}

func (f *PoolFactory) Fees() pool.FeeConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.fees
}

// CreatePool registers a pool for an (exchange, pair, reward token, chain)
// tuple. The creator receives the owner role scoped to the new pool.
func (f *PoolFactory) CreatePool(
	caller common.Address,
	exchange, tokenA, tokenB string,
	chainId uint64,
	rewardToken common.Address,
	startDate time.Time,
) (*pool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.roles[registry.RoleFactoryAdmin][caller] && !f.roles[registry.RoleOwnerAdmin][caller] {
		return nil, ErrNotAuthorized
	}
	if !f.acceptedTokens[rewardToken] {
		return nil, ErrTokenNotAccepted
	}
	if !f.acceptedExchanges[exchange] {
		return nil, ErrExchangeNotAccepted
	}
	if !f.acceptedChains[chainId] {
		return nil, ErrChainNotAccepted
	}

	key := poolKey{exchange: exchange, tokenA: tokenA, tokenB: tokenB, chainId: chainId}
	if _, ok := f.poolsByKey[key]; ok {
		return nil, ErrPoolAlreadyExists
	}

	p, err := f.registerPoolLocked(caller, pool.Config{
		Exchange:    exchange,
		PairTokenA:  tokenA,
		PairTokenB:  tokenB,
		ChainId:     chainId,
		RewardToken: rewardToken,
		StartDate:   startDate,
	})
	if err != nil {
		return nil, err
	}

	f.poolsByKey[key] = p.Address()
	return p, nil
}

// CreateDynamicPool registers a legacy single-pair pool identified only by
// its address, without an exchange tuple.
func (f *PoolFactory) CreateDynamicPool(
	caller common.Address,
	rewardToken common.Address,
	startDate time.Time,
) (*pool.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.roles[registry.RoleFactoryAdmin][caller] && !f.roles[registry.RoleOwnerAdmin][caller] {
		return nil, ErrNotAuthorized
	}
	if !f.acceptedTokens[rewardToken] {
		return nil, ErrTokenNotAccepted
	}

	return f.registerPoolLocked(caller, pool.Config{
		RewardToken: rewardToken,
		StartDate:   startDate,
	})
}

func (f *PoolFactory) registerPoolLocked(creator common.Address, cfg pool.Config) (*pool.Pool, error) {
	f.poolNonce++
	cfg.Address = crypto.CreateAddress(f.Address, f.poolNonce)
	cfg.Factory = f.Address
	cfg.Fees = f.fees

	p, err := pool.NewPool(cfg, f.verifier, &poolAuthorizer{factory: f, poolAddr: cfg.Address}, f.bank, f.logger)
	if err != nil {
		return nil, err
	}

	f.pools[cfg.Address] = p

	byRole := make(map[common.Hash]map[common.Address]bool)
	byRole[registry.RoleOwnerAdmin] = map[common.Address]bool{creator: true}
	f.poolRoles[cfg.Address] = byRole

	f.logger.Sugar().Infow("Created pool",
		zap.String("pool", cfg.Address.Hex()),
		zap.String("rewardToken", cfg.RewardToken.Hex()),
		zap.Time("startDate", cfg.StartDate),
	)
	f.sink.Gauge(metricsTypes.Metric_Gauge_RegisteredLPs, float64(len(f.pools)), nil)

	return p, nil
}

// GetPool returns a pool by address.
func (f *PoolFactory) GetPool(addr common.Address) (*pool.Pool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.pools[addr]
	if !ok {
		return nil, pool.ErrPoolNotFound
	}
	return p, nil
}

// ResolvePool implements registry.PoolResolver.
func (f *PoolFactory) ResolvePool(exchange, tokenA, tokenB string, chainId uint64) (common.Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	addr, ok := f.poolsByKey[poolKey{exchange: exchange, tokenA: tokenA, tokenB: tokenB, chainId: chainId}]
	if !ok {
		return common.Address{}, pool.ErrPoolNotFound
	}
	return addr, nil
}

// Pools returns every registered pool.
func (f *PoolFactory) Pools() []*pool.Pool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]*pool.Pool, 0, len(f.pools))
	for _, p := range f.pools {
		out = append(out, p)
	}
	return out
}

// SubmitProof routes a signed proof to its pool.
func (f *PoolFactory) SubmitProof(poolAddr common.Address, proof *proofs.Proof, promoter common.Address) error {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return err
	}

	if err := p.SubmitProof(proof, promoter); err != nil {
		f.sink.Incr(metricsTypes.Metric_Incr_ProofRejected, []metricsTypes.MetricsLabel{
			{Name: "pool", Value: poolAddr.Hex()},
			{Name: "reason", Value: err.Error()},
		}, 1)
		return err
	}

	f.sink.Incr(metricsTypes.Metric_Incr_ProofAccepted, []metricsTypes.MetricsLabel{
		{Name: "pool", Value: poolAddr.Hex()},
	}, 1)
	return nil
}

// AddRewards funds a pool through the factory, the only permitted route.
func (f *PoolFactory) AddRewards(poolAddr, funder common.Address, amount *big.Int, numEpochs uint64) error {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return err
	}

	if err := p.AddRewards(f.Address, funder, amount, numEpochs); err != nil {
		return err
	}

	f.sink.Incr(metricsTypes.Metric_Incr_RewardsFunded, []metricsTypes.MetricsLabel{
		{Name: "pool", Value: poolAddr.Hex()},
	}, 1)
	return nil
}

func (f *PoolFactory) claimMetric(poolAddr common.Address, kind string) {
	f.sink.Incr(metricsTypes.Metric_Incr_ClaimSettled, []metricsTypes.MetricsLabel{
		{Name: "pool", Value: poolAddr.Hex()},
		{Name: "kind", Value: kind},
	}, 1)
}

// Claim settles a user claim on a pool.
func (f *PoolFactory) Claim(poolAddr, user common.Address, epoch uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.Claim(user, epoch)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "user")
	return amount, nil
}

func (f *PoolFactory) ClaimRebateRewards(poolAddr, promoter common.Address, epoch uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.ClaimRebateRewards(promoter, epoch)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "rebate")
	return amount, nil
}

func (f *PoolFactory) ClaimOracleRewards(poolAddr, oracle common.Address, epoch uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.ClaimOracleRewards(oracle, epoch)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "oracle")
	return amount, nil
}

func (f *PoolFactory) MultiClaim(poolAddr, user common.Address, epochList []uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.MultiClaim(user, epochList)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "user")
	return amount, nil
}

func (f *PoolFactory) MultiClaimRebateRewards(poolAddr, promoter common.Address, epochList []uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.MultiClaimRebateRewards(promoter, epochList)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "rebate")
	return amount, nil
}

func (f *PoolFactory) MultiClaimOracleRewards(poolAddr, oracle common.Address, epochList []uint64) (*big.Int, error) {
	p, err := f.GetPool(poolAddr)
	if err != nil {
		return nil, err
	}
	amount, err := p.MultiClaimOracleRewards(oracle, epochList)
	if err != nil {
		return nil, err
	}
	f.claimMetric(poolAddr, "oracle")
	return amount, nil
}
