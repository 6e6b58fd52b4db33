package pool

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/liquid-miners/lm-engine/internal/types/numbers"
	"github.com/liquid-miners/lm-engine/pkg/epochs"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"go.uber.org/zap"
)

// AuthorizationService answers capability questions for a pool. The pool
// never stores capability bits itself; every privileged call consults the
// collaborator.
type AuthorizationService interface {
	HasOracleCapability(addr common.Address) bool
	HasOwnerCapability(addr common.Address) bool
}

// TokenTransferor moves reward tokens between parties. Funding transfers in,
// claim settlement transfers out.
type TokenTransferor interface {
	Transfer(token common.Address, from, to common.Address, amount *big.Int) error
}

// Config is the immutable identity of a pool. One pool exists per
// (exchange, pair, reward token, chain) tuple.
type Config struct {
	Address     common.Address
	Exchange    string
	PairTokenA  string
	PairTokenB  string
	ChainId     uint64
	RewardToken common.Address
	StartDate   time.Time

	// Factory is the only identity allowed to route funding into the pool,
	// and the destination of the pool fee.
	Factory common.Address

	Fees FeeConfig
}

// Pool is the reward-accounting controller for one monitored pair. All state
// transitions are serialized through a single mutex: each proof submission,
// funding call or claim is atomic and either fully applies or leaves every
// ledger untouched.
type Pool struct {
	mu sync.Mutex

	cfg      Config
	clock    epochs.Clock
	verifier *proofs.Verifier
	auth     AuthorizationService
	bank     TokenTransferor
	logger   *zap.Logger

	ledger   *proofLedger
	acc      *pointsAccumulator
	schedule *rewardSchedule

	totalRewardsFunded *big.Int
	promotersBucket    *big.Int
	oraclesBucket      *big.Int

	// One-shot settlement markers for the rebate and oracle claims.
	rebateClaimed map[epochKey]bool
	oracleClaimed map[epochKey]bool

	// now is swappable so tests can drive the epoch clock.
	now func() time.Time
}

func NewPool(
	cfg Config,
	verifier *proofs.Verifier,
	auth AuthorizationService,
	bank TokenTransferor,
	l *zap.Logger,
) (*Pool, error) {
	if err := cfg.Fees.Validate(); err != nil {
		return nil, err
	}
	return &Pool{
		cfg:      cfg,
		clock:    epochs.NewClock(cfg.StartDate),
		verifier: verifier,
		auth:     auth,
		bank:     bank,
		logger:   l,

		ledger:   newProofLedger(),
		acc:      newPointsAccumulator(),
		schedule: newRewardSchedule(),

		totalRewardsFunded: new(big.Int),
		promotersBucket:    new(big.Int),
		oraclesBucket:      new(big.Int),

		rebateClaimed: make(map[epochKey]bool),
		oracleClaimed: make(map[epochKey]bool),

		now: time.Now,
	}, nil
}

// SetNowFunc overrides the pool's time source. Test hook.
func (p *Pool) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func (p *Pool) Address() common.Address {
	return p.cfg.Address
}

func (p *Pool) RewardToken() common.Address {
	return p.cfg.RewardToken
}

func (p *Pool) StartDate() time.Time {
	return p.cfg.StartDate
}

func (p *Pool) Fees() FeeConfig {
	return p.cfg.Fees
}

func (p *Pool) currentEpoch() uint64 {
	return p.clock.EpochOf(p.now())
}

// SubmitProof verifies and applies one signed attestation. The attested
// interval belongs to the epoch containing proof.LastProofTime; submissions
// for epochs that already closed are rejected since settlement may already
// be underway against them.
func (p *Pool) SubmitProof(proof *proofs.Proof, promoter common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Structural checks before any semantic ones.
	if promoter == (common.Address{}) {
		return ErrZeroAddressPromoter
	}
	if proof.TotalPoints == nil || proof.Nonce == nil || proof.LastProofTime == nil {
		return ErrAmountMustBePositive
	}
	// The digest commits to proof.PoolAddress as the verifying contract, so a
	// proof bound to another pool would still recover its attester here. Reject
	// it outright; nonce sets are per-pool and give no cross-pool protection.
	if proof.PoolAddress != p.cfg.Address {
		return ErrInvalidSignature
	}

	attester, err := p.verifier.RecoverAttester(proof)
	if err != nil {
		return ErrInvalidSignature
	}
	if !p.auth.HasOracleCapability(attester) {
		return ErrAttesterNotOracle
	}

	proofTime := time.Unix(proof.LastProofTime.Int64(), 0).UTC()
	proofEpoch := p.clock.EpochOf(proofTime)

	if err := p.ledger.accept(proof.Nonce, proof.TotalPoints, proofEpoch, p.currentEpoch()); err != nil {
		return err
	}

	p.ledger.commit(proof.Nonce, proof.SenderAddress, proofTime)
	p.acc.recordProof(proof.SenderAddress, proofEpoch, proof.TotalPoints, promoter, attester)

	p.logger.Sugar().Debugw("Accepted proof",
		zap.String("pool", p.cfg.Address.Hex()),
		zap.String("user", proof.SenderAddress.Hex()),
		zap.Uint64("epoch", proofEpoch),
		zap.String("points", proof.TotalPoints.String()),
	)
	return nil
}

// AddRewards funds the pool with amount spread over numEpochs epochs,
// splitting out the pool, promoter and oracle fees first. Only the factory
// may route funding in; funder is the party the tokens are pulled from.
func (p *Pool) AddRewards(caller, funder common.Address, amount *big.Int, numEpochs uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.cfg.Factory {
		return ErrOnlyFactory
	}
	if numEpochs == 0 {
		return ErrDivideByZeroEpochs
	}
	if numEpochs > MaxFundingEpochs {
		return ErrTooManyEpochs
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountMustBePositive
	}

	split := p.cfg.Fees.Split(amount)

	// Pull the full amount in, then route the pool fee on to the factory
	// treasury. The bank rejects underfunded transfers before any ledger
	// mutation happens.
	if err := p.bank.Transfer(p.cfg.RewardToken, funder, p.cfg.Address, amount); err != nil {
		return err
	}
	if split.PoolFee.Sign() > 0 {
		if err := p.bank.Transfer(p.cfg.RewardToken, p.cfg.Address, p.cfg.Factory, split.PoolFee); err != nil {
			return err
		}
	}

	if err := p.schedule.fund(p.currentEpoch(), split, numEpochs); err != nil {
		return err
	}

	p.totalRewardsFunded.Add(p.totalRewardsFunded, split.NetAmount)
	p.promotersBucket.Add(p.promotersBucket, split.PromoterFee)
	p.oraclesBucket.Add(p.oraclesBucket, split.OracleFee)

	p.logger.Sugar().Infow("Funded pool",
		zap.String("pool", p.cfg.Address.Hex()),
		zap.String("amount", numbers.FormatWad(amount)),
		zap.String("net", numbers.FormatWad(split.NetAmount)),
		zap.Uint64("numEpochs", numEpochs),
	)
	return nil
}

// IsActive reports whether the pool accepts proofs: started, and funded for
// the current or a future epoch.
func (p *Pool) IsActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !p.clock.Started(now) {
		return false
	}
	return p.schedule.funded(p.clock.EpochOf(now))
}

// GetCurrentEpoch returns the epoch containing the present moment, 0 before
// the pool starts.
func (p *Pool) GetCurrentEpoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentEpoch()
}

// GetRewardsPerEpoch returns the user reward budget of an epoch.
func (p *Pool) GetRewardsPerEpoch(epoch uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schedule.userBudget(epoch)
}

// TotalRewardsFunded is the monotone accumulator of net user rewards across
// all funding calls.
func (p *Pool) TotalRewardsFunded() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.totalRewardsFunded)
}

func (p *Pool) PromotersBucket() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.promotersBucket)
}

func (p *Pool) OraclesBucket() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.oraclesBucket)
}

// UserTotalPoints returns a user's running point balance across all epochs.
func (p *Pool) UserTotalPoints(user common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acc.userPoints(user)
}

// TotalPoints returns the summed user points of an epoch.
func (p *Pool) TotalPoints(epoch uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.acc.totals[epoch]; ok {
		return new(big.Int).Set(t.totalUserPoints)
	}
	return new(big.Int)
}

func (p *Pool) GetPromoterEpochContribution(promoter common.Address, epoch uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acc.promoterContribution(promoter, epoch)
}

func (p *Pool) GetOracleEpochContribution(oracle common.Address, epoch uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acc.oracleContribution(oracle, epoch)
}

// GetProofTimeInterval returns the wall-clock interval a user's next proof
// for the epoch may attest to. The start is clamped to the user's last
// accepted proof time so the same interval can never be credited twice.
func (p *Pool) GetProofTimeInterval(epoch uint64, user common.Address) (time.Time, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start, end := p.clock.EpochBounds(epoch)
	if last, ok := p.ledger.lastProof(user); ok && last.After(start) {
		start = last
	}
	return start, end
}
