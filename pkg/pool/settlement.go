package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// pendingUserRewardLocked computes floor(points * budget / totalPoints) minus
// the reward debt already settled. Callers hold the pool lock.
func (p *Pool) pendingUserRewardLocked(user common.Address, epoch uint64) (pending, entitlement *big.Int) {
	entitlement = new(big.Int)

	totals, ok := p.acc.totals[epoch]
	if !ok || totals.totalUserPoints.Sign() == 0 {
		return new(big.Int), entitlement
	}

	pos := p.acc.position(user, epoch)
	entitlement.Mul(pos.PointsAmount, p.schedule.userBudget(epoch))
	entitlement.Quo(entitlement, totals.totalUserPoints)

	return new(big.Int).Sub(entitlement, pos.RewardDebt), entitlement
}

// PendingReward returns what a claim would pay the user for an epoch right now.
func (p *Pool) PendingReward(user common.Address, epoch uint64) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pending, _ := p.pendingUserRewardLocked(user, epoch)
	return pending
}

func (p *Pool) claimLocked(user common.Address, epoch, currentEpoch uint64) (*big.Int, error) {
	if epoch >= currentEpoch {
		return nil, ErrEpochNotClaimable
	}

	pending, entitlement := p.pendingUserRewardLocked(user, epoch)
	if pending.Sign() <= 0 {
		return nil, ErrNothingToClaim
	}

	if err := p.bank.Transfer(p.cfg.RewardToken, p.cfg.Address, user, pending); err != nil {
		return nil, err
	}

	// Mark the full entitlement as paid so a repeat claim has nothing pending.
	p.acc.position(user, epoch).RewardDebt.Set(entitlement)

	p.logger.Sugar().Debugw("Settled user claim",
		zap.String("pool", p.cfg.Address.Hex()),
		zap.String("user", user.Hex()),
		zap.Uint64("epoch", epoch),
		zap.String("amount", pending.String()),
	)
	return pending, nil
}

// Claim pays the user their proportional share of a closed epoch's budget.
// The epoch must be strictly in the past; a repeat claim fails NothingToClaim.
func (p *Pool) Claim(user common.Address, epoch uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.claimLocked(user, epoch, p.currentEpoch())
}

// MultiClaim settles each listed epoch independently for the user. Epochs
// with nothing pending are skipped rather than failing the batch; epochs that
// are not yet claimable fail the whole batch before anything is paid.
// Returns the total amount transferred.
func (p *Pool) MultiClaim(user common.Address, epochList []uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(epochList) > MaxBatchClaimEpochs {
		return nil, ErrTooManyEpochs
	}

	current := p.currentEpoch()
	for _, epoch := range epochList {
		if epoch >= current {
			return nil, ErrEpochNotClaimable
		}
	}

	total := new(big.Int)
	for _, epoch := range epochList {
		amount, err := p.claimLocked(user, epoch, current)
		if err != nil {
			if err == ErrNothingToClaim {
				continue
			}
			return nil, err
		}
		total.Add(total, amount)
	}
	return total, nil
}

// rebateAmountLocked is the promoter's full epoch share of the epoch's
// promoter budget, proportional to the points attributed through them.
func (p *Pool) rebateAmountLocked(promoter common.Address, epoch uint64) *big.Int {
	totals, ok := p.acc.totals[epoch]
	if !ok || totals.totalPromoterPoints.Sign() == 0 {
		return new(big.Int)
	}

	b, ok := p.schedule.budgets[epoch]
	if !ok {
		return new(big.Int)
	}

	amount := new(big.Int).Mul(p.acc.promoterContribution(promoter, epoch), b.promoterBudget)
	return amount.Quo(amount, totals.totalPromoterPoints)
}

func (p *Pool) oracleAmountLocked(oracle common.Address, epoch uint64) *big.Int {
	totals, ok := p.acc.totals[epoch]
	if !ok || totals.totalOraclePoints.Sign() == 0 {
		return new(big.Int)
	}

	b, ok := p.schedule.budgets[epoch]
	if !ok {
		return new(big.Int)
	}

	amount := new(big.Int).Mul(p.acc.oracleContribution(oracle, epoch), b.oracleBudget)
	return amount.Quo(amount, totals.totalOraclePoints)
}

// oneShotClaimLocked settles a rebate or oracle claim: full epoch share,
// exactly once per (party, epoch). Unlike user claims there is no running
// debt; a repeat claim fails NoRewardsToClaim.
func (p *Pool) oneShotClaimLocked(
	party common.Address,
	epoch, currentEpoch uint64,
	claimed map[epochKey]bool,
	amount *big.Int,
) (*big.Int, error) {
	if epoch >= currentEpoch {
		return nil, ErrEpochNotClaimable
	}

	k := epochKey{addr: party, epoch: epoch}
	if claimed[k] || amount.Sign() <= 0 {
		return nil, ErrNoRewardsToClaim
	}

	if err := p.bank.Transfer(p.cfg.RewardToken, p.cfg.Address, party, amount); err != nil {
		return nil, err
	}
	claimed[k] = true
	return amount, nil
}

// ClaimRebateRewards pays a promoter their full share of an epoch's rebate
// bucket, exactly once.
func (p *Pool) ClaimRebateRewards(promoter common.Address, epoch uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oneShotClaimLocked(promoter, epoch, p.currentEpoch(), p.rebateClaimed, p.rebateAmountLocked(promoter, epoch))
}

// ClaimOracleRewards pays an oracle their full share of an epoch's oracle
// bucket, exactly once.
func (p *Pool) ClaimOracleRewards(oracle common.Address, epoch uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.oneShotClaimLocked(oracle, epoch, p.currentEpoch(), p.oracleClaimed, p.oracleAmountLocked(oracle, epoch))
}

// multiOneShotClaimLocked validates every epoch before settling any, so the
// strict one-shot semantics stay all-or-nothing across the batch.
func (p *Pool) multiOneShotClaimLocked(
	party common.Address,
	epochList []uint64,
	claimed map[epochKey]bool,
	amountOf func(common.Address, uint64) *big.Int,
) (*big.Int, error) {
	if len(epochList) > MaxBatchClaimEpochs {
		return nil, ErrTooManyEpochs
	}

	current := p.currentEpoch()
	amounts := make([]*big.Int, len(epochList))
	seen := make(map[uint64]bool, len(epochList))
	for i, epoch := range epochList {
		if epoch >= current {
			return nil, ErrEpochNotClaimable
		}
		amount := amountOf(party, epoch)
		if seen[epoch] || claimed[epochKey{addr: party, epoch: epoch}] || amount.Sign() <= 0 {
			return nil, ErrNoRewardsToClaim
		}
		seen[epoch] = true
		amounts[i] = amount
	}

	total := new(big.Int)
	for i, epoch := range epochList {
		amount, err := p.oneShotClaimLocked(party, epoch, current, claimed, amounts[i])
		if err != nil {
			return nil, err
		}
		total.Add(total, amount)
	}
	return total, nil
}

func (p *Pool) MultiClaimRebateRewards(promoter common.Address, epochList []uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiOneShotClaimLocked(promoter, epochList, p.rebateClaimed, p.rebateAmountLocked)
}

func (p *Pool) MultiClaimOracleRewards(oracle common.Address, epochList []uint64) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiOneShotClaimLocked(oracle, epochList, p.oracleClaimed, p.oracleAmountLocked)
}
