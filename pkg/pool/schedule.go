package pool

import (
	"math/big"
)

// epochBudget is the reward budget allocated to a single epoch, split by
// beneficiary class. Budgets only ever grow (funding is additive) and are
// consumed by claim settlement without being decremented: settlement markers
// on the claimant side prevent double payment instead.
type epochBudget struct {
	userBudget     *big.Int
	promoterBudget *big.Int
	oracleBudget   *big.Int
}

func newEpochBudget() *epochBudget {
	return &epochBudget{
		userBudget:     new(big.Int),
		promoterBudget: new(big.Int),
		oracleBudget:   new(big.Int),
	}
}

// rewardSchedule is the per-epoch reward budget table, populated by funding
// operations.
type rewardSchedule struct {
	budgets map[uint64]*epochBudget
}

func newRewardSchedule() *rewardSchedule {
	return &rewardSchedule{budgets: make(map[uint64]*epochBudget)}
}

func (rs *rewardSchedule) budget(epoch uint64) *epochBudget {
	b, ok := rs.budgets[epoch]
	if !ok {
		b = newEpochBudget()
		rs.budgets[epoch] = b
	}
	return b
}

func (rs *rewardSchedule) userBudget(epoch uint64) *big.Int {
	if b, ok := rs.budgets[epoch]; ok {
		return new(big.Int).Set(b.userBudget)
	}
	return new(big.Int)
}

// fund spreads a fee-split funding call over numEpochs consecutive epochs.
// Each class amount is divided by floor; remainders are absorbed, never
// refunded. The schedule starts at the current epoch (epoch 1 when the pool
// has not started yet), or one later when the current epoch was already
// funded by a previous call, so an in-flight epoch's budget is only
// ever set before it starts accruing claims.
func (rs *rewardSchedule) fund(currentEpoch uint64, split FeeBreakdown, numEpochs uint64) error {
	if numEpochs == 0 {
		return ErrDivideByZeroEpochs
	}
	if numEpochs > MaxFundingEpochs {
		return ErrTooManyEpochs
	}

	startEpoch := currentEpoch
	if startEpoch == 0 {
		startEpoch = 1
	}
	if b, ok := rs.budgets[startEpoch]; ok && b.userBudget.Sign() > 0 {
		startEpoch++
	}

	n := new(big.Int).SetUint64(numEpochs)
	perEpochUser := new(big.Int).Quo(split.NetAmount, n)
	perEpochPromoter := new(big.Int).Quo(split.PromoterFee, n)
	perEpochOracle := new(big.Int).Quo(split.OracleFee, n)

	for i := uint64(0); i < numEpochs; i++ {
		b := rs.budget(startEpoch + i)
		b.userBudget.Add(b.userBudget, perEpochUser)
		b.promoterBudget.Add(b.promoterBudget, perEpochPromoter)
		b.oracleBudget.Add(b.oracleBudget, perEpochOracle)
	}
	return nil
}

// funded reports whether any epoch at or after currentEpoch carries a
// non-zero user budget. A pool with only spent past budgets is not active.
func (rs *rewardSchedule) funded(currentEpoch uint64) bool {
	for epoch, b := range rs.budgets {
		if epoch >= currentEpoch && b.userBudget.Sign() > 0 {
			return true
		}
	}
	return false
}
