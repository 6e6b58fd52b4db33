package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type epochKey struct {
	addr  common.Address
	epoch uint64
}

// UserEpochPosition tracks one user's accumulated points within an epoch and
// the portion of their entitlement already paid out (the settlement marker).
type UserEpochPosition struct {
	PointsAmount *big.Int
	RewardDebt   *big.Int
}

// epochTotals are the frozen-once-claimable aggregates for one epoch.
type epochTotals struct {
	totalUserPoints     *big.Int
	totalPromoterPoints *big.Int
	totalOraclePoints   *big.Int
}

func newEpochTotals() *epochTotals {
	return &epochTotals{
		totalUserPoints:     new(big.Int),
		totalPromoterPoints: new(big.Int),
		totalOraclePoints:   new(big.Int),
	}
}

// pointsAccumulator holds per-epoch point totals and per-party running
// balances. Mutated only by accepted proof submissions, under the pool lock.
type pointsAccumulator struct {
	positions        map[epochKey]*UserEpochPosition
	promoterContribs map[epochKey]*big.Int
	oracleContribs   map[epochKey]*big.Int
	userTotalPoints  map[common.Address]*big.Int
	totals           map[uint64]*epochTotals
}

func newPointsAccumulator() *pointsAccumulator {
	return &pointsAccumulator{
		positions:        make(map[epochKey]*UserEpochPosition),
		promoterContribs: make(map[epochKey]*big.Int),
		oracleContribs:   make(map[epochKey]*big.Int),
		userTotalPoints:  make(map[common.Address]*big.Int),
		totals:           make(map[uint64]*epochTotals),
	}
}

func (pa *pointsAccumulator) position(user common.Address, epoch uint64) *UserEpochPosition {
	k := epochKey{addr: user, epoch: epoch}
	pos, ok := pa.positions[k]
	if !ok {
		pos = &UserEpochPosition{PointsAmount: new(big.Int), RewardDebt: new(big.Int)}
		pa.positions[k] = pos
	}
	return pos
}

func (pa *pointsAccumulator) epochTotals(epoch uint64) *epochTotals {
	t, ok := pa.totals[epoch]
	if !ok {
		t = newEpochTotals()
		pa.totals[epoch] = t
	}
	return t
}

// recordProof credits an accepted proof to the user and attributes the same
// points to the promoter and oracle that produced it. Contributions are
// recorded as raw points; each party's rebate share falls out of the
// proportion at claim time.
func (pa *pointsAccumulator) recordProof(user common.Address, epoch uint64, points *big.Int, promoter, oracle common.Address) {
	pos := pa.position(user, epoch)
	pos.PointsAmount.Add(pos.PointsAmount, points)

	totals := pa.epochTotals(epoch)
	totals.totalUserPoints.Add(totals.totalUserPoints, points)
	totals.totalPromoterPoints.Add(totals.totalPromoterPoints, points)
	totals.totalOraclePoints.Add(totals.totalOraclePoints, points)

	pa.addContribution(pa.promoterContribs, promoter, epoch, points)
	pa.addContribution(pa.oracleContribs, oracle, epoch, points)

	userTotal, ok := pa.userTotalPoints[user]
	if !ok {
		userTotal = new(big.Int)
		pa.userTotalPoints[user] = userTotal
	}
	userTotal.Add(userTotal, points)
}

func (pa *pointsAccumulator) addContribution(contribs map[epochKey]*big.Int, party common.Address, epoch uint64, points *big.Int) {
	k := epochKey{addr: party, epoch: epoch}
	c, ok := contribs[k]
	if !ok {
		c = new(big.Int)
		contribs[k] = c
	}
	c.Add(c, points)
}

func (pa *pointsAccumulator) promoterContribution(promoter common.Address, epoch uint64) *big.Int {
	if c, ok := pa.promoterContribs[epochKey{addr: promoter, epoch: epoch}]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

func (pa *pointsAccumulator) oracleContribution(oracle common.Address, epoch uint64) *big.Int {
	if c, ok := pa.oracleContribs[epochKey{addr: oracle, epoch: epoch}]; ok {
		return new(big.Int).Set(c)
	}
	return new(big.Int)
}

func (pa *pointsAccumulator) userPoints(user common.Address) *big.Int {
	if t, ok := pa.userTotalPoints[user]; ok {
		return new(big.Int).Set(t)
	}
	return new(big.Int)
}
