package pool

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"github.com/liquid-miners/lm-engine/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Snapshot exports the pool's complete ledger state for persistence. Amounts
// are rendered as decimal strings; ordering is deterministic so snapshots of
// identical state are identical.
func (p *Pool) Snapshot() *storage.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := &storage.PoolSnapshot{
		Pool: storage.PoolRecord{
			Address:     p.cfg.Address.Hex(),
			Exchange:    p.cfg.Exchange,
			PairTokenA:  p.cfg.PairTokenA,
			PairTokenB:  p.cfg.PairTokenB,
			ChainId:     p.cfg.ChainId,
			RewardToken: p.cfg.RewardToken.Hex(),
			StartDate:   p.cfg.StartDate,

			FeePoolBps:     p.cfg.Fees.PoolFeeBps,
			FeePromoterBps: p.cfg.Fees.PromoterFeeBps,
			FeeOracleBps:   p.cfg.Fees.OracleFeeBps,

			TotalRewardsFunded: p.totalRewardsFunded.String(),
			PromotersBucket:    p.promotersBucket.String(),
			OraclesBucket:      p.oraclesBucket.String(),
		},
	}

	epochSet := make(map[uint64]bool)
	for epoch := range p.schedule.budgets {
		epochSet[epoch] = true
	}
	for epoch := range p.acc.totals {
		epochSet[epoch] = true
	}
	epochList := make([]uint64, 0, len(epochSet))
	for epoch := range epochSet {
		epochList = append(epochList, epoch)
	}
	sort.Slice(epochList, func(i, j int) bool { return epochList[i] < epochList[j] })

	for _, epoch := range epochList {
		rec := storage.EpochRecord{
			PoolAddress:         snap.Pool.Address,
			Epoch:               epoch,
			UserBudget:          "0",
			PromoterBudget:      "0",
			OracleBudget:        "0",
			TotalUserPoints:     "0",
			TotalPromoterPoints: "0",
			TotalOraclePoints:   "0",
		}
		if b, ok := p.schedule.budgets[epoch]; ok {
			rec.UserBudget = b.userBudget.String()
			rec.PromoterBudget = b.promoterBudget.String()
			rec.OracleBudget = b.oracleBudget.String()
		}
		if t, ok := p.acc.totals[epoch]; ok {
			rec.TotalUserPoints = t.totalUserPoints.String()
			rec.TotalPromoterPoints = t.totalPromoterPoints.String()
			rec.TotalOraclePoints = t.totalOraclePoints.String()
		}
		snap.Epochs = append(snap.Epochs, rec)
	}

	for k, pos := range p.acc.positions {
		snap.Positions = append(snap.Positions, storage.UserPositionRecord{
			PoolAddress:  snap.Pool.Address,
			User:         k.addr.Hex(),
			Epoch:        k.epoch,
			PointsAmount: pos.PointsAmount.String(),
			RewardDebt:   pos.RewardDebt.String(),
		})
	}
	sortPositions(snap.Positions)

	snap.Contributions = append(
		p.contributionRecords(p.acc.promoterContribs, p.rebateClaimed, storage.ContributionKind_Promoter),
		p.contributionRecords(p.acc.oracleContribs, p.oracleClaimed, storage.ContributionKind_Oracle)...,
	)

	for nonce := range p.ledger.usedNonces {
		snap.Nonces = append(snap.Nonces, storage.NonceRecord{
			PoolAddress: snap.Pool.Address,
			Nonce:       nonce,
		})
	}
	sort.Slice(snap.Nonces, func(i, j int) bool { return snap.Nonces[i].Nonce < snap.Nonces[j].Nonce })

	for user, t := range p.ledger.lastProofTime {
		snap.ProofTimes = append(snap.ProofTimes, storage.ProofTimeRecord{
			PoolAddress:   snap.Pool.Address,
			User:          user.Hex(),
			LastProofTime: t,
		})
	}
	sort.Slice(snap.ProofTimes, func(i, j int) bool { return snap.ProofTimes[i].User < snap.ProofTimes[j].User })

	return snap
}

func sortPositions(positions []storage.UserPositionRecord) {
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].User != positions[j].User {
			return positions[i].User < positions[j].User
		}
		return positions[i].Epoch < positions[j].Epoch
	})
}

func (p *Pool) contributionRecords(
	contribs map[epochKey]*big.Int,
	claimed map[epochKey]bool,
	kind storage.ContributionKind,
) []storage.ContributionRecord {
	out := make([]storage.ContributionRecord, 0, len(contribs))
	for k, points := range contribs {
		out = append(out, storage.ContributionRecord{
			PoolAddress: p.cfg.Address.Hex(),
			Party:       k.addr.Hex(),
			Epoch:       k.epoch,
			Kind:        kind,
			Points:      points.String(),
			Claimed:     claimed[k],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Party != out[j].Party {
			return out[i].Party < out[j].Party
		}
		return out[i].Epoch < out[j].Epoch
	})
	return out
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("malformed amount %q in snapshot", s)
	}
	return v, nil
}

// NewPoolFromSnapshot rebuilds a pool and all of its ledgers from a persisted
// snapshot.
func NewPoolFromSnapshot(
	snap *storage.PoolSnapshot,
	verifier *proofs.Verifier,
	auth AuthorizationService,
	bank TokenTransferor,
	factoryAddr common.Address,
	l *zap.Logger,
) (*Pool, error) {
	cfg := Config{
		Address:     common.HexToAddress(snap.Pool.Address),
		Exchange:    snap.Pool.Exchange,
		PairTokenA:  snap.Pool.PairTokenA,
		PairTokenB:  snap.Pool.PairTokenB,
		ChainId:     snap.Pool.ChainId,
		RewardToken: common.HexToAddress(snap.Pool.RewardToken),
		StartDate:   snap.Pool.StartDate,
		Factory:     factoryAddr,
		Fees: FeeConfig{
			PoolFeeBps:     snap.Pool.FeePoolBps,
			PromoterFeeBps: snap.Pool.FeePromoterBps,
			OracleFeeBps:   snap.Pool.FeeOracleBps,
		},
	}

	p, err := NewPool(cfg, verifier, auth, bank, l)
	if err != nil {
		return nil, err
	}

	if p.totalRewardsFunded, err = parseAmount(snap.Pool.TotalRewardsFunded); err != nil {
		return nil, err
	}
	if p.promotersBucket, err = parseAmount(snap.Pool.PromotersBucket); err != nil {
		return nil, err
	}
	if p.oraclesBucket, err = parseAmount(snap.Pool.OraclesBucket); err != nil {
		return nil, err
	}

	for _, rec := range snap.Epochs {
		b := p.schedule.budget(rec.Epoch)
		t := p.acc.epochTotals(rec.Epoch)
		fields := []struct {
			dst *big.Int
			src string
		}{
			{b.userBudget, rec.UserBudget},
			{b.promoterBudget, rec.PromoterBudget},
			{b.oracleBudget, rec.OracleBudget},
			{t.totalUserPoints, rec.TotalUserPoints},
			{t.totalPromoterPoints, rec.TotalPromoterPoints},
			{t.totalOraclePoints, rec.TotalOraclePoints},
		}
		for _, f := range fields {
			v, err := parseAmount(f.src)
			if err != nil {
				return nil, err
			}
			f.dst.Set(v)
		}
	}

	for _, rec := range snap.Positions {
		pos := p.acc.position(common.HexToAddress(rec.User), rec.Epoch)
		if pos.PointsAmount, err = parseAmount(rec.PointsAmount); err != nil {
			return nil, err
		}
		if pos.RewardDebt, err = parseAmount(rec.RewardDebt); err != nil {
			return nil, err
		}
	}

	for _, rec := range snap.Contributions {
		points, err := parseAmount(rec.Points)
		if err != nil {
			return nil, err
		}
		k := epochKey{addr: common.HexToAddress(rec.Party), epoch: rec.Epoch}
		switch rec.Kind {
		case storage.ContributionKind_Promoter:
			p.acc.promoterContribs[k] = points
			if rec.Claimed {
				p.rebateClaimed[k] = true
			}
		case storage.ContributionKind_Oracle:
			p.acc.oracleContribs[k] = points
			if rec.Claimed {
				p.oracleClaimed[k] = true
			}
		default:
			return nil, errors.Errorf("unknown contribution kind %q", rec.Kind)
		}
	}

	for _, rec := range snap.Nonces {
		p.ledger.usedNonces[rec.Nonce] = struct{}{}
	}
	for _, rec := range snap.ProofTimes {
		p.ledger.lastProofTime[common.HexToAddress(rec.User)] = rec.LastProofTime.UTC()
	}

	// Rebuild per-user running totals from the positions.
	for k, pos := range p.acc.positions {
		total, ok := p.acc.userTotalPoints[k.addr]
		if !ok {
			total = new(big.Int)
			p.acc.userTotalPoints[k.addr] = total
		}
		total.Add(total, pos.PointsAmount)
	}

	return p, nil
}
