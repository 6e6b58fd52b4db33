package pool

import (
	"math/big"

	"github.com/liquid-miners/lm-engine/internal/types/numbers"
)

// Ceilings shared by every pool.
const (
	// MaxFundingEpochs bounds how far into the future a single funding call
	// may spread rewards.
	MaxFundingEpochs = 41
	// MaxBatchClaimEpochs bounds the epoch list accepted by the multi-claim
	// operations (inclusive).
	MaxBatchClaimEpochs = 100

	MaxPoolFeeBps     = 1000
	MaxPromoterFeeBps = 500
	MaxOracleFeeBps   = 500

	DefaultPoolFeeBps     = 500
	DefaultPromoterFeeBps = 300
	DefaultOracleFeeBps   = 300
)

// FeeConfig is the basis-point fee split applied when a pool is funded.
// It is fixed at pool creation so that every epoch's buckets mirror the fees
// actually charged for that epoch.
type FeeConfig struct {
	PoolFeeBps     uint64
	PromoterFeeBps uint64
	OracleFeeBps   uint64
}

func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		PoolFeeBps:     DefaultPoolFeeBps,
		PromoterFeeBps: DefaultPromoterFeeBps,
		OracleFeeBps:   DefaultOracleFeeBps,
	}
}

// Validate rejects any fee above its cap.
func (f FeeConfig) Validate() error {
	if f.PoolFeeBps > MaxPoolFeeBps || f.PromoterFeeBps > MaxPromoterFeeBps || f.OracleFeeBps > MaxOracleFeeBps {
		return ErrFeeExceedsMax
	}
	return nil
}

// FeeBreakdown is the result of splitting a funded amount.
type FeeBreakdown struct {
	PoolFee     *big.Int
	PromoterFee *big.Int
	OracleFee   *big.Int
	NetAmount   *big.Int
}

// Split carves the basis-point fees out of amount. Each cut rounds down; the
// net user amount is what remains after all three.
func (f FeeConfig) Split(amount *big.Int) FeeBreakdown {
	poolFee := numbers.SplitBps(amount, f.PoolFeeBps)
	promoterFee := numbers.SplitBps(amount, f.PromoterFeeBps)
	oracleFee := numbers.SplitBps(amount, f.OracleFeeBps)

	net := new(big.Int).Set(amount)
	net.Sub(net, poolFee)
	net.Sub(net, promoterFee)
	net.Sub(net, oracleFee)

	return FeeBreakdown{
		PoolFee:     poolFee,
		PromoterFee: promoterFee,
		OracleFee:   oracleFee,
		NetAmount:   net,
	}
}
