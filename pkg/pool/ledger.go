package pool

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// proofLedger is the replay and interval control for one pool: a set of
// permanently spent nonces and each user's most recent accepted proof time.
// It is mutated only by accepted proof submissions, always under the pool lock.
type proofLedger struct {
	usedNonces    map[string]struct{}
	lastProofTime map[common.Address]time.Time
}

func newProofLedger() *proofLedger {
	return &proofLedger{
		usedNonces:    make(map[string]struct{}),
		lastProofTime: make(map[common.Address]time.Time),
	}
}

func (pl *proofLedger) nonceUsed(nonce *big.Int) bool {
	_, ok := pl.usedNonces[nonce.String()]
	return ok
}

func (pl *proofLedger) lastProof(user common.Address) (time.Time, bool) {
	t, ok := pl.lastProofTime[user]
	return t, ok
}

// accept validates a submission against the ledger and the epoch state.
// The check order is part of the contract: replay first, then temporal
// eligibility, then the amount.
func (pl *proofLedger) accept(nonce *big.Int, points *big.Int, proofEpoch, currentEpoch uint64) error {
	if pl.nonceUsed(nonce) {
		return ErrNonceReused
	}
	if proofEpoch == 0 {
		return ErrPoolNotStarted
	}
	// A closed epoch is settled against; late attestations may not reshape it.
	if proofEpoch < currentEpoch {
		return ErrEpochAlreadyClaimable
	}
	if points == nil || points.Sign() <= 0 {
		return ErrAmountMustBePositive
	}
	return nil
}

// commit spends the nonce and advances the user's proof-time watermark.
// Only called after accept succeeds.
func (pl *proofLedger) commit(nonce *big.Int, user common.Address, proofTime time.Time) {
	pl.usedNonces[nonce.String()] = struct{}{}
	pl.lastProofTime[user] = proofTime
}
