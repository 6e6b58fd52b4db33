package pool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/liquid-miners/lm-engine/internal/tests"
	"github.com/stretchr/testify/assert"
)

// noFees keeps funded amounts intact so budgets can be pinned exactly.
var noFees = FeeConfig{}

func Test_Claim_SoleContributor(t *testing.T) {
	f := setupPool(t, noFees)
	f.atEpoch(1)

	// Pin epoch 1's budget to the exact scenario literal.
	budget, _ := new(big.Int).SetString("14833333333333333330000000", 10)
	f.fund(t, budget, 1)

	proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
	assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))

	// Epoch 1 is still open: pending is visible but not claimable.
	assert.Equal(t, budget.String(), f.pool.PendingReward(userAddr, 1).String())
	_, err := f.pool.Claim(userAddr, 1)
	assert.Equal(t, ErrEpochNotClaimable, err)

	f.atEpoch(2)

	amount, err := f.pool.Claim(userAddr, 1)
	assert.Nil(t, err)
	assert.Equal(t, budget.String(), amount.String())
	assert.Equal(t, budget.String(), f.bank.BalanceOf(rewardToken, userAddr).String())

	// Fully settled: nothing pending, repeat claim fails.
	assert.Equal(t, "0", f.pool.PendingReward(userAddr, 1).String())
	_, err = f.pool.Claim(userAddr, 1)
	assert.Equal(t, ErrNothingToClaim, err)
}

func Test_Claim_ProportionalSplit(t *testing.T) {
	f := setupPool(t, noFees)
	f.atEpoch(1)
	f.fund(t, tests.Tokens(900), 1)

	proofA := f.signedProof(t, userAddr, tests.Tokens(1), epochTime(1))
	assert.Nil(t, f.pool.SubmitProof(proofA, promoterAddr))
	proofB := f.signedProof(t, secondUser, tests.Tokens(2), epochTime(1))
	assert.Nil(t, f.pool.SubmitProof(proofB, promoterAddr))

	f.atEpoch(2)

	amountA, err := f.pool.Claim(userAddr, 1)
	assert.Nil(t, err)
	assert.Equal(t, tests.Tokens(300).String(), amountA.String())

	amountB, err := f.pool.Claim(secondUser, 1)
	assert.Nil(t, err)
	assert.Equal(t, tests.Tokens(600).String(), amountB.String())
}

func Test_Claim_LateProofDoesNotDiluteSettled(t *testing.T) {
	f := setupPool(t, noFees)
	f.atEpoch(1)
	f.fund(t, tests.Tokens(900), 2)

	proof := f.signedProof(t, userAddr, tests.Tokens(1), epochTime(1))
	assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))

	f.atEpoch(2)
	amount, err := f.pool.Claim(userAddr, 1)
	assert.Nil(t, err)
	assert.Equal(t, tests.Tokens(450).String(), amount.String())

	// Epoch 1 is closed; the ledger refuses to reshape it afterwards.
	late := f.signedProof(t, secondUser, tests.Tokens(1), epochTime(1))
	assert.Equal(t, ErrEpochAlreadyClaimable, f.pool.SubmitProof(late, promoterAddr))
}

func Test_Claim_NoProofNoReward(t *testing.T) {
	f := setupPool(t, noFees)
	f.atEpoch(1)
	f.fund(t, tests.Tokens(900), 1)
	f.atEpoch(2)

	assert.Equal(t, "0", f.pool.PendingReward(userAddr, 1).String())
	_, err := f.pool.Claim(userAddr, 1)
	assert.Equal(t, ErrNothingToClaim, err)
}

func Test_MultiClaim(t *testing.T) {
	setupFundedEpochs := func(t *testing.T) *poolFixture {
		f := setupPool(t, noFees)
		f.atEpoch(1)
		f.fund(t, tests.Tokens(300), 3)

		for epoch := uint64(1); epoch <= 3; epoch++ {
			proof := f.signedProof(t, userAddr, tests.Tokens(1), epochTime(epoch))
			assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
		}
		f.atEpoch(4)
		return f
	}

	t.Run("Settles every listed epoch and returns the total", func(t *testing.T) {
		f := setupFundedEpochs(t)

		total, err := f.pool.MultiClaim(userAddr, []uint64{1, 2, 3})
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(300).String(), total.String())
		assert.Equal(t, tests.Tokens(300).String(), f.bank.BalanceOf(rewardToken, userAddr).String())
	})

	t.Run("Skips epochs with nothing pending", func(t *testing.T) {
		f := setupFundedEpochs(t)

		_, err := f.pool.Claim(userAddr, 2)
		assert.Nil(t, err)

		total, err := f.pool.MultiClaim(userAddr, []uint64{1, 2, 3})
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(200).String(), total.String())
	})

	t.Run("Fails the whole batch when any epoch is not yet claimable", func(t *testing.T) {
		f := setupFundedEpochs(t)

		_, err := f.pool.MultiClaim(userAddr, []uint64{1, 2, 4})
		assert.Equal(t, ErrEpochNotClaimable, err)

		// Nothing was paid out.
		assert.Equal(t, "0", f.bank.BalanceOf(rewardToken, userAddr).String())
	})

	t.Run("Caps the batch size", func(t *testing.T) {
		f := setupFundedEpochs(t)

		tooMany := make([]uint64, MaxBatchClaimEpochs+1)
		for i := range tooMany {
			tooMany[i] = uint64(i + 1)
		}
		_, err := f.pool.MultiClaim(userAddr, tooMany)
		assert.Equal(t, ErrTooManyEpochs, err)

		// Exactly the cap is accepted; unfunded epochs simply pay nothing.
		f.pool.SetNowFunc(tests.FixedNow(epochTime(MaxBatchClaimEpochs + 2)))
		atCap := tooMany[:MaxBatchClaimEpochs]
		total, err := f.pool.MultiClaim(userAddr, atCap)
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(300).String(), total.String())
	})
}

func Test_ClaimRebateRewards(t *testing.T) {
	// promoter fee 500 bps, so funding 200,000 tokens over one epoch puts
	// exactly 10,000 tokens in the epoch's rebate bucket.
	rebateFees := FeeConfig{PromoterFeeBps: 500}

	setupTwoPromoters := func(t *testing.T) *poolFixture {
		f := setupPool(t, rebateFees)
		f.atEpoch(1)
		f.fund(t, tests.Tokens(200_000), 1)

		proofA := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Nil(t, f.pool.SubmitProof(proofA, promoterAddr))
		proofB := f.signedProof(t, secondUser, tests.Tokens(5), epochTime(1))
		assert.Nil(t, f.pool.SubmitProof(proofB, secondPromo))

		f.atEpoch(2)
		return f
	}

	t.Run("Each promoter receives exactly half the bucket", func(t *testing.T) {
		f := setupTwoPromoters(t)

		amountA, err := f.pool.ClaimRebateRewards(promoterAddr, 1)
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(5000).String(), amountA.String())

		amountB, err := f.pool.ClaimRebateRewards(secondPromo, 1)
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(5000).String(), amountB.String())
	})

	t.Run("A repeat claim fails", func(t *testing.T) {
		f := setupTwoPromoters(t)

		_, err := f.pool.ClaimRebateRewards(promoterAddr, 1)
		assert.Nil(t, err)
		_, err = f.pool.ClaimRebateRewards(promoterAddr, 1)
		assert.Equal(t, ErrNoRewardsToClaim, err)
	})

	t.Run("A promoter with no attributed points has nothing to claim", func(t *testing.T) {
		f := setupTwoPromoters(t)

		_, err := f.pool.ClaimRebateRewards(common.HexToAddress("0xdead"), 1)
		assert.Equal(t, ErrNoRewardsToClaim, err)
	})

	t.Run("The current epoch is not claimable", func(t *testing.T) {
		f := setupTwoPromoters(t)

		_, err := f.pool.ClaimRebateRewards(promoterAddr, 2)
		assert.Equal(t, ErrEpochNotClaimable, err)
	})
}

func Test_ClaimOracleRewards(t *testing.T) {
	oracleFees := FeeConfig{OracleFeeBps: 500}

	f := setupPool(t, oracleFees)
	f.atEpoch(1)
	f.fund(t, tests.Tokens(200_000), 1)

	proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
	assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))

	f.atEpoch(2)

	oracle := tests.AddressOf(f.oracleKey)
	amount, err := f.pool.ClaimOracleRewards(oracle, 1)
	assert.Nil(t, err)
	assert.Equal(t, tests.Tokens(10_000).String(), amount.String())
	assert.Equal(t, tests.Tokens(10_000).String(), f.bank.BalanceOf(rewardToken, oracle).String())

	_, err = f.pool.ClaimOracleRewards(oracle, 1)
	assert.Equal(t, ErrNoRewardsToClaim, err)
}

func Test_MultiClaimRebateRewards(t *testing.T) {
	rebateFees := FeeConfig{PromoterFeeBps: 500}

	setupThreeEpochs := func(t *testing.T) *poolFixture {
		f := setupPool(t, rebateFees)
		f.atEpoch(1)
		f.fund(t, tests.Tokens(600_000), 3)

		for epoch := uint64(1); epoch <= 3; epoch++ {
			proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(epoch))
			assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
		}
		f.atEpoch(4)
		return f
	}

	t.Run("Settles every listed epoch", func(t *testing.T) {
		f := setupThreeEpochs(t)

		total, err := f.pool.MultiClaimRebateRewards(promoterAddr, []uint64{1, 2, 3})
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(30_000).String(), total.String())
	})

	t.Run("Is all-or-nothing across the batch", func(t *testing.T) {
		f := setupThreeEpochs(t)

		_, err := f.pool.ClaimRebateRewards(promoterAddr, 2)
		assert.Nil(t, err)

		// Epoch 2 was already settled, so the whole batch fails and the
		// untouched epochs stay claimable.
		_, err = f.pool.MultiClaimRebateRewards(promoterAddr, []uint64{1, 2, 3})
		assert.Equal(t, ErrNoRewardsToClaim, err)

		amount, err := f.pool.ClaimRebateRewards(promoterAddr, 1)
		assert.Nil(t, err)
		assert.Equal(t, tests.Tokens(10_000).String(), amount.String())
	})

	t.Run("Rejects duplicate epochs in one batch", func(t *testing.T) {
		f := setupThreeEpochs(t)

		before := f.bank.BalanceOf(rewardToken, promoterAddr)
		_, err := f.pool.MultiClaimRebateRewards(promoterAddr, []uint64{1, 1})
		assert.Equal(t, ErrNoRewardsToClaim, err)
		assert.Equal(t, before.String(), f.bank.BalanceOf(rewardToken, promoterAddr).String())
	})

	t.Run("Caps the batch size", func(t *testing.T) {
		f := setupThreeEpochs(t)

		tooMany := make([]uint64, MaxBatchClaimEpochs+1)
		for i := range tooMany {
			tooMany[i] = uint64(i + 1)
		}
		_, err := f.pool.MultiClaimRebateRewards(promoterAddr, tooMany)
		assert.Equal(t, ErrTooManyEpochs, err)
	})
}

func Test_MultiClaimOracleRewards(t *testing.T) {
	oracleFees := FeeConfig{OracleFeeBps: 500}

	f := setupPool(t, oracleFees)
	f.atEpoch(1)
	f.fund(t, tests.Tokens(400_000), 2)

	for epoch := uint64(1); epoch <= 2; epoch++ {
		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(epoch))
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
	}
	f.atEpoch(3)

	oracle := tests.AddressOf(f.oracleKey)
	total, err := f.pool.MultiClaimOracleRewards(oracle, []uint64{1, 2})
	assert.Nil(t, err)
	assert.Equal(t, tests.Tokens(20_000).String(), total.String())

	_, err = f.pool.MultiClaimOracleRewards(oracle, []uint64{1, 2})
	assert.Equal(t, ErrNoRewardsToClaim, err)
}
