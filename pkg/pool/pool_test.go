package pool

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/liquid-miners/lm-engine/internal/tests"
	"github.com/liquid-miners/lm-engine/pkg/epochs"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"github.com/liquid-miners/lm-engine/pkg/tokens"
	"github.com/stretchr/testify/assert"
)

var (
	poolAddress  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	factoryAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	rewardToken  = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	funderAddr   = common.HexToAddress("0x00000000000000000000000000000000000000f4")
	userAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	secondUser   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	promoterAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	secondPromo  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

type stubAuth struct {
	oracles map[common.Address]bool
	owners  map[common.Address]bool
}

func (s *stubAuth) HasOracleCapability(addr common.Address) bool {
	return s.oracles[addr]
}

func (s *stubAuth) HasOwnerCapability(addr common.Address) bool {
	return s.owners[addr]
}

type poolFixture struct {
	pool     *Pool
	bank     *tokens.Bank
	verifier *proofs.Verifier
	auth     *stubAuth

	oracleKey *ecdsa.PrivateKey
	nonce     int64
}

func setupPool(t *testing.T, fees FeeConfig) *poolFixture {
	t.Helper()

	verifier := proofs.NewVerifier(tests.ChainId)
	oracleKey := tests.GetOracleKey()
	auth := &stubAuth{
		oracles: map[common.Address]bool{tests.AddressOf(oracleKey): true},
		owners:  map[common.Address]bool{},
	}
	bank := tokens.NewBank()

	p, err := NewPool(Config{
		Address:     poolAddress,
		Exchange:    "uniswap-v3",
		PairTokenA:  "WETH",
		PairTokenB:  "USDC",
		ChainId:     tests.ChainId.Uint64(),
		RewardToken: rewardToken,
		StartDate:   tests.StartDate,
		Factory:     factoryAddr,
		Fees:        fees,
	}, verifier, auth, bank, tests.GetLogger())
	assert.Nil(t, err)

	return &poolFixture{
		pool:      p,
		bank:      bank,
		verifier:  verifier,
		auth:      auth,
		oracleKey: oracleKey,
		nonce:     1,
	}
}

// atEpoch pins the pool clock to one hour into the given epoch.
func (f *poolFixture) atEpoch(epoch uint64) {
	at := tests.StartDate.Add(time.Duration(epoch-1)*epochs.EpochDuration + time.Hour)
	f.pool.SetNowFunc(tests.FixedNow(at))
}

// fund mints to the funder and routes the amount in through the factory.
func (f *poolFixture) fund(t *testing.T, amount *big.Int, numEpochs uint64) {
	t.Helper()
	f.bank.Mint(rewardToken, funderAddr, amount)
	err := f.pool.AddRewards(factoryAddr, funderAddr, amount, numEpochs)
	assert.Nil(t, err)
}

// signedProof builds an oracle-signed proof whose interval ends at proofTime.
func (f *poolFixture) signedProof(t *testing.T, sender common.Address, points *big.Int, proofTime time.Time) *proofs.Proof {
	t.Helper()
	f.nonce++
	proof := &proofs.Proof{
		SenderAddress: sender,
		TotalPoints:   points,
		Nonce:         big.NewInt(f.nonce),
		LastProofTime: big.NewInt(proofTime.Unix()),
		PoolAddress:   poolAddress,
		UidHash:       crypto.Keccak256Hash(sender.Bytes()),
	}
	assert.Nil(t, f.verifier.Sign(proof, f.oracleKey))
	return proof
}

// epochTime returns a timestamp one hour into the given epoch.
func epochTime(epoch uint64) time.Time {
	return tests.StartDate.Add(time.Duration(epoch-1)*epochs.EpochDuration + time.Hour)
}

func Test_SubmitProof(t *testing.T) {
	t.Run("Accepts a valid proof and credits all ledgers", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		err := f.pool.SubmitProof(proof, promoterAddr)
		assert.Nil(t, err)

		assert.Equal(t, tests.Tokens(5).String(), f.pool.UserTotalPoints(userAddr).String())
		assert.Equal(t, tests.Tokens(5).String(), f.pool.TotalPoints(1).String())
		assert.Equal(t, tests.Tokens(5).String(), f.pool.GetPromoterEpochContribution(promoterAddr, 1).String())
		assert.Equal(t, tests.Tokens(5).String(), f.pool.GetOracleEpochContribution(tests.AddressOf(f.oracleKey), 1).String())
	})

	t.Run("Rejects a replayed nonce", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))

		// Same nonce, fresh signature over different points.
		replay := &proofs.Proof{
			SenderAddress: userAddr,
			TotalPoints:   tests.Tokens(10),
			Nonce:         new(big.Int).Set(proof.Nonce),
			LastProofTime: proof.LastProofTime,
			PoolAddress:   poolAddress,
			UidHash:       proof.UidHash,
		}
		assert.Nil(t, f.verifier.Sign(replay, f.oracleKey))
		assert.Equal(t, ErrNonceReused, f.pool.SubmitProof(replay, promoterAddr))

		// The replay left the ledgers untouched.
		assert.Equal(t, tests.Tokens(5).String(), f.pool.UserTotalPoints(userAddr).String())
	})

	t.Run("Rejects an attester without oracle capability", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Nil(t, f.verifier.Sign(proof, tests.GetStrangerKey()))
		assert.Equal(t, ErrAttesterNotOracle, f.pool.SubmitProof(proof, promoterAddr))
	})

	t.Run("Rejects a proof bound to another pool", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		other, err := NewPool(Config{
			Address:     common.HexToAddress("0x00000000000000000000000000000000000000f9"),
			Exchange:    "uniswap-v3",
			PairTokenA:  "WETH",
			PairTokenB:  "DAI",
			ChainId:     tests.ChainId.Uint64(),
			RewardToken: rewardToken,
			StartDate:   tests.StartDate,
			Factory:     factoryAddr,
			Fees:        DefaultFeeConfig(),
		}, f.verifier, f.auth, f.bank, tests.GetLogger())
		assert.Nil(t, err)
		other.SetNowFunc(tests.FixedNow(epochTime(1)))

		// The same oracle attests on both pools; the attestation itself is
		// bound to the first pool and must not be creditable anywhere else.
		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
		assert.Equal(t, ErrInvalidSignature, other.SubmitProof(proof, promoterAddr))
		assert.Equal(t, "0", other.TotalPoints(1).String())
	})

	t.Run("Rejects a malformed signature", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		proof.Signature = proof.Signature[:10]
		assert.Equal(t, ErrInvalidSignature, f.pool.SubmitProof(proof, promoterAddr))
	})

	t.Run("Rejects the zero address as promoter", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Equal(t, ErrZeroAddressPromoter, f.pool.SubmitProof(proof, common.Address{}))
	})

	t.Run("Rejects a proof dated before the pool start", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), tests.StartDate.Add(-time.Hour))
		assert.Equal(t, ErrPoolNotStarted, f.pool.SubmitProof(proof, promoterAddr))
	})

	t.Run("Rejects a proof for a closed epoch", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(3)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(1))
		assert.Equal(t, ErrEpochAlreadyClaimable, f.pool.SubmitProof(proof, promoterAddr))
	})

	t.Run("Accepts a proof dated into a future epoch", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, tests.Tokens(5), epochTime(3))
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
		assert.Equal(t, tests.Tokens(5).String(), f.pool.TotalPoints(3).String())
	})

	t.Run("Rejects non-positive points", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		proof := f.signedProof(t, userAddr, big.NewInt(0), epochTime(1))
		assert.Equal(t, ErrAmountMustBePositive, f.pool.SubmitProof(proof, promoterAddr))
	})
}

func Test_AddRewards(t *testing.T) {
	t.Run("Splits fees and spreads the net amount", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		// 2000 tokens at a combined 11% fee over 2 epochs.
		f.fund(t, tests.Tokens(2000), 2)

		assert.Equal(t, tests.Tokens(1780).String(), f.pool.TotalRewardsFunded().String())
		assert.Equal(t, tests.Tokens(890).String(), f.pool.GetRewardsPerEpoch(1).String())
		assert.Equal(t, tests.Tokens(890).String(), f.pool.GetRewardsPerEpoch(2).String())
		assert.Equal(t, "0", f.pool.GetRewardsPerEpoch(3).String())

		// Pool fee lands at the factory; rebate buckets record their cuts.
		assert.Equal(t, tests.Tokens(100).String(), f.bank.BalanceOf(rewardToken, factoryAddr).String())
		assert.Equal(t, tests.Tokens(60).String(), f.pool.PromotersBucket().String())
		assert.Equal(t, tests.Tokens(60).String(), f.pool.OraclesBucket().String())

		// The pool retains everything but the routed pool fee.
		assert.Equal(t, tests.Tokens(1900).String(), f.bank.BalanceOf(rewardToken, poolAddress).String())
	})

	t.Run("Net amount matches the large-funding literal", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		amount, _ := new(big.Int).SetString("100000000000000000000000000", 10)
		f.fund(t, amount, 3)

		expected, _ := new(big.Int).SetString("89000000000000000000000000", 10)
		assert.Equal(t, expected.String(), f.pool.TotalRewardsFunded().String())
	})

	t.Run("Only the factory may fund", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		err := f.pool.AddRewards(funderAddr, funderAddr, tests.Tokens(100), 1)
		assert.Equal(t, ErrOnlyFactory, err)
	})

	t.Run("Validates the epoch count", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		assert.Equal(t, ErrDivideByZeroEpochs, f.pool.AddRewards(factoryAddr, funderAddr, tests.Tokens(100), 0))
		assert.Equal(t, ErrTooManyEpochs, f.pool.AddRewards(factoryAddr, funderAddr, tests.Tokens(100), MaxFundingEpochs+1))
	})

	t.Run("Rejects non-positive amounts", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		assert.Equal(t, ErrAmountMustBePositive, f.pool.AddRewards(factoryAddr, funderAddr, big.NewInt(0), 1))
		assert.Equal(t, ErrAmountMustBePositive, f.pool.AddRewards(factoryAddr, funderAddr, nil, 1))
	})

	t.Run("Fails before any ledger mutation when the funder is underfunded", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		err := f.pool.AddRewards(factoryAddr, funderAddr, tests.Tokens(100), 1)
		assert.NotNil(t, err)
		assert.Equal(t, "0", f.pool.TotalRewardsFunded().String())
		assert.Equal(t, "0", f.pool.GetRewardsPerEpoch(1).String())
	})

	t.Run("A second funding of an already-funded epoch starts one later", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)

		f.fund(t, tests.Tokens(2000), 1)
		assert.Equal(t, tests.Tokens(1780).String(), f.pool.GetRewardsPerEpoch(1).String())

		f.fund(t, tests.Tokens(2000), 1)
		assert.Equal(t, tests.Tokens(1780).String(), f.pool.GetRewardsPerEpoch(1).String())
		assert.Equal(t, tests.Tokens(1780).String(), f.pool.GetRewardsPerEpoch(2).String())
	})

	t.Run("Funding before the start date schedules from epoch 1", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.pool.SetNowFunc(tests.FixedNow(tests.StartDate.Add(-24 * time.Hour)))

		f.fund(t, tests.Tokens(2000), 2)
		assert.Equal(t, tests.Tokens(890).String(), f.pool.GetRewardsPerEpoch(1).String())
		assert.Equal(t, tests.Tokens(890).String(), f.pool.GetRewardsPerEpoch(2).String())
	})
}

func Test_IsActive(t *testing.T) {
	t.Run("Inactive before the start date even when funded", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.pool.SetNowFunc(tests.FixedNow(tests.StartDate.Add(-time.Hour)))
		f.fund(t, tests.Tokens(100), 1)
		assert.False(t, f.pool.IsActive())
	})

	t.Run("Inactive when started but unfunded", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)
		assert.False(t, f.pool.IsActive())
	})

	t.Run("Active when started and funded for the current epoch", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)
		f.fund(t, tests.Tokens(100), 1)
		assert.True(t, f.pool.IsActive())
	})

	t.Run("Inactive again once every funded epoch has passed", func(t *testing.T) {
		f := setupPool(t, DefaultFeeConfig())
		f.atEpoch(1)
		f.fund(t, tests.Tokens(100), 2)

		f.atEpoch(2)
		assert.True(t, f.pool.IsActive())

		f.atEpoch(3)
		assert.False(t, f.pool.IsActive())
	})
}

func Test_GetCurrentEpoch(t *testing.T) {
	f := setupPool(t, DefaultFeeConfig())

	f.pool.SetNowFunc(tests.FixedNow(tests.StartDate.Add(-time.Hour)))
	assert.Equal(t, uint64(0), f.pool.GetCurrentEpoch())

	f.atEpoch(1)
	assert.Equal(t, uint64(1), f.pool.GetCurrentEpoch())

	f.atEpoch(5)
	assert.Equal(t, uint64(5), f.pool.GetCurrentEpoch())
}

func Test_GetProofTimeInterval(t *testing.T) {
	f := setupPool(t, DefaultFeeConfig())
	f.atEpoch(1)

	t.Run("Returns the raw epoch bounds with no prior proof", func(t *testing.T) {
		start, end := f.pool.GetProofTimeInterval(1, userAddr)
		assert.Equal(t, tests.StartDate, start)
		assert.Equal(t, tests.StartDate.Add(epochs.EpochDuration), end)
	})

	t.Run("Clamps the start to the user's last accepted proof", func(t *testing.T) {
		proofTime := epochTime(1)
		proof := f.signedProof(t, userAddr, tests.Tokens(5), proofTime)
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))

		start, end := f.pool.GetProofTimeInterval(1, userAddr)
		assert.Equal(t, proofTime.Unix(), start.Unix())
		assert.Equal(t, tests.StartDate.Add(epochs.EpochDuration), end)

		// Another user's interval is unaffected.
		start, _ = f.pool.GetProofTimeInterval(1, secondUser)
		assert.Equal(t, tests.StartDate, start)
	})
}

func Test_InvariantTotalPointsMatchesPositions(t *testing.T) {
	f := setupPool(t, DefaultFeeConfig())
	f.atEpoch(1)

	pointSets := []int64{5, 3, 7}
	senders := []common.Address{userAddr, secondUser, userAddr}

	expected := new(big.Int)
	for i, points := range pointSets {
		proof := f.signedProof(t, senders[i], tests.Tokens(points), epochTime(1))
		assert.Nil(t, f.pool.SubmitProof(proof, promoterAddr))
		expected.Add(expected, tests.Tokens(points))
	}

	// The epoch total is exactly the sum of all accepted positions.
	assert.Equal(t, expected.String(), f.pool.TotalPoints(1).String())
	assert.Equal(t, tests.Tokens(12).String(), f.pool.UserTotalPoints(userAddr).String())
	assert.Equal(t, tests.Tokens(3).String(), f.pool.UserTotalPoints(secondUser).String())
}
