package pool

import "github.com/pkg/errors"

// Every failure the engine can surface is an explicit, named condition.
// Nothing is retried automatically and no operation leaves partial state
// behind: an error means the ledgers are exactly as they were before the call.
var (
	ErrPoolNotFound          = errors.New("PoolNotFound")
	ErrPoolNotStarted        = errors.New("PoolNotStarted")
	ErrInvalidSignature      = errors.New("InvalidSignature")
	ErrAttesterNotOracle     = errors.New("AttesterNotOracle")
	ErrNonceReused           = errors.New("NonceReused")
	ErrAmountMustBePositive  = errors.New("AmountMustBePositive")
	ErrEpochAlreadyClaimable = errors.New("EpochAlreadyClaimable")
	ErrEpochNotClaimable     = errors.New("EpochNotClaimable")
	ErrNothingToClaim        = errors.New("NothingToClaim")
	ErrNoRewardsToClaim      = errors.New("NoRewardsToClaim")
	ErrZeroAddressPromoter   = errors.New("ZeroAddressPromoter")
	ErrTooManyEpochs         = errors.New("TooManyEpochs")
	ErrDivideByZeroEpochs    = errors.New("DivideByZeroEpochs")
	ErrOnlyFactory           = errors.New("OnlyFactory")
	ErrFeeExceedsMax         = errors.New("FeeExceedsMax")
)
