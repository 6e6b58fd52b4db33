package rpcServer

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/liquid-miners/lm-engine/pkg/factory"
	"github.com/liquid-miners/lm-engine/pkg/pool"
	"github.com/liquid-miners/lm-engine/pkg/proofs"
	"github.com/liquid-miners/lm-engine/pkg/tokens"
)

// Request/response bodies. All token and point amounts travel as decimal
// strings of their 18-decimal integer representation.

type SubmitProofRequest struct {
	SenderAddress   string `json:"senderAddress"`
	TotalPoints     string `json:"totalPoints"`
	Nonce           string `json:"nonce"`
	LastProofTime   int64  `json:"lastProofTime"`
	UidHash         string `json:"uidHash"`
	Signature       string `json:"signature"`
	PromoterAddress string `json:"promoterAddress"`
}

type AddRewardsRequest struct {
	FunderAddress string `json:"funderAddress"`
	Amount        string `json:"amount"`
	NumEpochs     uint64 `json:"numEpochs"`
}

type ClaimRequest struct {
	Address string   `json:"address"`
	Epoch   *uint64  `json:"epoch,omitempty"`
	Epochs  []uint64 `json:"epochs,omitempty"`
}

type ClaimResponse struct {
	Amount string `json:"amount"`
}

type CreatePoolRequest struct {
	CallerAddress string `json:"callerAddress"`
	Exchange      string `json:"exchange"`
	PairTokenA    string `json:"pairTokenA"`
	PairTokenB    string `json:"pairTokenB"`
	ChainId       uint64 `json:"chainId"`
	RewardToken   string `json:"rewardToken"`
	StartDate     int64  `json:"startDate"`
}

// AcceptanceResponse reports the gating predicates for a prospective pool.
type AcceptanceResponse struct {
	RewardToken bool `json:"rewardToken"`
	Exchange    bool `json:"exchange"`
	Chain       bool `json:"chain"`
}

type PoolStatusResponse struct {
	Address            string `json:"address"`
	RewardToken        string `json:"rewardToken"`
	StartDate          int64  `json:"startDate"`
	IsActive           bool   `json:"isActive"`
	CurrentEpoch       uint64 `json:"currentEpoch"`
	TotalRewardsFunded string `json:"totalRewardsFunded"`
	PromotersBucket    string `json:"promotersBucket"`
	OraclesBucket      string `json:"oraclesBucket"`
}

type EpochStatusResponse struct {
	Epoch           uint64 `json:"epoch"`
	RewardsPerEpoch string `json:"rewardsPerEpoch"`
	TotalPoints     string `json:"totalPoints"`
}

type ProofWindowResponse struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// namedErrorStatus maps the engine's named failures onto HTTP statuses.
var namedErrorStatus = map[error]int{
	pool.ErrPoolNotFound:          http.StatusNotFound,
	pool.ErrPoolNotStarted:        http.StatusConflict,
	pool.ErrInvalidSignature:      http.StatusBadRequest,
	pool.ErrAttesterNotOracle:     http.StatusForbidden,
	pool.ErrNonceReused:           http.StatusConflict,
	pool.ErrAmountMustBePositive:  http.StatusBadRequest,
	pool.ErrEpochAlreadyClaimable: http.StatusConflict,
	pool.ErrEpochNotClaimable:     http.StatusConflict,
	pool.ErrNothingToClaim:        http.StatusConflict,
	pool.ErrNoRewardsToClaim:      http.StatusConflict,
	pool.ErrZeroAddressPromoter:   http.StatusBadRequest,
	pool.ErrTooManyEpochs:         http.StatusBadRequest,
	pool.ErrDivideByZeroEpochs:    http.StatusBadRequest,
	pool.ErrOnlyFactory:           http.StatusForbidden,
	pool.ErrFeeExceedsMax:         http.StatusBadRequest,
	factory.ErrNotAuthorized:      http.StatusForbidden,
	factory.ErrTokenNotAccepted:   http.StatusBadRequest,
	factory.ErrExchangeNotAccepted: http.StatusBadRequest,
	factory.ErrChainNotAccepted:    http.StatusBadRequest,
	factory.ErrPoolAlreadyExists:   http.StatusConflict,
	tokens.ErrInsufficientBalance:  http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	for named, s := range namedErrorStatus {
		if errors.Is(err, named) {
			status = s
			break
		}
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, pool.ErrAmountMustBePositive
	}
	return v, nil
}

func proofFromRequest(req *SubmitProofRequest, poolAddr common.Address) (*proofs.Proof, error) {
	points, err := parseAmount(req.TotalPoints)
	if err != nil {
		return nil, err
	}
	nonce, err := parseAmount(req.Nonce)
	if err != nil {
		return nil, err
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, pool.ErrInvalidSignature
	}
	return &proofs.Proof{
		SenderAddress: common.HexToAddress(req.SenderAddress),
		TotalPoints:   points,
		Nonce:         nonce,
		LastProofTime: big.NewInt(req.LastProofTime),
		PoolAddress:   poolAddr,
		UidHash:       common.HexToHash(req.UidHash),
		Signature:     sig,
	}, nil
}
