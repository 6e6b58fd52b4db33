package rpcServer

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/liquid-miners/lm-engine/pkg/pool"
)

func decodeBody(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func (rs *RpcServer) poolFromRequest(r *http.Request) (*pool.Pool, error) {
	addr := common.HexToAddress(mux.Vars(r)["address"])
	return rs.factory.GetPool(addr)
}

func epochFromRequest(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["epoch"], 10, 64)
}

func (rs *RpcServer) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	p, err := rs.factory.CreatePool(
		common.HexToAddress(req.CallerAddress),
		req.Exchange, req.PairTokenA, req.PairTokenB,
		req.ChainId,
		common.HexToAddress(req.RewardToken),
		time.Unix(req.StartDate, 0).UTC(),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"address": p.Address().Hex()})
}

func (rs *RpcServer) handleAcceptance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := AcceptanceResponse{
		RewardToken: rs.acceptance.IsAcceptedRewardToken(common.HexToAddress(q.Get("rewardToken"))),
		Exchange:    rs.acceptance.IsAcceptedExchange(q.Get("exchange")),
	}
	if chainId, err := strconv.ParseUint(q.Get("chainId"), 10, 64); err == nil {
		resp.Chain = rs.acceptance.IsAcceptedChain(chainId)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rs *RpcServer) handleResolvePool(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chainId, err := strconv.ParseUint(q.Get("chainId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed chainId"})
		return
	}

	addr, err := rs.resolver.ResolvePool(q.Get("exchange"), q.Get("tokenA"), q.Get("tokenB"), chainId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.Hex()})
}

func (rs *RpcServer) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PoolStatusResponse{
		Address:            p.Address().Hex(),
		RewardToken:        p.RewardToken().Hex(),
		StartDate:          p.StartDate().Unix(),
		IsActive:           p.IsActive(),
		CurrentEpoch:       p.GetCurrentEpoch(),
		TotalRewardsFunded: p.TotalRewardsFunded().String(),
		PromotersBucket:    p.PromotersBucket().String(),
		OraclesBucket:      p.OraclesBucket().String(),
	})
}

func (rs *RpcServer) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req SubmitProofRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	proof, err := proofFromRequest(&req, p.Address())
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rs.factory.SubmitProof(p.Address(), proof, common.HexToAddress(req.PromoterAddress)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (rs *RpcServer) handleAddRewards(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req AddRewardsRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := rs.factory.AddRewards(p.Address(), common.HexToAddress(req.FunderAddress), amount, req.NumEpochs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"funded": true})
}

// claimFunc applies either a single-epoch or batch claim for one claim kind.
type claimFuncs struct {
	single func(poolAddr, party common.Address, epoch uint64) (*big.Int, error)
	multi  func(poolAddr, party common.Address, epochs []uint64) (*big.Int, error)
}

func (rs *RpcServer) handleClaimKind(w http.ResponseWriter, r *http.Request, fns claimFuncs) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	party := common.HexToAddress(req.Address)
	var amount *big.Int
	switch {
	case req.Epoch != nil:
		amount, err = fns.single(p.Address(), party, *req.Epoch)
	case len(req.Epochs) > 0:
		amount, err = fns.multi(p.Address(), party, req.Epochs)
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "epoch or epochs required"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Amount: amount.String()})
}

func (rs *RpcServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	rs.handleClaimKind(w, r, claimFuncs{
		single: rs.factory.Claim,
		multi:  rs.factory.MultiClaim,
	})
}

func (rs *RpcServer) handleClaimRebate(w http.ResponseWriter, r *http.Request) {
	rs.handleClaimKind(w, r, claimFuncs{
		single: rs.factory.ClaimRebateRewards,
		multi:  rs.factory.MultiClaimRebateRewards,
	})
}

func (rs *RpcServer) handleClaimOracle(w http.ResponseWriter, r *http.Request) {
	rs.handleClaimKind(w, r, claimFuncs{
		single: rs.factory.ClaimOracleRewards,
		multi:  rs.factory.MultiClaimOracleRewards,
	})
}

func (rs *RpcServer) handleEpochStatus(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	epoch, err := epochFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed epoch"})
		return
	}

	writeJSON(w, http.StatusOK, EpochStatusResponse{
		Epoch:           epoch,
		RewardsPerEpoch: p.GetRewardsPerEpoch(epoch).String(),
		TotalPoints:     p.TotalPoints(epoch).String(),
	})
}

func (rs *RpcServer) handlePendingReward(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	epoch, err := epochFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed epoch"})
		return
	}

	user := common.HexToAddress(mux.Vars(r)["user"])
	writeJSON(w, http.StatusOK, ClaimResponse{Amount: p.PendingReward(user, epoch).String()})
}

func (rs *RpcServer) handleProofWindow(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	epoch, err := epochFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed epoch"})
		return
	}

	user := common.HexToAddress(mux.Vars(r)["user"])
	start, end := p.GetProofTimeInterval(epoch, user)
	writeJSON(w, http.StatusOK, ProofWindowResponse{Start: start.Unix(), End: end.Unix()})
}

func (rs *RpcServer) handlePromoterContribution(w http.ResponseWriter, r *http.Request) {
	rs.handleContribution(w, r, (*pool.Pool).GetPromoterEpochContribution)
}

func (rs *RpcServer) handleOracleContribution(w http.ResponseWriter, r *http.Request) {
	rs.handleContribution(w, r, (*pool.Pool).GetOracleEpochContribution)
}

func (rs *RpcServer) handleContribution(
	w http.ResponseWriter,
	r *http.Request,
	get func(*pool.Pool, common.Address, uint64) *big.Int,
) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	epoch, err := epochFromRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed epoch"})
		return
	}

	party := common.HexToAddress(mux.Vars(r)["party"])
	writeJSON(w, http.StatusOK, ClaimResponse{Amount: get(p, party, epoch).String()})
}

func (rs *RpcServer) handleUserPoints(w http.ResponseWriter, r *http.Request) {
	p, err := rs.poolFromRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user := common.HexToAddress(mux.Vars(r)["user"])
	writeJSON(w, http.StatusOK, ClaimResponse{Amount: p.UserTotalPoints(user).String()})
}
