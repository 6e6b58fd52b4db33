package storage

import (
	"time"
)

// Record types persisted per pool. Big integers are stored as decimal
// strings; the engine's in-memory ledgers are the source of truth and these
// tables are written as snapshots.

type PoolRecord struct {
	Address     string `gorm:"primaryKey;column:address"`
	Exchange    string `gorm:"column:exchange"`
	PairTokenA  string `gorm:"column:pair_token_a"`
	PairTokenB  string `gorm:"column:pair_token_b"`
	ChainId     uint64 `gorm:"column:chain_id"`
	RewardToken string `gorm:"column:reward_token"`

	StartDate time.Time `gorm:"column:start_date"`

	FeePoolBps     uint64 `gorm:"column:fee_pool_bps"`
	FeePromoterBps uint64 `gorm:"column:fee_promoter_bps"`
	FeeOracleBps   uint64 `gorm:"column:fee_oracle_bps"`

	TotalRewardsFunded string `gorm:"column:total_rewards_funded"`
	PromotersBucket    string `gorm:"column:promoters_bucket"`
	OraclesBucket      string `gorm:"column:oracles_bucket"`
}

func (PoolRecord) TableName() string {
	return "pools"
}

type EpochRecord struct {
	PoolAddress string `gorm:"primaryKey;column:pool_address"`
	Epoch       uint64 `gorm:"primaryKey;column:epoch"`

	UserBudget     string `gorm:"column:user_budget"`
	PromoterBudget string `gorm:"column:promoter_budget"`
	OracleBudget   string `gorm:"column:oracle_budget"`

	TotalUserPoints     string `gorm:"column:total_user_points"`
	TotalPromoterPoints string `gorm:"column:total_promoter_points"`
	TotalOraclePoints   string `gorm:"column:total_oracle_points"`
}

func (EpochRecord) TableName() string {
	return "epoch_records"
}

type UserPositionRecord struct {
	PoolAddress string `gorm:"primaryKey;column:pool_address"`
	User        string `gorm:"primaryKey;column:user_address"`
	Epoch       uint64 `gorm:"primaryKey;column:epoch"`

	PointsAmount string `gorm:"column:points_amount"`
	RewardDebt   string `gorm:"column:reward_debt"`
}

func (UserPositionRecord) TableName() string {
	return "user_positions"
}

// ContributionKind distinguishes promoter and oracle attributions.
type ContributionKind string

const (
	ContributionKind_Promoter ContributionKind = "promoter"
	ContributionKind_Oracle   ContributionKind = "oracle"
)

type ContributionRecord struct {
	PoolAddress string           `gorm:"primaryKey;column:pool_address"`
	Party       string           `gorm:"primaryKey;column:party_address"`
	Epoch       uint64           `gorm:"primaryKey;column:epoch"`
	Kind        ContributionKind `gorm:"primaryKey;column:kind"`

	Points  string `gorm:"column:points"`
	Claimed bool   `gorm:"column:claimed"`
}

func (ContributionRecord) TableName() string {
	return "contributions"
}

type NonceRecord struct {
	PoolAddress string `gorm:"primaryKey;column:pool_address"`
	Nonce       string `gorm:"primaryKey;column:nonce"`
}

func (NonceRecord) TableName() string {
	return "spent_nonces"
}

type ProofTimeRecord struct {
	PoolAddress string `gorm:"primaryKey;column:pool_address"`
	User        string `gorm:"primaryKey;column:user_address"`

	LastProofTime time.Time `gorm:"column:last_proof_time"`
}

func (ProofTimeRecord) TableName() string {
	return "proof_times"
}

// RoleScope_Global marks a role grant that is not scoped to one pool.
const RoleScope_Global = "global"

type RoleRecord struct {
	Scope   string `gorm:"primaryKey;column:scope"`
	Role    string `gorm:"primaryKey;column:role"`
	Address string `gorm:"primaryKey;column:address"`
}

func (RoleRecord) TableName() string {
	return "roles"
}

// PoolSnapshot is the complete persisted state of one pool.
type PoolSnapshot struct {
	Pool          PoolRecord
	Epochs        []EpochRecord
	Positions     []UserPositionRecord
	Contributions []ContributionRecord
	Nonces        []NonceRecord
	ProofTimes    []ProofTimeRecord
}

// Store persists and recovers pool ledgers.
type Store interface {
	SavePoolSnapshot(snapshot *PoolSnapshot) error
	LoadPoolSnapshot(address string) (*PoolSnapshot, error)
	ListPoolAddresses() ([]string, error)

	SaveRoles(roles []RoleRecord) error
	LoadRoles() ([]RoleRecord, error)
}
