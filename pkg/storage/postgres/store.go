package postgres

import (
	"github.com/liquid-miners/lm-engine/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore persists pool snapshots through gorm. Snapshots are written
// in one transaction per pool: a reader never observes a half-written pool.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewPostgresStore(db *gorm.DB, l *zap.Logger) (*PostgresStore, error) {
	store := &PostgresStore{
		db:     db,
		logger: l,
	}
	if err := store.migrate(); err != nil {
		return nil, errors.Wrap(err, "failed to migrate storage tables")
	}
	return store, nil
}

func (s *PostgresStore) migrate() error {
	return s.db.AutoMigrate(
		&storage.PoolRecord{},
		&storage.EpochRecord{},
		&storage.UserPositionRecord{},
		&storage.ContributionRecord{},
		&storage.NonceRecord{},
		&storage.ProofTimeRecord{},
		&storage.RoleRecord{},
	)
}

func upsertAll[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, 500).Error
}

func (s *PostgresStore) SavePoolSnapshot(snap *storage.PoolSnapshot) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&snap.Pool).Error; err != nil {
			return err
		}
		if err := upsertAll(tx, snap.Epochs); err != nil {
			return err
		}
		if err := upsertAll(tx, snap.Positions); err != nil {
			return err
		}
		if err := upsertAll(tx, snap.Contributions); err != nil {
			return err
		}
		if err := upsertAll(tx, snap.Nonces); err != nil {
			return err
		}
		return upsertAll(tx, snap.ProofTimes)
	})
}

func (s *PostgresStore) LoadPoolSnapshot(address string) (*storage.PoolSnapshot, error) {
	snap := &storage.PoolSnapshot{}

	res := s.db.Model(&storage.PoolRecord{}).Where("address = ?", address).First(&snap.Pool)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Errorf("pool %s not found in storage", address)
		}
		return nil, res.Error
	}

	queries := []struct {
		dst   interface{}
		model interface{}
	}{
		{&snap.Epochs, &storage.EpochRecord{}},
		{&snap.Positions, &storage.UserPositionRecord{}},
		{&snap.Contributions, &storage.ContributionRecord{}},
		{&snap.Nonces, &storage.NonceRecord{}},
		{&snap.ProofTimes, &storage.ProofTimeRecord{}},
	}
	for _, q := range queries {
		if err := s.db.Model(q.model).Where("pool_address = ?", address).Find(q.dst).Error; err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (s *PostgresStore) ListPoolAddresses() ([]string, error) {
	var addresses []string
	res := s.db.Model(&storage.PoolRecord{}).Order("address asc").Pluck("address", &addresses)
	if res.Error != nil {
		return nil, res.Error
	}
	return addresses, nil
}

func (s *PostgresStore) SaveRoles(roles []storage.RoleRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return upsertAll(tx, roles)
	})
}

func (s *PostgresStore) LoadRoles() ([]storage.RoleRecord, error) {
	var roles []storage.RoleRecord
	if err := s.db.Model(&storage.RoleRecord{}).Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}
