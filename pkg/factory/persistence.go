package factory

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/liquid-miners/lm-engine/internal/metrics/metricsTypes"
	"github.com/liquid-miners/lm-engine/pkg/pool"
	"github.com/liquid-miners/lm-engine/pkg/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SnapshotAll persists every pool's ledgers plus the factory's role grants.
func (f *PoolFactory) SnapshotAll(store storage.Store) error {
	for _, p := range f.Pools() {
		if err := store.SavePoolSnapshot(p.Snapshot()); err != nil {
			return errors.Wrapf(err, "failed to persist pool %s", p.Address().Hex())
		}
		f.sink.Gauge(metricsTypes.Metric_Gauge_CurrentEpoch, float64(p.GetCurrentEpoch()), []metricsTypes.MetricsLabel{
			{Name: "pool", Value: p.Address().Hex()},
		})
	}
	if err := store.SaveRoles(f.roleRecords()); err != nil {
		return errors.Wrap(err, "failed to persist roles")
	}
	return nil
}

func (f *PoolFactory) roleRecords() []storage.RoleRecord {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]storage.RoleRecord, 0)
	for role, holders := range f.roles {
		for addr, held := range holders {
			if held {
				out = append(out, storage.RoleRecord{
					Scope:   storage.RoleScope_Global,
					Role:    role.Hex(),
					Address: addr.Hex(),
				})
			}
		}
	}
	for poolAddr, byRole := range f.poolRoles {
		for role, holders := range byRole {
			for addr, held := range holders {
				if held {
					out = append(out, storage.RoleRecord{
						Scope:   poolAddr.Hex(),
						Role:    role.Hex(),
						Address: addr.Hex(),
					})
				}
			}
		}
	}
	return out
}

// RestoreAll rebuilds the factory's pools and role grants from the store.
// Intended for boot; the factory must not already hold pools.
func (f *PoolFactory) RestoreAll(store storage.Store) error {
	addresses, err := store.ListPoolAddresses()
	if err != nil {
		return errors.Wrap(err, "failed to list persisted pools")
	}

	for _, addr := range addresses {
		snap, err := store.LoadPoolSnapshot(addr)
		if err != nil {
			return errors.Wrapf(err, "failed to load pool %s", addr)
		}
		if err := f.restorePool(snap); err != nil {
			return err
		}
	}

	roles, err := store.LoadRoles()
	if err != nil {
		return errors.Wrap(err, "failed to load roles")
	}
	f.restoreRoles(roles)

	f.logger.Sugar().Infow("Restored pools from storage",
		zap.Int("pools", len(addresses)),
		zap.Int("roleGrants", len(roles)),
	)
	return nil
}

func (f *PoolFactory) restorePool(snap *storage.PoolSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	poolAddr := common.HexToAddress(snap.Pool.Address)
	p, err := pool.NewPoolFromSnapshot(
		snap,
		f.verifier,
		&poolAuthorizer{factory: f, poolAddr: poolAddr},
		f.bank,
		f.Address,
		f.logger,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to rebuild pool %s", snap.Pool.Address)
	}

	f.pools[poolAddr] = p
	if snap.Pool.Exchange != "" {
		f.poolsByKey[poolKey{
			exchange: snap.Pool.Exchange,
			tokenA:   snap.Pool.PairTokenA,
			tokenB:   snap.Pool.PairTokenB,
			chainId:  snap.Pool.ChainId,
		}] = poolAddr
	}
	return nil
}

func (f *PoolFactory) restoreRoles(records []storage.RoleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range records {
		role := common.HexToHash(rec.Role)
		addr := common.HexToAddress(rec.Address)

		if rec.Scope == storage.RoleScope_Global {
			f.grantRoleLocked(role, addr)
			continue
		}

		poolAddr := common.HexToAddress(rec.Scope)
		byRole, ok := f.poolRoles[poolAddr]
		if !ok {
			byRole = make(map[common.Hash]map[common.Address]bool)
			f.poolRoles[poolAddr] = byRole
		}
		holders, ok := byRole[role]
		if !ok {
			holders = make(map[common.Address]bool)
			byRole[role] = holders
		}
		holders[addr] = true
	}
}
