package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core/staking"
)

type stakingRepository struct {
	db *DB
}

var _ staking.Repository = (*stakingRepository)(nil) // interface compliance check

func (repo stakingRepository) CreatePosition(ctx context.Context, pos staking.Position) (staking.Position, error) {
	pos.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.positions, key(pos.TenantID, pos.ID), row[staking.Position]{seq: tx.nextSeq(), val: pos})
		return nil
	})
	if err != nil {
		return staking.Position{}, err
	}
	return pos, nil
}

func (repo stakingRepository) GetPosition(ctx context.Context, tenantID, id string) (pos staking.Position, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.positions[key(tenantID, id)]
		if !ok {
			return staking.ErrPositionNotFound
		}
		pos = r.val
		return nil
	})
	return pos, err
}

func (repo stakingRepository) LockPosition(ctx context.Context, tenantID, id string) (staking.Position, error) {
	return repo.GetPosition(ctx, tenantID, id)
}

func (repo stakingRepository) UpdatePosition(ctx context.Context, pos staking.Position) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(pos.TenantID, pos.ID)
		r, ok := tx.db.positions[k]
		if !ok {
			return staking.ErrPositionNotFound
		}
		r.val = pos
		put(tx, tx.db.positions, k, r)
		return nil
	})
}

func (repo stakingRepository) QueryPositions(ctx context.Context, filter staking.PositionFilter) (positions []staking.Position, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		positions = sorted(tx.db.positions, func(p staking.Position) bool {
			return p.TenantID == filter.TenantID &&
				(filter.UserID == "" || p.UserID == filter.UserID) &&
				(filter.Status == "" || p.Status == filter.Status)
		})
		return nil
	})
	return positions, err
}
