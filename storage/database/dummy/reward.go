package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core/reward"
)

type rewardRepository struct {
	db *DB
}

var _ reward.Repository = (*rewardRepository)(nil) // interface compliance check

func (repo rewardRepository) CreatePayout(ctx context.Context, p reward.Payout) (reward.Payout, error) {
	p.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		k := key(p.TenantID, string(p.SourceKind), p.SourceID)
		if _, ok := tx.db.payouts[k]; ok {
			return reward.ErrAlreadyPaid
		}
		put(tx, tx.db.payouts, k, row[reward.Payout]{seq: tx.nextSeq(), val: p})
		return nil
	})
	if err != nil {
		return reward.Payout{}, err
	}
	return p, nil
}

func (repo rewardRepository) QueryPayouts(ctx context.Context, tenantID string) (payouts []reward.Payout, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		payouts = sorted(tx.db.payouts, func(p reward.Payout) bool { return p.TenantID == tenantID })
		return nil
	})
	return payouts, err
}
