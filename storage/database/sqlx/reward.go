package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/reward"
)

type (
	rewardRepository struct {
		s *Store
	}

	payoutRow struct {
		ID         string    `db:"id"`
		TenantID   string    `db:"tenant_id"`
		SourceKind string    `db:"source_kind"`
		SourceID   string    `db:"source_id"`
		Currency   string    `db:"currency"`
		Credited   int64     `db:"credited"`
		Remainder  int64     `db:"remainder"`
		CreatedAt  time.Time `db:"created_at"`
	}
)

var _ reward.Repository = (*rewardRepository)(nil) // interface compliance check

func (repo rewardRepository) CreatePayout(ctx context.Context, p reward.Payout) (reward.Payout, error) {
	p.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO reward_payouts
		(id, tenant_id, source_kind, source_id, currency, credited, remainder, created_at)
		VALUES (:id, :tenant_id, :source_kind, :source_id, :currency, :credited, :remainder, :created_at)`,
		payoutRow{
			ID:         p.ID,
			TenantID:   p.TenantID,
			SourceKind: string(p.SourceKind),
			SourceID:   p.SourceID,
			Currency:   string(p.Currency),
			Credited:   p.Credited,
			Remainder:  p.Remainder,
			CreatedAt:  p.CreatedAt.UTC(),
		})
	if err != nil {
		return reward.Payout{}, trapUniqueErr(err, reward.ErrAlreadyPaid, "inserting payout")
	}
	return p, nil
}

func (repo rewardRepository) QueryPayouts(ctx context.Context, tenantID string) ([]reward.Payout, error) {
	var rows []payoutRow
	if err := repo.s.query(ctx, &rows, "SELECT * FROM reward_payouts WHERE tenant_id = ? ORDER BY created_at, id", tenantID); err != nil {
		return nil, errors.Wrap(err, "selecting payouts")
	}
	payouts := make([]reward.Payout, 0, len(rows))
	for _, r := range rows {
		payouts = append(payouts, reward.Payout{
			ID:         r.ID,
			TenantID:   r.TenantID,
			SourceKind: reward.SourceKind(r.SourceKind),
			SourceID:   r.SourceID,
			Currency:   ledger.Currency(r.Currency),
			Credited:   r.Credited,
			Remainder:  r.Remainder,
			CreatedAt:  utc(r.CreatedAt),
		})
	}
	return payouts, nil
}
