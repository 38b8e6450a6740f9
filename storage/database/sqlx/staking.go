package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/staking"
)

type (
	stakingRepository struct {
		s *Store
	}

	positionRow struct {
		ID           string      `db:"id"`
		TenantID     string      `db:"tenant_id"`
		UserID       string      `db:"user_id"`
		PoolType     string      `db:"pool_type"`
		PoolID       null.String `db:"pool_id"`
		Currency     string      `db:"currency"`
		Amount       int64       `db:"amount"`
		LockedUntil  time.Time   `db:"locked_until"`
		YieldAccrued int64       `db:"yield_accrued"`
		AccruedOn    null.Time   `db:"accrued_on"`
		Status       string      `db:"status"`
		CreatedAt    time.Time   `db:"created_at"`
		CompletedAt  null.Time   `db:"completed_at"`
	}
)

var _ staking.Repository = (*stakingRepository)(nil) // interface compliance check

func boilPosition(p staking.Position) positionRow {
	return positionRow{
		ID:           p.ID,
		TenantID:     p.TenantID,
		UserID:       p.UserID,
		PoolType:     string(p.PoolType),
		PoolID:       nullString(p.PoolID),
		Currency:     string(p.Currency),
		Amount:       p.Amount,
		LockedUntil:  p.LockedUntil.UTC(),
		YieldAccrued: p.YieldAccrued,
		AccruedOn:    nullTime(p.AccruedOn),
		Status:       string(p.Status),
		CreatedAt:    p.CreatedAt.UTC(),
		CompletedAt:  nullTime(p.CompletedAt),
	}
}

func unboilPosition(r positionRow) staking.Position {
	return staking.Position{
		ID:           r.ID,
		TenantID:     r.TenantID,
		UserID:       r.UserID,
		PoolType:     staking.PoolType(r.PoolType),
		PoolID:       r.PoolID.String,
		Currency:     ledger.Currency(r.Currency),
		Amount:       r.Amount,
		LockedUntil:  utc(r.LockedUntil),
		YieldAccrued: r.YieldAccrued,
		AccruedOn:    utc(r.AccruedOn.Time),
		Status:       staking.Status(r.Status),
		CreatedAt:    utc(r.CreatedAt),
		CompletedAt:  utc(r.CompletedAt.Time),
	}
}

func (repo stakingRepository) CreatePosition(ctx context.Context, pos staking.Position) (staking.Position, error) {
	pos.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO stake_positions
		(id, tenant_id, user_id, pool_type, pool_id, currency, amount, locked_until, yield_accrued, accrued_on, status, created_at, completed_at)
		VALUES (:id, :tenant_id, :user_id, :pool_type, :pool_id, :currency, :amount, :locked_until, :yield_accrued, :accrued_on, :status, :created_at, :completed_at)`,
		boilPosition(pos))
	if err != nil {
		return staking.Position{}, errors.Wrap(err, "inserting position")
	}
	return pos, nil
}

func (repo stakingRepository) getPosition(ctx context.Context, tenantID, id, suffix string) (staking.Position, error) {
	var r positionRow
	q := "SELECT * FROM stake_positions WHERE tenant_id = ? AND id = ?" + suffix
	if err := repo.s.get(ctx, &r, q, tenantID, id); err != nil {
		return staking.Position{}, trapNoRowsErr(err, staking.ErrPositionNotFound, "selecting position")
	}
	return unboilPosition(r), nil
}

func (repo stakingRepository) GetPosition(ctx context.Context, tenantID, id string) (staking.Position, error) {
	return repo.getPosition(ctx, tenantID, id, "")
}

func (repo stakingRepository) LockPosition(ctx context.Context, tenantID, id string) (staking.Position, error) {
	return repo.getPosition(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo stakingRepository) UpdatePosition(ctx context.Context, pos staking.Position) error {
	res, err := repo.s.execNamed(ctx, `UPDATE stake_positions SET
		yield_accrued = :yield_accrued, accrued_on = :accrued_on, status = :status, completed_at = :completed_at
		WHERE tenant_id = :tenant_id AND id = :id`, boilPosition(pos))
	if err != nil {
		return errors.Wrap(err, "updating position")
	}
	return mustAffect(res, staking.ErrPositionNotFound)
}

func (repo stakingRepository) QueryPositions(ctx context.Context, filter staking.PositionFilter) ([]staking.Position, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.UserID != "", "user_id = ?", filter.UserID).
		andIf(filter.Status != "", "status = ?", string(filter.Status))

	var rows []positionRow
	if err := repo.s.query(ctx, &rows, "SELECT * FROM stake_positions"+f.String()+" ORDER BY created_at, id", f.args...); err != nil {
		return nil, errors.Wrap(err, "selecting positions")
	}
	positions := make([]staking.Position, 0, len(rows))
	for _, r := range rows {
		positions = append(positions, unboilPosition(r))
	}
	return positions, nil
}
