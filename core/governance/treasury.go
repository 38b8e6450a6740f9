package governance

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// FundTreasury deposits amount into the DAO treasury of the tenant.
func (svc *Service) FundTreasury(ctx context.Context, tenantID string, c ledger.Currency, amount int64, memo string) (TreasuryTransaction, error) {
	if amount <= 0 {
		return TreasuryTransaction{}, ledger.ErrInvalidAmount
	}
	if !c.Valid() {
		return TreasuryTransaction{}, core.NewValidationError(nil, core.FieldError{Field: "currency", Error: "unknown currency " + string(c)})
	}

	var txn TreasuryTransaction
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		txn, err = svc.move(ctx, tenantID, c, amount, "", core.CleanString(memo))
		return err
	})
	if err != nil {
		return TreasuryTransaction{}, err
	}

	svc.log.Info("DAO treasury funded", core.Fields{"tenant_id": tenantID, "currency": c, "amount": amount})
	return txn, nil
}

// Deposit satisfies the reward remainder sink.
func (svc *Service) Deposit(ctx context.Context, tenantID string, c ledger.Currency, amount int64, memo string) error {
	_, err := svc.FundTreasury(ctx, tenantID, c, amount, memo)
	return err
}

// move changes the DAO treasury by delta and logs the matching treasury transaction.
func (svc *Service) move(ctx context.Context, tenantID string, c ledger.Currency, delta int64, proposalID, memo string) (TreasuryTransaction, error) {
	t, err := svc.repo.LockTreasury(ctx, tenantID, c)
	if err != nil {
		return TreasuryTransaction{}, err
	}
	if t.Balance+delta < 0 {
		return TreasuryTransaction{}, ErrInsufficientTreasury
	}

	now := svc.clock()
	t.Balance += delta
	t.UpdatedAt = now
	if err = svc.repo.SaveTreasury(ctx, t); err != nil {
		return TreasuryTransaction{}, err
	}

	dir, amount := Inflow, delta
	if delta < 0 {
		dir, amount = Outflow, -delta
	}
	return svc.repo.AppendTreasuryTransaction(ctx, TreasuryTransaction{
		TenantID:     tenantID,
		Currency:     c,
		Direction:    dir,
		Amount:       amount,
		BalanceAfter: t.Balance,
		ProposalID:   proposalID,
		Memo:         memo,
		CreatedAt:    now,
	})
}

// GetTreasury returns the DAO treasury of one currency; an unfunded treasury is empty.
func (svc *Service) GetTreasury(ctx context.Context, tenantID string, c ledger.Currency) (DaoTreasury, error) {
	t, err := svc.repo.GetTreasury(ctx, tenantID, c)
	if errors.Is(err, core.ErrNotFound) {
		return DaoTreasury{TenantID: tenantID, Currency: c}, nil
	}
	return t, err
}

func (svc *Service) ListTreasuryTransactions(ctx context.Context, tenantID string, c ledger.Currency) ([]TreasuryTransaction, error) {
	return svc.repo.QueryTreasuryTransactions(ctx, tenantID, c)
}
