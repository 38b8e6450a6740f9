package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

type ledgerRepository struct {
	db *DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func (repo ledgerRepository) GetBalance(ctx context.Context, tenantID, userID string) (bal ledger.TokenBalance, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		var ok bool
		if bal, ok = tx.db.balances[key(tenantID, userID)]; !ok {
			return core.ErrNotFound
		}
		return nil
	})
	return bal, err
}

func (repo ledgerRepository) LockBalance(ctx context.Context, tenantID, userID string) (bal ledger.TokenBalance, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		k := key(tenantID, userID)
		var ok bool
		if bal, ok = tx.db.balances[k]; !ok {
			bal = ledger.TokenBalance{TenantID: tenantID, UserID: userID}
			put(tx, tx.db.balances, k, bal)
		}
		return nil
	})
	return bal, err
}

func (repo ledgerRepository) SaveBalance(ctx context.Context, bal ledger.TokenBalance) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(bal.TenantID, bal.UserID)
		if cur := tx.db.balances[k]; cur.Version != bal.Version-1 {
			return core.ErrConflict
		}
		put(tx, tx.db.balances, k, bal)
		return nil
	})
}

func (repo ledgerRepository) AppendTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	t.ID = uuid.New().String()
	t.Metadata = cloneMap(t.Metadata)
	err := repo.db.view(ctx, func(tx *txn) error {
		appendTo(tx, &tx.db.transactions, t)
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

func (repo ledgerRepository) QueryTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	var txns []ledger.Transaction
	err := repo.db.view(ctx, func(tx *txn) error {
		for _, t := range tx.db.transactions {
			if t.TenantID != filter.TenantID || (filter.UserID != "" && t.UserID != filter.UserID) {
				continue
			}
			if (filter.Currency != "" && t.Currency != filter.Currency) || (filter.Kind != "" && t.Kind != filter.Kind) {
				continue
			}
			t.Metadata = cloneMap(t.Metadata)
			txns = append(txns, t)
			if filter.Limit > 0 && len(txns) == filter.Limit {
				break
			}
		}
		return nil
	})
	return txns, err
}
