package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core/trade"
)

type tradeRepository struct {
	db *DB
}

var _ trade.Repository = (*tradeRepository)(nil) // interface compliance check

func (repo tradeRepository) CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	t.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.trades, key(t.TenantID, t.ID), row[trade.Trade]{seq: tx.nextSeq(), val: t})
		return nil
	})
	if err != nil {
		return trade.Trade{}, err
	}
	return t, nil
}

func (repo tradeRepository) GetTrade(ctx context.Context, tenantID, id string) (t trade.Trade, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.trades[key(tenantID, id)]
		if !ok {
			return trade.ErrTradeNotFound
		}
		t = r.val
		return nil
	})
	return t, err
}

func (repo tradeRepository) LockTrade(ctx context.Context, tenantID, id string) (trade.Trade, error) {
	return repo.GetTrade(ctx, tenantID, id)
}

func (repo tradeRepository) UpdateTrade(ctx context.Context, t trade.Trade) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(t.TenantID, t.ID)
		r, ok := tx.db.trades[k]
		if !ok {
			return trade.ErrTradeNotFound
		}
		r.val = t
		put(tx, tx.db.trades, k, r)
		return nil
	})
}

func (repo tradeRepository) QueryTrades(ctx context.Context, filter trade.Filter) (trades []trade.Trade, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		trades = sorted(tx.db.trades, func(t trade.Trade) bool {
			return t.TenantID == filter.TenantID &&
				(filter.TeamID == "" || t.ProposerTeamID == filter.TeamID || t.RecipientTeamID == filter.TeamID) &&
				(filter.Status == "" || t.Status == filter.Status)
		})
		return nil
	})
	return trades, err
}
