package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/trade"
)

type (
	tradeRepository struct {
		s *Store
	}

	tradeRow struct {
		ID              string      `db:"id"`
		TenantID        string      `db:"tenant_id"`
		ProposerTeamID  string      `db:"proposer_team_id"`
		RecipientTeamID string      `db:"recipient_team_id"`
		ProposedBy      string      `db:"proposed_by"`
		OfferCurrency   string      `db:"offer_currency"`
		OfferAmount     int64       `db:"offer_amount"`
		RequestCurrency string      `db:"request_currency"`
		RequestAmount   int64       `db:"request_amount"`
		Message         null.String `db:"message"`
		Status          string      `db:"status"`
		ExpiresAt       time.Time   `db:"expires_at"`
		RespondedBy     null.String `db:"responded_by"`
		RespondedAt     null.Time   `db:"responded_at"`
		CreatedAt       time.Time   `db:"created_at"`
	}
)

var _ trade.Repository = (*tradeRepository)(nil) // interface compliance check

func boilTrade(t trade.Trade) tradeRow {
	return tradeRow{
		ID:              t.ID,
		TenantID:        t.TenantID,
		ProposerTeamID:  t.ProposerTeamID,
		RecipientTeamID: t.RecipientTeamID,
		ProposedBy:      t.ProposedBy,
		OfferCurrency:   string(t.OfferCurrency),
		OfferAmount:     t.OfferAmount,
		RequestCurrency: string(t.RequestCurrency),
		RequestAmount:   t.RequestAmount,
		Message:         nullString(t.Message),
		Status:          string(t.Status),
		ExpiresAt:       t.ExpiresAt.UTC(),
		RespondedBy:     nullString(t.RespondedBy),
		RespondedAt:     nullTime(t.RespondedAt),
		CreatedAt:       t.CreatedAt.UTC(),
	}
}

func unboilTrade(r tradeRow) trade.Trade {
	return trade.Trade{
		ID:              r.ID,
		TenantID:        r.TenantID,
		ProposerTeamID:  r.ProposerTeamID,
		RecipientTeamID: r.RecipientTeamID,
		ProposedBy:      r.ProposedBy,
		OfferCurrency:   ledger.Currency(r.OfferCurrency),
		OfferAmount:     r.OfferAmount,
		RequestCurrency: ledger.Currency(r.RequestCurrency),
		RequestAmount:   r.RequestAmount,
		Message:         r.Message.String,
		Status:          trade.Status(r.Status),
		ExpiresAt:       utc(r.ExpiresAt),
		RespondedBy:     r.RespondedBy.String,
		RespondedAt:     utc(r.RespondedAt.Time),
		CreatedAt:       utc(r.CreatedAt),
	}
}

func (repo tradeRepository) CreateTrade(ctx context.Context, t trade.Trade) (trade.Trade, error) {
	t.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO trades
		(id, tenant_id, proposer_team_id, recipient_team_id, proposed_by, offer_currency, offer_amount,
		request_currency, request_amount, message, status, expires_at, responded_by, responded_at, created_at)
		VALUES (:id, :tenant_id, :proposer_team_id, :recipient_team_id, :proposed_by, :offer_currency, :offer_amount,
		:request_currency, :request_amount, :message, :status, :expires_at, :responded_by, :responded_at, :created_at)`,
		boilTrade(t))
	if err != nil {
		return trade.Trade{}, errors.Wrap(err, "inserting trade")
	}
	return t, nil
}

func (repo tradeRepository) getTrade(ctx context.Context, tenantID, id, suffix string) (trade.Trade, error) {
	var r tradeRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM trades WHERE tenant_id = ? AND id = ?"+suffix, tenantID, id); err != nil {
		return trade.Trade{}, trapNoRowsErr(err, trade.ErrTradeNotFound, "selecting trade")
	}
	return unboilTrade(r), nil
}

func (repo tradeRepository) GetTrade(ctx context.Context, tenantID, id string) (trade.Trade, error) {
	return repo.getTrade(ctx, tenantID, id, "")
}

func (repo tradeRepository) LockTrade(ctx context.Context, tenantID, id string) (trade.Trade, error) {
	return repo.getTrade(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo tradeRepository) UpdateTrade(ctx context.Context, t trade.Trade) error {
	res, err := repo.s.execNamed(ctx, `UPDATE trades SET
		status = :status, responded_by = :responded_by, responded_at = :responded_at
		WHERE tenant_id = :tenant_id AND id = :id`, boilTrade(t))
	if err != nil {
		return errors.Wrap(err, "updating trade")
	}
	return mustAffect(res, trade.ErrTradeNotFound)
}

func (repo tradeRepository) QueryTrades(ctx context.Context, filter trade.Filter) ([]trade.Trade, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.Status != "", "status = ?", string(filter.Status))
	args := f.args
	q := "SELECT * FROM trades" + f.String()
	if filter.TeamID != "" {
		q += " AND (proposer_team_id = ? OR recipient_team_id = ?)"
		args = append(args, filter.TeamID, filter.TeamID)
	}

	var rows []tradeRow
	if err := repo.s.query(ctx, &rows, q+" ORDER BY created_at, id", args...); err != nil {
		return nil, errors.Wrap(err, "selecting trades")
	}
	trades := make([]trade.Trade, 0, len(rows))
	for _, r := range rows {
		trades = append(trades, unboilTrade(r))
	}
	return trades, nil
}
