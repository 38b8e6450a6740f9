package sqlxrepos

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

type (
	ledgerRepository struct {
		s *Store
	}

	balanceRow struct {
		TenantID             string    `db:"tenant_id"`
		UserID               string    `db:"user_id"`
		SparksAvailable      int64     `db:"sparks_available"`
		SparksStaked         int64     `db:"sparks_staked"`
		SparksLifetimeEarned int64     `db:"sparks_lifetime_earned"`
		GemsAvailable        int64     `db:"gems_available"`
		GemsStaked           int64     `db:"gems_staked"`
		GemsLifetimeEarned   int64     `db:"gems_lifetime_earned"`
		VoiceAvailable       int64     `db:"voice_available"`
		VoiceStaked          int64     `db:"voice_staked"`
		VoiceLifetimeEarned  int64     `db:"voice_lifetime_earned"`
		LastEarnedAt         null.Time `db:"last_earned_at"`
		LastSpentAt          null.Time `db:"last_spent_at"`
		Version              int64     `db:"version"`
		UpdatedAt            null.Time `db:"updated_at"`
	}

	transactionRow struct {
		ID            string      `db:"id"`
		TenantID      string      `db:"tenant_id"`
		UserID        string      `db:"user_id"`
		Sequence      int64       `db:"sequence"`
		Currency      string      `db:"currency"`
		Kind          string      `db:"kind"`
		Amount        int64       `db:"amount"`
		BalanceBefore int64       `db:"balance_before"`
		BalanceAfter  int64       `db:"balance_after"`
		Category      string      `db:"category"`
		Reference     null.String `db:"reference"`
		Metadata      null.String `db:"metadata"`
		CreatedAt     time.Time   `db:"created_at"`
	}
)

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func boilBalance(bal ledger.TokenBalance) balanceRow {
	return balanceRow{
		TenantID:             bal.TenantID,
		UserID:               bal.UserID,
		SparksAvailable:      bal.Sparks.Available,
		SparksStaked:         bal.Sparks.Staked,
		SparksLifetimeEarned: bal.Sparks.LifetimeEarned,
		GemsAvailable:        bal.Gems.Available,
		GemsStaked:           bal.Gems.Staked,
		GemsLifetimeEarned:   bal.Gems.LifetimeEarned,
		VoiceAvailable:       bal.Voice.Available,
		VoiceStaked:          bal.Voice.Staked,
		VoiceLifetimeEarned:  bal.Voice.LifetimeEarned,
		LastEarnedAt:         nullTime(bal.LastEarnedAt),
		LastSpentAt:          nullTime(bal.LastSpentAt),
		Version:              bal.Version,
		UpdatedAt:            nullTime(bal.UpdatedAt),
	}
}

func unboilBalance(r balanceRow) ledger.TokenBalance {
	return ledger.TokenBalance{
		TenantID:     r.TenantID,
		UserID:       r.UserID,
		Sparks:       ledger.Pocket{Available: r.SparksAvailable, Staked: r.SparksStaked, LifetimeEarned: r.SparksLifetimeEarned},
		Gems:         ledger.Pocket{Available: r.GemsAvailable, Staked: r.GemsStaked, LifetimeEarned: r.GemsLifetimeEarned},
		Voice:        ledger.Pocket{Available: r.VoiceAvailable, Staked: r.VoiceStaked, LifetimeEarned: r.VoiceLifetimeEarned},
		LastEarnedAt: utc(r.LastEarnedAt.Time),
		LastSpentAt:  utc(r.LastSpentAt.Time),
		Version:      r.Version,
		UpdatedAt:    utc(r.UpdatedAt.Time),
	}
}

func unboilTransaction(r transactionRow) (ledger.Transaction, error) {
	t := ledger.Transaction{
		ID:            r.ID,
		TenantID:      r.TenantID,
		UserID:        r.UserID,
		Sequence:      r.Sequence,
		Currency:      ledger.Currency(r.Currency),
		Kind:          ledger.Kind(r.Kind),
		Amount:        r.Amount,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		Category:      r.Category,
		Reference:     r.Reference.String,
		CreatedAt:     utc(r.CreatedAt),
	}
	if err := unmarshalJSON(r.Metadata, &t.Metadata); err != nil {
		return ledger.Transaction{}, err
	}
	return t, nil
}

const balanceColumns = `tenant_id, user_id,
	sparks_available, sparks_staked, sparks_lifetime_earned,
	gems_available, gems_staked, gems_lifetime_earned,
	voice_available, voice_staked, voice_lifetime_earned,
	last_earned_at, last_spent_at, version, updated_at`

func (repo ledgerRepository) GetBalance(ctx context.Context, tenantID, userID string) (ledger.TokenBalance, error) {
	var r balanceRow
	q := "SELECT " + balanceColumns + " FROM token_balances WHERE tenant_id = ? AND user_id = ?"
	if err := repo.s.get(ctx, &r, q, tenantID, userID); err != nil {
		return ledger.TokenBalance{}, trapNoRowsErr(err, core.ErrNotFound, "selecting balance")
	}
	return unboilBalance(r), nil
}

func (repo ledgerRepository) LockBalance(ctx context.Context, tenantID, userID string) (ledger.TokenBalance, error) {
	q := "INSERT INTO token_balances (tenant_id, user_id) VALUES (?, ?) ON CONFLICT (tenant_id, user_id) DO NOTHING"
	if _, err := repo.s.exec(ctx, q, tenantID, userID); err != nil {
		return ledger.TokenBalance{}, errors.Wrap(err, "inserting balance")
	}

	var r balanceRow
	q = "SELECT " + balanceColumns + " FROM token_balances WHERE tenant_id = ? AND user_id = ?" + repo.s.forUpdate()
	if err := repo.s.get(ctx, &r, q, tenantID, userID); err != nil {
		return ledger.TokenBalance{}, errors.Wrap(err, "locking balance")
	}
	return unboilBalance(r), nil
}

func (repo ledgerRepository) SaveBalance(ctx context.Context, bal ledger.TokenBalance) error {
	res, err := repo.s.execNamed(ctx, `UPDATE token_balances SET
		sparks_available = :sparks_available, sparks_staked = :sparks_staked, sparks_lifetime_earned = :sparks_lifetime_earned,
		gems_available = :gems_available, gems_staked = :gems_staked, gems_lifetime_earned = :gems_lifetime_earned,
		voice_available = :voice_available, voice_staked = :voice_staked, voice_lifetime_earned = :voice_lifetime_earned,
		last_earned_at = :last_earned_at, last_spent_at = :last_spent_at,
		version = :version, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND user_id = :user_id AND version = :version - 1`, boilBalance(bal))
	if err != nil {
		return errors.Wrap(err, "updating balance")
	}
	return mustAffect(res, core.ErrConflict)
}

func (repo ledgerRepository) AppendTransaction(ctx context.Context, t ledger.Transaction) (ledger.Transaction, error) {
	t.ID = uuid.New().String()
	meta, err := marshalJSON(t.Metadata, len(t.Metadata) == 0)
	if err != nil {
		return ledger.Transaction{}, err
	}

	r := transactionRow{
		ID:            t.ID,
		TenantID:      t.TenantID,
		UserID:        t.UserID,
		Sequence:      t.Sequence,
		Currency:      string(t.Currency),
		Kind:          string(t.Kind),
		Amount:        t.Amount,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Category:      t.Category,
		Reference:     nullString(t.Reference),
		Metadata:      meta,
		CreatedAt:     t.CreatedAt.UTC(),
	}
	_, err = repo.s.execNamed(ctx, `INSERT INTO token_transactions
		(id, tenant_id, user_id, sequence, currency, kind, amount, balance_before, balance_after, category, reference, metadata, created_at)
		VALUES (:id, :tenant_id, :user_id, :sequence, :currency, :kind, :amount, :balance_before, :balance_after, :category, :reference, :metadata, :created_at)`, r)
	if err != nil {
		return ledger.Transaction{}, trapUniqueErr(err, core.ErrConflict, "inserting transaction")
	}
	return t, nil
}

func (repo ledgerRepository) QueryTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.UserID != "", "user_id = ?", filter.UserID).
		andIf(filter.Currency != "", "currency = ?", string(filter.Currency)).
		andIf(filter.Kind != "", "kind = ?", string(filter.Kind))

	q := "SELECT * FROM token_transactions" + f.String() + " ORDER BY created_at, user_id, sequence"
	if filter.Limit > 0 {
		q += " LIMIT " + strconv.Itoa(filter.Limit)
	}

	var rows []transactionRow
	if err := repo.s.query(ctx, &rows, q, f.args...); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	txns := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		t, err := unboilTransaction(r)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}
