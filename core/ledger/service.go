package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-economy/core"
)

var (
	// errors
	ErrInvalidAmount       = core.NewValidationError(errors.New("amount must be greater than zero"), core.FieldError{Field: "amount", Error: "amount must be greater than zero"})
	ErrInsufficientBalance = core.NewError(core.KindInsufficientBalance, "insufficient balance")
	ErrNegativeBalance     = core.NewError(core.KindInsufficientBalance, "posting would drive a balance below zero")
	ErrLedgerDrift         = core.NewError(core.KindInvalidState, "balance does not match the transaction log")
)

type (
	Repository interface {
		// GetBalance returns core.ErrNotFound if the user never transacted.
		GetBalance(ctx context.Context, tenantID, userID string) (TokenBalance, error)
		// LockBalance returns the balance locked for update until the end of the unit of
		// work, creating a zero balance if the user never transacted.
		LockBalance(ctx context.Context, tenantID, userID string) (TokenBalance, error)
		// SaveBalance stores bal; bal.Version must be the locked version + 1.
		SaveBalance(ctx context.Context, bal TokenBalance) error
		AppendTransaction(ctx context.Context, tx Transaction) (Transaction, error)
		QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	}

	Service struct {
		tx    core.Transactor
		repo  Repository
		log   core.Logger
		clock core.Clock
	}
)

func NewService(tx core.Transactor, repo Repository, logger core.Logger, clock core.Clock) *Service {
	return &Service{tx: tx, repo: repo, log: logger, clock: clock}
}

func (svc *Service) Earn(ctx context.Context, in EarnInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return Transaction{}, err
	}
	return svc.Post(ctx, Posting{
		TenantID:       in.TenantID,
		UserID:         in.UserID,
		Currency:       in.Currency,
		Kind:           KindEarn,
		AvailableDelta: in.Amount,
		Category:       in.Category,
		Reference:      in.Reference,
	})
}

func (svc *Service) Spend(ctx context.Context, in SpendInput) (Transaction, error) {
	if in.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return Transaction{}, err
	}
	return svc.Post(ctx, Posting{
		TenantID:       in.TenantID,
		UserID:         in.UserID,
		Currency:       in.Currency,
		Kind:           KindSpend,
		AvailableDelta: -in.Amount,
		Category:       in.Category,
		Reference:      in.Reference,
	})
}

// Post applies p to the user's balance and appends the matching transaction in one unit of
// work, joining the caller's unit if ctx carries one.
func (svc *Service) Post(ctx context.Context, p Posting) (Transaction, error) {
	if !p.Currency.Valid() {
		return Transaction{}, core.NewValidationError(nil, core.FieldError{Field: "currency", Error: "unknown currency " + string(p.Currency)})
	}

	var txn Transaction
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		bal, err := svc.repo.LockBalance(ctx, p.TenantID, p.UserID)
		if err != nil {
			return err
		}

		now := svc.clock()
		pocket := bal.Pocket(p.Currency)
		before := pocket.Available
		if p.AvailableDelta < 0 && before < -p.AvailableDelta {
			return ErrInsufficientBalance
		}

		pocket.Available += p.AvailableDelta
		pocket.Staked += p.StakedDelta
		switch p.Kind {
		case KindEarn:
			pocket.LifetimeEarned += p.AvailableDelta
			bal.LastEarnedAt = now
		case KindSpend:
			bal.LastSpentAt = now
		}
		if !bal.valid() {
			return ErrNegativeBalance
		}
		bal.Version++
		bal.UpdatedAt = now

		if err = svc.repo.SaveBalance(ctx, bal); err != nil {
			return err
		}
		txn, err = svc.repo.AppendTransaction(ctx, Transaction{
			TenantID:      p.TenantID,
			UserID:        p.UserID,
			Sequence:      bal.Version,
			Currency:      p.Currency,
			Kind:          p.Kind,
			Amount:        p.AvailableDelta,
			BalanceBefore: before,
			BalanceAfter:  pocket.Available,
			Category:      p.Category,
			Reference:     p.Reference,
			Metadata:      p.Metadata,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

// GetBalance returns the balance of a user; a user who never transacted has a zero balance.
func (svc *Service) GetBalance(ctx context.Context, tenantID, userID string) (TokenBalance, error) {
	bal, err := svc.repo.GetBalance(ctx, tenantID, userID)
	if errors.Is(err, core.ErrNotFound) {
		return TokenBalance{TenantID: tenantID, UserID: userID}, nil
	}
	return bal, err
}

func (svc *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return svc.repo.QueryTransactions(ctx, filter)
}

// Reconcile replays the user's transaction log and compares it with the balance projection.
// It returns ErrLedgerDrift along with the report when they differ.
func (svc *Service) Reconcile(ctx context.Context, tenantID, userID string) (ReconcileReport, error) {
	report := ReconcileReport{
		TenantID:  tenantID,
		UserID:    userID,
		Replayed:  make(map[Currency]Pocket),
		Projected: make(map[Currency]Pocket),
	}
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		bal, err := svc.GetBalance(ctx, tenantID, userID)
		if err != nil {
			return err
		}
		txns, err := svc.repo.QueryTransactions(ctx, TransactionFilter{TenantID: tenantID, UserID: userID})
		if err != nil {
			return err
		}
		report.Transactions = len(txns)
		for _, c := range AllCurrencies {
			report.Projected[c] = *bal.Pocket(c)
		}
		for _, t := range txns {
			p := report.Replayed[t.Currency]
			p.Available += t.Amount
			switch t.Kind {
			case KindEarn:
				p.LifetimeEarned += t.Amount
			case KindStake:
				p.Staked -= t.Amount
			case KindUnstake:
				principal, err := strconv.ParseInt(t.Metadata[MetaPrincipal], 10, 64)
				if err != nil {
					return errors.Wrapf(err, "transaction %s: reading principal", t.ID)
				}
				p.Staked -= principal
			}
			report.Replayed[t.Currency] = p
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	if drifted := report.Drifted(); len(drifted) > 0 {
		svc.log.Warn("ledger drift detected", core.Fields{"tenant_id": tenantID, "user_id": userID, "currencies": drifted})
		return report, errors.Wrap(ErrLedgerDrift, fmt.Sprintf("%s/%s", tenantID, userID))
	}
	return report, nil
}

// Metadata keys of UNSTAKE transactions.
const (
	MetaPrincipal    = "principal"
	MetaPenalty      = "penalty"
	MetaYieldAccrued = "yield_accrued"
	MetaIsEarly      = "is_early"
	MetaPositionID   = "position_id"
)
