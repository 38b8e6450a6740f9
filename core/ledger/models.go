package ledger

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-economy/core"
)

// Currencies
const (
	Sparks Currency = "SPARKS"
	Gems   Currency = "GEMS"
	Voice  Currency = "VOICE" // weights governance votes
)

var AllCurrencies = []Currency{Sparks, Gems, Voice}

type Currency string

func (c Currency) Valid() bool {
	switch c {
	case Sparks, Gems, Voice:
		return true
	}
	return false
}

// Pooled reports whether the currency can be held in a team treasury.
func (c Currency) Pooled() bool {
	return c == Sparks || c == Gems
}

// Transaction kinds
const (
	KindEarn    Kind = "EARN"
	KindSpend   Kind = "SPEND"
	KindStake   Kind = "STAKE"
	KindUnstake Kind = "UNSTAKE"
)

type Kind string

// Categories used by the engine itself. Callers of Earn/Spend may use their own.
const (
	CategoryTeamTreasury      = "TEAM_TREASURY"
	CategoryStaking           = "STAKING"
	CategoryGovernanceVote    = "GOVERNANCE_VOTE"
	CategoryDaoGrant          = "DAO_GRANT"
	CategoryCompetitionReward = "COMPETITION_REWARD"
	CategoryBountyReward      = "BOUNTY_REWARD"
	CategoryBountyRunnerUp    = "BOUNTY_RUNNER_UP"
)

var (
	currencyTag  = "currency"
	currencyText = "{0} must be one of SPARKS, GEMS or VOICE"

	pooledCurrencyTag  = "pooled_currency"
	pooledCurrencyText = "{0} must be one of SPARKS or GEMS"
)

// register custom validators
func init() {
	core.RegisterValidation(currencyTag, currencyText, func(fl validator.FieldLevel) bool {
		return Currency(fl.Field().String()).Valid()
	})
	core.RegisterValidation(pooledCurrencyTag, pooledCurrencyText, func(fl validator.FieldLevel) bool {
		return Currency(fl.Field().String()).Pooled()
	})
}

// Pocket is the state of one currency within a TokenBalance.
type Pocket struct {
	Available      int64 `json:"available"`
	Staked         int64 `json:"staked"`
	LifetimeEarned int64 `json:"lifetime_earned"`
}

func (p Pocket) valid() bool {
	return p.Available >= 0 && p.Staked >= 0 && p.LifetimeEarned >= 0
}

// TokenBalance is the balance projection of a user. It is only ever changed together with
// the append of the Transaction that explains the change.
type TokenBalance struct {
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	Sparks       Pocket    `json:"sparks"`
	Gems         Pocket    `json:"gems"`
	Voice        Pocket    `json:"voice"`
	LastEarnedAt time.Time `json:"last_earned_at"` // UTC; zero if never
	LastSpentAt  time.Time `json:"last_spent_at"`  // UTC; zero if never
	Version      int64     `json:"version"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Pocket returns the pocket of currency c, or nil for an unknown currency.
func (b *TokenBalance) Pocket(c Currency) *Pocket {
	switch c {
	case Sparks:
		return &b.Sparks
	case Gems:
		return &b.Gems
	case Voice:
		return &b.Voice
	}
	return nil
}

func (b TokenBalance) Available(c Currency) int64 {
	if p := b.Pocket(c); p != nil {
		return p.Available
	}
	return 0
}

func (b TokenBalance) Staked(c Currency) int64 {
	if p := b.Pocket(c); p != nil {
		return p.Staked
	}
	return 0
}

func (b TokenBalance) valid() bool {
	return b.Sparks.valid() && b.Gems.valid() && b.Voice.valid()
}

// Transaction is an immutable ledger entry.
// BalanceBefore and BalanceAfter are the available balance of Currency around the entry.
type Transaction struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	UserID        string            `json:"user_id"`
	Sequence      int64             `json:"sequence"`
	Currency      Currency          `json:"currency"`
	Kind          Kind              `json:"kind"`
	Amount        int64             `json:"amount"`
	BalanceBefore int64             `json:"balance_before"`
	BalanceAfter  int64             `json:"balance_after"`
	Category      string            `json:"category"`
	Reference     string            `json:"reference,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// EarnInput contains information needed to credit a user.
type EarnInput struct {
	TenantID  string   `json:"tenant_id" validate:"notblank"`
	UserID    string   `json:"user_id" validate:"notblank"`
	Currency  Currency `json:"currency" validate:"currency"`
	Amount    int64    `json:"amount" validate:"gt=0"`
	Category  string   `json:"category" validate:"notblank"`
	Reference string   `json:"reference"`
}

// SpendInput contains information needed to debit a user.
type SpendInput struct {
	TenantID  string   `json:"tenant_id" validate:"notblank"`
	UserID    string   `json:"user_id" validate:"notblank"`
	Currency  Currency `json:"currency" validate:"currency"`
	Amount    int64    `json:"amount" validate:"gt=0"`
	Category  string   `json:"category" validate:"notblank"`
	Reference string   `json:"reference"`
}

// Posting is a balance mutation together with the transaction explaining it.
// AvailableDelta is recorded as the transaction amount.
type Posting struct {
	TenantID       string
	UserID         string
	Currency       Currency
	Kind           Kind
	AvailableDelta int64
	StakedDelta    int64
	Category       string
	Reference      string
	Metadata       map[string]string
}

type TransactionFilter struct {
	TenantID string
	UserID   string
	Currency Currency // optional
	Kind     Kind     // optional
	Limit    int      // optional; 0 means all
}

// ReconcileReport compares the balance projection with the replayed transaction log.
type ReconcileReport struct {
	TenantID     string              `json:"tenant_id"`
	UserID       string              `json:"user_id"`
	Transactions int                 `json:"transactions"`
	Replayed     map[Currency]Pocket `json:"replayed"`
	Projected    map[Currency]Pocket `json:"projected"`
}

func (r ReconcileReport) Drifted() []Currency {
	var drifted []Currency
	for _, c := range AllCurrencies {
		rp, pp := r.Replayed[c], r.Projected[c]
		if rp.Available != pp.Available || rp.Staked != pp.Staked {
			drifted = append(drifted, c)
		}
	}
	return drifted
}
