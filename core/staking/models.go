package staking

import (
	"time"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// Pool types
const (
	PoolSavings     PoolType = "SAVINGS"
	PoolTeam        PoolType = "TEAM"
	PoolCompetition PoolType = "COMPETITION"
	PoolGovernance  PoolType = "GOVERNANCE"
)

type PoolType string

// Position statuses
const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

type Status string

var transitions = map[Status][]Status{
	StatusActive:    {StatusCompleted},
	StatusCompleted: nil,
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

var ErrInvalidTransition = core.NewError(core.KindInvalidState, "stake position is not active")

// Position is a time-locked commitment of ledger funds.
type Position struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	UserID       string          `json:"user_id"`
	PoolType     PoolType        `json:"pool_type"`
	PoolID       string          `json:"pool_id,omitempty"`
	Currency     ledger.Currency `json:"currency"`
	Amount       int64           `json:"amount"`
	LockedUntil  time.Time       `json:"locked_until"`
	YieldAccrued int64           `json:"yield_accrued"`
	AccruedOn    time.Time       `json:"accrued_on"` // day of the last daily accrual
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  time.Time       `json:"completed_at"` // zero while active
}

func (p Position) IsEarly(now time.Time) bool {
	return now.Before(p.LockedUntil)
}

// transition moves p to next, or fails if the move is not allowed.
func (p *Position) transition(next Status, at time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	if next == StatusCompleted {
		p.CompletedAt = at
	}
	return nil
}

// StakeInput contains information needed to open a position.
type StakeInput struct {
	TenantID string          `json:"tenant_id" validate:"notblank"`
	UserID   string          `json:"user_id" validate:"notblank"`
	PoolType PoolType        `json:"pool_type" validate:"oneof=SAVINGS TEAM COMPETITION GOVERNANCE"`
	PoolID   string          `json:"pool_id"`
	Currency ledger.Currency `json:"currency" validate:"currency"`
	Amount   int64           `json:"amount" validate:"gt=0"`
	LockDays int             `json:"lock_days" validate:"min=1"`
}

// UnstakeResult describes how a position was redeemed.
type UnstakeResult struct {
	Position    Position           `json:"position"`
	Transaction ledger.Transaction `json:"transaction"`
	IsEarly     bool               `json:"is_early"`
	Penalty     int64              `json:"penalty"`
	Returned    int64              `json:"returned"`
}

type PositionFilter struct {
	TenantID string
	UserID   string // optional
	Status   Status // optional
}
