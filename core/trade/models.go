package trade

import (
	"time"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// Trade statuses
const (
	StatusProposed  Status = "PROPOSED"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
	StatusDeclined  Status = "DECLINED"
)

type Status string

var transitions = map[Status][]Status{
	StatusProposed: {StatusCompleted, StatusExpired, StatusCancelled, StatusDeclined},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

var (
	// errors
	ErrTradeNotFound         = core.NewError(core.KindNotFound, "trade not found")
	ErrNotProposed           = core.NewError(core.KindInvalidState, "trade is no longer proposed")
	ErrProposerInsufficient  = core.NewError(core.KindInsufficientTreasury, "proposer treasury cannot cover the offer")
	ErrRecipientInsufficient = core.NewError(core.KindInsufficientTreasury, "recipient treasury cannot cover the request")
)

// Trade is a bilateral swap between two team treasuries.
type Trade struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	ProposerTeamID  string          `json:"proposer_team_id"`
	RecipientTeamID string          `json:"recipient_team_id"`
	ProposedBy      string          `json:"proposed_by"`
	OfferCurrency   ledger.Currency `json:"offer_currency"`
	OfferAmount     int64           `json:"offer_amount"`
	RequestCurrency ledger.Currency `json:"request_currency"`
	RequestAmount   int64           `json:"request_amount"`
	Message         string          `json:"message,omitempty"`
	Status          Status          `json:"status"`
	ExpiresAt       time.Time       `json:"expires_at"`
	RespondedBy     string          `json:"responded_by,omitempty"`
	RespondedAt     time.Time       `json:"responded_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (t Trade) Expired(now time.Time) bool {
	return t.Status == StatusProposed && now.After(t.ExpiresAt)
}

// Effective returns the trade as seen at now: a proposed trade past its expiry is expired.
func (t Trade) Effective(now time.Time) Trade {
	if t.Expired(now) {
		t.Status = StatusExpired
	}
	return t
}

// ProposeInput contains information needed to propose a trade.
type ProposeInput struct {
	TenantID        string          `json:"tenant_id" validate:"notblank"`
	ProposerTeamID  string          `json:"proposer_team_id" validate:"notblank"`
	RecipientTeamID string          `json:"recipient_team_id" validate:"notblank,nefield=ProposerTeamID"`
	ProposedBy      string          `json:"proposed_by" validate:"notblank"`
	OfferCurrency   ledger.Currency `json:"offer_currency" validate:"pooled_currency"`
	OfferAmount     int64           `json:"offer_amount" validate:"gt=0"`
	RequestCurrency ledger.Currency `json:"request_currency" validate:"pooled_currency"`
	RequestAmount   int64           `json:"request_amount" validate:"gt=0"`
	Message         string          `json:"message" validate:"max=500"`
}

type Filter struct {
	TenantID string
	TeamID   string // optional; either side
	Status   Status // optional; stored status
}
