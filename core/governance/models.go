package governance

import (
	"time"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// Proposal types
const (
	TypeTreasurySpend   ProposalType = "TREASURY_SPEND"
	TypeParameterChange ProposalType = "PARAMETER_CHANGE"
	TypeSignal          ProposalType = "SIGNAL"
)

type ProposalType string

// Voting strategies
const (
	SimpleMajority Strategy = "SIMPLE_MAJORITY"
	Supermajority  Strategy = "SUPERMAJORITY"
	Quadratic      Strategy = "QUADRATIC"
	Conviction     Strategy = "CONVICTION"
)

type Strategy string

// Proposal statuses
const (
	StatusActive        Status = "ACTIVE"
	StatusQuorumReached Status = "QUORUM_REACHED"
	StatusPassed        Status = "PASSED"
	StatusFailed        Status = "FAILED"
	StatusExpired       Status = "EXPIRED"
	StatusExecuted      Status = "EXECUTED"
)

type Status string

var transitions = map[Status][]Status{
	StatusActive:        {StatusQuorumReached, StatusPassed, StatusFailed, StatusExpired},
	StatusQuorumReached: {StatusPassed, StatusFailed, StatusExpired},
	StatusPassed:        {StatusExecuted},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Voting reports whether ballots are still accepted in this status.
func (s Status) Voting() bool {
	return s == StatusActive || s == StatusQuorumReached
}

// Vote choices
const (
	ChoiceFor     Choice = "FOR"
	ChoiceAgainst Choice = "AGAINST"
	ChoiceAbstain Choice = "ABSTAIN"
)

type Choice string

// Treasury transaction directions
const (
	Inflow  Direction = "INFLOW"
	Outflow Direction = "OUTFLOW"
)

type Direction string

var (
	// errors
	ErrProposalNotFound     = core.NewError(core.KindNotFound, "proposal not found")
	ErrDelegationNotFound   = core.NewError(core.KindNotFound, "delegation not found")
	ErrInvalidTransition    = core.NewError(core.KindInvalidState, "proposal cannot move to the requested status")
	ErrVotingClosed         = core.NewError(core.KindInvalidState, "voting is closed")
	ErrVotingOpen           = core.NewError(core.KindInvalidState, "voting period has not ended")
	ErrTimelocked           = core.NewError(core.KindInvalidState, "execution timelock has not elapsed")
	ErrAlreadyVoted         = core.NewError(core.KindConflict, "voter already voted on this proposal")
	ErrVoiceDelegated       = core.NewError(core.KindConflict, "voice was already cast by a delegate")
	ErrDelegationExists     = core.NewError(core.KindConflict, "an active delegation to this delegate already exists")
	ErrSelfDelegation       = core.NewError(core.KindValidation, "cannot delegate to oneself")
	ErrDelegationCycle      = core.NewError(core.KindValidation, "delegation would create a cycle")
	ErrNotDelegator         = core.NewError(core.KindValidation, "only the delegator may revoke a delegation")
	ErrDelegationInactive   = core.NewError(core.KindInvalidState, "delegation is not active")
	ErrInsufficientTreasury = core.NewError(core.KindInsufficientTreasury, "DAO treasury cannot cover the amount")
)

type Proposal struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"tenant_id"`
	ProposerID        string            `json:"proposer_id"`
	Type              ProposalType      `json:"type"`
	Strategy          Strategy          `json:"strategy"`
	Title             string            `json:"title"`
	Description       string            `json:"description,omitempty"`
	VotesFor          int64             `json:"votes_for"`
	VotesAgainst      int64             `json:"votes_against"`
	VotesAbstain      int64             `json:"votes_abstain"`
	TotalVoters       int64             `json:"total_voters"`
	QuorumRequired    int64             `json:"quorum_required"`
	Status            Status            `json:"status"`
	VotingPeriodHours int               `json:"voting_period_hours"`
	VotingEndsAt      time.Time         `json:"voting_ends_at"`
	FinalisedAt       time.Time         `json:"finalised_at"`
	ExecutionAt       time.Time         `json:"execution_at"`
	ExecutedAt        time.Time         `json:"executed_at"`
	SpendCurrency     ledger.Currency   `json:"spend_currency,omitempty"`
	SpendAmount       int64             `json:"spend_amount,omitempty"`
	Recipient         string            `json:"recipient,omitempty"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
}

func (p Proposal) Total() int64 {
	return p.VotesFor + p.VotesAgainst + p.VotesAbstain
}

func (p *Proposal) transition(next Status) error {
	if !p.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	p.Status = next
	return nil
}

// ProposalInput contains information needed to open a proposal.
type ProposalInput struct {
	TenantID          string            `json:"tenant_id" validate:"notblank"`
	ProposerID        string            `json:"proposer_id" validate:"notblank"`
	Type              ProposalType      `json:"type" validate:"oneof=TREASURY_SPEND PARAMETER_CHANGE SIGNAL"`
	Strategy          Strategy          `json:"strategy" validate:"oneof=SIMPLE_MAJORITY SUPERMAJORITY QUADRATIC CONVICTION"`
	Title             string            `json:"title" validate:"notblank,max=200"`
	Description       string            `json:"description"`
	VotingPeriodHours int               `json:"voting_period_hours" validate:"min=1"`
	SpendCurrency     ledger.Currency   `json:"spend_currency" validate:"omitempty,currency"`
	SpendAmount       int64             `json:"spend_amount" validate:"gte=0"`
	Recipient         string            `json:"recipient"`
	Parameters        map[string]string `json:"parameters"`
}

type Vote struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ProposalID     string    `json:"proposal_id"`
	VoterID        string    `json:"voter_id"`
	Choice         Choice    `json:"choice"`
	VoiceSpent     int64     `json:"voice_spent"`
	DelegatedVoice int64     `json:"delegated_voice"`
	Weight         int64     `json:"weight"`
	DelegationIDs  []string  `json:"delegation_ids,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	CastAt         time.Time `json:"cast_at"`
}

type VoteInput struct {
	TenantID    string `json:"tenant_id" validate:"notblank"`
	ProposalID  string `json:"proposal_id" validate:"notblank"`
	VoterID     string `json:"voter_id" validate:"notblank"`
	Choice      Choice `json:"choice" validate:"oneof=FOR AGAINST ABSTAIN"`
	VoiceAmount int64  `json:"voice_amount" validate:"gte=0"` // 0 means 1
	Reason      string `json:"reason" validate:"max=500"`
}

// Delegation lends voting power to a delegate for the given proposal types.
type Delegation struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	DelegatorID   string         `json:"delegator_id"`
	DelegateID    string         `json:"delegate_id"`
	ProposalTypes []ProposalType `json:"proposal_types"` // empty means every type
	VoiceAmount   int64          `json:"voice_amount"`
	ExpiresAt     time.Time      `json:"expires_at"`
	Active        bool           `json:"active"`
	RevokedAt     time.Time      `json:"revoked_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (d Delegation) Covers(t ProposalType) bool {
	if len(d.ProposalTypes) == 0 {
		return true
	}
	for _, pt := range d.ProposalTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Live reports whether the delegation is active and unexpired at now.
func (d Delegation) Live(now time.Time) bool {
	return d.Active && now.Before(d.ExpiresAt)
}

type DelegateInput struct {
	TenantID      string         `json:"tenant_id" validate:"notblank"`
	DelegatorID   string         `json:"delegator_id" validate:"notblank"`
	DelegateID    string         `json:"delegate_id" validate:"notblank"`
	ProposalTypes []ProposalType `json:"proposal_types" validate:"dive,oneof=TREASURY_SPEND PARAMETER_CHANGE SIGNAL"`
	VoiceAmount   int64          `json:"voice_amount" validate:"gt=0"`
	DurationDays  int            `json:"duration_days" validate:"min=1"`
}

type DelegationFilter struct {
	TenantID    string
	DelegatorID string // optional
	DelegateID  string // optional
	UserID      string // optional; either side
	ActiveOnly  bool
}

// DaoTreasury is the tenant-wide treasury of one currency.
type DaoTreasury struct {
	TenantID  string          `json:"tenant_id"`
	Currency  ledger.Currency `json:"currency"`
	Balance   int64           `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TreasuryTransaction struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Currency     ledger.Currency `json:"currency"`
	Direction    Direction       `json:"direction"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	ProposalID   string          `json:"proposal_id,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ProposalFilter struct {
	TenantID string
	Status   Status // optional
}
