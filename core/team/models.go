package team

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// Roles
const (
	RoleCaptain     Role = "CAPTAIN"
	RoleViceCaptain Role = "VICE_CAPTAIN"
	RoleMember      Role = "MEMBER"
	RoleCoach       Role = "COACH"
)

type Role string

// Officer reports whether the role may act on behalf of the team.
func (r Role) Officer() bool {
	return r == RoleCaptain || r == RoleViceCaptain
}

// successionRank orders the candidates to replace a leaving captain.
func (r Role) successionRank() int {
	switch r {
	case RoleViceCaptain:
		return 0
	case RoleMember:
		return 1
	case RoleCoach:
		return 2
	}
	return 3
}

var (
	// errors
	ErrTeamNotFound         = core.NewError(core.KindNotFound, "team not found")
	ErrNotMember            = core.NewError(core.KindNotFound, "user is not a member of the team")
	ErrAlreadyMember        = core.NewError(core.KindConflict, "user already belongs to a team")
	ErrTeamFull             = core.NewError(core.KindInvalidState, "team is full")
	ErrNotOfficer           = core.NewError(core.KindValidation, "only the captain or a vice captain may act for the team")
	ErrInsufficientTreasury = core.NewError(core.KindInsufficientTreasury, "team treasury cannot cover the amount")
	ErrUnpooledCurrency     = core.NewValidationError(nil, core.FieldError{Field: "currency", Error: "currency must be one of SPARKS or GEMS"})
)

type Team struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	CaptainID      string    `json:"captain_id"`
	TreasurySparks int64     `json:"treasury_sparks"`
	TreasuryGems   int64     `json:"treasury_gems"`
	MemberCount    int       `json:"member_count"`
	MaxMembers     int       `json:"max_members"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (t Team) Treasury(c ledger.Currency) int64 {
	switch c {
	case ledger.Sparks:
		return t.TreasurySparks
	case ledger.Gems:
		return t.TreasuryGems
	}
	return 0
}

// Adjust changes the treasury of currency c by delta.
func (t *Team) Adjust(c ledger.Currency, delta int64) error {
	var field *int64
	switch c {
	case ledger.Sparks:
		field = &t.TreasurySparks
	case ledger.Gems:
		field = &t.TreasuryGems
	default:
		return ErrUnpooledCurrency
	}
	if *field+delta < 0 {
		return ErrInsufficientTreasury
	}
	*field += delta
	return nil
}

// Treasury is the read model exposed to callers.
type Treasury struct {
	TeamID      string `json:"team_id"`
	Sparks      int64  `json:"sparks"`
	Gems        int64  `json:"gems"`
	MemberCount int    `json:"member_count"`
}

type Member struct {
	TenantID          string    `json:"tenant_id"`
	TeamID            string    `json:"team_id"`
	UserID            string    `json:"user_id"`
	Role              Role      `json:"role"`
	ContributedSparks int64     `json:"contributed_sparks"`
	ContributedGems   int64     `json:"contributed_gems"`
	JoinedAt          time.Time `json:"joined_at"`
}

func (m *Member) addContribution(c ledger.Currency, amount int64) {
	switch c {
	case ledger.Sparks:
		m.ContributedSparks += amount
	case ledger.Gems:
		m.ContributedGems += amount
	}
}

// NewTeam contains information needed to create a team.
type NewTeam struct {
	TenantID   string `json:"tenant_id" validate:"notblank"`
	Name       string `json:"name" validate:"notblank,max=80"`
	CaptainID  string `json:"captain_id" validate:"notblank"`
	MaxMembers int    `json:"max_members" validate:"gte=0"` // 0 means the tenant default
}

type NewMember struct {
	TenantID string `json:"tenant_id" validate:"notblank"`
	TeamID   string `json:"team_id" validate:"notblank"`
	UserID   string `json:"user_id" validate:"notblank"`
	Role     Role   `json:"role" validate:"oneof=VICE_CAPTAIN MEMBER COACH"`
}

type ContributeInput struct {
	TenantID string          `json:"tenant_id" validate:"notblank"`
	TeamID   string          `json:"team_id" validate:"notblank"`
	UserID   string          `json:"user_id" validate:"notblank"`
	Currency ledger.Currency `json:"currency" validate:"pooled_currency"`
	Amount   int64           `json:"amount" validate:"gt=0"`
}

// Treasury vote statuses
const (
	VoteOpen     VoteStatus = "OPEN"
	VotePassed   VoteStatus = "PASSED"
	VoteRejected VoteStatus = "REJECTED"
)

type VoteStatus string

// Resolution notes
const (
	ResolutionApproved      = "approved"
	ResolutionDenied        = "denied"
	ResolutionExpired       = "expired"
	ResolutionShortTreasury = "treasury could not cover the amount"
)

// TreasuryVote is a team-internal approval of a treasury spend.
type TreasuryVote struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	TeamID           string          `json:"team_id"`
	ProposedBy       string          `json:"proposed_by"`
	Currency         ledger.Currency `json:"currency"`
	Amount           int64           `json:"amount"`
	Purpose          string          `json:"purpose"`
	VotesFor         int             `json:"votes_for"`
	VotesAgainst     int             `json:"votes_against"`
	TotalVoters      int             `json:"total_voters"`
	RequiredApproval decimal.Decimal `json:"required_approval"`
	Status           VoteStatus      `json:"status"`
	Resolution       string          `json:"resolution,omitempty"`
	ExpiresAt        time.Time       `json:"expires_at"`
	ResolvedAt       time.Time       `json:"resolved_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (v TreasuryVote) Expired(now time.Time) bool {
	return v.Status == VoteOpen && now.After(v.ExpiresAt)
}

// Effective returns the vote as seen at now: an open vote past its expiry is rejected.
func (v TreasuryVote) Effective(now time.Time) TreasuryVote {
	if v.Expired(now) {
		v.Status = VoteRejected
		v.Resolution = ResolutionExpired
		v.ResolvedAt = v.ExpiresAt
	}
	return v
}

type ProposeSpendInput struct {
	TenantID   string          `json:"tenant_id" validate:"notblank"`
	TeamID     string          `json:"team_id" validate:"notblank"`
	ProposedBy string          `json:"proposed_by" validate:"notblank"`
	Currency   ledger.Currency `json:"currency" validate:"pooled_currency"`
	Amount     int64           `json:"amount" validate:"gt=0"`
	Purpose    string          `json:"purpose" validate:"notblank,max=500"`
}

// Ballot records that a member voted on a treasury vote.
type Ballot struct {
	TenantID string    `json:"tenant_id"`
	VoteID   string    `json:"vote_id"`
	VoterID  string    `json:"voter_id"`
	Approve  bool      `json:"approve"`
	CastAt   time.Time `json:"cast_at"`
}

type VoteFilter struct {
	TenantID string
	TeamID   string     // optional
	Status   VoteStatus // optional
}

// Challenge statuses
const (
	ChallengePending   ChallengeStatus = "PENDING"
	ChallengeAccepted  ChallengeStatus = "ACCEPTED"
	ChallengeDeclined  ChallengeStatus = "DECLINED"
	ChallengeExpired   ChallengeStatus = "EXPIRED"
	ChallengeCompleted ChallengeStatus = "COMPLETED"
)

type ChallengeStatus string

var challengeTransitions = map[ChallengeStatus][]ChallengeStatus{
	ChallengePending:  {ChallengeAccepted, ChallengeDeclined, ChallengeExpired},
	ChallengeAccepted: {ChallengeCompleted},
}

func (s ChallengeStatus) CanTransitionTo(next ChallengeStatus) bool {
	for _, st := range challengeTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Challenge is a wagered head-to-head contest between two teams. Wagers are escrowed in
// the pot until the challenge is resolved, declined or expired.
type Challenge struct {
	ID               string          `json:"id"`
	TenantID         string          `json:"tenant_id"`
	ChallengerTeamID string          `json:"challenger_team_id"`
	OpponentTeamID   string          `json:"opponent_team_id"`
	IssuedBy         string          `json:"issued_by"`
	Currency         ledger.Currency `json:"currency"`
	Wager            int64           `json:"wager"`
	Pot              int64           `json:"pot"`
	Status           ChallengeStatus `json:"status"`
	WinnerTeamID     string          `json:"winner_team_id,omitempty"`
	ExpiresAt        time.Time       `json:"expires_at"`
	RespondedAt      time.Time       `json:"responded_at"`
	ResolvedAt       time.Time       `json:"resolved_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (c Challenge) Expired(now time.Time) bool {
	return c.Status == ChallengePending && now.After(c.ExpiresAt)
}

func (c Challenge) Effective(now time.Time) Challenge {
	if c.Expired(now) {
		c.Status = ChallengeExpired
	}
	return c
}

type IssueChallengeInput struct {
	TenantID         string          `json:"tenant_id" validate:"notblank"`
	ChallengerTeamID string          `json:"challenger_team_id" validate:"notblank"`
	OpponentTeamID   string          `json:"opponent_team_id" validate:"notblank,nefield=ChallengerTeamID"`
	IssuedBy         string          `json:"issued_by" validate:"notblank"`
	Currency         ledger.Currency `json:"currency" validate:"pooled_currency"`
	Wager            int64           `json:"wager" validate:"gt=0"`
}

type ChallengeFilter struct {
	TenantID string
	TeamID   string          // optional; either side
	Status   ChallengeStatus // optional
}
