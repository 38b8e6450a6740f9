package reward

import (
	"time"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

// Source kinds
const (
	SourceCompetition SourceKind = "COMPETITION"
	SourceBounty      SourceKind = "BOUNTY"
)

type SourceKind string

var ErrAlreadyPaid = core.NewError(core.KindConflict, "rewards were already paid for this source")

// CompetitionResult is reported when a competition completes. Ranked lists the
// participants best first.
type CompetitionResult struct {
	TenantID      string          `json:"tenant_id" validate:"notblank"`
	CompetitionID string          `json:"competition_id" validate:"notblank"`
	WagerPool     int64           `json:"wager_pool" validate:"gte=0"`
	Currency      ledger.Currency `json:"currency" validate:"currency"`
	Ranked        []string        `json:"ranked" validate:"min=1,unique,dive,notblank"`
}

type BountyAward struct {
	TenantID  string          `json:"tenant_id" validate:"notblank"`
	BountyID  string          `json:"bounty_id" validate:"notblank"`
	Winners   []string        `json:"winners" validate:"min=1,unique,dive,notblank"`
	RunnerUps []string        `json:"runner_ups" validate:"unique,dive,notblank"`
	Currency  ledger.Currency `json:"currency" validate:"currency"`
	Amount    int64           `json:"amount" validate:"gt=0"`
}

type Credit struct {
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	Category string `json:"category"`
}

// Payout records that the rewards of a source were distributed.
type Payout struct {
	ID         string          `json:"id"`
	TenantID   string          `json:"tenant_id"`
	SourceKind SourceKind      `json:"source_kind"`
	SourceID   string          `json:"source_id"`
	Currency   ledger.Currency `json:"currency"`
	Credited   int64           `json:"credited"`
	Remainder  int64           `json:"remainder"`
	CreatedAt  time.Time       `json:"created_at"`
}

type Distribution struct {
	Payout  Payout   `json:"payout"`
	Credits []Credit `json:"credits"`
}
