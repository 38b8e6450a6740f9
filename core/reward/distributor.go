package reward

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

type (
	Repository interface {
		// CreatePayout returns ErrAlreadyPaid if the source was already paid.
		CreatePayout(ctx context.Context, p Payout) (Payout, error)
		QueryPayouts(ctx context.Context, tenantID string) ([]Payout, error)
	}

	Earner interface {
		Earn(ctx context.Context, in ledger.EarnInput) (ledger.Transaction, error)
	}

	// RemainderSink receives what is left over after integer division of a reward.
	RemainderSink interface {
		Deposit(ctx context.Context, tenantID string, c ledger.Currency, amount int64, memo string) error
	}

	Distributor struct {
		tx       core.Transactor
		repo     Repository
		ledger   Earner
		sink     RemainderSink
		log      core.Logger
		clock    core.Clock
		policies *core.Policies
	}
)

func NewDistributor(tx core.Transactor, repo Repository, ledger Earner, sink RemainderSink, logger core.Logger, clock core.Clock, policies *core.Policies) *Distributor {
	return &Distributor{tx: tx, repo: repo, ledger: ledger, sink: sink, log: logger, clock: clock, policies: policies}
}

// CompetitionShares returns how many of n ranked participants win and the share of each.
func CompetitionShares(n int, pool int64, winnerRatio decimal.Decimal) (winners int, share int64) {
	if n <= 0 {
		return 0, 0
	}
	winners = int(decimal.NewFromInt(int64(n)).Mul(winnerRatio).Ceil().IntPart())
	if winners > n {
		winners = n
	}
	if winners < 1 {
		winners = 1
	}
	return winners, pool / int64(winners)
}

// BountyShares returns the share of each winner and of each runner-up.
func BountyShares(winners int, amount int64, runnerUpRatio decimal.Decimal) (winnerShare, runnerUpShare int64) {
	if winners <= 0 {
		return 0, 0
	}
	winnerShare = amount / int64(winners)
	runnerUpShare = decimal.NewFromInt(winnerShare).Mul(runnerUpRatio).Floor().IntPart()
	return winnerShare, runnerUpShare
}

// OnCompetitionCompleted splits the wager pool evenly among the top ranked participants.
func (d *Distributor) OnCompetitionCompleted(ctx context.Context, res CompetitionResult) (Distribution, error) {
	if err := core.ValidateStruct(res); err != nil {
		return Distribution{}, err
	}

	pol := d.policies.For(res.TenantID)
	winners, share := CompetitionShares(len(res.Ranked), res.WagerPool, pol.CompetitionWinnerRatio)
	credits := make([]Credit, 0, winners)
	if share > 0 {
		for _, userID := range res.Ranked[:winners] {
			credits = append(credits, Credit{UserID: userID, Amount: share, Category: ledger.CategoryCompetitionReward})
		}
	}
	remainder := res.WagerPool - share*int64(winners)
	return d.distribute(ctx, res.TenantID, SourceCompetition, res.CompetitionID, res.Currency, credits, remainder)
}

// OnBountyAwarded splits the bounty among its winners and pays each runner-up a fraction
// of a winner's share on top.
func (d *Distributor) OnBountyAwarded(ctx context.Context, award BountyAward) (Distribution, error) {
	if err := core.ValidateStruct(award); err != nil {
		return Distribution{}, err
	}

	pol := d.policies.For(award.TenantID)
	winnerShare, runnerUpShare := BountyShares(len(award.Winners), award.Amount, pol.RunnerUpRatio)
	credits := make([]Credit, 0, len(award.Winners)+len(award.RunnerUps))
	if winnerShare > 0 {
		for _, userID := range award.Winners {
			credits = append(credits, Credit{UserID: userID, Amount: winnerShare, Category: ledger.CategoryBountyReward})
		}
	}
	if runnerUpShare > 0 {
		for _, userID := range award.RunnerUps {
			credits = append(credits, Credit{UserID: userID, Amount: runnerUpShare, Category: ledger.CategoryBountyRunnerUp})
		}
	}
	remainder := award.Amount - winnerShare*int64(len(award.Winners))
	return d.distribute(ctx, award.TenantID, SourceBounty, award.BountyID, award.Currency, credits, remainder)
}

func (d *Distributor) distribute(ctx context.Context, tenantID string, kind SourceKind, sourceID string, c ledger.Currency, credits []Credit, remainder int64) (Distribution, error) {
	dist := Distribution{Credits: credits}
	err := d.tx.InTx(ctx, func(ctx context.Context) error {
		var credited int64
		for _, cr := range credits {
			_, err := d.ledger.Earn(ctx, ledger.EarnInput{
				TenantID:  tenantID,
				UserID:    cr.UserID,
				Currency:  c,
				Amount:    cr.Amount,
				Category:  cr.Category,
				Reference: sourceID,
			})
			if err != nil {
				return err
			}
			credited += cr.Amount
		}

		var err error
		dist.Payout, err = d.repo.CreatePayout(ctx, Payout{
			TenantID:   tenantID,
			SourceKind: kind,
			SourceID:   sourceID,
			Currency:   c,
			Credited:   credited,
			Remainder:  remainder,
			CreatedAt:  d.clock(),
		})
		if err != nil {
			return err
		}

		if remainder > 0 && d.policies.For(tenantID).Remainder == core.RemainderToTreasury && d.sink != nil {
			return d.sink.Deposit(ctx, tenantID, c, remainder, string(kind)+" "+sourceID+" remainder")
		}
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}

	d.log.Info("rewards distributed", core.Fields{
		"tenant_id":   tenantID,
		"source_kind": kind,
		"source_id":   sourceID,
		"credits":     len(credits),
		"remainder":   remainder,
		"policy":      d.policies.For(tenantID).Remainder,
	})
	return dist, nil
}

func (d *Distributor) ListPayouts(ctx context.Context, tenantID string) ([]Payout, error) {
	return d.repo.QueryPayouts(ctx, tenantID)
}
