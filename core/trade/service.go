package trade

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/team"
)

type (
	Repository interface {
		CreateTrade(ctx context.Context, t Trade) (Trade, error)
		GetTrade(ctx context.Context, tenantID, id string) (Trade, error)
		// LockTrade returns the trade locked for update until the end of the unit of work.
		LockTrade(ctx context.Context, tenantID, id string) (Trade, error)
		UpdateTrade(ctx context.Context, t Trade) error
		QueryTrades(ctx context.Context, filter Filter) ([]Trade, error)
	}

	// Teams gives access to team treasuries and officers.
	Teams interface {
		GetTeam(ctx context.Context, tenantID, teamID string) (team.Team, error)
		RequireOfficer(ctx context.Context, tenantID, teamID, userID string) error
		LockTeams(ctx context.Context, tenantID string, ids ...string) ([]team.Team, error)
		SaveTeams(ctx context.Context, teams ...team.Team) error
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		teams    Teams
		log      core.Logger
		clock    core.Clock
		policies *core.Policies
	}
)

func NewService(tx core.Transactor, repo Repository, teams Teams, logger core.Logger, clock core.Clock, policies *core.Policies) *Service {
	return &Service{tx: tx, repo: repo, teams: teams, log: logger, clock: clock, policies: policies}
}

// Propose records a trade offer. The offer is not escrowed: both treasuries are checked
// again when the trade is accepted.
func (svc *Service) Propose(ctx context.Context, in ProposeInput) (Trade, error) {
	in.Message = core.CleanString(in.Message)
	if err := core.ValidateStruct(in); err != nil {
		return Trade{}, err
	}

	var t Trade
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := svc.teams.RequireOfficer(ctx, in.TenantID, in.ProposerTeamID, in.ProposedBy); err != nil {
			return err
		}
		proposer, err := svc.teams.GetTeam(ctx, in.TenantID, in.ProposerTeamID)
		if err != nil {
			return err
		}
		if _, err = svc.teams.GetTeam(ctx, in.TenantID, in.RecipientTeamID); err != nil {
			return err
		}
		if proposer.Treasury(in.OfferCurrency) < in.OfferAmount {
			return ErrProposerInsufficient
		}
		now := svc.clock()
		t, err = svc.repo.CreateTrade(ctx, Trade{
			TenantID:        in.TenantID,
			ProposerTeamID:  in.ProposerTeamID,
			RecipientTeamID: in.RecipientTeamID,
			ProposedBy:      in.ProposedBy,
			OfferCurrency:   in.OfferCurrency,
			OfferAmount:     in.OfferAmount,
			RequestCurrency: in.RequestCurrency,
			RequestAmount:   in.RequestAmount,
			Message:         in.Message,
			Status:          StatusProposed,
			ExpiresAt:       now.Add(svc.policies.For(in.TenantID).TradeTTL),
			CreatedAt:       now,
		})
		return err
	})
	if err != nil {
		return Trade{}, err
	}

	svc.log.Info("trade proposed", core.Fields{"tenant_id": t.TenantID, "trade_id": t.ID})
	return t, nil
}

// Accept performs the four-leg swap of a proposed trade on behalf of the recipient team.
func (svc *Service) Accept(ctx context.Context, tenantID, tradeID, acceptedBy string) (Trade, error) {
	var t Trade
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if t, err = svc.respondable(ctx, tenantID, tradeID, StatusCompleted); err != nil {
			return err
		}
		if err = svc.teams.RequireOfficer(ctx, tenantID, t.RecipientTeamID, acceptedBy); err != nil {
			return err
		}

		teams, err := svc.teams.LockTeams(ctx, tenantID, t.ProposerTeamID, t.RecipientTeamID)
		if err != nil {
			return err
		}
		proposer, recipient := teams[0], teams[1]
		if err = proposer.Adjust(t.OfferCurrency, -t.OfferAmount); err != nil {
			return asInsufficient(err, ErrProposerInsufficient)
		}
		if err = recipient.Adjust(t.RequestCurrency, -t.RequestAmount); err != nil {
			return asInsufficient(err, ErrRecipientInsufficient)
		}
		if err = proposer.Adjust(t.RequestCurrency, t.RequestAmount); err != nil {
			return err
		}
		if err = recipient.Adjust(t.OfferCurrency, t.OfferAmount); err != nil {
			return err
		}
		if err = svc.teams.SaveTeams(ctx, proposer, recipient); err != nil {
			return err
		}

		t.Status = StatusCompleted
		t.RespondedBy = acceptedBy
		t.RespondedAt = svc.clock()
		return svc.repo.UpdateTrade(ctx, t)
	})
	if err != nil {
		return Trade{}, err
	}

	svc.log.Info("trade completed", core.Fields{"tenant_id": tenantID, "trade_id": t.ID})
	return t, nil
}

func asInsufficient(err, side error) error {
	if errors.Is(err, team.ErrInsufficientTreasury) {
		return side
	}
	return err
}

// Cancel withdraws a proposed trade on behalf of the proposer team.
func (svc *Service) Cancel(ctx context.Context, tenantID, tradeID, cancelledBy string) (Trade, error) {
	return svc.close(ctx, tenantID, tradeID, cancelledBy, StatusCancelled)
}

// Decline refuses a proposed trade on behalf of the recipient team.
func (svc *Service) Decline(ctx context.Context, tenantID, tradeID, declinedBy string) (Trade, error) {
	return svc.close(ctx, tenantID, tradeID, declinedBy, StatusDeclined)
}

func (svc *Service) close(ctx context.Context, tenantID, tradeID, userID string, next Status) (Trade, error) {
	var t Trade
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if t, err = svc.respondable(ctx, tenantID, tradeID, next); err != nil {
			return err
		}
		side := t.RecipientTeamID
		if next == StatusCancelled {
			side = t.ProposerTeamID
		}
		if err = svc.teams.RequireOfficer(ctx, tenantID, side, userID); err != nil {
			return err
		}
		t.Status = next
		t.RespondedBy = userID
		t.RespondedAt = svc.clock()
		return svc.repo.UpdateTrade(ctx, t)
	})
	if err != nil {
		return Trade{}, err
	}
	return t, nil
}

// respondable locks a trade that can still move to next.
func (svc *Service) respondable(ctx context.Context, tenantID, tradeID string, next Status) (Trade, error) {
	t, err := svc.repo.LockTrade(ctx, tenantID, tradeID)
	if err != nil {
		return Trade{}, err
	}
	if t.Expired(svc.clock()) || !t.Status.CanTransitionTo(next) {
		return Trade{}, ErrNotProposed
	}
	return t, nil
}

// Get returns the trade as seen now.
func (svc *Service) Get(ctx context.Context, tenantID, tradeID string) (Trade, error) {
	t, err := svc.repo.GetTrade(ctx, tenantID, tradeID)
	if err != nil {
		return Trade{}, err
	}
	return t.Effective(svc.clock()), nil
}

func (svc *Service) List(ctx context.Context, filter Filter) ([]Trade, error) {
	trades, err := svc.repo.QueryTrades(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := svc.clock()
	for i := range trades {
		trades[i] = trades[i].Effective(now)
	}
	return trades, nil
}

// SweepExpired persists the expiry of proposed trades past their deadline and returns how
// many trades expired.
func (svc *Service) SweepExpired(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		trades, err := svc.repo.QueryTrades(ctx, Filter{TenantID: tenantID, Status: StatusProposed})
		if err != nil {
			return err
		}
		now := svc.clock()
		for _, t := range trades {
			if !t.Expired(now) {
				continue
			}
			if t, err = svc.repo.LockTrade(ctx, tenantID, t.ID); err != nil {
				return err
			}
			if !t.Expired(now) {
				continue
			}
			if err = svc.repo.UpdateTrade(ctx, t.Effective(now)); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.log.Info("trades expired", core.Fields{"tenant_id": tenantID, "count": n})
	}
	return n, nil
}
