package team

import (
	"context"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

var (
	ErrChallengeNotFound = core.NewError(core.KindNotFound, "challenge not found")
	ErrChallengeClosed   = core.NewError(core.KindInvalidState, "challenge can no longer change")
	ErrNotContender      = core.NewError(core.KindValidation, "winner must be one of the contending teams")
)

// IssueChallenge escrows the wager of the challenger team and invites the opponent.
func (svc *Service) IssueChallenge(ctx context.Context, in IssueChallengeInput) (Challenge, error) {
	if in.Wager <= 0 {
		return Challenge{}, ledger.ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return Challenge{}, err
	}

	var c Challenge
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := svc.RequireOfficer(ctx, in.TenantID, in.ChallengerTeamID, in.IssuedBy); err != nil {
			return err
		}
		if _, err := svc.repo.GetTeam(ctx, in.TenantID, in.OpponentTeamID); err != nil {
			return err
		}
		t, err := svc.repo.LockTeam(ctx, in.TenantID, in.ChallengerTeamID)
		if err != nil {
			return err
		}
		if err = t.Adjust(in.Currency, -in.Wager); err != nil {
			return err
		}
		if err = svc.SaveTeams(ctx, t); err != nil {
			return err
		}
		now := svc.clock()
		c, err = svc.repo.CreateChallenge(ctx, Challenge{
			TenantID:         in.TenantID,
			ChallengerTeamID: in.ChallengerTeamID,
			OpponentTeamID:   in.OpponentTeamID,
			IssuedBy:         in.IssuedBy,
			Currency:         in.Currency,
			Wager:            in.Wager,
			Pot:              in.Wager,
			Status:           ChallengePending,
			ExpiresAt:        now.Add(svc.policies.For(in.TenantID).ChallengeTTL),
			CreatedAt:        now,
		})
		return err
	})
	if err != nil {
		return Challenge{}, err
	}

	svc.log.Info("challenge issued", core.Fields{"tenant_id": c.TenantID, "challenge_id": c.ID, "wager": c.Wager})
	return c, nil
}

// RespondChallenge lets an officer of the opponent team accept (escrowing the matching
// wager) or decline (refunding the challenger) a pending challenge.
func (svc *Service) RespondChallenge(ctx context.Context, tenantID, challengeID, respondedBy string, accept bool) (Challenge, error) {
	var c Challenge
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if c, err = svc.repo.LockChallenge(ctx, tenantID, challengeID); err != nil {
			return err
		}
		now := svc.clock()
		if c.Expired(now) {
			return ErrChallengeClosed
		}
		next := ChallengeDeclined
		if accept {
			next = ChallengeAccepted
		}
		if !c.Status.CanTransitionTo(next) {
			return ErrChallengeClosed
		}
		if err = svc.RequireOfficer(ctx, tenantID, c.OpponentTeamID, respondedBy); err != nil {
			return err
		}

		if accept {
			teams, err := svc.LockTeams(ctx, tenantID, c.OpponentTeamID)
			if err != nil {
				return err
			}
			if err = teams[0].Adjust(c.Currency, -c.Wager); err != nil {
				return err
			}
			if err = svc.SaveTeams(ctx, teams...); err != nil {
				return err
			}
			c.Pot += c.Wager
		} else if err = svc.payout(ctx, tenantID, c.ChallengerTeamID, c.Currency, c.Pot); err != nil {
			return err
		}

		c.Status = next
		c.RespondedAt = now
		return svc.repo.UpdateChallenge(ctx, c)
	})
	if err != nil {
		return Challenge{}, err
	}
	return c, nil
}

// ResolveChallenge pays the whole pot of an accepted challenge to the winning team.
func (svc *Service) ResolveChallenge(ctx context.Context, tenantID, challengeID, winnerTeamID string) (Challenge, error) {
	var c Challenge
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if c, err = svc.repo.LockChallenge(ctx, tenantID, challengeID); err != nil {
			return err
		}
		if !c.Status.CanTransitionTo(ChallengeCompleted) {
			return ErrChallengeClosed
		}
		if winnerTeamID != c.ChallengerTeamID && winnerTeamID != c.OpponentTeamID {
			return ErrNotContender
		}
		if err = svc.payout(ctx, tenantID, winnerTeamID, c.Currency, c.Pot); err != nil {
			return err
		}
		c.Status = ChallengeCompleted
		c.WinnerTeamID = winnerTeamID
		c.ResolvedAt = svc.clock()
		return svc.repo.UpdateChallenge(ctx, c)
	})
	if err != nil {
		return Challenge{}, err
	}

	svc.log.Info("challenge resolved", core.Fields{"tenant_id": tenantID, "challenge_id": c.ID, "winner_team_id": winnerTeamID, "pot": c.Pot})
	return c, nil
}

func (svc *Service) GetChallenge(ctx context.Context, tenantID, challengeID string) (Challenge, error) {
	c, err := svc.repo.GetChallenge(ctx, tenantID, challengeID)
	if err != nil {
		return Challenge{}, err
	}
	return c.Effective(svc.clock()), nil
}

// ExpireChallenges refunds pending challenges past their expiry and returns how many
// challenges expired.
func (svc *Service) ExpireChallenges(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		challenges, err := svc.repo.QueryChallenges(ctx, ChallengeFilter{TenantID: tenantID, Status: ChallengePending})
		if err != nil {
			return err
		}
		now := svc.clock()
		for _, c := range challenges {
			if !c.Expired(now) {
				continue
			}
			if c, err = svc.repo.LockChallenge(ctx, tenantID, c.ID); err != nil {
				return err
			}
			if !c.Expired(now) {
				continue
			}
			if err = svc.payout(ctx, tenantID, c.ChallengerTeamID, c.Currency, c.Pot); err != nil {
				return err
			}
			c.Status = ChallengeExpired
			c.ResolvedAt = now
			if err = svc.repo.UpdateChallenge(ctx, c); err != nil {
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
		svc.log.Info("challenges expired", core.Fields{"tenant_id": tenantID, "count": n})
	}
	return n, nil
}

func (svc *Service) payout(ctx context.Context, tenantID, teamID string, c ledger.Currency, amount int64) error {
	t, err := svc.repo.LockTeam(ctx, tenantID, teamID)
	if err != nil {
		return err
	}
	if err = t.Adjust(c, amount); err != nil {
		return err
	}
	return svc.SaveTeams(ctx, t)
}
