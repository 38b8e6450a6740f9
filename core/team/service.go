package team

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

var (
	// errors
	ErrVoteNotFound = core.NewError(core.KindNotFound, "treasury vote not found")
	ErrVoteClosed   = core.NewError(core.KindInvalidState, "treasury vote is closed")
	ErrAlreadyVoted = core.NewError(core.KindConflict, "member already voted")
	ErrNotEligible  = core.NewError(core.KindValidation, "member joined after the vote was proposed")
)

type (
	Repository interface {
		CreateTeam(ctx context.Context, t Team) (Team, error)
		GetTeam(ctx context.Context, tenantID, id string) (Team, error)
		// LockTeam returns the team locked for update until the end of the unit of work.
		LockTeam(ctx context.Context, tenantID, id string) (Team, error)
		UpdateTeam(ctx context.Context, t Team) error

		// CreateMember returns ErrAlreadyMember if the user already belongs to a team of the tenant.
		CreateMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, tenantID, teamID, userID string) (Member, error)
		UpdateMember(ctx context.Context, m Member) error
		DeleteMember(ctx context.Context, tenantID, teamID, userID string) error
		// QueryMembers returns the members of a team in joining order.
		QueryMembers(ctx context.Context, tenantID, teamID string) ([]Member, error)

		CreateVote(ctx context.Context, v TreasuryVote) (TreasuryVote, error)
		GetVote(ctx context.Context, tenantID, id string) (TreasuryVote, error)
		LockVote(ctx context.Context, tenantID, id string) (TreasuryVote, error)
		UpdateVote(ctx context.Context, v TreasuryVote) error
		QueryVotes(ctx context.Context, filter VoteFilter) ([]TreasuryVote, error)
		// CreateBallot returns ErrAlreadyVoted if the voter already has a ballot on the vote.
		CreateBallot(ctx context.Context, b Ballot) error
		QueryBallots(ctx context.Context, tenantID, voteID string) ([]Ballot, error)

		CreateChallenge(ctx context.Context, c Challenge) (Challenge, error)
		GetChallenge(ctx context.Context, tenantID, id string) (Challenge, error)
		LockChallenge(ctx context.Context, tenantID, id string) (Challenge, error)
		UpdateChallenge(ctx context.Context, c Challenge) error
		QueryChallenges(ctx context.Context, filter ChallengeFilter) ([]Challenge, error)
	}

	// Spender debits personal balances.
	Spender interface {
		Spend(ctx context.Context, in ledger.SpendInput) (ledger.Transaction, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		ledger   Spender
		log      core.Logger
		clock    core.Clock
		policies *core.Policies
	}
)

func NewService(tx core.Transactor, repo Repository, ledger Spender, logger core.Logger, clock core.Clock, policies *core.Policies) *Service {
	return &Service{tx: tx, repo: repo, ledger: ledger, log: logger, clock: clock, policies: policies}
}

// CreateTeam creates a team with its captain as first member.
func (svc *Service) CreateTeam(ctx context.Context, nt NewTeam) (Team, error) {
	nt.Name = core.CleanString(nt.Name)
	if err := core.ValidateStruct(nt); err != nil {
		return Team{}, err
	}
	if nt.MaxMembers == 0 {
		nt.MaxMembers = svc.policies.For(nt.TenantID).DefaultMaxMembers
	}

	var t Team
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		now := svc.clock()
		t, err = svc.repo.CreateTeam(ctx, Team{
			TenantID:    nt.TenantID,
			Name:        nt.Name,
			CaptainID:   nt.CaptainID,
			MemberCount: 1,
			MaxMembers:  nt.MaxMembers,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		_, err = svc.repo.CreateMember(ctx, Member{
			TenantID: t.TenantID,
			TeamID:   t.ID,
			UserID:   nt.CaptainID,
			Role:     RoleCaptain,
			JoinedAt: now,
		})
		return err
	})
	if err != nil {
		return Team{}, err
	}

	svc.log.Info("team created", core.Fields{"tenant_id": t.TenantID, "team_id": t.ID})
	return t, nil
}

// AddMember adds a user to a team. The first user joining a team left without members
// becomes its captain.
func (svc *Service) AddMember(ctx context.Context, nm NewMember) (Member, error) {
	if err := core.ValidateStruct(nm); err != nil {
		return Member{}, err
	}

	var m Member
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.LockTeam(ctx, nm.TenantID, nm.TeamID)
		if err != nil {
			return err
		}
		if t.MaxMembers > 0 && t.MemberCount >= t.MaxMembers {
			return ErrTeamFull
		}
		role := nm.Role
		if t.CaptainID == "" {
			role = RoleCaptain
		}
		now := svc.clock()
		m, err = svc.repo.CreateMember(ctx, Member{
			TenantID: nm.TenantID,
			TeamID:   nm.TeamID,
			UserID:   nm.UserID,
			Role:     role,
			JoinedAt: now,
		})
		if err != nil {
			return err
		}
		if role == RoleCaptain {
			t.CaptainID = m.UserID
			svc.log.Info("captain appointed", core.Fields{"tenant_id": t.TenantID, "team_id": t.ID, "captain_id": t.CaptainID})
		}
		t.MemberCount++
		t.UpdatedAt = now
		return svc.repo.UpdateTeam(ctx, t)
	})
	if err != nil {
		return Member{}, err
	}
	return m, nil
}

// Leave removes a member from the team. A leaving captain is replaced by the earliest
// vice captain, else the earliest member, else the earliest coach. Open treasury votes
// on which every remaining eligible member has voted are finalised.
func (svc *Service) Leave(ctx context.Context, tenantID, teamID, userID string) error {
	var settled []TreasuryVote
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		t, err := svc.repo.LockTeam(ctx, tenantID, teamID)
		if err != nil {
			return err
		}
		m, err := svc.repo.GetMember(ctx, tenantID, teamID, userID)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteMember(ctx, tenantID, teamID, userID); err != nil {
			return err
		}
		t.MemberCount--
		t.UpdatedAt = svc.clock()

		if m.Role == RoleCaptain {
			t.CaptainID = ""
			members, err := svc.repo.QueryMembers(ctx, tenantID, teamID)
			if err != nil {
				return err
			}
			if successor, ok := nextCaptain(members); ok {
				successor.Role = RoleCaptain
				if err = svc.repo.UpdateMember(ctx, successor); err != nil {
					return err
				}
				t.CaptainID = successor.UserID
				svc.log.Info("captain replaced", core.Fields{"tenant_id": tenantID, "team_id": teamID, "captain_id": t.CaptainID})
			}
		}
		if err = svc.repo.UpdateTeam(ctx, t); err != nil {
			return err
		}

		open, err := svc.repo.QueryVotes(ctx, VoteFilter{TenantID: tenantID, TeamID: teamID, Status: VoteOpen})
		if err != nil {
			return err
		}
		now := svc.clock()
		pol := svc.policies.For(tenantID)
		for _, v := range open {
			if v, err = svc.repo.LockVote(ctx, tenantID, v.ID); err != nil {
				return err
			}
			if v.Status != VoteOpen || v.Expired(now) {
				continue
			}
			pending, err := svc.pendingVoters(ctx, v)
			if err != nil {
				return err
			}
			if !shouldFinalise(v, pol.TreasuryTurnout, pending) {
				continue
			}
			if err = svc.finalise(ctx, &v); err != nil {
				return err
			}
			if err = svc.repo.UpdateVote(ctx, v); err != nil {
				return err
			}
			settled = append(settled, v)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, v := range settled {
		svc.log.Info("treasury vote finalised", core.Fields{"tenant_id": tenantID, "vote_id": v.ID, "status": v.Status, "resolution": v.Resolution})
	}
	return nil
}

func nextCaptain(members []Member) (Member, bool) {
	if len(members) == 0 {
		return Member{}, false
	}
	candidates := make([]Member, len(members))
	copy(candidates, members)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Role.successionRank() < candidates[j].Role.successionRank()
	})
	return candidates[0], true
}

func (svc *Service) ListMembers(ctx context.Context, tenantID, teamID string) ([]Member, error) {
	if _, err := svc.repo.GetTeam(ctx, tenantID, teamID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMembers(ctx, tenantID, teamID)
}

func (svc *Service) GetTeam(ctx context.Context, tenantID, teamID string) (Team, error) {
	return svc.repo.GetTeam(ctx, tenantID, teamID)
}

func (svc *Service) GetTreasury(ctx context.Context, tenantID, teamID string) (Treasury, error) {
	t, err := svc.repo.GetTeam(ctx, tenantID, teamID)
	if err != nil {
		return Treasury{}, err
	}
	return Treasury{TeamID: t.ID, Sparks: t.TreasurySparks, Gems: t.TreasuryGems, MemberCount: t.MemberCount}, nil
}

// Contribute moves tokens from a member's balance into the team treasury.
func (svc *Service) Contribute(ctx context.Context, in ContributeInput) (Team, error) {
	if in.Amount <= 0 {
		return Team{}, ledger.ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return Team{}, err
	}

	var t Team
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		m, err := svc.repo.GetMember(ctx, in.TenantID, in.TeamID, in.UserID)
		if err != nil {
			return err
		}
		_, err = svc.ledger.Spend(ctx, ledger.SpendInput{
			TenantID:  in.TenantID,
			UserID:    in.UserID,
			Currency:  in.Currency,
			Amount:    in.Amount,
			Category:  ledger.CategoryTeamTreasury,
			Reference: in.TeamID,
		})
		if err != nil {
			return err
		}
		if t, err = svc.repo.LockTeam(ctx, in.TenantID, in.TeamID); err != nil {
			return err
		}
		if err = t.Adjust(in.Currency, in.Amount); err != nil {
			return err
		}
		t.UpdatedAt = svc.clock()
		if err = svc.repo.UpdateTeam(ctx, t); err != nil {
			return err
		}
		m.addContribution(in.Currency, in.Amount)
		return svc.repo.UpdateMember(ctx, m)
	})
	if err != nil {
		return Team{}, err
	}

	svc.log.Info("treasury contribution", core.Fields{
		"tenant_id": in.TenantID,
		"team_id":   in.TeamID,
		"user_id":   in.UserID,
		"currency":  in.Currency,
		"amount":    in.Amount,
	})
	return t, nil
}

// ProposeSpend opens a treasury vote among the current members of the team.
func (svc *Service) ProposeSpend(ctx context.Context, in ProposeSpendInput) (TreasuryVote, error) {
	in.Purpose = core.CleanString(in.Purpose)
	if in.Amount <= 0 {
		return TreasuryVote{}, ledger.ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return TreasuryVote{}, err
	}

	pol := svc.policies.For(in.TenantID)
	var v TreasuryVote
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetMember(ctx, in.TenantID, in.TeamID, in.ProposedBy); err != nil {
			return err
		}
		t, err := svc.repo.GetTeam(ctx, in.TenantID, in.TeamID)
		if err != nil {
			return err
		}
		now := svc.clock()
		v, err = svc.repo.CreateVote(ctx, TreasuryVote{
			TenantID:         in.TenantID,
			TeamID:           in.TeamID,
			ProposedBy:       in.ProposedBy,
			Currency:         in.Currency,
			Amount:           in.Amount,
			Purpose:          in.Purpose,
			TotalVoters:      t.MemberCount,
			RequiredApproval: pol.TreasuryApproval,
			Status:           VoteOpen,
			ExpiresAt:        now.Add(pol.TreasuryVoteTTL),
			CreatedAt:        now,
		})
		return err
	})
	if err != nil {
		return TreasuryVote{}, err
	}
	return v, nil
}

// CastVote records the ballot of a member and finalises the vote as soon as turnout reaches
// the tenant threshold or every eligible member still in the team has voted.
func (svc *Service) CastVote(ctx context.Context, tenantID, voteID, voterID string, approve bool) (TreasuryVote, error) {
	pol := svc.policies.For(tenantID)
	var v TreasuryVote
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if v, err = svc.repo.GetVote(ctx, tenantID, voteID); err != nil {
			return err
		}
		// team before vote, as Leave does
		if _, err = svc.repo.LockTeam(ctx, tenantID, v.TeamID); err != nil {
			return err
		}
		if v, err = svc.repo.LockVote(ctx, tenantID, voteID); err != nil {
			return err
		}
		now := svc.clock()
		if v.Status != VoteOpen || v.Expired(now) {
			return ErrVoteClosed
		}

		m, err := svc.repo.GetMember(ctx, tenantID, v.TeamID, voterID)
		if err != nil {
			return err
		}
		if m.JoinedAt.After(v.CreatedAt) {
			return ErrNotEligible
		}
		if err = svc.repo.CreateBallot(ctx, Ballot{TenantID: tenantID, VoteID: v.ID, VoterID: voterID, Approve: approve, CastAt: now}); err != nil {
			return err
		}
		if approve {
			v.VotesFor++
		} else {
			v.VotesAgainst++
		}

		pending, err := svc.pendingVoters(ctx, v)
		if err != nil {
			return err
		}
		if shouldFinalise(v, pol.TreasuryTurnout, pending) {
			if err = svc.finalise(ctx, &v); err != nil {
				return err
			}
		}
		return svc.repo.UpdateVote(ctx, v)
	})
	if err != nil {
		return TreasuryVote{}, err
	}
	if v.Status != VoteOpen {
		svc.log.Info("treasury vote finalised", core.Fields{"tenant_id": tenantID, "vote_id": v.ID, "status": v.Status, "resolution": v.Resolution})
	}
	return v, nil
}

// pendingVoters counts the current members eligible on v who have not voted yet.
func (svc *Service) pendingVoters(ctx context.Context, v TreasuryVote) (int, error) {
	members, err := svc.repo.QueryMembers(ctx, v.TenantID, v.TeamID)
	if err != nil {
		return 0, err
	}
	ballots, err := svc.repo.QueryBallots(ctx, v.TenantID, v.ID)
	if err != nil {
		return 0, err
	}
	voted := make(map[string]bool, len(ballots))
	for _, b := range ballots {
		voted[b.VoterID] = true
	}
	var n int
	for _, m := range members {
		if !m.JoinedAt.After(v.CreatedAt) && !voted[m.UserID] {
			n++
		}
	}
	return n, nil
}

func shouldFinalise(v TreasuryVote, turnout decimal.Decimal, pending int) bool {
	cast := v.VotesFor + v.VotesAgainst
	if v.TotalVoters <= 0 || cast >= v.TotalVoters || pending == 0 {
		return true
	}
	return decimal.NewFromInt(int64(cast)).Div(decimal.NewFromInt(int64(v.TotalVoters))).GreaterThanOrEqual(turnout)
}

// Approved reports whether the approval ratio of the cast ballots reaches the requirement.
func (v TreasuryVote) Approved() bool {
	cast := v.VotesFor + v.VotesAgainst
	if cast == 0 {
		return false
	}
	ratio := decimal.NewFromInt(int64(v.VotesFor)).Div(decimal.NewFromInt(int64(cast)))
	return ratio.GreaterThanOrEqual(v.RequiredApproval)
}

func (svc *Service) finalise(ctx context.Context, v *TreasuryVote) error {
	v.ResolvedAt = svc.clock()
	if !v.Approved() {
		v.Status = VoteRejected
		v.Resolution = ResolutionDenied
		return nil
	}

	t, err := svc.repo.LockTeam(ctx, v.TenantID, v.TeamID)
	if err != nil {
		return err
	}
	if err = t.Adjust(v.Currency, -v.Amount); err != nil {
		if errors.Is(err, ErrInsufficientTreasury) {
			v.Status = VoteRejected
			v.Resolution = ResolutionShortTreasury
			return nil
		}
		return err
	}
	t.UpdatedAt = v.ResolvedAt
	v.Status = VotePassed
	v.Resolution = ResolutionApproved
	return svc.repo.UpdateTeam(ctx, t)
}

// GetVote returns the vote as seen now; an open vote past its expiry reads as rejected.
func (svc *Service) GetVote(ctx context.Context, tenantID, voteID string) (TreasuryVote, error) {
	v, err := svc.repo.GetVote(ctx, tenantID, voteID)
	if err != nil {
		return TreasuryVote{}, err
	}
	return v.Effective(svc.clock()), nil
}

func (svc *Service) ListVotes(ctx context.Context, filter VoteFilter) ([]TreasuryVote, error) {
	votes, err := svc.repo.QueryVotes(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := svc.clock()
	for i := range votes {
		votes[i] = votes[i].Effective(now)
	}
	return votes, nil
}

// ExpireVotes persists the rejection of open votes past their expiry and returns how many
// votes were closed.
func (svc *Service) ExpireVotes(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		votes, err := svc.repo.QueryVotes(ctx, VoteFilter{TenantID: tenantID, Status: VoteOpen})
		if err != nil {
			return err
		}
		now := svc.clock()
		for _, v := range votes {
			if !v.Expired(now) {
				continue
			}
			if v, err = svc.repo.LockVote(ctx, tenantID, v.ID); err != nil {
				return err
			}
			if !v.Expired(now) {
				continue
			}
			if err = svc.repo.UpdateVote(ctx, v.Effective(now)); err != nil {
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
		svc.log.Info("treasury votes expired", core.Fields{"tenant_id": tenantID, "count": n})
	}
	return n, nil
}

// RequireOfficer fails unless userID is the captain or a vice captain of the team.
func (svc *Service) RequireOfficer(ctx context.Context, tenantID, teamID, userID string) error {
	m, err := svc.repo.GetMember(ctx, tenantID, teamID, userID)
	if err != nil {
		if errors.Is(err, ErrNotMember) {
			return ErrNotOfficer
		}
		return err
	}
	if !m.Role.Officer() {
		return ErrNotOfficer
	}
	return nil
}

// LockTeams locks the given teams in id order and returns them in the requested order.
// It must run within a unit of work.
func (svc *Service) LockTeams(ctx context.Context, tenantID string, ids ...string) ([]Team, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	locked := make(map[string]Team, len(ids))
	for _, id := range sorted {
		if _, ok := locked[id]; ok {
			continue
		}
		t, err := svc.repo.LockTeam(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		locked[id] = t
	}

	teams := make([]Team, len(ids))
	for i, id := range ids {
		teams[i] = locked[id]
	}
	return teams, nil
}

// SaveTeams stores the treasury changes of locked teams.
func (svc *Service) SaveTeams(ctx context.Context, teams ...Team) error {
	now := svc.clock()
	for _, t := range teams {
		t.UpdatedAt = now
		if err := svc.repo.UpdateTeam(ctx, t); err != nil {
			return err
		}
	}
	return nil
}
