package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/team"
)

type (
	teamRepository struct {
		s *Store
	}

	teamRow struct {
		ID             string      `db:"id"`
		TenantID       string      `db:"tenant_id"`
		Name           string      `db:"name"`
		CaptainID      null.String `db:"captain_id"`
		TreasurySparks int64       `db:"treasury_sparks"`
		TreasuryGems   int64       `db:"treasury_gems"`
		MemberCount    int         `db:"member_count"`
		MaxMembers     int         `db:"max_members"`
		CreatedAt      time.Time   `db:"created_at"`
		UpdatedAt      time.Time   `db:"updated_at"`
	}

	memberRow struct {
		TenantID          string    `db:"tenant_id"`
		TeamID            string    `db:"team_id"`
		UserID            string    `db:"user_id"`
		Role              string    `db:"role"`
		ContributedSparks int64     `db:"contributed_sparks"`
		ContributedGems   int64     `db:"contributed_gems"`
		JoinedAt          time.Time `db:"joined_at"`
	}

	voteRow struct {
		ID               string          `db:"id"`
		TenantID         string          `db:"tenant_id"`
		TeamID           string          `db:"team_id"`
		ProposedBy       string          `db:"proposed_by"`
		Currency         string          `db:"currency"`
		Amount           int64           `db:"amount"`
		Purpose          string          `db:"purpose"`
		VotesFor         int             `db:"votes_for"`
		VotesAgainst     int             `db:"votes_against"`
		TotalVoters      int             `db:"total_voters"`
		RequiredApproval decimal.Decimal `db:"required_approval"`
		Status           string          `db:"status"`
		Resolution       null.String     `db:"resolution"`
		ExpiresAt        time.Time       `db:"expires_at"`
		ResolvedAt       null.Time       `db:"resolved_at"`
		CreatedAt        time.Time       `db:"created_at"`
	}

	ballotRow struct {
		TenantID string    `db:"tenant_id"`
		VoteID   string    `db:"vote_id"`
		VoterID  string    `db:"voter_id"`
		Approve  bool      `db:"approve"`
		CastAt   time.Time `db:"cast_at"`
	}

	challengeRow struct {
		ID               string      `db:"id"`
		TenantID         string      `db:"tenant_id"`
		ChallengerTeamID string      `db:"challenger_team_id"`
		OpponentTeamID   string      `db:"opponent_team_id"`
		IssuedBy         string      `db:"issued_by"`
		Currency         string      `db:"currency"`
		Wager            int64       `db:"wager"`
		Pot              int64       `db:"pot"`
		Status           string      `db:"status"`
		WinnerTeamID     null.String `db:"winner_team_id"`
		ExpiresAt        time.Time   `db:"expires_at"`
		RespondedAt      null.Time   `db:"responded_at"`
		ResolvedAt       null.Time   `db:"resolved_at"`
		CreatedAt        time.Time   `db:"created_at"`
	}
)

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func boilTeam(t team.Team) teamRow {
	return teamRow{
		ID:             t.ID,
		TenantID:       t.TenantID,
		Name:           t.Name,
		CaptainID:      nullString(t.CaptainID),
		TreasurySparks: t.TreasurySparks,
		TreasuryGems:   t.TreasuryGems,
		MemberCount:    t.MemberCount,
		MaxMembers:     t.MaxMembers,
		CreatedAt:      t.CreatedAt.UTC(),
		UpdatedAt:      t.UpdatedAt.UTC(),
	}
}

func unboilTeam(r teamRow) team.Team {
	return team.Team{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		CaptainID:      r.CaptainID.String,
		TreasurySparks: r.TreasurySparks,
		TreasuryGems:   r.TreasuryGems,
		MemberCount:    r.MemberCount,
		MaxMembers:     r.MaxMembers,
		CreatedAt:      utc(r.CreatedAt),
		UpdatedAt:      utc(r.UpdatedAt),
	}
}

func boilMember(m team.Member) memberRow {
	return memberRow{
		TenantID:          m.TenantID,
		TeamID:            m.TeamID,
		UserID:            m.UserID,
		Role:              string(m.Role),
		ContributedSparks: m.ContributedSparks,
		ContributedGems:   m.ContributedGems,
		JoinedAt:          m.JoinedAt.UTC(),
	}
}

func unboilMember(r memberRow) team.Member {
	return team.Member{
		TenantID:          r.TenantID,
		TeamID:            r.TeamID,
		UserID:            r.UserID,
		Role:              team.Role(r.Role),
		ContributedSparks: r.ContributedSparks,
		ContributedGems:   r.ContributedGems,
		JoinedAt:          utc(r.JoinedAt),
	}
}

func boilVote(v team.TreasuryVote) voteRow {
	return voteRow{
		ID:               v.ID,
		TenantID:         v.TenantID,
		TeamID:           v.TeamID,
		ProposedBy:       v.ProposedBy,
		Currency:         string(v.Currency),
		Amount:           v.Amount,
		Purpose:          v.Purpose,
		VotesFor:         v.VotesFor,
		VotesAgainst:     v.VotesAgainst,
		TotalVoters:      v.TotalVoters,
		RequiredApproval: v.RequiredApproval,
		Status:           string(v.Status),
		Resolution:       nullString(v.Resolution),
		ExpiresAt:        v.ExpiresAt.UTC(),
		ResolvedAt:       nullTime(v.ResolvedAt),
		CreatedAt:        v.CreatedAt.UTC(),
	}
}

func unboilVote(r voteRow) team.TreasuryVote {
	return team.TreasuryVote{
		ID:               r.ID,
		TenantID:         r.TenantID,
		TeamID:           r.TeamID,
		ProposedBy:       r.ProposedBy,
		Currency:         ledger.Currency(r.Currency),
		Amount:           r.Amount,
		Purpose:          r.Purpose,
		VotesFor:         r.VotesFor,
		VotesAgainst:     r.VotesAgainst,
		TotalVoters:      r.TotalVoters,
		RequiredApproval: r.RequiredApproval,
		Status:           team.VoteStatus(r.Status),
		Resolution:       r.Resolution.String,
		ExpiresAt:        utc(r.ExpiresAt),
		ResolvedAt:       utc(r.ResolvedAt.Time),
		CreatedAt:        utc(r.CreatedAt),
	}
}

func boilChallenge(c team.Challenge) challengeRow {
	return challengeRow{
		ID:               c.ID,
		TenantID:         c.TenantID,
		ChallengerTeamID: c.ChallengerTeamID,
		OpponentTeamID:   c.OpponentTeamID,
		IssuedBy:         c.IssuedBy,
		Currency:         string(c.Currency),
		Wager:            c.Wager,
		Pot:              c.Pot,
		Status:           string(c.Status),
		WinnerTeamID:     nullString(c.WinnerTeamID),
		ExpiresAt:        c.ExpiresAt.UTC(),
		RespondedAt:      nullTime(c.RespondedAt),
		ResolvedAt:       nullTime(c.ResolvedAt),
		CreatedAt:        c.CreatedAt.UTC(),
	}
}

func unboilChallenge(r challengeRow) team.Challenge {
	return team.Challenge{
		ID:               r.ID,
		TenantID:         r.TenantID,
		ChallengerTeamID: r.ChallengerTeamID,
		OpponentTeamID:   r.OpponentTeamID,
		IssuedBy:         r.IssuedBy,
		Currency:         ledger.Currency(r.Currency),
		Wager:            r.Wager,
		Pot:              r.Pot,
		Status:           team.ChallengeStatus(r.Status),
		WinnerTeamID:     r.WinnerTeamID.String,
		ExpiresAt:        utc(r.ExpiresAt),
		RespondedAt:      utc(r.RespondedAt.Time),
		ResolvedAt:       utc(r.ResolvedAt.Time),
		CreatedAt:        utc(r.CreatedAt),
	}
}

func (repo teamRepository) CreateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	t.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO teams
		(id, tenant_id, name, captain_id, treasury_sparks, treasury_gems, member_count, max_members, created_at, updated_at)
		VALUES (:id, :tenant_id, :name, :captain_id, :treasury_sparks, :treasury_gems, :member_count, :max_members, :created_at, :updated_at)`,
		boilTeam(t))
	if err != nil {
		return team.Team{}, errors.Wrap(err, "inserting team")
	}
	return t, nil
}

func (repo teamRepository) getTeam(ctx context.Context, tenantID, id, suffix string) (team.Team, error) {
	var r teamRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM teams WHERE tenant_id = ? AND id = ?"+suffix, tenantID, id); err != nil {
		return team.Team{}, trapNoRowsErr(err, team.ErrTeamNotFound, "selecting team")
	}
	return unboilTeam(r), nil
}

func (repo teamRepository) GetTeam(ctx context.Context, tenantID, id string) (team.Team, error) {
	return repo.getTeam(ctx, tenantID, id, "")
}

func (repo teamRepository) LockTeam(ctx context.Context, tenantID, id string) (team.Team, error) {
	return repo.getTeam(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo teamRepository) UpdateTeam(ctx context.Context, t team.Team) error {
	res, err := repo.s.execNamed(ctx, `UPDATE teams SET
		name = :name, captain_id = :captain_id, treasury_sparks = :treasury_sparks, treasury_gems = :treasury_gems,
		member_count = :member_count, max_members = :max_members, updated_at = :updated_at
		WHERE tenant_id = :tenant_id AND id = :id`, boilTeam(t))
	if err != nil {
		return errors.Wrap(err, "updating team")
	}
	return mustAffect(res, team.ErrTeamNotFound)
}

func (repo teamRepository) CreateMember(ctx context.Context, m team.Member) (team.Member, error) {
	_, err := repo.s.execNamed(ctx, `INSERT INTO team_members
		(tenant_id, team_id, user_id, role, contributed_sparks, contributed_gems, joined_at)
		VALUES (:tenant_id, :team_id, :user_id, :role, :contributed_sparks, :contributed_gems, :joined_at)`,
		boilMember(m))
	if err != nil {
		return team.Member{}, trapUniqueErr(err, team.ErrAlreadyMember, "inserting member")
	}
	return m, nil
}

func (repo teamRepository) GetMember(ctx context.Context, tenantID, teamID, userID string) (team.Member, error) {
	var r memberRow
	q := "SELECT * FROM team_members WHERE tenant_id = ? AND team_id = ? AND user_id = ?"
	if err := repo.s.get(ctx, &r, q, tenantID, teamID, userID); err != nil {
		return team.Member{}, trapNoRowsErr(err, team.ErrNotMember, "selecting member")
	}
	return unboilMember(r), nil
}

func (repo teamRepository) UpdateMember(ctx context.Context, m team.Member) error {
	res, err := repo.s.execNamed(ctx, `UPDATE team_members SET
		role = :role, contributed_sparks = :contributed_sparks, contributed_gems = :contributed_gems
		WHERE tenant_id = :tenant_id AND team_id = :team_id AND user_id = :user_id`, boilMember(m))
	if err != nil {
		return errors.Wrap(err, "updating member")
	}
	return mustAffect(res, team.ErrNotMember)
}

func (repo teamRepository) DeleteMember(ctx context.Context, tenantID, teamID, userID string) error {
	q := "DELETE FROM team_members WHERE tenant_id = ? AND team_id = ? AND user_id = ?"
	res, err := repo.s.exec(ctx, q, tenantID, teamID, userID)
	if err != nil {
		return errors.Wrap(err, "deleting member")
	}
	return mustAffect(res, team.ErrNotMember)
}

func (repo teamRepository) QueryMembers(ctx context.Context, tenantID, teamID string) ([]team.Member, error) {
	var rows []memberRow
	q := "SELECT * FROM team_members WHERE tenant_id = ? AND team_id = ? ORDER BY joined_at, user_id"
	if err := repo.s.query(ctx, &rows, q, tenantID, teamID); err != nil {
		return nil, errors.Wrap(err, "selecting members")
	}
	members := make([]team.Member, 0, len(rows))
	for _, r := range rows {
		members = append(members, unboilMember(r))
	}
	return members, nil
}

func (repo teamRepository) CreateVote(ctx context.Context, v team.TreasuryVote) (team.TreasuryVote, error) {
	v.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO team_treasury_votes
		(id, tenant_id, team_id, proposed_by, currency, amount, purpose, votes_for, votes_against, total_voters,
		required_approval, status, resolution, expires_at, resolved_at, created_at)
		VALUES (:id, :tenant_id, :team_id, :proposed_by, :currency, :amount, :purpose, :votes_for, :votes_against, :total_voters,
		:required_approval, :status, :resolution, :expires_at, :resolved_at, :created_at)`, boilVote(v))
	if err != nil {
		return team.TreasuryVote{}, errors.Wrap(err, "inserting treasury vote")
	}
	return v, nil
}

func (repo teamRepository) getVote(ctx context.Context, tenantID, id, suffix string) (team.TreasuryVote, error) {
	var r voteRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM team_treasury_votes WHERE tenant_id = ? AND id = ?"+suffix, tenantID, id); err != nil {
		return team.TreasuryVote{}, trapNoRowsErr(err, team.ErrVoteNotFound, "selecting treasury vote")
	}
	return unboilVote(r), nil
}

func (repo teamRepository) GetVote(ctx context.Context, tenantID, id string) (team.TreasuryVote, error) {
	return repo.getVote(ctx, tenantID, id, "")
}

func (repo teamRepository) LockVote(ctx context.Context, tenantID, id string) (team.TreasuryVote, error) {
	return repo.getVote(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo teamRepository) UpdateVote(ctx context.Context, v team.TreasuryVote) error {
	res, err := repo.s.execNamed(ctx, `UPDATE team_treasury_votes SET
		votes_for = :votes_for, votes_against = :votes_against, status = :status,
		resolution = :resolution, resolved_at = :resolved_at
		WHERE tenant_id = :tenant_id AND id = :id`, boilVote(v))
	if err != nil {
		return errors.Wrap(err, "updating treasury vote")
	}
	return mustAffect(res, team.ErrVoteNotFound)
}

func (repo teamRepository) QueryVotes(ctx context.Context, filter team.VoteFilter) ([]team.TreasuryVote, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.TeamID != "", "team_id = ?", filter.TeamID).
		andIf(filter.Status != "", "status = ?", string(filter.Status))

	var rows []voteRow
	if err := repo.s.query(ctx, &rows, "SELECT * FROM team_treasury_votes"+f.String()+" ORDER BY created_at, id", f.args...); err != nil {
		return nil, errors.Wrap(err, "selecting treasury votes")
	}
	votes := make([]team.TreasuryVote, 0, len(rows))
	for _, r := range rows {
		votes = append(votes, unboilVote(r))
	}
	return votes, nil
}

func (repo teamRepository) CreateBallot(ctx context.Context, b team.Ballot) error {
	_, err := repo.s.execNamed(ctx, `INSERT INTO team_treasury_ballots (tenant_id, vote_id, voter_id, approve, cast_at)
		VALUES (:tenant_id, :vote_id, :voter_id, :approve, :cast_at)`, ballotRow{
		TenantID: b.TenantID,
		VoteID:   b.VoteID,
		VoterID:  b.VoterID,
		Approve:  b.Approve,
		CastAt:   b.CastAt.UTC(),
	})
	if err != nil {
		return trapUniqueErr(err, team.ErrAlreadyVoted, "inserting ballot")
	}
	return nil
}

func (repo teamRepository) QueryBallots(ctx context.Context, tenantID, voteID string) ([]team.Ballot, error) {
	var rows []ballotRow
	q := "SELECT * FROM team_treasury_ballots WHERE tenant_id = ? AND vote_id = ? ORDER BY cast_at, voter_id"
	if err := repo.s.query(ctx, &rows, q, tenantID, voteID); err != nil {
		return nil, errors.Wrap(err, "selecting ballots")
	}
	ballots := make([]team.Ballot, 0, len(rows))
	for _, r := range rows {
		ballots = append(ballots, team.Ballot{
			TenantID: r.TenantID,
			VoteID:   r.VoteID,
			VoterID:  r.VoterID,
			Approve:  r.Approve,
			CastAt:   r.CastAt,
		})
	}
	return ballots, nil
}

func (repo teamRepository) CreateChallenge(ctx context.Context, c team.Challenge) (team.Challenge, error) {
	c.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO team_challenges
		(id, tenant_id, challenger_team_id, opponent_team_id, issued_by, currency, wager, pot, status,
		winner_team_id, expires_at, responded_at, resolved_at, created_at)
		VALUES (:id, :tenant_id, :challenger_team_id, :opponent_team_id, :issued_by, :currency, :wager, :pot, :status,
		:winner_team_id, :expires_at, :responded_at, :resolved_at, :created_at)`, boilChallenge(c))
	if err != nil {
		return team.Challenge{}, errors.Wrap(err, "inserting challenge")
	}
	return c, nil
}

func (repo teamRepository) getChallenge(ctx context.Context, tenantID, id, suffix string) (team.Challenge, error) {
	var r challengeRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM team_challenges WHERE tenant_id = ? AND id = ?"+suffix, tenantID, id); err != nil {
		return team.Challenge{}, trapNoRowsErr(err, team.ErrChallengeNotFound, "selecting challenge")
	}
	return unboilChallenge(r), nil
}

func (repo teamRepository) GetChallenge(ctx context.Context, tenantID, id string) (team.Challenge, error) {
	return repo.getChallenge(ctx, tenantID, id, "")
}

func (repo teamRepository) LockChallenge(ctx context.Context, tenantID, id string) (team.Challenge, error) {
	return repo.getChallenge(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo teamRepository) UpdateChallenge(ctx context.Context, c team.Challenge) error {
	res, err := repo.s.execNamed(ctx, `UPDATE team_challenges SET
		pot = :pot, status = :status, winner_team_id = :winner_team_id,
		responded_at = :responded_at, resolved_at = :resolved_at
		WHERE tenant_id = :tenant_id AND id = :id`, boilChallenge(c))
	if err != nil {
		return errors.Wrap(err, "updating challenge")
	}
	return mustAffect(res, team.ErrChallengeNotFound)
}

func (repo teamRepository) QueryChallenges(ctx context.Context, filter team.ChallengeFilter) ([]team.Challenge, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.Status != "", "status = ?", string(filter.Status))
	args := f.args
	q := "SELECT * FROM team_challenges" + f.String()
	if filter.TeamID != "" {
		q += " AND (challenger_team_id = ? OR opponent_team_id = ?)"
		args = append(args, filter.TeamID, filter.TeamID)
	}

	var rows []challengeRow
	if err := repo.s.query(ctx, &rows, q+" ORDER BY created_at, id", args...); err != nil {
		return nil, errors.Wrap(err, "selecting challenges")
	}
	challenges := make([]team.Challenge, 0, len(rows))
	for _, r := range rows {
		challenges = append(challenges, unboilChallenge(r))
	}
	return challenges, nil
}
