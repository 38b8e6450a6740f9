package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core/team"
)

type teamRepository struct {
	db *DB
}

var _ team.Repository = (*teamRepository)(nil) // interface compliance check

func (repo teamRepository) CreateTeam(ctx context.Context, t team.Team) (team.Team, error) {
	t.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.teams, key(t.TenantID, t.ID), row[team.Team]{seq: tx.nextSeq(), val: t})
		return nil
	})
	if err != nil {
		return team.Team{}, err
	}
	return t, nil
}

func (repo teamRepository) GetTeam(ctx context.Context, tenantID, id string) (t team.Team, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.teams[key(tenantID, id)]
		if !ok {
			return team.ErrTeamNotFound
		}
		t = r.val
		return nil
	})
	return t, err
}

func (repo teamRepository) LockTeam(ctx context.Context, tenantID, id string) (team.Team, error) {
	return repo.GetTeam(ctx, tenantID, id)
}

func (repo teamRepository) UpdateTeam(ctx context.Context, t team.Team) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(t.TenantID, t.ID)
		r, ok := tx.db.teams[k]
		if !ok {
			return team.ErrTeamNotFound
		}
		r.val = t
		put(tx, tx.db.teams, k, r)
		return nil
	})
}

func (repo teamRepository) CreateMember(ctx context.Context, m team.Member) (team.Member, error) {
	err := repo.db.view(ctx, func(tx *txn) error {
		k := key(m.TenantID, m.UserID)
		if _, ok := tx.db.members[k]; ok {
			return team.ErrAlreadyMember
		}
		put(tx, tx.db.members, k, row[team.Member]{seq: tx.nextSeq(), val: m})
		return nil
	})
	if err != nil {
		return team.Member{}, err
	}
	return m, nil
}

func (repo teamRepository) GetMember(ctx context.Context, tenantID, teamID, userID string) (m team.Member, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.members[key(tenantID, userID)]
		if !ok || r.val.TeamID != teamID {
			return team.ErrNotMember
		}
		m = r.val
		return nil
	})
	return m, err
}

func (repo teamRepository) UpdateMember(ctx context.Context, m team.Member) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(m.TenantID, m.UserID)
		r, ok := tx.db.members[k]
		if !ok || r.val.TeamID != m.TeamID {
			return team.ErrNotMember
		}
		r.val = m
		put(tx, tx.db.members, k, r)
		return nil
	})
}

func (repo teamRepository) DeleteMember(ctx context.Context, tenantID, teamID, userID string) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(tenantID, userID)
		if r, ok := tx.db.members[k]; !ok || r.val.TeamID != teamID {
			return team.ErrNotMember
		}
		remove(tx, tx.db.members, k)
		return nil
	})
}

func (repo teamRepository) QueryMembers(ctx context.Context, tenantID, teamID string) (members []team.Member, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		members = sorted(tx.db.members, func(m team.Member) bool {
			return m.TenantID == tenantID && m.TeamID == teamID
		})
		return nil
	})
	return members, err
}

func (repo teamRepository) CreateVote(ctx context.Context, v team.TreasuryVote) (team.TreasuryVote, error) {
	v.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.votes, key(v.TenantID, v.ID), row[team.TreasuryVote]{seq: tx.nextSeq(), val: v})
		return nil
	})
	if err != nil {
		return team.TreasuryVote{}, err
	}
	return v, nil
}

func (repo teamRepository) GetVote(ctx context.Context, tenantID, id string) (v team.TreasuryVote, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.votes[key(tenantID, id)]
		if !ok {
			return team.ErrVoteNotFound
		}
		v = r.val
		return nil
	})
	return v, err
}

func (repo teamRepository) LockVote(ctx context.Context, tenantID, id string) (team.TreasuryVote, error) {
	return repo.GetVote(ctx, tenantID, id)
}

func (repo teamRepository) UpdateVote(ctx context.Context, v team.TreasuryVote) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(v.TenantID, v.ID)
		r, ok := tx.db.votes[k]
		if !ok {
			return team.ErrVoteNotFound
		}
		r.val = v
		put(tx, tx.db.votes, k, r)
		return nil
	})
}

func (repo teamRepository) QueryVotes(ctx context.Context, filter team.VoteFilter) (votes []team.TreasuryVote, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		votes = sorted(tx.db.votes, func(v team.TreasuryVote) bool {
			return v.TenantID == filter.TenantID &&
				(filter.TeamID == "" || v.TeamID == filter.TeamID) &&
				(filter.Status == "" || v.Status == filter.Status)
		})
		return nil
	})
	return votes, err
}

func (repo teamRepository) CreateBallot(ctx context.Context, b team.Ballot) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(b.TenantID, b.VoteID, b.VoterID)
		if _, ok := tx.db.ballots[k]; ok {
			return team.ErrAlreadyVoted
		}
		put(tx, tx.db.ballots, k, b)
		return nil
	})
}

func (repo teamRepository) QueryBallots(ctx context.Context, tenantID, voteID string) (ballots []team.Ballot, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		for _, b := range tx.db.ballots {
			if b.TenantID == tenantID && b.VoteID == voteID {
				ballots = append(ballots, b)
			}
		}
		sort.Slice(ballots, func(i, j int) bool {
			if !ballots[i].CastAt.Equal(ballots[j].CastAt) {
				return ballots[i].CastAt.Before(ballots[j].CastAt)
			}
			return ballots[i].VoterID < ballots[j].VoterID
		})
		return nil
	})
	return ballots, err
}

func (repo teamRepository) CreateChallenge(ctx context.Context, c team.Challenge) (team.Challenge, error) {
	c.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.challenges, key(c.TenantID, c.ID), row[team.Challenge]{seq: tx.nextSeq(), val: c})
		return nil
	})
	if err != nil {
		return team.Challenge{}, err
	}
	return c, nil
}

func (repo teamRepository) GetChallenge(ctx context.Context, tenantID, id string) (c team.Challenge, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.challenges[key(tenantID, id)]
		if !ok {
			return team.ErrChallengeNotFound
		}
		c = r.val
		return nil
	})
	return c, err
}

func (repo teamRepository) LockChallenge(ctx context.Context, tenantID, id string) (team.Challenge, error) {
	return repo.GetChallenge(ctx, tenantID, id)
}

func (repo teamRepository) UpdateChallenge(ctx context.Context, c team.Challenge) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(c.TenantID, c.ID)
		r, ok := tx.db.challenges[k]
		if !ok {
			return team.ErrChallengeNotFound
		}
		r.val = c
		put(tx, tx.db.challenges, k, r)
		return nil
	})
}

func (repo teamRepository) QueryChallenges(ctx context.Context, filter team.ChallengeFilter) (challenges []team.Challenge, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		challenges = sorted(tx.db.challenges, func(c team.Challenge) bool {
			return c.TenantID == filter.TenantID &&
				(filter.TeamID == "" || c.ChallengerTeamID == filter.TeamID || c.OpponentTeamID == filter.TeamID) &&
				(filter.Status == "" || c.Status == filter.Status)
		})
		return nil
	})
	return challenges, err
}
