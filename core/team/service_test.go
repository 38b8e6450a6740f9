package team_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/tests"
)

type fixture struct {
	eng   *economy.Engine
	clock *testutil.Clock
	team  team.Team
}

// setup returns a team of five funded with 100 SPARKS.
func setup(t *testing.T) fixture {
	eng, clock := testutil.NewEngine(t)
	tm := testutil.CreateTeam(t, eng, clock, "Owls", "cap", "m1", "m2", "m3", "m4")
	tm = testutil.FundTeam(t, eng, tm, ledger.Sparks, 100)
	return fixture{eng: eng, clock: clock, team: tm}
}

func (f fixture) propose(t *testing.T, amount int64) team.TreasuryVote {
	v, err := f.eng.Teams.ProposeSpend(context.Background(), team.ProposeSpendInput{
		TenantID:   testutil.Tenant,
		TeamID:     f.team.ID,
		ProposedBy: "m1",
		Currency:   ledger.Sparks,
		Amount:     amount,
		Purpose:    "  new jerseys ",
	})
	if err != nil {
		t.Fatalf("ProposeSpend() failed: %v", err)
	}
	return v
}

func (f fixture) treasury(t *testing.T) team.Treasury {
	tr, err := f.eng.Teams.GetTreasury(context.Background(), testutil.Tenant, f.team.ID)
	if err != nil {
		t.Fatalf("GetTreasury() failed: %v", err)
	}
	return tr
}

func TestService_CreateTeam(t *testing.T) {
	eng, _ := testutil.NewEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		in      team.NewTeam
		wantErr error
	}{
		{name: "blank name", in: team.NewTeam{TenantID: testutil.Tenant, Name: "   ", CaptainID: "cap"}, wantErr: core.ErrValidation},
		{name: "no captain", in: team.NewTeam{TenantID: testutil.Tenant, Name: "Owls"}, wantErr: core.ErrValidation},
		{name: "ok", in: team.NewTeam{TenantID: testutil.Tenant, Name: " Owls ", CaptainID: "cap"}},
		{name: "captain already in a team", in: team.NewTeam{TenantID: testutil.Tenant, Name: "Hawks", CaptainID: "cap"}, wantErr: team.ErrAlreadyMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm, err := eng.Teams.CreateTeam(ctx, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("CreateTeam() failed: %v", err)
			}
			assert.Equal(t, "Owls", tm.Name)
			assert.Equal(t, 1, tm.MemberCount)
			assert.Equal(t, 12, tm.MaxMembers)

			members, err := eng.Teams.ListMembers(ctx, testutil.Tenant, tm.ID)
			if err != nil {
				t.Fatalf("ListMembers() failed: %v", err)
			}
			if assert.Len(t, members, 1) {
				assert.Equal(t, team.RoleCaptain, members[0].Role)
			}
		})
	}

	_, err := eng.Teams.ListMembers(ctx, testutil.Tenant, "missing")
	assert.ErrorIs(t, err, team.ErrTeamNotFound)
}

func TestService_AddMember(t *testing.T) {
	eng, _ := testutil.NewEngine(t)
	ctx := context.Background()

	tm, err := eng.Teams.CreateTeam(ctx, team.NewTeam{TenantID: testutil.Tenant, Name: "Owls", CaptainID: "cap", MaxMembers: 2})
	if err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}

	tests := []struct {
		name    string
		in      team.NewMember
		wantErr error
	}{
		{name: "captain role", in: team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "m1", Role: team.RoleCaptain}, wantErr: core.ErrValidation},
		{name: "unknown team", in: team.NewMember{TenantID: testutil.Tenant, TeamID: "missing", UserID: "m1", Role: team.RoleMember}, wantErr: team.ErrTeamNotFound},
		{name: "ok", in: team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "m1", Role: team.RoleMember}},
		{name: "full", in: team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "m2", Role: team.RoleMember}, wantErr: team.ErrTeamFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Teams.AddMember(ctx, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if err != nil {
				t.Fatalf("AddMember() failed: %v", err)
			}
		})
	}

	got, err := eng.Teams.GetTeam(ctx, testutil.Tenant, tm.ID)
	if err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Equal(t, 2, got.MemberCount)

	// a user belongs to one team only
	other, err := eng.Teams.CreateTeam(ctx, team.NewTeam{TenantID: testutil.Tenant, Name: "Hawks", CaptainID: "cap2"})
	if err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}
	_, err = eng.Teams.AddMember(ctx, team.NewMember{TenantID: testutil.Tenant, TeamID: other.ID, UserID: "m1", Role: team.RoleMember})
	assert.ErrorIs(t, err, team.ErrAlreadyMember)
	assert.ErrorIs(t, err, core.ErrConflict)

	got, err = eng.Teams.GetTeam(ctx, testutil.Tenant, other.ID)
	if err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Equal(t, 1, got.MemberCount)
}

func TestService_Leave(t *testing.T) {
	eng, clock := testutil.NewEngine(t)
	ctx := context.Background()
	tm := testutil.CreateTeam(t, eng, clock, "Owls", "cap", "m1")

	clock.Advance(time.Second)
	if _, err := eng.Teams.AddMember(ctx, team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "vice", Role: team.RoleViceCaptain}); err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}

	if err := eng.Teams.Leave(ctx, testutil.Tenant, tm.ID, "cap"); err != nil {
		t.Fatalf("Leave() failed: %v", err)
	}
	got, err := eng.Teams.GetTeam(ctx, testutil.Tenant, tm.ID)
	if err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Equal(t, "vice", got.CaptainID)
	assert.Equal(t, 2, got.MemberCount)

	if err = eng.Teams.Leave(ctx, testutil.Tenant, tm.ID, "vice"); err != nil {
		t.Fatalf("Leave() failed: %v", err)
	}
	if got, err = eng.Teams.GetTeam(ctx, testutil.Tenant, tm.ID); err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Equal(t, "m1", got.CaptainID)

	err = eng.Teams.Leave(ctx, testutil.Tenant, tm.ID, "cap")
	assert.ErrorIs(t, err, team.ErrNotMember)

	if err = eng.Teams.Leave(ctx, testutil.Tenant, tm.ID, "m1"); err != nil {
		t.Fatalf("Leave() failed: %v", err)
	}
	if got, err = eng.Teams.GetTeam(ctx, testutil.Tenant, tm.ID); err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Empty(t, got.CaptainID)
	assert.Equal(t, 0, got.MemberCount)

	// whoever joins the empty team first captains it
	m, err := eng.Teams.AddMember(ctx, team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "u1", Role: team.RoleMember})
	if err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
	assert.Equal(t, team.RoleCaptain, m.Role)
	m, err = eng.Teams.AddMember(ctx, team.NewMember{TenantID: testutil.Tenant, TeamID: tm.ID, UserID: "u2", Role: team.RoleMember})
	if err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
	assert.Equal(t, team.RoleMember, m.Role)

	if got, err = eng.Teams.GetTeam(ctx, testutil.Tenant, tm.ID); err != nil {
		t.Fatalf("GetTeam() failed: %v", err)
	}
	assert.Equal(t, "u1", got.CaptainID)
	assert.Equal(t, 2, got.MemberCount)

	members, err := eng.Teams.ListMembers(ctx, testutil.Tenant, tm.ID)
	if err != nil {
		t.Fatalf("ListMembers() failed: %v", err)
	}
	var captains int
	for _, mm := range members {
		if mm.Role == team.RoleCaptain {
			captains++
		}
	}
	assert.Equal(t, 1, captains)
	assert.NoError(t, eng.Teams.RequireOfficer(ctx, testutil.Tenant, tm.ID, "u1"))
}

func TestService_Contribute(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	testutil.Fund(t, f.eng, "m2", ledger.Gems, 20)

	tests := []struct {
		name    string
		in      team.ContributeInput
		wantErr error
	}{
		{name: "voice", in: team.ContributeInput{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "m2", Currency: ledger.Voice, Amount: 5}, wantErr: core.ErrValidation},
		{name: "zero", in: team.ContributeInput{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "m2", Currency: ledger.Gems}, wantErr: ledger.ErrInvalidAmount},
		{name: "outsider", in: team.ContributeInput{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "x", Currency: ledger.Gems, Amount: 5}, wantErr: team.ErrNotMember},
		{name: "insufficient", in: team.ContributeInput{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "m2", Currency: ledger.Gems, Amount: 21}, wantErr: ledger.ErrInsufficientBalance},
		{name: "ok", in: team.ContributeInput{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "m2", Currency: ledger.Gems, Amount: 15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.eng.Teams.Contribute(ctx, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if err != nil {
				t.Fatalf("Contribute() failed: %v", err)
			}
		})
	}

	tr := f.treasury(t)
	assert.Equal(t, int64(100), tr.Sparks)
	assert.Equal(t, int64(15), tr.Gems)
	assert.Equal(t, 5, tr.MemberCount)

	bal, err := f.eng.Ledger.GetBalance(ctx, testutil.Tenant, "m2")
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, int64(5), bal.Gems.Available)

	members, err := f.eng.Teams.ListMembers(ctx, testutil.Tenant, f.team.ID)
	if err != nil {
		t.Fatalf("ListMembers() failed: %v", err)
	}
	for _, m := range members {
		switch m.UserID {
		case "m2":
			assert.Equal(t, int64(15), m.ContributedGems)
		case "cap":
			assert.Equal(t, int64(100), m.ContributedSparks)
		}
	}
}

func TestService_TreasuryVote(t *testing.T) {
	tests := []struct {
		name           string
		amount         int64
		ballots        []bool
		wantStatus     team.VoteStatus
		wantResolution string
		wantTreasury   int64
	}{
		{
			name:         "open below turnout",
			amount:       40,
			ballots:      []bool{true, true, true},
			wantStatus:   team.VoteOpen,
			wantTreasury: 100,
		},
		{
			name:           "approved at turnout",
			amount:         40,
			ballots:        []bool{true, true, false, true},
			wantStatus:     team.VotePassed,
			wantResolution: team.ResolutionApproved,
			wantTreasury:   60,
		},
		{
			name:           "tie approves",
			amount:         40,
			ballots:        []bool{true, false, true, false},
			wantStatus:     team.VotePassed,
			wantResolution: team.ResolutionApproved,
			wantTreasury:   60,
		},
		{
			name:           "denied",
			amount:         40,
			ballots:        []bool{false, false, true, false},
			wantStatus:     team.VoteRejected,
			wantResolution: team.ResolutionDenied,
			wantTreasury:   100,
		},
		{
			name:           "short treasury",
			amount:         500,
			ballots:        []bool{true, true, true, true},
			wantStatus:     team.VoteRejected,
			wantResolution: team.ResolutionShortTreasury,
			wantTreasury:   100,
		},
	}
	voters := []string{"cap", "m1", "m2", "m3", "m4"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			v := f.propose(t, tt.amount)
			assert.Equal(t, 5, v.TotalVoters)
			assert.Equal(t, "new jerseys", v.Purpose)

			var err error
			for i, approve := range tt.ballots {
				if v, err = f.eng.Teams.CastVote(context.Background(), testutil.Tenant, v.ID, voters[i], approve); err != nil {
					t.Fatalf("CastVote() failed: %v", err)
				}
			}
			assert.Equal(t, tt.wantStatus, v.Status)
			assert.Equal(t, tt.wantResolution, v.Resolution)
			assert.Equal(t, tt.wantTreasury, f.treasury(t).Sparks)

			got, err := f.eng.Teams.GetVote(context.Background(), testutil.Tenant, v.ID)
			if err != nil {
				t.Fatalf("GetVote() failed: %v", err)
			}
			assert.Equal(t, tt.wantStatus, got.Status)
		})
	}
}

func TestService_CastVote_errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.propose(t, 10)

	f.clock.Advance(time.Second)
	if _, err := f.eng.Teams.AddMember(ctx, team.NewMember{TenantID: testutil.Tenant, TeamID: f.team.ID, UserID: "late", Role: team.RoleMember}); err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}

	_, err := f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "late", true)
	assert.ErrorIs(t, err, team.ErrNotEligible)

	_, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "stranger", true)
	assert.ErrorIs(t, err, team.ErrNotMember)

	_, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, "missing", "cap", true)
	assert.ErrorIs(t, err, team.ErrVoteNotFound)

	if _, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "cap", true); err != nil {
		t.Fatalf("CastVote() failed: %v", err)
	}
	_, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "cap", false)
	assert.ErrorIs(t, err, team.ErrAlreadyVoted)

	got, err := f.eng.Teams.GetVote(ctx, testutil.Tenant, v.ID)
	if err != nil {
		t.Fatalf("GetVote() failed: %v", err)
	}
	assert.Equal(t, 1, got.VotesFor)
	assert.Equal(t, 0, got.VotesAgainst)

	_, err = f.eng.Teams.ProposeSpend(ctx, team.ProposeSpendInput{
		TenantID: testutil.Tenant, TeamID: f.team.ID, ProposedBy: "stranger", Currency: ledger.Sparks, Amount: 5, Purpose: "snacks",
	})
	assert.ErrorIs(t, err, team.ErrNotMember)
}

func TestService_TreasuryVote_memberLeaves(t *testing.T) {
	ctx := context.Background()

	t.Run("last pending voter leaves", func(t *testing.T) {
		f := setup(t)
		v := f.propose(t, 40)
		var err error
		for _, voter := range []string{"cap", "m1", "m2"} {
			if v, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, voter, true); err != nil {
				t.Fatalf("CastVote() failed: %v", err)
			}
		}
		if err = f.eng.Teams.Leave(ctx, testutil.Tenant, f.team.ID, "m4"); err != nil {
			t.Fatalf("Leave() failed: %v", err)
		}
		// m3 remains eligible, so the vote stays open
		if v, err = f.eng.Teams.GetVote(ctx, testutil.Tenant, v.ID); err != nil {
			t.Fatalf("GetVote() failed: %v", err)
		}
		assert.Equal(t, team.VoteOpen, v.Status)

		if err = f.eng.Teams.Leave(ctx, testutil.Tenant, f.team.ID, "m3"); err != nil {
			t.Fatalf("Leave() failed: %v", err)
		}
		if v, err = f.eng.Teams.GetVote(ctx, testutil.Tenant, v.ID); err != nil {
			t.Fatalf("GetVote() failed: %v", err)
		}
		assert.Equal(t, team.VotePassed, v.Status)
		assert.Equal(t, int64(60), f.treasury(t).Sparks)
	})

	t.Run("remaining members all vote", func(t *testing.T) {
		f := setup(t)
		v := f.propose(t, 40)
		for _, u := range []string{"m3", "m4"} {
			if err := f.eng.Teams.Leave(ctx, testutil.Tenant, f.team.ID, u); err != nil {
				t.Fatalf("Leave() failed: %v", err)
			}
		}
		var err error
		for _, voter := range []string{"cap", "m1"} {
			if v, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, voter, true); err != nil {
				t.Fatalf("CastVote() failed: %v", err)
			}
		}
		assert.Equal(t, team.VoteOpen, v.Status)

		if v, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "m2", false); err != nil {
			t.Fatalf("CastVote() failed: %v", err)
		}
		assert.Equal(t, team.VotePassed, v.Status)
		assert.Equal(t, 5, v.TotalVoters)
		assert.Equal(t, int64(60), f.treasury(t).Sparks)
	})
}

func TestService_TreasuryVote_expiry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.propose(t, 10)

	if _, err := f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "cap", true); err != nil {
		t.Fatalf("CastVote() failed: %v", err)
	}
	f.clock.Advance(49 * time.Hour)

	_, err := f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, "m1", true)
	assert.ErrorIs(t, err, team.ErrVoteClosed)

	got, err := f.eng.Teams.GetVote(ctx, testutil.Tenant, v.ID)
	if err != nil {
		t.Fatalf("GetVote() failed: %v", err)
	}
	assert.Equal(t, team.VoteRejected, got.Status)
	assert.Equal(t, team.ResolutionExpired, got.Resolution)
	assert.Equal(t, v.ExpiresAt, got.ResolvedAt)

	n, err := f.eng.Teams.ExpireVotes(ctx, testutil.Tenant)
	if err != nil {
		t.Fatalf("ExpireVotes() failed: %v", err)
	}
	assert.Equal(t, 1, n)

	votes, err := f.eng.Teams.ListVotes(ctx, team.VoteFilter{TenantID: testutil.Tenant, Status: team.VoteOpen})
	if err != nil {
		t.Fatalf("ListVotes() failed: %v", err)
	}
	assert.Empty(t, votes)

	if n, err = f.eng.Teams.ExpireVotes(ctx, testutil.Tenant); err != nil {
		t.Fatalf("ExpireVotes() failed: %v", err)
	}
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(100), f.treasury(t).Sparks)
}

func TestService_Challenge(t *testing.T) {
	eng, clock := testutil.NewEngine(t)
	ctx := context.Background()
	owls := testutil.FundTeam(t, eng, testutil.CreateTeam(t, eng, clock, "Owls", "ca", "a1"), ledger.Sparks, 100)
	hawks := testutil.FundTeam(t, eng, testutil.CreateTeam(t, eng, clock, "Hawks", "cb", "b1"), ledger.Sparks, 100)

	issue := func(t *testing.T, wager int64) team.Challenge {
		c, err := eng.Teams.IssueChallenge(ctx, team.IssueChallengeInput{
			TenantID:         testutil.Tenant,
			ChallengerTeamID: owls.ID,
			OpponentTeamID:   hawks.ID,
			IssuedBy:         "ca",
			Currency:         ledger.Sparks,
			Wager:            wager,
		})
		if err != nil {
			t.Fatalf("IssueChallenge() failed: %v", err)
		}
		return c
	}
	treasuries := func(t *testing.T) (int64, int64) {
		a, err := eng.Teams.GetTreasury(ctx, testutil.Tenant, owls.ID)
		if err != nil {
			t.Fatalf("GetTreasury() failed: %v", err)
		}
		b, err := eng.Teams.GetTreasury(ctx, testutil.Tenant, hawks.ID)
		if err != nil {
			t.Fatalf("GetTreasury() failed: %v", err)
		}
		return a.Sparks, b.Sparks
	}

	t.Run("invalid", func(t *testing.T) {
		in := team.IssueChallengeInput{TenantID: testutil.Tenant, ChallengerTeamID: owls.ID, OpponentTeamID: hawks.ID, IssuedBy: "a1", Currency: ledger.Sparks, Wager: 10}
		_, err := eng.Teams.IssueChallenge(ctx, in)
		assert.ErrorIs(t, err, team.ErrNotOfficer)

		in.IssuedBy = "ca"
		in.OpponentTeamID = owls.ID
		_, err = eng.Teams.IssueChallenge(ctx, in)
		assert.ErrorIs(t, err, core.ErrValidation)

		in.OpponentTeamID = hawks.ID
		in.Wager = 101
		_, err = eng.Teams.IssueChallenge(ctx, in)
		assert.ErrorIs(t, err, team.ErrInsufficientTreasury)
	})

	t.Run("accept and resolve", func(t *testing.T) {
		c := issue(t, 30)
		assert.Equal(t, team.ChallengePending, c.Status)

		_, err := eng.Teams.RespondChallenge(ctx, testutil.Tenant, c.ID, "b1", true)
		assert.ErrorIs(t, err, team.ErrNotOfficer)

		if c, err = eng.Teams.RespondChallenge(ctx, testutil.Tenant, c.ID, "cb", true); err != nil {
			t.Fatalf("RespondChallenge() failed: %v", err)
		}
		assert.Equal(t, team.ChallengeAccepted, c.Status)
		assert.Equal(t, int64(60), c.Pot)
		a, b := treasuries(t)
		assert.Equal(t, int64(70), a)
		assert.Equal(t, int64(70), b)

		_, err = eng.Teams.ResolveChallenge(ctx, testutil.Tenant, c.ID, "someone-else")
		assert.ErrorIs(t, err, team.ErrNotContender)

		if c, err = eng.Teams.ResolveChallenge(ctx, testutil.Tenant, c.ID, hawks.ID); err != nil {
			t.Fatalf("ResolveChallenge() failed: %v", err)
		}
		assert.Equal(t, team.ChallengeCompleted, c.Status)
		assert.Equal(t, hawks.ID, c.WinnerTeamID)
		a, b = treasuries(t)
		assert.Equal(t, int64(70), a)
		assert.Equal(t, int64(130), b)

		_, err = eng.Teams.ResolveChallenge(ctx, testutil.Tenant, c.ID, owls.ID)
		assert.ErrorIs(t, err, team.ErrChallengeClosed)
	})

	t.Run("decline", func(t *testing.T) {
		c := issue(t, 20)
		a, _ := treasuries(t)
		assert.Equal(t, int64(50), a)

		c, err := eng.Teams.RespondChallenge(ctx, testutil.Tenant, c.ID, "cb", false)
		if err != nil {
			t.Fatalf("RespondChallenge() failed: %v", err)
		}
		assert.Equal(t, team.ChallengeDeclined, c.Status)
		a, b := treasuries(t)
		assert.Equal(t, int64(70), a)
		assert.Equal(t, int64(130), b)

		_, err = eng.Teams.RespondChallenge(ctx, testutil.Tenant, c.ID, "cb", true)
		assert.ErrorIs(t, err, team.ErrChallengeClosed)
	})

	t.Run("expire", func(t *testing.T) {
		c := issue(t, 10)
		clock.Advance(73 * time.Hour)

		_, err := eng.Teams.RespondChallenge(ctx, testutil.Tenant, c.ID, "cb", true)
		assert.ErrorIs(t, err, team.ErrChallengeClosed)

		got, err := eng.Teams.GetChallenge(ctx, testutil.Tenant, c.ID)
		if err != nil {
			t.Fatalf("GetChallenge() failed: %v", err)
		}
		assert.Equal(t, team.ChallengeExpired, got.Status)

		n, err := eng.Teams.ExpireChallenges(ctx, testutil.Tenant)
		if err != nil {
			t.Fatalf("ExpireChallenges() failed: %v", err)
		}
		assert.Equal(t, 1, n)
		a, _ := treasuries(t)
		assert.Equal(t, int64(70), a)
	})
}
