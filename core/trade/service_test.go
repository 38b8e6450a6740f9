package trade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/core/trade"
	"github.com/trezcool/masomo-economy/tests"
)

type fixture struct {
	eng         *economy.Engine
	clock       *testutil.Clock
	owls, hawks team.Team
}

// setup returns two teams: Owls hold 100 SPARKS, Hawks hold 50 GEMS.
func setup(t *testing.T) fixture {
	eng, clock := testutil.NewEngine(t)
	owls := testutil.FundTeam(t, eng, testutil.CreateTeam(t, eng, clock, "Owls", "ca", "a1"), ledger.Sparks, 100)
	hawks := testutil.FundTeam(t, eng, testutil.CreateTeam(t, eng, clock, "Hawks", "cb", "b1"), ledger.Gems, 50)
	return fixture{eng: eng, clock: clock, owls: owls, hawks: hawks}
}

func (f fixture) propose(t *testing.T, offer, request int64) trade.Trade {
	tr, err := f.eng.Trades.Propose(context.Background(), trade.ProposeInput{
		TenantID:        testutil.Tenant,
		ProposerTeamID:  f.owls.ID,
		RecipientTeamID: f.hawks.ID,
		ProposedBy:      "ca",
		OfferCurrency:   ledger.Sparks,
		OfferAmount:     offer,
		RequestCurrency: ledger.Gems,
		RequestAmount:   request,
		Message:         " sparks for gems ",
	})
	if err != nil {
		t.Fatalf("Propose() failed: %v", err)
	}
	return tr
}

func (f fixture) treasury(t *testing.T, teamID string) team.Treasury {
	tr, err := f.eng.Teams.GetTreasury(context.Background(), testutil.Tenant, teamID)
	if err != nil {
		t.Fatalf("GetTreasury() failed: %v", err)
	}
	return tr
}

func TestService_Propose(t *testing.T) {
	f := setup(t)

	valid := func() trade.ProposeInput {
		return trade.ProposeInput{
			TenantID:        testutil.Tenant,
			ProposerTeamID:  f.owls.ID,
			RecipientTeamID: f.hawks.ID,
			ProposedBy:      "ca",
			OfferCurrency:   ledger.Sparks,
			OfferAmount:     40,
			RequestCurrency: ledger.Gems,
			RequestAmount:   10,
		}
	}

	tests := []struct {
		name    string
		modify  func(in *trade.ProposeInput)
		wantErr error
	}{
		{name: "same team", modify: func(in *trade.ProposeInput) { in.RecipientTeamID = f.owls.ID }, wantErr: core.ErrValidation},
		{name: "voice", modify: func(in *trade.ProposeInput) { in.OfferCurrency = ledger.Voice }, wantErr: core.ErrValidation},
		{name: "zero request", modify: func(in *trade.ProposeInput) { in.RequestAmount = 0 }, wantErr: core.ErrValidation},
		{name: "not an officer", modify: func(in *trade.ProposeInput) { in.ProposedBy = "a1" }, wantErr: team.ErrNotOfficer},
		{name: "unknown recipient", modify: func(in *trade.ProposeInput) { in.RecipientTeamID = "missing" }, wantErr: team.ErrTeamNotFound},
		{name: "offer not covered", modify: func(in *trade.ProposeInput) { in.OfferAmount = 101 }, wantErr: trade.ErrProposerInsufficient},
		{name: "ok", modify: func(in *trade.ProposeInput) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.modify(&in)
			tr, err := f.eng.Trades.Propose(context.Background(), in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("Propose() failed: %v", err)
			}
			assert.Equal(t, trade.StatusProposed, tr.Status)
			assert.Equal(t, testutil.Epoch.Add(2*time.Second+72*time.Hour), tr.ExpiresAt)
		})
	}

	// proposing escrows nothing
	assert.Equal(t, int64(100), f.treasury(t, f.owls.ID).Sparks)
}

func TestService_Accept(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tr := f.propose(t, 40, 10)
	assert.Equal(t, "sparks for gems", tr.Message)

	_, err := f.eng.Trades.Accept(ctx, testutil.Tenant, tr.ID, "ca")
	assert.ErrorIs(t, err, team.ErrNotOfficer)

	tr, err = f.eng.Trades.Accept(ctx, testutil.Tenant, tr.ID, "cb")
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	assert.Equal(t, trade.StatusCompleted, tr.Status)
	assert.Equal(t, "cb", tr.RespondedBy)

	owls, hawks := f.treasury(t, f.owls.ID), f.treasury(t, f.hawks.ID)
	assert.Equal(t, int64(60), owls.Sparks)
	assert.Equal(t, int64(10), owls.Gems)
	assert.Equal(t, int64(40), hawks.Sparks)
	assert.Equal(t, int64(40), hawks.Gems)

	_, err = f.eng.Trades.Accept(ctx, testutil.Tenant, tr.ID, "cb")
	assert.ErrorIs(t, err, trade.ErrNotProposed)
	assert.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.eng.Trades.Accept(ctx, testutil.Tenant, "missing", "cb")
	assert.ErrorIs(t, err, trade.ErrTradeNotFound)
}

func TestService_Accept_insufficient(t *testing.T) {
	tests := []struct {
		name    string
		drain   func(t *testing.T, f fixture)
		request int64
		wantErr error
	}{
		{
			name:    "recipient short",
			drain:   func(t *testing.T, f fixture) {},
			request: 51,
			wantErr: trade.ErrRecipientInsufficient,
		},
		{
			name: "proposer spent the offer meanwhile",
			drain: func(t *testing.T, f fixture) {
				ctx := context.Background()
				v, err := f.eng.Teams.ProposeSpend(ctx, team.ProposeSpendInput{
					TenantID: testutil.Tenant, TeamID: f.owls.ID, ProposedBy: "ca", Currency: ledger.Sparks, Amount: 90, Purpose: "trip",
				})
				if err != nil {
					t.Fatalf("ProposeSpend() failed: %v", err)
				}
				for _, voter := range []string{"ca", "a1"} {
					if _, err = f.eng.Teams.CastVote(ctx, testutil.Tenant, v.ID, voter, true); err != nil {
						t.Fatalf("CastVote() failed: %v", err)
					}
				}
			},
			request: 10,
			wantErr: trade.ErrProposerInsufficient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			tr := f.propose(t, 40, tt.request)
			tt.drain(t, f)

			_, err := f.eng.Trades.Accept(context.Background(), testutil.Tenant, tr.ID, "cb")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, core.ErrInsufficientTreasury)

			got, err := f.eng.Trades.Get(context.Background(), testutil.Tenant, tr.ID)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			assert.Equal(t, trade.StatusProposed, got.Status)
			assert.Equal(t, int64(50), f.treasury(t, f.hawks.ID).Gems)
			assert.Equal(t, int64(0), f.treasury(t, f.hawks.ID).Sparks)
		})
	}
}

func TestService_Accept_concurrent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tr := f.propose(t, 40, 10)

	var g errgroup.Group
	results := make([]error, 8)
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = f.eng.Trades.Accept(ctx, testutil.Tenant, tr.ID, "cb")
			return nil
		})
	}
	_ = g.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, trade.ErrNotProposed)
	}
	assert.Equal(t, 1, ok)

	owls, hawks := f.treasury(t, f.owls.ID), f.treasury(t, f.hawks.ID)
	assert.Equal(t, int64(60), owls.Sparks)
	assert.Equal(t, int64(10), owls.Gems)
	assert.Equal(t, int64(40), hawks.Sparks)
	assert.Equal(t, int64(40), hawks.Gems)
}

func TestService_CancelDecline(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.propose(t, 10, 5)
	_, err := f.eng.Trades.Cancel(ctx, testutil.Tenant, first.ID, "cb")
	assert.ErrorIs(t, err, team.ErrNotOfficer)
	got, err := f.eng.Trades.Cancel(ctx, testutil.Tenant, first.ID, "ca")
	if err != nil {
		t.Fatalf("Cancel() failed: %v", err)
	}
	assert.Equal(t, trade.StatusCancelled, got.Status)

	second := f.propose(t, 10, 5)
	_, err = f.eng.Trades.Decline(ctx, testutil.Tenant, second.ID, "ca")
	assert.ErrorIs(t, err, team.ErrNotOfficer)
	got, err = f.eng.Trades.Decline(ctx, testutil.Tenant, second.ID, "cb")
	if err != nil {
		t.Fatalf("Decline() failed: %v", err)
	}
	assert.Equal(t, trade.StatusDeclined, got.Status)

	_, err = f.eng.Trades.Accept(ctx, testutil.Tenant, second.ID, "cb")
	assert.ErrorIs(t, err, trade.ErrNotProposed)

	trades, err := f.eng.Trades.List(ctx, trade.Filter{TenantID: testutil.Tenant, TeamID: f.hawks.ID})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	assert.Len(t, trades, 2)
	assert.Equal(t, int64(100), f.treasury(t, f.owls.ID).Sparks)
}

func TestService_Expiry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tr := f.propose(t, 10, 5)

	f.clock.Advance(72*time.Hour + time.Second)

	got, err := f.eng.Trades.Get(ctx, testutil.Tenant, tr.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	assert.Equal(t, trade.StatusExpired, got.Status)

	_, err = f.eng.Trades.Accept(ctx, testutil.Tenant, tr.ID, "cb")
	assert.ErrorIs(t, err, trade.ErrNotProposed)

	n, err := f.eng.Trades.SweepExpired(ctx, testutil.Tenant)
	if err != nil {
		t.Fatalf("SweepExpired() failed: %v", err)
	}
	assert.Equal(t, 1, n)

	trades, err := f.eng.Trades.List(ctx, trade.Filter{TenantID: testutil.Tenant, Status: trade.StatusExpired})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	assert.Len(t, trades, 1)

	rep, err := f.eng.Sweep(ctx, testutil.Tenant)
	if err != nil {
		t.Fatalf("Sweep() failed: %v", err)
	}
	assert.Equal(t, economy.SweepReport{TenantID: testutil.Tenant}, rep)
}
