package reward_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/reward"
	"github.com/trezcool/masomo-economy/tests"
)

func available(t *testing.T, eng *economy.Engine, userID string, c ledger.Currency) int64 {
	bal, err := eng.Ledger.GetBalance(context.Background(), testutil.Tenant, userID)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	return bal.Available(c)
}

func daoBalance(t *testing.T, eng *economy.Engine, c ledger.Currency) int64 {
	tr, err := eng.Governance.GetTreasury(context.Background(), testutil.Tenant, c)
	if err != nil {
		t.Fatalf("GetTreasury() failed: %v", err)
	}
	return tr.Balance
}

func TestCompetitionShares(t *testing.T) {
	ratio := decimal.RequireFromString("0.3")
	tests := []struct {
		n           int
		pool        int64
		wantWinners int
		wantShare   int64
	}{
		{n: 10, pool: 100, wantWinners: 3, wantShare: 33},
		{n: 7, pool: 100, wantWinners: 3, wantShare: 33},
		{n: 3, pool: 90, wantWinners: 1, wantShare: 90},
		{n: 1, pool: 5, wantWinners: 1, wantShare: 5},
		{n: 4, pool: 1, wantWinners: 2, wantShare: 0},
		{n: 0, pool: 100, wantWinners: 0, wantShare: 0},
	}
	for _, tt := range tests {
		winners, share := reward.CompetitionShares(tt.n, tt.pool, ratio)
		if winners != tt.wantWinners || share != tt.wantShare {
			t.Errorf("CompetitionShares(%d, %d) = (%d, %d), want (%d, %d)", tt.n, tt.pool, winners, share, tt.wantWinners, tt.wantShare)
		}
	}
}

func TestBountyShares(t *testing.T) {
	ratio := decimal.RequireFromString("0.10")
	tests := []struct {
		winners      int
		amount       int64
		wantWinner   int64
		wantRunnerUp int64
	}{
		{winners: 1, amount: 100, wantWinner: 100, wantRunnerUp: 10},
		{winners: 3, amount: 100, wantWinner: 33, wantRunnerUp: 3},
		{winners: 2, amount: 15, wantWinner: 7, wantRunnerUp: 0},
		{winners: 0, amount: 15, wantWinner: 0, wantRunnerUp: 0},
	}
	for _, tt := range tests {
		w, r := reward.BountyShares(tt.winners, tt.amount, ratio)
		if w != tt.wantWinner || r != tt.wantRunnerUp {
			t.Errorf("BountyShares(%d, %d) = (%d, %d), want (%d, %d)", tt.winners, tt.amount, w, r, tt.wantWinner, tt.wantRunnerUp)
		}
	}
}

func TestDistributor_OnCompetitionCompleted(t *testing.T) {
	eng, _ := testutil.NewEngine(t)
	ctx := context.Background()
	ranked := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}

	tests := []struct {
		name    string
		res     reward.CompetitionResult
		wantErr error
	}{
		{name: "nobody ranked", res: reward.CompetitionResult{TenantID: testutil.Tenant, CompetitionID: "c0", WagerPool: 100, Currency: ledger.Sparks}, wantErr: core.ErrValidation},
		{name: "duplicate ranks", res: reward.CompetitionResult{TenantID: testutil.Tenant, CompetitionID: "c0", WagerPool: 100, Currency: ledger.Sparks, Ranked: []string{"p1", "p1"}}, wantErr: core.ErrValidation},
		{name: "negative pool", res: reward.CompetitionResult{TenantID: testutil.Tenant, CompetitionID: "c0", WagerPool: -1, Currency: ledger.Sparks, Ranked: ranked}, wantErr: core.ErrValidation},
		{name: "ok", res: reward.CompetitionResult{TenantID: testutil.Tenant, CompetitionID: "c1", WagerPool: 100, Currency: ledger.Sparks, Ranked: ranked}},
		{name: "paid twice", res: reward.CompetitionResult{TenantID: testutil.Tenant, CompetitionID: "c1", WagerPool: 100, Currency: ledger.Sparks, Ranked: ranked}, wantErr: reward.ErrAlreadyPaid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, err := eng.Rewards.OnCompetitionCompleted(ctx, tt.res)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("OnCompetitionCompleted() failed: %v", err)
			}
			assert.Len(t, dist.Credits, 3)
			assert.Equal(t, int64(99), dist.Payout.Credited)
			assert.Equal(t, int64(1), dist.Payout.Remainder)
		})
	}

	for i, p := range ranked {
		want := int64(0)
		if i < 3 {
			want = 33
		}
		assert.Equal(t, want, available(t, eng, p, ledger.Sparks), p)
	}
	assert.Equal(t, int64(1), daoBalance(t, eng, ledger.Sparks))

	payouts, err := eng.Rewards.ListPayouts(ctx, testutil.Tenant)
	if err != nil {
		t.Fatalf("ListPayouts() failed: %v", err)
	}
	assert.Len(t, payouts, 1)
}

func TestDistributor_OnBountyAwarded(t *testing.T) {
	tests := []struct {
		name          string
		remainder     string
		wantWinner    int64
		wantRunnerUp  int64
		wantTreasury  int64
		wantRemainder int64
	}{
		{name: "remainder to treasury", remainder: core.RemainderToTreasury, wantWinner: 33, wantRunnerUp: 3, wantTreasury: 1, wantRemainder: 1},
		{name: "remainder burnt", remainder: core.RemainderBurn, wantWinner: 33, wantRunnerUp: 3, wantTreasury: 0, wantRemainder: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pols := core.NewPolicies()
			pols.Default.Remainder = tt.remainder
			eng, _ := testutil.NewEngine(t, pols)

			dist, err := eng.Rewards.OnBountyAwarded(context.Background(), reward.BountyAward{
				TenantID:  testutil.Tenant,
				BountyID:  "b1",
				Winners:   []string{"w1", "w2", "w3"},
				RunnerUps: []string{"r1"},
				Currency:  ledger.Gems,
				Amount:    100,
			})
			if err != nil {
				t.Fatalf("OnBountyAwarded() failed: %v", err)
			}
			assert.Len(t, dist.Credits, 4)
			assert.Equal(t, tt.wantRemainder, dist.Payout.Remainder)
			assert.Equal(t, 3*tt.wantWinner+tt.wantRunnerUp, dist.Payout.Credited)

			for _, w := range []string{"w1", "w2", "w3"} {
				assert.Equal(t, tt.wantWinner, available(t, eng, w, ledger.Gems))
			}
			assert.Equal(t, tt.wantRunnerUp, available(t, eng, "r1", ledger.Gems))
			assert.Equal(t, tt.wantTreasury, daoBalance(t, eng, ledger.Gems))

			txns, err := eng.Ledger.ListTransactions(context.Background(), ledger.TransactionFilter{TenantID: testutil.Tenant, UserID: "r1"})
			if err != nil {
				t.Fatalf("ListTransactions() failed: %v", err)
			}
			if assert.Len(t, txns, 1) {
				assert.Equal(t, ledger.CategoryBountyRunnerUp, txns[0].Category)
				assert.Equal(t, "b1", txns[0].Reference)
			}
		})
	}
}

func TestDistributor_OnBountyAwarded_invalid(t *testing.T) {
	eng, _ := testutil.NewEngine(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		award reward.BountyAward
	}{
		{name: "no winners", award: reward.BountyAward{TenantID: testutil.Tenant, BountyID: "b1", Currency: ledger.Gems, Amount: 10}},
		{name: "zero amount", award: reward.BountyAward{TenantID: testutil.Tenant, BountyID: "b1", Winners: []string{"w1"}, Currency: ledger.Gems}},
		{name: "blank runner-up", award: reward.BountyAward{TenantID: testutil.Tenant, BountyID: "b1", Winners: []string{"w1"}, RunnerUps: []string{" "}, Currency: ledger.Gems, Amount: 10}},
		{name: "unknown currency", award: reward.BountyAward{TenantID: testutil.Tenant, BountyID: "b1", Winners: []string{"w1"}, Currency: "GOLD", Amount: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Rewards.OnBountyAwarded(ctx, tt.award)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}

	payouts, err := eng.Rewards.ListPayouts(ctx, testutil.Tenant)
	if err != nil {
		t.Fatalf("ListPayouts() failed: %v", err)
	}
	assert.Empty(t, payouts)
}
