package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/storage/database/dummy"
	"github.com/trezcool/masomo-economy/tests"
)

const user = "alice"

func setup(t *testing.T) (*ledger.Service, *dummydb.DB) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	eng, _ := testutil.NewEngineWithStore(db)
	testutil.Fund(t, eng, user, ledger.Sparks, 100)
	return eng.Ledger, db
}

func TestService_Earn(t *testing.T) {
	svc, _ := setup(t)

	tests := []struct {
		name    string
		in      ledger.EarnInput
		wantErr error
	}{
		{
			name:    "zero amount",
			in:      ledger.EarnInput{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks, Amount: 0, Category: "QUIZ"},
			wantErr: ledger.ErrInvalidAmount,
		},
		{
			name:    "negative amount",
			in:      ledger.EarnInput{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks, Amount: -5, Category: "QUIZ"},
			wantErr: core.ErrValidation,
		},
		{
			name:    "unknown currency",
			in:      ledger.EarnInput{TenantID: testutil.Tenant, UserID: user, Currency: "GOLD", Amount: 5, Category: "QUIZ"},
			wantErr: core.ErrValidation,
		},
		{
			name:    "blank user",
			in:      ledger.EarnInput{TenantID: testutil.Tenant, UserID: "  ", Currency: ledger.Sparks, Amount: 5, Category: "QUIZ"},
			wantErr: core.ErrValidation,
		},
		{
			name: "ok",
			in:   ledger.EarnInput{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Gems, Amount: 7, Category: "QUIZ", Reference: "quiz-1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := svc.Earn(context.Background(), tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("Earn() failed: %v", err)
			}
			assert.Equal(t, ledger.KindEarn, txn.Kind)
			assert.Equal(t, tt.in.Amount, txn.Amount)
			assert.Equal(t, int64(0), txn.BalanceBefore)
			assert.Equal(t, tt.in.Amount, txn.BalanceAfter)
			assert.Equal(t, "quiz-1", txn.Reference)
			assert.NotEmpty(t, txn.ID)
		})
	}

	bal, err := svc.GetBalance(context.Background(), testutil.Tenant, user)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, int64(100), bal.Sparks.Available)
	assert.Equal(t, int64(7), bal.Gems.Available)
	assert.Equal(t, int64(7), bal.Gems.LifetimeEarned)
}

func TestService_Spend(t *testing.T) {
	tests := []struct {
		name          string
		amount        int64
		wantErr       error
		wantAvailable int64
	}{
		{name: "zero amount", amount: 0, wantErr: ledger.ErrInvalidAmount, wantAvailable: 100},
		{name: "insufficient", amount: 101, wantErr: ledger.ErrInsufficientBalance, wantAvailable: 100},
		{name: "partial", amount: 30, wantAvailable: 70},
		{name: "everything", amount: 100, wantAvailable: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := setup(t)
			ctx := context.Background()

			txn, err := svc.Spend(ctx, ledger.SpendInput{
				TenantID: testutil.Tenant,
				UserID:   user,
				Currency: ledger.Sparks,
				Amount:   tt.amount,
				Category: "SHOP",
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if err != nil {
				t.Fatalf("Spend() failed: %v", err)
			} else {
				assert.Equal(t, -tt.amount, txn.Amount)
				assert.Equal(t, int64(100), txn.BalanceBefore)
				assert.Equal(t, tt.wantAvailable, txn.BalanceAfter)
				assert.Equal(t, int64(2), txn.Sequence)
			}

			bal, err := svc.GetBalance(ctx, testutil.Tenant, user)
			if err != nil {
				t.Fatalf("GetBalance() failed: %v", err)
			}
			assert.Equal(t, tt.wantAvailable, bal.Sparks.Available)
			assert.Equal(t, int64(100), bal.Sparks.LifetimeEarned)
		})
	}
}

func TestService_InsufficientBalanceKind(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Spend(context.Background(), ledger.SpendInput{
		TenantID: testutil.Tenant, UserID: "bob", Currency: ledger.Voice, Amount: 1, Category: "SHOP",
	})
	assert.ErrorIs(t, err, core.ErrInsufficientBalance)
	assert.Equal(t, core.KindInsufficientBalance, core.KindOf(err))
}

func TestService_GetBalance_unknownUser(t *testing.T) {
	svc, _ := setup(t)
	bal, err := svc.GetBalance(context.Background(), testutil.Tenant, "nobody")
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, "nobody", bal.UserID)
	assert.Zero(t, bal.Version)
	assert.Zero(t, bal.Available(ledger.Sparks))
}

func TestService_ReplayMatchesBalance(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	for i, amount := range []int64{10, -25, 40, -5, -120} {
		var err error
		if amount > 0 {
			_, err = svc.Earn(ctx, ledger.EarnInput{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks, Amount: amount, Category: "QUIZ"})
		} else {
			_, err = svc.Spend(ctx, ledger.SpendInput{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks, Amount: -amount, Category: "SHOP"})
		}
		if err != nil {
			t.Fatalf("posting #%d failed: %v", i, err)
		}
	}

	txns, err := svc.ListTransactions(ctx, ledger.TransactionFilter{TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks})
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	var running int64
	for i, txn := range txns {
		assert.Equal(t, running, txn.BalanceBefore, "transaction #%d", i)
		running += txn.Amount
		assert.Equal(t, running, txn.BalanceAfter, "transaction #%d", i)
		assert.Equal(t, int64(i+1), txn.Sequence)
	}

	bal, err := svc.GetBalance(ctx, testutil.Tenant, user)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, running, bal.Sparks.Available)
	assert.Equal(t, int64(0), bal.Sparks.Available)

	report, err := svc.Reconcile(ctx, testutil.Tenant, user)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	assert.Equal(t, 6, report.Transactions)
	assert.Empty(t, report.Drifted())
}

func TestService_Reconcile_drift(t *testing.T) {
	svc, db := setup(t)
	ctx := context.Background()

	bal, err := db.Ledger().GetBalance(ctx, testutil.Tenant, user)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	bal.Sparks.Available += 50
	bal.Version++
	if err = db.Ledger().SaveBalance(ctx, bal); err != nil {
		t.Fatalf("SaveBalance() failed: %v", err)
	}

	report, err := svc.Reconcile(ctx, testutil.Tenant, user)
	assert.ErrorIs(t, err, ledger.ErrLedgerDrift)
	assert.Equal(t, []ledger.Currency{ledger.Sparks}, report.Drifted())
	assert.Equal(t, int64(100), report.Replayed[ledger.Sparks].Available)
	assert.Equal(t, int64(150), report.Projected[ledger.Sparks].Available)
}

func TestService_Post(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, ledger.Posting{TenantID: testutil.Tenant, UserID: user, Currency: "GOLD", Kind: ledger.KindEarn, AvailableDelta: 1})
	assert.ErrorIs(t, err, core.ErrValidation)

	// moving available into staked keeps both pockets consistent
	_, err = svc.Post(ctx, ledger.Posting{
		TenantID:       testutil.Tenant,
		UserID:         user,
		Currency:       ledger.Sparks,
		Kind:           ledger.KindStake,
		AvailableDelta: -60,
		StakedDelta:    60,
		Category:       ledger.CategoryStaking,
	})
	if err != nil {
		t.Fatalf("Post() failed: %v", err)
	}

	// releasing more than is staked is refused and leaves nothing behind
	_, err = svc.Post(ctx, ledger.Posting{
		TenantID:       testutil.Tenant,
		UserID:         user,
		Currency:       ledger.Sparks,
		Kind:           ledger.KindUnstake,
		AvailableDelta: 70,
		StakedDelta:    -70,
		Category:       ledger.CategoryStaking,
	})
	assert.ErrorIs(t, err, ledger.ErrNegativeBalance)

	bal, err := svc.GetBalance(ctx, testutil.Tenant, user)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, int64(40), bal.Sparks.Available)
	assert.Equal(t, int64(60), bal.Sparks.Staked)

	txns, err := svc.ListTransactions(ctx, ledger.TransactionFilter{TenantID: testutil.Tenant, UserID: user})
	if err != nil {
		t.Fatalf("ListTransactions() failed: %v", err)
	}
	assert.Len(t, txns, 2)
}

func TestService_ConcurrentSpends(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	var g errgroup.Group
	results := make([]error, 20)
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = svc.Spend(ctx, ledger.SpendInput{
				TenantID: testutil.Tenant, UserID: user, Currency: ledger.Sparks, Amount: 10, Category: "SHOP",
			})
			return nil
		})
	}
	_ = g.Wait()

	var ok, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case core.KindOf(err) == core.KindInsufficientBalance:
			insufficient++
		default:
			t.Errorf("Spend() unexpected error: %v", err)
		}
	}
	assert.Equal(t, 10, ok)
	assert.Equal(t, 10, insufficient)

	bal, err := svc.GetBalance(ctx, testutil.Tenant, user)
	if err != nil {
		t.Fatalf("GetBalance() failed: %v", err)
	}
	assert.Equal(t, int64(0), bal.Sparks.Available)
	assert.Equal(t, int64(11), bal.Version)
}
