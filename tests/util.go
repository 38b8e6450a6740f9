package testutil

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/services/logger"
	"github.com/trezcool/masomo-economy/storage/database"
	"github.com/trezcool/masomo-economy/storage/database/dummy"
)

const Tenant = "school-a"

// Epoch is the starting time of every test clock.
var Epoch = time.Date(2021, 1, 4, 8, 0, 0, 0, time.UTC)

// Clock is a settable core.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: Epoch}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func NewConfig() *core.Config {
	return &core.Config{Env: "TEST", TestMode: true, AppName: "masomo-economy"}
}

func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
}

// NewEngine returns an engine over a fresh in-memory store.
func NewEngine(t *testing.T, policies ...*core.Policies) (*economy.Engine, *Clock) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return NewEngineWithStore(db, policies...)
}

func NewEngineWithStore(store economy.Store, policies ...*core.Policies) (*economy.Engine, *Clock) {
	pols := core.NewPolicies()
	if len(policies) > 0 {
		pols = policies[0]
	}
	clock := NewClock()
	return economy.New(store, pols, NewLogger(), clock.Now), clock
}

// PrepareDB returns a migrated in-memory SQLite database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	conf := NewConfig()
	conf.Database.Engine = database.SQLite
	conf.Database.Path = ":memory:"

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func Fund(t *testing.T, eng *economy.Engine, userID string, c ledger.Currency, amount int64) {
	_, err := eng.Ledger.Earn(context.Background(), ledger.EarnInput{
		TenantID: Tenant,
		UserID:   userID,
		Currency: c,
		Amount:   amount,
		Category: "TEST_FUNDING",
	})
	if err != nil {
		t.Fatalf("Fund() failed: %v", err)
	}
}

// CreateTeam creates a team captained by captain with the given members. Each member joins
// one second after the previous one.
func CreateTeam(t *testing.T, eng *economy.Engine, clock *Clock, name, captain string, members ...string) team.Team {
	ctx := context.Background()
	tm, err := eng.Teams.CreateTeam(ctx, team.NewTeam{TenantID: Tenant, Name: name, CaptainID: captain})
	if err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}
	for _, m := range members {
		clock.Advance(time.Second)
		if _, err = eng.Teams.AddMember(ctx, team.NewMember{TenantID: Tenant, TeamID: tm.ID, UserID: m, Role: team.RoleMember}); err != nil {
			t.Fatalf("CreateTeam() failed: %v", err)
		}
	}
	if tm, err = eng.Teams.GetTeam(ctx, Tenant, tm.ID); err != nil {
		t.Fatalf("CreateTeam() failed: %v", err)
	}
	return tm
}

// FundTeam gives amount to the captain and contributes it to the team treasury.
func FundTeam(t *testing.T, eng *economy.Engine, tm team.Team, c ledger.Currency, amount int64) team.Team {
	Fund(t, eng, tm.CaptainID, c, amount)
	tm, err := eng.Teams.Contribute(context.Background(), team.ContributeInput{
		TenantID: Tenant,
		TeamID:   tm.ID,
		UserID:   tm.CaptainID,
		Currency: c,
		Amount:   amount,
	})
	if err != nil {
		t.Fatalf("FundTeam() failed: %v", err)
	}
	return tm
}
