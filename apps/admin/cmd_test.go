package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/staking"
	"github.com/trezcool/masomo-economy/storage/database"
	"github.com/trezcool/masomo-economy/storage/database/sqlx"
	"github.com/trezcool/masomo-economy/tests"
)

func setup(t *testing.T) (*commandLine, *economy.Engine) {
	// set up DB & engine
	db := testutil.PrepareDB(t)
	eng, _ := testutil.NewEngineWithStore(sqlxrepos.NewStore(db, database.SQLite))

	// start CLI
	return &commandLine{
		db:     db.DB,
		engine: database.SQLite,
		eng:    eng,
		out:    new(bytes.Buffer),
	}, eng
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantOut    string
}

func (tt cliTest) check(t *testing.T, cli *commandLine) {
	out := new(bytes.Buffer)
	cli.out = out

	err := cli.run(append([]string{"admin"}, tt.args...))
	switch {
	case tt.wantErr != nil:
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err == nil || err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error = %v, wantErrStr %s", err, tt.wantErrStr)
		}
	case err != nil:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
	if tt.wantOut != "" {
		assert.Contains(t, out.String(), tt.wantOut)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	orig := runMigrationsFunc
	t.Cleanup(func() { runMigrationsFunc = orig })
	runMigrationsFunc = func(db *sql.DB, engine, command string, args ...string) error {
		if engine != database.SQLite {
			return fmt.Errorf("unexpected engine %q", engine)
		}
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "leaderboard", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli)
		})
	}
}

func Test_commandLine_migrate_status(t *testing.T) {
	cli, _ := setup(t)

	// real goose run against the already migrated database
	tt := cliTest{name: "status", args: []string{"migrate", "status"}}
	tt.check(t, cli)
}

func Test_commandLine_economy(t *testing.T) {
	cli, eng := setup(t)
	ctx := context.Background()

	testutil.Fund(t, eng, "alice", ledger.Sparks, 2000)
	_, err := eng.Staking.Stake(ctx, staking.StakeInput{
		TenantID: testutil.Tenant, UserID: "alice", PoolType: staking.PoolSavings, Currency: ledger.Sparks, Amount: 1000, LockDays: 7,
	})
	if err != nil {
		t.Fatalf("Stake() failed: %v", err)
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "balance: no args", args: []string{"balance"}, wantErr: errHelp},
		{name: "balance: no user", args: []string{"balance", "-tenant", testutil.Tenant}, wantErr: errHelp},
		{name: "balance", args: []string{"balance", "-tenant", testutil.Tenant, "-user", "alice"}, wantOut: `"staked": 1000`},
		{name: "balance: unknown user", args: []string{"balance", "-tenant", testutil.Tenant, "-user", "bob"}, wantOut: `"user_id": "bob"`},
		{name: "reconcile: no args", args: []string{"reconcile"}, wantErr: errHelp},
		{name: "reconcile", args: []string{"reconcile", "-tenant", testutil.Tenant, "-user", "alice"}, wantOut: `"transactions": 2`},
		{name: "fund-dao: no currency", args: []string{"fund-dao", "-tenant", testutil.Tenant, "-amount", "5"}, wantErr: errHelp},
		{name: "fund-dao: zero amount", args: []string{"fund-dao", "-tenant", testutil.Tenant, "-currency", "GEMS"}, wantErr: core.ErrValidation},
		{name: "fund-dao: unknown currency", args: []string{"fund-dao", "-tenant", testutil.Tenant, "-currency", "GOLD", "-amount", "5"}, wantErr: core.ErrValidation},
		{name: "fund-dao", args: []string{"fund-dao", "-tenant", testutil.Tenant, "-currency", "GEMS", "-amount", "50", "-memo", "seed"}, wantOut: `"balance_after": 50`},
		{name: "accrue-yield: no tenant", args: []string{"accrue-yield"}, wantErr: errHelp},
		{name: "accrue-yield", args: []string{"accrue-yield", "-tenant", testutil.Tenant}, wantOut: "accrued yield on 1 positions"},
		{name: "sweep: no tenant", args: []string{"sweep"}, wantErr: errHelp},
		{name: "sweep", args: []string{"sweep", "-tenant", testutil.Tenant}, wantOut: `"trades": 0`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli)
		})
	}

	tr, err := eng.Governance.GetTreasury(ctx, testutil.Tenant, ledger.Gems)
	if err != nil {
		t.Fatalf("GetTreasury() failed: %v", err)
	}
	assert.Equal(t, int64(50), tr.Balance)

	pos, err := eng.Staking.ListPositions(ctx, testutil.Tenant, "alice")
	if err != nil {
		t.Fatalf("ListPositions() failed: %v", err)
	}
	if assert.Len(t, pos, 1) {
		assert.Equal(t, int64(1), pos[0].YieldAccrued)
	}
}
