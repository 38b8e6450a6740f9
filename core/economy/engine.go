// Package economy wires the token economy services over a single store.
package economy

import (
	"context"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/governance"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/reward"
	"github.com/trezcool/masomo-economy/core/staking"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/core/trade"
)

// Store gives access to every repository and runs units of work spanning them.
type Store interface {
	core.Transactor
	Ledger() ledger.Repository
	Staking() staking.Repository
	Teams() team.Repository
	Trades() trade.Repository
	Governance() governance.Repository
	Rewards() reward.Repository
}

type Engine struct {
	Ledger     *ledger.Service
	Staking    *staking.Service
	Teams      *team.Service
	Trades     *trade.Service
	Governance *governance.Service
	Rewards    *reward.Distributor

	log      core.Logger
	policies *core.Policies
}

func New(store Store, policies *core.Policies, logger core.Logger, clock core.Clock) *Engine {
	if clock == nil {
		clock = core.SystemClock
	}
	if policies == nil {
		policies = core.NewPolicies()
	}

	e := &Engine{log: logger, policies: policies}
	e.Ledger = ledger.NewService(store, store.Ledger(), logger, clock)
	e.Staking = staking.NewService(store, store.Staking(), e.Ledger, logger, clock, policies)
	e.Teams = team.NewService(store, store.Teams(), e.Ledger, logger, clock, policies)
	e.Trades = trade.NewService(store, store.Trades(), e.Teams, logger, clock, policies)
	e.Governance = governance.NewService(store, store.Governance(), e.Ledger, logger, clock, policies)
	e.Rewards = reward.NewDistributor(store, store.Rewards(), e.Ledger, e.Governance, logger, clock, policies)
	return e
}

func (e *Engine) Policies() *core.Policies {
	return e.policies
}

// SweepReport counts the entities whose expiry was persisted by a sweep.
type SweepReport struct {
	TenantID   string `json:"tenant_id"`
	Trades     int    `json:"trades"`
	Votes      int    `json:"votes"`
	Challenges int    `json:"challenges"`
}

// Sweep persists every expiry already effective for the tenant.
func (e *Engine) Sweep(ctx context.Context, tenantID string) (SweepReport, error) {
	rep := SweepReport{TenantID: tenantID}
	var err error
	if rep.Trades, err = e.Trades.SweepExpired(ctx, tenantID); err != nil {
		return rep, err
	}
	if rep.Votes, err = e.Teams.ExpireVotes(ctx, tenantID); err != nil {
		return rep, err
	}
	if rep.Challenges, err = e.Teams.ExpireChallenges(ctx, tenantID); err != nil {
		return rep, err
	}
	return rep, nil
}
