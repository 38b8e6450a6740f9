package dummydb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/governance"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/reward"
	"github.com/trezcool/masomo-economy/core/staking"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/core/trade"
)

type (
	// DB is an in-memory store. A unit of work holds the DB lock until it ends and rolls
	// back through an undo journal when it fails.
	DB struct {
		mu  sync.Mutex
		seq int64

		balances     map[string]ledger.TokenBalance
		transactions []ledger.Transaction

		positions map[string]row[staking.Position]

		teams      map[string]row[team.Team]
		members    map[string]row[team.Member] // by tenant/user: one team per user
		votes      map[string]row[team.TreasuryVote]
		ballots    map[string]team.Ballot
		challenges map[string]row[team.Challenge]

		trades map[string]row[trade.Trade]

		proposals   map[string]row[governance.Proposal]
		govVotes    map[string]row[governance.Vote]
		delegations map[string]row[governance.Delegation]
		treasuries  map[string]governance.DaoTreasury
		treasuryTxs []governance.TreasuryTransaction

		payouts map[string]row[reward.Payout]
	}

	// row keeps the insertion order of a record.
	row[T any] struct {
		seq int64
		val T
	}

	txn struct {
		db   *DB
		undo []func()
	}

	txKey struct{}
)

var _ economy.Store = (*DB)(nil) // interface compliance check

func Open() (*DB, error) {
	db := &DB{
		balances:    make(map[string]ledger.TokenBalance),
		positions:   make(map[string]row[staking.Position]),
		teams:       make(map[string]row[team.Team]),
		members:     make(map[string]row[team.Member]),
		votes:       make(map[string]row[team.TreasuryVote]),
		ballots:     make(map[string]team.Ballot),
		challenges:  make(map[string]row[team.Challenge]),
		trades:      make(map[string]row[trade.Trade]),
		proposals:   make(map[string]row[governance.Proposal]),
		govVotes:    make(map[string]row[governance.Vote]),
		delegations: make(map[string]row[governance.Delegation]),
		treasuries:  make(map[string]governance.DaoTreasury),
		payouts:     make(map[string]row[reward.Payout]),
	}
	return db, nil
}

func (db *DB) Ledger() ledger.Repository         { return ledgerRepository{db} }
func (db *DB) Staking() staking.Repository       { return stakingRepository{db} }
func (db *DB) Teams() team.Repository            { return teamRepository{db} }
func (db *DB) Trades() trade.Repository          { return tradeRepository{db} }
func (db *DB) Governance() governance.Repository { return governanceRepository{db} }
func (db *DB) Rewards() reward.Repository        { return rewardRepository{db} }

// InTx runs fn as one unit of work, joining the unit carried by ctx if any.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if tx, ok := ctx.Value(txKey{}).(*txn); ok && tx.db == db {
		return fn(ctx)
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &txn{db: db}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, tx))
}

// view runs fn within the unit of work carried by ctx, or alone under the DB lock.
func (db *DB) view(ctx context.Context, fn func(tx *txn) error) error {
	if tx, ok := ctx.Value(txKey{}).(*txn); ok && tx.db == db {
		return fn(tx)
	}
	return db.InTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*txn))
	})
}

func (tx *txn) record(undo func()) {
	tx.undo = append(tx.undo, undo)
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *txn) nextSeq() int64 {
	tx.db.seq++
	return tx.db.seq
}

// put sets m[k] to v, journaling the previous state.
func put[V any](tx *txn, m map[string]V, k string, v V) {
	old, existed := m[k]
	m[k] = v
	tx.record(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
}

func remove[V any](tx *txn, m map[string]V, k string) {
	old, existed := m[k]
	if !existed {
		return
	}
	delete(m, k)
	tx.record(func() { m[k] = old })
}

// appendTo appends v to *s, journaling the previous length.
func appendTo[V any](tx *txn, s *[]V, v V) {
	n := len(*s)
	*s = append(*s, v)
	tx.record(func() { *s = (*s)[:n] })
}

func key(parts ...string) string {
	return strings.Join(parts, "/")
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneSlice[V any](s []V) []V {
	if s == nil {
		return nil
	}
	return append(make([]V, 0, len(s)), s...)
}

// sorted returns the values of rows accepted by keep, in insertion order.
func sorted[T any](rows map[string]row[T], keep func(T) bool) []T {
	matched := make([]row[T], 0, len(rows))
	for _, r := range rows {
		if keep(r.val) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	vals := make([]T, 0, len(matched))
	for _, r := range matched {
		vals = append(vals, r.val)
	}
	return vals
}
