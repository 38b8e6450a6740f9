package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/masomo-economy/core/economy"
	"github.com/trezcool/masomo-economy/core/governance"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/core/reward"
	"github.com/trezcool/masomo-economy/core/staking"
	"github.com/trezcool/masomo-economy/core/team"
	"github.com/trezcool/masomo-economy/core/trade"
	"github.com/trezcool/masomo-economy/storage/database"
)

const tracerName = "github.com/trezcool/masomo-economy/storage/database/sqlx"

type (
	// Store runs the economy over a relational database. A unit of work is a database
	// transaction carried by the context.
	Store struct {
		db     *sqlx.DB
		engine string
		tracer trace.Tracer
	}

	txKey struct{}
)

var _ economy.Store = (*Store)(nil) // interface compliance check

func NewStore(db *sqlx.DB, engine string) *Store {
	return &Store{db: db, engine: engine, tracer: otel.Tracer(tracerName)}
}

func (s *Store) Ledger() ledger.Repository         { return ledgerRepository{s} }
func (s *Store) Staking() staking.Repository       { return stakingRepository{s} }
func (s *Store) Teams() team.Repository            { return teamRepository{s} }
func (s *Store) Trades() trade.Repository          { return tradeRepository{s} }
func (s *Store) Governance() governance.Repository { return governanceRepository{s} }
func (s *Store) Rewards() reward.Repository        { return rewardRepository{s} }

// InTx runs fn in a database transaction, joining the transaction carried by ctx if any.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	ctx, span := s.tracer.Start(ctx, "economy.unit_of_work",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("db.system", s.engine)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			err = errors.Wrap(err, "committing transaction")
		}
	}()
	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return s.db
}

// forUpdate returns the row locking clause of the engine. SQLite locks the whole database
// for the duration of a write transaction.
func (s *Store) forUpdate() string {
	if s.engine == database.Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s *Store) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	e := s.ext(ctx)
	return sqlx.GetContext(ctx, e, dest, e.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	e := s.ext(ctx)
	return sqlx.SelectContext(ctx, e, dest, e.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	e := s.ext(ctx)
	return e.ExecContext(ctx, e.Rebind(query), args...)
}

// execNamed runs a query with :name parameters bound from the db tags of arg.
func (s *Store) execNamed(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, s.ext(ctx), query, arg)
}

// mustAffect maps an update that matched no row to notFound.
func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "counting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// trapNoRowsErr maps "no rows" errors to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps unique constraint violations to conflict
func trapUniqueErr(err error, conflict error, msg string) error {
	if isUniqueViolation(err) {
		return conflict
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE"))
	}
	return false
}

// filter builds a WHERE clause from optional conditions.
type filter struct {
	conds []string
	args  []interface{}
}

func where(cond string, arg interface{}) *filter {
	return (&filter{}).and(cond, arg)
}

func (f *filter) and(cond string, arg interface{}) *filter {
	f.conds = append(f.conds, cond)
	f.args = append(f.args, arg)
	return f
}

// andIf adds the condition when ok.
func (f *filter) andIf(ok bool, cond string, arg interface{}) *filter {
	if ok {
		return f.and(cond, arg)
	}
	return f
}

func (f *filter) String() string {
	return " WHERE " + strings.Join(f.conds, " AND ")
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// marshalJSON encodes v as a nullable TEXT column; empty values are stored as NULL.
func marshalJSON(v interface{}, empty bool) (null.String, error) {
	if empty {
		return null.String{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return null.String{}, errors.Wrap(err, "encoding json column")
	}
	return null.StringFrom(string(b)), nil
}

func unmarshalJSON(col null.String, v interface{}) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(col.String), v), "decoding json column")
}
