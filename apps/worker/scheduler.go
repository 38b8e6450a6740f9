package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/economy"
)

const tracerName = "github.com/trezcool/masomo-economy/apps/worker"

// maxParallelTenants bounds how many tenants a job works on at once.
const maxParallelTenants = 4

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	log core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, err, fields(keysAndValues))
}

func fields(keysAndValues []interface{}) core.Fields {
	f := make(core.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

// Scheduler runs the periodic economy jobs of every configured tenant: daily yield accrual
// and the sweep persisting expiries that are already effective.
type Scheduler struct {
	cron    *cron.Cron
	eng     *economy.Engine
	tenants []string
	log     core.Logger
	tracer  trace.Tracer
	timeout time.Duration

	mu      sync.Mutex
	lastRun map[string]time.Time
}

// NewScheduler returns a scheduler for the given tenants. Blank and repeated tenant ids are
// dropped.
func NewScheduler(eng *economy.Engine, tenants []string, logger core.Logger) *Scheduler {
	seen := make(map[string]bool, len(tenants))
	uniq := make([]string, 0, len(tenants))
	for _, t := range tenants {
		t = core.CleanString(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		uniq = append(uniq, t)
	}

	cl := cronLogger{log: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		eng:     eng,
		tenants: uniq,
		log:     logger,
		tracer:  otel.Tracer(tracerName),
		timeout: 10 * time.Minute,
		lastRun: make(map[string]time.Time),
	}
}

// RegisterAll schedules the yield and sweep jobs.
func (s *Scheduler) RegisterAll(yieldSpec, sweepSpec string) error {
	if _, err := s.cron.AddFunc(yieldSpec, s.job("accrue_yield", s.AccrueYield)); err != nil {
		return errors.Wrap(err, "registering yield job")
	}
	if _, err := s.cron.AddFunc(sweepSpec, s.job("sweep", func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})); err != nil {
		return errors.Wrap(err, "registering sweep job")
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", core.Fields{"tenants": s.tenants, "jobs": len(s.cron.Entries())})
}

// Stop stops scheduling jobs and waits for the running ones until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return core.NewShutdownError("scheduler stopped before its running jobs completed")
	}
}

// LastRun returns when the named job last completed without error.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastRun[name]
	return t, ok
}

func (s *Scheduler) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		ctx, span := s.tracer.Start(ctx, "worker."+name, trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()

		start := time.Now()
		if err := fn(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.log.Error(fmt.Sprintf("job %s failed", name), err)
			return
		}
		s.mu.Lock()
		s.lastRun[name] = start
		s.mu.Unlock()
		s.log.Debug(fmt.Sprintf("job %s done", name), core.Fields{"took": time.Since(start).String()})
	}
}

// forEachTenant runs fn for every tenant, a few at a time. It returns the first error;
// the other tenants still complete their run.
func (s *Scheduler) forEachTenant(ctx context.Context, fn func(ctx context.Context, tenantID string) error) error {
	var g errgroup.Group
	g.SetLimit(maxParallelTenants)
	for _, tenantID := range s.tenants {
		tenantID := tenantID
		g.Go(func() error {
			ctx, span := s.tracer.Start(ctx, "worker.tenant", trace.WithAttributes(attribute.String("tenant_id", tenantID)))
			defer span.End()
			if err := fn(ctx, tenantID); err != nil {
				span.RecordError(err)
				return errors.Wrapf(err, "tenant %s", tenantID)
			}
			return nil
		})
	}
	return g.Wait()
}

// AccrueYield accrues one day of yield on the active positions of every tenant.
func (s *Scheduler) AccrueYield(ctx context.Context) error {
	return s.forEachTenant(ctx, func(ctx context.Context, tenantID string) error {
		_, err := s.eng.Staking.AccrueDaily(ctx, tenantID)
		return err
	})
}

// Sweep persists the effective expiries of every tenant and returns one report per tenant,
// in tenant order.
func (s *Scheduler) Sweep(ctx context.Context) ([]economy.SweepReport, error) {
	reports := make([]economy.SweepReport, len(s.tenants))
	index := make(map[string]int, len(s.tenants))
	for i, t := range s.tenants {
		index[t] = i
	}

	err := s.forEachTenant(ctx, func(ctx context.Context, tenantID string) error {
		rep, err := s.eng.Sweep(ctx, tenantID)
		reports[index[tenantID]] = rep
		if err != nil {
			return err
		}
		if rep.Trades+rep.Votes+rep.Challenges > 0 {
			s.log.Info("expiries persisted", core.Fields{
				"tenant_id":  tenantID,
				"trades":     rep.Trades,
				"votes":      rep.Votes,
				"challenges": rep.Challenges,
			})
		}
		return nil
	})
	return reports, err
}
