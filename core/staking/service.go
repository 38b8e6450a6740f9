package staking

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

var (
	// errors
	ErrPositionNotFound = core.NewError(core.KindNotFound, "stake position not found")
	ErrInvalidYield     = core.NewValidationError(errors.New("yield must be greater than zero"), core.FieldError{Field: "amount", Error: "yield must be greater than zero"})
)

type (
	Repository interface {
		CreatePosition(ctx context.Context, pos Position) (Position, error)
		GetPosition(ctx context.Context, tenantID, id string) (Position, error)
		// LockPosition returns the position locked for update until the end of the unit of work.
		LockPosition(ctx context.Context, tenantID, id string) (Position, error)
		UpdatePosition(ctx context.Context, pos Position) error
		QueryPositions(ctx context.Context, filter PositionFilter) ([]Position, error)
	}

	// Poster applies balance mutations.
	Poster interface {
		Post(ctx context.Context, p ledger.Posting) (ledger.Transaction, error)
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		ledger   Poster
		log      core.Logger
		clock    core.Clock
		policies *core.Policies
	}
)

func NewService(tx core.Transactor, repo Repository, ledger Poster, logger core.Logger, clock core.Clock, policies *core.Policies) *Service {
	return &Service{tx: tx, repo: repo, ledger: ledger, log: logger, clock: clock, policies: policies}
}

func (svc *Service) Stake(ctx context.Context, in StakeInput) (Position, error) {
	if in.Amount <= 0 {
		return Position{}, ledger.ErrInvalidAmount
	}
	if err := core.ValidateStruct(in); err != nil {
		return Position{}, err
	}
	if maxDays := svc.policies.For(in.TenantID).MaxLockDays; maxDays > 0 && in.LockDays > maxDays {
		return Position{}, core.NewValidationError(nil, core.FieldError{
			Field: "lock_days",
			Error: "lock_days must be " + strconv.Itoa(maxDays) + " or less",
		})
	}

	var pos Position
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		now := svc.clock()
		_, err := svc.ledger.Post(ctx, ledger.Posting{
			TenantID:       in.TenantID,
			UserID:         in.UserID,
			Currency:       in.Currency,
			Kind:           ledger.KindStake,
			AvailableDelta: -in.Amount,
			StakedDelta:    in.Amount,
			Category:       ledger.CategoryStaking,
			Reference:      string(in.PoolType),
		})
		if err != nil {
			return err
		}
		pos, err = svc.repo.CreatePosition(ctx, Position{
			TenantID:    in.TenantID,
			UserID:      in.UserID,
			PoolType:    in.PoolType,
			PoolID:      in.PoolID,
			Currency:    in.Currency,
			Amount:      in.Amount,
			LockedUntil: core.DaysFrom(now, in.LockDays),
			Status:      StatusActive,
			CreatedAt:   now,
		})
		return err
	})
	if err != nil {
		return Position{}, err
	}

	svc.log.Info("position staked", core.Fields{"tenant_id": in.TenantID, "position_id": pos.ID, "amount": in.Amount})
	return pos, nil
}

// Unstake redeems an active position owned by userID, applying the early withdrawal
// penalty when the lock has not expired.
func (svc *Service) Unstake(ctx context.Context, tenantID, userID, positionID string) (UnstakeResult, error) {
	var res UnstakeResult
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		pos, err := svc.repo.LockPosition(ctx, tenantID, positionID)
		if err != nil {
			return err
		}
		if pos.UserID != userID {
			return ErrPositionNotFound
		}

		now := svc.clock()
		if err = pos.transition(StatusCompleted, now); err != nil {
			return err
		}

		res.IsEarly = pos.IsEarly(now)
		if res.IsEarly {
			res.Penalty = Fraction(pos.Amount, svc.policies.For(tenantID).EarlyUnstakePenalty)
		}
		res.Returned = pos.Amount - res.Penalty + pos.YieldAccrued

		res.Transaction, err = svc.ledger.Post(ctx, ledger.Posting{
			TenantID:       tenantID,
			UserID:         userID,
			Currency:       pos.Currency,
			Kind:           ledger.KindUnstake,
			AvailableDelta: res.Returned,
			StakedDelta:    -pos.Amount,
			Category:       ledger.CategoryStaking,
			Reference:      pos.ID,
			Metadata: map[string]string{
				ledger.MetaPrincipal:    strconv.FormatInt(pos.Amount, 10),
				ledger.MetaPenalty:      strconv.FormatInt(res.Penalty, 10),
				ledger.MetaYieldAccrued: strconv.FormatInt(pos.YieldAccrued, 10),
				ledger.MetaIsEarly:      strconv.FormatBool(res.IsEarly),
				ledger.MetaPositionID:   pos.ID,
			},
		})
		if err != nil {
			return err
		}
		if err = svc.repo.UpdatePosition(ctx, pos); err != nil {
			return err
		}
		res.Position = pos
		return nil
	})
	if err != nil {
		return UnstakeResult{}, err
	}

	svc.log.Info("position unstaked", core.Fields{
		"tenant_id":   tenantID,
		"position_id": positionID,
		"penalty":     res.Penalty,
		"returned":    res.Returned,
	})
	return res, nil
}

// AccrueYield adds amount to the yield of an active position.
func (svc *Service) AccrueYield(ctx context.Context, tenantID, positionID string, amount int64) (Position, error) {
	if amount <= 0 {
		return Position{}, ErrInvalidYield
	}
	var pos Position
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		pos, err = svc.repo.LockPosition(ctx, tenantID, positionID)
		if err != nil {
			return err
		}
		if pos.Status != StatusActive {
			return ErrInvalidTransition
		}
		pos.YieldAccrued += amount
		return svc.repo.UpdatePosition(ctx, pos)
	})
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}

// AccrueDaily credits one day of yield to every active position of the tenant and returns
// the number of positions that earned a non-zero yield. A position earns at most once per
// UTC day, however often it runs.
func (svc *Service) AccrueDaily(ctx context.Context, tenantID string) (int, error) {
	rate := svc.policies.For(tenantID).YieldRatePerDay
	var n int
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		positions, err := svc.repo.QueryPositions(ctx, PositionFilter{TenantID: tenantID, Status: StatusActive})
		if err != nil {
			return err
		}
		today := core.StartOfDay(svc.clock())
		for _, p := range positions {
			if !p.AccruedOn.Before(today) || Fraction(p.Amount, rate) == 0 {
				continue
			}
			pos, err := svc.repo.LockPosition(ctx, tenantID, p.ID)
			if err != nil {
				return errors.Wrapf(err, "accruing yield on position %s", p.ID)
			}
			if pos.Status != StatusActive || !pos.AccruedOn.Before(today) {
				continue
			}
			pos.YieldAccrued += Fraction(pos.Amount, rate)
			pos.AccruedOn = today
			if err = svc.repo.UpdatePosition(ctx, pos); err != nil {
				return errors.Wrapf(err, "accruing yield on position %s", p.ID)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	svc.log.Info("daily yield accrued", core.Fields{"tenant_id": tenantID, "positions": n})
	return n, nil
}

func (svc *Service) GetPosition(ctx context.Context, tenantID, positionID string) (Position, error) {
	return svc.repo.GetPosition(ctx, tenantID, positionID)
}

func (svc *Service) ListPositions(ctx context.Context, tenantID, userID string) ([]Position, error) {
	return svc.repo.QueryPositions(ctx, PositionFilter{TenantID: tenantID, UserID: userID})
}

// Fraction returns floor(amount * rate).
func Fraction(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
}
