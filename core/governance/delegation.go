package governance

import (
	"context"
	"time"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

// Delegate lends voiceAmount of the delegator's voice to a delegate. The voice lent through
// all live delegations of a delegator never exceeds the voice they hold.
func (svc *Service) Delegate(ctx context.Context, in DelegateInput) (Delegation, error) {
	if err := core.ValidateStruct(in); err != nil {
		return Delegation{}, err
	}
	if in.DelegatorID == in.DelegateID {
		return Delegation{}, ErrSelfDelegation
	}

	var d Delegation
	err := svc.tx.InTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.LockDelegations(ctx, in.TenantID); err != nil {
			return err
		}
		now := svc.clock()
		existing, err := svc.repo.QueryDelegations(ctx, DelegationFilter{
			TenantID:    in.TenantID,
			DelegatorID: in.DelegatorID,
			DelegateID:  in.DelegateID,
			ActiveOnly:  true,
		})
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Live(now) {
				return ErrDelegationExists
			}
			// expired but still flagged active
			e.Active = false
			e.RevokedAt = now
			if err = svc.repo.UpdateDelegation(ctx, e); err != nil {
				return err
			}
		}

		if err = svc.checkCycle(ctx, in.TenantID, in.DelegatorID, in.DelegateID, now); err != nil {
			return err
		}

		bal, err := svc.ledger.GetBalance(ctx, in.TenantID, in.DelegatorID)
		if err != nil {
			return err
		}
		lent, err := svc.lentVoice(ctx, in.TenantID, in.DelegatorID, now)
		if err != nil {
			return err
		}
		if bal.Available(ledger.Voice)-lent < in.VoiceAmount {
			return ledger.ErrInsufficientBalance
		}

		d, err = svc.repo.CreateDelegation(ctx, Delegation{
			TenantID:      in.TenantID,
			DelegatorID:   in.DelegatorID,
			DelegateID:    in.DelegateID,
			ProposalTypes: in.ProposalTypes,
			VoiceAmount:   in.VoiceAmount,
			ExpiresAt:     core.DaysFrom(now, in.DurationDays),
			Active:        true,
			CreatedAt:     now,
		})
		return err
	})
	if err != nil {
		return Delegation{}, err
	}

	svc.log.Info("voice delegated", core.Fields{
		"tenant_id":     in.TenantID,
		"delegation_id": d.ID,
		"delegator_id":  d.DelegatorID,
		"delegate_id":   d.DelegateID,
	})
	return d, nil
}

// lentVoice sums the voice of the live delegations given by delegator.
func (svc *Service) lentVoice(ctx context.Context, tenantID, delegator string, now time.Time) (int64, error) {
	given, err := svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: tenantID, DelegatorID: delegator, ActiveOnly: true})
	if err != nil {
		return 0, err
	}
	var lent int64
	for _, d := range given {
		if d.Live(now) {
			lent += d.VoiceAmount
		}
	}
	return lent, nil
}

// checkCycle walks the live delegations starting at delegate and fails if delegator is
// reachable within the tenant's maximum delegation depth.
func (svc *Service) checkCycle(ctx context.Context, tenantID, delegator, delegate string, now time.Time) error {
	maxDepth := svc.policies.For(tenantID).MaxDelegationDepth
	frontier := []string{delegate}
	seen := map[string]bool{delegate: true}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, user := range frontier {
			outgoing, err := svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: tenantID, DelegatorID: user, ActiveOnly: true})
			if err != nil {
				return err
			}
			for _, d := range outgoing {
				if !d.Live(now) {
					continue
				}
				if d.DelegateID == delegator {
					return ErrDelegationCycle
				}
				if !seen[d.DelegateID] {
					seen[d.DelegateID] = true
					next = append(next, d.DelegateID)
				}
			}
		}
		frontier = next
	}
	return nil
}

// Revoke deactivates a delegation. Only its delegator may revoke it.
func (svc *Service) Revoke(ctx context.Context, tenantID, delegationID, userID string) (Delegation, error) {
	var d Delegation
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if d, err = svc.repo.GetDelegation(ctx, tenantID, delegationID); err != nil {
			return err
		}
		if d.DelegatorID != userID {
			return ErrNotDelegator
		}
		if !d.Active {
			return ErrDelegationInactive
		}
		d.Active = false
		d.RevokedAt = svc.clock()
		return svc.repo.UpdateDelegation(ctx, d)
	})
	if err != nil {
		return Delegation{}, err
	}

	svc.log.Info("delegation revoked", core.Fields{"tenant_id": tenantID, "delegation_id": d.ID})
	return d, nil
}

// ListDelegations returns the delegations given or received by userID.
func (svc *Service) ListDelegations(ctx context.Context, tenantID, userID string) ([]Delegation, error) {
	return svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: tenantID, UserID: userID})
}
