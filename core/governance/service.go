package governance

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/ledger"
)

type (
	Repository interface {
		CreateProposal(ctx context.Context, p Proposal) (Proposal, error)
		GetProposal(ctx context.Context, tenantID, id string) (Proposal, error)
		// LockProposal returns the proposal locked for update until the end of the unit of work.
		LockProposal(ctx context.Context, tenantID, id string) (Proposal, error)
		UpdateProposal(ctx context.Context, p Proposal) error
		QueryProposals(ctx context.Context, filter ProposalFilter) ([]Proposal, error)

		// CreateVote returns ErrAlreadyVoted if the voter already voted on the proposal.
		CreateVote(ctx context.Context, v Vote) (Vote, error)
		QueryVotes(ctx context.Context, tenantID, proposalID string) ([]Vote, error)

		CreateDelegation(ctx context.Context, d Delegation) (Delegation, error)
		GetDelegation(ctx context.Context, tenantID, id string) (Delegation, error)
		UpdateDelegation(ctx context.Context, d Delegation) error
		QueryDelegations(ctx context.Context, filter DelegationFilter) ([]Delegation, error)
		// LockDelegations serializes changes to the delegation graph of a tenant until the end
		// of the unit of work.
		LockDelegations(ctx context.Context, tenantID string) error

		GetTreasury(ctx context.Context, tenantID string, c ledger.Currency) (DaoTreasury, error)
		// LockTreasury returns the treasury locked for update, creating an empty one if needed.
		LockTreasury(ctx context.Context, tenantID string, c ledger.Currency) (DaoTreasury, error)
		SaveTreasury(ctx context.Context, t DaoTreasury) error
		AppendTreasuryTransaction(ctx context.Context, tx TreasuryTransaction) (TreasuryTransaction, error)
		QueryTreasuryTransactions(ctx context.Context, tenantID string, c ledger.Currency) ([]TreasuryTransaction, error)
	}

	Ledger interface {
		Earn(ctx context.Context, in ledger.EarnInput) (ledger.Transaction, error)
		Spend(ctx context.Context, in ledger.SpendInput) (ledger.Transaction, error)
		GetBalance(ctx context.Context, tenantID, userID string) (ledger.TokenBalance, error)
	}

	// Handler applies the effects of a passed proposal of a given type.
	Handler interface {
		Execute(ctx context.Context, p Proposal) error
	}

	HandlerFunc func(ctx context.Context, p Proposal) error

	Service struct {
		tx       core.Transactor
		repo     Repository
		ledger   Ledger
		log      core.Logger
		clock    core.Clock
		policies *core.Policies

		mu       sync.RWMutex
		handlers map[ProposalType]Handler
	}
)

func (fn HandlerFunc) Execute(ctx context.Context, p Proposal) error {
	return fn(ctx, p)
}

func NewService(tx core.Transactor, repo Repository, ledger Ledger, logger core.Logger, clock core.Clock, policies *core.Policies) *Service {
	return &Service{
		tx:       tx,
		repo:     repo,
		ledger:   ledger,
		log:      logger,
		clock:    clock,
		policies: policies,
		handlers: make(map[ProposalType]Handler),
	}
}

// RegisterHandler sets the handler run when a passed proposal of type t is executed.
// TREASURY_SPEND proposals are always executed against the DAO treasury.
func (svc *Service) RegisterHandler(t ProposalType, h Handler) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.handlers[t] = h
}

func (svc *Service) handler(t ProposalType) (Handler, bool) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	h, ok := svc.handlers[t]
	return h, ok
}

func (svc *Service) CreateProposal(ctx context.Context, in ProposalInput) (Proposal, error) {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	if err := core.ValidateStruct(in); err != nil {
		return Proposal{}, err
	}

	pol := svc.policies.For(in.TenantID)
	if pol.MaxVotingPeriodHours > 0 && in.VotingPeriodHours > pol.MaxVotingPeriodHours {
		return Proposal{}, core.NewValidationError(nil, core.FieldError{
			Field: "voting_period_hours",
			Error: "voting_period_hours must be " + strconv.Itoa(pol.MaxVotingPeriodHours) + " or less",
		})
	}
	if in.Type == TypeTreasurySpend {
		var flds []core.FieldError
		if !in.SpendCurrency.Valid() {
			flds = append(flds, core.FieldError{Field: "spend_currency", Error: "spend_currency is required for a treasury spend"})
		}
		if in.SpendAmount <= 0 {
			flds = append(flds, core.FieldError{Field: "spend_amount", Error: "spend_amount must be greater than zero"})
		}
		if len(flds) > 0 {
			return Proposal{}, core.NewValidationError(nil, flds...)
		}
	}

	now := svc.clock()
	p, err := svc.repo.CreateProposal(ctx, Proposal{
		TenantID:          in.TenantID,
		ProposerID:        in.ProposerID,
		Type:              in.Type,
		Strategy:          in.Strategy,
		Title:             in.Title,
		Description:       in.Description,
		QuorumRequired:    pol.QuorumVoters,
		Status:            StatusActive,
		VotingPeriodHours: in.VotingPeriodHours,
		VotingEndsAt:      now.Add(hours(in.VotingPeriodHours)),
		SpendCurrency:     in.SpendCurrency,
		SpendAmount:       in.SpendAmount,
		Recipient:         in.Recipient,
		Parameters:        in.Parameters,
		CreatedAt:         now,
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.log.Info("proposal created", core.Fields{"tenant_id": p.TenantID, "proposal_id": p.ID, "type": p.Type, "strategy": p.Strategy})
	return p, nil
}

// CastVote spends the voter's voice on a proposal, adding the voice of every live
// delegation to the voter that covers the proposal type and whose delegator has not voted.
func (svc *Service) CastVote(ctx context.Context, in VoteInput) (Vote, error) {
	if in.VoiceAmount == 0 {
		in.VoiceAmount = 1
	}
	in.Reason = core.CleanString(in.Reason)
	if err := core.ValidateStruct(in); err != nil {
		return Vote{}, err
	}

	var v Vote
	var p Proposal
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if p, err = svc.repo.LockProposal(ctx, in.TenantID, in.ProposalID); err != nil {
			return err
		}
		now := svc.clock()
		if !p.Status.Voting() || !now.Before(p.VotingEndsAt) {
			return ErrVotingClosed
		}

		votes, err := svc.repo.QueryVotes(ctx, in.TenantID, p.ID)
		if err != nil {
			return err
		}
		voted := make(map[string]bool, len(votes))
		usedDelegations := make(map[string]bool)
		for _, pv := range votes {
			if pv.VoterID == in.VoterID {
				return ErrAlreadyVoted
			}
			voted[pv.VoterID] = true
			for _, id := range pv.DelegationIDs {
				usedDelegations[id] = true
			}
		}
		spent, err := svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: in.TenantID, DelegatorID: in.VoterID})
		if err != nil {
			return err
		}
		for _, d := range spent {
			if usedDelegations[d.ID] {
				return ErrVoiceDelegated
			}
		}

		v = Vote{
			TenantID:   in.TenantID,
			ProposalID: p.ID,
			VoterID:    in.VoterID,
			Choice:     in.Choice,
			VoiceSpent: in.VoiceAmount,
			Reason:     in.Reason,
			CastAt:     now,
		}
		delegations, err := svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: in.TenantID, DelegateID: in.VoterID, ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, d := range delegations {
			if !d.Live(now) || !d.Covers(p.Type) || voted[d.DelegatorID] || usedDelegations[d.ID] {
				continue
			}
			voice, err := svc.delegatedVoice(ctx, d, usedDelegations)
			if err != nil {
				return err
			}
			if voice <= 0 {
				continue
			}
			v.DelegatedVoice += voice
			v.DelegationIDs = append(v.DelegationIDs, d.ID)
		}
		v.Weight = Weight(p.Strategy, v.VoiceSpent+v.DelegatedVoice, p, now)

		_, err = svc.ledger.Spend(ctx, ledger.SpendInput{
			TenantID:  in.TenantID,
			UserID:    in.VoterID,
			Currency:  ledger.Voice,
			Amount:    in.VoiceAmount,
			Category:  ledger.CategoryGovernanceVote,
			Reference: p.ID,
		})
		if err != nil {
			return err
		}
		if v, err = svc.repo.CreateVote(ctx, v); err != nil {
			return err
		}

		switch v.Choice {
		case ChoiceFor:
			p.VotesFor += v.Weight
		case ChoiceAgainst:
			p.VotesAgainst += v.Weight
		case ChoiceAbstain:
			p.VotesAbstain += v.Weight
		}
		p.TotalVoters++
		if p.Status == StatusActive && p.QuorumRequired > 0 && p.TotalVoters >= p.QuorumRequired {
			if err = p.transition(StatusQuorumReached); err != nil {
				return err
			}
		}
		return svc.repo.UpdateProposal(ctx, p)
	})
	if err != nil {
		return Vote{}, err
	}

	svc.log.Info("vote cast", core.Fields{
		"tenant_id":   in.TenantID,
		"proposal_id": in.ProposalID,
		"voter_id":    in.VoterID,
		"weight":      v.Weight,
		"status":      p.Status,
	})
	return v, nil
}

// delegatedVoice returns the voice d adds to a ballot: its amount, capped by the voice its
// delegator still holds minus what their other delegations already brought to the proposal.
func (svc *Service) delegatedVoice(ctx context.Context, d Delegation, used map[string]bool) (int64, error) {
	bal, err := svc.ledger.GetBalance(ctx, d.TenantID, d.DelegatorID)
	if err != nil {
		return 0, err
	}
	budget := bal.Available(ledger.Voice)

	given, err := svc.repo.QueryDelegations(ctx, DelegationFilter{TenantID: d.TenantID, DelegatorID: d.DelegatorID})
	if err != nil {
		return 0, err
	}
	for _, g := range given {
		if used[g.ID] {
			budget -= g.VoiceAmount
		}
	}
	if budget < d.VoiceAmount {
		return budget, nil
	}
	return d.VoiceAmount, nil
}

// Finalise closes the voting of a proposal once its voting period has ended.
func (svc *Service) Finalise(ctx context.Context, tenantID, proposalID string) (Proposal, error) {
	pol := svc.policies.For(tenantID)
	var p Proposal
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if p, err = svc.repo.LockProposal(ctx, tenantID, proposalID); err != nil {
			return err
		}
		if !p.Status.Voting() {
			return ErrInvalidTransition
		}
		now := svc.clock()
		if now.Before(p.VotingEndsAt) {
			return ErrVotingOpen
		}

		next := StatusFailed
		switch {
		case p.Total() == 0:
			next = StatusExpired
		case pol.EnforceQuorum && p.TotalVoters < p.QuorumRequired:
			next = StatusFailed
		case Passes(p.VotesFor, p.VotesAgainst, Threshold(p.Strategy, pol.MajorityThreshold, pol.SupermajorityThreshold)):
			next = StatusPassed
		}
		if err = p.transition(next); err != nil {
			return err
		}
		p.FinalisedAt = now
		if next == StatusPassed {
			p.ExecutionAt = now.Add(pol.ExecutionTimelock)
		}
		return svc.repo.UpdateProposal(ctx, p)
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.log.Info("proposal finalised", core.Fields{"tenant_id": tenantID, "proposal_id": p.ID, "status": p.Status})
	return p, nil
}

// Execute applies the effects of a passed proposal once its timelock has elapsed.
func (svc *Service) Execute(ctx context.Context, tenantID, proposalID string) (Proposal, error) {
	var p Proposal
	err := svc.tx.InTx(ctx, func(ctx context.Context) (err error) {
		if p, err = svc.repo.LockProposal(ctx, tenantID, proposalID); err != nil {
			return err
		}
		if !p.Status.CanTransitionTo(StatusExecuted) {
			return ErrInvalidTransition
		}
		now := svc.clock()
		if now.Before(p.ExecutionAt) {
			return ErrTimelocked
		}

		if p.Type == TypeTreasurySpend {
			if err = svc.spend(ctx, p); err != nil {
				return err
			}
		} else if h, ok := svc.handler(p.Type); ok {
			if err = h.Execute(ctx, p); err != nil {
				return errors.Wrapf(err, "executing %s proposal", p.Type)
			}
		}

		if err = p.transition(StatusExecuted); err != nil {
			return err
		}
		p.ExecutedAt = now
		return svc.repo.UpdateProposal(ctx, p)
	})
	if err != nil {
		return Proposal{}, err
	}

	svc.log.Info("proposal executed", core.Fields{"tenant_id": tenantID, "proposal_id": p.ID, "type": p.Type})
	return p, nil
}

// spend pays the recipient of a treasury spend proposal out of the DAO treasury.
func (svc *Service) spend(ctx context.Context, p Proposal) error {
	if p.Recipient != "" {
		_, err := svc.ledger.Earn(ctx, ledger.EarnInput{
			TenantID:  p.TenantID,
			UserID:    p.Recipient,
			Currency:  p.SpendCurrency,
			Amount:    p.SpendAmount,
			Category:  ledger.CategoryDaoGrant,
			Reference: p.ID,
		})
		if err != nil {
			return err
		}
	}
	_, err := svc.move(ctx, p.TenantID, p.SpendCurrency, -p.SpendAmount, p.ID, p.Title)
	return err
}

func (svc *Service) GetProposal(ctx context.Context, tenantID, proposalID string) (Proposal, error) {
	return svc.repo.GetProposal(ctx, tenantID, proposalID)
}

func (svc *Service) ListProposals(ctx context.Context, filter ProposalFilter) ([]Proposal, error) {
	return svc.repo.QueryProposals(ctx, filter)
}

func (svc *Service) ListVotes(ctx context.Context, tenantID, proposalID string) ([]Vote, error) {
	if _, err := svc.repo.GetProposal(ctx, tenantID, proposalID); err != nil {
		return nil, err
	}
	return svc.repo.QueryVotes(ctx, tenantID, proposalID)
}
