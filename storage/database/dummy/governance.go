package dummydb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/governance"
	"github.com/trezcool/masomo-economy/core/ledger"
)

type governanceRepository struct {
	db *DB
}

var _ governance.Repository = (*governanceRepository)(nil) // interface compliance check

func cloneProposal(p governance.Proposal) governance.Proposal {
	p.Parameters = cloneMap(p.Parameters)
	return p
}

func (repo governanceRepository) CreateProposal(ctx context.Context, p governance.Proposal) (governance.Proposal, error) {
	p.ID = uuid.New().String()
	p = cloneProposal(p)
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.proposals, key(p.TenantID, p.ID), row[governance.Proposal]{seq: tx.nextSeq(), val: p})
		return nil
	})
	if err != nil {
		return governance.Proposal{}, err
	}
	return cloneProposal(p), nil
}

func (repo governanceRepository) GetProposal(ctx context.Context, tenantID, id string) (p governance.Proposal, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.proposals[key(tenantID, id)]
		if !ok {
			return governance.ErrProposalNotFound
		}
		p = cloneProposal(r.val)
		return nil
	})
	return p, err
}

func (repo governanceRepository) LockProposal(ctx context.Context, tenantID, id string) (governance.Proposal, error) {
	return repo.GetProposal(ctx, tenantID, id)
}

func (repo governanceRepository) UpdateProposal(ctx context.Context, p governance.Proposal) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(p.TenantID, p.ID)
		r, ok := tx.db.proposals[k]
		if !ok {
			return governance.ErrProposalNotFound
		}
		r.val = cloneProposal(p)
		put(tx, tx.db.proposals, k, r)
		return nil
	})
}

func (repo governanceRepository) QueryProposals(ctx context.Context, filter governance.ProposalFilter) (proposals []governance.Proposal, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		proposals = sorted(tx.db.proposals, func(p governance.Proposal) bool {
			return p.TenantID == filter.TenantID && (filter.Status == "" || p.Status == filter.Status)
		})
		for i := range proposals {
			proposals[i] = cloneProposal(proposals[i])
		}
		return nil
	})
	return proposals, err
}

func (repo governanceRepository) CreateVote(ctx context.Context, v governance.Vote) (governance.Vote, error) {
	v.ID = uuid.New().String()
	v.DelegationIDs = cloneSlice(v.DelegationIDs)
	err := repo.db.view(ctx, func(tx *txn) error {
		k := key(v.TenantID, v.ProposalID, v.VoterID)
		if _, ok := tx.db.govVotes[k]; ok {
			return governance.ErrAlreadyVoted
		}
		put(tx, tx.db.govVotes, k, row[governance.Vote]{seq: tx.nextSeq(), val: v})
		return nil
	})
	if err != nil {
		return governance.Vote{}, err
	}
	return v, nil
}

func (repo governanceRepository) QueryVotes(ctx context.Context, tenantID, proposalID string) (votes []governance.Vote, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		votes = sorted(tx.db.govVotes, func(v governance.Vote) bool {
			return v.TenantID == tenantID && v.ProposalID == proposalID
		})
		for i := range votes {
			votes[i].DelegationIDs = cloneSlice(votes[i].DelegationIDs)
		}
		return nil
	})
	return votes, err
}

func (repo governanceRepository) CreateDelegation(ctx context.Context, d governance.Delegation) (governance.Delegation, error) {
	d.ID = uuid.New().String()
	d.ProposalTypes = cloneSlice(d.ProposalTypes)
	err := repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.delegations, key(d.TenantID, d.ID), row[governance.Delegation]{seq: tx.nextSeq(), val: d})
		return nil
	})
	if err != nil {
		return governance.Delegation{}, err
	}
	return d, nil
}

func (repo governanceRepository) GetDelegation(ctx context.Context, tenantID, id string) (d governance.Delegation, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		r, ok := tx.db.delegations[key(tenantID, id)]
		if !ok {
			return governance.ErrDelegationNotFound
		}
		d = r.val
		d.ProposalTypes = cloneSlice(d.ProposalTypes)
		return nil
	})
	return d, err
}

func (repo governanceRepository) UpdateDelegation(ctx context.Context, d governance.Delegation) error {
	return repo.db.view(ctx, func(tx *txn) error {
		k := key(d.TenantID, d.ID)
		r, ok := tx.db.delegations[k]
		if !ok {
			return governance.ErrDelegationNotFound
		}
		r.val = d
		r.val.ProposalTypes = cloneSlice(d.ProposalTypes)
		put(tx, tx.db.delegations, k, r)
		return nil
	})
}

func (repo governanceRepository) QueryDelegations(ctx context.Context, filter governance.DelegationFilter) (delegations []governance.Delegation, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		delegations = sorted(tx.db.delegations, func(d governance.Delegation) bool {
			return d.TenantID == filter.TenantID &&
				(filter.DelegatorID == "" || d.DelegatorID == filter.DelegatorID) &&
				(filter.DelegateID == "" || d.DelegateID == filter.DelegateID) &&
				(filter.UserID == "" || d.DelegatorID == filter.UserID || d.DelegateID == filter.UserID) &&
				(!filter.ActiveOnly || d.Active)
		})
		for i := range delegations {
			delegations[i].ProposalTypes = cloneSlice(delegations[i].ProposalTypes)
		}
		return nil
	})
	return delegations, err
}

// LockDelegations is a no-op: a unit of work holds the DB lock.
func (repo governanceRepository) LockDelegations(ctx context.Context, tenantID string) error {
	return repo.db.view(ctx, func(tx *txn) error { return nil })
}

func (repo governanceRepository) GetTreasury(ctx context.Context, tenantID string, c ledger.Currency) (t governance.DaoTreasury, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		var ok bool
		if t, ok = tx.db.treasuries[key(tenantID, string(c))]; !ok {
			return core.ErrNotFound
		}
		return nil
	})
	return t, err
}

func (repo governanceRepository) LockTreasury(ctx context.Context, tenantID string, c ledger.Currency) (t governance.DaoTreasury, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		k := key(tenantID, string(c))
		var ok bool
		if t, ok = tx.db.treasuries[k]; !ok {
			t = governance.DaoTreasury{TenantID: tenantID, Currency: c}
			put(tx, tx.db.treasuries, k, t)
		}
		return nil
	})
	return t, err
}

func (repo governanceRepository) SaveTreasury(ctx context.Context, t governance.DaoTreasury) error {
	return repo.db.view(ctx, func(tx *txn) error {
		put(tx, tx.db.treasuries, key(t.TenantID, string(t.Currency)), t)
		return nil
	})
}

func (repo governanceRepository) AppendTreasuryTransaction(ctx context.Context, t governance.TreasuryTransaction) (governance.TreasuryTransaction, error) {
	t.ID = uuid.New().String()
	err := repo.db.view(ctx, func(tx *txn) error {
		appendTo(tx, &tx.db.treasuryTxs, t)
		return nil
	})
	if err != nil {
		return governance.TreasuryTransaction{}, err
	}
	return t, nil
}

func (repo governanceRepository) QueryTreasuryTransactions(ctx context.Context, tenantID string, c ledger.Currency) (txns []governance.TreasuryTransaction, err error) {
	err = repo.db.view(ctx, func(tx *txn) error {
		for _, t := range tx.db.treasuryTxs {
			if t.TenantID == tenantID && (c == "" || t.Currency == c) {
				txns = append(txns, t)
			}
		}
		return nil
	})
	return txns, err
}
