package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-economy/core"
	"github.com/trezcool/masomo-economy/core/governance"
	"github.com/trezcool/masomo-economy/core/ledger"
	"github.com/trezcool/masomo-economy/storage/database"
)

type (
	governanceRepository struct {
		s *Store
	}

	proposalRow struct {
		ID                string      `db:"id"`
		TenantID          string      `db:"tenant_id"`
		ProposerID        string      `db:"proposer_id"`
		Type              string      `db:"type"`
		Strategy          string      `db:"strategy"`
		Title             string      `db:"title"`
		Description       null.String `db:"description"`
		VotesFor          int64       `db:"votes_for"`
		VotesAgainst      int64       `db:"votes_against"`
		VotesAbstain      int64       `db:"votes_abstain"`
		TotalVoters       int64       `db:"total_voters"`
		QuorumRequired    int64       `db:"quorum_required"`
		Status            string      `db:"status"`
		VotingPeriodHours int         `db:"voting_period_hours"`
		VotingEndsAt      time.Time   `db:"voting_ends_at"`
		FinalisedAt       null.Time   `db:"finalised_at"`
		ExecutionAt       null.Time   `db:"execution_at"`
		ExecutedAt        null.Time   `db:"executed_at"`
		SpendCurrency     null.String `db:"spend_currency"`
		SpendAmount       int64       `db:"spend_amount"`
		Recipient         null.String `db:"recipient"`
		Parameters        null.String `db:"parameters"`
		CreatedAt         time.Time   `db:"created_at"`
	}

	govVoteRow struct {
		ID             string      `db:"id"`
		TenantID       string      `db:"tenant_id"`
		ProposalID     string      `db:"proposal_id"`
		VoterID        string      `db:"voter_id"`
		Choice         string      `db:"choice"`
		VoiceSpent     int64       `db:"voice_spent"`
		DelegatedVoice int64       `db:"delegated_voice"`
		Weight         int64       `db:"weight"`
		DelegationIDs  null.String `db:"delegation_ids"`
		Reason         null.String `db:"reason"`
		CastAt         time.Time   `db:"cast_at"`
	}

	delegationRow struct {
		ID            string      `db:"id"`
		TenantID      string      `db:"tenant_id"`
		DelegatorID   string      `db:"delegator_id"`
		DelegateID    string      `db:"delegate_id"`
		ProposalTypes null.String `db:"proposal_types"`
		VoiceAmount   int64       `db:"voice_amount"`
		ExpiresAt     time.Time   `db:"expires_at"`
		IsActive      bool        `db:"is_active"`
		RevokedAt     null.Time   `db:"revoked_at"`
		CreatedAt     time.Time   `db:"created_at"`
	}

	treasuryRow struct {
		TenantID  string    `db:"tenant_id"`
		Currency  string    `db:"currency"`
		Balance   int64     `db:"balance"`
		UpdatedAt null.Time `db:"updated_at"`
	}

	treasuryTxRow struct {
		ID           string      `db:"id"`
		TenantID     string      `db:"tenant_id"`
		Currency     string      `db:"currency"`
		Direction    string      `db:"direction"`
		Amount       int64       `db:"amount"`
		BalanceAfter int64       `db:"balance_after"`
		ProposalID   null.String `db:"proposal_id"`
		Memo         null.String `db:"memo"`
		CreatedAt    time.Time   `db:"created_at"`
	}
)

var _ governance.Repository = (*governanceRepository)(nil) // interface compliance check

func boilProposal(p governance.Proposal) (proposalRow, error) {
	params, err := marshalJSON(p.Parameters, len(p.Parameters) == 0)
	if err != nil {
		return proposalRow{}, err
	}
	return proposalRow{
		ID:                p.ID,
		TenantID:          p.TenantID,
		ProposerID:        p.ProposerID,
		Type:              string(p.Type),
		Strategy:          string(p.Strategy),
		Title:             p.Title,
		Description:       nullString(p.Description),
		VotesFor:          p.VotesFor,
		VotesAgainst:      p.VotesAgainst,
		VotesAbstain:      p.VotesAbstain,
		TotalVoters:       p.TotalVoters,
		QuorumRequired:    p.QuorumRequired,
		Status:            string(p.Status),
		VotingPeriodHours: p.VotingPeriodHours,
		VotingEndsAt:      p.VotingEndsAt.UTC(),
		FinalisedAt:       nullTime(p.FinalisedAt),
		ExecutionAt:       nullTime(p.ExecutionAt),
		ExecutedAt:        nullTime(p.ExecutedAt),
		SpendCurrency:     nullString(string(p.SpendCurrency)),
		SpendAmount:       p.SpendAmount,
		Recipient:         nullString(p.Recipient),
		Parameters:        params,
		CreatedAt:         p.CreatedAt.UTC(),
	}, nil
}

func unboilProposal(r proposalRow) (governance.Proposal, error) {
	p := governance.Proposal{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ProposerID:        r.ProposerID,
		Type:              governance.ProposalType(r.Type),
		Strategy:          governance.Strategy(r.Strategy),
		Title:             r.Title,
		Description:       r.Description.String,
		VotesFor:          r.VotesFor,
		VotesAgainst:      r.VotesAgainst,
		VotesAbstain:      r.VotesAbstain,
		TotalVoters:       r.TotalVoters,
		QuorumRequired:    r.QuorumRequired,
		Status:            governance.Status(r.Status),
		VotingPeriodHours: r.VotingPeriodHours,
		VotingEndsAt:      utc(r.VotingEndsAt),
		FinalisedAt:       utc(r.FinalisedAt.Time),
		ExecutionAt:       utc(r.ExecutionAt.Time),
		ExecutedAt:        utc(r.ExecutedAt.Time),
		SpendCurrency:     ledger.Currency(r.SpendCurrency.String),
		SpendAmount:       r.SpendAmount,
		Recipient:         r.Recipient.String,
		CreatedAt:         utc(r.CreatedAt),
	}
	if err := unmarshalJSON(r.Parameters, &p.Parameters); err != nil {
		return governance.Proposal{}, err
	}
	return p, nil
}

func unboilGovVote(r govVoteRow) (governance.Vote, error) {
	v := governance.Vote{
		ID:             r.ID,
		TenantID:       r.TenantID,
		ProposalID:     r.ProposalID,
		VoterID:        r.VoterID,
		Choice:         governance.Choice(r.Choice),
		VoiceSpent:     r.VoiceSpent,
		DelegatedVoice: r.DelegatedVoice,
		Weight:         r.Weight,
		Reason:         r.Reason.String,
		CastAt:         utc(r.CastAt),
	}
	if err := unmarshalJSON(r.DelegationIDs, &v.DelegationIDs); err != nil {
		return governance.Vote{}, err
	}
	return v, nil
}

func boilDelegation(d governance.Delegation) (delegationRow, error) {
	types, err := marshalJSON(d.ProposalTypes, len(d.ProposalTypes) == 0)
	if err != nil {
		return delegationRow{}, err
	}
	return delegationRow{
		ID:            d.ID,
		TenantID:      d.TenantID,
		DelegatorID:   d.DelegatorID,
		DelegateID:    d.DelegateID,
		ProposalTypes: types,
		VoiceAmount:   d.VoiceAmount,
		ExpiresAt:     d.ExpiresAt.UTC(),
		IsActive:      d.Active,
		RevokedAt:     nullTime(d.RevokedAt),
		CreatedAt:     d.CreatedAt.UTC(),
	}, nil
}

func unboilDelegation(r delegationRow) (governance.Delegation, error) {
	d := governance.Delegation{
		ID:          r.ID,
		TenantID:    r.TenantID,
		DelegatorID: r.DelegatorID,
		DelegateID:  r.DelegateID,
		VoiceAmount: r.VoiceAmount,
		ExpiresAt:   utc(r.ExpiresAt),
		Active:      r.IsActive,
		RevokedAt:   utc(r.RevokedAt.Time),
		CreatedAt:   utc(r.CreatedAt),
	}
	if err := unmarshalJSON(r.ProposalTypes, &d.ProposalTypes); err != nil {
		return governance.Delegation{}, err
	}
	return d, nil
}

func unboilTreasury(r treasuryRow) governance.DaoTreasury {
	return governance.DaoTreasury{
		TenantID:  r.TenantID,
		Currency:  ledger.Currency(r.Currency),
		Balance:   r.Balance,
		UpdatedAt: utc(r.UpdatedAt.Time),
	}
}

func unboilTreasuryTx(r treasuryTxRow) governance.TreasuryTransaction {
	return governance.TreasuryTransaction{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Currency:     ledger.Currency(r.Currency),
		Direction:    governance.Direction(r.Direction),
		Amount:       r.Amount,
		BalanceAfter: r.BalanceAfter,
		ProposalID:   r.ProposalID.String,
		Memo:         r.Memo.String,
		CreatedAt:    utc(r.CreatedAt),
	}
}

func (repo governanceRepository) CreateProposal(ctx context.Context, p governance.Proposal) (governance.Proposal, error) {
	p.ID = uuid.New().String()
	r, err := boilProposal(p)
	if err != nil {
		return governance.Proposal{}, err
	}
	_, err = repo.s.execNamed(ctx, `INSERT INTO gov_proposals
		(id, tenant_id, proposer_id, type, strategy, title, description, votes_for, votes_against, votes_abstain,
		total_voters, quorum_required, status, voting_period_hours, voting_ends_at, finalised_at, execution_at,
		executed_at, spend_currency, spend_amount, recipient, parameters, created_at)
		VALUES (:id, :tenant_id, :proposer_id, :type, :strategy, :title, :description, :votes_for, :votes_against, :votes_abstain,
		:total_voters, :quorum_required, :status, :voting_period_hours, :voting_ends_at, :finalised_at, :execution_at,
		:executed_at, :spend_currency, :spend_amount, :recipient, :parameters, :created_at)`, r)
	if err != nil {
		return governance.Proposal{}, errors.Wrap(err, "inserting proposal")
	}
	return p, nil
}

func (repo governanceRepository) getProposal(ctx context.Context, tenantID, id, suffix string) (governance.Proposal, error) {
	var r proposalRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM gov_proposals WHERE tenant_id = ? AND id = ?"+suffix, tenantID, id); err != nil {
		return governance.Proposal{}, trapNoRowsErr(err, governance.ErrProposalNotFound, "selecting proposal")
	}
	return unboilProposal(r)
}

func (repo governanceRepository) GetProposal(ctx context.Context, tenantID, id string) (governance.Proposal, error) {
	return repo.getProposal(ctx, tenantID, id, "")
}

func (repo governanceRepository) LockProposal(ctx context.Context, tenantID, id string) (governance.Proposal, error) {
	return repo.getProposal(ctx, tenantID, id, repo.s.forUpdate())
}

func (repo governanceRepository) UpdateProposal(ctx context.Context, p governance.Proposal) error {
	r, err := boilProposal(p)
	if err != nil {
		return err
	}
	res, err := repo.s.execNamed(ctx, `UPDATE gov_proposals SET
		votes_for = :votes_for, votes_against = :votes_against, votes_abstain = :votes_abstain,
		total_voters = :total_voters, status = :status, finalised_at = :finalised_at,
		execution_at = :execution_at, executed_at = :executed_at
		WHERE tenant_id = :tenant_id AND id = :id`, r)
	if err != nil {
		return errors.Wrap(err, "updating proposal")
	}
	return mustAffect(res, governance.ErrProposalNotFound)
}

func (repo governanceRepository) QueryProposals(ctx context.Context, filter governance.ProposalFilter) ([]governance.Proposal, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.Status != "", "status = ?", string(filter.Status))

	var rows []proposalRow
	if err := repo.s.query(ctx, &rows, "SELECT * FROM gov_proposals"+f.String()+" ORDER BY created_at, id", f.args...); err != nil {
		return nil, errors.Wrap(err, "selecting proposals")
	}
	proposals := make([]governance.Proposal, 0, len(rows))
	for _, r := range rows {
		p, err := unboilProposal(r)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

func (repo governanceRepository) CreateVote(ctx context.Context, v governance.Vote) (governance.Vote, error) {
	v.ID = uuid.New().String()
	ids, err := marshalJSON(v.DelegationIDs, len(v.DelegationIDs) == 0)
	if err != nil {
		return governance.Vote{}, err
	}
	_, err = repo.s.execNamed(ctx, `INSERT INTO gov_votes
		(id, tenant_id, proposal_id, voter_id, choice, voice_spent, delegated_voice, weight, delegation_ids, reason, cast_at)
		VALUES (:id, :tenant_id, :proposal_id, :voter_id, :choice, :voice_spent, :delegated_voice, :weight, :delegation_ids, :reason, :cast_at)`,
		govVoteRow{
			ID:             v.ID,
			TenantID:       v.TenantID,
			ProposalID:     v.ProposalID,
			VoterID:        v.VoterID,
			Choice:         string(v.Choice),
			VoiceSpent:     v.VoiceSpent,
			DelegatedVoice: v.DelegatedVoice,
			Weight:         v.Weight,
			DelegationIDs:  ids,
			Reason:         nullString(v.Reason),
			CastAt:         v.CastAt.UTC(),
		})
	if err != nil {
		return governance.Vote{}, trapUniqueErr(err, governance.ErrAlreadyVoted, "inserting vote")
	}
	return v, nil
}

func (repo governanceRepository) QueryVotes(ctx context.Context, tenantID, proposalID string) ([]governance.Vote, error) {
	var rows []govVoteRow
	q := "SELECT * FROM gov_votes WHERE tenant_id = ? AND proposal_id = ? ORDER BY cast_at, id"
	if err := repo.s.query(ctx, &rows, q, tenantID, proposalID); err != nil {
		return nil, errors.Wrap(err, "selecting votes")
	}
	votes := make([]governance.Vote, 0, len(rows))
	for _, r := range rows {
		v, err := unboilGovVote(r)
		if err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, nil
}

func (repo governanceRepository) CreateDelegation(ctx context.Context, d governance.Delegation) (governance.Delegation, error) {
	d.ID = uuid.New().String()
	r, err := boilDelegation(d)
	if err != nil {
		return governance.Delegation{}, err
	}
	_, err = repo.s.execNamed(ctx, `INSERT INTO gov_delegations
		(id, tenant_id, delegator_id, delegate_id, proposal_types, voice_amount, expires_at, is_active, revoked_at, created_at)
		VALUES (:id, :tenant_id, :delegator_id, :delegate_id, :proposal_types, :voice_amount, :expires_at, :is_active, :revoked_at, :created_at)`, r)
	if err != nil {
		return governance.Delegation{}, trapUniqueErr(err, governance.ErrDelegationExists, "inserting delegation")
	}
	return d, nil
}

func (repo governanceRepository) GetDelegation(ctx context.Context, tenantID, id string) (governance.Delegation, error) {
	var r delegationRow
	if err := repo.s.get(ctx, &r, "SELECT * FROM gov_delegations WHERE tenant_id = ? AND id = ?", tenantID, id); err != nil {
		return governance.Delegation{}, trapNoRowsErr(err, governance.ErrDelegationNotFound, "selecting delegation")
	}
	return unboilDelegation(r)
}

func (repo governanceRepository) UpdateDelegation(ctx context.Context, d governance.Delegation) error {
	r, err := boilDelegation(d)
	if err != nil {
		return err
	}
	res, err := repo.s.execNamed(ctx, `UPDATE gov_delegations SET is_active = :is_active, revoked_at = :revoked_at
		WHERE tenant_id = :tenant_id AND id = :id`, r)
	if err != nil {
		return errors.Wrap(err, "updating delegation")
	}
	return mustAffect(res, governance.ErrDelegationNotFound)
}

func (repo governanceRepository) QueryDelegations(ctx context.Context, filter governance.DelegationFilter) ([]governance.Delegation, error) {
	f := where("tenant_id = ?", filter.TenantID).
		andIf(filter.DelegatorID != "", "delegator_id = ?", filter.DelegatorID).
		andIf(filter.DelegateID != "", "delegate_id = ?", filter.DelegateID).
		andIf(filter.ActiveOnly, "is_active = ?", true)
	args := f.args
	q := "SELECT * FROM gov_delegations" + f.String()
	if filter.UserID != "" {
		q += " AND (delegator_id = ? OR delegate_id = ?)"
		args = append(args, filter.UserID, filter.UserID)
	}

	var rows []delegationRow
	if err := repo.s.query(ctx, &rows, q+" ORDER BY created_at, id", args...); err != nil {
		return nil, errors.Wrap(err, "selecting delegations")
	}
	delegations := make([]governance.Delegation, 0, len(rows))
	for _, r := range rows {
		d, err := unboilDelegation(r)
		if err != nil {
			return nil, err
		}
		delegations = append(delegations, d)
	}
	return delegations, nil
}

// LockDelegations takes a transaction scoped advisory lock on Postgres. SQLite write
// transactions already run one at a time.
func (repo governanceRepository) LockDelegations(ctx context.Context, tenantID string) error {
	if repo.s.engine != database.Postgres {
		return nil
	}
	_, err := repo.s.exec(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", "gov_delegations/"+tenantID)
	return errors.Wrap(err, "locking delegations")
}

func (repo governanceRepository) GetTreasury(ctx context.Context, tenantID string, c ledger.Currency) (governance.DaoTreasury, error) {
	var r treasuryRow
	q := "SELECT * FROM dao_treasuries WHERE tenant_id = ? AND currency = ?"
	if err := repo.s.get(ctx, &r, q, tenantID, string(c)); err != nil {
		return governance.DaoTreasury{}, trapNoRowsErr(err, core.ErrNotFound, "selecting DAO treasury")
	}
	return unboilTreasury(r), nil
}

func (repo governanceRepository) LockTreasury(ctx context.Context, tenantID string, c ledger.Currency) (governance.DaoTreasury, error) {
	q := "INSERT INTO dao_treasuries (tenant_id, currency) VALUES (?, ?) ON CONFLICT (tenant_id, currency) DO NOTHING"
	if _, err := repo.s.exec(ctx, q, tenantID, string(c)); err != nil {
		return governance.DaoTreasury{}, errors.Wrap(err, "inserting DAO treasury")
	}

	var r treasuryRow
	q = "SELECT * FROM dao_treasuries WHERE tenant_id = ? AND currency = ?" + repo.s.forUpdate()
	if err := repo.s.get(ctx, &r, q, tenantID, string(c)); err != nil {
		return governance.DaoTreasury{}, errors.Wrap(err, "locking DAO treasury")
	}
	return unboilTreasury(r), nil
}

func (repo governanceRepository) SaveTreasury(ctx context.Context, t governance.DaoTreasury) error {
	q := "UPDATE dao_treasuries SET balance = ?, updated_at = ? WHERE tenant_id = ? AND currency = ?"
	res, err := repo.s.exec(ctx, q, t.Balance, nullTime(t.UpdatedAt), t.TenantID, string(t.Currency))
	if err != nil {
		return errors.Wrap(err, "updating DAO treasury")
	}
	return mustAffect(res, core.ErrNotFound)
}

func (repo governanceRepository) AppendTreasuryTransaction(ctx context.Context, t governance.TreasuryTransaction) (governance.TreasuryTransaction, error) {
	t.ID = uuid.New().String()
	_, err := repo.s.execNamed(ctx, `INSERT INTO dao_treasury_transactions
		(id, tenant_id, currency, direction, amount, balance_after, proposal_id, memo, created_at)
		VALUES (:id, :tenant_id, :currency, :direction, :amount, :balance_after, :proposal_id, :memo, :created_at)`,
		treasuryTxRow{
			ID:           t.ID,
			TenantID:     t.TenantID,
			Currency:     string(t.Currency),
			Direction:    string(t.Direction),
			Amount:       t.Amount,
			BalanceAfter: t.BalanceAfter,
			ProposalID:   nullString(t.ProposalID),
			Memo:         nullString(t.Memo),
			CreatedAt:    t.CreatedAt.UTC(),
		})
	if err != nil {
		return governance.TreasuryTransaction{}, errors.Wrap(err, "inserting DAO treasury transaction")
	}
	return t, nil
}

func (repo governanceRepository) QueryTreasuryTransactions(ctx context.Context, tenantID string, c ledger.Currency) ([]governance.TreasuryTransaction, error) {
	f := where("tenant_id = ?", tenantID).andIf(c != "", "currency = ?", string(c))

	var rows []treasuryTxRow
	if err := repo.s.query(ctx, &rows, "SELECT * FROM dao_treasury_transactions"+f.String()+" ORDER BY created_at", f.args...); err != nil {
		return nil, errors.Wrap(err, "selecting DAO treasury transactions")
	}
	txns := make([]governance.TreasuryTransaction, 0, len(rows))
	for _, r := range rows {
		txns = append(txns, unboilTreasuryTx(r))
	}
	return txns, nil
}
