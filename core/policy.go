package core

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Remainder policies for integer division leftovers in reward distribution.
const (
	RemainderToTreasury = "treasury"
	RemainderBurn       = "burn"
)

// Policy holds the economy rules of one tenant.
type Policy struct {
	// staking
	EarlyUnstakePenalty decimal.Decimal `yaml:"early_unstake_penalty"`
	YieldRatePerDay     decimal.Decimal `yaml:"yield_rate_per_day"`
	MaxLockDays         int             `yaml:"max_lock_days"`

	// teams
	DefaultMaxMembers int             `yaml:"default_max_members"`
	TreasuryApproval  decimal.Decimal `yaml:"treasury_approval"`
	TreasuryTurnout   decimal.Decimal `yaml:"treasury_turnout"`
	TreasuryVoteTTL   time.Duration   `yaml:"treasury_vote_ttl"`
	ChallengeTTL      time.Duration   `yaml:"challenge_ttl"`

	// trades
	TradeTTL time.Duration `yaml:"trade_ttl"`

	// governance
	MajorityThreshold      decimal.Decimal `yaml:"majority_threshold"`
	SupermajorityThreshold decimal.Decimal `yaml:"supermajority_threshold"`
	QuorumVoters           int64           `yaml:"quorum_voters"`
	EnforceQuorum          bool            `yaml:"enforce_quorum"`
	ExecutionTimelock      time.Duration   `yaml:"execution_timelock"`
	MaxVotingPeriodHours   int             `yaml:"max_voting_period_hours"`
	MaxDelegationDepth     int             `yaml:"max_delegation_depth"`

	// rewards
	CompetitionWinnerRatio decimal.Decimal `yaml:"competition_winner_ratio"`
	RunnerUpRatio          decimal.Decimal `yaml:"runner_up_ratio"`
	Remainder              string          `yaml:"remainder"`
}

// DefaultPolicy returns the stock rules.
func DefaultPolicy() Policy {
	return Policy{
		EarlyUnstakePenalty:    decimal.RequireFromString("0.10"),
		YieldRatePerDay:        decimal.RequireFromString("0.001"),
		MaxLockDays:            365,
		DefaultMaxMembers:      12,
		TreasuryApproval:       decimal.RequireFromString("0.5"),
		TreasuryTurnout:        decimal.RequireFromString("0.8"),
		TreasuryVoteTTL:        48 * time.Hour,
		ChallengeTTL:           72 * time.Hour,
		TradeTTL:               72 * time.Hour,
		MajorityThreshold:      decimal.RequireFromString("0.5"),
		SupermajorityThreshold: decimal.RequireFromString("0.67"),
		QuorumVoters:           3,
		ExecutionTimelock:      24 * time.Hour,
		MaxVotingPeriodHours:   24 * 30,
		MaxDelegationDepth:     8,
		CompetitionWinnerRatio: decimal.RequireFromString("0.3"),
		RunnerUpRatio:          decimal.RequireFromString("0.10"),
		Remainder:              RemainderToTreasury,
	}
}

func (p Policy) validate() error {
	one := decimal.NewFromInt(1)
	ratios := map[string]decimal.Decimal{
		"early_unstake_penalty":    p.EarlyUnstakePenalty,
		"treasury_approval":        p.TreasuryApproval,
		"treasury_turnout":         p.TreasuryTurnout,
		"majority_threshold":       p.MajorityThreshold,
		"supermajority_threshold":  p.SupermajorityThreshold,
		"competition_winner_ratio": p.CompetitionWinnerRatio,
		"runner_up_ratio":          p.RunnerUpRatio,
	}
	for name, r := range ratios {
		if r.IsNegative() || r.GreaterThan(one) {
			return errors.Errorf("%s must be within [0, 1], got %s", name, r)
		}
	}
	if p.YieldRatePerDay.IsNegative() {
		return errors.New("yield_rate_per_day must not be negative")
	}
	if p.MaxDelegationDepth < 1 {
		return errors.New("max_delegation_depth must be at least 1")
	}
	switch p.Remainder {
	case RemainderToTreasury, RemainderBurn:
	default:
		return errors.Errorf("unknown remainder policy %q", p.Remainder)
	}
	return nil
}

// Policies resolves the Policy of a tenant, falling back on the default one.
type Policies struct {
	Default Policy
	Tenants map[string]Policy
}

func NewPolicies() *Policies {
	return &Policies{Default: DefaultPolicy(), Tenants: make(map[string]Policy)}
}

func (ps *Policies) For(tenantID string) Policy {
	if ps == nil {
		return DefaultPolicy()
	}
	if p, ok := ps.Tenants[tenantID]; ok {
		return p
	}
	return ps.Default
}

// LoadPolicies reads a YAML policy document:
//
//	default:
//	  trade_ttl: 72h
//	tenants:
//	  school-a:
//	    quorum_voters: 10
//
// Tenant entries only override the keys they set.
func LoadPolicies(path string) (*Policies, error) {
	ps := NewPolicies()
	if path == "" {
		return ps, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading policy file")
	}
	return ParsePolicies(data)
}

func ParsePolicies(data []byte) (*Policies, error) {
	var doc struct {
		Default yaml.Node            `yaml:"default"`
		Tenants map[string]yaml.Node `yaml:"tenants"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parsing policy file")
	}

	ps := NewPolicies()
	if !doc.Default.IsZero() {
		if err := doc.Default.Decode(&ps.Default); err != nil {
			return nil, errors.Wrap(err, "decoding default policy")
		}
	}
	if err := ps.Default.validate(); err != nil {
		return nil, errors.Wrap(err, "default policy")
	}
	for tenant, node := range doc.Tenants {
		p := ps.Default
		if err := node.Decode(&p); err != nil {
			return nil, errors.Wrapf(err, "decoding policy of tenant %s", tenant)
		}
		if err := p.validate(); err != nil {
			return nil, errors.Wrapf(err, "policy of tenant %s", tenant)
		}
		ps.Tenants[tenant] = p
	}
	return ps, nil
}
