package governance

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Weight returns the voting weight of voice under strategy s. For CONVICTION, voice is
// boosted in proportion to the share of the voting period still remaining at now.
func Weight(s Strategy, voice int64, p Proposal, now time.Time) int64 {
	if voice <= 0 {
		return 0
	}
	switch s {
	case Quadratic:
		return isqrt(voice)
	case Conviction:
		period := p.VotingEndsAt.Sub(p.CreatedAt)
		remaining := p.VotingEndsAt.Sub(now)
		if period <= 0 || remaining <= 0 {
			return voice
		}
		if remaining > period {
			remaining = period
		}
		bonus := decimal.NewFromInt(voice).
			Mul(decimal.NewFromInt(int64(remaining))).
			Div(decimal.NewFromInt(int64(period))).
			Floor().
			IntPart()
		return voice + bonus
	default:
		return voice
	}
}

// isqrt returns floor(sqrt(n)).
func isqrt(n int64) int64 {
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// Threshold returns the approval ratio a proposal of strategy s needs to pass.
func Threshold(s Strategy, majority, supermajority decimal.Decimal) decimal.Decimal {
	if s == Supermajority {
		return supermajority
	}
	return majority
}

// Passes reports whether for/(for+against) reaches threshold. Abstentions are left out
// of the ratio.
func Passes(votesFor, votesAgainst int64, threshold decimal.Decimal) bool {
	decisive := votesFor + votesAgainst
	if decisive <= 0 {
		return false
	}
	ratio := decimal.NewFromInt(votesFor).Div(decimal.NewFromInt(decisive))
	return ratio.GreaterThanOrEqual(threshold)
}
