// Package scorer simulates candidate routes hop by hop and ranks the
// net-profitable ones. All monetary amounts are integer base units and all
// rates are basis points; no floating point enters the profit equation.
package scorer

import (
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/juant72/sniperforge/internal/domain"
)

const bpsDenominator = 10_000

// Costs holds the fixed per-attempt charges subtracted from gross output.
type Costs struct {
	// BaseFeePerSig is the network fee charged per signed transaction.
	BaseFeePerSig int64
	// PriorityFee is the additional tip attached to the whole attempt.
	PriorityFee int64
	// SafetyMargin is an extra haircut absorbing quote drift.
	SafetyMargin int64
}

// Scorer turns routes into scored opportunities.
type Scorer struct {
	inputAmount    int64
	minNetProfit   int64
	opportunityTTL time.Duration
	costs          Costs
}

// New builds a Scorer that simulates every route at inputAmount.
func New(inputAmount, minNetProfit int64, ttl time.Duration, costs Costs) *Scorer {
	return &Scorer{
		inputAmount:    inputAmount,
		minNetProfit:   minNetProfit,
		opportunityTTL: ttl,
		costs:          costs,
	}
}

// Score simulates route execution and returns the opportunity, or nil when
// the route is not profitable at the configured size. An unprofitable route
// is an expected outcome, never an error.
func (s *Scorer) Score(route domain.Route) *domain.Opportunity {
	if s.inputAmount <= 0 || len(route.Hops) == 0 {
		return nil
	}

	amount := s.inputAmount
	var venueFees int64
	for _, hop := range route.Hops {
		out := SimulateHop(hop, amount)
		if out <= 0 {
			return nil
		}
		// Accumulated in each hop's input-asset units; see Opportunity.VenueFees.
		venueFees += amount*hop.FeeBps/bpsDenominator + amount*hop.PriceImpactBps/bpsDenominator
		amount = out
	}

	networkFee := s.costs.BaseFeePerSig*int64(len(route.Hops)) + s.costs.PriorityFee
	net := amount - s.inputAmount - networkFee - s.costs.SafetyMargin
	if net <= 0 {
		return nil
	}

	now := time.Now().UTC()
	return &domain.Opportunity{
		ID:           uuid.NewString(),
		Route:        route,
		InputAmount:  s.inputAmount,
		GrossOutput:  amount,
		VenueFees:    venueFees,
		NetworkFee:   networkFee,
		SafetyMargin: s.costs.SafetyMargin,
		NetProfit:    net,
		RiskScore:    riskScore(route),
		DetectedAt:   now,
		ValidUntil:   now.Add(s.opportunityTTL),
	}
}

// ScoreAll scores every route and returns the profitable ones ranked best
// first. Opportunities under the minimum net profit threshold are dropped.
func (s *Scorer) ScoreAll(routes []domain.Route) []domain.Opportunity {
	opps := make([]domain.Opportunity, 0, len(routes))
	for _, r := range routes {
		opp := s.Score(r)
		if opp == nil || opp.NetProfit < s.minNetProfit {
			continue
		}
		opps = append(opps, *opp)
	}
	Rank(opps)
	return opps
}

// SimulateHop computes the hop's output for the given input size. The
// quoted rate is scaled linearly to the simulated size, then degraded by
// price impact and the venue fee. Division floors, biasing the simulation
// conservative.
func SimulateHop(hop domain.Quote, in int64) int64 {
	if in <= 0 || hop.InAmount <= 0 || hop.OutAmount <= 0 {
		return 0
	}
	out := mulDiv(hop.OutAmount, in, hop.InAmount)
	out = out * (bpsDenominator - hop.PriceImpactBps) / bpsDenominator
	out = out * (bpsDenominator - hop.FeeBps) / bpsDenominator
	return out
}

// Rank sorts opportunities descending by net profit; ties prefer the lower
// risk score, then fewer hops, then the route key for a stable total order.
func Rank(opps []domain.Opportunity) {
	sort.Slice(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.NetProfit != b.NetProfit {
			return a.NetProfit > b.NetProfit
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		if len(a.Route.Hops) != len(b.Route.Hops) {
			return len(a.Route.Hops) < len(b.Route.Hops)
		}
		return a.Route.Key() < b.Route.Key()
	})
}

// riskScore is a coarse comparative score: more hops and thinner liquidity
// raise it. It orders ties in ranking and feeds the operator surface; it is
// never part of the profit equation.
func riskScore(route domain.Route) float64 {
	score := float64(len(route.Hops))
	if min := route.MinLiquidity(); min > 0 {
		score += 1e12 / float64(min)
	}
	return score
}

// mulDiv computes floor(a*b/den) through a 128-bit intermediate so large
// base-unit amounts cannot overflow mid-multiplication.
func mulDiv(a, b, den int64) int64 {
	if a <= 0 || b <= 0 || den <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	d := uint64(den)
	if hi >= d {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, d)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
