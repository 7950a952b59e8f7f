// Package installment prices installment plans for a bank and amount:
// base interest rates, campaign windows that override them, and
// category-level restrictions that filter the eligible counts.
package installment

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mewspay/vpos/bank"
)

// Plan is a configured (bank, count) pricing row.
type Plan struct {
	BankCode       string     `json:"bankCode"`
	Count          int        `json:"count"`
	InterestRate   float64    `json:"interestRate"`
	CampaignRate   float64    `json:"campaignRate"`
	CampaignActive bool       `json:"campaignActive"`
	CampaignStart  *time.Time `json:"campaignStart,omitempty"`
	CampaignEnd    *time.Time `json:"campaignEnd,omitempty"`
	MinAmount      float64    `json:"minAmount"`
	// CommissionRate is the merchant-side cost of the plan. Reported
	// alongside quotes, never folded into customer pricing.
	CommissionRate float64 `json:"commissionRate"`
	Active         bool    `json:"active"`
}

// campaignApplies reports whether the campaign rate is in force on the
// given day. A rate numerically equal to the campaign rate outside the
// window is ordinary pricing, not a campaign.
func (p *Plan) campaignApplies(today time.Time) bool {
	if !p.CampaignActive {
		return false
	}
	day := truncateDay(today)
	if p.CampaignStart != nil && day.Before(truncateDay(*p.CampaignStart)) {
		return false
	}
	if p.CampaignEnd != nil && day.After(truncateDay(*p.CampaignEnd)) {
		return false
	}
	return true
}

// EffectiveRate resolves the rate in force on the given day. Never
// negative.
func (p *Plan) EffectiveRate(today time.Time) float64 {
	rate := p.InterestRate
	if p.campaignApplies(today) {
		rate = p.CampaignRate
	}
	if rate < 0 {
		return 0
	}
	return rate
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Restriction limits the installment counts available for a product
// category at one bank.
type Restriction struct {
	BankCode           string `json:"bankCode"`
	Category           string `json:"category"`
	MinInstallment     int    `json:"minInstallment"`
	MaxInstallment     int    `json:"maxInstallment"`
	BlockedInstallments string `json:"blockedInstallments"`
	InstallmentAllowed bool   `json:"installmentAllowed"`
}

// BlockedSet parses the comma-separated blocked counts.
func (r *Restriction) BlockedSet() map[int]bool {
	blocked := make(map[int]bool)
	for _, part := range strings.Split(r.BlockedInstallments, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			blocked[n] = true
		}
	}
	return blocked
}

// Allows reports whether an installment count survives the
// restriction. Single payment is always allowed; restrictions govern
// financing, not the ability to pay.
func (r *Restriction) Allows(count int) bool {
	if count <= 1 {
		return true
	}
	if !r.InstallmentAllowed {
		return false
	}
	if r.MinInstallment > 0 && count < r.MinInstallment {
		return false
	}
	if r.MaxInstallment > 0 && count > r.MaxInstallment {
		return false
	}
	return !r.BlockedSet()[count]
}

// Quote is one priced installment option.
type Quote struct {
	Count          int     `json:"count"`
	Rate           float64 `json:"rate"`
	Total          float64 `json:"total"`
	PerInstallment float64 `json:"perInstallment"`
	InterestAmount float64 `json:"interestAmount"`
	CommissionRate float64 `json:"commissionRate,omitempty"`
	IsCampaign     bool    `json:"isCampaign"`
}

// round2 applies standard half-up rounding to two decimals.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// Price computes the quote for an amount at a rate.
func Price(amount float64, count int, rate float64, isCampaign bool) Quote {
	if count < 1 {
		count = 1
	}
	total := round2(amount * (1 + rate/100))
	per := round2(total / float64(count))
	return Quote{
		Count:          count,
		Rate:           rate,
		Total:          total,
		PerInstallment: per,
		InterestAmount: round2(total - amount),
		IsCampaign:     isCampaign,
	}
}

// PlanSource yields the configured pricing rows for a bank.
type PlanSource interface {
	PlansForBank(bankCode string) ([]Plan, error)
}

// RestrictionSource yields the category restriction for a (bank,
// category) pair. When none is configured it returns an error
// satisfying bank.IsNotFound; any other error means the restriction
// could not be consulted and must not be treated as absent.
type RestrictionSource interface {
	RestrictionFor(bankCode, category string) (*Restriction, error)
}

// Engine resolves eligible installment quotes.
type Engine struct {
	plans        PlanSource
	restrictions RestrictionSource
	now          func() time.Time
}

// NewEngine builds an engine over the given sources.
func NewEngine(plans PlanSource, restrictions RestrictionSource) *Engine {
	return &Engine{plans: plans, restrictions: restrictions, now: time.Now}
}

// SetClock overrides the engine's notion of "today". Tests pin it to
// exercise campaign windows deterministically.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Quotes lists the eligible priced plans for a bank and amount,
// ascending by count. The single-payment option is always present
// unless a configured count=1 row overrides its pricing.
func (e *Engine) Quotes(bankCode string, amount float64, category string) ([]Quote, error) {
	plans, err := e.plans.PlansForBank(bankCode)
	if err != nil {
		return nil, err
	}

	var restriction *Restriction
	if category != "" && e.restrictions != nil {
		restriction, err = e.restrictions.RestrictionFor(bankCode, category)
		if err != nil {
			// No configured restriction means no filtering; a lookup
			// failure must not widen the offer past a restriction that
			// may exist.
			if !bank.IsNotFound(err) {
				return nil, err
			}
			restriction = nil
		}
	}

	today := e.now()
	quotes := make([]Quote, 0, len(plans)+1)
	hasSingle := false

	for _, plan := range plans {
		if !plan.Active || plan.MinAmount > amount {
			continue
		}
		if restriction != nil && !restriction.Allows(plan.Count) {
			continue
		}
		if plan.Count == 1 {
			hasSingle = true
		}
		rate := plan.EffectiveRate(today)
		q := Price(amount, plan.Count, rate, plan.campaignApplies(today))
		q.CommissionRate = plan.CommissionRate
		quotes = append(quotes, q)
	}

	if !hasSingle {
		quotes = append(quotes, Price(amount, 1, 0, false))
	}

	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Count < quotes[j].Count })
	return quotes, nil
}

// SinglePaymentOnly is the degraded offer used when no bank can be
// resolved for a card prefix: the payment stays possible, financing
// does not.
func SinglePaymentOnly(amount float64) []Quote {
	return []Quote{Price(amount, 1, 0, false)}
}
