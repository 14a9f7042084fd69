// Package access maps tiers to feature envelopes, validates production
// requests against them and prices requests.
package access

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"stakegate/internal/config"
	"stakegate/internal/domain"
)

// Style pack wildcards.
const (
	StyleAll    = "all"    // every pack except custom
	StyleCustom = "custom" // custom packs, listed explicitly
)

// Entitlements is the feature envelope of a tier.
type Entitlements struct {
	Tier               domain.Tier       `json:"tier"`
	MaxResolution      domain.Resolution `json:"max_resolution"`
	MaxFPS             int               `json:"max_fps"`
	MaxDurationMinutes float64           `json:"max_duration_minutes"` // -1 unlimited
	MaxAgents          int               `json:"max_agents"`           // -1 unlimited
	StylePacks         []string          `json:"style_packs"`
}

// AllowsStyle reports whether pack is covered by the envelope.
func (e Entitlements) AllowsStyle(pack string) bool {
	for _, p := range e.StylePacks {
		if p == pack || (p == StyleAll && pack != StyleCustom) {
			return true
		}
	}
	return false
}

// Decision is the outcome of a validation.
type Decision struct {
	Allowed bool                `json:"allowed"`
	Tier    domain.Tier         `json:"tier"`
	Denial  *domain.DeniedError `json:"denial,omitempty"`
}

// Err returns the denial as an error, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return d.Denial
}

// Summary is an account's feature envelope plus an upgrade recommendation.
type Summary struct {
	Account           string        `json:"account"`
	Tier              domain.Tier   `json:"tier"`
	Locked            domain.Amount `json:"locked"`
	Entitlements      Entitlements  `json:"entitlements"`
	NextTier          *domain.Tier  `json:"next_tier,omitempty"`
	NextEntitlements  *Entitlements `json:"next_entitlements,omitempty"`
	NeededForNextTier domain.Amount `json:"needed_for_next_tier"`
}

// StakeReader exposes the stake-derived facts access control needs.
type StakeReader interface {
	Tier(account string) domain.Tier
	Locked(account string) domain.Amount
}

// Options configures a Controller.
type Options struct {
	Tiers   []config.TierConfig
	Pricing config.PricingConfig
	Stakes  StakeReader
}

// Controller is the access control service. Validation and pricing are pure.
type Controller struct {
	tiers   []config.TierConfig
	pricing config.PricingConfig
	stakes  StakeReader
}

// New creates a Controller.
func New(opts Options) *Controller {
	return &Controller{tiers: opts.Tiers, pricing: opts.Pricing, stakes: opts.Stakes}
}

// Entitlements returns the envelope of tier t.
func (c *Controller) Entitlements(t domain.Tier) Entitlements {
	for _, tc := range c.tiers {
		if tc.Tier == t {
			ec := tc.Entitlements
			return Entitlements{
				Tier:               t,
				MaxResolution:      ec.MaxResolution,
				MaxFPS:             ec.MaxFPS,
				MaxDurationMinutes: ec.MaxDurationMinutes,
				MaxAgents:          ec.MaxAgents,
				StylePacks:         append([]string(nil), ec.StylePacks...),
			}
		}
	}
	return Entitlements{Tier: t}
}

// Validate checks request against the account's current tier.
// Malformed requests return ErrInvalidRequest; limits produce a denial.
func (c *Controller) Validate(account string, req domain.ResourceRequest) (Decision, error) {
	if err := req.Validate(); err != nil {
		return Decision{}, err
	}
	return c.Check(c.stakes.Tier(account), req), nil
}

type check struct {
	field     string
	requested string
	allowed   func(Entitlements) string
	admits    func(Entitlements) bool
}

func (c *Controller) checks(req domain.ResourceRequest) []check {
	return []check{
		{
			field:     "resolution",
			requested: string(req.Resolution),
			allowed:   func(e Entitlements) string { return string(e.MaxResolution) },
			admits:    func(e Entitlements) bool { return req.Resolution.Rank() <= e.MaxResolution.Rank() },
		},
		{
			field:     "fps",
			requested: strconv.Itoa(req.FPS),
			allowed:   func(e Entitlements) string { return strconv.Itoa(e.MaxFPS) },
			admits:    func(e Entitlements) bool { return req.FPS <= e.MaxFPS },
		},
		{
			field:     "duration_minutes",
			requested: strconv.FormatFloat(req.DurationMinutes, 'f', -1, 64),
			allowed:   func(e Entitlements) string { return limitString(e.MaxDurationMinutes) },
			admits: func(e Entitlements) bool {
				return e.MaxDurationMinutes == config.Unlimited || req.DurationMinutes <= e.MaxDurationMinutes
			},
		},
		{
			field:     "style_pack",
			requested: req.StylePack,
			allowed:   func(e Entitlements) string { return fmt.Sprint(e.StylePacks) },
			admits:    func(e Entitlements) bool { return e.AllowsStyle(req.StylePack) },
		},
		{
			field:     "agent_count",
			requested: strconv.Itoa(req.AgentCount),
			allowed:   func(e Entitlements) string { return limitString(float64(e.MaxAgents)) },
			admits:    func(e Entitlements) bool { return e.MaxAgents == config.Unlimited || req.AgentCount <= e.MaxAgents },
		},
	}
}

func limitString(v float64) string {
	if v == config.Unlimited {
		return "unlimited"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Check validates req against tier t. The first violated field, in the
// order resolution, fps, duration, style pack, agents, is reported with
// the lowest tier that admits it.
func (c *Controller) Check(t domain.Tier, req domain.ResourceRequest) Decision {
	ent := c.Entitlements(t)
	for _, ck := range c.checks(req) {
		if ck.admits(ent) {
			continue
		}
		denial := &domain.DeniedError{
			Field:        ck.field,
			Requested:    ck.requested,
			Allowed:      ck.allowed(ent),
			CurrentTier:  t,
			RequiredTier: t,
		}
		for _, candidate := range domain.AllTiers {
			if candidate > t && ck.admits(c.Entitlements(candidate)) {
				denial.RequiredTier = candidate
				denial.Attainable = true
				break
			}
		}
		return Decision{Tier: t, Denial: denial}
	}
	return Decision{Allowed: true, Tier: t}
}

// Cost prices req: base × resolution multiplier × fps/refFPS ×
// duration/refDuration × agents/refAgents, floored, at least one minor unit.
// It does not check entitlements.
func (c *Controller) Cost(req domain.ResourceRequest) (domain.Amount, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	mult, ok := c.pricing.ResolutionMultipliers[req.Resolution]
	if !ok {
		return 0, fmt.Errorf("%w: no price for resolution %s", domain.ErrInvalidRequest, req.Resolution)
	}

	num := decimal.NewFromInt(int64(c.pricing.BaseCost.Amount())).
		Mul(mult).
		Mul(decimal.NewFromInt(int64(req.FPS))).
		Mul(decimal.NewFromFloat(req.DurationMinutes)).
		Mul(decimal.NewFromInt(int64(req.AgentCount)))
	den := decimal.NewFromInt(int64(c.pricing.ReferenceFPS)).
		Mul(c.pricing.ReferenceDurationMinutes).
		Mul(decimal.NewFromInt(int64(c.pricing.ReferenceAgents)))

	cost := num.DivRound(den, 8).Floor()
	if !cost.IsPositive() {
		return 1, nil
	}
	if cost.GreaterThan(decimal.NewFromInt(int64(^uint64(0) >> 1))) {
		return 0, fmt.Errorf("%w: cost overflows", domain.ErrInvalidRequest)
	}
	return domain.Amount(cost.IntPart()), nil
}

// Summary returns the account's envelope and what the next tier would unlock.
func (c *Controller) Summary(account string) Summary {
	tier := c.stakes.Tier(account)
	locked := c.stakes.Locked(account)
	s := Summary{
		Account:      account,
		Tier:         tier,
		Locked:       locked,
		Entitlements: c.Entitlements(tier),
	}
	if next, ok := tier.Next(); ok {
		ent := c.Entitlements(next)
		s.NextTier = &next
		s.NextEntitlements = &ent
		for _, tc := range c.tiers {
			if tc.Tier == next {
				s.NeededForNextTier = tc.Threshold.Amount() - locked
			}
		}
	}
	return s
}
