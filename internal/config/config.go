// Package config loads the economy parameters from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"stakegate/internal/domain"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10_000

// Unlimited marks an entitlement ceiling with no limit.
const Unlimited = -1

// Economy holds every tunable of the token economy.
type Economy struct {
	Token       TokenConfig       `yaml:"token"`
	Fees        FeeConfig         `yaml:"fees"`
	Tiers       []TierConfig      `yaml:"tiers"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Governance  GovernanceConfig  `yaml:"governance"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Persistence PersistenceConfig `yaml:"persistence"`
}

type TokenConfig struct {
	Symbol      string      `yaml:"symbol"`
	TotalSupply TokenAmount `yaml:"total_supply"`

	// Allocations split the cap; shares must sum to 10000. Empty leaves the
	// whole cap in one bucket.
	Allocations        []AllocationConfig `yaml:"allocations"`
	TreasuryAllocation string             `yaml:"treasury_allocation"` // issued to the treasury at genesis
	DefaultAllocation  string             `yaml:"default_allocation"`  // mints without a mint_sources entry
	MintSources        map[string]string  `yaml:"mint_sources"`        // mint reason -> allocation
}

type AllocationConfig struct {
	Name     string `yaml:"name"`
	ShareBps int64  `yaml:"share_bps"`
}

// AllocationCaps turns the shares into caps. Rounding dust goes to the
// default allocation.
func (t TokenConfig) AllocationCaps() []domain.Allocation {
	if len(t.Allocations) == 0 {
		return nil
	}
	total := t.TotalSupply.Amount()
	out := make([]domain.Allocation, len(t.Allocations))
	var sum domain.Amount
	dust := 0
	for i, a := range t.Allocations {
		out[i] = domain.Allocation{Name: a.Name, ShareBps: a.ShareBps, Cap: total.MulBps(a.ShareBps)}
		sum += out[i].Cap
		if a.Name == t.DefaultAllocation {
			dust = i
		}
	}
	out[dust].Cap += total - sum
	return out
}

type FeeConfig struct {
	UsageFeeBps  int64 `yaml:"usage_fee_bps"`  // share of cost taken as fee
	BurnShareBps int64 `yaml:"burn_share_bps"` // share of fee burned; rest to treasury
}

type TierConfig struct {
	Tier         domain.Tier       `yaml:"tier"`
	Threshold    TokenAmount       `yaml:"threshold"` // minimum locked stake
	APYBps       int64             `yaml:"apy_bps"`
	Multiplier   float64           `yaml:"multiplier"` // scheduler priority multiplier
	Entitlements EntitlementConfig `yaml:"entitlements"`
}

type EntitlementConfig struct {
	MaxResolution      domain.Resolution `yaml:"max_resolution"`
	MaxFPS             int               `yaml:"max_fps"`
	MaxDurationMinutes float64           `yaml:"max_duration_minutes"` // -1 unlimited
	MaxAgents          int               `yaml:"max_agents"`           // -1 unlimited
	StylePacks         []string          `yaml:"style_packs"`
}

type PricingConfig struct {
	BaseCost                 TokenAmount                           `yaml:"base_cost"`
	ResolutionMultipliers    map[domain.Resolution]decimal.Decimal `yaml:"resolution_multipliers"`
	ReferenceFPS             int                                   `yaml:"reference_fps"`
	ReferenceDurationMinutes decimal.Decimal                       `yaml:"reference_duration_minutes"`
	ReferenceAgents          int                                   `yaml:"reference_agents"`
}

type GovernanceConfig struct {
	VotingPeriod      time.Duration `yaml:"voting_period"`
	QuorumBps         int64         `yaml:"quorum_bps"`
	ApprovalBps       int64         `yaml:"approval_bps"`
	MinStakeToPropose TokenAmount   `yaml:"min_stake_to_propose"`
}

type SchedulerConfig struct {
	CompletionBonus  TokenAmount   `yaml:"completion_bonus"`
	FailureRefundBps int64         `yaml:"failure_refund_bps"` // 0 = no refund
	Workers          int           `yaml:"workers"`
	ExecutionTimeout time.Duration `yaml:"execution_timeout"` // 0 = wait forever
}

type PersistenceConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// TokenAmount is a decimal token quantity in YAML ("12.5"), held in minor units.
type TokenAmount domain.Amount

// Amount returns the value in minor units.
func (t TokenAmount) Amount() domain.Amount {
	return domain.Amount(t)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TokenAmount) UnmarshalText(b []byte) error {
	a, err := domain.ParseAmount(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*t = TokenAmount(a)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t TokenAmount) MarshalText() ([]byte, error) {
	return []byte(domain.Amount(t).String()), nil
}

func tokens(n int64) TokenAmount {
	return TokenAmount(domain.Tokens(n))
}

// Default returns the stock economy.
func Default() Economy {
	return Economy{
		Token: TokenConfig{
			Symbol:      "ANM",
			TotalSupply: tokens(10_000_000),
			Allocations: []AllocationConfig{
				{Name: "community", ShareBps: 5000},
				{Name: "team", ShareBps: 2000},
				{Name: "ecosystem", ShareBps: 1500},
				{Name: "reserve", ShareBps: 1000},
				{Name: "marketing", ShareBps: 500},
			},
			TreasuryAllocation: "reserve",
			DefaultAllocation:  "community",
			MintSources: map[string]string{
				"reward": "community",
				"bonus":  "ecosystem",
			},
		},
		Fees: FeeConfig{
			UsageFeeBps:  50,
			BurnShareBps: 6000,
		},
		Tiers: []TierConfig{
			{
				Tier: domain.TierBasic, Threshold: 0, APYBps: 500, Multiplier: 1,
				Entitlements: EntitlementConfig{
					MaxResolution: domain.Res720p, MaxFPS: 24, MaxDurationMinutes: 0.5, MaxAgents: 2,
					StylePacks: []string{"basic"},
				},
			},
			{
				Tier: domain.TierAdvanced, Threshold: tokens(100), APYBps: 1000, Multiplier: 2,
				Entitlements: EntitlementConfig{
					MaxResolution: domain.Res1080p, MaxFPS: 30, MaxDurationMinutes: 2, MaxAgents: 5,
					StylePacks: []string{"basic", "cinematic", "anime"},
				},
			},
			{
				Tier: domain.TierPro, Threshold: tokens(1_000), APYBps: 1500, Multiplier: 5,
				Entitlements: EntitlementConfig{
					MaxResolution: domain.Res4K, MaxFPS: 60, MaxDurationMinutes: 10, MaxAgents: 10,
					StylePacks: []string{"all"},
				},
			},
			{
				Tier: domain.TierStudio, Threshold: tokens(10_000), APYBps: 2500, Multiplier: 10,
				Entitlements: EntitlementConfig{
					MaxResolution: domain.Res8K, MaxFPS: 120, MaxDurationMinutes: Unlimited, MaxAgents: Unlimited,
					StylePacks: []string{"all", "custom"},
				},
			},
		},
		Pricing: PricingConfig{
			BaseCost: tokens(10),
			ResolutionMultipliers: map[domain.Resolution]decimal.Decimal{
				domain.Res720p:  decimal.NewFromInt(1),
				domain.Res1080p: decimal.NewFromInt(2),
				domain.Res4K:    decimal.NewFromInt(5),
				domain.Res8K:    decimal.NewFromInt(10),
			},
			ReferenceFPS:             30,
			ReferenceDurationMinutes: decimal.NewFromInt(5),
			ReferenceAgents:          5,
		},
		Governance: GovernanceConfig{
			VotingPeriod:      7 * 24 * time.Hour,
			QuorumBps:         1000,
			ApprovalBps:       6600,
			MinStakeToPropose: tokens(100),
		},
		Scheduler: SchedulerConfig{
			CompletionBonus:  TokenAmount(domain.Unit / 10),
			FailureRefundBps: 0,
			Workers:          4,
			ExecutionTimeout: 0,
		},
		Persistence: PersistenceConfig{
			FlushInterval: 10 * time.Second,
		},
	}
}

// Load reads an economy file over the defaults. An empty path returns Default().
func Load(path string) (Economy, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
func Parse(raw []byte, cfg *Economy) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate checks ranges and the monotonicity of the tier table.
func (e Economy) Validate() error {
	var errs []error
	bps := func(name string, v int64) {
		if v < 0 || v > BpsDenominator {
			errs = append(errs, fmt.Errorf("%s must be within [0, %d], got %d", name, BpsDenominator, v))
		}
	}

	if e.Token.TotalSupply <= 0 {
		errs = append(errs, errors.New("token.total_supply must be positive"))
	}
	errs = append(errs, e.Token.validateAllocations()...)
	bps("fees.usage_fee_bps", e.Fees.UsageFeeBps)
	bps("fees.burn_share_bps", e.Fees.BurnShareBps)
	bps("governance.quorum_bps", e.Governance.QuorumBps)
	bps("governance.approval_bps", e.Governance.ApprovalBps)
	bps("scheduler.failure_refund_bps", e.Scheduler.FailureRefundBps)

	if len(e.Tiers) != len(domain.AllTiers) {
		errs = append(errs, fmt.Errorf("tiers must list %d tiers, got %d", len(domain.AllTiers), len(e.Tiers)))
	} else {
		for i, tc := range e.Tiers {
			if tc.Tier != domain.AllTiers[i] {
				errs = append(errs, fmt.Errorf("tiers[%d] must be %s, got %s", i, domain.AllTiers[i], tc.Tier))
			}
			if tc.APYBps < 0 {
				errs = append(errs, fmt.Errorf("tiers[%d].apy_bps must not be negative", i))
			}
			if tc.Multiplier <= 0 {
				errs = append(errs, fmt.Errorf("tiers[%d].multiplier must be positive", i))
			}
			if !tc.Entitlements.MaxResolution.IsValid() {
				errs = append(errs, fmt.Errorf("tiers[%d].entitlements.max_resolution %q unknown", i, tc.Entitlements.MaxResolution))
			}
			if i == 0 {
				if tc.Threshold != 0 {
					errs = append(errs, errors.New("tiers[0].threshold must be 0"))
				}
				continue
			}
			prev := e.Tiers[i-1]
			if tc.Threshold <= prev.Threshold {
				errs = append(errs, fmt.Errorf("tiers[%d].threshold must exceed tiers[%d]", i, i-1))
			}
			if tc.Multiplier <= prev.Multiplier {
				errs = append(errs, fmt.Errorf("tiers[%d].multiplier must exceed tiers[%d]", i, i-1))
			}
		}
	}

	if e.Pricing.BaseCost <= 0 {
		errs = append(errs, errors.New("pricing.base_cost must be positive"))
	}
	for _, r := range []domain.Resolution{domain.Res720p, domain.Res1080p, domain.Res4K, domain.Res8K} {
		m, ok := e.Pricing.ResolutionMultipliers[r]
		if !ok || !m.IsPositive() {
			errs = append(errs, fmt.Errorf("pricing.resolution_multipliers[%s] must be positive", r))
		}
	}
	if e.Pricing.ReferenceFPS <= 0 || e.Pricing.ReferenceAgents <= 0 || !e.Pricing.ReferenceDurationMinutes.IsPositive() {
		errs = append(errs, errors.New("pricing reference values must be positive"))
	}

	if e.Governance.VotingPeriod <= 0 {
		errs = append(errs, errors.New("governance.voting_period must be positive"))
	}
	if e.Governance.MinStakeToPropose < 0 {
		errs = append(errs, errors.New("governance.min_stake_to_propose must not be negative"))
	}
	if e.Scheduler.CompletionBonus < 0 {
		errs = append(errs, errors.New("scheduler.completion_bonus must not be negative"))
	}
	if e.Scheduler.Workers <= 0 {
		errs = append(errs, errors.New("scheduler.workers must be positive"))
	}
	if e.Scheduler.ExecutionTimeout < 0 {
		errs = append(errs, errors.New("scheduler.execution_timeout must not be negative"))
	}
	if e.Persistence.FlushInterval < 0 {
		errs = append(errs, errors.New("persistence.flush_interval must not be negative"))
	}
	return errors.Join(errs...)
}

func (t TokenConfig) validateAllocations() []error {
	if len(t.Allocations) == 0 {
		if t.TreasuryAllocation != "" || t.DefaultAllocation != "" || len(t.MintSources) > 0 {
			return []error{errors.New("token allocation names given without token.allocations")}
		}
		return nil
	}
	var errs []error
	names := make(map[string]bool, len(t.Allocations))
	var sum int64
	for i, a := range t.Allocations {
		if a.Name == "" || names[a.Name] {
			errs = append(errs, fmt.Errorf("token.allocations[%d].name must be unique and not empty", i))
		}
		names[a.Name] = true
		if a.ShareBps <= 0 || a.ShareBps > BpsDenominator {
			errs = append(errs, fmt.Errorf("token.allocations[%d].share_bps must be within (0, %d]", i, BpsDenominator))
		}
		sum += a.ShareBps
	}
	if sum != BpsDenominator {
		errs = append(errs, fmt.Errorf("token.allocations shares sum to %d, want %d", sum, BpsDenominator))
	}
	if !names[t.DefaultAllocation] {
		errs = append(errs, fmt.Errorf("token.default_allocation %q is not an allocation", t.DefaultAllocation))
	}
	if t.TreasuryAllocation != "" && !names[t.TreasuryAllocation] {
		errs = append(errs, fmt.Errorf("token.treasury_allocation %q is not an allocation", t.TreasuryAllocation))
	}
	if t.TreasuryAllocation != "" && t.TreasuryAllocation == t.DefaultAllocation {
		errs = append(errs, errors.New("token.default_allocation must differ from treasury_allocation"))
	}
	for reason, bucket := range t.MintSources {
		if !names[bucket] || bucket == t.TreasuryAllocation {
			errs = append(errs, fmt.Errorf("token.mint_sources[%s] %q is not a mintable allocation", reason, bucket))
		}
	}
	return errs
}

// TierConfig returns the configuration row for t.
func (e Economy) TierConfig(t domain.Tier) TierConfig {
	for _, tc := range e.Tiers {
		if tc.Tier == t {
			return tc
		}
	}
	return TierConfig{Tier: t}
}
