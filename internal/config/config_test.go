package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakegate/internal/domain"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, domain.Tokens(10_000_000), cfg.Token.TotalSupply.Amount())
	assert.Equal(t, int64(50), cfg.Fees.UsageFeeBps)
	assert.Equal(t, int64(6000), cfg.Fees.BurnShareBps)
	assert.Equal(t, domain.Tokens(1_000), cfg.TierConfig(domain.TierPro).Threshold.Amount())
	assert.Equal(t, 168*time.Hour, cfg.Governance.VotingPeriod)
	assert.Equal(t, domain.Amount(10_000_000), cfg.Scheduler.CompletionBonus.Amount())
	assert.Equal(t, "reserve", cfg.Token.TreasuryAllocation)
	assert.Equal(t, "community", cfg.Token.MintSources["reward"])
}

func TestParse_OverridesDefaults(t *testing.T) {
	raw := []byte(`
fees:
  usage_fee_bps: 100
governance:
  voting_period: 72h
  min_stake_to_propose: "250.5"
scheduler:
  failure_refund_bps: 5000
  execution_timeout: 30s
`)
	cfg := Default()
	require.NoError(t, Parse(raw, &cfg))

	assert.Equal(t, int64(100), cfg.Fees.UsageFeeBps)
	assert.Equal(t, int64(6000), cfg.Fees.BurnShareBps, "untouched keys keep defaults")
	assert.Equal(t, 72*time.Hour, cfg.Governance.VotingPeriod)
	assert.Equal(t, domain.Amount(25_050_000_000), cfg.Governance.MinStakeToPropose.Amount())
	assert.Equal(t, int64(5000), cfg.Scheduler.FailureRefundBps)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.ExecutionTimeout)
}

func TestParse_TierTable(t *testing.T) {
	raw := []byte(`
tiers:
  - tier: basic
    threshold: 0
    apy_bps: 100
    multiplier: 1
    entitlements: {max_resolution: 720p, max_fps: 24, max_duration_minutes: 1, max_agents: 1, style_packs: [basic]}
  - tier: advanced
    threshold: 50
    apy_bps: 200
    multiplier: 3
    entitlements: {max_resolution: 1080p, max_fps: 30, max_duration_minutes: 2, max_agents: 2, style_packs: [basic]}
  - tier: pro
    threshold: 500
    apy_bps: 300
    multiplier: 6
    entitlements: {max_resolution: 4K, max_fps: 60, max_duration_minutes: 5, max_agents: 4, style_packs: [all]}
  - tier: studio
    threshold: 5000
    apy_bps: 400
    multiplier: 12
    entitlements: {max_resolution: 8K, max_fps: 120, max_duration_minutes: -1, max_agents: -1, style_packs: [all, custom]}
`)
	cfg := Default()
	require.NoError(t, Parse(raw, &cfg))

	adv := cfg.TierConfig(domain.TierAdvanced)
	assert.Equal(t, domain.Tokens(50), adv.Threshold.Amount())
	assert.Equal(t, 3.0, adv.Multiplier)
	assert.Equal(t, domain.Res1080p, adv.Entitlements.MaxResolution)
	assert.Equal(t, Unlimited, cfg.TierConfig(domain.TierStudio).Entitlements.MaxAgents)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Economy)
	}{
		{"fee above 100%", func(e *Economy) { e.Fees.UsageFeeBps = 10_001 }},
		{"negative burn share", func(e *Economy) { e.Fees.BurnShareBps = -1 }},
		{"non-increasing thresholds", func(e *Economy) { e.Tiers[2].Threshold = e.Tiers[1].Threshold }},
		{"non-increasing multipliers", func(e *Economy) { e.Tiers[3].Multiplier = e.Tiers[2].Multiplier }},
		{"basic threshold not zero", func(e *Economy) { e.Tiers[0].Threshold = 1 }},
		{"missing tier", func(e *Economy) { e.Tiers = e.Tiers[:3] }},
		{"zero voting period", func(e *Economy) { e.Governance.VotingPeriod = 0 }},
		{"zero workers", func(e *Economy) { e.Scheduler.Workers = 0 }},
		{"missing multiplier", func(e *Economy) { delete(e.Pricing.ResolutionMultipliers, domain.Res4K) }},
		{"allocation shares short", func(e *Economy) { e.Token.Allocations[0].ShareBps = 4000 }},
		{"duplicate allocation", func(e *Economy) { e.Token.Allocations[4].Name = "team" }},
		{"unknown treasury allocation", func(e *Economy) { e.Token.TreasuryAllocation = "vault" }},
		{"default is treasury", func(e *Economy) { e.Token.DefaultAllocation = "reserve" }},
		{"mint source into treasury", func(e *Economy) { e.Token.MintSources["reward"] = "reserve" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAllocationCaps(t *testing.T) {
	cfg := Default()
	caps := cfg.Token.AllocationCaps()
	require.Len(t, caps, 5)

	want := map[string]domain.Amount{
		"community": domain.Tokens(5_000_000),
		"team":      domain.Tokens(2_000_000),
		"ecosystem": domain.Tokens(1_500_000),
		"reserve":   domain.Tokens(1_000_000),
		"marketing": domain.Tokens(500_000),
	}
	var sum domain.Amount
	for _, a := range caps {
		assert.Equal(t, want[a.Name], a.Cap, a.Name)
		assert.Zero(t, a.Issued)
		sum += a.Cap
	}
	assert.Equal(t, cfg.Token.TotalSupply.Amount(), sum)
}

func TestAllocationCaps_DustToDefault(t *testing.T) {
	tok := TokenConfig{
		TotalSupply: TokenAmount(1),
		Allocations: []AllocationConfig{
			{Name: "a", ShareBps: 5000},
			{Name: "b", ShareBps: 5000},
		},
		DefaultAllocation: "b",
	}
	caps := tok.AllocationCaps()
	assert.Equal(t, domain.Amount(0), caps[0].Cap)
	assert.Equal(t, domain.Amount(1), caps[1].Cap)

	tok.Allocations = nil
	assert.Nil(t, tok.AllocationCaps())
}

func TestParse_Allocations(t *testing.T) {
	raw := []byte(`
token:
  allocations:
    - {name: public, share_bps: 9000}
    - {name: vault, share_bps: 1000}
  treasury_allocation: vault
  default_allocation: public
  mint_sources: {reward: public, bonus: public}
`)
	cfg := Default()
	require.NoError(t, Parse(raw, &cfg))
	require.Len(t, cfg.Token.Allocations, 2)
	assert.Equal(t, "vault", cfg.Token.TreasuryAllocation)
	require.NoError(t, cfg.Validate())
}

func TestTokenAmount_RejectsTooPrecise(t *testing.T) {
	var a TokenAmount
	err := a.UnmarshalText([]byte("0.000000001"))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Fees, cfg.Fees)

	path := filepath.Join(t.TempDir(), "economy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fees:\n  burn_share_bps: 20000\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
