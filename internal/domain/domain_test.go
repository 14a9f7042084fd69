package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{"0", 0, false},
		{"1", Unit, false},
		{"12.5", 1_250_000_000, false},
		{"0.00000001", 1, false},
		{"0.000000001", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "1000", Tokens(1000).String())
	assert.Equal(t, "0.1", (Unit / 10).String())
	assert.Equal(t, "1.6", Amount(160_000_000).String())
}

func TestAmount_MulBps(t *testing.T) {
	assert.Equal(t, Amount(800_000), Amount(160_000_000).MulBps(50))
	assert.Equal(t, Amount(480_000), Amount(800_000).MulBps(6000))
	assert.Equal(t, Amount(0), Amount(199).MulBps(50), "floors to a minor unit")
	assert.Equal(t, Amount(9_000_000_000_000_000), Amount(9_000_000_000_000_000).MulBps(10_000))
}

func TestAmount_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]Amount{"a": 1_250_000_000, "b": -1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"12.5","b":"-0.00000001"}`, string(b))

	var got map[string]Amount
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, Amount(1_250_000_000), got["a"])
	assert.Equal(t, Amount(-1), got["b"])

	var a Amount
	assert.ErrorIs(t, a.UnmarshalText([]byte("0.000000001")), ErrInvalidAmount)
}

func TestTier_TextRoundTrip(t *testing.T) {
	for _, tier := range AllTiers {
		b, err := tier.MarshalText()
		require.NoError(t, err)
		var got Tier
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, tier, got)
	}
	_, err := ParseTier("platinum")
	assert.Error(t, err)

	next, ok := TierPro.Next()
	assert.True(t, ok)
	assert.Equal(t, TierStudio, next)
	_, ok = TierStudio.Next()
	assert.False(t, ok)
}

func TestResourceRequest_Validate(t *testing.T) {
	ok := ResourceRequest{Resolution: Res1080p, FPS: 30, DurationMinutes: 1, AgentCount: 2, StylePack: "cinematic"}
	require.NoError(t, ok.Validate())

	bad := []ResourceRequest{
		{Resolution: "16K", FPS: 30, DurationMinutes: 1, AgentCount: 1, StylePack: "basic"},
		{Resolution: Res720p, FPS: 0, DurationMinutes: 1, AgentCount: 1, StylePack: "basic"},
		{Resolution: Res720p, FPS: 24, DurationMinutes: 0, AgentCount: 1, StylePack: "basic"},
		{Resolution: Res720p, FPS: 24, DurationMinutes: 1, AgentCount: 0, StylePack: "basic"},
		{Resolution: Res720p, FPS: 24, DurationMinutes: 1, AgentCount: 1},
	}
	for _, r := range bad {
		assert.ErrorIs(t, r.Validate(), ErrInvalidRequest, "%+v", r)
	}
}

func TestProposalPayload_Validate(t *testing.T) {
	good := ProposalPayload{
		Title:  "Add a sound designer agent",
		Params: map[string]string{"agent_name": "foley", "agent_type": "audio"},
	}
	require.NoError(t, good.Validate(ProposalNewAgent))

	missing := ProposalPayload{Title: "x", Params: map[string]string{"agent_name": "foley"}}
	assert.ErrorIs(t, missing.Validate(ProposalNewAgent), ErrInvalidRequest)

	unknown := ProposalPayload{Title: "x", Params: map[string]string{"initiative": "a", "color": "red"}}
	assert.ErrorIs(t, unknown.Validate(ProposalEcosystem), ErrInvalidRequest)

	untitled := ProposalPayload{Params: map[string]string{}}
	assert.ErrorIs(t, untitled.Validate(ProposalEcosystem), ErrInvalidRequest)

	badAmount := ProposalPayload{Title: "x", Params: map[string]string{"amount": "lots", "recipient": "bob"}}
	assert.ErrorIs(t, badAmount.Validate(ProposalTreasury), ErrInvalidRequest)

	assert.ErrorIs(t, good.Validate("mystery"), ErrInvalidRequest)
	assert.Len(t, ProposalTypes(), 7)
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	var err error = &InsufficientBalanceError{Account: "a", Available: 1, Required: 3}
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, Amount(2), err.(*InsufficientBalanceError).Missing())

	err = &InsufficientStakeError{Account: "a"}
	assert.True(t, errors.Is(err, ErrInsufficientStake))

	err = &DeniedError{Field: "resolution", RequiredTier: TierAdvanced, Attainable: true}
	assert.True(t, errors.Is(err, ErrTierLimitExceeded))
	assert.Contains(t, err.Error(), "advanced")
}
