package domain

import "fmt"

// Tier is an ordered access level derived from locked stake.
type Tier int

const (
	TierBasic Tier = iota
	TierAdvanced
	TierPro
	TierStudio
)

// AllTiers lists tiers in ascending order.
var AllTiers = []Tier{TierBasic, TierAdvanced, TierPro, TierStudio}

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierAdvanced:
		return "advanced"
	case TierPro:
		return "pro"
	case TierStudio:
		return "studio"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// IsValid checks if the tier is a known value.
func (t Tier) IsValid() bool {
	return t >= TierBasic && t <= TierStudio
}

// Next returns the tier above t and false when t is the top tier.
func (t Tier) Next() (Tier, bool) {
	if t >= TierStudio {
		return t, false
	}
	return t + 1, true
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	for _, t := range AllTiers {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
