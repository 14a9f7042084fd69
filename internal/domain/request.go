package domain

import (
	"fmt"
	"math"
)

// Resolution is an output resolution class.
type Resolution string

const (
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
	Res4K    Resolution = "4K"
	Res8K    Resolution = "8K"
)

// Rank orders resolutions ascending; unknown resolutions rank -1.
func (r Resolution) Rank() int {
	switch r {
	case Res720p:
		return 0
	case Res1080p:
		return 1
	case Res4K:
		return 2
	case Res8K:
		return 3
	default:
		return -1
	}
}

// IsValid checks if the resolution is a known value.
func (r Resolution) IsValid() bool {
	return r.Rank() >= 0
}

// ResourceRequest describes the production resources a job asks for.
type ResourceRequest struct {
	Resolution      Resolution `json:"resolution"`
	FPS             int        `json:"fps"`
	DurationMinutes float64    `json:"duration_minutes"`
	AgentCount      int        `json:"agent_count"`
	StylePack       string     `json:"style_pack"`
}

// Validate checks field shapes. Entitlement checks live in access control.
func (r ResourceRequest) Validate() error {
	if !r.Resolution.IsValid() {
		return fmt.Errorf("%w: unknown resolution %q", ErrInvalidRequest, r.Resolution)
	}
	if r.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive", ErrInvalidRequest)
	}
	if r.DurationMinutes <= 0 || math.IsNaN(r.DurationMinutes) || math.IsInf(r.DurationMinutes, 0) {
		return fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidRequest)
	}
	if r.AgentCount <= 0 {
		return fmt.Errorf("%w: agent_count must be positive", ErrInvalidRequest)
	}
	if r.StylePack == "" {
		return fmt.Errorf("%w: style_pack is required", ErrInvalidRequest)
	}
	return nil
}
