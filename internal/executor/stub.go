package executor

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ErrRejected is returned by Fail hooks that reject a job outright.
var ErrRejected = errors.New("rejected by executor")

// Stub is an in-process executor that sleeps for Delay and succeeds unless
// Fail returns an error.
type Stub struct {
	Delay time.Duration
	Fail  func(spec JobSpec) error
}

// Execute implements Executor.
func (s *Stub) Execute(ctx context.Context, spec JobSpec) <-chan Result {
	return Func(s.run).Execute(ctx, spec)
}

func (s *Stub) run(ctx context.Context, spec JobSpec) Result {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Failure(ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return Failure(err)
	}
	if s.Fail != nil {
		if err := s.Fail(spec); err != nil {
			return Failure(err)
		}
	}
	return Result{
		Success: true,
		ArtifactMetadata: map[string]string{
			"job_id":           spec.JobID,
			"resolution":       string(spec.Request.Resolution),
			"fps":              strconv.Itoa(spec.Request.FPS),
			"duration_minutes": strconv.FormatFloat(spec.Request.DurationMinutes, 'f', -1, 64),
			"agents":           strconv.Itoa(spec.Request.AgentCount),
			"style_pack":       spec.Request.StylePack,
		},
	}
}
