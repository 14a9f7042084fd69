// Package executor defines the Production Executor contract consumed by the
// scheduler and ships two adapters: an in-process stub and an HTTP client.
package executor

import (
	"context"
	"fmt"

	"stakegate/internal/domain"
)

// JobSpec is what an executor receives for one job.
type JobSpec struct {
	JobID         string                 `json:"job_id"`
	Owner         string                 `json:"owner"`
	Request       domain.ResourceRequest `json:"request"`
	PriorityScore float64                `json:"priority_score"`
}

// SpecFor builds the spec for job.
func SpecFor(job *domain.Job) JobSpec {
	return JobSpec{
		JobID:         job.ID,
		Owner:         job.Owner,
		Request:       job.Request,
		PriorityScore: job.PriorityScore,
	}
}

// Result is the outcome an executor reports. Artifact metadata is opaque.
type Result struct {
	Success          bool              `json:"success"`
	ArtifactMetadata map[string]string `json:"artifact_metadata,omitempty"`
	ErrorReason      string            `json:"error_reason,omitempty"`
}

// Failure returns a failed result carrying err.
func Failure(err error) Result {
	return Result{ErrorReason: fmt.Errorf("%w: %v", domain.ErrExecutorFailure, err).Error()}
}

// Executor runs jobs. Execute returns immediately; exactly one Result is
// delivered on the channel, after which it is closed. Implementations must
// honour ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, spec JobSpec) <-chan Result
}

// Func adapts a synchronous function to Executor.
type Func func(ctx context.Context, spec JobSpec) Result

// Execute runs f in its own goroutine. A panic in f is reported as a
// failed Result.
func (f Func) Execute(ctx context.Context, spec JobSpec) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- Failure(fmt.Errorf("executor panic: %v", r))
			}
		}()
		out <- f(ctx, spec)
	}()
	return out
}
