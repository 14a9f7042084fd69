package domain

// JobState is the scheduler lifecycle state of a job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// IsValid checks if the state is a known value.
func (s JobState) IsValid() bool {
	switch s {
	case JobQueued, JobRunning, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Job is a paid-for production request owned by the scheduler.
type Job struct {
	ID            string
	Owner         string
	Request       ResourceRequest
	Cost          Amount  // charged at admission
	PriorityScore float64 // snapshot at admission
	State         JobState
	Seq           int64 // admission order, FIFO tiebreak

	EnqueuedAt int64 // ms
	StartedAt  int64 // ms, 0 until running
	FinishedAt int64 // ms, 0 until terminal

	// Settlement
	ErrorReason      string
	ArtifactMetadata map[string]string
	Bonus            Amount // minted on completion
	Refund           Amount // returned on failure
}

// Clone returns a deep copy.
func (j *Job) Clone() *Job {
	c := *j
	if j.ArtifactMetadata != nil {
		c.ArtifactMetadata = make(map[string]string, len(j.ArtifactMetadata))
		for k, v := range j.ArtifactMetadata {
			c.ArtifactMetadata[k] = v
		}
	}
	return &c
}
