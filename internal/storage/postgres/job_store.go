package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// JobStore implements storage.JobStore using PostgreSQL.
// The request and artifact metadata are stored as JSONB.
type JobStore struct {
	pool *Pool
}

// NewJobStore creates a new JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

const jobColumns = `
	id, owner, request, cost, priority_score, state, seq, enqueued_at,
	started_at, finished_at, error_reason, artifact_metadata, bonus, refund
`

// UpsertBulk writes the latest state of the given jobs atomically.
func (s *JobStore) UpsertBulk(ctx context.Context, jobs []domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at,
			error_reason = EXCLUDED.error_reason,
			artifact_metadata = EXCLUDED.artifact_metadata,
			bonus = EXCLUDED.bonus,
			refund = EXCLUDED.refund
	`

	return inTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, j := range jobs {
			if j.ID == "" || !j.State.IsValid() {
				return fmt.Errorf("%w: job %q", storage.ErrInvalidInput, j.ID)
			}
			_, err := tx.Exec(ctx, query,
				j.ID, j.Owner, j.Request, int64(j.Cost), j.PriorityScore, string(j.State), j.Seq, j.EnqueuedAt,
				j.StartedAt, j.FinishedAt, j.ErrorReason, j.ArtifactMetadata, int64(j.Bonus), int64(j.Refund),
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("upsert job %s: %w", j.ID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a job. Returns ErrNotFound if not exists.
func (s *JobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	j, err := scanJob(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// GetByOwner returns the owner's jobs ordered by seq ASC.
func (s *JobStore) GetByOwner(ctx context.Context, owner string) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE owner = $1 ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("query jobs by owner: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// List returns all jobs ordered by seq ASC.
func (s *JobStore) List(ctx context.Context) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows pgx.Rows) ([]domain.Job, error) {
	var result []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		result = append(result, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return result, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j                   domain.Job
		state               string
		cost, bonus, refund int64
	)
	err := row.Scan(
		&j.ID, &j.Owner, &j.Request, &cost, &j.PriorityScore, &state, &j.Seq, &j.EnqueuedAt,
		&j.StartedAt, &j.FinishedAt, &j.ErrorReason, &j.ArtifactMetadata, &bonus, &refund,
	)
	if err != nil {
		return nil, err
	}
	j.State = domain.JobState(state)
	j.Cost = domain.Amount(cost)
	j.Bonus = domain.Amount(bonus)
	j.Refund = domain.Amount(refund)
	return &j, nil
}
