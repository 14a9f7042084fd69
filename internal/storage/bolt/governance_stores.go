package bolt

import (
	"context"
	"fmt"
	"sort"

	bbolt "go.etcd.io/bbolt"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// ProposalStore implements storage.ProposalStore on bbolt.
type ProposalStore struct {
	db *DB
}

// NewProposalStore creates a new ProposalStore.
func NewProposalStore(db *DB) *ProposalStore {
	return &ProposalStore{db: db}
}

var _ storage.ProposalStore = (*ProposalStore)(nil)

// UpsertBulk writes the latest state of the given proposals atomically.
func (s *ProposalStore) UpsertBulk(_ context.Context, proposals []domain.Proposal) error {
	if len(proposals) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProposals)
		for _, p := range proposals {
			if p.ID == "" || !p.Status.IsValid() {
				return fmt.Errorf("%w: proposal %q", storage.ErrInvalidInput, p.ID)
			}
			if err := put(b, []byte(p.ID), p); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a proposal. Returns ErrNotFound if not exists.
func (s *ProposalStore) GetByID(_ context.Context, id string) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := get(s.db.DB, bucketProposals, []byte(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all proposals ordered by created_at ASC, id ASC.
func (s *ProposalStore) List(_ context.Context) ([]domain.Proposal, error) {
	var result []domain.Proposal
	err := each(s.db.DB, bucketProposals, func(p domain.Proposal) error {
		result = append(result, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// VoteStore implements storage.VoteStore on bbolt.
// Keys are proposal_id NUL voter, so a proposal's votes are contiguous.
type VoteStore struct {
	db *DB
}

// NewVoteStore creates a new VoteStore.
func NewVoteStore(db *DB) *VoteStore {
	return &VoteStore{db: db}
}

var _ storage.VoteStore = (*VoteStore)(nil)

func voteKey(proposalID, voter string) []byte {
	return []byte(proposalID + "\x00" + voter)
}

// InsertBulk appends votes atomically. Fails entire batch on duplicate (proposal_id, voter).
func (s *VoteStore) InsertBulk(_ context.Context, votes []domain.Vote) error {
	if len(votes) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketVotes)
		for _, v := range votes {
			if v.ProposalID == "" || v.Voter == "" || !v.Weight.IsPositive() {
				return storage.ErrInvalidInput
			}
			key := voteKey(v.ProposalID, v.Voter)
			if b.Get(key) != nil {
				return storage.ErrDuplicateKey
			}
			if err := put(b, key, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByProposal returns the votes on a proposal ordered by cast_at ASC, voter ASC.
func (s *VoteStore) GetByProposal(ctx context.Context, proposalID string) ([]domain.Vote, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []domain.Vote
	for _, v := range all {
		if v.ProposalID == proposalID {
			result = append(result, v)
		}
	}
	return result, nil
}

// List returns all votes ordered by cast_at ASC, proposal_id ASC, voter ASC.
func (s *VoteStore) List(_ context.Context) ([]domain.Vote, error) {
	var result []domain.Vote
	err := each(s.db.DB, bucketVotes, func(v domain.Vote) error {
		result = append(result, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Key order already sorts by proposal then voter.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CastAt < result[j].CastAt
	})
	return result, nil
}

// JobStore implements storage.JobStore on bbolt.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

var _ storage.JobStore = (*JobStore)(nil)

// UpsertBulk writes the latest state of the given jobs atomically.
func (s *JobStore) UpsertBulk(_ context.Context, jobs []domain.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		for _, j := range jobs {
			if j.ID == "" || !j.State.IsValid() {
				return fmt.Errorf("%w: job %q", storage.ErrInvalidInput, j.ID)
			}
			if err := put(b, []byte(j.ID), j); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves a job. Returns ErrNotFound if not exists.
func (s *JobStore) GetByID(_ context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	if err := get(s.db.DB, bucketJobs, []byte(id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetByOwner returns the owner's jobs ordered by seq ASC.
func (s *JobStore) GetByOwner(ctx context.Context, owner string) ([]domain.Job, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var result []domain.Job
	for _, j := range all {
		if j.Owner == owner {
			result = append(result, j)
		}
	}
	return result, nil
}

// List returns all jobs ordered by seq ASC.
func (s *JobStore) List(_ context.Context) ([]domain.Job, error) {
	var result []domain.Job
	err := each(s.db.DB, bucketJobs, func(j domain.Job) error {
		result = append(result, j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}
