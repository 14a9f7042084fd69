package memory

import (
	"context"
	"sort"
	"sync"

	"stakegate/internal/domain"
	"stakegate/internal/storage"
)

// VoteStore is an in-memory implementation of storage.VoteStore.
type VoteStore struct {
	mu   sync.RWMutex
	data map[string]domain.Vote // keyed by proposal_id|voter
}

// NewVoteStore creates a new in-memory vote store.
func NewVoteStore() *VoteStore {
	return &VoteStore{
		data: make(map[string]domain.Vote),
	}
}

// voteKey generates a unique key for a vote.
func voteKey(proposalID, voter string) string {
	return proposalID + "|" + voter
}

// InsertBulk appends votes atomically. Fails entire batch on duplicate (proposal_id, voter).
func (s *VoteStore) InsertBulk(_ context.Context, votes []domain.Vote) error {
	if len(votes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(votes))
	for _, v := range votes {
		if v.ProposalID == "" || v.Voter == "" {
			return storage.ErrInvalidInput
		}
		key := voteKey(v.ProposalID, v.Voter)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[key]; exists {
			return storage.ErrDuplicateKey
		}
		batch[key] = struct{}{}
	}

	for _, v := range votes {
		s.data[voteKey(v.ProposalID, v.Voter)] = v
	}
	return nil
}

func (s *VoteStore) sorted(keep func(domain.Vote) bool) []domain.Vote {
	var result []domain.Vote
	for _, v := range s.data {
		if keep(v) {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CastAt != result[j].CastAt {
			return result[i].CastAt < result[j].CastAt
		}
		if result[i].ProposalID != result[j].ProposalID {
			return result[i].ProposalID < result[j].ProposalID
		}
		return result[i].Voter < result[j].Voter
	})
	return result
}

// GetByProposal returns the votes on a proposal ordered by cast_at ASC, voter ASC.
func (s *VoteStore) GetByProposal(_ context.Context, proposalID string) ([]domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(v domain.Vote) bool { return v.ProposalID == proposalID }), nil
}

// List returns all votes ordered by cast_at ASC, proposal_id ASC, voter ASC.
func (s *VoteStore) List(_ context.Context) ([]domain.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(func(domain.Vote) bool { return true }), nil
}

// Compile-time interface check.
var _ storage.VoteStore = (*VoteStore)(nil)
