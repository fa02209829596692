// Package memory provides in-memory election stores. They back unit tests and
// single-process deployments, and they define the reference semantics for the
// conditional operations the redis implementation mirrors.
package memory

import (
	"context"
	"sync"
	"time"

	"ballotgate/internal/election/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// VoterStore keeps voter records and the phone index behind one mutex.
type VoterStore struct {
	mu      sync.RWMutex
	voters  map[id.VoterID]models.Voter
	byPhone map[string]id.VoterID
}

func NewVoterStore() *VoterStore {
	return &VoterStore{
		voters:  make(map[id.VoterID]models.Voter),
		byPhone: make(map[string]id.VoterID),
	}
}

// Save seeds or replaces a voter record and its phone index entry. The admin
// CRUD surface owns this path in production.
func (s *VoterStore) Save(_ context.Context, voter models.Voter, phoneDigits string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voters[voter.ID] = voter
	if phoneDigits != "" {
		s.byPhone[phoneDigits] = voter.ID
	}
	return nil
}

func (s *VoterStore) Find(_ context.Context, voterID id.VoterID) (models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if voter, ok := s.voters[voterID]; ok {
		return voter, nil
	}
	return models.Voter{}, sentinel.ErrNotFound
}

func (s *VoterStore) FindIDByPhone(_ context.Context, phoneDigits string) (id.VoterID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if voterID, ok := s.byPhone[phoneDigits]; ok {
		return voterID, nil
	}
	return "", sentinel.ErrNotFound
}

// MarkVoted is the conditional has-voted transition. The mutex makes the
// check-and-set atomic; losers observe hasVoted already true.
func (s *VoterStore) MarkVoted(_ context.Context, voterID id.VoterID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	voter, ok := s.voters[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if voter.HasVoted {
		return sentinel.ErrAlreadyUsed
	}
	voter.HasVoted = true
	voter.VotedAt = &at
	s.voters[voterID] = voter
	return nil
}

// Reset clears the has-voted flag. Administrative action, out of scope for
// bearers, but the transition must stay re-armable.
func (s *VoterStore) Reset(_ context.Context, voterID id.VoterID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	voter, ok := s.voters[voterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	voter.HasVoted = false
	voter.VotedAt = nil
	s.voters[voterID] = voter
	return nil
}

// CategoryStore is a read-mostly category map.
type CategoryStore struct {
	mu         sync.RWMutex
	categories map[id.CategoryID]models.Category
}

func NewCategoryStore() *CategoryStore {
	return &CategoryStore{categories: make(map[id.CategoryID]models.Category)}
}

func (s *CategoryStore) Save(_ context.Context, category models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[category.ID] = category
	return nil
}

func (s *CategoryStore) Find(_ context.Context, categoryID id.CategoryID) (models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if category, ok := s.categories[categoryID]; ok {
		return category, nil
	}
	return models.Category{}, sentinel.ErrNotFound
}

// CandidateStore keeps candidate records with their tallies.
type CandidateStore struct {
	mu         sync.RWMutex
	candidates map[id.CandidateID]models.Candidate
}

func NewCandidateStore() *CandidateStore {
	return &CandidateStore{candidates: make(map[id.CandidateID]models.Candidate)}
}

func (s *CandidateStore) Save(_ context.Context, candidate models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[candidate.ID] = candidate
	return nil
}

func (s *CandidateStore) Find(_ context.Context, candidateID id.CandidateID) (models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if candidate, ok := s.candidates[candidateID]; ok {
		return candidate, nil
	}
	return models.Candidate{}, sentinel.ErrNotFound
}

func (s *CandidateStore) ListActiveByCategory(_ context.Context, categoryID id.CategoryID) ([]models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Candidate
	for _, c := range s.candidates {
		if c.CategoryID == categoryID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CandidateStore) IncrementVotes(_ context.Context, candidateID id.CandidateID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidate, ok := s.candidates[candidateID]
	if !ok {
		return sentinel.ErrNotFound
	}
	candidate.Votes += delta
	s.candidates[candidateID] = candidate
	return nil
}

// VoteStore keeps terminal vote records keyed voterID_credentialID.
type VoteStore struct {
	mu    sync.RWMutex
	votes map[string]models.Vote
}

func NewVoteStore() *VoteStore {
	return &VoteStore{votes: make(map[string]models.Vote)}
}

func (s *VoteStore) Create(_ context.Context, vote models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vote.Key()
	if _, exists := s.votes[key]; exists {
		return sentinel.ErrConflict
	}
	s.votes[key] = vote
	return nil
}

func (s *VoteStore) Find(_ context.Context, key string) (models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if vote, ok := s.votes[key]; ok {
		return vote, nil
	}
	return models.Vote{}, sentinel.ErrNotFound
}

func (s *VoteStore) ListByCategory(_ context.Context, categoryID id.CategoryID) ([]models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Vote
	for _, v := range s.votes {
		if v.CategoryID == categoryID {
			out = append(out, v)
		}
	}
	return out, nil
}

// CountByVoter reports how many votes reference a voter. Test helper for the
// single-vote invariant.
func (s *VoteStore) CountByVoter(_ context.Context, voterID id.VoterID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, v := range s.votes {
		if v.VoterID == voterID {
			n++
		}
	}
	return n, nil
}
