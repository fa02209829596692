// Package redis implements the election stores on a shared Redis instance.
// Keys mirror the hierarchical store layout (voters/{id}, votes/{key}, ...).
// The race-sensitive operations are store-native: the has-voted flip is a Lua
// compare-and-swap and tallies are INCRBY, so no session ever
// read-modify-writes shared state.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ballotgate/internal/election/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

const (
	voterKeyPrefix     = "voters/"
	phoneIndexPrefix   = "voters-by-phone/"
	categoryKeyPrefix  = "categories/"
	candidateKeyPrefix = "candidates/"
	candidateSetPrefix = "candidates-by-category/"
	tallySuffix        = "/votes"
	voteKeyPrefix      = "votes/"
	voteSetPrefix      = "votes-by-category/"
)

// markVotedScript flips hasVoted false→true in place. Exactly one concurrent
// caller sees the false state; everyone else gets 0 back.
var markVotedScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return -1
end
local voter = cjson.decode(raw)
if voter['hasVoted'] == true then
  return 0
end
voter['hasVoted'] = true
voter['votedAt'] = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(voter))
return 1
`)

// VoterStore reads voters and applies the conditional has-voted transition.
type VoterStore struct {
	client *redis.Client
}

func NewVoterStore(client *redis.Client) *VoterStore {
	return &VoterStore{client: client}
}

// Save writes the voter record and its phone index entry. Used by seeding and
// the out-of-scope CRUD surface.
func (s *VoterStore) Save(ctx context.Context, voter models.Voter, phoneDigits string) error {
	raw, err := json.Marshal(voter)
	if err != nil {
		return fmt.Errorf("marshal voter: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, voterKeyPrefix+string(voter.ID), raw, 0)
	if phoneDigits != "" {
		pipe.Set(ctx, phoneIndexPrefix+phoneDigits, string(voter.ID), 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *VoterStore) Find(ctx context.Context, voterID id.VoterID) (models.Voter, error) {
	raw, err := s.client.Get(ctx, voterKeyPrefix+string(voterID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Voter{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Voter{}, err
	}
	var voter models.Voter
	if err := json.Unmarshal(raw, &voter); err != nil {
		return models.Voter{}, fmt.Errorf("%w: voter %s: %v", sentinel.ErrCorrupt, voterID, err)
	}
	return voter, nil
}

func (s *VoterStore) FindIDByPhone(ctx context.Context, phoneDigits string) (id.VoterID, error) {
	val, err := s.client.Get(ctx, phoneIndexPrefix+phoneDigits).Result()
	if errors.Is(err, redis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return id.VoterID(val), nil
}

func (s *VoterStore) MarkVoted(ctx context.Context, voterID id.VoterID, at time.Time) error {
	res, err := markVotedScript.Run(ctx, s.client,
		[]string{voterKeyPrefix + string(voterID)},
		at.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case 0:
		return sentinel.ErrAlreadyUsed
	default:
		return sentinel.ErrNotFound
	}
}

// CategoryStore reads category records.
type CategoryStore struct {
	client *redis.Client
}

func NewCategoryStore(client *redis.Client) *CategoryStore {
	return &CategoryStore{client: client}
}

func (s *CategoryStore) Save(ctx context.Context, category models.Category) error {
	raw, err := json.Marshal(category)
	if err != nil {
		return fmt.Errorf("marshal category: %w", err)
	}
	return s.client.Set(ctx, categoryKeyPrefix+string(category.ID), raw, 0).Err()
}

func (s *CategoryStore) Find(ctx context.Context, categoryID id.CategoryID) (models.Category, error) {
	raw, err := s.client.Get(ctx, categoryKeyPrefix+string(categoryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Category{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Category{}, err
	}
	var category models.Category
	if err := json.Unmarshal(raw, &category); err != nil {
		return models.Category{}, fmt.Errorf("%w: category %s: %v", sentinel.ErrCorrupt, categoryID, err)
	}
	return category, nil
}

// CandidateStore keeps the candidate record and its tally in separate keys so
// the tally can be a native counter. Reads overlay the counter onto the
// record.
type CandidateStore struct {
	client *redis.Client
}

func NewCandidateStore(client *redis.Client) *CandidateStore {
	return &CandidateStore{client: client}
}

func (s *CandidateStore) Save(ctx context.Context, candidate models.Candidate) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	key := candidateKeyPrefix + string(candidate.ID)
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.SetNX(ctx, key+tallySuffix, candidate.Votes, 0)
	pipe.SAdd(ctx, candidateSetPrefix+string(candidate.CategoryID), string(candidate.ID))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *CandidateStore) Find(ctx context.Context, candidateID id.CandidateID) (models.Candidate, error) {
	key := candidateKeyPrefix + string(candidateID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Candidate{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Candidate{}, err
	}
	var candidate models.Candidate
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return models.Candidate{}, fmt.Errorf("%w: candidate %s: %v", sentinel.ErrCorrupt, candidateID, err)
	}
	votes, err := s.client.Get(ctx, key+tallySuffix).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.Candidate{}, err
	}
	candidate.Votes = votes
	return candidate, nil
}

func (s *CandidateStore) ListActiveByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Candidate, error) {
	ids, err := s.client.SMembers(ctx, candidateSetPrefix+string(categoryID)).Result()
	if err != nil {
		return nil, err
	}
	var out []models.Candidate
	for _, candidateID := range ids {
		candidate, err := s.Find(ctx, id.CandidateID(candidateID))
		if errors.Is(err, sentinel.ErrNotFound) {
			// Deleted candidate still in the index; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		if candidate.Active && candidate.CategoryID == categoryID {
			out = append(out, candidate)
		}
	}
	return out, nil
}

func (s *CandidateStore) IncrementVotes(ctx context.Context, candidateID id.CandidateID, delta int64) error {
	return s.client.IncrBy(ctx, candidateKeyPrefix+string(candidateID)+tallySuffix, delta).Err()
}

// VoteStore persists vote records with create-only semantics.
type VoteStore struct {
	client *redis.Client
}

func NewVoteStore(client *redis.Client) *VoteStore {
	return &VoteStore{client: client}
}

func (s *VoteStore) Create(ctx context.Context, vote models.Vote) error {
	raw, err := json.Marshal(vote)
	if err != nil {
		return fmt.Errorf("marshal vote: %w", err)
	}
	ok, err := s.client.SetNX(ctx, voteKeyPrefix+vote.Key(), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return sentinel.ErrConflict
	}
	// Index write is idempotent, so a crash between the two calls is repaired
	// by any retry of the same vote key.
	return s.client.SAdd(ctx, voteSetPrefix+string(vote.CategoryID), vote.Key()).Err()
}

func (s *VoteStore) Find(ctx context.Context, key string) (models.Vote, error) {
	raw, err := s.client.Get(ctx, voteKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Vote{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Vote{}, err
	}
	var vote models.Vote
	if err := json.Unmarshal(raw, &vote); err != nil {
		return models.Vote{}, fmt.Errorf("%w: vote %s: %v", sentinel.ErrCorrupt, key, err)
	}
	return vote, nil
}

func (s *VoteStore) ListByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Vote, error) {
	keys, err := s.client.SMembers(ctx, voteSetPrefix+string(categoryID)).Result()
	if err != nil {
		return nil, err
	}
	var out []models.Vote
	for _, key := range keys {
		vote, err := s.Find(ctx, key)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, vote)
	}
	return out, nil
}
