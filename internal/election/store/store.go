// Package store defines the ports the voting core uses against the election
// subtree of the shared store. Implementations return pkg/platform/sentinel
// errors for factual states; services treat any other error as the store
// being unavailable.
package store

import (
	"context"
	"time"

	"ballotgate/internal/election/models"
	id "ballotgate/pkg/domain"
)

// VoterStore reads voter records and owns the one write this core performs on
// them: the conditional has-voted transition.
type VoterStore interface {
	Find(ctx context.Context, voterID id.VoterID) (models.Voter, error)

	// FindIDByPhone resolves a digits-only phone to a voter id via the
	// voters-by-phone index. Returns sentinel.ErrNotFound on a miss.
	FindIDByPhone(ctx context.Context, phoneDigits string) (id.VoterID, error)

	// MarkVoted flips hasVoted false→true and stamps votedAt as a single
	// conditional operation. Exactly one of N concurrent callers succeeds;
	// the rest get sentinel.ErrAlreadyUsed. An administrative reset that
	// clears hasVoted re-arms the transition.
	MarkVoted(ctx context.Context, voterID id.VoterID, at time.Time) error
}

// CategoryStore is read-only to the core.
type CategoryStore interface {
	Find(ctx context.Context, categoryID id.CategoryID) (models.Category, error)
}

// CandidateStore reads ballot contents and applies atomic tally increments.
type CandidateStore interface {
	Find(ctx context.Context, candidateID id.CandidateID) (models.Candidate, error)
	ListActiveByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Candidate, error)

	// IncrementVotes adds delta to the candidate's tally atomically. Never
	// read-modify-write: concurrent increments must all land.
	IncrementVotes(ctx context.Context, candidateID id.CandidateID, delta int64) error
}

// VoteStore persists terminal vote records.
type VoteStore interface {
	// Create writes the vote at its deterministic key with create-only
	// semantics; a duplicate key returns sentinel.ErrConflict.
	Create(ctx context.Context, vote models.Vote) error
	Find(ctx context.Context, key string) (models.Vote, error)

	// ListByCategory returns the vote records for one category, the
	// authoritative source tallies reconcile against.
	ListByCategory(ctx context.Context, categoryID id.CategoryID) ([]models.Vote, error)
}
