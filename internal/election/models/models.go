// Package models holds the election entities the voting core reads and
// transitions. Category and candidate records are owned by the admin CRUD
// surface; this core only ever mutates Voter.HasVoted/VotedAt, candidate
// tallies, and vote records.
package models

import (
	"time"

	id "ballotgate/pkg/domain"
)

// Voter is the registered voter record. HasVoted is monotonic false→true for
// the voter's lifetime; only an administrative reset (out of band) clears it.
type Voter struct {
	ID       id.VoterID `json:"id"`
	Username string     `json:"username"`
	Phone    string     `json:"phoneNumber"`
	Active   bool       `json:"active"`
	HasVoted bool       `json:"hasVoted"`
	VotedAt  *time.Time `json:"votedAt,omitempty"`
}

// Category is read-only to the core.
type Category struct {
	ID     id.CategoryID `json:"id"`
	Name   string        `json:"name"`
	Active bool          `json:"active"`
}

// Candidate tallies live on the record for real-time dashboards; the tally is
// eventually consistent with the vote records (I3), never authoritative.
type Candidate struct {
	ID         id.CandidateID `json:"id"`
	Name       string         `json:"name"`
	CategoryID id.CategoryID  `json:"categoryId"`
	Active     bool           `json:"active"`
	Votes      int64          `json:"votes"`
}

// Vote is the terminal record of a cast ballot, keyed voterID_credentialID so
// a retried write lands on the same path.
type Vote struct {
	VoterID        id.VoterID      `json:"voterId"`
	CandidateID    id.CandidateID  `json:"candidateId"`
	CandidateName  string          `json:"candidateName"`
	CategoryID     id.CategoryID   `json:"categoryId"`
	CategoryName   string          `json:"categoryName"`
	CredentialID   id.CredentialID `json:"credentialId"`
	CredentialKind string          `json:"credentialKind"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Key returns the deterministic store key for this vote.
func (v Vote) Key() string {
	return id.VoteKey(v.VoterID, v.CredentialID)
}
