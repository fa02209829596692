// Package domain holds the typed identifiers shared across modules. IDs are
// path segments in a hierarchical store, so the type carries the path-safety
// invariant: non-empty, no separators, no whitespace.
package domain

import (
	"strings"

	dErrors "ballotgate/pkg/domain-errors"
)

type (
	VoterID      string
	CategoryID   string
	CandidateID  string
	CredentialID string
)

// pathUnsafe lists characters that may not appear in a store path segment.
const pathUnsafe = "/.#$[] \t\n\r"

func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, pathUnsafe)
}

// ParseVoterID validates a raw string as a voter identifier.
func ParseVoterID(s string) (VoterID, error) {
	if !validSegment(s) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid voter id")
	}
	return VoterID(s), nil
}

// ParseCategoryID validates a raw string as a category identifier.
func ParseCategoryID(s string) (CategoryID, error) {
	if !validSegment(s) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid category id")
	}
	return CategoryID(s), nil
}

// ParseCandidateID validates a raw string as a candidate identifier.
func ParseCandidateID(s string) (CandidateID, error) {
	if !validSegment(s) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid candidate id")
	}
	return CandidateID(s), nil
}

func (v VoterID) IsZero() bool      { return v == "" }
func (c CategoryID) IsZero() bool   { return c == "" }
func (c CandidateID) IsZero() bool  { return c == "" }
func (c CredentialID) IsZero() bool { return c == "" }

// VoteKey is the deterministic vote record key: a retried write for the same
// voter and credential lands on the same path.
func VoteKey(voter VoterID, credential CredentialID) string {
	return string(voter) + "_" + string(credential)
}
