// Package audit captures an append-only trail of credential and voting
// activity. Emission is best-effort: an audit failure is logged, never
// surfaced to the bearer session.
package audit

import (
	"time"

	id "ballotgate/pkg/domain"
)

// Action identifies what happened.
type Action string

const (
	ActionCredentialIssued      Action = "credential_issued"
	ActionCredentialDeactivated Action = "credential_deactivated"
	ActionValidationRejected    Action = "validation_rejected"
	ActionVoteCast              Action = "vote_cast"
)

// Event is one audit trail entry. VoterID is present only where the flow has
// already resolved an identity; rejected validations may carry none.
type Event struct {
	ID             string          `json:"id"`
	Action         Action          `json:"action"`
	VoterID        id.VoterID      `json:"voterId,omitempty"`
	CredentialID   id.CredentialID `json:"credentialId,omitempty"`
	CredentialKind string          `json:"credentialKind,omitempty"`
	CategoryID     id.CategoryID   `json:"categoryId,omitempty"`
	CandidateID    id.CandidateID  `json:"candidateId,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	OperatorID     string          `json:"operatorId,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}
