// Package models defines the credential shapes a bearer can present. The set
// is closed: Credential is a sealed sum, so a new shape is a compile-time
// change to every switch that consumes it.
package models

import (
	"time"

	electionmodels "ballotgate/internal/election/models"
	id "ballotgate/pkg/domain"
)

// Kind tags a credential shape on the wire and in audit events.
type Kind string

const (
	KindLegacyToken    Kind = "legacy_token"
	KindSelfEncoded    Kind = "self_encoded"
	KindUnifiedLink    Kind = "unified"
	KindParticularLink Kind = "particular"
)

// TokenType distinguishes single-use from shared legacy tokens.
type TokenType string

const (
	TokenIndividual TokenType = "individual"
	TokenCollective TokenType = "collective"
)

// Credential is the sealed union of bearer-presentable shapes. Only types in
// this package implement it.
type Credential interface {
	CredentialID() id.CredentialID
	CredentialKind() Kind
	Expiry() time.Time
	sealed()
}

// LegacyToken is the store-resident token shape. Individual tokens carry
// exactly one voter and are consumed on use; collective tokens list many
// voters and track per-voter usage.
type LegacyToken struct {
	ID         id.CredentialID           `json:"id"`
	VoterIDs   []id.VoterID              `json:"voterIds"`
	CategoryID id.CategoryID             `json:"categoryId"`
	TokenType  TokenType                 `json:"tokenType"`
	CreatedAt  time.Time                 `json:"createdAt"`
	ExpiresAt  time.Time                 `json:"expiresAt"`
	Used       bool                      `json:"used"`
	UsedAt     *time.Time                `json:"usedAt,omitempty"`
	UsedBy     map[id.VoterID]time.Time  `json:"usedBy,omitempty"`
}

func (t LegacyToken) CredentialID() id.CredentialID { return t.ID }
func (t LegacyToken) CredentialKind() Kind          { return KindLegacyToken }
func (t LegacyToken) Expiry() time.Time             { return t.ExpiresAt }
func (LegacyToken) sealed()                         {}

// SelfEncodedPayload is the structure embedded in a self-encoded token string.
// It never touches the credential stores; the string itself is the record.
type SelfEncodedPayload struct {
	VoterID    id.VoterID    `json:"voterId"`
	Phone      string        `json:"phoneNumber"`
	CategoryID id.CategoryID `json:"categoryId"`
	TokenType  TokenType     `json:"tokenType"`
	IssuedAt   int64         `json:"timestamp"`
	ExpiresAt  int64         `json:"expiresAt"`
	Nonce      string        `json:"nonce"`
}

func (p SelfEncodedPayload) Expiry() time.Time { return time.UnixMilli(p.ExpiresAt) }

// Link is the sealed union of store-resident link shapes. Both live under the
// same store path and are distinguished by their persisted kind tag.
type Link interface {
	Credential
	LinkCategory() id.CategoryID
	linkSealed()
}

// UnifiedLink is shared by phone-verified voters. An empty SelectedVoterPhones
// admits any registered voter; a non-empty one restricts the link to those
// phones.
type UnifiedLink struct {
	ID                  id.CredentialID          `json:"id"`
	CategoryID          id.CategoryID            `json:"categoryId"`
	CategoryName        string                   `json:"categoryName"`
	SelectedVoterPhones []string                 `json:"selectedVoterPhones,omitempty"`
	CreatedAt           time.Time                `json:"createdAt"`
	ExpiresAt           time.Time                `json:"expiresAt"`
	Active              bool                     `json:"active"`
	UsedBy              map[id.VoterID]time.Time `json:"usedBy,omitempty"`
}

func (l UnifiedLink) CredentialID() id.CredentialID { return l.ID }
func (l UnifiedLink) CredentialKind() Kind          { return KindUnifiedLink }
func (l UnifiedLink) Expiry() time.Time             { return l.ExpiresAt }
func (l UnifiedLink) LinkCategory() id.CategoryID   { return l.CategoryID }
func (UnifiedLink) sealed()                         {}
func (UnifiedLink) linkSealed()                     {}

// VoterEntry binds one voter to their minted personal token on a particular
// link.
type VoterEntry struct {
	VoterID       id.VoterID `json:"id"`
	Username      string     `json:"username"`
	Phone         string     `json:"phoneNumber"`
	PersonalToken string     `json:"personalToken"`
}

// ParticularLink addresses a fixed set of voters, each proving identity with
// a byte-exact personal token.
type ParticularLink struct {
	ID           id.CredentialID          `json:"id"`
	CategoryID   id.CategoryID            `json:"categoryId"`
	CategoryName string                   `json:"categoryName"`
	VoterEntries []VoterEntry             `json:"voterData"`
	CreatedAt    time.Time                `json:"createdAt"`
	ExpiresAt    time.Time                `json:"expiresAt"`
	Active       bool                     `json:"active"`
	UsedBy       map[id.VoterID]time.Time `json:"usedBy,omitempty"`
}

func (l ParticularLink) CredentialID() id.CredentialID { return l.ID }
func (l ParticularLink) CredentialKind() Kind          { return KindParticularLink }
func (l ParticularLink) Expiry() time.Time             { return l.ExpiresAt }
func (l ParticularLink) LinkCategory() id.CategoryID   { return l.CategoryID }
func (ParticularLink) sealed()                         {}
func (ParticularLink) linkSealed()                     {}

// EntryFor finds the voter entry matching a personal token, byte-exact.
// No normalization: a single altered character is a miss (P4).
func (l ParticularLink) EntryFor(personalToken string) (VoterEntry, bool) {
	for _, e := range l.VoterEntries {
		if e.PersonalToken == personalToken {
			return e, true
		}
	}
	return VoterEntry{}, false
}

// AuthorizationContext is the single-use capability produced by the validator
// and consumed by the caster. It is read-only; nothing is marked consumed
// until a cast succeeds.
type AuthorizationContext struct {
	VoterID        id.VoterID
	CategoryID     id.CategoryID
	CategoryName   string
	CredentialID   id.CredentialID
	CredentialKind Kind
	Candidates     []electionmodels.Candidate
}

// Candidate returns the ballot entry for candidateID, if the context scoped
// it in.
func (a AuthorizationContext) Candidate(candidateID id.CandidateID) (electionmodels.Candidate, bool) {
	for _, c := range a.Candidates {
		if c.ID == candidateID {
			return c, true
		}
	}
	return electionmodels.Candidate{}, false
}
