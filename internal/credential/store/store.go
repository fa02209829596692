// Package store defines the ports for store-resident credentials: legacy
// tokens under tokens/{id} and voting links under voting-links/{id}. Both
// link shapes share one path and are distinguished by their persisted
// linkType tag, matching the layout the admin dashboard reads.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ballotgate/internal/credential/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// TokenStore persists legacy tokens.
type TokenStore interface {
	Save(ctx context.Context, token models.LegacyToken) error
	Find(ctx context.Context, credID id.CredentialID) (models.LegacyToken, error)

	// Consume flips used false→true for individual tokens as a single
	// conditional operation; sentinel.ErrAlreadyUsed if another cast won.
	Consume(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error

	// MarkUsedBy records a voter's use of a collective token without
	// consuming it for the other listed voters.
	MarkUsedBy(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error

	// Deactivate retires the token regardless of use state.
	Deactivate(ctx context.Context, credID id.CredentialID) error
}

// LinkStore persists unified and particular links.
type LinkStore interface {
	Save(ctx context.Context, link models.Link) error
	Find(ctx context.Context, credID id.CredentialID) (models.Link, error)
	MarkUsedBy(ctx context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error
	Deactivate(ctx context.Context, credID id.CredentialID) error
}

// EncodeLink serializes a link with its flat linkType discriminator.
func EncodeLink(link models.Link) ([]byte, error) {
	switch l := link.(type) {
	case models.UnifiedLink:
		return json.Marshal(struct {
			LinkType models.Kind `json:"linkType"`
			models.UnifiedLink
		}{models.KindUnifiedLink, l})
	case models.ParticularLink:
		return json.Marshal(struct {
			LinkType models.Kind `json:"linkType"`
			models.ParticularLink
		}{models.KindParticularLink, l})
	default:
		return nil, fmt.Errorf("unsupported link type %T", link)
	}
}

// DecodeLink deserializes a link record, branching on its linkType tag.
func DecodeLink(raw []byte) (models.Link, error) {
	var probe struct {
		LinkType models.Kind `json:"linkType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: link record: %v", sentinel.ErrCorrupt, err)
	}
	switch probe.LinkType {
	case models.KindUnifiedLink:
		var l models.UnifiedLink
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("%w: unified link: %v", sentinel.ErrCorrupt, err)
		}
		return l, nil
	case models.KindParticularLink:
		var l models.ParticularLink
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("%w: particular link: %v", sentinel.ErrCorrupt, err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: unknown link type %q", sentinel.ErrCorrupt, probe.LinkType)
	}
}
