// Package memory provides in-memory credential stores for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"ballotgate/internal/credential/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// TokenStore keeps legacy tokens behind a mutex.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[id.CredentialID]models.LegacyToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[id.CredentialID]models.LegacyToken)}
}

func (s *TokenStore) Save(_ context.Context, token models.LegacyToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.ID] = token
	return nil
}

func (s *TokenStore) Find(_ context.Context, credID id.CredentialID) (models.LegacyToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if token, ok := s.tokens[credID]; ok {
		return token, nil
	}
	return models.LegacyToken{}, sentinel.ErrNotFound
}

func (s *TokenStore) Consume(_ context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if token.Used {
		return sentinel.ErrAlreadyUsed
	}
	token.Used = true
	token.UsedAt = &at
	if token.UsedBy == nil {
		token.UsedBy = make(map[id.VoterID]time.Time)
	}
	token.UsedBy[voterID] = at
	s.tokens[credID] = token
	return nil
}

func (s *TokenStore) MarkUsedBy(_ context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if token.UsedBy == nil {
		token.UsedBy = make(map[id.VoterID]time.Time)
	}
	token.UsedBy[voterID] = at
	s.tokens[credID] = token
	return nil
}

func (s *TokenStore) Deactivate(_ context.Context, credID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	token.Used = true
	s.tokens[credID] = token
	return nil
}

// LinkStore keeps voting links behind a mutex.
type LinkStore struct {
	mu    sync.RWMutex
	links map[id.CredentialID]models.Link
}

func NewLinkStore() *LinkStore {
	return &LinkStore{links: make(map[id.CredentialID]models.Link)}
}

func (s *LinkStore) Save(_ context.Context, link models.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.CredentialID()] = link
	return nil
}

func (s *LinkStore) Find(_ context.Context, credID id.CredentialID) (models.Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if link, ok := s.links[credID]; ok {
		return link, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *LinkStore) MarkUsedBy(_ context.Context, credID id.CredentialID, voterID id.VoterID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	switch l := link.(type) {
	case models.UnifiedLink:
		if l.UsedBy == nil {
			l.UsedBy = make(map[id.VoterID]time.Time)
		}
		l.UsedBy[voterID] = at
		s.links[credID] = l
	case models.ParticularLink:
		if l.UsedBy == nil {
			l.UsedBy = make(map[id.VoterID]time.Time)
		}
		l.UsedBy[voterID] = at
		s.links[credID] = l
	}
	return nil
}

func (s *LinkStore) Deactivate(_ context.Context, credID id.CredentialID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[credID]
	if !ok {
		return sentinel.ErrNotFound
	}
	switch l := link.(type) {
	case models.UnifiedLink:
		l.Active = false
		s.links[credID] = l
	case models.ParticularLink:
		l.Active = false
		s.links[credID] = l
	}
	return nil
}
