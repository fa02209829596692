// Package issuer mints credentials: shared and targeted voting links, legacy
// tokens, and self-encoded token strings. Issuance is an operator action, not
// a bearer one.
package issuer

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ballotgate/internal/audit"
	"ballotgate/internal/credential/models"
	credstore "ballotgate/internal/credential/store"
	"ballotgate/internal/credential/token"
	electionmodels "ballotgate/internal/election/models"
	electionstore "ballotgate/internal/election/store"
	"ballotgate/internal/phone"
	"ballotgate/internal/platform/metrics"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
)

// TTL bounds. Links outlive tokens because they are distributed out of band
// and shared; tokens are handed to one person for near-term use.
const (
	minTTL      = 10 * time.Second
	maxLinkTTL  = 30 * 24 * time.Hour
	maxTokenTTL = 7 * 24 * time.Hour
)

type Service struct {
	tokens     credstore.TokenStore
	links      credstore.LinkStore
	voters     electionstore.VoterStore
	categories electionstore.CategoryStore
	codec      *token.Codec
	matcher    *phone.Matcher

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	now            func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(
	tokens credstore.TokenStore,
	links credstore.LinkStore,
	voters electionstore.VoterStore,
	categories electionstore.CategoryStore,
	codec *token.Codec,
	matcher *phone.Matcher,
	opts ...Option,
) (*Service, error) {
	if tokens == nil || links == nil {
		return nil, fmt.Errorf("credential stores are required")
	}
	if voters == nil || categories == nil {
		return nil, fmt.Errorf("election stores are required")
	}
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if matcher == nil {
		matcher = phone.NewMatcher("", "")
	}

	svc := &Service{
		tokens:     tokens,
		links:      links,
		voters:     voters,
		categories: categories,
		codec:      codec,
		matcher:    matcher,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// IssueUnifiedLink creates a shared link for a category. A non-empty voter
// subset restricts the link to those voters' registered phones; unknown voter
// ids in the subset are skipped.
func (s *Service) IssueUnifiedLink(ctx context.Context, categoryID id.CategoryID, ttl time.Duration, voterSubset []id.VoterID) (models.UnifiedLink, error) {
	if err := checkTTL(ttl, maxLinkTTL); err != nil {
		return models.UnifiedLink{}, err
	}
	category, err := s.findCategory(ctx, categoryID)
	if err != nil {
		return models.UnifiedLink{}, err
	}

	var phones []string
	if len(voterSubset) > 0 {
		for _, voterID := range voterSubset {
			voter, err := s.findVoter(ctx, voterID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeVoterNotFound) {
					continue
				}
				return models.UnifiedLink{}, err
			}
			phones = append(phones, voter.Phone)
		}
		if len(phones) == 0 {
			return models.UnifiedLink{}, dErrors.New(dErrors.CodeVoterNotFound, "no listed voter could be resolved")
		}
	}

	now := s.now()
	link := models.UnifiedLink{
		ID:                  id.CredentialID(uuid.NewString()),
		CategoryID:          category.ID,
		CategoryName:        category.Name,
		SelectedVoterPhones: phones,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
		Active:              true,
	}
	if err := s.links.Save(ctx, link); err != nil {
		return models.UnifiedLink{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to save voting link")
	}

	s.recordIssued(ctx, link.ID, models.KindUnifiedLink, category.ID)
	return link, nil
}

// IssueParticularLink creates one link addressing a fixed voter set, minting
// a random personal token per resolvable voter. Unknown voter ids are
// skipped; at least one must resolve.
func (s *Service) IssueParticularLink(ctx context.Context, voterIDs []id.VoterID, categoryID id.CategoryID, ttl time.Duration) (models.ParticularLink, error) {
	if err := checkTTL(ttl, maxLinkTTL); err != nil {
		return models.ParticularLink{}, err
	}
	if len(voterIDs) == 0 {
		return models.ParticularLink{}, dErrors.New(dErrors.CodeBadRequest, "at least one voter id is required")
	}
	category, err := s.findCategory(ctx, categoryID)
	if err != nil {
		return models.ParticularLink{}, err
	}

	var entries []models.VoterEntry
	for _, voterID := range voterIDs {
		voter, err := s.findVoter(ctx, voterID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeVoterNotFound) {
				continue
			}
			return models.ParticularLink{}, err
		}
		personal, err := newPersonalToken()
		if err != nil {
			return models.ParticularLink{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint personal token")
		}
		entries = append(entries, models.VoterEntry{
			VoterID:       voter.ID,
			Username:      voter.Username,
			Phone:         voter.Phone,
			PersonalToken: personal,
		})
	}
	if len(entries) == 0 {
		return models.ParticularLink{}, dErrors.New(dErrors.CodeVoterNotFound, "no listed voter could be resolved")
	}

	now := s.now()
	link := models.ParticularLink{
		ID:           id.CredentialID(uuid.NewString()),
		CategoryID:   category.ID,
		CategoryName: category.Name,
		VoterEntries: entries,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		Active:       true,
	}
	if err := s.links.Save(ctx, link); err != nil {
		return models.ParticularLink{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to save voting link")
	}

	s.recordIssued(ctx, link.ID, models.KindParticularLink, category.ID)
	return link, nil
}

// IssueLegacyToken creates a store-resident token. Individual tokens carry
// exactly one voter; collective tokens at least one.
func (s *Service) IssueLegacyToken(ctx context.Context, voterIDs []id.VoterID, categoryID id.CategoryID, tokenType models.TokenType, ttl time.Duration) (models.LegacyToken, error) {
	if err := checkTTL(ttl, maxTokenTTL); err != nil {
		return models.LegacyToken{}, err
	}
	switch tokenType {
	case models.TokenIndividual:
		if len(voterIDs) != 1 {
			return models.LegacyToken{}, dErrors.New(dErrors.CodeBadRequest, "individual token requires exactly one voter")
		}
	case models.TokenCollective:
		if len(voterIDs) == 0 {
			return models.LegacyToken{}, dErrors.New(dErrors.CodeBadRequest, "collective token requires at least one voter")
		}
	default:
		return models.LegacyToken{}, dErrors.Newf(dErrors.CodeBadRequest, "unknown token type %q", tokenType)
	}

	category, err := s.findCategory(ctx, categoryID)
	if err != nil {
		return models.LegacyToken{}, err
	}
	for _, voterID := range voterIDs {
		if _, err := s.findVoter(ctx, voterID); err != nil {
			return models.LegacyToken{}, err
		}
	}

	now := s.now()
	tok := models.LegacyToken{
		ID:         id.CredentialID(uuid.NewString()),
		VoterIDs:   voterIDs,
		CategoryID: category.ID,
		TokenType:  tokenType,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.tokens.Save(ctx, tok); err != nil {
		return models.LegacyToken{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to save token")
	}

	s.recordIssued(ctx, tok.ID, models.KindLegacyToken, category.ID)
	return tok, nil
}

// IssueSelfEncodedToken encodes a voter's identity, phone, and category into
// an opaque string. Nothing is persisted; expiry and identity travel in the
// string itself.
func (s *Service) IssueSelfEncodedToken(ctx context.Context, voterID id.VoterID, categoryID id.CategoryID, ttl time.Duration) (string, error) {
	if err := checkTTL(ttl, maxTokenTTL); err != nil {
		return "", err
	}
	category, err := s.findCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	voter, err := s.findVoter(ctx, voterID)
	if err != nil {
		return "", err
	}

	now := s.now()
	encoded, err := s.codec.Encode(models.SelfEncodedPayload{
		VoterID:    voter.ID,
		Phone:      voter.Phone,
		CategoryID: category.ID,
		TokenType:  models.TokenIndividual,
		IssuedAt:   now.UnixMilli(),
		ExpiresAt:  now.Add(ttl).UnixMilli(),
	})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode token")
	}

	s.recordIssued(ctx, "", models.KindSelfEncoded, category.ID)
	return encoded, nil
}

// DeactivateLink retires a voting link.
func (s *Service) DeactivateLink(ctx context.Context, credID id.CredentialID) error {
	if err := s.links.Deactivate(ctx, credID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "voting link not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to deactivate voting link")
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:       audit.ActionCredentialDeactivated,
		CredentialID: credID,
	})
	return nil
}

// DeactivateToken retires a legacy token by marking it used.
func (s *Service) DeactivateToken(ctx context.Context, credID id.CredentialID) error {
	if err := s.tokens.Deactivate(ctx, credID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to deactivate token")
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:       audit.ActionCredentialDeactivated,
		CredentialID: credID,
	})
	return nil
}

func (s *Service) findCategory(ctx context.Context, categoryID id.CategoryID) (electionmodels.Category, error) {
	category, err := s.categories.Find(ctx, categoryID)
	switch {
	case err == nil:
		return category, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return electionmodels.Category{}, dErrors.New(dErrors.CodeCategoryNotFound, "category not found")
	default:
		return electionmodels.Category{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "category lookup failed")
	}
}

func (s *Service) findVoter(ctx context.Context, voterID id.VoterID) (electionmodels.Voter, error) {
	voter, err := s.voters.Find(ctx, voterID)
	switch {
	case err == nil:
		return voter, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return electionmodels.Voter{}, dErrors.Newf(dErrors.CodeVoterNotFound, "voter %s not found", voterID)
	default:
		return electionmodels.Voter{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "voter lookup failed")
	}
}

func (s *Service) recordIssued(ctx context.Context, credID id.CredentialID, kind models.Kind, categoryID id.CategoryID) {
	if s.metrics != nil {
		s.metrics.CredentialsIssued.WithLabelValues(string(kind)).Inc()
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:         audit.ActionCredentialIssued,
		CredentialID:   credID,
		CredentialKind: string(kind),
		CategoryID:     categoryID,
	})
}

func checkTTL(ttl, max time.Duration) error {
	if ttl < minTTL {
		return dErrors.Newf(dErrors.CodeBadRequest, "ttl must be at least %s", minTTL)
	}
	if ttl > max {
		return dErrors.Newf(dErrors.CodeBadRequest, "ttl must not exceed %s", max)
	}
	return nil
}

// newPersonalToken mints an unguessable per-voter secret. Lowercase base32
// keeps it copy-paste safe in a URL.
func newPersonalToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf[:])), nil
}
