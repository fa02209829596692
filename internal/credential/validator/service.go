// Package validator turns a presented credential into an authorization
// context or a coded rejection. Validation is read-only: nothing is consumed
// or marked used here, so a bearer can validate, abandon, and return later.
package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

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

// Request is one validation attempt. Credential carries whatever the bearer
// presented: a self-encoded token string, a legacy token id, or a link id.
type Request struct {
	Credential    string
	Phone         string
	PersonalToken string
}

type Service struct {
	codec      *token.Codec
	tokens     credstore.TokenStore
	links      credstore.LinkStore
	voters     electionstore.VoterStore
	categories electionstore.CategoryStore
	candidates electionstore.CandidateStore
	matcher    *phone.Matcher

	logger         *slog.Logger
	auditPublisher audit.Publisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
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

// WithClock overrides the time source for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(
	codec *token.Codec,
	tokens credstore.TokenStore,
	links credstore.LinkStore,
	voters electionstore.VoterStore,
	categories electionstore.CategoryStore,
	candidates electionstore.CandidateStore,
	matcher *phone.Matcher,
	opts ...Option,
) (*Service, error) {
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	if tokens == nil || links == nil {
		return nil, fmt.Errorf("credential stores are required")
	}
	if voters == nil || categories == nil || candidates == nil {
		return nil, fmt.Errorf("election stores are required")
	}
	if matcher == nil {
		matcher = phone.NewMatcher("", "")
	}

	svc := &Service{
		codec:      codec,
		tokens:     tokens,
		links:      links,
		voters:     voters,
		categories: categories,
		candidates: candidates,
		matcher:    matcher,
		tracer:     otel.Tracer("ballotgate/validator"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Validate resolves the presented credential, runs the checks for its shape,
// and returns the authorization context a successful cast will consume.
//
// Dispatch order is fixed: self-encoded decode, then the token store, then
// the link store. A string that decodes as a self-encoded individual token is
// handled entirely from its payload; anything else is treated as a store id.
func (s *Service) Validate(ctx context.Context, req Request) (models.AuthorizationContext, error) {
	ctx, span := s.tracer.Start(ctx, "validator.Validate")
	defer span.End()

	if req.Credential == "" {
		return s.reject(ctx, span, id.CredentialID(""), "",
			dErrors.New(dErrors.CodeBadRequest, "credential is required"))
	}

	payload, err := s.codec.Decode(req.Credential)
	switch {
	case err == nil && payload.TokenType == models.TokenIndividual:
		return s.validateSelfEncoded(ctx, span, payload)
	case errors.Is(err, token.ErrBadSignature):
		return s.reject(ctx, span, id.CredentialID(""), models.KindSelfEncoded,
			dErrors.New(dErrors.CodeMalformedCredential, "token signature is invalid"))
	}

	credID := id.CredentialID(req.Credential)

	tok, err := s.tokens.Find(ctx, credID)
	switch {
	case err == nil:
		return s.validateLegacyToken(ctx, span, tok, req)
	case !errors.Is(err, sentinel.ErrNotFound):
		return s.storeFailure(ctx, span, credID, err)
	}

	link, err := s.links.Find(ctx, credID)
	switch {
	case err == nil:
		return s.validateLink(ctx, span, link, req)
	case errors.Is(err, sentinel.ErrNotFound):
		return s.reject(ctx, span, credID, "",
			dErrors.New(dErrors.CodeNotFound, "credential not found"))
	default:
		return s.storeFailure(ctx, span, credID, err)
	}
}

func (s *Service) validateSelfEncoded(ctx context.Context, span trace.Span, payload models.SelfEncodedPayload) (models.AuthorizationContext, error) {
	credID := id.CredentialID(payload.Nonce)
	kind := models.KindSelfEncoded

	if s.now().After(payload.Expiry()) {
		return s.reject(ctx, span, credID, kind,
			dErrors.New(dErrors.CodeExpired, "token has expired"))
	}

	voter, err := s.findVoter(ctx, payload.VoterID)
	if err != nil {
		return s.reject(ctx, span, credID, kind, err)
	}
	if !s.matcher.Matches(payload.Phone, voter.Phone) {
		return s.reject(ctx, span, credID, kind,
			dErrors.New(dErrors.CodeNotAuthorizedForCredential, "token phone does not match voter record"))
	}
	if err := checkVoter(voter); err != nil {
		return s.reject(ctx, span, credID, kind, err)
	}

	return s.buildContext(ctx, span, voter.ID, payload.CategoryID, credID, kind)
}

func (s *Service) validateLegacyToken(ctx context.Context, span trace.Span, tok models.LegacyToken, req Request) (models.AuthorizationContext, error) {
	kind := models.KindLegacyToken

	// Used covers both a consumed individual token and an operator
	// deactivation, for every token type. Checked before the type branch so a
	// retired collective token is dead for all its voters at once.
	if tok.Used {
		return s.reject(ctx, span, tok.ID, kind,
			dErrors.New(dErrors.CodeDeactivated, "token has already been used or deactivated"))
	}
	if s.now().After(tok.ExpiresAt) {
		return s.reject(ctx, span, tok.ID, kind,
			dErrors.New(dErrors.CodeExpired, "token has expired"))
	}

	var voterID id.VoterID
	switch tok.TokenType {
	case models.TokenIndividual:
		if len(tok.VoterIDs) == 0 {
			return s.reject(ctx, span, tok.ID, kind,
				dErrors.New(dErrors.CodeInternal, "individual token has no voter"))
		}
		voterID = tok.VoterIDs[0]
	case models.TokenCollective:
		if req.Phone == "" {
			return s.reject(ctx, span, tok.ID, kind,
				dErrors.New(dErrors.CodeBadRequest, "phone number is required for this token"))
		}
		resolved, err := s.resolveVoterByPhone(ctx, req.Phone)
		if err != nil {
			return s.reject(ctx, span, tok.ID, kind, err)
		}
		if !containsVoter(tok.VoterIDs, resolved) {
			return s.reject(ctx, span, tok.ID, kind,
				dErrors.New(dErrors.CodeNotAuthorizedForCredential, "voter is not listed on this token"))
		}
		if _, used := tok.UsedBy[resolved]; used {
			return s.reject(ctx, span, tok.ID, kind,
				dErrors.New(dErrors.CodeAlreadyVoted, "token has already been used by this voter"))
		}
		voterID = resolved
	default:
		return s.reject(ctx, span, tok.ID, kind,
			dErrors.Newf(dErrors.CodeInternal, "unknown token type %q", tok.TokenType))
	}

	voter, err := s.findVoter(ctx, voterID)
	if err != nil {
		return s.reject(ctx, span, tok.ID, kind, err)
	}
	if err := checkVoter(voter); err != nil {
		return s.reject(ctx, span, tok.ID, kind, err)
	}

	return s.buildContext(ctx, span, voter.ID, tok.CategoryID, tok.ID, kind)
}

func (s *Service) validateLink(ctx context.Context, span trace.Span, link models.Link, req Request) (models.AuthorizationContext, error) {
	switch l := link.(type) {
	case models.UnifiedLink:
		return s.validateUnified(ctx, span, l, req)
	case models.ParticularLink:
		return s.validateParticular(ctx, span, l, req)
	default:
		return s.reject(ctx, span, link.CredentialID(), link.CredentialKind(),
			dErrors.Newf(dErrors.CodeInternal, "unknown link type %T", link))
	}
}

func (s *Service) validateUnified(ctx context.Context, span trace.Span, link models.UnifiedLink, req Request) (models.AuthorizationContext, error) {
	kind := models.KindUnifiedLink

	if !link.Active {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeDeactivated, "voting link has been deactivated"))
	}
	if s.now().After(link.ExpiresAt) {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeExpired, "voting link has expired"))
	}
	if req.Phone == "" {
		if req.PersonalToken != "" {
			return s.reject(ctx, span, link.ID, kind,
				dErrors.New(dErrors.CodeWrongCredentialKind, "this link identifies voters by phone number, not personal token"))
		}
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeBadRequest, "phone number is required"))
	}

	voterID, err := s.resolveVoterByPhone(ctx, req.Phone)
	if err != nil {
		return s.reject(ctx, span, link.ID, kind, err)
	}
	if len(link.SelectedVoterPhones) > 0 && !s.matcher.MatchesAny(req.Phone, link.SelectedVoterPhones) {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeNotAuthorizedForCredential, "voter is not selected for this link"))
	}
	if _, used := link.UsedBy[voterID]; used {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeAlreadyVoted, "voter has already used this link"))
	}

	voter, err := s.findVoter(ctx, voterID)
	if err != nil {
		return s.reject(ctx, span, link.ID, kind, err)
	}
	if err := checkVoter(voter); err != nil {
		return s.reject(ctx, span, link.ID, kind, err)
	}

	return s.buildContext(ctx, span, voter.ID, link.CategoryID, link.ID, kind)
}

func (s *Service) validateParticular(ctx context.Context, span trace.Span, link models.ParticularLink, req Request) (models.AuthorizationContext, error) {
	kind := models.KindParticularLink

	if !link.Active {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeDeactivated, "voting link has been deactivated"))
	}
	if s.now().After(link.ExpiresAt) {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeExpired, "voting link has expired"))
	}
	if req.PersonalToken == "" {
		if req.Phone != "" {
			return s.reject(ctx, span, link.ID, kind,
				dErrors.New(dErrors.CodeWrongCredentialKind, "this link identifies voters by personal token, not phone number"))
		}
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeBadRequest, "personal token is required"))
	}

	entry, ok := link.EntryFor(req.PersonalToken)
	if !ok {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeNotAuthorizedForCredential, "personal token does not match any voter on this link"))
	}
	if _, used := link.UsedBy[entry.VoterID]; used {
		return s.reject(ctx, span, link.ID, kind,
			dErrors.New(dErrors.CodeAlreadyVoted, "voter has already used this link"))
	}

	voter, err := s.findVoter(ctx, entry.VoterID)
	if err != nil {
		return s.reject(ctx, span, link.ID, kind, err)
	}
	if err := checkVoter(voter); err != nil {
		return s.reject(ctx, span, link.ID, kind, err)
	}

	return s.buildContext(ctx, span, voter.ID, link.CategoryID, link.ID, kind)
}

// resolveVoterByPhone looks each digit variant of raw up in the phone index.
func (s *Service) resolveVoterByPhone(ctx context.Context, raw string) (id.VoterID, error) {
	for _, variant := range s.matcher.Expand(raw) {
		digits := phone.Digits(variant)
		if digits == "" {
			continue
		}
		voterID, err := s.voters.FindIDByPhone(ctx, digits)
		switch {
		case err == nil:
			return voterID, nil
		case errors.Is(err, sentinel.ErrNotFound):
			continue
		default:
			return "", dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "phone index lookup failed")
		}
	}
	return "", dErrors.New(dErrors.CodeVoterNotFound, "no registered voter matches this phone number")
}

func (s *Service) findVoter(ctx context.Context, voterID id.VoterID) (electionmodels.Voter, error) {
	voter, err := s.voters.Find(ctx, voterID)
	switch {
	case err == nil:
		return voter, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return electionmodels.Voter{}, dErrors.New(dErrors.CodeVoterNotFound, "voter not found")
	default:
		return electionmodels.Voter{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "voter lookup failed")
	}
}

func checkVoter(voter electionmodels.Voter) error {
	if !voter.Active {
		return dErrors.New(dErrors.CodeVoterSuspended, "voter account is not active")
	}
	if voter.HasVoted {
		return dErrors.New(dErrors.CodeAlreadyVoted, "voter has already voted")
	}
	return nil
}

func (s *Service) buildContext(ctx context.Context, span trace.Span, voterID id.VoterID, categoryID id.CategoryID, credID id.CredentialID, kind models.Kind) (models.AuthorizationContext, error) {
	category, err := s.categories.Find(ctx, categoryID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return s.reject(ctx, span, credID, kind,
			dErrors.New(dErrors.CodeCategoryNotFound, "category not found"))
	case err != nil:
		return s.storeFailure(ctx, span, credID, err)
	}
	if !category.Active {
		return s.reject(ctx, span, credID, kind,
			dErrors.New(dErrors.CodeCategoryNotFound, "category is not active"))
	}

	candidates, err := s.candidates.ListActiveByCategory(ctx, categoryID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return s.storeFailure(ctx, span, credID, err)
	}

	span.SetAttributes(
		attribute.String("credential.kind", string(kind)),
		attribute.Int("ballot.candidates", len(candidates)),
	)

	return models.AuthorizationContext{
		VoterID:        voterID,
		CategoryID:     category.ID,
		CategoryName:   category.Name,
		CredentialID:   credID,
		CredentialKind: kind,
		Candidates:     candidates,
	}, nil
}

func (s *Service) reject(ctx context.Context, span trace.Span, credID id.CredentialID, kind models.Kind, err error) (models.AuthorizationContext, error) {
	code := dErrors.CodeOf(err)
	span.SetAttributes(attribute.String("reject.reason", string(code)))
	if s.metrics != nil {
		s.metrics.ValidationFailures.WithLabelValues(string(code)).Inc()
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:         audit.ActionValidationRejected,
		CredentialID:   credID,
		CredentialKind: string(kind),
		Reason:         string(code),
	})
	return models.AuthorizationContext{}, err
}

func (s *Service) storeFailure(ctx context.Context, span trace.Span, credID id.CredentialID, err error) (models.AuthorizationContext, error) {
	if errors.Is(err, sentinel.ErrCorrupt) {
		return s.reject(ctx, span, credID, "",
			dErrors.Wrap(err, dErrors.CodeInternal, "credential record is corrupt"))
	}
	return s.reject(ctx, span, credID, "",
		dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "credential store unavailable"))
}

func containsVoter(ids []id.VoterID, voterID id.VoterID) bool {
	for _, v := range ids {
		if v == voterID {
			return true
		}
	}
	return false
}
