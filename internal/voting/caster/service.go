// Package caster performs the cast transaction: flip the voter's has-voted
// flag, write the vote record, bump the tally, and consume the credential.
// The flag flip is the serialization point; every later step is applied at
// most once per voter and credential.
package caster

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
	electionmodels "ballotgate/internal/election/models"
	electionstore "ballotgate/internal/election/store"
	"ballotgate/internal/platform/metrics"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
)

// Request names the candidate the bearer chose within an authorization
// context produced by the validator.
type Request struct {
	Authorization models.AuthorizationContext
	CandidateID   id.CandidateID
}

type Service struct {
	voters     electionstore.VoterStore
	candidates electionstore.CandidateStore
	votes      electionstore.VoteStore
	tokens     credstore.TokenStore
	links      credstore.LinkStore

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

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(
	voters electionstore.VoterStore,
	candidates electionstore.CandidateStore,
	votes electionstore.VoteStore,
	tokens credstore.TokenStore,
	links credstore.LinkStore,
	opts ...Option,
) (*Service, error) {
	if voters == nil || candidates == nil || votes == nil {
		return nil, fmt.Errorf("election stores are required")
	}
	if tokens == nil || links == nil {
		return nil, fmt.Errorf("credential stores are required")
	}

	svc := &Service{
		voters:     voters,
		candidates: candidates,
		votes:      votes,
		tokens:     tokens,
		links:      links,
		tracer:     otel.Tracer("ballotgate/caster"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Cast records the vote. Of N concurrent casts for one voter, exactly one
// passes the has-voted transition; the rest return CodeAlreadyVoted with no
// side effects. A crash after the transition can lose the vote record but can
// never double-count.
func (s *Service) Cast(ctx context.Context, req Request) (electionmodels.Vote, error) {
	ctx, span := s.tracer.Start(ctx, "caster.Cast")
	defer span.End()
	start := s.now()

	auth := req.Authorization
	if auth.VoterID.IsZero() || auth.CredentialID.IsZero() {
		return electionmodels.Vote{}, dErrors.New(dErrors.CodeBadRequest, "authorization context is incomplete")
	}
	if req.CandidateID.IsZero() {
		return electionmodels.Vote{}, dErrors.New(dErrors.CodeBadRequest, "candidate id is required")
	}

	candidate, ok := auth.Candidate(req.CandidateID)
	if !ok {
		// Distinguish a stale ballot from a candidate that never existed.
		stored, err := s.candidates.Find(ctx, req.CandidateID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return electionmodels.Vote{}, dErrors.New(dErrors.CodeCandidateNotFound, "candidate not found")
		case err != nil:
			return electionmodels.Vote{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "candidate lookup failed")
		case stored.CategoryID != auth.CategoryID:
			return electionmodels.Vote{}, dErrors.New(dErrors.CodeCandidateNotFound, "candidate is not on this ballot")
		default:
			return electionmodels.Vote{}, dErrors.New(dErrors.CodeCandidateInactive, "candidate is not active")
		}
	}
	if !candidate.Active {
		return electionmodels.Vote{}, dErrors.New(dErrors.CodeCandidateInactive, "candidate is not active")
	}

	castAt := s.now()

	// Serialization point. Exactly one concurrent cast per voter wins this.
	if err := s.voters.MarkVoted(ctx, auth.VoterID, castAt); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			if s.metrics != nil {
				s.metrics.CastConflicts.Inc()
			}
			return electionmodels.Vote{}, dErrors.New(dErrors.CodeAlreadyVoted, "voter has already voted")
		case errors.Is(err, sentinel.ErrNotFound):
			return electionmodels.Vote{}, dErrors.New(dErrors.CodeVoterNotFound, "voter not found")
		default:
			return electionmodels.Vote{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "voter state update failed")
		}
	}

	vote := electionmodels.Vote{
		VoterID:        auth.VoterID,
		CandidateID:    candidate.ID,
		CandidateName:  candidate.Name,
		CategoryID:     auth.CategoryID,
		CategoryName:   auth.CategoryName,
		CredentialID:   auth.CredentialID,
		CredentialKind: string(auth.CredentialKind),
		Timestamp:      castAt,
	}

	if err := s.votes.Create(ctx, vote); err != nil {
		// A duplicate key means a prior cast for this voter and credential
		// already landed its record; the transition above was re-armed by an
		// administrative reset. The write is idempotent only when the
		// surviving record names the same candidate, otherwise incrementing
		// the tally would diverge it from the record.
		if !errors.Is(err, sentinel.ErrConflict) {
			return electionmodels.Vote{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "vote record write failed")
		}
		existing, findErr := s.votes.Find(ctx, vote.Key())
		if findErr == nil && existing.CandidateID != candidate.ID {
			return electionmodels.Vote{}, dErrors.Newf(dErrors.CodeInternal,
				"existing vote record for %s names a different candidate", vote.Key())
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "vote record already exists",
				"vote_key", vote.Key(),
			)
		}
	}

	if err := s.candidates.IncrementVotes(ctx, candidate.ID, 1); err != nil {
		// The vote record is authoritative; a failed tally bump leaves the
		// counter behind, to be reconciled from the records.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "tally increment failed",
				"candidate_id", candidate.ID,
				"error", err.Error(),
			)
		}
	}

	s.consumeCredential(ctx, auth, castAt)

	span.SetAttributes(
		attribute.String("credential.kind", string(auth.CredentialKind)),
	)
	if s.metrics != nil {
		s.metrics.VotesCast.Inc()
		s.metrics.CastDurationSeconds.Observe(s.now().Sub(start).Seconds())
	}
	audit.Log(ctx, s.logger, s.auditPublisher, audit.Event{
		Action:         audit.ActionVoteCast,
		VoterID:        auth.VoterID,
		CredentialID:   auth.CredentialID,
		CredentialKind: string(auth.CredentialKind),
		CategoryID:     auth.CategoryID,
		CandidateID:    candidate.ID,
		Timestamp:      castAt,
	})

	return vote, nil
}

// consumeCredential marks the presented credential used for this voter. The
// vote already stands; consumption failures are logged, not surfaced, since
// the has-voted flag blocks reuse regardless.
func (s *Service) consumeCredential(ctx context.Context, auth models.AuthorizationContext, at time.Time) {
	var err error
	switch auth.CredentialKind {
	case models.KindLegacyToken:
		// Individual tokens are consumed outright; a collective token only
		// records this voter and stays live for the others.
		var tok models.LegacyToken
		if tok, err = s.tokens.Find(ctx, auth.CredentialID); err == nil {
			if tok.TokenType == models.TokenCollective {
				err = s.tokens.MarkUsedBy(ctx, auth.CredentialID, auth.VoterID, at)
			} else {
				err = s.tokens.Consume(ctx, auth.CredentialID, auth.VoterID, at)
			}
		}
	case models.KindUnifiedLink, models.KindParticularLink:
		err = s.links.MarkUsedBy(ctx, auth.CredentialID, auth.VoterID, at)
	case models.KindSelfEncoded:
		// Nothing stored to consume; the voter flag is the only guard.
		return
	default:
		err = fmt.Errorf("unknown credential kind %q", auth.CredentialKind)
	}
	if err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) && s.logger != nil {
		s.logger.ErrorContext(ctx, "credential consumption failed",
			"credential_id", auth.CredentialID,
			"credential_kind", auth.CredentialKind,
			"error", err.Error(),
		)
	}
}
