package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	credmodels "ballotgate/internal/credential/models"
	"ballotgate/internal/credential/validator"
	electionmodels "ballotgate/internal/election/models"
	"ballotgate/internal/platform/middleware"
	"ballotgate/internal/transport/http/shared"
	"ballotgate/internal/voting/caster"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
)

// ValidatorService is the validation surface the voting handlers need.
type ValidatorService interface {
	Validate(ctx context.Context, req validator.Request) (credmodels.AuthorizationContext, error)
}

// CasterService records a validated vote.
type CasterService interface {
	Cast(ctx context.Context, req caster.Request) (electionmodels.Vote, error)
}

// VotingHandler serves the bearer-facing endpoints. No authentication beyond
// the credential itself: the credential is the identity.
type VotingHandler struct {
	logger    *slog.Logger
	validator ValidatorService
	caster    CasterService
}

func NewVotingHandler(validator ValidatorService, caster CasterService, logger *slog.Logger) *VotingHandler {
	return &VotingHandler{
		logger:    logger,
		validator: validator,
		caster:    caster,
	}
}

type validateRequest struct {
	Credential    string `json:"credential"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	PersonalToken string `json:"personalToken,omitempty"`
}

type candidateView struct {
	ID   id.CandidateID `json:"id"`
	Name string         `json:"name"`
}

type validateResponse struct {
	VoterID        id.VoterID      `json:"voterId"`
	CategoryID     id.CategoryID   `json:"categoryId"`
	CategoryName   string          `json:"categoryName"`
	CredentialKind credmodels.Kind `json:"credentialKind"`
	Candidates     []candidateView `json:"candidates"`
}

// HandleValidate checks a presented credential and returns the ballot the
// bearer may vote on.
func (h *VotingHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	authz, err := h.validator.Validate(ctx, validator.Request{
		Credential:    req.Credential,
		Phone:         req.PhoneNumber,
		PersonalToken: req.PersonalToken,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "credential validation rejected",
			"reason", string(dErrors.CodeOf(err)),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	candidates := make([]candidateView, 0, len(authz.Candidates))
	for _, c := range authz.Candidates {
		candidates = append(candidates, candidateView{ID: c.ID, Name: c.Name})
	}

	shared.WriteJSON(w, http.StatusOK, validateResponse{
		VoterID:        authz.VoterID,
		CategoryID:     authz.CategoryID,
		CategoryName:   authz.CategoryName,
		CredentialKind: authz.CredentialKind,
		Candidates:     candidates,
	})
}

type castRequest struct {
	Credential    string         `json:"credential"`
	PhoneNumber   string         `json:"phoneNumber,omitempty"`
	PersonalToken string         `json:"personalToken,omitempty"`
	CandidateID   id.CandidateID `json:"candidateId"`
}

type castResponse struct {
	VoterID       id.VoterID     `json:"voterId"`
	CandidateID   id.CandidateID `json:"candidateId"`
	CandidateName string         `json:"candidateName"`
	CategoryID    id.CategoryID  `json:"categoryId"`
	Timestamp     string         `json:"timestamp"`
}

// HandleCast re-validates the credential and casts the vote in one request.
// Validation is repeated because the earlier validate response is advisory;
// only state at cast time counts.
func (h *VotingHandler) HandleCast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req castRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	authz, err := h.validator.Validate(ctx, validator.Request{
		Credential:    req.Credential,
		Phone:         req.PhoneNumber,
		PersonalToken: req.PersonalToken,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	vote, err := h.caster.Cast(ctx, caster.Request{
		Authorization: authz,
		CandidateID:   req.CandidateID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "cast rejected",
			"reason", string(dErrors.CodeOf(err)),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, castResponse{
		VoterID:       vote.VoterID,
		CandidateID:   vote.CandidateID,
		CandidateName: vote.CandidateName,
		CategoryID:    vote.CategoryID,
		Timestamp:     vote.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}
