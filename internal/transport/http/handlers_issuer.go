package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	credmodels "ballotgate/internal/credential/models"
	"ballotgate/internal/platform/middleware"
	"ballotgate/internal/transport/http/shared"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
)

// IssuerService mints and retires credentials.
type IssuerService interface {
	IssueUnifiedLink(ctx context.Context, categoryID id.CategoryID, ttl time.Duration, voterSubset []id.VoterID) (credmodels.UnifiedLink, error)
	IssueParticularLink(ctx context.Context, voterIDs []id.VoterID, categoryID id.CategoryID, ttl time.Duration) (credmodels.ParticularLink, error)
	IssueLegacyToken(ctx context.Context, voterIDs []id.VoterID, categoryID id.CategoryID, tokenType credmodels.TokenType, ttl time.Duration) (credmodels.LegacyToken, error)
	IssueSelfEncodedToken(ctx context.Context, voterID id.VoterID, categoryID id.CategoryID, ttl time.Duration) (string, error)
	DeactivateLink(ctx context.Context, credID id.CredentialID) error
	DeactivateToken(ctx context.Context, credID id.CredentialID) error
}

// IssuerHandler serves the operator-facing issuance endpoints. Every route is
// behind RequireOperator.
type IssuerHandler struct {
	logger *slog.Logger
	issuer IssuerService
}

func NewIssuerHandler(issuer IssuerService, logger *slog.Logger) *IssuerHandler {
	return &IssuerHandler{logger: logger, issuer: issuer}
}

type issueLinkRequest struct {
	CategoryID      id.CategoryID `json:"categoryId"`
	DurationSeconds int64         `json:"durationSeconds"`
	VoterIDs        []id.VoterID  `json:"voterIds,omitempty"`
}

type issueTokenRequest struct {
	VoterIDs        []id.VoterID         `json:"voterIds"`
	CategoryID      id.CategoryID        `json:"categoryId"`
	TokenType       credmodels.TokenType `json:"tokenType"`
	DurationSeconds int64                `json:"durationSeconds"`
}

type issueSelfEncodedRequest struct {
	VoterID         id.VoterID    `json:"voterId"`
	CategoryID      id.CategoryID `json:"categoryId"`
	DurationSeconds int64         `json:"durationSeconds"`
}

func (h *IssuerHandler) handleIssueUnified(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	link, err := h.issuer.IssueUnifiedLink(ctx, req.CategoryID, time.Duration(req.DurationSeconds)*time.Second, req.VoterIDs)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.logIssued(ctx, string(link.ID), string(credmodels.KindUnifiedLink))
	shared.WriteJSON(w, http.StatusCreated, link)
}

func (h *IssuerHandler) handleIssueParticular(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	link, err := h.issuer.IssueParticularLink(ctx, req.VoterIDs, req.CategoryID, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.logIssued(ctx, string(link.ID), string(credmodels.KindParticularLink))
	shared.WriteJSON(w, http.StatusCreated, link)
}

func (h *IssuerHandler) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	tok, err := h.issuer.IssueLegacyToken(ctx, req.VoterIDs, req.CategoryID, req.TokenType, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.logIssued(ctx, string(tok.ID), string(credmodels.KindLegacyToken))
	shared.WriteJSON(w, http.StatusCreated, tok)
}

func (h *IssuerHandler) handleIssueSelfEncoded(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req issueSelfEncodedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	encoded, err := h.issuer.IssueSelfEncodedToken(ctx, req.VoterID, req.CategoryID, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	h.logIssued(ctx, "", string(credmodels.KindSelfEncoded))
	shared.WriteJSON(w, http.StatusCreated, map[string]string{
		"token": encoded,
	})
}

func (h *IssuerHandler) handleDeactivateLink(w http.ResponseWriter, r *http.Request) {
	credID := id.CredentialID(chi.URLParam(r, "id"))
	if err := h.issuer.DeactivateLink(r.Context(), credID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IssuerHandler) handleDeactivateToken(w http.ResponseWriter, r *http.Request) {
	credID := id.CredentialID(chi.URLParam(r, "id"))
	if err := h.issuer.DeactivateToken(r.Context(), credID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *IssuerHandler) logIssued(ctx context.Context, credID, kind string) {
	h.logger.InfoContext(ctx, "credential issued",
		"credential_id", credID,
		"kind", kind,
		"operator_id", middleware.GetOperatorID(ctx),
		"request_id", middleware.GetRequestID(ctx),
	)
}
