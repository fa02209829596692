// Package httptransport wires the HTTP surface: bearer voting routes, the
// operator issuance routes, and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ballotgate/internal/platform/middleware"
	"ballotgate/internal/transport/http/shared"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Logger    *slog.Logger
	Validator ValidatorService
	Caster    CasterService
	Issuer    IssuerService

	// JWTValidator guards the issuance routes. Nil leaves them unmounted
	// rather than open.
	JWTValidator middleware.JWTValidator

	// Health reports store reachability for /healthz. Nil means always
	// healthy.
	Health func(ctx context.Context) error

	RequestTimeout time.Duration
}

// NewRouter assembles the chi router with the standard middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Timeout(timeout))

	voting := NewVotingHandler(cfg.Validator, cfg.Caster, cfg.Logger)
	r.Post("/credentials/validate", voting.HandleValidate)
	r.Post("/votes", voting.HandleCast)

	if cfg.Issuer != nil && cfg.JWTValidator != nil {
		issuer := NewIssuerHandler(cfg.Issuer, cfg.Logger)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperator(cfg.JWTValidator, cfg.Logger))
			r.Post("/links/unified", issuer.handleIssueUnified)
			r.Post("/links/particular", issuer.handleIssueParticular)
			r.Post("/tokens", issuer.handleIssueToken)
			r.Post("/tokens/self-encoded", issuer.handleIssueSelfEncoded)
			r.Delete("/links/{id}", issuer.handleDeactivateLink)
			r.Delete("/tokens/{id}", issuer.handleDeactivateToken)
		})
	}

	r.Get("/healthz", handleHealth(cfg.Health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
