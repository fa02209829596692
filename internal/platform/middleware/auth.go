package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorClaims represents the claims we expect from an operator token.
type OperatorClaims struct {
	OperatorID string
	Role       string
}

// JWTValidator defines the interface for validating operator tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*OperatorClaims, error)
}

type contextKeyOperatorID struct{}

// ContextKeyOperatorID is exported for use in handlers.
var ContextKeyOperatorID = contextKeyOperatorID{}

// GetOperatorID retrieves the authenticated operator ID from the context.
func GetOperatorID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyOperatorID).(string); ok {
		return id
	}
	return ""
}

// HS256Validator validates HS256-signed operator tokens.
type HS256Validator struct {
	signingKey []byte
}

func NewHS256Validator(signingKey string) *HS256Validator {
	return &HS256Validator{signingKey: []byte(signingKey)}
}

func (v *HS256Validator) ValidateToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing subject claim")
	}
	return &OperatorClaims{OperatorID: sub, Role: role}, nil
}

// RequireOperator guards issuer/admin routes. Bearer voting routes stay open;
// only credential issuance and deactivation need an operator token.
func RequireOperator(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(authHeader, bearerPrefix))
			if err != nil {
				logger.WarnContext(r.Context(), "operator token rejected",
					"error", err.Error(),
					"request_id", GetRequestID(r.Context()),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if claims.Role != "operator" {
				writeJSONError(w, http.StatusForbidden, "forbidden", "operator role required")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyOperatorID, claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}
