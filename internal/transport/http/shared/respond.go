// Package shared holds the response helpers every handler uses, so the error
// envelope and status mapping stay identical across the surface.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "ballotgate/pkg/domain-errors"
)

// WriteJSON writes a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps a domain error onto the wire envelope {"error": code}. The
// message stays server-side; bearers only see the code.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	WriteJSON(w, statusFor(code), map[string]string{
		"error": string(code),
	})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeMalformedCredential, dErrors.CodeWrongCredentialKind:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeNotAuthorizedForCredential, dErrors.CodeVoterSuspended:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeVoterNotFound, dErrors.CodeCategoryNotFound, dErrors.CodeCandidateNotFound:
		return http.StatusNotFound
	case dErrors.CodeAlreadyVoted, dErrors.CodeCandidateInactive:
		return http.StatusConflict
	case dErrors.CodeExpired, dErrors.CodeDeactivated:
		return http.StatusGone
	case dErrors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
