package handler

import (
	"net/http"

	"github.com/tokenportal/tokenportal/internal/auth"
)

// Whoami handles GET /api/v1/public/whoami, the demonstration route on
// the API-token-protected surface. It echoes back the identity the
// validation gateway resolved for the presented token.
func Whoami(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  identity.UserID,
		"token_id": identity.TokenID,
	})
}
