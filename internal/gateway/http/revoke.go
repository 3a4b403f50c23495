package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
)

// RevokeHandler serves POST /v1/tokens/revoke in the spirit of RFC 7009.
// Revocation always answers 200 OK, even for tokens that are invalid,
// expired or already revoked, so the endpoint cannot be used to scan for
// live tokens.
type RevokeHandler struct {
	VerifierService *service.VerifierService
}

// ServeHTTP godoc
//
//	@Summary		Revoke an Access Token
//	@Description	Puts an access token on the revocation list, effective immediately on this instance and
//	@Description	propagated to peers on a best-effort basis. Always returns 200 OK (RFC 7009).
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.RevokeRequest	true	"The token to revoke"
//	@Success		200		"Token revoked (or was never valid)"
//	@Failure		400		{object}	gatesdk.APIError
//	@Failure		401		{object}	gatesdk.APIError
//	@Security		BearerAuth
//	@Router			/v1/tokens/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req gatesdk.RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	h.VerifierService.Revoke(r.Context(), req.Token)

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
