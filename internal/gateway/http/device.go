package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// DeviceHandler serves the device authorization flow: code issuance, grant
// review, the approval decision, and token polling.
type DeviceHandler struct {
	GrantService *service.DeviceGrantService
}

// HandleCode godoc
//
//	@Summary		Start Device Authorization
//	@Description	Issues a device code / user code pair for the device authorization flow (RFC 8628).
//	@Description	The device polls the token endpoint with the device code while a signed-in user approves the short user code.
//	@Tags			Device
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.DeviceCodeRequest	false	"Requested scopes, space-delimited; defaults to llm:chat"
//	@Success		200		{object}	gatesdk.DeviceCodeResponse
//	@Failure		400		{object}	gatesdk.APIError
//	@Router			/v1/device/code [post].
func (h *DeviceHandler) HandleCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req gatesdk.DeviceCodeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			gatesdk.ErrInvalidRequest.WriteError(w)
			return
		}
	}

	scopes := httpx.ParseSpaceDelimitedFields(req.Scope)
	if len(scopes) == 0 {
		scopes = []string{domain.ScopeChat}
	}

	pair, err := h.GrantService.RequestCode(ctx, scopes)
	if err != nil {
		slogx.FromContext(ctx).Error("device code issuance failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.DeviceCodeResponse{
		DeviceCode:      pair.DeviceCode,
		UserCode:        pair.UserCode,
		VerificationURI: pair.VerificationURI,
		ExpiresIn:       pair.ExpiresIn,
		Interval:        pair.Interval,
	})
}

// HandleVerify godoc
//
//	@Summary		Review a Pending Grant
//	@Description	Returns the pending grant behind a user code so the signed-in approver can see what scopes the device asked for.
//	@Tags			Device
//	@Produce		json
//	@Param			user_code	query		string	true	"The short code shown on the device"
//	@Success		200			{object}	gatesdk.GrantSummary
//	@Failure		401			{object}	gatesdk.APIError
//	@Failure		404			{object}	gatesdk.APIError	"no pending grant behind that code"
//	@Security		BearerAuth
//	@Router			/v1/device/verify [get].
func (h *DeviceHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userCode := normalizeUserCode(r.URL.Query().Get("user_code"))
	if userCode == "" {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	grant, err := h.GrantService.Lookup(ctx, userCode)
	if err != nil {
		if errors.Is(err, service.ErrGrantNotFound) {
			(&gatesdk.APIError{
				StatusCode:  http.StatusNotFound,
				Code:        gatesdk.ErrorCodeInvalidRequest,
				Description: "no pending authorization for that code",
			}).WriteError(w)
			return
		}
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.GrantSummary{
		UserCode:  grant.UserCode,
		Scopes:    grant.Scopes,
		Status:    string(grant.Status),
		ExpiresIn: int64(time.Until(grant.ExpiresAt).Seconds()),
	})
}

// HandleAuthorize godoc
//
//	@Summary		Approve or Deny a Grant
//	@Description	Records the signed-in user's decision on a pending grant. The first decision is final.
//	@Tags			Device
//	@Accept			json
//	@Produce		json
//	@Param			request	body	object{user_code=string,approve=bool}	true	"The decision"
//	@Success		200		"Decision recorded"
//	@Failure		400		{object}	gatesdk.APIError	"expired grant"
//	@Failure		401		{object}	gatesdk.APIError
//	@Failure		404		{object}	gatesdk.APIError
//	@Failure		409		{object}	gatesdk.APIError	"grant already resolved"
//	@Security		BearerAuth
//	@Router			/v1/device/authorize [post].
func (h *DeviceHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		gatesdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req struct {
		UserCode string `json:"user_code"`
		Approve  bool   `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	userCode := normalizeUserCode(req.UserCode)
	if userCode == "" {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	err := h.GrantService.Resolve(ctx, userCode, p.SubjectID, req.Approve)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	case errors.Is(err, service.ErrGrantNotFound):
		(&gatesdk.APIError{
			StatusCode:  http.StatusNotFound,
			Code:        gatesdk.ErrorCodeInvalidRequest,
			Description: "no pending authorization for that code",
		}).WriteError(w)
	case errors.Is(err, service.ErrGrantExpired):
		gatesdk.ErrExpiredToken.WriteError(w)
	case errors.Is(err, service.ErrGrantResolved):
		gatesdk.ErrAlreadyResolved.WriteError(w)
	default:
		slogx.FromContext(ctx).Error("grant resolution failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
	}
}

// HandleToken godoc
//
//	@Summary		Poll for an Access Token
//	@Description	Exchanges an authorized device code for a signed access token (RFC 8628 polling).
//	@Description	Returns authorization_pending until the approver decides, access_denied after a denial,
//	@Description	and expired_token once the grant expires or the token was already collected.
//	@Tags			Device
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.DeviceTokenRequest	true	"The device code"
//	@Success		200		{object}	gatesdk.TokenResponse
//	@Failure		400		{object}	gatesdk.APIError	"authorization_pending, access_denied or expired_token"
//	@Router			/v1/device/token [post].
func (h *DeviceHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req gatesdk.DeviceTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceCode == "" {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	token, grant, err := h.GrantService.Poll(ctx, req.DeviceCode)
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, gatesdk.TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresIn:   int64(h.GrantService.TokenLifetime().Seconds()),
			Scope:       strings.Join(grant.Scopes, " "),
		})
	case errors.Is(err, service.ErrGrantPending):
		gatesdk.ErrAuthorizationPending.WriteError(w)
	case errors.Is(err, service.ErrGrantDenied):
		gatesdk.ErrAccessDenied.WriteError(w)
	case errors.Is(err, service.ErrGrantExpired), errors.Is(err, service.ErrGrantNotFound):
		// Unknown device codes read as expired so the endpoint cannot be
		// used to probe which codes exist.
		gatesdk.ErrExpiredToken.WriteError(w)
	default:
		slogx.FromContext(ctx).Error("device token poll failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
	}
}

// normalizeUserCode uppercases and trims a user-entered code so "abcd2345"
// and "ABCD2345" land on the same grant.
func normalizeUserCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
