package http

import (
	"net/http"

	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// SessionHandler serves the browser session surface behind grant approval.
// A caller exchanges a bearer credential once for a cookie, then the approval
// pages work without the token being pasted into every request.
type SessionHandler struct {
	SessionService *service.SessionService

	// SecureCookies controls the cookie Secure flag; off for local dev.
	SecureCookies bool
}

// HandleCreate godoc
//
//	@Summary		Start a Browser Session
//	@Description	Exchanges the presented bearer credential for a session cookie used by the device-grant approval pages.
//	@Tags			Session
//	@Produce		json
//	@Success		200	"Session cookie set"
//	@Failure		401	{object}	gatesdk.APIError
//	@Security		BearerAuth
//	@Router			/v1/session [post].
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		gatesdk.ErrUnauthorized.WriteError(w)
		return
	}

	token, err := h.SessionService.Create(ctx, p.SubjectID, p.Scopes)
	if err != nil {
		slogx.FromContext(ctx).Error("session creation failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(service.DefaultSessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "session_created"})
}

// HandleDestroy godoc
//
//	@Summary		End the Browser Session
//	@Description	Destroys the caller's session and clears the cookie. Safe to call without a session.
//	@Tags			Session
//	@Produce		json
//	@Success		200	"Session destroyed"
//	@Router			/v1/session [delete].
func (h *SessionHandler) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if token := sessionValue(r); token != "" {
		if err := h.SessionService.Destroy(ctx, token); err != nil {
			slogx.FromContext(ctx).Warn("session destroy failed", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "session_destroyed"})
}
