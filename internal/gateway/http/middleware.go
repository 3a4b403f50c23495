package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
)

// SessionCookieName is the cookie carrying the opaque browser session token.
const SessionCookieName = "chatgate_session"

type principalCtxKey struct{}

// PrincipalFromCtx returns the resolved principal, or false when the request
// never passed through RequireAuth.
func PrincipalFromCtx(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(domain.Principal)
	return p, ok
}

// bearerValue strips the Bearer prefix off the Authorization header. Returns
// empty when the header is absent or uses another scheme.
func bearerValue(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// sessionValue pulls the session token from the request cookie, if any.
func sessionValue(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// RequireAuth resolves the request's credentials into a principal and stores
// it in the context. Every failure writes the same generic 401; the resolver
// has already logged the real reason.
func RequireAuth(resolver *service.ResolverService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			p, err := resolver.Resolve(ctx, bearerValue(r), sessionValue(r))
			if err != nil {
				gatesdk.ErrUnauthorized.WriteError(w)
				return
			}

			ctx = context.WithValue(ctx, principalCtxKey{}, p)
			ctx = context.WithValue(ctx, httpx.CtxKeySubject, p.SubjectID)
			ctx = context.WithValue(ctx, httpx.CtxKeyScopes, p.Scopes)
			ctx = context.WithValue(ctx, httpx.CtxKeyAuthMode, string(p.Mode))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects authenticated principals that lack the given scope.
// Must sit after RequireAuth in the chain.
func RequireScope(scope string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromCtx(r.Context())
			if !ok {
				gatesdk.ErrUnauthorized.WriteError(w)
				return
			}
			if !p.HasScope(scope) {
				gatesdk.ErrInsufficientScope.WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
