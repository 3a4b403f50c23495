package httpx

import "context"

type ctxKey string

const (
	CtxKeySubject  ctxKey = "subject"
	CtxKeyScopes   ctxKey = "scopes"
	CtxKeyAuthMode ctxKey = "auth_mode"
)

// SubjectFromCtx returns the authenticated subject id, or "" if unauthenticated.
func SubjectFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}

// ScopesFromCtx returns the scopes granted to the request's principal.
func ScopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
