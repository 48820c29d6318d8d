package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/assuredfarming/assured-farming-backend/pkg/auth"
	pkgerrors "github.com/assuredfarming/assured-farming-backend/pkg/errors"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// WithPrincipal injects the authenticated caller into the context.
func WithPrincipal(ctx context.Context, principal auth.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, principal)
}

// PrincipalFromContext returns the caller seeded by Auth.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	if ctx == nil {
		return auth.Principal{}, false
	}
	p, ok := ctx.Value(ctxPrincipal).(auth.Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return string(p.Role)
	}
	return ""
}

// RequirePrincipal is PrincipalFromContext for handlers: a missing principal
// is an authentication error.
func RequirePrincipal(r *http.Request) (auth.Principal, error) {
	p, ok := PrincipalFromContext(r.Context())
	if !ok || p.UserID == uuid.Nil {
		return auth.Principal{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return p, nil
}
