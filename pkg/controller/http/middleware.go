package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/secmon-lab/storynotes/pkg/domain/model"
)

// principal is the caller identity asserted by the authenticating proxy
type principal struct {
	ID          model.PrincipalID
	DisplayName string
}

type ctxPrincipalKey struct{}

func contextWithPrincipal(ctx context.Context, p *principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey{}, p)
}

func principalFromContext(ctx context.Context) *principal {
	p, _ := ctx.Value(ctxPrincipalKey{}).(*principal)
	return p
}

// principalMiddleware rejects requests without the trusted principal header.
// Token verification happens upstream; the header value is taken as is.
func principalMiddleware(principalHeader, displayNameHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(principalHeader))
			if id == "" {
				writeJSON(w, r, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
				return
			}

			p := &principal{
				ID:          model.PrincipalID(id),
				DisplayName: strings.TrimSpace(r.Header.Get(displayNameHeader)),
			}
			next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), p)))
		})
	}
}
