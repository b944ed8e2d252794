package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tt360.co/crm/internal/audit"
	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
	"tt360.co/crm/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth binds the bearer token's principal to the request context when the token is
// valid. It never rejects a request; the route table decides what anonymous callers get.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, a.authenticate(r))
	})
}

// authenticate returns r unchanged on any failure, including a panic.
func (a *API) authenticate(r *http.Request) (out *http.Request) {
	out = r
	defer func() {
		if rec := recover(); rec != nil {
			obs.Logger().Error("authentication panicked",
				zap.String("request_id", audit.RequestID(r.Context())),
				zap.Any("panic", rec),
			)
			out = r
		}
	}()

	if _, bound := auth.PrincipalFromContext(r.Context()); bound {
		return r
	}
	token, found := bearerToken(r.Header.Get(authHeader))
	if !found {
		return r
	}
	principal, valid, err := a.auth.ResolveToken(r.Context(), token)
	if err != nil {
		log := obs.Logger().Warn
		if errs.KindOf(err) != errs.KindInternal {
			log = obs.Logger().Info
		}
		log("bearer principal not resolved",
			zap.String("request_id", audit.RequestID(r.Context())),
			zap.Error(err),
		)
		return r
	}
	if !valid {
		return r
	}
	ctx := auth.ContextWithPrincipal(r.Context(), principal)
	ctx = auth.ContextWithToken(ctx, token)
	return r.WithContext(ctx)
}

// bearerToken accepts only the exact "Bearer " scheme prefix.
func bearerToken(header string) (string, bool) {
	return strings.CutPrefix(header, bearer)
}
