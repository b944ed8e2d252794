package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"tt360.co/crm/internal/audit"
	"tt360.co/crm/internal/auth"
	"tt360.co/crm/internal/errs"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=255"`
}

type loginResponse struct {
	AccessToken string   `json:"accessToken"`
	TokenType   string   `json:"tokenType"`
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
}

type meResponse struct {
	ID          int64    `json:"id"`
	Name        string   `json:"nombre"`
	Email       string   `json:"email"`
	Role        string   `json:"rol,omitempty"`
	Authorities []string `json:"authorities"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		return err
	}
	ctx := auth.ContextWithPrincipal(r.Context(), res.Principal)
	audit.LogEvent(ctx, "auth.login", "user", res.Principal.UserID,
		zap.String("token_id", res.Token.ID),
		zap.Time("expires_at", res.Token.ExpiresAt),
	)
	return respondOK(w, loginResponse{
		AccessToken: res.Token.Value,
		TokenType:   "Bearer",
		ID:          res.Principal.UserID,
		Email:       res.Principal.Email,
		Roles:       res.Principal.Roles(),
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) error {
	token, found := auth.TokenFromContext(r.Context())
	if !found {
		return errs.Unauthenticated("authentication required")
	}
	if err := a.auth.Logout(r.Context(), token); err != nil {
		return err
	}
	p, _ := auth.PrincipalFromContext(r.Context())
	audit.LogEvent(r.Context(), "auth.logout", "user", p.UserID, zap.Bool("revoked", a.auth.Revocable()))
	return noContent(w)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) error {
	p, found := auth.PrincipalFromContext(r.Context())
	if !found {
		return errs.Unauthenticated("authentication required")
	}
	authorities := p.Authorities
	if authorities == nil {
		authorities = []string{}
	}
	return respondOK(w, meResponse{
		ID:          p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Authorities: authorities,
	})
}
