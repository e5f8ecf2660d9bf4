package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"elearning/internal/apperr"
	"elearning/internal/auth"
	"elearning/internal/model"
	"elearning/internal/tenant"
)

type registerRequest struct {
	UniversityDomain string `json:"university_domain"`
	Email            string `json:"email"`
	Password         string `json:"password"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	FirstNameAr      string `json:"first_name_ar"`
	LastNameAr       string `json:"last_name_ar"`
	Role             string `json:"role"`
	PreferredLocale  string `json:"preferred_language"`
}

type loginRequest struct {
	UniversityDomain string `json:"university_domain"`
	Email            string `json:"email"`
	Password         string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type universityRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	NameAr string `json:"name_ar,omitempty"`
	Code   string `json:"code"`
	Domain string `json:"domain"`
}

type userSummary struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	FirstName       string         `json:"first_name"`
	LastName        string         `json:"last_name"`
	FirstNameAr     string         `json:"first_name_ar,omitempty"`
	LastNameAr      string         `json:"last_name_ar,omitempty"`
	Role            model.Role     `json:"role"`
	PreferredLocale model.Locale   `json:"preferred_language"`
	University      *universityRef `json:"university,omitempty"`
}

// userProfile is the sanitized principal returned by /auth/me. It never
// carries the password hash.
type userProfile struct {
	userSummary
	UniversityID string     `json:"university_id,omitempty"`
	Active       bool       `json:"is_active"`
	Verified     bool       `json:"is_verified"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type sessionResponse struct {
	User         userSummary `json:"user"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
}

func toUniversityRef(t *model.Tenant) *universityRef {
	if t == nil {
		return nil
	}
	return &universityRef{ID: t.ID, Name: t.Name, NameAr: t.NameAr, Code: t.Code, Domain: t.Domain}
}

func toUserSummary(p model.Principal) userSummary {
	return userSummary{
		ID:              p.ID,
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		FirstNameAr:     p.FirstNameAr,
		LastNameAr:      p.LastNameAr,
		Role:            p.Role,
		PreferredLocale: p.PreferredLocale,
		University:      toUniversityRef(p.Tenant),
	}
}

func toSessionResponse(session auth.Session) sessionResponse {
	return sessionResponse{
		User:         toUserSummary(session.Principal),
		Token:        session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
		ExpiresAt:    session.Tokens.ExpiresAt,
	}
}

// resolveForCredentials resolves the university for register and login.
// These routes skip the tenant stage, so the body field is consulted here.
func (s *Server) resolveForCredentials(w http.ResponseWriter, r *http.Request, bodyDomain string) (*model.Tenant, error) {
	t, err := s.resolver.Resolve(r.Context(), r, bodyDomain)
	if err != nil {
		return nil, err
	}
	tenant.SetHeaders(w, t)
	return t, nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.resolveForCredentials(w, r, req.UniversityDomain)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.accounts.Register(r.Context(), t, auth.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		FirstNameAr: req.FirstNameAr,
		LastNameAr:  req.LastNameAr,
		Role:        req.Role,
		Locale:      req.PreferredLocale,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, apperr.MsgRegistered, toSessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	t, err := s.resolveForCredentials(w, r, req.UniversityDomain)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.accounts.Login(r.Context(), t, req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, apperr.MsgLoggedIn, toSessionResponse(session))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	pair, err := s.accounts.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, apperr.MsgRefreshed, pair)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		s.fail(w, r, apperr.New(apperr.KindMissingCredential, ""))
		return
	}
	writeJSON(w, http.StatusOK, apperr.Envelope{
		Success: true,
		Data: map[string]interface{}{
			"user": userProfile{
				userSummary:  toUserSummary(*p),
				UniversityID: p.TenantID,
				Active:       p.Active,
				Verified:     p.Verified,
				LastLogin:    p.LastLogin,
				CreatedAt:    p.CreatedAt,
				UpdatedAt:    p.UpdatedAt,
			},
		},
	})
}

// handleLogout acknowledges the request. Tokens are not revoked and remain
// valid until they expire.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		s.logger.Info("user logged out", zap.String("user_id", p.ID))
	}
	writeSuccess(w, http.StatusOK, apperr.MsgLoggedOut, nil)
}
