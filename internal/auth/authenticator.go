package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"elearning/internal/apperr"
	"elearning/internal/model"
	"elearning/internal/repository"
)

type PrincipalStore interface {
	PrincipalByID(ctx context.Context, id string) (model.Principal, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

type AuthenticatorConfig struct {
	TouchTimeout time.Duration
	// SuperAdminTenantID names the sentinel tenant super admins may be bound
	// to. It is exempt from the tenant-active check.
	SuperAdminTenantID string
}

type Authenticator struct {
	tokens *Tokens
	store  PrincipalStore
	cfg    AuthenticatorConfig
	logger *zap.Logger
	now    func() time.Time

	touches sync.WaitGroup
}

func NewAuthenticator(tokens *Tokens, store PrincipalStore, cfg AuthenticatorConfig, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TouchTimeout <= 0 {
		cfg.TouchTimeout = 5 * time.Second
	}
	return &Authenticator{tokens: tokens, store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Authenticate verifies an access token and loads the principal it names.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, apperr.New(apperr.KindMissingCredential, "")
	}
	claims, err := a.tokens.Parse(KindAccess, token)
	if err != nil {
		return nil, credentialError(err)
	}

	p, err := a.load(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	a.Touch(ctx, p.ID)
	return p, nil
}

// load fetches the principal aggregate and applies the active checks shared
// by Authenticate and token refresh.
func (a *Authenticator) load(ctx context.Context, userID string) (*model.Principal, error) {
	p, err := a.store.PrincipalByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindPrincipalNotFound, "", err)
	}
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, apperr.New(apperr.KindPrincipalInactive, "")
	}

	switch {
	case p.Tenant != nil:
		if !p.Tenant.Active && p.Tenant.ID != a.cfg.SuperAdminTenantID {
			return nil, apperr.New(apperr.KindTenantInactive, "")
		}
	case p.Role != model.RoleSuperAdmin:
		// every other role must belong to a university
		return nil, apperr.New(apperr.KindTenantInactive, "")
	}
	return &p, nil
}

// Touch records the last-authenticated time without blocking the request.
// Failures are logged and otherwise ignored.
func (a *Authenticator) Touch(ctx context.Context, userID string) {
	at := a.now().UTC()
	touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.TouchTimeout)
	a.touches.Add(1)
	go func() {
		defer a.touches.Done()
		defer cancel()
		if err := a.store.TouchLastLogin(touchCtx, userID, at); err != nil {
			a.logger.Warn("last login update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

// Wait blocks until pending last-login writes finish.
func (a *Authenticator) Wait() {
	a.touches.Wait()
}

func credentialError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return apperr.Wrap(apperr.KindExpiredCredential, "", err)
	}
	return apperr.Wrap(apperr.KindInvalidCredential, "", err)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalKey{}).(*model.Principal)
	return p
}
