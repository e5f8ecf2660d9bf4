package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"elearning/internal/apperr"
	"elearning/internal/crypto"
	"elearning/internal/model"
	"elearning/internal/repository"
)

type AccountStore interface {
	PrincipalStore
	PrincipalByEmail(ctx context.Context, tenantID, email string) (model.Principal, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUser(ctx context.Context, user model.User) (model.User, error)
}

type Session struct {
	Principal model.Principal
	Tokens    Pair
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	FirstNameAr string
	LastNameAr  string
	Role        string
	Locale      string
}

const minPasswordLength = 6

// Service implements the credential flows: login, registration and refresh.
type Service struct {
	store  AccountStore
	tokens *Tokens
	hasher crypto.Hasher
	authn  *Authenticator
	logger *zap.Logger
}

func NewService(store AccountStore, tokens *Tokens, hasher crypto.Hasher, authn *Authenticator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, hasher: hasher, authn: authn, logger: logger}
}

// Login authenticates email and password inside tenant. Every failure is
// reported as InvalidLoginCredentials; the wrapped cause says which check
// failed and is only logged.
func (s *Service) Login(ctx context.Context, tenant *model.Tenant, email, password string) (Session, error) {
	if tenant == nil {
		return Session{}, apperr.New(apperr.KindTenantRequired, "")
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		var fields []apperr.FieldError
		if email == "" {
			fields = append(fields, apperr.FieldError{Field: "email", Message: "Please provide a valid email"})
		}
		if password == "" {
			fields = append(fields, apperr.FieldError{Field: "password", Message: "Password is required"})
		}
		return Session{}, apperr.Validation(fields...)
	}

	p, err := s.store.PrincipalByEmail(ctx, tenant.ID, email)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, loginFailure(err)
	}
	if err != nil {
		return Session{}, err
	}
	if !p.Active {
		return Session{}, loginFailure(errors.New("principal inactive"))
	}
	if err := s.hasher.Compare(p.PasswordHash, password); err != nil {
		return Session{}, loginFailure(err)
	}

	pair, err := s.tokens.Issue(p.User)
	if err != nil {
		return Session{}, err
	}
	s.authn.Touch(ctx, p.ID)
	s.logger.Info("user logged in", zap.String("user_id", p.ID), zap.String("university_id", tenant.ID))
	return Session{Principal: p, Tokens: pair}, nil
}

func loginFailure(cause error) error {
	return apperr.Wrap(apperr.KindInvalidLoginCredentials, "", cause)
}

// Register creates a principal in tenant and returns a fresh token pair.
func (s *Service) Register(ctx context.Context, tenant *model.Tenant, in RegisterInput) (Session, error) {
	if tenant == nil {
		return Session{}, apperr.New(apperr.KindTenantRequired, "")
	}
	role, fields := validateRegistration(&in)
	if len(fields) > 0 {
		return Session{}, apperr.Validation(fields...)
	}

	exists, err := s.store.EmailExists(ctx, in.Email)
	if err != nil {
		return Session{}, err
	}
	if exists {
		return Session{}, apperr.Conflict("email", apperr.MsgUserExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, err
	}
	locale := model.Locale(in.Locale)
	if locale != model.LocaleEnglish {
		locale = model.LocaleArabic
	}

	user, err := s.store.CreateUser(ctx, model.User{
		TenantID:        tenant.ID,
		Email:           in.Email,
		PasswordHash:    &hash,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		FirstNameAr:     in.FirstNameAr,
		LastNameAr:      in.LastNameAr,
		Role:            role,
		Active:          true,
		PreferredLocale: locale,
	})
	if err != nil {
		// a concurrent registration can win the unique index after EmailExists
		if apperr.Classify(err).Kind == apperr.KindConflict {
			return Session{}, apperr.Conflict("email", apperr.MsgUserExists)
		}
		return Session{}, err
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("university_id", tenant.ID))
	return Session{Principal: model.Principal{User: user, Tenant: tenant}, Tokens: pair}, nil
}

func validateRegistration(in *RegisterInput) (model.Role, []apperr.FieldError) {
	var fields []apperr.FieldError
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.FirstNameAr = strings.TrimSpace(in.FirstNameAr)
	in.LastNameAr = strings.TrimSpace(in.LastNameAr)

	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "Please provide a valid email"})
	}
	if len(in.Password) < minPasswordLength {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "Password must be at least 6 characters"})
	}
	if in.FirstName == "" {
		fields = append(fields, apperr.FieldError{Field: "first_name", Message: "First name is required"})
	}
	if in.LastName == "" {
		fields = append(fields, apperr.FieldError{Field: "last_name", Message: "Last name is required"})
	}

	role := model.RoleStudent
	if in.Role != "" {
		parsed, ok := model.ParseRole(in.Role)
		if !ok || !parsed.SelfRegistrable() {
			fields = append(fields, apperr.FieldError{Field: "role", Message: "Role must be student, professor or teaching_assistant"})
		}
		role = parsed
	}
	return role, fields
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// not revoked and stays valid until it expires.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	if refreshToken == "" {
		return Pair{}, apperr.New(apperr.KindMissingCredential, apperr.MsgRefreshRequired)
	}
	claims, err := s.tokens.Parse(KindRefresh, refreshToken)
	if err != nil {
		return Pair{}, refreshFailure(err)
	}

	p, err := s.authn.load(ctx, claims.Subject)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Pair{}, err
		}
		return Pair{}, refreshFailure(err)
	}
	return s.tokens.Issue(p.User)
}

func refreshFailure(cause error) error {
	if errors.Is(cause, jwt.ErrTokenExpired) {
		return apperr.Wrap(apperr.KindExpiredCredential, "", cause)
	}
	return apperr.Wrap(apperr.KindInvalidCredential, apperr.MsgInvalidRefreshToken, cause)
}
