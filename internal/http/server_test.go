package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"elearning/internal/apperr"
	"elearning/internal/auth"
	"elearning/internal/config"
	"elearning/internal/crypto"
	"elearning/internal/model"
	"elearning/internal/repository"
)

const testPassword = "s3cret-pass"

type fixture struct {
	t         *testing.T
	cfg       config.Config
	store     *repository.Memory
	server    *Server
	app       *httptest.Server
	tokens    *auth.Tokens
	uniA      model.Tenant
	uniB      model.Tenant
	admin     model.User
	professor model.User
	student   model.User
	outsider  model.User
	super     model.User
	course    model.Course
	otherCrs  model.Course
	foreign   model.Course
}

type envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message"`
	MessageAr string              `json:"message_ar"`
	Data      json.RawMessage     `json:"data"`
	Errors    []apperr.FieldError `json:"errors"`
	Field     string              `json:"field"`
	Path      string              `json:"path"`
	Method    string              `json:"method"`
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.RateLimitRequests = 10000
	return cfg
}

func newFixture(t *testing.T, cfg config.Config) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemory()
	f := &fixture{t: t, cfg: cfg, store: store}

	var err error
	f.uniA, err = store.CreateTenant(ctx, model.Tenant{Name: "University of Jordan", NameAr: "الجامعة الأردنية", Code: "UJ", Domain: "unia", Active: true})
	require.NoError(t, err)
	f.uniB, err = store.CreateTenant(ctx, model.Tenant{Name: "Yarmouk University", NameAr: "جامعة اليرموك", Code: "YU", Domain: "unib", Active: true})
	require.NoError(t, err)

	hash, err := crypto.NewHasher(bcrypt.MinCost).Hash(testPassword)
	require.NoError(t, err)
	newUser := func(email string, tenantID string, role model.Role) model.User {
		u, err := store.CreateUser(ctx, model.User{
			TenantID:     tenantID,
			Email:        email,
			PasswordHash: &hash,
			FirstName:    "Test",
			LastName:     string(role),
			Role:         role,
			Active:       true,
		})
		require.NoError(t, err)
		return u
	}
	f.admin = newUser("admin@unia.edu", f.uniA.ID, model.RoleUniversityAdmin)
	f.professor = newUser("prof@unia.edu", f.uniA.ID, model.RoleProfessor)
	f.student = newUser("student@unia.edu", f.uniA.ID, model.RoleStudent)
	f.outsider = newUser("student@unib.edu", f.uniB.ID, model.RoleStudent)
	f.super = newUser("root@platform.jo", "", model.RoleSuperAdmin)

	f.course, err = store.CreateCourse(ctx, model.Course{TenantID: f.uniA.ID, InstructorID: f.professor.ID, Code: "CS101", Name: "Intro", Active: true})
	require.NoError(t, err)
	f.otherCrs, err = store.CreateCourse(ctx, model.Course{TenantID: f.uniA.ID, InstructorID: f.admin.ID, Code: "CS102", Name: "Data", Active: true})
	require.NoError(t, err)
	f.foreign, err = store.CreateCourse(ctx, model.Course{TenantID: f.uniB.ID, InstructorID: f.outsider.ID, Code: "YU101", Name: "Other", Active: true})
	require.NoError(t, err)
	require.NoError(t, store.UpsertEnrollment(ctx, model.Enrollment{UserID: f.student.ID, CourseID: f.course.ID, Status: model.EnrollmentEnrolled}))

	f.tokens = auth.NewTokens(auth.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	f.server = NewServer(cfg, Deps{Store: store})
	f.app = httptest.NewServer(f.server.Router())
	t.Cleanup(func() {
		f.app.Close()
		f.server.authn.Wait()
	})
	return f
}

func (f *fixture) token(u model.User) string {
	f.t.Helper()
	pair, err := f.tokens.Issue(u)
	require.NoError(f.t, err)
	return pair.AccessToken
}

type reqOpt func(*http.Request)

func withToken(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withForwardedFor(ip string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip) }
}

func withDomain(domain string) reqOpt {
	return func(r *http.Request) { r.Header.Set("X-University-Domain", domain) }
}

func (f *fixture) do(method, path string, body interface{}, opts ...reqOpt) (*http.Response, envelope) {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.app.URL+path, reader)
	require.NoError(f.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp, env
}

func TestHealthAndNotFound(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, err := http.Get(f.app.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "OK", health.Status)
	assert.Equal(t, "development", health.Environment)
	assert.Equal(t, "1.0.0", health.Version)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	notFound, env := f.do(http.MethodGet, "/api/v1/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "Not Found", env.Message)
	assert.Equal(t, "/api/v1/nothing-here", env.Path)
	assert.Equal(t, http.MethodGet, env.Method)
}

func TestRegisterThenLoginIsTenantScoped(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, env := f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":      "New.Student@UniA.edu",
		"password":   "secret123",
		"first_name": "Lina",
		"last_name":  "Haddad",
	}, withDomain("unia"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, f.uniA.ID, resp.Header.Get("X-University-ID"))
	assert.Equal(t, apperr.MsgRegistered, env.Message)
	assert.NotEmpty(t, env.MessageAr)

	var session sessionResponse
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.NotEmpty(t, session.Token)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "new.student@unia.edu", session.User.Email)
	assert.Equal(t, model.RoleStudent, session.User.Role)
	require.NotNil(t, session.User.University)
	assert.Equal(t, f.uniA.ID, session.User.University.ID)

	creds := map[string]string{"email": "new.student@unia.edu", "password": "secret123"}
	resp, env = f.do(http.MethodPost, "/api/v1/auth/login", creds, withDomain("unia"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apperr.MsgLoggedIn, env.Message)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/login", creds, withDomain("unib"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgInvalidLogin, env.Message)
}

func TestRegisterRejectsDuplicateAndInvalidInput(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, env := f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "student@unia.edu", "password": "secret123", "first_name": "A", "last_name": "B",
	}, withDomain("unia"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, apperr.MsgUserExists, env.Message)
	assert.Equal(t, "email", env.Field)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "not-an-email", "password": "123", "role": "super_admin",
	}, withDomain("unia"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.MsgValidationFailed, env.Message)
	fields := map[string]bool{}
	for _, fe := range env.Errors {
		fields[fe.Field] = true
	}
	for _, name := range []string{"email", "password", "first_name", "last_name", "role"} {
		assert.True(t, fields[name], name)
	}
}

func TestLoginTenantResolution(t *testing.T) {
	f := newFixture(t, testConfig())
	creds := map[string]string{"email": f.student.Email, "password": testPassword}

	resp, env := f.do(http.MethodPost, "/api/v1/auth/login", creds)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantRequired, env.Message)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/login", creds, withDomain("nowhere"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantNotFound, env.Message)

	withBody := map[string]string{"email": f.student.Email, "password": testPassword, "university_domain": "unia"}
	resp, _ = f.do(http.MethodPost, "/api/v1/auth/login", withBody)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.store.SetTenantActive(f.uniA.ID, false)
	resp, env = f.do(http.MethodPost, "/api/v1/auth/login", creds, withDomain("unia"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantNotFound, env.Message)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, testConfig())

	_, wrongPassword := f.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": f.student.Email, "password": "wrong"}, withDomain("unia"))
	_, unknownEmail := f.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "ghost@unia.edu", "password": "wrong"}, withDomain("unia"))

	f.store.SetUserActive(f.professor.ID, false)
	resp, inactive := f.do(http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": f.professor.Email, "password": testPassword}, withDomain("unia"))

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, wrongPassword.Message, unknownEmail.Message)
	assert.Equal(t, wrongPassword.Message, inactive.Message)
	assert.Equal(t, wrongPassword.MessageAr, inactive.MessageAr)
}

func TestMeRefreshAndLogout(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, env := f.do(http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgNotAuthorized, env.Message)

	resp, env = f.do(http.MethodGet, "/api/v1/auth/me", nil, withToken(f.token(f.student)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(env.Data), "password")
	assert.Contains(t, string(env.Data), f.student.Email)

	pair, err := f.tokens.Issue(f.student)
	require.NoError(t, err)
	resp, env = f.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apperr.MsgRefreshed, env.Message)
	var refreshed auth.Pair
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{"refreshToken": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgInvalidRefreshToken, env.Message)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgRefreshRequired, env.Message)

	resp, env = f.do(http.MethodPost, "/api/v1/auth/logout", nil, withToken(f.token(f.student)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apperr.MsgLoggedOut, env.Message)
}

func TestAuthenticateRejectsDeactivatedPrincipalAndTenant(t *testing.T) {
	f := newFixture(t, testConfig())
	token := f.token(f.student)

	f.store.SetUserActive(f.student.ID, false)
	resp, env := f.do(http.MethodGet, "/api/v1/auth/me", nil, withToken(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgUserDeactivated, env.Message)

	f.store.SetUserActive(f.student.ID, true)
	f.store.SetTenantActive(f.uniA.ID, false)
	resp, env = f.do(http.MethodGet, "/api/v1/auth/me", nil, withToken(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantDeactivated, env.Message)

	resp, env = f.do(http.MethodGet, "/api/v1/auth/me", nil, withToken("garbage"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgInvalidToken, env.Message)
}

func TestCourseAccessThroughPipeline(t *testing.T) {
	f := newFixture(t, testConfig())

	cases := []struct {
		name    string
		user    model.User
		course  string
		status  int
		message string
	}{
		{"enrolled student", f.student, f.course.ID, http.StatusOK, apperr.MsgNotImplementedYet},
		{"student not enrolled", f.student, f.otherCrs.ID, http.StatusForbidden, apperr.MsgNotEnrolled},
		{"course instructor", f.professor, f.course.ID, http.StatusOK, apperr.MsgNotImplementedYet},
		{"other professor", f.professor, f.otherCrs.ID, http.StatusForbidden, ""},
		{"course in other university", f.student, f.foreign.ID, http.StatusForbidden, apperr.MsgCourseOtherTenant},
		{"unknown course", f.student, "missing", http.StatusNotFound, apperr.MsgCourseNotFound},
		{"university admin", f.admin, f.otherCrs.ID, http.StatusOK, apperr.MsgNotImplementedYet},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, env := f.do(http.MethodGet, "/api/v1/courses/"+tc.course, nil, withToken(f.token(tc.user)), withDomain("unia"))
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.message != "" {
				assert.Equal(t, tc.message, env.Message)
			}
		})
	}

	resp, env := f.do(http.MethodGet, "/api/v1/courses/"+f.course.ID, nil, withDomain("unia"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, apperr.MsgNotAuthorized, env.Message)
}

func TestTenantScopedRoutes(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, _ := f.do(http.MethodGet, "/api/v1/users", nil, withToken(f.token(f.student)), withDomain("unia"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.uniA.ID, resp.Header.Get("X-University-ID"))

	resp, env := f.do(http.MethodGet, "/api/v1/users", nil, withToken(f.token(f.student)), withDomain("unib"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, apperr.MsgWrongUniversity, env.Message)

	resp, _ = f.do(http.MethodGet, "/api/v1/analytics/overview", nil, withToken(f.token(f.student)))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(http.MethodGet, "/api/v1/users", nil, withToken(f.token(f.super)), withDomain("unib"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(http.MethodGet, "/api/v1/grades", nil, withToken(f.token(f.outsider)))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBodyDomainOnlyNamesTenantForCredentials(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, _ := f.do(http.MethodGet, "/api/v1/users", map[string]string{"university_domain": "unia"}, withToken(f.token(f.student)))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("X-University-ID"))

	pair, err := f.tokens.Issue(f.student)
	require.NoError(t, err)
	resp, _ = f.do(http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refreshToken":      pair.RefreshToken,
		"university_domain": "no-such-university",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubdomainResolution(t *testing.T) {
	f := newFixture(t, testConfig())

	req, err := http.NewRequest(http.MethodGet, f.app.URL+"/api/v1/users", nil)
	require.NoError(t, err)
	req.Host = "unia.elearning.jo"
	req.Header.Set("Authorization", "Bearer "+f.token(f.student))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, f.uniA.Name, resp.Header.Get("X-University-Name"))

	req, err = http.NewRequest(http.MethodGet, f.app.URL+"/api/v1/users", nil)
	require.NoError(t, err)
	req.Host = "ghost.elearning.jo"
	req.Header.Set("Authorization", "Bearer "+f.token(f.student))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUniversitiesAPI(t *testing.T) {
	f := newFixture(t, testConfig())

	resp, env := f.do(http.MethodGet, "/api/v1/universities?search=yarmouk", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Universities []universityView `json:"universities"`
		Pagination   pagination       `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Universities, 1)
	assert.Equal(t, f.uniB.ID, list.Universities[0].ID)
	assert.Equal(t, pagination{Total: 1, Page: 1, Limit: 10, Pages: 1}, list.Pagination)

	resp, _ = f.do(http.MethodGet, "/api/v1/universities?page=zero", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, env = f.do(http.MethodGet, "/api/v1/universities/"+f.uniA.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(env.Data), `"total_courses":2`)

	resp, env = f.do(http.MethodGet, "/api/v1/universities/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantMissing, env.Message)

	newUni := map[string]interface{}{"name": "Hashemite University", "name_ar": "الجامعة الهاشمية", "code": "HU", "domain": "hu"}
	resp, env = f.do(http.MethodPost, "/api/v1/universities", newUni, withToken(f.token(f.admin)), withDomain("unia"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, env.Message, "university_admin")

	resp, env = f.do(http.MethodPost, "/api/v1/universities", newUni, withToken(f.token(f.super)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantCreated, env.Message)

	resp, env = f.do(http.MethodPost, "/api/v1/universities", newUni, withToken(f.token(f.super)))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, env = f.do(http.MethodPost, "/api/v1/universities",
		map[string]interface{}{"name": "x", "code": "lower", "domain": "bad domain"}, withToken(f.token(f.super)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Len(t, env.Errors, 3)
}

func TestUniversityUpdateRespectsOwnership(t *testing.T) {
	f := newFixture(t, testConfig())
	adminToken := f.token(f.admin)

	resp, env := f.do(http.MethodPut, "/api/v1/universities/"+f.uniA.ID,
		map[string]interface{}{"name": "UJ Renamed", "code": "HACK", "is_active": false},
		withToken(adminToken), withDomain("unia"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, apperr.MsgTenantUpdated, env.Message)

	updated, err := f.store.TenantByID(context.Background(), f.uniA.ID)
	require.NoError(t, err)
	assert.Equal(t, "UJ Renamed", updated.Name)
	assert.Equal(t, "UJ", updated.Code)
	assert.True(t, updated.Active)

	resp, _ = f.do(http.MethodPut, "/api/v1/universities/"+f.uniB.ID,
		map[string]interface{}{"name": "Mine now"}, withToken(adminToken), withDomain("unia"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = f.do(http.MethodGet, "/api/v1/universities/"+f.uniA.ID+"/stats", nil, withToken(adminToken), withDomain("unia"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Stats universityStatsView `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 3, stats.Stats.TotalUsers)
	assert.Equal(t, 1, stats.Stats.Users[model.RoleStudent])

	resp, _ = f.do(http.MethodPut, "/api/v1/universities/"+f.uniB.ID,
		map[string]interface{}{"is_active": false}, withToken(f.token(f.super)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	uniB, err := f.store.TenantByID(context.Background(), f.uniB.ID)
	require.NoError(t, err)
	assert.False(t, uniB.Active)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Hour
	f := newFixture(t, cfg)

	for i := 0; i < 2; i++ {
		resp, _ := f.do(http.MethodGet, "/api/v1/universities", nil, withForwardedFor(fmt.Sprintf("203.0.113.%d", i+1)))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, env := f.do(http.MethodGet, "/api/v1/universities", nil, withForwardedFor("203.0.113.99"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, apperr.MsgRateLimited, env.Message)
	assert.NotEmpty(t, env.MessageAr)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	health, err := http.Get(f.app.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestRateLimitHonorsForwardingOnlyFromTrustedProxies(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Hour
	cfg.TrustedProxies = []string{"127.0.0.0/8", "::1"}
	f := newFixture(t, cfg)

	for i := 0; i < 5; i++ {
		resp, _ := f.do(http.MethodGet, "/api/v1/universities", nil, withForwardedFor(fmt.Sprintf("198.51.100.%d", i+1)))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	for i := 0; i < 2; i++ {
		resp, _ := f.do(http.MethodGet, "/api/v1/universities", nil, withForwardedFor("198.51.100.50, 127.0.0.1"))
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := f.do(http.MethodGet, "/api/v1/universities", nil, withForwardedFor("198.51.100.50"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestClientIP(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxies = []string{"10.0.0.0/8"}
	s := NewServer(cfg, Deps{Store: repository.NewMemory()})

	cases := []struct {
		name      string
		remote    string
		forwarded string
		realIP    string
		want      string
	}{
		{"untrusted peer ignores headers", "192.0.2.10:5000", "198.51.100.1", "198.51.100.2", "192.0.2.10"},
		{"trusted peer uses forwarded client", "10.1.2.3:5000", "198.51.100.1", "", "198.51.100.1"},
		{"skips trusted hops", "10.1.2.3:5000", "198.51.100.1, 203.0.113.9, 10.4.4.4", "", "203.0.113.9"},
		{"trusted peer falls back to real ip", "10.1.2.3:5000", "", "198.51.100.2", "198.51.100.2"},
		{"malformed hop stops the walk", "10.1.2.3:5000", "garbage, 10.9.9.9", "", "10.9.9.9"},
		{"no headers", "10.1.2.3:5000", "", "", "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, s.clientIP(r))
		})
	}
}

func TestCORSAndBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 64
	f := newFixture(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, f.app.URL+"/api/v1/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "X-University-Domain")

	big := map[string]string{"email": strings.Repeat("a", 200) + "@unia.edu", "password": "x"}
	resp, env := f.do(http.MethodPost, "/api/v1/auth/login", big, withDomain("unia"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, apperr.MsgFileTooLarge, env.Message)
}
