package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"elearning/internal/apperr"
	"elearning/internal/model"
)

// Memory is an in-process store used for local runs and tests.
type Memory struct {
	mu          sync.RWMutex
	tenants     map[string]model.Tenant
	users       map[string]model.User
	courses     map[string]model.Course
	enrollments map[[2]string]model.Enrollment
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tenants:     map[string]model.Tenant{},
		users:       map[string]model.User{},
		courses:     map[string]model.Course{},
		enrollments: map[[2]string]model.Enrollment{},
		now:         time.Now,
	}
}

func (m *Memory) TenantByDomain(ctx context.Context, domain string) (model.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return model.Tenant{}, err
	}
	domain = normalizeDomain(domain)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if strings.ToLower(t.Domain) == domain {
			return t, nil
		}
	}
	return model.Tenant{}, ErrNotFound
}

func (m *Memory) TenantByID(ctx context.Context, id string) (model.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return model.Tenant{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	if !ok {
		return model.Tenant{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ListTenants(ctx context.Context, filter model.TenantFilter) ([]model.Tenant, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	page, limit := pageBounds(filter.Page, filter.Limit)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	m.mu.RLock()
	var matched []model.Tenant
	for _, t := range m.tenants {
		if filter.Active != nil && t.Active != *filter.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(t.Name), search) &&
			!strings.Contains(strings.ToLower(t.NameAr), search) &&
			!strings.Contains(strings.ToLower(t.Code), search) {
			continue
		}
		matched = append(matched, t)
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	start := (page - 1) * limit
	if start >= total {
		return []model.Tenant{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Memory) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return model.Tenant{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.SubscriptionPlan == "" {
		t.SubscriptionPlan = model.PlanBasic
	}
	t.Domain = normalizeDomain(t.Domain)
	for _, existing := range m.tenants {
		if existing.Code == t.Code {
			return model.Tenant{}, apperr.Conflict("code", "")
		}
		if existing.Domain == t.Domain {
			return model.Tenant{}, apperr.Conflict("domain", "")
		}
	}
	t.CreatedAt = m.now()
	t.UpdatedAt = t.CreatedAt
	m.tenants[t.ID] = t
	return t, nil
}

func (m *Memory) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if err := ctx.Err(); err != nil {
		return model.Tenant{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tenants[t.ID]
	if !ok {
		return model.Tenant{}, ErrNotFound
	}
	t.Domain = normalizeDomain(t.Domain)
	for id, other := range m.tenants {
		if id == t.ID {
			continue
		}
		if other.Code == t.Code {
			return model.Tenant{}, apperr.Conflict("code", "")
		}
		if other.Domain == t.Domain {
			return model.Tenant{}, apperr.Conflict("domain", "")
		}
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = m.now()
	m.tenants[t.ID] = t
	return t, nil
}

func (m *Memory) TenantStats(ctx context.Context, tenantID string) (model.TenantStats, error) {
	if err := ctx.Err(); err != nil {
		return model.TenantStats{}, err
	}
	stats := model.TenantStats{UsersByRole: map[model.Role]int{}}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.TenantID == tenantID {
			stats.UsersByRole[u.Role]++
			stats.TotalUsers++
		}
	}
	for _, c := range m.courses {
		if c.TenantID == tenantID {
			stats.TotalCourses++
		}
	}
	return stats, nil
}

func (m *Memory) principal(u model.User) model.Principal {
	p := model.Principal{User: u}
	if t, ok := m.tenants[u.TenantID]; ok {
		p.Tenant = &t
	}
	return p
}

func (m *Memory) PrincipalByID(ctx context.Context, id string) (model.Principal, error) {
	if err := ctx.Err(); err != nil {
		return model.Principal{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.Principal{}, ErrNotFound
	}
	return m.principal(u), nil
}

func (m *Memory) PrincipalByEmail(ctx context.Context, tenantID, email string) (model.Principal, error) {
	if err := ctx.Err(); err != nil {
		return model.Principal{}, err
	}
	email = normalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			return m.principal(u), nil
		}
	}
	return model.Principal{}, ErrNotFound
}

func (m *Memory) EmailExists(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	email = normalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.PreferredLocale == "" {
		u.PreferredLocale = model.LocaleArabic
	}
	u.Email = normalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return model.User{}, apperr.Conflict("email", "")
		}
	}
	if u.TenantID != "" {
		if _, ok := m.tenants[u.TenantID]; !ok {
			return model.User{}, apperr.New(apperr.KindForeignKey, "")
		}
	}
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	m.users[userID] = u
	return nil
}

// SetUserActive flips a principal's active flag.
func (m *Memory) SetUserActive(userID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Active = active
		m.users[userID] = u
	}
}

func (m *Memory) SetTenantActive(tenantID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[tenantID]; ok {
		t.Active = active
		m.tenants[tenantID] = t
	}
}

func (m *Memory) CourseByID(ctx context.Context, id string) (model.Course, error) {
	if err := ctx.Err(); err != nil {
		return model.Course{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return model.Course{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) CreateCourse(ctx context.Context, c model.Course) (model.Course, error) {
	if err := ctx.Err(); err != nil {
		return model.Course{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.courses[c.ID] = c
	return c, nil
}

func (m *Memory) Enrollment(ctx context.Context, userID, courseID string) (model.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return model.Enrollment{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.enrollments[[2]string{userID, courseID}]
	if !ok {
		return model.Enrollment{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) UpsertEnrollment(ctx context.Context, e model.Enrollment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = m.now()
	}
	m.enrollments[[2]string{e.UserID, e.CourseID}] = e
	return nil
}
