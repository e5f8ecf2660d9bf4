package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"elearning/internal/model"
)

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const tenantColumns = `id, name, name_ar, code, domain, is_active, subscription_plan, subscription_expires_at, created_at, updated_at`

func scanTenant(row pgx.Row) (model.Tenant, error) {
	var t model.Tenant
	var nameAr *string
	var plan string
	err := row.Scan(&t.ID, &t.Name, &nameAr, &t.Code, &t.Domain, &t.Active, &plan, &t.SubscriptionExpiresAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if nameAr != nil {
		t.NameAr = *nameAr
	}
	t.SubscriptionPlan = model.SubscriptionPlan(plan)
	return t, nil
}

func (s *Store) TenantByDomain(ctx context.Context, domain string) (model.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM universities WHERE lower(domain) = $1`, normalizeDomain(domain))
	return scanTenant(row)
}

func (s *Store) TenantByID(ctx context.Context, id string) (model.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Tenant{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM universities WHERE id = $1`, id)
	return scanTenant(row)
}

func (s *Store) ListTenants(ctx context.Context, filter model.TenantFilter) ([]model.Tenant, int, error) {
	page, limit := pageBounds(filter.Page, filter.Limit)
	where := `WHERE ($1::boolean IS NULL OR is_active = $1)
	  AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR name_ar ILIKE '%' || $2 || '%' OR code ILIKE '%' || $2 || '%')`

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM universities `+where, filter.Active, filter.Search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+tenantColumns+`
		FROM universities `+where+`
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`, filter.Active, filter.Search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tenants []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		tenants = append(tenants, t)
	}
	return tenants, total, rows.Err()
}

func (s *Store) CreateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.SubscriptionPlan == "" {
		t.SubscriptionPlan = model.PlanBasic
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO universities (id, name, name_ar, code, domain, is_active, subscription_plan, subscription_expires_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, lower($5), $6, $7, $8)
		RETURNING `+tenantColumns,
		t.ID, t.Name, t.NameAr, t.Code, t.Domain, t.Active, string(t.SubscriptionPlan), t.SubscriptionExpiresAt)
	return scanTenant(row)
}

func (s *Store) UpdateTenant(ctx context.Context, t model.Tenant) (model.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE universities
		SET name = $2, name_ar = NULLIF($3, ''), code = $4, domain = lower($5), is_active = $6,
		    subscription_plan = $7, subscription_expires_at = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+tenantColumns,
		t.ID, t.Name, t.NameAr, t.Code, t.Domain, t.Active, string(t.SubscriptionPlan), t.SubscriptionExpiresAt)
	return scanTenant(row)
}

func (s *Store) TenantStats(ctx context.Context, tenantID string) (model.TenantStats, error) {
	stats := model.TenantStats{UsersByRole: map[model.Role]int{}}
	rows, err := s.pool.Query(ctx, `
		SELECT role, count(*) FROM users WHERE university_id = $1 GROUP BY role
	`, tenantID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return stats, err
		}
		stats.UsersByRole[model.Role(role)] = count
		stats.TotalUsers += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM courses WHERE university_id = $1`, tenantID).Scan(&stats.TotalCourses)
	return stats, err
}

const principalSelect = `
	SELECT u.id, u.university_id, u.email, u.password, u.first_name, u.last_name,
	       u.first_name_ar, u.last_name_ar, u.role, u.is_active, u.is_verified,
	       u.last_login, u.preferred_language, u.created_at, u.updated_at,
	       t.id, t.name, t.name_ar, t.code, t.domain, t.is_active, t.subscription_plan,
	       t.subscription_expires_at, t.created_at, t.updated_at
	FROM users u
	LEFT JOIN universities t ON t.id = u.university_id
`

func scanPrincipal(row pgx.Row) (model.Principal, error) {
	var p model.Principal
	var (
		userTenantID, firstAr, lastAr             *string
		role, locale                              string
		tID, tName, tNameAr, tCode, tDomain, tPln *string
		tActive                                   *bool
		tExpires, tCreated, tUpdated              *time.Time
	)
	err := row.Scan(
		&p.ID, &userTenantID, &p.Email, &p.PasswordHash, &p.FirstName, &p.LastName,
		&firstAr, &lastAr, &role, &p.Active, &p.Verified,
		&p.LastLogin, &locale, &p.CreatedAt, &p.UpdatedAt,
		&tID, &tName, &tNameAr, &tCode, &tDomain, &tActive, &tPln,
		&tExpires, &tCreated, &tUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}

	p.TenantID = deref(userTenantID)
	p.FirstNameAr = deref(firstAr)
	p.LastNameAr = deref(lastAr)
	p.Role = model.Role(role)
	p.PreferredLocale = model.Locale(locale)

	if tID != nil {
		p.Tenant = &model.Tenant{
			ID:                    *tID,
			Name:                  deref(tName),
			NameAr:                deref(tNameAr),
			Code:                  deref(tCode),
			Domain:                deref(tDomain),
			Active:                tActive != nil && *tActive,
			SubscriptionPlan:      model.SubscriptionPlan(deref(tPln)),
			SubscriptionExpiresAt: tExpires,
		}
		if tCreated != nil {
			p.Tenant.CreatedAt = *tCreated
		}
		if tUpdated != nil {
			p.Tenant.UpdatedAt = *tUpdated
		}
	}
	return p, nil
}

// PrincipalByID loads the user with its owning tenant in one round trip.
func (s *Store) PrincipalByID(ctx context.Context, id string) (model.Principal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Principal{}, ErrNotFound
	}
	return scanPrincipal(s.pool.QueryRow(ctx, principalSelect+` WHERE u.id = $1`, id))
}

// PrincipalByEmail is scoped to a tenant: a user registered elsewhere is not found.
func (s *Store) PrincipalByEmail(ctx context.Context, tenantID, email string) (model.Principal, error) {
	return scanPrincipal(s.pool.QueryRow(ctx, principalSelect+` WHERE u.university_id = $1 AND lower(u.email) = $2`, tenantID, normalizeEmail(email)))
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1)`, normalizeEmail(email)).Scan(&exists)
	return exists, err
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.PreferredLocale == "" {
		u.PreferredLocale = model.LocaleArabic
	}
	u.Email = normalizeEmail(u.Email)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, university_id, email, password, first_name, last_name,
		                   first_name_ar, last_name_ar, role, is_active, is_verified, preferred_language)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, u.ID, u.TenantID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.FirstNameAr, u.LastNameAr, string(u.Role), u.Active, u.Verified, string(u.PreferredLocale),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, userID, at)
	return err
}

func (s *Store) CourseByID(ctx context.Context, id string) (model.Course, error) {
	var c model.Course
	if _, err := uuid.Parse(id); err != nil {
		return c, ErrNotFound
	}
	var instructor *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, university_id, instructor_id, course_code, title, is_active
		FROM courses WHERE id = $1
	`, id).Scan(&c.ID, &c.TenantID, &instructor, &c.Code, &c.Name, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return c, ErrNotFound
	}
	c.InstructorID = deref(instructor)
	return c, err
}

func (s *Store) Enrollment(ctx context.Context, userID, courseID string) (model.Enrollment, error) {
	e := model.Enrollment{UserID: userID, CourseID: courseID}
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT status, enrolled_at FROM enrollments WHERE user_id = $1 AND course_id = $2
	`, userID, courseID).Scan(&status, &e.EnrolledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, ErrNotFound
	}
	e.Status = model.EnrollmentStatus(status)
	return e, err
}

func (s *Store) CreateCourse(ctx context.Context, c model.Course) (model.Course, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courses (id, university_id, instructor_id, course_code, title, is_active)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6)
	`, c.ID, c.TenantID, c.InstructorID, c.Code, c.Name, c.Active)
	return c, err
}

func (s *Store) UpsertEnrollment(ctx context.Context, e model.Enrollment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (user_id, course_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO UPDATE SET status = EXCLUDED.status
	`, e.UserID, e.CourseID, string(e.Status))
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
