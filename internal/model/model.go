package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleUniversityAdmin   Role = "university_admin"
	RoleDean              Role = "dean"
	RoleProfessor         Role = "professor"
	RoleTeachingAssistant Role = "teaching_assistant"
	RoleStudent           Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleUniversityAdmin, RoleDean, RoleProfessor, RoleTeachingAssistant, RoleStudent:
		return true
	default:
		return false
	}
}

func ParseRole(value string) (Role, bool) {
	role := Role(strings.TrimSpace(strings.ToLower(value)))
	return role, role.Valid()
}

// SelfRegistrable reports whether a role may be chosen at public registration.
func (r Role) SelfRegistrable() bool {
	switch r {
	case RoleStudent, RoleProfessor, RoleTeachingAssistant:
		return true
	default:
		return false
	}
}

type SubscriptionPlan string

const (
	PlanBasic      SubscriptionPlan = "basic"
	PlanPremium    SubscriptionPlan = "premium"
	PlanEnterprise SubscriptionPlan = "enterprise"
)

func (p SubscriptionPlan) Valid() bool {
	switch p {
	case PlanBasic, PlanPremium, PlanEnterprise:
		return true
	default:
		return false
	}
}

type Locale string

const (
	LocaleArabic  Locale = "ar"
	LocaleEnglish Locale = "en"
)

// Tenant is a university.
type Tenant struct {
	ID                    string
	Name                  string
	NameAr                string
	Code                  string
	Domain                string
	Active                bool
	SubscriptionPlan      SubscriptionPlan
	SubscriptionExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type User struct {
	ID              string
	TenantID        string
	Email           string
	PasswordHash    *string
	FirstName       string
	LastName        string
	FirstNameAr     string
	LastNameAr      string
	Role            Role
	Active          bool
	Verified        bool
	LastLogin       *time.Time
	PreferredLocale Locale
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Principal is a user loaded together with its owning tenant. Tenant is nil
// when the user carries no tenant binding.
type Principal struct {
	User
	Tenant *Tenant
}

type Course struct {
	ID           string
	TenantID     string
	InstructorID string
	Code         string
	Name         string
	Active       bool
}

type EnrollmentStatus string

const (
	EnrollmentEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentFailed    EnrollmentStatus = "failed"
)

type Enrollment struct {
	UserID     string
	CourseID   string
	Status     EnrollmentStatus
	EnrolledAt time.Time
}

func (e Enrollment) Active() bool {
	return e.Status == EnrollmentEnrolled
}

type TenantFilter struct {
	Active *bool
	Search string
	Page   int
	Limit  int
}

type TenantStats struct {
	UsersByRole  map[Role]int
	TotalUsers   int
	TotalCourses int
}
