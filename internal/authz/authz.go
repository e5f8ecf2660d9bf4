// Package authz holds the checks that decide whether an authenticated
// principal may act on a route or resource.
package authz

import (
	"context"
	"errors"
	"fmt"

	"elearning/internal/apperr"
	"elearning/internal/model"
	"elearning/internal/repository"
)

// Request is everything a check may look at. ResourceID is the course id for
// course checks and is empty otherwise.
type Request struct {
	Principal  *model.Principal
	Tenant     *model.Tenant
	ResourceID string
}

type Authorizer interface {
	Authorize(ctx context.Context, req Request) error
}

type Func func(ctx context.Context, req Request) error

func (f Func) Authorize(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// All runs checks in order and stops at the first failure.
func All(checks ...Authorizer) Authorizer {
	return Func(func(ctx context.Context, req Request) error {
		for _, check := range checks {
			if err := check.Authorize(ctx, req); err != nil {
				return err
			}
		}
		return nil
	})
}

// Roles admits principals holding any of roles.
func Roles(roles ...model.Role) Authorizer {
	allowed := make(map[model.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return Func(func(_ context.Context, req Request) error {
		if req.Principal == nil {
			return apperr.New(apperr.KindMissingCredential, "")
		}
		if _, ok := allowed[req.Principal.Role]; !ok {
			return apperr.RoleForbidden(string(req.Principal.Role))
		}
		return nil
	})
}

// TenantScope requires the principal to belong to the resolved tenant.
// Super admins pass; a request with no resolved tenant fails closed for
// everyone else.
func TenantScope() Authorizer {
	return Func(func(_ context.Context, req Request) error {
		if req.Principal == nil {
			return apperr.New(apperr.KindMissingCredential, "")
		}
		if req.Principal.Role == model.RoleSuperAdmin {
			return nil
		}
		if req.Tenant == nil || req.Principal.TenantID != req.Tenant.ID {
			return apperr.New(apperr.KindCrossTenantAccessDenied, "")
		}
		return nil
	})
}

type CourseStore interface {
	CourseByID(ctx context.Context, id string) (model.Course, error)
	Enrollment(ctx context.Context, userID, courseID string) (model.Enrollment, error)
}

// CourseAccess admits administrators and the course's instructor. Students
// need an active enrollment. Each branch does at most one lookup.
func CourseAccess(store CourseStore) Authorizer {
	return Func(func(ctx context.Context, req Request) error {
		p := req.Principal
		if p == nil {
			return apperr.New(apperr.KindMissingCredential, "")
		}
		if req.ResourceID == "" {
			return apperr.New(apperr.KindMissingResourceIdentifier, "")
		}
		switch p.Role {
		case model.RoleSuperAdmin, model.RoleUniversityAdmin:
			return nil
		}

		course, err := store.CourseByID(ctx, req.ResourceID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Wrap(apperr.KindResourceNotFound, apperr.MsgCourseNotFound, err)
		}
		if err != nil {
			return err
		}
		if course.TenantID != p.TenantID {
			return apperr.New(apperr.KindCrossTenantAccessDenied, apperr.MsgCourseOtherTenant)
		}

		switch p.Role {
		case model.RoleProfessor:
			if course.InstructorID == p.ID {
				return nil
			}
			return apperr.RoleForbidden(string(p.Role))
		case model.RoleStudent:
			enrollment, err := store.Enrollment(ctx, p.ID, course.ID)
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.New(apperr.KindNotEnrolled, "")
			}
			if err != nil {
				return err
			}
			if !enrollment.Active() {
				return apperr.New(apperr.KindNotEnrolled, "")
			}
			return nil
		case model.RoleDean, model.RoleTeachingAssistant:
			return apperr.RoleForbidden(string(p.Role))
		default:
			return apperr.Wrap(apperr.KindInternal, "", fmt.Errorf("unknown role %q", p.Role))
		}
	})
}
