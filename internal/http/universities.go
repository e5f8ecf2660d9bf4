package http

import (
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"elearning/internal/apperr"
	"elearning/internal/auth"
	"elearning/internal/model"
	"elearning/internal/repository"
)

var (
	universityCodePattern   = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	universityDomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)
)

type universityView struct {
	ID                    string                 `json:"id"`
	Name                  string                 `json:"name"`
	NameAr                string                 `json:"name_ar,omitempty"`
	Code                  string                 `json:"code"`
	Domain                string                 `json:"domain"`
	Active                bool                   `json:"is_active"`
	SubscriptionPlan      model.SubscriptionPlan `json:"subscription_plan"`
	SubscriptionExpiresAt *time.Time             `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	Stats                 *universityStatsView   `json:"stats,omitempty"`
}

type universityStatsView struct {
	Users        map[model.Role]int `json:"users,omitempty"`
	TotalUsers   int                `json:"total_users"`
	TotalCourses int                `json:"total_courses"`
}

type pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type universityRequest struct {
	Name                  *string    `json:"name"`
	NameAr                *string    `json:"name_ar"`
	Code                  *string    `json:"code"`
	Domain                *string    `json:"domain"`
	Active                *bool      `json:"is_active"`
	SubscriptionPlan      *string    `json:"subscription_plan"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
}

func toUniversityView(t model.Tenant) universityView {
	return universityView{
		ID:                    t.ID,
		Name:                  t.Name,
		NameAr:                t.NameAr,
		Code:                  t.Code,
		Domain:                t.Domain,
		Active:                t.Active,
		SubscriptionPlan:      t.SubscriptionPlan,
		SubscriptionExpiresAt: t.SubscriptionExpiresAt,
		CreatedAt:             t.CreatedAt,
		UpdatedAt:             t.UpdatedAt,
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, *apperr.FieldError) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, &apperr.FieldError{Field: key, Message: key + " must be a positive integer"}
	}
	return value, nil
}

func (s *Server) handleListUniversities(w http.ResponseWriter, r *http.Request) {
	filter := model.TenantFilter{Search: strings.TrimSpace(r.URL.Query().Get("search"))}
	var fields []apperr.FieldError

	switch active := r.URL.Query().Get("active"); active {
	case "":
	case "true", "false":
		value := active == "true"
		filter.Active = &value
	default:
		fields = append(fields, apperr.FieldError{Field: "active", Message: "active must be true or false"})
	}

	var fieldErr *apperr.FieldError
	if filter.Page, fieldErr = queryInt(r, "page", 1); fieldErr != nil {
		fields = append(fields, *fieldErr)
	}
	if filter.Limit, fieldErr = queryInt(r, "limit", 10); fieldErr != nil {
		fields = append(fields, *fieldErr)
	}
	if len(fields) > 0 {
		s.fail(w, r, apperr.Validation(fields...))
		return
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}

	tenants, total, err := s.store.ListTenants(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]universityView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, toUniversityView(t))
	}
	writeJSON(w, http.StatusOK, apperr.Envelope{
		Success: true,
		Data: map[string]interface{}{
			"universities": views,
			"pagination": pagination{
				Total: total,
				Page:  filter.Page,
				Limit: filter.Limit,
				Pages: int(math.Ceil(float64(total) / float64(filter.Limit))),
			},
		},
	})
}

func (s *Server) loadUniversity(r *http.Request) (model.Tenant, error) {
	t, err := s.store.TenantByID(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		return t, apperr.Wrap(apperr.KindResourceNotFound, apperr.MsgTenantMissing, err)
	}
	return t, err
}

func (s *Server) handleGetUniversity(w http.ResponseWriter, r *http.Request) {
	t, err := s.loadUniversity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.store.TenantStats(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view := toUniversityView(t)
	view.Stats = &universityStatsView{TotalUsers: stats.TotalUsers, TotalCourses: stats.TotalCourses}
	writeJSON(w, http.StatusOK, apperr.Envelope{
		Success: true,
		Data:    map[string]interface{}{"university": view},
	})
}

func validateUniversity(t model.Tenant) []apperr.FieldError {
	var fields []apperr.FieldError
	if strings.TrimSpace(t.Name) == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "Name is required"})
	}
	if strings.TrimSpace(t.NameAr) == "" {
		fields = append(fields, apperr.FieldError{Field: "name_ar", Message: "Arabic name is required"})
	}
	if !universityCodePattern.MatchString(t.Code) {
		fields = append(fields, apperr.FieldError{Field: "code", Message: "Code must be 2 to 10 uppercase letters or digits"})
	}
	if !universityDomainPattern.MatchString(t.Domain) {
		fields = append(fields, apperr.FieldError{Field: "domain", Message: "Please provide a valid domain"})
	}
	if !t.SubscriptionPlan.Valid() {
		fields = append(fields, apperr.FieldError{Field: "subscription_plan", Message: "Subscription plan must be basic, premium or enterprise"})
	}
	return fields
}

// apply copies the fields present in req onto t. Callers that are not super
// admins cannot change the identity or billing fields.
func (req universityRequest) apply(t *model.Tenant, privileged bool) {
	if req.Name != nil {
		t.Name = strings.TrimSpace(*req.Name)
	}
	if req.NameAr != nil {
		t.NameAr = strings.TrimSpace(*req.NameAr)
	}
	if !privileged {
		return
	}
	if req.Code != nil {
		t.Code = strings.TrimSpace(*req.Code)
	}
	if req.Domain != nil {
		t.Domain = strings.ToLower(strings.TrimSpace(*req.Domain))
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if req.SubscriptionPlan != nil {
		t.SubscriptionPlan = model.SubscriptionPlan(strings.TrimSpace(*req.SubscriptionPlan))
	}
	if req.SubscriptionExpiresAt != nil {
		t.SubscriptionExpiresAt = req.SubscriptionExpiresAt
	}
}

func (s *Server) handleCreateUniversity(w http.ResponseWriter, r *http.Request) {
	var req universityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	t := model.Tenant{Active: true, SubscriptionPlan: model.PlanBasic}
	req.apply(&t, true)
	if fields := validateUniversity(t); len(fields) > 0 {
		s.fail(w, r, apperr.Validation(fields...))
		return
	}

	created, err := s.store.CreateTenant(r.Context(), t)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	actor := auth.PrincipalFromContext(r.Context())
	s.logger.Info("university created",
		zap.String("university_id", created.ID),
		zap.String("domain", created.Domain),
		zap.String("actor_id", actor.ID),
	)
	writeSuccess(w, http.StatusCreated, apperr.MsgTenantCreated, map[string]interface{}{
		"university": toUniversityView(created),
	})
}

// ownUniversity rejects university admins acting on another university.
func ownUniversity(p *model.Principal, universityID string) error {
	if p.Role == model.RoleUniversityAdmin && p.TenantID != universityID {
		return apperr.New(apperr.KindCrossTenantAccessDenied, apperr.MsgAccessDenied)
	}
	return nil
}

func (s *Server) handleUpdateUniversity(w http.ResponseWriter, r *http.Request) {
	actor := auth.PrincipalFromContext(r.Context())
	t, err := s.loadUniversity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ownUniversity(actor, t.ID); err != nil {
		s.fail(w, r, err)
		return
	}

	var req universityRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	previousDomain := t.Domain
	req.apply(&t, actor.Role == model.RoleSuperAdmin)
	if fields := validateUniversity(t); len(fields) > 0 {
		s.fail(w, r, apperr.Validation(fields...))
		return
	}

	updated, err := s.store.UpdateTenant(r.Context(), t)
	if errors.Is(err, repository.ErrNotFound) {
		err = apperr.Wrap(apperr.KindResourceNotFound, apperr.MsgTenantMissing, err)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.cache != nil {
		s.cache.Invalidate(r.Context(), previousDomain)
		if updated.Domain != previousDomain {
			s.cache.Invalidate(r.Context(), updated.Domain)
		}
	}
	s.logger.Info("university updated",
		zap.String("university_id", updated.ID),
		zap.String("actor_id", actor.ID),
	)
	writeSuccess(w, http.StatusOK, apperr.MsgTenantUpdated, map[string]interface{}{
		"university": toUniversityView(updated),
	})
}

func (s *Server) handleUniversityStats(w http.ResponseWriter, r *http.Request) {
	actor := auth.PrincipalFromContext(r.Context())
	t, err := s.loadUniversity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ownUniversity(actor, t.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.store.TenantStats(r.Context(), t.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apperr.Envelope{
		Success: true,
		Data: map[string]interface{}{
			"stats": universityStatsView{
				Users:        stats.UsersByRole,
				TotalUsers:   stats.TotalUsers,
				TotalCourses: stats.TotalCourses,
			},
		},
	})
}
