// Package tenant resolves which university a request is addressed to.
package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"elearning/internal/apperr"
	"elearning/internal/model"
	"elearning/internal/repository"
)

const (
	HeaderDomain   = "X-University-Domain"
	HeaderTenantID = "X-University-ID"
	HeaderName     = "X-University-Name"
)

type Directory interface {
	TenantByDomain(ctx context.Context, domain string) (model.Tenant, error)
}

type Resolver struct {
	dir      Directory
	reserved map[string]struct{}
	bypass   []string
}

func NewResolver(dir Directory, reservedSubdomains, bypassPaths []string) *Resolver {
	reserved := make(map[string]struct{}, len(reservedSubdomains))
	for _, label := range reservedSubdomains {
		reserved[strings.ToLower(strings.TrimSpace(label))] = struct{}{}
	}
	return &Resolver{dir: dir, reserved: reserved, bypass: bypassPaths}
}

// Bypassed reports whether path contains an allowlisted pattern on a segment
// boundary, so "/auth/login" also matches "/api/v1/auth/login".
func (r *Resolver) Bypassed(path string) bool {
	path = strings.TrimSuffix(path, "/") + "/"
	for _, pattern := range r.bypass {
		pattern = "/" + strings.Trim(pattern, "/") + "/"
		if strings.Contains(path, pattern) {
			return true
		}
	}
	return false
}

// Candidate returns the first domain key found, in order: header, host
// subdomain, body field. It returns "" when the request names no tenant.
func (r *Resolver) Candidate(req *http.Request, bodyDomain string) string {
	if domain := strings.TrimSpace(req.Header.Get(HeaderDomain)); domain != "" {
		return strings.ToLower(domain)
	}
	if label := r.subdomain(req.Host); label != "" {
		return label
	}
	return strings.ToLower(strings.TrimSpace(bodyDomain))
}

func (r *Resolver) subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(strings.ToLower(host), ".")
	if len(labels) < 3 {
		return ""
	}
	if _, ok := r.reserved[labels[0]]; ok || labels[0] == "" {
		return ""
	}
	return labels[0]
}

// Resolve returns the active tenant named by req. A nil tenant with a nil
// error means the request carries no candidate at all.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request, bodyDomain string) (*model.Tenant, error) {
	domain := r.Candidate(req, bodyDomain)
	if domain == "" {
		return nil, nil
	}
	t, err := r.dir.TenantByDomain(ctx, domain)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindTenantNotFound, "", err)
	}
	if err != nil {
		return nil, err
	}
	if !t.Active {
		return nil, apperr.New(apperr.KindTenantNotFound, "")
	}
	return &t, nil
}

// SetHeaders advertises the resolved tenant on the response.
func SetHeaders(w http.ResponseWriter, t *model.Tenant) {
	if t == nil {
		return
	}
	w.Header().Set(HeaderTenantID, t.ID)
	w.Header().Set(HeaderName, t.Name)
}

type tenantKey struct{}

func WithTenant(ctx context.Context, t *model.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

func FromContext(ctx context.Context) *model.Tenant {
	t, _ := ctx.Value(tenantKey{}).(*model.Tenant)
	return t
}
