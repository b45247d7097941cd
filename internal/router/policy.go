package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// Access says which authentication stage guards a route.
type Access int

const (
	// Public routes run no stage. A bearer, if sent, is ignored by the
	// pipeline (logout reads it itself).
	Public Access = iota
	// Staff routes need a live user-kind session; Roles then narrows them.
	Staff
	// Client routes need a client-kind token.
	Client
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Staff:
		return "staff"
	case Client:
		return "client"
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// Policy is the declared authorization of one operation. For Staff, an
// empty Roles admits any authenticated user.
type Policy struct {
	Access      Access
	Roles       []model.Role
	RateLimited bool
}

var (
	staffRoles = []model.Role{model.RoleAdministrator, model.RoleSalesperson}
	adminOnly  = []model.Role{model.RoleAdministrator}
)

// Policies maps "METHOD path" (echo path syntax) to its policy. Every
// registered route must have exactly one entry.
var Policies = map[string]Policy{
	"GET /healthz": {Access: Public},

	"POST /v1/auth/signup": {Access: Public, RateLimited: true},
	"POST /v1/auth/login":  {Access: Public, RateLimited: true},
	"POST /v1/auth/logout": {Access: Public},

	"GET /v1/auth/me":      {Access: Staff},
	"GET /v1/auth/session": {Access: Staff, Roles: staffRoles},

	"GET /v1/admin/users/:id/session":     {Access: Staff, Roles: adminOnly},
	"DELETE /v1/admin/users/:id/sessions": {Access: Staff, Roles: adminOnly},

	"POST /v1/client/auth/login": {Access: Public, RateLimited: true},
	"GET /v1/client/me":          {Access: Client},
}

// ValidatePolicies checks that routes and policies describe the same set of
// operations, and that role lists are only used where they can apply.
func ValidatePolicies(routes []string, policies map[string]Policy) error {
	var errs []error
	seen := make(map[string]bool, len(routes))
	for _, op := range routes {
		if seen[op] {
			errs = append(errs, fmt.Errorf("route %s registered twice", op))
			continue
		}
		seen[op] = true
		p, ok := policies[op]
		if !ok {
			errs = append(errs, fmt.Errorf("route %s has no policy", op))
			continue
		}
		if p.Access != Staff && len(p.Roles) > 0 {
			errs = append(errs, fmt.Errorf("route %s: roles require staff access, got %s", op, p.Access))
		}
		for _, r := range p.Roles {
			if !r.Valid() {
				errs = append(errs, fmt.Errorf("route %s: unknown role %q", op, r))
			}
		}
	}

	var stale []string
	for op := range policies {
		if !seen[op] {
			stale = append(stale, op)
		}
	}
	sort.Strings(stale)
	for _, op := range stale {
		errs = append(errs, fmt.Errorf("policy %s matches no route", op))
	}
	return errors.Join(errs...)
}
