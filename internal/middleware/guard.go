package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/user"
	"github.com/conthop/backend/internal/app/storage"
	svcerrors "github.com/conthop/backend/internal/errors"
	internalhttputil "github.com/conthop/backend/internal/httputil"
	"github.com/conthop/backend/internal/logging"
)

// Guard authorizes authenticated requests against the stored user row.
// Token claims are never trusted for role or status.
type Guard struct {
	users  storage.UserStore
	plans  storage.PlanStore
	logger *logging.Logger
}

// NewGuard creates a guard.
func NewGuard(users storage.UserStore, plans storage.PlanStore, logger *logging.Logger) *Guard {
	return &Guard{users: users, plans: plans, logger: logger}
}

// CurrentUser loads the stored row of the authenticated caller.
func (g *Guard) CurrentUser(ctx context.Context) (user.User, error) {
	p := auth.PrincipalFrom(ctx)
	if p == nil {
		return user.User{}, svcerrors.Unauthorized("Authentication required")
	}
	u, err := g.users.GetUser(ctx, p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, svcerrors.Unauthorized("User no longer exists")
	}
	if err != nil {
		return user.User{}, svcerrors.Internal("Failed to verify user", err)
	}
	return u, nil
}

// RequireAdmin admits callers whose stored role is admin.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.CurrentUser(r.Context())
		if err != nil {
			g.deny(w, r, err, "admin")
			return
		}
		if !u.IsAdmin() {
			g.deny(w, r, svcerrors.Forbidden("Admin access required"), "admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireActiveAccount admits callers whose stored status is active.
func (g *Guard) RequireActiveAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := g.CurrentUser(r.Context())
		if err != nil {
			g.deny(w, r, err, "active_account")
			return
		}
		if !u.IsActive() {
			g.deny(w, r, svcerrors.Forbidden("Your account is "+string(u.Status)), "active_account")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePlanMembership admits members of the plan named by the route
// variable. Admins pass regardless of membership.
func (g *Guard) RequirePlanMembership(routeVar string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := g.CurrentUser(r.Context())
			if err != nil {
				g.deny(w, r, err, "plan_membership")
				return
			}
			if u.IsAdmin() {
				next.ServeHTTP(w, r)
				return
			}
			code := strings.ToLower(strings.TrimSpace(mux.Vars(r)[routeVar]))
			ok, err := g.plans.HasPlanMembership(r.Context(), u.ID, code)
			if err != nil {
				g.deny(w, r, svcerrors.Internal("Failed to verify plan membership", err), "plan_membership")
				return
			}
			if !ok {
				g.deny(w, r, svcerrors.Forbidden("You are not a member of this plan"), "plan_membership")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) deny(w http.ResponseWriter, r *http.Request, err error, check string) {
	serviceErr := svcerrors.GetServiceError(err)
	if serviceErr != nil && serviceErr.Code == svcerrors.CodeInternal {
		g.logger.WithContext(r.Context()).WithError(err).WithField("check", check).Error("authorization check failed")
	} else {
		g.logger.LogSecurityEvent(r.Context(), "access_denied", map[string]interface{}{
			"check":  check,
			"path":   r.URL.Path,
			"method": r.Method,
		})
	}
	internalhttputil.WriteServiceError(w, r, err)
}
