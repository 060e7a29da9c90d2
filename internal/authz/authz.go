// Package authz resolves role facts for an authenticated caller and gates
// admin-only routes.
package authz

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	dErrors "github.com/Fazzolix/matningsabo/pkg/domain-errors"

	"github.com/Fazzolix/matningsabo/internal/platform/middleware"
	"github.com/Fazzolix/matningsabo/internal/users"
	"github.com/Fazzolix/matningsabo/pkg/platform/httputil"
)

type Roles struct {
	IsAdmin      bool `json:"is_admin"`
	IsSuperadmin bool `json:"is_superadmin"`
}

// Resolver computes role facts from the stored user record plus the single
// configured superadmin email. Superadmin implies admin.
type Resolver struct {
	users           *users.Store
	superadminEmail string
	logger          *slog.Logger
}

func NewResolver(userStore *users.Store, superadminEmail string, logger *slog.Logger) *Resolver {
	return &Resolver{
		users:           userStore,
		superadminEmail: strings.ToLower(strings.TrimSpace(superadminEmail)),
		logger:          logger,
	}
}

func (r *Resolver) ResolveRoles(ctx context.Context, subjectID, email string) (Roles, error) {
	roles := Roles{}
	email = strings.ToLower(strings.TrimSpace(email))
	if r.superadminEmail != "" && email == r.superadminEmail {
		roles.IsSuperadmin = true
		roles.IsAdmin = true
		return roles, nil
	}
	user, err := r.users.Get(ctx, subjectID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return roles, nil
		}
		return roles, err
	}
	roles.IsAdmin = user.Roles.Admin
	return roles, nil
}

// RequireAdmin admits superadmins and users with roles.admin. A failing role
// lookup denies rather than erroring out.
func (r *Resolver) RequireAdmin(next http.Handler) http.Handler {
	return r.gate(next, func(roles Roles) bool { return roles.IsAdmin })
}

// RequireSuperadmin admits only the configured superadmin email.
func (r *Resolver) RequireSuperadmin(next http.Handler) http.Handler {
	return r.gate(next, func(roles Roles) bool { return roles.IsSuperadmin })
}

func (r *Resolver) gate(next http.Handler, allowed func(Roles) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		identity, ok := middleware.GetIdentity(req.Context())
		if !ok {
			httputil.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
			return
		}
		roles, err := r.ResolveRoles(req.Context(), identity.SubjectID, identity.Email)
		if err != nil {
			r.logger.Error("role lookup failed",
				slog.String("subject_id", identity.SubjectID),
				slog.Any("error", err))
		}
		if !allowed(roles) {
			r.logger.Warn("admin access denied",
				slog.String("path", req.URL.Path),
				slog.String("subject_id", identity.SubjectID))
			httputil.WriteJSON(w, http.StatusForbidden, map[string]string{"error": "Forbidden"})
			return
		}
		next.ServeHTTP(w, req)
	})
}
