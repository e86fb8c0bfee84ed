package middleware

import (
	"net/http"

	"github.com/voyasim/backend/internal/contextkeys"
	"github.com/voyasim/backend/internal/domain"
	"github.com/voyasim/backend/internal/handler"
)

// AdminOnly ensures the authenticated user carries the admin role.
// Must be used AFTER Auth middleware which sets contextkeys.UserRole in context.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := r.Context().Value(contextkeys.UserRole).(string)
		if !ok || role != domain.RoleAdmin {
			handler.Error(w, domain.ErrForbidden("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
