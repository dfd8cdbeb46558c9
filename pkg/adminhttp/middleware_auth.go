package adminhttp

import (
	"net/http"
	"strings"

	"github.com/dd0wney/bloomd/pkg/auth"
)

// requireAdmin validates a Bearer JWT before allowing a mutating route
// (drop, flush) through. Read-only routes (list, info, conf) stay open so
// monitoring tools can poll them without a token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			s.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimPrefix(authHeader, prefix)
		claims, err := s.jwtManager.ValidateToken(r.Context(), token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if claims.Role != auth.RoleAdmin {
			s.respondError(w, http.StatusForbidden, "admin role required")
			return
		}

		next.ServeHTTP(w, r)
	}
}
