package middleware

import (
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/model"
)

// RequireRole пропускает запрос, только если роль из токена входит в allowed.
// Каждое решение записывается в журнал аудита.
func RequireRole(logger *zap.Logger, allowed ...model.Role) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaimsFromContext(r.Context())
			if !ok {
				logger.Warn("access denied",
					zap.String("reason", "not_authenticated"),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				writeFailure(w, http.StatusUnauthorized, map[string]any{
					"success": false,
					"message": "Authentication required",
				})
				return
			}

			fields := []zap.Field{
				zap.String("user_id", claims.UserID),
				zap.String("username", claims.Username),
				zap.String("role", string(claims.Role)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			}

			if claims.Role == "" {
				logger.Warn("access denied", append(fields, zap.String("reason", "no_role"))...)
				writeFailure(w, http.StatusForbidden, map[string]any{
					"success": false,
					"message": "No role assigned",
				})
				return
			}

			if !slices.Contains(allowed, claims.Role) {
				logger.Warn("access denied", append(fields, zap.String("reason", "insufficient_role"))...)
				writeFailure(w, http.StatusForbidden, map[string]any{
					"success":  false,
					"message":  "Insufficient permissions",
					"required": allowed,
					"current":  claims.Role,
				})
				return
			}

			logger.Info("access granted", fields...)
			next.ServeHTTP(w, r)
		})
	}
}
