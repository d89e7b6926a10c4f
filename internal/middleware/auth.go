// Package middleware содержит HTTP middleware банковского портала.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/bankportal/internal/token"
)

type contextKey string

const (
	claimsKey contextKey = "claims"
	tokenKey  contextKey = "token"
)

// TokenVerifier проверяет подпись, срок действия и отзыв токена.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// SessionToucher отмечает активность пользователя в реестре сессий.
type SessionToucher interface {
	Touch(ctx context.Context, userID string) error
}

// AuthMiddleware выполняет проверку Bearer-токена.
type AuthMiddleware struct {
	tokens   TokenVerifier
	sessions SessionToucher
	logger   *zap.Logger
}

// NewAuthMiddleware создаёт middleware аутентификации. sessions может быть nil.
func NewAuthMiddleware(tokens TokenVerifier, sessions SessionToucher, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		tokens:   tokens,
		sessions: sessions,
		logger:   logger,
	}
}

// Middleware проверяет заголовок Authorization и добавляет claims в контекст запроса.
// Отсутствующий, недействительный и отозванный токен различаются только в журнале.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)

		claims, err := a.tokens.Verify(r.Context(), raw)
		if err != nil {
			reason := "invalid"
			switch {
			case errors.Is(err, token.ErrNoToken):
				reason = "missing"
			case errors.Is(err, token.ErrRevoked):
				reason = "revoked"
			}
			a.logger.Info("authentication failed",
				zap.String("reason", reason),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)

			msg := "Invalid or expired token"
			if reason == "missing" {
				msg = "Access denied. No token provided"
			}
			writeFailure(w, http.StatusUnauthorized, map[string]any{"success": false, "message": msg})
			return
		}

		if a.sessions != nil {
			if err := a.sessions.Touch(r.Context(), claims.UserID); err != nil {
				a.logger.Debug("session touch failed", zap.String("user_id", claims.UserID), zap.Error(err))
			}
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, tokenKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken извлекает токен из заголовка Authorization.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// GetClaimsFromContext извлекает claims аутентифицированного пользователя.
func GetClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*token.Claims)
	return c, ok && c != nil
}

// GetTokenFromContext извлекает предъявленный токен.
func GetTokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok
}

// WithClaims помещает claims в контекст. Используется в тестах обработчиков.
func WithClaims(ctx context.Context, claims *token.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, tokenKey, raw)
}

func writeFailure(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
