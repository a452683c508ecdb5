package auth

import (
	"context"
	"net/http"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator — интерфейс проверки токенов консоли
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const (
	scopesKey ctxKey = "user_scopes"
	userIDKey ctxKey = "user_id"
)

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims.UserID, claims.Scopes)))
		})
	}
}

// RequireScope пропускает запрос, только если в токене есть scope или admin.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scopes := ScopesFromContext(r.Context())
			if !scopes[scope] && !scopes[domain.ScopeAdmin] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims кладет данные пользователя в контекст (используется и в тестах хендлеров).
func WithClaims(ctx context.Context, userID string, scopes map[string]bool) context.Context {
	ctx = context.WithValue(ctx, scopesKey, scopes)
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func ScopesFromContext(ctx context.Context) map[string]bool {
	scopes, _ := ctx.Value(scopesKey).(map[string]bool)
	return scopes
}
