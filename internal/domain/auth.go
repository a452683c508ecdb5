package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeApprover — право принимать решения по очереди HITL.
const (
	ScopeAdmin    = "admin"
	ScopeApprover = "approvals.decide"
	ScopeRules    = "rules.write"
	ScopeSubmit   = "tasks.submit" // Data plane, если включена проверка токенов
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "admin": true или "approvals.decide": true
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
}
