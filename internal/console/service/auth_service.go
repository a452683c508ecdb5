package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type AuthProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// TokenIssuer подписывает токен закрытым ключом (auth.Signer).
type TokenIssuer interface {
	Issue(user *domain.User) (*domain.TokenResponse, error)
}

type AuthService struct {
	repo   AuthProvider
	issuer TokenIssuer
}

func NewAuthService(repo AuthProvider, issuer TokenIssuer) *AuthService {
	return &AuthService{
		repo:   repo,
		issuer: issuer,
	}
}

func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// 1. Аутентификация (источник правды: Postgres)
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("auth_service: lookup user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	// 2. Проверка пароля
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	// 3. Scopes берем из прав пользователя в БД, подпись RS256
	return s.issuer.Issue(user)
}

// HashPassword используется при заведении операторов.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth_service: hash password: %w", err)
	}
	return string(hash), nil
}
