package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers map[string]*domain.User

func (f fakeUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	if username == "broken" {
		return nil, errors.New("db down")
	}
	return f[username], nil
}

type stubIssuer struct{ issued []*domain.User }

func (s *stubIssuer) Issue(user *domain.User) (*domain.TokenResponse, error) {
	s.issued = append(s.issued, user)
	return &domain.TokenResponse{AccessToken: "token-" + user.ID, TokenType: "Bearer"}, nil
}

func TestAuthService_GenerateToken(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)

	users := fakeUsers{"alice": {ID: "u1", Username: "alice", PasswordHash: hash}}
	issuer := &stubIssuer{}
	svc := NewAuthService(users, issuer)

	resp, err := svc.GenerateToken(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "token-u1", resp.AccessToken)

	_, err = svc.GenerateToken(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(context.Background(), "ghost", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(context.Background(), "broken", "s3cret")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	assert.Len(t, issuer.issued, 1)
}

type memRules struct {
	rules []domain.RiskRule
}

func (m *memRules) GetRule(_ context.Context, id string) (*domain.RiskRule, error) {
	for _, r := range m.rules {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrRuleNotFound
}

func (m *memRules) GetAllRules(context.Context) ([]domain.RiskRule, error) {
	return m.rules, nil
}

func (m *memRules) CreateRule(_ context.Context, rule *domain.RiskRule) error {
	rule.ID = "r" + string(rune('0'+len(m.rules)))
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *memRules) UpdateRule(_ context.Context, rule *domain.RiskRule) error {
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			return nil
		}
	}
	return domain.ErrRuleNotFound
}

func (m *memRules) DeleteRule(_ context.Context, id string) error {
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return domain.ErrRuleNotFound
}

func TestRuleService_ValidatesAndNormalizes(t *testing.T) {
	repo := &memRules{}
	svc := NewRuleService(repo, nil, zap.NewNop())
	ctx := context.Background()

	rule := &domain.RiskRule{Pattern: "wire money", Severity: " high ", Category: "transfer"}
	require.NoError(t, svc.Create(ctx, rule))
	assert.Equal(t, domain.RiskHigh, repo.rules[0].Severity)

	err := svc.Create(ctx, &domain.RiskRule{Pattern: "  ", Severity: domain.RiskLow})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	err = svc.Update(ctx, &domain.RiskRule{ID: rule.ID, Pattern: "wire money", Severity: "CRITICAL"})
	assert.ErrorAs(t, err, &verr)

	rule.Severity = domain.RiskMedium
	require.NoError(t, svc.Update(ctx, rule))
	got, err := svc.GetByID(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RiskMedium, got.Severity)

	require.NoError(t, svc.Delete(ctx, rule.ID))
	assert.ErrorIs(t, svc.Delete(ctx, rule.ID), domain.ErrRuleNotFound)
}
