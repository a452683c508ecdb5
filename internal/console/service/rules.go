package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
)

// RuleRepository описывает требования сервиса к хранилищу таблицы индикаторов
type RuleRepository interface {
	GetRule(ctx context.Context, id string) (*domain.RiskRule, error)
	GetAllRules(ctx context.Context) ([]domain.RiskRule, error)
	CreateRule(ctx context.Context, rule *domain.RiskRule) error
	UpdateRule(ctx context.Context, rule *domain.RiskRule) error
	DeleteRule(ctx context.Context, id string) error
}

type RuleService struct {
	repo   RuleRepository
	rdb    *redis.Client // nil: шлюз перечитает таблицу только при рестарте
	logger *zap.Logger
}

func NewRuleService(repo RuleRepository, rdb *redis.Client, logger *zap.Logger) *RuleService {
	return &RuleService{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("rule-service"),
	}
}

func (s *RuleService) GetByID(ctx context.Context, id string) (*domain.RiskRule, error) {
	return s.repo.GetRule(ctx, id)
}

func (s *RuleService) GetAll(ctx context.Context) ([]domain.RiskRule, error) {
	return s.repo.GetAllRules(ctx)
}

// Create сохраняет правило и уведомляет шлюзы об обновлении
func (s *RuleService) Create(ctx context.Context, rule *domain.RiskRule) error {
	if err := normalize(rule); err != nil {
		return err
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *RuleService) Update(ctx context.Context, rule *domain.RiskRule) error {
	if err := normalize(rule); err != nil {
		return err
	}
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

func (s *RuleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteRule(ctx, id); err != nil {
		return err
	}
	return s.notifyUpdate(ctx)
}

// ValidationError — правило отклонено до записи в БД.
type ValidationError struct{ Err error }

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func normalize(rule *domain.RiskRule) error {
	if err := rule.Validate(); err != nil {
		return &ValidationError{Err: err}
	}
	level, _ := domain.ParseRiskLevel(string(rule.Severity))
	rule.Severity = level
	return nil
}

// notifyUpdate отправляет широковещательный сигнал в Redis.
// Все инстансы шлюза, подписанные на канал, вызовут Refresh() своего RuleCache.
func (s *RuleService) notifyUpdate(ctx context.Context) error {
	if s.rdb == nil {
		s.logger.Warn("redis disabled, gateways will pick up rule changes on restart")
		return nil
	}
	if err := s.rdb.Publish(ctx, infra.RedisChanRulesUpdate, "refresh").Err(); err != nil {
		return fmt.Errorf("rule_service: publish update: %w", err)
	}
	return nil
}
