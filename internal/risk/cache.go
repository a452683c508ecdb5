package risk

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
)

type RuleRepository interface {
	GetAllRules(ctx context.Context) ([]domain.RiskRule, error)
}

// RuleCache держит текущий классификатор в памяти. Источник правды: Postgres,
// но в Hot Path диспетчер обращается только к RAM.
type RuleCache struct {
	mu      sync.RWMutex
	current *Classifier

	repo   RuleRepository // Используется только для Refresh()
	logger *zap.Logger
}

// NewRuleCache стартует с initial (встроенная таблица или YAML), пока БД не прогрета.
func NewRuleCache(initial *Classifier, repo RuleRepository, logger *zap.Logger) *RuleCache {
	if initial == nil {
		initial = Default()
	}
	return &RuleCache{
		current: initial,
		repo:    repo,
		logger:  logger.Named("rule-cache"),
	}
}

func (c *RuleCache) Classifier() *Classifier {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Classify делегирует текущему снимку таблицы. Снимок неизменяем, поэтому
// замена во время классификации не влияет на уже начатый вызов.
func (c *RuleCache) Classify(description string) domain.RiskAssessment {
	return c.Classifier().Classify(description)
}

// Refresh выполняет «холодную загрузку» правил из БД и атомарно подменяет классификатор.
// Пустая таблица в БД не затирает текущие правила.
func (c *RuleCache) Refresh(ctx context.Context) error {
	if c.repo == nil {
		return nil
	}
	rules, err := c.repo.GetAllRules(ctx)
	if err != nil {
		return fmt.Errorf("risk: load rules: %w", err)
	}
	if len(rules) == 0 {
		c.logger.Warn("rule table in storage is empty, keeping current rules")
		return nil
	}

	next, err := NewClassifier(rules)
	if err != nil {
		return fmt.Errorf("risk: compile rules: %w", err)
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()

	c.logger.Info("rule cache refreshed", zap.Int("count", len(next.rules)))
	return nil
}

// StartListener слушает сигнал инвалидации от Console API и перечитывает таблицу.
// Блокируется до отмены ctx.
func (c *RuleCache) StartListener(ctx context.Context, rdb *redis.Client) {
	infra.ListenResilient(ctx, rdb, c.logger, infra.RedisChanRulesUpdate,
		func() error { return c.Refresh(ctx) },
		func(string) {
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("rule refresh failed", zap.Error(err))
			}
		},
	)
}
