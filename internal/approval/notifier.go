package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
)

// Notice — то, что оператор видит в промпте подтверждения.
type Notice struct {
	ApprovalID  string           `json:"approval_id"`
	TaskID      string           `json:"task_id"`
	Description string           `json:"description"`
	Level       domain.RiskLevel `json:"level"`
	Indicators  []string         `json:"indicators"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

func noticeFor(req *domain.ApprovalRequest) Notice {
	return Notice{
		ApprovalID:  req.ID,
		TaskID:      req.TaskID,
		Description: req.Description,
		Level:       req.Level,
		Indicators:  req.Indicators,
		ExpiresAt:   req.ExpiresAt,
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// LogNotifier пишет запрос в журнал. Для локального запуска без Redis.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("approval-notifier")}
}

func (n *LogNotifier) Notify(_ context.Context, notice Notice) error {
	n.logger.Warn("approval required",
		zap.String("approval_id", notice.ApprovalID),
		zap.String("task_id", notice.TaskID),
		zap.String("level", string(notice.Level)),
		zap.Strings("indicators", notice.Indicators),
		zap.String("task", notice.Description),
		zap.Time("expires_at", notice.ExpiresAt),
	)
	return nil
}

// RedisNotifier публикует запрос в общий канал, на который подписаны консоль и UI.
type RedisNotifier struct {
	rdb *redis.Client
}

func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

func (n *RedisNotifier) Notify(ctx context.Context, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("approval: encode notice: %w", err)
	}
	if err := n.rdb.Publish(ctx, infra.RedisChanApprovalRequests, payload).Err(); err != nil {
		return fmt.Errorf("approval: publish notice: %w", err)
	}
	return nil
}

// MultiNotifier рассылает уведомление всем получателям. Ошибка любого из них
// считается поломкой канала уведомлений.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, notice Notice) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifierFunc — адаптер для тестов и простых хуков.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }
