package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

// ErrNotDelivered — решение сохранено, но сигнал до ждущего гейта не дошел.
// Гейт в этом случае завершится по своему таймауту.
var ErrNotDelivered = errors.New("decision saved but signal not delivered")

const dismissComment = "dismissed by operator"

// Service — операторская сторона HITL: очередь, решения, уборка.
type Service struct {
	store  Store
	broker Broker
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, broker Broker, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		broker: broker,
		logger: logger.Named("approval-service"),
		now:    time.Now,
	}
}

// Decide фиксирует решение оператора. reviewerID нужен для подотчетности.
func (s *Service) Decide(ctx context.Context, id string, approved bool, reviewerID, comment string) (*domain.ApprovalRequest, error) {
	status := domain.StatusDenied
	if approved {
		status = domain.StatusApproved
	}
	return s.finalize(ctx, id, status, reviewerID, comment)
}

// Dismiss — оператор закрыл промпт, не ответив. Трактуется как отказ.
func (s *Service) Dismiss(ctx context.Context, id, reviewerID string) (*domain.ApprovalRequest, error) {
	return s.finalize(ctx, id, domain.StatusDenied, reviewerID, dismissComment)
}

func (s *Service) finalize(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string) (*domain.ApprovalRequest, error) {
	// 1. Атомарно обновляем хранилище: второе решение получит ErrAlreadyProcessed
	req, err := s.store.Resolve(ctx, id, status, reviewerID, comment, s.now())
	if err != nil {
		s.logger.Warn("failed to persist approval decision",
			zap.String("approval_id", id),
			zap.String("reviewer_id", reviewerID),
			zap.Error(err))
		return nil, fmt.Errorf("approval %s: %w", id, err)
	}

	// 2. Будим горутину, ждущую на гейте
	decision, _ := req.Status.Decision()
	verdict := domain.Verdict{ApprovalID: id, Decision: decision, ReviewerID: reviewerID, Comment: comment}
	if err := s.broker.Publish(ctx, verdict); err != nil {
		s.logger.Error("critical: decision saved but signal not delivered",
			zap.String("approval_id", id),
			zap.Error(err))
		return req, fmt.Errorf("%w: %v", ErrNotDelivered, err)
	}

	s.logger.Info("HITL decision processed",
		zap.String("approval_id", id),
		zap.String("task_id", req.TaskID),
		zap.String("reviewer", reviewerID),
		zap.String("result", string(req.Status)))
	return req, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	return s.store.Get(ctx, id)
}

// List принимает статус в любом регистре; пустой статус: все заявки.
func (s *Service) List(ctx context.Context, status string) ([]*domain.ApprovalRequest, error) {
	st := domain.ApprovalStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch st {
	case "", domain.StatusPending, domain.StatusApproved, domain.StatusDenied, domain.StatusTimedOut:
	default:
		return nil, fmt.Errorf("unknown approval status %q", status)
	}
	return s.store.List(ctx, st)
}

// ExpirePending закрывает заявки, чей гейт уже не ждет (например, после рестарта процесса).
func (s *Service) ExpirePending(ctx context.Context) (int, error) {
	ids, err := s.store.ExpirePending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("approval: expire pending: %w", err)
	}
	for _, id := range ids {
		_ = s.broker.Publish(ctx, domain.Verdict{ApprovalID: id, Decision: domain.DecisionTimedOut})
	}
	if len(ids) > 0 {
		s.logger.Info("expired stale approval requests", zap.Int("count", len(ids)))
	}
	return len(ids), nil
}

// Cleanup удаляет решенные заявки старше maxAge.
func (s *Service) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge < 0 {
		return 0, fmt.Errorf("approval: negative max age")
	}
	n, err := s.store.Cleanup(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("approval: cleanup: %w", err)
	}
	if n > 0 {
		s.logger.Info("removed resolved approval requests", zap.Int("count", n), zap.Duration("max_age", maxAge))
	}
	return n, nil
}

// RunSweeper периодически вызывает ExpirePending и Cleanup. Блокируется до отмены ctx.
func (s *Service) RunSweeper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		s.logger.Warn("sweeper disabled: non-positive interval", zap.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpirePending(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
			if retention > 0 {
				if _, err := s.Cleanup(ctx, retention); err != nil {
					s.logger.Error("cleanup failed", zap.Error(err))
				}
			}
		}
	}
}
