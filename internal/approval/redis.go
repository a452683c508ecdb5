package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
	"go.uber.org/zap"
)

// RedisBroker доставляет решения между процессами: консоль публикует,
// шлюз ждет на канале taskgate:approvals:execution:{id}.
type RedisBroker struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, logger: logger.Named("approval-broker")}
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan domain.Verdict
	once sync.Once
}

func (s *redisSubscription) C() <-chan domain.Verdict { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

func (b *RedisBroker) Subscribe(ctx context.Context, approvalID string) (Subscription, error) {
	chanName := infra.ApprovalDecisionChannel(approvalID)
	ps := b.rdb.Subscribe(ctx, chanName)

	// Ждем подтверждения подписки, иначе решение может прийти раньше, чем мы слушаем
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("approval: subscribe %s: %w", chanName, err)
	}

	sub := &redisSubscription{ps: ps, out: make(chan domain.Verdict, 1)}
	go func() {
		defer close(sub.out)
		for msg := range ps.Channel() {
			var v domain.Verdict
			if err := json.Unmarshal([]byte(msg.Payload), &v); err != nil {
				b.logger.Error("invalid verdict payload", zap.String("chan", chanName), zap.Error(err))
				continue
			}
			select {
			case sub.out <- v:
			default:
			}
		}
	}()
	return sub, nil
}

func (b *RedisBroker) Publish(ctx context.Context, v domain.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("approval: encode verdict: %w", err)
	}
	if err := b.rdb.Publish(ctx, infra.ApprovalDecisionChannel(v.ApprovalID), payload).Err(); err != nil {
		return fmt.Errorf("approval: publish verdict: %w", err)
	}
	return nil
}
