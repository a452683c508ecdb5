package approval

import (
	"context"
	"errors"
	"sync"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

var ErrBrokerClosed = errors.New("approval broker closed")

// Subscription — канал решений для одной заявки.
type Subscription interface {
	C() <-chan domain.Verdict
	Close() error
}

// Broker доставляет решение оператора горутине, которая ждет на гейте.
// Подписка оформляется до того, как заявка станет видна оператору.
type Broker interface {
	Subscribe(ctx context.Context, approvalID string) (Subscription, error)
	Publish(ctx context.Context, v domain.Verdict) error
}

// MemoryBroker — доставка внутри одного процесса.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

type memorySubscription struct {
	broker *MemoryBroker
	id     string
	ch     chan domain.Verdict
	once   sync.Once
}

func (s *memorySubscription) C() <-chan domain.Verdict { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.broker.mu.Lock()
		defer s.broker.mu.Unlock()
		if set, ok := s.broker.subs[s.id]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.broker.subs, s.id)
			}
		}
	})
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, approvalID string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &memorySubscription{broker: b, id: approvalID, ch: make(chan domain.Verdict, 1)}
	set, ok := b.subs[approvalID]
	if !ok {
		set = make(map[*memorySubscription]struct{})
		b.subs[approvalID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// Publish не блокируется: заявка одноразовая, второе решение подписчику не нужно.
func (b *MemoryBroker) Publish(_ context.Context, v domain.Verdict) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	for sub := range b.subs[v.ApprovalID] {
		select {
		case sub.ch <- v:
		default:
		}
	}
	return nil
}

// Close закрывает все каналы подписчиков: ждущие гейты разрешатся в TIMED_OUT.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
}
