package approval

import (
	"context"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// Store — хранилище заявок HITL. Реализации: MemoryStore (один процесс)
// и postgres.ApprovalRepo (общая очередь для шлюза и консоли).
type Store interface {
	Create(ctx context.Context, req *domain.ApprovalRequest) error
	Get(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	// List с пустым статусом возвращает все заявки, новые первыми.
	List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)

	// Resolve атомарно переводит заявку из PENDING в терминальный статус.
	// Если заявка уже решена, возвращает domain.ErrAlreadyProcessed.
	Resolve(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string, at time.Time) (*domain.ApprovalRequest, error)

	// ExpirePending переводит в TIMED_OUT все PENDING заявки с ExpiresAt <= now и возвращает их ID.
	ExpirePending(ctx context.Context, now time.Time) ([]string, error)
	// Cleanup удаляет терминальные заявки, созданные раньше olderThan.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}
