package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-taskgate/internal/audit"
)

// AuditLogProvider описывает контракт для чтения данных аудита.
// Используем audit.AuditEvent, чтобы сохранить единую модель данных со шлюзом.
type AuditLogProvider interface {
	FetchLogs(ctx context.Context, taskID, status string, limit int) ([]audit.AuditEvent, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs запрашивает журнал с фильтрацией. Пустые фильтры: без ограничений.
func (s *AuditService) FetchLogs(ctx context.Context, taskID, status string, limit int) ([]audit.AuditEvent, error) {
	logs, err := s.repo.FetchLogs(ctx, taskID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
