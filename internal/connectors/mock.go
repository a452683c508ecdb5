package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// MockRunner имитирует сервис браузерной автоматизации для локального запуска и тестов.
// Запоминает все задачи, которые до него дошли.
type MockRunner struct {
	MinLatency time.Duration
	MaxLatency time.Duration

	// Fail, если задан, решает, вернуть ли ошибку для задачи
	Fail func(task domain.TaskRequest) error

	mu       sync.Mutex
	executed []domain.TaskRequest
}

func (m *MockRunner) Execute(ctx context.Context, task domain.TaskRequest) ([]byte, error) {
	if latency := m.latency(); latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	m.executed = append(m.executed, task)
	m.mu.Unlock()

	if m.Fail != nil {
		if err := m.Fail(task); err != nil {
			return nil, err
		}
	}
	if strings.Contains(strings.ToLower(task.Description), "unstable.service") {
		return nil, fmt.Errorf("service internal error")
	}

	return json.Marshal(map[string]any{
		"status":  "completed",
		"task_id": task.ID,
		"summary": "simulated browser run finished, no real impact made",
	})
}

// Executed возвращает копию списка задач, дошедших до исполнения.
func (m *MockRunner) Executed() []domain.TaskRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TaskRequest(nil), m.executed...)
}

func (m *MockRunner) latency() time.Duration {
	if m.MaxLatency <= m.MinLatency {
		return m.MinLatency
	}
	return m.MinLatency + time.Duration(rand.Int64N(int64(m.MaxLatency-m.MinLatency)))
}
