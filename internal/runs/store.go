package runs

import (
	"context"
	"sync"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// Store хранит записи диспетчера о последних задачах. Создается в main и
// передается явно; Clear вызывается при остановке процесса.
type Store struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*domain.TaskRun
	order    []string // ID в порядке вставки, для вытеснения самых старых
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 500
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*domain.TaskRun),
	}
}

// Put сохраняет снимок записи. Повторный Put с тем же ID обновляет запись на месте.
func (s *Store) Put(_ context.Context, run *domain.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[run.ID]; !exists {
		s.order = append(s.order, run.ID)
		for len(s.order) > s.capacity {
			delete(s.items, s.order[0])
			s.order = s.order[1:]
		}
	}
	s.items[run.ID] = cloneRun(run)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (*domain.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.items[id]
	if !ok {
		return nil, domain.ErrRunNotFound
	}
	return cloneRun(run), nil
}

// List возвращает не более limit записей, новые первыми. limit <= 0: все.
func (s *Store) List(_ context.Context, limit int) ([]*domain.TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*domain.TaskRun, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, cloneRun(s.items[s.order[i]]))
	}
	return out, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*domain.TaskRun)
	s.order = nil
}

func cloneRun(r *domain.TaskRun) *domain.TaskRun {
	c := *r
	c.Assessment.Indicators = append([]string{}, r.Assessment.Indicators...)
	c.Assessment.Categories = append([]string(nil), r.Assessment.Categories...)
	if r.Decision != nil {
		d := *r.Decision
		c.Decision = &d
	}
	if r.FinishedAt != nil {
		f := *r.FinishedAt
		c.FinishedAt = &f
	}
	return &c
}
