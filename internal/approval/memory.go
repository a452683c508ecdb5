package approval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

// MemoryStore — потокобезопасная in-memory очередь заявок.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*domain.ApprovalRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*domain.ApprovalRequest)}
}

func (s *MemoryStore) Create(_ context.Context, req *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[req.ID] = clone(req)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.items[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	return clone(req), nil
}

func (s *MemoryStore) List(_ context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.ApprovalRequest, 0, len(s.items))
	for _, req := range s.items {
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, clone(req))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string, at time.Time) (*domain.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.items[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	if err := req.CanTransitionTo(status); err != nil {
		return nil, err
	}
	applyResolution(req, status, reviewerID, comment, at)
	return clone(req), nil
}

func (s *MemoryStore) ExpirePending(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, req := range s.items {
		if req.Status == domain.StatusPending && !req.ExpiresAt.After(now) {
			applyResolution(req, domain.StatusTimedOut, "", "", now)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, req := range s.items {
		if req.Status.IsTerminal() && req.CreatedAt.Before(olderThan) {
			delete(s.items, id)
			removed++
		}
	}
	return removed, nil
}

func applyResolution(req *domain.ApprovalRequest, status domain.ApprovalStatus, reviewerID, comment string, at time.Time) {
	req.Status = status
	if reviewerID != "" {
		req.ReviewerID = &reviewerID
	}
	if comment != "" {
		req.Comment = &comment
	}
	req.DecidedAt = &at
}

func clone(req *domain.ApprovalRequest) *domain.ApprovalRequest {
	c := *req
	c.Indicators = append([]string(nil), req.Indicators...)
	if req.ReviewerID != nil {
		v := *req.ReviewerID
		c.ReviewerID = &v
	}
	if req.Comment != nil {
		v := *req.Comment
		c.Comment = &v
	}
	if req.DecidedAt != nil {
		v := *req.DecidedAt
		c.DecidedAt = &v
	}
	return &c
}
