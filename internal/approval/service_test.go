package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

func seed(t *testing.T, store Store, id string, status domain.ApprovalStatus, created time.Time, ttl time.Duration) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &domain.ApprovalRequest{
		ID:        id,
		TaskID:    "task-" + id,
		Level:     domain.RiskHigh,
		Status:    status,
		CreatedAt: created,
		ExpiresAt: created.Add(ttl),
	}))
}

func TestService_DoubleDecision(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewMemoryBroker(), zap.NewNop())
	seed(t, store, "a1", domain.StatusPending, time.Now(), time.Minute)

	_, err := svc.Decide(context.Background(), "a1", true, "alice", "")
	require.NoError(t, err)

	_, err = svc.Decide(context.Background(), "a1", false, "bob", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	_, err = svc.Dismiss(context.Background(), "a1", "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	_, err = svc.Decide(context.Background(), "missing", true, "alice", "")
	assert.ErrorIs(t, err, domain.ErrApprovalNotFound)
}

func TestService_List(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewMemoryBroker(), zap.NewNop())
	base := time.Now()
	seed(t, store, "old", domain.StatusPending, base.Add(-time.Minute), time.Hour)
	seed(t, store, "new", domain.StatusPending, base, time.Hour)
	seed(t, store, "done", domain.StatusDenied, base, time.Hour)

	pending, err := svc.List(context.Background(), "pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "new", pending[0].ID)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.List(context.Background(), "rejected")
	assert.Error(t, err)
}

func TestService_ExpirePendingAndCleanup(t *testing.T) {
	store := NewMemoryStore()
	broker := NewMemoryBroker()
	svc := NewService(store, broker, zap.NewNop())

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	seed(t, store, "stale", domain.StatusPending, now.Add(-2*time.Minute), time.Minute)
	seed(t, store, "fresh", domain.StatusPending, now, time.Minute)
	seed(t, store, "ancient", domain.StatusApproved, now.Add(-48*time.Hour), time.Minute)

	sub, err := broker.Subscribe(context.Background(), "stale")
	require.NoError(t, err)
	defer sub.Close()

	n, err := svc.ExpirePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stale, _ := store.Get(context.Background(), "stale")
	assert.Equal(t, domain.StatusTimedOut, stale.Status)
	select {
	case v := <-sub.C():
		assert.Equal(t, domain.DecisionTimedOut, v.Decision)
	default:
		t.Fatal("expected timeout verdict to be published")
	}

	removed, err := svc.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(context.Background(), "ancient")
	assert.ErrorIs(t, err, domain.ErrApprovalNotFound)
	_, err = store.Get(context.Background(), "fresh")
	assert.NoError(t, err, "pending requests are never cleaned up")

	_, err = svc.Cleanup(context.Background(), -time.Hour)
	assert.Error(t, err)
}

func TestService_RunSweeperRejectsNonPositiveInterval(t *testing.T) {
	svc := NewService(NewMemoryStore(), NewMemoryBroker(), zap.NewNop())

	for _, interval := range []time.Duration{0, -time.Second} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			assert.NotPanics(t, func() { svc.RunSweeper(context.Background(), interval, time.Hour) })
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("sweeper with interval %v did not return", interval)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var calls int
	ok := NotifierFunc(func(context.Context, Notice) error { calls++; return nil })
	m := MultiNotifier{ok, NewLogNotifier(zap.NewNop()), ok}
	require.NoError(t, m.Notify(context.Background(), Notice{ApprovalID: "x"}))
	assert.Equal(t, 2, calls)

	bad := NotifierFunc(func(context.Context, Notice) error { return assert.AnError })
	assert.ErrorIs(t, MultiNotifier{ok, bad}.Notify(context.Background(), Notice{}), assert.AnError)
}
