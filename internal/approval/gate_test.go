package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
	"go.uber.org/zap"
)

var highRisk = domain.RiskAssessment{Level: domain.RiskHigh, Indicators: []string{"delete"}}

type harness struct {
	store  *MemoryStore
	broker *MemoryBroker
	gate   *Gate
	svc    *Service
}

func newHarness(t *testing.T, notifier Notifier) *harness {
	t.Helper()
	if notifier == nil {
		notifier = NewLogNotifier(zap.NewNop())
	}
	store, broker := NewMemoryStore(), NewMemoryBroker()
	return &harness{
		store:  store,
		broker: broker,
		gate:   NewGate(store, broker, notifier, zap.NewNop()),
		svc:    NewService(store, broker, zap.NewNop()),
	}
}

type gateResult struct {
	decision domain.ApprovalDecision
	err      error
	elapsed  time.Duration
}

func (h *harness) request(ctx context.Context, task domain.TaskRequest, timeout time.Duration) <-chan gateResult {
	out := make(chan gateResult, 1)
	go func() {
		start := time.Now()
		d, err := h.gate.RequestApproval(ctx, task, highRisk, timeout)
		out <- gateResult{decision: d, err: err, elapsed: time.Since(start)}
	}()
	return out
}

func (h *harness) waitPending(t *testing.T, taskID string) *domain.ApprovalRequest {
	t.Helper()
	var found *domain.ApprovalRequest
	require.Eventually(t, func() bool {
		list, _ := h.store.List(context.Background(), domain.StatusPending)
		for _, r := range list {
			if r.TaskID == taskID {
				found = r
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return found
}

func await(t *testing.T, ch <-chan gateResult) gateResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("gate did not resolve")
		return gateResult{}
	}
}

func TestGate_Approve(t *testing.T) {
	h := newHarness(t, nil)
	task := domain.TaskRequest{ID: "t-1", Description: "delete all user accounts"}

	res := h.request(context.Background(), task, 5*time.Second)
	pending := h.waitPending(t, "t-1")
	assert.Equal(t, domain.RiskHigh, pending.Level)
	assert.Equal(t, []string{"delete"}, pending.Indicators)

	_, err := h.svc.Decide(context.Background(), pending.ID, true, "alice", "looks fine")
	require.NoError(t, err)

	r := await(t, res)
	require.NoError(t, r.err)
	assert.Equal(t, domain.DecisionApproved, r.decision)

	stored, err := h.store.Get(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
	require.NotNil(t, stored.ReviewerID)
	assert.Equal(t, "alice", *stored.ReviewerID)
}

func TestGate_Deny(t *testing.T) {
	h := newHarness(t, nil)
	res := h.request(context.Background(), domain.TaskRequest{ID: "t-2", Description: "transfer funds"}, 5*time.Second)
	pending := h.waitPending(t, "t-2")

	_, err := h.svc.Decide(context.Background(), pending.ID, false, "bob", "")
	require.NoError(t, err)

	assert.Equal(t, domain.DecisionDenied, await(t, res).decision)
}

func TestGate_TimeoutIsBounded(t *testing.T) {
	h := newHarness(t, nil)
	timeout := 60 * time.Millisecond

	r := await(t, h.request(context.Background(), domain.TaskRequest{ID: "t-3"}, timeout))
	require.NoError(t, r.err)
	assert.Equal(t, domain.DecisionTimedOut, r.decision)
	assert.GreaterOrEqual(t, r.elapsed, timeout)
	assert.Less(t, r.elapsed, timeout+500*time.Millisecond)

	list, _ := h.store.List(context.Background(), domain.StatusTimedOut)
	require.Len(t, list, 1)

	// Опоздавшее решение не меняет исход
	_, err := h.svc.Decide(context.Background(), list[0].ID, true, "alice", "")
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestGate_DefaultTimeoutWhenNonPositive(t *testing.T) {
	store, broker := NewMemoryStore(), NewMemoryBroker()
	gate := NewGate(store, broker, NewLogNotifier(zap.NewNop()), zap.NewNop(), WithDefaultTimeout(40*time.Millisecond))

	start := time.Now()
	d, err := gate.RequestApproval(context.Background(), domain.TaskRequest{ID: "t-4"}, highRisk, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionTimedOut, d)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 540*time.Millisecond)
}

func TestGate_DismissIsDenial(t *testing.T) {
	h := newHarness(t, nil)
	res := h.request(context.Background(), domain.TaskRequest{ID: "t-5"}, 5*time.Second)
	pending := h.waitPending(t, "t-5")

	req, err := h.svc.Dismiss(context.Background(), pending.ID, "alice")
	require.NoError(t, err)
	require.NotNil(t, req.Comment)
	assert.Equal(t, dismissComment, *req.Comment)

	assert.Equal(t, domain.DecisionDenied, await(t, res).decision)
}

func TestGate_CallerCancellation(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	res := h.request(ctx, domain.TaskRequest{ID: "t-6"}, 5*time.Second)
	pending := h.waitPending(t, "t-6")
	cancel()

	r := await(t, res)
	assert.Equal(t, domain.DecisionTimedOut, r.decision)
	assert.Less(t, r.elapsed, 5*time.Second)

	stored, _ := h.store.Get(context.Background(), pending.ID)
	assert.Equal(t, domain.StatusTimedOut, stored.Status)
}

func TestGate_NotificationFailure(t *testing.T) {
	failing := NotifierFunc(func(context.Context, Notice) error { return errors.New("websocket gone") })
	h := newHarness(t, failing)

	r := await(t, h.request(context.Background(), domain.TaskRequest{ID: "t-7"}, 5*time.Second))
	assert.Equal(t, domain.DecisionTimedOut, r.decision)
	assert.Less(t, r.elapsed, time.Second)

	list, _ := h.store.List(context.Background(), domain.StatusTimedOut)
	assert.Len(t, list, 1)
}

func TestGate_BrokerClosedWhileWaiting(t *testing.T) {
	h := newHarness(t, nil)
	res := h.request(context.Background(), domain.TaskRequest{ID: "t-8"}, 5*time.Second)
	h.waitPending(t, "t-8")

	h.broker.Close()
	assert.Equal(t, domain.DecisionTimedOut, await(t, res).decision)

	// После закрытия новые заявки даже не создаются
	r := await(t, h.request(context.Background(), domain.TaskRequest{ID: "t-9"}, 5*time.Second))
	assert.Equal(t, domain.DecisionTimedOut, r.decision)
	all, err := h.store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGate_LowRiskRejected(t *testing.T) {
	h := newHarness(t, nil)
	low := domain.RiskAssessment{Level: domain.RiskLow, Indicators: []string{}}

	_, err := h.gate.RequestApproval(context.Background(), domain.TaskRequest{ID: "t-10"}, low, time.Second)
	assert.ErrorIs(t, err, domain.ErrApprovalNotRequired)

	list, _ := h.store.List(context.Background(), "")
	assert.Empty(t, list)
}

func TestGate_MediumRequiresApproval(t *testing.T) {
	h := newHarness(t, nil)
	medium := domain.RiskAssessment{Level: domain.RiskMedium, Indicators: []string{"submit form"}}

	d, err := h.gate.RequestApproval(context.Background(), domain.TaskRequest{ID: "t-11"}, medium, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionTimedOut, d)
}

func TestGate_ConcurrentRequestsAreIndependent(t *testing.T) {
	h := newHarness(t, nil)
	const n = 8

	results := make([]<-chan gateResult, n)
	for i := 0; i < n; i++ {
		results[i] = h.request(context.Background(), domain.TaskRequest{ID: fmt.Sprintf("c-%d", i)}, 5*time.Second)
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		pending := h.waitPending(t, fmt.Sprintf("c-%d", i))
		wg.Add(1)
		go func(id string, approve bool) {
			defer wg.Done()
			_, err := h.svc.Decide(context.Background(), id, approve, "ops", "")
			assert.NoError(t, err)
		}(pending.ID, i%2 == 0)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		want := domain.DecisionDenied
		if i%2 == 0 {
			want = domain.DecisionApproved
		}
		assert.Equal(t, want, await(t, results[i]).decision, "task c-%d", i)
	}
}

type silentBroker struct{ *MemoryBroker }

func (silentBroker) Publish(context.Context, domain.Verdict) error {
	return errors.New("redis: connection refused")
}

func TestGate_PersistedDecisionStandsWhenSignalLost(t *testing.T) {
	store, broker := NewMemoryStore(), NewMemoryBroker()
	gate := NewGate(store, broker, NewLogNotifier(zap.NewNop()), zap.NewNop())
	svc := NewService(store, silentBroker{broker}, zap.NewNop())
	h := &harness{store: store, broker: broker, gate: gate, svc: svc}

	res := h.request(context.Background(), domain.TaskRequest{ID: "t-12"}, 80*time.Millisecond)
	pending := h.waitPending(t, "t-12")

	_, err := svc.Decide(context.Background(), pending.ID, true, "alice", "")
	assert.ErrorIs(t, err, ErrNotDelivered)

	// Гейт проснется по таймеру, но вернет уже сохраненное решение
	r := await(t, res)
	assert.Equal(t, domain.DecisionApproved, r.decision)
	assert.GreaterOrEqual(t, r.elapsed, 80*time.Millisecond)
	assert.Less(t, r.elapsed, 580*time.Millisecond)
}
