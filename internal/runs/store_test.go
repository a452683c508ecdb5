package runs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

func TestStore_PutGetIsolation(t *testing.T) {
	s := NewStore(10)
	ctx := context.Background()

	run := &domain.TaskRun{ID: "r1", Status: domain.TaskRunning, Assessment: domain.RiskAssessment{Indicators: []string{"delete"}}}
	require.NoError(t, s.Put(ctx, run))

	// Изменения исходного объекта не протекают в хранилище
	run.Status = domain.TaskCompleted
	run.Assessment.Indicators[0] = "mutated"

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskRunning, got.Status)
	assert.Equal(t, []string{"delete"}, got.Assessment.Indicators)

	_, err = s.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestStore_EvictsOldestAndListsNewestFirst(t *testing.T) {
	s := NewStore(3)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Put(ctx, &domain.TaskRun{ID: fmt.Sprintf("r%d", i)}))
	}
	// Обновление существующей записи не сдвигает порядок
	require.NoError(t, s.Put(ctx, &domain.TaskRun{ID: "r4", Status: domain.TaskCompleted}))

	assert.Equal(t, 3, s.Len())
	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.Equal(t, []string{"r5", "r4", "r3"}, ids)
	assert.Equal(t, domain.TaskCompleted, list[1].Status)

	top, _ := s.List(ctx, 1)
	require.Len(t, top, 1)
	assert.Equal(t, "r5", top[0].ID)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	empty, _ := s.List(ctx, 10)
	assert.Empty(t, empty)
}
