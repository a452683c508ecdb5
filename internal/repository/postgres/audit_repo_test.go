package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-taskgate/internal/audit"
)

func TestAuditRepo_WriteBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	events := []audit.AuditEvent{
		{ID: "e1", TaskID: "t1", Task: "delete all", RiskLevel: "HIGH", Status: audit.StatusDenied, Timestamp: time.Now()},
		{ID: "e2", TaskID: "t2", Task: "check", RiskLevel: "LOW", Status: audit.StatusCompleted, Response: map[string]string{"ok": "1"}, Timestamp: time.Now()},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO audit_logs (id, trace_id, task_id, task, risk_level, indicators, decision, status, response, duration_ms, error, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12),($13,`)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, NewAuditRepo(db).WriteBatch(context.Background(), events))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_WriteBatchEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewAuditRepo(db).WriteBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_FetchLogsFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "trace_id", "task_id", "task", "risk_level", "indicators", "decision", "status", "response", "duration_ms", "error", "timestamp"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_logs WHERE task_id = $1 AND status = $2 ORDER BY timestamp DESC LIMIT $3`)).
		WithArgs("t1", "DENIED", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e1", "tr", "t1", "delete all", "HIGH", []byte(`["delete"]`), "DENIED", "DENIED", nil, int64(12), "", time.Now()))

	events, err := NewAuditRepo(db).FetchLogs(context.Background(), "t1", "denied", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"delete"}, events[0].Indicators)
	assert.Nil(t, events[0].Response)
	assert.NoError(t, mock.ExpectationsWereMet())
}
