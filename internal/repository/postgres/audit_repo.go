package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-taskgate/internal/audit"
)

const auditFields = 12

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// WriteBatch — пакетная вставка одним запросом (Bulk Insert).
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	var placeholders strings.Builder
	vals := make([]interface{}, 0, len(events)*auditFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * auditFields
		if i > 0 {
			placeholders.WriteString(",")
		}
		placeholders.WriteString("(")
		for f := 1; f <= auditFields; f++ {
			if f > 1 {
				placeholders.WriteString(", ")
			}
			fmt.Fprintf(&placeholders, "$%d", p+f)
		}
		placeholders.WriteString(")")

		indicators, err := json.Marshal(nonNil(e.Indicators))
		if err != nil {
			return fmt.Errorf("postgres: encode indicators: %w", err)
		}
		var resp []byte
		if e.Response != nil {
			if resp, err = json.Marshal(e.Response); err != nil {
				return fmt.Errorf("postgres: encode response: %w", err)
			}
		}

		vals = append(vals,
			e.ID, e.TraceID, e.TaskID, e.Task, e.RiskLevel, indicators,
			e.Decision, e.Status, resp, e.DurationMs, e.Error, e.Timestamp,
		)
	}

	query := "INSERT INTO audit_logs (id, trace_id, task_id, task, risk_level, indicators, decision, status, response, duration_ms, error, timestamp) VALUES " +
		placeholders.String()

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write audit batch: %w", err)
	}
	return nil
}

// FetchLogs читает журнал с необязательными фильтрами, новые события первыми.
func (r *AuditRepo) FetchLogs(ctx context.Context, taskID, status string, limit int) ([]audit.AuditEvent, error) {
	query := `SELECT id, trace_id, task_id, task, risk_level, indicators, decision, status, response, duration_ms, error, timestamp FROM audit_logs`

	var (
		conds []string
		args  []interface{}
	)
	if taskID != "" {
		args = append(args, taskID)
		conds = append(conds, fmt.Sprintf("task_id = $%d", len(args)))
	}
	if status != "" {
		args = append(args, strings.ToUpper(status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]audit.AuditEvent, 0)
	for rows.Next() {
		var (
			e          audit.AuditEvent
			indicators []byte
			resp       []byte
		)
		if err := rows.Scan(&e.ID, &e.TraceID, &e.TaskID, &e.Task, &e.RiskLevel, &indicators,
			&e.Decision, &e.Status, &resp, &e.DurationMs, &e.Error, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan audit event: %w", err)
		}
		if len(indicators) > 0 {
			_ = json.Unmarshal(indicators, &e.Indicators)
		}
		if len(resp) > 0 {
			_ = json.Unmarshal(resp, &e.Response)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
