package postgres

/*
Файл approval_repo.go: очередь Human-in-the-loop в PostgreSQL.
Общая для шлюза (создает заявки и ждет) и консоли (принимает решения).
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

const approvalColumns = `id, task_id, description, level, indicators, status, reviewer_id, comment, created_at, expires_at, decided_at`

type ApprovalRepo struct {
	pool *pgxpool.Pool
}

func NewApprovalRepo(pool *pgxpool.Pool) *ApprovalRepo {
	return &ApprovalRepo{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var (
		app        domain.ApprovalRequest
		indicators []byte
	)
	err := row.Scan(
		&app.ID, &app.TaskID, &app.Description, &app.Level, &indicators, &app.Status,
		&app.ReviewerID, &app.Comment, &app.CreatedAt, &app.ExpiresAt, &app.DecidedAt,
	)
	if err != nil {
		return nil, err
	}
	app.Indicators = []string{}
	if len(indicators) > 0 {
		if err := json.Unmarshal(indicators, &app.Indicators); err != nil {
			return nil, fmt.Errorf("postgres: decode indicators: %w", err)
		}
	}
	return &app, nil
}

// Create создает запись, чтобы операторы через Console API увидели приостановленную задачу.
func (r *ApprovalRepo) Create(ctx context.Context, app *domain.ApprovalRequest) error {
	indicators, err := json.Marshal(app.Indicators)
	if err != nil {
		return fmt.Errorf("postgres: encode indicators: %w", err)
	}
	query := `INSERT INTO approvals (id, task_id, description, level, indicators, status, created_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.pool.Exec(ctx, query,
		app.ID, app.TaskID, app.Description, app.Level, indicators, app.Status, app.CreatedAt, app.ExpiresAt)
	if err != nil {
		return fmt.Errorf("postgres: failed to create approval request: %w", err)
	}
	return nil
}

func (r *ApprovalRepo) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	app, err := scanApproval(r.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrApprovalNotFound
		}
		return nil, fmt.Errorf("postgres: get approval: %w", err)
	}
	return app, nil
}

// List фильтрует очередь по статусу (Decision Queue).
func (r *ApprovalRepo) List(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	var args []any
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT 500"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.ApprovalRequest, 0)
	for rows.Next() {
		app, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		results = append(results, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// Resolve атомарно обновляет статус заявки.
// Условие WHERE status = 'PENDING' исключает Double Decision и гонку с таймаутом гейта.
func (r *ApprovalRepo) Resolve(ctx context.Context, id string, status domain.ApprovalStatus, reviewerID, comment string, at time.Time) (*domain.ApprovalRequest, error) {
	if !status.IsTerminal() {
		return nil, domain.ErrInvalidTransition
	}
	query := `
		UPDATE approvals
		SET status = $1,
		    reviewer_id = NULLIF($2, ''),
		    comment = NULLIF($3, ''),
		    decided_at = $4
		WHERE id = $5 AND status = 'PENDING'
		RETURNING ` + approvalColumns

	app, err := scanApproval(r.pool.QueryRow(ctx, query, status, reviewerID, comment, at, id))
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: failed to update approval status: %w", err)
	}

	// Строк не найдено: либо ID неверный, либо решение уже принято ранее
	var current string
	err = r.pool.QueryRow(ctx, `SELECT status FROM approvals WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrApprovalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: check approval status: %w", err)
	}
	return nil, domain.ErrAlreadyProcessed
}

func (r *ApprovalRepo) ExpirePending(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE approvals SET status = 'TIMED_OUT', decided_at = $1
		WHERE status = 'PENDING' AND expires_at <= $1
		RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire approvals: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan approval id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ApprovalRepo) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM approvals WHERE status <> 'PENDING' AND created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: cleanup approvals: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
