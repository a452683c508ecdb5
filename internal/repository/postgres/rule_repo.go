package postgres

/*
Файл rule_repo.go отвечает за хранение таблицы индикаторов риска.
Долговременное хранение в PostgreSQL отделено от классификации в памяти шлюза (risk.RuleCache).
*/

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

type RuleRepo struct {
	db *sql.DB
}

func NewRuleRepo(db *sql.DB) *RuleRepo {
	return &RuleRepo{db: db}
}

// GetAllRules выполняет "холодную загрузку" всей таблицы в порядке добавления.
// Порядок важен: он определяет порядок индикаторов в оценке.
func (r *RuleRepo) GetAllRules(ctx context.Context) ([]domain.RiskRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, pattern, severity, category, weight FROM risk_rules ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query risk rules: %w", err)
	}
	defer rows.Close()

	rules := make([]domain.RiskRule, 0)
	for rows.Next() {
		var rule domain.RiskRule
		if err := rows.Scan(&rule.ID, &rule.Pattern, &rule.Severity, &rule.Category, &rule.Weight); err != nil {
			return nil, fmt.Errorf("postgres: scan risk rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return rules, nil
}

func (r *RuleRepo) GetRule(ctx context.Context, id string) (*domain.RiskRule, error) {
	var rule domain.RiskRule
	err := r.db.QueryRowContext(ctx,
		`SELECT id, pattern, severity, category, weight FROM risk_rules WHERE id = $1`, id,
	).Scan(&rule.ID, &rule.Pattern, &rule.Severity, &rule.Category, &rule.Weight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get risk rule: %w", err)
	}
	return &rule, nil
}

// CreateRule добавляет правило в конец таблицы и возвращает присвоенный ID.
func (r *RuleRepo) CreateRule(ctx context.Context, rule *domain.RiskRule) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO risk_rules (pattern, severity, category, weight) VALUES ($1, $2, $3, $4) RETURNING id`,
		rule.Pattern, rule.Severity, rule.Category, rule.Weight,
	).Scan(&rule.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to create risk rule: %w", err)
	}
	return nil
}

func (r *RuleRepo) UpdateRule(ctx context.Context, rule *domain.RiskRule) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE risk_rules SET pattern = $1, severity = $2, category = $3, weight = $4 WHERE id = $5`,
		rule.Pattern, rule.Severity, rule.Category, rule.Weight, rule.ID)
	if err != nil {
		return fmt.Errorf("postgres: failed to update risk rule: %w", err)
	}
	return expectOneRow(res)
}

func (r *RuleRepo) DeleteRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM risk_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: failed to delete risk rule: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
