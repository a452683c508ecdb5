package postgres

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/spaceai-taskgate/internal/domain"
)

func TestRuleRepo_GetAllRules(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "pattern", "severity", "category", "weight"}).
		AddRow("r1", "delete", "HIGH", "delete", 0.95).
		AddRow("r2", "login", "LOW", "", 0.3)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, pattern, severity, category, weight FROM risk_rules ORDER BY position`)).
		WillReturnRows(rows)

	rules, err := NewRuleRepo(db).GetAllRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, domain.RiskHigh, rules[0].Severity)
	assert.Equal(t, "login", rules[1].Pattern)
	assert.InDelta(t, 0.3, rules[1].Weight, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_CreateRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO risk_rules (pattern, severity, category, weight) VALUES ($1, $2, $3, $4) RETURNING id`)).
		WithArgs("wire money", domain.RiskHigh, "transfer", 1.0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("new-id"))

	rule := &domain.RiskRule{Pattern: "wire money", Severity: domain.RiskHigh, Category: "transfer", Weight: 1}
	require.NoError(t, NewRuleRepo(db).CreateRule(context.Background(), rule))
	assert.Equal(t, "new-id", rule.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_UpdateDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE risk_rules SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM risk_rules WHERE id = $1`)).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRuleRepo(db)
	err = repo.UpdateRule(context.Background(), &domain.RiskRule{ID: "missing", Pattern: "x", Severity: domain.RiskLow})
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
	assert.ErrorIs(t, repo.DeleteRule(context.Background(), "missing"), domain.ErrRuleNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepo_GetRuleNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM risk_rules WHERE id = $1`)).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "pattern", "severity", "category", "weight"}))

	_, err = NewRuleRepo(db).GetRule(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}
