package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres для database/sql
	"github.com/xela07ax/spaceai-taskgate/internal/infra"
)

// Schema — таблицы шлюза и консоли. Применяется идемпотентно при старте.
const Schema = `
CREATE TABLE IF NOT EXISTS approvals (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	description TEXT NOT NULL,
	level       TEXT NOT NULL,
	indicators  JSONB NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'PENDING',
	reviewer_id TEXT,
	comment     TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	expires_at  TIMESTAMPTZ NOT NULL,
	decided_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS approvals_status_created_idx ON approvals (status, created_at DESC);

CREATE TABLE IF NOT EXISTS risk_rules (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	position   BIGSERIAL,
	pattern    TEXT NOT NULL UNIQUE,
	severity   TEXT NOT NULL CHECK (severity IN ('LOW', 'MEDIUM', 'HIGH')),
	category   TEXT NOT NULL DEFAULT '',
	weight     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	scopes        JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
	id          TEXT PRIMARY KEY,
	trace_id    TEXT NOT NULL,
	task_id     TEXT NOT NULL DEFAULT '',
	task        TEXT NOT NULL DEFAULT '',
	risk_level  TEXT NOT NULL DEFAULT '',
	indicators  JSONB NOT NULL DEFAULT '[]',
	decision    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	response    JSONB,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_logs_task_idx ON audit_logs (task_id, timestamp DESC);
`

// NewPool — пул pgx для горячих операций очереди HITL.
func NewPool(ctx context.Context, cfg infra.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	// Проверяем соединение сразу, чтобы упасть на старте, а не на первом запросе
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// OpenDB — database/sql поверх драйвера pgx для репозиториев правил, пользователей и аудита.
func OpenDB(ctx context.Context, cfg infra.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	maxConns := int(cfg.MaxConns)
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}
