package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// schemaLockID serializes schema changes across processes sharing a database.
const schemaLockID int64 = 0x5ab0_7001

// The base table is the first released layout. Later columns are added by
// columnMigrations so databases created by older versions keep their rows.
const createMessagesTable = `
	CREATE TABLE IF NOT EXISTS user_messages (
		id            BIGSERIAL PRIMARY KEY,
		user_id       TEXT NOT NULL,
		message_id    BIGINT NOT NULL,
		"date"        TEXT NOT NULL,
		"timestamp"   TEXT NOT NULL,
		s3_key        TEXT,
		transcription TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (user_id, message_id, "date")
	)`

type columnMigration struct {
	column string
	ddl    string
}

var columnMigrations = []columnMigration{
	{column: "text_content", ddl: `ALTER TABLE user_messages ADD COLUMN IF NOT EXISTS text_content TEXT`},
	{column: "message_type", ddl: `ALTER TABLE user_messages ADD COLUMN IF NOT EXISTS message_type TEXT NOT NULL DEFAULT 'voice'`},
}

var indexStatements = []string{
	`CREATE INDEX IF NOT EXISTS idx_user_messages_user_date ON user_messages (user_id, "date", created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_user_id ON user_messages (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_user_messages_created_at ON user_messages (created_at)`,
}

// Migrate brings the schema up to date. It is idempotent and safe to run from
// several processes at once.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if err := s.migrate(ctx); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

// ensureSchema runs the migration once per process; failed attempts are
// retried on the next call.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.RLock()
	if s.schemaReady {
		s.schemaMu.RUnlock()
		return nil
	}
	s.schemaMu.RUnlock()

	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if err := s.migrate(ctx); err != nil {
		return err
	}
	s.schemaReady = true
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("migrate: acquire lock: %w", err)
	}
	if _, err := tx.Exec(ctx, createMessagesTable); err != nil {
		return fmt.Errorf("migrate: create table: %w", err)
	}

	for _, m := range columnMigrations {
		present, err := columnExists(ctx, tx, "user_messages", m.column)
		if err != nil {
			return fmt.Errorf("migrate: inspect column %s: %w", m.column, err)
		}
		if present {
			continue
		}
		if _, err := tx.Exec(ctx, m.ddl); err != nil {
			return fmt.Errorf("migrate: add column %s: %w", m.column, err)
		}
		slog.Info("schema column added", "table", "user_messages", "column", m.column)
	}

	for _, stmt := range indexStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: create index: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

func columnExists(ctx context.Context, tx pgx.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
	return exists, err
}
