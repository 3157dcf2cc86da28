package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brelok-the-pok/summary-bot/internal/domain"
)

const selectColumns = `id, user_id, message_id, "date", "timestamp", s3_key, transcription,
	text_content, COALESCE(message_type, 'voice'), created_at`

// PostgresStore is the pgx-backed MessageStore.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  Clock

	schemaMu    sync.RWMutex
	schemaReady bool
}

type PostgresOption func(*PostgresStore)

// WithClock overrides the time source used for pruning.
func WithClock(now Clock) PostgresOption {
	return func(s *PostgresStore) {
		if now != nil {
			s.now = now
		}
	}
}

// OpenPostgres connects a pool to databaseURL and verifies it with a ping.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("repository: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("repository: connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStore wraps an open pool. The schema is created on first use.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("repository: pool must not be nil")
	}
	s := &PostgresStore{pool: pool, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("repository: Ping: %w", err)
	}
	return nil
}

// Insert upserts rec by (user_id, message_id, date) and returns the row id.
func (s *PostgresStore) Insert(ctx context.Context, rec domain.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}

	var s3Key, transcription, textContent *string
	switch rec.Type {
	case domain.MessageTypeText:
		textContent = &rec.TextContent
	default:
		s3Key = &rec.S3Key
		transcription = &rec.Transcription
	}

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_messages
			(user_id, message_id, "date", "timestamp", s3_key, transcription, text_content, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, message_id, "date") DO UPDATE SET
			"timestamp"   = EXCLUDED."timestamp",
			s3_key        = EXCLUDED.s3_key,
			transcription = EXCLUDED.transcription,
			text_content  = EXCLUDED.text_content,
			message_type  = EXCLUDED.message_type,
			created_at    = EXCLUDED.created_at
		RETURNING id
	`, rec.UserID, rec.MessageID, rec.Day, rec.Timestamp, s3Key, transcription, textContent, string(rec.Type), rec.CreatedAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("repository: Insert: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// ListByUserDay returns the partition in ascending created_at order.
func (s *PostgresStore) ListByUserDay(ctx context.Context, userID, day string) ([]domain.Record, error) {
	if err := validatePartition(userID, day); err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+`
		FROM user_messages
		WHERE user_id = $1 AND "date" = $2
		ORDER BY created_at ASC, id ASC`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserDay scan: %w", err)
	}
	return recs, nil
}

// ListContentByUserDay returns each record's canonical content in partition
// order, skipping records whose canonical field is empty.
func (s *PostgresStore) ListContentByUserDay(ctx context.Context, userID, day string) ([]string, error) {
	if err := validatePartition(userID, day); err != nil {
		return nil, fmt.Errorf("repository: ListContentByUserDay: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("repository: ListContentByUserDay: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT CASE WHEN COALESCE(message_type, 'voice') = 'text' THEN text_content ELSE transcription END
		FROM user_messages
		WHERE user_id = $1 AND "date" = $2
		ORDER BY created_at ASC, id ASC`, userID, day)
	if err != nil {
		return nil, fmt.Errorf("repository: ListContentByUserDay query: %w", err)
	}
	contents, err := pgx.CollectRows(rows, pgx.RowTo[*string])
	if err != nil {
		return nil, fmt.Errorf("repository: ListContentByUserDay scan: %w", err)
	}

	out := make([]string, 0, len(contents))
	for _, c := range contents {
		if c == nil || strings.TrimSpace(*c) == "" {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// Exists reports whether the partition holds at least one record.
func (s *PostgresStore) Exists(ctx context.Context, userID, day string) (bool, error) {
	if err := validatePartition(userID, day); err != nil {
		return false, fmt.Errorf("repository: Exists: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return false, fmt.Errorf("repository: Exists: %w", err)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_messages WHERE user_id = $1 AND "date" = $2)
	`, userID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: Exists: %w", err)
	}
	return exists, nil
}

// ListByUserRange returns records with startDay <= date <= endDay.
func (s *PostgresStore) ListByUserRange(ctx context.Context, userID, startDay, endDay string) ([]domain.Record, error) {
	if err := validateRange(userID, startDay, endDay); err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+`
		FROM user_messages
		WHERE user_id = $1 AND "date" BETWEEN $2 AND $3
		ORDER BY created_at ASC, id ASC`, userID, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("repository: ListByUserRange scan: %w", err)
	}
	return recs, nil
}

// PruneOlderThan deletes records created before now minus retentionDays.
func (s *PostgresStore) PruneOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff, err := pruneCutoff(s.now(), retentionDays)
	if err != nil {
		return 0, fmt.Errorf("repository: PruneOlderThan: %w", err)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, fmt.Errorf("repository: PruneOlderThan: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM user_messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("repository: PruneOlderThan: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.CollectableRow) (domain.Record, error) {
	var (
		id                                int64
		rec                               domain.Record
		s3Key, transcription, textContent *string
		messageType                       string
	)
	if err := row.Scan(&id, &rec.UserID, &rec.MessageID, &rec.Day, &rec.Timestamp,
		&s3Key, &transcription, &textContent, &messageType, &rec.CreatedAt); err != nil {
		return domain.Record{}, err
	}
	mt, err := domain.ParseMessageType(messageType)
	if err != nil {
		return domain.Record{}, err
	}
	rec.ID = strconv.FormatInt(id, 10)
	rec.Type = mt
	rec.S3Key = deref(s3Key)
	rec.Transcription = deref(transcription)
	rec.TextContent = deref(textContent)
	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
