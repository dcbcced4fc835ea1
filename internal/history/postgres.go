package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krishimitra/krishimitra/internal/analysis"
)

const createTurnsTable = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	user_text   TEXT NOT NULL,
	attachments JSONB NOT NULL DEFAULT '[]',
	reply       TEXT NOT NULL,
	language    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversation_turns_session
	ON conversation_turns (session_id, created_at);`

// PostgresStore persists turn history in a conversation_turns table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	budget int64
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres-backed store and ensures its schema.
func NewPostgresStore(ctx context.Context, log *slog.Logger, pool *pgxpool.Pool, budget int64) (*PostgresStore, error) {
	if log == nil {
		log = slog.Default()
	}
	if budget <= 0 {
		budget = 16 * 1024 * 1024
	}
	if _, err := pool.Exec(ctx, createTurnsTable); err != nil {
		return nil, fmt.Errorf("ensure turns schema: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		budget: budget,
		logger: log.With(slog.String("service", "history")),
	}, nil
}

func (s *PostgresStore) Append(ctx context.Context, turn Turn) error {
	var used int64
	row := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(length(user_text) + length(reply) + length(attachments::text)), 0)
		 FROM conversation_turns WHERE session_id = $1`, turn.SessionID)
	if err := row.Scan(&used); err != nil {
		return fmt.Errorf("session size: %w", err)
	}
	if used+turn.Size() > s.budget {
		return fmt.Errorf("%w: budget %d bytes", ErrSessionFull, s.budget)
	}

	attachments, err := json.Marshal(nonNilResults(turn.Attachments))
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, session_id, kind, user_text, attachments, reply, language, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		turn.ID, turn.SessionID, turn.Kind, turn.UserText, attachments, turn.Reply, turn.Language, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, kind, user_text, attachments, reply, language, created_at
		 FROM conversation_turns WHERE session_id = $1 ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var attachments []byte
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.Kind, &turn.UserText, &attachments, &turn.Reply, &turn.Language, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal(attachments, &turn.Attachments); err != nil {
			s.logger.Warn("turn attachments unmarshal failed",
				slog.String("turn_id", turn.ID), slog.Any("error", err))
			turn.Attachments = nil
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

func nonNilResults(in []analysis.Result) []analysis.Result {
	if in == nil {
		return []analysis.Result{}
	}
	return in
}
