package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/lib/pq"

	"github.com/agentship/agentship/pkg/protocol"
)

const checkpointTableDDL = `
CREATE TABLE IF NOT EXISTS agent_checkpoints (
	thread_id  TEXT NOT NULL,
	seq        BIGSERIAL,
	message    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (thread_id, seq)
)`

// PostgresStore checkpoints session history in Postgres, keyed by thread
// id. The connection is opened lazily with double-checked locking so
// construction never touches the network.
type PostgresStore struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewPostgresStore(dsn string) *PostgresStore {
	return &PostgresStore{dsn: dsn}
}

// getDB returns the live connection, opening it on first use.
func (s *PostgresStore) getDB(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to session store: %w", err)
	}
	if _, err := db.ExecContext(ctx, checkpointTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure checkpoint table: %w", err)
	}

	s.db = db
	slog.Info("connected to session store")
	return s.db, nil
}

// Refresh drops the current connection so the next call reconnects. Called
// after transient connection errors.
func (s *PostgresStore) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Debug("error closing session store during refresh", "error", err)
		}
		s.db = nil
	}
}

func (s *PostgresStore) EnsureSession(ctx context.Context, userID, sessionID string) error {
	// Sessions are implicit rows keyed by thread id; reaching the database
	// is all creation requires.
	_, err := s.getDB(ctx)
	return err
}

func (s *PostgresStore) History(ctx context.Context, userID, sessionID string) ([]protocol.Message, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT message FROM agent_checkpoints WHERE thread_id = $1 ORDER BY seq`,
		ThreadID(userID, sessionID),
	)
	if err != nil {
		s.Refresh()
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var history []protocol.Message
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		history = append(history, msg)
	}
	return history, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, userID, sessionID string, messages ...protocol.Message) error {
	if len(messages) == 0 {
		return nil
	}
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		s.Refresh()
		return fmt.Errorf("failed to begin checkpoint: %w", err)
	}
	defer tx.Rollback()

	threadID := ThreadID(userID, sessionID)
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to encode checkpoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agent_checkpoints (thread_id, message) VALUES ($1, $2)`,
			threadID, raw,
		); err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
