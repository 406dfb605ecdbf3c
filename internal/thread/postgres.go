package thread

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// PostgresStore persists threads in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, goerr.Wrap(err, "connect postgres")
	}

	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thread_messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_thread_messages_thread_created ON thread_messages (thread_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return goerr.Wrap(err, "init schema", goerr.V("stmt", stmt))
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, msgs ...Message) error {
	batch := &pgx.Batch{}
	for _, m := range msgs {
		m = withDefaults(m)
		batch.Queue(
			`INSERT INTO thread_messages (id, thread_id, resource_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ThreadID, m.ResourceID, m.Role, m.Content, m.CreatedAt,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return goerr.Wrap(err, "append thread messages")
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.List(ctx, threadID, "")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, resource_id, role, content, created_at
		 FROM thread_messages WHERE thread_id=$1 ORDER BY created_at DESC LIMIT $2`,
		threadID,
		limit,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "query recent messages", goerr.V("thread_id", threadID))
	}
	items, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, goerr.Wrap(err, "scan recent messages")
	}

	reverse(items)
	return items, nil
}

func (s *PostgresStore) List(ctx context.Context, threadID, resourceID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, thread_id, resource_id, role, content, created_at
		 FROM thread_messages WHERE thread_id=$1 AND ($2 = '' OR resource_id=$2)
		 ORDER BY created_at ASC`,
		threadID,
		resourceID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "query thread messages", goerr.V("thread_id", threadID))
	}
	items, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, goerr.Wrap(err, "scan thread messages")
	}
	return items, nil
}

func (s *PostgresStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM thread_messages WHERE thread_id=$1`, threadID); err != nil {
		return goerr.Wrap(err, "delete thread", goerr.V("thread_id", threadID))
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanMessage(row pgx.CollectableRow) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.ResourceID, &m.Role, &m.Content, &m.CreatedAt)
	return m, err
}

func reverse(items []Message) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
