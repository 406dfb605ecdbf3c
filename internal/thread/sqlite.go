package thread

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists threads in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "create sqlite directory", goerr.V("path", dir))
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "open sqlite", goerr.V("path", dbPath))
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "ping sqlite", goerr.V("path", dbPath))
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS thread_messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		thread_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_thread_messages_thread ON thread_messages(thread_id, seq);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return goerr.Wrap(err, "init sqlite schema")
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, msgs ...Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin append")
	}
	defer tx.Rollback()

	for _, m := range msgs {
		m = withDefaults(m)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO thread_messages (id, thread_id, resource_id, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			m.ID, m.ThreadID, m.ResourceID, m.Role, m.Content, m.CreatedAt.UnixMilli(),
		); err != nil {
			return goerr.Wrap(err, "insert thread message", goerr.V("thread_id", m.ThreadID))
		}
	}
	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "commit append")
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return s.List(ctx, threadID, "")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, resource_id, role, content, created_at
		 FROM thread_messages WHERE thread_id = ? ORDER BY seq DESC LIMIT ?`,
		threadID, limit,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "query recent messages", goerr.V("thread_id", threadID))
	}
	items, err := collectSQLite(rows)
	if err != nil {
		return nil, err
	}
	reverse(items)
	return items, nil
}

func (s *SQLiteStore) List(ctx context.Context, threadID, resourceID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, resource_id, role, content, created_at
		 FROM thread_messages WHERE thread_id = ? AND (? = '' OR resource_id = ?)
		 ORDER BY seq ASC`,
		threadID, resourceID, resourceID,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "query thread messages", goerr.V("thread_id", threadID))
	}
	return collectSQLite(rows)
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_messages WHERE thread_id = ?`, threadID); err != nil {
		return goerr.Wrap(err, "delete thread", goerr.V("thread_id", threadID))
	}
	return nil
}

func (s *SQLiteStore) Mode() string { return "sqlite" }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func collectSQLite(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	items := []Message{}
	for rows.Next() {
		var (
			m  Message
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.ResourceID, &m.Role, &m.Content, &ms); err != nil {
			return nil, goerr.Wrap(err, "scan thread message")
		}
		m.CreatedAt = time.UnixMilli(ms).UTC()
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate thread messages")
	}
	return items, nil
}
