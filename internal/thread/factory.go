package thread

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// NewStore picks a backend from the database URL. An empty URL keeps
// threads in memory; postgres:// uses pgx; sqlite: and file: use SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return NewPostgresStore(ctx, u)
	case strings.HasPrefix(u, "sqlite://"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite://"))
	case strings.HasPrefix(u, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite:"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "file:"))
	default:
		return nil, goerr.New("unsupported DATABASE_URL scheme", goerr.V("url", redactURL(u)))
	}
}

func redactURL(u string) string {
	if i := strings.Index(u, "://"); i >= 0 {
		return u[:i] + "://..."
	}
	return "..."
}
