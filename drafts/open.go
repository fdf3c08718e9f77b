package drafts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Options select and configure a backend.
type Options struct {
	Backend     string // sqlite, postgres or s3
	SQLitePath  string
	PostgresDSN string
	S3          S3Options
}

// Open returns the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = "bondgen-drafts.db"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create draft directory: %w", err)
			}
		}
		return OpenSQLite(ctx, path)
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres draft store needs a DSN")
		}
		return OpenPostgres(ctx, opts.PostgresDSN)
	case "s3":
		return OpenS3(opts.S3)
	default:
		return nil, fmt.Errorf("unknown draft backend %q (want sqlite, postgres or s3)", opts.Backend)
	}
}
