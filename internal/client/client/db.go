package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/tightlines/internal/client/migrations"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tightlines/internal/client/repositories/records"
	"github.com/pressly/goose/v3"
)

// Repositories bundles the repositories backed by the local mirror database.
type Repositories struct {
	Records  records.Repository
	Metadata metadata.Repository
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local SQLite mirror, applies migrations and returns
// the repositories bound to it.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocalDataNotAvailable, err)
	}

	return &Repositories{
		Records:  records.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}, nil
}
